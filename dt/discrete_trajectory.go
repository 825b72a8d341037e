// Package dt implements the Discrete Trajectory: a tree of forkable,
// time-indexed sample streams. Each spacecraft-side trajectory is a node
// with a parent and may itself spawn children (forks) rooted at any
// sample.
//
// The tree lives in an Arena; nodes reference parents/children by index,
// not by pointer: the arena owns the nodes, and children hold indices
// (not owning references) to parents. The root is the arena's only
// externally owned handle — forks are borrowed views obtained via
// Trajectory values that wrap an *Arena and a node index.
package dt

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ephemcore/ephemeris-core/quantity"
)

// ErrNotStrictlyIncreasing is returned by Append when t does not exceed
// the trajectory's last sample time.
var ErrNotStrictlyIncreasing = errors.New("dt: time not strictly increasing")

// ErrForkTimeOutOfRange is returned by the fork constructors when t does
// not lie within the parent's [first, last] sample range.
var ErrForkTimeOutOfRange = errors.New("dt: fork time out of parent range")

// Sample is one (time, position, velocity) point.
type Sample struct {
	T        float64
	Position quantity.Vec3
	Velocity quantity.Vec3
}

type node struct {
	parent   int // -1 for root
	forkTime float64
	samples  []Sample
	children []int
	deleted  bool
}

// Arena owns every node of one Discrete Trajectory tree.
type Arena struct {
	nodes []node
}

// NewArena returns an empty arena with a single root trajectory.
func NewArena() (*Arena, *Trajectory) {
	a := &Arena{nodes: []node{{parent: -1}}}
	return a, &Trajectory{arena: a, idx: 0}
}

// Trajectory is a borrowed view onto one node of an Arena's tree.
type Trajectory struct {
	arena *Arena
	idx   int
}

func (t *Trajectory) node() *node {
	return &t.arena.nodes[t.idx]
}

// IsRoot reports whether t has no parent.
func (t *Trajectory) IsRoot() bool {
	return t.node().parent == -1
}

// Parent returns t's parent trajectory, or (nil, false) if t is a root.
func (t *Trajectory) Parent() (*Trajectory, bool) {
	n := t.node()
	if n.parent == -1 {
		return nil, false
	}
	return &Trajectory{arena: t.arena, idx: n.parent}, true
}

// ForkTime returns the time at which t was forked from its parent, or
// (0, false) if t is a root.
func (t *Trajectory) ForkTime() (float64, bool) {
	if t.IsRoot() {
		return 0, false
	}
	return t.node().forkTime, true
}

// SameNode reports whether t and o are views onto the same arena node.
// Flight Plan's replace_last_segment contract needs this to
// check that a replacement segment shares its predecessor's fork point.
func (t *Trajectory) SameNode(o *Trajectory) bool {
	return o != nil && t.arena == o.arena && t.idx == o.idx
}

// Append pushes a sample with strictly monotonic time.
func (t *Trajectory) Append(s Sample) error {
	n := t.node()
	if len(n.samples) > 0 && s.T <= n.samples[len(n.samples)-1].T {
		return fmt.Errorf("%w: %g after %g", ErrNotStrictlyIncreasing, s.T, n.samples[len(n.samples)-1].T)
	}
	n.samples = append(n.samples, s)
	return nil
}

// Begin returns the first sample owned directly by this node (not
// including ancestor history — see Samples for the unified timeline).
// ok is false if this node has no samples of its own.
func (t *Trajectory) Begin() (Sample, bool) {
	n := t.node()
	if len(n.samples) == 0 {
		return Sample{}, false
	}
	return n.samples[0], true
}

// Last returns the most recent sample owned directly by this node. ok is
// false if this node has no samples of its own.
func (t *Trajectory) Last() (Sample, bool) {
	n := t.node()
	if len(n.samples) == 0 {
		return Sample{}, false
	}
	return n.samples[len(n.samples)-1], true
}

// End returns the time of the last owned sample, i.e. Last().T; ok is
// false if this node has no samples of its own.
func (t *Trajectory) End() (float64, bool) {
	s, ok := t.Last()
	return s.T, ok
}

// Find returns the sample at exactly time t among this node's own
// samples (not walking into ancestors).
func (t *Trajectory) Find(time float64) (Sample, bool) {
	n := t.node()
	i := sort.Search(len(n.samples), func(i int) bool { return n.samples[i].T >= time })
	if i < len(n.samples) && n.samples[i].T == time {
		return n.samples[i], true
	}
	return Sample{}, false
}

// LowerBound returns the first sample among this node's own samples with
// T >= time.
func (t *Trajectory) LowerBound(time float64) (Sample, bool) {
	n := t.node()
	i := sort.Search(len(n.samples), func(i int) bool { return n.samples[i].T >= time })
	if i < len(n.samples) {
		return n.samples[i], true
	}
	return Sample{}, false
}

// Samples returns the unified timeline for this node: every ancestor's
// samples up to (and including) its fork point in its own parent,
// followed by this node's own samples — obtained by walking the ancestor
// chain to the root and concatenating.
func (t *Trajectory) Samples() []Sample {
	var chain []*node
	cur := t
	for {
		chain = append(chain, cur.node())
		p, ok := cur.Parent()
		if !ok {
			break
		}
		cur = p
	}
	// chain is leaf-to-root; walk root-to-leaf, keeping only each
	// ancestor's samples up to (and including) the fork point in it.
	var out []Sample
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if i == 0 {
			out = append(out, n.samples...)
			continue
		}
		childForkTime := chain[i-1].forkTime
		for _, s := range n.samples {
			if s.T <= childForkTime {
				out = append(out, s)
			}
		}
	}
	return out
}

// NewForkWithCopyAt forks a new child rooted at t, copying the sample at
// t (found via the unified timeline) into the child so it starts with at
// least one point.
func (t *Trajectory) NewForkWithCopyAt(time float64) (*Trajectory, error) {
	fork, err := t.newFork(time)
	if err != nil {
		return nil, err
	}
	if s, ok := t.sampleInUnifiedTimeline(time); ok {
		fork.node().samples = append(fork.node().samples, s)
	}
	return fork, nil
}

// NewForkWithoutCopyAt forks a new, empty child rooted at t.
func (t *Trajectory) NewForkWithoutCopyAt(time float64) (*Trajectory, error) {
	return t.newFork(time)
}

func (t *Trajectory) sampleInUnifiedTimeline(time float64) (Sample, bool) {
	timeline := t.Samples()
	i := sort.Search(len(timeline), func(i int) bool { return timeline[i].T >= time })
	if i < len(timeline) && timeline[i].T == time {
		return timeline[i], true
	}
	return Sample{}, false
}

func (t *Trajectory) newFork(time float64) (*Trajectory, error) {
	timeline := t.Samples()
	if len(timeline) == 0 {
		return nil, fmt.Errorf("%w: parent has no samples", ErrForkTimeOutOfRange)
	}
	first, last := timeline[0].T, timeline[len(timeline)-1].T
	if time < first || time > last {
		return nil, fmt.Errorf("%w: %g not in [%g, %g]", ErrForkTimeOutOfRange, time, first, last)
	}
	t.arena.nodes = append(t.arena.nodes, node{parent: t.idx, forkTime: time})
	childIdx := len(t.arena.nodes) - 1
	t.node().children = append(t.node().children, childIdx)
	return &Trajectory{arena: t.arena, idx: childIdx}, nil
}

// DeleteFork unlinks and destroys child, which must be a direct child of
// t. After this call child must not be used.
func (t *Trajectory) DeleteFork(child *Trajectory) error {
	n := t.node()
	for i, c := range n.children {
		if c == child.idx {
			n.children = append(n.children[:i], n.children[i+1:]...)
			// Recursively drop any of the fork's own children first, in
			// reverse chronological order to avoid dangling forks.
			child.deleteChildrenReverse()
			child.node().deleted = true
			child.node().samples = nil
			return nil
		}
	}
	return fmt.Errorf("dt: DeleteFork: not a direct child")
}

func (t *Trajectory) deleteChildrenReverse() {
	n := t.node()
	for i := len(n.children) - 1; i >= 0; i-- {
		c := &Trajectory{arena: t.arena, idx: n.children[i]}
		c.deleteChildrenReverse()
		c.node().deleted = true
		c.node().samples = nil
	}
	n.children = nil
}

// NodeRecord is the exported, serializable form of one arena node. Used
// only by package serialize for a bit-stable round trip of a whole
// Discrete Trajectory tree (not just one node's unified timeline).
type NodeRecord struct {
	Parent   int // -1 for root
	ForkTime float64
	Samples  []Sample
	Deleted  bool
}

// ExportNodes returns every node of the arena, indexed identically to its
// internal node slice.
func (a *Arena) ExportNodes() []NodeRecord {
	out := make([]NodeRecord, len(a.nodes))
	for i, n := range a.nodes {
		out[i] = NodeRecord{
			Parent:   n.parent,
			ForkTime: n.forkTime,
			Samples:  append([]Sample(nil), n.samples...),
			Deleted:  n.deleted,
		}
	}
	return out
}

// LoadArena rebuilds an Arena and returns its root Trajectory from
// previously exported nodes, reconstructing each node's children slice
// from the recorded parent links. records[0] must be the root (Parent ==
// -1), matching NewArena's invariant.
func LoadArena(records []NodeRecord) (*Arena, *Trajectory) {
	nodes := make([]node, len(records))
	for i, r := range records {
		nodes[i] = node{
			parent:   r.Parent,
			forkTime: r.ForkTime,
			samples:  append([]Sample(nil), r.Samples...),
			deleted:  r.Deleted,
		}
	}
	for i, n := range nodes {
		if n.parent >= 0 {
			nodes[n.parent].children = append(nodes[n.parent].children, i)
		}
	}
	a := &Arena{nodes: nodes}
	return a, &Trajectory{arena: a, idx: 0}
}

// NodeIndex returns t's own index within its arena, for callers (package
// serialize) that need to record cross-references between a Trajectory and
// other structures keyed by node index.
func (t *Trajectory) NodeIndex() int { return t.idx }

// AtIndex returns a Trajectory view onto the node at idx within a, for
// reconstructing borrowed segment references after LoadArena.
func AtIndex(a *Arena, idx int) *Trajectory { return &Trajectory{arena: a, idx: idx} }

// ArenaOf returns the Arena t belongs to, so code holding only a borrowed
// Trajectory (e.g. a Flight Plan's root) can still export the whole tree.
func ArenaOf(t *Trajectory) *Arena { return t.arena }

// ForgetAfter drops all of this node's own samples strictly after t.
func (t *Trajectory) ForgetAfter(time float64) {
	n := t.node()
	i := sort.Search(len(n.samples), func(i int) bool { return n.samples[i].T > time })
	n.samples = n.samples[:i]
}
