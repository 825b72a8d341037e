// Package ephemeris owns the massive
// bodies and their Continuous Trajectories, the fixed-step integration
// that advances them (Prolong), the adaptive-step integration of massless
// probes against the resulting field (FlowWithAdaptiveStep), rewind
// (ForgetAfter/ForgetBefore), and apsis detection (ComputeApsides).
package ephemeris

import (
	"fmt"
	"math"
	"sort"

	"github.com/ephemcore/ephemeris-core/body"
	"github.com/ephemcore/ephemeris-core/ct"
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/integrator"
	"github.com/ephemcore/ephemeris-core/quantity"
	"github.com/ephemcore/ephemeris-core/telemetry"
	"github.com/ephemcore/ephemeris-core/xlog"
	kitlog "github.com/go-kit/kit/log"
)

// checkpointInterval is the minimum spacing between intermediate
// checkpoints.
const checkpointInterval = 180 * 24 * 3600.0

// Config holds the Ephemeris's construction-time parameters.
type Config struct {
	Step                float64 // fixed-step Δ, in seconds
	FittingTolerance    float64 // ε_fit handed to every body's CT
	NominalStep         float64 // target CT piece length; defaults to 50*Step if zero
	PlanetaryIntegrator string  // identifier, informational only
}

type checkpoint struct {
	time       float64
	positions  []quantity.Vec3
	velocities []quantity.Vec3
}

// Ephemeris owns a fixed set of massive bodies for its lifetime.
type Ephemeris struct {
	bodies  []body.Body // oblate-first, per body.Partition
	nOblate int

	cts []*ct.Trajectory

	lastTime       float64
	lastPositions  []quantity.Vec3
	lastVelocities []quantity.Vec3

	checkpoints []checkpoint

	step float64
	cfg  Config

	logger kitlog.Logger
	tel    *telemetry.Ephemeris
}

// New constructs an Ephemeris from owned bodies and their initial degrees
// of freedom at t0. bodies/positions/velocities must be
// the same length, in matching construction order; New partitions them
// oblate-first internally.
func New(bodies []body.Body, positions, velocities []quantity.Vec3, t0 float64, cfg Config, logger kitlog.Logger, tel *telemetry.Ephemeris) *Ephemeris {
	if len(bodies) != len(positions) || len(bodies) != len(velocities) {
		panic("ephemeris: New: bodies/positions/velocities length mismatch")
	}
	if cfg.Step <= 0 || cfg.FittingTolerance <= 0 {
		panic("ephemeris: New: Step and FittingTolerance must be positive")
	}
	nominal := cfg.NominalStep
	if nominal <= 0 {
		nominal = 50 * cfg.Step
	}
	if logger == nil {
		logger = xlog.Nop()
	}

	partitioned, idx, nOblate := body.Partition(bodies)
	pos := make([]quantity.Vec3, len(bodies))
	vel := make([]quantity.Vec3, len(bodies))
	for i, j := range idx {
		pos[j] = positions[i]
		vel[j] = velocities[i]
	}

	cts := make([]*ct.Trajectory, len(partitioned))
	for i := range cts {
		cts[i] = ct.New(cfg.FittingTolerance, nominal)
		cts[i].Append(t0, pos[i])
	}

	cfg.NominalStep = nominal
	return &Ephemeris{
		bodies:         partitioned,
		nOblate:        nOblate,
		cts:            cts,
		lastTime:       t0,
		lastPositions:  pos,
		lastVelocities: vel,
		step:           cfg.Step,
		cfg:            cfg,
		logger:         logger,
		tel:            tel,
	}
}

// NumberOfBodies returns the number of massive bodies.
func (e *Ephemeris) NumberOfBodies() int { return len(e.bodies) }

// Body returns the i-th body in oblate-first order.
func (e *Ephemeris) Body(i int) body.Body { return e.bodies[i] }

// Trajectory returns the i-th body's Continuous Trajectory.
func (e *Ephemeris) Trajectory(i int) *ct.Trajectory { return e.cts[i] }

// TMax returns the latest time at which every body's CT has a finalised
// piece. While some body's CT has no closed piece yet, it returns
// last_state.time − Δ instead.
func (e *Ephemeris) TMax() float64 {
	max := e.lastTime
	seenEmpty := false
	for _, c := range e.cts {
		if c.Empty() {
			seenEmpty = true
			continue
		}
		if c.TMax() < max {
			max = c.TMax()
		}
	}
	if seenEmpty {
		// No piece has closed for at least one body yet; t_max is
		// undefined ahead of construction time.
		return e.lastTime - e.step
	}
	return max
}

// LastStateTime returns last_state_.time.
func (e *Ephemeris) LastStateTime() float64 { return e.lastTime }

// Config returns the construction-time parameters this Ephemeris was built
// with (NominalStep resolved to its effective value). Used by package
// serialize to record a record that New can reconstruct from verbatim.
func (e *Ephemeris) Config() Config { return e.cfg }

// LastPositions returns a copy of the last state's positions, oblate-first
// per body.Partition ordering.
func (e *Ephemeris) LastPositions() []quantity.Vec3 {
	return append([]quantity.Vec3(nil), e.lastPositions...)
}

// LastVelocities returns a copy of the last state's velocities, matching
// LastPositions' ordering.
func (e *Ephemeris) LastVelocities() []quantity.Vec3 {
	return append([]quantity.Vec3(nil), e.lastVelocities...)
}

// Checkpoint is the exported, serializable form of one intermediate
// rewind checkpoint.
type Checkpoint struct {
	Time       float64
	Positions  []quantity.Vec3
	Velocities []quantity.Vec3
}

// Checkpoints returns a copy of every intermediate checkpoint, in
// chronological order.
func (e *Ephemeris) Checkpoints() []Checkpoint {
	out := make([]Checkpoint, len(e.checkpoints))
	for i, cp := range e.checkpoints {
		out[i] = Checkpoint{
			Time:       cp.time,
			Positions:  append([]quantity.Vec3(nil), cp.positions...),
			Velocities: append([]quantity.Vec3(nil), cp.velocities...),
		}
	}
	return out
}

// Restore rebuilds an Ephemeris's full internal state (bodies, CTs, last
// state, checkpoints) from previously exported components, bypassing
// fresh construction/integration entirely so the result is bit-identical
// to the Ephemeris the components were exported from. Used by package
// serialize for the non-legacy read path.
func Restore(bodies []body.Body, cts []*ct.Trajectory, lastTime float64, lastPositions, lastVelocities []quantity.Vec3, checkpoints []Checkpoint, cfg Config, logger kitlog.Logger, tel *telemetry.Ephemeris) *Ephemeris {
	if logger == nil {
		logger = xlog.Nop()
	}
	_, _, nOblate := body.Partition(bodies)
	cps := make([]checkpoint, len(checkpoints))
	for i, cp := range checkpoints {
		cps[i] = checkpoint{
			time:       cp.Time,
			positions:  append([]quantity.Vec3(nil), cp.Positions...),
			velocities: append([]quantity.Vec3(nil), cp.Velocities...),
		}
	}
	return &Ephemeris{
		bodies:         bodies,
		nOblate:        nOblate,
		cts:            cts,
		lastTime:       lastTime,
		lastPositions:  append([]quantity.Vec3(nil), lastPositions...),
		lastVelocities: append([]quantity.Vec3(nil), lastVelocities...),
		checkpoints:    cps,
		step:           cfg.Step,
		cfg:            cfg,
		logger:         logger,
		tel:            tel,
	}
}

// --- Acceleration kernel ---

func (e *Ephemeris) acceleration(t float64, positions []quantity.Vec3) []quantity.Vec3 {
	accel := make([]quantity.Vec3, len(positions))
	n := e.nOblate

	// oblate x oblate
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			e.accumulatePair(positions, accel, i, j, true, true)
		}
	}
	// oblate x spherical
	for i := 0; i < n; i++ {
		for j := n; j < len(positions); j++ {
			e.accumulatePair(positions, accel, i, j, true, false)
		}
	}
	// spherical x spherical
	for i := n; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			e.accumulatePair(positions, accel, i, j, false, false)
		}
	}
	return accel
}

// accumulatePair adds the mutual Newtonian acceleration (and, where
// applicable, the J2 contribution) for the unordered pair (i, j) into
// accel. i < j always. iOblate/jOblate record which loop this call came
// from so the J2 term is only computed for the side that actually needs
// it — the three call sites above are the "specialise at the inner loop"
// split that stands in for compile-time template dispatch in Go
// (see DESIGN.md's body entry).
func (e *Ephemeris) accumulatePair(positions, accel []quantity.Vec3, i, j int, iOblate, jOblate bool) {
	bi, bj := e.bodies[i], e.bodies[j]
	delta := positions[i].Sub(positions[j]) // from j to i
	r2 := delta.Norm2()
	r := math.Sqrt(r2)
	invR3 := 1 / (r2 * r)

	accel[j] = accel[j].Add(delta.Scale(float64(bi.Mu) * invR3))
	accel[i] = accel[i].Sub(delta.Scale(float64(bj.Mu) * invR3))

	if iOblate {
		// delta points from j to i; the J2 formula wants the vector from
		// the oblate body i outward to j, i.e. -delta here.
		termOnJ := order2Zonal(bi, delta.Scale(-1), r2, r)
		accel[j] = accel[j].Add(termOnJ)
		accel[i] = accel[i].Sub(termOnJ.Scale(float64(bj.Mu) / float64(bi.Mu)))
	}
	if jOblate {
		// The vector from the oblate body j outward to i is delta itself.
		termOnI := order2Zonal(bj, delta, r2, r)
		accel[i] = accel[i].Add(termOnI)
		accel[j] = accel[j].Sub(termOnI.Scale(float64(bi.Mu) / float64(bj.Mu)))
	}
}

// order2Zonal computes the J2 acceleration an oblate body induces at
// displacement r (pointing away from the oblate body):
// −(J₂/μ)·(1/r⁵)·(3 ĵ (r·ĵ) + r (3 − 15 (r·ĵ)²/r²)/2), where body.J2OverMu
// holds the dimensionless J₂ divided by μ; the result is scaled by μ²·R²
// (R the body's Radius) to yield a true acceleration, −μ·J₂·R²/r⁵·(…).
func order2Zonal(oblate body.Body, r quantity.Vec3, r2, rNorm float64) quantity.Vec3 {
	invR5 := 1 / (r2 * r2 * rNorm)
	rDotAxis := r.Dot(oblate.PolarAxis)
	bracket := oblate.PolarAxis.Scale(3 * rDotAxis).Add(r.Scale((3 - 15*rDotAxis*rDotAxis/r2) / 2))
	mu, radius := float64(oblate.Mu), float64(oblate.Radius)
	return bracket.Scale(-oblate.J2OverMu * mu * mu * radius * radius * invR5)
}

// --- Prolong ---

// Prolong advances the fixed integrator until every body's CT has a
// closed piece and TMax() >= t. It always performs at least one step
// even when t <= last_state.time, by flooring the requested target at
// last_state.time + Δ.
func (e *Ephemeris) Prolong(t float64) {
	tFinal := t
	if tFinal < e.lastTime+e.step {
		tFinal = e.lastTime + e.step
	}

	for {
		problem := integrator.FixedProblem{
			T0:           e.lastTime,
			Positions:    e.lastPositions,
			Velocities:   e.lastVelocities,
			Acceleration: e.acceleration,
			AppendState:  e.onFixedStep,
		}
		(integrator.Fixed{}).Solve(problem, e.step, tFinal)

		covered := e.TMax() >= t
		for _, c := range e.cts {
			covered = covered && !c.Empty()
		}
		if covered {
			return
		}
		tFinal = e.lastTime + e.step
	}
}

func (e *Ephemeris) onFixedStep(t float64, positions, velocities []quantity.Vec3) {
	pieceJustClosed := true
	for i, c := range e.cts {
		hadPiece, beforeMax := !c.Empty(), 0.0
		if hadPiece {
			beforeMax = c.TMax()
		}
		c.Append(t, positions[i])
		closed := c.Empty() == false && (!hadPiece || c.TMax() != beforeMax)
		if !closed {
			pieceJustClosed = false
		}
	}

	e.lastTime = t
	e.lastPositions = positions
	e.lastVelocities = velocities

	e.tel.IncFixedSteps(1)
	e.tel.SetTMax(e.TMax())

	if pieceJustClosed && e.eligibleForCheckpoint(t) {
		e.checkpoints = append(e.checkpoints, checkpoint{
			time:       t,
			positions:  append([]quantity.Vec3(nil), positions...),
			velocities: append([]quantity.Vec3(nil), velocities...),
		})
	}
}

func (e *Ephemeris) eligibleForCheckpoint(t float64) bool {
	if len(e.checkpoints) == 0 {
		return true
	}
	return t-e.checkpoints[len(e.checkpoints)-1].time >= checkpointInterval
}

// --- ForgetAfter / ForgetBefore ---

// ForgetAfter rewinds the Ephemeris to the earliest checkpointed
// intermediate state >= t, restoring last_state_ and truncating every
// CT. That checkpoint is kept; later ones are dropped. If no checkpoint
// >= t exists, this is a no-op.
func (e *Ephemeris) ForgetAfter(t float64) {
	idx := sort.Search(len(e.checkpoints), func(i int) bool { return e.checkpoints[i].time >= t })
	if idx == len(e.checkpoints) {
		return
	}
	cp := e.checkpoints[idx]
	e.lastTime = cp.time
	e.lastPositions = append([]quantity.Vec3(nil), cp.positions...)
	e.lastVelocities = append([]quantity.Vec3(nil), cp.velocities...)
	e.checkpoints = e.checkpoints[:idx+1]

	for _, c := range e.cts {
		c.ForgetAfter(cp.time)
	}
	e.tel.SetTMax(e.TMax())
}

// ForgetBefore drops CT pieces entirely earlier than t in every body, and
// any checkpoints that predate it.
func (e *Ephemeris) ForgetBefore(t float64) {
	for _, c := range e.cts {
		c.ForgetBefore(t)
	}
	idx := sort.Search(len(e.checkpoints), func(i int) bool { return e.checkpoints[i].time >= t })
	e.checkpoints = e.checkpoints[idx:]
}

// --- FlowWithAdaptiveStep ---

// AccelerationOnProbe returns the gravitational acceleration at (t, pos)
// due to every massive body, evaluated from their Continuous
// Trajectories. t must be within every body's [TMin, TMax]; callers are
// expected to have Prolong'd far enough first.
func (e *Ephemeris) AccelerationOnProbe(t float64, pos quantity.Vec3, hints []*ct.Hint) (quantity.Vec3, error) {
	var total quantity.Vec3
	for i, c := range e.cts {
		bodyPos, err := c.EvaluatePosition(t, hints[i])
		if err != nil {
			return quantity.Vec3{}, fmt.Errorf("ephemeris: AccelerationOnProbe: body %d: %w", i, err)
		}
		delta := bodyPos.Sub(pos) // from probe to body
		r2 := delta.Norm2()
		r := math.Sqrt(r2)
		invR3 := 1 / (r2 * r)
		total = total.Add(delta.Scale(float64(e.bodies[i].Mu) * invR3))
		if e.bodies[i].Oblate {
			// From the probe's perspective the oblate body is at
			// bodyPos; the J2 formula wants the vector from the oblate
			// body outward, i.e. pos - bodyPos = -delta.
			total = total.Add(order2Zonal(e.bodies[i], delta.Scale(-1), r2, r))
		}
	}
	return total, nil
}

// FlowWithAdaptiveStep integrates probe from its last sample to t,
// prolonging the Ephemeris as needed but bounding how far a single call
// may push it forward via maxEphemerisSteps. accel may
// be nil for a pure coast. Returns true iff the integration reached t
// exactly; false signals either a budget exhaustion (repeat the call) or
// a singularity — the caller's responsibility to distinguish via logs/
// telemetry if needed.
func (e *Ephemeris) FlowWithAdaptiveStep(probe *dt.Trajectory, accel func(t float64) quantity.Vec3, t float64, params integrator.Parameters, maxEphemerisSteps int) bool {
	last, ok := probe.Last()
	if !ok {
		panic("ephemeris: FlowWithAdaptiveStep: probe has no initial sample")
	}

	tFinal := t
	boundA := e.lastTime + float64(maxEphemerisSteps)*e.step
	boundB := last.T + e.step
	bound := math.Max(boundA, boundB)
	if tFinal > bound {
		tFinal = bound
	}
	e.Prolong(tFinal)

	hints := make([]*ct.Hint, len(e.cts))
	for i := range hints {
		hints[i] = &ct.Hint{}
	}

	problem := integrator.AdaptiveProblem{
		T0:       last.T,
		Position: last.Position,
		Velocity: last.Velocity,
		TFinal:   tFinal,
		Acceleration: func(tt float64, pos quantity.Vec3) quantity.Vec3 {
			grav, err := e.AccelerationOnProbe(tt, pos, hints)
			if err != nil {
				panic(err) // Prolong above guarantees coverage; a failure here is a bug.
			}
			if accel != nil {
				grav = grav.Add(accel(tt))
			}
			return grav
		},
		AppendState: func(tt float64, pos, vel quantity.Vec3) {
			_ = probe.Append(dt.Sample{T: tt, Position: pos, Velocity: vel})
		},
	}

	outcome, reached := (integrator.Adaptive{}).Solve(problem, params)
	switch outcome {
	case integrator.Done:
		e.tel.ObserveAdaptiveOutcome("done")
	case integrator.ReachedMaximalStepCount:
		e.tel.ObserveAdaptiveOutcome("did_not_reach_target")
		xlog.Warn(e.logger, "did not reach target time", "target", t, "reached", reached)
	case integrator.VanishingStepSize:
		e.tel.ObserveAdaptiveOutcome("singular")
		xlog.Warn(e.logger, "singular step size", "reached", reached)
	}
	return outcome == integrator.Done && reached == t
}
