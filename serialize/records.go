// Package serialize implements the structured-record envelope for every
// persistent entity (Ephemeris, Flight Plan, Discrete Trajectory,
// Continuous Trajectory, manœuvre, state): a JSON-tagged struct per
// entity, a bit-stable encoding/gob round trip over the same structs, and
// readers for two legacy formats (Pre-Bourbaki Ephemeris, Pre-Буняковский
// Flight Plan).
//
// Structs follow a field-per-attribute JSON convention with `omitempty`
// on optional data and nested record types for sub-entities.
package serialize

import (
	"github.com/ephemcore/ephemeris-core/body"
	"github.com/ephemcore/ephemeris-core/ct"
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/quantity"
)

// VecRecord is the structured-record form of a quantity.Vec3.
type VecRecord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func vecToRecord(v quantity.Vec3) VecRecord { return VecRecord{X: v.X, Y: v.Y, Z: v.Z} }
func vecFromRecord(r VecRecord) quantity.Vec3 {
	return quantity.Vec3{X: r.X, Y: r.Y, Z: r.Z}
}

func vecsToRecords(vs []quantity.Vec3) []VecRecord {
	out := make([]VecRecord, len(vs))
	for i, v := range vs {
		out[i] = vecToRecord(v)
	}
	return out
}

func vecsFromRecords(rs []VecRecord) []quantity.Vec3 {
	out := make([]quantity.Vec3, len(rs))
	for i, r := range rs {
		out[i] = vecFromRecord(r)
	}
	return out
}

// BodyRecord is the structured-record form of a body.Body.
type BodyRecord struct {
	Name      string    `json:"name"`
	Mu        float64   `json:"mu"`
	Radius    float64   `json:"radius,omitempty"`
	Oblate    bool      `json:"oblate,omitempty"`
	PolarAxis VecRecord `json:"polar_axis,omitempty"`
	J2OverMu  float64   `json:"j2_over_mu,omitempty"`
}

func bodyToRecord(b body.Body) BodyRecord {
	return BodyRecord{
		Name:      b.Name,
		Mu:        float64(b.Mu),
		Radius:    float64(b.Radius),
		Oblate:    b.Oblate,
		PolarAxis: vecToRecord(b.PolarAxis),
		J2OverMu:  b.J2OverMu,
	}
}

func bodyFromRecord(r BodyRecord) body.Body {
	if r.Oblate {
		return body.NewOblate(r.Name, quantity.GravitationalParameter(r.Mu), quantity.Length(r.Radius), vecFromRecord(r.PolarAxis), r.J2OverMu)
	}
	return body.NewSpherical(r.Name, quantity.GravitationalParameter(r.Mu), quantity.Length(r.Radius))
}

// CTRecord is the structured-record form of one body's Continuous
// Trajectory: its fitted pieces, verbatim (not a replayed sample stream),
// so re-reading it is bit-identical.
type CTRecord struct {
	EpsFit      float64         `json:"eps_fit"`
	NominalStep float64         `json:"nominal_step"`
	Pieces      []ct.PieceRecord `json:"pieces"`
}

func ctToRecord(epsFit, nominalStep float64, c *ct.Trajectory) CTRecord {
	return CTRecord{EpsFit: epsFit, NominalStep: nominalStep, Pieces: c.ExportPieces()}
}

func ctFromRecord(r CTRecord) *ct.Trajectory {
	return ct.Reconstruct(r.EpsFit, r.NominalStep, r.Pieces)
}

// CheckpointRecord is the structured-record form of one Ephemeris
// intermediate rewind checkpoint.
type CheckpointRecord struct {
	Time       float64     `json:"time"`
	Positions  []VecRecord `json:"positions"`
	Velocities []VecRecord `json:"velocities"`
}

// SampleRecord is the structured-record form of a dt.Sample.
type SampleRecord struct {
	T        float64   `json:"t"`
	Position VecRecord `json:"position"`
	Velocity VecRecord `json:"velocity"`
}

func samplesToRecords(ss []dt.Sample) []SampleRecord {
	if len(ss) == 0 {
		// nil, not empty: gob drops empty slices and decodes them as nil.
		return nil
	}
	out := make([]SampleRecord, len(ss))
	for i, s := range ss {
		out[i] = SampleRecord{T: s.T, Position: vecToRecord(s.Position), Velocity: vecToRecord(s.Velocity)}
	}
	return out
}

func samplesFromRecords(rs []SampleRecord) []dt.Sample {
	out := make([]dt.Sample, len(rs))
	for i, r := range rs {
		out[i] = dt.Sample{T: r.T, Position: vecFromRecord(r.Position), Velocity: vecFromRecord(r.Velocity)}
	}
	return out
}

// NodeRecord is the structured-record form of one Discrete Trajectory
// arena node.
type NodeRecord struct {
	Parent   int            `json:"parent"`
	ForkTime float64        `json:"fork_time,omitempty"`
	Samples  []SampleRecord `json:"samples,omitempty"`
	Deleted  bool           `json:"deleted,omitempty"`
}

// TreeRecord is the structured-record form of a whole Discrete Trajectory
// arena (every node, not just one borrowed leaf's unified timeline).
type TreeRecord struct {
	Nodes []NodeRecord `json:"nodes"`
}

func treeToRecord(a *dt.Arena) TreeRecord {
	nodes := a.ExportNodes()
	out := make([]NodeRecord, len(nodes))
	for i, n := range nodes {
		out[i] = NodeRecord{
			Parent:   n.Parent,
			ForkTime: n.ForkTime,
			Samples:  samplesToRecords(n.Samples),
			Deleted:  n.Deleted,
		}
	}
	return TreeRecord{Nodes: out}
}

func treeFromRecord(r TreeRecord) (*dt.Arena, *dt.Trajectory) {
	nodes := make([]dt.NodeRecord, len(r.Nodes))
	for i, n := range r.Nodes {
		nodes[i] = dt.NodeRecord{
			Parent:   n.Parent,
			ForkTime: n.ForkTime,
			Samples:  samplesFromRecords(n.Samples),
			Deleted:  n.Deleted,
		}
	}
	return dt.LoadArena(nodes)
}
