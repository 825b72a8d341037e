package serialize

import (
	"github.com/ephemcore/ephemeris-core/manoeuvre"
	"github.com/ephemcore/ephemeris-core/quantity"
)

// ManoeuvreRecord is the structured-record form of a manoeuvre.Manoeuvre.
//
// manoeuvre.Manoeuvre's direction is a func(t float64) quantity.Vec3,
// which has no general serializable form. Only the constant-direction
// case is supported here: the direction is sampled once at InitialTime
// and stored as a single vector, then replayed as a constant function on
// read-back. A direction that varies over the burn is not preserved; it
// reads back as its value at InitialTime.
type ManoeuvreRecord struct {
	Thrust          float64   `json:"thrust"`
	SpecificImpulse float64   `json:"specific_impulse"`
	InitialMass     float64   `json:"initial_mass"`
	InitialTime     float64   `json:"initial_time"`
	Duration        float64   `json:"duration"`
	FinalMass       float64   `json:"final_mass"`
	Direction       VecRecord `json:"direction"`
}

// ManoeuvreToRecord builds the structured record for m, sampling its
// direction at its own InitialTime.
func ManoeuvreToRecord(m manoeuvre.Manoeuvre) ManoeuvreRecord {
	return ManoeuvreRecord{
		Thrust:          m.Thrust(),
		SpecificImpulse: m.SpecificImpulse(),
		InitialMass:     m.InitialMass(),
		InitialTime:     m.InitialTime(),
		Duration:        m.Duration(),
		FinalMass:       m.FinalMass(),
		Direction:       vecToRecord(m.Direction(m.InitialTime())),
	}
}

// ManoeuvreFromRecord rebuilds a Manoeuvre from r via manoeuvre.Reconstruct,
// bypassing the rocket-equation recompute so the result is bit-identical
// to the Manoeuvre r was exported from. The direction is replayed as the
// constant vector recorded in r.
func ManoeuvreFromRecord(r ManoeuvreRecord) manoeuvre.Manoeuvre {
	dir := vecFromRecord(r.Direction)
	constant := func(t float64) quantity.Vec3 { return dir }
	return manoeuvre.Reconstruct(r.Thrust, r.SpecificImpulse, r.InitialMass, r.InitialTime, r.Duration, r.FinalMass, constant)
}
