// Package manoeuvre implements the Navigation Manœuvre value type:
// thrust, specific impulse, direction frame, initial mass, start time,
// duration, final time/mass, and the intrinsic acceleration function of
// time derived from them.
//
// The thrust/Isp vocabulary follows a constant-thrust, constant-Isp
// electric-propulsion family (PPS1350, HERMeS, GenericEP), and mass
// consumption follows the rocket equation: fuel burned each step comes
// straight out of the spacecraft mass degree of freedom.
package manoeuvre

import (
	"math"

	"github.com/ephemcore/ephemeris-core/quantity"
)

// g0 is standard gravity, used to convert specific impulse (seconds)
// into an effective exhaust velocity, exactly as the classical rocket
// equation does.
const g0 = 9.80665e-3 // km/s^2, to match this module's km-based orbital units

// Manoeuvre is an immutable value: a constant-thrust, constant-Isp burn
// starting at InitialTime with InitialMass, lasting until the rocket
// equation consumes the fuel implied by DeltaV.
type Manoeuvre struct {
	thrust          float64 // F
	specificImpulse float64 // Isp, in seconds
	initialMass     float64 // m0
	initialTime     float64 // t0
	duration        float64 // derived
	finalMass       float64 // derived
	direction       func(t float64) quantity.Vec3
}

// New builds a Manoeuvre that burns thrust at specificImpulse starting at
// t0 with initialMass, achieving the given deltaV (km/s, consistent with
// g0's km/s^2 x seconds). direction need not return a normalised vector;
// IntrinsicAcceleration normalises it at evaluation time, matching the
// teacher's own direction-vector handling in waypoints.go.
func New(thrust, specificImpulse, initialMass, deltaV, t0 float64, direction func(t float64) quantity.Vec3) Manoeuvre {
	if specificImpulse <= 0 || initialMass <= 0 {
		panic("manoeuvre: New: specificImpulse and initialMass must be positive")
	}
	exhaustVelocity := specificImpulse * g0
	finalMass := initialMass * math.Exp(-deltaV/exhaustVelocity)

	var duration float64
	if thrust <= 0 {
		duration = math.Inf(1)
	} else {
		massFlowRate := thrust / exhaustVelocity
		duration = (initialMass - finalMass) / massFlowRate
	}

	return Manoeuvre{
		thrust:          thrust,
		specificImpulse: specificImpulse,
		initialMass:     initialMass,
		initialTime:     t0,
		duration:        duration,
		finalMass:       finalMass,
		direction:       direction,
	}
}

// Reconstruct rebuilds a Manoeuvre directly from its already-derived
// fields (duration, final mass), bypassing the rocket-equation recompute
// in New so that re-reading a serialized record is bit-identical to the
// Manoeuvre it was exported from.
func Reconstruct(thrust, specificImpulse, initialMass, initialTime, duration, finalMass float64, direction func(t float64) quantity.Vec3) Manoeuvre {
	return Manoeuvre{
		thrust:          thrust,
		specificImpulse: specificImpulse,
		initialMass:     initialMass,
		initialTime:     initialTime,
		duration:        duration,
		finalMass:       finalMass,
		direction:       direction,
	}
}

func (m Manoeuvre) InitialTime() float64     { return m.initialTime }
func (m Manoeuvre) FinalTime() float64       { return m.initialTime + m.duration }
func (m Manoeuvre) InitialMass() float64     { return m.initialMass }
func (m Manoeuvre) FinalMass() float64       { return m.finalMass }
func (m Manoeuvre) Duration() float64        { return m.duration }
func (m Manoeuvre) Thrust() float64          { return m.thrust }
func (m Manoeuvre) SpecificImpulse() float64 { return m.specificImpulse }

// IsSingular reports whether the computed duration is non-finite — e.g.
// a zero-thrust burn asked to deliver a nonzero Δv, which the rocket
// equation can only satisfy in infinite time.
func (m Manoeuvre) IsSingular() bool {
	return math.IsInf(m.duration, 1) || math.IsNaN(m.duration)
}

// FitsBetween reports whether [InitialTime, FinalTime] is a subset of
// [tMin, tMax].
func (m Manoeuvre) FitsBetween(tMin, tMax float64) bool {
	return m.InitialTime() >= tMin && m.FinalTime() <= tMax
}

// massAt returns the instantaneous mass at t, for t in
// [InitialTime, FinalTime]; linear in elapsed time, per the constant
// mass-flow-rate assumption.
func (m Manoeuvre) massAt(t float64) float64 {
	if m.duration == 0 {
		return m.initialMass
	}
	frac := (t - m.initialTime) / m.duration
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return m.initialMass + frac*(m.finalMass-m.initialMass)
}

// Direction returns the unit thrust direction at t, in the ambient frame
// the caller's direction callback is expressed in.
func (m Manoeuvre) Direction(t float64) quantity.Vec3 {
	d := m.direction(t)
	if d.IsZero() {
		return d
	}
	return d.Unit()
}

// IntrinsicAcceleration returns thrust/mass(t) * Direction(t) for t in
// [InitialTime, FinalTime], and the zero vector outside it.
func (m Manoeuvre) IntrinsicAcceleration(t float64) quantity.Vec3 {
	if t < m.InitialTime() || t > m.FinalTime() {
		return quantity.Vec3{}
	}
	return m.Direction(t).Scale(m.thrust / m.massAt(t))
}
