// Package integrator implements two integrator interfaces: a fixed-step
// solver for the massive-body N-body problem and an adaptive-step,
// error-controlled solver for massless probes and flight plan segments.
//
// Both are plain function-value ODE callbacks rather than objects with
// virtual dispatch.
package integrator

import (
	"math"

	"github.com/ephemcore/ephemeris-core/quantity"
)

// FixedProblem is the N-body fixed-step problem: initial positions and
// velocities for every body, an acceleration callback, and a sink for
// completed steps.
type FixedProblem struct {
	T0         float64
	Positions  []quantity.Vec3
	Velocities []quantity.Vec3

	// Acceleration computes the acceleration of every body at time t
	// given all current positions.
	Acceleration func(t float64, positions []quantity.Vec3) []quantity.Vec3

	// AppendState is called once per completed step with the new state.
	AppendState func(t float64, positions, velocities []quantity.Vec3)
}

// Fixed is a constant-step, symplectic (kick-drift-kick leapfrog)
// integrator for the conservative N-body gravitational problem, chosen
// over a plain RK4 because leapfrog conserves energy over long
// integrations instead of slowly bleeding it away. It keeps a
// callback-driven step loop shape (Positions/Acceleration/AppendState)
// so callers can swap it for Adaptive without touching their ODE
// definitions.
type Fixed struct{}

// Solve advances problem.Positions/Velocities from problem.T0 until
// tFinal using the given constant step, calling problem.AppendState after
// every completed step. tFinal is first rounded up to the smallest
// multiple of step from T0 that is >= the caller-supplied tFinal; if
// tFinal <= T0 no steps are taken. Returns the time actually reached.
func (Fixed) Solve(problem FixedProblem, step, tFinal float64) float64 {
	if step <= 0 {
		panic("integrator: Fixed.Solve: step must be positive")
	}
	n := len(problem.Positions)
	if len(problem.Velocities) != n {
		panic("integrator: Fixed.Solve: Positions/Velocities length mismatch")
	}

	numSteps := int(math.Ceil((tFinal - problem.T0) / step))
	if numSteps < 0 {
		numSteps = 0
	}

	pos := append([]quantity.Vec3(nil), problem.Positions...)
	vel := append([]quantity.Vec3(nil), problem.Velocities...)
	t := problem.T0

	for s := 0; s < numSteps; s++ {
		accel := problem.Acceleration(t, pos)
		velHalf := make([]quantity.Vec3, n)
		for i := range vel {
			velHalf[i] = vel[i].Add(accel[i].Scale(step / 2))
		}
		posNew := make([]quantity.Vec3, n)
		for i := range pos {
			posNew[i] = pos[i].Add(velHalf[i].Scale(step))
		}
		tNew := t + step
		accelNew := problem.Acceleration(tNew, posNew)
		velNew := make([]quantity.Vec3, n)
		for i := range velHalf {
			velNew[i] = velHalf[i].Add(accelNew[i].Scale(step / 2))
		}

		problem.AppendState(tNew, posNew, velNew)
		pos, vel, t = posNew, velNew, tNew
	}
	return t
}
