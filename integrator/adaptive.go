package integrator

import (
	"math"

	"github.com/ephemcore/ephemeris-core/quantity"
	"github.com/gonum/floats"
)

// Outcome is the termination condition of an Adaptive.Solve call.
type Outcome int

const (
	// Done means the integrator reached problem.TFinal.
	Done Outcome = iota
	// ReachedMaximalStepCount means Parameters.MaxSteps was exhausted
	// before reaching TFinal.
	ReachedMaximalStepCount
	// VanishingStepSize means the adapted step size underflowed,
	// signalling a singularity in the acceleration field.
	VanishingStepSize
)

// Parameters configures the adaptive-step integrator.
type Parameters struct {
	InitialStep  float64
	SafetyFactor float64 // e.g. 0.9
	MaxSteps     int

	// ToleranceToErrorRatio returns min(ε_L / max‖δq‖, ε_v / max‖δv‖) for
	// the given embedded-pair position/velocity error estimates.
	// A ratio >= 1 accepts the step.
	ToleranceToErrorRatio func(posErr, velErr quantity.Vec3) float64
}

// NewStandardParameters builds Parameters whose ToleranceToErrorRatio is
// a length/speed tolerance pair: min(lengthTol/‖δq‖, speedTol/‖δv‖).
func NewStandardParameters(initialStep, lengthTol, speedTol float64, safety float64, maxSteps int) Parameters {
	if initialStep <= 0 || lengthTol <= 0 || speedTol <= 0 || maxSteps <= 0 {
		panic("integrator: NewStandardParameters: all of initialStep/lengthTol/speedTol/maxSteps must be positive")
	}
	return Parameters{
		InitialStep:  initialStep,
		SafetyFactor: safety,
		MaxSteps:     maxSteps,
		ToleranceToErrorRatio: func(posErr, velErr quantity.Vec3) float64 {
			posNorm := floats.Norm([]float64{posErr.X, posErr.Y, posErr.Z}, 2)
			velNorm := floats.Norm([]float64{velErr.X, velErr.Y, velErr.Z}, 2)
			qRatio := lengthTol / math.Max(posNorm, 1e-300)
			vRatio := speedTol / math.Max(velNorm, 1e-300)
			return math.Min(qRatio, vRatio)
		},
	}
}

// AdaptiveProblem is the massless-probe problem: a single body's initial
// position/velocity, an acceleration callback a(t, pos) (massive-body
// gravity plus an optional manœuvre's intrinsic acceleration), and a sink
// for accepted steps.
type AdaptiveProblem struct {
	T0       float64
	Position quantity.Vec3
	Velocity quantity.Vec3
	TFinal   float64

	Acceleration func(t float64, pos quantity.Vec3) quantity.Vec3
	AppendState  func(t float64, pos, vel quantity.Vec3)
}

// Adaptive is an embedded Dormand-Prince 5(4) Runge-Kutta integrator with
// step-size control: it advances with both the 5th- and 4th-order
// solutions, uses their difference as an error estimate, and grows or
// shrinks the step to keep that error within ToleranceToErrorRatio.
type Adaptive struct{}

// dopri5 Butcher tableau (Dormand & Prince, 1980).
var (
	dopriC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dopriA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	dopriB5 = [7]float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0}
	dopriB4 = [7]float64{5179.0 / 57600, 0, 7571.0 / 16695, 393.0 / 640, -92097.0 / 339200, 187.0 / 2100, 1.0 / 40}
)

// state6 is the flattened (position, velocity) state the Runge-Kutta
// stages integrate.
type state6 struct {
	pos, vel quantity.Vec3
}

func derivative(accel func(t float64, pos quantity.Vec3) quantity.Vec3, t float64, s state6) state6 {
	return state6{pos: s.vel, vel: accel(t, s.pos)}
}

func addScaled(a, b state6, scale float64) state6 {
	return state6{
		pos: a.pos.Add(b.pos.Scale(scale)),
		vel: a.vel.Add(b.vel.Scale(scale)),
	}
}

// Solve runs the embedded integrator from problem.T0/Position/Velocity
// toward problem.TFinal, appending every accepted step via
// problem.AppendState. It returns the outcome and the time actually
// reached; callers (Ephemeris.FlowWithAdaptiveStep) treat success as
// outcome == Done && reached == problem.TFinal.
func (Adaptive) Solve(problem AdaptiveProblem, params Parameters) (outcome Outcome, reached float64) {
	if params.InitialStep <= 0 || params.MaxSteps <= 0 {
		panic("integrator: Adaptive.Solve: InitialStep and MaxSteps must be positive")
	}
	safety := params.SafetyFactor
	if safety <= 0 {
		safety = 0.9
	}

	t := problem.T0
	h := params.InitialStep
	if problem.TFinal < t {
		h = -h
	}
	s := state6{pos: problem.Position, vel: problem.Velocity}

	const minStep = 1e-12

	for step := 0; step < params.MaxSteps; step++ {
		remaining := problem.TFinal - t
		if remaining == 0 {
			return Done, t
		}
		// Don't overshoot TFinal.
		if (h > 0 && h > remaining) || (h < 0 && h < remaining) {
			h = remaining
		}

		var k [7]state6
		k[0] = derivative(problem.Acceleration, t, s)
		for stage := 1; stage < 7; stage++ {
			acc := s
			for j := 0; j < stage; j++ {
				acc = addScaled(acc, k[j], h*dopriA[stage][j])
			}
			k[stage] = derivative(problem.Acceleration, t+dopriC[stage]*h, acc)
		}

		var high, low state6
		high, low = s, s
		for i := 0; i < 7; i++ {
			high = addScaled(high, k[i], h*dopriB5[i])
			low = addScaled(low, k[i], h*dopriB4[i])
		}

		posErr := high.pos.Sub(low.pos)
		velErr := high.vel.Sub(low.vel)
		ratio := params.ToleranceToErrorRatio(posErr, velErr)
		if !math.IsNaN(ratio) && ratio >= 1 {
			// Accept.
			t += h
			s = high
			problem.AppendState(t, s.pos, s.vel)
			if t == problem.TFinal {
				return Done, t
			}
		}

		// Adapt the step size regardless of accept/reject (standard
		// embedded-RK step control).
		factor := safety * math.Pow(math.Max(ratio, 1e-12), 1.0/5)
		factor = math.Max(0.2, math.Min(5, factor))
		h *= factor
		if math.Abs(h) < minStep {
			return VanishingStepSize, t
		}
	}
	return ReachedMaximalStepCount, t
}
