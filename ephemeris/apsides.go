package ephemeris

import (
	"math"

	"github.com/ephemcore/ephemeris-core/ct"
	"github.com/ephemcore/ephemeris-core/dt"
)

// ComputeApsides detects periapsides/apoapsides of segment's probe
// relative to body bodyIndex, emitting the interpolated state at each
// extremum into apoapsides or periapsides.
//
// For each pair of adjacent samples, the squared distance to the body and
// its time-derivative (2 r·v_rel) are evaluated; a sign change in the
// derivative between the two samples brackets an apsis. The extremum
// time is found by fitting a Hermite cubic to the bracketing squared
// distances and derivatives and solving for the zero of its derivative
// within the interval; if that quadratic has zero or two roots in range
// (a degenerate fit), the zero crossing of the derivative is instead
// found by linear interpolation between the two samples.
func (e *Ephemeris) ComputeApsides(segment *dt.Trajectory, bodyIndex int, apoapsides, periapsides *dt.Trajectory) error {
	samples := segment.Samples()
	if len(samples) < 2 {
		return nil
	}
	bodyCT := e.cts[bodyIndex]
	hint := &ct.Hint{}

	type point struct {
		t        float64
		r2       float64
		r2Dot    float64
		position dt.Sample
	}

	pts := make([]point, len(samples))
	for i, s := range samples {
		bodyPos, bodyVel, err := bodyCT.EvaluateDoF(s.T, hint)
		if err != nil {
			return err
		}
		rel := s.Position.Sub(bodyPos)
		relVel := s.Velocity.Sub(bodyVel)
		pts[i] = point{
			t:        s.T,
			r2:       rel.Norm2(),
			r2Dot:    2 * rel.Dot(relVel),
			position: s,
		}
	}

	for i := 0; i+1 < len(pts); i++ {
		a, b := pts[i], pts[i+1]
		if sameSign(a.r2Dot, b.r2Dot) {
			continue
		}
		tApsis, ok := solveApsisTime(a.t, b.t, a.r2, a.r2Dot, b.r2, b.r2Dot)
		if !ok {
			continue
		}
		state := interpolateSample(a.position, b.position, tApsis)

		// Derivative going from positive to negative => local maximum
		// (apoapsis); negative to positive => local minimum (periapsis).
		if a.r2Dot > 0 && b.r2Dot < 0 {
			if err := apoapsides.Append(state); err != nil {
				return err
			}
		} else if a.r2Dot < 0 && b.r2Dot > 0 {
			if err := periapsides.Append(state); err != nil {
				return err
			}
		}
	}
	return nil
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a > 0) == (b > 0)
}

// solveApsisTime fits a Hermite cubic to (f0, f0', f1, f1') over [t0, t1]
// and returns the time at which the cubic's derivative vanishes. Falls
// back to linearly interpolating the zero of the derivative itself when
// the Hermite fit yields zero or more than one root in the interval.
func solveApsisTime(t0, t1, f0, f0p, f1, f1p float64) (float64, bool) {
	h := t1 - t0
	if h <= 0 {
		return 0, false
	}
	// Cubic in s = (t - t0) / h: p(s) = a3 s^3 + a2 s^2 + a1 s + a0.
	a3 := 2*f0 + h*f0p - 2*f1 + h*f1p
	a2 := -3*f0 - 2*h*f0p + 3*f1 - h*f1p
	a1 := h * f0p

	// p'(s) = 3 a3 s^2 + 2 a2 s + a1 = 0.
	roots, n := solveQuadratic(3*a3, 2*a2, a1)
	var inRange []float64
	for i := 0; i < n; i++ {
		if roots[i] >= 0 && roots[i] <= 1 {
			inRange = append(inRange, roots[i])
		}
	}
	if len(inRange) == 1 {
		return t0 + inRange[0]*h, true
	}

	// Fallback: linear interpolation of the derivative's zero crossing.
	if f0p == f1p {
		return 0, false
	}
	s := f0p / (f0p - f1p)
	if s < 0 || s > 1 {
		return 0, false
	}
	return t0 + s*h, true
}

func solveQuadratic(a, b, c float64) (roots [2]float64, n int) {
	if a == 0 {
		if b == 0 {
			return roots, 0
		}
		roots[0] = -c / b
		return roots, 1
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return roots, 0
	}
	if disc == 0 {
		roots[0] = -b / (2 * a)
		return roots, 1
	}
	sq := math.Sqrt(disc)
	roots[0] = (-b + sq) / (2 * a)
	roots[1] = (-b - sq) / (2 * a)
	return roots, 2
}

func interpolateSample(a, b dt.Sample, t float64) dt.Sample {
	if b.T == a.T {
		return a
	}
	frac := (t - a.T) / (b.T - a.T)
	return dt.Sample{
		T:        t,
		Position: a.Position.Add(b.Position.Sub(a.Position).Scale(frac)),
		Velocity: a.Velocity.Add(b.Velocity.Sub(a.Velocity).Scale(frac)),
	}
}
