// Package body defines the massive bodies an Ephemeris integrates: a
// gravitational parameter and, optionally, an axisymmetric J2 oblateness
// term. Bodies are immutable values constructed once and owned by an
// Ephemeris for its lifetime.
package body

import "github.com/ephemcore/ephemeris-core/quantity"

// Body is a massive body participating in the N-body acceleration kernel.
// It is a tagged variant: Oblate selects whether PolarAxis/J2OverMu are
// meaningful. Kept as a flat struct (rather than an interface) so
// Partition can group bodies oblate-first/spherical-second and the
// Ephemeris's acceleration kernel can walk three separate monomorphic
// loops over that grouping (oblate x oblate, oblate x spherical,
// spherical x spherical), instead of dispatching through a virtual call
// or a branch on every pair.
type Body struct {
	Name string

	// Mu is the gravitational parameter, μ = G*M.
	Mu quantity.GravitationalParameter

	// Radius is the body's reference radius. Besides apsis/collision-
	// adjacent bookkeeping (ComputeApsides callers, sanity checks), the
	// acceleration kernel uses it as R in the J2 term of oblate bodies.
	Radius quantity.Length

	Oblate bool
	// PolarAxis is the unit vector of the body's symmetry axis (ĵ in
	// the Order2Zonal formula). Meaningless unless Oblate.
	PolarAxis quantity.Vec3
	// J2OverMu is J2/μ, the ratio the zonal formula is expressed in.
	J2OverMu float64
}

// NewSpherical returns a non-oblate body.
func NewSpherical(name string, mu quantity.GravitationalParameter, radius quantity.Length) Body {
	if mu <= 0 {
		panic("body: NewSpherical: mu must be positive")
	}
	return Body{Name: name, Mu: mu, Radius: radius}
}

// NewOblate returns an oblate body with the given symmetry axis and J2/μ.
// axis need not be pre-normalised; it is normalised here.
func NewOblate(name string, mu quantity.GravitationalParameter, radius quantity.Length, axis quantity.Vec3, j2OverMu float64) Body {
	if mu <= 0 {
		panic("body: NewOblate: mu must be positive")
	}
	return Body{
		Name:      name,
		Mu:        mu,
		Radius:    radius,
		Oblate:    true,
		PolarAxis: axis.Unit(),
		J2OverMu:  j2OverMu,
	}
}

// Partition splits bodies into oblate-first, spherical-second order:
// body index range [0, N_oblate) holds oblate bodies, [N_oblate, N) holds
// spherical ones. It also returns a
// construction-order index map (index into the returned slice for each
// position in the input slice) so callers needing stable external
// ordering (serialization) can recover it.
func Partition(bodies []Body) (partitioned []Body, constructionIndex []int, nOblate int) {
	partitioned = make([]Body, 0, len(bodies))
	constructionIndex = make([]int, len(bodies))

	for i, b := range bodies {
		if b.Oblate {
			partitioned = append(partitioned, b)
			constructionIndex[i] = len(partitioned) - 1
			nOblate++
		}
	}
	for i, b := range bodies {
		if !b.Oblate {
			partitioned = append(partitioned, b)
			constructionIndex[i] = len(partitioned) - 1
		}
	}
	return partitioned, constructionIndex, nOblate
}

// Presets giving a small celestial body table (μ in km^3/s^2,
// radius in km), trimmed to the handful needed to seed tests and the demo
// CLI. Not a general planetary ephemeris: these do not move.
var (
	Sun = NewSpherical("Sun", 1.32712440018e11, 695700)

	// Earth carries the standard J2 value (1082.6269e-6 as J2, divided by
	// μ to express it the way this module's zonal formula wants it).
	Earth = NewOblate("Earth", 398600.4418, 6378.1363, quantity.Vec3{Z: 1}, 1082.6269e-6/398600.4418)

	Mars = NewOblate("Mars", 42828.314, 3396.19, quantity.Vec3{Z: 1}, 1964e-6/42828.314)
)
