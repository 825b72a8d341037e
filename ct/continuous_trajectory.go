// Package ct implements the Continuous Trajectory: a per-body time series
// of Chebyshev polynomial pieces fitted to positions appended by the fixed
// integrator, queryable for position and velocity at any instant within
// the fitted window (spec: Component Design §4.1).
package ct

import (
	"errors"
	"fmt"

	"github.com/ephemcore/ephemeris-core/quantity"
	"github.com/gonum/matrix/mat64"
)

// ErrOutOfRange is the fatal precondition violation raised when a query
// falls outside [TMin, TMax]. This is a programmer error, not a budgeted
// failure, so callers that can legitimately query outside the fitted
// window must check TMin/TMax themselves first.
var ErrOutOfRange = errors.New("ct: time out of range")

const (
	// degreeMin/degreeMax bound the Chebyshev series degree tried while
	// fitting a piece; the fitter grows the degree until the residual
	// meets the tolerance or degreeMax is hit.
	degreeMin = 3
	degreeMax = 14
)

// piece is one Chebyshev-fitted polynomial segment on [t0, t1]. Position
// coefficients are stored per axis; velocity is the analytic derivative of
// the fitted position series, so a trajectory sampled densely enough stays
// internally consistent between position and velocity queries.
type piece struct {
	t0, t1 float64
	// coeffs[axis] holds the Chebyshev coefficients c_0..c_n for that axis.
	coeffs [3][]float64
}

func (p *piece) tau(t float64) float64 {
	mid := (p.t0 + p.t1) / 2
	half := (p.t1 - p.t0) / 2
	return (t - mid) / half
}

// evalChebyshevWithDeriv evaluates the Chebyshev series and its derivative
// with respect to t (not tau) by direct summation over the T_n(tau)
// recurrence plus the standard T_n'(tau) recurrence.
func evalChebyshevWithDeriv(coeffs []float64, tau, halfWindow float64) (val, deriv float64) {
	n := len(coeffs)
	if n == 0 {
		return 0, 0
	}
	// Direct-sum evaluation (Clenshaw is an optimisation; direct form
	// keeps the derivative computation straightforward and the degree
	// here is always small).
	tPrev, tCurr := 1.0, tau
	dPrev, dCurr := 0.0, 1.0
	val = coeffs[0]
	if n > 1 {
		val += coeffs[1] * tCurr
		deriv = coeffs[1] * dCurr
	}
	for k := 2; k < n; k++ {
		tNext := 2*tau*tCurr - tPrev
		dNext := 2*tCurr + 2*tau*dCurr - dPrev
		val += coeffs[k] * tNext
		deriv += coeffs[k] * dNext
		tPrev, tCurr = tCurr, tNext
		dPrev, dCurr = dCurr, dNext
	}
	// d/dt = d/dtau * dtau/dt = deriv / halfWindow
	return val, deriv / halfWindow
}

// Hint is an opaque cache amortising piece lookup across sequential
// queries. Never shared across goroutines (spec: Concurrency §5).
type Hint struct {
	pieceIdx int
}

// Trajectory is the continuous trajectory of a single body.
type Trajectory struct {
	epsFit       float64
	nominalStep  float64
	pieces       []piece
	pending      []sample
	pendingStart float64
	haveFirst    bool
	lastT        float64
}

type sample struct {
	t   float64
	pos quantity.Vec3
}

// New returns an empty Continuous Trajectory with the given fit tolerance
// and nominal piece step.
func New(epsFit, nominalStep float64) *Trajectory {
	if epsFit <= 0 || nominalStep <= 0 {
		panic("ct: New: epsFit and nominalStep must be positive")
	}
	return &Trajectory{epsFit: epsFit, nominalStep: nominalStep}
}

// Empty reports whether the trajectory has no fitted pieces yet.
func (c *Trajectory) Empty() bool {
	return len(c.pieces) == 0
}

// TMin returns the earliest time covered by a finalised piece. Panics if
// Empty.
func (c *Trajectory) TMin() float64 {
	if c.Empty() {
		panic("ct: TMin: trajectory is empty")
	}
	return c.pieces[0].t0
}

// TMax returns the latest time covered by a finalised piece. Panics if
// Empty.
func (c *Trajectory) TMax() float64 {
	if c.Empty() {
		panic("ct: TMax: trajectory is empty")
	}
	return c.pieces[len(c.pieces)-1].t1
}

// Append adds a sample at strictly increasing t. Once the pending buffer
// spans at least the nominal step, a new polynomial piece is fitted and
// the buffer reset (keeping the last sample as the seed of the next
// piece, so pieces are contiguous).
func (c *Trajectory) Append(t float64, pos quantity.Vec3) {
	if c.haveFirst && t <= c.lastT {
		panic(fmt.Sprintf("ct: Append: time %g not strictly increasing after %g", t, c.lastT))
	}
	c.haveFirst = true
	c.lastT = t
	if len(c.pending) == 0 {
		c.pendingStart = t
	}
	c.pending = append(c.pending, sample{t: t, pos: pos})

	if t-c.pendingStart >= c.nominalStep && len(c.pending) >= degreeMin+1 {
		c.fitPendingPiece()
	}
}

func (c *Trajectory) fitPendingPiece() {
	samples := c.pending
	t0, t1 := samples[0].t, samples[len(samples)-1].t
	mid := (t0 + t1) / 2
	half := (t1 - t0) / 2
	if half == 0 {
		// Degenerate (should not happen given the nominalStep guard);
		// keep accumulating.
		return
	}

	var best piece
	for degree := degreeMin; degree <= degreeMax; degree++ {
		if degree+1 > len(samples) {
			break
		}
		p := fitDegree(samples, mid, half, degree)
		best = p
		if fitResidual(p, samples, half) <= c.epsFit || degree == degreeMax {
			break
		}
	}
	best.t0, best.t1 = t0, t1
	c.pieces = append(c.pieces, best)

	// Seed the next piece with the final sample so pieces are contiguous.
	last := samples[len(samples)-1]
	c.pending = []sample{last}
	c.pendingStart = last.t
}

// fitDegree performs an ordinary least-squares fit of a degree-`degree`
// Chebyshev series per axis against samples, via gonum's legacy dense
// Solve (QR-backed least squares when over-determined).
func fitDegree(samples []sample, mid, half float64, degree int) piece {
	n := len(samples)
	design := mat64.NewDense(n, degree+1, nil)
	for i, s := range samples {
		tau := (s.t - mid) / half
		row := chebyshevBasis(tau, degree)
		for k := 0; k <= degree; k++ {
			design.Set(i, k, row[k])
		}
	}

	var p piece
	for axis := 0; axis < 3; axis++ {
		b := mat64.NewDense(n, 1, nil)
		for i, s := range samples {
			var v float64
			switch axis {
			case 0:
				v = s.pos.X
			case 1:
				v = s.pos.Y
			case 2:
				v = s.pos.Z
			}
			b.Set(i, 0, v)
		}
		p.coeffs[axis] = solveLeastSquares(design, b, degree+1)
	}
	return p
}

func chebyshevBasis(tau float64, degree int) []float64 {
	basis := make([]float64, degree+1)
	basis[0] = 1
	if degree >= 1 {
		basis[1] = tau
	}
	for k := 2; k <= degree; k++ {
		basis[k] = 2*tau*basis[k-1] - basis[k-2]
	}
	return basis
}

// solveLeastSquares solves the (generally over-determined) system a*x = b
// via gonum's Dense.Solve, which falls back to a QR-based least-squares
// solution when a has more rows than columns.
func solveLeastSquares(a, b *mat64.Dense, ncols int) []float64 {
	var x mat64.Dense
	coeffs := make([]float64, ncols)
	if err := x.Solve(a, b); err != nil {
		// Degenerate/too-few-distinct-samples case: return an all-zero
		// coefficient set rather than failing the append.
		return coeffs
	}
	for i := 0; i < ncols; i++ {
		coeffs[i] = x.At(i, 0)
	}
	return coeffs
}

func fitResidual(p piece, samples []sample, half float64) float64 {
	max := 0.0
	for _, s := range samples {
		tau := p.tauOf(s.t, samples)
		for axis := 0; axis < 3; axis++ {
			val, _ := evalChebyshevWithDeriv(p.coeffs[axis], tau, half)
			var want float64
			switch axis {
			case 0:
				want = s.pos.X
			case 1:
				want = s.pos.Y
			case 2:
				want = s.pos.Z
			}
			if d := val - want; d > max {
				max = d
			} else if -d > max {
				max = -d
			}
		}
	}
	return max
}

// tauOf computes tau for an arbitrary sample using the same mid/half this
// piece's coefficients were fitted with. samples is only used to recover
// mid/half cheaply during fitting (t0/t1 on the receiver are not yet set
// at that point).
func (p piece) tauOf(t float64, samples []sample) float64 {
	t0, t1 := samples[0].t, samples[len(samples)-1].t
	mid := (t0 + t1) / 2
	half := (t1 - t0) / 2
	return (t - mid) / half
}

// findPiece locates the piece covering t, using hint as a starting guess.
func (c *Trajectory) findPiece(t float64, hint *Hint) (*piece, error) {
	if c.Empty() || t < c.TMin() || t > c.TMax() {
		return nil, fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, t, c.safeTMin(), c.safeTMax())
	}
	idx := 0
	if hint != nil && hint.pieceIdx >= 0 && hint.pieceIdx < len(c.pieces) {
		idx = hint.pieceIdx
	}
	// Walk forward or backward from the hint; pieces are few enough per
	// query burst that a linear walk amortises well.
	for idx > 0 && t < c.pieces[idx].t0 {
		idx--
	}
	for idx < len(c.pieces)-1 && t > c.pieces[idx].t1 {
		idx++
	}
	if hint != nil {
		hint.pieceIdx = idx
	}
	return &c.pieces[idx], nil
}

func (c *Trajectory) safeTMin() float64 {
	if c.Empty() {
		return 0
	}
	return c.TMin()
}

func (c *Trajectory) safeTMax() float64 {
	if c.Empty() {
		return 0
	}
	return c.TMax()
}

// EvaluatePosition returns the position at t, which must lie in
// [TMin, TMax]. hint may be nil.
func (c *Trajectory) EvaluatePosition(t float64, hint *Hint) (quantity.Vec3, error) {
	p, err := c.findPiece(t, hint)
	if err != nil {
		return quantity.Vec3{}, err
	}
	half := (p.t1 - p.t0) / 2
	tau := p.tau(t)
	var pos quantity.Vec3
	x, _ := evalChebyshevWithDeriv(p.coeffs[0], tau, half)
	y, _ := evalChebyshevWithDeriv(p.coeffs[1], tau, half)
	z, _ := evalChebyshevWithDeriv(p.coeffs[2], tau, half)
	pos = quantity.Vec3{X: x, Y: y, Z: z}
	return pos, nil
}

// EvaluateDoF returns the (position, velocity) pair at t, which must lie
// in [TMin, TMax]. hint may be nil.
func (c *Trajectory) EvaluateDoF(t float64, hint *Hint) (pos, vel quantity.Vec3, err error) {
	p, ferr := c.findPiece(t, hint)
	if ferr != nil {
		return quantity.Vec3{}, quantity.Vec3{}, ferr
	}
	half := (p.t1 - p.t0) / 2
	tau := p.tau(t)
	x, vx := evalChebyshevWithDeriv(p.coeffs[0], tau, half)
	y, vy := evalChebyshevWithDeriv(p.coeffs[1], tau, half)
	z, vz := evalChebyshevWithDeriv(p.coeffs[2], tau, half)
	return quantity.Vec3{X: x, Y: y, Z: z}, quantity.Vec3{X: vx, Y: vy, Z: vz}, nil
}

// PieceRecord is the exported, serializable form of a fitted polynomial
// piece: its time window and per-axis Chebyshev coefficients. Used only by
// package serialize, which needs the fitted coefficients themselves (not a
// replayed sample stream) for a bit-stable round trip.
type PieceRecord struct {
	T0, T1 float64
	X, Y, Z []float64
}

// ExportPieces returns every finalised piece as a PieceRecord, in time
// order. The pending (not-yet-fitted) buffer is not included: an exported
// record describes only finalised state.
func (c *Trajectory) ExportPieces() []PieceRecord {
	out := make([]PieceRecord, len(c.pieces))
	for i, p := range c.pieces {
		out[i] = PieceRecord{
			T0: p.t0, T1: p.t1,
			X: append([]float64(nil), p.coeffs[0]...),
			Y: append([]float64(nil), p.coeffs[1]...),
			Z: append([]float64(nil), p.coeffs[2]...),
		}
	}
	return out
}

// Reconstruct rebuilds a Trajectory directly from previously exported
// pieces, bypassing the least-squares fitter entirely so the result is
// bit-identical to the Trajectory ExportPieces was called on.
func Reconstruct(epsFit, nominalStep float64, pieces []PieceRecord) *Trajectory {
	c := New(epsFit, nominalStep)
	c.pieces = make([]piece, len(pieces))
	for i, r := range pieces {
		c.pieces[i] = piece{
			t0: r.T0, t1: r.T1,
			coeffs: [3][]float64{
				append([]float64(nil), r.X...),
				append([]float64(nil), r.Y...),
				append([]float64(nil), r.Z...),
			},
		}
	}
	if len(pieces) > 0 {
		c.haveFirst = true
		c.lastT = pieces[len(pieces)-1].T1
	}
	return c
}

// ForgetBefore drops every piece entirely earlier than t.
func (c *Trajectory) ForgetBefore(t float64) {
	i := 0
	for i < len(c.pieces) && c.pieces[i].t1 < t {
		i++
	}
	c.pieces = c.pieces[i:]
}

// ForgetAfter drops every piece starting at or after t and the pending
// buffer, used by Ephemeris.ForgetAfter to truncate a CT back to a
// checkpoint. The new buffer is seeded with the fitted position at the
// remaining tail's end, so the next piece stays contiguous with it.
func (c *Trajectory) ForgetAfter(t float64) {
	i := 0
	for i < len(c.pieces) && c.pieces[i].t0 < t {
		i++
	}
	c.pieces = c.pieces[:i]
	c.pending = nil
	c.haveFirst = !c.Empty()
	if c.haveFirst {
		c.lastT = c.pieces[len(c.pieces)-1].t1
		end, _ := c.EvaluatePosition(c.lastT, nil)
		c.pending = []sample{{t: c.lastT, pos: end}}
		c.pendingStart = c.lastT
	} else {
		c.lastT = 0
	}
}
