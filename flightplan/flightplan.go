// Package flightplan implements the Flight Plan state machine: an ordered
// sequence of manœuvres mirrored by a vector of alternating coast/burn
// Discrete Trajectory segments (coast0, burn0, coast1, ..., coastK),
// forked off a caller-owned root. Flight Plan borrows its segments and an
// Ephemeris; it owns neither.
//
// Budgeted failures (anomaly counter bumped, a warning logged, no Go
// error returned) follow a fail-soft-but-log pattern for sanity-check
// failures, rather than propagating them as errors.
package flightplan

import (
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/ephemeris"
	"github.com/ephemcore/ephemeris-core/integrator"
	"github.com/ephemcore/ephemeris-core/manoeuvre"
	"github.com/ephemcore/ephemeris-core/quantity"
	"github.com/ephemcore/ephemeris-core/telemetry"
	"github.com/ephemcore/ephemeris-core/xlog"
	kitlog "github.com/go-kit/kit/log"
)

const defaultMaxEphemerisSteps = 1000

// BurnSpec is the caller-supplied description of a candidate burn; Append
// and ReplaceLast derive a manoeuvre.Manoeuvre from it using the plan's
// current tail mass.
type BurnSpec struct {
	Thrust          float64
	SpecificImpulse float64
	DeltaV          float64
	StartTime       float64
	Direction       func(t float64) quantity.Vec3
}

// AdaptiveParameters bundles the tunables every segment's adaptive flow
// uses: integrator, max_steps, length_tol, speed_tol, plus the step-size
// seed/safety factor integrator.NewStandardParameters needs.
// Stored as raw values (rather than a pre-built integrator.Parameters,
// which would bury them behind an opaque closure) so the plan's
// parameters can round-trip through package serialize.
type AdaptiveParameters struct {
	InitialStep       float64
	SafetyFactor      float64
	MaxSteps          int
	LengthTol         float64
	SpeedTol          float64
	MaxEphemerisSteps int
}

func (p AdaptiveParameters) toIntegratorParameters() integrator.Parameters {
	return integrator.NewStandardParameters(p.InitialStep, p.LengthTol, p.SpeedTol, p.SafetyFactor, p.MaxSteps)
}

// FlightPlan is a sequence of manœuvres and the mirrored coast/burn
// Discrete Trajectory segments. It does not own eph or
// root; both must outlive the FlightPlan.
type FlightPlan struct {
	eph  *ephemeris.Ephemeris
	root *dt.Trajectory

	initialTime float64
	finalTime   float64
	initialMass float64

	manoeuvres []manoeuvre.Manoeuvre
	segments   []*dt.Trajectory // coast0, burn0, coast1, ..., coastK

	adaptive AdaptiveParameters

	anomalousSegments int

	logger kitlog.Logger
	tel    *telemetry.FlightPlan
}

// New forks the initial coast off root at initialTime and immediately
// coasts it to finalTime. root must already carry a sample at
// initialTime. Panics on invalid construction parameters: precondition
// violations are fatal, not a budgeted failure.
func New(root *dt.Trajectory, eph *ephemeris.Ephemeris, initialTime, finalTime, initialMass float64, adaptive AdaptiveParameters, logger kitlog.Logger, tel *telemetry.FlightPlan) *FlightPlan {
	if finalTime < initialTime {
		panic("flightplan: New: finalTime must be >= initialTime")
	}
	if initialMass <= 0 {
		panic("flightplan: New: initialMass must be positive")
	}
	if adaptive.MaxEphemerisSteps <= 0 {
		adaptive.MaxEphemerisSteps = defaultMaxEphemerisSteps
	}
	if logger == nil {
		logger = xlog.Nop()
	}

	coast0, err := root.NewForkWithCopyAt(initialTime)
	if err != nil {
		panic("flightplan: New: root has no sample at initialTime: " + err.Error())
	}

	fp := &FlightPlan{
		eph:         eph,
		root:        root,
		initialTime: initialTime,
		finalTime:   finalTime,
		initialMass: initialMass,
		segments:    []*dt.Trajectory{coast0},
		adaptive:    adaptive,
		logger:      logger,
		tel:         tel,
	}
	fp.coastLastSegment(finalTime)
	return fp
}

// Restore rebuilds a FlightPlan's full internal state directly from
// previously exported components, bypassing New's initial-coast
// construction and every manœuvre's recompute, so the result is
// bit-identical to the FlightPlan the components were exported from. Used
// by package serialize for the non-legacy read path.
func Restore(root *dt.Trajectory, eph *ephemeris.Ephemeris, initialTime, finalTime, initialMass float64, manoeuvres []manoeuvre.Manoeuvre, segments []*dt.Trajectory, adaptive AdaptiveParameters, anomalousSegments int, logger kitlog.Logger, tel *telemetry.FlightPlan) *FlightPlan {
	if logger == nil {
		logger = xlog.Nop()
	}
	return &FlightPlan{
		eph:               eph,
		root:              root,
		initialTime:       initialTime,
		finalTime:         finalTime,
		initialMass:       initialMass,
		manoeuvres:        append([]manoeuvre.Manoeuvre(nil), manoeuvres...),
		segments:          append([]*dt.Trajectory(nil), segments...),
		adaptive:          adaptive,
		anomalousSegments: anomalousSegments,
		logger:            logger,
		tel:               tel,
	}
}

// --- Public contract ---

// NumberOfManoeuvres returns the current manœuvre count K.
func (fp *FlightPlan) NumberOfManoeuvres() int { return len(fp.manoeuvres) }

// GetManoeuvre returns the i-th manœuvre.
func (fp *FlightPlan) GetManoeuvre(i int) manoeuvre.Manoeuvre { return fp.manoeuvres[i] }

// NumberOfSegments returns the current segment count, always 2K+1.
func (fp *FlightPlan) NumberOfSegments() int { return len(fp.segments) }

// GetSegment returns the i-th segment's [begin, end] time range.
func (fp *FlightPlan) GetSegment(i int) (begin, end float64) {
	seg := fp.segments[i]
	return fp.segmentStartTime(seg), fp.segmentEndTime(seg)
}

// Segment returns the i-th segment itself, borrowed (not owned by the
// caller); it remains valid only as long as the FlightPlan does not pop or
// replace it.
func (fp *FlightPlan) Segment(i int) *dt.Trajectory { return fp.segments[i] }

// GetAllSegments returns the [begin, end] time range spanned by every
// segment of the plan.
func (fp *FlightPlan) GetAllSegments() (begin, end float64) {
	if len(fp.segments) == 0 {
		return fp.initialTime, fp.initialTime
	}
	return fp.segmentStartTime(fp.segments[0]), fp.segmentEndTime(fp.segments[len(fp.segments)-1])
}

// FinalTime returns the plan's current final time.
func (fp *FlightPlan) FinalTime() float64 { return fp.finalTime }

// InitialTime returns the plan's initial time.
func (fp *FlightPlan) InitialTime() float64 { return fp.initialTime }

// AnomalousSegments returns the current contiguous trailing
// anomalous-segment count.
func (fp *FlightPlan) AnomalousSegments() int { return fp.anomalousSegments }

// AdaptiveParameters returns the parameters every segment's adaptive flow
// currently uses.
func (fp *FlightPlan) AdaptiveParameters() AdaptiveParameters { return fp.adaptive }

// InitialMass returns the plan's initial mass, m0.
func (fp *FlightPlan) InitialMass() float64 { return fp.initialMass }

// Root returns the caller-owned root Trajectory this plan's segments were
// forked from. Package serialize needs this (via dt.ArenaOf) to export the
// whole tree, not merely this plan's borrowed leaves.
func (fp *FlightPlan) Root() *dt.Trajectory { return fp.root }

// IsValid reports whether the plan's anomaly count is within the
// documented ceiling of 2 (DESIGN.md's Open Question resolution).
func (fp *FlightPlan) IsValid() bool { return fp.anomalousSegments <= 2 }

// Append constructs a manœuvre from burn using the current tail mass. If
// it fits between the start of the last coast and final_time and is not
// singular, Append tentatively extends the last coast to the manœuvre's
// start via the Ephemeris; on success it commits the extended coast in
// place of the last coast plus two new segments (burn, next coast), so the
// plan's last three segments are coast, burn, coast; on any failure the
// plan is left
// untouched and Append returns false.
func (fp *FlightPlan) Append(burn BurnSpec) bool {
	lastCoast := fp.lastSegment()
	start := fp.segmentStartTime(lastCoast)

	m := manoeuvre.New(burn.Thrust, burn.SpecificImpulse, fp.tailMass(), burn.DeltaV, burn.StartTime, burn.Direction)
	if !m.FitsBetween(start, fp.finalTime) || m.IsSingular() {
		xlog.Warn(fp.logger, "infeasible manoeuvre", "start", burn.StartTime)
		return false
	}

	trial, ok := fp.coastIfReachesManoeuvreInitialTime(lastCoast, m)
	if !ok {
		xlog.Warn(fp.logger, "trial coast did not reach manoeuvre start", "start", m.InitialTime())
		return false
	}

	if !fp.replaceLastSegment(trial) {
		panic("flightplan: Append: trial coast does not share the fork point it must replace")
	}
	fp.manoeuvres = append(fp.manoeuvres, m)
	fp.addSegment()
	fp.burnLastSegment(m)
	fp.addSegment()
	fp.coastLastSegment(fp.finalTime)
	return true
}

// RemoveLast pops the last manœuvre, dropping its burn and trailing coast,
// then reopens the prior coast and coasts it to final_time. Returns false
// (with no state change) if there is no manœuvre to remove.
func (fp *FlightPlan) RemoveLast() bool {
	if len(fp.manoeuvres) == 0 {
		return false
	}
	fp.popLastSegment() // trailing coast
	fp.popLastSegment() // burn
	fp.manoeuvres = fp.manoeuvres[:len(fp.manoeuvres)-1]
	fp.resetLastSegment()
	return fp.coastLastSegment(fp.finalTime)
}

// ReplaceLast is equivalent to RemoveLast followed by Append(burn), but
// atomic on failure: the candidate manœuvre is validated and the trial
// coast computed before anything is mutated, so an infeasible or
// unreachable burn leaves the plan exactly as it was.
func (fp *FlightPlan) ReplaceLast(burn BurnSpec) bool {
	if len(fp.manoeuvres) == 0 {
		return false
	}
	priorCoast := fp.segments[len(fp.segments)-3]
	start := fp.segmentStartTime(priorCoast)

	m := manoeuvre.New(burn.Thrust, burn.SpecificImpulse, fp.tailMassBefore(len(fp.manoeuvres)-1), burn.DeltaV, burn.StartTime, burn.Direction)
	if !m.FitsBetween(start, fp.finalTime) || m.IsSingular() {
		xlog.Warn(fp.logger, "infeasible replacement manoeuvre", "start", burn.StartTime)
		return false
	}

	trial, ok := fp.coastIfReachesManoeuvreInitialTime(priorCoast, m)
	if !ok {
		xlog.Warn(fp.logger, "trial coast did not reach replacement manoeuvre start", "start", m.InitialTime())
		return false
	}

	// Validated: safe to commit now.
	fp.popLastSegment() // old trailing coast
	fp.popLastSegment() // old burn
	fp.manoeuvres = fp.manoeuvres[:len(fp.manoeuvres)-1]
	if !fp.replaceLastSegment(trial) {
		panic("flightplan: ReplaceLast: trial coast does not share the fork point it must replace")
	}
	fp.manoeuvres = append(fp.manoeuvres, m)
	fp.addSegment()
	fp.burnLastSegment(m)
	fp.addSegment()
	fp.coastLastSegment(fp.finalTime)
	return true
}

// SetFinalTime returns false, without any state change, if t is earlier
// than the start of the last coast; otherwise it truncates or extends the
// last coast to t.
func (fp *FlightPlan) SetFinalTime(t float64) bool {
	lastCoast := fp.lastSegment()
	start := fp.segmentStartTime(lastCoast)
	if t < start {
		return false
	}
	currentEnd := fp.segmentEndTime(lastCoast)
	fp.finalTime = t
	if t <= currentEnd {
		lastCoast.ForgetAfter(t)
		return true
	}
	return fp.coastLastSegment(t)
}

// SetAdaptiveStepParameters retries a full segment recomputation with p;
// on failure (the recomputation still leaves more than 2 anomalous
// trailing segments) it restores the prior parameters and recomputes
// again, so the plan's segments always match its current parameters.
func (fp *FlightPlan) SetAdaptiveStepParameters(p AdaptiveParameters) bool {
	if p.MaxEphemerisSteps <= 0 {
		p.MaxEphemerisSteps = defaultMaxEphemerisSteps
	}
	prior := fp.adaptive
	fp.adaptive = p
	if fp.RecomputeSegments() {
		return true
	}
	xlog.Warn(fp.logger, "adaptive parameters left plan anomalous, rolling back")
	fp.adaptive = prior
	fp.RecomputeSegments()
	return false
}

// RecomputeSegments pops every segment but the earliest coast, rewinds it
// to its fork point, then replays every manœuvre (coast to its start, fork
// a burn, burn, fork the next coast), and finally coasts to final_time.
// Returns whether the resulting anomaly count is within the documented
// ceiling of 2.
func (fp *FlightPlan) RecomputeSegments() bool {
	for len(fp.segments) > 1 {
		fp.popLastSegment()
	}
	fp.resetLastSegment()
	fp.anomalousSegments = 0

	for _, m := range fp.manoeuvres {
		fp.coastLastSegment(m.InitialTime())
		fp.addSegment()
		fp.burnLastSegment(m)
		fp.addSegment()
	}
	fp.coastLastSegment(fp.finalTime)

	ok := fp.anomalousSegments <= 2
	if ok {
		fp.tel.ObserveRecomputeOutcome("ok")
	} else {
		fp.tel.ObserveRecomputeOutcome("anomalous")
	}
	return ok
}
