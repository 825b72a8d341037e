package flightplan

import (
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/manoeuvre"
	"github.com/ephemcore/ephemeris-core/xlog"
)

// Internal segment algebra: each helper below operates on the tail of
// fp.segments. Their contracts are testable in isolation even though
// only the public methods above are exported.

func (fp *FlightPlan) lastSegment() *dt.Trajectory {
	return fp.segments[len(fp.segments)-1]
}

func (fp *FlightPlan) segmentStartTime(seg *dt.Trajectory) float64 {
	if ft, ok := seg.ForkTime(); ok {
		return ft
	}
	if s, ok := seg.Begin(); ok {
		return s.T
	}
	return fp.initialTime
}

func (fp *FlightPlan) segmentEndTime(seg *dt.Trajectory) float64 {
	samples := seg.Samples()
	if len(samples) == 0 {
		return fp.segmentStartTime(seg)
	}
	return samples[len(samples)-1].T
}

func (fp *FlightPlan) tailMassBefore(i int) float64 {
	if i <= 0 {
		return fp.initialMass
	}
	return fp.manoeuvres[i-1].FinalMass()
}

func (fp *FlightPlan) tailMass() float64 {
	return fp.tailMassBefore(len(fp.manoeuvres))
}

// addSegment forks a new DT at the tail of the current last segment,
// seeded with a copy of that tail's last sample so the fork has an
// initial state for FlowWithAdaptiveStep to integrate from.
func (fp *FlightPlan) addSegment() *dt.Trajectory {
	tail := fp.lastSegment()
	t := fp.segmentEndTime(tail)
	fork, err := tail.NewForkWithCopyAt(t)
	if err != nil {
		panic("flightplan: addSegment: " + err.Error())
	}
	fp.segments = append(fp.segments, fork)
	return fork
}

// resetLastSegment truncates the last segment back to its fork point, used
// to restart a coast before recomputing it.
func (fp *FlightPlan) resetLastSegment() {
	seg := fp.lastSegment()
	if ft, ok := seg.ForkTime(); ok {
		seg.ForgetAfter(ft)
	}
}

// popLastSegment destroys the last segment via its parent. If the anomaly
// counter was positive, it is decremented, since the failing segment it
// counted is no longer part of the plan.
func (fp *FlightPlan) popLastSegment() {
	seg := fp.lastSegment()
	parent, ok := seg.Parent()
	if !ok {
		panic("flightplan: popLastSegment: cannot pop the root segment")
	}
	if err := parent.DeleteFork(seg); err != nil {
		panic("flightplan: popLastSegment: " + err.Error())
	}
	fp.segments = fp.segments[:len(fp.segments)-1]
	if fp.anomalousSegments > 0 {
		fp.anomalousSegments--
	}
	fp.tel.SetAnomalousSegments(fp.anomalousSegments)
}

// replaceLastSegment requires s to share its parent and fork time with the
// current last segment; on match it pops the current last segment and
// pushes s, returning true. A mismatch leaves the plan untouched and
// returns false.
func (fp *FlightPlan) replaceLastSegment(s *dt.Trajectory) bool {
	last := fp.lastSegment()
	lastParent, lastHasParent := last.Parent()
	sParent, sHasParent := s.Parent()
	lastForkTime, _ := last.ForkTime()
	sForkTime, _ := s.ForkTime()
	if !lastHasParent || !sHasParent || !lastParent.SameNode(sParent) || lastForkTime != sForkTime {
		return false
	}
	fp.popLastSegment()
	fp.segments = append(fp.segments, s)
	return true
}

// coastLastSegment calls the Ephemeris's adaptive flow with no intrinsic
// acceleration up to tEnd, marking the plan anomalous on failure.
func (fp *FlightPlan) coastLastSegment(tEnd float64) bool {
	seg := fp.lastSegment()
	ok := fp.eph.FlowWithAdaptiveStep(seg, nil, tEnd, fp.adaptive.toIntegratorParameters(), fp.adaptive.MaxEphemerisSteps)
	if !ok {
		fp.markAnomalous("coast did not reach target time", "target", tEnd)
	}
	return ok
}

// burnLastSegment calls the Ephemeris's adaptive flow with m's intrinsic
// acceleration from the current tail to m's final time, marking the plan
// anomalous on failure.
func (fp *FlightPlan) burnLastSegment(m manoeuvre.Manoeuvre) bool {
	seg := fp.lastSegment()
	ok := fp.eph.FlowWithAdaptiveStep(seg, m.IntrinsicAcceleration, m.FinalTime(), fp.adaptive.toIntegratorParameters(), fp.adaptive.MaxEphemerisSteps)
	if !ok {
		fp.markAnomalous("burn did not reach final time", "manoeuvre_final_time", m.FinalTime())
	}
	return ok
}

// coastIfReachesManoeuvreInitialTime forks a trial coast from coast's
// parent at coast's own fork time, and coasts it to m's initial time. On
// success it returns the trial fork; on failure it deletes the trial and
// returns (nil, false), leaving the rest of the plan untouched.
func (fp *FlightPlan) coastIfReachesManoeuvreInitialTime(coast *dt.Trajectory, m manoeuvre.Manoeuvre) (*dt.Trajectory, bool) {
	parent, ok := coast.Parent()
	if !ok {
		panic("flightplan: coastIfReachesManoeuvreInitialTime: segment has no parent")
	}
	forkTime, _ := coast.ForkTime()
	trial, err := parent.NewForkWithCopyAt(forkTime)
	if err != nil {
		panic("flightplan: coastIfReachesManoeuvreInitialTime: " + err.Error())
	}
	if fp.eph.FlowWithAdaptiveStep(trial, nil, m.InitialTime(), fp.adaptive.toIntegratorParameters(), fp.adaptive.MaxEphemerisSteps) {
		return trial, true
	}
	_ = parent.DeleteFork(trial)
	return nil, false
}

// markAnomalous bumps the contiguous trailing anomaly counter, logs a
// warning, and updates telemetry.
func (fp *FlightPlan) markAnomalous(reason string, keyvals ...interface{}) {
	fp.anomalousSegments++
	xlog.Warn(fp.logger, reason, keyvals...)
	fp.tel.SetAnomalousSegments(fp.anomalousSegments)
}
