package serialize

import (
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/ephemeris"
	"github.com/ephemcore/ephemeris-core/flightplan"
	"github.com/ephemcore/ephemeris-core/manoeuvre"
	"github.com/ephemcore/ephemeris-core/telemetry"
	kitlog "github.com/go-kit/kit/log"
)

// AdaptiveRecord is the structured-record form of
// flightplan.AdaptiveParameters.
type AdaptiveRecord struct {
	InitialStep       float64 `json:"initial_step"`
	SafetyFactor      float64 `json:"safety_factor"`
	MaxSteps          int     `json:"max_steps"`
	LengthTol         float64 `json:"length_tol"`
	SpeedTol          float64 `json:"speed_tol"`
	MaxEphemerisSteps int     `json:"max_ephemeris_steps"`
}

func adaptiveToRecord(p flightplan.AdaptiveParameters) AdaptiveRecord {
	return AdaptiveRecord{
		InitialStep:       p.InitialStep,
		SafetyFactor:      p.SafetyFactor,
		MaxSteps:          p.MaxSteps,
		LengthTol:         p.LengthTol,
		SpeedTol:          p.SpeedTol,
		MaxEphemerisSteps: p.MaxEphemerisSteps,
	}
}

func adaptiveFromRecord(r AdaptiveRecord) flightplan.AdaptiveParameters {
	return flightplan.AdaptiveParameters{
		InitialStep:       r.InitialStep,
		SafetyFactor:      r.SafetyFactor,
		MaxSteps:          r.MaxSteps,
		LengthTol:         r.LengthTol,
		SpeedTol:          r.SpeedTol,
		MaxEphemerisSteps: r.MaxEphemerisSteps,
	}
}

// FlightPlanRecord is the structured-record form of a Flight Plan: its
// manoeuvres, the whole Discrete Trajectory tree backing its segments
// (not just the segments' own unified timelines), and the node indices
// that pick the root and each segment back out of that tree on
// read-back.
type FlightPlanRecord struct {
	InitialTime        float64           `json:"initial_time"`
	FinalTime          float64           `json:"final_time"`
	InitialMass        float64           `json:"initial_mass"`
	Manoeuvres         []ManoeuvreRecord `json:"manoeuvres"`
	Tree               TreeRecord        `json:"tree"`
	RootNodeIndex      int               `json:"root_node_index"`
	SegmentNodeIndices []int             `json:"segment_node_indices"`
	AnomalousSegments  int               `json:"anomalous_segments,omitempty"`
	Adaptive           AdaptiveRecord    `json:"adaptive"`
}

// FlightPlanToRecord builds the structured record for fp.
func FlightPlanToRecord(fp *flightplan.FlightPlan) FlightPlanRecord {
	arena := dt.ArenaOf(fp.Root())

	manoeuvres := make([]ManoeuvreRecord, fp.NumberOfManoeuvres())
	for i := 0; i < fp.NumberOfManoeuvres(); i++ {
		manoeuvres[i] = ManoeuvreToRecord(fp.GetManoeuvre(i))
	}

	segmentIndices := make([]int, fp.NumberOfSegments())
	for i := 0; i < fp.NumberOfSegments(); i++ {
		segmentIndices[i] = fp.Segment(i).NodeIndex()
	}

	return FlightPlanRecord{
		InitialTime:        fp.InitialTime(),
		FinalTime:          fp.FinalTime(),
		InitialMass:        fp.InitialMass(),
		Manoeuvres:         manoeuvres,
		Tree:               treeToRecord(arena),
		RootNodeIndex:      fp.Root().NodeIndex(),
		SegmentNodeIndices: segmentIndices,
		AnomalousSegments:  fp.AnomalousSegments(),
		Adaptive:           adaptiveToRecord(fp.AdaptiveParameters()),
	}
}

// FlightPlanFromRecord rebuilds a FlightPlan from r via flightplan.Restore,
// reconstructing the Discrete Trajectory tree first and resolving the
// root/segment references back out of it by node index.
func FlightPlanFromRecord(r FlightPlanRecord, eph *ephemeris.Ephemeris, logger kitlog.Logger, tel *telemetry.FlightPlan) *flightplan.FlightPlan {
	arena, _ := treeFromRecord(r.Tree)
	root := dt.AtIndex(arena, r.RootNodeIndex)

	manoeuvres := make([]manoeuvre.Manoeuvre, len(r.Manoeuvres))
	for i, mr := range r.Manoeuvres {
		manoeuvres[i] = ManoeuvreFromRecord(mr)
	}

	segments := make([]*dt.Trajectory, len(r.SegmentNodeIndices))
	for i, idx := range r.SegmentNodeIndices {
		segments[i] = dt.AtIndex(arena, idx)
	}

	return flightplan.Restore(root, eph, r.InitialTime, r.FinalTime, r.InitialMass, manoeuvres, segments, adaptiveFromRecord(r.Adaptive), r.AnomalousSegments, logger, tel)
}
