package serialize

import (
	"math"

	"github.com/ephemcore/ephemeris-core/body"
	"github.com/ephemcore/ephemeris-core/ct"
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/ephemeris"
	"github.com/ephemcore/ephemeris-core/flightplan"
	"github.com/ephemcore/ephemeris-core/manoeuvre"
	"github.com/ephemcore/ephemeris-core/quantity"
	"github.com/ephemcore/ephemeris-core/telemetry"
	kitlog "github.com/go-kit/kit/log"
)

// alignmentTolerance bounds the floating-point slack allowed when deciding
// whether a legacy sample time lies on the k*Step grid.
const alignmentTolerance = 1e-6

func alignedToStep(t, t0, step float64) bool {
	if step <= 0 {
		return t == t0
	}
	ratio := (t - t0) / step
	return math.Abs(ratio-math.Round(ratio)) < alignmentTolerance
}

// PreBourbakiCelestialRecord is one body's entry in a Pre-Bourbaki
// Ephemeris record: the body itself plus its discrete history. History[0] must be the sample at InitialTime.
type PreBourbakiCelestialRecord struct {
	Body    BodyRecord     `json:"body"`
	History []SampleRecord `json:"history"`
}

// PreBourbakiEphemerisRecord is the legacy per-celestial-history format:
// a set of per-celestial records each containing a discrete history plus
// prolongation.
type PreBourbakiEphemerisRecord struct {
	Step                float64                      `json:"step"`
	FittingTolerance    float64                      `json:"fitting_tolerance"`
	NominalStep         float64                      `json:"nominal_step,omitempty"`
	PlanetaryIntegrator string                       `json:"planetary_integrator,omitempty"`
	InitialTime         float64                      `json:"initial_time"`
	FinalTime           float64                      `json:"final_time"`
	Celestials          []PreBourbakiCelestialRecord `json:"celestials"`
}

// ReadPreBourbakiEphemeris reconstructs an Ephemeris from the legacy
// per-celestial-history format via a three-step recipe: (a)
// insert bodies and initial DoFs, (b) replay every sample whose time
// equals initial_time + k*Step directly into the new CTs (bypassing the
// fixed integrator entirely for history already on record), (c) call
// Prolong(final_time) to integrate the remainder.
//
// Assumes every celestial's history shares the same aligned cadence (the
// legacy format was itself produced by one shared fixed-step Ephemeris,
// so this holds for any record this module itself would have written);
// last_state is taken from the latest aligned sample seen across all
// celestials.
func ReadPreBourbakiEphemeris(r PreBourbakiEphemerisRecord, logger kitlog.Logger, tel *telemetry.Ephemeris) *ephemeris.Ephemeris {
	rawBodies := make([]body.Body, len(r.Celestials))
	for i, c := range r.Celestials {
		rawBodies[i] = bodyFromRecord(c.Body)
	}
	partitioned, idx, _ := body.Partition(rawBodies)
	n := len(partitioned)

	nominal := r.NominalStep
	if nominal <= 0 {
		nominal = 50 * r.Step
	}

	cts := make([]*ct.Trajectory, n)
	positions := make([]quantity.Vec3, n)
	velocities := make([]quantity.Vec3, n)
	lastTime := r.InitialTime

	for i, c := range r.Celestials {
		j := idx[i]
		cts[j] = ct.New(r.FittingTolerance, nominal)
		for _, s := range c.History {
			if !alignedToStep(s.T, r.InitialTime, r.Step) {
				continue
			}
			cts[j].Append(s.T, vecFromRecord(s.Position))
			positions[j] = vecFromRecord(s.Position)
			velocities[j] = vecFromRecord(s.Velocity)
			if s.T > lastTime {
				lastTime = s.T
			}
		}
	}

	cfg := ephemeris.Config{
		Step:                r.Step,
		FittingTolerance:    r.FittingTolerance,
		NominalStep:         nominal,
		PlanetaryIntegrator: r.PlanetaryIntegrator,
	}
	eph := ephemeris.Restore(partitioned, cts, lastTime, positions, velocities, nil, cfg, logger, tel)
	eph.Prolong(r.FinalTime)
	return eph
}

// PreBuniakovskyManoeuvreRecord is one burn's entry in a Pre-Буняковский
// Flight Plan record, recovered from that format's explicit burn segment.
type PreBuniakovskyManoeuvreRecord struct {
	Thrust          float64   `json:"thrust"`
	SpecificImpulse float64   `json:"specific_impulse"`
	DeltaV          float64   `json:"delta_v"`
	StartTime       float64   `json:"start_time"`
	Direction       VecRecord `json:"direction"`
}

// PreBuniakovskyFlightPlanRecord is the legacy explicit-segment-record
// format this package supports reading.
type PreBuniakovskyFlightPlanRecord struct {
	InitialTime     float64                         `json:"initial_time"`
	FinalTime       float64                         `json:"final_time"`
	InitialMass     float64                         `json:"initial_mass"`
	InitialPosition VecRecord                       `json:"initial_position"`
	InitialVelocity VecRecord                       `json:"initial_velocity"`
	Manoeuvres      []PreBuniakovskyManoeuvreRecord `json:"manoeuvres"`
	Adaptive        AdaptiveRecord                  `json:"adaptive"`
}

// ReadPreBuniakovskyFlightPlan reconstructs a FlightPlan from the legacy
// explicit-segment-record format by populating segments directly (here:
// the initial coast plus the manœuvre list recovered from
// the legacy burn segments), then call RecomputeSegments, discarding the
// plan if more than 2 anomalous segments remain. Returns (nil, false) on
// discard.
func ReadPreBuniakovskyFlightPlan(r PreBuniakovskyFlightPlanRecord, eph *ephemeris.Ephemeris, logger kitlog.Logger, tel *telemetry.FlightPlan) (*flightplan.FlightPlan, bool) {
	_, root := dt.NewArena()
	_ = root.Append(dt.Sample{
		T:        r.InitialTime,
		Position: vecFromRecord(r.InitialPosition),
		Velocity: vecFromRecord(r.InitialVelocity),
	})
	coast0, err := root.NewForkWithCopyAt(r.InitialTime)
	if err != nil {
		panic("serialize: ReadPreBuniakovskyFlightPlan: " + err.Error())
	}

	mass := r.InitialMass
	manoeuvres := make([]manoeuvre.Manoeuvre, len(r.Manoeuvres))
	for i, mr := range r.Manoeuvres {
		dir := vecFromRecord(mr.Direction)
		m := manoeuvre.New(mr.Thrust, mr.SpecificImpulse, mass, mr.DeltaV, mr.StartTime, func(t float64) quantity.Vec3 { return dir })
		manoeuvres[i] = m
		mass = m.FinalMass()
	}

	fp := flightplan.Restore(root, eph, r.InitialTime, r.FinalTime, r.InitialMass, manoeuvres, []*dt.Trajectory{coast0}, adaptiveFromRecord(r.Adaptive), 0, logger, tel)
	fp.RecomputeSegments()
	if fp.AnomalousSegments() > 2 {
		return nil, false
	}
	return fp, true
}
