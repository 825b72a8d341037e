package serialize

import (
	"github.com/ephemcore/ephemeris-core/body"
	"github.com/ephemcore/ephemeris-core/ct"
	"github.com/ephemcore/ephemeris-core/ephemeris"
	"github.com/ephemcore/ephemeris-core/telemetry"
	kitlog "github.com/go-kit/kit/log"
)

// EphemerisRecord is the structured-record form of an Ephemeris: its
// bodies (in construction/oblate-first order), every body's Continuous
// Trajectory, the last state, and the checkpoint list.
type EphemerisRecord struct {
	Step                float64            `json:"step"`
	FittingTolerance    float64            `json:"fitting_tolerance"`
	NominalStep         float64            `json:"nominal_step"`
	PlanetaryIntegrator string             `json:"planetary_integrator,omitempty"`
	Bodies              []BodyRecord       `json:"bodies"`
	Trajectories        []CTRecord         `json:"trajectories"`
	LastTime            float64            `json:"last_time"`
	LastPositions       []VecRecord        `json:"last_positions"`
	LastVelocities      []VecRecord        `json:"last_velocities"`
	Checkpoints         []CheckpointRecord `json:"checkpoints,omitempty"`
}

// EphemerisToRecord builds the structured record for e.
func EphemerisToRecord(e *ephemeris.Ephemeris) EphemerisRecord {
	cfg := e.Config()
	bodies := make([]BodyRecord, e.NumberOfBodies())
	trajectories := make([]CTRecord, e.NumberOfBodies())
	for i := 0; i < e.NumberOfBodies(); i++ {
		bodies[i] = bodyToRecord(e.Body(i))
		trajectories[i] = ctToRecord(cfg.FittingTolerance, cfg.NominalStep, e.Trajectory(i))
	}

	checkpoints := e.Checkpoints()
	cpRecords := make([]CheckpointRecord, len(checkpoints))
	for i, cp := range checkpoints {
		cpRecords[i] = CheckpointRecord{
			Time:       cp.Time,
			Positions:  vecsToRecords(cp.Positions),
			Velocities: vecsToRecords(cp.Velocities),
		}
	}

	return EphemerisRecord{
		Step:                cfg.Step,
		FittingTolerance:    cfg.FittingTolerance,
		NominalStep:         cfg.NominalStep,
		PlanetaryIntegrator: cfg.PlanetaryIntegrator,
		Bodies:              bodies,
		Trajectories:        trajectories,
		LastTime:            e.LastStateTime(),
		LastPositions:       vecsToRecords(e.LastPositions()),
		LastVelocities:      vecsToRecords(e.LastVelocities()),
		Checkpoints:         cpRecords,
	}
}

// EphemerisFromRecord rebuilds an Ephemeris from r via ephemeris.Restore,
// bypassing fresh construction/integration so the result is bit-identical
// to the Ephemeris r was exported from.
func EphemerisFromRecord(r EphemerisRecord, logger kitlog.Logger, tel *telemetry.Ephemeris) *ephemeris.Ephemeris {
	bodies := make([]body.Body, len(r.Bodies))
	cts := make([]*ct.Trajectory, len(r.Trajectories))
	for i, br := range r.Bodies {
		bodies[i] = bodyFromRecord(br)
	}
	for i, cr := range r.Trajectories {
		cts[i] = ctFromRecord(cr)
	}

	checkpoints := make([]ephemeris.Checkpoint, len(r.Checkpoints))
	for i, cp := range r.Checkpoints {
		checkpoints[i] = ephemeris.Checkpoint{
			Time:       cp.Time,
			Positions:  vecsFromRecords(cp.Positions),
			Velocities: vecsFromRecords(cp.Velocities),
		}
	}

	cfg := ephemeris.Config{
		Step:                r.Step,
		FittingTolerance:    r.FittingTolerance,
		NominalStep:         r.NominalStep,
		PlanetaryIntegrator: r.PlanetaryIntegrator,
	}

	return ephemeris.Restore(bodies, cts, r.LastTime, vecsFromRecords(r.LastPositions), vecsFromRecords(r.LastVelocities), checkpoints, cfg, logger, tel)
}
