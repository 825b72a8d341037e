// Package econfig loads the Ephemeris and Flight Plan configuration
// blocks via Viper: Load reads them from a *viper.Viper the caller
// supplies and returns them. The package keeps no configuration of its
// own.
package econfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EphemerisConfig is the Ephemeris configuration block.
type EphemerisConfig struct {
	Step                time.Duration // fixed-step Δ
	FittingTolerance    float64       // ε_fit
	PlanetaryIntegrator string        // identifier, informational only here
}

// AdaptiveConfig is the Flight Plan `adaptive` sub-block: tolerance and
// step-count knobs plus the seed step/safety factor
// integrator.NewStandardParameters needs, so all six fields get
// config-file homes here rather than being hardcoded.
type AdaptiveConfig struct {
	Integrator   string
	MaxSteps     int
	LengthTol    float64
	SpeedTol     float64
	InitialStep  float64
	SafetyFactor float64
}

// FlightPlanConfig is the Flight Plan configuration block.
type FlightPlanConfig struct {
	InitialTime time.Time
	FinalTime   time.Time
	InitialMass float64
	Adaptive    AdaptiveConfig
}

// Load reads Ephemeris/FlightPlan configuration from the given Viper
// instance (already told where to look — file, env, flags — by the
// caller), applying sensible defaults when no file is present.
func Load(v *viper.Viper) (EphemerisConfig, FlightPlanConfig, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetDefault("ephemeris.step", "10s")
	v.SetDefault("ephemeris.fitting_tolerance", 1e-6)
	v.SetDefault("ephemeris.planetary_integrator", "fixed")
	v.SetDefault("flightplan.adaptive.integrator", "adaptive")
	v.SetDefault("flightplan.adaptive.max_steps", 100000)
	v.SetDefault("flightplan.adaptive.length_tol", 1e-6)
	v.SetDefault("flightplan.adaptive.speed_tol", 1e-9)
	v.SetDefault("flightplan.adaptive.initial_step", 60.0)
	v.SetDefault("flightplan.adaptive.safety_factor", 0.9)

	step := v.GetDuration("ephemeris.step")
	if step <= 0 {
		return EphemerisConfig{}, FlightPlanConfig{}, fmt.Errorf("econfig: ephemeris.step must be positive")
	}
	eph := EphemerisConfig{
		Step:                step,
		FittingTolerance:    v.GetFloat64("ephemeris.fitting_tolerance"),
		PlanetaryIntegrator: v.GetString("ephemeris.planetary_integrator"),
	}

	fp := FlightPlanConfig{
		InitialMass: v.GetFloat64("flightplan.initial_mass"),
		Adaptive: AdaptiveConfig{
			Integrator:   v.GetString("flightplan.adaptive.integrator"),
			MaxSteps:     v.GetInt("flightplan.adaptive.max_steps"),
			LengthTol:    v.GetFloat64("flightplan.adaptive.length_tol"),
			SpeedTol:     v.GetFloat64("flightplan.adaptive.speed_tol"),
			InitialStep:  v.GetFloat64("flightplan.adaptive.initial_step"),
			SafetyFactor: v.GetFloat64("flightplan.adaptive.safety_factor"),
		},
	}
	return eph, fp, nil
}
