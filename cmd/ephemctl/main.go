// ephemctl is a small demo driver: it builds a two-body Ephemeris
// (Sun, Earth), prolongs it, then flows a massless probe against it with
// FlowWithAdaptiveStep and prints the resulting trajectory.
//
// It follows a flag-parsed, single-main, construct-then-run driver style,
// reading its scenario configuration through econfig/viper.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/ephemcore/ephemeris-core/body"
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/econfig"
	"github.com/ephemcore/ephemeris-core/ephemeris"
	"github.com/ephemcore/ephemeris-core/integrator"
	"github.com/ephemcore/ephemeris-core/quantity"
	"github.com/ephemcore/ephemeris-core/telemetry"
	"github.com/ephemcore/ephemeris-core/xlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

const defaultScenario = "~~unset~~"

var (
	scenario    string
	finalTime   float64
	metricsAddr string
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "optional TOML file overriding ephemeris/flightplan defaults")
	flag.Float64Var(&finalTime, "final-time", 7*24*3600, "seconds to prolong the Ephemeris and flow the probe to")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address instead of exiting immediately")
}

func main() {
	flag.Parse()
	logger := xlog.New("ephemctl")

	v := viper.New()
	if scenario != defaultScenario {
		name := strings.TrimSuffix(scenario, ".toml")
		v.AddConfigPath(".")
		v.SetConfigName(name)
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("./%s.toml: %s", name, err)
		}
	}

	ephCfgIn, fpCfgIn, err := econfig.Load(v)
	if err != nil {
		log.Fatalf("econfig: %s", err)
	}

	var reg *prometheus.Registry
	if metricsAddr != "" {
		reg = prometheus.NewRegistry()
	}
	ephTel := telemetry.NewEphemeris(registerer(reg), "ephemctl")

	bodies := []body.Body{body.Sun, body.Earth}
	positions := []quantity.Vec3{{}, {X: 149597870.7}} // km, Sun at origin, Earth at 1 AU
	velocities := []quantity.Vec3{{}, {Y: 29.7846}}    // km/s, circular-ish Earth orbital speed

	cfg := ephemeris.Config{
		Step:                ephCfgIn.Step.Seconds(),
		FittingTolerance:    ephCfgIn.FittingTolerance,
		PlanetaryIntegrator: ephCfgIn.PlanetaryIntegrator,
	}
	eph := ephemeris.New(bodies, positions, velocities, 0, cfg, logger, ephTel)
	eph.Prolong(finalTime)
	xlog.Info(logger, "prolonged ephemeris", "t_max", eph.TMax())

	_, probe := dt.NewArena()
	if err := probe.Append(dt.Sample{
		T:        0,
		Position: quantity.Vec3{X: 42164, Y: 0, Z: 0},
		Velocity: quantity.Vec3{X: 0, Y: 3.0747, Z: 0},
	}); err != nil {
		log.Fatalf("probe: %s", err)
	}

	params := integrator.NewStandardParameters(
		fpCfgIn.Adaptive.InitialStep,
		fpCfgIn.Adaptive.LengthTol,
		fpCfgIn.Adaptive.SpeedTol,
		fpCfgIn.Adaptive.SafetyFactor,
		fpCfgIn.Adaptive.MaxSteps,
	)
	ok := eph.FlowWithAdaptiveStep(probe, nil, finalTime, params, 100000)
	xlog.Info(logger, "flowed probe", "reached_target", ok)

	last, _ := probe.Last()
	fmt.Printf("t=%.1f position=%v velocity=%v reached=%t\n", last.T, last.Position, last.Velocity, ok)

	if metricsAddr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Printf("serving metrics on %s", metricsAddr)
		log.Fatal(http.ListenAndServe(metricsAddr, nil))
	}
}

func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}
