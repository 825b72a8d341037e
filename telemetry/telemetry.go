// Package telemetry wires the Ephemeris's long-running integration loops
// to Prometheus, following the prometheus/client_golang wiring found in
// Cizor-spacetime-constellation-sim (the only example repo in the
// retrieval pack with real Prometheus instrumentation) — adapted down
// from a gRPC-service metrics set to the three signals the Ephemeris
// actually needs: fixed-step iteration count, adaptive-flow outcomes, and
// current t_max. All methods are nil-safe so tests need not stand up a
// registry.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Ephemeris holds the Prometheus collectors for one Ephemeris instance.
// The zero value is valid and records nothing (Register was never
// called), matching the "optional, nil-safe" requirement.
type Ephemeris struct {
	fixedSteps      prometheus.Counter
	adaptiveOutcome *prometheus.CounterVec
	tMax            prometheus.Gauge
}

// NewEphemeris registers and returns a new Ephemeris telemetry set on reg.
// If reg is nil, the returned value records nothing.
func NewEphemeris(reg prometheus.Registerer, name string) *Ephemeris {
	if reg == nil {
		return &Ephemeris{}
	}
	t := &Ephemeris{
		fixedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ephemcore",
			Subsystem: "ephemeris",
			Name:      "fixed_steps_total",
			Help:      "Number of fixed-step iterations performed.",
			ConstLabels: prometheus.Labels{
				"ephemeris": name,
			},
		}),
		adaptiveOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ephemcore",
			Subsystem: "ephemeris",
			Name:      "adaptive_flow_outcomes_total",
			Help:      "FlowWithAdaptiveStep calls by outcome.",
			ConstLabels: prometheus.Labels{
				"ephemeris": name,
			},
		}, []string{"outcome"}),
		tMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ephemcore",
			Subsystem: "ephemeris",
			Name:      "t_max_seconds",
			Help:      "Latest time at which every body's CT is finalised.",
			ConstLabels: prometheus.Labels{
				"ephemeris": name,
			},
		}),
	}
	reg.MustRegister(t.fixedSteps, t.adaptiveOutcome, t.tMax)
	return t
}

// IncFixedSteps records n more fixed-step iterations.
func (t *Ephemeris) IncFixedSteps(n int) {
	if t == nil || t.fixedSteps == nil {
		return
	}
	t.fixedSteps.Add(float64(n))
}

// ObserveAdaptiveOutcome records one FlowWithAdaptiveStep call's outcome
// ("done", "did_not_reach_target", "singular").
func (t *Ephemeris) ObserveAdaptiveOutcome(outcome string) {
	if t == nil || t.adaptiveOutcome == nil {
		return
	}
	t.adaptiveOutcome.WithLabelValues(outcome).Inc()
}

// SetTMax records the Ephemeris's current t_max.
func (t *Ephemeris) SetTMax(tMax float64) {
	if t == nil || t.tMax == nil {
		return
	}
	t.tMax.Set(tMax)
}

// FlightPlan holds the Prometheus collectors for one Flight Plan instance.
// The zero value is valid and records nothing, same nil-safety contract as
// Ephemeris above.
type FlightPlan struct {
	anomalousSegments prometheus.Gauge
	recomputeOutcome  *prometheus.CounterVec
}

// NewFlightPlan registers and returns a new FlightPlan telemetry set on reg.
// If reg is nil, the returned value records nothing.
func NewFlightPlan(reg prometheus.Registerer, name string) *FlightPlan {
	if reg == nil {
		return &FlightPlan{}
	}
	t := &FlightPlan{
		anomalousSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ephemcore",
			Subsystem: "flightplan",
			Name:      "anomalous_segments",
			Help:      "Current anomalous trailing segment count.",
			ConstLabels: prometheus.Labels{
				"flightplan": name,
			},
		}),
		recomputeOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ephemcore",
			Subsystem: "flightplan",
			Name:      "recompute_outcomes_total",
			Help:      "RecomputeSegments calls by outcome.",
			ConstLabels: prometheus.Labels{
				"flightplan": name,
			},
		}, []string{"outcome"}),
	}
	reg.MustRegister(t.anomalousSegments, t.recomputeOutcome)
	return t
}

// SetAnomalousSegments records the current anomalous-segment count.
func (t *FlightPlan) SetAnomalousSegments(n int) {
	if t == nil || t.anomalousSegments == nil {
		return
	}
	t.anomalousSegments.Set(float64(n))
}

// ObserveRecomputeOutcome records one RecomputeSegments call's outcome
// ("ok" or "anomalous").
func (t *FlightPlan) ObserveRecomputeOutcome(outcome string) {
	if t == nil || t.recomputeOutcome == nil {
		return
	}
	t.recomputeOutcome.WithLabelValues(outcome).Inc()
}
