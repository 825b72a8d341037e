package serialize

import (
	"reflect"
	"testing"

	"github.com/ephemcore/ephemeris-core/body"
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/ephemeris"
	"github.com/ephemcore/ephemeris-core/flightplan"
	"github.com/ephemcore/ephemeris-core/manoeuvre"
	"github.com/ephemcore/ephemeris-core/quantity"
)

func sqrtApprox(x float64) float64 {
	z := x
	for i := 0; i < 50; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func newTwoBodyEphemeris(tFinal float64) *ephemeris.Ephemeris {
	bodies := []body.Body{body.Sun, body.Earth}
	const au = 149597870.7
	mu := float64(body.Sun.Mu) + float64(body.Earth.Mu)
	circV := sqrtApprox(mu / au)
	positions := []quantity.Vec3{{}, {X: au}}
	velocities := []quantity.Vec3{{}, {Y: circV}}
	cfg := ephemeris.Config{Step: 10, FittingTolerance: 1e-6}
	eph := ephemeris.New(bodies, positions, velocities, 0, cfg, nil, nil)
	eph.Prolong(tFinal)
	return eph
}

func TestEphemerisRecordRoundTripPreservesLastState(t *testing.T) {
	eph := newTwoBodyEphemeris(50000)
	record := EphemerisToRecord(eph)
	restored := EphemerisFromRecord(record, nil, nil)

	if restored.LastStateTime() != eph.LastStateTime() {
		t.Fatalf("restored LastStateTime = %v, want %v", restored.LastStateTime(), eph.LastStateTime())
	}
	if restored.NumberOfBodies() != eph.NumberOfBodies() {
		t.Fatalf("restored NumberOfBodies = %d, want %d", restored.NumberOfBodies(), eph.NumberOfBodies())
	}
	for i, want := range eph.LastPositions() {
		if restored.LastPositions()[i] != want {
			t.Fatalf("restored LastPositions[%d] = %v, want %v", i, restored.LastPositions()[i], want)
		}
	}
	for i := 0; i < eph.NumberOfBodies(); i++ {
		if restored.Body(i).Name != eph.Body(i).Name {
			t.Fatalf("restored Body(%d).Name = %s, want %s", i, restored.Body(i).Name, eph.Body(i).Name)
		}
	}
}

func TestEphemerisRecordRoundTripPreservesTrajectoryEvaluation(t *testing.T) {
	eph := newTwoBodyEphemeris(50000)
	record := EphemerisToRecord(eph)
	restored := EphemerisFromRecord(record, nil, nil)

	probe := (eph.Trajectory(0).TMin() + eph.Trajectory(0).TMax()) / 2
	want, err := eph.Trajectory(0).EvaluatePosition(probe, nil)
	if err != nil {
		t.Fatalf("EvaluatePosition on original: %v", err)
	}
	got, err := restored.Trajectory(0).EvaluatePosition(probe, nil)
	if err != nil {
		t.Fatalf("EvaluatePosition on restored: %v", err)
	}
	if got != want {
		t.Fatalf("restored trajectory evaluation = %v, want %v", got, want)
	}
}

func TestEphemerisRecordGobRoundTripIsBitStable(t *testing.T) {
	eph := newTwoBodyEphemeris(50000)
	record := EphemerisToRecord(eph)

	raw1, err := EncodeEphemeris(record)
	if err != nil {
		t.Fatalf("EncodeEphemeris: %v", err)
	}
	raw2, err := EncodeEphemeris(record)
	if err != nil {
		t.Fatalf("EncodeEphemeris (again): %v", err)
	}
	if string(raw1) != string(raw2) {
		t.Fatal("encoding the same EphemerisRecord twice produced different bytes")
	}

	decoded, err := DecodeEphemeris(raw1)
	if err != nil {
		t.Fatalf("DecodeEphemeris: %v", err)
	}
	if !reflect.DeepEqual(decoded, record) {
		t.Fatal("DecodeEphemeris(EncodeEphemeris(r)) != r")
	}
}

func constantDir(v quantity.Vec3) func(t float64) quantity.Vec3 {
	return func(t float64) quantity.Vec3 { return v }
}

func TestManoeuvreRecordRoundTrip(t *testing.T) {
	m := manoeuvre.New(0.5, 300, 1000, 0.01, 100, constantDir(quantity.Vec3{X: 1, Y: 2}))
	record := ManoeuvreToRecord(m)
	restored := ManoeuvreFromRecord(record)

	if restored.Thrust() != m.Thrust() || restored.SpecificImpulse() != m.SpecificImpulse() ||
		restored.InitialMass() != m.InitialMass() || restored.InitialTime() != m.InitialTime() ||
		restored.Duration() != m.Duration() || restored.FinalMass() != m.FinalMass() {
		t.Fatalf("ManoeuvreFromRecord(ManoeuvreToRecord(m)) lost a scalar field: got %+v", restored)
	}
	if restored.Direction(m.InitialTime()) != m.Direction(m.InitialTime()) {
		t.Fatalf("restored direction = %v, want %v", restored.Direction(m.InitialTime()), m.Direction(m.InitialTime()))
	}
}

func testAdaptive() flightplan.AdaptiveParameters {
	return flightplan.AdaptiveParameters{
		InitialStep:       60,
		SafetyFactor:      0.9,
		MaxSteps:          100000,
		LengthTol:         1e-3,
		SpeedTol:          1e-6,
		MaxEphemerisSteps: 100000,
	}
}

func newTestFlightPlan(eph *ephemeris.Ephemeris) *flightplan.FlightPlan {
	_, root := dt.NewArena()
	const r = 42164.0
	v := sqrtApprox(float64(body.Sun.Mu) / r)
	if err := root.Append(dt.Sample{T: 0, Position: quantity.Vec3{X: r}, Velocity: quantity.Vec3{Y: v}}); err != nil {
		panic(err)
	}
	fp := flightplan.New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)
	fp.Append(flightplan.BurnSpec{
		Thrust:          0.5,
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       constantDir(quantity.Vec3{X: 1}),
	})
	return fp
}

func TestFlightPlanRecordRoundTripPreservesStructure(t *testing.T) {
	bodies := []body.Body{body.Sun}
	positions := []quantity.Vec3{{}}
	velocities := []quantity.Vec3{{}}
	cfg := ephemeris.Config{Step: 60, FittingTolerance: 1e-6}
	eph := ephemeris.New(bodies, positions, velocities, 0, cfg, nil, nil)
	eph.Prolong(200000)

	fp := newTestFlightPlan(eph)
	record := FlightPlanToRecord(fp)
	restored := FlightPlanFromRecord(record, eph, nil, nil)

	if restored.NumberOfManoeuvres() != fp.NumberOfManoeuvres() {
		t.Fatalf("restored NumberOfManoeuvres = %d, want %d", restored.NumberOfManoeuvres(), fp.NumberOfManoeuvres())
	}
	if restored.NumberOfSegments() != fp.NumberOfSegments() {
		t.Fatalf("restored NumberOfSegments = %d, want %d", restored.NumberOfSegments(), fp.NumberOfSegments())
	}
	if restored.FinalTime() != fp.FinalTime() {
		t.Fatalf("restored FinalTime = %v, want %v", restored.FinalTime(), fp.FinalTime())
	}
	for i := 0; i < fp.NumberOfSegments(); i++ {
		wantBegin, wantEnd := fp.GetSegment(i)
		gotBegin, gotEnd := restored.GetSegment(i)
		if gotBegin != wantBegin || gotEnd != wantEnd {
			t.Fatalf("restored segment %d = [%v, %v], want [%v, %v]", i, gotBegin, gotEnd, wantBegin, wantEnd)
		}
	}
}

func TestFlightPlanRecordGobRoundTripIsBitStable(t *testing.T) {
	bodies := []body.Body{body.Sun}
	positions := []quantity.Vec3{{}}
	velocities := []quantity.Vec3{{}}
	cfg := ephemeris.Config{Step: 60, FittingTolerance: 1e-6}
	eph := ephemeris.New(bodies, positions, velocities, 0, cfg, nil, nil)
	eph.Prolong(200000)

	fp := newTestFlightPlan(eph)
	record := FlightPlanToRecord(fp)

	raw1, err := EncodeFlightPlan(record)
	if err != nil {
		t.Fatalf("EncodeFlightPlan: %v", err)
	}
	raw2, err := EncodeFlightPlan(record)
	if err != nil {
		t.Fatalf("EncodeFlightPlan (again): %v", err)
	}
	if string(raw1) != string(raw2) {
		t.Fatal("encoding the same FlightPlanRecord twice produced different bytes")
	}

	decoded, err := DecodeFlightPlan(raw1)
	if err != nil {
		t.Fatalf("DecodeFlightPlan: %v", err)
	}
	if !reflect.DeepEqual(decoded, record) {
		t.Fatal("DecodeFlightPlan(EncodeFlightPlan(r)) != r")
	}
}

func TestReadPreBourbakiEphemerisReplaysAlignedHistoryAndProlongs(t *testing.T) {
	step := 10.0
	celestial := PreBourbakiCelestialRecord{
		Body: bodyToRecord(body.Sun),
	}
	for i := 0; i <= 20; i++ {
		tt := float64(i) * step
		celestial.History = append(celestial.History, SampleRecord{
			T:        tt,
			Position: VecRecord{X: tt},
			Velocity: VecRecord{X: 1},
		})
	}
	record := PreBourbakiEphemerisRecord{
		Step:             step,
		FittingTolerance: 1e-6,
		InitialTime:      0,
		FinalTime:        300,
		Celestials:       []PreBourbakiCelestialRecord{celestial},
	}

	eph := ReadPreBourbakiEphemeris(record, nil, nil)
	if eph.LastStateTime() < 200 {
		t.Fatalf("LastStateTime = %v, want >= 200 (last aligned sample)", eph.LastStateTime())
	}
	if eph.TMax() < 300 {
		t.Fatalf("TMax = %v, want >= 300 after Prolong", eph.TMax())
	}
}

func TestReadPreBourbakiEphemerisIgnoresMisalignedSamples(t *testing.T) {
	step := 10.0
	celestial := PreBourbakiCelestialRecord{
		Body: bodyToRecord(body.Sun),
		History: []SampleRecord{
			{T: 0, Position: VecRecord{X: 0}},
			{T: 10, Position: VecRecord{X: 10}},
			{T: 13.5, Position: VecRecord{X: 999}}, // off-grid, must be skipped
			{T: 20, Position: VecRecord{X: 20}},
		},
	}
	record := PreBourbakiEphemerisRecord{
		Step:             step,
		FittingTolerance: 1e-6,
		InitialTime:      0,
		FinalTime:        20,
		Celestials:       []PreBourbakiCelestialRecord{celestial},
	}
	eph := ReadPreBourbakiEphemeris(record, nil, nil)
	if eph.LastPositions()[0].X == 999 {
		t.Fatal("a misaligned sample should not have been replayed into the CT")
	}
}

func TestReadPreBuniakovskyFlightPlanRecoversManoeuvreChain(t *testing.T) {
	bodies := []body.Body{body.Sun}
	positions := []quantity.Vec3{{}}
	velocities := []quantity.Vec3{{}}
	cfg := ephemeris.Config{Step: 60, FittingTolerance: 1e-6}
	eph := ephemeris.New(bodies, positions, velocities, 0, cfg, nil, nil)
	eph.Prolong(200000)

	record := PreBuniakovskyFlightPlanRecord{
		InitialTime:     0,
		FinalTime:       100000,
		InitialMass:     1000,
		InitialPosition: VecRecord{X: 42164},
		InitialVelocity: VecRecord{Y: sqrtApprox(float64(body.Sun.Mu) / 42164)},
		Manoeuvres: []PreBuniakovskyManoeuvreRecord{
			{Thrust: 0.5, SpecificImpulse: 300, DeltaV: 0.01, StartTime: 20000, Direction: VecRecord{X: 1}},
		},
		Adaptive: adaptiveToRecord(testAdaptive()),
	}

	fp, ok := ReadPreBuniakovskyFlightPlan(record, eph, nil, nil)
	if !ok {
		t.Fatal("ReadPreBuniakovskyFlightPlan should succeed for a feasible single-burn history")
	}
	if fp.NumberOfManoeuvres() != 1 {
		t.Fatalf("NumberOfManoeuvres = %d, want 1", fp.NumberOfManoeuvres())
	}
	if fp.GetManoeuvre(0).InitialTime() != 20000 {
		t.Fatalf("recovered manoeuvre InitialTime = %v, want 20000", fp.GetManoeuvre(0).InitialTime())
	}
}

func TestReadPreBuniakovskyFlightPlanChainsTailMassAcrossBurns(t *testing.T) {
	bodies := []body.Body{body.Sun}
	positions := []quantity.Vec3{{}}
	velocities := []quantity.Vec3{{}}
	cfg := ephemeris.Config{Step: 60, FittingTolerance: 1e-6}
	eph := ephemeris.New(bodies, positions, velocities, 0, cfg, nil, nil)
	eph.Prolong(300000)

	record := PreBuniakovskyFlightPlanRecord{
		InitialTime:     0,
		FinalTime:       200000,
		InitialMass:     1000,
		InitialPosition: VecRecord{X: 42164},
		InitialVelocity: VecRecord{Y: sqrtApprox(float64(body.Sun.Mu) / 42164)},
		Manoeuvres: []PreBuniakovskyManoeuvreRecord{
			{Thrust: 0.5, SpecificImpulse: 300, DeltaV: 0.01, StartTime: 20000, Direction: VecRecord{X: 1}},
			{Thrust: 0.5, SpecificImpulse: 300, DeltaV: 0.01, StartTime: 60000, Direction: VecRecord{X: 1}},
		},
		Adaptive: adaptiveToRecord(testAdaptive()),
	}

	fp, ok := ReadPreBuniakovskyFlightPlan(record, eph, nil, nil)
	if !ok {
		t.Fatal("ReadPreBuniakovskyFlightPlan should succeed for a feasible two-burn history")
	}
	if fp.GetManoeuvre(1).InitialMass() != fp.GetManoeuvre(0).FinalMass() {
		t.Fatalf("second manoeuvre's InitialMass = %v, want first manoeuvre's FinalMass = %v",
			fp.GetManoeuvre(1).InitialMass(), fp.GetManoeuvre(0).FinalMass())
	}
}
