package flightplan

import (
	"testing"

	"github.com/ephemcore/ephemeris-core/body"
	"github.com/ephemcore/ephemeris-core/dt"
	"github.com/ephemcore/ephemeris-core/ephemeris"
	"github.com/ephemcore/ephemeris-core/manoeuvre"
	"github.com/ephemcore/ephemeris-core/quantity"
)

func testAdaptive() AdaptiveParameters {
	return AdaptiveParameters{
		InitialStep:       60,
		SafetyFactor:      0.9,
		MaxSteps:          100000,
		LengthTol:         1e-3,
		SpeedTol:          1e-6,
		MaxEphemerisSteps: 100000,
	}
}

func newSunOnlyEphemeris(tFinal float64) *ephemeris.Ephemeris {
	bodies := []body.Body{body.Sun}
	positions := []quantity.Vec3{{}}
	velocities := []quantity.Vec3{{}}
	cfg := ephemeris.Config{Step: 60, FittingTolerance: 1e-6}
	eph := ephemeris.New(bodies, positions, velocities, 0, cfg, nil, nil)
	eph.Prolong(tFinal)
	return eph
}

func newRootAt(t0 float64, pos, vel quantity.Vec3) *dt.Trajectory {
	_, root := dt.NewArena()
	if err := root.Append(dt.Sample{T: t0, Position: pos, Velocity: vel}); err != nil {
		panic(err)
	}
	return root
}

func circularGEOState() (quantity.Vec3, quantity.Vec3) {
	const r = 42164.0
	mu := float64(body.Sun.Mu)
	v := sqrtApprox(mu / r)
	return quantity.Vec3{X: r}, quantity.Vec3{Y: v}
}

func sqrtApprox(x float64) float64 {
	z := x
	for i := 0; i < 50; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func TestNewCreatesSingleCoastSpanningWholePlan(t *testing.T) {
	eph := newSunOnlyEphemeris(100000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)

	fp := New(root, eph, 0, 50000, 1000, testAdaptive(), nil, nil)
	if fp.NumberOfSegments() != 1 {
		t.Fatalf("NumberOfSegments = %d, want 1 (one coast, no manoeuvres yet)", fp.NumberOfSegments())
	}
	begin, end := fp.GetSegment(0)
	if begin != 0 {
		t.Fatalf("segment begin = %v, want 0", begin)
	}
	if end < 49000 {
		t.Fatalf("segment end = %v, want close to 50000", end)
	}
}

func TestNewPanicsOnFinalTimeBeforeInitialTime(t *testing.T) {
	eph := newSunOnlyEphemeris(1000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	defer func() {
		if recover() == nil {
			t.Fatal("finalTime < initialTime should panic")
		}
	}()
	New(root, eph, 100, 0, 1000, testAdaptive(), nil, nil)
}

func TestNewPanicsOnNonPositiveInitialMass(t *testing.T) {
	eph := newSunOnlyEphemeris(1000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	defer func() {
		if recover() == nil {
			t.Fatal("non-positive initialMass should panic")
		}
	}()
	New(root, eph, 0, 1000, 0, testAdaptive(), nil, nil)
}

func TestAppendAddsThreeSegmentsAndOneManoeuvre(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)

	ok := fp.Append(BurnSpec{
		Thrust:          0.5,
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})
	if !ok {
		t.Fatal("Append should have succeeded for a feasible manoeuvre")
	}
	if fp.NumberOfManoeuvres() != 1 {
		t.Fatalf("NumberOfManoeuvres = %d, want 1", fp.NumberOfManoeuvres())
	}
	if fp.NumberOfSegments() != 3 {
		t.Fatalf("NumberOfSegments = %d, want 3 (coast, burn, coast)", fp.NumberOfSegments())
	}
}

func TestAppendRejectsManoeuvreStartingBeforeLastCoast(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)

	ok := fp.Append(BurnSpec{
		Thrust:          0.5,
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       -100, // before the coast's start
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})
	if ok {
		t.Fatal("Append should reject a manoeuvre that does not fit within the current coast bounds")
	}
	if fp.NumberOfManoeuvres() != 0 {
		t.Fatal("a rejected Append must not mutate the plan")
	}
}

func TestAppendRejectsSingularManoeuvre(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)

	ok := fp.Append(BurnSpec{
		Thrust:          0, // zero thrust + nonzero deltaV => singular
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})
	if ok {
		t.Fatal("Append should reject a singular manoeuvre")
	}
}

func TestRemoveLastUndoesAppend(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)

	fp.Append(BurnSpec{
		Thrust:          0.5,
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})
	if !fp.RemoveLast() {
		t.Fatal("RemoveLast should succeed when a manoeuvre exists")
	}
	if fp.NumberOfManoeuvres() != 0 {
		t.Fatalf("NumberOfManoeuvres after RemoveLast = %d, want 0", fp.NumberOfManoeuvres())
	}
	if fp.NumberOfSegments() != 1 {
		t.Fatalf("NumberOfSegments after RemoveLast = %d, want 1", fp.NumberOfSegments())
	}
}

func TestRemoveLastOnEmptyPlanReturnsFalse(t *testing.T) {
	eph := newSunOnlyEphemeris(1000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 1000, 1000, testAdaptive(), nil, nil)
	if fp.RemoveLast() {
		t.Fatal("RemoveLast on an empty plan should return false")
	}
}

func TestReplaceLastIsAtomicOnFailure(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)

	fp.Append(BurnSpec{
		Thrust:          0.5,
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})
	before := fp.NumberOfManoeuvres()

	ok := fp.ReplaceLast(BurnSpec{
		Thrust:          0, // singular => must fail atomically
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})
	if ok {
		t.Fatal("ReplaceLast should reject a singular replacement")
	}
	if fp.NumberOfManoeuvres() != before {
		t.Fatal("a rejected ReplaceLast must not mutate the plan")
	}
}

func TestReplaceLastOnEmptyPlanReturnsFalse(t *testing.T) {
	eph := newSunOnlyEphemeris(1000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 1000, 1000, testAdaptive(), nil, nil)
	if fp.ReplaceLast(BurnSpec{Thrust: 0.5, SpecificImpulse: 300, DeltaV: 0.01, StartTime: 500,
		Direction: func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} }}) {
		t.Fatal("ReplaceLast on an empty plan should return false")
	}
}

func TestSetFinalTimeRejectsTimeBeforeLastCoastStart(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)
	fp.Append(BurnSpec{
		Thrust:          0.5,
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})
	beginLast, _ := fp.GetSegment(fp.NumberOfSegments() - 1)
	if fp.SetFinalTime(beginLast - 1000) {
		t.Fatal("SetFinalTime before the last coast's start should return false")
	}
}

func TestSetFinalTimeExtendsLastCoast(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 50000, 1000, testAdaptive(), nil, nil)
	if !fp.SetFinalTime(90000) {
		t.Fatal("SetFinalTime forward should succeed")
	}
	if fp.FinalTime() != 90000 {
		t.Fatalf("FinalTime = %v, want 90000", fp.FinalTime())
	}
}

func TestRecomputeSegmentsReproducesManoeuvreCount(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)
	fp.Append(BurnSpec{
		Thrust:          0.5,
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})
	ok := fp.RecomputeSegments()
	if !ok {
		t.Fatal("RecomputeSegments should leave the plan valid for a feasible history")
	}
	if fp.NumberOfSegments() != 3 {
		t.Fatalf("NumberOfSegments after RecomputeSegments = %d, want 3", fp.NumberOfSegments())
	}
}

func TestIsValidMatchesAnomalousSegmentsCeiling(t *testing.T) {
	eph := newSunOnlyEphemeris(1000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 1000, 1000, testAdaptive(), nil, nil)
	if !fp.IsValid() {
		t.Fatal("a freshly constructed plan with no anomalies should be valid")
	}
}

func TestRestoreReproducesFieldsVerbatim(t *testing.T) {
	eph := newSunOnlyEphemeris(200000)
	pos, vel := circularGEOState()
	root := newRootAt(0, pos, vel)
	fp := New(root, eph, 0, 100000, 1000, testAdaptive(), nil, nil)
	fp.Append(BurnSpec{
		Thrust:          0.5,
		SpecificImpulse: 300,
		DeltaV:          0.01,
		StartTime:       20000,
		Direction:       func(t float64) quantity.Vec3 { return quantity.Vec3{X: 1} },
	})

	manoeuvres := make([]manoeuvre.Manoeuvre, fp.NumberOfManoeuvres())
	for i := range manoeuvres {
		manoeuvres[i] = fp.GetManoeuvre(i)
	}
	segs := make([]*dt.Trajectory, fp.NumberOfSegments())
	for i := range segs {
		segs[i] = fp.Segment(i)
	}

	restored := Restore(fp.Root(), eph, fp.InitialTime(), fp.FinalTime(), fp.InitialMass(),
		manoeuvres, segs, fp.AdaptiveParameters(), fp.AnomalousSegments(), nil, nil)

	if restored.NumberOfManoeuvres() != fp.NumberOfManoeuvres() {
		t.Fatalf("restored NumberOfManoeuvres = %d, want %d", restored.NumberOfManoeuvres(), fp.NumberOfManoeuvres())
	}
	if restored.FinalTime() != fp.FinalTime() {
		t.Fatalf("restored FinalTime = %v, want %v", restored.FinalTime(), fp.FinalTime())
	}
	if restored.NumberOfSegments() != fp.NumberOfSegments() {
		t.Fatalf("restored NumberOfSegments = %d, want %d", restored.NumberOfSegments(), fp.NumberOfSegments())
	}
}
