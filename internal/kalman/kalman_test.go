package kalman

import (
	"math"
	"testing"

	"github.com/fieldrange/rangefusion/internal/depth"
)

func TestFilterFirstUpdateInitializes(t *testing.T) {
	f := New(0.1, 0.5)
	got := f.Update(50, 0.9, depth.MotionTracking, 0)
	if got != 50 {
		t.Errorf("first Update = %v, want raw measurement 50", got)
	}
	if _, ok := f.Predict(0); !ok {
		t.Errorf("Predict after first Update should report ok")
	}
}

func TestFilterConvergesTowardConstantMeasurement(t *testing.T) {
	f := New(0.05, 0.3)
	ts := 0.0
	var last float64
	for i := 0; i < 50; i++ {
		last = f.Update(100, 0.9, depth.MotionStationary, ts)
		ts += 0.1
	}
	if math.Abs(last-100) > 1.0 {
		t.Errorf("filter did not converge to steady measurement: got %v, want ~100", last)
	}
}

func TestFilterResetsOnLargeTimeGap(t *testing.T) {
	f := New(0.1, 0.5)
	f.Update(50, 0.9, depth.MotionTracking, 0)
	got := f.Update(80, 0.9, depth.MotionTracking, 10)
	if got != 80 {
		t.Errorf("Update after large time gap = %v, want reset to raw measurement 80", got)
	}
}

func TestFilterResetClearsTracking(t *testing.T) {
	f := New(0.1, 0.5)
	f.Update(50, 0.9, depth.MotionTracking, 0)
	f.Reset()
	if f.State().IsTracking {
		t.Errorf("Reset should clear IsTracking")
	}
	if _, ok := f.Predict(1); ok {
		t.Errorf("Predict after Reset should report not ok")
	}
}

func TestSmootherFirstSampleInitializesUnsmoothed(t *testing.T) {
	sm := NewSmoother(0.05)
	d, c := sm.Apply(42, 0.8, depth.MotionTracking)
	if d != 42 || c != 0.8 {
		t.Errorf("first Apply = (%v, %v), want (42, 0.8)", d, c)
	}
}

func TestSmootherEasesTowardNewReadingGradually(t *testing.T) {
	sm := NewSmoother(0.05)
	sm.Apply(100, 0.9, depth.MotionStationary)
	d, _ := sm.Apply(101, 0.9, depth.MotionStationary)
	if d <= 100 || d >= 101 {
		t.Errorf("smoothed depth = %v, want strictly between 100 and 101", d)
	}
}

func TestSmootherSnapsOnSustainedDiscontinuity(t *testing.T) {
	sm := NewSmoother(0.05)
	sm.Apply(100, 0.9, depth.MotionStationary)
	var d float64
	for i := 0; i < 5; i++ {
		d, _ = sm.Apply(10, 0.9, depth.MotionStationary)
	}
	if math.Abs(d-10) > 0.5 {
		t.Errorf("smoother should snap to sustained new reading, got %v, want ~10", d)
	}
}

func TestSmootherResetClearsState(t *testing.T) {
	sm := NewSmoother(0.05)
	sm.Apply(100, 0.9, depth.MotionTracking)
	sm.Reset()
	if _, _, initialized := sm.SmoothedDepth(); initialized {
		t.Errorf("Reset should clear initialized flag")
	}
}
