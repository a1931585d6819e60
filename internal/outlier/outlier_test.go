package outlier

import (
	"testing"

	"github.com/fieldrange/rangefusion/internal/depth"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := New(2)
	b.Push(depth.FusedDepth{DistanceM: 1})
	b.Push(depth.FusedDepth{DistanceM: 2})
	b.Push(depth.FusedDepth{DistanceM: 3})

	recent := b.Recent()
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2", len(recent))
	}
	if recent[0].DistanceM != 2 || recent[1].DistanceM != 3 {
		t.Errorf("recent = %v, want [2, 3]", recent)
	}
}

func TestClearEmptiesRing(t *testing.T) {
	b := New(4)
	b.Push(depth.FusedDepth{DistanceM: 5})
	b.Clear()
	if len(b.Recent()) != 0 {
		t.Errorf("expected empty ring after Clear")
	}
}

func TestIsJump(t *testing.T) {
	b := New(4)
	b.Push(depth.FusedDepth{DistanceM: 100})

	if b.IsJump(110, 2.0) {
		t.Errorf("10%% change should not be flagged as a jump at ratio threshold 2.0")
	}
	if !b.IsJump(250, 2.0) {
		t.Errorf("2.5x change should be flagged as a jump at ratio threshold 2.0")
	}
}

func TestIsJumpEmptyHistory(t *testing.T) {
	b := New(4)
	if b.IsJump(100, 2.0) {
		t.Errorf("empty history should never report a jump")
	}
}
