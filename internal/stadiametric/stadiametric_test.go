package stadiametric

import (
	"math"
	"testing"
)

func TestRangeZeroPixelSize(t *testing.T) {
	got := Range(1.8, 0, 1000)
	if got.DistanceM != 0 || got.Weight != 0 {
		t.Errorf("Range with zero pixel size = %+v, want zero distance and weight", got)
	}
}

func TestRangeRoundTripsThroughPixelSize(t *testing.T) {
	const knownSizeM = 1.8
	const focalLengthPixels = 1400.0
	const wantDistanceM = 75.0

	pixels := PixelSize(knownSizeM, focalLengthPixels, wantDistanceM)
	got := Range(knownSizeM, pixels, focalLengthPixels)
	if math.Abs(got.DistanceM-wantDistanceM) > 1e-6 {
		t.Errorf("round-trip distance = %v, want %v", got.DistanceM, wantDistanceM)
	}
	if got.Weight != 1.0 {
		t.Errorf("stadiametric weight = %v, want 1.0 (operator-assumed)", got.Weight)
	}
}
