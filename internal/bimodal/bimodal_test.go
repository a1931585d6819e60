package bimodal

import (
	"math"
	"testing"

	"github.com/fieldrange/rangefusion/internal/depth"
)

func twoClusterDepths(near, far float64, nearCount, farCount int) []float64 {
	depths := make([]float64, 0, nearCount+farCount)
	for i := 0; i < nearCount; i++ {
		depths = append(depths, near)
	}
	for i := 0; i < farCount; i++ {
		depths = append(depths, far)
	}
	return depths
}

func TestAnalyzeEmptyRoiReturnsZeroValue(t *testing.T) {
	got := Analyze(Roi{}, DefaultConfig(), nil)
	if got.IsBimodal {
		t.Errorf("empty ROI should never be bimodal")
	}
}

func TestAnalyzeSinglePopulationIsNotBimodal(t *testing.T) {
	depths := twoClusterDepths(50, 50, 100, 0)
	got := Analyze(Roi{DepthsM: depths}, DefaultConfig(), nil)
	if got.IsBimodal {
		t.Errorf("single population should not be reported bimodal")
	}
}

func TestAnalyzeTwoSeparatedPopulationsIsBimodal(t *testing.T) {
	depths := twoClusterDepths(10, 200, 60, 40)
	got := Analyze(Roi{DepthsM: depths}, DefaultConfig(), nil)
	if !got.IsBimodal {
		t.Errorf("well-separated two-population ROI should be reported bimodal")
	}
	if got.NearPeakM >= got.FarPeakM {
		t.Errorf("NearPeakM (%v) should be less than FarPeakM (%v)", got.NearPeakM, got.FarPeakM)
	}
}

func TestAnalyzeSkewedMinorityPopulationIsNotBimodal(t *testing.T) {
	depths := twoClusterDepths(10, 200, 990, 10)
	got := Analyze(Roi{DepthsM: depths}, DefaultConfig(), nil)
	if got.IsBimodal {
		t.Errorf("a population below MinFraction should not be reported bimodal")
	}
}

func TestAnalyzeDemAgreement(t *testing.T) {
	depths := twoClusterDepths(10, 200, 60, 40)
	dem := &depth.DemEstimate{DistanceM: 205}
	got := Analyze(Roi{DepthsM: depths}, DefaultConfig(), dem)
	if !got.IsBimodal {
		t.Fatalf("expected bimodal population")
	}
	if !got.DemAgreesWithFar {
		t.Errorf("DEM at %v should agree with far peak %v", dem.DistanceM, got.FarPeakM)
	}
}

func TestAnalyzeDemDisagreement(t *testing.T) {
	depths := twoClusterDepths(10, 200, 60, 40)
	dem := &depth.DemEstimate{DistanceM: 20}
	got := Analyze(Roi{DepthsM: depths}, DefaultConfig(), dem)
	if got.IsBimodal && got.DemAgreesWithFar {
		t.Errorf("DEM far from far peak should not be reported as agreeing")
	}
}

func TestAnalyzeIgnoresNonFiniteSamples(t *testing.T) {
	depths := []float64{math.NaN(), math.Inf(1), -5, 0, 42}
	got := Analyze(Roi{DepthsM: depths}, DefaultConfig(), nil)
	if got.NearPeakM == 0 && got.FarPeakM == 0 {
		t.Errorf("expected the one valid sample to still produce a peak")
	}
}
