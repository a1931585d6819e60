package targetselect

import (
	"testing"

	"github.com/fieldrange/rangefusion/internal/depth"
)

func TestSelectManualBracketWins(t *testing.T) {
	manual := depth.SourceEstimate{DistanceM: 77, Weight: 1, Source: depth.SourceStadiametric}
	in := Input{
		ManualBracket: &manual,
		Pool: []depth.SourceEstimate{
			{DistanceM: 5, Weight: 0.9, Source: depth.SourceLidar},
		},
		TimestampS: 1,
	}
	got := Select(in)
	if got.Primary.DistanceM != 77 || got.Primary.Primary != depth.SourceStadiametric {
		t.Errorf("manual bracket should take priority, got %+v", got.Primary)
	}
}

func TestSelectLidarWinsWhenNotOccluder(t *testing.T) {
	in := Input{
		Pool: []depth.SourceEstimate{
			{DistanceM: 5, Weight: 0.9, Source: depth.SourceLidar},
			{DistanceM: 300, Weight: 0.8, Source: depth.SourceDemRaycast},
		},
		Priority:   depth.PriorityNear,
		TimestampS: 1,
	}
	got := Select(in)
	if got.Primary.Primary != depth.SourceLidar {
		t.Errorf("Primary = %v, want SourceLidar", got.Primary.Primary)
	}
}

func TestSelectLidarSkippedAsForegroundOccluder(t *testing.T) {
	in := Input{
		Pool: []depth.SourceEstimate{
			{DistanceM: 5, Weight: 0.9, Source: depth.SourceLidar},
			{DistanceM: 300, Weight: 0.8, Source: depth.SourceDemRaycast},
		},
		Priority: depth.PriorityFar,
		Bimodal: depth.BimodalAnalysis{
			IsBimodal:        true,
			NearPeakM:        5,
			FarPeakM:         300,
			DemAgreesWithFar: true,
		},
		TimestampS: 1,
	}
	got := Select(in)
	if got.Primary.Primary == depth.SourceLidar {
		t.Errorf("LiDAR should be skipped as a foreground occluder when priority is Far")
	}
}

func TestSelectObjectWinsOverThreshold(t *testing.T) {
	in := Input{
		Pool: []depth.SourceEstimate{
			{DistanceM: 40, Weight: ObjectThreshold + 0.1, Source: depth.SourceObject},
		},
		TimestampS: 1,
	}
	got := Select(in)
	if got.Primary.Primary != depth.SourceObject {
		t.Errorf("Primary = %v, want SourceObject", got.Primary.Primary)
	}
}

func TestSelectObjectBelowThresholdFallsThrough(t *testing.T) {
	in := Input{
		Pool: []depth.SourceEstimate{
			{DistanceM: 40, Weight: ObjectThreshold - 0.1, Source: depth.SourceObject},
			{DistanceM: 300, Weight: 0.8, Source: depth.SourceDemRaycast},
		},
		TimestampS: 1,
	}
	got := Select(in)
	if got.Primary.Primary == depth.SourceObject {
		t.Errorf("sub-threshold object weight should not win the ladder")
	}
}

func TestSelectDemRelaxedThresholdWithBimodalAgreement(t *testing.T) {
	in := Input{
		Pool: []depth.SourceEstimate{
			{DistanceM: 300, Weight: 0.05, Source: depth.SourceDemRaycast},
		},
		Bimodal: depth.BimodalAnalysis{
			IsBimodal:        true,
			DemAgreesWithFar: true,
		},
		TimestampS: 1,
	}
	got := Select(in)
	if got.Primary.Primary != depth.SourceDemRaycast {
		t.Errorf("relaxed DEM threshold with bimodal agreement should select DEM, got %v", got.Primary.Primary)
	}
}

func TestSelectFallsThroughToFusedWhenNoRungMatches(t *testing.T) {
	in := Input{
		Pool: []depth.SourceEstimate{
			{DistanceM: 40, Weight: 0.8, Source: depth.SourceGeometric},
			{DistanceM: 41, Weight: 0.8, Source: depth.SourceNeural},
		},
		TimestampS: 1,
	}
	got := Select(in)
	if !got.Primary.Valid() {
		t.Errorf("fused fallback should still produce a valid estimate from an agreeing pool")
	}
}

func TestSelectBackgroundExcludesPrimarySource(t *testing.T) {
	in := Input{
		Pool: []depth.SourceEstimate{
			{DistanceM: 5, Weight: 0.9, Source: depth.SourceLidar},
			{DistanceM: 300, Weight: 0.8, Source: depth.SourceDemRaycast},
		},
		TimestampS: 1,
	}
	got := Select(in)
	if got.Background == nil {
		t.Fatalf("expected a background hypothesis")
	}
	if got.Background.Source == got.Primary.Primary {
		t.Errorf("background source should differ from primary")
	}
}
