// Package targetselect implements the semantic selector of spec.md §4.2: a
// deterministic five-step priority ladder (manual bracket, LiDAR, object,
// DEM short-circuit, fused fallback) plus the foreground-occluder
// predicate and the background-hypothesis side channel. Named
// targetselect rather than "select" because the latter is a Go keyword;
// DESIGN.md records the rename.
//
// Grounded on the teacher's internal/imu_fusion_system.go, whose
// IMUFusionSystem.FuseData walks a sequential decide-then-fall-through
// chain over candidate IMU triples — the same "try the strongest signal
// first, fall through on disqualification" shape, generalized here from
// one hardcoded path into a real five-rung ladder.
package targetselect

import (
	"github.com/fieldrange/rangefusion/internal/depth"
	"github.com/fieldrange/rangefusion/internal/fuse"
)

// ObjectThreshold is the configured object-weight floor for step 3 of the
// ladder (spec.md §6 object_selector_threshold).
const ObjectThreshold = 0.3

// DemShortCircuitWeight and DemShortCircuitWeightRelaxed are the DEM
// weight floors for step 4: the relaxed threshold applies only when the
// bimodal analysis corroborates the far peak.
const (
	DemShortCircuitWeight        = 0.15
	DemShortCircuitWeightRelaxed = 0.01
)

// ForegroundOccluderNearM is the near-peak distance below which, on its
// own, a bimodal foreground counts as an occluder (spec.md §4.2).
const ForegroundOccluderNearM = 12.0

// minContributorConfidence is the confidence floor of spec.md §8:
// "Confidence ∈ [0.15, 1] whenever any contributor has weight > 0".
const minContributorConfidence = 0.15

// Input bundles everything the selector needs for one frame's decision.
type Input struct {
	ManualBracket *depth.SourceEstimate // non-nil when an operator bracket is active
	Pool          []depth.SourceEstimate
	Dem           *depth.DemEstimate
	Bimodal       depth.BimodalAnalysis
	Priority      depth.TargetPriority
	LidarReadingM float64 // 0 if LiDAR has no current reading
	TimestampS    float64
}

// Result is the selector's per-frame decision.
type Result struct {
	Primary    depth.FusedDepth
	Background *depth.SourceEstimate // best-weighted non-primary source, for overlay only
}

// Select runs the five-step priority ladder.
func Select(in Input) Result {
	if in.ManualBracket != nil {
		return Result{
			Primary:    asPrimary(*in.ManualBracket, in.TimestampS),
			Background: background(in.Pool, depth.SourceStadiametric),
		}
	}

	lidar, hasLidar := findSource(in.Pool, depth.SourceLidar)
	if hasLidar && lidar.Weight > 0 && !isForegroundOccluder(in, lidar.DistanceM) {
		return Result{
			Primary:    asPrimary(lidar, in.TimestampS),
			Background: background(in.Pool, depth.SourceLidar),
		}
	}

	if obj, hasObject := findSource(in.Pool, depth.SourceObject); hasObject && obj.Weight > ObjectThreshold {
		return Result{
			Primary:    asPrimary(obj, in.TimestampS),
			Background: background(in.Pool, depth.SourceObject),
		}
	}

	if dem, hasDem := findSource(in.Pool, depth.SourceDemRaycast); hasDem {
		threshold := DemShortCircuitWeight
		if in.Bimodal.DemAgreesWithFar {
			threshold = DemShortCircuitWeightRelaxed
		}
		if dem.Weight > threshold {
			return Result{
				Primary:    asPrimaryDem(dem, in.TimestampS),
				Background: background(in.Pool, depth.SourceDemRaycast),
			}
		}
	}

	fused := fuse.Fuse(in.Pool, in.TimestampS)
	return Result{
		Primary:    fused,
		Background: background(in.Pool, fused.Primary),
	}
}

// isForegroundOccluder applies only when the operator wants the far
// target (spec.md §4.2): a near bimodal peak, corroborated by either its
// own proximity or a LiDAR reading below it, counts as an occluder to be
// ranged through rather than stopped at — provided the far peak has DEM
// support.
func isForegroundOccluder(in Input, lidarDistanceM float64) bool {
	if in.Priority != depth.PriorityFar {
		return false
	}
	if !in.Bimodal.IsBimodal {
		return false
	}
	nearIsClose := in.Bimodal.NearPeakM <= ForegroundOccluderNearM
	lidarBelowNear := lidarDistanceM > 0 && lidarDistanceM < in.Bimodal.NearPeakM
	if !nearIsClose && !lidarBelowNear {
		return false
	}
	return in.Bimodal.DemAgreesWithFar
}

func findSource(pool []depth.SourceEstimate, tag depth.SourceTag) (depth.SourceEstimate, bool) {
	for _, e := range pool {
		if e.Source == tag {
			return e, true
		}
	}
	return depth.SourceEstimate{}, false
}

// background returns the best-weighted pool entry whose source differs
// from primary, for overlay display only — it never feeds ranging.
func background(pool []depth.SourceEstimate, primary depth.SourceTag) *depth.SourceEstimate {
	var best *depth.SourceEstimate
	for i := range pool {
		e := pool[i]
		if e.Source == primary || e.Weight <= 0 {
			continue
		}
		if best == nil || e.Weight > best.Weight {
			best = &pool[i]
		}
	}
	return best
}

func asPrimary(e depth.SourceEstimate, timestampS float64) depth.FusedDepth {
	confidence := clamp01(e.Weight)
	if confidence < minContributorConfidence {
		confidence = minContributorConfidence
	}
	return depth.FusedDepth{
		DistanceM:           e.DistanceM,
		Confidence0to1:      confidence,
		UncertaintyM:        e.DistanceM * (1 - confidence),
		Primary:             e.Source,
		ContributingWeights: map[depth.SourceTag]float64{e.Source: e.Weight},
		TimestampS:          timestampS,
	}
}

// asPrimaryDem builds the DEM rung's result using fuse's DEM-primary
// confidence formula (spec.md §4.1 step 2), rather than the generic
// per-source floor, per spec.md §4.2 step 4.
func asPrimaryDem(e depth.SourceEstimate, timestampS float64) depth.FusedDepth {
	confidence := fuse.DemPrimaryConfidence(e.Weight, e.DistanceM)
	return depth.FusedDepth{
		DistanceM:           e.DistanceM,
		Confidence0to1:      confidence,
		UncertaintyM:        e.DistanceM * (1 - confidence),
		Primary:             e.Source,
		ContributingWeights: map[depth.SourceTag]float64{e.Source: e.Weight},
		TimestampS:          timestampS,
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
