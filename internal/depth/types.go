// Package depth holds the shared vocabulary of the fusion pipeline: the
// per-source estimate type, the fused output, and the small value types that
// every other internal package passes around. It intentionally has no
// dependencies of its own — every other package imports this one, never the
// reverse.
package depth

import "math"

// SourceTag identifies which sensor or pipeline stage produced an estimate.
type SourceTag int

const (
	SourceLidar SourceTag = iota
	SourceNeural
	SourceGeometric
	SourceDemRaycast
	SourceObject
	SourceStadiametric
	SourceSemanticPlaceholder
)

func (s SourceTag) String() string {
	switch s {
	case SourceLidar:
		return "lidar"
	case SourceNeural:
		return "neural"
	case SourceGeometric:
		return "geometric"
	case SourceDemRaycast:
		return "dem_raycast"
	case SourceObject:
		return "object"
	case SourceStadiametric:
		return "stadiametric"
	case SourceSemanticPlaceholder:
		return "semantic_placeholder"
	default:
		return "unknown"
	}
}

// SourceEstimate is one source's opinion about the distance to the target
// for the current frame.
type SourceEstimate struct {
	DistanceM           float64
	Weight              float64
	Source              SourceTag
	SecondaryConfidence float64
}

// Valid reports whether e satisfies the SourceEstimate invariants: a
// non-negative, finite weight and a finite distance.
func (e SourceEstimate) Valid() bool {
	return e.Weight >= 0 && !math.IsNaN(e.Weight) && !math.IsInf(e.Weight, 0) &&
		!math.IsNaN(e.DistanceM) && !math.IsInf(e.DistanceM, 0)
}

// FusedDepth is the pipeline's single per-frame output.
type FusedDepth struct {
	DistanceM         float64
	Confidence0to1    float64
	UncertaintyM      float64
	Primary           SourceTag
	ContributingWeights map[SourceTag]float64
	TimestampS        float64
}

// Valid reports whether the estimate is a real measurement rather than the
// no-estimate sentinel (distance 0, confidence 0 — see spec.md §7).
func (f FusedDepth) Valid() bool {
	return f.Confidence0to1 > 0
}

// NoEstimate is the sentinel FusedDepth emitted when the contributor pool is
// empty or every source is unavailable.
func NoEstimate(timestampS float64) FusedDepth {
	return FusedDepth{
		DistanceM:           0,
		Confidence0to1:      0,
		UncertaintyM:        0,
		Primary:             SourceSemanticPlaceholder,
		ContributingWeights: map[SourceTag]float64{},
		TimestampS:          timestampS,
	}
}

// DemEstimate is the terrain ray-caster's output for the current cast. A nil
// *DemEstimate means "void" (no intersection, or gated out by pre-checks).
type DemEstimate struct {
	DistanceM               float64
	Confidence0to1          float64
	TerrainElevationM       float64
	HeadingDegTrueNorth     float64
	HorizontalGPSAccuracyM  float64
	HitLat                  float64
	HitLon                  float64
}

// CalibrationModelKind selects which 1-D model the calibrator currently
// trusts.
type CalibrationModelKind int

const (
	ModelLinear CalibrationModelKind = iota
	ModelInverse
)

// CalibrationState is the calibrator's persisted fit.
type CalibrationState struct {
	ModelKind      CalibrationModelKind
	A              float64
	B              float64
	SampleCount    int
	FitResidual    float64
	LastUpdateTime float64
	Confidence0to1 float64
}

// IdentityCalibration is the initial state: y = x.
func IdentityCalibration() CalibrationState {
	return CalibrationState{ModelKind: ModelLinear, A: 1, B: 0}
}

// CalibrationSample is one (raw, reference) pair fed to the calibrator.
type CalibrationSample struct {
	NeuralRaw       float64
	ReferenceMetric float64
	Confidence      float64
	TimestampS      float64
}

// BimodalAnalysis is the crosshair-ROI two-peak histogram result for the
// current frame.
type BimodalAnalysis struct {
	IsBimodal        bool
	NearPeakM        float64
	FarPeakM         float64
	NearFraction0to1 float64
	FarFraction0to1  float64
	DemAgreesWithFar bool
}

// MotionState classifies the device's current handling.
type MotionState int

const (
	MotionStationary MotionState = iota
	MotionTracking
	MotionPanning
)

func (m MotionState) String() string {
	switch m {
	case MotionStationary:
		return "stationary"
	case MotionTracking:
		return "tracking"
	case MotionPanning:
		return "panning"
	default:
		return "unknown"
	}
}

// TargetPriority is the operator's persisted preference for which bimodal
// peak to range.
type TargetPriority int

const (
	PriorityNear TargetPriority = iota
	PriorityFar
)
