// Package bimodal implements the crosshair-ROI two-peak depth analyzer of
// spec.md §4.6. The histogram total (a sum over the per-bin counts) uses
// gonum.org/v1/gonum/floats, grounded on the pack's
// multimodal fusion service (other_examples/.../multimodal_fusion.go.go),
// which imports gonum/floats alongside gonum/mat for exactly this kind of
// vector reduction.
package bimodal

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/fieldrange/rangefusion/internal/depth"
)

// Config tunes the histogram and bimodality declaration.
type Config struct {
	MinRangeM    float64
	MaxRangeM    float64
	NumBins      int
	MinFraction  float64 // spec.md §6 bimodal_min_fraction
	MinRatio     float64 // spec.md §6 bimodal_min_ratio
	DemAgreeRatio float64
}

// DefaultConfig returns the module's reference histogram configuration.
func DefaultConfig() Config {
	return Config{
		MinRangeM:     1.0,
		MaxRangeM:     2000.0,
		NumBins:       64,
		MinFraction:   0.10,
		MinRatio:      2.0,
		DemAgreeRatio: 1.5,
	}
}

// Roi is a sampled, already-calibrated set of metric depths from the
// crosshair region of interest. Sampling stride and calibration application
// happen upstream (the caller owns the dense inverse-depth array and the
// calibrator); this package only analyzes the resulting depth population.
type Roi struct {
	DepthsM []float64
}

// Analyze builds a log-scale histogram of roi.DepthsM and reports whether
// the scene shows two significant populations.
func Analyze(roi Roi, cfg Config, dem *depth.DemEstimate) depth.BimodalAnalysis {
	finiteDepths := make([]float64, 0, len(roi.DepthsM))
	for _, d := range roi.DepthsM {
		if !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0 {
			finiteDepths = append(finiteDepths, d)
		}
	}
	if len(finiteDepths) == 0 {
		return depth.BimodalAnalysis{}
	}

	logMin := math.Log(cfg.MinRangeM)
	logMax := math.Log(cfg.MaxRangeM)
	binWidth := (logMax - logMin) / float64(cfg.NumBins)

	counts := make([]float64, cfg.NumBins)
	for _, d := range finiteDepths {
		clamped := math.Min(math.Max(d, cfg.MinRangeM), cfg.MaxRangeM)
		bin := int((math.Log(clamped) - logMin) / binWidth)
		if bin < 0 {
			bin = 0
		}
		if bin >= cfg.NumBins {
			bin = cfg.NumBins - 1
		}
		counts[bin]++
	}

	total := floats.Sum(counts)
	if total == 0 {
		return depth.BimodalAnalysis{}
	}

	firstIdx, firstCount := argmax(counts, -1)
	secondIdx, secondCount := argmax(counts, firstIdx)

	binCenter := func(i int) float64 {
		logCenter := logMin + (float64(i)+0.5)*binWidth
		return math.Exp(logCenter)
	}

	near, far := binCenter(firstIdx), binCenter(secondIdx)
	nearFraction, farFraction := firstCount/total, secondCount/total
	if near > far {
		near, far = far, near
		nearFraction, farFraction = farFraction, nearFraction
	}

	isBimodal := secondIdx >= 0 &&
		nearFraction >= cfg.MinFraction &&
		farFraction >= cfg.MinFraction &&
		far/near >= cfg.MinRatio

	analysis := depth.BimodalAnalysis{
		IsBimodal:        isBimodal,
		NearPeakM:        near,
		FarPeakM:         far,
		NearFraction0to1: nearFraction,
		FarFraction0to1:  farFraction,
	}

	if dem != nil && isBimodal {
		ratio := far / dem.DistanceM
		if ratio < 1 {
			ratio = 1 / ratio
		}
		analysis.DemAgreesWithFar = ratio <= cfg.DemAgreeRatio
	}

	return analysis
}

// argmax returns the index and value of the largest element of counts,
// skipping the index `exclude` (pass -1 to exclude nothing).
func argmax(counts []float64, exclude int) (int, float64) {
	bestIdx, bestVal := -1, 0.0
	for i, v := range counts {
		if i == exclude {
			continue
		}
		if v > bestVal {
			bestIdx, bestVal = i, v
		}
	}
	return bestIdx, bestVal
}
