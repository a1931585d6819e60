// Package calibrate implements the continuous neural-to-reference
// calibrator of spec.md §4.3: an online 1-D fit (Linear or Inverse) refit
// every N accepted samples from a bounded FIFO. The bounded-ring idiom is
// grounded on the teacher's internal/pointcloud.go (a mutex-guarded slice
// with a hard capacity); the weighted least-squares solve uses
// gonum.org/v1/gonum/mat, the same small-dense-linear-algebra habit the
// teacher already leans on in internal/procrustes.go for its SVD.
package calibrate

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/fieldrange/rangefusion/internal/confidence"
	"github.com/fieldrange/rangefusion/internal/depth"
)

const minSampleConfidence = 0.05
const refitEveryNSamples = 8
const minSamplesToFit = 6

// Calibrator maintains a bounded sample ring and the current fit.
type Calibrator struct {
	mu sync.Mutex

	capacity int
	samples  []depth.CalibrationSample
	accepted int // total accepted since last refit, mod refitEveryNSamples

	state depth.CalibrationState
}

// New creates a Calibrator with the identity model and a FIFO of the given
// capacity (spec.md: "~50-200").
func New(capacity int) *Calibrator {
	if capacity <= 0 {
		capacity = 150
	}
	return &Calibrator{
		capacity: capacity,
		samples:  make([]depth.CalibrationSample, 0, capacity),
		state:    depth.IdentityCalibration(),
	}
}

// Ingest offers a new ground-truth sample. Invalid samples (non-finite
// fields, non-positive reference, confidence below the minimum) are
// rejected silently — per spec.md §7 this is logged at debug level by the
// caller, not raised here.
func (c *Calibrator) Ingest(sample depth.CalibrationSample) bool {
	if !finite(sample.NeuralRaw) || !finite(sample.ReferenceMetric) || !finite(sample.Confidence) {
		return false
	}
	if sample.ReferenceMetric <= 0 || sample.Confidence < minSampleConfidence {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.samples) >= c.capacity {
		c.samples = c.samples[1:]
	}
	c.samples = append(c.samples, sample)
	c.accepted++
	c.state.SampleCount = len(c.samples)
	c.state.LastUpdateTime = sample.TimestampS

	if c.accepted >= refitEveryNSamples && len(c.samples) >= minSamplesToFit {
		c.accepted = 0
		c.refitLocked(sample.TimestampS)
	}
	return true
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Calibrate applies the current model to a raw neural reading, saturating
// (rather than diverging) when the inverse model's denominator approaches
// zero.
func (c *Calibrator) Calibrate(x float64) float64 {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	return apply(state, x)
}

func apply(state depth.CalibrationState, x float64) float64 {
	switch state.ModelKind {
	case depth.ModelInverse:
		denom := x
		const minDenom = 1e-4
		if math.Abs(denom) < minDenom {
			if denom < 0 {
				denom = -minDenom
			} else {
				denom = minDenom
			}
		}
		return state.A/denom + state.B
	default: // ModelLinear
		return state.A*x + state.B
	}
}

// State returns the calibrator's current fit.
func (c *Calibrator) State() depth.CalibrationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Confidence returns the calibration-quality scalar used to attenuate
// neural-source confidence (spec.md §4.10): a function of sample count
// (saturating), fit residual quality, and age decay since the last update.
func (c *Calibrator) Confidence(nowS float64) float64 {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	countFactor := float64(state.SampleCount) / (float64(state.SampleCount) + 20.0)
	residualFactor := 1.0 / (1.0 + state.FitResidual)
	age := nowS - state.LastUpdateTime
	ageFactor := confidence.CalibrationAgeDecay(age)

	return clamp01(countFactor * residualFactor * ageFactor)
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

// refitLocked recomputes both candidate models and keeps the one with the
// smaller normalized residual. Caller must hold c.mu.
func (c *Calibrator) refitLocked(nowS float64) {
	linA, linB, linResidual, ok1 := weightedLinearFit(c.samples, func(s depth.CalibrationSample) float64 { return s.NeuralRaw })
	invA, invB, invResidual, ok2 := weightedLinearFit(c.samples, func(s depth.CalibrationSample) float64 {
		x := s.NeuralRaw
		if math.Abs(x) < 1e-4 {
			if x < 0 {
				x = -1e-4
			} else {
				x = 1e-4
			}
		}
		return 1.0 / x
	})

	switch {
	case ok1 && (!ok2 || linResidual <= invResidual):
		c.state = depth.CalibrationState{
			ModelKind:      depth.ModelLinear,
			A:              linA,
			B:              linB,
			SampleCount:    len(c.samples),
			FitResidual:    linResidual,
			LastUpdateTime: nowS,
		}
	case ok2:
		c.state = depth.CalibrationState{
			ModelKind:      depth.ModelInverse,
			A:              invA,
			B:              invB,
			SampleCount:    len(c.samples),
			FitResidual:    invResidual,
			LastUpdateTime: nowS,
		}
	}
	// If neither fit is well-posed, the previous state (possibly identity)
	// is kept untouched.
}

// weightedLinearFit solves the weighted least-squares problem
// y = a*transform(x) + b over the sample set, using sample confidence as
// the regression weight. Returns ok=false when the design matrix is
// singular (e.g. all transformed x identical).
func weightedLinearFit(samples []depth.CalibrationSample, transform func(depth.CalibrationSample) float64) (a, b, normalizedResidual float64, ok bool) {
	var sw, swx, swxx, swy, swxy float64
	for _, s := range samples {
		x := transform(s)
		w := s.Confidence
		sw += w
		swx += w * x
		swxx += w * x * x
		swy += w * s.ReferenceMetric
		swxy += w * x * s.ReferenceMetric
	}
	if sw <= 0 {
		return 0, 0, math.Inf(1), false
	}

	A := mat.NewDense(2, 2, []float64{swxx, swx, swx, sw})
	rhs := mat.NewVecDense(2, []float64{swxy, swy})

	det := A.At(0, 0)*A.At(1, 1) - A.At(0, 1)*A.At(1, 0)
	if math.Abs(det) < 1e-9 {
		return 0, 0, math.Inf(1), false
	}

	var solution mat.VecDense
	if err := solution.SolveVec(A, rhs); err != nil {
		return 0, 0, math.Inf(1), false
	}
	a = solution.AtVec(0)
	b = solution.AtVec(1)

	var wsse float64
	for _, s := range samples {
		x := transform(s)
		resid := s.ReferenceMetric - (a*x + b)
		wsse += s.Confidence * resid * resid
	}
	normalizedResidual = wsse / sw
	return a, b, normalizedResidual, true
}
