// Package kalman implements the constant-velocity depth Kalman filter and
// the motion-aware exponential smoother of spec.md §4.7. The filter's 2×2
// covariance propagation uses gonum.org/v1/gonum/mat — the teacher already
// leans on gonum/mat for small dense linear algebra in
// internal/procrustes.go; this applies the same habit to a Kalman
// covariance instead of a Procrustes rotation. The update-step shape
// (predict, gain, innovation, covariance shrink) and the State/Reset method
// surface are grounded on two pack reference filters
// (other_examples/.../nornicdb-pkg-filter-kalman.go.go and
// .../miface-kalman.go.go), generalized from their 1-state scalar form to
// this 2-state constant-velocity form.
package kalman

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/fieldrange/rangefusion/internal/depth"
)

const maxTimeGapS = 1.0

// State is the filter's (depth, velocity) estimate with its 2x2 covariance.
type State struct {
	IsTracking     bool
	DepthM         float64
	VelocityMPerS  float64
	Covariance     [2][2]float64
	LastUpdateTime float64
}

// Filter is a 2-state linear Kalman filter over (depth, velocity) with a
// constant-velocity transition model.
type Filter struct {
	mu sync.Mutex

	baseQ float64
	baseR float64

	state State
}

// New creates a Filter. baseQ/baseR are the process/measurement noise
// scales named in spec.md §6 (kalman_base_q, kalman_base_r).
func New(baseQ, baseR float64) *Filter {
	return &Filter{baseQ: baseQ, baseR: baseR}
}

func motionProcessNoiseScale(m depth.MotionState) float64 {
	switch m {
	case depth.MotionStationary:
		return 0.05
	case depth.MotionPanning:
		return 4.0
	default: // Tracking
		return 1.0
	}
}

// Update ingests a new depth measurement and returns the posterior depth.
// The first measurement initializes the filter (velocity 0) and returns the
// measurement unmodified. A time gap larger than ~1s resets the filter to
// the measurement, per spec.md §7.
func (f *Filter) Update(measurementM, confidence0to1 float64, motion depth.MotionState, timestampS float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.state.IsTracking {
		f.resetToLocked(measurementM, timestampS)
		return measurementM
	}

	dt := timestampS - f.state.LastUpdateTime
	if dt > maxTimeGapS || dt < 0 {
		f.resetToLocked(measurementM, timestampS)
		return measurementM
	}
	if measurementM == 0 {
		f.resetToLocked(measurementM, timestampS)
		return measurementM
	}

	q := f.baseQ * motionProcessNoiseScale(motion)
	r := f.baseR * (1 - confidence0to1 + 1e-3)

	// Predict: x = F x; P = F P F^T + Q.
	F := mat.NewDense(2, 2, []float64{1, dt, 0, 1})
	x := mat.NewVecDense(2, []float64{f.state.DepthM, f.state.VelocityMPerS})
	P := mat.NewDense(2, 2, []float64{
		f.state.Covariance[0][0], f.state.Covariance[0][1],
		f.state.Covariance[1][0], f.state.Covariance[1][1],
	})

	var xPred mat.VecDense
	xPred.MulVec(F, x)

	var FP, FPFt mat.Dense
	FP.Mul(F, P)
	FPFt.Mul(&FP, F.T())
	Q := mat.NewDense(2, 2, []float64{q * dt, 0, 0, q})
	var PPred mat.Dense
	PPred.Add(&FPFt, Q)

	// Update: measure depth only, H = [1, 0].
	innovation := measurementM - xPred.AtVec(0)
	s := PPred.At(0, 0) + r
	if s == 0 {
		s = 1e-9
	}
	k0 := PPred.At(0, 0) / s
	k1 := PPred.At(1, 0) / s

	newDepth := xPred.AtVec(0) + k0*innovation
	newVelocity := xPred.AtVec(1) + k1*innovation

	// P = (I - K H) P_pred
	p00 := (1 - k0) * PPred.At(0, 0)
	p01 := (1 - k0) * PPred.At(0, 1)
	p10 := PPred.At(1, 0) - k1*PPred.At(0, 0)
	p11 := PPred.At(1, 1) - k1*PPred.At(0, 1)

	f.state.DepthM = newDepth
	f.state.VelocityMPerS = newVelocity
	f.state.Covariance = [2][2]float64{{p00, p01}, {p10, p11}}
	f.state.LastUpdateTime = timestampS

	return newDepth
}

func (f *Filter) resetToLocked(measurementM, timestampS float64) {
	f.state = State{
		IsTracking:     true,
		DepthM:         measurementM,
		VelocityMPerS:  0,
		Covariance:     [2][2]float64{{1, 0}, {0, 1}},
		LastUpdateTime: timestampS,
	}
}

// Predict extrapolates depth by velocity*dt without mutating state. It
// returns ok=false when the filter has not yet been initialized by a first
// Update.
func (f *Filter) Predict(atTimestampS float64) (depthM float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.IsTracking {
		return 0, false
	}
	dt := atTimestampS - f.state.LastUpdateTime
	return f.state.DepthM + f.state.VelocityMPerS*dt, true
}

// Reset clears the filter to the untracked state, per any explicit scene
// change or target-priority change (spec.md §4.7 "Reset").
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = State{}
}

// State returns a copy of the filter's current internal state.
func (f *Filter) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// --- Motion-aware smoother ---

// DiscontinuitySchedule maps distance bands to a fractional deviation
// threshold used by the snap test (30%/36%/45%/60%/75%). It is kept as a
// table rather than inline constants, but it is not part of config.Config:
// NewSmoother always installs DefaultDiscontinuitySchedule, and Smoother
// has no way to replace it.
type DiscontinuitySchedule []struct {
	DistanceM float64
	Fraction  float64
}

// DefaultDiscontinuitySchedule returns the module's reference schedule.
func DefaultDiscontinuitySchedule() DiscontinuitySchedule {
	return DiscontinuitySchedule{
		{DistanceM: 0, Fraction: 0.30},
		{DistanceM: 25, Fraction: 0.36},
		{DistanceM: 75, Fraction: 0.45},
		{DistanceM: 150, Fraction: 0.60},
		{DistanceM: 200, Fraction: 0.75},
	}
}

// fractionAt returns the schedule's fraction for a given distance,
// piecewise-constant from the nearest lower breakpoint.
func (s DiscontinuitySchedule) fractionAt(distanceM float64) float64 {
	frac := s[0].Fraction
	for _, band := range s {
		if distanceM >= band.DistanceM {
			frac = band.Fraction
		}
	}
	return frac
}

const ringCapacity = 4

// Smoother is the motion-aware EMA with discontinuity snap described in
// spec.md §4.7.
type Smoother struct {
	mu sync.Mutex

	alphaFloor float64
	schedule   DiscontinuitySchedule

	isInitialized       bool
	smoothedDepthM      float64
	smoothedConfidence  float64
	ring                []float64
}

// NewSmoother creates a Smoother with the configured alpha floor (spec.md
// §6 smoother_alpha_floor) and the default discontinuity schedule.
func NewSmoother(alphaFloor float64) *Smoother {
	return &Smoother{
		alphaFloor: alphaFloor,
		schedule:   DefaultDiscontinuitySchedule(),
		ring:       make([]float64, 0, ringCapacity),
	}
}

// alphaFor picks the EMA weight for (motion, distance): heavier smoothing
// (lower alpha) at long range while stationary, floored at alphaFloor;
// panning stays near 0.6 regardless of distance.
func (sm *Smoother) alphaFor(motion depth.MotionState, distanceM float64) float64 {
	if motion == depth.MotionPanning {
		return 0.6
	}
	base := 0.4
	if motion == depth.MotionStationary {
		// Heavier smoothing the farther out we range, down to the floor.
		decay := 1.0 / (1.0 + distanceM/50.0)
		base = 0.4 * decay
	}
	if base < sm.alphaFloor {
		return sm.alphaFloor
	}
	return base
}

// Apply feeds a new raw (post-Kalman) depth through the smoother, returning
// the stabilized depth and confidence.
func (sm *Smoother) Apply(rawDepthM, rawConfidence0to1 float64, motion depth.MotionState) (smoothedDepthM, smoothedConfidence float64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.pushRingLocked(rawDepthM)

	if !sm.isInitialized {
		sm.isInitialized = true
		sm.smoothedDepthM = rawDepthM
		sm.smoothedConfidence = rawConfidence0to1
		return sm.smoothedDepthM, sm.smoothedConfidence
	}

	if sm.discontinuityLocked(rawDepthM) {
		sm.smoothedDepthM = rawDepthM
		sm.smoothedConfidence = rawConfidence0to1
		return sm.smoothedDepthM, sm.smoothedConfidence
	}

	alpha := sm.alphaFor(motion, rawDepthM)
	sm.smoothedDepthM = alpha*rawDepthM + (1-alpha)*sm.smoothedDepthM
	sm.smoothedConfidence = alpha*rawConfidence0to1 + (1-alpha)*sm.smoothedConfidence
	return sm.smoothedDepthM, sm.smoothedConfidence
}

func (sm *Smoother) pushRingLocked(rawDepthM float64) {
	if len(sm.ring) >= ringCapacity {
		sm.ring = sm.ring[1:]
	}
	sm.ring = append(sm.ring, rawDepthM)
}

// discontinuityLocked implements the snap test: if every buffered raw
// reading sits on the same side of the current smoothed depth by more than
// the distance-scaled threshold, and the buffered readings are themselves
// tightly clustered, the smoother snaps instead of averaging through a
// multi-second tail.
func (sm *Smoother) discontinuityLocked(rawDepthM float64) bool {
	if len(sm.ring) < ringCapacity {
		return false
	}
	threshold := sm.schedule.fractionAt(sm.smoothedDepthM) * sm.smoothedDepthM
	if threshold <= 0 {
		return false
	}

	allAbove, allBelow := true, true
	minV, maxV := sm.ring[0], sm.ring[0]
	for _, v := range sm.ring {
		if v <= sm.smoothedDepthM+threshold {
			allAbove = false
		}
		if v >= sm.smoothedDepthM-threshold {
			allBelow = false
		}
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if !allAbove && !allBelow {
		return false
	}
	spread := maxV - minV
	tightSpread := spread < threshold*0.5
	return tightSpread
}

// Reset clears the smoother to the uninitialized state.
func (sm *Smoother) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.isInitialized = false
	sm.smoothedDepthM = 0
	sm.smoothedConfidence = 0
	sm.ring = sm.ring[:0]
}

// SmoothedDepth returns the current smoothed depth and confidence without
// feeding a new measurement.
func (sm *Smoother) SmoothedDepth() (depthM, confidence float64, initialized bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.smoothedDepthM, sm.smoothedConfidence, sm.isInitialized
}
