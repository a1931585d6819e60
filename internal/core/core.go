// Package core wires the per-frame pipeline of spec.md §2/§5: the fusion
// core owns the calibrator, Kalman filter, smoother, outlier buffer, and
// semantic selector, and drives them through motion gate → calibration →
// source pool → selection → temporal stabilization → decoration each
// frame. Grounded on the teacher's internal/imu_fusion_system.go
// (IMUFusionSystem), generalized from its always-running
// processDataLoop goroutine into a single-in-flight-frame call the host
// application drives directly — the concurrency model spec.md §5
// specifies ("at most one frame in flight; incoming frames arriving while
// the previous is still processing are silently dropped").
package core

import (
	"context"
	"sync/atomic"

	"github.com/fieldrange/rangefusion/internal/bimodal"
	"github.com/fieldrange/rangefusion/internal/calibrate"
	"github.com/fieldrange/rangefusion/internal/config"
	"github.com/fieldrange/rangefusion/internal/depth"
	"github.com/fieldrange/rangefusion/internal/inclination"
	"github.com/fieldrange/rangefusion/internal/kalman"
	"github.com/fieldrange/rangefusion/internal/motion"
	"github.com/fieldrange/rangefusion/internal/outlier"
	"github.com/fieldrange/rangefusion/internal/rangelog"
	"github.com/fieldrange/rangefusion/internal/targetselect"
	"github.com/fieldrange/rangefusion/internal/terrain"
)

// Core is the per-frame fusion pipeline. One Core serves one rangefinder
// device; it is not safe to call ProcessFrame concurrently from multiple
// goroutines (the single-in-flight-frame guard assumes a single caller),
// but Motion.Update may run concurrently from an independent producer.
type Core struct {
	cfg config.Config

	Motion      *motion.Gate
	Calibrator  *calibrate.Calibrator
	Kalman      *kalman.Filter
	Smoother    *kalman.Smoother
	OutlierBuf  *outlier.Buffer
	DemCaster   *terrain.Caster // borrowed; may be nil if no terrain store is configured
	bimodalCfg  bimodal.Config

	priority      atomic.Int32
	manualBracket atomic.Value // stores *depth.SourceEstimate
	busy          atomic.Bool
}

// New creates a Core from cfg. demCaster may be nil when no tile store is
// configured (terrain stays permanently unavailable but every other
// source still works, per spec.md §7 graceful-degradation).
func New(cfg config.Config, demCaster *terrain.Caster) *Core {
	c := &Core{
		cfg:        cfg,
		Motion:     motion.New(motion.DefaultThresholds()),
		Calibrator: calibrate.New(cfg.CalibratorMaxSamples),
		Kalman:     kalman.New(cfg.KalmanBaseQ, cfg.KalmanBaseR),
		Smoother:   kalman.NewSmoother(cfg.SmootherAlphaFloor),
		OutlierBuf: outlier.New(8),
		DemCaster:  demCaster,
		bimodalCfg: bimodal.DefaultConfig(),
	}
	c.priority.Store(int32(cfg.TargetPriority()))
	return c
}

// SetTargetPriority changes the Near/Far operator preference and clears
// the outlier buffer + resets the Kalman/smoother so the new priority can
// take effect immediately, per spec.md §4.12 ("a mode change... clears
// the ring to allow immediate transition").
func (c *Core) SetTargetPriority(p depth.TargetPriority) {
	if depth.TargetPriority(c.priority.Load()) == p {
		return
	}
	c.priority.Store(int32(p))
	c.OutlierBuf.Clear()
	c.Kalman.Reset()
	c.Smoother.Reset()
}

// SetManualBracket installs or clears (pass nil) an operator stadiametric
// bracket, pre-empting every other source per spec.md §4.11.
func (c *Core) SetManualBracket(e *depth.SourceEstimate) {
	if e == nil {
		c.manualBracket.Store((*depth.SourceEstimate)(nil))
		c.OutlierBuf.Clear()
		return
	}
	c.manualBracket.Store(e)
	c.OutlierBuf.Clear()
}

func (c *Core) currentManualBracket() *depth.SourceEstimate {
	v, _ := c.manualBracket.Load().(*depth.SourceEstimate)
	return v
}

// FrameInput is everything a single frame needs to produce a stabilized
// reading.
type FrameInput struct {
	TimestampS float64

	// Raw source readings for this frame; any that were unavailable are
	// simply omitted from Pool. Pool entries other than the neural source
	// should already carry their confidence-weighted Weight — Core applies
	// the calibrator itself to the neural entry, if present.
	Pool []depth.SourceEstimate

	BimodalRoi bimodal.Roi

	Observer        *terrain.Observer // nil if GPS/attitude unavailable this frame
	CalibrationFeed *depth.CalibrationSample
}

// ProcessFrame runs one frame through the pipeline. accepted is false when
// a frame was already in flight and this one was dropped, per the
// single-in-flight-frame concurrency model.
func (c *Core) ProcessFrame(ctx context.Context, in FrameInput) (depth.FusedDepth, bool) {
	if !c.busy.CompareAndSwap(false, true) {
		return depth.FusedDepth{}, false
	}
	defer c.busy.Store(false)

	if in.CalibrationFeed != nil {
		if !c.Calibrator.Ingest(*in.CalibrationFeed) {
			rangelog.Debugf("core: rejected calibration sample at t=%.3f", in.CalibrationFeed.TimestampS)
		}
	}

	pool := c.applyCalibration(in.Pool, in.TimestampS)

	var demEstimate *depth.DemEstimate
	if c.DemCaster != nil && in.Observer != nil {
		demEstimate = c.DemCaster.Cast(ctx, *in.Observer)
		if demEstimate != nil {
			pool = append(pool, depth.SourceEstimate{
				DistanceM: demEstimate.DistanceM,
				Weight:    demEstimate.Confidence0to1,
				Source:    depth.SourceDemRaycast,
			})
		}
	}

	motionSnap := c.Motion.Snapshot()
	bimodalResult := bimodal.Analyze(in.BimodalRoi, c.bimodalCfg, demEstimate)

	var lidarReadingM float64
	for _, e := range pool {
		if e.Source == depth.SourceLidar {
			lidarReadingM = e.DistanceM
		}
	}

	selection := targetselect.Select(targetselect.Input{
		ManualBracket: c.currentManualBracket(),
		Pool:          pool,
		Dem:           demEstimate,
		Bimodal:       bimodalResult,
		Priority:      depth.TargetPriority(c.priority.Load()),
		LidarReadingM: lidarReadingM,
		TimestampS:    in.TimestampS,
	})

	stabilized := c.stabilize(selection.Primary, motionSnap.Motion, in.TimestampS)
	stabilized = c.decorate(stabilized, motionSnap.PitchRad)
	stabilized = c.suppressUnjustifiedJump(stabilized)

	c.OutlierBuf.Push(stabilized)
	return stabilized, true
}

// suppressUnjustifiedJump consults the outlier buffer's recent history and
// holds fd at the last known distance when it is both a large single-frame
// jump (OutlierRatioThreshold) and an unjustified one — the primary source
// hasn't changed, so nothing explains the sudden move (spec.md §4.12: "the
// selector consults it to suppress large single-frame jumps when no source
// transition is justified").
func (c *Core) suppressUnjustifiedJump(fd depth.FusedDepth) depth.FusedDepth {
	if !fd.Valid() {
		return fd
	}

	recent := c.OutlierBuf.Recent()
	if len(recent) == 0 {
		return fd
	}

	last := recent[len(recent)-1]
	if last.Primary != fd.Primary {
		return fd // a source transition justifies the move
	}
	if !c.OutlierBuf.IsJump(fd.DistanceM, c.cfg.OutlierRatioThreshold) {
		return fd
	}

	fd.DistanceM = last.DistanceM
	fd.UncertaintyM = last.UncertaintyM
	return fd
}

// applyCalibration replaces the neural entry's distance with the
// calibrator's corrected value and attenuates its weight by calibration
// quality (spec.md §4.10).
func (c *Core) applyCalibration(pool []depth.SourceEstimate, timestampS float64) []depth.SourceEstimate {
	out := make([]depth.SourceEstimate, len(pool))
	copy(out, pool)
	for i, e := range out {
		if e.Source != depth.SourceNeural {
			continue
		}
		calibrated := c.Calibrator.Calibrate(e.DistanceM)
		quality := c.Calibrator.Confidence(timestampS)
		out[i].DistanceM = calibrated
		out[i].Weight = e.Weight * quality
	}
	return out
}

// stabilize feeds the selector's output through the Kalman filter and the
// motion-aware smoother, unless the selector already short-circuited on a
// manual bracket (in which case stabilization is skipped — the operator's
// own distance is authoritative, per spec.md §4.11).
func (c *Core) stabilize(fd depth.FusedDepth, motionState depth.MotionState, timestampS float64) depth.FusedDepth {
	if !fd.Valid() {
		return fd
	}
	if fd.Primary == depth.SourceStadiametric {
		return fd
	}

	kalmanDepth := c.Kalman.Update(fd.DistanceM, fd.Confidence0to1, motionState, timestampS)
	smoothedDepth, smoothedConfidence := c.Smoother.Apply(kalmanDepth, fd.Confidence0to1, motionState)

	fd.DistanceM = smoothedDepth
	fd.Confidence0to1 = smoothedConfidence
	return fd
}

// decorate applies the cosine/inclination correction (spec.md §4.9) to the
// stabilized line-of-sight distance.
func (c *Core) decorate(fd depth.FusedDepth, pitchRad float64) depth.FusedDepth {
	if !fd.Valid() {
		return fd
	}
	horizontalM, _ := inclination.Correct(fd.DistanceM, pitchRad, c.cfg.CosineDeadbandRad)
	fd.DistanceM = horizontalM
	return fd
}
