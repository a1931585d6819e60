// Package motion implements the motion/attitude gate of spec.md §4.8: a
// single-writer struct fed by the 60 Hz attitude producer and read as a
// consistent per-frame snapshot by the per-frame core. This mirrors the
// teacher's DataAcquisition/Synchronizer split (internal/acquisition.go,
// internal/synchronization.go) — a producer goroutine feeding a
// mutex-guarded struct that a separate consumer drains without torn reads —
// generalized from "simulate ticking IMUs" to "classify attitude samples."
package motion

import (
	"math"
	"sync"

	"github.com/fieldrange/rangefusion/internal/depth"
)

// Thresholds are the two angular-velocity cut points that separate
// Stationary / Tracking / Panning. Spec.md §9 leaves the exact values
// unspecified ("should be tuned empirically; any monotone two-threshold
// classifier is conformant") — these are the module defaults.
type Thresholds struct {
	StationaryRadPerS float64
	PanningRadPerS    float64
}

// DefaultThresholds returns the module's reference thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{StationaryRadPerS: 0.05, PanningRadPerS: 0.6}
}

// Classify assigns a MotionState from angular-velocity magnitude.
func (t Thresholds) Classify(angularVelocityMagnitudeRadPerS float64) depth.MotionState {
	switch {
	case angularVelocityMagnitudeRadPerS < t.StationaryRadPerS:
		return depth.MotionStationary
	case angularVelocityMagnitudeRadPerS > t.PanningRadPerS:
		return depth.MotionPanning
	default:
		return depth.MotionTracking
	}
}

// Sample is one attitude reading from the 60 Hz producer (spec.md §6).
type Sample struct {
	TimestampS        float64
	PitchRad          float64
	HeadingDegTrue    float64
	AngularVelocity   [3]float64 // roll, pitch, yaw rad/s
}

func angularVelocityMagnitude(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Gate is the single-writer/many-reader store of the latest attitude
// snapshot. Snapshot is atomic with respect to Update: readers never see a
// torn mixture of motion state, pitch, and heading from different samples.
type Gate struct {
	thresholds Thresholds

	mu       sync.RWMutex
	snapshot Snapshot
}

// Snapshot is a consistent view of the device's current motion state.
type Snapshot struct {
	Motion         depth.MotionState
	PitchRad       float64
	HeadingDegTrue float64
	TimestampS     float64
}

// New creates a Gate with the given classification thresholds.
func New(t Thresholds) *Gate {
	return &Gate{thresholds: t}
}

// Update is called by the high-frequency attitude producer. It classifies
// the sample and publishes a new snapshot atomically.
func (g *Gate) Update(s Sample) {
	motion := g.thresholds.Classify(angularVelocityMagnitude(s.AngularVelocity))
	snap := Snapshot{
		Motion:         motion,
		PitchRad:       s.PitchRad,
		HeadingDegTrue: s.HeadingDegTrue,
		TimestampS:     s.TimestampS,
	}
	g.mu.Lock()
	g.snapshot = snap
	g.mu.Unlock()
}

// Snapshot returns the latest published attitude snapshot. Safe to call
// concurrently with Update.
func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshot
}
