// Package outlier implements the bounded ring of recent fused outputs from
// spec.md §4.12, grounded on the teacher's mutex-guarded bounded-slice idiom
// in internal/pointcloud.go (PointCloud.points / Clear).
package outlier

import (
	"sync"

	"github.com/fieldrange/rangefusion/internal/depth"
)

// Buffer is a short-horizon ring of recent fused outputs, consulted by the
// per-frame core (core.Core) to suppress single-frame jumps when no source
// transition justifies one.
type Buffer struct {
	mu       sync.Mutex
	history  []depth.FusedDepth
	capacity int
}

// New creates a Buffer holding at most capacity recent outputs.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		history:  make([]depth.FusedDepth, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a new fused output, evicting the oldest entry once capacity
// is reached.
func (b *Buffer) Push(fd depth.FusedDepth) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) >= b.capacity {
		b.history = b.history[1:]
	}
	b.history = append(b.history, fd)
}

// Recent returns a copy of the buffered history, oldest first.
func (b *Buffer) Recent() []depth.FusedDepth {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]depth.FusedDepth, len(b.history))
	copy(out, b.history)
	return out
}

// Clear empties the ring. Called on any mode change (target priority flip,
// manual/auto switch) so the selector can transition immediately instead of
// fighting stale history (spec.md §4.12).
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = b.history[:0]
}

// IsJump reports whether candidate deviates from the most recent buffered
// output by more than ratioThreshold (older entries are not consulted) — a
// guard the caller can use before accepting a suspicious single-frame
// change.
func (b *Buffer) IsJump(candidateM, ratioThreshold float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == 0 || candidateM <= 0 {
		return false
	}
	last := b.history[len(b.history)-1].DistanceM
	if last <= 0 {
		return false
	}
	ratio := candidateM / last
	if ratio < 1 {
		ratio = 1 / ratio
	}
	return ratio > ratioThreshold
}
