// Package ingest assembles the per-frame source pool from independent,
// asynchronously-arriving sensor producers. Grounded on the teacher's
// internal/acquisition.go (DataAcquisition: one goroutine per producer,
// ticking at its own rate) and internal/synchronization.go (Synchronizer:
// a mutex-guarded map draining into aligned frames) — generalized from
// "wait for an exact timestamp match across a fixed IMU count" (the
// teacher's simulated IMUs all tick in lockstep) to "take the latest
// reading per source that is still fresh enough to trust," since neural
// inference, LiDAR, and object detection never share a clock tick in this
// domain.
package ingest

import (
	"sync"
	"time"

	"github.com/fieldrange/rangefusion/internal/depth"
)

// reading is one source's latest estimate, timestamped at arrival.
type reading struct {
	estimate   depth.SourceEstimate
	timestampS float64
}

// Synchronizer holds the latest reading per source and assembles a
// per-frame pool from whichever of them are still fresh.
type Synchronizer struct {
	mu      sync.Mutex
	latest  map[depth.SourceTag]reading
}

// NewSynchronizer creates an empty Synchronizer.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{latest: make(map[depth.SourceTag]reading)}
}

// AddReading records source's newest estimate. A source that reports
// repeatedly before the frame core reads it simply overwrites its own
// entry — only the latest reading per source is ever kept, matching the
// "pool is assembled fresh every frame" model of spec.md §2.
func (s *Synchronizer) AddReading(source depth.SourceTag, estimate depth.SourceEstimate, timestampS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[source] = reading{estimate: estimate, timestampS: timestampS}
}

// PoolForFrame returns every source reading still within maxAgeS of nowS,
// replacing the teacher's "wait for every IMU to report the exact same
// timestamp" with a tolerance window appropriate to sensors that free-run
// at different rates.
func (s *Synchronizer) PoolForFrame(nowS, maxAgeS float64) []depth.SourceEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := make([]depth.SourceEstimate, 0, len(s.latest))
	for _, r := range s.latest {
		if nowS-r.timestampS <= maxAgeS {
			pool = append(pool, r.estimate)
		}
	}
	return pool
}

// Clear discards all buffered readings, used on a mode change where stale
// cross-source state should not bleed into the next frame.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = make(map[depth.SourceTag]reading)
}

// PollFunc produces one source reading, or ok=false when the sensor has
// nothing new to report this tick.
type PollFunc func() (estimate depth.SourceEstimate, timestampS float64, ok bool)

// Producer drives one sensor's PollFunc on its own ticker and feeds results
// into a Synchronizer, mirroring the teacher's one-goroutine-per-IMU
// acquisition loop but polling a real sensor callback instead of
// fabricating zeroed data.
type Producer struct {
	source       depth.SourceTag
	poll         PollFunc
	interval     time.Duration
	synchronizer *Synchronizer

	stopCh chan struct{}
	stopWg sync.WaitGroup
}

// NewProducer creates a Producer for source, polling poll every interval
// and feeding readings into synchronizer.
func NewProducer(source depth.SourceTag, poll PollFunc, interval time.Duration, synchronizer *Synchronizer) *Producer {
	return &Producer{
		source:       source,
		poll:         poll,
		interval:     interval,
		synchronizer: synchronizer,
		stopCh:       make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (p *Producer) Start() {
	p.stopWg.Add(1)
	go func() {
		defer p.stopWg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if estimate, timestampS, ok := p.poll(); ok {
					p.synchronizer.AddReading(p.source, estimate, timestampS)
				}
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Stop signals the polling goroutine to exit and waits for it to do so.
func (p *Producer) Stop() {
	close(p.stopCh)
	p.stopWg.Wait()
}
