package ingest

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldrange/rangefusion/internal/depth"
)

func TestPoolForFrameKeepsOnlyFreshReadings(t *testing.T) {
	s := NewSynchronizer()
	s.AddReading(depth.SourceLidar, depth.SourceEstimate{DistanceM: 5, Weight: 1, Source: depth.SourceLidar}, 10)
	s.AddReading(depth.SourceNeural, depth.SourceEstimate{DistanceM: 40, Weight: 1, Source: depth.SourceNeural}, 5)

	pool := s.PoolForFrame(10.2, 1.0)
	if len(pool) != 1 || pool[0].Source != depth.SourceLidar {
		t.Errorf("pool = %+v, want only the fresh LiDAR reading", pool)
	}
}

func TestAddReadingOverwritesSameSource(t *testing.T) {
	s := NewSynchronizer()
	s.AddReading(depth.SourceLidar, depth.SourceEstimate{DistanceM: 5, Weight: 1, Source: depth.SourceLidar}, 1)
	s.AddReading(depth.SourceLidar, depth.SourceEstimate{DistanceM: 6, Weight: 1, Source: depth.SourceLidar}, 2)

	pool := s.PoolForFrame(2, 1.0)
	if len(pool) != 1 || pool[0].DistanceM != 6 {
		t.Errorf("pool = %+v, want a single overwritten reading of distance 6", pool)
	}
}

func TestClearDiscardsAllReadings(t *testing.T) {
	s := NewSynchronizer()
	s.AddReading(depth.SourceLidar, depth.SourceEstimate{DistanceM: 5, Weight: 1}, 1)
	s.Clear()
	if pool := s.PoolForFrame(1, 100); len(pool) != 0 {
		t.Errorf("expected an empty pool after Clear, got %+v", pool)
	}
}

func TestProducerFeedsSynchronizer(t *testing.T) {
	s := NewSynchronizer()
	var calls int32
	poll := func() (depth.SourceEstimate, float64, bool) {
		n := atomic.AddInt32(&calls, 1)
		return depth.SourceEstimate{DistanceM: float64(n), Weight: 1, Source: depth.SourceNeural}, float64(n), true
	}
	p := NewProducer(depth.SourceNeural, poll, 5*time.Millisecond, s)
	p.Start()
	time.Sleep(40 * time.Millisecond)
	p.Stop()

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("expected the producer to poll at least once")
	}
	pool := s.PoolForFrame(1000, 1000)
	if len(pool) != 1 {
		t.Fatalf("expected one synchronized reading, got %d", len(pool))
	}
}

func TestProducerSkipsReadingsWhenPollReturnsNotOk(t *testing.T) {
	s := NewSynchronizer()
	poll := func() (depth.SourceEstimate, float64, bool) {
		return depth.SourceEstimate{}, 0, false
	}
	p := NewProducer(depth.SourceLidar, poll, 5*time.Millisecond, s)
	p.Start()
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	if pool := s.PoolForFrame(1000, 1000); len(pool) != 0 {
		t.Errorf("expected no readings when poll always reports not-ok, got %+v", pool)
	}
}
