package terrain

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestTile(t *testing.T, dir, key string, elevation int16) {
	t.Helper()
	raw := flatTileBytes(elevation)
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, key+".hgt.gz"), gz.Bytes(), 0o644); err != nil {
		t.Fatalf("write tile file: %v", err)
	}
}

func TestStoreLookupLoadsLocalTile(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "N37W123", 42)

	s := NewStore(dir, 4, nil)
	defer s.Close()

	elev, ok := s.Lookup(37.5, -122.5)
	if !ok {
		t.Fatalf("expected local tile coverage")
	}
	if elev != 42 {
		t.Errorf("elevation = %v, want 42", elev)
	}
}

func TestStoreLookupFallsBackToPointCache(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 4, nil)
	defer s.Close()

	s.mu.Lock()
	s.pointCache[roundKey(10, 20)] = 99
	s.mu.Unlock()

	elev, ok := s.Lookup(10, 20)
	if !ok || elev != 99 {
		t.Errorf("Lookup = (%v, %v), want (99, true)", elev, ok)
	}
}

func TestStoreLookupNoCoverage(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 4, nil)
	defer s.Close()

	_, ok := s.Lookup(51, -1)
	if ok {
		t.Errorf("expected no coverage for an unregistered tile and empty point cache")
	}
}

func TestStoreLRUEvictsOldestTile(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "N00E000", 1)
	writeTestTile(t, dir, "N01E000", 2)
	writeTestTile(t, dir, "N02E000", 3)

	s := NewStore(dir, 2, nil)
	defer s.Close()

	s.Lookup(0.5, 0.5)
	s.Lookup(1.5, 0.5)
	s.Lookup(2.5, 0.5) // should evict N00E000, the least recently used

	s.mu.Lock()
	_, stillCached := s.elements["N00E000"]
	s.mu.Unlock()
	if stillCached {
		t.Errorf("expected N00E000 evicted once capacity exceeded")
	}
}

func TestStoreHasLocalCoverage(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "N37W123", 1)
	s := NewStore(dir, 4, nil)
	defer s.Close()

	if !s.HasLocalCoverage(37.5, -122.5) {
		t.Errorf("expected local coverage for a tile on disk")
	}
	if s.HasLocalCoverage(51, -1) {
		t.Errorf("expected no coverage for an absent tile")
	}
}

type fakeQuerier struct {
	elevationM float64
}

func (f fakeQuerier) Query(ctx context.Context, lat, lon float64) (float64, bool, error) {
	return f.elevationM, true, nil
}

func TestStorePrefetchPointsPopulatesCache(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 4, fakeQuerier{elevationM: 123})
	defer s.Close()

	s.PrefetchPoints(context.Background(), [][2]float64{{10, 20}})

	elev, ok := s.Lookup(10, 20)
	if !ok || elev != 123 {
		t.Errorf("Lookup after prefetch = (%v, %v), want (123, true)", elev, ok)
	}
}
