// Package terrain — tile store. The LRU over decoded Tiles uses
// container/list, the same stdlib LRU idiom the rest of the pack reaches
// for when no third-party cache library appears in the corpus (see
// DESIGN.md for the justification). Bounded-concurrency tile loads and
// point-query corridor prefetch both use github.com/alitto/pond, grounded
// on sixy6e-go-gsf's cmd/main.go worker-pool usage.
package terrain

import (
	"container/list"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/alitto/pond"

	"github.com/fieldrange/rangefusion/internal/rangelog"
)

// ElevationQuerier is the online point-elevation fallback used when no
// local tile covers a coordinate (spec.md §4.5 "online fallback").
type ElevationQuerier interface {
	Query(ctx context.Context, lat, lon float64) (elevationM float64, ok bool, err error)
}

const (
	maxTileLoadConcurrency  = 3
	maxPointQueryConcurrency = 8
	pointCacheGridDeg       = 0.0009 // ~100m, per spec.md §4.5
)

// Store is the LRU tile cache with an online point-query fallback. All
// public methods are safe for concurrent use; internally it behaves as a
// single serialized resource, the same actor-style shape as the teacher's
// internal/pointcloud.go PointCloud.
type Store struct {
	mu       sync.Mutex
	capacity int
	lru      *list.List
	elements map[string]*list.Element

	baseDir string

	querier    ElevationQuerier
	pointCache map[string]float64

	tileLoadPool  *pond.WorkerPool
	pointQueryPool *pond.WorkerPool
}

type lruEntry struct {
	key  string
	tile *Tile
}

// NewStore creates a Store that loads gzip-compressed tiles from baseDir
// and falls back to querier for points no local tile covers.
func NewStore(baseDir string, capacity int, querier ElevationQuerier) *Store {
	if capacity <= 0 {
		capacity = 12
	}
	return &Store{
		capacity:       capacity,
		lru:            list.New(),
		elements:       make(map[string]*list.Element),
		baseDir:        baseDir,
		querier:        querier,
		pointCache:     make(map[string]float64),
		tileLoadPool:   pond.New(maxTileLoadConcurrency, maxTileLoadConcurrency*4),
		pointQueryPool: pond.New(maxPointQueryConcurrency, maxPointQueryConcurrency*4),
	}
}

// Close releases the store's worker pools.
func (s *Store) Close() {
	s.tileLoadPool.StopAndWait()
	s.pointQueryPool.StopAndWait()
}

// Lookup returns the terrain elevation at (lat, lon), checking the tile
// cache first and the point-query cache second. ok is false if neither has
// coverage; the caller (the ray-caster) treats that as "unknown" and
// neither advances nor fails outright.
func (s *Store) Lookup(lat, lon float64) (elevationM float64, ok bool) {
	key := Key(lat, lon)

	s.mu.Lock()
	if el, found := s.elements[key]; found {
		s.lru.MoveToFront(el)
		tile := el.Value.(*lruEntry).tile
		s.mu.Unlock()
		return tile.Sample(lat, lon)
	}
	s.mu.Unlock()

	if tile, err := s.loadLocal(key); err == nil {
		s.insert(key, tile)
		return tile.Sample(lat, lon)
	}

	s.mu.Lock()
	v, found := s.pointCache[roundKey(lat, lon)]
	s.mu.Unlock()
	return v, found
}

func (s *Store) insert(key string, tile *Tile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, found := s.elements[key]; found {
		s.lru.MoveToFront(el)
		el.Value.(*lruEntry).tile = tile
		return
	}

	el := s.lru.PushFront(&lruEntry{key: key, tile: tile})
	s.elements[key] = el

	for s.lru.Len() > s.capacity {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		s.lru.Remove(oldest)
		delete(s.elements, oldest.Value.(*lruEntry).key)
	}
}

func (s *Store) loadLocal(key string) (*Tile, error) {
	path := filepath.Join(s.baseDir, key+".hgt.gz")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tile %s: %w", key, err)
	}

	baseLatInt, baseLonInt, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	return ParseTile(key, raw, baseLatInt, baseLonInt)
}

func parseKey(key string) (latInt, lonInt int, err error) {
	var latPrefix, lonPrefix byte
	var latVal, lonVal int
	n, scanErr := fmt.Sscanf(key, "%c%02d%c%03d", &latPrefix, &latVal, &lonPrefix, &lonVal)
	if scanErr != nil || n != 4 {
		return 0, 0, fmt.Errorf("malformed tile key %q", key)
	}
	if latPrefix == 'S' {
		latVal = -latVal
	}
	if lonPrefix == 'W' {
		lonVal = -lonVal
	}
	return latVal, lonVal, nil
}

// LoadTiles fetches multiple tiles from the local filesystem under the
// store's bounded tile-load concurrency (max 3), per spec.md §9.
func (s *Store) LoadTiles(keys []string) {
	group := s.tileLoadPool.Group()
	for _, key := range keys {
		key := key
		group.Submit(func() {
			if tile, err := s.loadLocal(key); err == nil {
				s.insert(key, tile)
			} else {
				rangelog.Debugf("terrain: tile %s unavailable locally: %v", key, err)
			}
		})
	}
	group.Wait()
}

func roundKey(lat, lon float64) string {
	round := func(x float64) float64 {
		return math.Round(x/pointCacheGridDeg) * pointCacheGridDeg
	}
	return fmt.Sprintf("%.4f,%.4f", round(lat), round(lon))
}

// PrefetchPoints resolves a batch of (lat, lon) coordinates the ray march
// is about to need, via the online point-query path, under the store's
// bounded point-query concurrency (max 8). Results populate the point
// cache; Lookup then finds them.
func (s *Store) PrefetchPoints(ctx context.Context, coords [][2]float64) {
	if s.querier == nil {
		return
	}
	group := s.pointQueryPool.Group()
	for _, c := range coords {
		lat, lon := c[0], c[1]
		rk := roundKey(lat, lon)

		s.mu.Lock()
		_, already := s.pointCache[rk]
		s.mu.Unlock()
		if already {
			continue
		}

		group.Submit(func() {
			elev, ok, err := s.querier.Query(ctx, lat, lon)
			if err != nil || !ok {
				return
			}
			s.mu.Lock()
			s.pointCache[rk] = elev
			s.mu.Unlock()
		})
	}
	group.Wait()
}

// HasLocalCoverage reports whether a tile for (lat, lon) is already cached
// or present on disk, without triggering an online query.
func (s *Store) HasLocalCoverage(lat, lon float64) bool {
	key := Key(lat, lon)
	s.mu.Lock()
	_, found := s.elements[key]
	s.mu.Unlock()
	if found {
		return true
	}
	_, err := os.Stat(filepath.Join(s.baseDir, key+".hgt.gz"))
	return err == nil
}
