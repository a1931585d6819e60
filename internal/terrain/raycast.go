// Ray-caster: marches an observer's line of sight through the tile store
// to find where it crosses terrain, preferring the farthest significant
// crossing over nearer ones (spec.md §4.4). The
// farthest-significant-intersection tie-break uses
// github.com/kyroy/priority-queue, the teacher's own ranking-structure
// habit (internal/pointcloud.go reaches for a spatial index from the same
// author's kdtree package for nearest-neighbor ranking) — generalized here
// from point ranking to candidate-intersection ranking.
package terrain

import (
	"context"
	"math"
	"sync"

	priorityqueue "github.com/kyroy/priority-queue"

	"github.com/fieldrange/rangefusion/internal/confidence"
	"github.com/fieldrange/rangefusion/internal/depth"
)

const (
	metersPerDegLat = 111320.0

	maxCastRangeM      = 2000.0
	marchStepM         = 30.0
	significantRiseM   = 30.0
	maxUpwardPitchRad  = 30.0 * math.Pi / 180.0
	maxHorizAccuracyM  = 100.0
	minCastIntervalS   = 0.5
	headingRateLimitDeg = 1.0
	pitchRateLimitRad  = 0.5 * math.Pi / 180.0
)

// Observer is the caster's input pose, per spec.md §4.4 "Inputs".
type Observer struct {
	LatDeg            float64
	LonDeg            float64
	AltitudeM         float64
	PitchRad          float64 // positive = above horizontal
	HeadingDeg        float64 // true north, clockwise
	HorizontalAccM    float64
	VerticalAccM      float64
	HeadingAccuracyDeg float64
	TimestampS        float64
}

// Caster marches observer lines of sight through a Store. It is
// rate-limited internally (spec.md §5): repeated casts within the same
// pose, inside the configured interval, return the cached result instead
// of re-marching.
type Caster struct {
	store *Store

	mu         sync.Mutex
	lastResult *depth.DemEstimate
	lastPose   Observer
	hasLast    bool
}

// NewCaster creates a Caster over the given tile store.
func NewCaster(store *Store) *Caster {
	return &Caster{store: store}
}

// Cast casts a ray from obs and returns the farthest significant terrain
// intersection (or, when no crossing is significant, the nearest one), or
// nil if none is found within range, GPS accuracy is too
// poor, or the observer is pitched too far upward to plausibly hit
// terrain.
func (c *Caster) Cast(ctx context.Context, obs Observer) *depth.DemEstimate {
	if obs.PitchRad > maxUpwardPitchRad {
		return nil
	}
	if obs.HorizontalAccM >= maxHorizAccuracyM {
		return nil
	}

	c.mu.Lock()
	if c.hasLast && c.withinRateLimitLocked(obs) {
		cached := c.lastResult
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	result := c.castOnce(ctx, obs)

	c.mu.Lock()
	c.lastResult = result
	c.lastPose = obs
	c.hasLast = true
	c.mu.Unlock()

	return result
}

func (c *Caster) withinRateLimitLocked(obs Observer) bool {
	if obs.TimestampS-c.lastPose.TimestampS >= minCastIntervalS {
		return false
	}
	if math.Abs(obs.HeadingDeg-c.lastPose.HeadingDeg) >= headingRateLimitDeg {
		return false
	}
	if math.Abs(obs.PitchRad-c.lastPose.PitchRad) >= pitchRateLimitRad {
		return false
	}
	return true
}

type candidate struct {
	distanceM   float64
	terrainM    float64
	tAbove      float64
	tBelow      float64
	significant bool
}

func (c *Caster) castOnce(ctx context.Context, obs Observer) *depth.DemEstimate {
	observerTerrainM, haveObserverTerrain := c.store.Lookup(obs.LatDeg, obs.LonDeg)

	altitudeM := obs.AltitudeM
	if haveObserverTerrain && altitudeM <= observerTerrainM {
		altitudeM = observerTerrainM + 2.0 // snap to eye height above ground
	}

	headingRad := obs.HeadingDeg * math.Pi / 180.0
	pitchBelowHorizonRad := -obs.PitchRad

	dEast := math.Sin(headingRad) * math.Cos(pitchBelowHorizonRad)
	dNorth := math.Cos(headingRad) * math.Cos(pitchBelowHorizonRad)
	dUp := -math.Sin(pitchBelowHorizonRad)

	cosLat := math.Cos(obs.LatDeg * math.Pi / 180.0)
	metersPerDegLon := metersPerDegLat * cosLat
	if math.Abs(metersPerDegLon) < 1.0 {
		metersPerDegLon = 1.0
	}

	if !c.store.HasLocalCoverage(obs.LatDeg, obs.LonDeg) {
		c.store.PrefetchPoints(ctx, corridorCoords(obs, dEast, dNorth, metersPerDegLon))
	}

	// observerBaseTerrain is the ground elevation directly under the
	// observer (spec.md §4.4's "observer_base_terrain"), the baseline a
	// hit's rise is measured against — not the observer's eye/flight
	// altitude, which can sit arbitrarily far above local ground.
	observerBaseTerrain := altitudeM
	if haveObserverTerrain {
		observerBaseTerrain = observerTerrainM
	}

	candidates := c.march(obs, altitudeM, observerBaseTerrain, dEast, dNorth, dUp, metersPerDegLon)
	if len(candidates) == 0 {
		return nil
	}

	winner := pickWinner(candidates)
	if winner == nil {
		return nil
	}

	refinedT, refinedElev := c.bisect(obs, altitudeM, dEast, dNorth, dUp, metersPerDegLon, winner.tAbove, winner.tBelow)
	hitLat := obs.LatDeg + (dNorth*refinedT)/metersPerDegLat
	hitLon := obs.LonDeg + (dEast*refinedT)/metersPerDegLon

	return &depth.DemEstimate{
		DistanceM:              refinedT,
		Confidence0to1:         confidence.Dem(refinedT, obs.HorizontalAccM, obs.VerticalAccM, obs.HeadingAccuracyDeg, 0, maxCastRangeM),
		TerrainElevationM:      refinedElev,
		HeadingDegTrueNorth:    obs.HeadingDeg,
		HorizontalGPSAccuracyM: obs.HorizontalAccM,
		HitLat:                 hitLat,
		HitLon:                 hitLon,
	}
}

func (c *Caster) march(obs Observer, altitudeM, observerBaseTerrain, dEast, dNorth, dUp, metersPerDegLon float64) []candidate {
	var candidates []candidate

	var lastAbove bool
	var lastT float64
	haveLast := false

	for t := marchStepM; t <= maxCastRangeM; t += marchStepM {
		lat := obs.LatDeg + (dNorth*t)/metersPerDegLat
		lon := obs.LonDeg + (dEast*t)/metersPerDegLon
		rayAlt := altitudeM + dUp*t

		terrainM, ok := c.store.Lookup(lat, lon)
		if !ok {
			haveLast = false
			continue
		}

		above := rayAlt > terrainM
		if haveLast && lastAbove && !above {
			rise := terrainM - observerBaseTerrain
			candidates = append(candidates, candidate{
				distanceM:   t,
				terrainM:    terrainM,
				tAbove:      lastT,
				tBelow:      t,
				significant: rise > significantRiseM,
			})
		}
		lastAbove = above
		lastT = t
		haveLast = true
	}

	return candidates
}

// pickWinner selects the farthest significant crossing if any exists,
// otherwise the first (nearest) non-significant crossing, via a priority
// queue ranking significant crossings above non-significant ones and, among
// each, breaking ties by distance in the right direction.
func pickWinner(candidates []candidate) *candidate {
	if len(candidates) == 0 {
		return nil
	}

	pq := priorityqueue.New()
	for i, cand := range candidates {
		priority := -cand.distanceM
		if cand.significant {
			priority = 1e9 + cand.distanceM
		}
		pq.Insert(i, priority)
	}

	item := pq.PopHighest()
	if item == nil {
		return &candidates[0]
	}
	idx, ok := item.Value.(int)
	if !ok || idx < 0 || idx >= len(candidates) {
		return &candidates[0]
	}
	return &candidates[idx]
}

// bisect refines the above/below crossing to within ~1m using 5 bisection
// iterations.
func (c *Caster) bisect(obs Observer, altitudeM, dEast, dNorth, dUp, metersPerDegLon, tLo, tHi float64) (distanceM, elevationM float64) {
	const iterations = 5

	sampleAt := func(t float64) (rayAlt, terrainM float64, ok bool) {
		lat := obs.LatDeg + (dNorth*t)/metersPerDegLat
		lon := obs.LonDeg + (dEast*t)/metersPerDegLon
		terrainM, ok = c.store.Lookup(lat, lon)
		return altitudeM + dUp*t, terrainM, ok
	}

	for i := 0; i < iterations; i++ {
		mid := (tLo + tHi) / 2
		rayAlt, terrainM, ok := sampleAt(mid)
		if !ok {
			break
		}
		if rayAlt > terrainM {
			tLo = mid
		} else {
			tHi = mid
			elevationM = terrainM
		}
	}

	final := (tLo + tHi) / 2
	if _, terrainM, ok := sampleAt(final); ok {
		elevationM = terrainM
	}
	return final, elevationM
}

// corridorCoords enumerates the distinct ~100m grid cells the march will
// sample, for bounded-concurrency online prefetch ahead of the march
// itself (spec.md §4.4 "Pre-fetch").
func corridorCoords(obs Observer, dEast, dNorth, metersPerDegLon float64) [][2]float64 {
	seen := make(map[string]bool)
	var coords [][2]float64
	for t := marchStepM; t <= maxCastRangeM; t += marchStepM {
		lat := obs.LatDeg + (dNorth*t)/metersPerDegLat
		lon := obs.LonDeg + (dEast*t)/metersPerDegLon
		key := roundKey(lat, lon)
		if seen[key] {
			continue
		}
		seen[key] = true
		coords = append(coords, [2]float64{lat, lon})
	}
	return coords
}
