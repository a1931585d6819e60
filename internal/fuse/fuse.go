// Package fuse implements the per-frame depth combination step of spec.md
// §4.1: an 8-step contract over the pool of per-source estimates —
// gating, DEM-primary short-circuit, DEM-dominance suppression, outlier
// rejection by median ratio, weighted mean/median combination, two-source
// disagreement penalty, confidence normalization, and fail-closed on an
// empty pool. The weighted-median step uses gonum.org/v1/gonum/stat.
// Quantile (stat.Empirical matches the spec's "smallest distance whose
// cumulative weight reaches S/2" definition exactly), grounded on the
// pack's temcen-pirex multimodal fusion service
// (other_examples/.../multimodal_fusion.go.go), which already leans on
// gonum/stat for weighted statistics over heterogeneous sensor estimates.
package fuse

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fieldrange/rangefusion/internal/depth"
)

// gatingBand is a source's valid activation distance range (spec.md §4.1
// step 1).
type gatingBand struct {
	minM, maxM float64
}

var gatingBands = map[depth.SourceTag]gatingBand{
	depth.SourceLidar:      {0.3, 10},
	depth.SourceGeometric:  {5, 800},
	depth.SourceDemRaycast: {20, 1e9},
	depth.SourceObject:     {0.5, 1e9},
}

// NeuralHardCapM is the neural source's configured hard cap (spec.md §9
// resolves the 50 m vs 150 m ambiguity in favor of 150 m, the value spec.md
// itself names explicitly).
const NeuralHardCapM = 150.0

// normalizerPoint is one breakpoint of the distance-banded expected-maximum
// table used by confidence normalization (spec.md §4.1 step 7: "rising to
// ~2.2 near 100 m, falling to ~0.95 at 1000+ m").
type normalizerPoint struct {
	distanceM float64
	value     float64
}

var normalizerTable = []normalizerPoint{
	{0, 1.0},
	{20, 1.0},
	{50, 1.3},
	{100, 2.2},
	{150, 1.9},
	{300, 1.5},
	{600, 1.15},
	{1000, 0.95},
	{2000, 0.95},
}

func distanceNormalizer(distanceM float64) float64 {
	pts := normalizerTable
	if distanceM <= pts[0].distanceM {
		return pts[0].value
	}
	for i := 1; i < len(pts); i++ {
		if distanceM <= pts[i].distanceM {
			lo, hi := pts[i-1], pts[i]
			t := (distanceM - lo.distanceM) / (hi.distanceM - lo.distanceM)
			return lo.value + t*(hi.value-lo.value)
		}
	}
	return pts[len(pts)-1].value
}

// zeroThreshold is the DEM-disagreement ratio beyond which a disagreeing
// source is zeroed outright rather than merely down-weighted.
func zeroThreshold(demDistanceM float64) float64 {
	if demDistanceM > 200 {
		return 2.0
	}
	return 2.5
}

// estimate is a mutable working copy of a SourceEstimate: steps 3-4 zero or
// scale Weight in place without discarding the entry, so later steps can
// still see "how many sources were in the pool" versus "how many survived."
type estimate struct {
	distanceM float64
	weight    float64
	source    depth.SourceTag
}

// Fuse combines pool into a single FusedDepth per the 8-step contract of
// spec.md §4.1.
func Fuse(pool []depth.SourceEstimate, timestampS float64) depth.FusedDepth {
	working := gate(pool)
	if len(working) == 0 {
		return depth.NoEstimate(timestampS)
	}

	if fd, ok := demPrimaryShortCircuit(working, timestampS); ok {
		return fd
	}

	suppressDemDominance(working)
	rejectOutliers(working)

	contributors := nonZero(working)
	if len(contributors) == 0 {
		return depth.NoEstimate(timestampS)
	}

	combined := combine(contributors)
	disagreement := disagreementPenalty(contributors)
	confidence := normalizeConfidence(contributors, combined, disagreement)
	primary := argMaxSource(contributors)

	weights := make(map[depth.SourceTag]float64, len(contributors))
	for _, e := range contributors {
		weights[e.source] += e.weight
	}

	return depth.FusedDepth{
		DistanceM:           combined,
		Confidence0to1:      confidence,
		UncertaintyM:        weightedSpread(contributors, combined),
		Primary:             primary,
		ContributingWeights: weights,
		TimestampS:          timestampS,
	}
}

// gate drops sources outside their source-specific activation band and any
// non-finite/non-positive/zero-weight entry (spec.md §4.1 step 1).
func gate(pool []depth.SourceEstimate) []estimate {
	out := make([]estimate, 0, len(pool))
	for _, e := range pool {
		if !e.Valid() || e.Weight <= 0 || e.DistanceM <= 0 {
			continue
		}
		if e.Source == depth.SourceNeural && e.DistanceM > NeuralHardCapM {
			continue
		}
		if band, gated := gatingBands[e.Source]; gated {
			if e.DistanceM <= band.minM || e.DistanceM >= band.maxM {
				continue
			}
		}
		out = append(out, estimate{distanceM: e.DistanceM, weight: e.Weight, source: e.Source})
	}
	return out
}

func findSource(pool []estimate, tag depth.SourceTag) (estimate, bool) {
	for _, e := range pool {
		if e.source == tag && e.weight > 0 {
			return e, true
		}
	}
	return estimate{}, false
}

// demPrimaryShortCircuit implements step 2: a confident, uncontested DEM
// estimate is trusted outright rather than blended.
func demPrimaryShortCircuit(pool []estimate, timestampS float64) (depth.FusedDepth, bool) {
	dem, hasDem := findSource(pool, depth.SourceDemRaycast)
	if !hasDem || dem.weight <= 0.15 {
		return depth.FusedDepth{}, false
	}
	if obj, hasObject := findSource(pool, depth.SourceObject); hasObject && obj.weight > 0.05 {
		return depth.FusedDepth{}, false
	}

	confidence := DemPrimaryConfidence(dem.weight, dem.distanceM)

	return depth.FusedDepth{
		DistanceM:           dem.distanceM,
		Confidence0to1:      confidence,
		UncertaintyM:        dem.distanceM * (1 - confidence),
		Primary:             depth.SourceDemRaycast,
		ContributingWeights: map[depth.SourceTag]float64{depth.SourceDemRaycast: dem.weight},
		TimestampS:          timestampS,
	}, true
}

// DemPrimaryConfidence is the confidence formula of spec.md §4.1 step 2:
// min(1, dem_weight / distance_dependent_normalizer(dem_distance)), a
// single-source long-range penalty beyond 100 m, and the 0.15 floor.
// Exported so targetselect's DEM short-circuit rung (spec.md §4.2 step 4,
// which explicitly incorporates "the DEM short-circuit... (§4.1 step 2)")
// reuses this exact formula instead of a generic per-source confidence.
func DemPrimaryConfidence(demWeight, demDistanceM float64) float64 {
	confidence := demWeight / distanceNormalizer(demDistanceM)
	if demDistanceM > 100 {
		confidence *= 0.85
	}
	return clamp(confidence, 0.15, 1.0)
}

// suppressDemDominance implements step 3: when DEM disagrees sharply with
// neural or geometric, that source is zeroed or down-weighted in place
// (DEM is the only source with ground-truth terrain geometry behind it).
func suppressDemDominance(pool []estimate) {
	dem, hasDem := findSource(pool, depth.SourceDemRaycast)
	if !hasDem || dem.weight <= 0.1 {
		return
	}

	objectAgrees := false
	if obj, hasObject := findSource(pool, depth.SourceObject); hasObject {
		objectAgrees = ratio(obj.distanceM, dem.distanceM) <= 1.5
	}

	for i := range pool {
		if pool[i].source != depth.SourceNeural && pool[i].source != depth.SourceGeometric {
			continue
		}
		if pool[i].weight <= 0 {
			continue
		}
		r := ratio(pool[i].distanceM, dem.distanceM)
		switch {
		case r > zeroThreshold(dem.distanceM):
			pool[i].weight = 0
		case r > 1.5 && dem.distanceM > 40:
			scale := 1.0 / r
			if scale < 0.05 {
				scale = 0.05
			}
			if objectAgrees {
				scale *= 0.3
			}
			pool[i].weight *= scale
		}
	}
}

// rejectOutliers implements step 4: with >=3 weighted contributors, zero
// any whose distance strays more than 2x from the unweighted median.
func rejectOutliers(pool []estimate) {
	contributors := nonZero(pool)
	if len(contributors) < 3 {
		return
	}
	distances := make([]float64, len(contributors))
	for i, e := range contributors {
		distances[i] = e.distanceM
	}
	sort.Float64s(distances)
	median := stat.Quantile(0.5, stat.Empirical, distances, nil)
	if median <= 0 {
		return
	}

	for i := range pool {
		if pool[i].weight <= 0.05 {
			continue
		}
		if ratio(pool[i].distanceM, median) > 2.0 {
			pool[i].weight = 0
		}
	}
}

func nonZero(pool []estimate) []estimate {
	out := make([]estimate, 0, len(pool))
	for _, e := range pool {
		if e.weight > 0 {
			out = append(out, e)
		}
	}
	return out
}

// combine implements step 5: with 3+ contributors, a 0.3 weighted-mean /
// 0.7 weighted-median blend; with fewer, the plain weighted mean.
func combine(contributors []estimate) float64 {
	mean := weightedMean(contributors)
	if len(contributors) < 3 {
		return mean
	}
	return 0.3*mean + 0.7*weightedMedian(contributors)
}

func weightedMean(contributors []estimate) float64 {
	var sw, swd float64
	for _, e := range contributors {
		sw += e.weight
		swd += e.weight * e.distanceM
	}
	if sw == 0 {
		return 0
	}
	return swd / sw
}

// weightedMedian is the smallest distance whose cumulative weight (sorted
// ascending by distance) reaches S/2 — exactly stat.Empirical's
// definition of the weighted quantile.
func weightedMedian(contributors []estimate) float64 {
	sorted := append([]estimate(nil), contributors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].distanceM < sorted[j].distanceM })

	values := make([]float64, len(sorted))
	weights := make([]float64, len(sorted))
	for i, e := range sorted {
		values[i] = e.distanceM
		weights[i] = e.weight
	}
	return stat.Quantile(0.5, stat.Empirical, values, weights)
}

// disagreementPenalty implements step 6: exactly two contributors whose
// ratio exceeds 2 get their combined confidence discounted.
func disagreementPenalty(contributors []estimate) float64 {
	if len(contributors) != 2 {
		return 1.0
	}
	r := ratio(contributors[0].distanceM, contributors[1].distanceM)
	if r <= 2 {
		return 1.0
	}
	penalty := 1 - 0.5*(r-2)
	if penalty < 0.15 {
		penalty = 0.15
	}
	return penalty
}

// normalizeConfidence implements step 7.
func normalizeConfidence(contributors []estimate, combinedDistanceM, disagreement float64) float64 {
	var sw float64
	for _, e := range contributors {
		sw += e.weight
	}

	confidence := sw / distanceNormalizer(combinedDistanceM)
	if confidence > 1 {
		confidence = 1
	}
	if len(contributors) >= 2 {
		confidence *= 1.15
	}
	if len(contributors) == 1 && contributors[0].source == depth.SourceDemRaycast && combinedDistanceM > 100 {
		confidence *= 0.85
	}
	confidence *= disagreement
	return clamp(confidence, 0.15, 1.0)
}

func weightedSpread(contributors []estimate, combined float64) float64 {
	var sw, swd float64
	for _, e := range contributors {
		sw += e.weight
		swd += e.weight * absDiff(e.distanceM, combined)
	}
	if sw == 0 {
		return 0
	}
	return swd / sw
}

func argMaxSource(contributors []estimate) depth.SourceTag {
	best := contributors[0]
	for _, e := range contributors[1:] {
		if e.weight > best.weight {
			best = e
		}
	}
	return best.source
}

func ratio(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 1
	}
	r := a / b
	if r < 1 {
		r = 1 / r
	}
	return r
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
