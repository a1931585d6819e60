// Package inclination implements the pitch-based line-of-sight to
// horizontal-distance correction of spec.md §4.9, grounded on the pack's
// banshee-data-velocity.report cosine-error-correction feature
// (internal/db/cosine_correction_test.go, internal/db/site.go), which
// applies the same d·cos(θ) family of correction to radar readings at a
// fixed mounting angle.
package inclination

import "math"

// Correct converts a line-of-sight distance to horizontal distance given
// device pitch (radians, positive = above horizontal). Below deadbandRad the
// correction is skipped and factor 1.0 is reported; the same magnitude
// applies to both upward and downward inclinations.
func Correct(distanceM, pitchRad, deadbandRad float64) (horizontalM, factor float64) {
	absPitch := math.Abs(pitchRad)
	if absPitch <= deadbandRad {
		return distanceM, 1.0
	}
	factor = math.Cos(absPitch)
	return distanceM * factor, factor
}
