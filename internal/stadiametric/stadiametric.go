// Package stadiametric implements the pinhole bracket computation of
// spec.md §4.11. It is grounded on the teacher's plain-function-over-floats
// texture in internal/fusion.go (Distance2D and friends) rather than any
// third-party library — pinhole ranging is two multiplications and a
// division, with no numerical subtlety to hand off to gonum.
package stadiametric

import "github.com/fieldrange/rangefusion/internal/depth"

// Range computes distance from a known real-world size, its measured pixel
// extent in the current frame, and the camera's focal length in pixels.
// A zero pixel size yields distance 0 (no division by zero) rather than
// +Inf, per spec.md §4.11.
func Range(knownSizeM, measuredPixelSize, focalLengthPixels float64) depth.SourceEstimate {
	if measuredPixelSize == 0 {
		return depth.SourceEstimate{
			DistanceM:           0,
			Weight:              0,
			Source:              depth.SourceStadiametric,
			SecondaryConfidence: 0,
		}
	}
	distance := knownSizeM * focalLengthPixels / measuredPixelSize
	return depth.SourceEstimate{
		DistanceM:           distance,
		Weight:              1.0,
		Source:              depth.SourceStadiametric,
		SecondaryConfidence: 1.0,
	}
}

// PixelSize is the inverse of Range: given a distance, recover the pixel
// extent a known-size object would project to. Used only by round-trip
// tests (spec.md §8).
func PixelSize(knownSizeM, focalLengthPixels, distanceM float64) float64 {
	if distanceM == 0 {
		return 0
	}
	return knownSizeM * focalLengthPixels / distanceM
}
