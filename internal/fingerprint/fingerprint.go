// Package fingerprint computes 64-bit perceptual hashes of prepared images
// for duplicate detection.
//
// The algorithm is a mean-threshold hash over a 32x32 luminance grid. The
// grid has 1024 cells but the hash has 64 bits, so cell i maps to bit i%64
// and many cells alias onto the same bit (a bit is set if any of its cells
// exceeds the mean). This weakens discrimination, but stored fingerprints
// were produced with this exact assignment order, so the behavior is kept:
// changing it would orphan every fingerprint already in the store.
package fingerprint

import (
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

const (
	// gridSize is the edge length of the downscaled luminance grid.
	gridSize = 32

	// DefaultThreshold is the maximum Hamming distance at which two
	// fingerprints are considered to show the same scene. The live
	// duplicate check matches hashes exactly; Distance and Similar
	// serve offline similarity analysis.
	DefaultThreshold = 10
)

// Hash computes the perceptual hash of an image.
//
// Hash is deterministic: the same decoded image always yields the same value.
// NearestNeighbor keeps the downscale free of resampling variance across
// library versions.
func Hash(img image.Image) uint64 {
	small := imaging.Resize(img, gridSize, gridSize, imaging.NearestNeighbor)

	var cells [gridSize * gridSize]uint32
	var sum uint64
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			lum := luminance(small.NRGBAAt(x, y).R, small.NRGBAAt(x, y).G, small.NRGBAAt(x, y).B)
			cells[y*gridSize+x] = lum
			sum += uint64(lum)
		}
	}
	mean := uint32(sum / (gridSize * gridSize))

	var packed uint64
	for i, lum := range cells {
		if lum > mean {
			packed |= 1 << (uint(i) % 64)
		}
	}
	return packed
}

// Distance returns the Hamming distance between two fingerprints.
// Lower is more similar; 0 means identical hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two fingerprints are within the given Hamming
// distance threshold of each other.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// luminance converts 8-bit RGB to integer luma using the BT.601 weights,
// scaled by 1000 to stay in integer math.
func luminance(r, g, b uint8) uint32 {
	return 299*uint32(r) + 587*uint32(g) + 114*uint32(b)
}
