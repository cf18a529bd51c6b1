package imaging

import (
	"image"
	"math/bits"
)

// DifferenceHash computes a 64-bit gradient fingerprint of an image: the
// image is downsampled to a 9×8 grayscale grid and bit k is set iff the
// pixel is brighter than its right neighbor, scanning the 8×8 comparison
// grid in row-major order. Two visually similar images produce hashes
// within a small Hamming distance of each other.
func DifferenceHash(img image.Image) uint64 {
	const w, h = 9, 8
	grid := grayGrid(img, w, h)

	var hash uint64
	bit := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w-1; x++ {
			if grid[y*w+x] > grid[y*w+x+1] {
				hash |= 1 << uint(bit)
			}
			bit++
		}
	}
	return hash
}

// HammingDistance returns the number of differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
