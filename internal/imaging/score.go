// Package imaging scores, deduplicates, and ranks candidate crop images so
// each inventory item is represented by its best shots. Scoring runs on a
// small downsampled grayscale grid; at that size blur and exposure
// dominate the numbers, which is exactly what we want to rank by.
package imaging

import (
	"image"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// ScoredImage is a candidate image annotated with quality metrics.
type ScoredImage struct {
	Image image.Image

	// Sharpness is the mean absolute gradient over the score grid,
	// normalized to 0..1. Higher is crisper.
	Sharpness float64

	// Contrast is the population standard deviation of normalized
	// luminance over the score grid.
	Contrast float64

	// Hash is a 64-bit gradient fingerprint for near-duplicate detection.
	Hash uint64
}

// grayGrid downsamples an image to a w×h grayscale grid and returns the
// pixel values as bytes in row-major order.
func grayGrid(img image.Image, w, h int) []uint8 {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	grid := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			grid = append(grid, dst.GrayAt(x, y).Y)
		}
	}
	return grid
}

// Score computes quality metrics for one candidate image on a gridSize ×
// gridSize grayscale downsample.
func Score(img image.Image, gridSize int) ScoredImage {
	grid := grayGrid(img, gridSize, gridSize)

	return ScoredImage{
		Image:     img,
		Sharpness: sharpness(grid, gridSize, gridSize),
		Contrast:  contrast(grid),
		Hash:      DifferenceHash(img),
	}
}

// sharpness is the mean absolute gradient |p−right| + |p−below| over the
// interior of the grid, normalized by sample count and by the 255 value
// range.
func sharpness(grid []uint8, w, h int) float64 {
	if w < 2 || h < 2 {
		return 0
	}
	var total float64
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			p := float64(grid[y*w+x])
			right := float64(grid[y*w+x+1])
			below := float64(grid[(y+1)*w+x])
			total += absF(p-right) + absF(p-below)
		}
	}
	samples := float64((w - 1) * (h - 1))
	return total / samples / 255.0
}

// contrast is the population standard deviation of luminance normalized
// to 0..1.
func contrast(grid []uint8) float64 {
	if len(grid) == 0 {
		return 0
	}
	vals := make([]float64, len(grid))
	for i, p := range grid {
		vals[i] = float64(p) / 255.0
	}
	return stat.PopStdDev(vals, nil)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
