package imaging

import (
	"image"
	"sort"

	"golang.org/x/image/draw"

	"github.com/packratdev/packrat/internal/config"
)

// Curator selects the best representative images for one item from an
// ordered list of candidate crops.
type Curator struct {
	cfg config.ImagingConfig
}

// NewCurator creates a curator with the given thresholds.
func NewCurator(cfg config.ImagingConfig) *Curator {
	return &Curator{cfg: cfg}
}

// Curate scores the candidates, drops low-quality and near-duplicate
// shots, and returns at most KeepAtMost images ordered best first. The
// first returned image is the primary. Nil candidates are skipped and
// never abort the call.
//
// Guarantees: never more than KeepAtMost results; never fewer than
// min(EnsureAtLeast, usable candidate count); no two results within
// MaxHammingDistance of each other unless the backfill floor forced one
// in.
func (c *Curator) Curate(candidates []image.Image) []ScoredImage {
	scored := make([]ScoredImage, 0, len(candidates))
	for _, img := range candidates {
		if img == nil || img.Bounds().Empty() {
			continue
		}
		scored = append(scored, Score(img, c.cfg.ScoreGridSize))
	}
	if len(scored) == 0 {
		return nil
	}

	// Quality floor, unless it would leave nothing to choose from.
	usable := make([]ScoredImage, 0, len(scored))
	for _, s := range scored {
		if s.Sharpness >= c.cfg.MinSharpness && s.Contrast >= c.cfg.MinContrast {
			usable = append(usable, s)
		}
	}
	if len(usable) == 0 {
		usable = scored
	}

	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Sharpness != usable[j].Sharpness {
			return usable[i].Sharpness > usable[j].Sharpness
		}
		return usable[i].Contrast > usable[j].Contrast
	})

	// Walk best-first, skipping anything perceptually too close to an
	// already-kept shot.
	var chosen []ScoredImage
	for _, s := range usable {
		if len(chosen) == c.cfg.KeepAtMost {
			break
		}
		tooClose := false
		for _, kept := range chosen {
			if HammingDistance(s.Hash, kept.Hash) <= c.cfg.MaxHammingDistance {
				tooClose = true
				break
			}
		}
		if !tooClose {
			chosen = append(chosen, s)
		}
	}

	// Backfill from the full scored set, sharpest first, if dedup left us
	// under the floor. Identity comparison keeps already-chosen images out.
	if len(chosen) < c.cfg.EnsureAtLeast {
		pool := make([]ScoredImage, len(scored))
		copy(pool, scored)
		sort.SliceStable(pool, func(i, j int) bool {
			return pool[i].Sharpness > pool[j].Sharpness
		})
		for _, s := range pool {
			if len(chosen) >= c.cfg.EnsureAtLeast || len(chosen) == c.cfg.KeepAtMost {
				break
			}
			already := false
			for _, kept := range chosen {
				if kept.Image == s.Image {
					already = true
					break
				}
			}
			if !already {
				chosen = append(chosen, s)
			}
		}
	}

	return chosen
}

// Thumbnail derives a preview image whose longest edge is capped at edge
// pixels. Images already within the cap are returned unchanged; thumbnails
// are never upscaled.
func Thumbnail(img image.Image, edge int) image.Image {
	if img == nil || edge < 1 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= edge && h <= edge {
		return img
	}

	var tw, th int
	if w >= h {
		tw = edge
		th = h * edge / w
	} else {
		th = edge
		tw = w * edge / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
