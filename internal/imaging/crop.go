package imaging

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/packratdev/packrat/internal/types"
)

// CropResult holds the crops extracted for one detection. Primary is nil
// when no usable crop exists.
type CropResult struct {
	Primary   image.Image
	Secondary []image.Image
}

// Images returns the primary followed by the secondary crops, skipping a
// nil primary.
func (r CropResult) Images() []image.Image {
	var out []image.Image
	if r.Primary != nil {
		out = append(out, r.Primary)
	}
	return append(out, r.Secondary...)
}

// Crop extracts the detection's bounding-box regions from the source
// images. Box coordinates are in the recognizer's 0..1000 space and are
// scaled to each source image's pixel bounds. The first valid box yields
// the primary crop, the rest become secondary crops. A detection without
// boxes falls back to the whole first source image, which is the right
// answer for single-photo scans where the recognizer omits geometry.
func Crop(d *types.Detection, sources []image.Image) CropResult {
	var result CropResult
	if len(sources) == 0 {
		return result
	}

	if len(d.BoundingBoxes) == 0 {
		result.Primary = sources[0]
		return result
	}

	for _, box := range d.BoundingBoxes {
		if box.SourceImageIndex < 0 || box.SourceImageIndex >= len(sources) {
			continue
		}
		src := sources[box.SourceImageIndex]
		if src == nil {
			continue
		}
		cropped := cropBox(src, box)
		if cropped == nil {
			continue
		}
		if result.Primary == nil {
			result.Primary = cropped
		} else {
			result.Secondary = append(result.Secondary, cropped)
		}
	}
	return result
}

// cropBox extracts one box from a source image, returning nil for
// degenerate regions.
func cropBox(src image.Image, box types.BoundingBox) image.Image {
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	rect := image.Rect(
		b.Min.X+int(box.XMin/1000.0*w),
		b.Min.Y+int(box.YMin/1000.0*h),
		b.Min.X+int(box.XMax/1000.0*w),
		b.Min.Y+int(box.YMax/1000.0*h),
	).Intersect(b)
	if rect.Empty() {
		return nil
	}

	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if si, ok := src.(subImager); ok {
		return si.SubImage(rect)
	}

	// Source types without SubImage get copied through a draw.
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(dst, image.Point{}, src, rect, draw.Src, nil)
	return dst
}
