package imaging

import (
	"image"
	"testing"

	"github.com/packratdev/packrat/internal/types"
)

func TestCropScalesCoordinateSpace(t *testing.T) {
	src := flatImage(100, 200, 50)
	d := &types.Detection{
		ID: "a",
		BoundingBoxes: []types.BoundingBox{
			{SourceImageIndex: 0, XMin: 0, YMin: 0, XMax: 500, YMax: 500},
		},
	}

	result := Crop(d, []image.Image{src})
	if result.Primary == nil {
		t.Fatal("expected a primary crop")
	}
	b := result.Primary.Bounds()
	if b.Dx() != 50 || b.Dy() != 100 {
		t.Errorf("crop = %dx%d, want 50x100", b.Dx(), b.Dy())
	}
	if len(result.Secondary) != 0 {
		t.Errorf("unexpected secondary crops: %d", len(result.Secondary))
	}
}

func TestCropMultipleBoxes(t *testing.T) {
	sources := []image.Image{flatImage(100, 100, 10), flatImage(200, 200, 20)}
	d := &types.Detection{
		ID: "a",
		BoundingBoxes: []types.BoundingBox{
			{SourceImageIndex: 0, XMin: 0, YMin: 0, XMax: 1000, YMax: 1000},
			{SourceImageIndex: 1, XMin: 250, YMin: 250, XMax: 750, YMax: 750},
		},
	}

	result := Crop(d, sources)
	if result.Primary == nil {
		t.Fatal("expected a primary crop")
	}
	if len(result.Secondary) != 1 {
		t.Fatalf("secondary crops = %d, want 1", len(result.Secondary))
	}
	if b := result.Secondary[0].Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("secondary crop = %dx%d, want 100x100", b.Dx(), b.Dy())
	}
	if got := len(result.Images()); got != 2 {
		t.Errorf("Images() length = %d, want 2", got)
	}
}

func TestCropWithoutBoxesFallsBackToFirstSource(t *testing.T) {
	src := flatImage(100, 100, 10)
	d := &types.Detection{ID: "a"}

	result := Crop(d, []image.Image{src, flatImage(50, 50, 20)})
	if result.Primary != image.Image(src) {
		t.Error("primary should be the first source image")
	}
}

func TestCropSkipsInvalidBoxes(t *testing.T) {
	d := &types.Detection{
		ID: "a",
		BoundingBoxes: []types.BoundingBox{
			{SourceImageIndex: 5, XMin: 0, YMin: 0, XMax: 500, YMax: 500},  // index out of range
			{SourceImageIndex: 0, XMin: 400, YMin: 400, XMax: 400, YMax: 400}, // degenerate
			{SourceImageIndex: 0, XMin: 0, YMin: 0, XMax: 500, YMax: 500},  // valid
		},
	}

	result := Crop(d, []image.Image{flatImage(100, 100, 10)})
	if result.Primary == nil {
		t.Fatal("valid box should still produce a primary crop")
	}
	if len(result.Secondary) != 0 {
		t.Errorf("invalid boxes must not produce crops (got %d secondary)", len(result.Secondary))
	}
}

func TestCropNoSources(t *testing.T) {
	d := &types.Detection{ID: "a"}
	result := Crop(d, nil)
	if result.Primary != nil || len(result.Secondary) != 0 {
		t.Error("no sources should produce no crops")
	}
	if result.Images() != nil {
		t.Error("Images() should be nil for an empty result")
	}
}
