package detect

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/packratdev/packrat/internal/types"
)

// ErrNoImages is returned when a scan references no loadable source
// images. Without at least one image there is nothing to crop, curate, or
// enrich, so this is fatal to the session.
var ErrNoImages = errors.New("scan contains no source images")

// Scan is the decoded output of one recognizer pass over a scene.
type Scan struct {
	// ImagePaths are the source photo/frame files, in recognizer order.
	// Bounding-box source indices refer into this list.
	ImagePaths []string `json:"images"`

	// Detections are the raw candidate objects, in recognizer order.
	Detections []types.Detection `json:"detections"`
}

// LoadManifest reads and decodes a scan manifest, normalizes detection
// ids, and validates each detection. Image paths are resolved relative to
// the manifest's directory unless absolute.
func LoadManifest(path string) (*Scan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan manifest: %w", err)
	}

	var scan Scan
	if err := json.Unmarshal(data, &scan); err != nil {
		return nil, fmt.Errorf("failed to parse scan manifest: %w", err)
	}
	if len(scan.ImagePaths) == 0 {
		return nil, ErrNoImages
	}

	scan.Detections = NormalizeIDs(scan.Detections)
	for i := range scan.Detections {
		if err := scan.Detections[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid detection %s: %w", scan.Detections[i].ID, err)
		}
	}

	baseDir := filepath.Dir(path)
	for i, p := range scan.ImagePaths {
		if !filepath.IsAbs(p) {
			scan.ImagePaths[i] = filepath.Join(baseDir, p)
		}
	}
	return &scan, nil
}

// LoadImages decodes every source image in the scan. A scan whose images
// all fail to decode is as fatal as one with none.
func (s *Scan) LoadImages() ([]image.Image, error) {
	images := make([]image.Image, 0, len(s.ImagePaths))
	var firstErr error
	loaded := 0
	for _, p := range s.ImagePaths {
		img, err := loadImage(p)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Keep the slot so bounding-box indices stay aligned.
			images = append(images, nil)
			continue
		}
		images = append(images, img)
		loaded++
	}
	if loaded == 0 {
		if firstErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoImages, firstErr)
		}
		return nil, ErrNoImages
	}
	return images, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}
