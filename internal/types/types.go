package types

import (
	"fmt"
	"strings"
)

// Detection represents one candidate object reported by the external
// recognizer: text attributes, a confidence score, and zero or more
// bounding boxes tying the object to regions of the source images.
type Detection struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	Category           string        `json:"category,omitempty"`
	Make               string        `json:"make,omitempty"`
	Model              string        `json:"model,omitempty"`
	EstimatedPriceText string        `json:"estimated_price,omitempty"`
	Confidence         float64       `json:"confidence"`
	BoundingBoxes      []BoundingBox `json:"bounding_boxes,omitempty"`
}

// BoundingBox locates a detection within one source image. Coordinates are
// in the recognizer's 0..1000 space, not pixels.
type BoundingBox struct {
	SourceImageIndex int     `json:"source_image_index"`
	YMin             float64 `json:"ymin"`
	XMin             float64 `json:"xmin"`
	YMax             float64 `json:"ymax"`
	XMax             float64 `json:"xmax"`
}

// Area returns the normalized box area: width*height / 1e6, so a box
// covering the whole frame has area 1.0.
func (b BoundingBox) Area() float64 {
	w := b.XMax - b.XMin
	h := b.YMax - b.YMin
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h / 1e6
}

// Validate checks if the detection has valid field values
func (d *Detection) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if d.Confidence < 0.0 || d.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", d.Confidence)
	}
	for i, box := range d.BoundingBoxes {
		if box.SourceImageIndex < 0 {
			return fmt.Errorf("bounding box %d: source_image_index cannot be negative", i)
		}
		if box.XMin < 0 || box.YMin < 0 || box.XMax > 1000 || box.YMax > 1000 {
			return fmt.Errorf("bounding box %d: coordinates must be within 0..1000", i)
		}
		if box.XMax < box.XMin || box.YMax < box.YMin {
			return fmt.Errorf("bounding box %d: max coordinates must not be less than min", i)
		}
	}
	return nil
}

// EnrichedFields holds the attributes produced by the second, per-item AI
// pass. All fields are optional: empty means the pass did not improve on
// the first-pass value.
type EnrichedFields struct {
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	Category       string `json:"category,omitempty"`
	Make           string `json:"make,omitempty"`
	Model          string `json:"model,omitempty"`
	Condition      string `json:"condition,omitempty"`
	Dimensions     string `json:"dimensions,omitempty"`
	Weight         string `json:"weight,omitempty"`
	EstimatedPrice string `json:"estimated_price,omitempty"`
	SerialNumber   string `json:"serial_number,omitempty"`
}

// IsZero reports whether the enrichment produced nothing at all.
func (e EnrichedFields) IsZero() bool {
	return e == EnrichedFields{}
}

// Item is one finalized inventory record: first-pass detection fields
// merged with any enrichment result, ready for persistence.
type Item struct {
	DetectionID    string  `json:"detection_id"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	Category       string  `json:"category,omitempty"`
	Make           string  `json:"make,omitempty"`
	Model          string  `json:"model,omitempty"`
	Condition      string  `json:"condition,omitempty"`
	Dimensions     string  `json:"dimensions,omitempty"`
	Weight         string  `json:"weight,omitempty"`
	EstimatedPrice string  `json:"estimated_price,omitempty"`
	SerialNumber   string  `json:"serial_number,omitempty"`
	Confidence     float64 `json:"confidence"`

	// DisplayHint is a non-persisted presentation note, e.g.
	// "Potential duplicate (3 similar)". Never written to the catalog.
	DisplayHint string `json:"-"`
}

// Validate checks if the item has valid field values
func (i *Item) Validate() error {
	if strings.TrimSpace(i.DetectionID) == "" {
		return fmt.Errorf("detection_id is required")
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if i.Confidence < 0.0 || i.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", i.Confidence)
	}
	return nil
}

// DuplicateGroup is a cluster of detections believed to reference one
// physical item. Member order follows the original detection order.
// Singleton groups are never materialized.
type DuplicateGroup struct {
	GroupID   string   `json:"group_id"`
	MemberIDs []string `json:"member_ids"`
}

// Size returns the number of members in the group.
func (g *DuplicateGroup) Size() int {
	return len(g.MemberIDs)
}

// Validate checks if the duplicate group has valid field values
func (g *DuplicateGroup) Validate() error {
	if g.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	if len(g.MemberIDs) < 2 {
		return fmt.Errorf("group must have at least 2 members (got %d)", len(g.MemberIDs))
	}
	seen := make(map[string]bool, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if id == "" {
			return fmt.Errorf("member ids cannot be empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate member id: %s", id)
		}
		seen[id] = true
	}
	return nil
}
