package gate

import (
	"testing"

	"github.com/packratdev/packrat/internal/config"
	"github.com/packratdev/packrat/internal/types"
)

func newTestGate() *Gate {
	return New(config.Default().Gate)
}

func TestCheckRules(t *testing.T) {
	tests := []struct {
		name             string
		detection        types.Detection
		sourceImageCount int
		wantAccepted     bool
		wantReason       RejectReason
	}{
		{
			name:             "clean detection accepted",
			detection:        types.Detection{ID: "a", Title: "Coffee Mug", Category: "Kitchen", Confidence: 0.9},
			sourceImageCount: 1,
			wantAccepted:     true,
		},
		{
			name:             "empty title rejected regardless of confidence",
			detection:        types.Detection{ID: "a", Title: "", Confidence: 0.99},
			sourceImageCount: 1,
			wantReason:       ReasonEmptyTitle,
		},
		{
			name:             "whitespace title rejected",
			detection:        types.Detection{ID: "a", Title: "   ", Confidence: 0.99},
			sourceImageCount: 1,
			wantReason:       ReasonEmptyTitle,
		},
		{
			name:             "denylisted phrase rejected",
			detection:        types.Detection{ID: "a", Title: "Blurry object on shelf", Category: "Decor", Confidence: 0.95},
			sourceImageCount: 1,
			wantReason:       ReasonDenylistedTitle,
		},
		{
			name:             "denylist match is case-insensitive",
			detection:        types.Detection{ID: "a", Title: "NOT SURE what this is", Category: "Decor", Confidence: 0.95},
			sourceImageCount: 1,
			wantReason:       ReasonDenylistedTitle,
		},
		{
			name:             "confidence below floor rejected",
			detection:        types.Detection{ID: "a", Title: "Lamp", Category: "Lighting", Confidence: 0.5},
			sourceImageCount: 1,
			wantReason:       ReasonLowConfidence,
		},
		{
			name:             "empty category with middling confidence rejected",
			detection:        types.Detection{ID: "a", Title: "Lamp", Category: "", Confidence: 0.7},
			sourceImageCount: 1,
			wantReason:       ReasonVagueCategory,
		},
		{
			name:             "unknown category with middling confidence rejected",
			detection:        types.Detection{ID: "a", Title: "Lamp", Category: "Unknown", Confidence: 0.7},
			sourceImageCount: 1,
			wantReason:       ReasonVagueCategory,
		},
		{
			name:             "unknown category with high confidence accepted",
			detection:        types.Detection{ID: "a", Title: "Lamp", Category: "Unknown", Confidence: 0.8},
			sourceImageCount: 1,
			wantAccepted:     true,
		},
		{
			name:             "multi-image scan requires a bounding box",
			detection:        types.Detection{ID: "a", Title: "Lamp", Category: "Lighting", Confidence: 0.9},
			sourceImageCount: 3,
			wantReason:       ReasonMissingBox,
		},
		{
			name: "tiny box with middling confidence rejected",
			detection: types.Detection{
				ID: "a", Title: "Lamp", Category: "Lighting", Confidence: 0.7,
				BoundingBoxes: []types.BoundingBox{
					{XMin: 0, YMin: 0, XMax: 50, YMax: 100}, // area 0.005
				},
			},
			sourceImageCount: 2,
			wantReason:       ReasonTinyBox,
		},
		{
			name: "tiny box with high confidence accepted",
			detection: types.Detection{
				ID: "a", Title: "Lamp", Category: "Lighting", Confidence: 0.8,
				BoundingBoxes: []types.BoundingBox{
					{XMin: 0, YMin: 0, XMax: 50, YMax: 100},
				},
			},
			sourceImageCount: 2,
			wantAccepted:     true,
		},
		{
			name: "largest box decides the area test",
			detection: types.Detection{
				ID: "a", Title: "Lamp", Category: "Lighting", Confidence: 0.7,
				BoundingBoxes: []types.BoundingBox{
					{XMin: 0, YMin: 0, XMax: 50, YMax: 100},
					{SourceImageIndex: 1, XMin: 0, YMin: 0, XMax: 400, YMax: 400}, // area 0.16
				},
			},
			sourceImageCount: 2,
			wantAccepted:     true,
		},
		{
			name:             "single image scan skips the box rules",
			detection:        types.Detection{ID: "a", Title: "Lamp", Category: "Lighting", Confidence: 0.9},
			sourceImageCount: 1,
			wantAccepted:     true,
		},
	}

	g := newTestGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := g.Check(&tt.detection, tt.sourceImageCount)
			if verdict.Accepted != tt.wantAccepted {
				t.Fatalf("Accepted = %v, want %v (reason %q)", verdict.Accepted, tt.wantAccepted, verdict.Reason)
			}
			if !tt.wantAccepted && verdict.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", verdict.Reason, tt.wantReason)
			}
		})
	}
}

// The gate is a pure function: repeated evaluation of the same input in any
// order yields identical verdicts.
func TestCheckIsPure(t *testing.T) {
	g := newTestGate()
	detections := []types.Detection{
		{ID: "a", Title: "Coffee Mug", Category: "Kitchen", Confidence: 0.9},
		{ID: "b", Title: "", Confidence: 0.99},
		{ID: "c", Title: "Lamp", Confidence: 0.5},
	}

	first := make([]Verdict, len(detections))
	for i := range detections {
		first[i] = g.Check(&detections[i], 2)
	}
	// Evaluate again in reverse order.
	for i := len(detections) - 1; i >= 0; i-- {
		got := g.Check(&detections[i], 2)
		if got != first[i] {
			t.Errorf("verdict for %s changed between calls: %+v vs %+v", detections[i].ID, first[i], got)
		}
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	g := newTestGate()
	detections := []types.Detection{
		{ID: "a", Title: "Coffee Mug", Category: "Kitchen", Confidence: 0.9},
		{ID: "b", Title: "", Confidence: 0.99},
		{ID: "c", Title: "Desk Lamp", Category: "Lighting", Confidence: 0.85},
		{ID: "d", Title: "Lamp", Category: "Lighting", Confidence: 0.4},
	}

	survivors := g.Filter(detections, 1)
	if len(survivors) != 2 {
		t.Fatalf("got %d survivors, want 2", len(survivors))
	}
	if survivors[0].ID != "a" || survivors[1].ID != "c" {
		t.Errorf("survivor order = [%s %s], want [a c]", survivors[0].ID, survivors[1].ID)
	}
}
