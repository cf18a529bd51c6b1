// Package gate filters raw recognizer detections before the expensive
// stages run. The checks are cheap text and geometry heuristics aimed at
// hallucinated or low-value detections; passing the gate only means a
// detection is worth cropping and clustering, not that it is correct.
package gate

import (
	"strings"

	"github.com/packratdev/packrat/internal/config"
	"github.com/packratdev/packrat/internal/types"
)

// Verdict explains a gate decision.
type Verdict struct {
	Accepted bool
	// Reason identifies the first rule that rejected the detection.
	// Empty when accepted.
	Reason RejectReason
}

// RejectReason identifies which gate rule fired.
type RejectReason string

const (
	ReasonEmptyTitle      RejectReason = "empty_title"
	ReasonDenylistedTitle RejectReason = "denylisted_title"
	ReasonLowConfidence   RejectReason = "low_confidence"
	ReasonVagueCategory   RejectReason = "vague_category"
	ReasonMissingBox      RejectReason = "missing_box"
	ReasonTinyBox         RejectReason = "tiny_box"
)

// Gate is a pure accept/reject filter over detections. The same
// (detection, sourceImageCount) input always yields the same verdict.
type Gate struct {
	cfg config.GateConfig
}

// New creates a quality gate with the given thresholds.
func New(cfg config.GateConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Check evaluates the gate rules in order and returns the verdict for the
// first rule that fires. sourceImageCount is the number of scene images
// the recognizer saw; the bounding-box rules only apply to multi-image
// scans, where a detection without a box cannot be cropped at all.
func (g *Gate) Check(d *types.Detection, sourceImageCount int) Verdict {
	title := strings.ToLower(strings.TrimSpace(d.Title))
	if title == "" {
		return Verdict{Reason: ReasonEmptyTitle}
	}

	for _, phrase := range g.cfg.DenylistPhrases {
		if strings.Contains(title, strings.ToLower(phrase)) {
			return Verdict{Reason: ReasonDenylistedTitle}
		}
	}

	if d.Confidence < g.cfg.MinConfidence {
		return Verdict{Reason: ReasonLowConfidence}
	}

	category := strings.ToLower(strings.TrimSpace(d.Category))
	if category == "" || strings.Contains(category, "unknown") {
		if d.Confidence < g.cfg.LowTrustConfidence {
			return Verdict{Reason: ReasonVagueCategory}
		}
	}

	if sourceImageCount > 1 {
		if len(d.BoundingBoxes) == 0 {
			return Verdict{Reason: ReasonMissingBox}
		}
		maxArea := 0.0
		for _, box := range d.BoundingBoxes {
			if area := box.Area(); area > maxArea {
				maxArea = area
			}
		}
		if maxArea < g.cfg.MinBoxArea && d.Confidence < g.cfg.LowTrustConfidence {
			return Verdict{Reason: ReasonTinyBox}
		}
	}

	return Verdict{Accepted: true}
}

// Accept reports whether the detection passes all gate rules.
func (g *Gate) Accept(d *types.Detection, sourceImageCount int) bool {
	return g.Check(d, sourceImageCount).Accepted
}

// Filter returns the detections that pass the gate, preserving order.
func (g *Gate) Filter(detections []types.Detection, sourceImageCount int) []types.Detection {
	survivors := make([]types.Detection, 0, len(detections))
	for _, d := range detections {
		if g.Accept(&d, sourceImageCount) {
			survivors = append(survivors, d)
		}
	}
	return survivors
}
