// Package enrich runs the second, per-item AI pass. The first-pass
// recognizer names objects; this pass looks at an item's curated crops and
// fills in the attributes worth cataloging: condition, dimensions, weight,
// a refined price, sometimes a better title.
package enrich

import (
	"context"
	"image"

	"github.com/packratdev/packrat/internal/types"
)

// Analyzer produces enriched attributes for one item from its curated
// images. A nil-error return with empty fields is valid: the analyzer saw
// the item but had nothing to add.
//
// Implementations must be safe for concurrent use; the orchestrator calls
// Analyze from one goroutine per item.
type Analyzer interface {
	Analyze(ctx context.Context, detection *types.Detection, images []image.Image) (*types.EnrichedFields, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, detection *types.Detection, images []image.Image) (*types.EnrichedFields, error)

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(ctx context.Context, detection *types.Detection, images []image.Image) (*types.EnrichedFields, error) {
	return f(ctx, detection, images)
}
