package session

import (
	"strings"

	"github.com/packratdev/packrat/internal/types"
)

// placeholderTitle reports whether the enrichment pass returned a title
// that carries no information. These never replace the first-pass title.
func placeholderTitle(title string) bool {
	switch strings.ToLower(strings.TrimSpace(title)) {
	case "", "unknown", "unknown item":
		return true
	}
	return false
}

func pick(first, second string) string {
	if strings.TrimSpace(second) != "" {
		return second
	}
	return first
}

// Merge combines first-pass detection fields with an optional enrichment
// result into one finalized item. The second pass wins on every
// non-empty field, except that a placeholder title keeps the first-pass
// title. Condition, dimensions, weight, and serial number only exist in
// the second pass.
func Merge(d types.Detection, fields *types.EnrichedFields) types.Item {
	item := types.Item{
		DetectionID:    d.ID,
		Title:          d.Title,
		Description:    d.Description,
		Category:       d.Category,
		Make:           d.Make,
		Model:          d.Model,
		EstimatedPrice: d.EstimatedPriceText,
		Confidence:     d.Confidence,
	}
	if fields == nil {
		return item
	}

	if !placeholderTitle(fields.Title) {
		item.Title = fields.Title
	}
	item.Description = pick(item.Description, fields.Description)
	item.Category = pick(item.Category, fields.Category)
	item.Make = pick(item.Make, fields.Make)
	item.Model = pick(item.Model, fields.Model)
	item.EstimatedPrice = pick(item.EstimatedPrice, fields.EstimatedPrice)
	item.Condition = fields.Condition
	item.Dimensions = fields.Dimensions
	item.Weight = fields.Weight
	item.SerialNumber = fields.SerialNumber
	return item
}
