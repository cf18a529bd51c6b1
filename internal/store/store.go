// Package store defines the persistence boundary for finalized inventory
// items and the mapping from storage failures to user-facing messages.
package store

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/packratdev/packrat/internal/types"
)

// ErrImageEncode marks a failure to encode a chosen image for storage.
// Callers wrap it so the taxonomy below can recognize codec failures.
var ErrImageEncode = errors.New("image encoding failed")

// Store persists finalized items with their ordered chosen images
// (primary first).
type Store interface {
	// SaveItem writes one item and replaces its stored images.
	SaveItem(ctx context.Context, item *types.Item, images []image.Image) error

	// ListItems returns the catalog, most recently saved first.
	ListItems(ctx context.Context) ([]Summary, error)

	Close() error
}

// Summary is one catalog row for listings.
type Summary struct {
	types.Item
	ImageCount int
	SavedAt    time.Time
}

// UserMessage maps a persistence error to a message suitable for the
// terminal. Known causes get a specific message; anything else falls
// back to the raw error text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, syscall.ENOSPC) || strings.Contains(msg, "no space left") || strings.Contains(msg, "disk is full"):
		return "The disk is full. Free up space and try saving again."
	case errors.Is(err, os.ErrPermission) || strings.Contains(msg, "permission denied") || strings.Contains(msg, "access is denied"):
		return "Permission denied writing the catalog. Check that the database path is writable."
	case errors.Is(err, syscall.EROFS) || strings.Contains(msg, "read-only") || strings.Contains(msg, "readonly database"):
		return "The catalog is on a read-only volume and cannot be modified."
	case errors.Is(err, ErrImageEncode):
		return "An image could not be encoded for storage. The item was not saved."
	default:
		return err.Error()
	}
}
