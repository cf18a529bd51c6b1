// Package sqlite implements the catalog store on an embedded SQLite
// database. One process owns the catalog at a time, enforced with a
// sidecar lock file.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/packratdev/packrat/internal/store"
	"github.com/packratdev/packrat/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	detection_id    TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	make            TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL DEFAULT '',
	condition       TEXT NOT NULL DEFAULT '',
	dimensions      TEXT NOT NULL DEFAULT '',
	weight          TEXT NOT NULL DEFAULT '',
	estimated_price TEXT NOT NULL DEFAULT '',
	serial_number   TEXT NOT NULL DEFAULT '',
	confidence      REAL NOT NULL DEFAULT 0,
	saved_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS item_images (
	detection_id TEXT NOT NULL REFERENCES items(detection_id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	data         BLOB NOT NULL,
	PRIMARY KEY (detection_id, position)
);
`

const jpegQuality = 85

// Catalog is the SQLite-backed store.Store implementation.
type Catalog struct {
	db   *sql.DB
	lock *flock.Flock
}

var _ store.Store = (*Catalog)(nil)

// Open creates or connects to the catalog at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock catalog: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("catalog %s is in use by another process", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply %s: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Catalog{db: db, lock: lock}, nil
}

// Close releases the database and the catalog lock.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	err := c.db.Close()
	if c.lock != nil {
		if unlockErr := c.lock.Unlock(); err == nil {
			err = unlockErr
		}
	}
	return err
}

// SaveItem writes one item and replaces its stored images, primary first.
func (c *Catalog) SaveItem(ctx context.Context, item *types.Item, images []image.Image) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	// Encode before opening the transaction so a codec failure never
	// leaves a half-written item behind.
	blobs := make([][]byte, 0, len(images))
	for i, img := range images {
		if img == nil {
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return fmt.Errorf("image %d for %s: %w: %v", i, item.DetectionID, store.ErrImageEncode, err)
		}
		blobs = append(blobs, buf.Bytes())
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (detection_id, title, description, category, make, model,
			condition, dimensions, weight, estimated_price, serial_number, confidence, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(detection_id) DO UPDATE SET
			title=excluded.title, description=excluded.description,
			category=excluded.category, make=excluded.make, model=excluded.model,
			condition=excluded.condition, dimensions=excluded.dimensions,
			weight=excluded.weight, estimated_price=excluded.estimated_price,
			serial_number=excluded.serial_number, confidence=excluded.confidence,
			saved_at=excluded.saved_at`,
		item.DetectionID, item.Title, item.Description, item.Category, item.Make,
		item.Model, item.Condition, item.Dimensions, item.Weight,
		item.EstimatedPrice, item.SerialNumber, item.Confidence,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write item %s: %w", item.DetectionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_images WHERE detection_id = ?`, item.DetectionID); err != nil {
		return fmt.Errorf("clear images for %s: %w", item.DetectionID, err)
	}
	for pos, blob := range blobs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO item_images (detection_id, position, data) VALUES (?, ?, ?)`,
			item.DetectionID, pos, blob)
		if err != nil {
			return fmt.Errorf("write image %d for %s: %w", pos, item.DetectionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save for %s: %w", item.DetectionID, err)
	}
	return nil
}

// ListItems returns the catalog, most recently saved first.
func (c *Catalog) ListItems(ctx context.Context) ([]store.Summary, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT i.detection_id, i.title, i.description, i.category, i.make, i.model,
			i.condition, i.dimensions, i.weight, i.estimated_price, i.serial_number,
			i.confidence, i.saved_at,
			(SELECT COUNT(*) FROM item_images img WHERE img.detection_id = i.detection_id)
		FROM items i
		ORDER BY i.saved_at DESC, i.detection_id`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var summaries []store.Summary
	for rows.Next() {
		var s store.Summary
		var savedAt string
		if err := rows.Scan(&s.DetectionID, &s.Title, &s.Description, &s.Category,
			&s.Make, &s.Model, &s.Condition, &s.Dimensions, &s.Weight,
			&s.EstimatedPrice, &s.SerialNumber, &s.Confidence, &savedAt,
			&s.ImageCount); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339, savedAt); parseErr == nil {
			s.SavedAt = t
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	return summaries, nil
}
