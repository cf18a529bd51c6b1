// Package session coordinates one curation pass over a scan: gating,
// duplicate grouping, selection state, lazy image curation, enrichment,
// and the finalize step that hands merged items to the catalog.
//
// A Session is single-writer. All mutation happens on the goroutine that
// owns it; background work returns values over channels and is merged
// back here, never written from workers.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"

	"github.com/packratdev/packrat/internal/cluster"
	"github.com/packratdev/packrat/internal/config"
	"github.com/packratdev/packrat/internal/detect"
	"github.com/packratdev/packrat/internal/enrich"
	"github.com/packratdev/packrat/internal/gate"
	"github.com/packratdev/packrat/internal/imaging"
	"github.com/packratdev/packrat/internal/store"
	"github.com/packratdev/packrat/internal/types"
)

var (
	// ErrNoImages is returned when a session is started without any
	// source images. This is fatal to the session.
	ErrNoImages = errors.New("scan has no source images")

	// ErrNoAnalyzer is returned when enrichment is requested but no
	// analyzer was configured.
	ErrNoAnalyzer = errors.New("no analyzer configured")

	// ErrNothingSelected is returned by Finalize when the selection set
	// is empty.
	ErrNothingSelected = errors.New("no items selected")
)

// Session holds the surviving detections for one scan plus all per-item
// state derived from them. Derived caches are keyed by detection id and
// pruned whenever the detection set is replaced.
type Session struct {
	id        string
	cfg       config.Config
	logger    *slog.Logger
	gate      *gate.Gate
	clusterer *cluster.Clusterer
	curator   *imaging.Curator
	orch      *enrich.Orchestrator
	analyzer  enrich.Analyzer

	sources   []image.Image
	survivors []types.Detection
	groups    map[string]*types.DuplicateGroup
	selected  map[string]bool
	cardIndex int

	curated  map[string][]imaging.ScoredImage
	enriched map[string]types.EnrichedFields
}

// New creates a session from already-loaded sources and raw detections.
// The analyzer may be nil, which disables the enrichment pass. Detections
// are id-normalized, gated, and clustered immediately.
func New(cfg config.Config, sources []image.Image, detections []types.Detection, analyzer enrich.Analyzer, logger *slog.Logger) (*Session, error) {
	if len(sources) == 0 {
		return nil, ErrNoImages
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		logger:    logger,
		gate:      gate.New(cfg.Gate),
		clusterer: cluster.New(cfg.Cluster),
		curator:   imaging.NewCurator(cfg.Imaging),
		analyzer:  analyzer,
		sources:   sources,
		selected:  make(map[string]bool),
		curated:   make(map[string][]imaging.ScoredImage),
		enriched:  make(map[string]types.EnrichedFields),
	}
	if analyzer != nil {
		orch, err := enrich.NewOrchestrator(analyzer, logger)
		if err != nil {
			return nil, fmt.Errorf("create orchestrator: %w", err)
		}
		s.orch = orch
	}

	s.ReplaceDetections(detections)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ReplaceDetections swaps in a new raw detection set, as happens when a
// streaming scan updates. Survivors and groups are recomputed from
// scratch; selection and per-item caches are pruned to the intersection
// with the new surviving id set, so no stale state outlives its
// detection. Any enrichment run state is reset so a fresh run can start
// against the new set.
func (s *Session) ReplaceDetections(detections []types.Detection) {
	normalized := detect.NormalizeIDs(detections)
	s.survivors = s.gate.Filter(normalized, len(s.sources))
	s.groups = s.clusterer.Cluster(s.survivors)

	alive := make(map[string]bool, len(s.survivors))
	for i := range s.survivors {
		alive[s.survivors[i].ID] = true
	}
	for id := range s.selected {
		if !alive[id] {
			delete(s.selected, id)
		}
	}
	for id := range s.curated {
		if !alive[id] {
			delete(s.curated, id)
		}
	}
	for id := range s.enriched {
		if !alive[id] {
			delete(s.enriched, id)
		}
	}

	s.cardIndex = s.clampIndex(s.cardIndex)
	if s.orch != nil {
		s.orch.Reset()
	}
}

// Items returns the surviving detections in scan order.
func (s *Session) Items() []types.Detection { return s.survivors }

// Count returns the number of surviving detections.
func (s *Session) Count() int { return len(s.survivors) }

// GroupFor returns the duplicate group containing id, if any. Singletons
// have no group.
func (s *Session) GroupFor(id string) (*types.DuplicateGroup, bool) {
	g, ok := s.groups[id]
	return g, ok
}

// Enrichment returns the enrichment result for id, if one exists.
func (s *Session) Enrichment(id string) (types.EnrichedFields, bool) {
	fields, ok := s.enriched[id]
	return fields, ok
}

func (s *Session) indexOf(id string) int {
	for i := range s.survivors {
		if s.survivors[i].ID == id {
			return i
		}
	}
	return -1
}

// Toggle flips the selection state of id. Unknown ids are ignored.
func (s *Session) Toggle(id string) {
	if s.indexOf(id) < 0 {
		return
	}
	if s.selected[id] {
		delete(s.selected, id)
	} else {
		s.selected[id] = true
	}
}

// IsSelected reports whether id is in the selection set.
func (s *Session) IsSelected(id string) bool { return s.selected[id] }

// SelectAll puts every survivor in the selection set.
func (s *Session) SelectAll() {
	for i := range s.survivors {
		s.selected[s.survivors[i].ID] = true
	}
}

// DeselectAll empties the selection set.
func (s *Session) DeselectAll() {
	clear(s.selected)
}

// SelectUnique selects exactly one representative per physical item: the
// first surviving member of each duplicate group, plus every singleton.
func (s *Session) SelectUnique() {
	clear(s.selected)
	seen := make(map[string]bool, len(s.groups))
	for i := range s.survivors {
		id := s.survivors[i].ID
		g, ok := s.groups[id]
		if !ok {
			s.selected[id] = true
			continue
		}
		if !seen[g.GroupID] {
			seen[g.GroupID] = true
			s.selected[id] = true
		}
	}
}

// Selected returns the selected ids in scan order.
func (s *Session) Selected() []string {
	ids := make([]string, 0, len(s.selected))
	for i := range s.survivors {
		if s.selected[s.survivors[i].ID] {
			ids = append(ids, s.survivors[i].ID)
		}
	}
	return ids
}

func (s *Session) clampIndex(i int) int {
	if len(s.survivors) == 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i > len(s.survivors)-1 {
		return len(s.survivors) - 1
	}
	return i
}

// CardIndex returns the current position in the linear card view.
func (s *Session) CardIndex() int { return s.cardIndex }

// SetCardIndex moves the card cursor, clamping to the valid range.
func (s *Session) SetCardIndex(i int) { s.cardIndex = s.clampIndex(i) }

// Next advances the card cursor by one.
func (s *Session) Next() { s.SetCardIndex(s.cardIndex + 1) }

// Prev moves the card cursor back by one.
func (s *Session) Prev() { s.SetCardIndex(s.cardIndex - 1) }

// Current returns the detection under the card cursor.
func (s *Session) Current() (*types.Detection, bool) {
	if len(s.survivors) == 0 {
		return nil, false
	}
	return &s.survivors[s.cardIndex], true
}

// CuratedImages returns the curated image set for id, running curation
// first if it has not happened yet.
func (s *Session) CuratedImages(ctx context.Context, id string) ([]imaging.ScoredImage, error) {
	if s.indexOf(id) < 0 {
		return nil, fmt.Errorf("unknown detection id %q", id)
	}
	if err := s.EnsureCurated(ctx); err != nil {
		return nil, err
	}
	return s.curated[id], nil
}

// EnsureCurated crops and curates images for every survivor that has no
// cached result. The CPU-bound scoring runs on one background worker;
// results come back over a channel and are stored here, on the owning
// goroutine. Cancellation is checked between items and is a normal exit:
// finished items stay cached, the rest are retried next call.
func (s *Session) EnsureCurated(ctx context.Context) error {
	var missing []types.Detection
	for i := range s.survivors {
		if _, ok := s.curated[s.survivors[i].ID]; !ok {
			missing = append(missing, s.survivors[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}

	type curateResult struct {
		id     string
		images []imaging.ScoredImage
	}
	results := make(chan curateResult)
	go func() {
		defer close(results)
		for i := range missing {
			if ctx.Err() != nil {
				return
			}
			crops := imaging.Crop(&missing[i], s.sources).Images()
			select {
			case results <- curateResult{id: missing[i].ID, images: s.curator.Curate(crops)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for r := range results {
		s.curated[r.id] = r.images
	}
	return nil
}

// PrimaryThumbnail returns a preview-sized rendition of the item's best
// image, curating first if needed. Returns nil when the item has no
// usable images.
func (s *Session) PrimaryThumbnail(ctx context.Context, id string) (image.Image, error) {
	images, err := s.CuratedImages(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}
	return imaging.Thumbnail(images[0].Image, s.cfg.Imaging.ThumbnailEdge), nil
}

// IsEnriching reports whether an enrichment run is in flight.
func (s *Session) IsEnriching() bool {
	return s.orch != nil && s.orch.IsRunning()
}

// EnrichProgress returns completed and total counts for the current or
// last enrichment run.
func (s *Session) EnrichProgress() (completed, total int) {
	if s.orch == nil {
		return 0, 0
	}
	return s.orch.Progress()
}

// Enrich runs the second AI pass over every survivor, curating images
// first if needed. Results are merged into session state as they arrive.
// Cancellation via ctx is a normal exit that keeps results already
// merged.
func (s *Session) Enrich(ctx context.Context, onResult func(enrich.Result)) error {
	if s.orch == nil {
		return ErrNoAnalyzer
	}
	if err := s.EnsureCurated(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	tasks := make([]enrich.Task, 0, len(s.survivors))
	for i := range s.survivors {
		d := &s.survivors[i]
		var images []image.Image
		for _, scored := range s.curated[d.ID] {
			images = append(images, scored.Image)
		}
		tasks = append(tasks, enrich.Task{Detection: d, Images: images})
	}

	results, err := s.orch.Run(ctx, tasks, onResult)
	if err != nil {
		return err
	}
	for id, fields := range results {
		// A reply the analyzer could not extract anything from is noise,
		// not an enrichment.
		if fields.IsZero() {
			continue
		}
		s.enriched[id] = fields
	}
	return nil
}

// CancelEnrichment aborts any in-flight calls and discards enrichment
// state, so the next run starts clean.
func (s *Session) CancelEnrichment() {
	if s.orch == nil {
		return
	}
	s.orch.CancelInFlight()
	s.orch.Reset()
	clear(s.enriched)
}

// CancelInFlight aborts in-flight enrichment calls without discarding
// results already merged. Used on host suspension.
func (s *Session) CancelInFlight() {
	if s.orch != nil {
		s.orch.CancelInFlight()
	}
}

// SetResumeHook registers a callback fired at most once per interruption
// when the host returns to the foreground.
func (s *Session) SetResumeHook(hook func()) {
	if s.orch != nil {
		s.orch.SetResumeHook(hook)
	}
}

// HandleResume fires the resume hook if the last run was interrupted.
func (s *Session) HandleResume() {
	if s.orch != nil {
		s.orch.HandleResume()
	}
}

// Finalize merges each selected detection with its enrichment result and
// hands the merged record plus its ordered chosen images to the catalog.
// Members of a duplicate group carry a display hint naming how many
// similar detections were found. Returns the saved items in scan order.
func (s *Session) Finalize(ctx context.Context, catalog store.Store) ([]types.Item, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	ids := s.Selected()
	if len(ids) == 0 {
		return nil, ErrNothingSelected
	}
	if err := s.EnsureCurated(ctx); err != nil {
		return nil, err
	}

	saved := make([]types.Item, 0, len(ids))
	for _, id := range ids {
		d := s.survivors[s.indexOf(id)]

		var fields *types.EnrichedFields
		if f, ok := s.enriched[id]; ok {
			fields = &f
		}
		item := Merge(d, fields)
		if g, ok := s.groups[id]; ok && g.Size() > 1 {
			item.DisplayHint = fmt.Sprintf("Potential duplicate (%d similar)", g.Size()-1)
		}

		var images []image.Image
		for _, scored := range s.curated[id] {
			images = append(images, scored.Image)
		}

		if err := catalog.SaveItem(ctx, &item, images); err != nil {
			return saved, fmt.Errorf("save %s: %w", id, err)
		}
		saved = append(saved, item)
	}
	return saved, nil
}
