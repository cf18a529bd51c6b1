package enrich

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/packratdev/packrat/internal/types"
)

// Guard errors returned by Run.
var (
	// ErrAlreadyRunning is returned when a run is started while another
	// is in flight.
	ErrAlreadyRunning = errors.New("enrichment already running")

	// ErrAlreadyFinished is returned when a run is started after a
	// completed run without an intervening Reset. Restarting silently
	// would re-bill every item, so the caller has to be explicit.
	ErrAlreadyFinished = errors.New("enrichment already finished; reset before starting a new run")
)

// Outcome classifies one item's enrichment result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped" // no curated images to analyze
	OutcomeFailed  Outcome = "failed"  // analyzer error, logged and dropped
)

// Task is one item to enrich: a surviving detection and its curated
// images. Zero images is legal and yields a skip.
type Task struct {
	Detection *types.Detection
	Images    []image.Image
}

// Result is one task's outcome, delivered in completion order.
type Result struct {
	DetectionID string
	Outcome     Outcome
	Fields      *types.EnrichedFields
}

// Orchestrator runs the per-item enrichment pass: one goroutine per task
// in a structured group, results merged on the consuming side as they
// complete. A failing item never aborts the run.
type Orchestrator struct {
	analyzer Analyzer
	logger   *slog.Logger

	mu          sync.Mutex
	runID       string
	running     bool
	finished    bool
	completed   int
	total       int
	cancelRun   context.CancelFunc
	interrupted bool
	resumeHook  func()
}

// NewOrchestrator creates an orchestrator around the given analyzer.
func NewOrchestrator(analyzer Analyzer, logger *slog.Logger) (*Orchestrator, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{analyzer: analyzer, logger: logger}, nil
}

// Run enriches every task and returns the per-detection results that
// succeeded. Skips and failures are absent from the map. On cancellation
// Run returns the results consumed so far with a nil error: cancellation
// is a normal exit, not a failure.
//
// Run must not be called concurrently with itself, while a previous run
// is still in flight, or after a finished run without Reset.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task, onResult func(Result)) (map[string]types.EnrichedFields, error) {
	runCtx, err := o.begin(ctx, len(tasks))
	if err != nil {
		return nil, err
	}

	results := make(chan Result, len(tasks))
	g, gctx := errgroup.WithContext(runCtx)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			results <- o.runTask(gctx, task)
			return nil
		})
	}
	go func() {
		g.Wait() //nolint:errcheck // workers never return errors
		close(results)
	}()

	// Consume in completion order on the coordinating goroutine. Workers
	// only return values; all merging happens here.
	enriched := make(map[string]types.EnrichedFields)
	cancelled := false
	for result := range results {
		if runCtx.Err() != nil {
			cancelled = true
		}
		o.consume(result)
		if result.Outcome == OutcomeSuccess && result.Fields != nil {
			enriched[result.DetectionID] = *result.Fields
		}
		if onResult != nil {
			onResult(result)
		}
	}
	if runCtx.Err() != nil {
		cancelled = true
	}

	o.finish(cancelled)
	return enriched, nil
}

// runTask analyzes one item. Cancellation is checked on entry so a
// drained group stops promptly instead of opening new API calls.
func (o *Orchestrator) runTask(ctx context.Context, task Task) Result {
	id := task.Detection.ID
	if err := ctx.Err(); err != nil {
		return Result{DetectionID: id, Outcome: OutcomeFailed}
	}
	if len(task.Images) == 0 {
		// Not an error: an item can legitimately have no usable crops.
		return Result{DetectionID: id, Outcome: OutcomeSkipped}
	}

	fields, err := o.analyzer.Analyze(ctx, task.Detection, task.Images)
	if err != nil {
		o.logger.Warn("enrichment failed for item", "detection", id, "error", err)
		return Result{DetectionID: id, Outcome: OutcomeFailed}
	}
	return Result{DetectionID: id, Outcome: OutcomeSuccess, Fields: fields}
}

// begin transitions to the running state, enforcing the no-restart guards.
func (o *Orchestrator) begin(ctx context.Context, total int) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil, ErrAlreadyRunning
	}
	if o.finished {
		return nil, ErrAlreadyFinished
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.runID = uuid.NewString()
	o.running = true
	o.completed = 0
	o.total = total
	o.cancelRun = cancel

	o.logger.Info("enrichment run started", "run", o.runID, "items", total)
	return runCtx, nil
}

// consume records one completed task.
func (o *Orchestrator) consume(result Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.completed < o.total {
		o.completed++
	}
	o.logger.Debug("enrichment progress",
		"run", o.runID, "detection", result.DetectionID,
		"outcome", result.Outcome, "completed", o.completed, "total", o.total)
}

// finish leaves the orchestrator restartable after cancellation, or
// finished after a full run.
func (o *Orchestrator) finish(cancelled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.running = false
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	if cancelled {
		// A cancelled run never counts as finished and leaves progress
		// cleared so a fresh run starts from zero.
		o.finished = false
		o.completed = 0
		o.total = 0
		o.logger.Info("enrichment run cancelled", "run", o.runID)
		return
	}
	o.finished = true
	o.logger.Info("enrichment run finished", "run", o.runID, "items", o.total)
}

// Progress returns completed and total task counts for the current or
// most recent run. Completed is monotonic within a run and never exceeds
// total.
func (o *Orchestrator) Progress() (completed, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed, o.total
}

// IsRunning reports whether a run is in flight.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// IsFinished reports whether the last run completed without cancellation.
func (o *Orchestrator) IsFinished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}

// Reset clears the finished flag and progress so a new run can start.
// Callers reset when the detection set changes. No-op while running.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.finished = false
	o.completed = 0
	o.total = 0
}

// CancelInFlight aborts any in-flight analyzer calls. Called when the
// host requests graceful suspension, before an unclean kill would drop
// the connections anyway. Safe to call when idle.
func (o *Orchestrator) CancelInFlight() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelRun != nil {
		o.cancelRun()
	}
	if o.running {
		o.interrupted = true
	}
}

// SetResumeHook installs the callback fired when the host returns to the
// foreground after an interruption.
func (o *Orchestrator) SetResumeHook(hook func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resumeHook = hook
}

// HandleResume fires the resume hook if an interruption occurred since
// the last resume. At most one invocation per interruption.
func (o *Orchestrator) HandleResume() {
	o.mu.Lock()
	hook := o.resumeHook
	fire := o.interrupted && hook != nil
	o.interrupted = false
	o.mu.Unlock()

	if fire {
		hook()
	}
}
