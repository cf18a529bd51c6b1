package enrich

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packratdev/packrat/internal/types"
)

func testImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 4, 4))
}

func makeTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{
			Detection: &types.Detection{ID: fmt.Sprintf("det-%d", i), Title: "Item", Confidence: 0.9},
			Images:    []image.Image{testImage()},
		}
	}
	return tasks
}

// stubAnalyzer returns canned fields, failing for ids in failIDs. An
// optional gate channel blocks every call until released.
type stubAnalyzer struct {
	mu      sync.Mutex
	calls   int
	failIDs map[string]bool
	gate    chan struct{}
}

func (s *stubAnalyzer) Analyze(ctx context.Context, d *types.Detection, images []image.Image) (*types.EnrichedFields, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.failIDs[d.ID] {
		return nil, errors.New("model unavailable")
	}
	return &types.EnrichedFields{Condition: "good", Title: "Enriched " + d.Title}, nil
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRunEnrichesAllTasks(t *testing.T) {
	o, err := NewOrchestrator(&stubAnalyzer{}, nil)
	require.NoError(t, err)

	results, err := o.Run(context.Background(), makeTasks(5), nil)
	require.NoError(t, err)

	assert.Len(t, results, 5)
	for i := 0; i < 5; i++ {
		fields, ok := results[fmt.Sprintf("det-%d", i)]
		require.True(t, ok)
		assert.Equal(t, "good", fields.Condition)
	}

	completed, total := o.Progress()
	assert.Equal(t, 5, completed)
	assert.Equal(t, 5, total)
	assert.False(t, o.IsRunning())
	assert.True(t, o.IsFinished())
}

func TestRunSkipsItemsWithoutImages(t *testing.T) {
	stub := &stubAnalyzer{}
	o, err := NewOrchestrator(stub, nil)
	require.NoError(t, err)

	tasks := makeTasks(3)
	tasks[1].Images = nil

	var outcomes []Outcome
	var mu sync.Mutex
	results, err := o.Run(context.Background(), tasks, func(r Result) {
		mu.Lock()
		outcomes = append(outcomes, r.Outcome)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.NotContains(t, results, "det-1")
	assert.Equal(t, 2, stub.callCount(), "skipped item must not reach the analyzer")

	skips := 0
	for _, outcome := range outcomes {
		if outcome == OutcomeSkipped {
			skips++
		}
	}
	assert.Equal(t, 1, skips)

	// A skip still counts toward progress.
	completed, total := o.Progress()
	assert.Equal(t, 3, completed)
	assert.Equal(t, 3, total)
}

func TestRunSurvivesItemFailures(t *testing.T) {
	stub := &stubAnalyzer{failIDs: map[string]bool{"det-0": true, "det-2": true}}
	o, err := NewOrchestrator(stub, nil)
	require.NoError(t, err)

	results, err := o.Run(context.Background(), makeTasks(4), nil)
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.NotContains(t, results, "det-0")
	assert.NotContains(t, results, "det-2")
	assert.Contains(t, results, "det-1")
	assert.Contains(t, results, "det-3")
	assert.True(t, o.IsFinished(), "item failures must not prevent the run from finishing")
}

func TestProgressIsMonotonicAndBounded(t *testing.T) {
	o, err := NewOrchestrator(&stubAnalyzer{}, nil)
	require.NoError(t, err)

	last := 0
	var mu sync.Mutex
	_, err = o.Run(context.Background(), makeTasks(8), func(Result) {
		mu.Lock()
		defer mu.Unlock()
		completed, total := o.Progress()
		assert.GreaterOrEqual(t, completed, last)
		assert.LessOrEqual(t, completed, total)
		last = completed
	})
	require.NoError(t, err)

	completed, total := o.Progress()
	assert.Equal(t, total, completed, "a non-cancelled run ends with completed == total")
}

func TestRunGuards(t *testing.T) {
	gate := make(chan struct{})
	o, err := NewOrchestrator(&stubAnalyzer{gate: gate}, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, runErr := o.Run(context.Background(), makeTasks(2), nil)
		assert.NoError(t, runErr)
	}()

	// Wait for the run to start.
	require.Eventually(t, o.IsRunning, time.Second, time.Millisecond)

	_, err = o.Run(context.Background(), makeTasks(1), nil)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(gate)
	<-done

	// A finished run refuses to restart until reset.
	_, err = o.Run(context.Background(), makeTasks(1), nil)
	assert.ErrorIs(t, err, ErrAlreadyFinished)

	o.Reset()
	assert.False(t, o.IsFinished())
	_, err = o.Run(context.Background(), makeTasks(1), nil)
	assert.NoError(t, err)
}

func TestCancellationResetsState(t *testing.T) {
	gate := make(chan struct{})
	o, err := NewOrchestrator(&stubAnalyzer{gate: gate}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	type runOutput struct {
		results map[string]types.EnrichedFields
		err     error
	}
	out := make(chan runOutput, 1)
	go func() {
		results, runErr := o.Run(ctx, makeTasks(4), nil)
		out <- runOutput{results, runErr}
	}()

	require.Eventually(t, o.IsRunning, time.Second, time.Millisecond)
	cancel()

	var got runOutput
	select {
	case got = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run did not return")
	}

	// Cancellation is a normal exit.
	assert.NoError(t, got.err)
	assert.False(t, o.IsRunning())
	assert.False(t, o.IsFinished(), "cancelled run must not count as finished")

	completed, total := o.Progress()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, total)

	// A fresh run can start without an explicit reset.
	close(gate)
	_, err = o.Run(context.Background(), makeTasks(1), nil)
	assert.NoError(t, err)
}

func TestCancelInFlightAbortsRun(t *testing.T) {
	gate := make(chan struct{})
	o, err := NewOrchestrator(&stubAnalyzer{gate: gate}, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Run(context.Background(), makeTasks(3), nil)
	}()

	require.Eventually(t, o.IsRunning, time.Second, time.Millisecond)
	o.CancelInFlight()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CancelInFlight did not stop the run")
	}
	assert.False(t, o.IsFinished())
}

func TestResumeHookFiresOncePerInterruption(t *testing.T) {
	gate := make(chan struct{})
	o, err := NewOrchestrator(&stubAnalyzer{gate: gate}, nil)
	require.NoError(t, err)

	fired := 0
	o.SetResumeHook(func() { fired++ })

	// No interruption yet: nothing fires.
	o.HandleResume()
	assert.Equal(t, 0, fired)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Run(context.Background(), makeTasks(2), nil)
	}()
	require.Eventually(t, o.IsRunning, time.Second, time.Millisecond)

	o.CancelInFlight()
	<-done

	o.HandleResume()
	o.HandleResume()
	assert.Equal(t, 1, fired, "resume hook fires at most once per interruption")
}

func TestRunEmptyTaskList(t *testing.T) {
	o, err := NewOrchestrator(&stubAnalyzer{}, nil)
	require.NoError(t, err)

	results, err := o.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.True(t, o.IsFinished())
}

func TestNewOrchestratorRequiresAnalyzer(t *testing.T) {
	_, err := NewOrchestrator(nil, nil)
	assert.Error(t, err)
}
