// Package engine is the UI-facing side of the daemon. It owns the lifecycle
// of the stream supervisor and the screen coordinator and answers the render
// loop's questions without blocking.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/genricoloni/hificlock/internal/metrics"
	"github.com/genricoloni/hificlock/internal/monitor"
	"github.com/genricoloni/hificlock/internal/screen"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrUnknownGesture is returned for a direction other than up or down
var ErrUnknownGesture = errors.New("unknown gesture direction")

// Activity is the activity machine as the engine sees it
type Activity interface {
	State() domain.ActivityState
	Transitions() <-chan domain.Transition
}

// Engine orchestrates ingestion and screen selection
type Engine struct {
	logger      *zap.Logger
	supervisor  *monitor.Supervisor
	coordinator *screen.Coordinator
	track       domain.TrackStore
	activity    Activity
	metrics     *metrics.Metrics

	// gestures wakes the coordinator loop so it re-arms its cooldown timer
	gestures chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates a new orchestration engine
func NewEngine(
	logger *zap.Logger,
	sup *monitor.Supervisor,
	coord *screen.Coordinator,
	track domain.TrackStore,
	activity Activity,
	m *metrics.Metrics,
) *Engine {
	e := &Engine{
		logger:      logger,
		supervisor:  sup,
		coordinator: coord,
		track:       track,
		activity:    activity,
		metrics:     m,
		gestures:    make(chan struct{}, 1),
	}
	coord.OnChange(func(d domain.ScreenDecision) {
		e.metrics.ObserveScreen(string(d.Target), d.Manual)
	})
	return e
}

// CurrentTrack returns a copy of the current track record
func (e *Engine) CurrentTrack() domain.TrackRecord {
	return e.track.Snapshot()
}

// CurrentScreen returns the latest screen decision. It never blocks.
func (e *Engine) CurrentScreen() domain.ScreenDecision {
	return e.coordinator.Current()
}

// CurrentActivity returns the playback state as of the last applied chunk.
// It is updated on the ingest goroutine, ahead of any track change that
// followed it in the stream, whereas CurrentScreen follows once the
// coordinator loop has seen the transition.
func (e *Engine) CurrentActivity() domain.ActivityState {
	return e.activity.State()
}

// NotifyGesture applies a manual screen choice
func (e *Engine) NotifyGesture(dir domain.Gesture) (domain.ScreenDecision, error) {
	if _, ok := dir.Target(); !ok {
		return e.coordinator.Current(), fmt.Errorf("%w: %q", ErrUnknownGesture, dir)
	}

	e.logger.Debug("Gesture received", zap.String("direction", string(dir)))
	decision := e.coordinator.Decide(nil, &dir)

	select {
	case e.gestures <- struct{}{}:
	default:
	}
	return decision, nil
}

// OnTrackChange forwards track updates to fn
func (e *Engine) OnTrackChange(fn monitor.TrackFunc) {
	e.supervisor.OnTrackChange(fn)
}

// OnScreenChange forwards screen changes to fn
func (e *Engine) OnScreenChange(fn screen.ChangeFunc) {
	e.coordinator.OnChange(fn)
}

// Start launches the supervisor and the coordinator loop.
// It returns immediately (non-blocking).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	e.logger.Info("Engine starting...",
		zap.String("screen", string(e.coordinator.Current().Target)))

	// The fx start context ends with OnStart, so the loops get their own
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := e.supervisor.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.coordinator.Run(runCtx, e.activity.Transitions(), e.gestures)
	}()
	return nil
}

// Stop cancels the loops and waits for them to exit
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	e.logger.Info("Engine stopping...")
	err := e.supervisor.Stop(ctx)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("coordinator did not stop: %w", ctx.Err()))
	}
	return err
}
