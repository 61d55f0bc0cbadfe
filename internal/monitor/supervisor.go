package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/genricoloni/hificlock/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultRetryDelay is the wait between failed or lost connections
	DefaultRetryDelay = 2 * time.Second
	// DefaultReadTimeout is how long without data before the stream is reported idle
	DefaultReadTimeout = 30 * time.Second

	// unavailableLogEvery limits repeated "source unavailable" warnings
	unavailableLogEvery = 30
)

// Options tunes the supervisor
type Options struct {
	ReadTimeout time.Duration
	RetryDelay  time.Duration
	// WatchPath, if set, ends a retry wait early when the file is created
	WatchPath string
}

// TrackFunc is notified after the track record changes. It must not block.
type TrackFunc func(domain.TrackRecord)

type coverRequest struct {
	gen    uint64
	artist string
	album  string
	stream string
}

type batch struct {
	chunks []domain.RawChunk
	err    error
}

// Supervisor keeps a metadata source open and feeds its chunks, in stream
// order, to the activity machine and the track aggregator
type Supervisor struct {
	logger   *zap.Logger
	source   domain.Source
	track    domain.TrackStore
	activity domain.ActivityTracker
	resolver domain.CoverResolver
	metrics  *metrics.Metrics
	opts     Options

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	sessionID string
	listeners []TrackFunc

	covers chan coverRequest
}

// NewSupervisor creates a supervisor. m may be nil.
func NewSupervisor(
	logger *zap.Logger,
	source domain.Source,
	track domain.TrackStore,
	activity domain.ActivityTracker,
	resolver domain.CoverResolver,
	m *metrics.Metrics,
	opts Options,
) *Supervisor {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Supervisor{
		logger:    logger,
		source:    source,
		track:     track,
		activity:  activity,
		resolver:  resolver,
		metrics:   m,
		opts:      opts,
		sessionID: uuid.NewString(),
		covers:    make(chan coverRequest, 1),
	}
}

// OnTrackChange registers fn to be called after every record change
func (s *Supervisor) OnTrackChange(fn TrackFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SessionID identifies the current sender session in logs
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Start launches the ingest and cover goroutines. It returns immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.ingest(runCtx)
	go s.resolveCovers(runCtx)

	s.logger.Info("Stream supervisor started",
		zap.String("source", s.source.Name()),
		zap.String("session", s.sessionID))
	return nil
}

// Stop cancels the goroutines and waits for them, or for ctx
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Stream supervisor shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ingest is the connect / consume / back off loop
func (s *Supervisor) ingest(ctx context.Context) {
	defer s.wg.Done()

	watcher := s.newWatcher()
	if watcher != nil {
		defer watcher.Close()
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		reader, err := s.source.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			s.metrics.ObserveRetry()
			s.logOpenFailure(err, failures)
			s.wait(ctx, watcher)
			continue
		}

		failures = 0
		s.metrics.SetSourceUp(true)
		err = multierr.Append(s.consume(ctx, reader), reader.Close())
		s.metrics.SetSourceUp(false)

		if ctx.Err() != nil {
			if err != nil {
				s.logger.Debug("Source closed on shutdown", zap.Error(err))
			}
			return
		}

		s.metrics.ObserveRetry()
		s.logger.Warn("Metadata source lost, retrying",
			zap.String("source", s.source.Name()),
			zap.Duration("delay", s.opts.RetryDelay),
			zap.Error(err))
		s.wait(ctx, watcher)
	}
}

func (s *Supervisor) logOpenFailure(err error, failures int) {
	fields := []zap.Field{
		zap.String("source", s.source.Name()),
		zap.Int("attempt", failures),
		zap.Error(err),
	}
	switch {
	case failures == 1 || failures%unavailableLogEvery == 0:
		if errors.Is(err, ErrSourceUnavailable) {
			s.logger.Info("Metadata source not available yet, waiting", fields...)
		} else {
			s.logger.Warn("Failed to open metadata source", fields...)
		}
	default:
		s.logger.Debug("Metadata source still unavailable", fields...)
	}
}

// consume pumps reads through a helper goroutine so that idle detection and
// cancellation do not depend on the reader honouring deadlines
func (s *Supervisor) consume(ctx context.Context, reader domain.ChunkReader) error {
	batches := make(chan batch)
	done := make(chan struct{})
	defer close(done)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			chunks, err := reader.ReadChunks()
			select {
			case batches <- batch{chunks: chunks, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(s.opts.ReadTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case b := <-batches:
			if len(b.chunks) > 0 {
				s.apply(b.chunks)
			}
			if b.err != nil {
				return b.err
			}
			idle.Reset(s.opts.ReadTimeout)

		case <-idle.C:
			s.logger.Debug("Metadata stream idle",
				zap.Duration("for", s.opts.ReadTimeout),
				zap.String("session", s.SessionID()))
			idle.Reset(s.opts.ReadTimeout)
		}
	}
}

// apply feeds one batch in stream order. Activity sees each chunk before the
// aggregator so a transition is always published ahead of the track update
// that followed it.
func (s *Supervisor) apply(chunks []domain.RawChunk) {
	var (
		record       domain.TrackRecord
		trackChanged bool
		coverDirty   bool
	)

	for _, c := range chunks {
		s.metrics.ObserveChunk(string(c.Code))

		if c.Code.IsSessionBoundary() {
			s.resetSession(c.Code)
			record, trackChanged, coverDirty = domain.TrackRecord{}, true, false
		}

		if tr, ok := s.activity.Apply(c); ok {
			s.metrics.ObserveTransition(tr.Active)
		}

		if rec, changed := s.track.Apply(c); changed {
			record, trackChanged = rec, true
			if c.Code == domain.CodeArtist || c.Code == domain.CodeAlbum || c.Code.IsPicture() {
				coverDirty = true
			}
		}
	}

	if trackChanged {
		s.notify(s.track.Snapshot())
	}
	if coverDirty {
		s.requestCover(coverRequest{
			gen:    s.track.Generation(),
			artist: record.Artist,
			album:  record.Album,
			stream: s.track.StreamCover(),
		})
	}
}

func (s *Supervisor) resetSession(code domain.Code) {
	s.track.Reset()
	s.resolver.BeginSession()
	s.metrics.ObserveSession()

	s.mu.Lock()
	s.sessionID = uuid.NewString()
	id := s.sessionID
	s.mu.Unlock()

	s.logger.Info("Sender session reset", zap.String("code", string(code)), zap.String("session", id))
}

// requestCover replaces any pending request with req
func (s *Supervisor) requestCover(req coverRequest) {
	select {
	case <-s.covers:
	default:
	}
	s.covers <- req
}

// resolveCovers serves cover requests off the ingest path
func (s *Supervisor) resolveCovers(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.covers:
			path := s.resolver.Resolve(ctx, req.artist, req.album, req.stream)
			if s.track.SetCover(req.gen, req.artist, req.album, path) {
				s.logger.Info("Cover resolved",
					zap.String("artist", req.artist),
					zap.String("album", req.album),
					zap.String("path", path))
				s.notify(s.track.Snapshot())
			}
		}
	}
}

func (s *Supervisor) notify(rec domain.TrackRecord) {
	s.mu.Lock()
	listeners := append([]TrackFunc(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(rec)
	}
}

func (s *Supervisor) newWatcher() *fsnotify.Watcher {
	if s.opts.WatchPath == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("File watcher unavailable, using fixed retry delay", zap.Error(err))
		return nil
	}
	if err := w.Add(filepath.Dir(s.opts.WatchPath)); err != nil {
		s.logger.Debug("Cannot watch pipe directory", zap.String("path", s.opts.WatchPath), zap.Error(err))
		w.Close()
		return nil
	}
	return w
}

// wait sleeps for the retry delay. It returns early when the watched path
// is created.
func (s *Supervisor) wait(ctx context.Context, watcher *fsnotify.Watcher) {
	timer := time.NewTimer(s.opts.RetryDelay)
	defer timer.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher != nil {
		events, errs = watcher.Events, watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(s.opts.WatchPath) && ev.Has(fsnotify.Create) {
				s.logger.Debug("Metadata pipe appeared", zap.String("path", ev.Name))
				return
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Debug("File watcher error", zap.Error(err))
		}
	}
}
