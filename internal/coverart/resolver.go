// Package coverart turns artist/album pairs into a displayable cover image.
//
// Resolution walks a fixed chain (stream picture, session continuation,
// local cache, remote lookup, placeholder) and always yields a path.
package coverart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/genricoloni/hificlock/internal/fetcher"
	"github.com/genricoloni/hificlock/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

//go:generate mockgen -destination=mocks/release_finder_mock.go -package=mocks github.com/genricoloni/hificlock/internal/coverart ReleaseFinder

// ReleaseFinder looks up release identifiers in a public catalogue
type ReleaseFinder interface {
	// FindRelease returns the catalogue ID of the best matching release
	FindRelease(ctx context.Context, artist, album string) (string, error)
	// FrontCoverURL returns where the front cover of a release can be fetched
	FrontCoverURL(id string) string
}

// ErrNotFound is returned when no remote cover exists for a pair
var ErrNotFound = errors.New("cover not found")

// DefaultLookupTimeout bounds the whole remote lookup
const DefaultLookupTimeout = 8 * time.Second

// Source names the step of the chain that produced a path
type Source string

const (
	SourceStream   Source = "stream"
	SourceSession  Source = "session"
	SourceReceiver Source = "receiver"
	SourceCache    Source = "cache"
	SourceRemote   Source = "remote"
	SourceDefault  Source = "default"
)

// Options configures a Resolver
type Options struct {
	// ReceiverDir is where the receiver drops its own cover-*.jpg files
	ReceiverDir string
	// DefaultPath overrides the bundled placeholder. Empty, or a file that
	// cannot be used, selects the bundled one.
	DefaultPath string
	// LookupTimeout bounds the remote step
	LookupTimeout time.Duration
	// Metrics is optional
	Metrics *metrics.Metrics
}

// Resolver implements the cover fallback chain
type Resolver struct {
	logger    *zap.Logger
	cache     *Cache
	finder    ReleaseFinder
	fetcher   domain.Fetcher
	processor domain.ImageProcessor
	opts      Options
	now       func() time.Time

	group singleflight.Group

	mu           sync.Mutex
	defaultPath  string
	sessionStart time.Time
	lastResolved map[string]string // key -> path, current session only
}

// NewResolver creates a resolver. The first session starts now.
func NewResolver(
	logger *zap.Logger,
	cache *Cache,
	finder ReleaseFinder,
	images domain.Fetcher,
	processor domain.ImageProcessor,
	opts Options,
) *Resolver {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	r := &Resolver{
		logger:       logger,
		cache:        cache,
		finder:       finder,
		fetcher:      images,
		processor:    processor,
		opts:         opts,
		now:          time.Now,
		lastResolved: make(map[string]string),
	}
	r.sessionStart = r.now()
	r.defaultPath = r.placeholder()
	return r
}

// BeginSession forgets everything learned since the previous reset
func (r *Resolver) BeginSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionStart = r.now()
	clear(r.lastResolved)
}

// Resolve returns the best available cover path. It never fails.
func (r *Resolver) Resolve(ctx context.Context, artist, album, streamPath string) string {
	path, _ := r.ResolveWithSource(ctx, artist, album, streamPath)
	return path
}

// ResolveWithSource is Resolve that also reports which step succeeded
func (r *Resolver) ResolveWithSource(ctx context.Context, artist, album, streamPath string) (string, Source) {
	start := r.now()
	path, source := r.resolve(ctx, artist, album, streamPath)
	r.opts.Metrics.ObserveCover(string(source), r.now().Sub(start))
	return path, source
}

func (r *Resolver) resolve(ctx context.Context, artist, album, streamPath string) (string, Source) {
	r.mu.Lock()
	since := r.sessionStart.Truncate(time.Second)
	r.mu.Unlock()

	if streamPath != "" && modifiedSince(streamPath, since) {
		r.remember(artist, album, streamPath)
		return streamPath, SourceStream
	}

	haveKey := strings.TrimSpace(artist) != "" && strings.TrimSpace(album) != ""
	key := ""
	if haveKey {
		key = Key(artist, album)
	}

	if key != "" {
		r.mu.Lock()
		last, ok := r.lastResolved[key]
		r.mu.Unlock()
		if ok && fileUsable(last) {
			return last, SourceSession
		}
	}

	if path, ok := newestReceiverCover(r.opts.ReceiverDir, since); ok {
		return path, SourceReceiver
	}

	if key != "" {
		if path, ok := r.cache.Get(key); ok {
			r.remember(artist, album, path)
			return path, SourceCache
		}

		path, err := r.lookup(ctx, key, artist, album)
		if err == nil {
			r.remember(artist, album, path)
			return path, SourceRemote
		}
		if errors.Is(err, ErrNotFound) {
			r.logger.Info("No remote cover", zap.String("artist", artist), zap.String("album", album))
		} else {
			r.logger.Warn("Remote cover lookup failed",
				zap.String("artist", artist),
				zap.String("album", album),
				zap.Error(err))
		}
	}

	return r.placeholder(), SourceDefault
}

// placeholder returns the configured default cover if usable, else the
// bundled one, reinstalling it when it went missing from the cache dir
func (r *Resolver) placeholder() string {
	r.mu.Lock()
	current := r.defaultPath
	r.mu.Unlock()

	if current != "" && fileUsable(current) {
		return current
	}

	path := r.opts.DefaultPath
	if path != "" && !fileUsable(path) {
		r.logger.Warn("Configured default cover is not usable, using bundled placeholder", zap.String("path", path))
		path = ""
	}
	if path == "" {
		installed, err := r.cache.InstallPlaceholder()
		if err != nil {
			r.logger.Error("Failed to install placeholder cover", zap.Error(err))
			return current
		}
		path = installed
	}

	r.mu.Lock()
	r.defaultPath = path
	r.mu.Unlock()
	return path
}

// lookup fetches, normalizes and caches a remote cover. Concurrent calls for
// the same key share one request.
func (r *Resolver) lookup(ctx context.Context, key, artist, album string) (string, error) {
	v, err, shared := r.group.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.LookupTimeout)
		defer cancel()

		id, err := r.finder.FindRelease(ctx, artist, album)
		if errors.Is(err, fetcher.ErrNoRelease) {
			return "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		if err != nil {
			return "", fmt.Errorf("release search: %w", err)
		}
		if id == "" {
			return "", ErrNotFound
		}

		raw, err := r.fetcher.Fetch(ctx, r.finder.FrontCoverURL(id))
		if err != nil {
			return "", fmt.Errorf("cover download: %w", err)
		}

		img, err := r.processor.Process(ctx, raw)
		if err != nil {
			return "", fmt.Errorf("cover normalization: %w", err)
		}

		return r.cache.Put(key, img)
	})
	if err != nil {
		return "", err
	}
	if shared {
		r.logger.Debug("Joined in-flight cover lookup", zap.String("key", key))
	}
	return v.(string), nil
}

func (r *Resolver) remember(artist, album, path string) {
	if strings.TrimSpace(artist) == "" || strings.TrimSpace(album) == "" {
		return
	}
	r.mu.Lock()
	r.lastResolved[Key(artist, album)] = path
	r.mu.Unlock()
}

// newestReceiverCover finds the latest cover the receiver itself wrote
// during this session
func newestReceiverCover(dir string, since time.Time) (string, bool) {
	if dir == "" {
		return "", false
	}

	var (
		best     string
		bestTime time.Time
	)
	for _, pattern := range []string{"cover-*.jpg", "cover-*.png"} {
		matches, _ := filepath.Glob(filepath.Join(dir, pattern))
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.Size() == 0 || info.ModTime().Before(since) {
				continue
			}
			if best == "" || info.ModTime().After(bestTime) {
				best, bestTime = m, info.ModTime()
			}
		}
	}
	return best, best != ""
}

func modifiedSince(path string, since time.Time) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return false
	}
	return !info.ModTime().Before(since)
}

func fileUsable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
