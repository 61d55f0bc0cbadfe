package track

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/genricoloni/hificlock/internal/decoder"
	"github.com/genricoloni/hificlock/internal/domain"
	"go.uber.org/zap"
)

// Aggregator folds decoded chunks into the current TrackRecord.
// Fields are only ever overwritten by a newer value for the same field or
// cleared wholesale by Reset.
type Aggregator struct {
	logger    *zap.Logger
	coverFile string

	mu          sync.RWMutex
	record      domain.TrackRecord
	generation  uint64   // bumped by Reset
	streamCover string   // path written from the last picture chunk, if any
	coverDigest [32]byte // digest of the last picture payload
}

// NewAggregator creates an aggregator that writes stream-supplied pictures
// to coverFile, overwriting it each time
func NewAggregator(logger *zap.Logger, coverFile string) *Aggregator {
	return &Aggregator{
		logger:    logger,
		coverFile: coverFile,
	}
}

// Apply merges one chunk and reports whether any field value changed.
// Unknown codes are ignored.
func (a *Aggregator) Apply(chunk domain.RawChunk) (domain.TrackRecord, bool) {
	switch {
	case chunk.Code == domain.CodeTitle:
		return a.setText(chunk, func(r *domain.TrackRecord) *string { return &r.Title })
	case chunk.Code == domain.CodeArtist:
		return a.setText(chunk, func(r *domain.TrackRecord) *string { return &r.Artist })
	case chunk.Code == domain.CodeAlbum:
		return a.setText(chunk, func(r *domain.TrackRecord) *string { return &r.Album })
	case chunk.Code.IsPicture():
		return a.setPicture(chunk.Payload)
	default:
		return a.Snapshot(), false
	}
}

func (a *Aggregator) setText(chunk domain.RawChunk, field func(*domain.TrackRecord) *string) (domain.TrackRecord, bool) {
	value := decoder.Text(chunk.Payload)

	if value == "" {
		return a.Snapshot(), false
	}

	a.mu.Lock()
	dst := field(&a.record)
	if *dst == value {
		rec := a.record
		a.mu.Unlock()
		return rec, false
	}
	*dst = value
	rec := a.record
	a.mu.Unlock()

	a.logger.Debug("Track field updated",
		zap.String("code", string(chunk.Code)),
		zap.String("value", value))
	return rec, true
}

// setPicture writes the payload to the fixed cover file. The file write
// happens outside the lock; only the path/digest swap is guarded.
func (a *Aggregator) setPicture(payload []byte) (domain.TrackRecord, bool) {
	if len(payload) == 0 {
		return a.Snapshot(), false
	}

	digest := sha256.Sum256(payload)

	a.mu.RLock()
	same := a.streamCover != "" && bytes.Equal(digest[:], a.coverDigest[:])
	a.mu.RUnlock()
	if same {
		return a.Snapshot(), false
	}

	if err := writeFileAtomic(a.coverFile, payload); err != nil {
		a.logger.Warn("Failed to store stream cover", zap.String("path", a.coverFile), zap.Error(err))
		return a.Snapshot(), false
	}

	a.mu.Lock()
	a.streamCover = a.coverFile
	a.coverDigest = digest
	a.record.CoverPath = a.coverFile
	rec := a.record
	a.mu.Unlock()

	a.logger.Debug("Stream cover stored", zap.String("path", a.coverFile), zap.Int("bytes", len(payload)))
	return rec, true
}

// StreamCover returns the path of the picture received in this session, or
// "" if none arrived since the last reset
func (a *Aggregator) StreamCover() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.streamCover
}

// Generation identifies the current session. It changes on every Reset.
func (a *Aggregator) Generation() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.generation
}

// SetCover records a resolved cover path. It is dropped when a reset happened
// since gen was read, or when the record no longer describes the artist/album
// the resolution was made for.
func (a *Aggregator) SetCover(gen uint64, artist, album, path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return false
	}
	if a.record.Artist != artist || a.record.Album != album {
		return false
	}
	if a.record.CoverPath == path {
		return false
	}
	a.record.CoverPath = path
	return true
}

// Reset clears every field after a session ends
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record = domain.TrackRecord{}
	a.streamCover = ""
	a.coverDigest = [32]byte{}
	a.generation++
}

// Snapshot returns a copy of the current record
func (a *Aggregator) Snapshot() domain.TrackRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record
}

// writeFileAtomic replaces path so readers never see a half-written image
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cover directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
