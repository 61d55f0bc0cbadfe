package domain

import "context"

// Source opens a connection to the metadata stream.
// Implementations wrap the receiver FIFO, the vendor reader helper or D-Bus.
type Source interface {
	// Name identifies the source in logs
	Name() string

	// Open connects to the stream. It returns an error wrapping
	// ErrSourceUnavailable-style sentinels when the stream does not exist yet.
	Open(ctx context.Context) (ChunkReader, error)
}

// ChunkReader yields decoded chunks from an opened source
type ChunkReader interface {
	// ReadChunks blocks until at least one read completed. The returned
	// slice may be empty when the read produced only partial frames.
	ReadChunks() ([]RawChunk, error)

	// Close releases the underlying pipe, process or bus connection and
	// unblocks a pending ReadChunks
	Close() error
}

// TrackStore folds chunks into the current TrackRecord
type TrackStore interface {
	Apply(chunk RawChunk) (TrackRecord, bool)
	Reset()
	Snapshot() TrackRecord
	// Generation changes on every Reset; SetCover rejects older generations
	Generation() uint64
	SetCover(gen uint64, artist, album, path string) bool
	// StreamCover is the picture received in this session, or ""
	StreamCover() string
}

// ActivityTracker interprets control chunks as play/pause transitions
type ActivityTracker interface {
	Apply(chunk RawChunk) (Transition, bool)
	State() ActivityState
}

// CoverResolver turns an artist/album pair into a usable image path
type CoverResolver interface {
	// Resolve never fails: the default placeholder is the last resort
	Resolve(ctx context.Context, artist, album, streamPath string) string

	// BeginSession forgets continuation state after a session reset
	BeginSession()
}

// StateStore persists the activity flag across restarts
type StateStore interface {
	Load() (bool, error)
	Save(active bool) error
}

// ImageProcessor defines the interface for in-memory image processing
// This is OS-agnostic and works purely with byte streams
type ImageProcessor interface {
	// Process transforms image data (e.g. fit to display, re-encode)
	// Returns the processed image bytes or an error
	Process(ctx context.Context, imageData []byte) ([]byte, error)
}

// Fetcher defines the interface for retrieving album artwork
type Fetcher interface {
	// Fetch downloads image data from a URL
	// Returns the raw image bytes or an error
	Fetch(ctx context.Context, url string) ([]byte, error)
}
