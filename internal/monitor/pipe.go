package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/genricoloni/hificlock/internal/decoder"
	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/genricoloni/hificlock/internal/metrics"
	"go.uber.org/zap"
)

const readBufferSize = 64 * 1024

// PipeSource decodes the binary frame stream straight from the receiver's FIFO
type PipeSource struct {
	logger  *zap.Logger
	path    string
	dec     *decoder.Decoder
	metrics *metrics.Metrics

	// replayed identifies the regular file already read to the end, so a
	// capture is replayed once rather than on every reconnect
	replayed fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func (f fileStamp) same(o fileStamp) bool {
	return f.size == o.size && f.modTime.Equal(o.modTime)
}

// NewPipeSource creates a source reading path
func NewPipeSource(logger *zap.Logger, path string, dec *decoder.Decoder, m *metrics.Metrics) *PipeSource {
	return &PipeSource{
		logger:  logger,
		path:    path,
		dec:     dec,
		metrics: m,
	}
}

// Name identifies the source in logs
func (s *PipeSource) Name() string {
	return "pipe:" + s.path
}

// Open opens the FIFO. It fails with ErrSourceUnavailable while the pipe
// has not been created yet, and for a regular file that was already replayed
// and has not changed since.
func (s *PipeSource) Open(ctx context.Context) (domain.ChunkReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := openFIFO(s.path, true)
	if err != nil {
		return nil, err
	}

	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}
		if stamp.same(s.replayed) {
			f.Close()
			return nil, fmt.Errorf("%w: %s already replayed", ErrSourceUnavailable, s.path)
		}
		s.replayed = stamp
		s.logger.Info("Replaying captured metadata", zap.String("path", s.path), zap.Int64("bytes", stamp.size))
		return s.newReader(f), nil
	}

	s.logger.Info("Metadata pipe opened", zap.String("path", s.path))
	return s.newReader(f), nil
}

func (s *PipeSource) newReader(f *os.File) *pipeReader {
	return &pipeReader{
		logger:  s.logger,
		file:    f,
		buf:     decoder.NewBuffer(s.dec),
		scratch: make([]byte, readBufferSize),
		metrics: s.metrics,
	}
}

type pipeReader struct {
	logger  *zap.Logger
	file    io.ReadCloser
	buf     *decoder.Buffer
	scratch []byte
	metrics *metrics.Metrics

	skipped   uint64
	overflows uint64
}

// ReadChunks performs one read. Chunks completed by the read are returned
// together with any read error.
func (r *pipeReader) ReadChunks() ([]domain.RawChunk, error) {
	n, err := r.file.Read(r.scratch)
	var chunks []domain.RawChunk
	if n > 0 {
		chunks = r.buf.Feed(r.scratch[:n])
		r.report()
	}
	return chunks, err
}

func (r *pipeReader) report() {
	if delta := r.buf.Skipped - r.skipped; delta > 0 {
		r.metrics.AddResyncBytes(delta)
		r.logger.Debug("Resynchronized frame stream", zap.Uint64("skipped", delta))
		r.skipped = r.buf.Skipped
	}
	if r.buf.Overflows != r.overflows {
		r.logger.Warn("Discarded oversized partial frame", zap.Uint64("total", r.buf.Overflows))
		r.overflows = r.buf.Overflows
	}
}

func (r *pipeReader) Close() error {
	return r.file.Close()
}
