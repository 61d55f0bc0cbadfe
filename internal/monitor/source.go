package monitor

import (
	"errors"
	"fmt"

	"github.com/genricoloni/hificlock/internal/decoder"
	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/genricoloni/hificlock/internal/metrics"
	"go.uber.org/zap"
)

// ErrSourceUnavailable means the stream does not exist yet; the caller
// should wait and retry
var ErrSourceUnavailable = errors.New("metadata source unavailable")

// Source modes
const (
	ModePipe   = "pipe"
	ModeReader = "reader"
	ModeMpris  = "mpris"
)

// SourceOptions selects and configures the metadata source
type SourceOptions struct {
	Mode       string
	PipePath   string
	ReaderPath string
	Signature  string
	Bus        string
}

// NewSource builds the source for opts.Mode
func NewSource(logger *zap.Logger, opts SourceOptions, m *metrics.Metrics) (domain.Source, error) {
	switch opts.Mode {
	case ModePipe, "":
		return NewPipeSource(logger, opts.PipePath, decoder.New(opts.Signature), m), nil
	case ModeReader:
		return NewReaderSource(logger, opts.ReaderPath, opts.PipePath), nil
	case ModeMpris:
		return NewMprisSource(logger, opts.Bus), nil
	default:
		return nil, fmt.Errorf("unknown source mode %q", opts.Mode)
	}
}
