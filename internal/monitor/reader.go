package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/genricoloni/hificlock/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// helperCandidates are tried in order when no helper path is configured
var helperCandidates = []string{
	"shairport-sync-metadata-reader",
	"/usr/local/bin/shairport-sync-metadata-reader",
	"/usr/bin/shairport-sync-metadata-reader",
}

// readerFields maps the helper's metadata lines to chunk codes
var readerFields = []struct {
	prefix string
	code   domain.Code
}{
	{"Title:", domain.CodeTitle},
	{"Artist:", domain.CodeArtist},
	{"Album Name:", domain.CodeAlbum},
}

// readerMarkers maps the helper's log lines to control codes. Order matters:
// the first match wins.
var readerMarkers = []struct {
	text string
	code domain.Code
}{
	{"Client disconnected", domain.CodeDisconnect},
	{"Client connected", domain.CodeConnect},
	{"Enter Active State", domain.CodeActiveBegin},
	{"Exit Active State", domain.CodeActiveEnd},
	{"Play -- first frame received", domain.CodeFirstFrame},
	{"Resume", domain.CodeResume},
	{"Pause", domain.CodePause},
	{"Stop", domain.CodePlayEnd},
}

// ReaderSource runs the receiver's text helper with the FIFO as stdin and
// turns its output back into chunks
type ReaderSource struct {
	logger     *zap.Logger
	helperPath string
	pipePath   string
}

// NewReaderSource creates a source. helperPath may be empty to search the
// usual install locations.
func NewReaderSource(logger *zap.Logger, helperPath, pipePath string) *ReaderSource {
	return &ReaderSource{
		logger:     logger,
		helperPath: helperPath,
		pipePath:   pipePath,
	}
}

// Name identifies the source in logs
func (s *ReaderSource) Name() string {
	return "reader:" + s.pipePath
}

// Open starts the helper process
func (s *ReaderSource) Open(ctx context.Context) (domain.ChunkReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	binary := detectHelper(s.logger, s.helperPath)
	if binary == "" {
		return nil, fmt.Errorf("%w: metadata reader helper not found", ErrSourceUnavailable)
	}

	stdin, err := openFIFO(s.pipePath, false)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary)
	cmd.Stdin = stdin
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to attach to helper output: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	s.logger.Info("Metadata reader started",
		zap.String("binary", binary),
		zap.Int("pid", cmd.Process.Pid))

	return &helperReader{
		logger: s.logger,
		cmd:    cmd,
		stdin:  stdin,
		out:    bufio.NewReader(stdout),
	}, nil
}

type helperReader struct {
	logger *zap.Logger
	cmd    *exec.Cmd
	stdin  *os.File
	out    *bufio.Reader

	closeOnce sync.Once
	closeErr  error
}

// ReadChunks reads one line of helper output
func (r *helperReader) ReadChunks() ([]domain.RawChunk, error) {
	line, err := r.out.ReadString('\n')

	var chunks []domain.RawChunk
	if c, ok := ParseReaderLine(line); ok {
		chunks = append(chunks, c)
	} else if strings.Contains(line, "Picture received") {
		// The helper reports pictures but does not forward them; the
		// receiver's own cover directory is used instead
		r.logger.Debug("Helper reported a picture", zap.String("line", strings.TrimSpace(line)))
	}

	if errors.Is(err, io.EOF) {
		return chunks, fmt.Errorf("metadata reader exited: %w", err)
	}
	return chunks, err
}

// Close kills the helper and releases the pipe
func (r *helperReader) Close() error {
	r.closeOnce.Do(func() {
		var errs error
		if r.cmd.ProcessState == nil {
			if err := r.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				errs = multierr.Append(errs, fmt.Errorf("failed to kill helper: %w", err))
			}
		}
		errs = multierr.Append(errs, r.stdin.Close())

		// A killed helper always reports a non-nil exit status
		if err := r.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				errs = multierr.Append(errs, err)
			}
		}
		r.closeErr = errs
	})
	return r.closeErr
}

// ParseReaderLine converts one line of helper output into a chunk
func ParseReaderLine(line string) (domain.RawChunk, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.RawChunk{}, false
	}

	for _, f := range readerFields {
		if rest, ok := strings.CutPrefix(line, f.prefix); ok {
			value := []byte(unquoteValue(rest))
			return domain.RawChunk{Code: f.code, Length: uint64(len(value)), Payload: value}, true
		}
	}

	for _, m := range readerMarkers {
		if strings.Contains(line, m.text) {
			return domain.RawChunk{Code: m.code}, true
		}
	}
	return domain.RawChunk{}, false
}

// unquoteValue strips the `"value".` decoration the helper prints
func unquoteValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}

// detectHelper returns the first usable helper binary, or "" if none exists
func detectHelper(logger *zap.Logger, configured string) string {
	candidates := helperCandidates
	if configured != "" {
		candidates = append([]string{configured}, helperCandidates...)
	}

	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			logger.Debug("Metadata reader helper detected", zap.String("path", path))
			return path
		}
	}
	return ""
}
