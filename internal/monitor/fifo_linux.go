package monitor

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openFIFO opens the metadata pipe without waiting for a writer. A regular
// file at path is opened as-is, which allows replaying captured streams.
// Set pollable for descriptors read in-process; a descriptor handed to a
// child process must stay blocking.
func openFIFO(path string, pollable bool) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrSourceUnavailable, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.Mode()&os.ModeNamedPipe == 0 {
		return os.Open(path)
	}

	// Holding our own write end means the pipe never reports EOF when the
	// receiver closes it between sessions. O_NONBLOCK makes the fd pollable
	// so Close unblocks a pending Read.
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if pollable {
		flags |= unix.O_NONBLOCK
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}
