//go:build !linux
// +build !linux

package monitor

import (
	"fmt"
	"os"
)

// openFIFO is not supported outside Linux: the receiver only runs there
func openFIFO(path string, pollable bool) (*os.File, error) {
	return nil, fmt.Errorf("%w: named pipes are only supported on Linux systems", ErrSourceUnavailable)
}
