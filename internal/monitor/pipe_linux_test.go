package monitor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/genricoloni/hificlock/internal/decoder"
	"github.com/genricoloni/hificlock/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func makeFIFO(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shairport-sync-metadata")
	if err := unix.Mkfifo(path, 0600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	return path
}

func TestPipeSource_MissingPipe(t *testing.T) {
	src := NewPipeSource(zap.NewNop(), filepath.Join(t.TempDir(), "absent"), decoder.New(""), nil)

	_, err := src.Open(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestPipeSource_ReadsFramesAcrossWriters(t *testing.T) {
	path := makeFIFO(t)
	dec := decoder.New("")
	src := NewPipeSource(zap.NewNop(), path, dec, nil)

	reader, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer reader.Close()

	got := make(chan domain.RawChunk, 8)
	go func() {
		for {
			chunks, err := reader.ReadChunks()
			for _, c := range chunks {
				got <- c
			}
			if err != nil {
				close(got)
				return
			}
		}
	}()

	write := func(data []byte) {
		w, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			t.Fatalf("open writer: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write: %v", err)
		}
		w.Close()
	}

	// First writer splits a frame and then goes away
	frame := dec.Encode(domain.CodeArtist, []byte("Anathema"))
	write(frame[:7])
	write(frame[7:])
	write(dec.Encode(domain.CodeAlbum, []byte("Weather Systems")))

	for _, want := range []string{"Anathema", "Weather Systems"} {
		select {
		case c := <-got:
			if string(c.Payload) != want {
				t.Errorf("expected %q, got %q", want, c.Payload)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	// Close unblocks the pending read
	reader.Close()
	select {
	case _, ok := <-got:
		if ok {
			t.Error("unexpected chunk after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not unblock the reader")
	}
}

func TestPipeSource_ReplaysRegularFileOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.bin")
	dec := decoder.New("")
	if err := os.WriteFile(path, dec.Encode(domain.CodeTitle, []byte("Lightning Song")), 0644); err != nil {
		t.Fatal(err)
	}
	src := NewPipeSource(zap.NewNop(), path, dec, nil)

	drain := func() []string {
		t.Helper()
		reader, err := src.Open(context.Background())
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		defer reader.Close()

		var titles []string
		for {
			chunks, err := reader.ReadChunks()
			for _, c := range chunks {
				titles = append(titles, string(c.Payload))
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					t.Fatalf("unexpected read error: %v", err)
				}
				return titles
			}
		}
	}

	if got := drain(); len(got) != 1 || got[0] != "Lightning Song" {
		t.Fatalf("unexpected replay %v", got)
	}

	// Unchanged capture is not replayed again
	if _, err := src.Open(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}

	// A new capture is
	later := time.Now().Add(time.Minute)
	if err := os.WriteFile(path, dec.Encode(domain.CodeTitle, []byte("Untouchable, Part 1")), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if got := drain(); len(got) != 1 || got[0] != "Untouchable, Part 1" {
		t.Errorf("unexpected second replay %v", got)
	}
}
