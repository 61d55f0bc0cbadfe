package track

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/genricoloni/hificlock/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func chunk(code domain.Code, payload string) domain.RawChunk {
	return domain.RawChunk{Code: code, Length: uint64(len(payload)), Payload: []byte(payload)}
}

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	return NewAggregator(zap.NewNop(), filepath.Join(t.TempDir(), "stream-cover"))
}

func TestAggregator_MonotonicMerge(t *testing.T) {
	orders := map[string][]domain.RawChunk{
		"Title Then Artist": {chunk(domain.CodeTitle, "Lightning Song"), chunk(domain.CodeArtist, "Anathema")},
		"Artist Then Title": {chunk(domain.CodeArtist, "Anathema"), chunk(domain.CodeTitle, "Lightning Song")},
	}

	for name, chunks := range orders {
		t.Run(name, func(t *testing.T) {
			agg := newTestAggregator(t)
			for _, c := range chunks {
				if _, changed := agg.Apply(c); !changed {
					t.Errorf("expected %q to change the record", c.Code)
				}
			}

			rec := agg.Snapshot()
			if rec.Title != "Lightning Song" || rec.Artist != "Anathema" {
				t.Errorf("unexpected record: %+v", rec)
			}
		})
	}
}

func TestAggregator_ChangeDetection(t *testing.T) {
	tests := []struct {
		name     string
		prior    []domain.RawChunk
		next     domain.RawChunk
		expected bool
	}{
		{
			name:     "Same Value Is Not A Change",
			prior:    []domain.RawChunk{chunk(domain.CodeAlbum, "Weather Systems")},
			next:     chunk(domain.CodeAlbum, "Weather Systems"),
			expected: false,
		},
		{
			name:     "Different Value Is A Change",
			prior:    []domain.RawChunk{chunk(domain.CodeAlbum, "Weather Systems")},
			next:     chunk(domain.CodeAlbum, "Distant Satellites"),
			expected: true,
		},
		{
			name:     "Empty Payload Does Not Clear",
			prior:    []domain.RawChunk{chunk(domain.CodeAlbum, "Weather Systems")},
			next:     chunk(domain.CodeAlbum, ""),
			expected: false,
		},
		{
			name:     "Unknown Code Is Ignored",
			next:     chunk("mper", "12345"),
			expected: false,
		},
		{
			name:     "Control Code Is Ignored",
			next:     chunk(domain.CodePause, ""),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(t)
			for _, c := range tt.prior {
				agg.Apply(c)
			}

			_, changed := agg.Apply(tt.next)
			if changed != tt.expected {
				t.Errorf("expected changed=%v, got %v", tt.expected, changed)
			}
		})
	}

	t.Run("Empty Payload Keeps Value", func(t *testing.T) {
		agg := newTestAggregator(t)
		agg.Apply(chunk(domain.CodeAlbum, "Weather Systems"))
		agg.Apply(chunk(domain.CodeAlbum, ""))
		if got := agg.Snapshot().Album; got != "Weather Systems" {
			t.Errorf("album was cleared: %q", got)
		}
	})
}

func TestAggregator_Picture(t *testing.T) {
	agg := newTestAggregator(t)

	rec, changed := agg.Apply(chunk(domain.CodePicture, "\xff\xd8\xff-first"))
	if !changed {
		t.Fatal("first picture should change the record")
	}
	if rec.CoverPath != agg.coverFile {
		t.Errorf("expected cover path %s, got %s", agg.coverFile, rec.CoverPath)
	}

	data, err := os.ReadFile(rec.CoverPath)
	if err != nil {
		t.Fatalf("cover file not written: %v", err)
	}
	if string(data) != "\xff\xd8\xff-first" {
		t.Errorf("unexpected cover content %q", data)
	}

	if _, changed := agg.Apply(chunk(domain.CodeCover, "\xff\xd8\xff-first")); changed {
		t.Error("identical picture should not be a change")
	}

	if _, changed := agg.Apply(chunk(domain.CodePictureAlt, "\x89PNG-second")); !changed {
		t.Error("new picture should be a change even though the path is fixed")
	}
	data, _ = os.ReadFile(agg.coverFile)
	if string(data) != "\x89PNG-second" {
		t.Errorf("cover file was not overwritten: %q", data)
	}

	if _, changed := agg.Apply(chunk(domain.CodePicture, "")); changed {
		t.Error("empty picture should be ignored")
	}
}

func TestAggregator_ResetClears(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Apply(chunk(domain.CodeArtist, "Anathema"))
	agg.Apply(chunk(domain.CodePicture, "img"))

	agg.Reset()

	if rec := agg.Snapshot(); !rec.IsEmpty() {
		t.Errorf("expected empty record after reset, got %+v", rec)
	}
	if agg.StreamCover() != "" {
		t.Error("stream cover should be forgotten after reset")
	}

	// The same picture after a reset belongs to a new session
	if _, changed := agg.Apply(chunk(domain.CodePicture, "img")); !changed {
		t.Error("picture after reset should be a change")
	}
}

func TestAggregator_SetCover(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Apply(chunk(domain.CodeArtist, "Anathema"))
	agg.Apply(chunk(domain.CodeAlbum, "Weather Systems"))

	gen := agg.Generation()
	if !agg.SetCover(gen, "Anathema", "Weather Systems", "/cache/anathema_weather_systems.jpg") {
		t.Fatal("matching resolution should be applied")
	}
	if agg.SetCover(gen, "Anathema", "Judgement", "/cache/other.jpg") {
		t.Error("stale resolution should be dropped")
	}
	if got := agg.Snapshot().CoverPath; got != "/cache/anathema_weather_systems.jpg" {
		t.Errorf("unexpected cover path %s", got)
	}
}

func TestAggregator_SetCoverAfterReset(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Apply(chunk(domain.CodeArtist, "Anathema"))
	agg.Apply(chunk(domain.CodeAlbum, "Weather Systems"))
	before := agg.Generation()

	agg.Reset()
	agg.Apply(chunk(domain.CodeArtist, "Anathema"))
	agg.Apply(chunk(domain.CodeAlbum, "Weather Systems"))

	if agg.Generation() == before {
		t.Fatal("reset should start a new generation")
	}
	if agg.SetCover(before, "Anathema", "Weather Systems", "/old-session/art.jpg") {
		t.Error("resolution from a previous session should be dropped")
	}
	if got := agg.Snapshot().CoverPath; got != "" {
		t.Errorf("expected no cover, got %s", got)
	}
	if !agg.SetCover(agg.Generation(), "Anathema", "Weather Systems", "/cache/anathema_weather_systems.jpg") {
		t.Error("resolution from the current session should be applied")
	}
}

func TestAggregator_LogsOutsideLock(t *testing.T) {
	var agg *Aggregator
	core, logs := observer.New(zapcore.DebugLevel)
	// A hook that reads the record would deadlock if the lock were held
	hooked := zapcore.RegisterHooks(core, func(zapcore.Entry) error {
		agg.Snapshot()
		return nil
	})
	agg = NewAggregator(zap.New(hooked), filepath.Join(t.TempDir(), "stream-cover"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		agg.Apply(chunk(domain.CodeArtist, "Anathema"))
		agg.Apply(chunk(domain.CodePicture, "img"))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logging while holding the record lock")
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 debug entries, got %d", logs.Len())
	}
}
