package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestMusicBrainz_FindRelease(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		body          string
		expectedID    string
		expectedError string
		notFound      bool
	}{
		{
			name:       "Success - First Release",
			statusCode: http.StatusOK,
			body:       `{"releases":[{"id":"9c4bf4e3-1e0b-4b4e-a4f1-3b1f2b2e5c1d","title":"Weather Systems","score":100}]}`,
			expectedID: "9c4bf4e3-1e0b-4b4e-a4f1-3b1f2b2e5c1d",
		},
		{
			name:       "No Results",
			statusCode: http.StatusOK,
			body:       `{"releases":[]}`,
			notFound:   true,
		},
		{
			name:          "Error - Rate Limited",
			statusCode:    http.StatusServiceUnavailable,
			expectedError: "musicbrainz status 503",
		},
		{
			name:          "Error - Bad JSON",
			statusCode:    http.StatusOK,
			body:          `{"releases":`,
			expectedError: "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var query, agent, path string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				query = r.URL.Query().Get("query")
				agent = r.Header.Get("User-Agent")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			mb := NewMusicBrainz(zap.NewNop(), server.URL+"/ws/2", "", "test-agent/1.0")
			id, err := mb.FindRelease(context.Background(), "Anathema", "Weather Systems")

			if path != "/ws/2/release" {
				t.Errorf("unexpected path %s", path)
			}
			if query != `artist:"Anathema" AND release:"Weather Systems"` {
				t.Errorf("unexpected query %s", query)
			}
			if agent != "test-agent/1.0" {
				t.Errorf("unexpected User-Agent %s", agent)
			}

			switch {
			case tt.notFound:
				if !errors.Is(err, ErrNoRelease) {
					t.Errorf("expected ErrNoRelease, got %v", err)
				}
			case tt.expectedError != "":
				if err == nil || !strings.Contains(err.Error(), tt.expectedError) {
					t.Errorf("expected error containing %q, got %v", tt.expectedError, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if id != tt.expectedID {
					t.Errorf("expected %s, got %s", tt.expectedID, id)
				}
			}
		})
	}
}

func TestMusicBrainz_FrontCoverURL(t *testing.T) {
	mb := NewMusicBrainz(zap.NewNop(), "", "https://coverartarchive.org/", "")
	got := mb.FrontCoverURL("abc-123")
	if got != "https://coverartarchive.org/release/abc-123/front" {
		t.Errorf("unexpected url %s", got)
	}
}

func TestQuoteLucene(t *testing.T) {
	if got := quoteLucene(`Guns N' "Roses"`); got != `"Guns N' \"Roses\""` {
		t.Errorf("unexpected quoting %s", got)
	}
}
