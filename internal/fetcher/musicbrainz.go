package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMusicBrainzURL is the public web service root
	DefaultMusicBrainzURL = "https://musicbrainz.org/ws/2"
	// DefaultCoverArchiveURL is the public Cover Art Archive root
	DefaultCoverArchiveURL = "https://coverartarchive.org"
)

// ErrNoRelease is returned when the search matched nothing
var ErrNoRelease = errors.New("no matching release")

// MusicBrainz resolves artist/album pairs to release MBIDs and builds
// Cover Art Archive URLs for them
type MusicBrainz struct {
	logger     *zap.Logger
	client     *http.Client
	baseURL    string
	archiveURL string
	userAgent  string
}

// NewMusicBrainz creates a client. Empty URLs fall back to the public services.
func NewMusicBrainz(logger *zap.Logger, baseURL, archiveURL, userAgent string) *MusicBrainz {
	if baseURL == "" {
		baseURL = DefaultMusicBrainzURL
	}
	if archiveURL == "" {
		archiveURL = DefaultCoverArchiveURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &MusicBrainz{
		logger:     logger,
		client:     &http.Client{Timeout: 5 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		archiveURL: strings.TrimRight(archiveURL, "/"),
		userAgent:  userAgent,
	}
}

type releaseSearch struct {
	Releases []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Score int    `json:"score"`
	} `json:"releases"`
}

// FindRelease returns the MBID of the best matching release
func (m *MusicBrainz) FindRelease(ctx context.Context, artist, album string) (string, error) {
	u, err := url.Parse(m.baseURL + "/release")
	if err != nil {
		return "", fmt.Errorf("invalid musicbrainz url: %w", err)
	}
	q := u.Query()
	q.Set("query", fmt.Sprintf("artist:%s AND release:%s", quoteLucene(artist), quoteLucene(album)))
	q.Set("fmt", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("musicbrainz request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("musicbrainz status %d", resp.StatusCode)
	}

	var result releaseSearch
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode musicbrainz response: %w", err)
	}

	if len(result.Releases) == 0 || result.Releases[0].ID == "" {
		return "", fmt.Errorf("%w: %s / %s", ErrNoRelease, artist, album)
	}

	match := result.Releases[0]
	m.logger.Debug("MusicBrainz release matched",
		zap.String("artist", artist),
		zap.String("album", album),
		zap.String("mbid", match.ID),
		zap.Int("score", match.Score))
	return match.ID, nil
}

// FrontCoverURL returns the Cover Art Archive front image URL for mbid
func (m *MusicBrainz) FrontCoverURL(mbid string) string {
	return m.archiveURL + "/release/" + url.PathEscape(mbid) + "/front"
}

// quoteLucene wraps s in a phrase query, escaping embedded quotes and backslashes
func quoteLucene(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
