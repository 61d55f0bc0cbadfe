package domain

import "time"

// Code is the 4-character type tag of a metadata chunk (e.g. "minm", "PICT")
type Code string

const (
	// CodeTitle carries the track title
	CodeTitle Code = "minm"
	// CodeArtist carries the track artist
	CodeArtist Code = "asar"
	// CodeAlbum carries the album name
	CodeAlbum Code = "asal"
	// CodePicture carries raw cover art bytes
	CodePicture Code = "PICT"
	// CodePictureAlt and CodeCover are alternate picture tags seen in the wild
	CodePictureAlt Code = "pic "
	CodeCover      Code = "covr"

	// Session control
	CodeConnect    Code = "conn"
	CodeDisconnect Code = "disc"

	// Playback control
	CodePlayBegin   Code = "pbeg"
	CodePlayEnd     Code = "pend"
	CodeFlush       Code = "pfls"
	CodePause       Code = "paus"
	CodeResume      Code = "prsm"
	CodeActiveBegin Code = "abeg"
	CodeActiveEnd   Code = "aend"
	CodeFirstFrame  Code = "pffr"
)

// IsPicture reports whether the code carries cover art
func (c Code) IsPicture() bool {
	return c == CodePicture || c == CodePictureAlt || c == CodeCover
}

// IsSessionBoundary reports whether the code starts or ends a sender session
func (c Code) IsSessionBoundary() bool {
	return c == CodeConnect || c == CodeDisconnect
}

// RawChunk is one decoded metadata frame. It is not retained after being applied.
type RawChunk struct {
	Code    Code
	Length  uint64
	Payload []byte
}

// TrackRecord holds the best-known metadata for the track currently playing.
// An empty string means the field has not been received in this session.
type TrackRecord struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	CoverPath string `json:"cover_path"`
}

// IsEmpty reports whether no field is set
func (t TrackRecord) IsEmpty() bool {
	return t == TrackRecord{}
}

// ActivityState is whether audio is currently streaming from the sender
type ActivityState struct {
	Active           bool      `json:"active"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// Transition is an edge-triggered activity change
type Transition struct {
	Active bool      `json:"active"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// Screen identifies the view the kiosk should be showing
type Screen string

const (
	// ScreenClock is the idle clock face
	ScreenClock Screen = "clock"
	// ScreenPlayer is the now-playing view
	ScreenPlayer Screen = "player"
)

// ScreenDecision is an immutable snapshot consumed by the render loop
type ScreenDecision struct {
	Target    Screen    `json:"target"`
	DecidedAt time.Time `json:"decided_at"`
	Manual    bool      `json:"manual"`
}

// Gesture is the raw swipe/scroll direction reported by the UI
type Gesture string

const (
	// GestureUp requests the clock
	GestureUp Gesture = "up"
	// GestureDown requests the player
	GestureDown Gesture = "down"
)

// Target returns the screen a gesture asks for
func (g Gesture) Target() (Screen, bool) {
	switch g {
	case GestureUp:
		return ScreenClock, true
	case GestureDown:
		return ScreenPlayer, true
	default:
		return "", false
	}
}

// ScreenResolution holds the display dimensions
type ScreenResolution struct {
	Width  int
	Height int
}
