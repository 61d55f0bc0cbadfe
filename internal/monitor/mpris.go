package monitor

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/genricoloni/hificlock/internal/decoder"
	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	// shairportPrefix matches ShairportSync and ShairportSync.iN instances
	shairportPrefix = "org.mpris.MediaPlayer2.ShairportSync"
)

// MprisSource reads the receiver's MPRIS interface over D-Bus. It carries
// text metadata, playback status and the cover file, but no raw frames.
type MprisSource struct {
	logger *zap.Logger
	bus    string
	dial   func(bus string) (DBusClient, error)
}

// NewMprisSource creates a source on the "session" or "system" bus
func NewMprisSource(logger *zap.Logger, bus string) *MprisSource {
	return &MprisSource{
		logger: logger,
		bus:    bus,
		dial: func(bus string) (DBusClient, error) {
			return NewStdDBusClient(bus)
		},
	}
}

// Name identifies the source in logs
func (s *MprisSource) Name() string {
	return "mpris:" + s.bus
}

// Open connects to the bus and subscribes to player signals
func (s *MprisSource) Open(ctx context.Context) (domain.ChunkReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := s.dial(s.bus)
	if err != nil {
		return nil, fmt.Errorf("%w: bus connection failed: %v", ErrSourceUnavailable, err)
	}

	r := newMprisReader(s.logger, conn)
	if err := r.subscribe(); err != nil {
		if cerr := conn.Close(); cerr != nil {
			s.logger.Warn("Failed to close D-Bus connection", zap.Error(cerr))
		}
		return nil, err
	}

	if err := r.detectExistingPlayers(); err != nil {
		s.logger.Warn("Failed to detect existing players", zap.Error(err))
	}

	s.logger.Info("MPRIS source connected", zap.String("bus", s.bus))
	return r, nil
}

// mprisReader translates D-Bus signals into chunks
type mprisReader struct {
	logger  *zap.Logger
	conn    DBusClient
	signals chan *dbus.Signal
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error

	mu          sync.RWMutex
	pending     []domain.RawChunk
	playerNames map[string]string // Maps unique bus names (:1.45) to well-known names
}

func newMprisReader(logger *zap.Logger, conn DBusClient) *mprisReader {
	return &mprisReader{
		logger:      logger,
		conn:        conn,
		signals:     make(chan *dbus.Signal, 10),
		done:        make(chan struct{}),
		playerNames: make(map[string]string),
	}
}

func (r *mprisReader) subscribe() error {
	if err := r.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	// Track receivers appearing and disappearing
	if err := r.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		r.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	}

	r.conn.Signal(r.signals)
	return nil
}

// ReadChunks blocks until a signal arrives or the reader is closed
func (r *mprisReader) ReadChunks() ([]domain.RawChunk, error) {
	if chunks := r.takePending(); len(chunks) > 0 {
		return chunks, nil
	}

	select {
	case <-r.done:
		return nil, fmt.Errorf("mpris reader closed: %w", os.ErrClosed)
	case sig, ok := <-r.signals:
		if !ok {
			return nil, fmt.Errorf("d-bus connection closed")
		}
		if sig == nil {
			return nil, nil
		}
		if sig.Name == "org.freedesktop.DBus.NameOwnerChanged" {
			r.handleNameOwnerChanged(sig)
		} else {
			r.enqueue(r.handleSignal(sig)...)
		}
		return r.takePending(), nil
	}
}

func (r *mprisReader) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.closeErr = r.conn.Close()
	})
	return r.closeErr
}

func (r *mprisReader) enqueue(chunks ...domain.RawChunk) {
	if len(chunks) == 0 {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, chunks...)
	r.mu.Unlock()
}

func (r *mprisReader) takePending() []domain.RawChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunks := r.pending
	r.pending = nil
	return chunks
}

// detectExistingPlayers queries D-Bus for a receiver that is already running
func (r *mprisReader) detectExistingPlayers() error {
	names, err := r.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	playerCount := 0
	for _, name := range names {
		if !strings.HasPrefix(name, shairportPrefix) {
			continue
		}
		playerCount++
		r.logger.Info("Detected receiver player", zap.String("name", name))

		if uniqueName, err := r.conn.GetNameOwner(name); err == nil {
			r.mu.Lock()
			r.playerNames[uniqueName] = name
			r.mu.Unlock()
		}

		if err := r.fetchPlayerMetadata(name); err != nil {
			r.logger.Warn("Failed to fetch initial metadata",
				zap.String("player", name),
				zap.Error(err))
		}
	}

	r.logger.Info("Player detection complete", zap.Int("count", playerCount))
	return nil
}

// fetchPlayerMetadata queues the current metadata and status of a player
func (r *mprisReader) fetchPlayerMetadata(playerName string) error {
	variant, err := r.conn.GetProperty(playerName, mprisPath, mprisPlayerIface+".Metadata")
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	// Idle receivers may return an empty or mistyped variant
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		r.logger.Debug("Metadata variant is not a map, skipping", zap.String("player", playerName))
		return nil
	}

	statusVariant, err := r.conn.GetProperty(playerName, mprisPath, mprisPlayerIface+".PlaybackStatus")
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}

	status, ok := statusVariant.Value().(string)
	if !ok {
		return fmt.Errorf("invalid playback status format")
	}

	chunks := r.parseMetadata(metadata)
	if c, ok := statusChunk(status); ok {
		chunks = append(chunks, c)
	}
	r.enqueue(chunks...)
	return nil
}

// handleNameOwnerChanged tracks the receiver's lifecycle. Appearing and
// disappearing map onto session boundaries.
func (r *mprisReader) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, shairportPrefix) {
		return
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	switch {
	case newOwner != "" && oldOwner == "":
		r.mu.Lock()
		r.playerNames[newOwner] = name
		r.mu.Unlock()

		r.logger.Info("Receiver player appeared", zap.String("player", name), zap.String("unique", newOwner))
		r.enqueue(domain.RawChunk{Code: domain.CodeConnect})

		if err := r.fetchPlayerMetadata(name); err != nil {
			r.logger.Warn("Failed to fetch metadata from new player",
				zap.String("player", name),
				zap.Error(err))
		}

	case newOwner == "" && oldOwner != "":
		r.mu.Lock()
		delete(r.playerNames, oldOwner)
		r.mu.Unlock()

		r.logger.Info("Receiver player removed", zap.String("player", name), zap.String("unique", oldOwner))
		r.enqueue(domain.RawChunk{Code: domain.CodeDisconnect})

	case newOwner != "" && oldOwner != "":
		r.mu.Lock()
		delete(r.playerNames, oldOwner)
		r.playerNames[newOwner] = name
		r.mu.Unlock()

		r.logger.Debug("Receiver player ownership changed",
			zap.String("player", name),
			zap.String("oldUnique", oldOwner),
			zap.String("newUnique", newOwner))
	}
}

// handleSignal converts a PropertiesChanged signal from a tracked player
func (r *mprisReader) handleSignal(sig *dbus.Signal) []domain.RawChunk {
	// PropertiesChanged carries: interface name, changed properties,
	// invalidated properties
	if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" {
		return nil
	}
	if len(sig.Body) < 2 {
		return nil
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != mprisPlayerIface {
		return nil
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil
	}

	playerName, tracked := r.getPlayerName(sig.Sender)
	if !tracked {
		r.logger.Debug("Ignoring signal from untracked player", zap.String("sender", sig.Sender))
		return nil
	}

	var chunks []domain.RawChunk

	if v, ok := changedProps["Metadata"]; ok {
		metadata, ok := v.Value().(map[string]dbus.Variant)
		if !ok {
			r.logger.Warn("Invalid metadata format in signal, ignoring")
			return nil
		}
		chunks = append(chunks, r.parseMetadata(metadata)...)
	}

	if v, ok := changedProps["PlaybackStatus"]; ok {
		status, ok := v.Value().(string)
		if !ok {
			r.logger.Warn("Invalid playback status format in signal, ignoring")
			return nil
		}
		if c, ok := statusChunk(status); ok {
			chunks = append(chunks, c)
		}
	}

	if len(chunks) > 0 {
		r.logger.Debug("Received PropertiesChanged signal",
			zap.String("player", playerName),
			zap.Int("chunks", len(chunks)))
	}
	return chunks
}

// parseMetadata converts MPRIS metadata into text and picture chunks
func (r *mprisReader) parseMetadata(metadata map[string]dbus.Variant) []domain.RawChunk {
	var chunks []domain.RawChunk
	text := func(code domain.Code, value string) {
		chunks = append(chunks, domain.RawChunk{Code: code, Length: uint64(len(value)), Payload: []byte(value)})
	}

	if v, ok := metadata["xesam:title"]; ok {
		if title, ok := v.Value().(string); ok {
			text(domain.CodeTitle, title)
		}
	}

	// xesam:artist is a string array; some players send a plain string
	if v, ok := metadata["xesam:artist"]; ok {
		switch artists := v.Value().(type) {
		case []string:
			if len(artists) > 0 {
				text(domain.CodeArtist, artists[0])
			}
		case string:
			text(domain.CodeArtist, artists)
		default:
			r.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", v.Value())))
		}
	}

	if v, ok := metadata["xesam:album"]; ok {
		if album, ok := v.Value().(string); ok {
			text(domain.CodeAlbum, album)
		}
	}

	if v, ok := metadata["mpris:artUrl"]; ok {
		if artURL, ok := v.Value().(string); ok && artURL != "" {
			if data, err := readArt(artURL); err != nil {
				r.logger.Debug("Cover from artUrl unavailable", zap.String("url", artURL), zap.Error(err))
			} else {
				chunks = append(chunks, domain.RawChunk{Code: domain.CodePicture, Length: uint64(len(data)), Payload: data})
			}
		}
	}

	return chunks
}

// getPlayerName returns the well-known name for a unique bus name and
// whether the sender is a tracked receiver
func (r *mprisReader) getPlayerName(uniqueName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if wellKnown, ok := r.playerNames[uniqueName]; ok {
		return wellKnown, true
	}
	return uniqueName, strings.HasPrefix(uniqueName, shairportPrefix)
}

func statusChunk(status string) (domain.RawChunk, bool) {
	switch status {
	case "Playing":
		return domain.RawChunk{Code: domain.CodeResume}, true
	case "Paused":
		return domain.RawChunk{Code: domain.CodePause}, true
	case "Stopped":
		return domain.RawChunk{Code: domain.CodePlayEnd}, true
	default:
		return domain.RawChunk{}, false
	}
}

// readArt loads a local cover referenced by a file:// URL
func readArt(artURL string) ([]byte, error) {
	u, err := url.Parse(artURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	info, err := os.Stat(u.Path)
	if err != nil {
		return nil, err
	}
	if info.Size() > decoder.MaxPayload {
		return nil, fmt.Errorf("cover too large: %d bytes", info.Size())
	}
	return os.ReadFile(u.Path)
}
