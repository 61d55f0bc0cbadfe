// Package api publishes the UI-facing engine over local HTTP: JSON
// snapshots, a gesture endpoint and a Server-Sent Events stream.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/genricoloni/hificlock/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// UI is what the render layer may ask of the engine
type UI interface {
	CurrentTrack() domain.TrackRecord
	CurrentScreen() domain.ScreenDecision
	CurrentActivity() domain.ActivityState
	NotifyGesture(dir domain.Gesture) (domain.ScreenDecision, error)
}

type gestureRequest struct {
	Direction domain.Gesture `json:"direction"`
}

// Handler holds the route handlers
type Handler struct {
	logger *zap.Logger
	ui     UI
	broker *Broker
}

// NewRouter creates the chi router. metricsHandler may be nil.
func NewRouter(logger *zap.Logger, ui UI, broker *Broker, metricsHandler http.Handler) chi.Router {
	h := &Handler{logger: logger, ui: ui, broker: broker}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/track", h.Track)
		r.Get("/screen", h.Screen)
		r.Get("/activity", h.Activity)
		r.Post("/gesture", h.Gesture)
		r.Get("/cover", h.Cover)
		r.Get("/events", h.Events)
	})

	return r
}

// Track handles GET /api/track
func (h *Handler) Track(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ui.CurrentTrack())
}

// Screen handles GET /api/screen
func (h *Handler) Screen(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ui.CurrentScreen())
}

// Activity handles GET /api/activity
func (h *Handler) Activity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ui.CurrentActivity())
}

// Gesture handles POST /api/gesture
func (h *Handler) Gesture(w http.ResponseWriter, r *http.Request) {
	var req gestureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	decision, err := h.ui.NotifyGesture(req.Direction)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownGesture) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.logger.Error("Gesture failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// Cover handles GET /api/cover by serving the current cover file
func (h *Handler) Cover(w http.ResponseWriter, r *http.Request) {
	path := h.ui.CurrentTrack().CoverPath
	if path == "" {
		writeJSON(w, http.StatusNotFound, errorBody("no cover"))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.logger.Debug("Cover file unavailable", zap.String("path", path), zap.Error(err))
		writeJSON(w, http.StatusNotFound, errorBody("no cover"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorBody("no cover"))
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// Events handles GET /api/events
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	h.broker.Stream(w, r,
		Event{Type: EventScreenChanged, Data: h.ui.CurrentScreen()},
		Event{Type: EventTrackChanged, Data: h.ui.CurrentTrack()},
	)
}

// requestLogger logs each request through zap
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
