// Package httpapi exposes the studio over JSON/HTTP and streams studio
// events over a WebSocket.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/history"
	"github.com/loqalabs/vocalforge/internal/speech"
	"github.com/loqalabs/vocalforge/internal/studio"
	"github.com/loqalabs/vocalforge/internal/voices"
)

const maxJSONBody = 1 << 20

// API serves the studio endpoints.
type API struct {
	studio       *studio.Studio
	history      *history.Store
	profiles     *voices.Profiles
	urls         *blob.URLRegistry
	maxReference int64
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

func New(st *studio.Studio, store *history.Store, profiles *voices.Profiles, urls *blob.URLRegistry, maxReference int, logger *slog.Logger) *API {
	return &API{
		studio:       st,
		history:      store,
		profiles:     profiles,
		urls:         urls,
		maxReference: int64(maxReference),
		logger:       logger.With(slog.String("component", "httpapi")),
		upgrader: websocket.Upgrader{
			// The daemon serves a single local studio session.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register adds every route to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/voices", a.handleVoices)
	mux.HandleFunc("GET /api/languages", a.handleLanguages)
	mux.HandleFunc("GET /api/prompts", a.handlePrompts)
	mux.HandleFunc("GET /api/status", a.handleStatus)

	mux.HandleFunc("POST /api/speech", a.handleGenerate)
	mux.HandleFunc("POST /api/previews", a.handlePreview)
	mux.HandleFunc("DELETE /api/previews/{token}", a.handleFinishPreview)

	mux.HandleFunc("GET /api/history", a.handleListHistory)
	mux.HandleFunc("DELETE /api/history", a.handleClearHistory)
	mux.HandleFunc("DELETE /api/history/{id}", a.handleDeleteHistory)
	mux.HandleFunc("GET /api/history/{id}/download", a.handleDownload)
	mux.HandleFunc("POST /api/history/{id}/playback", a.handlePlayback)

	mux.HandleFunc("GET /api/profiles", a.handleListProfiles)
	mux.HandleFunc("POST /api/profiles", a.handleAddProfile)
	mux.HandleFunc("PUT /api/profiles/selected", a.handleSelectProfile)
	mux.HandleFunc("DELETE /api/profiles/{id}", a.handleDeleteProfile)

	mux.HandleFunc("GET /blob/{token}", a.handleBlob)
	mux.HandleFunc("GET /ws", a.handleWebSocket)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(studio.ErrValidation, err)
	}
	return nil
}

// statusFor maps an error to its HTTP status and kind label.
func statusFor(err error) (int, string) {
	var se *speech.Error
	switch {
	case errors.Is(err, studio.ErrValidation), errors.Is(err, voices.ErrInvalidProfile):
		return http.StatusBadRequest, string(speech.KindValidation)
	case errors.Is(err, history.ErrNotFound), errors.Is(err, voices.ErrProfileNotFound):
		return http.StatusNotFound, string(speech.KindNotFound)
	case errors.Is(err, history.ErrNoAudio):
		return http.StatusConflict, "no_audio"
	case errors.Is(err, studio.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.As(err, &se):
		switch se.Kind {
		case speech.KindConfiguration:
			return http.StatusServiceUnavailable, string(se.Kind)
		case speech.KindValidation:
			return http.StatusBadRequest, string(se.Kind)
		case speech.KindContent:
			return http.StatusUnprocessableEntity, string(se.Kind)
		default:
			return http.StatusBadGateway, string(se.Kind)
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	var se *speech.Error
	if errors.As(err, &se) {
		msg = speech.UserMessage(err)
	}
	if status >= http.StatusInternalServerError {
		a.logger.Warn("request failed", slog.String("path", r.URL.Path), slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

type recordView struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	VoiceLabel   string `json:"voiceLabel"`
	CreatedAt    int64  `json:"createdAt"`
	IsCloned     bool   `json:"isCloned"`
	Language     string `json:"language"`
	AudioURL     string `json:"audioUrl,omitempty"`
	DurationMS   int64  `json:"durationMs"`
	DownloadName string `json:"downloadName"`
}

func viewOf(rec history.Record) recordView {
	v := recordView{
		ID:           rec.ID,
		Text:         rec.Text,
		VoiceLabel:   rec.VoiceLabel,
		CreatedAt:    rec.CreatedAt.UnixMilli(),
		IsCloned:     rec.IsCloned,
		Language:     rec.Language,
		DurationMS:   rec.Duration.Milliseconds(),
		DownloadName: history.DownloadName(rec),
	}
	if rec.URL != "" {
		v.AudioURL = blobPath(rec.URL)
	}
	return v
}

func blobPath(url string) string {
	return "/blob/" + blob.Token(url)
}

type playbackView struct {
	State      history.PlaybackState `json:"state"`
	PositionMS int64                 `json:"positionMs"`
	DurationMS int64                 `json:"durationMs"`
	Progress   float64               `json:"progress"`
	AudioURL   string                `json:"audioUrl"`
}

func playbackViewOf(p history.Playback) playbackView {
	return playbackView{
		State:      p.State,
		PositionMS: p.Position.Milliseconds(),
		DurationMS: p.Duration.Milliseconds(),
		Progress:   p.Progress(),
		AudioURL:   blobPath(p.SourceURL),
	}
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
