package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/history"
	"github.com/loqalabs/vocalforge/internal/studio"
	"github.com/loqalabs/vocalforge/internal/voices"
)

func (a *API) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices.Prebuilt()})
}

func (a *API) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"auto": voices.AutoLanguage, "groups": voices.Languages()})
}

func (a *API) handlePrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": voices.SamplePrompts()})
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.studio.Status())
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var in studio.Input
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	rec, err := a.studio.Generate(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(rec))
}

type previewRequest struct {
	VoiceID string `json:"voiceId"`
}

type previewView struct {
	Token     string    `json:"token"`
	AudioURL  string    `json:"audioUrl"`
	VoiceID   string    `json:"voiceId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.studio.Preview(r.Context(), req.VoiceID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, previewView{
		Token:     blob.Token(p.URL),
		AudioURL:  blobPath(p.URL),
		VoiceID:   p.VoiceID,
		ExpiresAt: p.ExpiresAt,
	})
}

func (a *API) handleFinishPreview(w http.ResponseWriter, r *http.Request) {
	if !a.studio.FinishPreview(r.PathValue("token")) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "preview not found", Kind: "not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListHistory(w http.ResponseWriter, _ *http.Request) {
	records := a.history.List()
	out := make([]recordView, len(records))
	for i, rec := range records {
		out[i] = viewOf(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (a *API) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	a.studio.ClearHistory(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Deleting an unknown record succeeds.
func (a *API) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	a.studio.DeleteRecord(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.history.Get(r.PathValue("id"))
	if !ok {
		a.writeError(w, r, history.ErrNotFound)
		return
	}
	if rec.Audio == nil {
		a.writeError(w, r, history.ErrNoAudio)
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": history.DownloadName(rec)}))
	http.ServeContent(w, r, history.DownloadName(rec), rec.CreatedAt, bytes.NewReader(rec.Audio.Bytes()))
}

type playbackRequest struct {
	Action     string `json:"action"` // play, pause, seek, ended
	PositionMS int64  `json:"positionMs"`
}

func (a *API) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	var (
		p   history.Playback
		err error
	)
	switch req.Action {
	case "play":
		p, err = a.history.Play(id)
	case "pause":
		p, err = a.history.Pause(id)
	case "seek":
		p, err = a.history.Seek(id, ms(req.PositionMS))
	case "ended":
		p, err = a.history.Ended(id)
	case "", "status":
		p, err = a.history.Playback(id)
	default:
		err = fmt.Errorf("%w: unknown playback action %q", studio.ErrValidation, req.Action)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playbackViewOf(p))
}

type profileView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"createdAt"`
	AudioURL   string `json:"audioUrl"`
	Selected   bool   `json:"selected"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

func profileViewOf(p voices.Profile, selected string) profileView {
	v := profileView{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt.UnixMilli(),
		AudioURL:  blobPath(p.PreviewURL),
		Selected:  p.ID == selected,
	}
	if p.Info != nil {
		v.DurationMS = p.Info.Duration.Milliseconds()
	}
	return v
}

func (a *API) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	selected := a.profiles.Selected()
	list := a.profiles.List()
	out := make([]profileView, len(list))
	for i, p := range list {
		out[i] = profileViewOf(p, selected)
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
}

// handleAddProfile accepts a multipart form with a "name" field and a
// "sample" file.
func (a *API) handleAddProfile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxReference+maxJSONBody)
	if err := r.ParseMultipartForm(a.maxReference + maxJSONBody); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", voices.ErrInvalidProfile, err))
		return
	}
	file, header, err := r.FormFile("sample")
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: missing sample file", voices.ErrInvalidProfile))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	prof, err := a.profiles.Add(r.FormValue("name"), blob.New(data, contentType))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profileViewOf(prof, a.profiles.Selected()))
}

type selectRequest struct {
	ID string `json:"id"`
}

func (a *API) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.profiles.Select(req.ID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := a.profiles.Delete(r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBlob(w http.ResponseWriter, r *http.Request) {
	b, ok := a.urls.Resolve(r.PathValue("token"))
	if !ok {
		a.writeError(w, r, errors.Join(history.ErrNotFound, errors.New("object url revoked or unknown")))
		return
	}
	if b.MIMEType() != "" {
		w.Header().Set("Content-Type", b.MIMEType())
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(b.Bytes()))
}
