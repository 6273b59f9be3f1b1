package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/vocalforge/internal/audio"
	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/config"
	"github.com/loqalabs/vocalforge/internal/history"
	"github.com/loqalabs/vocalforge/internal/kvstore"
	"github.com/loqalabs/vocalforge/internal/speech"
	"github.com/loqalabs/vocalforge/internal/studio"
	"github.com/loqalabs/vocalforge/internal/voices"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	server   *httptest.Server
	studio   *studio.Studio
	history  *history.Store
	profiles *voices.Profiles
	urls     *blob.URLRegistry
}

func newFixture(t *testing.T, synth speech.Synthesizer) fixture {
	t.Helper()
	logger := newLogger()
	speechCfg := config.Default().Speech
	speechCfg.Mode = "mock"
	client := speech.NewClient(speechCfg, synth, logger)

	urls := blob.NewURLRegistry()
	store := history.NewStore(kvstore.NewMemory(), urls, config.HistoryConfig{Key: "h", PersistLimit: 15}, logger)
	profiles := voices.NewProfiles(urls, 1<<20, logger)
	st := studio.New(config.StudioConfig{DefaultVoice: "Kore", PreviewTTLMS: 60000, MaxReferenceBytes: 1 << 20}, client, store, profiles, urls, nil, logger)
	t.Cleanup(st.Close)

	mux := http.NewServeMux()
	New(st, store, profiles, urls, 1<<20, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fixture{server: srv, studio: st, history: store, profiles: profiles, urls: urls}
}

func (f fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCatalogEndpoints(t *testing.T) {
	f := newFixture(t, speech.NewMock(24000, 1, 100))

	resp := f.do(t, http.MethodGet, "/api/voices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	vs := decode[struct{ Voices []voices.Voice }](t, resp)
	assert.Len(t, vs.Voices, 8)

	resp = f.do(t, http.MethodGet, "/api/languages", nil)
	langs := decode[struct {
		Auto   string
		Groups []voices.LanguageGroup
	}](t, resp)
	assert.Equal(t, voices.AutoLanguage, langs.Auto)
	assert.Len(t, langs.Groups, 2)

	resp = f.do(t, http.MethodGet, "/api/prompts", nil)
	prompts := decode[struct{ Prompts []string }](t, resp)
	assert.Len(t, prompts.Prompts, 4)
}

func TestGenerateDownloadAndDelete(t *testing.T) {
	f := newFixture(t, speech.NewMock(24000, 1, 100))

	resp := f.do(t, http.MethodPost, "/api/speech", studio.Input{Text: "Hello world", VoiceID: "Kore"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[recordView](t, resp)
	assert.Equal(t, "Kore", rec.VoiceLabel)
	assert.Equal(t, history.DefaultLanguage, rec.Language)
	assert.True(t, strings.HasPrefix(rec.AudioURL, "/blob/"))
	assert.Equal(t, int64(4), rec.DurationMS)

	audioResp := f.do(t, http.MethodGet, rec.AudioURL, nil)
	require.Equal(t, http.StatusOK, audioResp.StatusCode)
	assert.Equal(t, audio.MIMEType, audioResp.Header.Get("Content-Type"))
	wav, err := io.ReadAll(audioResp.Body)
	require.NoError(t, err)
	assert.Len(t, wav, 244)

	dl := f.do(t, http.MethodGet, "/api/history/"+rec.ID+"/download", nil)
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "attachment")
	assert.Contains(t, dl.Header.Get("Content-Disposition"), rec.DownloadName)

	list := decode[struct{ Records []recordView }](t, f.do(t, http.MethodGet, "/api/history", nil))
	require.Len(t, list.Records, 1)

	del := f.do(t, http.MethodDelete, "/api/history/"+rec.ID, nil)
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	again := f.do(t, http.MethodDelete, "/api/history/"+rec.ID, nil)
	assert.Equal(t, http.StatusNoContent, again.StatusCode, "delete is idempotent")

	gone := f.do(t, http.MethodGet, rec.AudioURL, nil)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode, "deleted audio url is revoked")
}

func TestGenerateErrors(t *testing.T) {
	f := newFixture(t, speech.NewMock(24000, 1, 100))

	cases := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"empty text", studio.Input{Text: "  "}, http.StatusBadRequest, "validation"},
		{"unknown voice", studio.Input{Text: "hi", VoiceID: "Nobody"}, http.StatusBadRequest, "validation"},
		{"cloning without profile", studio.Input{Text: "hi", Mode: studio.ModeCloning}, http.StatusBadRequest, "validation"},
		{"not json", "{", http.StatusBadRequest, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/speech", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			body := decode[errorBody](t, resp)
			assert.Equal(t, tc.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&speech.Error{Kind: speech.KindConfiguration}, http.StatusServiceUnavailable},
		{&speech.Error{Kind: speech.KindTransient}, http.StatusBadGateway},
		{&speech.Error{Kind: speech.KindNotFound}, http.StatusBadGateway},
		{&speech.Error{Kind: speech.KindMalformed}, http.StatusBadGateway},
		{&speech.Error{Kind: speech.KindContent}, http.StatusUnprocessableEntity},
		{studio.ErrSuperseded, http.StatusConflict},
		{history.ErrNoAudio, http.StatusConflict},
		{voices.ErrProfileNotFound, http.StatusNotFound},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := statusFor(tc.err)
		assert.Equal(t, tc.status, status, "%v", tc.err)
	}
}

func TestPlayback(t *testing.T) {
	f := newFixture(t, speech.NewMock(24000, 1, 2400))
	rec := decode[recordView](t, f.do(t, http.MethodPost, "/api/speech", studio.Input{Text: "hi"}))

	p := decode[playbackView](t, f.do(t, http.MethodPost, "/api/history/"+rec.ID+"/playback", playbackRequest{Action: "play"}))
	assert.Equal(t, history.Playing, p.State)

	p = decode[playbackView](t, f.do(t, http.MethodPost, "/api/history/"+rec.ID+"/playback", playbackRequest{Action: "seek", PositionMS: 50}))
	assert.Equal(t, int64(50), p.PositionMS)
	assert.InDelta(t, 50, p.Progress, 0.001)

	p = decode[playbackView](t, f.do(t, http.MethodPost, "/api/history/"+rec.ID+"/playback", playbackRequest{Action: "ended"}))
	assert.Equal(t, history.Stopped, p.State)
	assert.Zero(t, p.PositionMS)

	resp := f.do(t, http.MethodPost, "/api/history/"+rec.ID+"/playback", playbackRequest{Action: "rewind"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/history/missing/playback", playbackRequest{Action: "play"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreviewLifecycle(t *testing.T) {
	f := newFixture(t, speech.NewMock(24000, 1, 100))

	resp := f.do(t, http.MethodPost, "/api/previews", previewRequest{VoiceID: "Puck"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	p := decode[previewView](t, resp)
	assert.Equal(t, "Puck", p.VoiceID)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, p.AudioURL, nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/previews/"+p.Token, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, p.AudioURL, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/previews/"+p.Token, nil).StatusCode)
	assert.Zero(t, f.history.Len(), "previews are not recorded")
}

func uploadProfile(t *testing.T, f fixture, name string, sample []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", name))
	part, err := mw.CreateFormFile("sample", "sample.wav")
	require.NoError(t, err)
	_, err = part.Write(sample)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.server.URL+"/api/profiles", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestProfilesAndCloning(t *testing.T) {
	f := newFixture(t, speech.NewMock(24000, 1, 100))
	ref, err := audio.EncodeWAV(audio.NewSample(24000, 1, 2400), 2400)
	require.NoError(t, err)

	resp := uploadProfile(t, f, "Narrator", ref.Bytes())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	prof := decode[profileView](t, resp)
	assert.Equal(t, "Narrator", prof.Name)
	assert.Equal(t, int64(100), prof.DurationMS)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPut, "/api/profiles/selected", selectRequest{ID: prof.ID}).StatusCode)

	list := decode[struct{ Profiles []profileView }](t, f.do(t, http.MethodGet, "/api/profiles", nil))
	require.Len(t, list.Profiles, 1)
	assert.True(t, list.Profiles[0].Selected)

	rec := decode[recordView](t, f.do(t, http.MethodPost, "/api/speech", studio.Input{Text: "clone me", Mode: studio.ModeCloning}))
	assert.True(t, rec.IsCloned)
	assert.Equal(t, "Narrator", rec.VoiceLabel)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/profiles/"+prof.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/profiles/"+prof.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, prof.AudioURL, nil).StatusCode)
}

func TestProfileRejectsBadUpload(t *testing.T) {
	f := newFixture(t, speech.NewMock(24000, 1, 100))
	ref, err := audio.EncodeWAV(audio.NewSample(24000, 1, 10), 10)
	require.NoError(t, err)

	resp := uploadProfile(t, f, "   ", ref.Bytes())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(f.server.URL+"/api/profiles", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketStreamsEvents(t *testing.T) {
	f := newFixture(t, speech.NewMock(24000, 1, 100))

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first studio.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, studio.EventStatus, first.Type)
	assert.Equal(t, studio.StateIdle, first.Status.State)

	// The subscription is registered before the initial status is written.
	resp := f.do(t, http.MethodPost, "/api/speech", studio.Input{Text: "stream"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var types []string
	for len(types) < 3 {
		var evt studio.Event
		require.NoError(t, conn.ReadJSON(&evt))
		types = append(types, evt.Type)
	}
	assert.Contains(t, types, studio.EventHistory)
	assert.Contains(t, types, studio.EventStatus)
}
