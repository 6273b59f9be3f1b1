package studio

import (
	"context"
	"strings"
	"time"

	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/speech"
	"github.com/loqalabs/vocalforge/internal/voices"
)

// Preview is a short, temporary sample of a prebuilt voice.
type Preview struct {
	URL       string    `json:"url"`
	VoiceID   string    `json:"voiceId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Preview speaks a greeting in voiceID. The returned URL is revoked by
// FinishPreview or when the preview TTL elapses. Previews do not touch the
// history or the generation status.
func (s *Studio) Preview(ctx context.Context, voiceID string) (Preview, error) {
	v, ok := voices.Lookup(voiceID)
	if !ok {
		return Preview{}, validationError("unknown voice %q", voiceID)
	}
	result, err := s.synth.Synthesize(ctx, speech.Request{Text: "Hello, I am " + v.Name + ".", Voice: v.ID})
	if err != nil {
		return Preview{}, err
	}

	ttl := s.cfg.PreviewTTL()
	url := s.urls.Create(result.Audio)
	s.previewMu.Lock()
	s.previews[url] = time.AfterFunc(ttl, func() { s.FinishPreview(url) })
	s.previewMu.Unlock()

	return Preview{URL: url, VoiceID: v.ID, ExpiresAt: time.Now().Add(ttl).UTC()}, nil
}

// FinishPreview releases a preview URL, given in full or as its bare token.
// It reports whether the preview was still live.
func (s *Studio) FinishPreview(url string) bool {
	if !strings.HasPrefix(url, blob.URLScheme) {
		url = blob.URLScheme + url
	}
	s.previewMu.Lock()
	timer, ok := s.previews[url]
	delete(s.previews, url)
	s.previewMu.Unlock()
	if !ok {
		return false
	}
	timer.Stop()
	s.urls.Revoke(url)
	return true
}

// Close releases every live preview.
func (s *Studio) Close() {
	s.previewMu.Lock()
	urls := make([]string, 0, len(s.previews))
	for url := range s.previews {
		urls = append(urls, url)
	}
	s.previewMu.Unlock()
	for _, url := range urls {
		s.FinishPreview(url)
	}
}
