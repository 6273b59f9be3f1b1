package speech

import (
	"context"
	"fmt"
	"strings"

	"github.com/loqalabs/vocalforge/internal/codec"
)

// BuildPrompt converts req into backend parts. With a reference sample the
// voice is replaced by cloneVoice.
func BuildPrompt(ctx context.Context, req Request, cloneVoice string) (Prompt, error) {
	if req.Reference != nil {
		url, err := codec.BlobToDataURL(ctx, req.Reference)
		if err != nil {
			return Prompt{}, fmt.Errorf("encode reference sample: %w", err)
		}
		_, data, _ := strings.Cut(url, ",")
		mime := req.Reference.MIMEType()
		if mime == "" {
			mime = "audio/wav"
		}
		return Prompt{
			Voice: cloneVoice,
			Parts: []Part{
				{InlineData: &InlineData{MIMEType: mime, Data: data}},
				{Text: "Mimic the voice in this sample for: \"" + req.Text + "\""},
			},
		}, nil
	}
	text := req.Text
	if !IsAutoLanguage(req.Language) {
		text = "[Language: " + strings.TrimSpace(req.Language) + "] " + text
	}
	return Prompt{Voice: req.Voice, Parts: []Part{{Text: text}}}, nil
}

// IsAutoLanguage reports whether language asks the model to detect the
// language itself.
func IsAutoLanguage(language string) bool {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "auto", "auto detect":
		return true
	}
	return false
}
