package speech

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/vocalforge/internal/config"
)

// NewSynthesizer builds the backend selected by cfg.Mode.
func NewSynthesizer(cfg config.SpeechConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "gemini":
		return NewGemini(cfg.Endpoint, cfg.Model, cfg.APIKey, nil), nil
	case "exec":
		return NewExec(cfg.Command, cfg.SampleRate, cfg.Channels)
	case "mock":
		return NewMock(cfg.SampleRate, cfg.Channels, 0), nil
	default:
		return nil, fmt.Errorf("unknown speech mode %q", cfg.Mode)
	}
}

var (
	defaultOnce   sync.Once
	defaultClient *Client
	defaultErr    error
)

// Default returns the process-wide client, building it from cfg on the first
// call. Later calls ignore their arguments.
func Default(cfg config.SpeechConfig, logger *slog.Logger) (*Client, error) {
	defaultOnce.Do(func() {
		synth, err := NewSynthesizer(cfg)
		if err != nil {
			defaultErr = err
			return
		}
		defaultClient = NewClient(cfg, synth, logger)
	})
	return defaultClient, defaultErr
}
