package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/loqalabs/vocalforge/internal/codec"
)

// Mock answers every prompt with a short stretch of silence.
type Mock struct {
	sampleRate int
	channels   int
	frames     int
	delay      time.Duration
}

// NewMock returns a backend producing frames frames of silence. A
// non-positive frames value means 100 ms.
func NewMock(sampleRate, channels, frames int) *Mock {
	if frames <= 0 {
		frames = sampleRate / 10
	}
	return &Mock{sampleRate: sampleRate, channels: channels, frames: frames}
}

// WithDelay makes every Generate call wait d before answering.
func (m *Mock) WithDelay(d time.Duration) *Mock {
	m.delay = d
	return m
}

func (m *Mock) Generate(ctx context.Context, p Prompt) (*Response, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	pcm := make([]byte, m.frames*m.channels*2)
	return &Response{Parts: []Part{{InlineData: &InlineData{
		MIMEType: fmt.Sprintf("audio/L16;rate=%d", m.sampleRate),
		Data:     codec.EncodeBase64(pcm),
	}}}}, nil
}
