package speech

import (
	"context"

	"github.com/loqalabs/vocalforge/internal/audio"
	"github.com/loqalabs/vocalforge/internal/blob"
)

// Request describes one utterance.
type Request struct {
	Text     string
	Voice    string
	Language string
	// Reference switches the request to the cloning simulation: the model is
	// asked to mimic it while speaking with the stand-in voice.
	Reference *blob.Blob
}

// Result holds the encoded audio and the decoded sample it came from.
type Result struct {
	Audio  *blob.Blob
	Sample *audio.Sample
	// Voice is the voice the backend was asked for, which differs from the
	// requested one on the cloning path.
	Voice string
}

// InlineData is base64 payload embedded in a prompt or response part.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one piece of prompt or response content.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// Prompt is the backend-neutral form of a Request.
type Prompt struct {
	Parts []Part
	Voice string
}

// Response carries the content parts of the first candidate.
type Response struct {
	Parts        []Part
	FinishReason string
}

// Synthesizer sends a prompt to a speech backend.
type Synthesizer interface {
	Generate(ctx context.Context, p Prompt) (*Response, error)
}

// State is the lifecycle of a request on a Client.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)
