package protocol

import "time"

// SpeechRequest asks a bus-attached synthesizer for one utterance.
type SpeechRequest struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`
	Language  string `json:"language,omitempty"`
	// ReferenceWAV is an optional base64 reference sample for the cloning
	// simulation. ReferenceMIME is sniffed from the bytes when empty.
	ReferenceWAV  string `json:"reference_wav,omitempty"`
	ReferenceMIME string `json:"reference_mime,omitempty"`
}

// SpeechReply carries either a base64 WAV or a classified error.
type SpeechReply struct {
	RequestID string    `json:"request_id"`
	WAVBase64 string    `json:"wav_base64,omitempty"`
	Frames    int       `json:"frames,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StudioStatus reports the generation state of the studio.
type StudioStatus struct {
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	Token     uint64    `json:"token"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEvent reports a history mutation.
type HistoryEvent struct {
	Action    string    `json:"action"` // inserted, deleted, cleared
	ID        string    `json:"id,omitempty"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSpeechRequest = "speech.request"
	SubjectStudioStatus  = "studio.status"
	SubjectStudioHistory = "studio.history"
)

// ErrorKindPayloadTooLarge is set on a SpeechReply whose audio did not fit in
// one bus message.
const ErrorKindPayloadTooLarge = "payload_too_large"
