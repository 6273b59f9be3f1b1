// Package history keeps the session's generated clips, most recent first,
// and mirrors the newest of them into a text store.
package history

import (
	"strings"
	"time"

	"github.com/loqalabs/vocalforge/internal/blob"
)

// DefaultLanguage labels records generated without an explicit language.
const DefaultLanguage = "Auto"

// Record is one generated clip.
type Record struct {
	ID         string
	Text       string
	VoiceLabel string
	CreatedAt  time.Time
	Audio      *blob.Blob
	IsCloned   bool
	Language   string
	// URL is the object URL serving Audio; empty when Audio is nil.
	URL      string
	Duration time.Duration
}

// PersistedEntry is the stored form of a Record.
type PersistedEntry struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	VoiceLabel  string `json:"voiceLabel"`
	CreatedAt   int64  `json:"createdAt"`
	IsCloned    bool   `json:"isCloned"`
	Language    string `json:"language,omitempty"`
	AudioBase64 string `json:"audioBase64,omitempty"`
}

// DownloadName is the file name offered when a record is saved.
func DownloadName(r Record) string {
	id := r.ID
	if len(id) > 6 {
		id = id[:6]
	}
	label := strings.Map(func(c rune) rune {
		switch c {
		case '/', '\\', ' ', '"', ':':
			return '-'
		}
		return c
	}, r.VoiceLabel)
	return "vocalforge-" + label + "-" + id + ".wav"
}
