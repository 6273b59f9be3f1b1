package voices

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/vocalforge/internal/audio"
	"github.com/loqalabs/vocalforge/internal/blob"
)

var (
	ErrProfileNotFound = errors.New("voice profile not found")
	ErrInvalidProfile  = errors.New("invalid voice profile")
)

// Profile is a named reference sample used by the cloning simulation. It is
// a label only; no voice model is trained from it.
type Profile struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	CreatedAt  time.Time   `json:"createdAt"`
	PreviewURL string      `json:"previewUrl"`
	Info       *audio.Info `json:"info,omitempty"`
	Reference  *blob.Blob  `json:"-"`
}

// Profiles is the session's set of custom voices and the current selection.
type Profiles struct {
	urls     *blob.URLRegistry
	maxBytes int
	logger   *slog.Logger
	clock    func() time.Time

	mu       sync.RWMutex
	profiles []*Profile
	selected string
}

func NewProfiles(urls *blob.URLRegistry, maxBytes int, logger *slog.Logger) *Profiles {
	return &Profiles{
		urls:     urls,
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("component", "voice-profiles")),
		clock:    time.Now,
	}
}

// Add registers a profile for ref. WAV references are checked to be
// readable; other recordings (for example audio/webm) are stored as given.
func (p *Profiles) Add(name string, ref *blob.Blob) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, fmt.Errorf("%w: name must not be empty", ErrInvalidProfile)
	}
	if ref == nil || ref.Size() == 0 {
		return Profile{}, fmt.Errorf("%w: reference sample is empty", ErrInvalidProfile)
	}
	if p.maxBytes > 0 && ref.Size() > p.maxBytes {
		return Profile{}, fmt.Errorf("%w: reference sample is %d bytes, limit %d", ErrInvalidProfile, ref.Size(), p.maxBytes)
	}

	prof := &Profile{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: p.clock().UTC(),
		Reference: ref,
	}
	if isWAV(ref.MIMEType()) {
		info, err := audio.InspectBlob(ref)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
		prof.Info = &info
	}
	prof.PreviewURL = p.urls.Create(ref)

	p.mu.Lock()
	p.profiles = append([]*Profile{prof}, p.profiles...)
	p.mu.Unlock()

	p.logger.Info("voice profile added", slog.String("id", prof.ID), slog.String("name", name), slog.Int("bytes", ref.Size()))
	return *prof, nil
}

func isWAV(mime string) bool {
	switch strings.ToLower(mime) {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return true
	}
	return false
}

// List returns the profiles, newest first.
func (p *Profiles) List() []Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Profile, len(p.profiles))
	for i, prof := range p.profiles {
		out[i] = *prof
	}
	return out
}

// Get returns the profile with id.
func (p *Profiles) Get(id string) (Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, prof := range p.profiles {
		if prof.ID == id {
			return *prof, nil
		}
	}
	return Profile{}, ErrProfileNotFound
}

// Delete removes profile id and releases its preview URL. Deleting the
// selected profile clears the selection.
func (p *Profiles) Delete(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, prof := range p.profiles {
		if prof.ID != id {
			continue
		}
		p.profiles = append(p.profiles[:i:i], p.profiles[i+1:]...)
		p.urls.Revoke(prof.PreviewURL)
		if p.selected == id {
			p.selected = ""
		}
		return nil
	}
	return ErrProfileNotFound
}

// Select marks id as the profile used by the cloning path. An empty id
// clears the selection.
func (p *Profiles) Select(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == "" {
		p.selected = ""
		return nil
	}
	for _, prof := range p.profiles {
		if prof.ID == id {
			p.selected = id
			return nil
		}
	}
	return ErrProfileNotFound
}

// Selected returns the selected profile id, or "".
func (p *Profiles) Selected() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selected
}
