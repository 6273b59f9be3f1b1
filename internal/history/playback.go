package history

import (
	"errors"
	"time"
)

// PlaybackState is the transport state of a record's player.
type PlaybackState string

const (
	Stopped PlaybackState = "stopped"
	Playing PlaybackState = "playing"
	Paused  PlaybackState = "paused"
)

// ErrNoAudio is returned when playback is requested for a record whose audio
// could not be restored.
var ErrNoAudio = errors.New("record has no audio")

// Playback is the player attached to one record. It is only changed through
// the Store that owns the record.
type Playback struct {
	SourceURL string        `json:"sourceUrl"`
	Position  time.Duration `json:"position"`
	Duration  time.Duration `json:"duration"`
	State     PlaybackState `json:"state"`
}

// Progress returns the position as a percentage of the duration.
func (p Playback) Progress() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return float64(p.Position) / float64(p.Duration) * 100
}

func (p *Playback) play() {
	if p.State == Stopped && p.Position >= p.Duration {
		p.Position = 0
	}
	p.State = Playing
}

func (p *Playback) pause() {
	if p.State == Playing {
		p.State = Paused
	}
}

func (p *Playback) seek(pos time.Duration) {
	p.Position = max(0, min(pos, p.Duration))
}

func (p *Playback) ended() {
	p.State = Stopped
	p.Position = 0
}
