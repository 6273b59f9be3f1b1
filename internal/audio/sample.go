// Package audio converts between raw 16-bit PCM, normalized float samples and
// canonical WAV containers.
package audio

import (
	goaudio "github.com/go-audio/audio"
)

// Sample is a decoded, normalized audio buffer. Every slice in Channels has
// the same length.
type Sample struct {
	Format   goaudio.Format
	Channels [][]float32
}

// NewSample allocates a silent sample with frames frames per channel.
func NewSample(sampleRate, channels, frames int) *Sample {
	s := &Sample{
		Format:   goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		Channels: make([][]float32, channels),
	}
	for i := range s.Channels {
		s.Channels[i] = make([]float32, frames)
	}
	return s
}

// FrameCount returns the number of frames per channel.
func (s *Sample) FrameCount() int {
	if s == nil || len(s.Channels) == 0 {
		return 0
	}
	return len(s.Channels[0])
}

// Duration returns the playback length in seconds.
func (s *Sample) Duration() float64 {
	if s == nil || s.Format.SampleRate <= 0 {
		return 0
	}
	return float64(s.FrameCount()) / float64(s.Format.SampleRate)
}
