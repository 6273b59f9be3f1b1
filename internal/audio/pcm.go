package audio

import (
	"encoding/binary"
	"fmt"
)

// DecodePCM16 interprets pcm as interleaved little-endian signed 16-bit
// samples and normalizes each value v to v/32768.
//
// The frame count is len(pcm)/(2*channels) rounded down: a trailing partial
// frame is dropped rather than reported. Empty input yields a sample with
// zero frames.
func DecodePCM16(pcm []byte, sampleRate, channels int) (*Sample, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("decode pcm: sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("decode pcm: channel count must be positive, got %d", channels)
	}
	frames := len(pcm) / 2 / channels
	s := NewSample(sampleRate, channels, frames)
	offset := 0
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(pcm[offset:]))
			s.Channels[ch][i] = float32(v) / 32768.0
			offset += 2
		}
	}
	return s, nil
}
