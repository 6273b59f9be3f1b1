package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"

	"github.com/loqalabs/vocalforge/internal/blob"
)

// ErrInvalidWAV is returned by Inspect for anything that is not a readable
// RIFF/WAVE file.
var ErrInvalidWAV = errors.New("invalid wav file")

// Info summarizes a WAV container.
type Info struct {
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bitDepth"`
	Duration   time.Duration `json:"duration"`
}

// Inspect validates r as a WAV file and reads its format chunk.
func Inspect(r io.ReadSeeker) (Info, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Info{}, ErrInvalidWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if bytesPerSecond := info.SampleRate * info.Channels * info.BitDepth / 8; bytesPerSecond > 0 {
		info.Duration = time.Duration(float64(dec.PCMLen()) / float64(bytesPerSecond) * float64(time.Second))
	}
	return info, nil
}

// InspectBlob runs Inspect over the bytes of b.
func InspectBlob(b *blob.Blob) (Info, error) {
	return Inspect(bytes.NewReader(b.Bytes()))
}
