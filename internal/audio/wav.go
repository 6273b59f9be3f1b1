package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/loqalabs/vocalforge/internal/blob"
)

// MIMEType is the content type of every container EncodeWAV produces.
const MIMEType = "audio/wav"

const (
	headerSize    = 44
	bitsPerSample = 16
	pcmFormatTag  = 1
)

var errNotCanonical = errors.New("not a canonical 44-byte PCM WAV")

// EncodeWAV writes the first frameCount frames of s as a canonical 44-byte
// header PCM WAV. Samples are clamped to [-1, 1] and scaled by 32768 when
// negative and 32767 otherwise, rounding half away from zero.
func EncodeWAV(s *Sample, frameCount int) (*blob.Blob, error) {
	if s == nil {
		return nil, errors.New("encode wav: nil sample")
	}
	channels := s.Format.NumChannels
	rate := s.Format.SampleRate
	if channels <= 0 || channels != len(s.Channels) {
		return nil, fmt.Errorf("encode wav: channel count %d does not match %d channel buffers", channels, len(s.Channels))
	}
	if rate <= 0 {
		return nil, fmt.Errorf("encode wav: sample rate must be positive, got %d", rate)
	}
	if frameCount < 0 || frameCount > s.FrameCount() {
		return nil, fmt.Errorf("encode wav: frame count %d outside [0, %d]", frameCount, s.FrameCount())
	}

	dataSize := frameCount * channels * 2
	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize+dataSize-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], pcmFormatTag)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(rate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	offset := headerSize
	for i := 0; i < frameCount; i++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(buf[offset:], uint16(quantize(s.Channels[ch][i])))
			offset += 2
		}
	}
	return blob.New(buf, MIMEType), nil
}

func quantize(f float32) int16 {
	s := math.Max(-1, math.Min(1, float64(f)))
	if s < 0 {
		return int16(math.Round(s * 32768))
	}
	return int16(math.Round(s * 32767))
}

// PCMBytes returns the sample data of a WAV produced by EncodeWAV.
func PCMBytes(wav []byte) ([]byte, error) {
	if len(wav) < headerSize || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		return nil, errNotCanonical
	}
	size := int(binary.LittleEndian.Uint32(wav[40:44]))
	if headerSize+size > len(wav) {
		return nil, fmt.Errorf("%w: data chunk of %d bytes exceeds container", errNotCanonical, size)
	}
	return wav[headerSize : headerSize+size], nil
}
