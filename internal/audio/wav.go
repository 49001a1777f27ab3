// Package audio encodes and decodes the 16-bit PCM mono WAV files the
// harness writes alongside its report and the API returns from the
// generate endpoint.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	headerSize    = 44
	bitsPerSample = 16
	numChannels   = 1
)

var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// EncodeWAV serializes float32 samples in [-1, 1] as a 16-bit PCM mono WAV
// byte slice. Samples outside the range are clipped.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	dataSize := len(samples) * 2
	out := make([]byte, headerSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], numChannels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	for i, sample := range samples {
		v := clip(sample)
		pcm := int16(math.Round(float64(v) * 32767))
		binary.LittleEndian.PutUint16(out[headerSize+i*2:], uint16(pcm))
	}
	return out, nil
}

// DecodeWAV parses a 16-bit PCM mono WAV stream back into float32 samples
// and the stream's sample rate. Extra chunks before "data" are skipped.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < headerSize {
		return nil, 0, ErrNotWAV
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var sampleRate int
	var channels, bits uint16
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			return nil, 0, fmt.Errorf("audio: truncated %q chunk", chunkID)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, errors.New("audio: fmt chunk too small")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, fmt.Errorf("audio: unsupported format tag %d", format)
			}
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
		case "data":
			if sampleRate == 0 {
				return nil, 0, errors.New("audio: data chunk before fmt chunk")
			}
			if channels != numChannels || bits != bitsPerSample {
				return nil, 0, fmt.Errorf("audio: want %d-bit mono, got %d-bit %d-channel", bitsPerSample, bits, channels)
			}
			count := chunkSize / 2
			samples := make([]float32, count)
			for i := 0; i < count; i++ {
				pcm := int16(binary.LittleEndian.Uint16(data[body+i*2:]))
				samples[i] = float32(pcm) / 32767
			}
			return samples, sampleRate, nil
		}
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}
	return nil, 0, errors.New("audio: missing data chunk")
}

func clip(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
