package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/wav"
)

var ErrOddLength = errors.New("pcm16 length must be even")

// DecodeChunk turns an inbound chunk into a linear PCM16LE frame at rate Hz.
// WAV blobs are unwrapped and resampled from their header rate; raw PCM mime
// types are assumed to be at rate already and pass through untouched.
func DecodeChunk(b []byte, mimeType string, rate int) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "", "audio/pcm", "audio/l16", "audio/pcm16":
		if len(b)%2 != 0 {
			return nil, ErrOddLength
		}
		return b, nil
	case "audio/wav", "audio/wave", "audio/x-wav":
		return DecodeWAVToPCM16(b, rate)
	default:
		return nil, fmt.Errorf("unsupported mime type %q", mimeType)
	}
}

// DecodeWAVToPCM16 decodes a small WAV blob into mono little-endian PCM16 at
// rate Hz. Multi-channel input is averaged down to one channel; rate <= 0
// keeps the source rate.
func DecodeWAVToPCM16(b []byte, rate int) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil {
		return nil, errors.New("empty wav buffer")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		channels = buf.Format.NumChannels
	}

	frames := len(buf.Data) / channels
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		v := sum / channels
		switch {
		case bitDepth > 16:
			v >>= bitDepth - 16
		case bitDepth == 8:
			// 8-bit WAV is unsigned
			v = (v - 128) << 8
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(clamp16(v))))
	}

	srcRate := int(dec.SampleRate)
	if buf.Format != nil && buf.Format.SampleRate > 0 {
		srcRate = buf.Format.SampleRate
	}
	if rate <= 0 || srcRate <= 0 || srcRate == rate {
		return out, nil
	}
	pcm, err := PCM16LEToFloat32(out)
	if err != nil {
		return nil, err
	}
	return Float32ToPCM16LE(ResampleLinear(pcm, srcRate, rate)), nil
}

func clamp16(v int) int {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

// PCM16LEToFloat32 converts little-endian PCM16 bytes into float32 samples in [-1,1].
func PCM16LEToFloat32(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// Float32ToPCM16LE converts float32 samples in [-1,1] to little-endian PCM16,
// clipping values outside that range.
func Float32ToPCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(clamp16(int(f*32768)))))
	}
	return out
}

// ResampleLinear resamples PCM32F from inRate to outRate using linear interpolation.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen <= 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		out[i] = samples[i0] + (samples[i0+1]-samples[i0])*frac
	}
	return out
}
