package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTestWAV(t *testing.T, samples []int, channels int) []byte {
	return writeTestWAVRate(t, samples, channels, 16000)
}

func writeTestWAVRate(t *testing.T, samples []int, channels, rate int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecodeChunkWAV(t *testing.T) {
	data := writeTestWAV(t, []int{100, -100, 32767, -32768}, 1)

	pcm, err := DecodeChunk(data, "audio/wav", 16000)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}
	if len(pcm) != 8 {
		t.Fatalf("Expected 8 bytes, got %d", len(pcm))
	}
	want := []int16{100, -100, 32767, -32768}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(pcm[2*i:])); got != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestDecodeChunkWAVStereoDownmix(t *testing.T) {
	data := writeTestWAV(t, []int{100, 300, -200, -400}, 2)

	pcm, err := DecodeChunk(data, "audio/wav", 16000)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}
	if len(pcm) != 4 {
		t.Fatalf("Expected 4 bytes, got %d", len(pcm))
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[0:])); got != 200 {
		t.Errorf("Expected 200, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[2:])); got != -300 {
		t.Errorf("Expected -300, got %d", got)
	}
}

func TestDecodeChunkWAVResamples(t *testing.T) {
	// 100ms at 48kHz
	samples := make([]int, 4800)
	for i := range samples {
		samples[i] = 1000
	}
	data := writeTestWAVRate(t, samples, 1, 48000)

	pcm, err := DecodeChunk(data, "audio/wav", 16000)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}
	if got := len(pcm) / 2; got != 1600 {
		t.Fatalf("Expected 1600 samples at 16kHz, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[100:])); got < 999 || got > 1000 {
		t.Errorf("Expected level preserved near 1000, got %d", got)
	}

	same, err := DecodeChunk(data, "audio/wav", 48000)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}
	if len(same)/2 != 4800 {
		t.Errorf("Expected source rate kept, got %d samples", len(same)/2)
	}
}

func TestFloat32ToPCM16LE(t *testing.T) {
	out := Float32ToPCM16LE([]float32{0.5, -1, 2})
	want := []int16{16384, -32768, 32767}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(out[2*i:])); got != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestDecodeChunkRejectsMalformed(t *testing.T) {
	if _, err := DecodeChunk([]byte{1, 2, 3}, "audio/pcm", 16000); err != ErrOddLength {
		t.Errorf("Expected ErrOddLength, got %v", err)
	}
	if _, err := DecodeChunk([]byte("not a wav"), "audio/wav", 16000); err == nil {
		t.Error("Expected error for invalid wav")
	}
	if _, err := DecodeChunk([]byte{0, 0}, "audio/ogg", 16000); err == nil {
		t.Error("Expected error for unsupported mime type")
	}
	if pcm, err := DecodeChunk([]byte{1, 2}, "", 16000); err != nil || len(pcm) != 2 {
		t.Errorf("Expected raw passthrough, got %v, %v", pcm, err)
	}
}

func TestPCM16LEToFloat32(t *testing.T) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint16(raw[0:], uint16(16384))
	v := int16(-32768)
	binary.LittleEndian.PutUint16(raw[2:], uint16(v))

	out, err := PCM16LEToFloat32(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 0.5 || out[1] != -1 {
		t.Errorf("Expected [0.5 -1], got %v", out)
	}
}

func TestResampleLinear(t *testing.T) {
	in := make([]float32, 480)
	out := ResampleLinear(in, 48000, 16000)
	if len(out) != 160 {
		t.Errorf("Expected 160 samples, got %d", len(out))
	}
	same := ResampleLinear(in, 16000, 16000)
	if len(same) != len(in) {
		t.Errorf("Expected passthrough length %d, got %d", len(in), len(same))
	}
}
