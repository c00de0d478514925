package sample

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// writeMinimalPCM16WAV writes a canonical RIFF/WAVE file containing a
// single fmt chunk and a single data chunk of 16-bit PCM samples, good
// enough to exercise decodeWAV without depending on any other encoder.
func writeMinimalPCM16WAV(t *testing.T, path string, channels, sampleRate int, samples []int16) {
	t.Helper()
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2
	dataSize := len(samples) * 2
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	write := func(v any) {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			t.Fatalf("write wav: %v", err)
		}
	}

	f.WriteString("RIFF")
	write(uint32(riffSize))
	f.WriteString("WAVE")

	f.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(channels))
	write(uint32(sampleRate))
	write(uint32(byteRate))
	write(uint16(blockAlign))
	write(uint16(16)) // bits per sample

	f.WriteString("data")
	write(uint32(dataSize))
	for _, s := range samples {
		write(s)
	}
}

func TestDecodeWAVMono(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mono.wav")
	samples := []int16{0, 16384, -16384, 32767}
	writeMinimalPCM16WAV(t, path, 1, 44100, samples)

	buf, err := decodeWAV(path)
	if err != nil {
		t.Fatalf("decodeWAV() error = %v", err)
	}
	if buf.Channels() != 1 {
		t.Fatalf("Channels() = %d, want 1", buf.Channels())
	}
	if buf.SampleRate() != 44100 {
		t.Fatalf("SampleRate() = %v, want 44100", buf.SampleRate())
	}
	if buf.Frames() != len(samples) {
		t.Fatalf("Frames() = %d, want %d", buf.Frames(), len(samples))
	}
	if v := buf.At(1, 0); v <= 0 {
		t.Fatalf("At(1, 0) = %v, want a positive value for a positive 16384 sample", v)
	}
}

func TestDecodeWAVStereo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stereo.wav")
	// Interleaved L,R,L,R: two frames.
	samples := []int16{1000, -1000, 2000, -2000}
	writeMinimalPCM16WAV(t, path, 2, 48000, samples)

	buf, err := decodeWAV(path)
	if err != nil {
		t.Fatalf("decodeWAV() error = %v", err)
	}
	if buf.Channels() != 2 {
		t.Fatalf("Channels() = %d, want 2", buf.Channels())
	}
	if buf.Frames() != 2 {
		t.Fatalf("Frames() = %d, want 2", buf.Frames())
	}
	left := buf.At(0, 0)
	right := buf.At(0, 1)
	if left <= 0 || right >= 0 {
		t.Fatalf("frame 0 = (%v, %v), want a positive left and negative right sample", left, right)
	}
}

func TestDecodeWAVMissingFile(t *testing.T) {
	if _, err := decodeWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatalf("expected an error decoding a nonexistent file")
	}
}
