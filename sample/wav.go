package sample

import (
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"
)

// Buffer is a fully decoded, interleaved PCM buffer satisfying
// sfz.SampleBuffer.
type Buffer struct {
	data     []float32 // interleaved, channels() samples per frame
	channels int
	rate     float64
}

func (b *Buffer) Frames() int { return len(b.data) / b.channels }
func (b *Buffer) Channels() int { return b.channels }
func (b *Buffer) SampleRate() float64 { return b.rate }

func (b *Buffer) At(frame, channel int) float32 {
	return b.data[frame*b.channels+channel]
}

// decodeWAV reads path in full into memory. SFZ instruments reference
// short one-shot and looped samples, not streamed multi-minute audio, so
// a whole-file decode (shared across every region and voice that
// references the same path, via Pool's cache) keeps the render path
// allocation-free without needing a streaming decoder.
func decodeWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sample: open %s: %w", path, err)
	}
	defer f.Close()

	r := wav.NewReader(f)
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("sample: read format of %s: %w", path, err)
	}
	channels := int(format.NumChannels)
	if channels < 1 {
		channels = 1
	}

	buf := &Buffer{channels: channels, rate: float64(format.SampleRate)}
	for {
		samples, err := r.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sample: decode %s: %w", path, err)
		}
		for _, s := range samples {
			for ch := 0; ch < channels; ch++ {
				buf.data = append(buf.data, float32(r.FloatValue(s, uint(ch))))
			}
		}
	}
	return buf, nil
}
