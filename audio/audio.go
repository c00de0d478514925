// Package audio drives real-time audio output for a sfz.Synth using
// oto. Unlike the push-style oto v1 API, oto v3's Player pulls PCM from
// an io.Reader, so Sink itself is that reader: it renders one fixed-size
// engine block at a time and serves its bytes across as many Read calls
// as it takes to drain them.
package audio

import (
	"fmt"

	"github.com/ebitengine/oto/v3"

	"github.com/mhschmieder/sfizz-juce"
)

// Sink owns the oto context/player pair and the scratch buffers used to
// convert the engine's interleaved float32 blocks to the 16-bit PCM oto
// expects.
type Sink struct {
	ctx    *oto.Context
	player *oto.Player
	synth  *sfz.Synth

	blockSize int
	floatBuf  []float32
	byteBuf   []byte
	pos       int

	// BeforeBlock, if set, runs immediately before each engine block is
	// rendered — the host's hook for draining queued MIDI input onto the
	// same thread that calls RenderBlock.
	BeforeBlock func()
}

// NewSink opens an oto playback context at sampleRate and wires it to
// pull rendered audio from synth in chunks of blockSize frames. synth
// must already have had PrepareToPlay called with the same sampleRate
// and a block size >= blockSize.
func NewSink(synth *sfz.Synth, sampleRate, blockSize int) (*Sink, error) {
	s := &Sink{
		synth:     synth,
		blockSize: blockSize,
		floatBuf:  make([]float32, blockSize*2),
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create oto context: %w", err)
	}
	<-ready

	s.ctx = ctx
	s.player = ctx.NewPlayer(s)
	return s, nil
}

// Start begins playback.
func (s *Sink) Start() { s.player.Play() }

// Playing reports whether the underlying player is actively pulling
// audio.
func (s *Sink) Playing() bool { return s.player.IsPlaying() }

// Close stops playback and releases the player. The oto context itself
// is process-wide and is not closed here.
func (s *Sink) Close() error {
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("audio: close player: %w", err)
	}
	return nil
}

// Read renders one engine block at a time and serves it out of byteBuf
// across however many calls oto makes to fill p, so Synth.RenderBlock is
// always called with the fixed blockSize it was prepared for.
func (s *Sink) Read(p []byte) (int, error) {
	if s.pos >= len(s.byteBuf) {
		if s.BeforeBlock != nil {
			s.BeforeBlock()
		}
		s.synth.RenderBlock(s.floatBuf, 0, s.blockSize)
		s.byteBuf = floatBufferTo16BitLE(s.floatBuf, s.byteBuf)
		s.pos = 0
	}
	n := copy(p, s.byteBuf[s.pos:])
	s.pos += n
	return n, nil
}
