package audio

import (
	"testing"
	"time"

	"github.com/mhschmieder/sfizz-juce"
)

// newFakeSink builds a Sink without a live oto context for exercising
// Sink.Read. Sink only calls synth.RenderBlock, so a minimal real
// *sfz.Synth with no loaded regions renders silence and is enough to
// drive the block-boundary bookkeeping in Read.
func newFakeSink(blockSize int) *Sink {
	synth := sfz.NewSynth(fakePool{}, 1)
	synth.PrepareToPlay(44100, blockSize)
	return &Sink{
		synth:     synth,
		blockSize: blockSize,
		floatBuf:  make([]float32, blockSize*2),
	}
}

type fakePool struct{}

func (fakePool) Prefetch(id string) sfz.SampleBuffer { return nil }
func (fakePool) LoadAsync(id string, maxFrames int, callback func(sfz.SampleBuffer, error)) sfz.LoadHandle {
	return fakeHandle{}
}

type fakeHandle struct{}

func (fakeHandle) Cancel(timeout time.Duration) bool { return true }

func TestSinkReadRendersOneBlockPerRefill(t *testing.T) {
	s := newFakeSink(8)
	// 8 frames * 2 channels * 2 bytes/sample = 32 bytes per engine block.
	p := make([]byte, 32)
	n, err := s.Read(p)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 32 {
		t.Fatalf("Read() n = %d, want 32", n)
	}
}

func TestSinkReadServesPartialChunksAcrossCalls(t *testing.T) {
	s := newFakeSink(4)
	// Ask for fewer bytes than one full engine block (4 frames * 2ch * 2B = 16B).
	first := make([]byte, 6)
	n, err := s.Read(first)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 6 {
		t.Fatalf("first Read() n = %d, want 6", n)
	}
	second := make([]byte, 10)
	n, err = s.Read(second)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 10 {
		t.Fatalf("second Read() n = %d, want 10 (remainder of the same rendered block)", n)
	}
}

func TestSinkReadCallsBeforeBlockHook(t *testing.T) {
	s := newFakeSink(4)
	called := 0
	s.BeforeBlock = func() { called++ }

	// One engine block of blockSize=4 converts to 16 bytes; read only part
	// of it so the next Read is served from the same buffered block.
	s.Read(make([]byte, 10))
	if called != 1 {
		t.Fatalf("BeforeBlock called %d times for one engine block, want 1", called)
	}
	s.Read(make([]byte, 1))
	if called != 1 {
		t.Fatalf("BeforeBlock called %d times after reading inside the same buffered block, want 1", called)
	}
}
