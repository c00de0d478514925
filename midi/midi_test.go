package midi

import (
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/mhschmieder/sfizz-juce"
)

// dispatch is exercised directly with synthetic messages rather than
// through Open, since Open requires a real MIDI driver and port.

func TestDispatchNoteOnStartsRegion(t *testing.T) {
	synth := sfz.NewSynth(nopPool{}, 4)
	synth.PrepareToPlay(44100, 64)
	cfg := sfz.DefaultRegionConfig()
	cfg.SampleID = "*sine"
	cfg.EG.Amp.Sustain = 100
	synth.SetRegions([]sfz.RegionConfig{cfg}, nil, nil, nil, nil, 0, false)

	// gomidi channel 0 is MIDI channel 1, inside the default 1..16 range.
	dispatch(synth, gomidi.NoteOn(0, 64, 100), 0)
	synth.RenderBlock(make([]float32, 2*64), 0, 64)
	if synth.ActiveVoices() != 1 {
		t.Fatalf("ActiveVoices() = %d, want 1", synth.ActiveVoices())
	}
}

func TestDispatchNoteOnZeroVelocityIsNoteOff(t *testing.T) {
	synth := sfz.NewSynth(nopPool{}, 4)
	synth.PrepareToPlay(44100, 64)

	// A zero-velocity note-on must be treated as a note-off, not panic or
	// start a voice.
	dispatch(synth, gomidi.NoteOn(0, 64, 0), 0)
}

func TestDispatchControlChangeUpdatesController(t *testing.T) {
	synth := sfz.NewSynth(nopPool{}, 4)
	synth.PrepareToPlay(44100, 64)
	cfg := sfz.DefaultRegionConfig()
	cfg.CCConditions = map[int]sfz.Range{7: {Lo: 100, Hi: 127}}
	synth.SetRegions([]sfz.RegionConfig{cfg}, nil, nil, nil, nil, 0, false)

	dispatch(synth, gomidi.ControlChange(0, 7, 100), 0)
	view, err := synth.RegionView(0)
	if err != nil || !view.SwitchedOn {
		t.Fatalf("RegionView(0) = %+v, %v; want a region gated on by controller 7 = 100", view, err)
	}
}

type nopPool struct{}

func (nopPool) Prefetch(id string) sfz.SampleBuffer { return nil }
func (nopPool) LoadAsync(id string, maxFrames int, callback func(sfz.SampleBuffer, error)) sfz.LoadHandle {
	return nopHandle{}
}

type nopHandle struct{}

func (nopHandle) Cancel(timeout time.Duration) bool { return true }
