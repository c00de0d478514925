package sfz_test

import (
	"testing"
	"time"

	"github.com/mhschmieder/sfizz-juce"
)

// nopPool never resolves anything: it's enough for regions that use the
// *silence / *sine generators, which never touch SamplePool.Prefetch's
// result.
type nopPool struct{}

func (nopPool) Prefetch(id string) sfz.SampleBuffer { return nil }
func (nopPool) LoadAsync(id string, maxFrames int, callback func(sfz.SampleBuffer, error)) sfz.LoadHandle {
	return nopHandle{}
}

type nopHandle struct{}

func (nopHandle) Cancel(timeout time.Duration) bool { return true }

func newTestVoice(sampleRate float64, blockSize int) *sfz.Voice {
	v := &sfz.Voice{}
	v.Prepare(sampleRate, blockSize)
	return v
}

func TestVoiceSilenceGeneratorStaysIdleUntilStarted(t *testing.T) {
	v := newTestVoice(44100, 64)
	if v.State() != sfz.VoiceIdle {
		t.Fatalf("new voice state = %v, want VoiceIdle", v.State())
	}
}

func TestVoiceSilenceGeneratorProducesZeroOutput(t *testing.T) {
	v := newTestVoice(44100, 64)
	cfg := sfz.DefaultRegionConfig()
	cfg.SampleID = "*silence"
	cfg.EG.Amp.Sustain = 100
	region := sfz.NewRegion(cfg, 0)

	var controllers [sfz.NumControllers]int
	v.StartWithNote(nopPool{}, region, 1, 64, 100, 0, &controllers, func() float64 { return 0.5 })
	if v.State() != sfz.VoicePlaying {
		t.Fatalf("state after StartWithNote = %v, want VoicePlaying", v.State())
	}

	out := make([]float32, 2*16)
	v.RenderBlock(out, 16, &controllers)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("out[%d] = %v, want 0 for *silence generator", i, s)
		}
	}
}

func TestVoiceSineGeneratorProducesNonZeroOutput(t *testing.T) {
	v := newTestVoice(44100, 64)
	cfg := sfz.DefaultRegionConfig()
	cfg.SampleID = "*sine"
	cfg.EG.Amp.Sustain = 100
	region := sfz.NewRegion(cfg, 0)

	var controllers [sfz.NumControllers]int
	v.StartWithNote(nopPool{}, region, 1, 64, 100, 0, &controllers, func() float64 { return 0.5 })

	out := make([]float32, 2*64)
	v.RenderBlock(out, 64, &controllers)

	anyNonZero := false
	for _, s := range out {
		if s != 0 {
			anyNonZero = true
			break
		}
	}
	if !anyNonZero {
		t.Fatalf("expected *sine generator to produce non-zero samples")
	}
}

func TestVoiceReleaseEventuallyReturnsToIdle(t *testing.T) {
	v := newTestVoice(44100, 256)
	cfg := sfz.DefaultRegionConfig()
	cfg.SampleID = "*sine"
	cfg.EG.Amp.Sustain = 100
	cfg.EG.Amp.Release = 0.001
	region := sfz.NewRegion(cfg, 0)

	var controllers [sfz.NumControllers]int
	v.StartWithNote(nopPool{}, region, 1, 64, 100, 0, &controllers, func() float64 { return 0 })
	v.Release(0, false)

	out := make([]float32, 2*256)
	for i := 0; i < 200 && v.State() != sfz.VoiceIdle; i++ {
		v.RenderBlock(out, 256, &controllers)
	}
	if v.State() != sfz.VoiceIdle {
		t.Fatalf("voice never returned to VoiceIdle after release")
	}
}

func TestVoiceRegisterNoteOffIgnoresOtherNote(t *testing.T) {
	v := newTestVoice(44100, 64)
	cfg := sfz.DefaultRegionConfig()
	cfg.SampleID = "*sine"
	cfg.EG.Amp.Sustain = 100
	region := sfz.NewRegion(cfg, 0)

	var controllers [sfz.NumControllers]int
	v.StartWithNote(nopPool{}, region, 1, 64, 100, 0, &controllers, func() float64 { return 0 })
	v.RegisterNoteOff(1, 65, false) // different note, should be ignored
	if v.State() != sfz.VoicePlaying {
		t.Fatalf("state after unrelated note-off = %v, want VoicePlaying", v.State())
	}
	v.RegisterNoteOff(1, 64, false)
	if v.State() != sfz.VoiceRelease {
		t.Fatalf("state after matching note-off = %v, want VoiceRelease", v.State())
	}
}

func TestVoiceCheckOffGroupReleasesMatchingGroup(t *testing.T) {
	v := newTestVoice(44100, 64)
	cfg := sfz.DefaultRegionConfig()
	cfg.SampleID = "*sine"
	cfg.Group = 5
	cfg.EG.Amp.Sustain = 100
	region := sfz.NewRegion(cfg, 0)

	var controllers [sfz.NumControllers]int
	v.StartWithNote(nopPool{}, region, 1, 64, 100, 0, &controllers, func() float64 { return 0 })

	if v.CheckOffGroup(6, 0) {
		t.Fatalf("CheckOffGroup with non-matching group released the voice")
	}
	if !v.CheckOffGroup(5, 0) {
		t.Fatalf("CheckOffGroup with matching group did not report a release")
	}
	if v.State() != sfz.VoiceRelease {
		t.Fatalf("state after CheckOffGroup match = %v, want VoiceRelease", v.State())
	}
}
