package sfz

import (
	"math"
	"sync/atomic"
	"time"
)

// VoiceState is the coarse Voice lifecycle: idle -> playing -> release ->
// idle.
type VoiceState int

const (
	VoiceIdle VoiceState = iota
	VoicePlaying
	VoiceRelease
)

// pendingLoad is what the background worker publishes once a sample
// finishes decoding. It is stored behind an atomic.Pointer so the render
// thread only ever observes a fully-formed value (release-acquire via
// the pointer swap).
type pendingLoad struct {
	buf SampleBuffer
	err error
}

// Voice owns one playing instance of a Region: source position, pitch
// and gain, the amp-EG, and the per-parameter BlockEnvelopes tied to
// controllers. Voices are allocated once by Synth and reused across
// notes; a Voice never outlives the Region it references beyond the
// Region's own load cycle (Synth guarantees this by construction).
type Voice struct {
	state   VoiceState
	region  *Region
	channel int
	note    int

	// triggerCC is the controller number that started this voice via
	// StartWithCC, or -1 if it was started by a note-on.
	triggerCC int

	sourcePos    float64 // fractional source frame position
	pitchRatio   float64
	speedRatio   float64
	baseGain     float64
	initialDelay int // frames of silence remaining before this voice makes sound
	noteIsOff    bool
	loopCount    int
	sampleCountLimit int // 0 = unlimited; else stop after this many loop wraps
	genPhase     float64 // *sine generator phase in radians

	ampEG    EnvelopeGenerator
	ampEnv   BlockEnvelope
	panEnv   BlockEnvelope
	widthEnv BlockEnvelope
	posEnv   BlockEnvelope
	tiedAmp, tiedPan, tiedWidth, tiedPos bool

	sampleRate float64 // output sample rate, set once at prepareToPlay

	loadHandle LoadHandle
	pending    atomic.Pointer[pendingLoad]
	buf        SampleBuffer

	// scratch buffers sized once to the engine's block size so
	// RenderBlock never allocates on the steady-state path.
	ampScratch, panScratch, widthScratch, posScratch []float64
}

// Prepare sets the fixed, engine-wide sample rate and block size this
// voice renders at, and preallocates its per-block scratch buffers.
// Called once per voice at engine initialization (prepareToPlay).
func (v *Voice) Prepare(sampleRate float64, maxBlockSize int) {
	v.sampleRate = sampleRate
	v.state = VoiceIdle
	v.ampScratch = make([]float64, maxBlockSize)
	v.panScratch = make([]float64, maxBlockSize)
	v.widthScratch = make([]float64, maxBlockSize)
	v.posScratch = make([]float64, maxBlockSize)
}

// State reports the voice's current lifecycle state.
func (v *Voice) State() VoiceState { return v.state }

// Region reports the region this voice is bound to, or nil when idle.
func (v *Voice) Region() *Region { return v.region }

// TriggerChannel reports the MIDI channel that started this voice.
func (v *Voice) TriggerChannel() int { return v.channel }

// TriggerNote reports the MIDI note that started this voice via
// StartWithNote; a voice started via StartWithCC reports its region's
// pitch keycenter.
func (v *Voice) TriggerNote() int { return v.note }

// reset returns v to its post-construction idle state. It may run on the
// render thread (a still-loading voice cut off mid-block resets from
// inside RenderBlock), so a pending background load is never canceled
// inline here: LoadHandle.Cancel is allowed to block up to its timeout
// waiting for the worker to notice, and the render thread can't afford
// that. The cancel is handed to its own goroutine instead.
func (v *Voice) reset() {
	if v.loadHandle != nil {
		h := v.loadHandle
		go h.Cancel(100 * time.Millisecond)
		v.loadHandle = nil
	}
	*v = Voice{
		sampleRate:   v.sampleRate,
		triggerCC:    -1,
		ampScratch:   v.ampScratch,
		panScratch:   v.panScratch,
		widthScratch: v.widthScratch,
		posScratch:   v.posScratch,
	}
	v.state = VoiceIdle
}

// StartWithNote binds region to this idle voice for a note-on event.
// sampleDelay is the block-local sample offset at which the note
// actually begins sounding (§5's ordering guarantee: a voice started at
// timestamp t contributes audio starting at sample t of its first
// block).
func (v *Voice) StartWithNote(pool SamplePool, region *Region, channel, note, velocity int, sampleDelay int, controllers *[NumControllers]int, rnd func() float64) {
	baseGain := region.BaseGain() * region.NoteGain(note, velocity)
	v.startCommon(pool, region, channel, sampleDelay, controllers, baseGain)
	v.note = note
	v.triggerCC = -1

	v.pitchRatio = region.PitchVariation(note, velocity, rnd())

	c := &region.Config
	v.ampEG.Prepare(c.EG.Amp, controllers, velocity, v.sampleRate, sampleDelay)
}

// StartWithCC binds region to this idle voice for a controller-triggered
// event (on_loccN/on_hiccN).
func (v *Voice) StartWithCC(pool SamplePool, region *Region, channel, cc, value int, sampleDelay int, controllers *[NumControllers]int, rnd func() float64) {
	note := region.Config.PitchKeycenter
	baseGain := region.BaseGain() * region.NoteGain(note, value)
	v.startCommon(pool, region, channel, sampleDelay, controllers, baseGain)
	v.note = note
	v.triggerCC = cc

	v.pitchRatio = region.PitchVariation(v.note, value, rnd())

	c := &region.Config
	v.ampEG.Prepare(c.EG.Amp, controllers, value, v.sampleRate, sampleDelay)
}

func (v *Voice) startCommon(pool SamplePool, region *Region, channel int, sampleDelay int, controllers *[NumControllers]int, baseGain float64) {
	c := &region.Config

	v.region = region
	v.channel = channel
	v.state = VoicePlaying
	v.noteIsOff = false
	v.loopCount = 0
	v.genPhase = 0
	v.baseGain = baseGain
	v.sourcePos = float64(c.Offset) + rangeUniform(float64(c.OffsetRandom))
	v.speedRatio = 1 // overwritten once the buffer reports its native rate
	v.initialDelay = int((c.Delay + rangeUniform(c.DelayRandom)) * v.sampleRate)
	if c.HasPlayCount && c.LoopEnd > c.LoopStart {
		v.sampleCountLimit = c.PlayCount
	} else {
		v.sampleCountLimit = 0
	}

	v.ampEnv = BlockEnvelope{}
	v.panEnv = BlockEnvelope{}
	v.widthEnv = BlockEnvelope{}
	v.posEnv = BlockEnvelope{}
	v.ampEnv.Reserve(8)
	v.panEnv.Reserve(8)
	v.widthEnv.Reserve(8)
	v.posEnv.Reserve(8)

	v.tiedAmp = c.AmpCC != nil
	if v.tiedAmp {
		v.ampEnv.SetTransform(Transform{Kind: TransformController, Base: v.baseGain, Depth: c.AmpCC.Depth})
		v.ampEnv.SetDefaultValue(float64(controllers[c.AmpCC.CC]))
	}
	v.tiedPan = c.PanCC != nil
	if v.tiedPan {
		v.panEnv.SetTransform(Transform{Kind: TransformLinear, Scale: c.PanCC.Depth / 127})
		v.panEnv.SetDefaultValue(float64(controllers[c.PanCC.CC]))
	} else {
		v.panEnv.SetDefaultValue(c.Pan)
	}
	v.tiedWidth = c.WidthCC != nil
	if v.tiedWidth {
		v.widthEnv.SetTransform(Transform{Kind: TransformLinear, Scale: c.WidthCC.Depth / 127})
		v.widthEnv.SetDefaultValue(float64(controllers[c.WidthCC.CC]))
	} else {
		v.widthEnv.SetDefaultValue(c.Width)
	}
	v.tiedPos = c.PositionCC != nil
	if v.tiedPos {
		v.posEnv.SetTransform(Transform{Kind: TransformLinear, Scale: c.PositionCC.Depth / 127})
		v.posEnv.SetDefaultValue(float64(controllers[c.PositionCC.CC]))
	} else {
		v.posEnv.SetDefaultValue(c.Position)
	}

	v.pending.Store(nil)
	v.buf = pool.Prefetch(c.SampleID)
	maxFrames := c.End
	if c.LoopEnd > 0 && (maxFrames < 0 || c.LoopEnd < maxFrames) {
		maxFrames = c.LoopEnd
	}
	v.loadHandle = pool.LoadAsync(c.SampleID, maxFrames, func(buf SampleBuffer, err error) {
		v.pending.Store(&pendingLoad{buf: buf, err: err})
	})
}

// rangeUniform returns a value in [0, spread); with spread<=0 it returns
// 0 deterministically (used for *Random opcodes callers didn't set).
func rangeUniform(spread float64) float64 {
	if spread <= 0 {
		return 0
	}
	return spread * pseudoUniform()
}

// pseudoUniform is a tiny non-cryptographic source used only for the
// audible randomization opcodes (offset/delay/pitch random) and the
// per-note-on draw matched against region rand ranges. It does
// not need to be cryptographically strong, just cheap and allocation
// free on the render thread.
var randState uint64 = 0x9e3779b97f4a7c15

func pseudoUniform() float64 {
	randState ^= randState << 13
	randState ^= randState >> 7
	randState ^= randState << 17
	return float64(randState>>11) / float64(1<<53)
}

// RegisterNoteOff handles a note-off for the note that (may have)
// triggered this voice. Ignored if channel does not match, if the loop
// mode is one_shot, or if this voice was started by a different note.
func (v *Voice) RegisterNoteOff(channel, note int, sustainDown bool) {
	if v.state != VoicePlaying || v.channel != channel || v.triggerCC >= 0 || v.note != note {
		return
	}
	if v.region.Config.Loop == LoopOneShot {
		return
	}
	v.noteIsOff = true
	if !sustainDown {
		v.Release(0, false)
	}
}

// RegisterCC forwards a controller update to any BlockEnvelope this
// voice's region ties to that controller, and evaluates release
// conditions (triggering CC leaving its range; sustain pedal release
// while a note-off is pending).
func (v *Voice) RegisterCC(cc, value, timestamp int, sustainDown bool) {
	if v.state != VoicePlaying {
		return
	}
	c := &v.region.Config
	if v.triggerCC == cc {
		if rng, ok := c.OnCC[cc]; ok && !rng.Contains(value) {
			v.noteIsOff = true
		}
	}
	if v.noteIsOff && !sustainDown {
		v.Release(timestamp, false)
	}
	if v.tiedAmp && c.AmpCC.CC == cc {
		v.ampEnv.AddEvent(timestamp, float64(value))
	}
	if v.tiedPan && c.PanCC.CC == cc {
		v.panEnv.AddEvent(timestamp, float64(value))
	}
	if v.tiedWidth && c.WidthCC.CC == cc {
		v.widthEnv.AddEvent(timestamp, float64(value))
	}
	if v.tiedPos && c.PositionCC.CC == cc {
		v.posEnv.AddEvent(timestamp, float64(value))
	}
}

// CheckOffGroup releases this voice if its bound region belongs to the
// given group — called by Synth with the off_by value of a region that
// just fired, for every other currently playing voice, so that firing a
// region cuts every voice sounding in the group it names. Uses a fast
// exponential release when that region's off_mode is fast.
func (v *Voice) CheckOffGroup(group int, timestamp int) bool {
	if v.state != VoicePlaying || v.region == nil {
		return false
	}
	if v.region.Config.Group != group {
		return false
	}
	v.Release(timestamp, v.region.Config.OffMode == OffFast)
	return true
}

// Release transitions the voice's amp-EG into its release stage at the
// given block-local timestamp.
func (v *Voice) Release(timestamp int, fast bool) {
	if v.state == VoiceIdle {
		return
	}
	v.state = VoiceRelease
	v.ampEG.Release(timestamp, fast)
}

// RenderBlock resamples and mixes numSamples of stereo audio into out
// (interleaved L,R), applying the amp-EG, any controller-tied amplitude
// envelope, and a simple equal-power pan/width/position model. It never
// blocks: until the background load completes, generator samples
// (*sine, *silence) or the preloaded prefix are used instead.
func (v *Voice) RenderBlock(out []float32, numSamples int, controllers *[NumControllers]int) {
	if v.state == VoiceIdle {
		return
	}
	if pl := v.pending.Load(); pl != nil {
		v.pending.Store(nil)
		if pl.err == nil && pl.buf != nil {
			v.buf = pl.buf
			v.speedRatio = v.buf.SampleRate() / v.sampleRate
		}
		v.loadHandle = nil
	}

	amp := v.ampScratch[:numSamples]
	pan := v.panScratch[:numSamples]
	width := v.widthScratch[:numSamples]
	pos := v.posScratch[:numSamples]
	if v.tiedAmp {
		v.ampEnv.Fill(amp)
	}
	v.panEnv.Fill(pan)
	v.widthEnv.Fill(width)
	v.posEnv.Fill(pos)

	start := 0
	if v.initialDelay > 0 {
		n := v.initialDelay
		if n > numSamples {
			n = numSamples
		}
		v.initialDelay -= n
		start = n
	}

	for i := start; i < numSamples; i++ {
		l, r, ok := v.nextFrame()
		if !ok {
			// Out of material: the rest of the block stays silent while
			// the amp-EG runs its release down to idle.
			if v.state != VoiceRelease {
				v.Release(0, false)
			}
			for ; i < numSamples && v.ampEG.IsSmoothing(); i++ {
				v.ampEG.NextSample()
			}
			break
		}

		eg := v.ampEG.NextSample()
		g := v.baseGain
		if v.tiedAmp {
			g = amp[i]
		}
		g *= eg
		l *= g
		r *= g

		l, r = applyStereoField(l, r, pan[i], width[i], pos[i])

		out[2*i] += float32(l)
		out[2*i+1] += float32(r)

		if v.state == VoiceRelease && !v.ampEG.IsSmoothing() {
			v.reset()
			return
		}
	}

	if v.state == VoiceRelease && !v.ampEG.IsSmoothing() {
		v.reset()
	}
}

// applyStereoField folds SFZ's pan/width/position triple into a simple
// equal-power stereo placement: width narrows the source image via a
// mid-side blend (-100 is mono, 100 leaves the image unchanged, and 0
// halves the side signal), then pan and position (which behave
// identically — both are an overall balance shift, position just comes
// from a separate opcode/controller pair) are summed into one balance
// applied with an equal-power law. All three are percent, -100..100.
func applyStereoField(l, r, pan, width, position float64) (float64, float64) {
	widthF := ClampF((width+100)/200, 0, 1)
	mid := (l + r) / 2
	side := (l - r) / 2 * widthF
	l, r = mid+side, mid-side
	return panSample(l, r, ClampF(pan+position, -100, 100))
}

const sqrt2 = 1.4142135623730951

func panSample(l, r, pan float64) (float64, float64) {
	p := ClampF(pan/100, -1, 1)
	// equal-power pan law: p=-1 hard left, p=0 center, p=1 hard right
	angle := (p + 1) * 0.25 * math.Pi
	gl := math.Cos(angle)
	gr := math.Sin(angle)
	return l * gl * sqrt2, r * gr * sqrt2
}

// nextFrame produces one interpolated source frame and advances the
// voice's fractional source position by speedRatio*pitchRatio, handling
// loop wraparound (with overflow carried into the wrapped position),
// loop-count termination, and natural end-of-data termination. ok is
// false when the voice has run out of material and should release.
func (v *Voice) nextFrame() (float64, float64, bool) {
	c := &v.region.Config

	switch c.SampleID {
	case "*silence":
		return 0, 0, true
	case "*sine":
		hz := noteToHz(float64(c.PitchKeycenter)) * v.pitchRatio
		s := math.Sin(v.genPhase)
		v.genPhase += 2 * math.Pi * hz / v.sampleRate
		return s, s, true
	}

	buf := v.buf
	if buf == nil {
		return 0, 0, true // silent until the background load completes
	}

	lastSample := buf.Frames() - 1
	if c.End >= 0 && c.End < lastSample {
		lastSample = c.End
	}
	if lastSample < 0 {
		return 0, 0, false
	}

	pos := v.sourcePos
	srcIdx := int(pos)
	frac := pos - float64(srcIdx)
	if srcIdx > lastSample {
		return 0, 0, false
	}

	loopStart := c.LoopStart
	loopEnd := c.LoopEnd
	if loopEnd > lastSample {
		loopEnd = lastSample
	}
	looping := c.Loop == LoopContinuous || (c.Loop == LoopSustain && !v.noteIsOff)

	var nextIdx int
	if srcIdx < lastSample {
		nextIdx = srcIdx + 1
	} else {
		canLoop := looping && loopEnd > loopStart
		if canLoop && (v.sampleCountLimit == 0 || v.loopCount < v.sampleCountLimit) {
			overflow := srcIdx - lastSample
			srcIdx = loopStart
			nextIdx = loopStart + 1 + overflow
			if nextIdx > loopEnd {
				nextIdx = loopStart
			}
			v.loopCount++
			v.sourcePos = float64(srcIdx) + frac
		} else {
			return 0, 0, false
		}
	}

	l0, r0 := sampleAt(buf, srcIdx)
	l1, r1 := sampleAt(buf, nextIdx)
	l := l0*(1-frac) + l1*frac
	r := r0*(1-frac) + r1*frac

	v.sourcePos += v.speedRatio * v.pitchRatio
	return l, r, true
}

func sampleAt(buf SampleBuffer, frame int) (float64, float64) {
	if frame < 0 || frame >= buf.Frames() {
		return 0, 0
	}
	if buf.Channels() >= 2 {
		return float64(buf.At(frame, 0)), float64(buf.At(frame, 1))
	}
	m := float64(buf.At(frame, 0))
	return m, m
}
