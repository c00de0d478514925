package sfz

import "math"

// FRange is an inclusive float64 range, used for the handful of
// selection dimensions that are not integers (BPM, the [0,1] random
// bucket).
type FRange struct {
	Lo, Hi float64
}

// Contains reports whether v falls within the inclusive range.
func (r FRange) Contains(v float64) bool {
	return v >= r.Lo && v <= r.Hi
}

// VelCurvePoint is one sparse (velocity, gain) point of a custom
// amp_velcurve_N table.
type VelCurvePoint struct {
	Velocity int
	Gain     float64
}

// EGSet groups the three envelope descriptors a region can carry. Only
// Amp drives actual gain in this engine; Pitch and Filter are parsed and
// clamped (so getRegionView and diagnostics see them) but not rendered,
// matching spec.md's Non-goals around filter/LFO processing.
type EGSet struct {
	Amp, Pitch, Filter EGDescriptor
}

// RegionConfig is the immutable, parser-filled configuration of a
// region: everything opcodes can set. It never changes after load.
type RegionConfig struct {
	// Source
	SampleID       string
	Offset         int
	OffsetRandom   int
	End            int // -1 means "natural sample length"
	PlayCount      int
	HasPlayCount   bool
	Loop           LoopMode
	LoopStart      int
	LoopEnd        int
	Delay          float64
	DelayRandom    float64

	// Grouping
	Group    int
	OffBy    int
	HasOffBy bool
	OffMode  OffMode

	// Selection ranges
	KeyRange        Range
	VelRange        Range
	ChannelRange    Range
	BendRange       Range
	AftertouchRange Range
	BPMRange        FRange
	RandRange       FRange
	CCConditions    map[int]Range // locc/hicc
	KeyswitchRange  Range
	SwLast          *int
	SwUp            *int
	SwDown          *int
	SwPrevious      *int
	VelOverride     VelocityOverride
	SeqLength       int
	SeqPosition     int

	// Triggers
	Trigger TriggerMode
	OnCC    map[int]Range // on_loccN/on_hiccN

	// Amplitude
	VolumeDB      float64
	Amplitude     float64 // linear multiplier, default 1
	Pan           float64
	Width         float64
	Position      float64
	AmpCC         *CCDepth
	PanCC         *CCDepth
	WidthCC       *CCDepth
	PositionCC    *CCDepth
	AmpKeycenter  int
	AmpKeytrack   float64
	AmpVeltrack   float64
	VelCurve      []VelCurvePoint
	AmpRandom     float64
	XFKeyIn       Range
	XFKeyOut      Range
	XFVelIn       Range
	XFVelOut      Range
	XFKeyCurve    CrossfadeCurve
	XFVelCurve    CrossfadeCurve

	// Pitch
	PitchKeycenter int
	PitchKeytrack  float64
	PitchRandom    float64
	PitchVeltrack  float64
	Transpose      int
	Tune           float64

	EG EGSet

	// Diagnostics: opcodes the parser saw for this region but did not
	// recognize.
	UnknownOpcodes []string
}

// DefaultRegionConfig returns a RegionConfig with every field at the
// value it takes when no opcode has touched it.
func DefaultRegionConfig() RegionConfig {
	return RegionConfig{
		End:             -1,
		Loop:            LoopNone,
		KeyRange:        FullRange(0, 127),
		VelRange:        FullRange(0, 127),
		ChannelRange:    FullRange(1, 16),
		BendRange:       Range{Lo: -8192, Hi: 8192},
		AftertouchRange: FullRange(0, 127),
		BPMRange:        FRange{Lo: 0, Hi: 500},
		RandRange:       FRange{Lo: 0, Hi: 1},
		KeyswitchRange:  FullRange(0, 127),
		SeqLength:       1,
		SeqPosition:     1,
		Amplitude:       1,
		AmpKeycenter:    60,
		PitchKeycenter:  60,
		XFKeyCurve:      CurvePower,
		XFVelCurve:      CurvePower,
	}
}

// activationState is the mutable, MIDI-driven half of a region: booleans
// for every gating dimension, updated incrementally as events arrive
// rather than recomputed from scratch.
type activationState struct {
	keySwitched       bool
	prevKeySwitched   bool
	sequenceSwitched  bool
	pitchSwitched     bool
	bpmSwitched       bool
	aftertouchSwitched bool
	ccSwitched        [NumControllers]bool
	ccTriggerArmed    [NumControllers]bool // edge-detect state for on_loccN/on_hiccN

	seqCounter int

	lastNoteVelocities [128]int
	haveLastNote       bool
	lastNote           int

	activeNotes    int // count of notes currently held that satisfied this region's key/vel bounds
	pendingRelease bool // a release-triggered note-off arrived while sustain (cc64) was held
	pendingReleaseNote int
	pendingReleaseVel  int
}

// Region combines a RegionConfig (parser output, immutable) with its
// activationState (MIDI-driven, mutable). It is owned by Synth; Voices
// hold a non-owning reference to the Region they are bound to.
type Region struct {
	Config RegionConfig
	state  activationState

	// Index is this region's position in load order, matching
	// getRegionView(i).
	Index int
}

// NewRegion builds a Region from a fully inherited, fully parsed
// configuration.
func NewRegion(cfg RegionConfig, index int) *Region {
	return &Region{Config: cfg, Index: index}
}

// RegionView is a read-only snapshot of a region's configuration and
// current activation flags, safe to hand to a host UI without racing the
// render thread: every field copied is a plain scalar or a shallow copy
// of parser-immutable slices/maps.
type RegionView struct {
	SampleID    string
	KeyRange    Range
	VelRange    Range
	Group       int
	Trigger     TriggerMode
	SwitchedOn  bool
	SeqPosition int
}

// View returns a RegionView snapshot of this region.
func (r *Region) View() RegionView {
	return RegionView{
		SampleID:    r.Config.SampleID,
		KeyRange:    r.Config.KeyRange,
		VelRange:    r.Config.VelRange,
		Group:       r.Config.Group,
		Trigger:     r.Config.Trigger,
		SwitchedOn:  r.IsSwitchedOn(),
		SeqPosition: r.Config.SeqPosition,
	}
}

// Prime evaluates every activation dimension against the current MIDI
// state once, at load time (or reload time). Subsequent register* calls
// are incremental from this baseline.
func (r *Region) Prime(controllers *[NumControllers]int, bend int, aftertouch int, bpm float64, swDefault int, swDefaultSet bool) {
	c := &r.Config
	s := &r.state

	// A region with no sw_last/sw_down is keyswitch-gated on by default;
	// sw_last (and, symmetrically, sw_down) require an explicit match
	// before the region can sound.
	s.keySwitched = c.SwLast == nil && c.SwDown == nil
	if swDefaultSet {
		if c.SwLast != nil && *c.SwLast == swDefault {
			s.keySwitched = true
		}
		if c.SwUp != nil && *c.SwUp == swDefault {
			s.keySwitched = false
		}
	}
	s.prevKeySwitched = c.SwPrevious == nil
	// Round-robin position is matched incrementally in noteOnFires against
	// seqCounter; it is not part of the steady-state gating conjunction.
	s.sequenceSwitched = true
	s.pitchSwitched = c.BendRange.Contains(bend)
	s.bpmSwitched = c.BPMRange.Contains(bpm)
	s.aftertouchSwitched = c.AftertouchRange.Contains(aftertouch)

	s.ccSwitched = [NumControllers]bool{}
	for cc := 0; cc < NumControllers; cc++ {
		if rng, ok := c.CCConditions[cc]; ok {
			s.ccSwitched[cc] = rng.Contains(controllers[cc])
		} else {
			s.ccSwitched[cc] = true
		}
	}
}

// IsSwitchedOn is the steady-state predicate: the conjunction of every
// incrementally maintained gating flag.
func (r *Region) IsSwitchedOn() bool {
	s := &r.state
	if !(s.keySwitched && s.prevKeySwitched && s.sequenceSwitched && s.pitchSwitched && s.bpmSwitched && s.aftertouchSwitched) {
		return false
	}
	for cc := range r.Config.CCConditions {
		if !s.ccSwitched[cc] {
			return false
		}
	}
	return true
}

// RegisterCC updates controller-conditioned gating flags, region
// controller-driven triggers, and keyswitch-adjacent bookkeeping. It
// returns true iff this event should trigger a new voice for this
// region (an on_loccN/on_hiccN edge trigger).
func (r *Region) RegisterCC(channel, cc, value int) bool {
	s := &r.state
	c := &r.Config

	if rng, ok := c.CCConditions[cc]; ok {
		s.ccSwitched[cc] = rng.Contains(value)
	}

	fires := false
	if rng, ok := c.OnCC[cc]; ok {
		inRange := rng.Contains(value)
		if inRange && !s.ccTriggerArmed[cc] {
			fires = r.IsSwitchedOn() && c.ChannelRange.Contains(channel)
		}
		s.ccTriggerArmed[cc] = inRange
	}
	return fires
}

// RegisterPitchWheel updates the pitch-bend gating flag.
func (r *Region) RegisterPitchWheel(channel, bend int) {
	if !r.Config.ChannelRange.Contains(channel) {
		return
	}
	r.state.pitchSwitched = r.Config.BendRange.Contains(bend)
}

// RegisterAftertouch updates the aftertouch gating flag.
func (r *Region) RegisterAftertouch(channel, pressure int) {
	if !r.Config.ChannelRange.Contains(channel) {
		return
	}
	r.state.aftertouchSwitched = r.Config.AftertouchRange.Contains(pressure)
}

// RegisterTempo updates the BPM gating flag from a host tempo report.
func (r *Region) RegisterTempo(secondsPerQuarter float64) {
	if secondsPerQuarter <= 0 {
		return
	}
	bpm := 60 / secondsPerQuarter
	r.state.bpmSwitched = r.Config.BPMRange.Contains(bpm)
}

// RegisterNoteOn evaluates the note-on trigger rule and updates keyswitch
// and sequence bookkeeping. It returns true iff a new voice should start
// for this region.
func (r *Region) RegisterNoteOn(channel, note, velocity int, rnd float64) bool {
	c := &r.Config
	s := &r.state

	s.lastNoteVelocities[note&0x7f] = velocity

	fires := r.noteOnFires(channel, note, velocity, rnd)

	if c.KeyswitchRange.Contains(note) {
		if c.SwLast != nil {
			s.keySwitched = *c.SwLast == note
		}
		if c.SwDown != nil {
			if *c.SwDown == note {
				s.keySwitched = true
			}
		}
		if c.SwUp != nil {
			if *c.SwUp == note {
				s.keySwitched = false
			}
		}
	}

	if c.Trigger == TriggerAttack || c.Trigger == TriggerFirst || c.Trigger == TriggerLegato {
		if c.ChannelRange.Contains(channel) && c.KeyRange.Contains(note) && c.VelRange.Contains(velocity) {
			s.activeNotes++
		}
	}

	s.haveLastNote = true
	s.lastNote = note

	return fires
}

func (r *Region) noteOnFires(channel, note, velocity int, rnd float64) bool {
	c := &r.Config
	s := &r.state

	if c.Trigger == TriggerRelease || c.Trigger == TriggerReleaseKey {
		return false
	}
	if !r.IsSwitchedOn() {
		return false
	}
	if !c.ChannelRange.Contains(channel) || !c.KeyRange.Contains(note) || !c.VelRange.Contains(velocity) {
		return false
	}
	if !c.RandRange.Contains(rnd) {
		return false
	}
	switch c.Trigger {
	case TriggerFirst:
		if s.activeNotes != 0 {
			return false
		}
	case TriggerLegato:
		if s.activeNotes == 0 {
			return false
		}
	}
	if c.SwPrevious != nil {
		if !s.haveLastNote || s.lastNote != *c.SwPrevious {
			return false
		}
	}
	if c.SeqLength > 1 {
		want := (s.seqCounter % c.SeqLength) + 1
		s.seqCounter++
		return want == c.SeqPosition
	}
	return true
}

// RegisterNoteOff evaluates the release/release_key trigger rule and
// updates per-region note-held bookkeeping. sustainDown is the current
// state of controller 64. It returns true iff a new voice should start
// for this (release-triggered) region.
func (r *Region) RegisterNoteOff(channel, note, velocity int, sustainDown bool) bool {
	c := &r.Config
	s := &r.state

	if c.SwUp != nil && c.KeyswitchRange.Contains(note) && *c.SwUp == note {
		s.keySwitched = true
	}

	if c.Trigger == TriggerAttack || c.Trigger == TriggerFirst || c.Trigger == TriggerLegato {
		if c.ChannelRange.Contains(channel) && c.KeyRange.Contains(note) && s.activeNotes > 0 {
			s.activeNotes--
		}
		return false
	}
	if !c.ChannelRange.Contains(channel) || !c.KeyRange.Contains(note) {
		return false
	}
	relVel := velocity
	if c.VelOverride == VelocityPrevious {
		relVel = s.lastNoteVelocities[note&0x7f]
	}
	if !c.VelRange.Contains(relVel) {
		return false
	}
	if c.Trigger == TriggerRelease && sustainDown {
		s.pendingRelease = true
		s.pendingReleaseNote = note
		s.pendingReleaseVel = relVel
		return false
	}
	return r.IsSwitchedOn()
}

// ConsumePedalRelease is called when the sustain pedal (CC 64) is
// released. If a release trigger had been deferred by a held pedal, it
// fires now.
func (r *Region) ConsumePedalRelease() (note, velocity int, ok bool) {
	s := &r.state
	if !s.pendingRelease {
		return 0, 0, false
	}
	s.pendingRelease = false
	return s.pendingReleaseNote, s.pendingReleaseVel, r.Config.Trigger == TriggerRelease
}

// BaseGain converts the region's static volume/amplitude opcodes into a
// linear multiplier, independent of the triggering note or velocity.
func (r *Region) BaseGain() float64 {
	return dBToGain(r.Config.VolumeDB) * r.Config.Amplitude
}

// NoteGain applies the velocity curve, amp_keytrack/veltrack, and
// key/velocity crossfades for a specific triggering note/velocity.
// amp_random is parsed into the config but not applied here.
//
// Deviation from the original C++ source (documented per spec.md's Open
// Questions): the velocity-crossfade ratio here uses velocity as the
// dividend, not the note number. The original's use of noteNumber there
// reads as a transcription bug; velocity is what the opcode name and the
// rest of the amplitude model imply.
func (r *Region) NoteGain(note, velocity int) float64 {
	c := &r.Config
	gain := r.velocityCurveGain(velocity)

	keytrackDB := c.AmpKeytrack * float64(note-c.AmpKeycenter)
	gain *= dBToGain(keytrackDB)

	veltrackDB := c.AmpVeltrack * (float64(velocity) / 127)
	gain *= dBToGain(veltrackDB)

	gain *= crossfadeFactor(note, c.XFKeyIn, c.XFKeyOut, c.XFKeyCurve)
	gain *= crossfadeFactor(velocity, c.XFVelIn, c.XFVelOut, c.XFVelCurve)

	return gain
}

func (r *Region) velocityCurveGain(velocity int) float64 {
	c := &r.Config
	if len(c.VelCurve) == 0 {
		return float64(velocity) / 127
	}
	pts := c.VelCurve
	if velocity <= pts[0].Velocity {
		return pts[0].Gain
	}
	if velocity >= pts[len(pts)-1].Velocity {
		return pts[len(pts)-1].Gain
	}
	for i := 1; i < len(pts); i++ {
		if velocity <= pts[i].Velocity {
			a, b := pts[i-1], pts[i]
			t := float64(velocity-a.Velocity) / float64(b.Velocity-a.Velocity)
			return a.Gain + t*(b.Gain-a.Gain)
		}
	}
	return pts[len(pts)-1].Gain
}

// crossfadeFactor computes a smooth 0..1 blend for a position that
// approaches a crossfade-in range from below, or a crossfade-out range
// from above. A position above the fade-in range and below the fade-out
// range returns 1 (unattenuated); below the fade-in range or above the
// fade-out range it returns 0; inside the fade-in range it ramps 0->1;
// inside the fade-out range it ramps 1->0. A range with Hi <= Lo is
// treated as absent.
func crossfadeFactor(position int, in, out Range, curve CrossfadeCurve) float64 {
	factor := 1.0
	if in.Hi > in.Lo {
		if position < in.Lo {
			factor = 0
		} else if position < in.Hi {
			factor = float64(position-in.Lo) / float64(in.Hi-in.Lo)
		}
	}
	if out.Hi > out.Lo {
		if position > out.Hi {
			factor = 0
		} else if position > out.Lo {
			factor *= 1 - float64(position-out.Lo)/float64(out.Hi-out.Lo)
		}
	}
	switch curve {
	case CurvePower:
		return math.Sqrt(ClampF(factor, 0, 1))
	default:
		return ClampF(factor, 0, 1)
	}
}

// PitchVariation computes the pitch ratio for a triggering note and
// velocity: keytrack + tune + transpose + veltrack, all in cents,
// converted to a frequency ratio, plus a uniform random offset in
// [-pitchRandom, +pitchRandom] cents.
func (r *Region) PitchVariation(note, velocity int, uniform01 float64) float64 {
	c := &r.Config
	cents := c.PitchKeytrack*float64(note-c.PitchKeycenter) + c.Tune + 100*float64(c.Transpose)
	cents += c.PitchVeltrack * (float64(velocity) / 127)
	if c.PitchRandom > 0 {
		cents += (uniform01*2 - 1) * c.PitchRandom
	}
	return centsToRatio(cents)
}
