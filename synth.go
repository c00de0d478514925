package sfz

import (
	"fmt"
	"log"
)

// Synth is the render-thread coordinator: it owns the region list, a
// fixed voice pool, and the live MIDI controller vector, and dispatches
// incoming events to both. Its methods, SetRegions included, take no
// locks and are meant to be called only from the single thread that
// also calls RenderBlock — see the concurrency model in SPEC_FULL.md.
type Synth struct {
	regions []*Region
	voices  []Voice

	controllers [NumControllers]int
	lastBend    int
	lastAfter   int
	bpm         float64

	pool       SamplePool
	sampleRate float64
	blockSize  int

	unknownOpcodes []string
	ccLabels       map[int]string
	curves         map[int]map[int]float64

	activeVoices int
}

// NewSynth constructs a Synth with the given polyphony, backed by pool
// for sample data. Call PrepareToPlay before the first RenderBlock.
func NewSynth(pool SamplePool, numVoices int) *Synth {
	s := &Synth{
		pool:     pool,
		voices:   make([]Voice, numVoices),
		ccLabels: make(map[int]string),
		curves:   make(map[int]map[int]float64),
	}
	for i := range s.voices {
		s.voices[i].triggerCC = -1
	}
	return s
}

// PrepareToPlay fixes the output sample rate and the maximum block size
// RenderBlock will ever be asked to fill. Must be called before any
// voice starts.
func (s *Synth) PrepareToPlay(sampleRate float64, samplesPerBlock int) {
	s.sampleRate = sampleRate
	s.blockSize = samplesPerBlock
	for i := range s.voices {
		s.voices[i].Prepare(sampleRate, samplesPerBlock)
	}
}

// GetNumRegions reports how many regions are currently loaded.
func (s *Synth) GetNumRegions() int { return len(s.regions) }

// RegionView returns a read-only snapshot of region i's configuration
// and current activation state, in load order.
func (s *Synth) RegionView(i int) (RegionView, error) {
	if i < 0 || i >= len(s.regions) {
		return RegionView{}, fmt.Errorf("sfz: region index %d out of range [0,%d)", i, len(s.regions))
	}
	return s.regions[i].View(), nil
}

// UnknownOpcodes returns the opcodes the parser saw across all regions
// but did not recognize, for host diagnostics. Parse errors never fail
// a load; they only show up here.
func (s *Synth) UnknownOpcodes() []string { return s.unknownOpcodes }

// CCLabels returns the controller-number-to-label map collected from
// <control> label_ccN opcodes.
func (s *Synth) CCLabels() map[int]string { return s.ccLabels }

// ActiveVoices reports how many voices are not idle, for a host CPU
// meter or polyphony display.
func (s *Synth) ActiveVoices() int { return s.activeVoices }

// Clear resets the engine to its post-construction state: no regions,
// every voice idle (canceling any in-flight background load), and a
// zeroed controller vector.
func (s *Synth) Clear() {
	for i := range s.voices {
		if s.voices[i].State() != VoiceIdle {
			s.voices[i].Release(0, true)
			s.voices[i].reset()
		}
	}
	s.regions = nil
	s.unknownOpcodes = nil
	s.ccLabels = make(map[int]string)
	s.curves = make(map[int]map[int]float64)
	s.controllers = [NumControllers]int{}
	s.lastBend = 0
	s.lastAfter = 0
}

// primeAll evaluates every region's activation predicate against the
// current MIDI state once, right after a load.
func (s *Synth) primeAll(swDefault int, swDefaultSet bool) {
	for _, r := range s.regions {
		r.Prime(&s.controllers, s.lastBend, s.lastAfter, s.bpm, swDefault, swDefaultSet)
	}
}

// SetRegions replaces the engine's current region set and load-time
// diagnostics with the contents of a parsed instrument. Existing voices
// are released as if Clear had been called first: an in-progress
// instrument swap never leaves a Voice pointing at a Region that no
// longer belongs to Synth.
//
// Synth has no dependency on how regions were produced — parsing an
// .sfz file lives in package parser, which itself depends on sfz's
// types (RegionConfig and friends). A host loads an instrument by
// calling parser.Parse and forwarding its fields here; Synth never
// imports parser, so the dependency between the engine core and the
// file-format reader runs in one direction only.
func (s *Synth) SetRegions(regions []RegionConfig, unknownOpcodes []string, ccLabels map[int]string, curves map[int]map[int]float64, defaultCC map[int]int, swDefault int, swDefaultSet bool) {
	s.Clear()

	s.regions = make([]*Region, len(regions))
	for i, cfg := range regions {
		s.regions[i] = NewRegion(cfg, i)
	}
	s.unknownOpcodes = unknownOpcodes
	s.ccLabels = ccLabels
	s.curves = curves
	for cc, v := range defaultCC {
		if cc >= 0 && cc < NumControllers {
			s.controllers[cc] = v
		}
	}

	s.primeAll(swDefault, swDefaultSet)
}

// RegisterNoteOn dispatches a note-on to every region in load order,
// generating one shared random sample for the event so every region
// sees the same draw from its rand range, then allocates a free voice
// for each region that fires.
func (s *Synth) RegisterNoteOn(channel, note, velocity, timestamp int) {
	rnd := pseudoUniform()
	for _, region := range s.regions {
		if !region.RegisterNoteOn(channel, note, velocity, rnd) {
			continue
		}
		if region.Config.HasOffBy {
			for i := range s.voices {
				s.voices[i].CheckOffGroup(region.Config.OffBy, timestamp)
			}
		}
		s.startVoice(region, func(v *Voice) {
			v.StartWithNote(s.pool, region, channel, note, velocity, timestamp, &s.controllers, pseudoUniform)
		})
	}
}

// RegisterNoteOff dispatches a note-off to every region (evaluating
// release/release_key triggers) and forwards it to every voice so
// matching playing voices can begin their release.
func (s *Synth) RegisterNoteOff(channel, note, velocity, timestamp int) {
	sustainDown := s.controllers[SustainPedalCC] >= 64
	justStarted := make(map[int]bool)
	for _, region := range s.regions {
		if region.RegisterNoteOff(channel, note, velocity, sustainDown) {
			vel := velocity
			if region.Config.VelOverride == VelocityPrevious {
				vel = region.state.lastNoteVelocities[note&0x7f]
			}
			if idx := s.startVoice(region, func(v *Voice) {
				v.StartWithNote(s.pool, region, channel, note, vel, timestamp, &s.controllers, pseudoUniform)
			}); idx >= 0 {
				justStarted[idx] = true
			}
		}
	}
	for i := range s.voices {
		if justStarted[i] {
			continue
		}
		s.voices[i].RegisterNoteOff(channel, note, sustainDown)
	}
}

// RegisterCC updates the controller vector, then dispatches to every
// region (evaluating on_loccN/on_hiccN edge triggers and locc/hicc
// gating) and every voice (controller-tied BlockEnvelopes and release
// conditions). If the sustain pedal transitions from down to up, any
// regions with a release trigger deferred by the held pedal fire now.
func (s *Synth) RegisterCC(channel, cc, value, timestamp int) {
	if cc < 0 || cc >= NumControllers {
		return
	}
	wasDown := s.controllers[SustainPedalCC] >= 64
	s.controllers[cc] = value
	sustainDown := s.controllers[SustainPedalCC] >= 64

	for _, region := range s.regions {
		if region.RegisterCC(channel, cc, value) {
			s.startVoice(region, func(v *Voice) {
				v.StartWithCC(s.pool, region, channel, cc, value, timestamp, &s.controllers, pseudoUniform)
			})
		}
	}
	for i := range s.voices {
		s.voices[i].RegisterCC(cc, value, timestamp, sustainDown)
	}

	if cc == SustainPedalCC && wasDown && !sustainDown {
		for _, region := range s.regions {
			if note, vel, ok := region.ConsumePedalRelease(); ok {
				s.startVoice(region, func(v *Voice) {
					v.StartWithNote(s.pool, region, channel, note, vel, timestamp, &s.controllers, pseudoUniform)
				})
			}
		}
	}
}

// RegisterPitchWheel updates every region's pitch-bend gating flag.
func (s *Synth) RegisterPitchWheel(channel, bend, timestamp int) {
	s.lastBend = bend
	for _, region := range s.regions {
		region.RegisterPitchWheel(channel, bend)
	}
}

// RegisterAftertouch updates every region's aftertouch gating flag.
func (s *Synth) RegisterAftertouch(channel, pressure, timestamp int) {
	s.lastAfter = pressure
	for _, region := range s.regions {
		region.RegisterAftertouch(channel, pressure)
	}
}

// RegisterTempo converts a host-reported seconds-per-quarter-note value
// to BPM and updates every region's BPM gating flag.
func (s *Synth) RegisterTempo(secondsPerQuarter float64) {
	if secondsPerQuarter <= 0 {
		return
	}
	s.bpm = 60 / secondsPerQuarter
	for _, region := range s.regions {
		region.RegisterTempo(secondsPerQuarter)
	}
}

// startVoice finds the first idle voice, runs start on it, and returns
// its index. If no voice is idle, the event is dropped without stealing
// a voice: the drop is logged, not returned as an error, and startVoice
// returns -1.
func (s *Synth) startVoice(region *Region, start func(*Voice)) int {
	for i := range s.voices {
		if s.voices[i].State() == VoiceIdle {
			start(&s.voices[i])
			return i
		}
	}
	log.Printf("sfz: voice pool exhausted, dropping trigger for region %d (%s)", region.Index, region.Config.SampleID)
	return -1
}

// RenderBlock zeros output[2*start : 2*(start+numSamples)] and sums
// every active voice's contribution into it. Mixing is per-sample
// addition with no limiter, matching spec.md §4.5.
func (s *Synth) RenderBlock(output []float32, start, numSamples int) {
	out := output[2*start : 2*(start+numSamples)]
	for i := range out {
		out[i] = 0
	}
	active := 0
	for i := range s.voices {
		if s.voices[i].State() == VoiceIdle {
			continue
		}
		active++
		s.voices[i].RenderBlock(out, numSamples, &s.controllers)
	}
	s.activeVoices = active
}
