package parser

import (
	"strconv"
	"strings"

	"github.com/mhschmieder/sfizz-juce"
)

// cloneRegionConfig deep-copies the map, slice, and pointer fields of
// cfg so that a lower inheritance level (master/group/region) can
// accumulate its own opcodes without mutating the level it was copied
// from — a plain struct assignment shares the map and slice headers.
func cloneRegionConfig(cfg sfz.RegionConfig) sfz.RegionConfig {
	out := cfg

	if cfg.CCConditions != nil {
		out.CCConditions = make(map[int]sfz.Range, len(cfg.CCConditions))
		for k, v := range cfg.CCConditions {
			out.CCConditions[k] = v
		}
	}
	if cfg.OnCC != nil {
		out.OnCC = make(map[int]sfz.Range, len(cfg.OnCC))
		for k, v := range cfg.OnCC {
			out.OnCC[k] = v
		}
	}
	out.VelCurve = append([]sfz.VelCurvePoint(nil), cfg.VelCurve...)
	out.UnknownOpcodes = append([]string(nil), cfg.UnknownOpcodes...)

	out.SwLast = clonePtr(cfg.SwLast)
	out.SwUp = clonePtr(cfg.SwUp)
	out.SwDown = clonePtr(cfg.SwDown)
	out.SwPrevious = clonePtr(cfg.SwPrevious)

	out.AmpCC = cloneCCDepth(cfg.AmpCC)
	out.PanCC = cloneCCDepth(cfg.PanCC)
	out.WidthCC = cloneCCDepth(cfg.WidthCC)
	out.PositionCC = cloneCCDepth(cfg.PositionCC)

	out.EG.Amp = cloneEGDescriptor(cfg.EG.Amp)
	out.EG.Pitch = cloneEGDescriptor(cfg.EG.Pitch)
	out.EG.Filter = cloneEGDescriptor(cfg.EG.Filter)

	return out
}

func clonePtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneCCDepth(p *sfz.CCDepth) *sfz.CCDepth {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneEGDescriptor(d sfz.EGDescriptor) sfz.EGDescriptor {
	d.CCDelay = append([]sfz.CCDepth(nil), d.CCDelay...)
	d.CCAttack = append([]sfz.CCDepth(nil), d.CCAttack...)
	d.CCHold = append([]sfz.CCDepth(nil), d.CCHold...)
	d.CCDecay = append([]sfz.CCDepth(nil), d.CCDecay...)
	d.CCRelease = append([]sfz.CCDepth(nil), d.CCRelease...)
	d.CCSustain = append([]sfz.CCDepth(nil), d.CCSustain...)
	return d
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// ccSuffix strips prefix (and one optional "_") from an indexed opcode
// name like "locc12" or "amp_velcurve_7" and returns the trailing
// CC/point number, with ok=false when what remains is not an integer.
func ccSuffix(name, prefix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	rest := strings.TrimPrefix(name, prefix)
	rest = strings.TrimPrefix(rest, "_")
	return parseInt(rest)
}

func ensureCC(m *map[int]sfz.Range, cc int) {
	if *m == nil {
		*m = make(map[int]sfz.Range)
	}
	r := (*m)[cc]
	if r == (sfz.Range{}) {
		r = sfz.FullRange(0, 127)
	}
	(*m)[cc] = r
}

func setCCLo(m *map[int]sfz.Range, cc, lo int) {
	ensureCC(m, cc)
	r := (*m)[cc]
	r.Lo = lo
	(*m)[cc] = r
}

func setCCHi(m *map[int]sfz.Range, cc, hi int) {
	ensureCC(m, cc)
	r := (*m)[cc]
	r.Hi = hi
	(*m)[cc] = r
}

func ccDepth(c **sfz.CCDepth, cc int) *sfz.CCDepth {
	if *c == nil || (*c).CC != cc {
		*c = &sfz.CCDepth{CC: cc}
	}
	return *c
}

// applyOpcode maps one opcode=value pair onto cfg. unknown, when
// non-nil, accumulates opcodes this parser doesn't recognize so they can
// be surfaced as load-time diagnostics instead of silently dropped; it
// is nil for global/master/group-level application, so unrecognized
// opcodes at those levels are not reported (regions inherit those
// levels by copying their parsed configs, not by re-applying opcodes).
func applyOpcode(cfg *sfz.RegionConfig, name, value string, unknown *[]string) {
	switch {
	case name == "sample":
		cfg.SampleID = value
		return
	case name == "offset":
		if n, ok := parseInt(value); ok {
			cfg.Offset = n
		}
		return
	case name == "offset_random":
		if n, ok := parseInt(value); ok {
			cfg.OffsetRandom = n
		}
		return
	case name == "end":
		if n, ok := parseInt(value); ok {
			cfg.End = n
		}
		return
	case name == "count":
		if n, ok := parseInt(value); ok {
			if n < 0 {
				n = 0
			}
			cfg.PlayCount = n
			cfg.HasPlayCount = true
		}
		return
	case name == "loop_mode" || name == "loopmode":
		cfg.Loop = parseLoopMode(value)
		return
	case name == "loop_start" || name == "loopstart":
		if n, ok := parseInt(value); ok {
			cfg.LoopStart = n
		}
		return
	case name == "loop_end" || name == "loopend":
		if n, ok := parseInt(value); ok {
			cfg.LoopEnd = n
		}
		return
	case name == "delay":
		if f, ok := parseFloat(value); ok {
			cfg.Delay = sfz.ClampF(f, 0, 100)
		}
		return
	case name == "delay_random":
		if f, ok := parseFloat(value); ok {
			cfg.DelayRandom = sfz.ClampF(f, 0, 100)
		}
		return
	case name == "group":
		if n, ok := parseInt(value); ok {
			cfg.Group = n
		}
		return
	case name == "off_by" || name == "offby":
		if n, ok := parseInt(value); ok {
			cfg.OffBy = n
			cfg.HasOffBy = true
		}
		return
	case name == "off_mode":
		if value == "fast" {
			cfg.OffMode = sfz.OffFast
		} else {
			cfg.OffMode = sfz.OffNormal
		}
		return
	case name == "lokey":
		if n, ok := parseNote(value); ok {
			cfg.KeyRange.Lo = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "hikey":
		if n, ok := parseNote(value); ok {
			cfg.KeyRange.Hi = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "key":
		if n, ok := parseNote(value); ok {
			n = sfz.Clamp(n, 0, 127)
			cfg.KeyRange = sfz.Range{Lo: n, Hi: n}
			cfg.PitchKeycenter = n
			cfg.AmpKeycenter = n
		}
		return
	case name == "lovel":
		if n, ok := parseInt(value); ok {
			cfg.VelRange.Lo = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "hivel":
		if n, ok := parseInt(value); ok {
			cfg.VelRange.Hi = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "lochan":
		if n, ok := parseInt(value); ok {
			cfg.ChannelRange.Lo = sfz.Clamp(n, 1, 16)
		}
		return
	case name == "hichan":
		if n, ok := parseInt(value); ok {
			cfg.ChannelRange.Hi = sfz.Clamp(n, 1, 16)
		}
		return
	case name == "lobend":
		if n, ok := parseInt(value); ok {
			cfg.BendRange.Lo = sfz.Clamp(n, -8192, 8192)
		}
		return
	case name == "hibend":
		if n, ok := parseInt(value); ok {
			cfg.BendRange.Hi = sfz.Clamp(n, -8192, 8192)
		}
		return
	case name == "lochanaft":
		if n, ok := parseInt(value); ok {
			cfg.AftertouchRange.Lo = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "hichanaft":
		if n, ok := parseInt(value); ok {
			cfg.AftertouchRange.Hi = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "lobpm":
		if f, ok := parseFloat(value); ok {
			cfg.BPMRange.Lo = sfz.ClampF(f, 0, 500)
		}
		return
	case name == "hibpm":
		if f, ok := parseFloat(value); ok {
			cfg.BPMRange.Hi = sfz.ClampF(f, 0, 500)
		}
		return
	case name == "lorand":
		if f, ok := parseFloat(value); ok {
			cfg.RandRange.Lo = sfz.ClampF(f, 0, 1)
		}
		return
	case name == "hirand":
		if f, ok := parseFloat(value); ok {
			cfg.RandRange.Hi = sfz.ClampF(f, 0, 1)
		}
		return
	case name == "sw_lokey":
		if n, ok := parseNote(value); ok {
			cfg.KeyswitchRange.Lo = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "sw_hikey":
		if n, ok := parseNote(value); ok {
			cfg.KeyswitchRange.Hi = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "sw_last":
		if n, ok := parseNote(value); ok {
			n = sfz.Clamp(n, 0, 127)
			cfg.SwLast = &n
		}
		return
	case name == "sw_up":
		if n, ok := parseNote(value); ok {
			n = sfz.Clamp(n, 0, 127)
			cfg.SwUp = &n
		}
		return
	case name == "sw_down":
		if n, ok := parseNote(value); ok {
			n = sfz.Clamp(n, 0, 127)
			cfg.SwDown = &n
		}
		return
	case name == "sw_previous":
		if n, ok := parseNote(value); ok {
			n = sfz.Clamp(n, 0, 127)
			cfg.SwPrevious = &n
		}
		return
	case name == "sw_vel":
		if value == "previous" {
			cfg.VelOverride = sfz.VelocityPrevious
		} else {
			cfg.VelOverride = sfz.VelocityCurrent
		}
		return
	case name == "seq_length":
		if n, ok := parseInt(value); ok {
			cfg.SeqLength = sfz.Clamp(n, 1, 100)
		}
		return
	case name == "seq_position":
		if n, ok := parseInt(value); ok {
			cfg.SeqPosition = sfz.Clamp(n, 1, 100)
		}
		return
	case name == "trigger":
		cfg.Trigger = parseTrigger(value)
		return
	case name == "volume":
		if f, ok := parseFloat(value); ok {
			cfg.VolumeDB = sfz.ClampF(f, -144, 6)
		}
		return
	case name == "amplitude":
		if f, ok := parseFloat(value); ok {
			cfg.Amplitude = sfz.ClampF(f, 0, 100) / 100
		}
		return
	case name == "pan":
		if f, ok := parseFloat(value); ok {
			cfg.Pan = sfz.ClampF(f, -100, 100)
		}
		return
	case name == "width":
		if f, ok := parseFloat(value); ok {
			cfg.Width = sfz.ClampF(f, -100, 100)
		}
		return
	case name == "position":
		if f, ok := parseFloat(value); ok {
			cfg.Position = sfz.ClampF(f, -100, 100)
		}
		return
	case name == "amp_keycenter":
		if n, ok := parseNote(value); ok {
			cfg.AmpKeycenter = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "amp_keytrack":
		if f, ok := parseFloat(value); ok {
			cfg.AmpKeytrack = sfz.ClampF(f, -96, 12)
		}
		return
	case name == "amp_veltrack":
		if f, ok := parseFloat(value); ok {
			cfg.AmpVeltrack = sfz.ClampF(f, -100, 100)
		}
		return
	case name == "amp_random":
		if f, ok := parseFloat(value); ok {
			cfg.AmpRandom = sfz.ClampF(f, 0, 24)
		}
		return
	case name == "xfin_lokey":
		if n, ok := parseNote(value); ok {
			cfg.XFKeyIn.Lo = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "xfin_hikey":
		if n, ok := parseNote(value); ok {
			cfg.XFKeyIn.Hi = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "xfout_lokey":
		if n, ok := parseNote(value); ok {
			cfg.XFKeyOut.Lo = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "xfout_hikey":
		if n, ok := parseNote(value); ok {
			cfg.XFKeyOut.Hi = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "xfin_lovel":
		if n, ok := parseInt(value); ok {
			cfg.XFVelIn.Lo = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "xfin_hivel":
		if n, ok := parseInt(value); ok {
			cfg.XFVelIn.Hi = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "xfout_lovel":
		if n, ok := parseInt(value); ok {
			cfg.XFVelOut.Lo = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "xfout_hivel":
		if n, ok := parseInt(value); ok {
			cfg.XFVelOut.Hi = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "xf_keycurve":
		cfg.XFKeyCurve = parseCurve(value)
		return
	case name == "xf_velcurve":
		cfg.XFVelCurve = parseCurve(value)
		return
	case name == "pitch_keycenter":
		if n, ok := parseNote(value); ok {
			cfg.PitchKeycenter = sfz.Clamp(n, 0, 127)
		}
		return
	case name == "pitch_keytrack":
		if f, ok := parseFloat(value); ok {
			cfg.PitchKeytrack = sfz.ClampF(f, -1200, 1200)
		}
		return
	case name == "pitch_random":
		if f, ok := parseFloat(value); ok {
			cfg.PitchRandom = sfz.ClampF(f, 0, 9600)
		}
		return
	case name == "pitch_veltrack":
		if f, ok := parseFloat(value); ok {
			cfg.PitchVeltrack = sfz.ClampF(f, -9600, 9600)
		}
		return
	case name == "transpose":
		if n, ok := parseInt(value); ok {
			cfg.Transpose = sfz.Clamp(n, -127, 127)
		}
		return
	case name == "tune":
		if f, ok := parseFloat(value); ok {
			cfg.Tune = sfz.ClampF(f, -100, 100)
		}
		return
	}

	if cc, ok := ccSuffix(name, "locc"); ok {
		setCCLo(&cfg.CCConditions, cc, sfz.Clamp(atoiOr(value, 0), 0, 127))
		return
	}
	if cc, ok := ccSuffix(name, "hicc"); ok {
		setCCHi(&cfg.CCConditions, cc, sfz.Clamp(atoiOr(value, 127), 0, 127))
		return
	}
	if cc, ok := ccSuffix(name, "on_locc"); ok {
		setCCLo(&cfg.OnCC, cc, sfz.Clamp(atoiOr(value, 0), 0, 127))
		return
	}
	if cc, ok := ccSuffix(name, "on_hicc"); ok {
		setCCHi(&cfg.OnCC, cc, sfz.Clamp(atoiOr(value, 127), 0, 127))
		return
	}
	if cc, ok := ccSuffix(name, "amplitude_oncc"); ok {
		if f, ok := parseFloat(value); ok {
			ccDepth(&cfg.AmpCC, cc).Depth = f
		}
		return
	}
	if cc, ok := ccSuffix(name, "pan_oncc"); ok {
		if f, ok := parseFloat(value); ok {
			ccDepth(&cfg.PanCC, cc).Depth = f
		}
		return
	}
	if cc, ok := ccSuffix(name, "width_oncc"); ok {
		if f, ok := parseFloat(value); ok {
			ccDepth(&cfg.WidthCC, cc).Depth = f
		}
		return
	}
	if cc, ok := ccSuffix(name, "position_oncc"); ok {
		if f, ok := parseFloat(value); ok {
			ccDepth(&cfg.PositionCC, cc).Depth = f
		}
		return
	}
	if point, ok := ccSuffix(name, "amp_velcurve"); ok {
		if f, ok := parseFloat(value); ok {
			cfg.VelCurve = insertVelCurvePoint(cfg.VelCurve, point, f)
		}
		return
	}
	if stage, ok := matchEGStage(name, "ampeg_"); ok {
		applyEGOpcode(&cfg.EG.Amp, stage, value)
		return
	}
	if stage, ok := matchEGStage(name, "pitcheg_"); ok {
		applyEGOpcode(&cfg.EG.Pitch, stage, value)
		return
	}
	if stage, ok := matchEGStage(name, "fileg_"); ok {
		applyEGOpcode(&cfg.EG.Filter, stage, value)
		return
	}

	if unknown != nil {
		*unknown = append(*unknown, name+"="+value)
	}
}

func atoiOr(s string, fallback int) int {
	n, ok := parseInt(s)
	if !ok {
		return fallback
	}
	return n
}

func insertVelCurvePoint(pts []sfz.VelCurvePoint, vel int, gain float64) []sfz.VelCurvePoint {
	for i := range pts {
		if pts[i].Velocity == vel {
			pts[i].Gain = gain
			return pts
		}
	}
	pts = append(pts, sfz.VelCurvePoint{Velocity: vel, Gain: gain})
	for i := len(pts) - 1; i > 0 && pts[i].Velocity < pts[i-1].Velocity; i-- {
		pts[i], pts[i-1] = pts[i-1], pts[i]
	}
	return pts
}

func parseNote(value string) (int, bool) {
	if n, ok := parseInt(value); ok {
		return n, true
	}
	return noteNameToNumber(value)
}

// noteNameToNumber parses a note name like "c4" or "f#3" per the SFZ
// convention where c4 = 60.
func noteNameToNumber(value string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(value))
	if len(s) < 2 {
		return 0, false
	}
	steps := map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}
	step, ok := steps[s[0]]
	if !ok {
		return 0, false
	}
	i := 1
	if i < len(s) && (s[i] == '#' || s[i] == 's') {
		step++
		i++
	} else if i < len(s) && s[i] == 'b' {
		step--
		i++
	}
	octave, ok := parseInt(s[i:])
	if !ok {
		return 0, false
	}
	return (octave+1)*12 + step, true
}

func parseLoopMode(value string) sfz.LoopMode {
	switch value {
	case "one_shot":
		return sfz.LoopOneShot
	case "loop_continuous":
		return sfz.LoopContinuous
	case "loop_sustain":
		return sfz.LoopSustain
	default:
		return sfz.LoopNone
	}
}

func parseTrigger(value string) sfz.TriggerMode {
	switch value {
	case "release":
		return sfz.TriggerRelease
	case "release_key":
		return sfz.TriggerReleaseKey
	case "first":
		return sfz.TriggerFirst
	case "legato":
		return sfz.TriggerLegato
	default:
		return sfz.TriggerAttack
	}
}

func parseCurve(value string) sfz.CrossfadeCurve {
	if value == "gain" {
		return sfz.CurveGain
	}
	return sfz.CurvePower
}

// matchEGStage splits an envelope opcode like "ampeg_attack" or
// "ampeg_vel2attack" or "ampeg_decay_oncc3" into its stage/modulation
// kind, stripping prefix first.
func matchEGStage(name, prefix string) (string, bool) {
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return strings.TrimPrefix(name, prefix), true
}

func applyEGOpcode(eg *sfz.EGDescriptor, stage, value string) {
	if cc, rest, ok := splitOnCC(stage); ok {
		f, ok := parseFloat(value)
		if !ok {
			return
		}
		depth := sfz.CCDepth{CC: cc, Depth: f}
		switch rest {
		case "delay":
			eg.CCDelay = append(eg.CCDelay, depth)
		case "attack":
			eg.CCAttack = append(eg.CCAttack, depth)
		case "hold":
			eg.CCHold = append(eg.CCHold, depth)
		case "decay":
			eg.CCDecay = append(eg.CCDecay, depth)
		case "release":
			eg.CCRelease = append(eg.CCRelease, depth)
		case "sustain":
			eg.CCSustain = append(eg.CCSustain, depth)
		}
		return
	}

	f, ok := parseFloat(value)
	if !ok {
		return
	}
	switch stage {
	case "delay":
		eg.Delay = sfz.ClampF(f, 0, 100)
	case "attack":
		eg.Attack = sfz.ClampF(f, 0, 100)
	case "hold":
		eg.Hold = sfz.ClampF(f, 0, 100)
	case "decay":
		eg.Decay = sfz.ClampF(f, 0, 100)
	case "release":
		eg.Release = sfz.ClampF(f, 0, 100)
	case "sustain":
		eg.Sustain = sfz.ClampF(f, 0, 100)
	case "start":
		eg.Start = sfz.ClampF(f, 0, 100)
	case "depth":
		// ampeg_depth is accepted but has no effect in this engine.
		eg.Depth = 0
	case "vel2delay":
		eg.Vel2Delay = f
	case "vel2attack":
		eg.Vel2Attack = f
	case "vel2hold":
		eg.Vel2Hold = f
	case "vel2decay":
		eg.Vel2Decay = f
	case "vel2release":
		eg.Vel2Release = f
	case "vel2sustain":
		eg.Vel2Sustain = f
	case "vel2depth":
		// ampeg_vel2depth is accepted but has no effect in this engine.
		eg.Vel2Depth = 0
	}
}

// splitOnCC recognizes the "<stage>_onccN" suffix form used by
// ampeg_decay_oncc3 and friends.
func splitOnCC(stage string) (cc int, rest string, ok bool) {
	idx := strings.Index(stage, "_oncc")
	if idx < 0 {
		return 0, "", false
	}
	cc, ok = parseInt(stage[idx+len("_oncc"):])
	if !ok {
		return 0, "", false
	}
	return cc, stage[:idx], true
}
