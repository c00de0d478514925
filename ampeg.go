package sfz

import "math"

// EGStage names each stage of the delay/attack/hold/decay/sustain/release
// state machine.
type EGStage int

const (
	EGDelay EGStage = iota
	EGStart
	EGAttack
	EGHold
	EGDecay
	EGSustain
	EGRelease
	EGIdle
)

// CCDepth pairs a controller number with the depth (in seconds, added to
// a stage's base duration) that controller modulates.
type CCDepth struct {
	CC    int
	Depth float64
}

// EGDescriptor holds the opcode-configured shape of one envelope
// generator (amp, pitch, or filter — only amp is driven to completion by
// this engine; the others are parsed and clamped but Non-goals per
// spec.md exclude filter/LFO processing).
type EGDescriptor struct {
	Delay, Attack, Hold, Decay, Release float64 // seconds
	Sustain, Start                      float64 // percent, 0..100
	Depth                               float64 // ignored for amp-EG

	Vel2Delay, Vel2Attack, Vel2Hold, Vel2Decay, Vel2Release float64
	Vel2Sustain, Vel2Depth                                  float64

	CCDelay, CCAttack, CCHold, CCDecay, CCRelease, CCSustain []CCDepth
}

const fastReleaseSeconds = 0.01

// EnvelopeGenerator is a per-sample delay/attack/hold/decay/sustain/
// release state machine producing a multiplicative gain in [0, 1+].
type EnvelopeGenerator struct {
	stage          EGStage
	sampleRate     float64
	level          float64
	target         float64
	stepPerSamp    float64
	counter        int64 // samples remaining in the current linear/delay stage
	sustainLvl     float64
	decayCoeff     float64
	releaseCoef    float64
	fastRelease    bool
	releaseAt      int // samples remaining before a pending release takes effect
	releasePending bool

	attackSamp, holdSamp, decaySamp, releaseSamp int64
	startLevel                                   float64
}

// stageSamples converts a base seconds value plus velocity and
// controller sensitivity into a sample count, clamped to [0,100] seconds
// per spec.md §6.
func stageSamples(sr, base, vel2X float64, ccs []CCDepth, controllers *[NumControllers]int, velocity int) int64 {
	secs := base + vel2X*(float64(velocity)/127)
	for _, d := range ccs {
		secs += (float64(controllers[d.CC]) / 127) * d.Depth
	}
	secs = ClampF(secs, 0, 100)
	return int64(secs * sr)
}

// Prepare computes effective stage durations from the descriptor, the
// current controller vector, and the triggering velocity, then enters
// the delay stage, which outputs sampleDelay (the block-local offset at
// which the note actually starts) plus the configured delay in silent
// samples; when both are zero the generator begins at the start stage.
func (g *EnvelopeGenerator) Prepare(d EGDescriptor, controllers *[NumControllers]int, velocity int, sampleRate float64, sampleDelay int) {
	g.sampleRate = sampleRate
	g.sustainLvl = ClampF(d.Sustain+d.Vel2Sustain*(float64(velocity)/127), 0, 100) / 100
	startLevel := ClampF(d.Start, 0, 100) / 100

	delaySamp := stageSamples(sampleRate, d.Delay, d.Vel2Delay, d.CCDelay, controllers, velocity)
	g.counter = int64(sampleDelay) + delaySamp
	g.level = 0
	g.target = startLevel
	g.stage = EGDelay
	if g.counter <= 0 {
		g.stage = EGStart
	}
	g.fastRelease = false
	g.releaseAt = -1
	g.releasePending = false

	attackSamp := stageSamples(sampleRate, d.Attack, d.Vel2Attack, d.CCAttack, controllers, velocity)
	holdSamp := stageSamples(sampleRate, d.Hold, d.Vel2Hold, d.CCHold, controllers, velocity)
	decaySamp := stageSamples(sampleRate, d.Decay, d.Vel2Decay, d.CCDecay, controllers, velocity)
	releaseSamp := stageSamples(sampleRate, d.Release, d.Vel2Release, d.CCRelease, controllers, velocity)

	g.attackSamp = attackSamp
	g.holdSamp = holdSamp
	g.decaySamp = decaySamp
	g.releaseSamp = releaseSamp
	g.startLevel = startLevel
}

// NextSample advances the envelope by one sample and returns the current
// multiplicative gain.
func (g *EnvelopeGenerator) NextSample() float64 {
	if g.releasePending {
		if g.releaseAt <= 0 {
			g.releasePending = false
			g.enterRelease()
		} else {
			g.releaseAt--
		}
	}
	out := g.level
	switch g.stage {
	case EGDelay:
		out = 0
		g.counter--
		if g.counter <= 0 {
			g.stage = EGStart
		}
	case EGStart:
		g.level = g.startLevel
		out = g.level
		g.counter = g.attackSamp
		if g.counter <= 0 {
			g.stage = EGHold
			g.level = 1
		} else {
			g.stage = EGAttack
			g.stepPerSamp = (1 - g.level) / float64(g.counter)
		}
	case EGAttack:
		g.level += g.stepPerSamp
		out = g.level
		g.counter--
		if g.counter <= 0 {
			g.level = 1
			g.stage = EGHold
			g.counter = g.holdSamp
		}
	case EGHold:
		out = g.level
		g.counter--
		if g.counter <= 0 {
			g.stage = EGDecay
			g.counter = g.decaySamp
			g.decayCoeff = expCoeff(g.decaySamp)
		}
	case EGDecay:
		g.level = g.sustainLvl + (g.level-g.sustainLvl)*g.decayCoeff
		out = g.level
		g.counter--
		if g.counter <= 0 {
			g.level = g.sustainLvl
			g.stage = EGSustain
		}
	case EGSustain:
		g.level = g.sustainLvl
		out = g.level
	case EGRelease:
		g.level *= g.releaseCoef
		out = g.level
		if g.level < 1e-4 {
			g.level = 0
			g.stage = EGIdle
		}
	case EGIdle:
		out = 0
	}
	return out
}

// expCoeff picks a per-sample multiplicative coefficient so that an
// exponential approach to its asymptote covers roughly -60dB within the
// given number of samples (a fixed time-constant approximation; it never
// exactly reaches the asymptote, matching real envelope behavior).
func expCoeff(samples int64) float64 {
	if samples <= 0 {
		return 0
	}
	return math.Exp(-6.9 / float64(samples))
}

// Release arms a transition into the release stage timestamp samples
// from now, mirroring how Prepare's sampleDelay offsets the start of the
// attack: whatever stage the generator is already in (attack, hold,
// decay, sustain) keeps running for timestamp more calls to NextSample,
// then the release coefficient takes over. A voice cut off the instant
// it starts (timestamp 0) releases from its very next sample.
func (g *EnvelopeGenerator) Release(timestamp int, fastRelease bool) {
	g.releaseAt = timestamp
	g.fastRelease = fastRelease
	g.releasePending = true
}

// enterRelease performs the actual delay/attack/.../sustain -> release
// stage switch once a pending Release's offset has elapsed.
func (g *EnvelopeGenerator) enterRelease() {
	releaseSamp := g.releaseSamp
	if g.fastRelease {
		releaseSamp = int64(fastReleaseSeconds * g.sampleRate)
	}
	g.stage = EGRelease
	g.releaseCoef = expCoeff(releaseSamp)
}

// IsSmoothing reports whether the envelope is still meaningfully
// changing: true unless it has fully reached EGIdle.
func (g *EnvelopeGenerator) IsSmoothing() bool {
	return g.stage != EGIdle
}

// Stage exposes the current stage, mainly for tests and diagnostics.
func (g *EnvelopeGenerator) Stage() EGStage { return g.stage }
