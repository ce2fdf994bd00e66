// Package voice renders the 37 synth types a SynthDef can select: plain
// oscillators, drum models, a comb/physical-model family and a handful of
// noise and FM variants. One Pool holds every sounding Voice for a single
// SynthDef, in the fixed-size voice-pool style the rest of this codebase
// uses for its DSP engines.
package voice

import (
	"math"
	"math/rand"

	"github.com/maetyu-d/jamal/internal/dsl"
	"github.com/maetyu-d/jamal/internal/lfo"
	"github.com/maetyu-d/jamal/internal/pitch"
)

// maxVoicesPerSynth bounds each synth's own voice pool. The reference
// engine shares one 32-voice pool across every synth with no stealing; this
// port gives each SynthDef its own bounded pool instead (so per-type comb
// and drum state never cross synth boundaries) but keeps the same capacity
// and the same no-stealing allocation policy (see DESIGN.md).
const maxVoicesPerSynth = 32

const twoPi = math.Pi * 2

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

// combFilter is a Karplus-Strong style excited delay line, used by Comb and
// the pm_* physical-model types.
type combFilter struct {
	buf      []float64
	pos      int
	feedback float64
	damp     float64
	lpState  float64
}

func newCombFilter(lengthSamples int) *combFilter {
	if lengthSamples < 2 {
		lengthSamples = 2
	}
	return &combFilter{buf: make([]float64, lengthSamples)}
}

func (c *combFilter) excite(amount float64) {
	for i := range c.buf {
		c.buf[i] += (rand.Float64()*2 - 1) * amount
	}
}

func (c *combFilter) step() float64 {
	out := c.buf[c.pos]
	c.lpState += (1 - c.damp) * (out - c.lpState)
	c.buf[c.pos] = c.lpState * c.feedback
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

type voiceSlot struct {
	active bool
	id     int
	age    int

	typ dsl.SynthType

	freq     float64
	baseFreq float64
	phase    float64
	phase2   float64 // second oscillator phase (supersaw / detune pair)
	phase3   float64

	slideFrom   float64 // frequency at slide start
	slideTarget float64 // frequency the slide is gliding to
	slideFrames int
	slideTotal  int

	velocity float64
	pan      float64

	env      float64
	envState envState

	// drum-specific pitch envelope state (kick/tom/clap families)
	pitchEnvStart float64
	pitchEnvEnd   float64
	pitchEnvRate  float64
	pitchEnvVal   float64

	noiseLFSR uint32

	comb *combFilter

	filterState float64
}

// Pool renders all concurrently-sounding voices for one SynthDef.
type Pool struct {
	sampleRate float64
	def        *dsl.SynthDef
	voices     [maxVoicesPerSynth]voiceSlot
	nextID     int

	pitchLFO  lfo.LFO
	ampLFO    lfo.LFO
	cutoffLFO lfo.LFO
	panLFO    lfo.LFO
}

// NewPool builds a voice pool bound to def. def is read each RenderFrame so
// `set` commands issued while the program is live take effect immediately.
func NewPool(sampleRate int, def *dsl.SynthDef) *Pool {
	p := &Pool{sampleRate: float64(sampleRate), def: def}
	for i := range p.voices {
		p.voices[i].noiseLFSR = uint32(0xACE1 + i*97)
	}
	for _, m := range def.Mods {
		p.applyModRouting(m)
	}
	return p
}

func (p *Pool) applyModRouting(m dsl.ModDef) {
	var l *lfo.LFO
	switch m.Dest {
	case dsl.DestPitch:
		l = &p.pitchLFO
	case dsl.DestAmp:
		l = &p.ampLFO
	case dsl.DestCutoff:
		l = &p.cutoffLFO
	case dsl.DestPan:
		l = &p.panLFO
	default:
		return
	}
	wave := lfo.WaveTriangle
	if m.Source == dsl.SourceSampleHold {
		wave = lfo.WaveRandom
	}
	l.Set(m.Depth, m.Rate, wave)
}

// NoVoice is returned by NoteOn when the pool is fully allocated; the
// caller's note is silently dropped, matching the reference's no-stealing
// policy.
const NoVoice = -1

// NoteOn starts a voice at the given MIDI pitch. slideMs<=0 disables the
// portamento glide from the previously active voice's pitch. Returns
// NoVoice if every voice in the pool is already active.
func (p *Pool) NoteOn(midi float64, accent bool, slideMs float64) int {
	slot := p.freeVoice()
	if slot < 0 {
		return NoVoice
	}
	id := p.nextID
	p.nextID++
	v := &p.voices[slot]
	v.active = true
	v.id = id
	v.age = 0
	v.typ = p.def.Type
	v.velocity = p.def.Amp
	if accent {
		v.velocity *= 1.4
	}
	v.pan = 0
	v.env = 0
	v.envState = envAttack
	v.phase, v.phase2, v.phase3 = 0, rand.Float64(), rand.Float64()
	v.filterState = 0

	targetFreq := pitch.MIDIToFreq(midi)
	if slideMs > 0 && v.baseFreq > 0 {
		v.slideFrom = v.baseFreq
		v.slideTarget = targetFreq
		v.slideTotal = int(slideMs / 1000 * p.sampleRate)
		v.slideFrames = v.slideTotal
	} else {
		v.baseFreq = targetFreq
		v.slideFrames = 0
		v.slideTotal = 0
	}
	v.freq = v.baseFreq

	setupDrumVoice(v, targetFreq, p.sampleRate)
	return id
}

func (p *Pool) NoteOff(id int) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.active && v.id == id && v.envState != envRelease && isSustaining(v.typ) {
			v.envState = envRelease
		}
	}
}

// isSustaining reports whether a synth type has a held sustain stage and so
// needs an explicit NoteOff to enter release; the percussive types always
// run their own fixed decay and ignore NoteOff.
func isSustaining(t dsl.SynthType) bool {
	switch t {
	case dsl.Sine, dsl.Saw, dsl.Supersaw, dsl.Square, dsl.Tri, dsl.Noise,
		dsl.Pulse, dsl.FM, dsl.FM2, dsl.Ring, dsl.Acid, dsl.Comb,
		dsl.PMString, dsl.PMBell, dsl.PMPipe:
		return true
	}
	return false
}

func (p *Pool) ActiveCount() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].active {
			n++
		}
	}
	return n
}

// freeVoice scans for the first inactive slot. No stealing: if every slot
// is active, the note is dropped (see NoteOn).
func (p *Pool) freeVoice() int {
	for i := range p.voices {
		if !p.voices[i].active {
			return i
		}
	}
	return -1
}

// RenderFrame sums every active voice for this synth into one stereo frame.
func (p *Pool) RenderFrame() (float32, float32) {
	pitchMod := p.pitchLFO.Sample(p.sampleRate)
	ampMod := p.ampLFO.Sample(p.sampleRate)
	cutoffMod := p.cutoffLFO.Sample(p.sampleRate)
	panMod := p.panLFO.Sample(p.sampleRate)

	freqMul := 1.0
	if pitchMod != 0 {
		freqMul = math.Pow(2, pitchMod/12)
	}
	cutoff := p.def.Cutoff + cutoffMod
	if cutoff < 20 {
		cutoff = 20
	}

	var l, r float64
	for i := range p.voices {
		v := &p.voices[i]
		if !v.active {
			continue
		}
		v.age++
		p.advanceSlide(v)
		v.freq = v.baseFreq * freqMul
		env := p.advanceEnv(v)
		if !v.active {
			continue
		}
		sample := p.renderOscillator(v)
		sample = applyDrive(sample, p.def.Drive)
		sample = p.applyFilter(v, sample, cutoff)
		sig := sample * env * v.velocity * (1 + ampMod)
		pan := clamp(v.pan+panMod, -1, 1)
		angle := (pan + 1) / 2 * (math.Pi / 2)
		l += sig * math.Cos(angle)
		r += sig * math.Sin(angle)
	}
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

func (p *Pool) advanceSlide(v *voiceSlot) {
	if v.slideFrames <= 0 {
		return
	}
	t := 1 - float64(v.slideFrames)/float64(v.slideTotal)
	v.baseFreq = v.slideFrom + (v.slideTarget-v.slideFrom)*t
	v.slideFrames--
	if v.slideFrames == 0 {
		v.baseFreq = v.slideTarget
	}
}

func (p *Pool) advanceEnv(v *voiceSlot) float64 {
	d := p.def
	switch v.envState {
	case envAttack:
		step := 1.0 / maxF(d.Atk*p.sampleRate, 1)
		v.env += step
		if v.env >= 1 {
			v.env = 1
			v.envState = envDecay
		}
	case envDecay:
		step := (1 - d.Sus) / maxF(d.Dec*p.sampleRate, 1)
		v.env -= step
		if v.env <= d.Sus {
			v.env = d.Sus
			v.envState = envSustain
			if !isSustaining(v.typ) {
				v.envState = envRelease
			}
		}
	case envSustain:
		// held until NoteOff
	case envRelease:
		step := d.Sus / maxF(d.Rel*p.sampleRate, 1)
		if v.env < step {
			step = v.env
		}
		v.env -= step
		if v.env <= 0.0005 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
	}
	return v.env
}

func maxF(v, min float64) float64 {
	if v < min {
		return min
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyDrive is a tanh saturation stage normalized so drive=1.0 is a no-op.
func applyDrive(x, drive float64) float64 {
	if drive <= 1.0001 && drive >= 0.9999 {
		return x
	}
	if drive <= 0 {
		drive = 1
	}
	return math.Tanh(x*drive) / math.Tanh(drive)
}

func (p *Pool) applyFilter(v *voiceSlot, x float64, cutoff float64) float64 {
	switch v.typ {
	case dsl.Comb, dsl.PMString, dsl.PMBell, dsl.PMPipe, dsl.PMKick, dsl.PMSnare, dsl.PMHat, dsl.PMClap, dsl.PMTom:
		return x
	}
	rc := 1.0 / (twoPi * cutoff)
	dt := 1.0 / p.sampleRate
	alpha := dt / (rc + dt)
	v.filterState += alpha * (x - v.filterState)
	res := p.def.Res
	return v.filterState + res*(x-v.filterState)
}
