// Package track implements the per-track step clock and the musical
// transforms (reverse, palindrome, chunk, every-N, density, ornaments,
// stutter, sequence cursoring) that turn a Pattern or Sequence reference
// into scheduled note-on/note-off calls against a voice pool.
package track

import (
	"github.com/maetyu-d/jamal/internal/dsl"
)

// VoiceTarget is how a Runtime reaches the voice pool for its synth. The
// Engine implements this by routing to the named synth's voice.Pool.
type VoiceTarget interface {
	NoteOn(synth string, midi float64, accent bool, slideMs float64) int
	NoteOff(synth string, voiceID int)
}

type pendingOff struct {
	remaining int
	voiceID   int
}

type pendingStutter struct {
	remaining     int
	samplesPer    int
	samplesUntil  int
	midi          float64
}

// Runtime is one `play`/`playseq` instruction's live step clock.
type Runtime struct {
	program *dsl.Program
	def     *dsl.TrackDef
	synth   string

	samplesPerStep   int
	samplesUntilStep int
	stepIndex        int

	seqIndex       int
	seqRepeatDone  int
	seqPos         int
	isTempoLeader  bool

	rng uint32

	offs      []pendingOff
	stutters  []pendingStutter

	voices VoiceTarget
}

// xorshift32 is the PRNG used for density/accent/ornament draws and is
// seeded per-track from a golden-ratio-stepped constant (SPEC_FULL.md §9)
// so repeated builds of the same program are reproducible.
func (r *Runtime) nextRand() float64 {
	x := r.rng
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.rng = x
	return float64(x) / float64(^uint32(0))
}

// New builds a Runtime for track index idx (used to vary the PRNG seed),
// resolving its pattern/sequence reference against prog.
func New(prog *dsl.Program, def *dsl.TrackDef, idx int, voices VoiceTarget) *Runtime {
	r := &Runtime{
		program: prog,
		def:     def,
		synth:   def.Synth,
		rng:     0x9E3779B9 + uint32(idx)*2654435761,
		voices:  voices,
	}
	r.samplesPerStep = 1
	r.stepIndex = r.initialStepIndex()
	return r
}

func (r *Runtime) initialStepIndex() int {
	if r.def.OffsetBars <= 0 {
		return 0
	}
	num, den := r.program.TimeSigNum, r.program.TimeSigDen
	if den <= 0 {
		den = 4
	}
	barSteps := num * (16 / den)
	if barSteps <= 0 {
		return 0
	}
	idx := r.def.OffsetBars * barSteps
	cycle := r.cycleSteps()
	if cycle > 0 {
		idx %= cycle
	}
	return idx
}

// currentPattern resolves the pattern this track should read from right now.
func (r *Runtime) currentPattern() *dsl.PatternDef {
	if !r.def.IsSequence {
		idx := r.program.FindPattern(r.def.Pattern)
		if idx < 0 {
			return nil
		}
		return &r.program.Patterns[idx]
	}
	seq := r.program.FindSequence(r.def.Sequence)
	if seq < 0 {
		return nil
	}
	sd := &r.program.Sequences[seq]
	if len(sd.Steps) == 0 {
		return nil
	}
	step := sd.Steps[r.seqPos%len(sd.Steps)]
	pIdx := r.program.FindPattern(step.Pattern)
	if pIdx < 0 {
		return nil
	}
	return &r.program.Patterns[pIdx]
}

// inOnlyWindow reports whether the current sequence position falls inside
// the track's `only A-B` window (1-based, inclusive). Non-sequence tracks
// are always in-window.
func (r *Runtime) inOnlyWindow() bool {
	if !r.def.IsSequence {
		return true
	}
	pos := r.seqPos + 1
	if r.def.SeqStart > 0 && pos < r.def.SeqStart {
		return false
	}
	if r.def.SeqEnd >= 0 && pos > r.def.SeqEnd {
		return false
	}
	return true
}

func (r *Runtime) cycleSteps() int {
	p := r.currentPattern()
	if p == nil || p.Length == 0 {
		return 1
	}
	l := p.Length
	if r.def.Palindrome && l > 1 {
		l *= 2
	}
	iter := r.def.Iter
	if iter < 1 {
		iter = 1
	}
	return l * iter
}

// SetSamplesPerStep is pushed by the engine whenever the tempo/section
// recompute runs (SPEC_FULL.md §4.7).
func (r *Runtime) SetSamplesPerStep(base int) {
	rate := r.def.Rate * r.def.Hurry * float64(maxInt(r.def.Fast, 1)) / float64(maxInt(r.def.Slow, 1))
	if rate < 0.001 {
		rate = 0.001
	}
	v := int(float64(base) / rate)
	if v < 1 {
		v = 1
	}
	r.samplesPerStep = v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Advance steps the track clock by one audio sample, firing note-offs,
// stutter retriggers, and (at the step boundary) a schedule pass.
func (r *Runtime) Advance() {
	r.advanceOffs()
	r.advanceStutters()
	r.samplesUntilStep--
	if r.samplesUntilStep > 0 {
		return
	}
	r.samplesUntilStep = r.samplesPerStep
	r.scheduleStep()
}

func (r *Runtime) advanceOffs() {
	j := 0
	for i := range r.offs {
		o := &r.offs[i]
		o.remaining--
		if o.remaining <= 0 {
			r.voices.NoteOff(r.synth, o.voiceID)
			continue
		}
		r.offs[j] = *o
		j++
	}
	r.offs = r.offs[:j]
}

func (r *Runtime) advanceStutters() {
	j := 0
	for i := range r.stutters {
		s := &r.stutters[i]
		s.samplesUntil--
		if s.samplesUntil <= 0 {
			id := r.voices.NoteOn(r.synth, s.midi, false, -1)
			if id >= 0 {
				r.offs = append(r.offs, pendingOff{remaining: int(0.8 * float64(s.samplesPer)), voiceID: id})
			}
			s.remaining--
			s.samplesUntil = s.samplesPer
		}
		if s.remaining > 0 {
			r.stutters[j] = *s
			j++
		}
	}
	r.stutters = r.stutters[:j]
}

func (r *Runtime) scheduleStep() {
	defer func() { r.advanceCursor() }()

	if !r.inOnlyWindow() {
		return
	}
	pat := r.currentPattern()
	if pat == nil || pat.Length == 0 {
		return
	}
	lEff := pat.Length

	iter := r.def.Iter
	if iter < 1 {
		iter = 1
	}
	baseStep := r.stepIndex / iter

	idx, mirrored := r.applyPalindrome(baseStep, lEff)
	if r.def.Rev {
		idx = lEff - 1 - idx
		mirrored = true
	}

	if r.def.Chunk > 0 {
		size := (lEff + r.def.Chunk - 1) / r.def.Chunk
		cycle := (baseStep / lEff) % r.def.Chunk
		if idx < cycle*size || idx >= cycle*size+size {
			return
		}
	}

	if r.def.Every > 1 && r.stepIndex%r.def.Every != 0 {
		return
	}
	if r.def.Density < 1 {
		if r.nextRand() > r.def.Density {
			return
		}
	}

	r.playStep(pat, idx, mirrored)
}

// applyPalindrome mirrors the step index into [0, L) when palindrome mode
// is active, and reports whether the current position is on the
// mirrored/descending leg (for rev_transpose, SPEC_FULL.md §3/§4.6 step 2).
func (r *Runtime) applyPalindrome(baseStep, lEff int) (idx int, mirrored bool) {
	if !r.def.Palindrome || lEff <= 1 {
		return baseStep % lEff, false
	}
	pal := 2*lEff - 2
	p := baseStep % pal
	if p < lEff {
		return p, false
	}
	return pal - p, true
}

func (r *Runtime) playStep(pat *dsl.PatternDef, idx int, mirrored bool) {
	if pat.Note[idx] < 0 {
		return
	}
	midi := float64(pat.Note[idx]) + pat.Cents[idx]/100.0
	if mirrored && r.def.RevTranspose != 0 {
		midi += float64(r.def.RevTranspose)
	}
	slideMs := pat.SlideMs[idx]
	if slideMs < 0 {
		slideMs = r.def.SlideMs
	}
	accent := pat.Accent[idx] || r.nextRand() <= r.def.AccentProb

	id := r.voices.NoteOn(r.synth, midi, accent, slideMs)
	if id >= 0 {
		gate := int(0.9 * float64(r.samplesPerStep))
		r.offs = append(r.offs, pendingOff{remaining: gate, voiceID: id})
	}

	if r.def.OrnamentProb > 0 && pat.DegreeValid[idx] {
		if r.nextRand() <= r.def.OrnamentProb {
			r.playOrnament(pat, idx, midi)
		}
	}

	if r.def.Stut > 1 {
		per := r.samplesPerStep / r.def.Stut
		if per < 1 {
			per = 1
		}
		r.stutters = append(r.stutters, pendingStutter{
			remaining:    r.def.Stut - 1,
			samplesPer:   per,
			samplesUntil: per,
			midi:         midi,
		})
	}
}

func (r *Runtime) playOrnament(pat *dsl.PatternDef, idx int, rootMIDI float64) {
	deg := pat.Degree[idx]
	oct := pat.DegreeOctave[idx]
	mode := r.def.OrnamentMode
	dir := -1
	switch mode {
	case dsl.OrnamentUp:
		dir = 1
	case dsl.OrnamentAlt:
		if r.stepIndex%2 == 0 {
			dir = 1
		}
	}
	graceDeg := deg + dir
	graceOct := oct
	if graceDeg < 1 {
		graceDeg = 7
		graceOct--
	} else if graceDeg > 7 {
		graceDeg = 1
		graceOct++
	}
	cents := r.program.Maqam[graceDeg-1]
	graceMIDI := r.program.RootMIDI + float64(graceOct*12) + cents/100.0
	_ = rootMIDI
	id := r.voices.NoteOn(r.synth, graceMIDI, false, -1)
	if id >= 0 {
		gate := int(0.2 * float64(r.samplesPerStep))
		r.offs = append(r.offs, pendingOff{remaining: gate, voiceID: id})
	}
}

func (r *Runtime) advanceCursor() {
	r.stepIndex++
	cycle := r.cycleSteps()
	if r.stepIndex < cycle {
		return
	}
	r.stepIndex = 0
	if !r.def.IsSequence {
		return
	}
	seq := r.program.FindSequence(r.def.Sequence)
	if seq < 0 {
		return
	}
	sd := &r.program.Sequences[seq]
	if len(sd.Steps) == 0 {
		return
	}
	cur := sd.Steps[r.seqPos%len(sd.Steps)]
	r.seqRepeatDone++
	if r.seqRepeatDone >= maxInt(cur.Repeat, 1) {
		r.seqRepeatDone = 0
		r.seqPos = (r.seqPos + 1) % len(sd.Steps)
	}
}

// SequencePosition reports the 0-based sequence cursor, used by the engine
// to recompute tempo/meter when this track is the tempo leader.
func (r *Runtime) SequencePosition() int {
	return r.seqPos
}

// SetTempoLeader marks this Runtime as the one that drives section tempo
// recomputation (SPEC_FULL.md §4.7).
func (r *Runtime) SetTempoLeader(leader bool) {
	r.isTempoLeader = leader
}

// IsTempoLeader reports whether this Runtime drives section tempo changes.
func (r *Runtime) IsTempoLeader() bool {
	return r.isTempoLeader
}

// BaseRate returns rate*hurry*fast/slow, clamped to a 0.001 floor
// (SPEC_FULL.md §4.7).
func (r *Runtime) BaseRate() float64 {
	rate := r.def.Rate * r.def.Hurry * float64(maxInt(r.def.Fast, 1)) / float64(maxInt(r.def.Slow, 1))
	if rate < 0.001 {
		rate = 0.001
	}
	return rate
}
