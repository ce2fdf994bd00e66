// Package dsl implements the score compiler: it parses a line-oriented
// live-coding script into a validated Program.
package dsl

// SynthType enumerates the oscillator/drum/physical-model voice variants.
// Order matches the original synth-type registry; it is not semantically
// significant beyond giving each type a stable tag.
type SynthType int

const (
	Sine SynthType = iota
	Saw
	Supersaw
	Square
	Tri
	Noise
	Pulse
	FM
	Ring
	Acid
	Kick
	Kick808
	Kick909
	Snare
	Snare808
	Snare909
	Clap
	Clap909
	HatC
	HatO
	Hat808
	Hat909
	Tom
	Rim
	Glitch
	Metal
	Bitperc
	FM2
	Comb
	PMString
	PMBell
	PMPipe
	PMKick
	PMSnare
	PMHat
	PMClap
	PMTom
)

var synthTypeNames = map[string]SynthType{
	"sine": Sine, "saw": Saw, "supersaw": Supersaw, "square": Square,
	"tri": Tri, "triangle": Tri, "noise": Noise, "pulse": Pulse,
	"fm": FM, "fm2": FM2, "ring": Ring, "acid": Acid,
	"kick": Kick, "kick808": Kick808, "kick909": Kick909,
	"snare": Snare, "snare808": Snare808, "snare909": Snare909,
	"clap": Clap, "clap909": Clap909,
	"hatc": HatC, "hat_c": HatC, "hat-closed": HatC,
	"hato": HatO, "hat_o": HatO, "hat-open": HatO,
	"hat808": Hat808, "hat909": Hat909,
	"tom": Tom, "rim": Rim, "rimshot": Rim,
	"glitch": Glitch, "metal": Metal,
	"bitperc": Bitperc, "bit": Bitperc,
	"comb": Comb, "res": Comb, "resonator": Comb,
	"pm_string": PMString, "pmstring": PMString,
	"pm_bell": PMBell, "pmbell": PMBell,
	"pm_pipe": PMPipe, "pmpipe": PMPipe,
	"pm_kick": PMKick, "pmkick": PMKick,
	"pm_snare": PMSnare, "pmsnare": PMSnare,
	"pm_hat": PMHat, "pmhat": PMHat,
	"pm_clap": PMClap, "pmclap": PMClap,
	"pm_tom": PMTom, "pmtom": PMTom,
}

// ParseSynthType resolves a parser keyword to its SynthType tag.
func ParseSynthType(s string) (SynthType, bool) {
	t, ok := synthTypeNames[s]
	return t, ok
}

// ModSource enumerates modulation sources.
type ModSource int

const (
	SourceLFO ModSource = iota
	SourceEnv
	SourceNoise
	SourceSampleHold
	SourceRing
	SourceSync
)

var modSourceNames = map[string]ModSource{
	"lfo": SourceLFO, "env": SourceEnv, "noise": SourceNoise,
	"sample_hold": SourceSampleHold, "s&h": SourceSampleHold,
	"ring": SourceRing, "sync": SourceSync,
}

// ModDest enumerates modulation destinations.
type ModDest int

const (
	DestAmp ModDest = iota
	DestCutoff
	DestRes
	DestPan
	DestPitch
)

var modDestNames = map[string]ModDest{
	"amp": DestAmp, "cutoff": DestCutoff, "res": DestRes,
	"pan": DestPan, "pitch": DestPitch,
}

// ModDef is one modulation routing entry on a SynthDef.
type ModDef struct {
	Source  ModSource
	Dest    ModDest
	Rate    float64
	Depth   float64
	Offset  float64
	LagMs   float64
	SlewMs  float64
}

const maxModsPerSynth = 32

// SynthDef is a named voice configuration.
type SynthDef struct {
	Name string
	Type SynthType

	Amp float64
	Cutoff float64
	Res float64

	Atk, Dec, Sus, Rel float64

	CombFeedback float64
	CombDamp     float64
	CombExcite   float64

	// DetuneRate/DetuneDepth drive the Supersaw oscillator (see
	// SPEC_FULL.md §3, §4.4a); Drive is a pre-filter saturation gain.
	DetuneRate  float64
	DetuneDepth float64
	Drive       float64

	Mods []ModDef
}

func defaultSynthDef(name string, typ SynthType) SynthDef {
	return SynthDef{
		Name: name, Type: typ,
		Amp: 0.5, Cutoff: 18000, Res: 0.1,
		Atk: 0.01, Dec: 0.1, Sus: 0.6, Rel: 0.2,
		CombFeedback: 0.85, CombDamp: 0.2, CombExcite: 0.7,
		DetuneRate: 0, DetuneDepth: 0, Drive: 1.0,
	}
}

const maxPatternLen = 128

// PatternDef is one named sequence of notes (a bar, riff, or drum hit list).
type PatternDef struct {
	Name   string
	Length int

	Note         [maxPatternLen]int // MIDI, or -1 for rest
	Cents        [maxPatternLen]float64
	Degree       [maxPatternLen]int
	DegreeOctave [maxPatternLen]int
	DegreeMicro  [maxPatternLen]int
	DegreeValid  [maxPatternLen]bool
	SlideMs      [maxPatternLen]float64 // -1 = use track default
	Accent       [maxPatternLen]bool
}

// SequenceStep is one entry of a SequenceDef: a pattern name repeated N times.
type SequenceStep struct {
	Pattern string
	Repeat  int
}

const maxSequenceSteps = 32

// SequenceDef is a named ordered list of pattern references.
type SequenceDef struct {
	Name  string
	Steps []SequenceStep
}

// DroneDef is a held note started when the Program is installed.
type DroneDef struct {
	Synth string
	MIDI  float64
}

// OrnamentMode selects grace-note direction.
type OrnamentMode int

const (
	OrnamentDown OrnamentMode = iota
	OrnamentUp
	OrnamentAlt
)

// TrackDef is one `play`/`playseq` instruction.
type TrackDef struct {
	Pattern    string // set when referencing a pattern directly
	Sequence   string // set when referencing a sequence (IsSequence true)
	IsSequence bool
	Synth      string

	SeqStart, SeqEnd int // 1-based inclusive window; SeqEnd<0 means "to the end"

	Rate, Hurry       float64
	Fast, Slow        int
	Every             int
	Density           float64
	Rev               bool
	RevTranspose      int // supplemented (SPEC_FULL.md §3)
	Palindrome        bool
	Iter              int
	Chunk             int
	Stut              int
	SlideMs           float64
	OrnamentProb      float64
	OrnamentMode      OrnamentMode
	AccentProb        float64
	OffsetBars        int // supplemented (SPEC_FULL.md §3)
}

func defaultTrackDef() TrackDef {
	return TrackDef{
		SeqStart: 0, SeqEnd: -1,
		Rate: 1.0, Hurry: 1.0, Fast: 1, Slow: 1,
		Every: 1, Density: 1.0,
		Iter: 1, Chunk: 0, Stut: 1,
		SlideMs: 0.0, OrnamentProb: 0.0, OrnamentMode: OrnamentDown,
		AccentProb: 0.0,
	}
}

const (
	maxSynths    = 32
	maxPatterns  = 64
	maxSequences = 8
	maxDrones    = 4
	maxTracks    = 128
	maxTimeSigSeq = 1024
)

// TimeSig is a numerator/denominator pair.
type TimeSig struct {
	Num, Den int
}

// Program is the fully validated, immutable (save master_amp) output of
// the score compiler.
type Program struct {
	Tempo      float64 // BPM after TempoScale is applied
	TempoScale float64
	MasterAmp  float64
	RootMIDI   float64

	Maqam [7]float64

	TempoMap [15]float64 // index 1..14 used; 0 unused

	TimeSigNum, TimeSigDen int
	TimeSigNumMap          [15]int
	TimeSigDenMap          [15]int
	TimeSigEnforce         bool

	// TimeSigSeq is the supplemented flat per-step meter sequence (see
	// SPEC_FULL.md §3); empty unless `timesig_seq` was used.
	TimeSigSeq []TimeSig

	Synths    []SynthDef
	Patterns  []PatternDef
	Sequences []SequenceDef
	Drones    []DroneDef
	Tracks    []TrackDef
}

// NewProgram returns a Program with the reference implementation's
// default field values (set_default_program in the original).
func NewProgram() *Program {
	p := &Program{
		Tempo:      120,
		TempoScale: 2.0,
		MasterAmp:  0.8,
		RootMIDI:   60.0,
		Maqam:      [7]float64{0, 200, 400, 500, 700, 900, 1100},
		TimeSigNum: 4, TimeSigDen: 4,
	}
	for i := 1; i <= 14; i++ {
		p.TempoMap[i] = 1.0
		p.TimeSigNumMap[i] = 4
		p.TimeSigDenMap[i] = 4
	}
	return p
}

// FindSynth returns the index of the named synth, or -1.
func (p *Program) FindSynth(name string) int {
	for i := range p.Synths {
		if p.Synths[i].Name == name {
			return i
		}
	}
	return -1
}

// FindPattern returns the index of the named pattern, or -1.
func (p *Program) FindPattern(name string) int {
	for i := range p.Patterns {
		if p.Patterns[i].Name == name {
			return i
		}
	}
	return -1
}

// FindSequence returns the index of the named sequence, or -1.
func (p *Program) FindSequence(name string) int {
	for i := range p.Sequences {
		if p.Sequences[i].Name == name {
			return i
		}
	}
	return -1
}
