// Package engine ties the parsed Program to a live set of voice pools and
// track runtimes, and exposes the control-thread API a host (CLI, UI, or
// offline renderer) drives: install a script, start/stop playback, read
// back tempo/meter/meter scalars, and render a script straight to a WAV
// file without touching the realtime audio path at all.
package engine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/maetyu-d/jamal/internal/audio"
	"github.com/maetyu-d/jamal/internal/dsl"
	"github.com/maetyu-d/jamal/internal/track"
	"github.com/maetyu-d/jamal/internal/voice"
)

// EventKind identifies what an EngineEvent reports.
type EventKind int

const (
	EventPatternCycled EventKind = iota
	EventSectionChanged
	EventStopped
)

// EngineEvent carries a notification from Watch(). Mirrors the lightweight
// channel pattern the rest of this codebase uses for playback events.
type EngineEvent struct {
	Kind    EventKind
	Section int
}

type EngineOption func(*engineConfig)

type engineConfig struct {
	sampleRate   int
	bufferFrames int
	bitDepth     int
	outputDevice string
}

func defaultEngineConfig() engineConfig {
	return engineConfig{sampleRate: 48000, bufferFrames: 256, bitDepth: 32}
}

func WithSampleRate(hz int) EngineOption {
	return func(c *engineConfig) { c.sampleRate = hz }
}

func WithBufferFrames(n int) EngineOption {
	return func(c *engineConfig) { c.bufferFrames = n }
}

func WithBitDepth(bits int) EngineOption {
	return func(c *engineConfig) { c.bitDepth = bits }
}

func WithOutputDevice(name string) EngineOption {
	return func(c *engineConfig) { c.outputDevice = name }
}

// Engine is the sequencer/voice half of the system: it owns the installed
// Program, the voice pool for each synth it defines, and the per-track step
// clocks that drive them. One Engine corresponds to one live performance.
type Engine struct {
	mu sync.Mutex

	sampleRate   atomic.Int64
	bufferFrames atomic.Int64
	bitDepth     atomic.Int64
	outputDevice string

	program *dsl.Program
	pools   map[string]*voice.Pool
	tracks  []*track.Runtime
	leader  *track.Runtime

	baseSamplesPerStep int
	tempoSection       atomic.Int64

	running      atomic.Bool
	masterAmp    atomic.Uint64 // math.Float64bits
	patternEpoch atomic.Uint64
	rms          atomic.Uint64
	peak         atomic.Uint64
	clipped      atomic.Bool

	audioPlayer *audio.Player

	eventCh   chan EngineEvent
	eventChMu sync.Mutex
}

// New builds an Engine with no Program installed. Call PlayScript to give
// it something to render.
func New(opts ...EngineOption) *Engine {
	cfg := defaultEngineConfig()
	for _, o := range opts {
		o(&cfg)
	}
	e := &Engine{
		pools:        map[string]*voice.Pool{},
		outputDevice: cfg.outputDevice,
	}
	e.sampleRate.Store(int64(cfg.sampleRate))
	e.bufferFrames.Store(int64(cfg.bufferFrames))
	e.bitDepth.Store(int64(cfg.bitDepth))
	e.masterAmp.Store(math.Float64bits(0.8))
	return e
}

func (e *Engine) SampleRate() int   { return int(e.sampleRate.Load()) }
func (e *Engine) BufferFrames() int { return int(e.bufferFrames.Load()) }
func (e *Engine) BitDepth() int     { return int(e.bitDepth.Load()) }

// SetSampleRate clamps to [8000, 192000] Hz and takes effect on the next
// PlayScript (it does not retroactively resample an installed Program).
func (e *Engine) SetSampleRate(hz int) {
	if hz < 8000 {
		hz = 8000
	}
	if hz > 192000 {
		hz = 192000
	}
	e.sampleRate.Store(int64(hz))
}

// SetBufferFrames clamps to [64, 2048].
func (e *Engine) SetBufferFrames(n int) {
	if n < 64 {
		n = 64
	}
	if n > 2048 {
		n = 2048
	}
	e.bufferFrames.Store(int64(n))
}

// SetBitDepth accepts only 16, 24, or 32; anything else is ignored.
func (e *Engine) SetBitDepth(bits int) {
	switch bits {
	case 16, 24, 32:
		e.bitDepth.Store(int64(bits))
	}
}

func (e *Engine) SetOutputDevice(name string) {
	e.mu.Lock()
	e.outputDevice = name
	e.mu.Unlock()
}

// SetMaster clamps to [0, 4] (SPEC_FULL.md §4.8).
func (e *Engine) SetMaster(amp float64) {
	if amp < 0 {
		amp = 0
	}
	if amp > 4 {
		amp = 4
	}
	e.masterAmp.Store(math.Float64bits(amp))
}

func (e *Engine) masterGain() float64 {
	return math.Float64frombits(e.masterAmp.Load())
}

// IsRunning reports whether the last-installed Program is still being
// driven by the audio callback (or an offline render).
func (e *Engine) IsRunning() bool { return e.running.Load() }

func (e *Engine) GetPatternEpoch() uint64 { return e.patternEpoch.Load() }

func (e *Engine) GetTempo() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.program == nil {
		return 0
	}
	return e.program.Tempo
}

// GetMeter returns the currently-active time signature as num/den.
func (e *Engine) GetMeter() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.program == nil {
		return 4, 4
	}
	return e.program.TimeSigNum, e.program.TimeSigDen
}

// GetMeterEx additionally reports the current tempo-map section (1-14, or 0
// if no tempo-leader track has driven a section change yet).
func (e *Engine) GetMeterEx() (num, den, section int) {
	num, den = e.GetMeter()
	return num, den, int(e.tempoSection.Load())
}

// Meters returns the RMS and peak level last measured by the render
// callback, plus whether the output has clipped since the last call.
func (e *Engine) Meters() (rms, peak float64, clipped bool) {
	rms = math.Float64frombits(e.rms.Load())
	peak = math.Float64frombits(e.peak.Load())
	clipped = e.clipped.Swap(false)
	return
}

// Watch returns a channel of engine notifications. Only the most recent
// Watch() channel receives events.
func (e *Engine) Watch() <-chan EngineEvent {
	ch := make(chan EngineEvent, 8)
	e.eventChMu.Lock()
	e.eventCh = ch
	e.eventChMu.Unlock()
	return ch
}

func (e *Engine) sendEvent(ev EngineEvent) {
	e.eventChMu.Lock()
	ch := e.eventCh
	e.eventChMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// build parses script and constructs the pools/tracks it needs entirely off
// to the side, so a syntax error never disturbs whatever Program is
// currently installed (SPEC_FULL.md §7).
func (e *Engine) build(script string) (*dsl.Program, map[string]*voice.Pool, []*track.Runtime, error) {
	prog, err := dsl.Parse(script)
	if err != nil {
		return nil, nil, nil, err
	}
	pools := make(map[string]*voice.Pool, len(prog.Synths))
	sr := e.SampleRate()
	for i := range prog.Synths {
		pools[prog.Synths[i].Name] = voice.NewPool(sr, &prog.Synths[i])
	}
	tracks := make([]*track.Runtime, len(prog.Tracks))
	router := &poolRouter{pools: pools}
	for i := range prog.Tracks {
		tracks[i] = track.New(prog, &prog.Tracks[i], i, router)
	}
	return prog, pools, tracks, nil
}

// PlayScript parses and installs script as the live Program, replacing
// whatever was running. The new Program is fully built before anything
// about the running engine is touched, so a parse error leaves the
// previous Program (if any) intact.
func (e *Engine) PlayScript(script string) error {
	prog, pools, tracks, err := e.build(script)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.program = prog
	e.pools = pools
	e.tracks = tracks
	e.leader = findTempoLeader(prog, tracks)
	if e.leader != nil {
		e.leader.SetTempoLeader(true)
	}
	e.baseSamplesPerStep = baseSamplesPerStep(e.SampleRate(), prog.Tempo)
	e.recomputeStepRatesLocked(1)
	e.mu.Unlock()

	for _, d := range prog.Drones {
		if pool, ok := pools[d.Synth]; ok {
			pool.NoteOn(d.MIDI, false, -1)
		}
	}

	e.running.Store(true)
	e.patternEpoch.Add(1)
	return nil
}

func findTempoLeader(prog *dsl.Program, tracks []*track.Runtime) *track.Runtime {
	for i := range prog.Tracks {
		if prog.Tracks[i].IsSequence && prog.Tracks[i].Sequence != "" {
			return tracks[i]
		}
	}
	return nil
}

func baseSamplesPerStep(sampleRate int, tempo float64) int {
	if tempo <= 0 {
		tempo = 120
	}
	v := int(math.Round(float64(sampleRate) * 60 / tempo / 4))
	if v < 1 {
		v = 1
	}
	return v
}

func (e *Engine) recomputeStepRatesLocked(section int) {
	if section < 1 || section > 14 {
		section = 1
	}
	mult := 1.0
	if e.program != nil {
		mult = e.program.TempoMap[section]
		if mult <= 0 {
			mult = 1
		}
	}
	base := int(float64(e.baseSamplesPerStep) / mult)
	if base < 1 {
		base = 1
	}
	for _, t := range e.tracks {
		t.SetSamplesPerStep(base)
	}
}

// Stop halts playback; GetTempo/GetMeter still report the last-installed
// Program's values but IsRunning reports false.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	if e.audioPlayer != nil {
		_ = e.audioPlayer.Stop()
		e.audioPlayer = nil
	}
	e.sendEvent(EngineEvent{Kind: EventStopped})
}

// Process implements audio.SampleSource: dst is interleaved stereo float32.
func (e *Engine) Process(dst []float32) {
	if !e.running.Load() {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	e.mu.Lock()
	tracks := e.tracks
	pools := e.pools
	gain := e.masterGain()
	e.mu.Unlock()

	var sumSq, peak float64
	clipped := false
	for i := 0; i+1 < len(dst); i += 2 {
		for _, t := range tracks {
			before := t.SequencePosition()
			t.Advance()
			if after := t.SequencePosition(); after != before {
				e.patternEpoch.Add(1)
				if t == e.leader {
					e.onSectionAdvance(after)
				}
			}
		}

		var l, r float64
		for _, p := range pools {
			pl, pr := p.RenderFrame()
			l += float64(pl)
			r += float64(pr)
		}
		l *= gain
		r *= gain
		l = quantizeBitDepth(l, e.BitDepth())
		r = quantizeBitDepth(r, e.BitDepth())
		if l > 1 || l < -1 || r > 1 || r < -1 {
			clipped = true
		}
		l = clampF(l, -1, 1)
		r = clampF(r, -1, 1)
		dst[i] = float32(l)
		dst[i+1] = float32(r)
		sumSq += l*l + r*r
		if math.Abs(l) > peak {
			peak = math.Abs(l)
		}
		if math.Abs(r) > peak {
			peak = math.Abs(r)
		}
	}
	frames := len(dst) / 2
	if frames > 0 {
		rms := math.Sqrt(sumSq / float64(frames*2))
		e.rms.Store(math.Float64bits(rms))
		e.peak.Store(math.Float64bits(peak))
	}
	if clipped {
		e.clipped.Store(true)
	}
}

func (e *Engine) onSectionAdvance(pos int) {
	e.mu.Lock()
	section := pos + 1
	if section < 1 {
		section = 1
	}
	if section > 14 {
		section = 14
	}
	e.tempoSection.Store(int64(section))
	e.recomputeStepRatesLocked(section)
	e.mu.Unlock()
	e.sendEvent(EngineEvent{Kind: EventSectionChanged, Section: section})
}

func quantizeBitDepth(x float64, bits int) float64 {
	if bits >= 32 || bits <= 0 {
		return x
	}
	levels := math.Pow(2, float64(bits-1))
	return math.Round(x*levels) / levels
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Finished always reports false: a live Program loops until Stop is called,
// so the audio stream reading from Engine (a FinishingSource by virtue of
// this method) never reaches EOF.
func (e *Engine) Finished() bool { return false }

// StartAudio opens the realtime output device and begins driving it from
// this Engine's Process method.
func (e *Engine) StartAudio() error {
	p, err := audio.NewPlayer(e.SampleRate(), e)
	if err != nil {
		return fmt.Errorf("start audio: %w", err)
	}
	e.audioPlayer = p
	p.Play()
	return nil
}

// poolRouter adapts a map of named voice pools to track.VoiceTarget.
type poolRouter struct {
	pools map[string]*voice.Pool
}

func (r *poolRouter) NoteOn(synth string, midi float64, accent bool, slideMs float64) int {
	p, ok := r.pools[synth]
	if !ok {
		return voice.NoVoice
	}
	return p.NoteOn(midi, accent, slideMs)
}

func (r *poolRouter) NoteOff(synth string, voiceID int) {
	if voiceID < 0 {
		return
	}
	if p, ok := r.pools[synth]; ok {
		p.NoteOff(voiceID)
	}
}
