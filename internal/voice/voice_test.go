package voice

import (
	"testing"

	"github.com/maetyu-d/jamal/internal/dsl"
)

func sineDef() *dsl.SynthDef {
	d := &dsl.SynthDef{Name: "lead", Type: dsl.Sine, Amp: 1.0, Cutoff: 18000, Res: 0.1}
	d.Atk, d.Dec, d.Sus, d.Rel = 0.001, 0.01, 0.8, 0.05
	d.Drive = 1.0
	return d
}

func TestNoteOnRendersNonZero(t *testing.T) {
	p := NewPool(48000, sineDef())
	id := p.NoteOn(69, false, -1)
	if id == NoVoice {
		t.Fatalf("expected a free voice")
	}
	var sawNonZero bool
	for i := 0; i < 200; i++ {
		l, _ := p.RenderFrame()
		if l != 0 {
			sawNonZero = true
		}
	}
	if !sawNonZero {
		t.Errorf("expected a rendered sample to be non-zero")
	}
}

func TestPoolExhaustionDropsNote(t *testing.T) {
	p := NewPool(48000, sineDef())
	for i := 0; i < maxVoicesPerSynth; i++ {
		if id := p.NoteOn(60, false, -1); id == NoVoice {
			t.Fatalf("voice %d unexpectedly dropped", i)
		}
	}
	if id := p.NoteOn(60, false, -1); id != NoVoice {
		t.Errorf("expected NoVoice once the pool is full, got %d", id)
	}
	if n := p.ActiveCount(); n != maxVoicesPerSynth {
		t.Errorf("ActiveCount: got %d, want %d", n, maxVoicesPerSynth)
	}
}

func TestNoteOffReleasesSustainingVoice(t *testing.T) {
	p := NewPool(48000, sineDef())
	id := p.NoteOn(60, false, -1)
	for i := 0; i < 2000; i++ {
		p.RenderFrame()
	}
	p.NoteOff(id)
	for i := 0; i < 48000; i++ {
		p.RenderFrame()
		if p.ActiveCount() == 0 {
			return
		}
	}
	t.Errorf("voice never released after NoteOff")
}

func TestAccentRaisesVelocity(t *testing.T) {
	p := NewPool(48000, sineDef())
	p.NoteOn(60, true, -1)
	if v := p.voices[0].velocity; v <= p.def.Amp {
		t.Errorf("accented velocity %v should exceed base amp %v", v, p.def.Amp)
	}
}
