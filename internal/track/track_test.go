package track

import (
	"testing"

	"github.com/maetyu-d/jamal/internal/dsl"
)

type fakeVoices struct {
	ons  []float64
	offs []int
	next int
}

func (f *fakeVoices) NoteOn(synth string, midi float64, accent bool, slideMs float64) int {
	f.ons = append(f.ons, midi)
	id := f.next
	f.next++
	return id
}

func (f *fakeVoices) NoteOff(synth string, voiceID int) {
	f.offs = append(f.offs, voiceID)
}

func fourStepProgram() (*dsl.Program, *dsl.TrackDef) {
	prog := dsl.NewProgram()
	prog.Synths = append(prog.Synths, dsl.SynthDef{Name: "lead", Type: dsl.Sine})
	pat := dsl.PatternDef{Name: "p", Length: 4}
	for i := 0; i < 4; i++ {
		pat.Note[i] = 60 + i
		pat.SlideMs[i] = -1
	}
	prog.Patterns = append(prog.Patterns, pat)
	def := dsl.TrackDef{
		Pattern: "p", Synth: "lead",
		Rate: 1, Hurry: 1, Fast: 1, Slow: 1,
		Every: 1, Density: 1, Iter: 1, Stut: 1,
		SeqEnd: -1,
	}
	prog.Tracks = append(prog.Tracks, def)
	return prog, &prog.Tracks[0]
}

func TestScheduleStepPlaysEachNoteOnce(t *testing.T) {
	prog, def := fourStepProgram()
	fv := &fakeVoices{}
	r := New(prog, def, 0, fv)
	r.SetSamplesPerStep(10)

	for i := 0; i < 40; i++ {
		r.Advance()
	}
	if len(fv.ons) != 4 {
		t.Fatalf("expected 4 note-ons across one cycle, got %d", len(fv.ons))
	}
	want := []float64{60, 61, 62, 63}
	for i, w := range want {
		if fv.ons[i] != w {
			t.Errorf("note %d: got %v, want %v", i, fv.ons[i], w)
		}
	}
}

func TestReverseFlipsOrder(t *testing.T) {
	prog, def := fourStepProgram()
	def.Rev = true
	fv := &fakeVoices{}
	r := New(prog, def, 0, fv)
	r.SetSamplesPerStep(10)
	for i := 0; i < 40; i++ {
		r.Advance()
	}
	want := []float64{63, 62, 61, 60}
	for i, w := range want {
		if fv.ons[i] != w {
			t.Errorf("note %d: got %v, want %v", i, fv.ons[i], w)
		}
	}
}

func TestPalindromeCycleOrder(t *testing.T) {
	prog, def := fourStepProgram()
	def.Palindrome = true
	fv := &fakeVoices{}
	r := New(prog, def, 0, fv)
	r.SetSamplesPerStep(10)
	for i := 0; i < 60; i++ {
		r.Advance()
	}
	// Palindrome over a length-4 pattern visits indices 0,1,2,3,2,1 before
	// repeating (SPEC_FULL.md §8 boundary property).
	want := []float64{60, 61, 62, 63, 62, 61}
	if len(fv.ons) < len(want) {
		t.Fatalf("expected at least %d note-ons, got %d", len(want), len(fv.ons))
	}
	for i, w := range want {
		if fv.ons[i] != w {
			t.Errorf("note %d: got %v, want %v", i, fv.ons[i], w)
		}
	}
}

func TestEveryNSkipsSteps(t *testing.T) {
	prog, def := fourStepProgram()
	def.Every = 2
	fv := &fakeVoices{}
	r := New(prog, def, 0, fv)
	r.SetSamplesPerStep(10)
	for i := 0; i < 40; i++ {
		r.Advance()
	}
	if len(fv.ons) != 2 {
		t.Fatalf("expected 2 note-ons with every=2, got %d", len(fv.ons))
	}
}

func TestRestStepPlaysNothing(t *testing.T) {
	prog, def := fourStepProgram()
	prog.Patterns[0].Note[1] = -1
	fv := &fakeVoices{}
	r := New(prog, def, 0, fv)
	r.SetSamplesPerStep(10)
	for i := 0; i < 40; i++ {
		r.Advance()
	}
	if len(fv.ons) != 3 {
		t.Fatalf("expected 3 note-ons (one rest skipped), got %d", len(fv.ons))
	}
}

func TestGateSchedulesNoteOff(t *testing.T) {
	prog, def := fourStepProgram()
	fv := &fakeVoices{}
	r := New(prog, def, 0, fv)
	r.SetSamplesPerStep(10)
	for i := 0; i < 40; i++ {
		r.Advance()
	}
	if len(fv.offs) == 0 {
		t.Errorf("expected at least one note-off to have fired")
	}
}
