package dsl

import (
	"testing"

	"github.com/maetyu-d/jamal/internal/pitch"
)

func mustParse(t *testing.T, script string) *Program {
	t.Helper()
	p, err := Parse(script)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return p
}

func TestTempoAndScale(t *testing.T) {
	p := mustParse(t, "tempo 120\ntempo_scale 2.0\nsynth lead sine\npattern p [60]\nplay p lead")
	if p.TempoScale != 2.0 {
		t.Fatalf("got tempo=%v scale=%v", p.Tempo, p.TempoScale)
	}
	if got := p.Tempo; got != 240 {
		t.Errorf("effective tempo: got %v, want 240 (120 * tempo_scale 2.0)", got)
	}
}

func TestPatternBracketListRepeat(t *testing.T) {
	p := mustParse(t, "synth lead sine\npattern p [60, 62, 64] 3\nplay p lead")
	idx := p.FindPattern("p")
	if idx < 0 {
		t.Fatalf("pattern p not found")
	}
	if p.Patterns[idx].Length != 9 {
		t.Fatalf("length: got %d, want 9", p.Patterns[idx].Length)
	}
	want := []int{60, 62, 64, 60, 62, 64, 60, 62, 64}
	for i, w := range want {
		if p.Patterns[idx].Note[i] != w {
			t.Errorf("note[%d]: got %d, want %d", i, p.Patterns[idx].Note[i], w)
		}
	}
}

func TestPatternSpaceListDegreeTokens(t *testing.T) {
	p := mustParse(t, "root c4\nsynth lead sine\npattern p 1 3 5\nplay p lead")
	idx := p.FindPattern("p")
	if idx < 0 {
		t.Fatalf("pattern p not found")
	}
	if p.Patterns[idx].Length != 3 {
		t.Fatalf("length: got %d, want 3", p.Patterns[idx].Length)
	}
	if !p.Patterns[idx].DegreeValid[0] || p.Patterns[idx].Degree[0] != 1 {
		t.Errorf("step 0 degree info: %+v", p.Patterns[idx])
	}
}

func TestNoPlayCommandIsError(t *testing.T) {
	if _, err := Parse("tempo 120"); err == nil {
		t.Fatalf("expected error when no play command is present")
	}
}

func TestPlayRangeValidationVsPlayseqAsymmetry(t *testing.T) {
	script := "synth lead sine\npattern p [60]\nplay p lead rate -1"
	if _, err := Parse(script); err == nil {
		t.Errorf("play with rate -1 should be a hard error")
	}
	seqScript := "synth lead sine\npattern p [60]\nsequence s p*1\nplayseq s lead rate -1"
	if _, err := Parse(seqScript); err != nil {
		t.Errorf("playseq should silently accept an out-of-range rate, got error: %v", err)
	}
}

func TestTimesigSeqCapacity(t *testing.T) {
	script := "synth lead sine\npattern p [60]\nplay p lead\n"
	for i := 0; i < maxTimeSigSeq; i++ {
		script += "timesig_seq 4/4\n"
	}
	if _, err := Parse(script); err != nil {
		t.Fatalf("exactly at capacity should parse: %v", err)
	}
	if _, err := Parse(script + "timesig_seq 4/4\n"); err == nil {
		t.Errorf("exceeding timesig_seq capacity should error")
	}
}

func TestMaqamUnknownNameIsSilentNoop(t *testing.T) {
	p := mustParse(t, "maqam notarealmode\nsynth lead sine\npattern p [60]\nplay p lead")
	if p.Maqam != pitch.DefaultMaqam {
		t.Errorf("unknown maqam name should leave the table untouched, got %v", p.Maqam)
	}
}
