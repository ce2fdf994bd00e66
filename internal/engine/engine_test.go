package engine

import "testing"

const testScript = `tempo 120
synth lead sine
set lead amp 0.8
pattern p [60, 64, 67]
play p lead`

func TestPlayScriptInstallsProgram(t *testing.T) {
	e := New(WithSampleRate(48000))
	if err := e.PlayScript(testScript); err != nil {
		t.Fatalf("PlayScript: %v", err)
	}
	if !e.IsRunning() {
		t.Errorf("expected IsRunning true after PlayScript")
	}
	if got := e.GetTempo(); got != 240 {
		t.Errorf("GetTempo: got %v, want 240 (120 * default tempo_scale 2.0)", got)
	}
	num, den := e.GetMeter()
	if num != 4 || den != 4 {
		t.Errorf("GetMeter: got %d/%d, want 4/4", num, den)
	}
}

func TestPlayScriptParseErrorLeavesPriorProgramIntact(t *testing.T) {
	e := New(WithSampleRate(48000))
	if err := e.PlayScript(testScript); err != nil {
		t.Fatalf("PlayScript: %v", err)
	}
	before := e.GetTempo()
	if err := e.PlayScript("not a valid script at all"); err == nil {
		t.Fatalf("expected a parse error")
	}
	if got := e.GetTempo(); got != before {
		t.Errorf("tempo changed after a failed PlayScript: got %v, want %v", got, before)
	}
	if !e.IsRunning() {
		t.Errorf("previously-installed program should still be running")
	}
}

func TestProcessProducesAudio(t *testing.T) {
	e := New(WithSampleRate(48000))
	if err := e.PlayScript(testScript); err != nil {
		t.Fatalf("PlayScript: %v", err)
	}
	buf := make([]float32, 2*4800)
	e.Process(buf)
	var nonZero bool
	for _, s := range buf {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Errorf("expected Process to render non-zero audio")
	}
}

func TestSetMasterClamps(t *testing.T) {
	e := New()
	e.SetMaster(-1)
	if g := e.masterGain(); g != 0 {
		t.Errorf("SetMaster(-1): got %v, want 0", g)
	}
	e.SetMaster(10)
	if g := e.masterGain(); g != 4 {
		t.Errorf("SetMaster(10): got %v, want 4", g)
	}
}

func TestRenderToWAVProducesPCMHeader(t *testing.T) {
	e := New(WithSampleRate(48000), WithBitDepth(16))
	wav, err := e.RenderToWAV(testScript, 0.1)
	if err != nil {
		t.Fatalf("RenderToWAV: %v", err)
	}
	if len(wav) < 44 {
		t.Fatalf("wav too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE header")
	}
}
