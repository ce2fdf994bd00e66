package voice

import (
	"math"

	"github.com/maetyu-d/jamal/internal/dsl"
)

// polyBLEP reduces aliasing at waveform discontinuities (t = phase in
// [0,1), dt = phase increment per sample).
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

// Dual pitch/comb-length constants for the physical-model drum family.
// In each pair the first number is the pitch-envelope start frequency and
// the second is both the pitch-envelope end and the frequency the comb
// length is sized from; the two are kept as an authored pair rather than
// unified; see SPEC_FULL.md §9.
const (
	pmKickStartHz, pmKickEndHz   = 60.0, 55.0
	pmHatStartHz, pmHatEndHz     = 9000.0, 7000.0
	pmClapStartHz, pmClapEndHz   = 240.0, 260.0
)

// setupDrumVoice initializes the pitch-envelope and comb-filter state a
// voice needs for the percussive and physical-model synth types. Tonal
// types (Sine, Saw, FM, ...) leave these fields at their zero value.
func setupDrumVoice(v *voiceSlot, freq, sampleRate float64) {
	switch v.typ {
	case dsl.Kick, dsl.Kick808, dsl.Kick909:
		v.pitchEnvStart = freq * 4
		v.pitchEnvEnd = freq
		// Normalized 1/(time*sr) decay form, matching Tom (SPEC_FULL.md §9).
		v.pitchEnvRate = 1.0 / (0.05 * sampleRate)
		v.pitchEnvVal = v.pitchEnvStart
	case dsl.Tom:
		v.pitchEnvStart = freq * 2.5
		v.pitchEnvEnd = freq
		v.pitchEnvRate = 1.0 / (0.08 * sampleRate)
		v.pitchEnvVal = v.pitchEnvStart
	case dsl.Comb, dsl.PMString, dsl.PMBell, dsl.PMPipe:
		length := int(sampleRate / freq)
		v.comb = newCombFilter(length)
		v.comb.feedback = 0.985
		v.comb.damp = 0.25
		v.comb.excite(0.9)
	case dsl.PMKick:
		length := int(sampleRate / pmKickEndHz)
		v.comb = newCombFilter(length)
		v.comb.feedback = 0.994
		v.comb.damp = 0.4
		v.comb.excite(1.0)
		v.pitchEnvStart = pmKickStartHz
		v.pitchEnvEnd = pmKickEndHz
		v.pitchEnvRate = 1.0 / (0.12 * sampleRate)
		v.pitchEnvVal = v.pitchEnvStart
	case dsl.PMSnare:
		length := int(sampleRate / (freq * 2))
		v.comb = newCombFilter(length)
		v.comb.feedback = 0.9
		v.comb.damp = 0.6
		v.comb.excite(1.0)
	case dsl.PMHat:
		length := int(sampleRate / pmHatEndHz)
		v.comb = newCombFilter(length)
		v.comb.feedback = 0.7
		v.comb.damp = 0.8
		v.comb.excite(1.0)
		v.pitchEnvStart = pmHatStartHz
		v.pitchEnvEnd = pmHatEndHz
		v.pitchEnvRate = 1.0 / (0.02 * sampleRate)
		v.pitchEnvVal = v.pitchEnvStart
	case dsl.PMClap:
		length := int(sampleRate / pmClapEndHz)
		v.comb = newCombFilter(length)
		v.comb.feedback = 0.8
		v.comb.damp = 0.5
		v.comb.excite(1.0)
		v.pitchEnvStart = pmClapStartHz
		v.pitchEnvEnd = pmClapEndHz
		v.pitchEnvRate = 1.0 / (0.03 * sampleRate)
		v.pitchEnvVal = v.pitchEnvStart
	case dsl.PMTom:
		length := int(sampleRate / (freq * 1.5))
		v.comb = newCombFilter(length)
		v.comb.feedback = 0.96
		v.comb.damp = 0.3
		v.comb.excite(1.0)
	}
}

func advancePitchEnv(v *voiceSlot) float64 {
	if v.pitchEnvVal > v.pitchEnvEnd {
		v.pitchEnvVal -= (v.pitchEnvStart - v.pitchEnvEnd) * v.pitchEnvRate
		if v.pitchEnvVal < v.pitchEnvEnd {
			v.pitchEnvVal = v.pitchEnvEnd
		}
	}
	return v.pitchEnvVal
}

func (p *Pool) renderOscillator(v *voiceSlot) float64 {
	sr := p.sampleRate
	switch v.typ {
	case dsl.Sine:
		return advancePhaseSine(v, v.freq, sr)

	case dsl.Saw:
		return advancePhaseSaw(v, v.freq, sr)

	case dsl.Supersaw:
		rate := p.def.DetuneRate
		if rate <= 0 {
			rate = 7
		}
		depth := p.def.DetuneDepth
		if depth <= 0 {
			depth = 0.015
		}
		detune := math.Sin(2*math.Pi*rate*float64(v.age)/sr) * depth
		a := advancePhaseSawAt(&v.phase, v.freq, sr)
		b := advancePhaseSawAt(&v.phase2, v.freq*(1+detune), sr)
		c := advancePhaseSawAt(&v.phase3, v.freq*(1-detune), sr)
		return (a + b + c) / 3

	case dsl.Square, dsl.Pulse, dsl.Bitperc:
		duty := 0.5
		if v.typ == dsl.Pulse {
			duty = 0.25
		}
		out := advancePhaseSquare(v, v.freq, sr, duty)
		if v.typ == dsl.Bitperc {
			out = bitcrush(out, 4)
		}
		return out

	case dsl.Tri:
		return advancePhaseTriangle(v, v.freq, sr)

	case dsl.Noise, dsl.Glitch:
		n := nextNoise(v)
		if v.typ == dsl.Glitch {
			n = bitcrush(n, 3)
		}
		return n

	case dsl.FM, dsl.FM2:
		ratio := 2.0
		index := 3.0
		if v.typ == dsl.FM2 {
			ratio = 3.5
			index = 5.0
		}
		modPhase := advancePhaseRaw(&v.phase2, v.freq*ratio, sr)
		mod := math.Sin(2 * math.Pi * modPhase)
		carPhase := advancePhaseRaw(&v.phase, v.freq, sr)
		return math.Sin(2*math.Pi*carPhase + index*mod*v.env)

	case dsl.Ring:
		a := advancePhaseSine(v, v.freq, sr)
		bp := advancePhaseRaw(&v.phase2, v.freq*1.5, sr)
		return a * math.Sin(2*math.Pi*bp)

	case dsl.Acid:
		return advancePhaseSaw(v, v.freq, sr)

	case dsl.Kick, dsl.Kick808, dsl.Kick909, dsl.Tom:
		freq := advancePitchEnv(v)
		return advancePhaseSine(v, freq, sr)

	case dsl.Snare, dsl.Snare808, dsl.Snare909:
		n := nextNoise(v)
		tone := advancePhaseSine(v, v.freq, sr)
		return n*0.7 + tone*0.3

	case dsl.Clap, dsl.Clap909:
		n := nextNoise(v)
		burst := 1.0
		if math.Mod(float64(v.age), sr*0.01) > sr*0.003 {
			burst = 0.3
		}
		return n * burst

	case dsl.HatC, dsl.HatO, dsl.Hat808, dsl.Hat909:
		n := nextNoise(v)
		sq := advancePhaseSquare(v, v.freq*8, sr, 0.5)
		return n*0.8 + sq*0.2

	case dsl.Rim:
		return nextNoise(v) * math.Exp(-float64(v.age)/(sr*0.01))

	case dsl.Metal:
		a := advancePhaseRaw(&v.phase, v.freq*1.0, sr)
		b := advancePhaseRaw(&v.phase2, v.freq*1.41, sr)
		c := advancePhaseRaw(&v.phase3, v.freq*2.37, sr)
		return (math.Sin(2*math.Pi*a) + math.Sin(2*math.Pi*b) + math.Sin(2*math.Pi*c)) / 3

	case dsl.Comb:
		v.comb.excite(0)
		return v.comb.step()

	case dsl.PMString, dsl.PMBell, dsl.PMPipe:
		return v.comb.step()

	case dsl.PMKick, dsl.PMHat, dsl.PMClap:
		advancePitchEnv(v)
		return v.comb.step()

	case dsl.PMSnare, dsl.PMTom:
		return v.comb.step()

	default:
		return advancePhaseSine(v, v.freq, sr)
	}
}

func advancePhaseRaw(phase *float64, freq, sr float64) float64 {
	*phase += freq / sr
	for *phase >= 1 {
		*phase -= 1
	}
	return *phase
}

func advancePhaseSine(v *voiceSlot, freq, sr float64) float64 {
	ph := advancePhaseRaw(&v.phase, freq, sr)
	return math.Sin(2 * math.Pi * ph)
}

func advancePhaseSaw(v *voiceSlot, freq, sr float64) float64 {
	return advancePhaseSawAt(&v.phase, freq, sr)
}

func advancePhaseSawAt(phase *float64, freq, sr float64) float64 {
	dt := freq / sr
	*phase += dt
	for *phase >= 1 {
		*phase -= 1
	}
	out := 2*(*phase) - 1
	out -= polyBLEP(*phase, dt)
	return out
}

func advancePhaseSquare(v *voiceSlot, freq, sr float64, duty float64) float64 {
	dt := freq / sr
	v.phase += dt
	for v.phase >= 1 {
		v.phase -= 1
	}
	out := -1.0
	if v.phase < duty {
		out = 1
	}
	out += polyBLEP(v.phase, dt)
	out -= polyBLEP(math.Mod(v.phase-duty+1, 1), dt)
	return out
}

func advancePhaseTriangle(v *voiceSlot, freq, sr float64) float64 {
	ph := advancePhaseRaw(&v.phase, freq, sr)
	return 2*math.Abs(2*ph-1) - 1
}

func nextNoise(v *voiceSlot) float64 {
	v.noiseLFSR ^= v.noiseLFSR << 13
	v.noiseLFSR ^= v.noiseLFSR >> 17
	v.noiseLFSR ^= v.noiseLFSR << 5
	return (float64(v.noiseLFSR%2000) / 1000.0) - 1.0
}

func bitcrush(x float64, bits int) float64 {
	levels := float64(int(1) << uint(bits))
	return math.Round(x*levels) / levels
}
