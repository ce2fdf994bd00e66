package engine

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RenderToWAV parses script, builds its own scratch pools and track
// runtimes (never touching whatever Program is currently installed and
// playing), and renders seconds of audio to a WAV file's bytes. It shares
// the parse-build-before-install discipline of PlayScript so a malformed
// script never disturbs live playback.
func (e *Engine) RenderToWAV(script string, seconds float64) ([]byte, error) {
	if seconds <= 0 {
		return nil, fmt.Errorf("render duration must be positive")
	}
	prog, pools, tracks, err := e.build(script)
	if err != nil {
		return nil, err
	}

	sr := e.SampleRate()
	base := baseSamplesPerStep(sr, prog.Tempo)
	mult := prog.TempoMap[1]
	if mult <= 0 {
		mult = 1
	}
	perStep := int(float64(base) / mult)
	if perStep < 1 {
		perStep = 1
	}
	for _, t := range tracks {
		t.SetSamplesPerStep(perStep)
	}

	for _, d := range prog.Drones {
		if p, ok := pools[d.Synth]; ok {
			p.NoteOn(d.MIDI, false, -1)
		}
	}

	frames := int(float64(sr) * seconds)
	gain := math.Float64frombits(e.masterAmp.Load())
	samples := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		for _, t := range tracks {
			t.Advance()
		}
		var l, r float64
		for _, p := range pools {
			pl, pr := p.RenderFrame()
			l += float64(pl)
			r += float64(pr)
		}
		l = clampF(l*gain, -1, 1)
		r = clampF(r*gain, -1, 1)
		samples[i*2] = float32(l)
		samples[i*2+1] = float32(r)
	}

	return encodeWAV(samples, sr, e.BitDepth()), nil
}

// encodeWAV writes interleaved stereo samples as a WAV file: a bit depth of
// 16 or 24 gives integer PCM (samples scaled and truncated toward zero); any
// other value, 32 included, gives 32-bit IEEE float.
func encodeWAV(samples []float32, sampleRate, bitDepth int) []byte {
	channels := 2
	switch bitDepth {
	case 16, 24:
		return encodePCM(samples, sampleRate, channels, bitDepth)
	default:
		return encodeFloat32(samples, sampleRate, channels)
	}
}

func encodeFloat32(samples []float32, sampleRate, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}

func encodePCM(samples []float32, sampleRate, channels, bits int) []byte {
	bytesPerSample := bits / 8
	dataSize := len(samples) * bytesPerSample
	byteRate := sampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], uint16(bits))
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))

	max := float64(int64(1)<<(uint(bits)-1) - 1)
	off := 44
	for _, s := range samples {
		v := int64(clampF(float64(s), -1, 1) * max)
		switch bits {
		case 16:
			binary.LittleEndian.PutUint16(out[off:], uint16(int16(v)))
		case 24:
			out[off] = byte(v)
			out[off+1] = byte(v >> 8)
			out[off+2] = byte(v >> 16)
		}
		off += bytesPerSample
	}
	return out
}
