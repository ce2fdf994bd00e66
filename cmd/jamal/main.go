// Command jamal runs a live-coding score script, either to the default
// audio output or straight to a WAV file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maetyu-d/jamal/internal/engine"
)

func main() {
	var (
		sampleRate   = flag.Int("sample-rate", 48000, "output sample rate (8000-192000)")
		bufferFrames = flag.Int("buffer-frames", 256, "audio callback buffer size in frames (64-2048)")
		bitDepth     = flag.Int("bit-depth", 32, "output bit depth: 16, 24, or 32")
		scriptPath   = flag.String("file", "", "path to a score script")
		scriptInline = flag.String("script", "", "inline score script")
		volume       = flag.Float64("master", 0.8, "master amplitude (0-4)")
		renderPath   = flag.String("render", "", "render to this WAV path instead of playing live")
		renderSecs   = flag.Float64("seconds", 8.0, "duration to render with -render")
	)
	flag.Parse()

	script, err := resolveScript(*scriptPath, *scriptInline)
	if err != nil {
		log.Fatal(err)
	}

	eng := engine.New(
		engine.WithSampleRate(*sampleRate),
		engine.WithBufferFrames(*bufferFrames),
		engine.WithBitDepth(*bitDepth),
	)
	eng.SetMaster(*volume)

	if *renderPath != "" {
		wav, err := eng.RenderToWAV(script, *renderSecs)
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(*renderPath, wav, 0o644); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s (%.1fs)\n", *renderPath, *renderSecs)
		return
	}

	if err := eng.PlayScript(script); err != nil {
		log.Fatal(err)
	}
	if err := eng.StartAudio(); err != nil {
		log.Fatal(err)
	}

	ch := eng.Watch()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	num, den := eng.GetMeter()
	fmt.Printf("playing at %d bpm, %d/%d\n", int(eng.GetTempo()), num, den)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == engine.EventSectionChanged {
				fmt.Printf("section %d\n", ev.Section)
			}
		case <-sigCh:
			eng.Stop()
			return
		}
	}
}

func resolveScript(path, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("no script given: pass -file or -script")
}
