// Command sonademo is a development smoke-test for the engine, in the
// shape of the teacher's cmd/audio/test.go: it builds an engine, creates
// a source, drives it through play/move/stop, and prints state
// transitions to stdout. It is not a product surface.
package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/pflag"

	"github.com/adkarpov/sona3d/internal/config"
	"github.com/adkarpov/sona3d/internal/diag"
	"github.com/adkarpov/sona3d/pkg/engine"
)

func main() {
	backendFlag := pflag.String("backend", "null", "backend priority: null|softmix|native3d")
	debugFlag := pflag.Bool("debug", false, "enable verbose logging")
	pflag.Parse()

	cfg := config.Default()
	cfg.Debug = *debugFlag
	cfg.Backends.Priority = []string{*backendFlag}

	sink := diag.NewStdSink(cfg.Debug, cfg.Diag.LogIndentUnit)
	eng, err := engine.New(cfg, sineDecoder{}, sink)
	if err != nil {
		fmt.Println("init failed:", err)
		return
	}
	defer eng.Shutdown()

	fmt.Println("selected backend:", eng.BackendName())

	_ = eng.LoadSound("beep.pcm")
	_ = eng.NewSource("A", engine.NewSourceParams{
		Position:          engine.Vec3{X: 5, Y: 0, Z: 0},
		ClipName:          "beep.pcm",
		Attenuation:       engine.AttenuationLinear,
		DistanceOrRolloff: 50,
		Volume:            1,
	})
	_ = eng.Play("A")

	time.Sleep(100 * time.Millisecond)
	fmt.Println("A playing:", eng.Playing("A"))

	eng.SetListenerPosition(engine.Vec3{X: 0, Y: 0, Z: 0})
	eng.TurnListener(math.Pi / 4)

	time.Sleep(200 * time.Millisecond)
	fmt.Println("A playing after listener move:", eng.Playing("A"))

	_ = eng.Stop("A")
	fmt.Println("sources:", eng.ListSources())
}

// sineDecoder synthesizes a short 16-bit mono PCM tone for any requested
// name, standing in for the out-of-scope AudioSource collaborator
// (spec.md §1/§6): container decoding is never the core's job.
type sineDecoder struct{}

func (sineDecoder) Decode(name string) (engine.ClipFormat, []byte, error) {
	const sampleRate = 44100
	const seconds = 0.25
	n := int(sampleRate * seconds)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(6000 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
		buf[2*i] = byte(s)
		buf[2*i+1] = byte(s >> 8)
	}
	return engine.ClipFormat{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}, buf, nil
}
