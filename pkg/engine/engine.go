// Package engine is the public facade (spec.md §4.8, C8): the only
// package callers outside this module need to import. It wires together
// geometry, the clip cache, the backend, the voice pool, the streaming
// pump and the command dispatcher, then exposes a thread-safe,
// enqueue-and-return API plus a handful of synchronous queries.
package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adkarpov/sona3d/internal/backend"
	"github.com/adkarpov/sona3d/internal/backend/native3d"
	"github.com/adkarpov/sona3d/internal/backend/null"
	"github.com/adkarpov/sona3d/internal/backend/softmix"
	"github.com/adkarpov/sona3d/internal/clipcache"
	"github.com/adkarpov/sona3d/internal/config"
	"github.com/adkarpov/sona3d/internal/diag"
	"github.com/adkarpov/sona3d/internal/dispatcher"
	"github.com/adkarpov/sona3d/internal/geometry"
	"github.com/adkarpov/sona3d/internal/registry"
	"github.com/adkarpov/sona3d/internal/stream"
	"github.com/adkarpov/sona3d/internal/voice"
)

// Decoder is re-exported so callers supplying the AudioSource collaborator
// (spec.md §6) don't need to import internal/clipcache directly.
type Decoder = clipcache.Decoder

// DecoderFunc adapts a function to a Decoder.
type DecoderFunc = clipcache.DecoderFunc

// ClipFormat re-exports clipcache's format struct for callers implementing
// a Decoder.
type ClipFormat = clipcache.ClipFormat

// Stats is the engine-level metrics snapshot (SPEC_FULL §11), grounded on
// birdnet-go's AudioManager.Metrics() shape: read-only, reading counters
// atomically and taking only the voice-pool and registry locks briefly;
// it never calls the backend, so it can never violate the "no lock held
// while calling backend" rule.
type Stats struct {
	NormalVoicesInUse    int
	StreamingVoicesInUse int
	SourcesRegistered    int
	VoicesEvicted        uint64
	VoicesExhausted      uint64
	// CommandsProcessed counts commands the facade has enqueued; it does
	// not wait for the worker to have run them.
	CommandsProcessed uint64
}

// Engine is the running sound engine: the facade plus every collaborator
// it owns.
type Engine struct {
	cfg  *config.Config
	sink diag.Sink

	listener geometry.Listener
	master   float32

	reg    *registry.Registry
	cache  *clipcache.Cache
	voices *voice.VoicePool
	be     backend.Backend
	pump   *stream.Pump
	disp   *dispatcher.Dispatcher

	backendName string

	commandsEnqued uint64
	dying          int32
}

type backendFactory func(cfg *config.Config) backend.Backend

func backendFactories() map[string]backendFactory {
	return map[string]backendFactory{
		"null": func(*config.Config) backend.Backend { return null.New() },
		"native3d": func(cfg *config.Config) backend.Backend {
			n := cfg.Voices.NumNormal + cfg.Voices.NumStreaming
			return native3d.New(n, 0)
		},
		"softmix": func(cfg *config.Config) backend.Backend {
			n := cfg.Voices.NumNormal + cfg.Voices.NumStreaming
			return softmix.New(44100, 4096, n)
		},
	}
}

// New constructs and starts the engine: selects a backend from
// cfg.Backends.Priority (falling back to Null), opens it, builds the
// voice pools, and starts the dispatcher worker and streaming pump
// goroutines. This realizes spec.md §6's Init command; it runs
// synchronously because every other command depends on a selected
// backend existing (an Open Question resolved in DESIGN.md).
func New(cfg *config.Config, decoder Decoder, sink diag.Sink) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if sink == nil {
		sink = diag.NewStdSink(cfg.Debug, cfg.Diag.LogIndentUnit)
	}

	factories := backendFactories()
	var selected backend.Backend
	var selectedName string

	priority := append(append([]string{}, cfg.Backends.Priority...), "null")
	for _, name := range priority {
		factory, ok := factories[name]
		if !ok {
			continue
		}
		candidate := factory(cfg)
		if !candidate.IsSupported() {
			sink.Log(diag.Message, "BACKEND", 0, "%q not supported, skipping", name)
			continue
		}
		if err := candidate.Open(); err != nil {
			sink.Log(diag.Error, "BACKEND", 0, "%q open failed: %v", name, err)
			continue
		}
		selected = candidate
		selectedName = name
		break
	}
	if selected == nil {
		selected = null.New()
		_ = selected.Open()
		selectedName = "null"
	}
	sink.Log(diag.Important, "BACKEND", 0, "selected backend %q", selectedName)

	e := &Engine{
		cfg:         cfg,
		sink:        sink,
		listener:    geometry.NewListener(),
		master:      geometry.Clamp01(float32(cfg.Audio.MasterGain)),
		be:          selected,
		backendName: selectedName,
	}

	maxClip := 0
	if selectedName == "softmix" {
		maxClip = cfg.Clips.MaxClipBytes
	}
	e.cache = clipcache.New(decoder, maxClip)
	e.reg = registry.New(&e.listener, &e.master)
	e.voices = voice.Build(selected, cfg.Voices.NumNormal, cfg.Voices.NumStreaming)
	e.pump = stream.New(selected, stream.Config{
		NumStreamBuffers:  cfg.Streaming.NumStreamBuffers,
		StreamBufferBytes: cfg.Streaming.StreamBufferBytes,
	}, sink)
	e.disp = dispatcher.New(e.reg, e.cache, e.voices, selected, e.pump, sink, cfg.ReapInterval)

	selected.SetMasterGain(e.master)
	e.pump.Start()
	e.disp.Start()

	return e, nil
}

// BackendName reports which backend Init actually selected.
func (e *Engine) BackendName() string { return e.backendName }

// Shutdown sets the dying flag, stops both worker goroutines (waiting up
// to 5s each per spec.md §5), and closes the backend. Partial failures
// are logged and ignored; shutdown never panics.
func (e *Engine) Shutdown() {
	atomic.StoreInt32(&e.dying, 1)

	if ok := e.disp.Stop(5 * time.Second); !ok {
		e.sink.Log(diag.Error, "DISPATCH", 0, "worker did not exit within 5s; proceeding")
	}
	if ok := e.pump.Stop(5 * time.Second); !ok {
		e.sink.Log(diag.Error, "STREAM", 0, "pump did not exit within 5s; proceeding")
	}
	if err := e.be.Close(); err != nil {
		e.sink.Log(diag.Error, "BACKEND", 0, "close: %v", err)
	}
}

// Stats returns a point-in-time metrics snapshot (SPEC_FULL §11).
func (e *Engine) Stats() Stats {
	normalInUse, streamInUse := 0, 0
	for i := 0; i < e.voices.Normal.Len(); i++ {
		if e.voices.Normal.LastSource(i) != "" {
			normalInUse++
		}
	}
	for i := 0; i < e.voices.Streaming.Len(); i++ {
		if e.voices.Streaming.LastSource(i) != "" {
			streamInUse++
		}
	}
	return Stats{
		NormalVoicesInUse:    normalInUse,
		StreamingVoicesInUse: streamInUse,
		SourcesRegistered:    e.reg.Len(),
		VoicesEvicted:        e.disp.EvictedCount(),
		VoicesExhausted:      e.disp.ExhaustedCount(),
		CommandsProcessed:    atomic.LoadUint64(&e.commandsEnqued),
	}
}

func (e *Engine) enqueue(cmd dispatcher.Command) {
	if atomic.LoadInt32(&e.dying) == 1 {
		return
	}
	atomic.AddUint64(&e.commandsEnqued, 1)
	e.disp.Enqueue(cmd)
}

// ErrEmptyName is returned synchronously (not via the queue) by any
// facade method given an empty source name, matching spec.md §7's
// InvalidArgument kind and "Facade command enqueues never fail
// synchronously (except misuse: empty sname)".
var ErrEmptyName = fmt.Errorf("engine: source name must not be empty")
