// Package stream implements the streaming pump (spec.md §4.6, C6): a
// single worker that refills per-voice PCM queues for streaming sources
// and handles end-of-stream/loop transitions. It mirrors the teacher's
// SyncManager idiom in internal/storage/sync.go — a stop channel plus a
// ticker driving a select loop — rather than a bare sync.Cond, so the
// "sleep until woken or N ms elapsed" requirement reads as ordinary Go.
package stream

import (
	"sync"
	"time"

	"github.com/adkarpov/sona3d/internal/backend"
	"github.com/adkarpov/sona3d/internal/diag"
	"github.com/adkarpov/sona3d/internal/registry"
)

// DefaultNumBuffers and DefaultBufferBytes are spec.md §4.6/§6's defaults.
const (
	DefaultNumBuffers  = 2
	DefaultBufferBytes = 131072
	tickInterval       = 20 * time.Millisecond
)

// Config tunes the pump's chunking (spec.md §6).
type Config struct {
	NumStreamBuffers  int
	StreamBufferBytes int
}

// Pump is the streaming pump. It holds a watch list of Source references
// for currently streaming, active sources and refills their voice queues
// every tick.
type Pump struct {
	cfg     Config
	backend backend.Backend
	sink    diag.Sink

	watchMu sync.Mutex
	watch   map[*registry.Source]struct{}

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New creates a Pump driving b. cfg's zero values fall back to spec.md's
// defaults.
func New(b backend.Backend, cfg Config, sink diag.Sink) *Pump {
	if cfg.NumStreamBuffers <= 0 {
		cfg.NumStreamBuffers = DefaultNumBuffers
	}
	if cfg.StreamBufferBytes <= 0 {
		cfg.StreamBufferBytes = DefaultBufferBytes
	}
	if sink == nil {
		sink = diag.Nop{}
	}
	return &Pump{
		cfg:     cfg,
		backend: b,
		sink:    sink,
		watch:   make(map[*registry.Source]struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the pump's goroutine.
func (p *Pump) Start() {
	go p.run()
}

// Stop signals the pump to exit and waits for it, up to timeout. Returns
// false if the pump did not exit in time (spec.md §5: "best-effort
// resource release" on shutdown timeout).
func (p *Pump) Stop(timeout time.Duration) bool {
	close(p.stop)
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Watch inserts s into the watch list, stopping any other source
// currently bound to the same voice first (spec.md §4.6: "watch(S)...
// inserts S after stopping any other source currently bound to the same
// voice"). The initial preload runs on the next tick if the caller has
// set the source's pending_preload flag.
func (p *Pump) Watch(s *registry.Source, others func(voice backend.Voice, except *registry.Source)) {
	if others != nil && s.HasVoice {
		others(s.Voice, s)
	}
	p.watchMu.Lock()
	p.watch[s] = struct{}{}
	p.watchMu.Unlock()
	p.wakeUp()
}

// Unwatch removes s from the watch list (e.g. on Stop/RemoveSource).
func (p *Pump) Unwatch(s *registry.Source) {
	p.watchMu.Lock()
	delete(p.watch, s)
	p.watchMu.Unlock()
}

func (p *Pump) wakeUp() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pump) empty() bool {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	return len(p.watch) == 0
}

func (p *Pump) run() {
	defer close(p.done)
	for {
		var timeout <-chan time.Time
		if !p.empty() {
			timeout = time.After(tickInterval)
		}
		select {
		case <-p.stop:
			return
		case <-p.wake:
		case <-timeout:
		}
		p.tick()
	}
}

// tick implements spec.md §4.6's pseudocode verbatim: one pass over the
// watch list, refilling each source's voice queue by however many
// buffers the backend reports processed since the last tick.
func (p *Pump) tick() {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()

	for s := range p.watch {
		active, looping, state := s.Snapshot()

		if state == registry.Stopped {
			delete(p.watch, s)
			continue
		}
		if !active {
			if looping {
				s.SetPendingPlay(true)
			}
			delete(p.watch, s)
			continue
		}
		if state == registry.Paused {
			continue
		}
		if s.PendingPreload() {
			p.preload(s, looping)
			continue
		}
		if !s.HasVoice || s.Clip == nil {
			continue
		}

		processed := p.backend.BuffersProcessed(s.Voice)
		for i := 0; i < processed; i++ {
			if !p.refillOne(s, looping) {
				break
			}
		}
	}
}

// refillOne queues at most one chunk_len slice for s and returns false if
// the loop over this source's remaining processed count should stop
// (EOS reached, looping or not, or the source was dropped).
func (p *Pump) refillOne(s *registry.Source, looping bool) bool {
	clip := s.Clip
	cursor := s.StreamCursor()
	remaining := clip.Len() - int64(cursor)

	if remaining <= 0 {
		if looping {
			s.SetPendingPreload(true)
		} else if !p.backend.IsPlaying(s.Voice) {
			delete(p.watch, s)
		}
		return false
	}

	chunkLen := int64(p.cfg.StreamBufferBytes)
	if remaining < chunkLen {
		chunkLen = remaining
	}
	chunk := clip.Bytes[cursor : int64(cursor)+chunkLen]
	if err := p.backend.Queue(s.Voice, chunk); err != nil {
		p.sink.Log(diag.Error, "STREAM", 0, "queue failed for %q: %v", s.Name, err)
		delete(p.watch, s)
		return false
	}
	s.SetStreamCursor(cursor + uint64(chunkLen))
	return true
}

// preload rewinds s's cursor and submits NumStreamBuffers chunks via
// backend.Preload, per spec.md §4.6's preload(S) definition.
func (p *Pump) preload(s *registry.Source, looping bool) {
	clip := s.Clip
	if clip == nil || !s.HasVoice {
		s.SetPendingPreload(false)
		return
	}

	s.SetStreamCursor(0)
	chunks := make([][]byte, 0, p.cfg.NumStreamBuffers)
	cursor := int64(0)
	for i := 0; i < p.cfg.NumStreamBuffers; i++ {
		remaining := clip.Len() - cursor
		if remaining <= 0 {
			break
		}
		chunkLen := int64(p.cfg.StreamBufferBytes)
		if remaining < chunkLen {
			chunkLen = remaining
		}
		chunks = append(chunks, clip.Bytes[cursor:cursor+chunkLen])
		cursor += chunkLen
	}

	if err := p.backend.ResetStream(s.Voice, clip.Format); err != nil {
		p.sink.Log(diag.Error, "STREAM", 0, "reset stream failed for %q: %v", s.Name, err)
	}
	eos, err := p.backend.Preload(s.Voice, chunks)
	if err != nil {
		p.sink.Log(diag.Error, "STREAM", 0, "preload failed for %q: %v", s.Name, err)
	}
	s.SetStreamCursor(uint64(cursor))
	s.SetPendingPreload(false)

	if eos {
		// Zero-length clip: nothing was queued, so BuffersProcessed will
		// never tick this source into refillOne. Apply refillOne's EOS
		// transition here instead.
		if looping {
			s.SetPendingPreload(true)
		} else if !p.backend.IsPlaying(s.Voice) {
			delete(p.watch, s)
		}
		return
	}

	// A voice that underran or was rewound has stopped on backends like
	// OpenAL; kick it again now that it has data.
	p.backend.Play(s.Voice)
}
