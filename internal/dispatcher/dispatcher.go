// Package dispatcher implements the command dispatcher (spec.md §4.7,
// C7): the serialized FIFO queue and its worker goroutine, which is the
// only thread allowed to mutate registry.Source fields wholesale. The
// worker idiom (stop channel + ticker-driven select, instead of a bare
// sync.Cond) is grounded on the teacher's SyncManager in
// internal/storage/sync.go.
package dispatcher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/adkarpov/sona3d/internal/backend"
	"github.com/adkarpov/sona3d/internal/clipcache"
	"github.com/adkarpov/sona3d/internal/diag"
	"github.com/adkarpov/sona3d/internal/geometry"
	"github.com/adkarpov/sona3d/internal/registry"
	"github.com/adkarpov/sona3d/internal/stream"
	"github.com/adkarpov/sona3d/internal/voice"
)

// voicePollInterval bounds how quickly a naturally-finished voice's
// PlaybackState catches up with the backend's own completion signal.
// minPlayGuard keeps a just-issued Play from being mistaken for
// completion before the backend has had a chance to actually start it,
// the same guard the teacher's shouldTriggerFinished applies via
// minPlayTime in internal/audio/player.go.
const (
	voicePollInterval = 20 * time.Millisecond
	minPlayGuard      = 50 * time.Millisecond
)

// Dispatcher owns the command queue and the worker that drains it.
type Dispatcher struct {
	mu    sync.Mutex
	queue []Command
	wake  chan struct{}
	stop  chan struct{}
	done  chan struct{}

	reg    *registry.Registry
	cache  *clipcache.Cache
	voices *voice.VoicePool
	be     backend.Backend
	pump   *stream.Pump
	sink   diag.Sink

	reapInterval time.Duration
	lastReap     time.Time

	evictedCount   uint64
	exhaustedCount uint64

	errMu    sync.RWMutex
	lastErrs map[string]string
}

// EvictedCount reports how many times allocateAndPlay has taken a voice
// from a source that was still Playing to satisfy a new Play (SPEC_FULL
// §11's dropped/evicted counter). Reclaiming a slot whose source had
// already finished is not counted.
func (d *Dispatcher) EvictedCount() uint64 { return atomic.LoadUint64(&d.evictedCount) }

// ExhaustedCount reports how many times allocateAndPlay found every slot
// in a voice pool ineligible and gave up (SPEC_FULL §11's exhausted
// counter).
func (d *Dispatcher) ExhaustedCount() uint64 { return atomic.LoadUint64(&d.exhaustedCount) }

// LastError returns the most recent worker-side failure recorded for
// name (voice exhaustion, attach/decode errors), for diagnosing why a
// Play quietly went nowhere. Cleared once the source starts cleanly.
func (d *Dispatcher) LastError(name string) (string, bool) {
	d.errMu.RLock()
	defer d.errMu.RUnlock()
	msg, ok := d.lastErrs[name]
	return msg, ok
}

func (d *Dispatcher) noteError(name, msg string) {
	d.errMu.Lock()
	d.lastErrs[name] = msg
	d.errMu.Unlock()
}

func (d *Dispatcher) clearError(name string) {
	d.errMu.Lock()
	delete(d.lastErrs, name)
	d.errMu.Unlock()
}

// New creates a Dispatcher wired to the already-initialized collaborators
// (registry, clip cache, voice pool, backend, streaming pump). reapInterval
// <= 0 falls back to spec.md's 10s default.
func New(reg *registry.Registry, cache *clipcache.Cache, voices *voice.VoicePool, be backend.Backend, pump *stream.Pump, sink diag.Sink, reapInterval time.Duration) *Dispatcher {
	if reapInterval <= 0 {
		reapInterval = 10 * time.Second
	}
	if sink == nil {
		sink = diag.Nop{}
	}
	return &Dispatcher{
		reg:          reg,
		cache:        cache,
		voices:       voices,
		be:           be,
		pump:         pump,
		sink:         sink,
		reapInterval: reapInterval,
		lastErrs:     make(map[string]string),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		lastReap:     time.Now(),
	}
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop signals the worker to exit after draining whatever is already
// queued, waiting up to timeout. Returns false on timeout (spec.md §5:
// shutdown "proceeds with best-effort resource release").
func (d *Dispatcher) Stop(timeout time.Duration) bool {
	close(d.stop)
	select {
	case <-d.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Enqueue appends cmd to the FIFO and wakes the worker. Safe for
// concurrent callers; commands from one caller are processed in the order
// they were enqueued (spec.md §5).
func (d *Dispatcher) Enqueue(cmd Command) {
	d.mu.Lock()
	d.queue = append(d.queue, cmd)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.reapInterval)
	defer ticker.Stop()
	pollTicker := time.NewTicker(voicePollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-d.stop:
			d.drain()
			return
		case <-d.wake:
		case <-ticker.C:
		case <-pollTicker.C:
			d.pollVoiceCompletion()
			continue
		}
		d.drain()
		d.maybeReap()
	}
}

// pollVoiceCompletion implements the natural-completion half of spec.md
// §3's eviction invariant, "eligible for eviction iff !priority ||
// !voice.is_playing()": a voice that stops producing sound on its own
// (a one-shot clip ending, a stream reaching EOS) must flip its Source
// back to Stopped, not only a voice that was explicitly commanded to
// stop. Runs solely on the dispatcher worker goroutine so State stays
// single-writer, per this package's doc comment. Grounded on the
// teacher's shouldTriggerFinished/finishedCallback in
// internal/audio/player.go, generalized from one Player's done channel to
// a poll over every voice-holding Source.
func (d *Dispatcher) pollVoiceCompletion() {
	var finished []*registry.Source
	d.reg.ForEach(func(s *registry.Source) {
		// Looping sources (one-shot or streaming) never reach natural
		// completion by design: a well-behaved backend keeps IsPlaying
		// true for them indefinitely, so they are excluded rather than
		// trusting a backend whose IsPlaying can't distinguish "looping"
		// from "finished" (e.g. Null).
		if s.State != registry.Playing || !s.HasVoice || s.Looping {
			return
		}
		if s.PlayElapsed() < minPlayGuard {
			return
		}
		if !d.be.IsPlaying(s.Voice) {
			finished = append(finished, s)
		}
	})
	for _, s := range finished {
		s.SetState(registry.Stopped)
	}
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, cmd := range batch {
		d.handle(cmd)
	}
}

func (d *Dispatcher) maybeReap() {
	if time.Since(d.lastReap) < d.reapInterval {
		return
	}
	d.lastReap = time.Now()
	d.pollVoiceCompletion()

	var dead []string
	d.reg.ForEach(func(s *registry.Source) {
		if s.Temporary && !s.Playing() && !s.PendingPlay() {
			dead = append(dead, s.Name)
		}
	})
	for _, name := range dead {
		if s, ok := d.reg.Get(name); ok {
			d.releaseSource(s)
		}
		d.reg.Remove(name)
		d.clearError(name)
		d.sink.Log(diag.Message, "DISPATCH", 1, "reaped temporary source %q", name)
	}
}

func (d *Dispatcher) handle(cmd Command) {
	switch cmd.Kind {
	case LoadSound:
		d.handleLoadSound(cmd.ID, cmd.SName)
	case UnloadSound:
		d.cache.Unload(cmd.SName)
	case NewSource:
		d.handleNewSource(cmd.ID, cmd.SName, cmd.NewSource, false)
	case QuickPlay:
		d.handleNewSource(cmd.ID, cmd.SName, cmd.NewSource, true)
	case SetPosition:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) {
			d.reg.SetPosition(s, cmd.Vec3)
			d.pushPosition(s)
			d.pushGainPan(s)
		})
	case SetVolume, SetGain:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) {
			d.reg.SetVolume(s, cmd.F)
			d.pushGainPan(s)
		})
	case SetPriority:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) { d.reg.SetPriority(s, cmd.B) })
	case SetLooping:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) {
			d.reg.SetLooping(s, cmd.B)
			d.pushPosition(s)
		})
	case SetAttenuation:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) {
			d.reg.SetAttenuation(s, cmd.Model)
			d.pushGainPan(s)
		})
	case SetDistOrRoll:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) {
			d.reg.SetDistanceOrRolloff(s, cmd.F)
			d.pushGainPan(s)
			d.pushPosition(s)
		})
	case SetTemporary:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) { d.reg.SetTemporary(s, cmd.B) })
	case Play:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) { d.handlePlay(cmd.ID, s) })
	case Pause:
		d.withSource(cmd.ID, cmd.SName, d.handlePause)
	case Stop:
		d.withSource(cmd.ID, cmd.SName, d.handleStop)
	case Rewind:
		d.withSource(cmd.ID, cmd.SName, d.handleRewind)
	case Cull:
		d.withSource(cmd.ID, cmd.SName, d.handleCull)
	case Activate:
		d.withSource(cmd.ID, cmd.SName, d.handleActivate)
	case RemoveSource:
		d.withSource(cmd.ID, cmd.SName, func(s *registry.Source) {
			d.releaseSource(s)
			d.reg.Remove(s.Name)
			d.clearError(s.Name)
		})
	case MoveListener:
		d.reg.MoveListener(cmd.Vec3)
		d.pushListener()
	case SetListenerPosition:
		d.reg.SetListenerPosition(cmd.Vec3)
		d.pushListener()
	case TurnListener:
		d.reg.TurnListener(cmd.Angle)
		d.pushListener()
	case SetListenerAngle:
		d.reg.SetListenerAngle(cmd.Angle)
		d.pushListener()
	case SetListenerOrientation:
		d.reg.SetListenerOrientation(cmd.LookAt, cmd.Up)
		d.pushListener()
	case SetMasterVolume:
		d.reg.SetMasterGain(cmd.F)
		d.be.SetMasterGain(geometry.Clamp01(cmd.F))
	}
}

// withSource looks up name and runs fn if present, else logs NotFound at
// error severity, tagged with the originating command's id so the record
// can be correlated with whatever enqueued it (spec.md §7 propagation
// policy: "every command's failure is logged... and otherwise absorbed").
func (d *Dispatcher) withSource(id uuid.UUID, name string, fn func(*registry.Source)) {
	s, ok := d.reg.Get(name)
	if !ok {
		d.sink.Log(diag.Error, "DISPATCH", 1, "cmd %s: source %q not found", id, name)
		return
	}
	fn(s)
}

func (d *Dispatcher) handleLoadSound(id uuid.UUID, name string) {
	clip, err := d.cache.GetOrLoad(name)
	if err != nil {
		d.sink.Log(diag.Error, "DISPATCH", 1, "cmd %s: load_sound %q: %v", id, name, err)
		return
	}
	_ = clip
}

func (d *Dispatcher) handleNewSource(id uuid.UUID, name string, args NewSourceArgs, play bool) {
	vol := args.Volume
	if vol <= 0 {
		vol = 1.0
	}
	s, err := d.reg.Create(registry.NewSourceParams{
		Name:              name,
		Priority:          args.Priority,
		Streaming:         args.Streaming,
		Looping:           args.Looping,
		Temporary:         args.Temporary,
		ClipName:          args.ClipName,
		Position:          args.Position,
		Attenuation:       args.Attenuation,
		DistanceOrRolloff: args.DistOrRoll,
		SourceVolume:      vol,
	})
	if err != nil {
		d.sink.Log(diag.Error, "DISPATCH", 1, "cmd %s: new_source %q: %v", id, name, err)
		return
	}
	if args.ClipName != "" && !args.Streaming {
		clip, err := d.cache.GetOrLoad(args.ClipName)
		if err != nil {
			d.noteError(name, err.Error())
			d.sink.Log(diag.Error, "DISPATCH", 1, "cmd %s: new_source %q: decode %q: %v", id, name, args.ClipName, err)
		} else {
			s.Clip = d.cache.Trim(clip)
		}
	} else if args.ClipName != "" {
		if clip, err := d.cache.GetOrLoad(args.ClipName); err == nil {
			s.Clip = clip
		} else {
			d.noteError(name, err.Error())
			d.sink.Log(diag.Error, "DISPATCH", 1, "cmd %s: new_source %q: decode %q: %v", id, name, args.ClipName, err)
		}
	}
	if play {
		d.handlePlay(id, s)
	}
}

// handlePlay realizes spec.md §4.7's play column.
func (d *Dispatcher) handlePlay(id uuid.UUID, s *registry.Source) {
	switch s.State {
	case registry.Stopped:
		d.allocateAndPlay(id, s)
	case registry.Paused:
		if s.HasVoice {
			d.be.Play(s.Voice)
		}
		s.SetState(registry.Playing)
	case registry.Culled:
		if s.Looping {
			s.SetPendingPlay(true)
		}
	case registry.Playing:
		// no-op
	}
}

func (d *Dispatcher) allocateAndPlay(id uuid.UUID, s *registry.Source) {
	pool := d.voices.For(s.Streaming)
	idx, evicted, evictedName, ok := pool.Allocate(s.Name, d.sourceIsPlaying, d.sourceIsPriority)
	if !ok {
		atomic.AddUint64(&d.exhaustedCount, 1)
		d.noteError(s.Name, "voice exhausted")
		d.sink.Log(diag.Error, "VOICE", 1, "cmd %s: voice exhausted for %q (streaming=%v)", id, s.Name, s.Streaming)
		return
	}
	if evicted && evictedName != "" {
		if prev, ok := d.reg.Get(evictedName); ok {
			// Only a genuine steal counts as an eviction; quietly
			// reclaiming a slot whose source already finished does not.
			if prev.Playing() {
				atomic.AddUint64(&d.evictedCount, 1)
			}
			d.disconnectVoice(prev)
		}
	}

	handle := pool.Handle(idx)
	s.BindVoice(handle)
	// Whatever deferred play this source was waiting on is now satisfied;
	// a stale flag would keep the reaper away forever, and the previous
	// failure (if any) is no longer the latest word on this source.
	s.SetPendingPlay(false)
	d.clearError(s.Name)

	if s.Streaming {
		s.SetStreamCursor(0)
		s.SetPendingPreload(true)
		d.pump.Watch(s, d.stopOthersOnVoice)
	} else {
		if s.Clip == nil && s.ClipName != "" {
			if clip, err := d.cache.GetOrLoad(s.ClipName); err == nil {
				s.Clip = d.cache.Trim(clip)
			}
		}
		if err := d.be.AttachOneshot(handle, s.Clip); err != nil {
			d.noteError(s.Name, err.Error())
			d.sink.Log(diag.Error, "VOICE", 1, "cmd %s: attach_oneshot %q: %v", id, s.Name, err)
		}
	}

	d.pushPosition(s)
	d.pushGainPan(s)
	d.be.Play(handle)
	s.SetState(registry.Playing)
}

// stopOthersOnVoice is passed to pump.Watch so any other source currently
// watched on the same voice handle stops cleanly first (spec.md §4.6:
// "watch(S)... inserts S after stopping any other source currently bound
// to the same voice").
func (d *Dispatcher) stopOthersOnVoice(v backend.Voice, except *registry.Source) {
	d.reg.ForEach(func(other *registry.Source) {
		if other == except || !other.HasVoice || other.Voice != v {
			return
		}
		d.pump.Unwatch(other)
		other.SetState(registry.Stopped)
	})
}

// sourceIsPlaying backs the allocator's IsPlayingFunc (spec.md §4.5,
// whose eviction invariant is "!priority || !voice.is_playing()"):
// commanded Playing state alone isn't enough, since a voice can stop
// producing sound on its own without an explicit Stop ever landing. This
// self-heals the registry's view by checking the backend directly, so
// voice.Pool.Allocate can reclaim a just-finished slot immediately
// instead of waiting for the next pollVoiceCompletion tick.
func (d *Dispatcher) sourceIsPlaying(name string) bool {
	s, ok := d.reg.Get(name)
	if !ok || !s.Playing() {
		return false
	}
	if s.HasVoice && !s.Looping && s.PlayElapsed() >= minPlayGuard && !d.be.IsPlaying(s.Voice) {
		s.SetState(registry.Stopped)
		return false
	}
	return true
}

func (d *Dispatcher) sourceIsPriority(name string) bool {
	s, ok := d.reg.Get(name)
	return ok && s.Priority
}

// disconnectVoice implements spec.md §4.5's eviction: the voice is
// closed and unbound, but the Source entry itself survives.
func (d *Dispatcher) disconnectVoice(s *registry.Source) {
	if !s.HasVoice {
		return
	}
	d.be.CloseVoice(s.Voice)
	if s.Streaming {
		d.pump.Unwatch(s)
	}
	s.UnbindVoice()
	s.SetState(registry.Stopped)
}

func (d *Dispatcher) handlePause(s *registry.Source) {
	if s.State != registry.Playing {
		return
	}
	if s.HasVoice {
		d.be.Pause(s.Voice)
	}
	s.SetState(registry.Paused)
}

func (d *Dispatcher) handleStop(s *registry.Source) {
	if s.State != registry.Playing && s.State != registry.Paused {
		return
	}
	if s.HasVoice {
		d.be.Stop(s.Voice)
	}
	if s.Streaming {
		d.pump.Unwatch(s)
		s.SetStreamCursor(0)
	}
	s.SetState(registry.Stopped)
}

func (d *Dispatcher) handleRewind(s *registry.Source) {
	switch s.State {
	case registry.Playing:
		if s.HasVoice {
			d.be.Rewind(s.Voice)
		}
		if s.Streaming {
			s.SetStreamCursor(0)
			s.SetPendingPreload(true)
		}
	case registry.Paused:
		// Open question resolved in DESIGN.md's Open Question decisions:
		// paused streaming rewind matches the one-shot branch and goes to
		// Stopped.
		if s.HasVoice {
			d.be.Stop(s.Voice)
		}
		if s.Streaming {
			d.pump.Unwatch(s)
			s.SetStreamCursor(0)
		}
		s.SetState(registry.Stopped)
	}
}

// handleCull implements the Glossary's "a culled source releases its
// voice but keeps its attributes": it always disconnects whatever voice
// the source holds, regardless of which row of spec.md §4.7's table it
// came from.
func (d *Dispatcher) handleCull(s *registry.Source) {
	if s.State == registry.Culled {
		return
	}
	if s.HasVoice {
		if s.Looping && (s.State == registry.Playing || s.State == registry.Paused) {
			s.SetPendingPlay(true)
		}
		d.disconnectVoice(s)
	}
	s.SetState(registry.Culled)
	s.SetActive(false)
}

func (d *Dispatcher) handleActivate(s *registry.Source) {
	if s.State != registry.Culled {
		return
	}
	s.SetState(registry.Stopped)
	s.SetActive(true)
}

// releaseSource tears down whatever a source is currently holding,
// used by RemoveSource and the temporary reaper.
func (d *Dispatcher) releaseSource(s *registry.Source) {
	if s.HasVoice {
		d.disconnectVoice(s)
	} else if s.Streaming {
		d.pump.Unwatch(s)
	}
}

func (d *Dispatcher) pushPosition(s *registry.Source) {
	if !s.HasVoice {
		return
	}
	d.be.Set3D(s.Voice, s.Position, s.DistanceOrRolloff, s.Looping)
}

func (d *Dispatcher) pushGainPan(s *registry.Source) {
	if !s.HasVoice {
		return
	}
	d.be.SetGain(s.Voice, s.ComputedGain)
	d.be.SetPan(s.Voice, d.reg.Pan(s))
}

func (d *Dispatcher) pushListener() {
	pos, look, up := d.reg.Listener()
	d.be.SetListener(pos, look, up)
}

// NewCommand constructs a zero-value Command of kind k. Exposed so
// pkg/engine doesn't need to reach into this package's internals beyond
// the Kind constants and field names.
func NewCommand(k Kind) Command { return newCmd(k) }
