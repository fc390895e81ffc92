// Package native3d implements spec.md's Native3D backend on top of
// OpenAL via g3n's audio/al binding (github.com/g3n/engine/audio/al).
// Gain, rolloff and position are pushed straight into OpenAL source
// attributes instead of being computed by the engine; pan is a no-op
// here, matching spec.md §4.1 ("backends with native 3D receive the raw
// position/orientation instead"). The streaming refill cadence mirrors
// g3n's own audio Player.run() loop (GenBuffers/BuffersProcessed/
// SourceQueueBuffers/SourceUnqueueBuffers around a fixed buffer ring).
package native3d

import (
	"sync"
	"unsafe"

	"github.com/adkarpov/sona3d/internal/backend"
	"github.com/adkarpov/sona3d/internal/clipcache"
	"github.com/adkarpov/sona3d/internal/geometry"
	"github.com/g3n/engine/audio/al"
)

const defaultRing = 4

type voiceState struct {
	kind    backend.Kind
	source  uint32
	buffers []uint32
	nextBuf int
	format  clipcache.ClipFormat
}

// Backend is the Native3D audio backend.
type Backend struct {
	mu        sync.Mutex
	opened    bool
	voices    map[backend.Voice]*voiceState
	nextVoice backend.Voice
	maxVoices int
	ringSize  int
}

// New returns a Native3D backend. maxVoices bounds how many voices
// CreateVoice will hand out (0 means unbounded); ringSize is the
// per-streaming-voice OpenAL buffer ring depth (0 uses a sane default).
func New(maxVoices, ringSize int) *Backend {
	if ringSize <= 0 {
		ringSize = defaultRing
	}
	return &Backend{
		voices:    make(map[backend.Voice]*voiceState),
		maxVoices: maxVoices,
		ringSize:  ringSize,
	}
}

func (b *Backend) Name() string { return "native3d" }

// IsSupported probes OpenAL by allocating and releasing a source. Any
// panic from the cgo binding (no device/context available) is treated
// as unsupported rather than propagated.
func (b *Backend) IsSupported() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	s := al.GenSource()
	al.DeleteSource(s)
	return true
}

func (b *Backend) Open() error {
	b.mu.Lock()
	b.opened = true
	b.mu.Unlock()
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, vs := range b.voices {
		al.SourceStop(vs.source)
		al.DeleteSource(vs.source)
		al.DeleteBuffers(vs.buffers)
	}
	b.voices = make(map[backend.Voice]*voiceState)
	b.opened = false
	return nil
}

func (b *Backend) CreateVoice(kind backend.Kind) (backend.Voice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxVoices > 0 && len(b.voices) >= b.maxVoices {
		return 0, false
	}

	ring := 1
	if kind == backend.Streaming {
		ring = b.ringSize
	}

	source := al.GenSource()
	buffers := al.GenBuffers(ring)

	b.nextVoice++
	v := b.nextVoice
	b.voices[v] = &voiceState{kind: kind, source: source, buffers: buffers}
	return v, true
}

func (b *Backend) voice(v backend.Voice) (*voiceState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vs, ok := b.voices[v]
	return vs, ok
}

func (b *Backend) unqueueProcessed(vs *voiceState) {
	processed := al.GetSourcei(vs.source, al.BuffersProcessed)
	if processed > 0 {
		al.SourceUnqueueBuffers(vs.source, uint32(processed), nil)
	}
}

func alFormat(f clipcache.ClipFormat) uint32 {
	switch {
	case f.Channels <= 1 && f.BitsPerSample == 8:
		return al.FormatMono8
	case f.Channels <= 1:
		return al.FormatMono16
	case f.BitsPerSample == 8:
		return al.FormatStereo8
	default:
		return al.FormatStereo16
	}
}

func (b *Backend) AttachOneshot(v backend.Voice, clip *clipcache.Clip) error {
	vs, ok := b.voice(v)
	if !ok {
		return backend.ErrUnsupported
	}
	if vs.kind != backend.Normal {
		return backend.ErrFormat
	}
	al.SourceStop(vs.source)
	b.unqueueProcessed(vs)
	if clip == nil || len(clip.Bytes) == 0 {
		return nil
	}
	al.BufferData(vs.buffers[0], alFormat(clip.Format), unsafe.Pointer(&clip.Bytes[0]), uint32(len(clip.Bytes)), uint32(clip.Format.SampleRate))
	al.SourceQueueBuffers(vs.source, vs.buffers[0])
	vs.format = clip.Format
	return nil
}

func (b *Backend) ResetStream(v backend.Voice, format clipcache.ClipFormat) error {
	vs, ok := b.voice(v)
	if !ok {
		return backend.ErrUnsupported
	}
	if vs.kind != backend.Streaming {
		return backend.ErrFormat
	}
	al.SourceStop(vs.source)
	b.unqueueProcessed(vs)
	vs.format = format
	vs.nextBuf = 0
	return nil
}

func (b *Backend) Preload(v backend.Voice, chunks [][]byte) (bool, error) {
	vs, ok := b.voice(v)
	if !ok {
		return false, backend.ErrUnsupported
	}
	for _, c := range chunks {
		if len(c) == 0 {
			continue
		}
		buf := vs.buffers[vs.nextBuf%len(vs.buffers)]
		al.BufferData(buf, alFormat(vs.format), unsafe.Pointer(&c[0]), uint32(len(c)), uint32(vs.format.SampleRate))
		al.SourceQueueBuffers(vs.source, buf)
		vs.nextBuf++
	}
	return len(chunks) == 0, nil
}

func (b *Backend) Queue(v backend.Voice, chunk []byte) error {
	vs, ok := b.voice(v)
	if !ok {
		return backend.ErrUnsupported
	}
	if len(chunk) == 0 {
		return nil
	}
	b.unqueueProcessed(vs)
	buf := vs.buffers[vs.nextBuf%len(vs.buffers)]
	al.BufferData(buf, alFormat(vs.format), unsafe.Pointer(&chunk[0]), uint32(len(chunk)), uint32(vs.format.SampleRate))
	al.SourceQueueBuffers(vs.source, buf)
	vs.nextBuf++
	return nil
}

func (b *Backend) BuffersProcessed(v backend.Voice) int {
	vs, ok := b.voice(v)
	if !ok {
		return 0
	}
	return int(al.GetSourcei(vs.source, al.BuffersProcessed))
}

func (b *Backend) Play(v backend.Voice) {
	if vs, ok := b.voice(v); ok {
		al.SourcePlay(vs.source)
	}
}

func (b *Backend) Pause(v backend.Voice) {
	if vs, ok := b.voice(v); ok {
		al.SourcePause(vs.source)
	}
}

func (b *Backend) Stop(v backend.Voice) {
	if vs, ok := b.voice(v); ok {
		al.SourceStop(vs.source)
	}
}

func (b *Backend) Rewind(v backend.Voice) {
	if vs, ok := b.voice(v); ok {
		wasPlaying := al.GetSourcei(vs.source, al.SourceState) == al.Playing
		al.SourceStop(vs.source)
		// A stopped OpenAL source restarts from the top on the next play;
		// a one-shot that was playing is restarted so it keeps playing.
		// Streaming voices are restarted by the pump after its preload.
		if wasPlaying && vs.kind == backend.Normal {
			al.SourcePlay(vs.source)
		}
	}
}

func (b *Backend) Flush(v backend.Voice) {
	vs, ok := b.voice(v)
	if !ok {
		return
	}
	al.SourceStop(vs.source)
	b.unqueueProcessed(vs)
	vs.nextBuf = 0
}

func (b *Backend) CloseVoice(v backend.Voice) {
	b.Flush(v)
}

func (b *Backend) IsPlaying(v backend.Voice) bool {
	vs, ok := b.voice(v)
	if !ok {
		return false
	}
	return al.GetSourcei(vs.source, al.SourceState) == al.Playing
}

func (b *Backend) SetGain(v backend.Voice, g float32) {
	if vs, ok := b.voice(v); ok {
		al.Sourcef(vs.source, al.Gain, g)
	}
}

// SetPan is a no-op: native 3D positioning supersedes stereo panning.
func (b *Backend) SetPan(_ backend.Voice, _ float32) {}

func (b *Backend) Set3D(v backend.Voice, pos geometry.Vec3, rolloff float32, looping bool) {
	vs, ok := b.voice(v)
	if !ok {
		return
	}
	al.Source3f(vs.source, al.Position, pos.X, pos.Y, pos.Z)
	al.Sourcef(vs.source, al.RolloffFactor, rolloff)
	loop := int32(0)
	if looping {
		loop = 1
	}
	al.Sourcei(vs.source, al.Looping, loop)
}

func (b *Backend) SetListener(pos, look, up geometry.Vec3) {
	al.Listener3f(al.Position, pos.X, pos.Y, pos.Z)
	al.Listenerfv(al.Orientation, []float32{look.X, look.Y, look.Z, up.X, up.Y, up.Z})
}

func (b *Backend) SetMasterGain(g float32) {
	al.Listenerf(al.Gain, g)
}

var _ backend.Backend = (*Backend)(nil)
