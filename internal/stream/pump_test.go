package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adkarpov/sona3d/internal/backend"
	"github.com/adkarpov/sona3d/internal/clipcache"
	"github.com/adkarpov/sona3d/internal/diag"
	"github.com/adkarpov/sona3d/internal/geometry"
	"github.com/adkarpov/sona3d/internal/registry"
)

// fakeBackend implements just the methods tick/refillOne/preload touch,
// embedding a nil backend.Backend so the rest of the interface panics
// loudly if the pump ever calls something unexpected.
type fakeBackend struct {
	backend.Backend

	processed map[backend.Voice]int
	queued    [][]byte
	queueErr  error
	playing   map[backend.Voice]bool
	reset     int
	preloaded [][][]byte
	played    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		processed: map[backend.Voice]int{},
		playing:   map[backend.Voice]bool{},
	}
}

func (f *fakeBackend) BuffersProcessed(v backend.Voice) int { return f.processed[v] }
func (f *fakeBackend) IsPlaying(v backend.Voice) bool        { return f.playing[v] }

func (f *fakeBackend) Queue(v backend.Voice, chunk []byte) error {
	if f.queueErr != nil {
		return f.queueErr
	}
	f.queued = append(f.queued, chunk)
	return nil
}

func (f *fakeBackend) ResetStream(v backend.Voice, format clipcache.ClipFormat) error {
	f.reset++
	return nil
}

func (f *fakeBackend) Preload(v backend.Voice, chunks [][]byte) (bool, error) {
	f.preloaded = append(f.preloaded, chunks)
	return len(chunks) == 0, nil
}

func (f *fakeBackend) Play(v backend.Voice) { f.played++ }

func newTestSource(t *testing.T, name string, clipLen int) (*registry.Registry, *registry.Source) {
	t.Helper()
	l := geometry.NewListener()
	master := float32(1.0)
	reg := registry.New(&l, &master)
	s, err := reg.Create(registry.NewSourceParams{Name: name, Streaming: true, SourceVolume: 1})
	require.NoError(t, err)

	s.Clip = &clipcache.Clip{
		Format: clipcache.ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16},
		Bytes:  make([]byte, clipLen),
	}
	s.HasVoice = true
	s.Voice = backend.Voice(1)
	s.SetState(registry.Playing)
	s.SetActive(true)
	return reg, s
}

func newTestPump(b backend.Backend) *Pump {
	return New(b, Config{NumStreamBuffers: 2, StreamBufferBytes: 16}, diag.Nop{})
}

func TestTickRefillsByProcessedCount(t *testing.T) {
	fb := newFakeBackend()
	fb.processed[backend.Voice(1)] = 2
	_, s := newTestSource(t, "A", 1000)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	p.tick()

	require.Len(t, fb.queued, 2)
	require.Equal(t, uint64(32), s.StreamCursor())
}

func TestTickDropsStoppedSource(t *testing.T) {
	fb := newFakeBackend()
	_, s := newTestSource(t, "A", 1000)
	s.SetState(registry.Stopped)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	p.tick()

	require.NotContains(t, p.watch, s)
}

func TestTickMarksPendingPlayWhenInactiveAndLooping(t *testing.T) {
	fb := newFakeBackend()
	reg, s := newTestSource(t, "A", 1000)
	reg.SetLooping(s, true)
	s.SetActive(false)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	p.tick()

	require.True(t, s.PendingPlay())
	require.NotContains(t, p.watch, s)
}

func TestTickSkipsPausedSource(t *testing.T) {
	fb := newFakeBackend()
	fb.processed[backend.Voice(1)] = 5
	_, s := newTestSource(t, "A", 1000)
	s.SetState(registry.Paused)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	p.tick()

	require.Empty(t, fb.queued)
	require.Contains(t, p.watch, s, "a paused source stays on the watch list")
}

func TestTickRunsPreloadWhenPending(t *testing.T) {
	fb := newFakeBackend()
	_, s := newTestSource(t, "A", 40)
	s.SetPendingPreload(true)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	p.tick()

	require.Equal(t, 1, fb.reset)
	require.Len(t, fb.preloaded, 1)
	require.Len(t, fb.preloaded[0], 2, "NumStreamBuffers chunks are submitted up front")
	require.False(t, s.PendingPreload())
	require.Equal(t, 1, fb.played, "the voice is kicked back into playback once it has data")
}

// Zero-length clip boundary, through the real tick() path: the preload
// queues nothing, so BuffersProcessed would never tick this source into
// refillOne — preload itself must apply the EOS transition and remove
// the source on the first iteration.
func TestTickDropsZeroLengthNonLoopingSourceOnPreload(t *testing.T) {
	fb := newFakeBackend()
	_, s := newTestSource(t, "A", 0)
	s.SetPendingPreload(true)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	p.tick()

	require.NotContains(t, p.watch, s)
	require.False(t, s.PendingPreload())
	require.Zero(t, fb.played, "an empty voice is not kicked back into playback")
}

func TestTickKeepsZeroLengthLoopingSourcePendingPreload(t *testing.T) {
	fb := newFakeBackend()
	reg, s := newTestSource(t, "A", 0)
	reg.SetLooping(s, true)
	s.SetPendingPreload(true)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	p.tick()

	require.Contains(t, p.watch, s)
	require.True(t, s.PendingPreload())
}

func TestRefillOneReachesEOSAndStopsNonLoopingIdleSource(t *testing.T) {
	fb := newFakeBackend()
	_, s := newTestSource(t, "A", 0) // zero-length clip: immediately exhausted
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	ok := p.refillOne(s, false)

	require.False(t, ok)
	require.NotContains(t, p.watch, s, "EOS + not looping + backend reports not playing removes the source")
}

func TestRefillOneLoopingSetsPendingPreloadAtEOS(t *testing.T) {
	fb := newFakeBackend()
	_, s := newTestSource(t, "A", 0)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	ok := p.refillOne(s, true)

	require.False(t, ok)
	require.True(t, s.PendingPreload())
	require.Contains(t, p.watch, s, "a looping source is kept on the watch list pending its preload")
}

func TestRefillOneDropsSourceOnQueueError(t *testing.T) {
	fb := newFakeBackend()
	fb.queueErr = errors.New("backend full")
	_, s := newTestSource(t, "A", 1000)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	ok := p.refillOne(s, false)

	require.False(t, ok)
	require.NotContains(t, p.watch, s)
}

func TestWatchStopsOtherSourceOnSameVoice(t *testing.T) {
	fb := newFakeBackend()
	_, a := newTestSource(t, "A", 1000)
	_, b := newTestSource(t, "B", 1000)
	b.HasVoice = true
	b.Voice = a.Voice

	p := newTestPump(fb)
	var stoppedVoice backend.Voice
	var exceptSeen *registry.Source
	p.Watch(b, func(v backend.Voice, except *registry.Source) {
		stoppedVoice = v
		exceptSeen = except
	})

	require.Equal(t, a.Voice, stoppedVoice)
	require.Equal(t, b, exceptSeen)
	require.Contains(t, p.watch, b)
}

func TestUnwatchRemovesSource(t *testing.T) {
	fb := newFakeBackend()
	_, s := newTestSource(t, "A", 1000)
	p := newTestPump(fb)
	p.watch[s] = struct{}{}

	p.Unwatch(s)

	require.NotContains(t, p.watch, s)
}

func TestStopReturnsTrueWhenRunExitsInTime(t *testing.T) {
	fb := newFakeBackend()
	p := newTestPump(fb)
	p.Start()

	require.True(t, p.Stop(time.Second))
}
