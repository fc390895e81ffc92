package softmix

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adkarpov/sona3d/internal/backend"
	"github.com/adkarpov/sona3d/internal/clipcache"
)

// These tests exercise the Backend's voice bookkeeping and streamer
// math directly, without calling Open/Close: those touch a real
// speaker.Init/speaker.Clear device singleton that isn't available in
// a test sandbox.

func TestCreateVoiceRespectsMaxVoices(t *testing.T) {
	b := New(44100, 512, 1)

	v1, ok := b.CreateVoice(backend.Normal)
	require.True(t, ok)

	_, ok = b.CreateVoice(backend.Normal)
	require.False(t, ok, "maxVoices must cap how many voices are handed out")

	require.NotZero(t, v1)
}

func TestCreateVoiceUnboundedWhenZero(t *testing.T) {
	b := New(44100, 512, 0)
	for i := 0; i < 10; i++ {
		_, ok := b.CreateVoice(backend.Normal)
		require.True(t, ok)
	}
}

func TestAttachOneshotNilClipSilencesVoice(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Normal)

	require.NoError(t, b.AttachOneshot(v, nil))
	require.False(t, b.IsPlaying(v))
}

// Zero-length clip boundary: Play on an empty one-shot completes
// immediately rather than latching IsPlaying true with no callback left
// to ever clear it.
func TestPlayEmptyOneshotNeverReportsPlaying(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Normal)

	require.NoError(t, b.AttachOneshot(v, nil))
	b.Play(v)
	require.False(t, b.IsPlaying(v))

	clip := &clipcache.Clip{
		Format: clipcache.ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16},
	}
	require.NoError(t, b.AttachOneshot(v, clip))
	b.Play(v)
	require.False(t, b.IsPlaying(v), "a zero-byte clip behaves like no clip at all")
}

func TestAttachOneshotRejectsStreamingVoice(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Streaming)

	clip := &clipcache.Clip{
		Format: clipcache.ClipFormat{SampleRate: 44100, Channels: 2, BitsPerSample: 16},
		Bytes:  []byte{0, 0, 0, 0},
	}
	err := b.AttachOneshot(v, clip)
	require.ErrorIs(t, err, backend.ErrFormat)
}

func TestAttachOneshotUnknownVoice(t *testing.T) {
	b := New(44100, 512, 0)
	err := b.AttachOneshot(backend.Voice(999), nil)
	require.ErrorIs(t, err, backend.ErrUnsupported)
}

func TestPlayStopTogglesIsPlaying(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Normal)

	clip := &clipcache.Clip{
		Format: clipcache.ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16},
		Bytes:  make([]byte, 64),
	}
	require.NoError(t, b.AttachOneshot(v, clip))

	b.Play(v)
	require.True(t, b.IsPlaying(v))

	b.Stop(v)
	require.False(t, b.IsPlaying(v))
}

func TestResetStreamRejectsNormalVoice(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Normal)

	err := b.ResetStream(v, clipcache.ClipFormat{SampleRate: 44100, Channels: 2, BitsPerSample: 16})
	require.ErrorIs(t, err, backend.ErrFormat)
}

func TestPreloadAndBuffersProcessedIsLossyCapAtOne(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Streaming)

	require.NoError(t, b.ResetStream(v, clipcache.ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}))

	eos, err := b.Preload(v, [][]byte{make([]byte, 8), make([]byte, 8)})
	require.NoError(t, err)
	require.False(t, eos)

	s, ok := b.slot(v)
	require.True(t, ok)

	// Drain both pending chunks directly through Stream, simulating what
	// the real-time callback would do.
	buf := make([][2]float64, 32)
	s.queue.Stream(buf)

	n := b.BuffersProcessed(v)
	require.LessOrEqual(t, n, 1, "BuffersProcessed never reports more than one, however many chunks actually drained")
}

func TestSetGainZeroSilencesWithoutPanic(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Normal)

	b.SetGain(v, 0)
	s, ok := b.slot(v)
	require.True(t, ok)
	require.True(t, s.volume.Silent)

	b.SetGain(v, 1)
	require.False(t, s.volume.Silent)
}

func TestSetPanClampsToUnitRange(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Normal)

	b.SetPan(v, 5)
	s, _ := b.slot(v)
	require.Equal(t, 1.0, s.pan.Pan)

	b.SetPan(v, -5)
	require.Equal(t, -1.0, s.pan.Pan)
}

func TestFlushClearsPendingQueue(t *testing.T) {
	b := New(44100, 512, 0)
	v, _ := b.CreateVoice(backend.Streaming)
	require.NoError(t, b.ResetStream(v, clipcache.ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}))
	require.NoError(t, b.Queue(v, make([]byte, 8)))

	b.Flush(v)

	s, _ := b.slot(v)
	buf := make([][2]float64, 4)
	n, ok := s.queue.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 4, n, "an empty queue still emits silence, it never reports exhausted")
}

func TestPanStreamerHardRightSilencesLeft(t *testing.T) {
	inner := &constStreamer{l: 1, r: 1}
	p := &panStreamer{Streamer: inner, Pan: 1}

	buf := make([][2]float64, 1)
	n, ok := p.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 1, n)
	require.Equal(t, 0.0, buf[0][0], "hard right pan silences the left channel")
	require.Equal(t, 1.0, buf[0][1])
}

type constStreamer struct{ l, r float64 }

func (c *constStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i] = [2]float64{c.l, c.r}
	}
	return len(samples), true
}

func (c *constStreamer) Err() error { return nil }
