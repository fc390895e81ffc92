package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adkarpov/sona3d/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Backends.Priority = []string{"null"} // deterministic backend selection in tests
	cfg.Voices.NumNormal = 2
	cfg.Voices.NumStreaming = 1
	cfg.ReapInterval = time.Hour
	return cfg
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		return ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}, make([]byte, 4096), nil
	})
	e, err := New(testConfig(), dec, nil)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return e
}

func TestNewSelectsNullBackendByConfiguredPriority(t *testing.T) {
	e := testEngine(t)
	require.Equal(t, "null", e.BackendName())
}

func TestNewSourceEmptyNameFailsSynchronously(t *testing.T) {
	e := testEngine(t)
	require.ErrorIs(t, e.NewSource("", NewSourceParams{}), ErrEmptyName)
	require.ErrorIs(t, e.Play(""), ErrEmptyName)
	require.ErrorIs(t, e.SetPosition("", Vec3{}), ErrEmptyName)
}

func TestQuickPlayThenPlayingQuery(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.QuickPlay("a", NewSourceParams{ClipName: "clip.wav", Volume: 1}))

	require.Eventually(t, func() bool {
		return e.Playing("a")
	}, time.Second, time.Millisecond)
}

func TestGetVolumeAndComputedGainRoundTrip(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.NewSource("a", NewSourceParams{ClipName: "clip.wav", Volume: 0.5}))

	require.Eventually(t, func() bool {
		v, ok := e.GetVolume("a")
		return ok && v == 0.5
	}, time.Second, time.Millisecond)

	g, ok := e.ComputedGain("a")
	require.True(t, ok)
	require.GreaterOrEqual(t, g, float32(0))
}

func TestListSourcesAndRemoveSource(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.NewSource("a", NewSourceParams{ClipName: "clip.wav", Volume: 1}))
	require.NoError(t, e.NewSource("b", NewSourceParams{ClipName: "clip.wav", Volume: 1}))

	require.Eventually(t, func() bool { return len(e.ListSources()) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, e.RemoveSource("a"))
	require.Eventually(t, func() bool { return len(e.ListSources()) == 1 }, time.Second, time.Millisecond)
}

func TestFindSourcesFuzzyMatchesRegisteredNames(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.NewSource("explosion_near", NewSourceParams{ClipName: "clip.wav", Volume: 1}))
	require.NoError(t, e.NewSource("footstep", NewSourceParams{ClipName: "clip.wav", Volume: 1}))

	require.Eventually(t, func() bool { return len(e.ListSources()) == 2 }, time.Second, time.Millisecond)

	got := e.FindSources("explosion")
	require.Contains(t, got, "explosion_near")
	require.NotContains(t, got, "footstep")
}

func TestFindSourcesEmptyQueryReturnsNil(t *testing.T) {
	e := testEngine(t)
	require.Nil(t, e.FindSources(""))
}

func TestNewSourceSubstitutesConfiguredAttenuationDefaults(t *testing.T) {
	e := testEngine(t)
	require.Equal(t, AttenuationInverseRolloff, e.DefaultAttenuation())

	// Linear with no distance falls back to default_fade_distance; an
	// explicit distance is left alone.
	p := e.applyDefaults(NewSourceParams{Attenuation: AttenuationLinear})
	require.Equal(t, float32(1000), p.DistanceOrRolloff)

	p = e.applyDefaults(NewSourceParams{Attenuation: AttenuationLinear, DistanceOrRolloff: 42})
	require.Equal(t, float32(42), p.DistanceOrRolloff)

	p = e.applyDefaults(NewSourceParams{Attenuation: AttenuationInverseRolloff})
	require.InDelta(t, 0.03, float64(p.DistanceOrRolloff), 1e-6)

	p = e.applyDefaults(NewSourceParams{Attenuation: AttenuationNone})
	require.Equal(t, float32(0), p.DistanceOrRolloff)
}

func TestListenerMoveAndOrientationRoundTrip(t *testing.T) {
	e := testEngine(t)
	e.SetListenerPosition(Vec3{X: 1, Y: 2, Z: 3})

	require.Eventually(t, func() bool {
		pos, _, _ := e.Listener()
		return pos == Vec3{X: 1, Y: 2, Z: 3}
	}, time.Second, time.Millisecond)

	e.SetListenerOrientation(Vec3{X: 0, Y: 0, Z: -5}, Vec3{X: 0, Y: 2, Z: 0})
	require.Eventually(t, func() bool {
		_, look, up := e.Listener()
		return look.Length() > 0.99 && look.Length() < 1.01 && up.Length() > 0.99 && up.Length() < 1.01
	}, time.Second, time.Millisecond)
}

func TestSetMasterVolumeZeroesGains(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.NewSource("a", NewSourceParams{ClipName: "clip.wav", Volume: 1}))
	require.Eventually(t, func() bool {
		_, ok := e.GetVolume("a")
		return ok
	}, time.Second, time.Millisecond)

	e.SetMasterVolume(0)
	require.Eventually(t, func() bool {
		g, _ := e.ComputedGain("a")
		return g == 0
	}, time.Second, time.Millisecond)
	require.Equal(t, float32(0), e.MasterVolume())
}

func TestStatsReflectsVoiceUsage(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.QuickPlay("a", NewSourceParams{ClipName: "clip.wav", Volume: 1}))

	require.Eventually(t, func() bool {
		return e.Stats().NormalVoicesInUse == 1
	}, time.Second, time.Millisecond)

	st := e.Stats()
	require.Equal(t, 1, st.SourcesRegistered)
}

// Scenario 3 (spec.md §8) surfaced through Stats: a non-priority voice
// stolen to satisfy a new Play increments VoicesEvicted.
func TestStatsCountsVoiceEviction(t *testing.T) {
	cfg := testConfig()
	cfg.Voices.NumNormal = 1
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		return ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}, make([]byte, 4096), nil
	})
	e, err := New(cfg, dec, nil)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)

	require.NoError(t, e.QuickPlay("a", NewSourceParams{ClipName: "clip.wav", Volume: 1}))
	require.Eventually(t, func() bool { return e.Playing("a") }, time.Second, time.Millisecond)

	require.NoError(t, e.QuickPlay("b", NewSourceParams{ClipName: "clip.wav", Volume: 1}))
	require.Eventually(t, func() bool { return e.Stats().VoicesEvicted == 1 }, time.Second, time.Millisecond)
}

// Scenario 4 (spec.md §8) surfaced through Stats: a priority, still-playing
// voice cannot be stolen, so the new Play is counted as exhausted rather
// than starting.
func TestStatsCountsVoiceExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.Voices.NumNormal = 1
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		return ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}, make([]byte, 4096), nil
	})
	e, err := New(cfg, dec, nil)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)

	require.NoError(t, e.QuickPlay("a", NewSourceParams{ClipName: "clip.wav", Volume: 1, Priority: true}))
	require.Eventually(t, func() bool { return e.Playing("a") }, time.Second, time.Millisecond)

	require.NoError(t, e.QuickPlay("b", NewSourceParams{ClipName: "clip.wav", Volume: 1}))
	require.Eventually(t, func() bool { return e.Stats().VoicesExhausted == 1 }, time.Second, time.Millisecond)
	require.False(t, e.Playing("b"))
}

// Voice exhaustion leaves a diagnosable trace behind the silent failure.
func TestLastErrorRecordsVoiceExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.Voices.NumNormal = 1
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		return ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}, make([]byte, 4096), nil
	})
	e, err := New(cfg, dec, nil)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)

	require.NoError(t, e.QuickPlay("a", NewSourceParams{ClipName: "clip.wav", Volume: 1, Priority: true}))
	require.Eventually(t, func() bool { return e.Playing("a") }, time.Second, time.Millisecond)

	require.NoError(t, e.QuickPlay("b", NewSourceParams{ClipName: "clip.wav", Volume: 1}))
	require.Eventually(t, func() bool {
		msg, ok := e.LastError("b")
		return ok && msg == "voice exhausted"
	}, time.Second, time.Millisecond)

	_, ok := e.LastError("a")
	require.False(t, ok, "a started cleanly and carries no error")
}

func TestShutdownStopsWorkersAndClosesBackend(t *testing.T) {
	dec := DecoderFunc(func(name string) (ClipFormat, []byte, error) {
		return ClipFormat{SampleRate: 44100, Channels: 1, BitsPerSample: 16}, make([]byte, 4096), nil
	})
	e, err := New(testConfig(), dec, nil)
	require.NoError(t, err)
	require.NoError(t, e.NewSource("a", NewSourceParams{ClipName: "clip.wav", Volume: 1}))
	e.Shutdown() // not registered with t.Cleanup: Shutdown is a one-shot, closing channels that would panic on a second close.
}
