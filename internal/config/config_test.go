package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultPopulatesSpecDefaults(t *testing.T) {
	cfg := Default()

	require.Equal(t, 28, cfg.Voices.NumNormal)
	require.Equal(t, 4, cfg.Voices.NumStreaming)
	require.Equal(t, 1.0, cfg.Audio.MasterGain)
	require.Equal(t, "inverse_rolloff", cfg.Audio.DefaultAttenuation)
	require.Equal(t, 131072, cfg.Streaming.StreamBufferBytes)
	require.Equal(t, 2, cfg.Streaming.NumStreamBuffers)
	require.Equal(t, []string{"native3d", "softmix"}, cfg.Backends.Priority)
	require.Equal(t, 0.3, cfg.Search.FuzzyThreshold)
	require.Equal(t, 2, cfg.Diag.LogIndentUnit)
	require.Equal(t, 10*time.Second, cfg.ReapInterval)
}

func TestLoadEmptyPathSkipsFileLookup(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().Voices, cfg.Voices)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/to/sona3d.yaml")
	require.NoError(t, err)
	require.Equal(t, 28, cfg.Voices.NumNormal)
}

func TestEnvOverrideWinsOverDefault(t *testing.T) {
	t.Setenv("SONA3D_VOICES_NUM_NORMAL_VOICES", "5")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Voices.NumNormal)
}
