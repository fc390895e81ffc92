// Package config holds the engine's static configuration: the
// viper-backed load path the teacher used for its own settings,
// generalized from music-player options to the engine options
// enumerated in spec.md §6.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Voices configures the fixed pool sizes (spec.md §6).
type Voices struct {
	NumNormal    int `mapstructure:"num_normal_voices"`
	NumStreaming int `mapstructure:"num_streaming_voices"`
}

// Audio configures the gain model defaults (spec.md §4.1, §6).
type Audio struct {
	MasterGain          float64 `mapstructure:"master_gain"`
	DefaultAttenuation  string  `mapstructure:"default_attenuation"` // "none"|"inverse_rolloff"|"linear"
	DefaultRolloff      float64 `mapstructure:"default_rolloff"`
	DefaultFadeDistance float64 `mapstructure:"default_fade_distance"`
}

// Streaming configures the pump's chunking (spec.md §4.6, §6).
type Streaming struct {
	StreamBufferBytes int `mapstructure:"stream_buffer_bytes"`
	NumStreamBuffers  int `mapstructure:"num_stream_buffers"`
}

// Clips configures the clip cache (spec.md §4.2, §6).
type Clips struct {
	MaxClipBytes  int `mapstructure:"max_clip_bytes"`
	FileChunkByte int `mapstructure:"file_chunk_bytes"`
}

// Backends lists the priority order Init tries when selecting a backend
// (spec.md §4.3).
type Backends struct {
	Priority []string `mapstructure:"priority"`
}

// Search tunes the FindSources fuzzy-lookup convenience (SPEC_FULL §9.5).
type Search struct {
	FuzzyThreshold float64 `mapstructure:"fuzzy_search_threshold"`
}

// Diag tunes the diagnostic logger (SPEC_FULL §9.2, §7).
type Diag struct {
	LogIndentUnit int `mapstructure:"log_indent_unit"`
}

// Config is the engine's full static configuration (SPEC_FULL §9.1).
type Config struct {
	Debug bool `mapstructure:"debug"`

	Voices    Voices    `mapstructure:"voices"`
	Audio     Audio     `mapstructure:"audio"`
	Streaming Streaming `mapstructure:"streaming"`
	Clips     Clips     `mapstructure:"clips"`
	Backends  Backends  `mapstructure:"backends"`
	Search    Search    `mapstructure:"search"`
	Diag      Diag      `mapstructure:"diag"`

	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// Load reads configPath (a YAML file) plus SONA3D_-prefixed environment
// overrides, falling back to the defaults from spec.md §6 when the file
// is absent. An empty configPath skips file lookup entirely and returns
// defaults plus any environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix("SONA3D")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			// An explicit path that simply doesn't exist falls back to
			// defaults; viper reports it as a plain os error, not its
			// ConfigFileNotFoundError (that one only covers search paths).
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every spec.md §6 default
// populated, skipping file lookup; SONA3D_ environment overrides still
// apply, as for Load(""). Used by tests and cmd/sonademo.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err) // defaults-only unmarshal never fails
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("voices.num_normal_voices", 28)
	v.SetDefault("voices.num_streaming_voices", 4)

	v.SetDefault("audio.master_gain", 1.0)
	v.SetDefault("audio.default_attenuation", "inverse_rolloff")
	v.SetDefault("audio.default_rolloff", 0.03)
	v.SetDefault("audio.default_fade_distance", 1000.0)

	v.SetDefault("streaming.stream_buffer_bytes", 131072)
	v.SetDefault("streaming.num_stream_buffers", 2)

	v.SetDefault("clips.max_clip_bytes", 268435456)
	v.SetDefault("clips.file_chunk_bytes", 1048576)

	v.SetDefault("backends.priority", []string{"native3d", "softmix"})

	v.SetDefault("search.fuzzy_search_threshold", 0.3)

	v.SetDefault("diag.log_indent_unit", 2)

	v.SetDefault("reap_interval", 10*time.Second)
}
