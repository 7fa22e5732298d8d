// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Jukebox  JukeboxConfig           `yaml:"jukebox"`
	Resolver ResolverConfig          `yaml:"resolver"`
	Stats    StatsConfig             `yaml:"stats"`
	Audio    AudioConfig             `yaml:"audio"`
	Admin    AdminConfig             `yaml:"admin"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
}

// ServerConfig represents the HTTP gateway configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// JukeboxConfig represents queue and playback behaviour.
// Boolean fields carry no defaults so an explicit false is honored.
type JukeboxConfig struct {
	MultiqueueEnabled       bool    `yaml:"multiqueue_enabled"`
	StreamingEnabled        bool    `yaml:"streaming_enabled"`
	LoopingAllowed          bool    `yaml:"looping_allowed"`
	PausingAllowed          bool    `yaml:"pausing_allowed"`
	VoteRatio               float64 `yaml:"vote_ratio" default:"0.3" validate:"gt=0,lte=1"`
	HookTimeoutSec          int     `yaml:"hook_timeout_sec" default:"10" validate:"gte=1"`
	QueueLengthWarning      int     `yaml:"queue_length_warning" validate:"gte=0"`
	QueueDurationWarningSec int     `yaml:"queue_duration_warning_sec" validate:"gte=0"`
}

// ResolverConfig represents track resolver configuration.
type ResolverConfig struct {
	MediaDir string `yaml:"media_dir" default:"./media"`
}

// StatsConfig represents the statistics sink configuration.
type StatsConfig struct {
	Path string `yaml:"path" default:"./jukebox.db"`
}

// AudioConfig represents the audio output configuration.
type AudioConfig struct {
	Output     string `yaml:"output" default:"discard" validate:"oneof=discard speaker"`
	SampleRate int    `yaml:"sample_rate" default:"48000" validate:"gt=0"`
}

// AdminConfig represents operator access configuration.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages keyed by result code.
type MessagesConfig struct {
	Success               string `yaml:"success"`
	DefaultError          string `yaml:"default_error"`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded"`
	DuplicateTrack        string `yaml:"duplicate_track"`
	TrackNotFound         string `yaml:"track_not_found"`
	NothingPlaying        string `yaml:"nothing_playing"`
	QueueLengthWarning    string `yaml:"queue_length_warning"`
	QueueDurationWarning  string `yaml:"queue_duration_warning"`
	VoteInProgress        string `yaml:"vote_in_progress"`
	NotEligible           string `yaml:"not_eligible"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	// Defaults apply before the parse so explicit zero values in the file
	// reach validation instead of being overwritten.
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("JUKEBOX_ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("JUKEBOX_STATS_PATH"); v != "" {
		c.Stats.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// GetMessage returns the user-facing message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "success":
		return c.Messages.Success
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "nothing_playing":
		return c.Messages.NothingPlaying
	case "queue_length_warning":
		return c.Messages.QueueLengthWarning
	case "queue_duration_warning":
		return c.Messages.QueueDurationWarning
	case "vote_in_progress":
		return c.Messages.VoteInProgress
	case "not_eligible":
		return c.Messages.NotEligible
	default:
		return c.Messages.DefaultError
	}
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings map for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
