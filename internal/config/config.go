// Package config provides configuration management for autorec using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultPollInterval    = 5 * time.Second
	defaultIdleSleep       = time.Second
	defaultMinFreeDisk     = 100 * MB
	defaultMinFreeMemory   = 50 * MB
	defaultHTTPPort        = 8080
	defaultShutdownTimeout = 10 * time.Second
	defaultVideoBitrate    = "2M"
	defaultAudioBitrate    = "128k"
	defaultAudioCodec      = "aac"
	defaultContainer       = "mp4"
	defaultFilePrefix      = "footages"
	defaultOutputDir       = "./recordings"
	defaultCatalogFile     = "catalog.db"
)

// Config holds all configuration for the application.
type Config struct {
	Recording RecordingConfig `mapstructure:"recording"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Retention RetentionConfig `mapstructure:"retention"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RecordingConfig holds output file and encoding configuration.
type RecordingConfig struct {
	OutputDir    string `mapstructure:"output_dir"`
	FilePrefix   string `mapstructure:"file_prefix"`
	Container    string `mapstructure:"container"`
	VideoBitrate string `mapstructure:"video_bitrate"`
	AudioBitrate string `mapstructure:"audio_bitrate"`
	// VideoCodecs is tried in order; the first one the encoder binary
	// supports is used.
	VideoCodecs []string `mapstructure:"video_codecs"`
	AudioCodec  string   `mapstructure:"audio_codec"`
}

// MonitorConfig holds device monitoring configuration.
type MonitorConfig struct {
	// PollInterval is the device / resource check cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// IdleSleep is how long a capture loop sleeps while its device is absent.
	IdleSleep time.Duration `mapstructure:"idle_sleep"`
	// WatchDev enables the inotify-based /dev watcher that triggers an
	// immediate poll on hotplug events. Polling remains the baseline.
	WatchDev bool `mapstructure:"watch_dev"`
}

// ResourcesConfig holds the thresholds below which recording stops.
type ResourcesConfig struct {
	// MinFreeDisk is the minimum free space on the recording destination.
	// Supports human-readable values like "100MB".
	MinFreeDisk ByteSize `mapstructure:"min_free_disk"`
	// MinFreeMemory is the minimum available system memory.
	MinFreeMemory ByteSize `mapstructure:"min_free_memory"`
}

// EncoderConfig holds encoder binary configuration.
type EncoderConfig struct {
	// Binary is the path to the ffmpeg binary (empty = auto-detect via
	// AUTOREC_FFMPEG_BINARY, then PATH).
	Binary string `mapstructure:"binary"`
}

// CatalogConfig holds recording catalog configuration.
type CatalogConfig struct {
	// Path to the catalog database (empty = {recording.output_dir}/catalog.db).
	Path string `mapstructure:"path"`
}

// RetentionConfig holds scheduled pruning configuration.
type RetentionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Schedule is a 5-field cron expression.
	Schedule string `mapstructure:"schedule"`
	// MaxAge removes recordings older than this (0 = disabled).
	MaxAge time.Duration `mapstructure:"max_age"`
	// MaxCount keeps at most this many recordings (0 = disabled).
	MaxCount int `mapstructure:"max_count"`
}

// HTTPConfig holds the status/control API configuration.
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // text, json
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Normalize canonicalizes the level and format so "WARNING" and "warn"
// agree regardless of where the value came from.
func (c *LoggingConfig) Normalize() {
	c.Level = strings.ToLower(c.Level)
	if c.Level == "warning" {
		c.Level = "warn"
	}
	c.Format = strings.ToLower(c.Format)
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration, are
// prefixed with AUTOREC_, and use underscores for nesting.
// Example: AUTOREC_MONITOR_POLL_INTERVAL=2s.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("autorec")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/autorec")
		v.AddConfigPath("/etc/autorec")
	}

	v.SetEnvPrefix("AUTOREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Missing config file is fine; defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Logging.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// Called before reading the config file so every key has a value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("recording.output_dir", defaultOutputDir)
	v.SetDefault("recording.file_prefix", defaultFilePrefix)
	v.SetDefault("recording.container", defaultContainer)
	v.SetDefault("recording.video_bitrate", defaultVideoBitrate)
	v.SetDefault("recording.audio_bitrate", defaultAudioBitrate)
	v.SetDefault("recording.video_codecs", []string{"h264_v4l2m2m", "h264_omx", "libx264", "mpeg4"})
	v.SetDefault("recording.audio_codec", defaultAudioCodec)

	v.SetDefault("monitor.poll_interval", defaultPollInterval)
	v.SetDefault("monitor.idle_sleep", defaultIdleSleep)
	v.SetDefault("monitor.watch_dev", true)

	v.SetDefault("resources.min_free_disk", int64(defaultMinFreeDisk))
	v.SetDefault("resources.min_free_memory", int64(defaultMinFreeMemory))

	v.SetDefault("encoder.binary", "")

	v.SetDefault("catalog.path", "")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.schedule", "0 * * * *")
	v.SetDefault("retention.max_age", time.Duration(0))
	v.SetDefault("retention.max_count", 0)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", defaultHTTPPort)
	v.SetDefault("http.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Recording.OutputDir == "" {
		return fmt.Errorf("recording.output_dir must not be empty")
	}
	if c.Recording.Container == "" {
		return fmt.Errorf("recording.container must not be empty")
	}
	if len(c.Recording.VideoCodecs) == 0 {
		return fmt.Errorf("recording.video_codecs must list at least one codec")
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.IdleSleep <= 0 {
		return fmt.Errorf("monitor.idle_sleep must be positive")
	}

	if c.Resources.MinFreeDisk < 0 || c.Resources.MinFreeMemory < 0 {
		return fmt.Errorf("resource thresholds must not be negative")
	}

	if c.Retention.Enabled && c.Retention.Schedule == "" {
		return fmt.Errorf("retention.schedule must be set when retention is enabled")
	}
	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("retention.max_age must not be negative")
	}
	if c.Retention.MaxCount < 0 {
		return fmt.Errorf("retention.max_count must not be negative")
	}

	if c.HTTP.Enabled {
		const maxPort = 65535
		if c.HTTP.Port < 1 || c.HTTP.Port > maxPort {
			return fmt.Errorf("http.port must be between 1 and %d", maxPort)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of: text, json")
	}

	return nil
}

// CatalogPath resolves the catalog database location, defaulting to a file
// next to the recordings.
func (c *Config) CatalogPath() string {
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return filepath.Join(c.Recording.OutputDir, defaultCatalogFile)
}

// Address returns the host:port the HTTP server binds to.
func (h HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}
