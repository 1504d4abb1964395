package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			OutputDir:    "./recordings",
			FilePrefix:   "footages",
			Container:    "mp4",
			VideoBitrate: "2M",
			AudioBitrate: "128k",
			VideoCodecs:  []string{"libx264"},
			AudioCodec:   "aac",
		},
		Monitor: MonitorConfig{
			PollInterval: 5 * time.Second,
			IdleSleep:    time.Second,
		},
		Resources: ResourcesConfig{
			MinFreeDisk:   100 * MB,
			MinFreeMemory: 50 * MB,
		},
		HTTP: HTTPConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./recordings", cfg.Recording.OutputDir)
	assert.Equal(t, "footages", cfg.Recording.FilePrefix)
	assert.Equal(t, "mp4", cfg.Recording.Container)
	assert.Equal(t, []string{"h264_v4l2m2m", "h264_omx", "libx264", "mpeg4"}, cfg.Recording.VideoCodecs)
	assert.Equal(t, 5*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, time.Second, cfg.Monitor.IdleSleep)
	assert.True(t, cfg.Monitor.WatchDev)
	assert.Equal(t, 100*MB, cfg.Resources.MinFreeDisk)
	assert.Equal(t, 50*MB, cfg.Resources.MinFreeMemory)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autorec.yaml")

	content := `
recording:
  output_dir: /var/lib/autorec
  file_prefix: cam
monitor:
  poll_interval: 2s
resources:
  min_free_disk: 250MB
retention:
  enabled: true
  schedule: "30 2 * * *"
  max_age: 168h
  max_count: 40
http:
  port: 9090
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/autorec", cfg.Recording.OutputDir)
	assert.Equal(t, "cam", cfg.Recording.FilePrefix)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 250*MB, cfg.Resources.MinFreeDisk)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, "30 2 * * *", cfg.Retention.Schedule)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, 40, cfg.Retention.MaxCount)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, "mp4", cfg.Recording.Container)
	assert.Equal(t, time.Second, cfg.Monitor.IdleSleep)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AUTOREC_HTTP_PORT", "9191")
	t.Setenv("AUTOREC_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.HTTP.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_NormalizesLogLevel(t *testing.T) {
	t.Setenv("AUTOREC_LOGGING_LEVEL", "WARNING")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autorec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recording: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			modify: func(*Config) {},
		},
		{
			name:    "empty output dir",
			modify:  func(c *Config) { c.Recording.OutputDir = "" },
			wantErr: "output_dir",
		},
		{
			name:    "no video codecs",
			modify:  func(c *Config) { c.Recording.VideoCodecs = nil },
			wantErr: "video_codecs",
		},
		{
			name:    "zero poll interval",
			modify:  func(c *Config) { c.Monitor.PollInterval = 0 },
			wantErr: "poll_interval",
		},
		{
			name:    "negative threshold",
			modify:  func(c *Config) { c.Resources.MinFreeDisk = -1 },
			wantErr: "thresholds",
		},
		{
			name: "retention enabled without schedule",
			modify: func(c *Config) {
				c.Retention.Enabled = true
				c.Retention.Schedule = ""
			},
			wantErr: "retention.schedule",
		},
		{
			name:    "bad http port",
			modify:  func(c *Config) { c.HTTP.Port = 0 },
			wantErr: "http.port",
		},
		{
			name:    "http disabled ignores port",
			modify:  func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 },
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCatalogPath(t *testing.T) {
	cfg := validTestConfig()
	assert.Equal(t, filepath.Join("./recordings", "catalog.db"), cfg.CatalogPath())

	cfg.Catalog.Path = "/tmp/other.db"
	assert.Equal(t, "/tmp/other.db", cfg.CatalogPath())
}

func TestHTTPAddress(t *testing.T) {
	h := HTTPConfig{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "0.0.0.0:8080", h.Address())
}
