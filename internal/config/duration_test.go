package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "30d", want: 30 * 24 * time.Hour},
		{input: "7 days", want: 7 * 24 * time.Hour},
		{input: "1 day", want: 24 * time.Hour},
		{input: "2w", want: 14 * 24 * time.Hour},
		{input: "1 week", want: 7 * 24 * time.Hour},
		{input: "2w12h", want: 14*24*time.Hour + 12*time.Hour},
		{input: "1d6h30m", want: 30*time.Hour + 30*time.Minute},
		{input: "90m", want: 90 * time.Minute},
		{input: "720h", want: 720 * time.Hour},
		{input: "1.5h", want: 90 * time.Minute},
		{input: "-2d", want: -48 * time.Hour},
		{input: "0s", want: 0},
		{input: "", wantErr: true},
		{input: "soon", wantErr: true},
		{input: "30x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringToDurationHook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autorec.yaml")

	content := `
retention:
  max_age: 30d
monitor:
  poll_interval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*24*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PollInterval)
}
