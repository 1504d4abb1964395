package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autorec/autorec/internal/config"
	"github.com/autorec/autorec/internal/recorder"
)

func newTestServer(t *testing.T, rec Recorder) *httptest.Server {
	t.Helper()
	cfg := config.HTTPConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ShutdownTimeout: time.Second,
	}
	srv := NewServer(cfg, discardLogger(), "test")
	NewHandler(rec, newTestStore(t), "test").Register(srv.API())

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestRoutesEndToEnd(t *testing.T) {
	fake := &fakeRecorder{status: recorder.Status{
		Devices: map[string]recorder.DeviceStatus{
			"video": {Path: "/dev/video0", Connected: true},
			"audio": {Connected: false},
		},
	}}
	ts := newTestServer(t, fake)

	t.Run("health", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, ts, "/health", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body["status"])
		assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	})

	t.Run("status", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, ts, "/api/v1/status", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		devices, ok := body["devices"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, devices, "video")
		assert.Contains(t, body, "resources")
		assert.Contains(t, body, "encoder")
	})

	t.Run("recordings", func(t *testing.T) {
		var body map[string]any
		resp := getJSON(t, ts, "/api/v1/recordings", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "recordings")
	})

	t.Run("recording by bad id", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/v1/recordings/not-a-ulid", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rotate", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/recording/rotate", "application/json", strings.NewReader(""))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, false, body["rotated"])
	})

	t.Run("unknown path", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/v1/nope", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRequestIDIsPreserved(t *testing.T) {
	ts := newTestServer(t, &fakeRecorder{})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "caller-supplied-id")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "caller-supplied-id", resp.Header.Get(RequestIDHeader))
}

func TestShutdownWithoutStartIsANoOp(t *testing.T) {
	srv := NewServer(config.HTTPConfig{ShutdownTimeout: time.Second}, discardLogger(), "test")
	assert.NoError(t, srv.Shutdown(context.Background()))
}
