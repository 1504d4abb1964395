package recorder

import (
	"time"

	"github.com/autorec/autorec/internal/catalog"
	"github.com/autorec/autorec/internal/device"
	"github.com/autorec/autorec/internal/resource"
)

// DeviceStatus is the monitor's current view of one device slot.
type DeviceStatus struct {
	Path      string `json:"path,omitempty"`
	Connected bool   `json:"connected"`
}

// RecordingStatus describes the active session, including the encoder's
// live stderr tail for diagnosing a struggling child.
type RecordingStatus struct {
	ID        catalog.ULID `json:"id"`
	Path      string       `json:"path"`
	StartedAt time.Time    `json:"started_at"`
	PID       int          `json:"pid"`
	Stderr    []string     `json:"stderr,omitempty"`
}

// EncoderStatus identifies the encoder binary in use.
type EncoderStatus struct {
	Path       string `json:"path"`
	Version    string `json:"version"`
	VideoCodec string `json:"video_codec"`
	AudioCodec string `json:"audio_codec"`
}

// EncoderFailure remembers the most recent abnormal encoder exit.
type EncoderFailure struct {
	At     time.Time `json:"at"`
	Error  string    `json:"error"`
	Stderr []string  `json:"stderr,omitempty"`
}

// Status is a point-in-time snapshot of the recorder.
type Status struct {
	Devices     map[string]DeviceStatus `json:"devices"`
	VideoFormat string                  `json:"video_format,omitempty"`
	AudioFormat string                  `json:"audio_format,omitempty"`
	Recording   *RecordingStatus        `json:"recording,omitempty"`
	Resources   resource.Snapshot       `json:"resources"`
	Encoder     EncoderStatus           `json:"encoder"`
	LastFailure *EncoderFailure         `json:"last_failure,omitempty"`
}

// Status reports the controller's current state for the HTTP API.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Devices:   make(map[string]DeviceStatus, len(c.devices)),
		Resources: c.lastResource,
		Encoder: EncoderStatus{
			Path:       c.encInfo.Path,
			Version:    c.encInfo.Version,
			VideoCodec: c.videoCodec,
			AudioCodec: c.cfg.Recording.AudioCodec,
		},
	}
	for kind, d := range c.devices {
		st.Devices[kind.String()] = DeviceStatus{Path: d.path, Connected: d.connected}
	}
	if c.videoFormat != nil {
		st.VideoFormat = c.videoFormat.String()
	}
	if c.audioFormat != nil {
		st.AudioFormat = c.audioFormat.String()
	}
	if c.session != nil {
		st.Recording = &RecordingStatus{
			ID:        c.session.id,
			Path:      c.session.path,
			StartedAt: c.session.startedAt,
			PID:       c.session.proc.PID(),
			Stderr:    c.session.proc.StderrTail(),
		}
	}
	if c.lastFailure != nil {
		f := *c.lastFailure
		st.LastFailure = &f
	}
	// Every swept kind appears even before its first observation, so the
	// response shape is stable.
	for _, kind := range device.Kinds {
		if _, ok := st.Devices[kind.String()]; !ok {
			st.Devices[kind.String()] = DeviceStatus{}
		}
	}
	return st
}
