// Package recorder owns the recording state machine: monitored device
// state, negotiated formats, the active session, and the policy deciding
// when recordings start and stop.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/autorec/autorec/internal/capture"
	"github.com/autorec/autorec/internal/catalog"
	"github.com/autorec/autorec/internal/config"
	"github.com/autorec/autorec/internal/device"
	"github.com/autorec/autorec/internal/encoder"
	"github.com/autorec/autorec/internal/resource"
)

// DeviceScanner performs one hotplug sweep.
type DeviceScanner interface {
	Poll(ctx context.Context) []device.Handle
}

// ResourceChecker reports whether the system can sustain recording.
type ResourceChecker interface {
	Check(ctx context.Context) resource.Snapshot
}

// encoderProcess is the part of encoder.Process the controller drives.
type encoderProcess interface {
	VideoWriter() io.Writer
	AudioWriter() io.Writer
	StderrTail() []string
	PID() int
	Done() <-chan struct{}
	Stop() error
}

type deviceState struct {
	path      string
	connected bool
}

// session is one active recording: the encoder child, the mux feeding it,
// and the catalog row tracking it.
type session struct {
	id           catalog.ULID
	path         string
	proc         encoderProcess
	mux          *encoder.StreamMux
	startedAt    time.Time
	broken       bool
	brokenReason string
}

// Controller runs the device-monitor/lifecycle loop and implements the
// capture.Coordinator the streaming sessions report into.
//
// One mutex guards everything: device flags and paths, published formats,
// the active session, and every write into the encoder's input streams.
// Start/stop transitions and frame writes serialize against each other, so
// a write can never race the teardown of the stream it targets.
type Controller struct {
	cfg        *config.Config
	scanner    DeviceScanner
	guard      ResourceChecker
	store      *catalog.Store
	encInfo    *encoder.Info
	videoCodec string
	logger     *slog.Logger

	nudges       <-chan struct{}
	kick         chan struct{}
	pollInterval time.Duration
	startProcess func(encoder.Command, *slog.Logger) (encoderProcess, error)
	now          func() time.Time

	mu           sync.Mutex
	devices      map[device.Kind]deviceState
	videoFormat  *capture.NegotiatedVideoFormat
	audioFormat  *capture.NegotiatedAudioFormat
	session      *session
	rotateWanted bool
	lastResource resource.Snapshot
	lastFailure  *EncoderFailure
}

// NewController wires the recording policy to its collaborators. A nil
// logger falls back to slog.Default.
func NewController(cfg *config.Config, scanner DeviceScanner, guard ResourceChecker, store *catalog.Store, encInfo *encoder.Info, videoCodec string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:          cfg,
		scanner:      scanner,
		guard:        guard,
		store:        store,
		encInfo:      encInfo,
		videoCodec:   videoCodec,
		logger:       logger,
		kick:         make(chan struct{}, 1),
		pollInterval: cfg.Monitor.PollInterval,
		startProcess: func(cmd encoder.Command, l *slog.Logger) (encoderProcess, error) {
			p, err := encoder.StartProcess(cmd, l)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		now:     time.Now,
		devices: make(map[device.Kind]deviceState),
	}
}

// WithNudges subscribes the loop to hotplug nudges so device churn is
// evaluated before the next scheduled tick.
func (c *Controller) WithNudges(ch <-chan struct{}) *Controller {
	c.nudges = ch
	return c
}

// Run drives the combined device-monitor and lifecycle loop until ctx is
// canceled, then stops any active recording so the encoder finalizes
// before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-ticker.C:
			c.tick(ctx)
		case <-c.kick:
			c.tick(ctx)
		case <-c.nudges:
			c.tick(ctx)
		}
	}
}

// tick is one policy evaluation: sweep devices, check resources, then
// decide under the state lock.
func (c *Controller) tick(ctx context.Context) {
	handles := c.scanner.Poll(ctx)
	c.mu.Lock()
	for _, h := range handles {
		c.devices[h.Kind] = deviceState{path: h.Path, connected: h.Connected}
	}
	c.mu.Unlock()

	snap := c.guard.Check(ctx)

	c.mu.Lock()
	c.lastResource = snap
	c.evaluateLocked(ctx, snap)
	c.mu.Unlock()
}

// evaluateLocked applies the start/stop policy. A stop consumes the whole
// tick; the follow-up start happens on the next one.
func (c *Controller) evaluateLocked(ctx context.Context, snap resource.Snapshot) {
	if c.session != nil {
		var reason string
		switch {
		case c.session.broken:
			reason = c.session.brokenReason
		case !c.devices[device.KindVideo].connected:
			reason = "video device disconnected"
		case !c.devices[device.KindAudio].connected:
			reason = "audio device disconnected"
		case !snap.Sufficient:
			reason = "insufficient system resources"
		case c.rotateWanted:
			reason = "rotation requested"
		default:
			select {
			case <-c.session.proc.Done():
				reason = "encoder exited unexpectedly"
			default:
			}
		}
		if reason != "" {
			c.stopLocked(reason)
		}
		c.rotateWanted = false
		return
	}
	c.rotateWanted = false

	if !c.devices[device.KindVideo].connected || !c.devices[device.KindAudio].connected {
		return
	}
	// Connected is not enough: both capture sessions must have published a
	// committed format, otherwise the encoder would be told a stream shape
	// nobody negotiated.
	if c.videoFormat == nil || c.audioFormat == nil {
		return
	}
	if !snap.Sufficient {
		return
	}
	if err := c.startLocked(ctx); err != nil {
		c.logger.Error("starting recording failed", "error", err)
	}
}

// startLocked spawns the encoder for the published formats and records the
// new session. Caller holds the state lock.
func (c *Controller) startLocked(ctx context.Context) error {
	vf := *c.videoFormat
	af := *c.audioFormat
	startedAt := c.now()
	path := c.outputPath(startedAt)

	if err := os.MkdirAll(c.cfg.Recording.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	cmd := encoder.NewCommandBuilder(c.encInfo.Path).
		VideoInput(vf).
		AudioInput(af).
		Codecs(c.videoCodec, c.cfg.Recording.VideoBitrate, c.cfg.Recording.AudioCodec, c.cfg.Recording.AudioBitrate).
		Container(c.cfg.Recording.Container).
		Output(path).
		Build()

	proc, err := c.startProcess(cmd, c.logger)
	if err != nil {
		return fmt.Errorf("spawning encoder: %w", err)
	}

	mux := encoder.NewStreamMux(
		encoder.StreamSpec{Writer: proc.VideoWriter(), FrameSize: vf.FrameByteSize, Variable: vf.VariableFrameSize()},
		encoder.StreamSpec{Writer: proc.AudioWriter(), FrameSize: af.BufferByteSize},
	)

	rec := &catalog.Recording{
		Path:        path,
		Status:      catalog.StatusActive,
		StartedAt:   startedAt,
		VideoFormat: vf.String(),
		AudioFormat: af.String(),
	}
	if err := c.store.Create(ctx, rec); err != nil {
		// The recording matters more than its catalog row.
		c.logger.Error("cataloguing recording failed", "path", path, "error", err)
	}

	c.session = &session{
		id:        rec.ID,
		path:      path,
		proc:      proc,
		mux:       mux,
		startedAt: startedAt,
	}
	c.logger.Info("recording started",
		"path", path, "video", vf.String(), "audio", af.String(), "pid", proc.PID())
	return nil
}

// stopLocked tears the active session down: no more writes, inputs closed,
// encoder finalized, catalog row settled. Blocks until the encoder exits;
// the lock is held throughout so nothing can write into a dying stream.
func (c *Controller) stopLocked(reason string) {
	sess := c.session
	c.session = nil
	sess.mux.Close()

	c.logger.Info("stopping recording", "path", sess.path, "reason", reason)
	stopErr := sess.proc.Stop()

	status := catalog.StatusComplete
	errMsg := ""
	if sess.broken {
		status = catalog.StatusFailed
		errMsg = sess.brokenReason
	}
	if stopErr != nil {
		status = catalog.StatusFailed
		if errMsg == "" {
			errMsg = stopErr.Error()
		}
	}
	if status == catalog.StatusFailed {
		c.lastFailure = &EncoderFailure{
			At:     c.now(),
			Error:  errMsg,
			Stderr: sess.proc.StderrTail(),
		}
		c.logger.Error("recording ended abnormally",
			"path", sess.path, "error", errMsg, "stderr", sess.proc.StderrTail())
	}

	var size int64
	if fi, err := os.Stat(sess.path); err == nil {
		size = fi.Size()
	}
	if !sess.id.IsZero() {
		// The run context may already be canceled during shutdown; the
		// catalog write must still land.
		if err := c.store.Finalize(context.Background(), sess.id, status, c.now(), size, errMsg); err != nil {
			c.logger.Error("finalizing catalog row failed", "id", sess.id, "error", err)
		}
	}

	c.logger.Info("recording stopped",
		"path", sess.path, "status", status, "size_bytes", size,
		"duration", c.now().Sub(sess.startedAt).Round(time.Millisecond))
}

// shutdown finalizes any active recording during daemon exit.
func (c *Controller) shutdown() {
	c.mu.Lock()
	if c.session != nil {
		c.stopLocked("shutting down")
	}
	c.mu.Unlock()
}

func (c *Controller) outputPath(ts time.Time) string {
	name := fmt.Sprintf("%s_%s.%s",
		c.cfg.Recording.FilePrefix, ts.Format("2006-01-02_15-04-05"), c.cfg.Recording.Container)
	return filepath.Join(c.cfg.Recording.OutputDir, name)
}

// Kick schedules an immediate policy tick. Coalesces when one is pending.
func (c *Controller) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Rotate asks the policy to finalize the current file on the next tick
// (scheduled immediately); a fresh session starts on the tick after.
// Reports whether a recording was active.
func (c *Controller) Rotate() bool {
	c.mu.Lock()
	active := c.session != nil
	c.rotateWanted = true
	c.mu.Unlock()
	c.Kick()
	return active
}

// DeviceState implements capture.Coordinator.
func (c *Controller) DeviceState(kind device.Kind) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.devices[kind]
	return st.path, st.connected
}

// DemoteDevice implements capture.Coordinator. The kind stays down until a
// monitor sweep finds its node again.
func (c *Controller) DemoteDevice(kind device.Kind) {
	c.mu.Lock()
	st := c.devices[kind]
	if st.connected {
		st.connected = false
		c.devices[kind] = st
	}
	c.mu.Unlock()
	c.Kick()
}

// SetVideoFormat implements capture.Coordinator.
func (c *Controller) SetVideoFormat(f *capture.NegotiatedVideoFormat) {
	c.mu.Lock()
	c.videoFormat = f
	c.mu.Unlock()
	if f != nil {
		c.Kick()
	}
}

// SetAudioFormat implements capture.Coordinator.
func (c *Controller) SetAudioFormat(f *capture.NegotiatedAudioFormat) {
	c.mu.Lock()
	c.audioFormat = f
	c.mu.Unlock()
	if f != nil {
		c.Kick()
	}
}

// Forward implements capture.Coordinator: one captured frame into the
// active session's mux. With no session the frame is dropped silently. A
// frame-size violation is reported but leaves the session running; a pipe
// failure marks the session broken so the next tick stops it.
func (c *Controller) Forward(kind device.Kind, buf []byte) error {
	c.mu.Lock()
	sess := c.session
	if sess == nil || sess.broken {
		c.mu.Unlock()
		return nil
	}
	err := sess.mux.Write(kind, buf)
	broke := false
	if err != nil && !errors.Is(err, encoder.ErrFrameSize) {
		sess.broken = true
		sess.brokenReason = fmt.Sprintf("%s stream write failed: %v", kind, err)
		broke = true
	}
	c.mu.Unlock()

	if broke {
		c.Kick()
	}
	return err
}
