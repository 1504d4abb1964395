package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/autorec/autorec/internal/alsa"
	"github.com/autorec/autorec/internal/device"
	"github.com/autorec/autorec/internal/v4l2"
)

// Coordinator is the shared appliance state a capture session consults: is
// my device there, where is it, and who takes the captured bytes. All
// methods are safe for concurrent use.
type Coordinator interface {
	// DeviceState reports the monitored node path and connection flag.
	DeviceState(kind device.Kind) (path string, connected bool)
	// DemoteDevice marks a kind disconnected after a fatal capture error;
	// the next discovery sweep decides whether it comes back.
	DemoteDevice(kind device.Kind)
	// SetVideoFormat publishes the committed video format, nil on loss.
	SetVideoFormat(f *NegotiatedVideoFormat)
	// SetAudioFormat publishes the committed audio format, nil on loss.
	SetAudioFormat(f *NegotiatedAudioFormat)
	// Forward hands captured bytes to the active recording, if one is
	// running. Bytes outside the stream's negotiated size are an error.
	Forward(kind device.Kind, buf []byte) error
}

const idleDelay = time.Second

// sleepCtx waits d or until ctx ends, reporting whether the full wait
// completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// VideoSession runs the camera loop: wait for the device, open it,
// negotiate a format, then read frames until the device fails or the
// process shuts down.
type VideoSession struct {
	coord      Coordinator
	negotiator *VideoNegotiator
	open       func(path string) (VideoDevice, error)
	logger     *slog.Logger
	idleDelay  time.Duration
}

func NewVideoSession(coord Coordinator, negotiator *VideoNegotiator, logger *slog.Logger) *VideoSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoSession{
		coord:      coord,
		negotiator: negotiator,
		open:       OpenVideoDevice,
		logger:     logger,
		idleDelay:  idleDelay,
	}
}

// WithIdleDelay sets how long the loop sleeps while its device is absent.
func (s *VideoSession) WithIdleDelay(d time.Duration) *VideoSession {
	if d > 0 {
		s.idleDelay = d
	}
	return s
}

// OpenVideoDevice opens a camera node for negotiation and streaming.
func OpenVideoDevice(path string) (VideoDevice, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Run loops until ctx is canceled. It never returns an error: every failure
// demotes the device and waits for rediscovery.
func (s *VideoSession) Run(ctx context.Context) {
	for ctx.Err() == nil {
		path, connected := s.coord.DeviceState(device.KindVideo)
		if !connected {
			sleepCtx(ctx, s.idleDelay)
			continue
		}

		dev, err := s.open(path)
		if err != nil {
			s.logger.Warn("opening video device failed", "path", path, "error", err)
			sleepCtx(ctx, s.idleDelay)
			continue
		}
		s.stream(ctx, dev)
	}
	s.logger.Debug("video capture loop stopped")
}

// stream owns the device from open to close: negotiate, then read frames.
func (s *VideoSession) stream(ctx context.Context, dev VideoDevice) {
	defer dev.Close()

	configs := s.negotiator.Enumerate(ctx, dev)
	format, err := s.negotiator.Apply(dev, Rank(configs))
	if err != nil {
		s.logger.Error("video negotiation failed", "path", dev.Path(), "error", err)
		s.coord.DemoteDevice(device.KindVideo)
		return
	}
	s.coord.SetVideoFormat(&format)
	defer s.coord.SetVideoFormat(nil)

	buf := make([]byte, format.FrameByteSize)
	for ctx.Err() == nil {
		if _, connected := s.coord.DeviceState(device.KindVideo); !connected {
			return
		}

		n, err := dev.Read(buf)
		switch {
		case err == nil && n > 0:
			if ferr := s.coord.Forward(device.KindVideo, buf[:n]); ferr != nil {
				s.logger.Warn("video frame dropped", "error", ferr)
			}
		case err == nil:
			// A zero-length read means the device is gone.
			s.logger.Warn("video device unplugged", "path", dev.Path())
			s.coord.DemoteDevice(device.KindVideo)
			return
		case errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN):
			continue
		default:
			s.logger.Error("video read failed", "path", dev.Path(), "error", err)
			s.coord.DemoteDevice(device.KindVideo)
			return
		}
	}
}

// AudioSession runs the microphone loop, mirroring VideoSession with the
// PCM negotiation and period reads.
type AudioSession struct {
	coord      Coordinator
	negotiator *AudioNegotiator
	open       func(path string) (AudioDevice, error)
	logger     *slog.Logger
	idleDelay  time.Duration
}

func NewAudioSession(coord Coordinator, negotiator *AudioNegotiator, logger *slog.Logger) *AudioSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioSession{
		coord:      coord,
		negotiator: negotiator,
		open:       OpenAudioDevice,
		logger:     logger,
		idleDelay:  idleDelay,
	}
}

// WithIdleDelay sets how long the loop sleeps while its device is absent.
func (s *AudioSession) WithIdleDelay(d time.Duration) *AudioSession {
	if d > 0 {
		s.idleDelay = d
	}
	return s
}

// OpenAudioDevice opens a PCM capture node for negotiation and streaming.
func OpenAudioDevice(path string) (AudioDevice, error) {
	pcm, err := alsa.OpenCapture(path)
	if err != nil {
		return nil, err
	}
	return pcmDevice{PCM: pcm}, nil
}

// Run loops until ctx is canceled, in the same shape as VideoSession.Run.
func (s *AudioSession) Run(ctx context.Context) {
	for ctx.Err() == nil {
		path, connected := s.coord.DeviceState(device.KindAudio)
		if !connected {
			sleepCtx(ctx, s.idleDelay)
			continue
		}

		dev, err := s.open(path)
		if err != nil {
			s.logger.Warn("opening audio device failed", "path", path, "error", err)
			sleepCtx(ctx, s.idleDelay)
			continue
		}
		s.stream(ctx, dev)
	}
	s.logger.Debug("audio capture loop stopped")
}

func (s *AudioSession) stream(ctx context.Context, dev AudioDevice) {
	defer dev.Close()

	format, err := s.negotiator.Negotiate(dev)
	if err != nil {
		s.logger.Error("audio negotiation failed", "path", dev.Path(), "error", err)
		s.coord.DemoteDevice(device.KindAudio)
		return
	}
	if err := dev.Prepare(); err != nil {
		s.logger.Error("preparing audio stream failed", "path", dev.Path(), "error", err)
		s.coord.DemoteDevice(device.KindAudio)
		return
	}
	s.coord.SetAudioFormat(&format)
	defer s.coord.SetAudioFormat(nil)

	buf := make([]byte, format.BufferByteSize)
	for ctx.Err() == nil {
		if _, connected := s.coord.DeviceState(device.KindAudio); !connected {
			return
		}

		n, err := dev.ReadInterleaved(buf, format.PeriodFrames)
		switch {
		case errors.Is(err, alsa.ErrXrun):
			s.logger.Debug("audio overrun, re-preparing", "path", dev.Path())
			if perr := dev.Prepare(); perr != nil {
				s.logger.Error("overrun recovery failed", "path", dev.Path(), "error", perr)
				s.coord.DemoteDevice(device.KindAudio)
				return
			}
		case err != nil:
			s.logger.Error("audio read failed", "path", dev.Path(), "error", err)
			s.coord.DemoteDevice(device.KindAudio)
			return
		case n == int(format.PeriodFrames):
			if ferr := s.coord.Forward(device.KindAudio, buf); ferr != nil {
				s.logger.Warn("audio period dropped", "error", ferr)
			}
		case n > 0:
			// Short period; the recording takes whole periods only, so
			// wait for the next full one.
			s.logger.Debug("short audio read", "path", dev.Path(), "frames", n)
		default:
			s.logger.Warn("audio device unplugged", "path", dev.Path())
			s.coord.DemoteDevice(device.KindAudio)
			return
		}
	}
}
