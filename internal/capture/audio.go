package capture

import (
	"errors"
	"log/slog"

	"github.com/autorec/autorec/internal/alsa"
)

// ErrNoUsableAudioFormat reports that the driver rejected every combination
// in the preference order.
var ErrNoUsableAudioFormat = errors.New("capture: no usable audio format")

// Target period length. 20ms keeps capture latency low without starving the
// reader on slow cards.
const periodTargetMillis = 20

// AudioParams is the hardware parameter negotiation surface.
// *alsa.HWParams implements it.
type AudioParams interface {
	SetAccess(alsa.Access) error
	SetFormat(alsa.Format) error
	SetChannels(uint32) error
	SetRateNear(rate uint32) (uint32, error)
	SetPeriodSizeNear(frames uint32) (uint32, error)
	Commit() (alsa.Params, error)
}

// AudioDevice is the PCM surface the negotiator and the capture loop use.
type AudioDevice interface {
	Path() string
	HWParams() (AudioParams, error)
	Prepare() error
	ReadInterleaved(buf []byte, frames uint32) (int, error)
	Close() error
}

// pcmDevice adapts *alsa.PCM to AudioDevice.
type pcmDevice struct {
	*alsa.PCM
}

func (p pcmDevice) HWParams() (AudioParams, error) {
	hw, err := p.PCM.HWParams()
	if err != nil {
		return nil, err
	}
	return hw, nil
}

// audioCandidate is one access/channels/encoding/rate combination to offer
// the driver.
type audioCandidate struct {
	access   alsa.Access
	channels uint32
	format   alsa.Format
	rate     uint32
}

// audioPreferences is the fixed search order, tried strictly in sequence:
// mono before stereo, narrower samples before wider, CD rate first.
var audioPreferences = buildAudioPreferences()

func buildAudioPreferences() []audioCandidate {
	var prefs []audioCandidate
	for _, channels := range []uint32{1, 2} {
		for _, format := range []alsa.Format{alsa.FormatS16LE, alsa.FormatS24LE3, alsa.FormatS32LE} {
			for _, rate := range []uint32{44100, 48000, 16000} {
				prefs = append(prefs, audioCandidate{
					access:   alsa.AccessRWInterleaved,
					channels: channels,
					format:   format,
					rate:     rate,
				})
			}
		}
	}
	return prefs
}

// AudioNegotiator finds a hardware-accepted capture configuration from the
// fixed preference order.
type AudioNegotiator struct {
	logger *slog.Logger
}

func NewAudioNegotiator(logger *slog.Logger) *AudioNegotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioNegotiator{logger: logger}
}

// Negotiate offers each preferred combination to the driver and commits the
// first accepted one, with the rate snapped to the nearest supported value.
// The period targets 20ms of frames; a driver that will not take that keeps
// its default period.
func (n *AudioNegotiator) Negotiate(dev AudioDevice) (NegotiatedAudioFormat, error) {
	for _, cand := range audioPreferences {
		params, ok := n.tryCandidate(dev, cand)
		if !ok {
			continue
		}

		format := NegotiatedAudioFormat{
			SampleRate:    params.Rate,
			Channels:      params.Channels,
			BitsPerSample: params.Format.Bits(),
			PeriodFrames:  params.PeriodFrames,
		}
		format.BufferByteSize = int(format.PeriodFrames) * format.BytesPerFrame()
		n.logger.Info("audio format negotiated",
			"rate", format.SampleRate,
			"channels", format.Channels,
			"bits", format.BitsPerSample,
			"format", params.Format.String(),
			"period_frames", format.PeriodFrames)
		return format, nil
	}
	return NegotiatedAudioFormat{}, ErrNoUsableAudioFormat
}

func (n *AudioNegotiator) tryCandidate(dev AudioDevice, cand audioCandidate) (alsa.Params, bool) {
	hw, err := dev.HWParams()
	if err != nil {
		n.logger.Debug("hardware parameter space unavailable", "path", dev.Path(), "error", err)
		return alsa.Params{}, false
	}
	if err := hw.SetAccess(cand.access); err != nil {
		return alsa.Params{}, false
	}
	if err := hw.SetChannels(cand.channels); err != nil {
		return alsa.Params{}, false
	}
	if err := hw.SetFormat(cand.format); err != nil {
		return alsa.Params{}, false
	}
	rate, err := hw.SetRateNear(cand.rate)
	if err != nil {
		return alsa.Params{}, false
	}
	period := (rate / 1000) * periodTargetMillis
	if _, err := hw.SetPeriodSizeNear(period); err != nil {
		n.logger.Debug("period target rejected, keeping driver default",
			"path", dev.Path(), "frames", period, "error", err)
	}
	params, err := hw.Commit()
	if err != nil {
		n.logger.Debug("hardware rejected configuration",
			"path", dev.Path(), "channels", cand.channels, "format", cand.format.String(), "error", err)
		return alsa.Params{}, false
	}
	return params, true
}
