package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/autorec/autorec/internal/alsa"
)

type fakeAudioDevice struct {
	hwErr          error
	rejectChannels map[uint32]bool
	rejectFormats  map[alsa.Format]bool
	nearestRate    func(uint32) uint32
	periodErr      error
	defaultPeriod  uint32

	read     func(buf []byte, frames uint32) (int, error)
	prepared int
	closed   int
}

func (d *fakeAudioDevice) Path() string { return "/dev/snd/pcmC0D0c" }

func (d *fakeAudioDevice) HWParams() (AudioParams, error) {
	if d.hwErr != nil {
		return nil, d.hwErr
	}
	return &fakeAudioParams{device: d}, nil
}

func (d *fakeAudioDevice) Prepare() error {
	d.prepared++
	return nil
}

func (d *fakeAudioDevice) ReadInterleaved(buf []byte, frames uint32) (int, error) {
	return d.read(buf, frames)
}

func (d *fakeAudioDevice) Close() error {
	d.closed++
	return nil
}

type fakeAudioParams struct {
	device   *fakeAudioDevice
	access   alsa.Access
	format   alsa.Format
	channels uint32
	rate     uint32
	period   uint32
}

func (p *fakeAudioParams) SetAccess(a alsa.Access) error {
	p.access = a
	return nil
}

func (p *fakeAudioParams) SetChannels(n uint32) error {
	if p.device.rejectChannels[n] {
		return unix.EINVAL
	}
	p.channels = n
	return nil
}

func (p *fakeAudioParams) SetFormat(f alsa.Format) error {
	if p.device.rejectFormats[f] {
		return unix.EINVAL
	}
	p.format = f
	return nil
}

func (p *fakeAudioParams) SetRateNear(rate uint32) (uint32, error) {
	if p.device.nearestRate != nil {
		rate = p.device.nearestRate(rate)
	}
	p.rate = rate
	return rate, nil
}

func (p *fakeAudioParams) SetPeriodSizeNear(frames uint32) (uint32, error) {
	if p.device.periodErr != nil {
		return 0, p.device.periodErr
	}
	p.period = frames
	return frames, nil
}

func (p *fakeAudioParams) Commit() (alsa.Params, error) {
	period := p.period
	if period == 0 {
		period = p.device.defaultPeriod
	}
	return alsa.Params{
		Access:       p.access,
		Format:       p.format,
		Channels:     p.channels,
		Rate:         p.rate,
		PeriodFrames: period,
	}, nil
}

func TestNegotiateTakesFirstPreference(t *testing.T) {
	n := NewAudioNegotiator(discardLogger())
	dev := &fakeAudioDevice{}

	format, err := n.Negotiate(dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), format.SampleRate)
	assert.Equal(t, uint32(1), format.Channels)
	assert.Equal(t, 16, format.BitsPerSample)
	// 20ms at 44100 Hz.
	assert.Equal(t, uint32(880), format.PeriodFrames)
	assert.Equal(t, 880*1*2, format.BufferByteSize)
}

func TestNegotiateFallsBackToStereo(t *testing.T) {
	n := NewAudioNegotiator(discardLogger())
	dev := &fakeAudioDevice{rejectChannels: map[uint32]bool{1: true}}

	format, err := n.Negotiate(dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), format.Channels)
	assert.Equal(t, 16, format.BitsPerSample)
	assert.Equal(t, 880*2*2, format.BufferByteSize)
}

func TestNegotiateFallsBackToWiderSamples(t *testing.T) {
	n := NewAudioNegotiator(discardLogger())
	dev := &fakeAudioDevice{rejectFormats: map[alsa.Format]bool{alsa.FormatS16LE: true}}

	format, err := n.Negotiate(dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), format.Channels)
	assert.Equal(t, 24, format.BitsPerSample)
	assert.Equal(t, 3, format.BytesPerFrame())
}

func TestNegotiateUsesNearestRate(t *testing.T) {
	n := NewAudioNegotiator(discardLogger())
	dev := &fakeAudioDevice{nearestRate: func(uint32) uint32 { return 48000 }}

	format, err := n.Negotiate(dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), format.SampleRate)
	// Period follows the negotiated rate, not the requested one.
	assert.Equal(t, uint32(960), format.PeriodFrames)
}

func TestNegotiatePeriodRejectionKeepsDriverDefault(t *testing.T) {
	n := NewAudioNegotiator(discardLogger())
	dev := &fakeAudioDevice{periodErr: errors.New("period locked"), defaultPeriod: 1024}

	format, err := n.Negotiate(dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), format.PeriodFrames)
	assert.Equal(t, 1024*1*2, format.BufferByteSize)
}

func TestNegotiateNothingAccepted(t *testing.T) {
	n := NewAudioNegotiator(discardLogger())
	dev := &fakeAudioDevice{rejectChannels: map[uint32]bool{1: true, 2: true}}

	_, err := n.Negotiate(dev)
	assert.ErrorIs(t, err, ErrNoUsableAudioFormat)
}

func TestAudioPreferenceOrder(t *testing.T) {
	require.Len(t, audioPreferences, 18)

	first := audioPreferences[0]
	assert.Equal(t, alsa.AccessRWInterleaved, first.access)
	assert.Equal(t, uint32(1), first.channels)
	assert.Equal(t, alsa.FormatS16LE, first.format)
	assert.Equal(t, uint32(44100), first.rate)

	// Rates vary fastest, then sample formats, then channel counts.
	assert.Equal(t, uint32(48000), audioPreferences[1].rate)
	assert.Equal(t, uint32(16000), audioPreferences[2].rate)
	assert.Equal(t, alsa.FormatS24LE3, audioPreferences[3].format)
	assert.Equal(t, uint32(2), audioPreferences[9].channels)
}
