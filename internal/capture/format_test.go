package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autorec/autorec/internal/v4l2"
)

func TestDeriveEncoderFormat(t *testing.T) {
	tests := []struct {
		name      string
		pix       v4l2.FourCC
		w, h      uint32
		encFormat string
		frameSize int
	}{
		{"packed 4:2:2", v4l2.PixFmtYUYV, 640, 480, "yuyv422", 640 * 480 * 2},
		{"mjpeg large", v4l2.PixFmtMJPEG, 1920, 1080, "mjpeg", 1920 * 1080},
		{"mjpeg floored", v4l2.PixFmtMJPEG, 320, 240, "mjpeg", 100 * 1024},
		{"unknown falls back", v4l2.FourCCFromString("H264"), 640, 480, "rawvideo", 640 * 480 * 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NegotiatedVideoFormat{PixelFormat: tt.pix, Width: tt.w, Height: tt.h}
			deriveEncoderFormat(&f)
			assert.Equal(t, tt.encFormat, f.EncoderFormat)
			assert.Equal(t, tt.frameSize, f.FrameByteSize)
		})
	}
}

func TestAudioFormatHelpers(t *testing.T) {
	f := NegotiatedAudioFormat{SampleRate: 44100, Channels: 2, BitsPerSample: 24, PeriodFrames: 880}
	assert.Equal(t, 6, f.BytesPerFrame())
	assert.Equal(t, "s24le", f.EncoderSampleFormat())

	mono := NegotiatedAudioFormat{Channels: 1, BitsPerSample: 16}
	assert.Equal(t, 2, mono.BytesPerFrame())
	assert.Equal(t, "s16le", mono.EncoderSampleFormat())
}
