// Package capture negotiates hardware capture configurations and runs the
// per-device read loops that feed captured bytes into an active recording.
package capture

import (
	"fmt"

	"github.com/autorec/autorec/internal/v4l2"
)

// Compressed frames vary in size; small resolutions still need room for a
// worst-case JPEG.
const mjpegMinFrameBytes = 100 * 1024

// VideoFormatConfig is one enumerated capture capability: a pixel format at
// a discrete resolution and rate.
type VideoFormatConfig struct {
	PixelFormat v4l2.FourCC
	Width       uint32
	Height      uint32
	FPS         float64
}

func (c VideoFormatConfig) String() string {
	return fmt.Sprintf("%s %dx%d@%.2ffps", c.PixelFormat, c.Width, c.Height, c.FPS)
}

// NegotiatedVideoFormat is the committed video configuration plus the
// encoder-facing raw-stream description derived from it. FrameByteSize is
// the read buffer length: exact for fixed-size raw formats, an upper bound
// for compressed ones.
type NegotiatedVideoFormat struct {
	Width         uint32
	Height        uint32
	FPS           float64
	PixelFormat   v4l2.FourCC
	FrameByteSize int
	EncoderFormat string
}

// VariableFrameSize reports whether frames arrive at varying lengths up to
// FrameByteSize rather than exactly at it.
func (f NegotiatedVideoFormat) VariableFrameSize() bool {
	return f.EncoderFormat == "mjpeg"
}

func (f NegotiatedVideoFormat) String() string {
	return fmt.Sprintf("%s %dx%d@%.2ffps", f.EncoderFormat, f.Width, f.Height, f.FPS)
}

// deriveEncoderFormat fills in the encoder-facing fields from the committed
// pixel format. Anything that is not packed 4:2:2 or motion JPEG falls back
// to a generic 4-bytes-per-pixel raw description.
func deriveEncoderFormat(f *NegotiatedVideoFormat) {
	area := int(f.Width) * int(f.Height)
	switch f.PixelFormat {
	case v4l2.PixFmtYUYV:
		f.EncoderFormat = "yuyv422"
		f.FrameByteSize = area * 2
	case v4l2.PixFmtMJPEG:
		f.EncoderFormat = "mjpeg"
		f.FrameByteSize = area
		if f.FrameByteSize < mjpegMinFrameBytes {
			f.FrameByteSize = mjpegMinFrameBytes
		}
	default:
		f.EncoderFormat = "rawvideo"
		f.FrameByteSize = area * 4
	}
}

// NegotiatedAudioFormat is the committed audio configuration.
type NegotiatedAudioFormat struct {
	SampleRate     uint32
	Channels       uint32
	BitsPerSample  int
	PeriodFrames   uint32
	BufferByteSize int
}

// BytesPerFrame returns the size of one interleaved sample frame.
func (f NegotiatedAudioFormat) BytesPerFrame() int {
	return int(f.Channels) * f.BitsPerSample / 8
}

// EncoderSampleFormat returns the raw sample-format name the encoder is
// told to expect ("s16le", "s24le", "s32le").
func (f NegotiatedAudioFormat) EncoderSampleFormat() string {
	return fmt.Sprintf("s%dle", f.BitsPerSample)
}

func (f NegotiatedAudioFormat) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.EncoderSampleFormat(), f.SampleRate, f.Channels)
}
