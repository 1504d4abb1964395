package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autorec/autorec/internal/capture"
)

func TestCommandBuilderRawVideo(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		VideoInput(capture.NegotiatedVideoFormat{
			Width: 640, Height: 480, FPS: 30,
			FrameByteSize: 640 * 480 * 2,
			EncoderFormat: "yuyv422",
		}).
		AudioInput(capture.NegotiatedAudioFormat{
			SampleRate: 44100, Channels: 1, BitsPerSample: 16,
		}).
		Codecs("h264_v4l2m2m", "2M", "aac", "128k").
		Container("mp4").
		Output("/tmp/out.mp4").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pixel_format", "yuyv422",
		"-video_size", "640x480", "-framerate", "30", "-i", "pipe:0",
		"-f", "s16le", "-ar", "44100", "-ac", "1", "-i", "pipe:3",
		"-c:v", "h264_v4l2m2m", "-b:v", "2M", "-c:a", "aac", "-b:a", "128k",
		"-f", "mp4", "/tmp/out.mp4",
	}, cmd.Args)
}

func TestCommandBuilderMJPEGOmitsGeometry(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		VideoInput(capture.NegotiatedVideoFormat{
			Width: 1280, Height: 720, FPS: 29.97,
			EncoderFormat: "mjpeg",
		}).
		Output("out.mp4").
		Build()

	assert.Contains(t, cmd.Args, "mjpeg")
	assert.NotContains(t, cmd.Args, "-video_size")
	assert.NotContains(t, cmd.Args, "-pixel_format")
	assert.Contains(t, cmd.Args, "29.97")
}

func TestCommandBuilderFallbackPixelFormat(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		VideoInput(capture.NegotiatedVideoFormat{
			Width: 320, Height: 240, FPS: 15,
			EncoderFormat: "rawvideo",
		}).
		Output("out.mp4").
		Build()

	assert.Contains(t, cmd.Args, "rgb32")
}

func TestCommandBuilderAudioSampleFormats(t *testing.T) {
	for bits, want := range map[int]string{16: "s16le", 24: "s24le", 32: "s32le"} {
		cmd := NewCommandBuilder("ffmpeg").
			AudioInput(capture.NegotiatedAudioFormat{
				SampleRate: 48000, Channels: 2, BitsPerSample: bits,
			}).
			Output("out.mp4").
			Build()
		assert.Contains(t, cmd.Args, want)
	}
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "30", formatRate(30))
	assert.Equal(t, "29.97", formatRate(30000.0/1001.0))
	assert.Equal(t, "23.976", formatRate(24000.0/1001.0))
	assert.Equal(t, "12.5", formatRate(12.5))
}

func TestCommandString(t *testing.T) {
	cmd := Command{Binary: "ffmpeg", Args: []string{"-y", "out.mp4"}}
	assert.Equal(t, "ffmpeg -y out.mp4", cmd.String())
}
