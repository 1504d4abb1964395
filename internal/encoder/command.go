package encoder

import (
	"strconv"
	"strings"

	"github.com/autorec/autorec/internal/capture"
)

// Command is a fully assembled encoder invocation.
type Command struct {
	Binary string
	Args   []string
}

// String returns the command line for logging.
func (c Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// CommandBuilder assembles the ffmpeg argument list for one recording
// session. The video stream arrives on stdin (pipe:0) and the audio stream
// on inherited file descriptor 3 (pipe:3); both are described to ffmpeg as
// raw input so the encoder never touches the devices itself.
type CommandBuilder struct {
	binary     string
	logLevel   string
	videoArgs  []string
	audioArgs  []string
	outputArgs []string
	container  string
	output     string
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(binary string) *CommandBuilder {
	return &CommandBuilder{binary: binary, logLevel: "error"}
}

// LogLevel overrides the default "error" log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// VideoInput describes the video stream on stdin. Compressed streams carry
// their own frame geometry; raw streams need the full description.
func (b *CommandBuilder) VideoInput(f capture.NegotiatedVideoFormat) *CommandBuilder {
	rate := formatRate(f.FPS)
	if f.EncoderFormat == "mjpeg" {
		b.videoArgs = []string{"-f", "mjpeg", "-framerate", rate, "-i", "pipe:0"}
		return b
	}
	b.videoArgs = []string{
		"-f", "rawvideo",
		"-pixel_format", rawPixelFormat(f.EncoderFormat),
		"-video_size", strconv.Itoa(int(f.Width)) + "x" + strconv.Itoa(int(f.Height)),
		"-framerate", rate,
		"-i", "pipe:0",
	}
	return b
}

// AudioInput describes the raw PCM stream on fd 3.
func (b *CommandBuilder) AudioInput(f capture.NegotiatedAudioFormat) *CommandBuilder {
	b.audioArgs = []string{
		"-f", f.EncoderSampleFormat(),
		"-ar", strconv.Itoa(int(f.SampleRate)),
		"-ac", strconv.Itoa(int(f.Channels)),
		"-i", "pipe:3",
	}
	return b
}

// Codecs sets the output codecs and bitrates.
func (b *CommandBuilder) Codecs(videoCodec, videoBitrate, audioCodec, audioBitrate string) *CommandBuilder {
	b.outputArgs = []string{
		"-c:v", videoCodec, "-b:v", videoBitrate,
		"-c:a", audioCodec, "-b:a", audioBitrate,
	}
	return b
}

// Container sets the output container format.
func (b *CommandBuilder) Container(format string) *CommandBuilder {
	b.container = format
	return b
}

// Output sets the destination path.
func (b *CommandBuilder) Output(path string) *CommandBuilder {
	b.output = path
	return b
}

// Build assembles the final argument list.
func (b *CommandBuilder) Build() Command {
	args := []string{"-hide_banner", "-loglevel", b.logLevel, "-y"}
	args = append(args, b.videoArgs...)
	args = append(args, b.audioArgs...)
	args = append(args, b.outputArgs...)
	if b.container != "" {
		args = append(args, "-f", b.container)
	}
	args = append(args, b.output)
	return Command{Binary: b.binary, Args: args}
}

// formatRate renders a frame rate without trailing zeros, keeping up to
// millihertz precision for NTSC-style rates.
func formatRate(fps float64) string {
	s := strconv.FormatFloat(fps, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// rawPixelFormat maps a negotiated pixel format name to the rawvideo
// demuxer's pixel_format option. The generic fallback matches the 4
// bytes-per-pixel frame size used when negotiation hit an unknown format.
func rawPixelFormat(name string) string {
	if name == "rawvideo" {
		return "rgb32"
	}
	return name
}
