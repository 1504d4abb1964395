package capture

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/autorec/autorec/internal/v4l2"
)

// ErrNoUsableVideoFormat reports that the driver rejected every enumerated
// candidate.
var ErrNoUsableVideoFormat = errors.New("capture: no usable video format")

// VideoDevice is the V4L2 surface the negotiator and the capture loop use.
// *v4l2.Device implements it.
type VideoDevice interface {
	Path() string
	EnumFormats() ([]v4l2.FormatDesc, error)
	EnumFrameSizes(pix v4l2.FourCC) ([]v4l2.FrameSize, error)
	EnumFrameIntervals(pix v4l2.FourCC, width, height uint32) ([]v4l2.Fract, error)
	SetFormat(pix v4l2.FourCC, width, height uint32) (v4l2.Format, error)
	SetFrameRate(tpf v4l2.Fract) (v4l2.Fract, error)
	Read(buf []byte) (int, error)
	Close() error
}

// commandRunner executes an external command and returns its combined
// output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// VideoNegotiator enumerates a camera's capture capabilities, ranks them,
// and commits the best configuration the driver will take.
type VideoNegotiator struct {
	logger   *slog.Logger
	run      commandRunner
	listTool string
}

func NewVideoNegotiator(logger *slog.Logger) *VideoNegotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoNegotiator{
		logger:   logger,
		run:      runCommand,
		listTool: "v4l2-ctl",
	}
}

// Enumerate lists every discrete capture configuration the device offers.
// The external lister is preferred because it surfaces everything the
// driver advertises in one pass; direct ioctl enumeration is the fallback
// when the tool is missing or reports nothing.
func (n *VideoNegotiator) Enumerate(ctx context.Context, dev VideoDevice) []VideoFormatConfig {
	configs := n.enumerateFromTool(ctx, dev.Path())
	if len(configs) > 0 {
		n.logger.Debug("enumerated formats via lister", "tool", n.listTool, "count", len(configs))
		return configs
	}

	configs = enumerateFromDevice(dev)
	n.logger.Debug("enumerated formats via ioctl", "count", len(configs))
	return configs
}

func (n *VideoNegotiator) enumerateFromTool(ctx context.Context, path string) []VideoFormatConfig {
	out, err := n.run(ctx, n.listTool, "--list-formats-ext", "-d", path)
	if err != nil && len(out) == 0 {
		n.logger.Debug("format lister unavailable", "tool", n.listTool, "error", err)
		return nil
	}
	return parseListOutput(string(out))
}

var (
	listFormatRe   = regexp.MustCompile(`\[\d+\]: '([A-Z0-9]{4})'`)
	listSizeRe     = regexp.MustCompile(`Size: Discrete (\d+)x(\d+)`)
	listIntervalRe = regexp.MustCompile(`Interval: Discrete [0-9.]+s \(([0-9.]+) fps\)`)
)

// parseListOutput walks the lister's indented output. Format and size lines
// set parser state; every interval line beneath them yields one config.
func parseListOutput(out string) []VideoFormatConfig {
	var (
		configs       []VideoFormatConfig
		pix           v4l2.FourCC
		width, height uint32
	)
	for _, line := range strings.Split(out, "\n") {
		if m := listFormatRe.FindStringSubmatch(line); m != nil {
			pix = v4l2.FourCCFromString(m[1])
			width, height = 0, 0
			continue
		}
		if m := listSizeRe.FindStringSubmatch(line); m != nil {
			w, _ := strconv.ParseUint(m[1], 10, 32)
			h, _ := strconv.ParseUint(m[2], 10, 32)
			width, height = uint32(w), uint32(h)
			continue
		}
		if m := listIntervalRe.FindStringSubmatch(line); m != nil && pix != 0 && width != 0 && height != 0 {
			if fps, err := strconv.ParseFloat(m[1], 64); err == nil {
				configs = append(configs, VideoFormatConfig{
					PixelFormat: pix,
					Width:       width,
					Height:      height,
					FPS:         fps,
				})
			}
		}
	}
	return configs
}

func enumerateFromDevice(dev VideoDevice) []VideoFormatConfig {
	formats, err := dev.EnumFormats()
	if err != nil {
		return nil
	}

	var configs []VideoFormatConfig
	for _, f := range formats {
		sizes, err := dev.EnumFrameSizes(f.PixelFormat)
		if err != nil {
			continue
		}
		for _, size := range sizes {
			intervals, err := dev.EnumFrameIntervals(f.PixelFormat, size.Width, size.Height)
			if err != nil {
				continue
			}
			for _, interval := range intervals {
				configs = append(configs, VideoFormatConfig{
					PixelFormat: f.PixelFormat,
					Width:       size.Width,
					Height:      size.Height,
					FPS:         interval.FPS(),
				})
			}
		}
	}
	return configs
}

// Rank orders configurations best-first: higher frame rate wins, ties go to
// the larger pixel count, and beyond that enumeration order is preserved.
func Rank(configs []VideoFormatConfig) []VideoFormatConfig {
	ranked := make([]VideoFormatConfig, len(configs))
	copy(ranked, configs)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FPS != ranked[j].FPS {
			return ranked[i].FPS > ranked[j].FPS
		}
		return ranked[i].Width*ranked[i].Height > ranked[j].Width*ranked[j].Height
	})
	return ranked
}

// Apply walks ranked candidates and commits the first one the driver takes:
// pixel format and resolution in one call, then the frame rate. Both calls
// must succeed, otherwise the recorded rate could disagree with what the
// driver actually delivers.
func (n *VideoNegotiator) Apply(dev VideoDevice, ranked []VideoFormatConfig) (NegotiatedVideoFormat, error) {
	for _, cand := range ranked {
		got, err := dev.SetFormat(cand.PixelFormat, cand.Width, cand.Height)
		if err != nil {
			n.logger.Debug("candidate rejected", "config", cand.String(), "error", err)
			continue
		}
		actual, err := dev.SetFrameRate(frameInterval(cand.FPS))
		if err != nil {
			n.logger.Debug("frame rate rejected", "config", cand.String(), "error", err)
			continue
		}

		format := NegotiatedVideoFormat{
			Width:       got.Width,
			Height:      got.Height,
			FPS:         cand.FPS,
			PixelFormat: got.PixelFormat,
		}
		if fps := actual.FPS(); fps > 0 {
			format.FPS = fps
		}
		deriveEncoderFormat(&format)
		n.logger.Info("video format negotiated",
			"width", format.Width,
			"height", format.Height,
			"fps", format.FPS,
			"pixel_format", format.PixelFormat.String(),
			"encoder_format", format.EncoderFormat,
			"frame_bytes", format.FrameByteSize)
		return format, nil
	}
	return NegotiatedVideoFormat{}, ErrNoUsableVideoFormat
}

// frameInterval converts a rate to the driver's time-per-frame fraction.
// Fractional rates (29.97) keep millihertz precision.
func frameInterval(fps float64) v4l2.Fract {
	if fps <= 0 {
		return v4l2.Fract{Numerator: 1, Denominator: 30}
	}
	if fps == math.Trunc(fps) {
		return v4l2.Fract{Numerator: 1, Denominator: uint32(fps)}
	}
	return v4l2.Fract{Numerator: 1000, Denominator: uint32(math.Round(fps * 1000))}
}
