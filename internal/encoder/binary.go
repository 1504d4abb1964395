// Package encoder manages the ffmpeg subprocess that turns raw captured
// frames into finished recording files: binary detection, command assembly,
// process lifecycle, and the stream mux feeding its input pipes.
package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/autorec/autorec/internal/util"
)

// BinaryEnvVar overrides where the ffmpeg binary is looked up.
const BinaryEnvVar = "AUTOREC_FFMPEG_BINARY"

// Info describes the encoder binary the recorder spawns.
type Info struct {
	Path    string `json:"path"`
	Version string `json:"version"`

	encoders map[string]struct{}
}

// SupportsEncoder reports whether the binary lists the named encoder.
// Always false when the encoder list could not be read.
func (i *Info) SupportsEncoder(name string) bool {
	_, ok := i.encoders[name]
	return ok
}

// SelectVideoCodec returns the first candidate the binary supports. When
// the encoder list is unavailable the first candidate is returned
// unverified rather than refusing to record.
func (i *Info) SelectVideoCodec(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no video codec candidates configured")
	}
	if len(i.encoders) == 0 {
		return candidates[0], nil
	}
	for _, c := range candidates {
		if i.SupportsEncoder(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("none of the video codecs %v are available in %s", candidates, i.Path)
}

// commandRunner executes an external command and returns its stdout.
// Swapped out in tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detector locates the ffmpeg binary and inspects its capabilities.
type Detector struct {
	logger *slog.Logger
	run    commandRunner
}

// NewDetector creates a Detector. A nil logger falls back to slog.Default.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger, run: runCommand}
}

// Detect resolves the binary location (configured path, then the
// AUTOREC_FFMPEG_BINARY environment variable, then ./ffmpeg, then PATH)
// and queries its version and encoder list. A missing binary or
// unparseable version output is an error; a failed encoder query is
// tolerated and merely disables codec verification.
func (d *Detector) Detect(ctx context.Context, configured string) (*Info, error) {
	path := configured
	if path == "" {
		p, err := util.FindBinary("ffmpeg", BinaryEnvVar)
		if err != nil {
			return nil, err
		}
		path = p
	}

	version, err := d.queryVersion(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("querying %s version: %w", path, err)
	}
	info := &Info{Path: path, Version: version}

	encoders, err := d.queryEncoders(ctx, path)
	if err != nil {
		d.logger.Warn("listing encoders failed; codec support will not be verified",
			"binary", path, "error", err)
	} else {
		info.encoders = encoders
	}

	d.logger.Info("encoder binary detected",
		"path", path, "version", version, "encoders", len(info.encoders))
	return info, nil
}

// queryVersion parses the leading "ffmpeg version X" line of `-version`
// output.
func (d *Detector) queryVersion(ctx context.Context, path string) (string, error) {
	out, err := d.run(ctx, path, "-version")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "ffmpeg version") {
			if fields := strings.Fields(line); len(fields) >= 3 {
				return fields[2], nil
			}
		}
	}
	return "", fmt.Errorf("unrecognized -version output")
}

// queryEncoders parses `-encoders` output. Encoder lines follow the
// "------" delimiter and carry a six-character capability column before
// the name; only video/audio/subtitle entries matter here.
func (d *Detector) queryEncoders(ctx context.Context, path string) (map[string]struct{}, error) {
	out, err := d.run(ctx, path, "-hide_banner", "-encoders")
	if err != nil {
		return nil, err
	}

	encoders := make(map[string]struct{})
	inList := false
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		switch line[0] {
		case 'V', 'A', 'S':
		default:
			continue
		}
		if fields := strings.Fields(line[6:]); len(fields) > 0 {
			encoders[fields[0]] = struct{}{}
		}
	}
	if len(encoders) == 0 {
		return nil, fmt.Errorf("no encoders parsed from -encoders output")
	}
	return encoders, nil
}
