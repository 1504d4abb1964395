package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/autorec/autorec/internal/v4l2"
)

// Discoverer finds the current device node for a media kind.
type Discoverer interface {
	// Discover returns the canonical node path for the kind, or found=false
	// when nothing is attached. Absence is a normal state, not an error.
	Discover(ctx context.Context, kind Kind) (path string, found bool, err error)
}

var (
	videoNodeRe  = regexp.MustCompile(`^video(\d+)$`)
	pcmCaptureRe = regexp.MustCompile(`^pcmC(\d+)D(\d+)c$`)
)

// SysfsDiscoverer scans the kernel's device registries: video nodes through
// the video4linux sysfs class, audio capture nodes through /dev/snd. Video
// nodes are probed with a capability query so that metadata companion nodes
// (UVC cameras expose one next to the capture node) are skipped. Audio
// nodes are matched by name only; PCM capture nodes are exclusive-open and
// probing one would steal it from a running capture.
type SysfsDiscoverer struct {
	VideoClassDir string
	DevDir        string
	SndDir        string

	probeVideo func(path string) bool
}

// NewSysfsDiscoverer returns a discoverer over the standard kernel paths.
func NewSysfsDiscoverer() *SysfsDiscoverer {
	return &SysfsDiscoverer{
		VideoClassDir: "/sys/class/video4linux",
		DevDir:        "/dev",
		SndDir:        "/dev/snd",
		probeVideo:    probeVideoCapture,
	}
}

func (d *SysfsDiscoverer) Discover(ctx context.Context, kind Kind) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	switch kind {
	case KindVideo:
		return d.discoverVideo()
	case KindAudio:
		return d.discoverAudio()
	default:
		return "", false, fmt.Errorf("unknown media kind %d", kind)
	}
}

// discoverVideo picks the lowest-numbered video node that answers a
// capability probe as a capture device.
func (d *SysfsDiscoverer) discoverVideo() (string, bool, error) {
	entries, err := os.ReadDir(d.VideoClassDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", d.VideoClassDir, err)
	}

	type node struct {
		name  string
		index int
	}
	var nodes []node
	for _, e := range entries {
		m := videoNodeRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		index, _ := strconv.Atoi(m[1])
		nodes = append(nodes, node{name: e.Name(), index: index})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })

	for _, n := range nodes {
		path := filepath.Join(d.DevDir, n.name)
		if d.probeVideo(path) {
			return path, true, nil
		}
	}
	return "", false, nil
}

// discoverAudio picks the first PCM capture node ordered by card then
// device number.
func (d *SysfsDiscoverer) discoverAudio() (string, bool, error) {
	entries, err := os.ReadDir(d.SndDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", d.SndDir, err)
	}

	type node struct {
		name         string
		card, device int
	}
	var nodes []node
	for _, e := range entries {
		m := pcmCaptureRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		card, _ := strconv.Atoi(m[1])
		dev, _ := strconv.Atoi(m[2])
		nodes = append(nodes, node{name: e.Name(), card: card, device: dev})
	}
	if len(nodes) == 0 {
		return "", false, nil
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].card != nodes[j].card {
			return nodes[i].card < nodes[j].card
		}
		return nodes[i].device < nodes[j].device
	})
	return filepath.Join(d.SndDir, nodes[0].name), true, nil
}

func probeVideoCapture(path string) bool {
	dev, err := v4l2.Open(path)
	if err != nil {
		return false
	}
	defer dev.Close()

	c, err := dev.Capability()
	if err != nil {
		return false
	}
	return c.IsVideoCapture() && c.SupportsReadWrite()
}
