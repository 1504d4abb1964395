// Package alsa is a minimal pure-Go binding to the ALSA PCM capture API.
// It drives /dev/snd/pcmC*D*c nodes directly through ioctls (no cgo, no
// alsa-lib), covering hardware parameter negotiation in the style of the
// alsa-lib set_* helpers plus interleaved blocking reads.
package alsa

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Access modes.
type Access uint32

// AccessRWInterleaved is plain read()-style interleaved I/O.
const AccessRWInterleaved Access = 3

// Format identifies a PCM sample encoding.
type Format uint32

// Little-endian signed encodings. S24LE3 is the packed 3-byte layout, so
// byte arithmetic and raw-stream consumers agree on the sample width.
const (
	FormatS16LE  Format = 2
	FormatS32LE  Format = 10
	FormatS24LE3 Format = 32
)

// Bits returns the sample width in bits.
func (f Format) Bits() int {
	switch f {
	case FormatS16LE:
		return 16
	case FormatS24LE3:
		return 24
	case FormatS32LE:
		return 32
	default:
		return 0
	}
}

// BytesPerSample returns the storage size of one sample.
func (f Format) BytesPerSample() int {
	return f.Bits() / 8
}

// String returns the ALSA name of the format.
func (f Format) String() string {
	switch f {
	case FormatS16LE:
		return "S16_LE"
	case FormatS24LE3:
		return "S24_3LE"
	case FormatS32LE:
		return "S32_LE"
	default:
		return fmt.Sprintf("FORMAT(%d)", uint32(f))
	}
}

const subformatStd = 0

// Request codes ('A' is the PCM ioctl class).
var (
	sndrvPCMInfo        = ior('A', 0x01, unsafe.Sizeof(pcmInfo{}))
	sndrvPCMHWRefine    = iowr('A', 0x10, unsafe.Sizeof(hwParams{}))
	sndrvPCMHWParams    = iowr('A', 0x11, unsafe.Sizeof(hwParams{}))
	sndrvPCMPrepare     = io('A', 0x40)
	sndrvPCMDrop        = io('A', 0x43)
	sndrvPCMReadIFrames = ior('A', 0x51, unsafe.Sizeof(xferI{}))
)

type pcmInfo struct {
	device          uint32
	subdevice       uint32
	stream          int32
	card            int32
	id              [64]byte
	name            [80]byte
	subname         [32]byte
	devClass        int32
	devSubclass     int32
	subdevicesCount uint32
	subdevicesAvail uint32
	syncID          [16]byte
	reserved        [64]byte
}

type xferI struct {
	result int64
	buf    unsafe.Pointer
	frames uint64
}

// ErrXrun reports a capture overrun; the stream needs Prepare before the
// next read.
var ErrXrun = errors.New("alsa: overrun")

// Info describes a PCM device.
type Info struct {
	Card int
	Name string
}

// Params is a committed hardware configuration.
type Params struct {
	Access       Access
	Format       Format
	Channels     uint32
	Rate         uint32
	PeriodFrames uint32
}

// PCM is an open capture node.
type PCM struct {
	fd   int
	path string
}

// OpenCapture opens a PCM capture node (/dev/snd/pcmC*D*c) in blocking mode.
func OpenCapture(path string) (*PCM, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &PCM{fd: fd, path: path}, nil
}

// Path returns the device node path this PCM was opened from.
func (p *PCM) Path() string {
	return p.path
}

// Close releases the device handle.
func (p *PCM) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

// Info queries the device identity.
func (p *PCM) Info() (Info, error) {
	var raw pcmInfo
	if err := ioctl(p.fd, sndrvPCMInfo, unsafe.Pointer(&raw)); err != nil {
		return Info{}, fmt.Errorf("querying info of %s: %w", p.path, err)
	}
	return Info{Card: int(raw.card), Name: cstring(raw.name[:])}, nil
}

// Prepare moves the stream to the prepared state. Required once after
// committing parameters and again after an overrun.
func (p *PCM) Prepare() error {
	if err := ioctl(p.fd, sndrvPCMPrepare, nil); err != nil {
		return fmt.Errorf("preparing %s: %w", p.path, err)
	}
	return nil
}

// Drop stops the stream immediately, discarding pending frames.
func (p *PCM) Drop() error {
	if err := ioctl(p.fd, sndrvPCMDrop, nil); err != nil {
		return fmt.Errorf("stopping %s: %w", p.path, err)
	}
	return nil
}

// ReadInterleaved blocks until frames full sample frames have been captured
// into buf. Returns the number of frames read, ErrXrun on an overrun, and
// the raw error for anything else.
func (p *PCM) ReadInterleaved(buf []byte, frames uint32) (int, error) {
	x := xferI{buf: unsafe.Pointer(&buf[0]), frames: uint64(frames)}
	if err := ioctl(p.fd, sndrvPCMReadIFrames, unsafe.Pointer(&x)); err != nil {
		if errors.Is(err, unix.EPIPE) {
			return 0, ErrXrun
		}
		return 0, fmt.Errorf("reading %s: %w", p.path, err)
	}
	return int(x.result), nil
}

// HWParams starts a hardware parameter negotiation. The returned builder
// holds the refined space; the typed setters mirror the alsa-lib set_*
// helpers, each probing the driver and keeping the space consistent.
func (p *PCM) HWParams() (*HWParams, error) {
	h := &HWParams{pcm: p, space: anySpace()}
	if err := h.refine(&h.space); err != nil {
		return nil, fmt.Errorf("refining initial space of %s: %w", p.path, err)
	}
	return h, nil
}

// HWParams is an in-progress hardware parameter negotiation.
type HWParams struct {
	pcm   *PCM
	space hwParams
}

// refine asks the driver to narrow a candidate space. The kernel rejects a
// space with no remaining configuration with EINVAL.
func (h *HWParams) refine(space *hwParams) error {
	space.rmask = 0xffffffff
	space.cmask = 0
	return ioctl(h.pcm.fd, sndrvPCMHWRefine, unsafe.Pointer(space))
}

// try refines a copy of the space with the given constraint applied and
// installs it on success.
func (h *HWParams) try(constrain func(*hwParams)) error {
	candidate := h.space
	constrain(&candidate)
	if err := h.refine(&candidate); err != nil {
		return err
	}
	h.space = candidate
	return nil
}

// SetAccess constrains the access mode.
func (h *HWParams) SetAccess(a Access) error {
	if err := h.try(func(p *hwParams) { p.setMask(paramAccess, uint32(a)) }); err != nil {
		return fmt.Errorf("access %d rejected by %s: %w", a, h.pcm.path, err)
	}
	return nil
}

// SetFormat constrains the sample format.
func (h *HWParams) SetFormat(f Format) error {
	if err := h.try(func(p *hwParams) { p.setMask(paramFormat, uint32(f)) }); err != nil {
		return fmt.Errorf("format %s rejected by %s: %w", f, h.pcm.path, err)
	}
	return nil
}

// SetChannels constrains the channel count.
func (h *HWParams) SetChannels(n uint32) error {
	if err := h.try(func(p *hwParams) { p.setInterval(paramChannels, n, n) }); err != nil {
		return fmt.Errorf("%d channels rejected by %s: %w", n, h.pcm.path, err)
	}
	return nil
}

// SetRateNear constrains the sample rate to the supported value closest to
// rate and returns it.
func (h *HWParams) SetRateNear(rate uint32) (uint32, error) {
	got, err := h.setIntervalNear(paramRate, rate)
	if err != nil {
		return 0, fmt.Errorf("no usable rate near %d Hz on %s: %w", rate, h.pcm.path, err)
	}
	return got, nil
}

// SetPeriodSizeNear constrains the period size to the supported frame count
// closest to frames and returns it. Callers may treat failure as non-fatal
// and keep the driver's default period.
func (h *HWParams) SetPeriodSizeNear(frames uint32) (uint32, error) {
	got, err := h.setIntervalNear(paramPeriodSize, frames)
	if err != nil {
		return 0, fmt.Errorf("no usable period near %d frames on %s: %w", frames, h.pcm.path, err)
	}
	return got, nil
}

// setIntervalNear finds the supported value of an interval parameter closest
// to want, probing the space above and below, then pins it.
func (h *HWParams) setIntervalNear(param int, want uint32) (uint32, error) {
	above := h.space
	above.setInterval(param, want, 0xffffffff)
	errAbove := h.refine(&above)
	if errAbove == nil {
		if lo, _ := above.intervalRange(param); lo == want {
			h.space = above
			return h.pin(param, want)
		}
	}

	below := h.space
	below.setInterval(param, 0, want)
	errBelow := h.refine(&below)

	switch {
	case errAbove == nil && errBelow == nil:
		lo, _ := above.intervalRange(param)
		_, hi := below.intervalRange(param)
		if want-hi < lo-want {
			h.space = below
			return h.pin(param, hi)
		}
		h.space = above
		return h.pin(param, lo)
	case errAbove == nil:
		lo, _ := above.intervalRange(param)
		h.space = above
		return h.pin(param, lo)
	case errBelow == nil:
		_, hi := below.intervalRange(param)
		h.space = below
		return h.pin(param, hi)
	default:
		return 0, errAbove
	}
}

// pin collapses an interval parameter to a single already-validated value.
func (h *HWParams) pin(param int, value uint32) (uint32, error) {
	if err := h.try(func(p *hwParams) { p.setInterval(param, value, value) }); err != nil {
		return 0, err
	}
	return value, nil
}

// Commit installs the negotiated configuration on the hardware and returns
// the single values the driver chose.
func (h *HWParams) Commit() (Params, error) {
	space := h.space
	space.setMask(paramSubformat, subformatStd)
	space.rmask = 0xffffffff
	space.cmask = 0
	if err := ioctl(h.pcm.fd, sndrvPCMHWParams, unsafe.Pointer(&space)); err != nil {
		return Params{}, fmt.Errorf("committing hw params on %s: %w", h.pcm.path, err)
	}
	h.space = space

	params := Params{
		Channels:     space.intervalValue(paramChannels),
		Rate:         space.intervalValue(paramRate),
		PeriodFrames: space.intervalValue(paramPeriodSize),
	}
	if space.maskTest(paramAccess, uint32(AccessRWInterleaved)) {
		params.Access = AccessRWInterleaved
	}
	for _, f := range []Format{FormatS16LE, FormatS24LE3, FormatS32LE} {
		if space.maskTest(paramFormat, uint32(f)) {
			params.Format = f
			break
		}
	}
	return params, nil
}

// cstring converts a NUL-terminated byte array to a string.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
