// Package v4l2 is a minimal pure-Go binding to the Video4Linux2 capture API.
// It talks to /dev/video* nodes directly through ioctls (no cgo, no libv4l),
// covering exactly what format negotiation and read-mode capture need:
// capability query, format/size/interval enumeration, format and frame-rate
// commit, and blocking frame reads.
//
// Struct layouts match the 64-bit Linux UAPI.
package v4l2

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Buffer type: single-planar video capture.
const bufTypeVideoCapture = 1

// Capability flags from the device capability query.
const (
	// CapVideoCapture indicates single-planar capture support.
	CapVideoCapture = 0x00000001
	// CapReadWrite indicates read()/write() I/O support.
	CapReadWrite = 0x01000000
	// CapStreaming indicates mmap/userptr streaming support.
	CapStreaming = 0x04000000
)

// capTimePerFrame in v4l2CaptureParm.capability marks frame-rate control.
const capTimePerFrame = 0x1000

// Frame size / interval enumeration types.
const (
	frmTypeDiscrete = 1
)

type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

type v4l2FmtDesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelFormat uint32
	reserved    [4]uint32
}

type v4l2PixFormat struct {
	width        uint32
	height       uint32
	pixelFormat  uint32
	field        uint32
	bytesPerLine uint32
	sizeImage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

// v4l2Format embeds the 200-byte fmt union; the explicit pad reproduces the
// 64-bit kernel layout where the union is 8-aligned.
type v4l2Format struct {
	typ uint32
	_   uint32
	fmt [200]byte
}

type v4l2CaptureParm struct {
	capability   uint32
	captureMode  uint32
	timePerFrame Fract
	extendedMode uint32
	readBuffers  uint32
	reserved     [4]uint32
}

type v4l2StreamParm struct {
	typ  uint32
	parm [200]byte
}

type v4l2FrmSizeEnum struct {
	index       uint32
	pixelFormat uint32
	typ         uint32
	union       [6]uint32
	reserved    [2]uint32
}

type v4l2FrmIvalEnum struct {
	index       uint32
	pixelFormat uint32
	width       uint32
	height      uint32
	typ         uint32
	union       [6]uint32
	reserved    [2]uint32
}

// Request codes derived from the struct sizes above.
var (
	vidiocQueryCap           = ior('V', 0, unsafe.Sizeof(v4l2Capability{}))
	vidiocEnumFmt            = iowr('V', 2, unsafe.Sizeof(v4l2FmtDesc{}))
	vidiocSetFormat          = iowr('V', 5, unsafe.Sizeof(v4l2Format{}))
	vidiocSetParm            = iowr('V', 22, unsafe.Sizeof(v4l2StreamParm{}))
	vidiocEnumFrameSizes     = iowr('V', 74, unsafe.Sizeof(v4l2FrmSizeEnum{}))
	vidiocEnumFrameIntervals = iowr('V', 75, unsafe.Sizeof(v4l2FrmIvalEnum{}))
)

// Fract is a V4L2 rational number. Frame intervals are seconds per frame.
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// FPS converts a frame interval to frames per second.
func (f Fract) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// Capability describes a capture device.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Capabilities uint32
}

// IsVideoCapture reports whether the device can capture video.
func (c Capability) IsVideoCapture() bool {
	return c.Capabilities&CapVideoCapture != 0
}

// SupportsReadWrite reports whether the device supports read() I/O.
func (c Capability) SupportsReadWrite() bool {
	return c.Capabilities&CapReadWrite != 0
}

// FormatDesc describes one supported pixel format.
type FormatDesc struct {
	PixelFormat FourCC
	Description string
}

// FrameSize is one discrete frame size.
type FrameSize struct {
	Width  uint32
	Height uint32
}

// Format is the driver's view of a committed capture format. The driver may
// adjust the requested values; callers must use these, not what they asked for.
type Format struct {
	PixelFormat  FourCC
	Width        uint32
	Height       uint32
	BytesPerLine uint32
	SizeImage    uint32
}

// Device is an open V4L2 capture node.
type Device struct {
	fd   int
	path string
}

// Open opens a capture device in blocking mode.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Device{fd: fd, path: path}, nil
}

// Path returns the device node path this device was opened from.
func (d *Device) Path() string {
	return d.path
}

// Close releases the device handle.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// Read performs one blocking read of at most len(buf) bytes. For read-mode
// capture drivers each successful read returns exactly one frame.
func (d *Device) Read(buf []byte) (int, error) {
	return unix.Read(d.fd, buf)
}

// Capability queries the device identity and capability flags.
func (d *Device) Capability() (Capability, error) {
	var raw v4l2Capability
	if err := ioctl(d.fd, vidiocQueryCap, unsafe.Pointer(&raw)); err != nil {
		return Capability{}, fmt.Errorf("querying capabilities of %s: %w", d.path, err)
	}
	caps := raw.capabilities
	if raw.capabilities&0x80000000 != 0 { // device_caps valid
		caps = raw.deviceCaps
	}
	return Capability{
		Driver:       cstring(raw.driver[:]),
		Card:         cstring(raw.card[:]),
		BusInfo:      cstring(raw.busInfo[:]),
		Capabilities: caps,
	}, nil
}

// SetFormat commits pixel format and resolution, returning the values the
// driver actually configured.
func (d *Device) SetFormat(pix FourCC, width, height uint32) (Format, error) {
	var raw v4l2Format
	raw.typ = bufTypeVideoCapture

	pf := (*v4l2PixFormat)(unsafe.Pointer(&raw.fmt[0]))
	pf.width = width
	pf.height = height
	pf.pixelFormat = uint32(pix)

	if err := ioctl(d.fd, vidiocSetFormat, unsafe.Pointer(&raw)); err != nil {
		return Format{}, fmt.Errorf("setting format %s %dx%d on %s: %w", pix, width, height, d.path, err)
	}

	return Format{
		PixelFormat:  FourCC(pf.pixelFormat),
		Width:        pf.width,
		Height:       pf.height,
		BytesPerLine: pf.bytesPerLine,
		SizeImage:    pf.sizeImage,
	}, nil
}

// SetFrameRate commits the capture frame interval, returning the interval the
// driver actually configured.
func (d *Device) SetFrameRate(tpf Fract) (Fract, error) {
	var raw v4l2StreamParm
	raw.typ = bufTypeVideoCapture

	cp := (*v4l2CaptureParm)(unsafe.Pointer(&raw.parm[0]))
	cp.capability = capTimePerFrame
	cp.timePerFrame = tpf

	if err := ioctl(d.fd, vidiocSetParm, unsafe.Pointer(&raw)); err != nil {
		return Fract{}, fmt.Errorf("setting frame interval %d/%d on %s: %w",
			tpf.Numerator, tpf.Denominator, d.path, err)
	}
	return cp.timePerFrame, nil
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
