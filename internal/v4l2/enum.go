package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EnumFormats lists the pixel formats the device supports for capture, in
// driver order. The driver signals the end of the list with EINVAL.
func (d *Device) EnumFormats() ([]FormatDesc, error) {
	var out []FormatDesc
	for index := uint32(0); ; index++ {
		raw := v4l2FmtDesc{index: index, typ: bufTypeVideoCapture}
		if err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&raw)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return out, nil
			}
			return out, fmt.Errorf("enumerating formats of %s: %w", d.path, err)
		}
		out = append(out, FormatDesc{
			PixelFormat: FourCC(raw.pixelFormat),
			Description: cstring(raw.description[:]),
		})
	}
}

// EnumFrameSizes lists the discrete frame sizes for a pixel format. Devices
// advertising continuous or stepwise ranges yield no discrete entries.
func (d *Device) EnumFrameSizes(pix FourCC) ([]FrameSize, error) {
	var out []FrameSize
	for index := uint32(0); ; index++ {
		raw := v4l2FrmSizeEnum{index: index, pixelFormat: uint32(pix)}
		if err := ioctl(d.fd, vidiocEnumFrameSizes, unsafe.Pointer(&raw)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return out, nil
			}
			return out, fmt.Errorf("enumerating frame sizes of %s: %w", d.path, err)
		}
		if raw.typ != frmTypeDiscrete {
			return out, nil
		}
		out = append(out, FrameSize{Width: raw.union[0], Height: raw.union[1]})
	}
}

// EnumFrameIntervals lists the discrete frame intervals for a pixel format at
// a given frame size.
func (d *Device) EnumFrameIntervals(pix FourCC, width, height uint32) ([]Fract, error) {
	var out []Fract
	for index := uint32(0); ; index++ {
		raw := v4l2FrmIvalEnum{
			index:       index,
			pixelFormat: uint32(pix),
			width:       width,
			height:      height,
		}
		if err := ioctl(d.fd, vidiocEnumFrameIntervals, unsafe.Pointer(&raw)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return out, nil
			}
			return out, fmt.Errorf("enumerating frame intervals of %s: %w", d.path, err)
		}
		if raw.typ != frmTypeDiscrete {
			return out, nil
		}
		out = append(out, Fract{Numerator: raw.union[0], Denominator: raw.union[1]})
	}
}
