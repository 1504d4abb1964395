package v4l2

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestFourCCRoundTrip(t *testing.T) {
	tests := []struct {
		s    string
		code FourCC
	}{
		{"YUYV", PixFmtYUYV},
		{"MJPG", PixFmtMJPEG},
		{"H264", FourCCFromString("H264")},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, FourCCFromString(tt.s))
		assert.Equal(t, tt.s, tt.code.String())
	}
}

func TestFourCCFromString_Padding(t *testing.T) {
	assert.Equal(t, "RGB ", FourCCFromString("RGB").String())
	assert.Equal(t, "ABCD", FourCCFromString("ABCDEF").String())
}

func TestFourCCString_NonPrintable(t *testing.T) {
	assert.Equal(t, "....", FourCC(0x01020304).String())
}

func TestFractFPS(t *testing.T) {
	assert.InDelta(t, 30.0, Fract{Numerator: 1, Denominator: 30}.FPS(), 1e-9)
	assert.InDelta(t, 29.97, Fract{Numerator: 1001, Denominator: 30000}.FPS(), 1e-3)
	assert.Zero(t, Fract{}.FPS())
}

// The ioctl request codes encode the struct sizes; these are the values the
// 64-bit kernel UAPI expects, so a layout drift breaks loudly here.
func TestRequestCodes(t *testing.T) {
	assert.Equal(t, uintptr(0x80685600), vidiocQueryCap)
	assert.Equal(t, uintptr(0xc0405602), vidiocEnumFmt)
	assert.Equal(t, uintptr(0xc0d05605), vidiocSetFormat)
	assert.Equal(t, uintptr(0xc0cc5616), vidiocSetParm)
	assert.Equal(t, uintptr(0xc02c564a), vidiocEnumFrameSizes)
	assert.Equal(t, uintptr(0xc034564b), vidiocEnumFrameIntervals)
}

func TestStructSizes(t *testing.T) {
	assert.Equal(t, uintptr(104), unsafe.Sizeof(v4l2Capability{}))
	assert.Equal(t, uintptr(64), unsafe.Sizeof(v4l2FmtDesc{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(v4l2PixFormat{}))
	assert.Equal(t, uintptr(208), unsafe.Sizeof(v4l2Format{}))
	assert.Equal(t, uintptr(40), unsafe.Sizeof(v4l2CaptureParm{}))
	assert.Equal(t, uintptr(204), unsafe.Sizeof(v4l2StreamParm{}))
	assert.Equal(t, uintptr(44), unsafe.Sizeof(v4l2FrmSizeEnum{}))
	assert.Equal(t, uintptr(52), unsafe.Sizeof(v4l2FrmIvalEnum{}))
}

func TestCapabilityFlags(t *testing.T) {
	c := Capability{Capabilities: CapVideoCapture | CapReadWrite}
	assert.True(t, c.IsVideoCapture())
	assert.True(t, c.SupportsReadWrite())

	assert.False(t, Capability{Capabilities: CapStreaming}.IsVideoCapture())
}

func TestCString(t *testing.T) {
	assert.Equal(t, "uvcvideo", cstring([]byte("uvcvideo\x00junk")))
	assert.Equal(t, "full", cstring([]byte("full")))
}
