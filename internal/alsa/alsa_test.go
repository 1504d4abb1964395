package alsa

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestFormatWidths(t *testing.T) {
	tests := []struct {
		format Format
		bits   int
		name   string
	}{
		{FormatS16LE, 16, "S16_LE"},
		{FormatS24LE3, 24, "S24_3LE"},
		{FormatS32LE, 32, "S32_LE"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bits, tt.format.Bits())
		assert.Equal(t, tt.bits/8, tt.format.BytesPerSample())
		assert.Equal(t, tt.name, tt.format.String())
	}

	assert.Zero(t, Format(99).Bits())
	assert.Equal(t, "FORMAT(99)", Format(99).String())
}

// The ioctl request codes encode the struct sizes; these are the values the
// 64-bit kernel UAPI expects, so a layout drift breaks loudly here.
func TestRequestCodes(t *testing.T) {
	assert.Equal(t, uintptr(0x81204101), sndrvPCMInfo)
	assert.Equal(t, uintptr(0xc2604110), sndrvPCMHWRefine)
	assert.Equal(t, uintptr(0xc2604111), sndrvPCMHWParams)
	assert.Equal(t, uintptr(0x4140), sndrvPCMPrepare)
	assert.Equal(t, uintptr(0x4143), sndrvPCMDrop)
	assert.Equal(t, uintptr(0x80184151), sndrvPCMReadIFrames)
}

func TestStructSizes(t *testing.T) {
	assert.Equal(t, uintptr(608), unsafe.Sizeof(hwParams{}))
	assert.Equal(t, uintptr(288), unsafe.Sizeof(pcmInfo{}))
	assert.Equal(t, uintptr(24), unsafe.Sizeof(xferI{}))
}

func TestAnySpace(t *testing.T) {
	p := anySpace()

	for _, param := range []int{paramAccess, paramFormat, paramSubformat} {
		assert.True(t, p.maskTest(param, 0))
		assert.True(t, p.maskTest(param, 255))
	}
	for param := firstInterval; param <= lastInterval; param++ {
		min, max := p.intervalRange(param)
		assert.Zero(t, min)
		assert.Equal(t, uint32(0xffffffff), max)
	}
}

func TestSetMask(t *testing.T) {
	p := anySpace()
	p.setMask(paramFormat, uint32(FormatS24LE3))

	assert.True(t, p.maskTest(paramFormat, uint32(FormatS24LE3)))
	assert.False(t, p.maskTest(paramFormat, uint32(FormatS16LE)))
	assert.False(t, p.maskTest(paramFormat, uint32(FormatS32LE)))
	// Other masks are untouched.
	assert.True(t, p.maskTest(paramAccess, uint32(AccessRWInterleaved)))
}

func TestSetInterval(t *testing.T) {
	p := anySpace()
	p.setInterval(paramRate, 44100, 48000)

	min, max := p.intervalRange(paramRate)
	assert.Equal(t, uint32(44100), min)
	assert.Equal(t, uint32(48000), max)
	assert.Equal(t, uint32(intervalInteger), p.intervals[paramRate-firstInterval].flags)
}

func TestIntervalRange_OpenEnds(t *testing.T) {
	var p hwParams
	p.intervals[paramChannels-firstInterval] = interval{
		min:   1,
		max:   8,
		flags: intervalOpenMin | intervalOpenMax,
	}

	min, max := p.intervalRange(paramChannels)
	assert.Equal(t, uint32(2), min)
	assert.Equal(t, uint32(7), max)
}

func TestIntervalValue(t *testing.T) {
	var p hwParams
	p.intervals[paramPeriodSize-firstInterval] = interval{min: 960, max: 960, flags: intervalInteger}
	assert.Equal(t, uint32(960), p.intervalValue(paramPeriodSize))
}

func TestCString(t *testing.T) {
	assert.Equal(t, "USB Audio", cstring([]byte("USB Audio\x00junk")))
	assert.Equal(t, "full", cstring([]byte("full")))
}
