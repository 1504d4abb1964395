package alsa

// Hardware parameter space plumbing for the SNDRV_PCM_IOCTL_HW_REFINE /
// HW_PARAMS protocol. The kernel refines a space of masks (access, format,
// subformat) and intervals (channels, rate, period size, ...) against driver
// constraints; committing collapses every dimension to a single value.
// Layouts match the 64-bit Linux UAPI.

// Parameter indices within snd_pcm_hw_params.
const (
	paramAccess    = 0
	paramFormat    = 1
	paramSubformat = 2

	firstMask = paramAccess
	lastMask  = paramSubformat

	paramSampleBits  = 8
	paramFrameBits   = 9
	paramChannels    = 10
	paramRate        = 11
	paramPeriodTime  = 12
	paramPeriodSize  = 13
	paramPeriodBytes = 14
	paramPeriods     = 15
	paramBufferTime  = 16
	paramBufferSize  = 17
	paramBufferBytes = 18
	paramTickTime    = 19

	firstInterval = paramSampleBits
	lastInterval  = paramTickTime
)

// Interval flag bits (openmin, openmax, integer, empty).
const (
	intervalOpenMin = 1 << 0
	intervalOpenMax = 1 << 1
	intervalInteger = 1 << 2
	intervalEmpty   = 1 << 3
)

type mask struct {
	bits [8]uint32
}

type interval struct {
	min   uint32
	max   uint32
	flags uint32
}

type hwParams struct {
	flags     uint32
	masks     [lastMask - firstMask + 1]mask
	mres      [5]mask
	intervals [lastInterval - firstInterval + 1]interval
	ires      [9]interval
	rmask     uint32
	cmask     uint32
	info      uint32
	msbits    uint32
	rateNum   uint32
	rateDen   uint32
	fifoSize  uint64
	reserved  [64]byte
}

// anySpace returns the unconstrained parameter space: every mask bit set,
// every interval spanning the full unsigned range.
func anySpace() hwParams {
	var p hwParams
	for i := range p.masks {
		for j := range p.masks[i].bits {
			p.masks[i].bits[j] = 0xffffffff
		}
	}
	for i := range p.intervals {
		p.intervals[i] = interval{min: 0, max: 0xffffffff}
	}
	return p
}

// setMask collapses a mask parameter to a single allowed value.
func (p *hwParams) setMask(param int, value uint32) {
	m := &p.masks[param-firstMask]
	for i := range m.bits {
		m.bits[i] = 0
	}
	m.bits[value/32] = 1 << (value % 32)
}

// maskTest reports whether a mask parameter still allows a value.
func (p *hwParams) maskTest(param int, value uint32) bool {
	m := &p.masks[param-firstMask]
	return m.bits[value/32]&(1<<(value%32)) != 0
}

// setInterval restricts an interval parameter to [min, max], closed ends.
func (p *hwParams) setInterval(param int, min, max uint32) {
	p.intervals[param-firstInterval] = interval{min: min, max: max, flags: intervalInteger}
}

// intervalRange returns the effective closed bounds of an interval
// parameter, folding in the open-end flags the driver may set.
func (p *hwParams) intervalRange(param int) (min, max uint32) {
	iv := p.intervals[param-firstInterval]
	min, max = iv.min, iv.max
	if iv.flags&intervalOpenMin != 0 {
		min++
	}
	if iv.flags&intervalOpenMax != 0 {
		max--
	}
	return min, max
}

// intervalValue returns the single value of a collapsed interval parameter.
func (p *hwParams) intervalValue(param int) uint32 {
	min, _ := p.intervalRange(param)
	return min
}
