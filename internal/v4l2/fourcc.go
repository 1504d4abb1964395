package v4l2

// FourCC is a V4L2 pixel format code: four ASCII bytes packed little-endian.
type FourCC uint32

// Pixel formats the negotiator knows how to describe to the encoder.
// Anything else falls through to the generic raw mapping.
var (
	PixFmtYUYV  = FourCCFromString("YUYV")
	PixFmtMJPEG = FourCCFromString("MJPG")
)

// FourCCFromString packs a 4-character code. Short strings are padded with
// spaces, longer ones truncated.
func FourCCFromString(s string) FourCC {
	var b [4]byte
	copy(b[:], "    ")
	copy(b[:], s)
	return FourCC(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

// String returns the four-character code, with non-printable bytes replaced.
func (f FourCC) String() string {
	b := [4]byte{
		byte(f),
		byte(f >> 8),
		byte(f >> 16),
		byte(f >> 24),
	}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '.'
		}
	}
	return string(b[:])
}
