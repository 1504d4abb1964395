package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size value that supports human-readable parsing, so
// thresholds can be written as "100MB" or "1.5GB" in the config file.
// Units use the binary (1024) base; a bare number is bytes.
//
// Implements encoding.TextUnmarshaler for Viper/YAML support.
type ByteSize int64

// Size constants using the binary base.
const (
	B  ByteSize = 1
	KB ByteSize = 1024 * B
	MB ByteSize = 1024 * KB
	GB ByteSize = 1024 * MB
	TB ByteSize = 1024 * GB
)

var byteUnits = map[string]ByteSize{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"kib": KB,
	"m":   MB,
	"mb":  MB,
	"mib": MB,
	"g":   GB,
	"gb":  GB,
	"gib": GB,
	"t":   TB,
	"tb":  TB,
	"tib": TB,
}

// bytePattern matches an integer or decimal value with an optional unit.
var bytePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// ParseByteSize parses a human-readable byte size string such as "5MB",
// "1.5 GB" or "5242880".
func ParseByteSize(s string) (ByteSize, error) {
	m := bytePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}

	unit, ok := byteUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q", m[2])
	}

	return ByteSize(value * float64(unit)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// Megabytes returns the size in whole mebibytes, rounding down.
func (b ByteSize) Megabytes() int64 {
	return int64(b / MB)
}

// String returns the size using the largest unit with a value >= 1.
func (b ByteSize) String() string {
	if b == 0 {
		return "0B"
	}
	neg := ""
	if b < 0 {
		neg, b = "-", -b
	}
	switch {
	case b >= TB:
		return neg + formatUnit(float64(b)/float64(TB), "TB")
	case b >= GB:
		return neg + formatUnit(float64(b)/float64(GB), "GB")
	case b >= MB:
		return neg + formatUnit(float64(b)/float64(MB), "MB")
	case b >= KB:
		return neg + formatUnit(float64(b)/float64(KB), "KB")
	default:
		return fmt.Sprintf("%s%dB", neg, int64(b))
	}
}

func formatUnit(v float64, unit string) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d%s", int64(v), unit)
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + unit
}
