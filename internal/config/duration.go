package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// extendedUnits maps day-scale units to their length in hours.
// time.ParseDuration stops at hours, but retention ages read more
// naturally as days or weeks.
var extendedUnits = map[string]int64{
	"d":     24,
	"day":   24,
	"days":  24,
	"w":     24 * 7,
	"week":  24 * 7,
	"weeks": 24 * 7,
}

// extendedUnitPattern matches a day-scale component such as "30d" or
// "2 weeks", with optional whitespace between number and unit.
var extendedUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(days?|d|weeks?|w)\b`)

// ParseDuration parses a duration string, extending time.ParseDuration
// with day (d) and week (w) units so values like "30d" or "2w12h" work
// in config files. Day-scale components are converted to hours and the
// remainder is handed to time.ParseDuration.
func ParseDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	negative := strings.HasPrefix(trimmed, "-")
	if negative {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
	}

	var hours int64
	remainder := extendedUnitPattern.ReplaceAllStringFunc(trimmed, func(match string) string {
		parts := extendedUnitPattern.FindStringSubmatch(match)
		value, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return match
		}
		hours += value * extendedUnits[strings.ToLower(parts[2])]
		return ""
	})

	total := time.Duration(hours) * time.Hour
	if remainder = strings.TrimSpace(remainder); remainder != "" {
		rest, err := time.ParseDuration(remainder)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		total += rest
	}

	if negative {
		total = -total
	}
	return total, nil
}

// stringToDurationHookFunc decodes strings into time.Duration using
// ParseDuration, so config durations accept day and week units.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return ParseDuration(data.(string))
	}
}
