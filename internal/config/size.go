package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// sizeUnits maps upper-cased suffixes to byte multipliers. Longer suffixes
// come first so "KIB" is matched before "B".
var sizeUnits = []struct {
	suffix     string
	multiplier float64
}{
	{"TIB", 1 << 40},
	{"GIB", 1 << 30},
	{"MIB", 1 << 20},
	{"KIB", 1 << 10},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

// ParseSize converts a byte count such as "64KiB", "1.5 MB" or "4096" to
// bytes. SI and IEC suffixes are accepted case-insensitively, with optional
// space before the unit. Empty input means zero, which disables a byte
// threshold. Negative and out-of-range sizes are rejected.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	num, multiplier := s, 1.0
	upper := strings.ToUpper(s)

	for _, u := range sizeUnits {
		if strings.HasSuffix(upper, u.suffix) {
			num = strings.TrimSpace(s[:len(s)-len(u.suffix)])
			multiplier = u.multiplier

			break
		}
	}

	if multiplier == 1 {
		if n, err := strconv.ParseInt(num, 10, 64); err == nil {
			return checkSize(s, float64(n), n)
		}
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	bytes := f * multiplier
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return checkSize(s, bytes, int64(bytes))
}

func checkSize(s string, f float64, n int64) (int64, error) {
	if f < 0 || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return n, nil
}
