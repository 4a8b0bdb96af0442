package extractor

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// magnitudePattern finds a number directly followed by a magnitude suffix,
// e.g. "1.2K", "3 M" or "4 thousand".
var magnitudePattern = regexp.MustCompile(`(?i)\d\s*(thousand|million|k|m)\b`)

// ParseCount parses a localized, abbreviated engagement counter.
//
// Everything except digits and the decimal point is dropped. When the text
// carries a thousand or million suffix the decimal value is scaled and
// floored; otherwise the leading integer is used. Unparseable input is 0.
func ParseCount(s string) int64 {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0
	}

	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return 0
	}

	if mult, ok := magnitudeOf(raw); ok {
		v, err := strconv.ParseFloat(digits, 64)
		if err != nil || v < 0 {
			return 0
		}
		// Small epsilon so 1.005*1000 floors to 1005, not 1004.
		return int64(math.Floor(v*mult + 1e-6))
	}

	end := strings.IndexByte(digits, '.')
	if end < 0 {
		end = len(digits)
	}
	n, err := strconv.ParseInt(digits[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// magnitudeOf reports the multiplier for a magnitude suffix in raw.
func magnitudeOf(raw string) (float64, bool) {
	m := magnitudePattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	switch strings.ToLower(m[1]) {
	case "k", "thousand":
		return 1_000, true
	default:
		return 1_000_000, true
	}
}
