package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// buddhistEraOffset converts a Buddhist-calendar year to its Gregorian
// equivalent. Years above buddhistEraThreshold are assumed to be Buddhist.
const (
	buddhistEraOffset    = 543
	buddhistEraThreshold = 2500
)

var (
	// leadingYearRe captures the 4-digit year at the start of a timestamp.
	leadingYearRe = regexp.MustCompile(`^\s*(\d{4})`)

	// dateTimeRe extracts "YYYY-MM-DD[T ]HH:MM[:SS]" after the trailing "Z"
	// and any fractional seconds have been stripped.
	dateTimeRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})[T ](\d{1,2}):(\d{2})(?::(\d{2}))?$`)

	// fractionRe matches a sub-second fraction directly after the seconds field.
	fractionRe = regexp.MustCompile(`(:\d{2})\.\d+`)
)

// fallbackLayouts are tried in order when regex extraction fails.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02/01/2006 15:04:05",
}

// Normalize converts a raw timestamp into epoch milliseconds.
//
// The date and time components are read as naive wall-clock time and encoded
// as if they were UTC; no zone shift is applied, including for a trailing "Z"
// or an explicit offset.
// Buddhist-calendar years (> 2500) are corrected by subtracting 543.
// Unparseable input yields 0, which callers must treat as a sentinel.
func Normalize(raw string) int64 {
	s := correctYear(strings.TrimSpace(raw))
	if s == "" {
		return 0
	}

	if ms, ok := extractComponents(s); ok {
		return ms
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return WallClockMillis(t)
		}
	}
	return 0
}

// correctYear rewrites a leading Buddhist-era year to the Gregorian year.
func correctYear(s string) string {
	m := leadingYearRe.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	year, err := strconv.Atoi(s[m[2]:m[3]])
	if err != nil || year <= buddhistEraThreshold {
		return s
	}
	return s[:m[2]] + strconv.Itoa(year-buddhistEraOffset) + s[m[3]:]
}

func extractComponents(s string) (int64, bool) {
	s = strings.TrimSuffix(s, "Z")
	s = fractionRe.ReplaceAllString(s, "$1")

	m := dateTimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	parts := make([]int, 6)
	for i := 1; i <= 6; i++ {
		if m[i] == "" {
			continue
		}
		v, err := strconv.Atoi(m[i])
		if err != nil {
			return 0, false
		}
		parts[i-1] = v
	}

	t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
	return t.UnixMilli(), true
}

// WallClockMillis encodes t's wall-clock reading, in t's own location, the
// same naive way Normalize encodes feed timestamps. Use it to compare "now"
// against normalized sample times.
func WallClockMillis(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC).UnixMilli()
}
