package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ms(year int, month time.Month, day, hour, minute, sec int) int64 {
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC).UnixMilli()
}

func TestNormalize(t *testing.T) {
	want := ms(2024, time.January, 15, 10, 30, 0)

	tests := []struct {
		name string
		raw  string
		want int64
	}{
		{"T separator with Z", "2024-01-15T10:30:00Z", want},
		{"space separator", "2024-01-15 10:30:00", want},
		{"T separator without Z", "2024-01-15T10:30:00", want},
		{"buddhist year with space", "2567-01-15 10:30:00", want},
		{"buddhist year with T and Z", "2567-01-15T10:30:00Z", want},
		{"fractional seconds", "2024-01-15T10:30:00.250Z", want},
		{"no seconds", "2024-01-15 10:30", want},
		{"single digit fields", "2024-1-15 10:30:00", want},
		{"surrounding whitespace", "  2024-01-15 10:30:00 ", want},
		{"date only falls back", "2024-01-15", ms(2024, time.January, 15, 0, 0, 0)},
		{"buddhist date only falls back", "2567-01-15", ms(2024, time.January, 15, 0, 0, 0)},
		{"explicit offset keeps wall clock", "2024-01-15T10:30:00+07:00", want},
		{"negative offset keeps wall clock", "2024-01-15T10:30:00-05:00", want},
		{"RFC1123 with offset keeps wall clock", "Mon, 15 Jan 2024 10:30:00 +0700", want},
		{"year 2500 is not corrected", "2500-01-01 00:00:00", ms(2500, time.January, 1, 0, 0, 0)},
		{"empty", "", 0},
		{"garbage", "not a timestamp", 0},
		{"time only", "10:30:00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalize_EncodingsOfSameInstantAgree(t *testing.T) {
	utc := Normalize("2024-01-15T10:30:00Z")
	buddhist := Normalize("2567-01-15 10:30:00")
	gregorian := Normalize("2024-01-15 10:30:00")

	assert.Equal(t, gregorian, buddhist)
	// "Z" is stripped without a zone shift: the UTC marker is read as local wall time.
	assert.Equal(t, gregorian, utc)
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := "2567-06-01T23:59:59.999Z"
	first := Normalize(raw)
	for range 10 {
		assert.Equal(t, first, Normalize(raw))
	}
}

func TestWallClockMillis(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)
	instant := time.Date(2024, time.January, 15, 3, 30, 0, 0, time.UTC)

	assert.Equal(t, ms(2024, time.January, 15, 3, 30, 0), WallClockMillis(instant))
	assert.Equal(t, ms(2024, time.January, 15, 10, 30, 0), WallClockMillis(instant.In(bangkok)))
	assert.Equal(t, Normalize("2024-01-15 10:30:00"), WallClockMillis(instant.In(bangkok)))
}
