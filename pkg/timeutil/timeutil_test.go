package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMondayOf(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday itself", time.Date(2024, 3, 4, 10, 0, 0, 0, ServerTZ), time.Date(2024, 3, 4, 0, 0, 0, 0, ServerTZ)},
		{"sunday", time.Date(2024, 3, 10, 23, 59, 0, 0, ServerTZ), time.Date(2024, 3, 4, 0, 0, 0, 0, ServerTZ)},
		{"wednesday", time.Date(2024, 3, 6, 1, 0, 0, 0, ServerTZ), time.Date(2024, 3, 4, 0, 0, 0, 0, ServerTZ)},
		// 2024-03-10 20:00 UTC is already Monday 04:00 in UTC+8.
		{"utc input crosses into monday", time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, ServerTZ)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(MondayOf(tt.in, ServerTZ)), "got %s", MondayOf(tt.in, ServerTZ))
		})
	}
}

func TestWeeksInISOYear(t *testing.T) {
	assert.Equal(t, 53, WeeksInISOYear(2020))
	assert.Equal(t, 52, WeeksInISOYear(2023))
	assert.Equal(t, 52, WeeksInISOYear(2024))
	assert.Equal(t, 53, WeeksInISOYear(2026))
}

func TestISOWeekMonday(t *testing.T) {
	monday, err := ISOWeekMonday(2025, 1, ServerTZ)
	require.NoError(t, err)
	assert.Equal(t, "2024-12-30", monday.Format(DateFormat))

	monday, err = ISOWeekMonday(2024, 10, ServerTZ)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", monday.Format(DateFormat))

	_, err = ISOWeekMonday(2023, 53, ServerTZ)
	assert.ErrorIs(t, err, ErrInvalidISOWeek)

	_, err = ISOWeekMonday(2024, 0, ServerTZ)
	assert.ErrorIs(t, err, ErrInvalidISOWeek)
}

func TestWeeksBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, ServerTZ)
	assert.Equal(t, 0, WeeksBetween(a, a))
	assert.Equal(t, 9, WeeksBetween(a, a.AddDate(0, 0, 63)))
	assert.Equal(t, -1, WeeksBetween(a, a.AddDate(0, 0, -7)))
	assert.Equal(t, -1, WeeksBetween(a, a.AddDate(0, 0, -1)))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("UTC+8")
	require.NoError(t, err)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 8*3600, offset)

	loc, err = LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, ServerTZ, loc)

	_, err = LoadLocation("UTC+20")
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	ts := time.Date(2024, 3, 6, 1, 5, 0, 0, time.UTC)
	assert.Equal(t, "Wednesday", WeekdayName(ts, ServerTZ))
	assert.Equal(t, "09:05", FormatClock(ts, ServerTZ))
}
