// Package timeutil provides calendar helpers for the game server timezone (UTC+8).
// Arena weeks start on Monday 00:00 server time and are numbered with ISO-8601 rules,
// so everything here works on ISO weeks and Monday anchors.
package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// ServerTZ is the game server timezone (UTC+8, no DST).
var ServerTZ = time.FixedZone("Asia/Shanghai", 8*60*60)

// Date format constants.
const (
	DateFormat     = "2006-01-02"
	ClockFormat    = "15:04"
	DateTimeFormat = "2006-01-02 15:04"
)

// ErrInvalidISOWeek is returned when a (year, week) pair does not exist in the ISO calendar.
var ErrInvalidISOWeek = errors.New("invalid iso week")

// In converts t to loc, falling back to ServerTZ when loc is nil.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = ServerTZ
	}
	return t.In(loc)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := In(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// MondayOf returns Monday 00:00 of the ISO week containing t in loc.
func MondayOf(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0, Sunday = 6
	return day.AddDate(0, 0, -offset)
}

// WeeksInISOYear returns 52 or 53. December 28th always falls in the last ISO week.
func WeeksInISOYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}

// ISOWeekMonday returns Monday 00:00 (in loc) of ISO week `week` of ISO year `year`.
func ISOWeekMonday(year, week int, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = ServerTZ
	}
	if year < 1 || year > 9999 {
		return time.Time{}, fmt.Errorf("%w: year %d out of range", ErrInvalidISOWeek, year)
	}
	if week < 1 || week > WeeksInISOYear(year) {
		return time.Time{}, fmt.Errorf("%w: week %d of %d", ErrInvalidISOWeek, week, year)
	}

	// January 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	return MondayOf(jan4, loc).AddDate(0, 0, (week-1)*7), nil
}

// WeeksBetween returns the number of whole weeks from `from` to `to`, both Monday anchors.
// Calendar days are counted, so it is stable across offsets and leap years.
func WeeksBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	days := int(b.Sub(a).Hours() / 24)
	return floorDiv(days, 7)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// WeekdayName returns the English weekday name of t in loc.
func WeekdayName(t time.Time, loc *time.Location) string {
	return In(t, loc).Weekday().String()
}

// FormatClock formats t as HH:MM in loc.
func FormatClock(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(ClockFormat)
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = ServerTZ
	}
	t, err := time.ParseInLocation(DateFormat, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}

// LoadLocation resolves a timezone name. An offset of the form "UTC+8" is accepted
// in addition to IANA names so that hosts without tzdata still work.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return ServerTZ, nil
	}
	var sign rune
	var hours int
	if n, _ := fmt.Sscanf(name, "UTC%c%d", &sign, &hours); n == 2 && (sign == '+' || sign == '-') {
		if hours > 14 {
			return nil, fmt.Errorf("timezone offset out of range: %s", name)
		}
		offset := hours * 3600
		if sign == '-' {
			offset = -offset
		}
		return time.FixedZone(name, offset), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
