package arena

import (
	"fmt"
	"time"

	"github.com/jianghu-hub/arena-hub/pkg/timeutil"
)

// WeekStatus tells how the server-reported week relates to the current week.
type WeekStatus string

const (
	WeekSettled WeekStatus = "settled"
	WeekCurrent WeekStatus = "current"
	WeekFuture  WeekStatus = "future"
)

// SeasonWeek is the labelled result of a season week computation.
type SeasonWeek struct {
	Label         string     `json:"label"`
	Week          int        `json:"week"`
	WeekNow       int        `json:"weekNow"`
	WeekFromAPI   int        `json:"weekFromApi"`
	ServerWeek    int        `json:"serverWeek"`
	Status        WeekStatus `json:"status"`
	TargetMonday  time.Time  `json:"targetMonday"`
	CurrentMonday time.Time  `json:"currentMonday"`

	// Fallback is set when the server week could not be placed in the ISO calendar.
	Fallback bool `json:"fallback"`
}

// SeasonCalculator maps server-reported ISO week numbers to season week labels.
type SeasonCalculator struct {
	loc *time.Location
}

// NewSeasonCalculator creates a calculator working in loc (server time by default).
func NewSeasonCalculator(loc *time.Location) *SeasonCalculator {
	if loc == nil {
		loc = timeutil.ServerTZ
	}
	return &SeasonCalculator{loc: loc}
}

// Location returns the calculator timezone.
func (c *SeasonCalculator) Location() *time.Location { return c.loc }

// halfYearWeeks is the distance beyond which a server week is assumed to belong
// to the neighbouring ISO year.
const halfYearWeeks = 26

// Compute labels serverWeek relative to seasonStart at now.
func (c *SeasonCalculator) Compute(serverWeek int, seasonStart, now time.Time) SeasonWeek {
	anchor := timeutil.MondayOf(seasonStart, c.loc)
	currentMonday := timeutil.MondayOf(now, c.loc)
	weekNow := seasonWeek(anchor, currentMonday)

	isoYear, isoWeek := now.In(c.loc).ISOWeek()
	year := isoYear
	switch {
	case serverWeek-isoWeek > halfYearWeeks:
		year--
	case isoWeek-serverWeek > halfYearWeeks:
		year++
	}

	result := SeasonWeek{
		WeekNow:       weekNow,
		ServerWeek:    serverWeek,
		CurrentMonday: currentMonday,
	}

	target, err := timeutil.ISOWeekMonday(year, serverWeek, c.loc)
	if err != nil {
		target = currentMonday
		result.Fallback = true
	}
	result.TargetMonday = target
	result.WeekFromAPI = seasonWeek(anchor, target)

	inProgress := func(week int) string {
		return fmt.Sprintf("Week %d %s %s", week,
			timeutil.WeekdayName(now, c.loc), timeutil.FormatClock(now, c.loc))
	}

	switch {
	case target.Before(currentMonday):
		result.Status = WeekSettled
		result.Week = result.WeekFromAPI
		result.Label = fmt.Sprintf("Week %d settled", result.WeekFromAPI)
	case target.Equal(currentMonday):
		result.Status = WeekCurrent
		result.Week = weekNow
		result.Label = inProgress(weekNow)
	default:
		// Future weeks are bad upstream data; label them like the current week.
		result.Status = WeekFuture
		result.Week = result.WeekFromAPI
		result.Label = inProgress(result.WeekFromAPI)
	}

	return result
}

// Label is Compute(...).Label.
func (c *SeasonCalculator) Label(serverWeek int, seasonStart, now time.Time) string {
	return c.Compute(serverWeek, seasonStart, now).Label
}

func seasonWeek(anchor, monday time.Time) int {
	w := timeutil.WeeksBetween(anchor, monday) + 1
	if w < 1 {
		return 1
	}
	return w
}
