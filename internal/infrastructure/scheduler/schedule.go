package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ParseSchedule accepts "@every <duration>", "@daily", "@weekly" or a five-field
// cron expression evaluated in loc.
func ParseSchedule(spec string, loc *time.Location) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return nil, fmt.Errorf("empty schedule")
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil {
			return nil, fmt.Errorf("invalid interval: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive: %s", d)
		}
		return Every(d), nil
	case spec == "@daily":
		spec = "0 0 * * *"
	case spec == "@weekly":
		spec = "0 0 * * 1"
	}
	return ParseCron(spec, loc)
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule is a parsed five-field cron expression:
// minute hour day-of-month month day-of-week (0 = Sunday).
// Fields accept *, */n, n, n-m, n-m/s and comma lists of those.
type CronSchedule struct {
	raw      string
	loc      *time.Location
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
}

// ParseCron parses expr. loc defaults to UTC.
func ParseCron(expr string, loc *time.Location) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}
	if loc == nil {
		loc = time.UTC
	}

	cs := &CronSchedule{raw: expr, loc: loc}
	specs := []struct {
		name     string
		dst      *uint64
		min, max int
	}{
		{"minute", &cs.minutes, 0, 59},
		{"hour", &cs.hours, 0, 23},
		{"day", &cs.days, 1, 31},
		{"month", &cs.months, 1, 12},
		{"weekday", &cs.weekdays, 0, 6},
	}
	for i, s := range specs {
		bits, err := parseCronField(fields[i], s.min, s.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", s.name, err)
		}
		*s.dst = bits
	}
	return cs, nil
}

func parseCronField(field string, lo, hi int) (uint64, error) {
	var bits uint64
	for _, part := range strings.Split(field, ",") {
		rangePart, step := part, 1
		if i := strings.IndexByte(part, '/'); i >= 0 {
			n, err := strconv.Atoi(part[i+1:])
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step in %q", part)
			}
			rangePart, step = part[:i], n
		}

		start, end := lo, hi
		switch {
		case rangePart == "*":
		case strings.Contains(rangePart, "-"):
			a, b, _ := strings.Cut(rangePart, "-")
			var err1, err2 error
			start, err1 = strconv.Atoi(a)
			end, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil {
				return 0, fmt.Errorf("invalid range %q", rangePart)
			}
		default:
			v, err := strconv.Atoi(rangePart)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", rangePart)
			}
			start = v
			if step == 1 {
				end = v
			}
		}

		if start < lo || end > hi || start > end {
			return 0, fmt.Errorf("%q out of range [%d-%d]", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			bits |= 1 << uint(v)
		}
	}
	return bits, nil
}

func (c *CronSchedule) String() string { return c.raw }

// Next returns the first matching minute strictly after t, or the zero time when
// nothing matches within a year.
func (c *CronSchedule) Next(t time.Time) time.Time {
	next := t.In(c.loc).Truncate(time.Minute).Add(time.Minute)
	limit := next.AddDate(1, 0, 1)
	for next.Before(limit) {
		if c.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

func (c *CronSchedule) matches(t time.Time) bool {
	return has(c.minutes, t.Minute()) &&
		has(c.hours, t.Hour()) &&
		has(c.days, t.Day()) &&
		has(c.months, int(t.Month())) &&
		has(c.weekdays, int(t.Weekday()))
}

func has(bits uint64, v int) bool {
	return bits&(1<<uint(v)) != 0
}
