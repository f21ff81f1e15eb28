// Package calendar converts wall-clock intervals into business ("active")
// time. Everything here is a pure function of the calendar value, which is
// immutable once built.
package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Window is a span of working time within one local day, expressed as
// offsets from local midnight. End may be 24h to mean end-of-day.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Holiday is a non-working local date. Year 0 recurs every year.
type Holiday struct {
	Year  int
	Month time.Month
	Day   int
}

// BusinessCalendar defines working hours and holidays in one fixed location.
type BusinessCalendar struct {
	Name     string
	Location *time.Location
	// AlwaysOn calendars count every wall-clock second (24/7 coverage).
	AlwaysOn bool
	Hours    map[time.Weekday][]Window
	Holidays []Holiday
}

// AlwaysOn returns a 24/7 calendar.
func AlwaysOn(name string) *BusinessCalendar {
	return &BusinessCalendar{Name: name, Location: time.UTC, AlwaysOn: true}
}

// Weekdays returns a Monday to Friday calendar with a single daily window.
func Weekdays(name string, loc *time.Location, start, end time.Duration) *BusinessCalendar {
	hours := make(map[time.Weekday][]Window, 5)
	for wd := time.Monday; wd <= time.Friday; wd++ {
		hours[wd] = []Window{{Start: start, End: end}}
	}
	return &BusinessCalendar{Name: name, Location: loc, Hours: hours}
}

// Validate checks windows are within the day, non-empty and non-overlapping.
// It sorts each day's windows in place.
func (c *BusinessCalendar) Validate() error {
	if c == nil {
		return fmt.Errorf("calendar: nil")
	}
	if c.AlwaysOn {
		return nil
	}
	for wd, windows := range c.Hours {
		sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
		for i, w := range windows {
			if w.Start < 0 || w.End > day || w.End <= w.Start {
				return fmt.Errorf("calendar %s: invalid window %s on %s", c.Name, w, wd)
			}
			if i > 0 && windows[i-1].End > w.Start {
				return fmt.Errorf("calendar %s: overlapping windows on %s", c.Name, wd)
			}
		}
	}
	for _, h := range c.Holidays {
		if h.Month < time.January || h.Month > time.December || h.Day < 1 || h.Day > 31 {
			return fmt.Errorf("calendar %s: invalid holiday %s", c.Name, h)
		}
	}
	return nil
}

// ActiveBetween is shorthand for ActiveDurationBetween(c, from, to).
func (c *BusinessCalendar) ActiveBetween(from, to time.Time) time.Duration {
	return ActiveDurationBetween(c, from, to)
}

// ActiveDurationBetween returns how much of [from, to) falls inside the
// calendar's business windows. A nil calendar counts wall-clock time.
func ActiveDurationBetween(c *BusinessCalendar, from, to time.Time) time.Duration {
	if !to.After(from) {
		return 0
	}
	if c == nil || c.AlwaysOn {
		return to.Sub(from)
	}

	loc := c.location()
	local := from.In(loc)
	y, m, d := local.Date()

	var total time.Duration
	for {
		dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if !dayStart.Before(to) {
			break
		}
		if !c.isHoliday(y, m, d) {
			for _, w := range c.Hours[dayStart.Weekday()] {
				ws := atOffset(y, m, d, w.Start, loc)
				we := atOffset(y, m, d, w.End, loc)
				total += overlap(from, to, ws, we)
			}
		}
		// time.Date normalises d+1 across month and year ends.
		next := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		y, m, d = next.Date()
	}
	return total
}

func (c *BusinessCalendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c *BusinessCalendar) isHoliday(y int, m time.Month, d int) bool {
	for _, h := range c.Holidays {
		if h.Month == m && h.Day == d && (h.Year == 0 || h.Year == y) {
			return true
		}
	}
	return false
}

// atOffset builds the local wall-clock time offset from midnight. Using the
// hour/minute fields instead of midnight.Add keeps DST days correct.
func atOffset(y int, m time.Month, d int, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	mins := int((offset % time.Hour) / time.Minute)
	sec := int((offset % time.Minute) / time.Second)
	return time.Date(y, m, d, h, mins, sec, 0, loc)
}

func overlap(from, to, ws, we time.Time) time.Duration {
	start := from
	if ws.After(start) {
		start = ws
	}
	end := to
	if we.Before(end) {
		end = we
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

func (w Window) String() string {
	return formatOffset(w.Start) + "-" + formatOffset(w.End)
}

func (h Holiday) String() string {
	if h.Year == 0 {
		return fmt.Sprintf("%02d-%02d", int(h.Month), h.Day)
	}
	return fmt.Sprintf("%04d-%02d-%02d", h.Year, int(h.Month), h.Day)
}

func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int((d%time.Hour)/time.Minute))
}

// ParseWindow parses "HH:MM-HH:MM". "24:00" is accepted as an end time.
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("calendar: window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("calendar: window %q: %w", s, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("calendar: window %q: %w", s, err)
	}
	if end <= start {
		return Window{}, fmt.Errorf("calendar: window %q: end must be after start", s)
	}
	return Window{Start: start, End: end}, nil
}

func parseClock(s string) (time.Duration, error) {
	hm := strings.Split(strings.TrimSpace(s), ":")
	if len(hm) != 2 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil {
		return 0, fmt.Errorf("bad hour %q", hm[0])
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil {
		return 0, fmt.Errorf("bad minute %q", hm[1])
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// ParseHoliday parses "YYYY-MM-DD" or the recurring form "MM-DD".
func ParseHoliday(s string) (Holiday, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Holiday{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
	}
	// 2000 is a leap year so "02-29" parses.
	if t, err := time.Parse("2006-01-02", "2000-"+s); err == nil {
		return Holiday{Month: t.Month(), Day: t.Day()}, nil
	}
	return Holiday{}, fmt.Errorf("calendar: holiday %q: want YYYY-MM-DD or MM-DD", s)
}

// ParseWeekday accepts English day names and their three-letter forms.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if key == name || key == name[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("calendar: unknown weekday %q", s)
}
