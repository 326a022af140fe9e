package attendance

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day, in seconds since midnight.
type ClockTime int

const secondsPerDay = 24 * 60 * 60

// ParseClockTime accepts "HH:MM" or "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	limits := []int{23, 59, 59}
	var total int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] || len(p) > 2 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		switch i {
		case 0:
			total += n * 3600
		case 1:
			total += n * 60
		default:
			total += n
		}
	}
	return ClockTime(total), nil
}

// ClockTimeOf returns the time of day of t in t's own location.
func ClockTimeOf(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return ClockTime(h*3600 + m*60 + s)
}

func (c ClockTime) String() string {
	h, m, s := int(c)/3600, int(c)%3600/60, int(c)%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ScheduleEntry is a recurring weekly window during which a person is expected for an activity.
type ScheduleEntry struct {
	ID       string       `json:"id"`
	PersonID string       `json:"person_id"`
	Day      time.Weekday `json:"day_of_week"`
	Start    ClockTime    `json:"start_time"`
	End      ClockTime    `json:"end_time"`
	Activity string       `json:"activity"`
}

// Validate checks the entry is well formed.
func (e ScheduleEntry) Validate() error {
	if e.PersonID == "" {
		return fmt.Errorf("schedule entry: person id required")
	}
	if e.Activity == "" {
		return fmt.Errorf("schedule entry: activity required")
	}
	if e.Day < time.Sunday || e.Day > time.Saturday {
		return fmt.Errorf("schedule entry: invalid day %d", e.Day)
	}
	if e.Start < 0 || e.End >= secondsPerDay || e.Start >= e.End {
		return fmt.Errorf("schedule entry: start %s must be before end %s", e.Start, e.End)
	}
	return nil
}

// Contains reports whether t falls inside the window. Both bounds are inclusive.
func (e ScheduleEntry) Contains(t time.Time) bool {
	if t.Weekday() != e.Day {
		return false
	}
	ct := ClockTimeOf(t)
	return ct >= e.Start && ct <= e.End
}

// ActiveEntry returns the first entry containing now, in slice order.
// now must already be in the location schedules are expressed in.
func ActiveEntry(entries []ScheduleEntry, now time.Time) (ScheduleEntry, bool) {
	for _, e := range entries {
		if e.Contains(now) {
			return e, true
		}
	}
	return ScheduleEntry{}, false
}

// SortSchedule orders entries the way every store returns them: day, start, end, id.
func SortSchedule(entries []ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.ID < b.ID
	})
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the exclusive upper bound of the day that begins at dayStart.
func EndOfDay(dayStart time.Time) time.Time {
	return dayStart.AddDate(0, 0, 1)
}
