package engine

import (
	"time"

	"github.com/RealZimboGuy/approvalflow/internal/config"
)

// BusinessHours is the working window used by definitions flagged
// business-hours-only. Saturdays and Sundays are never working time.
type BusinessHours struct {
	Start    int
	End      int
	Location *time.Location
}

func BusinessHoursFromConfig() BusinessHours {
	loc, err := time.LoadLocation(config.GetSystemSettingString(config.BUSINESS_HOURS_TIMEZONE))
	if err != nil {
		loc = time.UTC
	}
	return BusinessHours{
		Start:    config.GetSystemSettingInteger(config.BUSINESS_HOURS_START),
		End:      config.GetSystemSettingInteger(config.BUSINESS_HOURS_END),
		Location: loc,
	}
}

func (b BusinessHours) valid() bool {
	return b.Start >= 0 && b.End <= 24 && b.Start < b.End
}

// Add returns the instant d of working time after from.
func (b BusinessHours) Add(from time.Time, d time.Duration) time.Time {
	if d <= 0 || !b.valid() {
		return from.Add(d)
	}
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	t := from.In(loc)
	remaining := d
	// bounded walk; ten years of working days is far beyond any step timeout
	for i := 0; i < 3660; i++ {
		t = b.align(t, loc)
		end := time.Date(t.Year(), t.Month(), t.Day(), b.End, 0, 0, 0, loc)
		avail := end.Sub(t)
		if remaining <= avail {
			return t.Add(remaining).UTC()
		}
		remaining -= avail
		t = end
	}
	return t.Add(remaining).UTC()
}

// align moves t forward to the nearest instant inside the working window.
func (b BusinessHours) align(t time.Time, loc *time.Location) time.Time {
	for {
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, b.Start, 0, 0, 0, loc)
			continue
		}
		start := time.Date(t.Year(), t.Month(), t.Day(), b.Start, 0, 0, 0, loc)
		end := time.Date(t.Year(), t.Month(), t.Day(), b.End, 0, 0, 0, loc)
		if t.Before(start) {
			return start
		}
		if !t.Before(end) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, b.Start, 0, 0, 0, loc)
			continue
		}
		return t
	}
}
