package sla

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Calendar answers whether a weekday is a non-working day. Weekends are
// always skipped and never need to be listed.
type Calendar interface {
	IsHoliday(day time.Time) (bool, error)
}

// WeekendOnly treats every weekday as a business day.
type WeekendOnly struct{}

func (WeekendOnly) IsHoliday(time.Time) (bool, error) { return false, nil }

// StaticCalendar is a fixed list of holiday dates.
type StaticCalendar struct {
	days map[string]struct{}
}

// NewStaticCalendar parses YYYY-MM-DD dates.
func NewStaticCalendar(dates []string) (*StaticCalendar, error) {
	c := &StaticCalendar{days: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", d, err)
		}
		c.days[t.Format(dateLayout)] = struct{}{}
	}
	return c, nil
}

func (c *StaticCalendar) IsHoliday(day time.Time) (bool, error) {
	_, ok := c.days[day.Format(dateLayout)]
	return ok, nil
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
