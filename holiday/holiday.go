/*
Package holiday classifies service days as weekday or premium.

PURPOSE:
  Hours worked on a premium day are paid and charged at the holiday rate.
  A premium day is:
    - any Sunday
    - a fixed national holiday (month/day, same every year)
    - a configured local holiday (patron saints' days)
    - Easter Sunday or Easter Monday of that year

DETERMINISM:
  Easter uses the anonymous Gregorian algorithm (Meeus/Jones/Butcher) in
  integer arithmetic only. IsPremiumDay is pure and total: it never errors
  and has no side effects.

USAGE:
  cal := holiday.NewCalendar(holiday.DefaultLocal...)
  if cal.IsPremiumDay(serviceDate) {
      rate = rates.Holiday
  }

SEE ALSO:
  - budget/allocator.go: Splits hours into weekday/holiday buckets
  - compensation/calculator.go: Same split for pay
*/
package holiday

import (
	"fmt"
	"sort"
	"time"
)

// MonthDay is a holiday that falls on the same date every year.
type MonthDay struct {
	Month time.Month
	Day   int
	Name  string
}

func (md MonthDay) String() string { return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day) }

// National holidays observed every year.
var National = []MonthDay{
	{time.January, 1, "New Year's Day"},
	{time.January, 6, "Epiphany"},
	{time.April, 25, "Liberation Day"},
	{time.May, 1, "Labour Day"},
	{time.June, 2, "Republic Day"},
	{time.August, 15, "Assumption"},
	{time.November, 1, "All Saints"},
	{time.December, 8, "Immaculate Conception"},
	{time.December, 25, "Christmas Day"},
	{time.December, 26, "St. Stephen's Day"},
}

// DefaultLocal are the patron days of the service area.
var DefaultLocal = []MonthDay{
	{time.May, 15, "St. Simplicius (Olbia)"},
	{time.December, 6, "St. Nicholas (Sassari)"},
}

// ParseMonthDay parses "MM-DD" as used in configuration.
func ParseMonthDay(s string) (MonthDay, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		return MonthDay{}, fmt.Errorf("invalid holiday %q (want MM-DD): %w", s, err)
	}
	return MonthDay{Month: t.Month(), Day: t.Day(), Name: s}, nil
}

// =============================================================================
// CALENDAR
// =============================================================================

// Calendar decides premium days. The zero value knows Sundays and Easter
// only; use NewCalendar for the national list.
type Calendar struct {
	fixed map[MonthDay]string
}

// NewCalendar returns a calendar with the national holidays plus local.
func NewCalendar(local ...MonthDay) *Calendar {
	c := &Calendar{fixed: make(map[MonthDay]string, len(National)+len(local))}
	for _, md := range National {
		c.fixed[MonthDay{Month: md.Month, Day: md.Day}] = md.Name
	}
	for _, md := range local {
		c.fixed[MonthDay{Month: md.Month, Day: md.Day}] = md.Name
	}
	return c
}

// Default is the calendar with national and default local holidays.
var Default = NewCalendar(DefaultLocal...)

// IsPremiumDay reports whether date is a Sunday, a fixed holiday, Easter
// Sunday or Easter Monday. Only the calendar date of date is considered.
func (c *Calendar) IsPremiumDay(date time.Time) bool {
	_, ok := c.Reason(date)
	return ok
}

// Reason returns why date is a premium day.
func (c *Calendar) Reason(date time.Time) (string, bool) {
	y, m, d := date.Date()
	if date.Weekday() == time.Sunday {
		return "Sunday", true
	}
	if c != nil {
		if name, ok := c.fixed[MonthDay{Month: m, Day: d}]; ok {
			return name, true
		}
	}
	em, ed := Easter(y)
	easter := time.Date(y, em, ed, 0, 0, 0, 0, time.UTC)
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	switch {
	case day.Equal(easter):
		return "Easter Sunday", true
	case day.Equal(easter.AddDate(0, 0, 1)):
		return "Easter Monday", true
	}
	return "", false
}

// Holidays lists the fixed and Easter holidays of year, in date order.
// Sundays are not listed.
func (c *Calendar) Holidays(year int) []time.Time {
	var days []time.Time
	if c != nil {
		for md := range c.fixed {
			days = append(days, time.Date(year, md.Month, md.Day, 0, 0, 0, 0, time.UTC))
		}
	}
	em, ed := Easter(year)
	easter := time.Date(year, em, ed, 0, 0, 0, 0, time.UTC)
	days = append(days, easter, easter.AddDate(0, 0, 1))
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// IsPremiumDay uses the Default calendar.
func IsPremiumDay(date time.Time) bool { return Default.IsPremiumDay(date) }

// =============================================================================
// EASTER
// =============================================================================

// Easter returns the month and day of Western (Gregorian) Easter Sunday.
func Easter(year int) (time.Month, int) {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Month(month), day
}
