package generic

import (
	"time"
)

// =============================================================================
// DAYS - Calendar dates as UTC midnight
// =============================================================================

// DayLayout is the wire and storage format of a calendar date.
const DayLayout = "2006-01-02"

// Day returns the calendar date as UTC midnight.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay drops the clock part of t, keeping t's calendar date.
func TruncateDay(t time.Time) time.Time {
	return Day(t.Year(), t.Month(), t.Day())
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// FormatDay formats t as YYYY-MM-DD.
func FormatDay(t time.Time) string { return t.Format(DayLayout) }

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
// Used for pay periods and budget validity windows.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod truncates both bounds to days.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: TruncateDay(start), End: TruncateDay(end)}
}

// Contains returns true if the day of t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(TruncateDay(p.Start)) && !d.After(TruncateDay(p.End))
}

// Validate rejects a period whose end is before its start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return &ValidationError{Field: "period", Message: "end before start: " + p.String()}
	}
	return nil
}

func (p Period) String() string {
	return "[" + FormatDay(p.Start) + ", " + FormatDay(p.End) + "]"
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock abstracts time.Now so services stamp deterministic times in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns At. Advance moves it forward.
type FixedClock struct {
	At time.Time
}

func (c *FixedClock) Now() time.Time { return c.At }

func (c *FixedClock) Advance(d time.Duration) { c.At = c.At.Add(d) }
