package holiday_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/holiday"
)

// =============================================================================
// EASTER ORACLE
// =============================================================================

var easterTable = []struct {
	year  int
	month time.Month
	day   int
}{
	{1818, time.March, 22},
	{1943, time.April, 25},
	{1961, time.April, 2},
	{2000, time.April, 23},
	{2001, time.April, 15},
	{2002, time.March, 31},
	{2003, time.April, 20},
	{2004, time.April, 11},
	{2005, time.March, 27},
	{2008, time.March, 23},
	{2010, time.April, 4},
	{2011, time.April, 24},
	{2013, time.March, 31},
	{2016, time.March, 27},
	{2018, time.April, 1},
	{2019, time.April, 21},
	{2020, time.April, 12},
	{2021, time.April, 4},
	{2022, time.April, 17},
	{2023, time.April, 9},
	{2024, time.March, 31},
	{2025, time.April, 20},
	{2026, time.April, 5},
	{2027, time.March, 28},
	{2030, time.April, 21},
	{2038, time.April, 25},
	{2285, time.March, 22},
}

func TestEaster_KnownYears(t *testing.T) {
	for _, tc := range easterTable {
		m, d := holiday.Easter(tc.year)
		assert.Equal(t, tc.month, m, "year %d", tc.year)
		assert.Equal(t, tc.day, d, "year %d", tc.year)
	}
}

func TestIsPremiumDay_EasterSundayAndMonday(t *testing.T) {
	// GIVEN: A calendar without fixed holidays
	// WHEN: Classifying Easter Sunday and Easter Monday of every oracle year
	// THEN: Both are premium
	cal := &holiday.Calendar{}
	for _, tc := range easterTable {
		easter := generic.Day(tc.year, tc.month, tc.day)
		assert.True(t, cal.IsPremiumDay(easter), "easter %d", tc.year)
		assert.True(t, cal.IsPremiumDay(easter.AddDate(0, 0, 1)), "easter monday %d", tc.year)
	}
}

func TestIsPremiumDay_SameDateOtherYearIsWeekday(t *testing.T) {
	// GIVEN: Easter dates of one year
	// WHEN: The same calendar date falls in a non-Easter week of another year
	// THEN: It is not premium
	cases := []time.Time{
		generic.Day(2023, time.March, 31), // Easter 2024, a Friday in 2023
		generic.Day(2023, time.April, 1),  // Easter Monday 2024, a Saturday in 2023
		generic.Day(2025, time.March, 31), // Easter 2024, a Monday in 2025
		generic.Day(2025, time.April, 1),  // Easter Monday 2024, a Tuesday in 2025
		generic.Day(2024, time.April, 20), // Easter 2025, a Saturday in 2024
		generic.Day(2026, time.April, 20), // Easter 2025, a Monday in 2026
		generic.Day(2026, time.April, 21), // Easter Monday 2025, a Tuesday in 2026
		generic.Day(2027, time.April, 5),  // Easter 2026, a Monday in 2027
		generic.Day(2020, time.April, 22), // Easter Monday 2019, a Wednesday in 2020
	}
	for _, d := range cases {
		assert.False(t, holiday.IsPremiumDay(d), generic.FormatDay(d))
	}
}

// =============================================================================
// SUNDAYS AND FIXED HOLIDAYS
// =============================================================================

func TestIsPremiumDay_Calendar(t *testing.T) {
	tests := []struct {
		name    string
		date    time.Time
		premium bool
		reason  string
	}{
		{"sunday", generic.Day(2025, time.January, 5), true, "Sunday"},
		{"epiphany", generic.Day(2025, time.January, 6), true, "Epiphany"},
		{"christmas", generic.Day(2025, time.December, 25), true, "Christmas Day"},
		{"liberation day", generic.Day(2025, time.April, 25), true, "Liberation Day"},
		{"easter monday", generic.Day(2025, time.April, 21), true, "Easter Monday"},
		{"olbia patron", generic.Day(2025, time.May, 15), true, "St. Simplicius (Olbia)"},
		{"sassari patron", generic.Day(2025, time.December, 6), true, "St. Nicholas (Sassari)"},
		{"plain monday", generic.Day(2025, time.January, 13), false, ""},
		{"plain saturday", generic.Day(2025, time.January, 11), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := holiday.Default.Reason(tt.date)
			assert.Equal(t, tt.premium, ok)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.premium, holiday.IsPremiumDay(tt.date))
		})
	}
}

func TestIsPremiumDay_IgnoresClockTime(t *testing.T) {
	late := time.Date(2025, time.January, 5, 23, 30, 0, 0, time.UTC)
	assert.True(t, holiday.IsPremiumDay(late))
}

func TestCalendar_LocalHolidaysAreConfigurable(t *testing.T) {
	// GIVEN: A calendar with national holidays only
	// WHEN: Classifying the default local patron days
	// THEN: They are ordinary weekdays; adding them makes them premium
	national := holiday.NewCalendar()
	assert.False(t, national.IsPremiumDay(generic.Day(2025, time.May, 15)))

	md, err := holiday.ParseMonthDay("05-15")
	require.NoError(t, err)
	local := holiday.NewCalendar(md)
	assert.True(t, local.IsPremiumDay(generic.Day(2025, time.May, 15)))
}

func TestCalendar_ZeroValueKnowsSundaysAndEasterOnly(t *testing.T) {
	var cal holiday.Calendar
	assert.False(t, cal.IsPremiumDay(generic.Day(2025, time.January, 6)))
	assert.True(t, cal.IsPremiumDay(generic.Day(2025, time.January, 5)))
	assert.True(t, cal.IsPremiumDay(generic.Day(2025, time.April, 20)))
}

func TestParseMonthDay_Invalid(t *testing.T) {
	_, err := holiday.ParseMonthDay("13-40")
	assert.Error(t, err)
	_, err = holiday.ParseMonthDay("May 15")
	assert.Error(t, err)
}

func TestCalendar_Holidays(t *testing.T) {
	days := holiday.Default.Holidays(2025)
	// 10 national + 2 local + Easter Sunday + Easter Monday
	require.Len(t, days, 14)
	assert.Equal(t, generic.Day(2025, time.January, 1), days[0])
	assert.Equal(t, generic.Day(2025, time.December, 26), days[len(days)-1])
	assert.Contains(t, days, generic.Day(2025, time.April, 21))
}
