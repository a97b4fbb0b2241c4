/*
Package compensation computes staff pay per period and reconciles approved
pay against client budgets.

PURPOSE:
  calculator.go:   Time logs -> regular/holiday/mileage totals (pure, idempotent)
  service.go:      Draft lifecycle: generate, submit, inline field edits
  audit.go:        Append-only adjustment rows for inline edits
  reconciler.go:   Approve (commit funding), mark paid, remaining-to-allocate
  availability.go: Approval payload grouped by (client, service type)

LIFECYCLE:
  draft -> pending_approval -> approved -> paid
  draft ----------------------> approved

  Hours and mileage may be edited while draft or pending_approval only.

SEE ALSO:
  - budget/allocator.go: Commit, used by Approve
  - holiday: Day classification
*/
package compensation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/holiday"
)

// =============================================================================
// TOTALS
// =============================================================================

// Totals are the figures of one staff member's pay for one period.
type Totals struct {
	StaffID              generic.StaffID `json:"staffId"`
	PeriodStart          time.Time       `json:"periodStart"`
	PeriodEnd            time.Time       `json:"periodEnd"`
	RegularHours         decimal.Decimal `json:"regularHours"`
	HolidayHours         decimal.Decimal `json:"holidayHours"`
	TotalMileage         decimal.Decimal `json:"totalMileage"`
	Rates                budget.Rates    `json:"rates"`
	BaseCompensation     decimal.Decimal `json:"baseCompensation"`
	HolidayCompensation  decimal.Decimal `json:"holidayCompensation"`
	MileageReimbursement decimal.Decimal `json:"mileageReimbursement"`
	TotalCompensation    decimal.Decimal `json:"totalCompensation"`
	TimeLogCount         int             `json:"timeLogCount"`
}

// Price applies r to the hour and mileage figures. Each component is
// rounded to cents; the total is their sum.
func (t *Totals) Price(r budget.Rates) {
	t.Rates = r
	t.BaseCompensation = generic.RoundMoney(t.RegularHours.Mul(r.Weekday))
	t.HolidayCompensation = generic.RoundMoney(t.HolidayHours.Mul(r.Holiday))
	t.MileageReimbursement = generic.RoundMoney(t.TotalMileage.Mul(r.Kilometer))
	t.TotalCompensation = t.BaseCompensation.Add(t.HolidayCompensation).Add(t.MileageReimbursement)
}

// ComputeTotals classifies and sums logs, then prices them with r.
func ComputeTotals(logs []generic.TimeLog, r budget.Rates, cal *holiday.Calendar) Totals {
	t := Totals{
		RegularHours: decimal.Zero,
		HolidayHours: decimal.Zero,
		TotalMileage: decimal.Zero,
		TimeLogCount: len(logs),
	}
	for _, l := range logs {
		if cal.IsPremiumDay(l.ServiceDate) {
			t.HolidayHours = t.HolidayHours.Add(l.Hours)
		} else {
			t.RegularHours = t.RegularHours.Add(l.Hours)
		}
		t.TotalMileage = t.TotalMileage.Add(l.Mileage)
	}
	t.Price(r)
	return t
}

// Apply copies the figures onto c.
func (t Totals) Apply(c *generic.StaffCompensation) {
	c.RegularHours = t.RegularHours
	c.HolidayHours = t.HolidayHours
	c.TotalMileage = t.TotalMileage
	c.BaseCompensation = t.BaseCompensation
	c.HolidayCompensation = t.HolidayCompensation
	c.MileageReimbursement = t.MileageReimbursement
	c.TotalCompensation = t.TotalCompensation
}

// TotalsOf reads the figures stored on c.
func TotalsOf(c generic.StaffCompensation) Totals {
	return Totals{
		StaffID:              c.StaffID,
		PeriodStart:          c.PeriodStart,
		PeriodEnd:            c.PeriodEnd,
		RegularHours:         c.RegularHours,
		HolidayHours:         c.HolidayHours,
		TotalMileage:         c.TotalMileage,
		BaseCompensation:     c.BaseCompensation,
		HolidayCompensation:  c.HolidayCompensation,
		MileageReimbursement: c.MileageReimbursement,
		TotalCompensation:    c.TotalCompensation,
	}
}

// =============================================================================
// CALCULATOR
// =============================================================================

// CalculatorStore is what the calculator reads.
type CalculatorStore interface {
	GetStaff(ctx context.Context, id generic.StaffID) (*generic.StaffMember, error)
	ListTimeLogsByStaff(ctx context.Context, staffID generic.StaffID, period generic.Period) ([]generic.TimeLog, error)
}

// Calculator aggregates time logs into Totals. It never writes.
type Calculator struct {
	Store    CalculatorStore
	Rates    *budget.RateResolver
	Calendar *holiday.Calendar
}

func NewCalculator(store CalculatorStore, rates *budget.RateResolver, cal *holiday.Calendar) *Calculator {
	if rates == nil {
		rates = budget.NewRateResolver(budget.DefaultFallback)
	}
	if cal == nil {
		cal = holiday.Default
	}
	return &Calculator{Store: store, Rates: rates, Calendar: cal}
}

// Calculate returns the totals of staffID's logs in [start, end].
func (c *Calculator) Calculate(ctx context.Context, staffID generic.StaffID, start, end time.Time) (*Totals, error) {
	period := generic.NewPeriod(start, end)
	if err := period.Validate(); err != nil {
		return nil, err
	}
	staff, err := c.Store.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	logs, err := c.Store.ListTimeLogsByStaff(ctx, staffID, period)
	if err != nil {
		return nil, fmt.Errorf("list time logs for %s: %w", staffID, err)
	}
	t := ComputeTotals(logs, c.Rates.ResolveStaff(staff), c.Calendar)
	t.StaffID = staffID
	t.PeriodStart = period.Start
	t.PeriodEnd = period.End
	return &t, nil
}
