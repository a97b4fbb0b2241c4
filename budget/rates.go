/*
Package budget decides which client budget pays for service hours and keeps
each budget's used counter in step with its expenses.

PURPOSE:
  rates.go:        Rate Resolver (allocation > budget type > staff > fallback)
  availability.go: Signed availability of a client's budget type on a date
  selector.go:     Ladder of pure filters choosing one allocation, or direct
                   assistance when nothing can pay
  allocator.go:    Hours -> money -> committed expense + used increment
  expenses.go:     Expense ledger keeping used == sum(expenses)

SEE ALSO:
  - compensation/reconciler.go: Commits approvals through Allocator.Commit
  - holiday: Weekday/holiday classification
*/
package budget

import (
	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/generic"
)

// =============================================================================
// RATES
// =============================================================================

// Rates is a complete price triple for one unit of work.
type Rates struct {
	Weekday   decimal.Decimal `json:"weekday"`
	Holiday   decimal.Decimal `json:"holiday"`
	Kilometer decimal.Decimal `json:"kilometer"`
}

// DefaultFallback is used when nothing more specific is configured.
var DefaultFallback = Rates{
	Weekday:   decimal.NewFromInt(10),
	Holiday:   decimal.NewFromInt(30),
	Kilometer: decimal.Zero,
}

// RateResolver resolves rates through the fallback chain. It never fails:
// missing configuration falls through to Fallback.
type RateResolver struct {
	Fallback Rates
}

func NewRateResolver(fallback Rates) *RateResolver {
	return &RateResolver{Fallback: fallback}
}

// Resolve picks each rate from the first source that sets it:
// allocation override, budget type default, staff personal rate, fallback.
// Any argument may be nil.
func (r *RateResolver) Resolve(staff *generic.StaffMember, alloc *generic.ClientBudgetAllocation, bt *generic.BudgetType) Rates {
	var a, b, s [3]decimal.NullDecimal
	if alloc != nil {
		a = [3]decimal.NullDecimal{alloc.WeekdayRate, alloc.HolidayRate, alloc.KilometerRate}
	}
	if bt != nil {
		b = [3]decimal.NullDecimal{bt.WeekdayRate, bt.HolidayRate, bt.KilometerRate}
	}
	if staff != nil {
		s = [3]decimal.NullDecimal{staff.WeekdayRate, staff.HolidayRate, staff.MileageRate}
	}
	return Rates{
		Weekday:   generic.FirstRate(r.Fallback.Weekday, a[0], b[0], s[0]),
		Holiday:   generic.FirstRate(r.Fallback.Holiday, a[1], b[1], s[1]),
		Kilometer: generic.FirstRate(r.Fallback.Kilometer, a[2], b[2], s[2]),
	}
}

// ResolveStaff is the staff-only path used for pay and direct assistance.
func (r *RateResolver) ResolveStaff(staff *generic.StaffMember) Rates {
	return r.Resolve(staff, nil, nil)
}
