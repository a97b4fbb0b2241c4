/*
allocator.go - Hour-to-budget allocation

PURPOSE:
  Turns one block of delivered service (hours + mileage on one day for one
  client) into money and charges it to a budget, atomically.

FLOW:
  1. Validate input (non-negative numbers, staff and client exist)
  2. Classify the day (weekday or premium) via the holiday calendar
  3. Choose funding: explicit allocation, else the Selector over the
     client's allocations active on the service date
  4. Resolve rates: allocation > budget type > staff > fallback for budget
     funding, staff only for direct assistance. Mileage is charged at zero
     when the budget type cannot fund mileage.
  5. Price: each component rounded to cents, total = sum
  6. One transaction: time log (rate/cost snapshot), expense, used += cost
  7. Return the breakdown, decision, ids and warnings

WARNINGS (never errors):
  over_budget        cost exceeds the allocation's available funds
  nearly_exhausted   the allocation is at or above 90% used after commit
  direct_assistance  no allocation could pay

SEE ALSO:
  - expenses.go: recordExpense, shared with Commit
  - compensation/reconciler.go: Calls Commit inside its own transaction
*/
package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/holiday"
)

// DirectBudgetTypeID is the budget type recorded on direct assistance
// expenses when none is configured.
const DirectBudgetTypeID generic.BudgetTypeID = "direct_assistance"

// NearlyExhaustedPercent is the utilization that triggers a warning.
var NearlyExhaustedPercent = decimal.NewFromInt(90)

// =============================================================================
// PRICING - Pure
// =============================================================================

// Breakdown is the priced split of one service block.
type Breakdown struct {
	IsHoliday    bool            `json:"isHoliday"`
	WeekdayHours decimal.Decimal `json:"weekdayHours"`
	HolidayHours decimal.Decimal `json:"holidayHours"`
	Mileage      decimal.Decimal `json:"mileage"`
	Rates        Rates           `json:"rates"`
	WeekdayCost  decimal.Decimal `json:"weekdayCost"`
	HolidayCost  decimal.Decimal `json:"holidayCost"`
	MileageCost  decimal.Decimal `json:"mileageCost"`
	Total        decimal.Decimal `json:"total"`
}

// HourlyRate is the rate applied to the hours of this block.
func (b Breakdown) HourlyRate() decimal.Decimal {
	if b.IsHoliday {
		return b.Rates.Holiday
	}
	return b.Rates.Weekday
}

// Price splits hours by day kind and applies rates.
func Price(hours, mileage decimal.Decimal, isHoliday bool, r Rates) Breakdown {
	b := Breakdown{
		IsHoliday:    isHoliday,
		WeekdayHours: decimal.Zero,
		HolidayHours: decimal.Zero,
		Mileage:      mileage,
		Rates:        r,
	}
	if isHoliday {
		b.HolidayHours = hours
	} else {
		b.WeekdayHours = hours
	}
	b.WeekdayCost = generic.RoundMoney(b.WeekdayHours.Mul(r.Weekday))
	b.HolidayCost = generic.RoundMoney(b.HolidayHours.Mul(r.Holiday))
	b.MileageCost = generic.RoundMoney(mileage.Mul(r.Kilometer))
	b.Total = b.WeekdayCost.Add(b.HolidayCost).Add(b.MileageCost)
	return b
}

// UsageWarnings reports the state of alloc if amount is charged to it.
// alloc is the row as read before the charge.
func UsageWarnings(alloc generic.ClientBudgetAllocation, amount decimal.Decimal) []generic.Warning {
	available := alloc.Available()
	if amount.GreaterThan(available) {
		return []generic.Warning{{
			Code: generic.WarnOverBudget,
			Message: fmt.Sprintf("allocation %s: charging %s exceeds available %s",
				alloc.ID, amount.StringFixed(2), available.StringFixed(2)),
		}}
	}
	after := generic.Percentage(alloc.UsedAmount.Add(amount), alloc.AllocatedAmount)
	if !alloc.AllocatedAmount.IsZero() && after.GreaterThanOrEqual(NearlyExhaustedPercent) {
		return []generic.Warning{{
			Code:    generic.WarnNearlyExhausted,
			Message: fmt.Sprintf("allocation %s: %s%% used", alloc.ID, after.StringFixed(2)),
		}}
	}
	return nil
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// AllocateRequest is one block of service to allocate.
type AllocateRequest struct {
	StaffID     generic.StaffID
	ClientID    generic.ClientID
	ServiceDate time.Time
	Hours       decimal.Decimal
	Mileage     decimal.Decimal
	ServiceType string
	Notes       string
	BudgetID    *generic.AllocationID // explicit choice; nil = let the selector decide
	CreatedBy   string
}

func (r AllocateRequest) validate() error {
	switch {
	case r.StaffID == "":
		return generic.Invalid("staffId", "required")
	case r.ClientID == "":
		return generic.Invalid("clientId", "required")
	case r.ServiceDate.IsZero():
		return generic.Invalid("serviceDate", "required")
	case strings.TrimSpace(r.ServiceType) == "":
		return generic.Invalid("serviceType", "required")
	case r.Hours.IsNegative():
		return generic.Invalid("hours", "must not be negative, got %s", r.Hours)
	case r.Mileage.IsNegative():
		return generic.Invalid("mileage", "must not be negative, got %s", r.Mileage)
	}
	return nil
}

// AllocationResult is what AllocateHours committed.
type AllocationResult struct {
	TimeLogID             generic.TimeLogID
	ExpenseID             generic.ExpenseID
	Funding               FundingDecision
	IsDirectClientPayment bool
	BudgetTypeID          generic.BudgetTypeID
	Breakdown             Breakdown
	Warnings              []generic.Warning
}

// AllocationID returns the charged allocation, or nil for direct assistance.
func (r AllocationResult) AllocationID() *generic.AllocationID {
	if f, ok := r.Funding.(BudgetFunding); ok {
		id := f.AllocationID
		return &id
	}
	return nil
}

// CommitRequest is one money movement against a client's funding.
type CommitRequest struct {
	ClientID       generic.ClientID
	Funding        FundingDecision
	Amount         decimal.Decimal
	Date           time.Time
	Description    string
	CompensationID *generic.CompensationID
	TimeLogID      *generic.TimeLogID
	CreatedBy      string
}

type Allocator struct {
	Store    generic.TxStore
	Rates    *RateResolver
	Selector *Selector
	Calendar *holiday.Calendar
	Clock    generic.Clock

	// DirectBudgetTypeID is recorded on direct assistance expenses.
	DirectBudgetTypeID generic.BudgetTypeID
}

func NewAllocator(store generic.TxStore, rates *RateResolver, selector *Selector, cal *holiday.Calendar, clock generic.Clock) *Allocator {
	if rates == nil {
		rates = NewRateResolver(DefaultFallback)
	}
	if selector == nil {
		selector = NewSelector(DefaultAffinity)
	}
	if cal == nil {
		cal = holiday.Default
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Allocator{
		Store:              store,
		Rates:              rates,
		Selector:           selector,
		Calendar:           cal,
		Clock:              clock,
		DirectBudgetTypeID: DirectBudgetTypeID,
	}
}

// AllocateHours prices a service block, picks its funding and commits it.
func (a *Allocator) AllocateHours(ctx context.Context, req AllocateRequest) (*AllocationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	staff, err := a.Store.GetStaff(ctx, req.StaffID)
	if err != nil {
		return nil, err
	}
	if _, err := a.Store.GetClient(ctx, req.ClientID); err != nil {
		return nil, err
	}

	day := generic.TruncateDay(req.ServiceDate)
	isHoliday := a.Calendar.IsPremiumDay(day)

	alloc, bt, err := a.chooseFunding(ctx, req, day)
	if err != nil {
		return nil, err
	}

	result := &AllocationResult{}
	var rates Rates
	if alloc == nil {
		result.Funding = DirectAssistance{}
		result.IsDirectClientPayment = true
		result.BudgetTypeID = a.DirectBudgetTypeID
		rates = a.Rates.ResolveStaff(staff)
	} else {
		result.Funding = BudgetFunding{AllocationID: alloc.ID, BudgetTypeID: alloc.BudgetTypeID}
		result.BudgetTypeID = alloc.BudgetTypeID
		rates = a.Rates.Resolve(staff, alloc, bt)
		if bt == nil || !bt.CanFundMileage {
			rates.Kilometer = decimal.Zero
		}
	}
	result.Breakdown = Price(req.Hours, req.Mileage, isHoliday, rates)

	if alloc != nil {
		result.Warnings = UsageWarnings(*alloc, result.Breakdown.Total)
	} else {
		result.Warnings = []generic.Warning{{
			Code:    generic.WarnDirectAssistance,
			Message: fmt.Sprintf("client %s has no budget with funds on %s; direct assistance", req.ClientID, generic.FormatDay(day)),
		}}
	}

	now := a.Clock.Now()
	tl := generic.TimeLog{
		ID:          generic.TimeLogID(generic.NewID()),
		StaffID:     req.StaffID,
		ClientID:    req.ClientID,
		ServiceDate: day,
		Hours:       req.Hours,
		Mileage:     req.Mileage,
		ServiceType: strings.TrimSpace(req.ServiceType),
		HourlyRate:  result.Breakdown.HourlyRate(),
		TotalCost:   result.Breakdown.Total,
		Notes:       req.Notes,
		CreatedAt:   now,
	}
	err = a.Store.WithTx(ctx, func(st generic.Store) error {
		if err := st.SaveTimeLog(ctx, tl); err != nil {
			return fmt.Errorf("save time log: %w", err)
		}
		e, err := a.Commit(ctx, st, CommitRequest{
			ClientID:    req.ClientID,
			Funding:     result.Funding,
			Amount:      result.Breakdown.Total,
			Date:        day,
			Description: fmt.Sprintf("%s - %s h %s", tl.ServiceType, req.Hours.String(), generic.FormatDay(day)),
			TimeLogID:   &tl.ID,
			CreatedBy:   req.CreatedBy,
		})
		if err != nil {
			return err
		}
		result.ExpenseID = e.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.TimeLogID = tl.ID

	log.WithFields(log.Fields{
		"time_log_id": tl.ID,
		"staff_id":    req.StaffID,
		"client_id":   req.ClientID,
		"funding":     Describe(result.Funding),
		"total":       result.Breakdown.Total.StringFixed(2),
		"holiday":     isHoliday,
	}).Info("hours allocated")
	for _, w := range result.Warnings {
		log.WithField("client_id", req.ClientID).Warn(w.Message)
	}
	return result, nil
}

// chooseFunding returns the allocation to charge and its budget type, or
// a nil allocation for direct assistance.
func (a *Allocator) chooseFunding(ctx context.Context, req AllocateRequest, day time.Time) (*generic.ClientBudgetAllocation, *generic.BudgetType, error) {
	if req.BudgetID != nil {
		alloc, err := allocationFor(ctx, a.Store, *req.BudgetID, req.ClientID)
		if err != nil {
			return nil, nil, err
		}
		return alloc, a.budgetType(ctx, alloc.BudgetTypeID), nil
	}

	allocs, err := a.Store.ListAllocationsByClient(ctx, req.ClientID)
	if err != nil {
		return nil, nil, fmt.Errorf("list allocations: %w", err)
	}
	active := ActiveOn(allocs, day)
	if len(active) == 0 {
		return nil, nil, nil
	}
	types, err := a.budgetTypes(ctx)
	if err != nil {
		return nil, nil, err
	}
	cands := make([]Candidate, 0, len(active))
	byID := make(map[generic.AllocationID]generic.ClientBudgetAllocation, len(active))
	for _, al := range active {
		bt := types[al.BudgetTypeID]
		cands = append(cands, NewCandidate(al, bt))
		byID[al.ID] = al
	}
	d, ok := a.Selector.Select(req.ServiceType, cands).(BudgetFunding)
	if !ok {
		return nil, nil, nil
	}
	chosen := byID[d.AllocationID]
	return &chosen, types[chosen.BudgetTypeID], nil
}

func (a *Allocator) budgetType(ctx context.Context, id generic.BudgetTypeID) *generic.BudgetType {
	bt, err := a.Store.GetBudgetType(ctx, id)
	if err != nil {
		log.WithError(err).WithField("budget_type_id", id).Debug("budget type not in catalog")
		return nil
	}
	return bt
}

func (a *Allocator) budgetTypes(ctx context.Context) (map[generic.BudgetTypeID]*generic.BudgetType, error) {
	list, err := a.Store.ListBudgetTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budget types: %w", err)
	}
	out := make(map[generic.BudgetTypeID]*generic.BudgetType, len(list))
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

// Commit writes one expense for req and, for budget funding, increments the
// allocation's used amount. It runs inside the caller's transaction st.
func (a *Allocator) Commit(ctx context.Context, st generic.Store, req CommitRequest) (generic.BudgetExpense, error) {
	if req.Amount.IsNegative() {
		return generic.BudgetExpense{}, generic.Invalid("amount", "must not be negative, got %s", req.Amount)
	}
	in := ExpenseInput{
		ClientID:       req.ClientID,
		Amount:         req.Amount,
		ExpenseDate:    req.Date,
		Description:    req.Description,
		CompensationID: req.CompensationID,
		TimeLogID:      req.TimeLogID,
		CreatedBy:      req.CreatedBy,
	}
	switch f := req.Funding.(type) {
	case BudgetFunding:
		id := f.AllocationID
		in.AllocationID = &id
		in.BudgetTypeID = f.BudgetTypeID
	default:
		in.BudgetTypeID = a.DirectBudgetTypeID
	}
	return recordExpense(ctx, st, in, a.Clock.Now())
}
