/*
reconciler.go - Compensation approval against client budgets

PURPOSE:
  Approval decides who pays for a compensation: one or more client budget
  allocations, or the client directly (direct assistance). Each decision is
  committed as an expense (and a used increment for budgets) plus a
  CompensationBudgetAllocation row, and the compensation moves to approved,
  all in one transaction.

GUARANTEES:
  - Inputs are validated before anything is written
  - The status transition is conditional (draft/pending -> approved) and
    runs first inside the transaction: a second approval finds no row to
    move and rolls back with InvalidState, leaving no duplicate rows and no
    second increment
  - Amounts are committed as given. Over-allocation and over-budget are
    warnings, never clamps

STATE MACHINE:
  Approve:  draft | pending_approval -> approved
  MarkPaid: approved -> paid (no money moves)

SEE ALSO:
  - budget/allocator.go: Commit
  - availability.go: Payload the approver reviews before calling Approve
*/
package compensation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/holiday"
)

// AllocationInput is one funding decision for part of a compensation.
type AllocationInput struct {
	ClientID  generic.ClientID
	Funding   budget.FundingDecision
	Amount    decimal.Decimal
	Hours     decimal.Decimal
	TimeLogID *generic.TimeLogID
	Notes     string
}

func validateInputs(inputs []AllocationInput) error {
	if len(inputs) == 0 {
		return generic.Invalid("allocations", "at least one allocation is required")
	}
	for i, in := range inputs {
		field := func(name string) string { return fmt.Sprintf("allocations[%d].%s", i, name) }
		switch {
		case in.ClientID == "":
			return generic.Invalid(field("clientId"), "required")
		case in.Funding == nil:
			return generic.Invalid(field("funding"), "budget allocation or direct assistance required")
		case in.Amount.IsNegative():
			return generic.Invalid(field("amount"), "must not be negative, got %s", in.Amount)
		case in.Hours.IsNegative():
			return generic.Invalid(field("hours"), "must not be negative, got %s", in.Hours)
		}
		if f, ok := in.Funding.(budget.BudgetFunding); ok && f.AllocationID == "" {
			return generic.Invalid(field("allocationId"), "required for budget funding")
		}
	}
	return nil
}

// Reconciliation is the read-only money picture of a compensation.
type Reconciliation struct {
	CompensationID generic.CompensationID `json:"compensationId"`
	Total          decimal.Decimal        `json:"total"`
	Allocated      decimal.Decimal        `json:"allocated"`
	Remaining      decimal.Decimal        `json:"remaining"`
	OverAllocated  bool                   `json:"overAllocated"`
}

func reconcile(c generic.StaffCompensation, rows []generic.CompensationBudgetAllocation) Reconciliation {
	allocated := decimal.Zero
	for _, r := range rows {
		allocated = allocated.Add(r.AllocatedAmount)
	}
	remaining := c.TotalCompensation.Sub(allocated)
	return Reconciliation{
		CompensationID: c.ID,
		Total:          c.TotalCompensation,
		Allocated:      allocated,
		Remaining:      remaining,
		OverAllocated:  remaining.IsNegative(),
	}
}

// ApprovalResult is what Approve committed.
type ApprovalResult struct {
	Compensation   generic.StaffCompensation
	Allocations    []generic.CompensationBudgetAllocation
	Reconciliation Reconciliation
	Warnings       []generic.Warning
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Store     generic.TxStore
	Allocator *budget.Allocator
	Rates     *budget.RateResolver
	Selector  *budget.Selector
	Calendar  *holiday.Calendar
	Clock     generic.Clock
}

// NewReconciler shares rates, selector, calendar and clock with alloc.
func NewReconciler(store generic.TxStore, alloc *budget.Allocator) *Reconciler {
	return &Reconciler{
		Store:     store,
		Allocator: alloc,
		Rates:     alloc.Rates,
		Selector:  alloc.Selector,
		Calendar:  alloc.Calendar,
		Clock:     alloc.Clock,
	}
}

// Approve commits inputs for compensation id and marks it approved.
func (r *Reconciler) Approve(ctx context.Context, id generic.CompensationID, inputs []AllocationInput, approvedBy string) (*ApprovalResult, error) {
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}
	comp, err := r.Store.GetCompensation(ctx, id)
	if err != nil {
		return nil, err
	}
	approve := generic.StatusChange{
		From:       []generic.CompensationStatus{generic.StatusDraft, generic.StatusPendingApproval},
		To:         generic.StatusApproved,
		ApprovedBy: approvedBy,
	}
	if !approve.Allows(comp.Status) {
		return nil, approve.Rejected(comp.Status)
	}

	warnings, err := r.preview(ctx, *comp, inputs)
	if err != nil {
		return nil, err
	}
	if err := r.checkClients(ctx, inputs); err != nil {
		return nil, err
	}
	details, err := r.details(ctx, *comp, inputs)
	if err != nil {
		return nil, err
	}

	now := r.Clock.Now()
	approve.ApprovedAt = &now
	approve.At = now

	res := &ApprovalResult{Warnings: warnings}
	err = r.Store.WithTx(ctx, func(st generic.Store) error {
		if err := st.TransitionCompensation(ctx, id, approve); err != nil {
			return err
		}
		for _, in := range inputs {
			row, err := r.commitInput(ctx, st, *comp, in, approvedBy, now)
			if err != nil {
				return err
			}
			res.Allocations = append(res.Allocations, row)
		}
		for _, d := range details {
			d.CreatedAt = now
			if err := st.SaveCalculationDetail(ctx, d); err != nil {
				return fmt.Errorf("save calculation detail: %w", err)
			}
		}
		updated, err := st.GetCompensation(ctx, id)
		if err != nil {
			return err
		}
		res.Compensation = *updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Reconciliation = reconcile(res.Compensation, res.Allocations)

	log.WithFields(log.Fields{
		"compensation_id": id,
		"approved_by":     approvedBy,
		"allocations":     len(res.Allocations),
		"allocated":       res.Reconciliation.Allocated.StringFixed(2),
		"remaining":       res.Reconciliation.Remaining.StringFixed(2),
	}).Info("compensation approved")
	for _, w := range res.Warnings {
		log.WithField("compensation_id", id).Warn(w.Message)
	}
	return res, nil
}

func (r *Reconciler) commitInput(ctx context.Context, st generic.Store, comp generic.StaffCompensation, in AllocationInput, by string, now time.Time) (generic.CompensationBudgetAllocation, error) {
	direct := budget.IsDirect(in.Funding)
	e, err := r.Allocator.Commit(ctx, st, budget.CommitRequest{
		ClientID:       in.ClientID,
		Funding:        in.Funding,
		Amount:         in.Amount,
		Date:           comp.PeriodEnd,
		Description:    fmt.Sprintf("compensation %s %s", comp.StaffID, comp.Period()),
		CompensationID: &comp.ID,
		TimeLogID:      in.TimeLogID,
		CreatedBy:      by,
	})
	if err != nil {
		return generic.CompensationBudgetAllocation{}, err
	}
	row := generic.CompensationBudgetAllocation{
		ID:                       generic.CompensationAllocationID(generic.NewID()),
		CompensationID:           comp.ID,
		ClientBudgetAllocationID: e.AllocationID,
		ClientID:                 in.ClientID,
		BudgetTypeID:             e.BudgetTypeID,
		AllocatedAmount:          e.Amount,
		AllocatedHours:           in.Hours,
		TimeLogID:                in.TimeLogID,
		IsDirectClientPayment:    direct,
		PaymentStatus:            generic.PaymentPending,
		ExpenseID:                e.ID,
		Notes:                    in.Notes,
		CreatedAt:                now,
	}
	if direct {
		row.PaymentStatus = generic.PaymentPaid
	}
	if err := st.CreateCompensationAllocation(ctx, row); err != nil {
		return generic.CompensationBudgetAllocation{}, fmt.Errorf("create compensation allocation: %w", err)
	}
	return row, nil
}

// checkClients loads every distinct client once. Direct assistance has no
// allocation to vouch for the client.
func (r *Reconciler) checkClients(ctx context.Context, inputs []AllocationInput) error {
	seen := map[generic.ClientID]bool{}
	for _, in := range inputs {
		if seen[in.ClientID] {
			continue
		}
		seen[in.ClientID] = true
		if _, err := r.Store.GetClient(ctx, in.ClientID); err != nil {
			return err
		}
	}
	return nil
}

// preview computes warnings against the allocations as they are now.
// Several inputs on one allocation are charged cumulatively.
func (r *Reconciler) preview(ctx context.Context, comp generic.StaffCompensation, inputs []AllocationInput) ([]generic.Warning, error) {
	var warnings []generic.Warning
	sum := decimal.Zero
	charged := map[generic.AllocationID]decimal.Decimal{}
	for _, in := range inputs {
		amount := generic.RoundMoney(in.Amount)
		sum = sum.Add(amount)
		f, ok := in.Funding.(budget.BudgetFunding)
		if !ok {
			continue
		}
		alloc, err := r.Store.GetAllocation(ctx, f.AllocationID)
		if err != nil {
			return nil, err
		}
		if alloc.ClientID != in.ClientID {
			return nil, generic.Invalid("allocationId", "allocation %s belongs to client %s, not %s", alloc.ID, alloc.ClientID, in.ClientID)
		}
		before := *alloc
		before.UsedAmount = before.UsedAmount.Add(charged[alloc.ID])
		warnings = append(warnings, budget.UsageWarnings(before, amount)...)
		charged[alloc.ID] = charged[alloc.ID].Add(amount)
	}

	remaining := comp.TotalCompensation.Sub(sum)
	switch {
	case remaining.IsNegative():
		warnings = append(warnings, generic.Warning{
			Code:    generic.WarnOverAllocated,
			Message: fmt.Sprintf("allocations total %s exceeds compensation %s", sum.StringFixed(2), comp.TotalCompensation.StringFixed(2)),
		})
	case remaining.IsPositive():
		warnings = append(warnings, generic.Warning{
			Code:    generic.WarnUnallocated,
			Message: fmt.Sprintf("%s of compensation %s left unallocated", remaining.StringFixed(2), comp.TotalCompensation.StringFixed(2)),
		})
	}
	return warnings, nil
}

// details builds one calculation snapshot per client from the period's
// time logs and the inputs.
func (r *Reconciler) details(ctx context.Context, comp generic.StaffCompensation, inputs []AllocationInput) ([]generic.CalculationDetail, error) {
	staff, err := r.Store.GetStaff(ctx, comp.StaffID)
	if err != nil {
		return nil, err
	}
	rates := r.Rates.ResolveStaff(staff)
	logs, err := r.Store.ListTimeLogsByStaff(ctx, comp.StaffID, comp.Period())
	if err != nil {
		return nil, fmt.Errorf("list time logs: %w", err)
	}

	byClient := map[generic.ClientID]*generic.CalculationDetail{}
	get := func(id generic.ClientID) *generic.CalculationDetail {
		d, ok := byClient[id]
		if !ok {
			d = &generic.CalculationDetail{
				CompensationID:  comp.ID,
				ClientID:        id,
				WeekdayHours:    decimal.Zero,
				HolidayHours:    decimal.Zero,
				Mileage:         decimal.Zero,
				WeekdayRate:     rates.Weekday,
				HolidayRate:     rates.Holiday,
				MileageRate:     rates.Kilometer,
				AllocatedAmount: decimal.Zero,
				DirectAmount:    decimal.Zero,
			}
			byClient[id] = d
		}
		return d
	}
	for _, l := range logs {
		d := get(l.ClientID)
		if r.Calendar.IsPremiumDay(l.ServiceDate) {
			d.HolidayHours = d.HolidayHours.Add(l.Hours)
		} else {
			d.WeekdayHours = d.WeekdayHours.Add(l.Hours)
		}
		d.Mileage = d.Mileage.Add(l.Mileage)
	}
	for _, in := range inputs {
		d := get(in.ClientID)
		amount := generic.RoundMoney(in.Amount)
		if budget.IsDirect(in.Funding) {
			d.DirectAmount = d.DirectAmount.Add(amount)
		} else {
			d.AllocatedAmount = d.AllocatedAmount.Add(amount)
		}
	}

	out := make([]generic.CalculationDetail, 0, len(byClient))
	for _, d := range byClient {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// MarkPaid moves an approved compensation to paid.
func (r *Reconciler) MarkPaid(ctx context.Context, id generic.CompensationID, by string) (*generic.StaffCompensation, error) {
	now := r.Clock.Now()
	err := r.Store.TransitionCompensation(ctx, id, generic.StatusChange{
		From:   []generic.CompensationStatus{generic.StatusApproved},
		To:     generic.StatusPaid,
		PaidAt: &now,
		At:     now,
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"compensation_id": id, "by": by}).Info("compensation paid")
	return r.Store.GetCompensation(ctx, id)
}

// Remaining returns total, allocated and remaining-to-allocate.
func (r *Reconciler) Remaining(ctx context.Context, id generic.CompensationID) (*Reconciliation, error) {
	c, err := r.Store.GetCompensation(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := r.Store.ListCompensationAllocations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list compensation allocations: %w", err)
	}
	rec := reconcile(*c, rows)
	return &rec, nil
}

// Allocations lists the funding rows of a compensation.
func (r *Reconciler) Allocations(ctx context.Context, id generic.CompensationID) ([]generic.CompensationBudgetAllocation, error) {
	if _, err := r.Store.GetCompensation(ctx, id); err != nil {
		return nil, err
	}
	return r.Store.ListCompensationAllocations(ctx, id)
}
