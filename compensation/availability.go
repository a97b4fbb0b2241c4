package compensation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
)

// =============================================================================
// SERVICE GROUPS - What the approver sees
// =============================================================================

// ServiceGroup is the period's work for one client and one service type,
// with the budgets that could pay for it.
type ServiceGroup struct {
	ClientID     generic.ClientID
	ClientName   string
	ServiceType  string
	TimeLogs     []generic.TimeLog
	WeekdayHours decimal.Decimal
	HolidayHours decimal.Decimal
	TotalHours   decimal.Decimal
	TotalMileage decimal.Decimal
	TotalCost    decimal.Decimal // staff rates
	AsOf         time.Time       // last service date of the group
	Budgets      []budget.Availability
	Candidates   []budget.Candidate
	NoBudget     bool
	Suggested    budget.FundingDecision
}

type groupKey struct {
	client      generic.ClientID
	serviceType string
}

// BudgetAvailability groups the compensation's time logs by (client,
// service type) and attaches availability and a suggested funding to each
// group. Groups are ordered by client name, then service type.
func (r *Reconciler) BudgetAvailability(ctx context.Context, id generic.CompensationID) ([]ServiceGroup, error) {
	comp, err := r.Store.GetCompensation(ctx, id)
	if err != nil {
		return nil, err
	}
	staff, err := r.Store.GetStaff(ctx, comp.StaffID)
	if err != nil {
		return nil, err
	}
	rates := r.Rates.ResolveStaff(staff)
	logs, err := r.Store.ListTimeLogsByStaff(ctx, comp.StaffID, comp.Period())
	if err != nil {
		return nil, fmt.Errorf("list time logs: %w", err)
	}
	types, err := r.Store.ListBudgetTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budget types: %w", err)
	}
	typeByID := make(map[generic.BudgetTypeID]*generic.BudgetType, len(types))
	for i := range types {
		typeByID[types[i].ID] = &types[i]
	}

	groups := map[groupKey]*ServiceGroup{}
	var order []groupKey
	for _, l := range logs {
		k := groupKey{client: l.ClientID, serviceType: strings.TrimSpace(l.ServiceType)}
		g, ok := groups[k]
		if !ok {
			g = &ServiceGroup{
				ClientID:     l.ClientID,
				ServiceType:  k.serviceType,
				WeekdayHours: decimal.Zero,
				HolidayHours: decimal.Zero,
				TotalHours:   decimal.Zero,
				TotalMileage: decimal.Zero,
				TotalCost:    decimal.Zero,
			}
			groups[k] = g
			order = append(order, k)
		}
		b := budget.Price(l.Hours, l.Mileage, r.Calendar.IsPremiumDay(l.ServiceDate), rates)
		g.TimeLogs = append(g.TimeLogs, l)
		g.WeekdayHours = g.WeekdayHours.Add(b.WeekdayHours)
		g.HolidayHours = g.HolidayHours.Add(b.HolidayHours)
		g.TotalHours = g.TotalHours.Add(l.Hours)
		g.TotalMileage = g.TotalMileage.Add(l.Mileage)
		g.TotalCost = g.TotalCost.Add(b.Total)
		if l.ServiceDate.After(g.AsOf) {
			g.AsOf = l.ServiceDate
		}
	}

	out := make([]ServiceGroup, 0, len(order))
	for _, k := range order {
		g := groups[k]
		if err := r.attachFunding(ctx, g, typeByID); err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ClientName != out[j].ClientName {
			return out[i].ClientName < out[j].ClientName
		}
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].ServiceType < out[j].ServiceType
	})
	return out, nil
}

func (r *Reconciler) attachFunding(ctx context.Context, g *ServiceGroup, types map[generic.BudgetTypeID]*generic.BudgetType) error {
	client, err := r.Store.GetClient(ctx, g.ClientID)
	switch {
	case err == nil:
		g.ClientName = client.Name
	case !generic.IsNotFound(err):
		return err
	}
	allocs, err := r.Store.ListAllocationsByClient(ctx, g.ClientID)
	if err != nil {
		return fmt.Errorf("list allocations for %s: %w", g.ClientID, err)
	}
	for _, a := range budget.ActiveOn(allocs, g.AsOf) {
		g.Candidates = append(g.Candidates, budget.NewCandidate(a, types[a.BudgetTypeID]))
	}
	g.Budgets = budget.SummarizeByType(allocs, g.ClientID, g.AsOf)
	g.NoBudget = len(g.Budgets) == 0
	g.Suggested = r.Selector.Select(g.ServiceType, g.Candidates)
	return nil
}

// SuggestAllocations turns the service groups into approval inputs using
// each group's suggested funding.
func (r *Reconciler) SuggestAllocations(ctx context.Context, id generic.CompensationID) ([]AllocationInput, error) {
	groups, err := r.BudgetAvailability(ctx, id)
	if err != nil {
		return nil, err
	}
	inputs := make([]AllocationInput, 0, len(groups))
	for _, g := range groups {
		inputs = append(inputs, AllocationInput{
			ClientID: g.ClientID,
			Funding:  g.Suggested,
			Amount:   g.TotalCost,
			Hours:    g.TotalHours,
			Notes:    fmt.Sprintf("%s: %s", g.ServiceType, budget.Describe(g.Suggested)),
		})
	}
	return inputs, nil
}

// ApproveSuggested approves with the inputs from SuggestAllocations.
func (r *Reconciler) ApproveSuggested(ctx context.Context, id generic.CompensationID, approvedBy string) (*ApprovalResult, error) {
	inputs, err := r.SuggestAllocations(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, generic.Invalid("allocations", "compensation %s has no time logs to allocate", id)
	}
	return r.Approve(ctx, id, inputs, approvedBy)
}
