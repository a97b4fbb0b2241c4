package budget

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/generic"
)

// =============================================================================
// AVAILABILITY - Aggregate across overlapping allocations
// =============================================================================

// Availability is the funding a client has for one budget type on a date.
// Several allocations of the same type may be active at once; they are
// summed. Available is signed: negative means over budget.
type Availability struct {
	ClientID     generic.ClientID     `json:"clientId"`
	BudgetTypeID generic.BudgetTypeID `json:"budgetTypeId"`
	AsOf         time.Time            `json:"asOf"`
	Allocated    decimal.Decimal      `json:"allocated"`
	Used         decimal.Decimal      `json:"used"`
	Available    decimal.Decimal      `json:"available"`
	Percentage   decimal.Decimal      `json:"percentage"`
	NoBudget     bool                 `json:"noBudget"`
}

// OverBudget reports Used > Allocated.
func (a Availability) OverBudget() bool { return a.Available.IsNegative() }

// Summarize aggregates the allocations of (clientID, budgetTypeID) active on
// asOf. With no matching row the result is all zeros and NoBudget.
func Summarize(allocs []generic.ClientBudgetAllocation, clientID generic.ClientID, budgetTypeID generic.BudgetTypeID, asOf time.Time) Availability {
	out := Availability{
		ClientID:     clientID,
		BudgetTypeID: budgetTypeID,
		AsOf:         generic.TruncateDay(asOf),
		Allocated:    decimal.Zero,
		Used:         decimal.Zero,
	}
	matched := 0
	for _, a := range allocs {
		if a.ClientID != clientID || a.BudgetTypeID != budgetTypeID || !a.ActiveOn(asOf) {
			continue
		}
		matched++
		out.Allocated = out.Allocated.Add(a.AllocatedAmount)
		out.Used = out.Used.Add(a.UsedAmount)
	}
	out.Available = out.Allocated.Sub(out.Used)
	out.Percentage = generic.Percentage(out.Used, out.Allocated)
	out.NoBudget = matched == 0
	return out
}

// ActiveOn filters allocs to those whose window contains day.
func ActiveOn(allocs []generic.ClientBudgetAllocation, day time.Time) []generic.ClientBudgetAllocation {
	var out []generic.ClientBudgetAllocation
	for _, a := range allocs {
		if a.ActiveOn(day) {
			out = append(out, a)
		}
	}
	return out
}

// AvailabilityCalculator reads allocations from the store. Reads are
// unlocked; a concurrent commit may land right after.
type AvailabilityCalculator struct {
	Store generic.AllocationStore
}

func NewAvailabilityCalculator(store generic.AllocationStore) *AvailabilityCalculator {
	return &AvailabilityCalculator{Store: store}
}

func (c *AvailabilityCalculator) GetAvailability(ctx context.Context, clientID generic.ClientID, budgetTypeID generic.BudgetTypeID, asOf time.Time) (Availability, error) {
	allocs, err := c.Store.ListAllocationsByClient(ctx, clientID)
	if err != nil {
		return Availability{}, fmt.Errorf("list allocations for %s: %w", clientID, err)
	}
	return Summarize(allocs, clientID, budgetTypeID, asOf), nil
}

// ByType summarizes every budget type the client has an active allocation
// for on asOf, in budget type id order.
func (c *AvailabilityCalculator) ByType(ctx context.Context, clientID generic.ClientID, asOf time.Time) ([]Availability, error) {
	allocs, err := c.Store.ListAllocationsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list allocations for %s: %w", clientID, err)
	}
	return SummarizeByType(allocs, clientID, asOf), nil
}

// SummarizeByType is the pure form of ByType.
func SummarizeByType(allocs []generic.ClientBudgetAllocation, clientID generic.ClientID, asOf time.Time) []Availability {
	seen := map[generic.BudgetTypeID]bool{}
	var types []generic.BudgetTypeID
	for _, a := range allocs {
		if a.ClientID == clientID && a.ActiveOn(asOf) && !seen[a.BudgetTypeID] {
			seen[a.BudgetTypeID] = true
			types = append(types, a.BudgetTypeID)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	out := make([]Availability, 0, len(types))
	for _, bt := range types {
		out = append(out, Summarize(allocs, clientID, bt, asOf))
	}
	return out
}
