package budget_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
)

func TestSummarize_SumsOverlappingRows(t *testing.T) {
	// GIVEN: Two SAD allocations overlapping mid-January and one expired
	// WHEN: Summarizing on January 15
	// THEN: Both active rows are summed, the expired one ignored
	allocs := []generic.ClientBudgetAllocation{
		{ID: "a", ClientID: "c", BudgetTypeID: "sad", AllocatedAmount: dec("1000"), UsedAmount: dec("400"),
			ValidFrom: generic.Day(2025, 1, 1), ValidTo: generic.Day(2025, 1, 31)},
		{ID: "b", ClientID: "c", BudgetTypeID: "sad", AllocatedAmount: dec("500"), UsedAmount: dec("100"),
			ValidFrom: generic.Day(2025, 1, 10), ValidTo: generic.Day(2025, 3, 31)},
		{ID: "old", ClientID: "c", BudgetTypeID: "sad", AllocatedAmount: dec("9999"),
			ValidFrom: generic.Day(2024, 1, 1), ValidTo: generic.Day(2024, 12, 31)},
		{ID: "other", ClientID: "c", BudgetTypeID: "hcp", AllocatedAmount: dec("700"),
			ValidFrom: generic.Day(2025, 1, 1), ValidTo: generic.Day(2025, 12, 31)},
	}

	got := budget.Summarize(allocs, "c", "sad", generic.Day(2025, time.January, 15))

	assert.False(t, got.NoBudget)
	assert.True(t, got.Allocated.Equal(dec("1500")))
	assert.True(t, got.Used.Equal(dec("500")))
	assert.True(t, got.Available.Equal(dec("1000")))
	assert.Equal(t, "33.33", got.Percentage.StringFixed(2))
}

func TestSummarize_WindowIsInclusive(t *testing.T) {
	allocs := []generic.ClientBudgetAllocation{{ID: "a", ClientID: "c", BudgetTypeID: "sad", AllocatedAmount: dec("10"),
		ValidFrom: generic.Day(2025, 1, 1), ValidTo: generic.Day(2025, 1, 31)}}
	assert.False(t, budget.Summarize(allocs, "c", "sad", generic.Day(2025, 1, 31)).NoBudget)
	assert.False(t, budget.Summarize(allocs, "c", "sad", generic.Day(2025, 1, 1)).NoBudget)
	assert.True(t, budget.Summarize(allocs, "c", "sad", generic.Day(2025, 2, 1)).NoBudget)
}

func TestSummarize_NoBudget(t *testing.T) {
	got := budget.Summarize(nil, "c", "sad", generic.Day(2025, 1, 15))
	assert.True(t, got.NoBudget)
	assert.True(t, got.Allocated.IsZero())
	assert.True(t, got.Available.IsZero())
	assert.True(t, got.Percentage.IsZero())
}

func TestSummarize_OverBudgetIsSigned(t *testing.T) {
	allocs := []generic.ClientBudgetAllocation{{ID: "a", ClientID: "c", BudgetTypeID: "sad",
		AllocatedAmount: dec("100"), UsedAmount: dec("130"),
		ValidFrom: generic.Day(2025, 1, 1), ValidTo: generic.Day(2025, 1, 31)}}
	got := budget.Summarize(allocs, "c", "sad", generic.Day(2025, 1, 15))
	assert.True(t, got.Available.Equal(dec("-30")))
	assert.True(t, got.OverBudget())
	assert.Equal(t, "130.00", got.Percentage.StringFixed(2))
}

func TestSummarize_ZeroAllocatedHasZeroPercentage(t *testing.T) {
	allocs := []generic.ClientBudgetAllocation{{ID: "a", ClientID: "c", BudgetTypeID: "sad",
		AllocatedAmount: decimal.Zero, UsedAmount: dec("5"),
		ValidFrom: generic.Day(2025, 1, 1), ValidTo: generic.Day(2025, 1, 31)}}
	got := budget.Summarize(allocs, "c", "sad", generic.Day(2025, 1, 15))
	assert.True(t, got.Percentage.IsZero())
	assert.True(t, got.Available.Equal(dec("-5")))
}

func TestAvailabilityCalculator_ReadsStore(t *testing.T) {
	f := newFixture(t)
	f.allocation(t, "alloc-hcp", "client-1", "hcp", 300)

	calc := budget.NewAvailabilityCalculator(f.store)
	got, err := calc.GetAvailability(f.ctx, "client-1", "sad", generic.Day(2025, 1, 6))
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(dec("1000")))

	all, err := calc.ByType(f.ctx, "client-1", generic.Day(2025, 1, 6))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, generic.BudgetTypeID("hcp"), all[0].BudgetTypeID)
	assert.Equal(t, generic.BudgetTypeID("sad"), all[1].BudgetTypeID)
}
