package budget_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/generic/store"
)

// =============================================================================
// FIXTURES - A client with a SAD budget for January 2025
// =============================================================================

var testNow = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	store *store.Memory
	clock *generic.FixedClock
	staff generic.StaffMember
	sad   generic.ClientBudgetAllocation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		ctx:   ctx,
		store: store.NewMemory(),
		clock: &generic.FixedClock{At: testNow},
		staff: generic.StaffMember{
			ID:          "staff-1",
			FirstName:   "Maria",
			LastName:    "Rossi",
			WeekdayRate: generic.Rate("10"),
			HolidayRate: generic.Rate("20"),
			MileageRate: generic.Rate("0.5"),
		},
	}
	require.NoError(t, f.store.SaveStaff(ctx, f.staff))
	require.NoError(t, f.store.SaveClient(ctx, generic.Client{ID: "client-1", Name: "Client One"}))
	require.NoError(t, f.store.SaveClient(ctx, generic.Client{ID: "client-2", Name: "Client Two"}))
	require.NoError(t, f.store.SaveBudgetType(ctx, generic.BudgetType{ID: "sad", Code: "SAD_BASE", Name: "SAD Base"}))
	require.NoError(t, f.store.SaveBudgetType(ctx, generic.BudgetType{
		ID: "hcp", Code: "HCP_QUALIFIED", Name: "HCP Qualified", CanFundMileage: true,
		WeekdayRate: generic.Rate("18"), HolidayRate: generic.Rate("24"), KilometerRate: generic.Rate("0.4"),
	}))
	f.sad = f.allocation(t, "alloc-sad", "client-1", "sad", 1000)
	return f
}

func (f *fixture) allocation(t *testing.T, id string, client generic.ClientID, bt generic.BudgetTypeID, amount int64) generic.ClientBudgetAllocation {
	t.Helper()
	a := generic.ClientBudgetAllocation{
		ID:              generic.AllocationID(id),
		ClientID:        client,
		BudgetTypeID:    bt,
		AllocatedAmount: decimal.NewFromInt(amount),
		UsedAmount:      decimal.Zero,
		ValidFrom:       generic.Day(2025, time.January, 1),
		ValidTo:         generic.Day(2025, time.January, 31),
	}
	require.NoError(t, f.store.SaveAllocation(f.ctx, a))
	return a
}

func (f *fixture) used(t *testing.T, id generic.AllocationID) decimal.Decimal {
	t.Helper()
	a, err := f.store.GetAllocation(f.ctx, id)
	require.NoError(t, err)
	return a.UsedAmount
}

func (f *fixture) expenseSum(t *testing.T, id generic.AllocationID) decimal.Decimal {
	t.Helper()
	es, err := f.store.ListExpensesByAllocation(f.ctx, id)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, e := range es {
		sum = sum.Add(e.Amount)
	}
	return sum
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func allocID(s string) *generic.AllocationID {
	id := generic.AllocationID(s)
	return &id
}
