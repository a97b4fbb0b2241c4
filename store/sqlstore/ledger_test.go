package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/compensation"
	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/holiday"
)

// The services over SQLite: the same January walk-through the unit tests
// run on the memory store, through real transactions and cents columns.
func TestLedger_JanuaryOnSQLite(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	clock := &generic.FixedClock{At: stamp}
	cal := &holiday.Calendar{}
	rates := budget.NewRateResolver(budget.DefaultFallback)
	alloc := budget.NewAllocator(s, rates, budget.NewSelector(nil), cal, clock)
	calc := compensation.NewCalculator(s, rates, cal)
	service := compensation.NewService(s, calc, clock)
	reconciler := compensation.NewReconciler(s, alloc)

	require.NoError(t, s.SaveStaff(ctx, generic.StaffMember{
		ID: "S", FirstName: "Staff",
		WeekdayRate: generic.Rate("10"), HolidayRate: generic.Rate("20"), MileageRate: generic.Rate("0.5"),
	}))
	require.NoError(t, s.SaveClient(ctx, generic.Client{ID: "C", Name: "Client C"}))
	require.NoError(t, s.SaveBudgetType(ctx, generic.BudgetType{ID: "sad", Code: "SAD", Name: "SAD Base"}))
	require.NoError(t, s.SaveAllocation(ctx, generic.ClientBudgetAllocation{
		ID: "C-SAD", ClientID: "C", BudgetTypeID: "sad",
		AllocatedAmount: dec("1000"), ValidFrom: jan1, ValidTo: jan31,
	}))
	for _, l := range []generic.TimeLog{
		{ID: "log-mon", StaffID: "S", ClientID: "C", ServiceDate: generic.Day(2025, time.January, 6), Hours: dec("4"), Mileage: dec("10"), ServiceType: "Home Care"},
		{ID: "log-sun", StaffID: "S", ClientID: "C", ServiceDate: generic.Day(2025, time.January, 5), Hours: dec("2"), Mileage: dec("0"), ServiceType: "Home Care"},
	} {
		require.NoError(t, s.SaveTimeLog(ctx, l))
	}

	// GIVEN: The generated January compensation
	c, err := service.Generate(ctx, "S", generic.NewPeriod(jan1, jan31))
	require.NoError(t, err)
	assert.True(t, c.TotalCompensation.Equal(dec("85")))

	// WHEN: The approver takes the suggested funding
	groups, err := reconciler.BudgetAvailability(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, budget.BudgetFunding{AllocationID: "C-SAD", BudgetTypeID: "sad"}, groups[0].Suggested)

	res, err := reconciler.ApproveSuggested(ctx, c.ID, "approver")
	require.NoError(t, err)

	// THEN: used 85, available 915, one row, nothing remaining
	a, err := s.GetAllocation(ctx, "C-SAD")
	require.NoError(t, err)
	assert.True(t, a.UsedAmount.Equal(dec("85")))
	assert.True(t, a.Available().Equal(dec("915")))
	require.Len(t, res.Allocations, 1)
	assert.True(t, res.Reconciliation.Remaining.IsZero())
	assert.Equal(t, generic.StatusApproved, res.Compensation.Status)

	// AND: A second approval changes nothing
	_, err = reconciler.Approve(ctx, c.ID, []compensation.AllocationInput{{
		ClientID: "C", Funding: budget.BudgetFunding{AllocationID: "C-SAD"}, Amount: dec("85"),
	}}, "approver")
	assert.True(t, generic.IsInvalidState(err))
	a, err = s.GetAllocation(ctx, "C-SAD")
	require.NoError(t, err)
	assert.True(t, a.UsedAmount.Equal(dec("85")))
	rows, err := reconciler.Allocations(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLedger_AllocateHoursAndExpensesOnSQLite(t *testing.T) {
	// GIVEN: A client with one SAD allocation
	// WHEN: Hours are allocated, then the expense amended and removed
	// THEN: used tracks the live expenses exactly
	ctx := context.Background()
	s := newSQLite(t)
	clock := &generic.FixedClock{At: stamp}
	alloc := budget.NewAllocator(s, nil, nil, &holiday.Calendar{}, clock)
	ledger := budget.NewExpenseLedger(s, clock)

	require.NoError(t, s.SaveStaff(ctx, generic.StaffMember{ID: "S", FirstName: "Staff", WeekdayRate: generic.Rate("10")}))
	require.NoError(t, s.SaveClient(ctx, generic.Client{ID: "C", Name: "Client C"}))
	require.NoError(t, s.SaveBudgetType(ctx, generic.BudgetType{ID: "sad", Code: "SAD_BASE", Name: "SAD Base"}))
	require.NoError(t, s.SaveAllocation(ctx, generic.ClientBudgetAllocation{
		ID: "C-SAD", ClientID: "C", BudgetTypeID: "sad",
		AllocatedAmount: dec("100"), ValidFrom: jan1, ValidTo: jan31,
	}))

	res, err := alloc.AllocateHours(ctx, budget.AllocateRequest{
		StaffID: "S", ClientID: "C", ServiceDate: generic.Day(2025, time.January, 13),
		Hours: dec("4"), Mileage: dec("0"), ServiceType: "Home Care", CreatedBy: "u",
	})
	require.NoError(t, err)
	assert.True(t, res.Breakdown.Total.Equal(dec("40")))
	require.NotNil(t, res.AllocationID())

	tl, err := s.GetTimeLog(ctx, res.TimeLogID)
	require.NoError(t, err)
	assert.True(t, tl.TotalCost.Equal(dec("40")))

	allocID := generic.AllocationID("C-SAD")
	_, err = ledger.Amend(ctx, res.ExpenseID, budget.ExpenseInput{
		ClientID: "C", BudgetTypeID: "sad", AllocationID: &allocID, Amount: dec("30"),
		ExpenseDate: generic.Day(2025, time.January, 13), CreatedBy: "u",
	})
	require.NoError(t, err)
	a, err := s.GetAllocation(ctx, allocID)
	require.NoError(t, err)
	assert.True(t, a.UsedAmount.Equal(dec("30")))

	require.NoError(t, ledger.Remove(ctx, res.ExpenseID))
	a, err = s.GetAllocation(ctx, allocID)
	require.NoError(t, err)
	assert.True(t, a.UsedAmount.IsZero())
}
