package budget_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
)

func expenseInput(alloc *generic.AllocationID, amount string) budget.ExpenseInput {
	return budget.ExpenseInput{
		ClientID:     "client-1",
		BudgetTypeID: "sad",
		AllocationID: alloc,
		Amount:       dec(amount),
		ExpenseDate:  generic.Day(2025, time.January, 10),
		Description:  "service",
		CreatedBy:    "tester",
	}
}

func TestExpenseLedger_CreateAmendRemoveConserves(t *testing.T) {
	// GIVEN: A SAD allocation with nothing used
	// WHEN: An expense of 50 is recorded, amended to 30, then removed
	// THEN: Used follows 50 -> 30 -> 0, always equal to the live expenses
	f := newFixture(t)
	ledger := budget.NewExpenseLedger(f.store, f.clock)

	e, err := ledger.Record(f.ctx, expenseInput(allocID("alloc-sad"), "50"))
	require.NoError(t, err)
	assert.True(t, f.used(t, "alloc-sad").Equal(dec("50")))
	assert.True(t, f.expenseSum(t, "alloc-sad").Equal(dec("50")))

	_, err = ledger.Amend(f.ctx, e.ID, expenseInput(allocID("alloc-sad"), "30"))
	require.NoError(t, err)
	assert.True(t, f.used(t, "alloc-sad").Equal(dec("30")))
	assert.True(t, f.expenseSum(t, "alloc-sad").Equal(dec("30")))

	require.NoError(t, ledger.Remove(f.ctx, e.ID))
	assert.True(t, f.used(t, "alloc-sad").IsZero())
	assert.True(t, f.expenseSum(t, "alloc-sad").IsZero())
}

func TestExpenseLedger_AmendMovesBetweenAllocations(t *testing.T) {
	// GIVEN: An expense of 40 on the SAD allocation
	// WHEN: It is amended to 25 on another allocation of the same client
	// THEN: SAD gets 40 back, the other is charged 25
	f := newFixture(t)
	f.allocation(t, "alloc-hcp", "client-1", "hcp", 500)
	ledger := budget.NewExpenseLedger(f.store, f.clock)

	e, err := ledger.Record(f.ctx, expenseInput(allocID("alloc-sad"), "40"))
	require.NoError(t, err)

	moved, err := ledger.Amend(f.ctx, e.ID, expenseInput(allocID("alloc-hcp"), "25"))
	require.NoError(t, err)
	assert.Equal(t, generic.BudgetTypeID("hcp"), moved.BudgetTypeID)

	assert.True(t, f.used(t, "alloc-sad").IsZero())
	assert.True(t, f.used(t, "alloc-hcp").Equal(dec("25")))
	assert.True(t, f.expenseSum(t, "alloc-hcp").Equal(dec("25")))
}

func TestExpenseLedger_AmendToDirectReleasesAllocation(t *testing.T) {
	f := newFixture(t)
	ledger := budget.NewExpenseLedger(f.store, f.clock)

	e, err := ledger.Record(f.ctx, expenseInput(allocID("alloc-sad"), "60"))
	require.NoError(t, err)
	_, err = ledger.Amend(f.ctx, e.ID, expenseInput(nil, "60"))
	require.NoError(t, err)

	assert.True(t, f.used(t, "alloc-sad").IsZero())
	got, err := f.store.GetExpense(f.ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDirect())
}

func TestExpenseLedger_ConservationOverSequence(t *testing.T) {
	f := newFixture(t)
	ledger := budget.NewExpenseLedger(f.store, f.clock)

	var ids []generic.ExpenseID
	for _, amt := range []string{"10.10", "20.20", "30.333", "0", "99.99"} {
		e, err := ledger.Record(f.ctx, expenseInput(allocID("alloc-sad"), amt))
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	_, err := ledger.Amend(f.ctx, ids[1], expenseInput(allocID("alloc-sad"), "5.55"))
	require.NoError(t, err)
	require.NoError(t, ledger.Remove(f.ctx, ids[4]))
	_, err = ledger.Amend(f.ctx, ids[3], expenseInput(allocID("alloc-sad"), "1.01"))
	require.NoError(t, err)

	assert.True(t, f.used(t, "alloc-sad").Equal(f.expenseSum(t, "alloc-sad")))
	// 10.10 + 5.55 + 30.33 + 1.01
	assert.Equal(t, "46.99", f.used(t, "alloc-sad").StringFixed(2))
}

func TestExpenseLedger_Rejections(t *testing.T) {
	f := newFixture(t)
	ledger := budget.NewExpenseLedger(f.store, f.clock)

	_, err := ledger.Record(f.ctx, expenseInput(allocID("alloc-sad"), "-1"))
	assert.True(t, generic.IsValidation(err))

	_, err = ledger.Record(f.ctx, expenseInput(allocID("missing"), "1"))
	assert.True(t, generic.IsNotFound(err))

	other := expenseInput(allocID("alloc-sad"), "1")
	other.ClientID = "client-2"
	_, err = ledger.Record(f.ctx, other)
	assert.True(t, generic.IsValidation(err))

	assert.True(t, generic.IsNotFound(ledger.Remove(f.ctx, "missing")))
	assert.True(t, f.used(t, "alloc-sad").IsZero())
}

func TestExpenseLedger_DirectExpenseNeedsKnownClient(t *testing.T) {
	// GIVEN: A direct assistance expense for a client that does not exist
	// WHEN: It is recorded, or an existing expense is amended onto it
	// THEN: Both are NotFound and nothing is written
	f := newFixture(t)
	ledger := budget.NewExpenseLedger(f.store, f.clock)

	ghost := expenseInput(nil, "50")
	ghost.ClientID = "GHOST"
	ghost.BudgetTypeID = "direct_assistance"
	_, err := ledger.Record(f.ctx, ghost)
	assert.True(t, generic.IsNotFound(err), "got %v", err)

	e, err := ledger.Record(f.ctx, expenseInput(allocID("alloc-sad"), "20"))
	require.NoError(t, err)
	_, err = ledger.Amend(f.ctx, e.ID, ghost)
	assert.True(t, generic.IsNotFound(err), "got %v", err)

	got, err := f.store.GetExpense(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.ClientID("client-1"), got.ClientID)
	assert.True(t, f.used(t, "alloc-sad").Equal(dec("20")))
}

func TestExpenseLedger_CompensationExpensesAreLocked(t *testing.T) {
	// GIVEN: An expense written for an approved compensation
	// WHEN: It is amended or removed through the ledger
	// THEN: Both are InvalidState and the allocation keeps its charge
	f := newFixture(t)
	ledger := budget.NewExpenseLedger(f.store, f.clock)

	in := expenseInput(allocID("alloc-sad"), "85")
	comp := generic.CompensationID("comp-1")
	in.CompensationID = &comp
	e, err := ledger.Record(f.ctx, in)
	require.NoError(t, err)

	_, err = ledger.Amend(f.ctx, e.ID, expenseInput(allocID("alloc-sad"), "10"))
	assert.True(t, generic.IsInvalidState(err), "got %v", err)
	assert.True(t, generic.IsInvalidState(ledger.Remove(f.ctx, e.ID)))

	assert.True(t, f.used(t, "alloc-sad").Equal(dec("85")))
	assert.True(t, f.expenseSum(t, "alloc-sad").Equal(dec("85")))
}
