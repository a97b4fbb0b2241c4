package compensation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/compensation"
	"github.com/warp/care-ledger/generic"
)

func TestEndToEnd_JanuaryScenario(t *testing.T) {
	// GIVEN: Staff S's January with total 85 and client C's SAD budget of 1000
	f := newFixture(t)
	c := f.generate(t)
	require.True(t, c.TotalCompensation.Equal(dec("85")))

	// WHEN: The approver reviews availability
	groups, err := f.reconciler.BudgetAvailability(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, "Home Care", g.ServiceType)
	assert.Equal(t, "Client C", g.ClientName)
	assert.True(t, g.TotalCost.Equal(dec("85")))
	assert.True(t, g.TotalHours.Equal(dec("6")))
	assert.False(t, g.NoBudget)
	require.Len(t, g.Budgets, 1)
	assert.True(t, g.Budgets[0].Available.Equal(dec("1000")))

	// THEN: The SAD budget is suggested on service affinity
	assert.Equal(t, budget.BudgetFunding{AllocationID: "C-SAD", BudgetTypeID: "sad"}, g.Suggested)

	// WHEN: Approving one allocation of 85 against it
	res, err := f.reconciler.Approve(f.ctx, c.ID, []compensation.AllocationInput{sadInput("85")}, "approver")
	require.NoError(t, err)

	// THEN: used 85, available 915, one row of 85, nothing left to allocate
	sad := f.allocation(t, "C-SAD")
	assert.True(t, sad.UsedAmount.Equal(dec("85")))
	assert.True(t, sad.Available().Equal(dec("915")))

	require.Len(t, res.Allocations, 1)
	row := res.Allocations[0]
	assert.True(t, row.AllocatedAmount.Equal(dec("85")))
	assert.Equal(t, generic.PaymentPending, row.PaymentStatus)
	assert.False(t, row.IsDirectClientPayment)
	require.NotNil(t, row.ClientBudgetAllocationID)
	assert.Equal(t, generic.AllocationID("C-SAD"), *row.ClientBudgetAllocationID)
	assert.Equal(t, generic.BudgetTypeID("sad"), row.BudgetTypeID)

	assert.Equal(t, generic.StatusApproved, res.Compensation.Status)
	assert.Equal(t, "approver", res.Compensation.ApprovedBy)
	require.NotNil(t, res.Compensation.ApprovedAt)
	assert.Empty(t, res.Warnings)

	rem, err := f.reconciler.Remaining(f.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, rem.Remaining.IsZero())
	assert.False(t, rem.OverAllocated)

	details, err := f.store.ListCalculationDetails(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].WeekdayHours.Equal(dec("4")))
	assert.True(t, details[0].HolidayHours.Equal(dec("2")))
	assert.True(t, details[0].AllocatedAmount.Equal(dec("85")))

	expenses, err := f.store.ListExpensesByCompensation(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, row.ExpenseID, expenses[0].ID)
}

func TestApprove_TwiceIsRejected(t *testing.T) {
	// GIVEN: An approved compensation
	// WHEN: Approve is called again
	// THEN: InvalidState, no new rows, no second increment
	f := newFixture(t)
	c := f.generate(t)
	_, err := f.reconciler.Approve(f.ctx, c.ID, []compensation.AllocationInput{sadInput("85")}, "approver")
	require.NoError(t, err)

	_, err = f.reconciler.Approve(f.ctx, c.ID, []compensation.AllocationInput{sadInput("85")}, "approver")
	assert.True(t, generic.IsInvalidState(err))

	rows, err := f.store.ListCompensationAllocations(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.True(t, f.allocation(t, "C-SAD").UsedAmount.Equal(dec("85")))
	expenses, err := f.store.ListExpensesByCompensation(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestApprove_DirectAssistanceAndSplit(t *testing.T) {
	// GIVEN: A compensation of 85
	// WHEN: 60 is charged to SAD and 25 paid by the client directly
	// THEN: Direct row is paid with no allocation; only 60 hits the budget
	f := newFixture(t)
	c := f.generate(t)

	direct := compensation.AllocationInput{ClientID: "C", Funding: budget.DirectAssistance{}, Amount: dec("25"), Hours: dec("2")}
	res, err := f.reconciler.Approve(f.ctx, c.ID, []compensation.AllocationInput{sadInput("60"), direct}, "approver")
	require.NoError(t, err)
	require.Len(t, res.Allocations, 2)

	d := res.Allocations[1]
	assert.True(t, d.IsDirectClientPayment)
	assert.Nil(t, d.ClientBudgetAllocationID)
	assert.Equal(t, generic.PaymentPaid, d.PaymentStatus)
	assert.Equal(t, budget.DirectBudgetTypeID, d.BudgetTypeID)

	assert.True(t, f.allocation(t, "C-SAD").UsedAmount.Equal(dec("60")))
	assert.True(t, res.Reconciliation.Remaining.IsZero())

	details, err := f.store.ListCalculationDetails(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].DirectAmount.Equal(dec("25")))
	assert.True(t, details[0].AllocatedAmount.Equal(dec("60")))
}

func TestApprove_OverAllocationWarnsAndCommitsAsGiven(t *testing.T) {
	f := newFixture(t)
	c := f.generate(t)

	res, err := f.reconciler.Approve(f.ctx, c.ID, []compensation.AllocationInput{sadInput("100")}, "approver")
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, generic.WarnOverAllocated, res.Warnings[0].Code)
	assert.True(t, res.Reconciliation.Remaining.Equal(dec("-15")))
	assert.True(t, res.Reconciliation.OverAllocated)
	assert.True(t, f.allocation(t, "C-SAD").UsedAmount.Equal(dec("100")))
}

func TestApprove_OverBudgetWarns(t *testing.T) {
	f := newFixture(t)
	c := f.generate(t)

	// Two inputs on the same allocation are charged cumulatively.
	res, err := f.reconciler.Approve(f.ctx, c.ID, []compensation.AllocationInput{sadInput("950"), sadInput("60")}, "approver")
	require.NoError(t, err)

	codes := map[generic.WarningCode]int{}
	for _, w := range res.Warnings {
		codes[w.Code]++
	}
	assert.Equal(t, 1, codes[generic.WarnNearlyExhausted])
	assert.Equal(t, 1, codes[generic.WarnOverBudget])
	assert.Equal(t, 1, codes[generic.WarnOverAllocated])
	assert.True(t, f.allocation(t, "C-SAD").Available().Equal(dec("-10")))
}

func TestApprove_ValidationWritesNothing(t *testing.T) {
	f := newFixture(t)
	c := f.generate(t)

	tests := []struct {
		name   string
		inputs []compensation.AllocationInput
		check  func(error) bool
	}{
		{"empty", nil, generic.IsValidation},
		{"negative amount", []compensation.AllocationInput{sadInput("-1")}, generic.IsValidation},
		{"no funding", []compensation.AllocationInput{{ClientID: "C", Amount: dec("1")}}, generic.IsValidation},
		{"no client", []compensation.AllocationInput{{Funding: budget.DirectAssistance{}, Amount: dec("1")}}, generic.IsValidation},
		{"unknown allocation", []compensation.AllocationInput{{ClientID: "C", Funding: budget.BudgetFunding{AllocationID: "zzz"}, Amount: dec("1")}}, generic.IsNotFound},
		{"allocation of another client", []compensation.AllocationInput{{ClientID: "D", Funding: budget.BudgetFunding{AllocationID: "C-SAD"}, Amount: dec("1")}}, generic.IsValidation},
		{"direct assistance for unknown client", []compensation.AllocationInput{{ClientID: "GHOST", Funding: budget.DirectAssistance{}, Amount: dec("85")}}, generic.IsNotFound},
		{"unknown client next to a valid input", []compensation.AllocationInput{sadInput("40"), {ClientID: "GHOST", Funding: budget.DirectAssistance{}, Amount: dec("45")}}, generic.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reconciler.Approve(f.ctx, c.ID, tt.inputs, "approver")
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	stored, err := f.store.GetCompensation(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusDraft, stored.Status)
	assert.True(t, f.allocation(t, "C-SAD").UsedAmount.IsZero())

	rows, err := f.store.ListCompensationAllocations(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	c := f.generate(t)

	_, err := f.reconciler.MarkPaid(f.ctx, c.ID, "payroll")
	assert.True(t, generic.IsInvalidState(err), "draft cannot be paid")

	_, err = f.reconciler.Approve(f.ctx, c.ID, []compensation.AllocationInput{sadInput("85")}, "approver")
	require.NoError(t, err)

	paid, err := f.reconciler.MarkPaid(f.ctx, c.ID, "payroll")
	require.NoError(t, err)
	assert.Equal(t, generic.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, testNow, *paid.PaidAt)
	assert.True(t, f.allocation(t, "C-SAD").UsedAmount.Equal(dec("85")))

	_, err = f.reconciler.MarkPaid(f.ctx, c.ID, "payroll")
	assert.True(t, generic.IsInvalidState(err))
}

func TestApproveSuggested(t *testing.T) {
	f := newFixture(t)
	c := f.generate(t)

	res, err := f.reconciler.ApproveSuggested(f.ctx, c.ID, "approver")
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.True(t, res.Reconciliation.Remaining.IsZero())
	assert.True(t, f.allocation(t, "C-SAD").UsedAmount.Equal(dec("85")))
}

func TestBudgetAvailability_NoBudgetSuggestsDirect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveClient(f.ctx, generic.Client{ID: "D", Name: "Another"}))
	require.NoError(t, f.store.SaveTimeLog(f.ctx, generic.TimeLog{
		ID: "log-d", StaffID: "S", ClientID: "D", ServiceDate: january.Start.AddDate(0, 0, 8),
		Hours: dec("1"), Mileage: dec("0"), ServiceType: "Educational",
	}))
	c := f.generate(t)

	groups, err := f.reconciler.BudgetAvailability(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, generic.ClientID("D"), groups[0].ClientID, "ordered by client name")
	assert.True(t, groups[0].NoBudget)
	assert.True(t, budget.IsDirect(groups[0].Suggested))
}
