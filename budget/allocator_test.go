package budget_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/holiday"
)

func newAllocator(f *fixture) *budget.Allocator {
	return budget.NewAllocator(f.store, budget.NewRateResolver(budget.DefaultFallback), budget.NewSelector(nil), holiday.Default, f.clock)
}

func request(date time.Time, hours, km string) budget.AllocateRequest {
	return budget.AllocateRequest{
		StaffID:     "staff-1",
		ClientID:    "client-1",
		ServiceDate: date,
		Hours:       dec(hours),
		Mileage:     dec(km),
		ServiceType: "Home Care",
		CreatedBy:   "coordinator",
	}
}

func TestAllocateHours_WeekdayOnSelectedBudget(t *testing.T) {
	// GIVEN: A SAD budget with no rates of its own, staff rates 10/20/0.5
	// WHEN: 4 hours and 10 km on Monday January 13 are allocated
	// THEN: 40 for hours, mileage not fundable by SAD, 40 charged to SAD
	f := newFixture(t)
	a := newAllocator(f)

	res, err := a.AllocateHours(f.ctx, request(generic.Day(2025, time.January, 13), "4", "10"))
	require.NoError(t, err)

	assert.Equal(t, budget.BudgetFunding{AllocationID: "alloc-sad", BudgetTypeID: "sad"}, res.Funding)
	assert.False(t, res.IsDirectClientPayment)
	assert.False(t, res.Breakdown.IsHoliday)
	assert.True(t, res.Breakdown.WeekdayCost.Equal(dec("40")))
	assert.True(t, res.Breakdown.MileageCost.IsZero())
	assert.True(t, res.Breakdown.Total.Equal(dec("40")))
	assert.Empty(t, res.Warnings)

	assert.True(t, f.used(t, "alloc-sad").Equal(dec("40")))

	tl, err := f.store.GetTimeLog(f.ctx, res.TimeLogID)
	require.NoError(t, err)
	assert.True(t, tl.HourlyRate.Equal(dec("10")))
	assert.True(t, tl.TotalCost.Equal(dec("40")))

	e, err := f.store.GetExpense(f.ctx, res.ExpenseID)
	require.NoError(t, err)
	require.NotNil(t, e.TimeLogID)
	assert.Equal(t, res.TimeLogID, *e.TimeLogID)
	assert.Equal(t, "coordinator", e.CreatedBy)
}

func TestAllocateHours_HolidayUsesBudgetTypeRates(t *testing.T) {
	// GIVEN: Only an HCP budget, which carries its own rates and funds mileage
	// WHEN: 2 hours and 5 km on Sunday January 12
	// THEN: 2*24 + 5*0.4 = 50
	f := newFixture(t)
	f.allocation(t, "alloc-hcp", "client-2", "hcp", 500)
	a := newAllocator(f)

	req := request(generic.Day(2025, time.January, 12), "2", "5")
	req.ClientID = "client-2"
	req.ServiceType = "Personal care"
	res, err := a.AllocateHours(f.ctx, req)
	require.NoError(t, err)

	assert.True(t, res.Breakdown.IsHoliday)
	assert.True(t, res.Breakdown.HolidayCost.Equal(dec("48")))
	assert.True(t, res.Breakdown.MileageCost.Equal(dec("2")))
	assert.True(t, res.Breakdown.Total.Equal(dec("50")))
	assert.True(t, f.used(t, "alloc-hcp").Equal(dec("50")))
}

func TestAllocateHours_AllocationOverrideWins(t *testing.T) {
	f := newFixture(t)
	over := f.sad
	over.WeekdayRate = generic.Rate("12.5")
	require.NoError(t, f.store.SaveAllocation(f.ctx, over))

	res, err := newAllocator(f).AllocateHours(f.ctx, request(generic.Day(2025, time.January, 14), "2", "0"))
	require.NoError(t, err)
	assert.True(t, res.Breakdown.Total.Equal(dec("25")))
}

func TestAllocateHours_DirectAssistanceWhenNoBudget(t *testing.T) {
	// GIVEN: Client two has no allocation
	// WHEN: Hours are allocated
	// THEN: Direct assistance at staff rates, expense with no allocation
	f := newFixture(t)
	req := request(generic.Day(2025, time.January, 13), "3", "4")
	req.ClientID = "client-2"

	res, err := newAllocator(f).AllocateHours(f.ctx, req)
	require.NoError(t, err)

	assert.True(t, budget.IsDirect(res.Funding))
	assert.True(t, res.IsDirectClientPayment)
	assert.Nil(t, res.AllocationID())
	assert.Equal(t, budget.DirectBudgetTypeID, res.BudgetTypeID)
	assert.True(t, res.Breakdown.Total.Equal(dec("32")))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, generic.WarnDirectAssistance, res.Warnings[0].Code)

	e, err := f.store.GetExpense(f.ctx, res.ExpenseID)
	require.NoError(t, err)
	assert.True(t, e.IsDirect())
	assert.True(t, f.used(t, "alloc-sad").IsZero())
}

func TestAllocateHours_OutsideWindowIsDirect(t *testing.T) {
	f := newFixture(t)
	res, err := newAllocator(f).AllocateHours(f.ctx, request(generic.Day(2025, time.February, 3), "1", "0"))
	require.NoError(t, err)
	assert.True(t, res.IsDirectClientPayment)
}

func TestAllocateHours_OverBudgetIsWarningNotError(t *testing.T) {
	// GIVEN: A budget with 30 left
	// WHEN: 40 worth of hours is charged
	// THEN: It commits and warns; available becomes negative
	f := newFixture(t)
	small := f.allocation(t, "alloc-small", "client-2", "sad", 30)
	req := request(generic.Day(2025, time.January, 13), "4", "0")
	req.ClientID = "client-2"

	res, err := newAllocator(f).AllocateHours(f.ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, generic.WarnOverBudget, res.Warnings[0].Code)

	got, err := f.store.GetAllocation(f.ctx, small.ID)
	require.NoError(t, err)
	assert.True(t, got.Available().Equal(dec("-10")))
}

func TestAllocateHours_NearlyExhaustedWarning(t *testing.T) {
	f := newFixture(t)
	f.allocation(t, "alloc-small", "client-2", "sad", 42)
	req := request(generic.Day(2025, time.January, 13), "4", "0")
	req.ClientID = "client-2"

	res, err := newAllocator(f).AllocateHours(f.ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, generic.WarnNearlyExhausted, res.Warnings[0].Code)
}

func TestAllocateHours_ExplicitBudget(t *testing.T) {
	f := newFixture(t)
	f.allocation(t, "alloc-hcp", "client-1", "hcp", 500)

	req := request(generic.Day(2025, time.January, 13), "1", "0")
	req.BudgetID = allocID("alloc-hcp")
	res, err := newAllocator(f).AllocateHours(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, generic.AllocationID("alloc-hcp"), res.Funding.(budget.BudgetFunding).AllocationID)
	assert.True(t, res.Breakdown.Total.Equal(dec("18")))

	req.BudgetID = allocID("nope")
	_, err = newAllocator(f).AllocateHours(f.ctx, req)
	assert.True(t, generic.IsNotFound(err))

	f.allocation(t, "alloc-other", "client-2", "sad", 100)
	req.BudgetID = allocID("alloc-other")
	_, err = newAllocator(f).AllocateHours(f.ctx, req)
	assert.True(t, generic.IsValidation(err))
}

func TestAllocateHours_Validation(t *testing.T) {
	f := newFixture(t)
	a := newAllocator(f)
	day := generic.Day(2025, time.January, 13)

	tests := []struct {
		name  string
		mod   func(*budget.AllocateRequest)
		check func(error) bool
	}{
		{"negative hours", func(r *budget.AllocateRequest) { r.Hours = dec("-1") }, generic.IsValidation},
		{"negative mileage", func(r *budget.AllocateRequest) { r.Mileage = dec("-1") }, generic.IsValidation},
		{"no service type", func(r *budget.AllocateRequest) { r.ServiceType = " " }, generic.IsValidation},
		{"no date", func(r *budget.AllocateRequest) { r.ServiceDate = time.Time{} }, generic.IsValidation},
		{"unknown staff", func(r *budget.AllocateRequest) { r.StaffID = "ghost" }, generic.IsNotFound},
		{"unknown client", func(r *budget.AllocateRequest) { r.ClientID = "ghost" }, generic.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(day, "1", "0")
			tt.mod(&req)
			_, err := a.AllocateHours(f.ctx, req)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
	assert.True(t, f.used(t, "alloc-sad").IsZero())
}
