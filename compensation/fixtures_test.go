package compensation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/compensation"
	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/generic/store"
	"github.com/warp/care-ledger/holiday"
)

// =============================================================================
// FIXTURES - Staff S works for client C in January 2025
// =============================================================================

var (
	january = generic.NewPeriod(generic.Day(2025, time.January, 1), generic.Day(2025, time.January, 31))
	testNow = time.Date(2025, time.February, 3, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	ctx        context.Context
	store      *store.Memory
	clock      *generic.FixedClock
	calc       *compensation.Calculator
	service    *compensation.Service
	reconciler *compensation.Reconciler
}

// newFixture wires the services over a memory store. The calendar knows
// Sundays and Easter only, so 2025-01-06 is an ordinary Monday.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	clock := &generic.FixedClock{At: testNow}
	cal := &holiday.Calendar{}
	rates := budget.NewRateResolver(budget.DefaultFallback)
	alloc := budget.NewAllocator(st, rates, budget.NewSelector(nil), cal, clock)
	calc := compensation.NewCalculator(st, rates, cal)

	f := &fixture{
		ctx:        ctx,
		store:      st,
		clock:      clock,
		calc:       calc,
		service:    compensation.NewService(st, calc, clock),
		reconciler: compensation.NewReconciler(st, alloc),
	}

	require.NoError(t, st.SaveStaff(ctx, generic.StaffMember{
		ID: "S", FirstName: "Staff", LastName: "S",
		WeekdayRate: generic.Rate("10"), HolidayRate: generic.Rate("20"), MileageRate: generic.Rate("0.5"),
	}))
	require.NoError(t, st.SaveClient(ctx, generic.Client{ID: "C", Name: "Client C"}))
	require.NoError(t, st.SaveBudgetType(ctx, generic.BudgetType{ID: "sad", Code: "SAD", Name: "SAD Base"}))
	require.NoError(t, st.SaveBudgetType(ctx, generic.BudgetType{ID: "hcp", Code: "HCP", Name: "HCP Qualified"}))
	require.NoError(t, st.SaveAllocation(ctx, generic.ClientBudgetAllocation{
		ID: "C-SAD", ClientID: "C", BudgetTypeID: "sad",
		AllocatedAmount: decimal.NewFromInt(1000), UsedAmount: decimal.Zero,
		ValidFrom: january.Start, ValidTo: january.End,
	}))
	f.log(t, "log-mon", generic.Day(2025, time.January, 6), "4", "10")
	f.log(t, "log-sun", generic.Day(2025, time.January, 5), "2", "0")
	return f
}

func (f *fixture) log(t *testing.T, id string, day time.Time, hours, km string) {
	t.Helper()
	require.NoError(t, f.store.SaveTimeLog(f.ctx, generic.TimeLog{
		ID: generic.TimeLogID(id), StaffID: "S", ClientID: "C", ServiceDate: day,
		Hours: dec(hours), Mileage: dec(km), ServiceType: "Home Care",
	}))
}

func (f *fixture) generate(t *testing.T) generic.StaffCompensation {
	t.Helper()
	c, err := f.service.Generate(f.ctx, "S", january)
	require.NoError(t, err)
	return *c
}

func (f *fixture) allocation(t *testing.T, id generic.AllocationID) generic.ClientBudgetAllocation {
	t.Helper()
	a, err := f.store.GetAllocation(f.ctx, id)
	require.NoError(t, err)
	return *a
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sadInput(amount string) compensation.AllocationInput {
	return compensation.AllocationInput{
		ClientID: "C",
		Funding:  budget.BudgetFunding{AllocationID: "C-SAD", BudgetTypeID: "sad"},
		Amount:   dec(amount),
		Hours:    dec("6"),
	}
}
