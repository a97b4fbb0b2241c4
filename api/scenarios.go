/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for demos. Each scenario creates staff, clients, budget types,
	allocations and time logs, then generates the draft compensations so
	the approval screen has something to show.

AVAILABLE SCENARIOS:

	january-walkthrough: One staff member, one client, one SAD budget.
	                     January pays 85: 40 weekday, 40 Sunday, 5 mileage.
	multi-budget:        Two clients. One holds SAD and HCP budgets, the
	                     other holds none and falls back to direct assistance.

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create budget types, staff and clients
 3. Create client budget allocations
 4. Record raw time logs (not yet funded)
 5. Generate the draft compensation of each staff member

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "january-walkthrough"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Compensation and approval handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
)

// Resetter is implemented by stores that can drop every record.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO CATALOG
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "january-walkthrough",
		Name:        "January Walk-through",
		Description: "One carer, one client with a 1000 SAD budget. 4h + 10km on a Monday and 2h on a Sunday: January pays 85",
	},
	{
		ID:          "multi-budget",
		Name:        "Multiple Budgets",
		Description: "Two clients: one with SAD and HCP budgets, one with no budget that is funded by direct assistance",
	},
}

// ListScenarios returns available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenarioId": current})
}

// LoadScenario resets the store and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	var load func(context.Context) error
	switch req.ScenarioID {
	case "january-walkthrough":
		load = h.loadJanuaryWalkthrough
	case "multi-budget":
		load = h.loadMultiBudget
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(Resetter)
	if !ok {
		return fmt.Errorf("store %T cannot be reset", h.Store)
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// Fixed catalog shared by the scenarios.
var scenarioBudgetTypes = []generic.BudgetType{
	{ID: "sad", Code: "SAD_BASE", Name: "SAD Base"},
	{ID: "hcp", Code: "HCP_QUALIFIED", Name: "HCP Qualified", HolidayRate: generic.Rate("22"), CanFundMileage: true},
	{ID: "fp", Code: "FP_QUALIFICATA", Name: "FP Qualificata"},
}

var (
	january   = generic.NewPeriod(generic.Day(2025, time.January, 1), generic.Day(2025, time.January, 31))
	janMonday = generic.Day(2025, time.January, 13)
	janSunday = generic.Day(2025, time.January, 12)
	janFriday = generic.Day(2025, time.January, 17)
)

func (h *Handler) loadJanuaryWalkthrough(ctx context.Context) error {
	if err := h.seedBudgetTypes(ctx); err != nil {
		return err
	}

	staff := generic.StaffMember{
		ID: "staff-anna", FirstName: "Anna", LastName: "Rossi",
		WeekdayRate: generic.Rate("10"), HolidayRate: generic.Rate("20"), MileageRate: generic.Rate("0.5"),
	}
	if err := h.Store.SaveStaff(ctx, staff); err != nil {
		return err
	}
	if err := h.Store.SaveClient(ctx, generic.Client{ID: "client-bianchi", Name: "Maria Bianchi"}); err != nil {
		return err
	}
	if err := h.saveAllocation(ctx, "alloc-bianchi-sad", "client-bianchi", "sad", "1000"); err != nil {
		return err
	}

	if err := h.saveTimeLogs(ctx, staff, []generic.TimeLog{
		{ID: "log-anna-mon", ClientID: "client-bianchi", ServiceDate: janMonday, Hours: dec("4"), Mileage: dec("10"), ServiceType: "Home Care"},
		{ID: "log-anna-sun", ClientID: "client-bianchi", ServiceDate: janSunday, Hours: dec("2"), Mileage: dec("0"), ServiceType: "Home Care"},
	}); err != nil {
		return err
	}

	_, err := h.Compensations.Generate(ctx, staff.ID, january)
	return err
}

func (h *Handler) loadMultiBudget(ctx context.Context) error {
	if err := h.seedBudgetTypes(ctx); err != nil {
		return err
	}

	staff := generic.StaffMember{
		ID: "staff-luca", FirstName: "Luca", LastName: "Verdi",
		WeekdayRate: generic.Rate("12"), HolidayRate: generic.Rate("18"), MileageRate: generic.Rate("0.4"),
	}
	if err := h.Store.SaveStaff(ctx, staff); err != nil {
		return err
	}
	for _, c := range []generic.Client{
		{ID: "client-neri", Name: "Giulia Neri"},
		{ID: "client-russo", Name: "Paolo Russo"},
	} {
		if err := h.Store.SaveClient(ctx, c); err != nil {
			return err
		}
	}
	if err := h.saveAllocation(ctx, "alloc-neri-sad", "client-neri", "sad", "500"); err != nil {
		return err
	}
	if err := h.saveAllocation(ctx, "alloc-neri-hcp", "client-neri", "hcp", "800"); err != nil {
		return err
	}

	if err := h.saveTimeLogs(ctx, staff, []generic.TimeLog{
		{ID: "log-luca-neri-home", ClientID: "client-neri", ServiceDate: janMonday, Hours: dec("3"), Mileage: dec("12"), ServiceType: "Home Care"},
		{ID: "log-luca-neri-personal", ClientID: "client-neri", ServiceDate: janSunday, Hours: dec("2"), Mileage: dec("0"), ServiceType: "Personal Care"},
		{ID: "log-luca-russo", ClientID: "client-russo", ServiceDate: janFriday, Hours: dec("5"), Mileage: dec("8"), ServiceType: "Home Care"},
	}); err != nil {
		return err
	}

	_, err := h.Compensations.Generate(ctx, staff.ID, january)
	return err
}

func (h *Handler) seedBudgetTypes(ctx context.Context) error {
	for _, bt := range scenarioBudgetTypes {
		if err := h.Store.SaveBudgetType(ctx, bt); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) saveAllocation(ctx context.Context, id, clientID, budgetTypeID, amount string) error {
	now := h.Clock.Now()
	return h.Store.SaveAllocation(ctx, generic.ClientBudgetAllocation{
		ID:              generic.AllocationID(id),
		ClientID:        generic.ClientID(clientID),
		BudgetTypeID:    generic.BudgetTypeID(budgetTypeID),
		AllocatedAmount: dec(amount),
		UsedAmount:      decimal.Zero,
		ValidFrom:       january.Start,
		ValidTo:         january.End,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// saveTimeLogs records unfunded logs priced at the staff member's rates.
func (h *Handler) saveTimeLogs(ctx context.Context, staff generic.StaffMember, logs []generic.TimeLog) error {
	rates := h.Allocator.Rates.ResolveStaff(&staff)
	for _, l := range logs {
		b := budget.Price(l.Hours, l.Mileage, h.Allocator.Calendar.IsPremiumDay(l.ServiceDate), rates)
		l.StaffID = staff.ID
		l.HourlyRate = b.HourlyRate()
		l.TotalCost = b.Total
		l.CreatedAt = h.Clock.Now()
		if err := h.Store.SaveTimeLog(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	return generic.MustParseDecimal(s)
}
