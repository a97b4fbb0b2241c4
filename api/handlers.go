/*
handlers.go - HTTP API handlers for the care funding ledger

PURPOSE:
  Exposes the budget and compensation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the domain
  services.

ENDPOINTS:
  Catalog:
    GET    /api/staff                          List staff
    POST   /api/staff                          Create or update staff member
    GET    /api/staff/{id}                     Get staff member
    GET    /api/staff/{id}/compensation        Calculate totals (?from=&to=)
    GET    /api/staff/{id}/time-logs           Time logs in a period
    GET    /api/clients                        List clients
    POST   /api/clients                        Create or update client
    GET    /api/clients/{id}/allocations       Client budget allocations
    GET    /api/clients/{id}/availability      Availability (?budget_type=&date=)
    GET    /api/budget-types                   List budget types
    POST   /api/budget-types                   Create or update budget type

  Budgets:
    POST   /api/allocations                    Create or reconfigure allocation
    GET    /api/allocations/{id}               Get allocation
    GET    /api/allocations/{id}/expenses      Expenses charged to allocation
    POST   /api/expenses                       Record expense
    GET    /api/expenses/{id}                  Get expense
    PUT    /api/expenses/{id}                  Amend expense
    DELETE /api/expenses/{id}                  Remove expense
    POST   /api/time-logs/allocate             Log hours and fund them

  Compensations:
    POST   /api/compensations                  Generate (or refresh) a draft
    GET    /api/compensations                  List (?staffId=&status=&from=&to=)
    GET    /api/compensations/{id}             Get compensation
    PATCH  /api/compensations/{id}             Inline edit of hours/mileage
    POST   /api/compensations/{id}/submit      Draft -> pending approval
    GET    /api/compensations/{id}/budget-availability  Approval screen
    POST   /api/compensations/{id}/approve     Commit funding and approve
    POST   /api/compensations/{id}/mark-paid   Approved -> paid
    GET    /api/compensations/{id}/allocations Funding rows + remaining
    GET    /api/compensations/{id}/adjustments Audit trail

  Jobs:
    POST   /api/jobs/compensations             Batch generation for a period
    GET    /api/jobs/{id}                      Job progress

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Transactional ledger store (SQLite, Postgres or memory)
  - Allocator / Expenses / Availability: budget package services
  - Calculator / Compensations / Reconciler: compensation package services
  - Runner: background batch generation

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Invalid state transition, duplicate id
  - 500: Internal errors

IDENTITY:
  The acting user comes from the X-User-ID header (see server.go). It is
  recorded as approver, adjuster and expense author.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/compensation"
	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/holiday"
	"github.com/warp/care-ledger/jobs"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures the services behind the handler. Zero values fall
// back to the package defaults.
type Options struct {
	Rates              budget.Rates
	Calendar           *holiday.Calendar
	Affinity           budget.Affinity
	DirectBudgetTypeID generic.BudgetTypeID
	Workers            int
	AllowedOrigins     []string
	Clock              generic.Clock
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store generic.TxStore
	Jobs  jobs.Store

	Allocator     *budget.Allocator
	Expenses      *budget.ExpenseLedger
	Availability  *budget.AvailabilityCalculator
	Calculator    *compensation.Calculator
	Compensations *compensation.Service
	Reconciler    *compensation.Reconciler
	Runner        *jobs.Runner
	Clock         generic.Clock

	allowedOrigins []string

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the services over store. Call Close to stop background
// jobs.
func NewHandler(store generic.TxStore, jobStore jobs.Store, opts Options) *Handler {
	if opts.Rates == (budget.Rates{}) {
		opts.Rates = budget.DefaultFallback
	}
	if opts.Calendar == nil {
		opts.Calendar = holiday.Default
	}
	if opts.Clock == nil {
		opts.Clock = generic.SystemClock{}
	}

	rates := budget.NewRateResolver(opts.Rates)
	alloc := budget.NewAllocator(store, rates, budget.NewSelector(opts.Affinity), opts.Calendar, opts.Clock)
	if opts.DirectBudgetTypeID != "" {
		alloc.DirectBudgetTypeID = opts.DirectBudgetTypeID
	}
	calc := compensation.NewCalculator(store, rates, opts.Calendar)
	service := compensation.NewService(store, calc, opts.Clock)

	return &Handler{
		Store:          store,
		Jobs:           jobStore,
		Allocator:      alloc,
		Expenses:       budget.NewExpenseLedger(store, opts.Clock),
		Availability:   budget.NewAvailabilityCalculator(store),
		Calculator:     calc,
		Compensations:  service,
		Reconciler:     compensation.NewReconciler(store, alloc),
		Runner:         jobs.NewRunner(jobStore, store, service, opts.Workers, opts.Clock),
		Clock:          opts.Clock,
		allowedOrigins: opts.AllowedOrigins,
	}
}

// Close cancels running jobs and waits for them to save their state.
func (h *Handler) Close() {
	h.Runner.Stop()
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// ListStaff returns all staff members.
// GET /api/staff
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.Store.ListStaff(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list staff", err)
		return
	}

	dtos := make([]StaffDTO, len(staff))
	for i, s := range staff {
		dtos[i] = toStaffDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStaff returns one staff member.
// GET /api/staff/{id}
func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.GetStaff(r.Context(), generic.StaffID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get staff member", err)
		return
	}
	writeJSON(w, http.StatusOK, toStaffDTO(*s))
}

// SaveStaff creates or updates a staff member.
// POST /api/staff
func (h *Handler) SaveStaff(w http.ResponseWriter, r *http.Request) {
	var req StaffDTO
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FirstName) == "" {
		writeDomainError(w, "Invalid staff member", generic.Invalid("firstName", "required"))
		return
	}

	s := generic.StaffMember{
		ID:        generic.StaffID(req.ID),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	var err error
	if s.WeekdayRate, err = parseRate("weekdayRate", req.WeekdayRate); err == nil {
		if s.HolidayRate, err = parseRate("holidayRate", req.HolidayRate); err == nil {
			s.MileageRate, err = parseRate("mileageRate", req.MileageRate)
		}
	}
	if err != nil {
		writeDomainError(w, "Invalid staff member", err)
		return
	}
	if s.ID == "" {
		s.ID = generic.StaffID(generic.NewID())
	}
	now := h.Clock.Now()
	s.CreatedAt, s.UpdatedAt = now, now

	if err := h.Store.SaveStaff(r.Context(), s); err != nil {
		writeDomainError(w, "Failed to save staff member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStaffDTO(s))
}

// CalculateCompensation returns the totals of a staff member for a period
// without writing anything.
// GET /api/staff/{id}/compensation?from=2025-01-01&to=2025-01-31
func (h *Handler) CalculateCompensation(w http.ResponseWriter, r *http.Request) {
	period, err := periodParams(r, "from", "to")
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	totals, err := h.Calculator.Calculate(r.Context(), generic.StaffID(chi.URLParam(r, "id")), period.Start, period.End)
	if err != nil {
		writeDomainError(w, "Failed to calculate compensation", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(*totals))
}

// ListStaffTimeLogs returns a staff member's time logs in a period.
// GET /api/staff/{id}/time-logs?from=&to=
func (h *Handler) ListStaffTimeLogs(w http.ResponseWriter, r *http.Request) {
	period, err := periodParams(r, "from", "to")
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	logs, err := h.Store.ListTimeLogsByStaff(r.Context(), generic.StaffID(chi.URLParam(r, "id")), period)
	if err != nil {
		writeDomainError(w, "Failed to list time logs", err)
		return
	}
	dtos := make([]TimeLogDTO, len(logs))
	for i, l := range logs {
		dtos[i] = toTimeLogDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients.
// GET /api/clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list clients", err)
		return
	}
	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = ClientDTO{ID: string(c.ID), Name: c.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveClient creates or updates a client.
// POST /api/clients
func (h *Handler) SaveClient(w http.ResponseWriter, r *http.Request) {
	var req ClientDTO
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeDomainError(w, "Invalid client", generic.Invalid("name", "required"))
		return
	}
	if req.ID == "" {
		req.ID = generic.NewID()
	}

	c := generic.Client{ID: generic.ClientID(req.ID), Name: req.Name, CreatedAt: h.Clock.Now()}
	if err := h.Store.SaveClient(r.Context(), c); err != nil {
		writeDomainError(w, "Failed to save client", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListClientAllocations returns every allocation of a client.
// GET /api/clients/{id}/allocations
func (h *Handler) ListClientAllocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := generic.ClientID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetClient(ctx, clientID); err != nil {
		writeDomainError(w, "Failed to get client", err)
		return
	}

	allocs, err := h.Store.ListAllocationsByClient(ctx, clientID)
	if err != nil {
		writeDomainError(w, "Failed to list allocations", err)
		return
	}
	dtos := make([]AllocationDTO, len(allocs))
	for i, a := range allocs {
		dtos[i] = toAllocationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClientAvailability returns what a client has left to spend on a date.
// Without budget_type every type active on the date is listed.
// GET /api/clients/{id}/availability?budget_type=sad&date=2025-01-13
func (h *Handler) GetClientAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := generic.ClientID(chi.URLParam(r, "id"))

	asOf := generic.TruncateDay(h.Clock.Now())
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := parseDay("date", s)
		if err != nil {
			writeDomainError(w, "Invalid date", err)
			return
		}
		asOf = d
	}

	if bt := r.URL.Query().Get("budget_type"); bt != "" {
		a, err := h.Availability.GetAvailability(ctx, clientID, generic.BudgetTypeID(bt), asOf)
		if err != nil {
			writeDomainError(w, "Failed to get availability", err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityDTO(a))
		return
	}

	all, err := h.Availability.ByType(ctx, clientID, asOf)
	if err != nil {
		writeDomainError(w, "Failed to get availability", err)
		return
	}
	dtos := make([]AvailabilityDTO, len(all))
	for i, a := range all {
		dtos[i] = toAvailabilityDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BUDGET TYPE HANDLERS
// =============================================================================

// ListBudgetTypes returns the budget type catalog.
// GET /api/budget-types
func (h *Handler) ListBudgetTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListBudgetTypes(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list budget types", err)
		return
	}
	dtos := make([]BudgetTypeDTO, len(types))
	for i, bt := range types {
		dtos[i] = toBudgetTypeDTO(bt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveBudgetType creates or updates a budget type.
// POST /api/budget-types
func (h *Handler) SaveBudgetType(w http.ResponseWriter, r *http.Request) {
	var req BudgetTypeDTO
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeDomainError(w, "Invalid budget type", generic.Invalid("code", "required"))
		return
	}

	bt := generic.BudgetType{
		ID:             generic.BudgetTypeID(req.ID),
		Code:           strings.ToUpper(req.Code),
		Name:           req.Name,
		CanFundMileage: req.CanFundMileage,
	}
	var err error
	if bt.WeekdayRate, err = parseRate("weekdayRate", req.WeekdayRate); err == nil {
		if bt.HolidayRate, err = parseRate("holidayRate", req.HolidayRate); err == nil {
			bt.KilometerRate, err = parseRate("kilometerRate", req.KilometerRate)
		}
	}
	if err != nil {
		writeDomainError(w, "Invalid budget type", err)
		return
	}
	if bt.ID == "" {
		bt.ID = generic.BudgetTypeID(strings.ToLower(bt.Code))
	}

	if err := h.Store.SaveBudgetType(r.Context(), bt); err != nil {
		writeDomainError(w, "Failed to save budget type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetTypeDTO(bt))
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// SaveAllocation creates an allocation or reconfigures an existing one.
// The used amount of an existing allocation is never changed here.
// POST /api/allocations
func (h *Handler) SaveAllocation(w http.ResponseWriter, r *http.Request) {
	var req SaveAllocationRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	a, err := req.toAllocation()
	if err != nil {
		writeDomainError(w, "Invalid allocation", err)
		return
	}
	if _, err := h.Store.GetClient(ctx, a.ClientID); err != nil {
		writeDomainError(w, "Failed to get client", err)
		return
	}
	if a.ID == "" {
		a.ID = generic.AllocationID(generic.NewID())
	}
	now := h.Clock.Now()
	a.CreatedAt, a.UpdatedAt = now, now

	if err := h.Store.SaveAllocation(ctx, a); err != nil {
		writeDomainError(w, "Failed to save allocation", err)
		return
	}
	saved, err := h.Store.GetAllocation(ctx, a.ID)
	if err != nil {
		writeDomainError(w, "Failed to get allocation", err)
		return
	}

	log.WithFields(log.Fields{
		"allocation":  saved.ID,
		"client":      saved.ClientID,
		"budget_type": saved.BudgetTypeID,
		"allocated":   saved.AllocatedAmount.StringFixed(2),
	}).Info("Allocation saved")
	writeJSON(w, http.StatusCreated, toAllocationDTO(*saved))
}

func (req SaveAllocationRequest) toAllocation() (generic.ClientBudgetAllocation, error) {
	a := generic.ClientBudgetAllocation{
		ID:           generic.AllocationID(req.ID),
		ClientID:     generic.ClientID(req.ClientID),
		BudgetTypeID: generic.BudgetTypeID(req.BudgetTypeID),
		UsedAmount:   decimal.Zero,
	}
	switch {
	case a.ClientID == "":
		return a, generic.Invalid("clientId", "required")
	case a.BudgetTypeID == "":
		return a, generic.Invalid("budgetTypeId", "required")
	}

	var err error
	if a.AllocatedAmount, err = parseDecimal("allocatedAmount", req.AllocatedAmount, true); err != nil {
		return a, err
	}
	if a.AllocatedAmount.IsNegative() {
		return a, generic.Invalid("allocatedAmount", "must not be negative, got %s", a.AllocatedAmount)
	}
	a.AllocatedAmount = generic.RoundMoney(a.AllocatedAmount)
	if a.ValidFrom, err = parseDay("validFrom", req.ValidFrom); err != nil {
		return a, err
	}
	if a.ValidTo, err = parseDay("validTo", req.ValidTo); err != nil {
		return a, err
	}
	if err := a.Window().Validate(); err != nil {
		return a, err
	}
	if a.WeekdayRate, err = parseRate("weekdayRate", req.WeekdayRate); err != nil {
		return a, err
	}
	if a.HolidayRate, err = parseRate("holidayRate", req.HolidayRate); err != nil {
		return a, err
	}
	if a.KilometerRate, err = parseRate("kilometerRate", req.KilometerRate); err != nil {
		return a, err
	}
	return a, nil
}

// GetAllocation returns one allocation.
// GET /api/allocations/{id}
func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAllocation(r.Context(), generic.AllocationID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(*a))
}

// ListAllocationExpenses returns the expenses charged to an allocation.
// GET /api/allocations/{id}/expenses
func (h *Handler) ListAllocationExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AllocationID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetAllocation(ctx, id); err != nil {
		writeDomainError(w, "Failed to get allocation", err)
		return
	}

	expenses, err := h.Store.ListExpensesByAllocation(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to list expenses", err)
		return
	}
	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// CreateExpense records an expense and charges its allocation.
// POST /api/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toInput(UserFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, "Invalid expense", err)
		return
	}

	e, err := h.Expenses.Record(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to record expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(*e))
}

// GetExpense returns one expense.
// GET /api/expenses/{id}
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := h.Store.GetExpense(r.Context(), generic.ExpenseID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(*e))
}

// UpdateExpense amends an expense, moving the difference between
// allocations as needed.
// PUT /api/expenses/{id}
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toInput(UserFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, "Invalid expense", err)
		return
	}

	e, err := h.Expenses.Amend(r.Context(), generic.ExpenseID(chi.URLParam(r, "id")), in)
	if err != nil {
		writeDomainError(w, "Failed to amend expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(*e))
}

// DeleteExpense removes an expense and releases its amount.
// DELETE /api/expenses/{id}
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.Expenses.Remove(r.Context(), generic.ExpenseID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to remove expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req ExpenseRequest) toInput(user string) (budget.ExpenseInput, error) {
	in := budget.ExpenseInput{
		ClientID:       generic.ClientID(req.ClientID),
		BudgetTypeID:   generic.BudgetTypeID(req.BudgetTypeID),
		AllocationID:   idOf[generic.AllocationID](req.AllocationID),
		Description:    req.Description,
		CompensationID: idOf[generic.CompensationID](req.CompensationID),
		TimeLogID:      idOf[generic.TimeLogID](req.TimeLogID),
		CreatedBy:      user,
	}
	var err error
	if in.Amount, err = parseDecimal("amount", req.Amount, true); err != nil {
		return in, err
	}
	if in.ExpenseDate, err = parseDay("expenseDate", req.ExpenseDate); err != nil {
		return in, err
	}
	return in, nil
}

// =============================================================================
// TIME LOG HANDLERS
// =============================================================================

// AllocateHours records a block of service and funds it from the best
// allocation, or directly when nothing can pay.
// POST /api/time-logs/allocate
func (h *Handler) AllocateHours(w http.ResponseWriter, r *http.Request) {
	var req AllocateHoursRequest
	if !decode(w, r, &req) {
		return
	}

	in := budget.AllocateRequest{
		StaffID:     generic.StaffID(req.StaffID),
		ClientID:    generic.ClientID(req.ClientID),
		ServiceType: req.ServiceType,
		Notes:       req.Notes,
		BudgetID:    idOf[generic.AllocationID](req.BudgetID),
		CreatedBy:   UserFromContext(r.Context()),
	}
	var err error
	if in.ServiceDate, err = parseDay("serviceDate", req.ServiceDate); err == nil {
		if in.Hours, err = parseDecimal("hours", req.Hours, true); err == nil {
			in.Mileage, err = parseDecimal("mileage", req.Mileage, false)
		}
	}
	if err != nil {
		writeDomainError(w, "Invalid time log", err)
		return
	}

	res, err := h.Allocator.AllocateHours(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to allocate hours", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationResultDTO(*res))
}

// =============================================================================
// COMPENSATION HANDLERS
// =============================================================================

// GenerateCompensation creates the draft for a staff member and period, or
// refreshes an existing draft.
// POST /api/compensations
func (h *Handler) GenerateCompensation(w http.ResponseWriter, r *http.Request) {
	var req GenerateCompensationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.StaffID == "" {
		writeDomainError(w, "Invalid request", generic.Invalid("staffId", "required"))
		return
	}
	period, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	c, err := h.Compensations.Generate(r.Context(), generic.StaffID(req.StaffID), period)
	if err != nil {
		writeDomainError(w, "Failed to generate compensation", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompensationDTO(*c))
}

// ListCompensations returns compensations matching the query filters.
// GET /api/compensations?staffId=&status=&from=&to=
func (h *Handler) ListCompensations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter generic.CompensationFilter
	if s := q.Get("staffId"); s != "" {
		id := generic.StaffID(s)
		filter.StaffID = &id
	}
	if s := q.Get("status"); s != "" {
		status := generic.CompensationStatus(s)
		filter.Status = &status
	}
	if q.Get("from") != "" || q.Get("to") != "" {
		period, err := periodParams(r, "from", "to")
		if err != nil {
			writeDomainError(w, "Invalid period", err)
			return
		}
		filter.Period = &period
	}

	comps, err := h.Store.ListCompensations(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list compensations", err)
		return
	}
	dtos := make([]CompensationDTO, len(comps))
	for i, c := range comps {
		dtos[i] = toCompensationDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCompensation returns one compensation.
// GET /api/compensations/{id}
func (h *Handler) GetCompensation(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCompensation(r.Context(), compensationID(r))
	if err != nil {
		writeDomainError(w, "Failed to get compensation", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompensationDTO(*c))
}

// PatchCompensation edits hours or mileage of a compensation that is not
// yet approved and records the change.
// PATCH /api/compensations/{id}
func (h *Handler) PatchCompensation(w http.ResponseWriter, r *http.Request) {
	var req PatchCompensationRequest
	if !decode(w, r, &req) {
		return
	}
	field := patchField(req.Field)
	value, err := parseDecimal(field, req.Value, true)
	if err != nil {
		writeDomainError(w, "Invalid value", err)
		return
	}

	res, err := h.Compensations.PatchField(r.Context(), compensationID(r), field, value, UserFromContext(r.Context()), req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to update compensation", err)
		return
	}

	resp := PatchCompensationResponse{Compensation: toCompensationDTO(res.Compensation)}
	if res.Adjustment != nil {
		adj := toAdjustmentDTO(*res.Adjustment)
		resp.Adjustment = &adj
	}
	writeJSON(w, http.StatusOK, resp)
}

var camelFields = map[string]string{
	"regularHours": compensation.FieldRegularHours,
	"holidayHours": compensation.FieldHolidayHours,
	"totalMileage": compensation.FieldTotalMileage,
}

func patchField(f string) string {
	if snake, ok := camelFields[f]; ok {
		return snake
	}
	return f
}

// SubmitCompensation moves a draft to pending approval.
// POST /api/compensations/{id}/submit
func (h *Handler) SubmitCompensation(w http.ResponseWriter, r *http.Request) {
	c, err := h.Compensations.Submit(r.Context(), compensationID(r))
	if err != nil {
		writeDomainError(w, "Failed to submit compensation", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompensationDTO(*c))
}

// GetBudgetAvailability returns the approval screen: the period's work
// grouped by client and service type, with the budgets that can pay for
// each group and a suggested funding.
// GET /api/compensations/{id}/budget-availability
func (h *Handler) GetBudgetAvailability(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Reconciler.BudgetAvailability(r.Context(), compensationID(r))
	if err != nil {
		writeDomainError(w, "Failed to get budget availability", err)
		return
	}
	dtos := make([]ServiceGroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toServiceGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveCompensation commits the funding decisions and approves the
// compensation. With {"auto": true} the suggested fundings are used.
// POST /api/compensations/{id}/approve
func (h *Handler) ApproveCompensation(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := compensationID(r)
	user := UserFromContext(ctx)

	var res *compensation.ApprovalResult
	var err error
	if req.Auto {
		res, err = h.Reconciler.ApproveSuggested(ctx, id, user)
	} else {
		var inputs []compensation.AllocationInput
		if inputs, err = approvalInputs(req.Allocations); err != nil {
			writeDomainError(w, "Invalid allocations", err)
			return
		}
		res, err = h.Reconciler.Approve(ctx, id, inputs, user)
	}
	if err != nil {
		writeDomainError(w, "Failed to approve compensation", err)
		return
	}

	writeJSON(w, http.StatusOK, ApprovalResponse{
		Compensation:   toCompensationDTO(res.Compensation),
		Allocations:    toCompensationAllocationDTOs(res.Allocations),
		Reconciliation: toReconciliationDTO(res.Reconciliation),
		Warnings:       nonNilWarnings(res.Warnings),
	})
}

func approvalInputs(dtos []ApprovalInputDTO) ([]compensation.AllocationInput, error) {
	inputs := make([]compensation.AllocationInput, len(dtos))
	for i, d := range dtos {
		field := func(name string) string { return fmt.Sprintf("allocations[%d].%s", i, name) }
		funding, err := d.Funding.decision()
		if err != nil {
			return nil, err
		}
		amount, err := parseDecimal(field("amount"), d.Amount, true)
		if err != nil {
			return nil, err
		}
		hours, err := parseDecimal(field("hours"), d.Hours, false)
		if err != nil {
			return nil, err
		}
		inputs[i] = compensation.AllocationInput{
			ClientID:  generic.ClientID(d.ClientID),
			Funding:   funding,
			Amount:    amount,
			Hours:     hours,
			TimeLogID: idOf[generic.TimeLogID](d.TimeLogID),
			Notes:     d.Notes,
		}
	}
	return inputs, nil
}

// MarkCompensationPaid moves an approved compensation to paid.
// POST /api/compensations/{id}/mark-paid
func (h *Handler) MarkCompensationPaid(w http.ResponseWriter, r *http.Request) {
	c, err := h.Reconciler.MarkPaid(r.Context(), compensationID(r), UserFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, "Failed to mark compensation paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompensationDTO(*c))
}

// ListCompensationAllocations returns the funding rows and what is left to
// allocate.
// GET /api/compensations/{id}/allocations
func (h *Handler) ListCompensationAllocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := compensationID(r)

	rec, err := h.Reconciler.Remaining(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to reconcile compensation", err)
		return
	}
	rows, err := h.Reconciler.Allocations(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to list allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, CompensationAllocationsResponse{
		Allocations:    toCompensationAllocationDTOs(rows),
		Reconciliation: toReconciliationDTO(*rec),
	})
}

func toCompensationAllocationDTOs(rows []generic.CompensationBudgetAllocation) []CompensationAllocationDTO {
	dtos := make([]CompensationAllocationDTO, len(rows))
	for i, a := range rows {
		dtos[i] = toCompensationAllocationDTO(a)
	}
	return dtos
}

// ListAdjustments returns the audit trail of a compensation, oldest first.
// GET /api/compensations/{id}/adjustments
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	adjs, err := h.Compensations.Adjustments(r.Context(), compensationID(r))
	if err != nil {
		writeDomainError(w, "Failed to list adjustments", err)
		return
	}
	dtos := make([]AdjustmentDTO, len(adjs))
	for i, a := range adjs {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func compensationID(r *http.Request) generic.CompensationID {
	return generic.CompensationID(chi.URLParam(r, "id"))
}

// =============================================================================
// JOB HANDLERS
// =============================================================================

// StartCompensationJob generates the drafts of every staff member who
// logged time in the period. Returns at once with the pending job.
// POST /api/jobs/compensations
func (h *Handler) StartCompensationJob(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if !decode(w, r, &req) {
		return
	}
	period, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	job, err := h.Runner.Start(r.Context(), period)
	if err != nil {
		writeDomainError(w, "Failed to start job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobDTO(*job))
}

// GetJob returns the progress of a job.
// GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get job", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDTO(*job))
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, generic.Invalid(field, "required")
	}
	d, err := generic.ParseDay(s)
	if err != nil {
		return time.Time{}, generic.Invalid(field, "want YYYY-MM-DD, got %q", s)
	}
	return d, nil
}

func parsePeriod(start, end string) (generic.Period, error) {
	s, err := parseDay("periodStart", start)
	if err != nil {
		return generic.Period{}, err
	}
	e, err := parseDay("periodEnd", end)
	if err != nil {
		return generic.Period{}, err
	}
	p := generic.NewPeriod(s, e)
	return p, p.Validate()
}

func periodParams(r *http.Request, from, to string) (generic.Period, error) {
	q := r.URL.Query()
	s, err := parseDay(from, q.Get(from))
	if err != nil {
		return generic.Period{}, err
	}
	e, err := parseDay(to, q.Get(to))
	if err != nil {
		return generic.Period{}, err
	}
	p := generic.NewPeriod(s, e)
	return p, p.Validate()
}

// parseDecimal parses a decimal string. An empty optional value is zero.
func parseDecimal(field, s string, required bool) (decimal.Decimal, error) {
	if s == "" {
		if required {
			return decimal.Zero, generic.Invalid(field, "required")
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, generic.Invalid(field, "not a decimal: %q", s)
	}
	return d, nil
}

// parseRate parses an optional rate. nil means not configured.
func parseRate(field string, s *string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return generic.NoRate, nil
	}
	d, err := parseDecimal(field, *s, true)
	if err != nil {
		return generic.NoRate, err
	}
	if d.IsNegative() {
		return generic.NoRate, generic.Invalid(field, "must not be negative, got %s", d)
	}
	return decimal.NewNullDecimal(d), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error family.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case generic.IsValidation(err):
		status = http.StatusBadRequest
	case generic.IsNotFound(err):
		status = http.StatusNotFound
	case generic.IsInvalidState(err), errors.Is(err, generic.ErrDuplicateID):
		status = http.StatusConflict
	default:
		log.WithError(err).Error(message)
	}
	writeError(w, status, message, err)
}
