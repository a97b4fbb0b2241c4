/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain records from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

WIRE FORMAT:
  Field names are camelCase. Money, hours, mileage and rates are decimal
  strings ("85", "0.5"), never floats. Dates are YYYY-MM-DD.

FUNDING:
  A funding decision is {"type":"budget","allocationId":...,"budgetTypeId":...}
  or {"type":"direct"}.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/compensation"
	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/jobs"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CATALOG
// =============================================================================

type StaffDTO struct {
	ID          string  `json:"id"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	WeekdayRate *string `json:"weekdayRate"`
	HolidayRate *string `json:"holidayRate"`
	MileageRate *string `json:"mileageRate"`
}

type ClientDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BudgetTypeDTO struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	WeekdayRate    *string `json:"weekdayRate"`
	HolidayRate    *string `json:"holidayRate"`
	KilometerRate  *string `json:"kilometerRate"`
	CanFundMileage bool    `json:"canFundMileage"`
}

type AllocationDTO struct {
	ID              string          `json:"id"`
	ClientID        string          `json:"clientId"`
	BudgetTypeID    string          `json:"budgetTypeId"`
	AllocatedAmount decimal.Decimal `json:"allocatedAmount"`
	UsedAmount      decimal.Decimal `json:"usedAmount"`
	Available       decimal.Decimal `json:"available"`
	ValidFrom       string          `json:"validFrom"`
	ValidTo         string          `json:"validTo"`
	WeekdayRate     *string         `json:"weekdayRate"`
	HolidayRate     *string         `json:"holidayRate"`
	KilometerRate   *string         `json:"kilometerRate"`
	OverBudget      bool            `json:"overBudget"`
}

// SaveAllocationRequest creates or reconfigures an allocation. Used amount
// is never accepted from clients.
type SaveAllocationRequest struct {
	ID              string  `json:"id"`
	ClientID        string  `json:"clientId"`
	BudgetTypeID    string  `json:"budgetTypeId"`
	AllocatedAmount string  `json:"allocatedAmount"`
	ValidFrom       string  `json:"validFrom"`
	ValidTo         string  `json:"validTo"`
	WeekdayRate     *string `json:"weekdayRate"`
	HolidayRate     *string `json:"holidayRate"`
	KilometerRate   *string `json:"kilometerRate"`
}

func nullRate(r decimal.NullDecimal) *string {
	if !r.Valid {
		return nil
	}
	s := r.Decimal.String()
	return &s
}

func toStaffDTO(s generic.StaffMember) StaffDTO {
	return StaffDTO{
		ID:          string(s.ID),
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		WeekdayRate: nullRate(s.WeekdayRate),
		HolidayRate: nullRate(s.HolidayRate),
		MileageRate: nullRate(s.MileageRate),
	}
}

func toBudgetTypeDTO(bt generic.BudgetType) BudgetTypeDTO {
	return BudgetTypeDTO{
		ID:             string(bt.ID),
		Code:           bt.Code,
		Name:           bt.Name,
		WeekdayRate:    nullRate(bt.WeekdayRate),
		HolidayRate:    nullRate(bt.HolidayRate),
		KilometerRate:  nullRate(bt.KilometerRate),
		CanFundMileage: bt.CanFundMileage,
	}
}

func toAllocationDTO(a generic.ClientBudgetAllocation) AllocationDTO {
	return AllocationDTO{
		ID:              string(a.ID),
		ClientID:        string(a.ClientID),
		BudgetTypeID:    string(a.BudgetTypeID),
		AllocatedAmount: a.AllocatedAmount,
		UsedAmount:      a.UsedAmount,
		Available:       a.Available(),
		ValidFrom:       generic.FormatDay(a.ValidFrom),
		ValidTo:         generic.FormatDay(a.ValidTo),
		WeekdayRate:     nullRate(a.WeekdayRate),
		HolidayRate:     nullRate(a.HolidayRate),
		KilometerRate:   nullRate(a.KilometerRate),
		OverBudget:      a.IsOverBudget(),
	}
}

// =============================================================================
// FUNDING
// =============================================================================

const (
	fundingBudget = "budget"
	fundingDirect = "direct"
)

// FundingDTO is the tagged form of budget.FundingDecision.
type FundingDTO struct {
	Type         string `json:"type"`
	AllocationID string `json:"allocationId,omitempty"`
	BudgetTypeID string `json:"budgetTypeId,omitempty"`
}

func toFundingDTO(d budget.FundingDecision) FundingDTO {
	switch f := d.(type) {
	case budget.BudgetFunding:
		return FundingDTO{Type: fundingBudget, AllocationID: string(f.AllocationID), BudgetTypeID: string(f.BudgetTypeID)}
	default:
		return FundingDTO{Type: fundingDirect}
	}
}

func (f FundingDTO) decision() (budget.FundingDecision, error) {
	switch f.Type {
	case fundingDirect:
		return budget.DirectAssistance{}, nil
	case fundingBudget, "":
		if f.AllocationID == "" {
			return nil, generic.Invalid("funding.allocationId", "required for budget funding")
		}
		return budget.BudgetFunding{
			AllocationID: generic.AllocationID(f.AllocationID),
			BudgetTypeID: generic.BudgetTypeID(f.BudgetTypeID),
		}, nil
	}
	return nil, generic.Invalid("funding.type", "must be %q or %q, got %q", fundingBudget, fundingDirect, f.Type)
}

// =============================================================================
// AVAILABILITY
// =============================================================================

type AvailabilityDTO struct {
	ClientID     string          `json:"clientId"`
	BudgetTypeID string          `json:"budgetTypeId"`
	AsOf         string          `json:"asOf"`
	Allocated    decimal.Decimal `json:"allocated"`
	Used         decimal.Decimal `json:"used"`
	Available    decimal.Decimal `json:"available"`
	Percentage   decimal.Decimal `json:"percentage"`
	NoBudget     bool            `json:"noBudget"`
	OverBudget   bool            `json:"overBudget"`
}

func toAvailabilityDTO(a budget.Availability) AvailabilityDTO {
	return AvailabilityDTO{
		ClientID:     string(a.ClientID),
		BudgetTypeID: string(a.BudgetTypeID),
		AsOf:         generic.FormatDay(a.AsOf),
		Allocated:    a.Allocated,
		Used:         a.Used,
		Available:    a.Available,
		Percentage:   a.Percentage,
		NoBudget:     a.NoBudget,
		OverBudget:   a.OverBudget(),
	}
}

type CandidateDTO struct {
	AllocationID string          `json:"allocationId"`
	BudgetTypeID string          `json:"budgetTypeId"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Available    decimal.Decimal `json:"available"`
	ValidTo      *string         `json:"validTo"`
}

type TimeLogDTO struct {
	ID          string          `json:"id"`
	StaffID     string          `json:"staffId"`
	ClientID    string          `json:"clientId"`
	ServiceDate string          `json:"serviceDate"`
	Hours       decimal.Decimal `json:"hours"`
	Mileage     decimal.Decimal `json:"mileage"`
	ServiceType string          `json:"serviceType"`
	HourlyRate  decimal.Decimal `json:"hourlyRate"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	Notes       string          `json:"notes,omitempty"`
}

func toTimeLogDTO(l generic.TimeLog) TimeLogDTO {
	return TimeLogDTO{
		ID:          string(l.ID),
		StaffID:     string(l.StaffID),
		ClientID:    string(l.ClientID),
		ServiceDate: generic.FormatDay(l.ServiceDate),
		Hours:       l.Hours,
		Mileage:     l.Mileage,
		ServiceType: l.ServiceType,
		HourlyRate:  l.HourlyRate,
		TotalCost:   l.TotalCost,
		Notes:       l.Notes,
	}
}

// ServiceGroupDTO is one row of the approval screen.
type ServiceGroupDTO struct {
	ClientID     string            `json:"clientId"`
	ClientName   string            `json:"clientName"`
	ServiceType  string            `json:"serviceType"`
	TimeLogs     []TimeLogDTO      `json:"timeLogs"`
	WeekdayHours decimal.Decimal   `json:"weekdayHours"`
	HolidayHours decimal.Decimal   `json:"holidayHours"`
	TotalHours   decimal.Decimal   `json:"totalHours"`
	TotalMileage decimal.Decimal   `json:"totalMileage"`
	TotalCost    decimal.Decimal   `json:"totalCost"`
	AsOf         string            `json:"asOf"`
	Budgets      []AvailabilityDTO `json:"budgets"`
	Candidates   []CandidateDTO    `json:"candidates"`
	NoBudget     bool              `json:"noBudget"`
	Suggested    FundingDTO        `json:"suggested"`
}

func toServiceGroupDTO(g compensation.ServiceGroup) ServiceGroupDTO {
	dto := ServiceGroupDTO{
		ClientID:     string(g.ClientID),
		ClientName:   g.ClientName,
		ServiceType:  g.ServiceType,
		TimeLogs:     make([]TimeLogDTO, len(g.TimeLogs)),
		WeekdayHours: g.WeekdayHours,
		HolidayHours: g.HolidayHours,
		TotalHours:   g.TotalHours,
		TotalMileage: g.TotalMileage,
		TotalCost:    g.TotalCost,
		AsOf:         generic.FormatDay(g.AsOf),
		Budgets:      make([]AvailabilityDTO, len(g.Budgets)),
		Candidates:   make([]CandidateDTO, len(g.Candidates)),
		NoBudget:     g.NoBudget,
		Suggested:    toFundingDTO(g.Suggested),
	}
	for i, l := range g.TimeLogs {
		dto.TimeLogs[i] = toTimeLogDTO(l)
	}
	for i, b := range g.Budgets {
		dto.Budgets[i] = toAvailabilityDTO(b)
	}
	for i, c := range g.Candidates {
		cd := CandidateDTO{
			AllocationID: string(c.AllocationID),
			BudgetTypeID: string(c.BudgetTypeID),
			Code:         c.Code,
			Name:         c.Name,
			Available:    c.Available,
		}
		if !c.ValidTo.IsZero() {
			s := generic.FormatDay(c.ValidTo)
			cd.ValidTo = &s
		}
		dto.Candidates[i] = cd
	}
	return dto
}

// =============================================================================
// ALLOCATE HOURS
// =============================================================================

type AllocateHoursRequest struct {
	StaffID     string  `json:"staffId"`
	ClientID    string  `json:"clientId"`
	ServiceDate string  `json:"serviceDate"`
	Hours       string  `json:"hours"`
	Mileage     string  `json:"mileage"`
	ServiceType string  `json:"serviceType"`
	Notes       string  `json:"notes"`
	BudgetID    *string `json:"budgetId"`
}

type BreakdownDTO struct {
	IsHoliday     bool            `json:"isHoliday"`
	WeekdayHours  decimal.Decimal `json:"weekdayHours"`
	HolidayHours  decimal.Decimal `json:"holidayHours"`
	Mileage       decimal.Decimal `json:"mileage"`
	WeekdayRate   decimal.Decimal `json:"weekdayRate"`
	HolidayRate   decimal.Decimal `json:"holidayRate"`
	KilometerRate decimal.Decimal `json:"kilometerRate"`
	WeekdayCost   decimal.Decimal `json:"weekdayCost"`
	HolidayCost   decimal.Decimal `json:"holidayCost"`
	MileageCost   decimal.Decimal `json:"mileageCost"`
	Total         decimal.Decimal `json:"total"`
}

type AllocationResultDTO struct {
	TimeLogID             string            `json:"timeLogId"`
	ExpenseID             string            `json:"expenseId"`
	Funding               FundingDTO        `json:"funding"`
	IsDirectClientPayment bool              `json:"isDirectClientPayment"`
	BudgetTypeID          string            `json:"budgetTypeId"`
	Breakdown             BreakdownDTO      `json:"breakdown"`
	Warnings              []generic.Warning `json:"warnings"`
}

func toAllocationResultDTO(r budget.AllocationResult) AllocationResultDTO {
	b := r.Breakdown
	return AllocationResultDTO{
		TimeLogID:             string(r.TimeLogID),
		ExpenseID:             string(r.ExpenseID),
		Funding:               toFundingDTO(r.Funding),
		IsDirectClientPayment: r.IsDirectClientPayment,
		BudgetTypeID:          string(r.BudgetTypeID),
		Breakdown: BreakdownDTO{
			IsHoliday:     b.IsHoliday,
			WeekdayHours:  b.WeekdayHours,
			HolidayHours:  b.HolidayHours,
			Mileage:       b.Mileage,
			WeekdayRate:   b.Rates.Weekday,
			HolidayRate:   b.Rates.Holiday,
			KilometerRate: b.Rates.Kilometer,
			WeekdayCost:   b.WeekdayCost,
			HolidayCost:   b.HolidayCost,
			MileageCost:   b.MileageCost,
			Total:         b.Total,
		},
		Warnings: nonNilWarnings(r.Warnings),
	}
}

func nonNilWarnings(w []generic.Warning) []generic.Warning {
	if w == nil {
		return []generic.Warning{}
	}
	return w
}

// =============================================================================
// EXPENSES
// =============================================================================

type ExpenseRequest struct {
	ClientID       string  `json:"clientId"`
	BudgetTypeID   string  `json:"budgetTypeId"`
	AllocationID   *string `json:"allocationId"`
	Amount         string  `json:"amount"`
	ExpenseDate    string  `json:"expenseDate"`
	Description    string  `json:"description"`
	CompensationID *string `json:"compensationId"`
	TimeLogID      *string `json:"timeLogId"`
}

type ExpenseDTO struct {
	ID             string          `json:"id"`
	ClientID       string          `json:"clientId"`
	BudgetTypeID   string          `json:"budgetTypeId"`
	AllocationID   *string         `json:"allocationId"`
	Amount         decimal.Decimal `json:"amount"`
	ExpenseDate    string          `json:"expenseDate"`
	Description    string          `json:"description"`
	CompensationID *string         `json:"compensationId,omitempty"`
	TimeLogID      *string         `json:"timeLogId,omitempty"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func strOf[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func idOf[T ~string](p *string) *T {
	if p == nil || *p == "" {
		return nil
	}
	v := T(*p)
	return &v
}

func toExpenseDTO(e generic.BudgetExpense) ExpenseDTO {
	return ExpenseDTO{
		ID:             string(e.ID),
		ClientID:       string(e.ClientID),
		BudgetTypeID:   string(e.BudgetTypeID),
		AllocationID:   strOf(e.AllocationID),
		Amount:         e.Amount,
		ExpenseDate:    generic.FormatDay(e.ExpenseDate),
		Description:    e.Description,
		CompensationID: strOf(e.CompensationID),
		TimeLogID:      strOf(e.TimeLogID),
		CreatedBy:      e.CreatedBy,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// =============================================================================
// COMPENSATIONS
// =============================================================================

type TotalsDTO struct {
	StaffID              string          `json:"staffId"`
	PeriodStart          string          `json:"periodStart"`
	PeriodEnd            string          `json:"periodEnd"`
	RegularHours         decimal.Decimal `json:"regularHours"`
	HolidayHours         decimal.Decimal `json:"holidayHours"`
	TotalMileage         decimal.Decimal `json:"totalMileage"`
	WeekdayRate          decimal.Decimal `json:"weekdayRate"`
	HolidayRate          decimal.Decimal `json:"holidayRate"`
	MileageRate          decimal.Decimal `json:"mileageRate"`
	BaseCompensation     decimal.Decimal `json:"baseCompensation"`
	HolidayCompensation  decimal.Decimal `json:"holidayCompensation"`
	MileageReimbursement decimal.Decimal `json:"mileageReimbursement"`
	TotalCompensation    decimal.Decimal `json:"totalCompensation"`
	TimeLogCount         int             `json:"timeLogCount"`
}

func toTotalsDTO(t compensation.Totals) TotalsDTO {
	return TotalsDTO{
		StaffID:              string(t.StaffID),
		PeriodStart:          generic.FormatDay(t.PeriodStart),
		PeriodEnd:            generic.FormatDay(t.PeriodEnd),
		RegularHours:         t.RegularHours,
		HolidayHours:         t.HolidayHours,
		TotalMileage:         t.TotalMileage,
		WeekdayRate:          t.Rates.Weekday,
		HolidayRate:          t.Rates.Holiday,
		MileageRate:          t.Rates.Kilometer,
		BaseCompensation:     t.BaseCompensation,
		HolidayCompensation:  t.HolidayCompensation,
		MileageReimbursement: t.MileageReimbursement,
		TotalCompensation:    t.TotalCompensation,
		TimeLogCount:         t.TimeLogCount,
	}
}

type CompensationDTO struct {
	ID                   string          `json:"id"`
	StaffID              string          `json:"staffId"`
	PeriodStart          string          `json:"periodStart"`
	PeriodEnd            string          `json:"periodEnd"`
	RegularHours         decimal.Decimal `json:"regularHours"`
	HolidayHours         decimal.Decimal `json:"holidayHours"`
	TotalMileage         decimal.Decimal `json:"totalMileage"`
	BaseCompensation     decimal.Decimal `json:"baseCompensation"`
	HolidayCompensation  decimal.Decimal `json:"holidayCompensation"`
	MileageReimbursement decimal.Decimal `json:"mileageReimbursement"`
	TotalCompensation    decimal.Decimal `json:"totalCompensation"`
	Status               string          `json:"status"`
	ApprovedBy           string          `json:"approvedBy,omitempty"`
	ApprovedAt           *time.Time      `json:"approvedAt,omitempty"`
	PaidAt               *time.Time      `json:"paidAt,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

func toCompensationDTO(c generic.StaffCompensation) CompensationDTO {
	return CompensationDTO{
		ID:                   string(c.ID),
		StaffID:              string(c.StaffID),
		PeriodStart:          generic.FormatDay(c.PeriodStart),
		PeriodEnd:            generic.FormatDay(c.PeriodEnd),
		RegularHours:         c.RegularHours,
		HolidayHours:         c.HolidayHours,
		TotalMileage:         c.TotalMileage,
		BaseCompensation:     c.BaseCompensation,
		HolidayCompensation:  c.HolidayCompensation,
		MileageReimbursement: c.MileageReimbursement,
		TotalCompensation:    c.TotalCompensation,
		Status:               string(c.Status),
		ApprovedBy:           c.ApprovedBy,
		ApprovedAt:           c.ApprovedAt,
		PaidAt:               c.PaidAt,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

type GenerateCompensationRequest struct {
	StaffID     string `json:"staffId"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
}

// PatchCompensationRequest edits one of regular_hours, holiday_hours or
// total_mileage. The camelCase names are accepted too.
type PatchCompensationRequest struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

type AdjustmentDTO struct {
	ID             string          `json:"id"`
	CompensationID string          `json:"compensationId"`
	AdjustedBy     string          `json:"adjustedBy"`
	FieldName      string          `json:"fieldName"`
	OriginalValue  decimal.Decimal `json:"originalValue"`
	NewValue       decimal.Decimal `json:"newValue"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
	AdjustmentType string          `json:"adjustmentType"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func toAdjustmentDTO(a generic.CompensationAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:             string(a.ID),
		CompensationID: string(a.CompensationID),
		AdjustedBy:     a.AdjustedBy,
		FieldName:      a.FieldName,
		OriginalValue:  a.OriginalValue,
		NewValue:       a.NewValue,
		Amount:         a.Amount,
		Reason:         a.Reason,
		AdjustmentType: string(a.AdjustmentType),
		CreatedAt:      a.CreatedAt,
	}
}

type PatchCompensationResponse struct {
	Compensation CompensationDTO `json:"compensation"`
	Adjustment   *AdjustmentDTO  `json:"adjustment"`
}

// ApprovalInputDTO is one funding decision submitted with an approval.
type ApprovalInputDTO struct {
	ClientID  string     `json:"clientId"`
	Funding   FundingDTO `json:"funding"`
	Amount    string     `json:"amount"`
	Hours     string     `json:"hours"`
	TimeLogID *string    `json:"timeLogId"`
	Notes     string     `json:"notes"`
}

// ApproveRequest carries the allocations, or Auto to take the suggestions.
type ApproveRequest struct {
	Auto        bool               `json:"auto"`
	Allocations []ApprovalInputDTO `json:"allocations"`
}

type CompensationAllocationDTO struct {
	ID                       string          `json:"id"`
	CompensationID           string          `json:"compensationId"`
	ClientBudgetAllocationID *string         `json:"clientBudgetAllocationId"`
	ClientID                 string          `json:"clientId"`
	BudgetTypeID             string          `json:"budgetTypeId"`
	AllocatedAmount          decimal.Decimal `json:"allocatedAmount"`
	AllocatedHours           decimal.Decimal `json:"allocatedHours"`
	TimeLogID                *string         `json:"timeLogId,omitempty"`
	IsDirectClientPayment    bool            `json:"isDirectClientPayment"`
	PaymentStatus            string          `json:"paymentStatus"`
	ExpenseID                string          `json:"expenseId"`
	Notes                    string          `json:"notes,omitempty"`
}

func toCompensationAllocationDTO(a generic.CompensationBudgetAllocation) CompensationAllocationDTO {
	return CompensationAllocationDTO{
		ID:                       string(a.ID),
		CompensationID:           string(a.CompensationID),
		ClientBudgetAllocationID: strOf(a.ClientBudgetAllocationID),
		ClientID:                 string(a.ClientID),
		BudgetTypeID:             string(a.BudgetTypeID),
		AllocatedAmount:          a.AllocatedAmount,
		AllocatedHours:           a.AllocatedHours,
		TimeLogID:                strOf(a.TimeLogID),
		IsDirectClientPayment:    a.IsDirectClientPayment,
		PaymentStatus:            string(a.PaymentStatus),
		ExpenseID:                string(a.ExpenseID),
		Notes:                    a.Notes,
	}
}

type ReconciliationDTO struct {
	Total         decimal.Decimal `json:"total"`
	Allocated     decimal.Decimal `json:"allocated"`
	Remaining     decimal.Decimal `json:"remainingToAllocate"`
	OverAllocated bool            `json:"overAllocated"`
}

func toReconciliationDTO(r compensation.Reconciliation) ReconciliationDTO {
	return ReconciliationDTO{
		Total:         r.Total,
		Allocated:     r.Allocated,
		Remaining:     r.Remaining,
		OverAllocated: r.OverAllocated,
	}
}

type ApprovalResponse struct {
	Compensation   CompensationDTO             `json:"compensation"`
	Allocations    []CompensationAllocationDTO `json:"allocations"`
	Reconciliation ReconciliationDTO           `json:"reconciliation"`
	Warnings       []generic.Warning           `json:"warnings"`
}

type CompensationAllocationsResponse struct {
	Allocations    []CompensationAllocationDTO `json:"allocations"`
	Reconciliation ReconciliationDTO           `json:"reconciliation"`
}

// =============================================================================
// JOBS / SCENARIOS
// =============================================================================

type StartJobRequest struct {
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
}

type JobDTO struct {
	ID          string     `json:"id"`
	PeriodStart string     `json:"periodStart"`
	PeriodEnd   string     `json:"periodEnd"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	Errors      []string   `json:"errors"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toJobDTO(j jobs.Job) JobDTO {
	errs := j.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobDTO{
		ID:          j.ID,
		PeriodStart: generic.FormatDay(j.PeriodStart),
		PeriodEnd:   generic.FormatDay(j.PeriodEnd),
		Status:      string(j.Status),
		Total:       j.Total,
		Processed:   j.Processed,
		Failed:      j.Failed,
		Errors:      errs,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
	}
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}
