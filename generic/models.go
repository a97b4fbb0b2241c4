/*
models.go - Persisted records

PURPOSE:
  The records the engine reads and writes. Staff, clients, budget types and
  time logs come from collaborators (staff management, budget
  configuration, time tracking); allocations' used counters, expenses,
  compensations and their allocation/adjustment rows are owned here.

MONEY FIELDS:
  All money is decimal.Decimal. Optional per-unit prices are
  decimal.NullDecimal so "not configured" differs from "zero".

MUTABILITY:
  ClientBudgetAllocation.UsedAmount  only via AllocationStore.IncrementUsed
  BudgetExpense                      created/amended/removed via the expense
                                     ledger, which mirrors every change
                                     onto UsedAmount
  CompensationAdjustment             append-only
  CalculationDetail                  append-only

SEE ALSO:
  - store.go: Persistence interfaces for these records
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG - Supplied by staff management and budget configuration
// =============================================================================

// StaffMember is a care worker with personal pay rates.
type StaffMember struct {
	ID          StaffID
	FirstName   string
	LastName    string
	WeekdayRate decimal.NullDecimal
	HolidayRate decimal.NullDecimal
	MileageRate decimal.NullDecimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s StaffMember) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// Client owns budgets.
type Client struct {
	ID        ClientID
	Name      string
	CreatedAt time.Time
}

// BudgetType is a funding category from the global catalog.
type BudgetType struct {
	ID             BudgetTypeID
	Code           string // e.g. "SAD_BASE", "HCP_QUALIFIED"
	Name           string
	WeekdayRate    decimal.NullDecimal
	HolidayRate    decimal.NullDecimal
	KilometerRate  decimal.NullDecimal
	CanFundMileage bool
}

// =============================================================================
// CLIENT BUDGET ALLOCATION - The central funding unit
// =============================================================================

// ClientBudgetAllocation is a pool of funds for one client and one budget
// type, spendable within [ValidFrom, ValidTo].
//
// UsedAmount may exceed AllocatedAmount. That is flagged, not rejected.
type ClientBudgetAllocation struct {
	ID              AllocationID
	ClientID        ClientID
	BudgetTypeID    BudgetTypeID
	AllocatedAmount decimal.Decimal
	UsedAmount      decimal.Decimal
	ValidFrom       time.Time
	ValidTo         time.Time

	// Overrides of the budget type defaults for this allocation only.
	WeekdayRate   decimal.NullDecimal
	HolidayRate   decimal.NullDecimal
	KilometerRate decimal.NullDecimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available is AllocatedAmount - UsedAmount. Signed, never clamped.
func (a ClientBudgetAllocation) Available() decimal.Decimal {
	return a.AllocatedAmount.Sub(a.UsedAmount)
}

// IsOverBudget reports UsedAmount > AllocatedAmount.
func (a ClientBudgetAllocation) IsOverBudget() bool {
	return a.UsedAmount.GreaterThan(a.AllocatedAmount)
}

// Window is the validity period of the allocation.
func (a ClientBudgetAllocation) Window() Period {
	return Period{Start: a.ValidFrom, End: a.ValidTo}
}

// ActiveOn reports whether funds may be spent on day.
func (a ClientBudgetAllocation) ActiveOn(day time.Time) bool {
	return a.Window().Contains(day)
}

// =============================================================================
// BUDGET EXPENSE - Ledger entry
// =============================================================================

// BudgetExpense is a ledger entry against a client's funding.
// AllocationID nil means direct assistance: no allocation is charged.
type BudgetExpense struct {
	ID             ExpenseID
	ClientID       ClientID
	BudgetTypeID   BudgetTypeID
	AllocationID   *AllocationID
	Amount         decimal.Decimal
	ExpenseDate    time.Time
	Description    string
	CompensationID *CompensationID
	TimeLogID      *TimeLogID
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsDirect reports whether the expense bypasses allocations.
func (e BudgetExpense) IsDirect() bool { return e.AllocationID == nil }

// =============================================================================
// TIME LOG - One unit of delivered service
// =============================================================================

// TimeLog is one delivered service. HourlyRate and TotalCost are
// snapshots taken when the log was recorded.
type TimeLog struct {
	ID          TimeLogID
	StaffID     StaffID
	ClientID    ClientID
	ServiceDate time.Time
	Hours       decimal.Decimal
	Mileage     decimal.Decimal
	ServiceType string
	HourlyRate  decimal.Decimal
	TotalCost   decimal.Decimal
	Notes       string
	CreatedAt   time.Time
}

// =============================================================================
// STAFF COMPENSATION - One pay period for one staff member
// =============================================================================

type CompensationStatus string

const (
	StatusDraft           CompensationStatus = "draft"
	StatusPendingApproval CompensationStatus = "pending_approval"
	StatusApproved        CompensationStatus = "approved"
	StatusPaid            CompensationStatus = "paid"
)

// Editable reports whether hours and mileage may still change.
func (s CompensationStatus) Editable() bool {
	return s == StatusDraft || s == StatusPendingApproval
}

// StaffCompensation is a staff member's pay for one period.
// TotalCompensation = BaseCompensation + HolidayCompensation + MileageReimbursement.
type StaffCompensation struct {
	ID                   CompensationID
	StaffID              StaffID
	PeriodStart          time.Time
	PeriodEnd            time.Time
	RegularHours         decimal.Decimal
	HolidayHours         decimal.Decimal
	TotalMileage         decimal.Decimal
	BaseCompensation     decimal.Decimal
	HolidayCompensation  decimal.Decimal
	MileageReimbursement decimal.Decimal
	TotalCompensation    decimal.Decimal
	Status               CompensationStatus
	ApprovedBy           string
	ApprovedAt           *time.Time
	PaidAt               *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (c StaffCompensation) Period() Period {
	return Period{Start: c.PeriodStart, End: c.PeriodEnd}
}

// StatusChange is a conditional transition: it applies only when the
// current status is one of From.
type StatusChange struct {
	From       []CompensationStatus
	To         CompensationStatus
	ApprovedBy string
	ApprovedAt *time.Time
	PaidAt     *time.Time
	At         time.Time
}

// Action names the transition for error messages.
func (c StatusChange) Action() string {
	switch c.To {
	case StatusPendingApproval:
		return "submit"
	case StatusApproved:
		return "approve"
	case StatusPaid:
		return "mark_paid"
	}
	return "set " + string(c.To)
}

// Allows reports whether the transition may start from current.
func (c StatusChange) Allows(current CompensationStatus) bool {
	for _, s := range c.From {
		if s == current {
			return true
		}
	}
	return false
}

// Rejected builds the error returned when current is not in From.
func (c StatusChange) Rejected(current CompensationStatus) error {
	allowed := make([]string, len(c.From))
	for i, s := range c.From {
		allowed[i] = string(s)
	}
	return &InvalidStateError{Action: c.Action(), Current: string(current), Allowed: allowed}
}

// =============================================================================
// COMPENSATION BUDGET ALLOCATION - Funding decision for part of a compensation
// =============================================================================

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// CompensationBudgetAllocation links a compensation to one funding decision.
// ClientBudgetAllocationID is nil for direct assistance.
type CompensationBudgetAllocation struct {
	ID                       CompensationAllocationID
	CompensationID           CompensationID
	ClientBudgetAllocationID *AllocationID
	ClientID                 ClientID
	BudgetTypeID             BudgetTypeID
	AllocatedAmount          decimal.Decimal
	AllocatedHours           decimal.Decimal
	TimeLogID                *TimeLogID
	IsDirectClientPayment    bool
	PaymentStatus            PaymentStatus
	ExpenseID                ExpenseID
	Notes                    string
	CreatedAt                time.Time
}

// CalculationDetail is the per-client snapshot written at approval so the
// figures behind an approved compensation stay explainable after rate edits.
type CalculationDetail struct {
	CompensationID  CompensationID
	ClientID        ClientID
	WeekdayHours    decimal.Decimal
	HolidayHours    decimal.Decimal
	Mileage         decimal.Decimal
	WeekdayRate     decimal.Decimal
	HolidayRate     decimal.Decimal
	MileageRate     decimal.Decimal
	AllocatedAmount decimal.Decimal
	DirectAmount    decimal.Decimal
	CreatedAt       time.Time
}

// =============================================================================
// COMPENSATION ADJUSTMENT - Audit row (append-only)
// =============================================================================

type AdjustmentType string

const (
	AdjustmentHours   AdjustmentType = "hours_correction"
	AdjustmentMileage AdjustmentType = "mileage_correction"
)

// CompensationAdjustment records one inline edit. Never updated or deleted.
type CompensationAdjustment struct {
	ID             AdjustmentID
	CompensationID CompensationID
	AdjustedBy     string
	FieldName      string
	OriginalValue  decimal.Decimal
	NewValue       decimal.Decimal
	Amount         decimal.Decimal // NewValue - OriginalValue
	Reason         string
	AdjustmentType AdjustmentType
	CreatedAt      time.Time
}

// =============================================================================
// WARNINGS - Surfaced business conditions, never errors
// =============================================================================

type WarningCode string

const (
	WarnOverBudget       WarningCode = "over_budget"
	WarnNearlyExhausted  WarningCode = "nearly_exhausted"
	WarnDirectAssistance WarningCode = "direct_assistance"
	WarnOverAllocated    WarningCode = "over_allocated"
	WarnUnallocated      WarningCode = "unallocated_remainder"
)

type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
