/*
store.go - Persistence interfaces

PURPOSE:
  Defines the interface between the domain logic and the database.
  Implementations:
  - store/sqlstore: SQLite or PostgreSQL through database/sql
  - generic/store:  in-memory, for unit tests

KEY INTERFACES:
  CatalogStore:      Staff, clients, budget types (collaborator data)
  AllocationStore:   Client budget allocations + the atomic used increment
  ExpenseStore:      Budget expense ledger rows
  TimeLogStore:      Delivered service records
  CompensationStore: Compensations, their allocation rows and snapshots
  AuditStore:        Compensation adjustments (append-only)
  Store:             All of the above
  TxStore:           Store + WithTx for atomic multi-table writes

THE ONE SHARED COUNTER:
  ClientBudgetAllocation.UsedAmount is written by hour allocation and by
  compensation approval, possibly at the same time. Both go through
  IncrementUsed, which MUST be a relative update (used = used + delta) so
  that concurrent writers never lose each other's increments. SaveAllocation
  never writes UsedAmount of an existing row.

NOT FOUND CONTRACT:
  Get* methods return an error satisfying IsNotFound when the row is absent.

SEE ALSO:
  - store/sqlstore/sqlstore.go: SQL implementation
  - generic/store/memory.go: In-memory implementation
*/
package generic

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG
// =============================================================================

type CatalogStore interface {
	SaveStaff(ctx context.Context, s StaffMember) error
	GetStaff(ctx context.Context, id StaffID) (*StaffMember, error)
	ListStaff(ctx context.Context) ([]StaffMember, error)

	SaveClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id ClientID) (*Client, error)
	ListClients(ctx context.Context) ([]Client, error)

	SaveBudgetType(ctx context.Context, bt BudgetType) error
	GetBudgetType(ctx context.Context, id BudgetTypeID) (*BudgetType, error)
	ListBudgetTypes(ctx context.Context) ([]BudgetType, error)
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

type AllocationStore interface {
	// SaveAllocation inserts a new allocation (UsedAmount included) or
	// updates the configuration of an existing one. It never overwrites
	// UsedAmount of an existing row.
	SaveAllocation(ctx context.Context, a ClientBudgetAllocation) error

	GetAllocation(ctx context.Context, id AllocationID) (*ClientBudgetAllocation, error)

	// ListAllocationsByClient returns every allocation of the client,
	// ordered by ValidFrom then ID.
	ListAllocationsByClient(ctx context.Context, clientID ClientID) ([]ClientBudgetAllocation, error)

	// IncrementUsed atomically applies used = used + delta. delta may be
	// negative (reversals). Returns NotFound if the row does not exist.
	IncrementUsed(ctx context.Context, id AllocationID, delta decimal.Decimal, at time.Time) error
}

// =============================================================================
// EXPENSES
// =============================================================================

type ExpenseStore interface {
	CreateExpense(ctx context.Context, e BudgetExpense) error
	GetExpense(ctx context.Context, id ExpenseID) (*BudgetExpense, error)
	UpdateExpense(ctx context.Context, e BudgetExpense) error
	DeleteExpense(ctx context.Context, id ExpenseID) error
	ListExpensesByAllocation(ctx context.Context, id AllocationID) ([]BudgetExpense, error)
	ListExpensesByCompensation(ctx context.Context, id CompensationID) ([]BudgetExpense, error)
}

// =============================================================================
// TIME LOGS
// =============================================================================

type TimeLogStore interface {
	SaveTimeLog(ctx context.Context, l TimeLog) error
	GetTimeLog(ctx context.Context, id TimeLogID) (*TimeLog, error)

	// ListTimeLogsByStaff returns logs whose ServiceDate is within the
	// inclusive period, ordered by ServiceDate then ID.
	ListTimeLogsByStaff(ctx context.Context, staffID StaffID, period Period) ([]TimeLog, error)

	// ListStaffWithTimeLogs returns the distinct staff ids having at least
	// one log in the period, ordered by id.
	ListStaffWithTimeLogs(ctx context.Context, period Period) ([]StaffID, error)
}

// =============================================================================
// COMPENSATIONS
// =============================================================================

type CompensationFilter struct {
	StaffID *StaffID
	Status  *CompensationStatus
	Period  *Period // compensations whose period lies within
}

type CompensationStore interface {
	CreateCompensation(ctx context.Context, c StaffCompensation) error
	GetCompensation(ctx context.Context, id CompensationID) (*StaffCompensation, error)

	// FindCompensation returns the compensation of a staff member for an
	// exact period, or NotFound.
	FindCompensation(ctx context.Context, staffID StaffID, period Period) (*StaffCompensation, error)
	ListCompensations(ctx context.Context, filter CompensationFilter) ([]StaffCompensation, error)

	// UpdateCompensationFigures writes hours, mileage, the money fields
	// and UpdatedAt. Status is untouched.
	UpdateCompensationFigures(ctx context.Context, c StaffCompensation) error

	// TransitionCompensation applies change only if the current status is
	// in change.From. Returns an InvalidStateError otherwise, NotFound if
	// the row does not exist.
	TransitionCompensation(ctx context.Context, id CompensationID, change StatusChange) error

	CreateCompensationAllocation(ctx context.Context, a CompensationBudgetAllocation) error
	ListCompensationAllocations(ctx context.Context, id CompensationID) ([]CompensationBudgetAllocation, error)

	SaveCalculationDetail(ctx context.Context, d CalculationDetail) error
	ListCalculationDetails(ctx context.Context, id CompensationID) ([]CalculationDetail, error)
}

// =============================================================================
// AUDIT - Append-only
// =============================================================================

type AuditStore interface {
	AppendAdjustment(ctx context.Context, a CompensationAdjustment) error
	ListAdjustments(ctx context.Context, id CompensationID) ([]CompensationAdjustment, error)
}

// =============================================================================
// STORE / TRANSACTIONAL STORE
// =============================================================================

type Store interface {
	CatalogStore
	AllocationStore
	ExpenseStore
	TimeLogStore
	CompensationStore
	AuditStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store passed to
	// fn is rolled back. If fn returns nil, the writes are committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
