/*
sqlstore.go - SQL implementation of generic.TxStore

PURPOSE:
  Persists the care ledger in SQLite (single file, default) or PostgreSQL
  through database/sql. Both dialects share every query; placeholders are
  written as ? and rebound to $n for Postgres.

KEY TABLES:
  staff, clients, budget_types         Collaborator data
  client_budget_allocations            Funding pools; used_cents is the shared counter
  budget_expenses                      Ledger rows mirrored onto used_cents
  time_logs                            Delivered services with rate snapshot
  staff_compensations                  One row per (staff, period)
  compensation_budget_allocations      Funding decisions taken at approval
  compensation_calculation_details     Per-client snapshot taken at approval
  compensation_adjustments             Audit rows, append-only
  generation_jobs                      Batch generation progress

ENCODING:
  Money is stored as integer cents so used_cents = used_cents + ? stays
  exact in both dialects. Hours, mileage and rates are decimal strings.
  Dates are YYYY-MM-DD text, timestamps RFC3339 text.

CONCURRENCY:
  SQLite runs on a single connection, which serializes writers.
  Postgres relies on row locks taken by the relative UPDATE.

USAGE:
  s, err := sqlstore.OpenSQLite("careledger.db")
  s, err := sqlstore.OpenPostgres(ctx, "postgres://...")
  defer s.Close()

SEE ALSO:
  - generic/store.go: Interface contracts
  - migrate.go: Embedded schema migrations
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/generic"
)

// Dialect selects the SQL flavour and the migration set.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Store implements generic.TxStore. Inside WithTx the same type runs with
// q bound to the transaction.
type Store struct {
	db      *sql.DB
	dialect Dialect
	dsn     string
	q       querier
}

var _ generic.TxStore = (*Store)(nil)

// OpenSQLite opens (or creates) a SQLite database and migrates it.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dialect: SQLite, dsn: path, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects through the pgx stdlib driver and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, dialect: Postgres, dsn: dsn, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect { return s.dialect }

// rebind rewrites ? placeholders as $1..$n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &Store{db: s.db, dialect: s.dialect, dsn: s.dsn, q: sqlTx}
	if err := fn(txStore); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func day(t time.Time) string { return generic.FormatDay(t) }

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullStamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return stamp(*t)
}

func parseStamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullStamp(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseStamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func cents(d decimal.Decimal) int64 { return generic.ToCents(d) }

func nullID[T ~string](id *T) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func idPtr[T ~string](ns sql.NullString) *T {
	if !ns.Valid {
		return nil
	}
	v := T(ns.String)
	return &v
}

// isDuplicate reports a primary key or unique violation in either dialect.
func isDuplicate(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint &&
			(se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique)
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

func insertErr(kind string, id any, err error) error {
	if isDuplicate(err) {
		return fmt.Errorf("%s %v: %w", kind, id, generic.ErrDuplicateID)
	}
	return fmt.Errorf("failed to insert %s: %w", kind, err)
}

// mustAffect turns a zero-row UPDATE or DELETE into NotFound.
func mustAffect(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.NotFound(kind, id)
	}
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *Store) SaveStaff(ctx context.Context, m generic.StaffMember) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	query := `
		INSERT INTO staff (id, first_name, last_name, weekday_rate, holiday_rate, mileage_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			weekday_rate = excluded.weekday_rate,
			holiday_rate = excluded.holiday_rate,
			mileage_rate = excluded.mileage_rate,
			updated_at = excluded.updated_at
	`
	_, err := s.exec(ctx, query,
		string(m.ID), m.FirstName, m.LastName,
		m.WeekdayRate, m.HolidayRate, m.MileageRate,
		stamp(m.CreatedAt), stamp(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save staff: %w", err)
	}
	return nil
}

const staffColumns = `id, first_name, last_name, weekday_rate, holiday_rate, mileage_rate, created_at, updated_at`

func scanStaff(sc scanner) (generic.StaffMember, error) {
	var m generic.StaffMember
	var createdAt, updatedAt string
	if err := sc.Scan(&m.ID, &m.FirstName, &m.LastName,
		&m.WeekdayRate, &m.HolidayRate, &m.MileageRate,
		&createdAt, &updatedAt); err != nil {
		return m, err
	}
	var err error
	if m.CreatedAt, err = parseStamp(createdAt); err != nil {
		return m, err
	}
	m.UpdatedAt, err = parseStamp(updatedAt)
	return m, err
}

func (s *Store) GetStaff(ctx context.Context, id generic.StaffID) (*generic.StaffMember, error) {
	m, err := scanStaff(s.queryRow(ctx, "SELECT "+staffColumns+" FROM staff WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("staff", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return &m, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]generic.StaffMember, error) {
	rows, err := s.query(ctx, "SELECT "+staffColumns+" FROM staff ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var out []generic.StaffMember
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SaveClient(ctx context.Context, c generic.Client) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO clients (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	if _, err := s.exec(ctx, query, string(c.ID), c.Name, stamp(c.CreatedAt)); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func scanClient(sc scanner) (generic.Client, error) {
	var c generic.Client
	var createdAt string
	if err := sc.Scan(&c.ID, &c.Name, &createdAt); err != nil {
		return c, err
	}
	var err error
	c.CreatedAt, err = parseStamp(createdAt)
	return c, err
}

func (s *Store) GetClient(ctx context.Context, id generic.ClientID) (*generic.Client, error) {
	c, err := scanClient(s.queryRow(ctx, "SELECT id, name, created_at FROM clients WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("client", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

func (s *Store) ListClients(ctx context.Context) ([]generic.Client, error) {
	rows, err := s.query(ctx, "SELECT id, name, created_at FROM clients ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var out []generic.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SaveBudgetType(ctx context.Context, bt generic.BudgetType) error {
	query := `
		INSERT INTO budget_types (id, code, name, weekday_rate, holiday_rate, kilometer_rate, can_fund_mileage)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			weekday_rate = excluded.weekday_rate,
			holiday_rate = excluded.holiday_rate,
			kilometer_rate = excluded.kilometer_rate,
			can_fund_mileage = excluded.can_fund_mileage
	`
	_, err := s.exec(ctx, query,
		string(bt.ID), bt.Code, bt.Name,
		bt.WeekdayRate, bt.HolidayRate, bt.KilometerRate, bt.CanFundMileage,
	)
	if err != nil {
		return fmt.Errorf("failed to save budget type: %w", err)
	}
	return nil
}

const budgetTypeColumns = `id, code, name, weekday_rate, holiday_rate, kilometer_rate, can_fund_mileage`

func scanBudgetType(sc scanner) (generic.BudgetType, error) {
	var bt generic.BudgetType
	err := sc.Scan(&bt.ID, &bt.Code, &bt.Name,
		&bt.WeekdayRate, &bt.HolidayRate, &bt.KilometerRate, &bt.CanFundMileage)
	return bt, err
}

func (s *Store) GetBudgetType(ctx context.Context, id generic.BudgetTypeID) (*generic.BudgetType, error) {
	bt, err := scanBudgetType(s.queryRow(ctx, "SELECT "+budgetTypeColumns+" FROM budget_types WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("budget type", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget type: %w", err)
	}
	return &bt, nil
}

func (s *Store) ListBudgetTypes(ctx context.Context) ([]generic.BudgetType, error) {
	rows, err := s.query(ctx, "SELECT "+budgetTypeColumns+" FROM budget_types ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list budget types: %w", err)
	}
	defer rows.Close()

	var out []generic.BudgetType
	for rows.Next() {
		bt, err := scanBudgetType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bt)
	}
	return out, rows.Err()
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

// SaveAllocation upserts the configuration. used_cents is written on insert
// only; after that it moves through IncrementUsed alone.
func (s *Store) SaveAllocation(ctx context.Context, a generic.ClientBudgetAllocation) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	query := `
		INSERT INTO client_budget_allocations (
			id, client_id, budget_type_id, allocated_cents, used_cents,
			valid_from, valid_to, weekday_rate, holiday_rate, kilometer_rate,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			budget_type_id = excluded.budget_type_id,
			allocated_cents = excluded.allocated_cents,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			weekday_rate = excluded.weekday_rate,
			holiday_rate = excluded.holiday_rate,
			kilometer_rate = excluded.kilometer_rate,
			updated_at = excluded.updated_at
	`
	_, err := s.exec(ctx, query,
		string(a.ID), string(a.ClientID), string(a.BudgetTypeID),
		cents(a.AllocatedAmount), cents(a.UsedAmount),
		day(a.ValidFrom), day(a.ValidTo),
		a.WeekdayRate, a.HolidayRate, a.KilometerRate,
		stamp(a.CreatedAt), stamp(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

const allocationColumns = `id, client_id, budget_type_id, allocated_cents, used_cents,
	valid_from, valid_to, weekday_rate, holiday_rate, kilometer_rate, created_at, updated_at`

func scanAllocation(sc scanner) (generic.ClientBudgetAllocation, error) {
	var a generic.ClientBudgetAllocation
	var allocated, used int64
	var from, to, createdAt, updatedAt string
	if err := sc.Scan(&a.ID, &a.ClientID, &a.BudgetTypeID, &allocated, &used,
		&from, &to, &a.WeekdayRate, &a.HolidayRate, &a.KilometerRate,
		&createdAt, &updatedAt); err != nil {
		return a, err
	}
	a.AllocatedAmount = generic.FromCents(allocated)
	a.UsedAmount = generic.FromCents(used)

	var err error
	if a.ValidFrom, err = generic.ParseDay(from); err != nil {
		return a, err
	}
	if a.ValidTo, err = generic.ParseDay(to); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseStamp(createdAt); err != nil {
		return a, err
	}
	a.UpdatedAt, err = parseStamp(updatedAt)
	return a, err
}

func (s *Store) GetAllocation(ctx context.Context, id generic.AllocationID) (*generic.ClientBudgetAllocation, error) {
	a, err := scanAllocation(s.queryRow(ctx,
		"SELECT "+allocationColumns+" FROM client_budget_allocations WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("allocation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return &a, nil
}

func (s *Store) ListAllocationsByClient(ctx context.Context, clientID generic.ClientID) ([]generic.ClientBudgetAllocation, error) {
	rows, err := s.query(ctx,
		"SELECT "+allocationColumns+" FROM client_budget_allocations WHERE client_id = ? ORDER BY valid_from, id",
		string(clientID))
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var out []generic.ClientBudgetAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IncrementUsed is a single relative UPDATE; concurrent callers never
// overwrite each other.
func (s *Store) IncrementUsed(ctx context.Context, id generic.AllocationID, delta decimal.Decimal, at time.Time) error {
	res, err := s.exec(ctx,
		"UPDATE client_budget_allocations SET used_cents = used_cents + ?, updated_at = ? WHERE id = ?",
		cents(delta), stamp(at), string(id))
	if err != nil {
		return fmt.Errorf("failed to increment used amount: %w", err)
	}
	return mustAffect(res, "allocation", id)
}

// =============================================================================
// EXPENSES
// =============================================================================

const expenseColumns = `id, client_id, budget_type_id, allocation_id, amount_cents, expense_date,
	description, compensation_id, time_log_id, created_by, created_at, updated_at`

func (s *Store) CreateExpense(ctx context.Context, e generic.BudgetExpense) error {
	query := `INSERT INTO budget_expenses (` + expenseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, query,
		string(e.ID), string(e.ClientID), string(e.BudgetTypeID), nullID(e.AllocationID),
		cents(e.Amount), day(e.ExpenseDate), e.Description,
		nullID(e.CompensationID), nullID(e.TimeLogID), e.CreatedBy,
		stamp(e.CreatedAt), stamp(e.UpdatedAt),
	)
	if err != nil {
		return insertErr("expense", e.ID, err)
	}
	return nil
}

func scanExpense(sc scanner) (generic.BudgetExpense, error) {
	var e generic.BudgetExpense
	var amount int64
	var allocID, compID, logID sql.NullString
	var date, createdAt, updatedAt string
	if err := sc.Scan(&e.ID, &e.ClientID, &e.BudgetTypeID, &allocID, &amount, &date,
		&e.Description, &compID, &logID, &e.CreatedBy, &createdAt, &updatedAt); err != nil {
		return e, err
	}
	e.Amount = generic.FromCents(amount)
	e.AllocationID = idPtr[generic.AllocationID](allocID)
	e.CompensationID = idPtr[generic.CompensationID](compID)
	e.TimeLogID = idPtr[generic.TimeLogID](logID)

	var err error
	if e.ExpenseDate, err = generic.ParseDay(date); err != nil {
		return e, err
	}
	if e.CreatedAt, err = parseStamp(createdAt); err != nil {
		return e, err
	}
	e.UpdatedAt, err = parseStamp(updatedAt)
	return e, err
}

func (s *Store) GetExpense(ctx context.Context, id generic.ExpenseID) (*generic.BudgetExpense, error) {
	e, err := scanExpense(s.queryRow(ctx, "SELECT "+expenseColumns+" FROM budget_expenses WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("expense", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return &e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e generic.BudgetExpense) error {
	query := `
		UPDATE budget_expenses SET
			client_id = ?, budget_type_id = ?, allocation_id = ?, amount_cents = ?,
			expense_date = ?, description = ?, compensation_id = ?, time_log_id = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := s.exec(ctx, query,
		string(e.ClientID), string(e.BudgetTypeID), nullID(e.AllocationID), cents(e.Amount),
		day(e.ExpenseDate), e.Description, nullID(e.CompensationID), nullID(e.TimeLogID),
		stamp(e.UpdatedAt), string(e.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return mustAffect(res, "expense", e.ID)
}

func (s *Store) DeleteExpense(ctx context.Context, id generic.ExpenseID) error {
	res, err := s.exec(ctx, "DELETE FROM budget_expenses WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return mustAffect(res, "expense", id)
}

func (s *Store) listExpenses(ctx context.Context, where string, arg string) ([]generic.BudgetExpense, error) {
	rows, err := s.query(ctx,
		"SELECT "+expenseColumns+" FROM budget_expenses WHERE "+where+" = ? ORDER BY expense_date, id", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var out []generic.BudgetExpense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListExpensesByAllocation(ctx context.Context, id generic.AllocationID) ([]generic.BudgetExpense, error) {
	return s.listExpenses(ctx, "allocation_id", string(id))
}

func (s *Store) ListExpensesByCompensation(ctx context.Context, id generic.CompensationID) ([]generic.BudgetExpense, error) {
	return s.listExpenses(ctx, "compensation_id", string(id))
}

// =============================================================================
// TIME LOGS
// =============================================================================

const timeLogColumns = `id, staff_id, client_id, service_date, hours, mileage, service_type,
	hourly_rate, total_cost_cents, notes, created_at`

func (s *Store) SaveTimeLog(ctx context.Context, l generic.TimeLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO time_logs (` + timeLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			staff_id = excluded.staff_id,
			client_id = excluded.client_id,
			service_date = excluded.service_date,
			hours = excluded.hours,
			mileage = excluded.mileage,
			service_type = excluded.service_type,
			hourly_rate = excluded.hourly_rate,
			total_cost_cents = excluded.total_cost_cents,
			notes = excluded.notes
	`
	_, err := s.exec(ctx, query,
		string(l.ID), string(l.StaffID), string(l.ClientID), day(l.ServiceDate),
		l.Hours.String(), l.Mileage.String(), l.ServiceType,
		l.HourlyRate.String(), cents(l.TotalCost), l.Notes, stamp(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save time log: %w", err)
	}
	return nil
}

func scanTimeLog(sc scanner) (generic.TimeLog, error) {
	var l generic.TimeLog
	var date, createdAt string
	var cost int64
	if err := sc.Scan(&l.ID, &l.StaffID, &l.ClientID, &date, &l.Hours, &l.Mileage, &l.ServiceType,
		&l.HourlyRate, &cost, &l.Notes, &createdAt); err != nil {
		return l, err
	}
	l.TotalCost = generic.FromCents(cost)

	var err error
	if l.ServiceDate, err = generic.ParseDay(date); err != nil {
		return l, err
	}
	l.CreatedAt, err = parseStamp(createdAt)
	return l, err
}

func (s *Store) GetTimeLog(ctx context.Context, id generic.TimeLogID) (*generic.TimeLog, error) {
	l, err := scanTimeLog(s.queryRow(ctx, "SELECT "+timeLogColumns+" FROM time_logs WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("time log", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time log: %w", err)
	}
	return &l, nil
}

func (s *Store) ListTimeLogsByStaff(ctx context.Context, staffID generic.StaffID, p generic.Period) ([]generic.TimeLog, error) {
	rows, err := s.query(ctx, `
		SELECT `+timeLogColumns+` FROM time_logs
		WHERE staff_id = ? AND service_date >= ? AND service_date <= ?
		ORDER BY service_date, id`,
		string(staffID), day(p.Start), day(p.End))
	if err != nil {
		return nil, fmt.Errorf("failed to list time logs: %w", err)
	}
	defer rows.Close()

	var out []generic.TimeLog
	for rows.Next() {
		l, err := scanTimeLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) ListStaffWithTimeLogs(ctx context.Context, p generic.Period) ([]generic.StaffID, error) {
	rows, err := s.query(ctx, `
		SELECT DISTINCT staff_id FROM time_logs
		WHERE service_date >= ? AND service_date <= ?
		ORDER BY staff_id`,
		day(p.Start), day(p.End))
	if err != nil {
		return nil, fmt.Errorf("failed to list staff with time logs: %w", err)
	}
	defer rows.Close()

	var out []generic.StaffID
	for rows.Next() {
		var id generic.StaffID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// =============================================================================
// COMPENSATIONS
// =============================================================================

const compensationColumns = `id, staff_id, period_start, period_end, regular_hours, holiday_hours,
	total_mileage, base_cents, holiday_cents, mileage_cents, total_cents, status, approved_by,
	approved_at, paid_at, created_at, updated_at`

func (s *Store) CreateCompensation(ctx context.Context, c generic.StaffCompensation) error {
	query := `INSERT INTO staff_compensations (` + compensationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, query,
		string(c.ID), string(c.StaffID), day(c.PeriodStart), day(c.PeriodEnd),
		c.RegularHours.String(), c.HolidayHours.String(), c.TotalMileage.String(),
		cents(c.BaseCompensation), cents(c.HolidayCompensation),
		cents(c.MileageReimbursement), cents(c.TotalCompensation),
		string(c.Status), c.ApprovedBy, nullStamp(c.ApprovedAt), nullStamp(c.PaidAt),
		stamp(c.CreatedAt), stamp(c.UpdatedAt),
	)
	if err != nil {
		return insertErr("compensation", c.ID, err)
	}
	return nil
}

func scanCompensation(sc scanner) (generic.StaffCompensation, error) {
	var c generic.StaffCompensation
	var start, end, createdAt, updatedAt string
	var base, hol, mil, total int64
	var approvedAt, paidAt sql.NullString
	if err := sc.Scan(&c.ID, &c.StaffID, &start, &end, &c.RegularHours, &c.HolidayHours,
		&c.TotalMileage, &base, &hol, &mil, &total, &c.Status, &c.ApprovedBy,
		&approvedAt, &paidAt, &createdAt, &updatedAt); err != nil {
		return c, err
	}
	c.BaseCompensation = generic.FromCents(base)
	c.HolidayCompensation = generic.FromCents(hol)
	c.MileageReimbursement = generic.FromCents(mil)
	c.TotalCompensation = generic.FromCents(total)

	var err error
	if c.PeriodStart, err = generic.ParseDay(start); err != nil {
		return c, err
	}
	if c.PeriodEnd, err = generic.ParseDay(end); err != nil {
		return c, err
	}
	if c.ApprovedAt, err = parseNullStamp(approvedAt); err != nil {
		return c, err
	}
	if c.PaidAt, err = parseNullStamp(paidAt); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseStamp(createdAt); err != nil {
		return c, err
	}
	c.UpdatedAt, err = parseStamp(updatedAt)
	return c, err
}

func (s *Store) GetCompensation(ctx context.Context, id generic.CompensationID) (*generic.StaffCompensation, error) {
	c, err := scanCompensation(s.queryRow(ctx,
		"SELECT "+compensationColumns+" FROM staff_compensations WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("compensation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compensation: %w", err)
	}
	return &c, nil
}

func (s *Store) FindCompensation(ctx context.Context, staffID generic.StaffID, p generic.Period) (*generic.StaffCompensation, error) {
	c, err := scanCompensation(s.queryRow(ctx,
		"SELECT "+compensationColumns+" FROM staff_compensations WHERE staff_id = ? AND period_start = ? AND period_end = ?",
		string(staffID), day(p.Start), day(p.End)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("compensation", fmt.Sprintf("%s %s", staffID, p))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find compensation: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCompensations(ctx context.Context, f generic.CompensationFilter) ([]generic.StaffCompensation, error) {
	var where []string
	var args []any
	if f.StaffID != nil {
		where = append(where, "staff_id = ?")
		args = append(args, string(*f.StaffID))
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Period != nil {
		where = append(where, "period_start >= ? AND period_end <= ?")
		args = append(args, day(f.Period.Start), day(f.Period.End))
	}

	query := "SELECT " + compensationColumns + " FROM staff_compensations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period_start, staff_id, id"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list compensations: %w", err)
	}
	defer rows.Close()

	var out []generic.StaffCompensation
	for rows.Next() {
		c, err := scanCompensation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCompensationFigures(ctx context.Context, c generic.StaffCompensation) error {
	query := `
		UPDATE staff_compensations SET
			regular_hours = ?, holiday_hours = ?, total_mileage = ?,
			base_cents = ?, holiday_cents = ?, mileage_cents = ?, total_cents = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := s.exec(ctx, query,
		c.RegularHours.String(), c.HolidayHours.String(), c.TotalMileage.String(),
		cents(c.BaseCompensation), cents(c.HolidayCompensation),
		cents(c.MileageReimbursement), cents(c.TotalCompensation),
		stamp(c.UpdatedAt), string(c.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update compensation: %w", err)
	}
	return mustAffect(res, "compensation", c.ID)
}

// TransitionCompensation is a compare-and-set on status. When no row
// matches, a second read tells a missing row from a disallowed transition.
func (s *Store) TransitionCompensation(ctx context.Context, id generic.CompensationID, change generic.StatusChange) error {
	if len(change.From) == 0 {
		return change.Rejected("")
	}

	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(change.To), stamp(change.At)}
	if change.ApprovedBy != "" {
		set = append(set, "approved_by = ?")
		args = append(args, change.ApprovedBy)
	}
	if change.ApprovedAt != nil {
		set = append(set, "approved_at = ?")
		args = append(args, stamp(*change.ApprovedAt))
	}
	if change.PaidAt != nil {
		set = append(set, "paid_at = ?")
		args = append(args, stamp(*change.PaidAt))
	}
	args = append(args, string(id))
	for _, st := range change.From {
		args = append(args, string(st))
	}

	query := "UPDATE staff_compensations SET " + strings.Join(set, ", ") +
		" WHERE id = ? AND status IN (?" + strings.Repeat(", ?", len(change.From)-1) + ")"
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition compensation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var current generic.CompensationStatus
	err = s.queryRow(ctx, "SELECT status FROM staff_compensations WHERE id = ?", string(id)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.NotFound("compensation", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read compensation status: %w", err)
	}
	return change.Rejected(current)
}

const compAllocColumns = `id, compensation_id, client_budget_allocation_id, client_id, budget_type_id,
	allocated_cents, allocated_hours, time_log_id, is_direct_client_payment, payment_status,
	expense_id, notes, created_at`

func (s *Store) CreateCompensationAllocation(ctx context.Context, a generic.CompensationBudgetAllocation) error {
	query := `INSERT INTO compensation_budget_allocations (` + compAllocColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, query,
		string(a.ID), string(a.CompensationID), nullID(a.ClientBudgetAllocationID),
		string(a.ClientID), string(a.BudgetTypeID), cents(a.AllocatedAmount), a.AllocatedHours.String(),
		nullID(a.TimeLogID), a.IsDirectClientPayment, string(a.PaymentStatus),
		string(a.ExpenseID), a.Notes, stamp(a.CreatedAt),
	)
	if err != nil {
		return insertErr("compensation allocation", a.ID, err)
	}
	return nil
}

func (s *Store) ListCompensationAllocations(ctx context.Context, id generic.CompensationID) ([]generic.CompensationBudgetAllocation, error) {
	rows, err := s.query(ctx,
		"SELECT "+compAllocColumns+" FROM compensation_budget_allocations WHERE compensation_id = ? ORDER BY seq",
		string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list compensation allocations: %w", err)
	}
	defer rows.Close()

	var out []generic.CompensationBudgetAllocation
	for rows.Next() {
		var a generic.CompensationBudgetAllocation
		var allocID, logID sql.NullString
		var amount int64
		var createdAt string
		if err := rows.Scan(&a.ID, &a.CompensationID, &allocID, &a.ClientID, &a.BudgetTypeID,
			&amount, &a.AllocatedHours, &logID, &a.IsDirectClientPayment, &a.PaymentStatus,
			&a.ExpenseID, &a.Notes, &createdAt); err != nil {
			return nil, err
		}
		a.ClientBudgetAllocationID = idPtr[generic.AllocationID](allocID)
		a.TimeLogID = idPtr[generic.TimeLogID](logID)
		a.AllocatedAmount = generic.FromCents(amount)
		if a.CreatedAt, err = parseStamp(createdAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveCalculationDetail(ctx context.Context, d generic.CalculationDetail) error {
	query := `
		INSERT INTO compensation_calculation_details (
			compensation_id, client_id, weekday_hours, holiday_hours, mileage,
			weekday_rate, holiday_rate, mileage_rate, allocated_cents, direct_cents, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.exec(ctx, query,
		string(d.CompensationID), string(d.ClientID),
		d.WeekdayHours.String(), d.HolidayHours.String(), d.Mileage.String(),
		d.WeekdayRate.String(), d.HolidayRate.String(), d.MileageRate.String(),
		cents(d.AllocatedAmount), cents(d.DirectAmount), stamp(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save calculation detail: %w", err)
	}
	return nil
}

func (s *Store) ListCalculationDetails(ctx context.Context, id generic.CompensationID) ([]generic.CalculationDetail, error) {
	rows, err := s.query(ctx, `
		SELECT compensation_id, client_id, weekday_hours, holiday_hours, mileage,
			weekday_rate, holiday_rate, mileage_rate, allocated_cents, direct_cents, created_at
		FROM compensation_calculation_details WHERE compensation_id = ? ORDER BY seq`,
		string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list calculation details: %w", err)
	}
	defer rows.Close()

	var out []generic.CalculationDetail
	for rows.Next() {
		var d generic.CalculationDetail
		var allocated, direct int64
		var createdAt string
		if err := rows.Scan(&d.CompensationID, &d.ClientID, &d.WeekdayHours, &d.HolidayHours, &d.Mileage,
			&d.WeekdayRate, &d.HolidayRate, &d.MileageRate, &allocated, &direct, &createdAt); err != nil {
			return nil, err
		}
		d.AllocatedAmount = generic.FromCents(allocated)
		d.DirectAmount = generic.FromCents(direct)
		if d.CreatedAt, err = parseStamp(createdAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT
// =============================================================================

func (s *Store) AppendAdjustment(ctx context.Context, a generic.CompensationAdjustment) error {
	query := `
		INSERT INTO compensation_adjustments (
			id, compensation_id, adjusted_by, field_name, original_value, new_value,
			amount, reason, adjustment_type, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.exec(ctx, query,
		string(a.ID), string(a.CompensationID), a.AdjustedBy, a.FieldName,
		a.OriginalValue.String(), a.NewValue.String(), a.Amount.String(),
		a.Reason, string(a.AdjustmentType), stamp(a.CreatedAt),
	)
	if err != nil {
		return insertErr("adjustment", a.ID, err)
	}
	return nil
}

func (s *Store) ListAdjustments(ctx context.Context, id generic.CompensationID) ([]generic.CompensationAdjustment, error) {
	rows, err := s.query(ctx, `
		SELECT id, compensation_id, adjusted_by, field_name, original_value, new_value,
			amount, reason, adjustment_type, created_at
		FROM compensation_adjustments WHERE compensation_id = ? ORDER BY seq`,
		string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var out []generic.CompensationAdjustment
	for rows.Next() {
		var a generic.CompensationAdjustment
		var createdAt string
		if err := rows.Scan(&a.ID, &a.CompensationID, &a.AdjustedBy, &a.FieldName,
			&a.OriginalValue, &a.NewValue, &a.Amount, &a.Reason, &a.AdjustmentType, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseStamp(createdAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// RESET - Demo scenarios start from an empty ledger
// =============================================================================

// resetOrder lists tables children first so foreign keys never block a delete.
var resetOrder = []string{
	"compensation_adjustments",
	"compensation_calculation_details",
	"compensation_budget_allocations",
	"budget_expenses",
	"staff_compensations",
	"time_logs",
	"client_budget_allocations",
	"budget_types",
	"clients",
	"staff",
	"generation_jobs",
}

// Reset deletes every row in one transaction. The schema is kept.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(st generic.Store) error {
		tx := st.(*Store)
		for _, table := range resetOrder {
			if _, err := tx.exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}
