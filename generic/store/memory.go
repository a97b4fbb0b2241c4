// Package store provides an in-memory generic.TxStore for tests and demos.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory guards a state with a single mutex. Every exported method holds the
// lock for its whole duration, so IncrementUsed is atomic.
type Memory struct {
	mu sync.Mutex
	st *state
}

var _ generic.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The lock is held until fn returns, so transactions are serialized.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// locked runs f under the store mutex.
func locked[T any](m *Memory, f func(*state) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m.st)
}

func lockedErr(m *Memory, f func(*state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m.st)
}

// Catalog

func (m *Memory) SaveStaff(ctx context.Context, s generic.StaffMember) error {
	return lockedErr(m, func(st *state) error { return st.SaveStaff(ctx, s) })
}

func (m *Memory) GetStaff(ctx context.Context, id generic.StaffID) (*generic.StaffMember, error) {
	return locked(m, func(st *state) (*generic.StaffMember, error) { return st.GetStaff(ctx, id) })
}

func (m *Memory) ListStaff(ctx context.Context) ([]generic.StaffMember, error) {
	return locked(m, func(st *state) ([]generic.StaffMember, error) { return st.ListStaff(ctx) })
}

func (m *Memory) SaveClient(ctx context.Context, c generic.Client) error {
	return lockedErr(m, func(st *state) error { return st.SaveClient(ctx, c) })
}

func (m *Memory) GetClient(ctx context.Context, id generic.ClientID) (*generic.Client, error) {
	return locked(m, func(st *state) (*generic.Client, error) { return st.GetClient(ctx, id) })
}

func (m *Memory) ListClients(ctx context.Context) ([]generic.Client, error) {
	return locked(m, func(st *state) ([]generic.Client, error) { return st.ListClients(ctx) })
}

func (m *Memory) SaveBudgetType(ctx context.Context, bt generic.BudgetType) error {
	return lockedErr(m, func(st *state) error { return st.SaveBudgetType(ctx, bt) })
}

func (m *Memory) GetBudgetType(ctx context.Context, id generic.BudgetTypeID) (*generic.BudgetType, error) {
	return locked(m, func(st *state) (*generic.BudgetType, error) { return st.GetBudgetType(ctx, id) })
}

func (m *Memory) ListBudgetTypes(ctx context.Context) ([]generic.BudgetType, error) {
	return locked(m, func(st *state) ([]generic.BudgetType, error) { return st.ListBudgetTypes(ctx) })
}

// Allocations

func (m *Memory) SaveAllocation(ctx context.Context, a generic.ClientBudgetAllocation) error {
	return lockedErr(m, func(st *state) error { return st.SaveAllocation(ctx, a) })
}

func (m *Memory) GetAllocation(ctx context.Context, id generic.AllocationID) (*generic.ClientBudgetAllocation, error) {
	return locked(m, func(st *state) (*generic.ClientBudgetAllocation, error) { return st.GetAllocation(ctx, id) })
}

func (m *Memory) ListAllocationsByClient(ctx context.Context, id generic.ClientID) ([]generic.ClientBudgetAllocation, error) {
	return locked(m, func(st *state) ([]generic.ClientBudgetAllocation, error) { return st.ListAllocationsByClient(ctx, id) })
}

func (m *Memory) IncrementUsed(ctx context.Context, id generic.AllocationID, delta decimal.Decimal, at time.Time) error {
	return lockedErr(m, func(st *state) error { return st.IncrementUsed(ctx, id, delta, at) })
}

// Expenses

func (m *Memory) CreateExpense(ctx context.Context, e generic.BudgetExpense) error {
	return lockedErr(m, func(st *state) error { return st.CreateExpense(ctx, e) })
}

func (m *Memory) GetExpense(ctx context.Context, id generic.ExpenseID) (*generic.BudgetExpense, error) {
	return locked(m, func(st *state) (*generic.BudgetExpense, error) { return st.GetExpense(ctx, id) })
}

func (m *Memory) UpdateExpense(ctx context.Context, e generic.BudgetExpense) error {
	return lockedErr(m, func(st *state) error { return st.UpdateExpense(ctx, e) })
}

func (m *Memory) DeleteExpense(ctx context.Context, id generic.ExpenseID) error {
	return lockedErr(m, func(st *state) error { return st.DeleteExpense(ctx, id) })
}

func (m *Memory) ListExpensesByAllocation(ctx context.Context, id generic.AllocationID) ([]generic.BudgetExpense, error) {
	return locked(m, func(st *state) ([]generic.BudgetExpense, error) { return st.ListExpensesByAllocation(ctx, id) })
}

func (m *Memory) ListExpensesByCompensation(ctx context.Context, id generic.CompensationID) ([]generic.BudgetExpense, error) {
	return locked(m, func(st *state) ([]generic.BudgetExpense, error) { return st.ListExpensesByCompensation(ctx, id) })
}

// Time logs

func (m *Memory) SaveTimeLog(ctx context.Context, l generic.TimeLog) error {
	return lockedErr(m, func(st *state) error { return st.SaveTimeLog(ctx, l) })
}

func (m *Memory) GetTimeLog(ctx context.Context, id generic.TimeLogID) (*generic.TimeLog, error) {
	return locked(m, func(st *state) (*generic.TimeLog, error) { return st.GetTimeLog(ctx, id) })
}

func (m *Memory) ListTimeLogsByStaff(ctx context.Context, id generic.StaffID, p generic.Period) ([]generic.TimeLog, error) {
	return locked(m, func(st *state) ([]generic.TimeLog, error) { return st.ListTimeLogsByStaff(ctx, id, p) })
}

func (m *Memory) ListStaffWithTimeLogs(ctx context.Context, p generic.Period) ([]generic.StaffID, error) {
	return locked(m, func(st *state) ([]generic.StaffID, error) { return st.ListStaffWithTimeLogs(ctx, p) })
}

// Compensations

func (m *Memory) CreateCompensation(ctx context.Context, c generic.StaffCompensation) error {
	return lockedErr(m, func(st *state) error { return st.CreateCompensation(ctx, c) })
}

func (m *Memory) GetCompensation(ctx context.Context, id generic.CompensationID) (*generic.StaffCompensation, error) {
	return locked(m, func(st *state) (*generic.StaffCompensation, error) { return st.GetCompensation(ctx, id) })
}

func (m *Memory) FindCompensation(ctx context.Context, id generic.StaffID, p generic.Period) (*generic.StaffCompensation, error) {
	return locked(m, func(st *state) (*generic.StaffCompensation, error) { return st.FindCompensation(ctx, id, p) })
}

func (m *Memory) ListCompensations(ctx context.Context, f generic.CompensationFilter) ([]generic.StaffCompensation, error) {
	return locked(m, func(st *state) ([]generic.StaffCompensation, error) { return st.ListCompensations(ctx, f) })
}

func (m *Memory) UpdateCompensationFigures(ctx context.Context, c generic.StaffCompensation) error {
	return lockedErr(m, func(st *state) error { return st.UpdateCompensationFigures(ctx, c) })
}

func (m *Memory) TransitionCompensation(ctx context.Context, id generic.CompensationID, change generic.StatusChange) error {
	return lockedErr(m, func(st *state) error { return st.TransitionCompensation(ctx, id, change) })
}

func (m *Memory) CreateCompensationAllocation(ctx context.Context, a generic.CompensationBudgetAllocation) error {
	return lockedErr(m, func(st *state) error { return st.CreateCompensationAllocation(ctx, a) })
}

func (m *Memory) ListCompensationAllocations(ctx context.Context, id generic.CompensationID) ([]generic.CompensationBudgetAllocation, error) {
	return locked(m, func(st *state) ([]generic.CompensationBudgetAllocation, error) { return st.ListCompensationAllocations(ctx, id) })
}

func (m *Memory) SaveCalculationDetail(ctx context.Context, d generic.CalculationDetail) error {
	return lockedErr(m, func(st *state) error { return st.SaveCalculationDetail(ctx, d) })
}

func (m *Memory) ListCalculationDetails(ctx context.Context, id generic.CompensationID) ([]generic.CalculationDetail, error) {
	return locked(m, func(st *state) ([]generic.CalculationDetail, error) { return st.ListCalculationDetails(ctx, id) })
}

// Audit

func (m *Memory) AppendAdjustment(ctx context.Context, a generic.CompensationAdjustment) error {
	return lockedErr(m, func(st *state) error { return st.AppendAdjustment(ctx, a) })
}

func (m *Memory) ListAdjustments(ctx context.Context, id generic.CompensationID) ([]generic.CompensationAdjustment, error) {
	return locked(m, func(st *state) ([]generic.CompensationAdjustment, error) { return st.ListAdjustments(ctx, id) })
}

// =============================================================================
// STATE - Unlocked maps; also the transactional view handed to WithTx
// =============================================================================

type state struct {
	staff        map[generic.StaffID]generic.StaffMember
	clients      map[generic.ClientID]generic.Client
	budgetTypes  map[generic.BudgetTypeID]generic.BudgetType
	allocations  map[generic.AllocationID]generic.ClientBudgetAllocation
	expenses     map[generic.ExpenseID]generic.BudgetExpense
	timeLogs     map[generic.TimeLogID]generic.TimeLog
	compensation map[generic.CompensationID]generic.StaffCompensation
	compAllocs   map[generic.CompensationID][]generic.CompensationBudgetAllocation
	details      map[generic.CompensationID][]generic.CalculationDetail
	adjustments  map[generic.CompensationID][]generic.CompensationAdjustment
}

var _ generic.Store = (*state)(nil)

func newState() *state {
	return &state{
		staff:        make(map[generic.StaffID]generic.StaffMember),
		clients:      make(map[generic.ClientID]generic.Client),
		budgetTypes:  make(map[generic.BudgetTypeID]generic.BudgetType),
		allocations:  make(map[generic.AllocationID]generic.ClientBudgetAllocation),
		expenses:     make(map[generic.ExpenseID]generic.BudgetExpense),
		timeLogs:     make(map[generic.TimeLogID]generic.TimeLog),
		compensation: make(map[generic.CompensationID]generic.StaffCompensation),
		compAllocs:   make(map[generic.CompensationID][]generic.CompensationBudgetAllocation),
		details:      make(map[generic.CompensationID][]generic.CalculationDetail),
		adjustments:  make(map[generic.CompensationID][]generic.CompensationAdjustment),
	}
}

// clone is the rollback snapshot. Records are values, so copying the maps
// (and the slices inside them) is a full copy.
func (s *state) clone() *state {
	return &state{
		staff:        copyMap(s.staff),
		clients:      copyMap(s.clients),
		budgetTypes:  copyMap(s.budgetTypes),
		allocations:  copyMap(s.allocations),
		expenses:     copyMap(s.expenses),
		timeLogs:     copyMap(s.timeLogs),
		compensation: copyMap(s.compensation),
		compAllocs:   copySliceMap(s.compAllocs),
		details:      copySliceMap(s.details),
		adjustments:  copySliceMap(s.adjustments),
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySliceMap[K comparable, V any](in map[K][]V) map[K][]V {
	out := make(map[K][]V, len(in))
	for k, v := range in {
		out[k] = append([]V(nil), v...)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func values[K comparable, V any](in map[K]V, keep func(V) bool, less func(a, b V) bool) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Catalog

func (s *state) SaveStaff(_ context.Context, m generic.StaffMember) error {
	s.staff[m.ID] = m
	return nil
}

func (s *state) GetStaff(_ context.Context, id generic.StaffID) (*generic.StaffMember, error) {
	m, ok := s.staff[id]
	if !ok {
		return nil, generic.NotFound("staff", id)
	}
	return &m, nil
}

func (s *state) ListStaff(context.Context) ([]generic.StaffMember, error) {
	return values(s.staff, nil, func(a, b generic.StaffMember) bool { return a.ID < b.ID }), nil
}

func (s *state) SaveClient(_ context.Context, c generic.Client) error {
	s.clients[c.ID] = c
	return nil
}

func (s *state) GetClient(_ context.Context, id generic.ClientID) (*generic.Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, generic.NotFound("client", id)
	}
	return &c, nil
}

func (s *state) ListClients(context.Context) ([]generic.Client, error) {
	return values(s.clients, nil, func(a, b generic.Client) bool { return a.ID < b.ID }), nil
}

func (s *state) SaveBudgetType(_ context.Context, bt generic.BudgetType) error {
	s.budgetTypes[bt.ID] = bt
	return nil
}

func (s *state) GetBudgetType(_ context.Context, id generic.BudgetTypeID) (*generic.BudgetType, error) {
	bt, ok := s.budgetTypes[id]
	if !ok {
		return nil, generic.NotFound("budget type", id)
	}
	return &bt, nil
}

func (s *state) ListBudgetTypes(context.Context) ([]generic.BudgetType, error) {
	return values(s.budgetTypes, nil, func(a, b generic.BudgetType) bool { return a.ID < b.ID }), nil
}

// Allocations

func (s *state) SaveAllocation(_ context.Context, a generic.ClientBudgetAllocation) error {
	if existing, ok := s.allocations[a.ID]; ok {
		a.UsedAmount = existing.UsedAmount
		a.CreatedAt = existing.CreatedAt
	}
	s.allocations[a.ID] = a
	return nil
}

func (s *state) GetAllocation(_ context.Context, id generic.AllocationID) (*generic.ClientBudgetAllocation, error) {
	a, ok := s.allocations[id]
	if !ok {
		return nil, generic.NotFound("allocation", id)
	}
	return &a, nil
}

func (s *state) ListAllocationsByClient(_ context.Context, clientID generic.ClientID) ([]generic.ClientBudgetAllocation, error) {
	return values(s.allocations,
		func(a generic.ClientBudgetAllocation) bool { return a.ClientID == clientID },
		func(a, b generic.ClientBudgetAllocation) bool {
			if !a.ValidFrom.Equal(b.ValidFrom) {
				return a.ValidFrom.Before(b.ValidFrom)
			}
			return a.ID < b.ID
		}), nil
}

func (s *state) IncrementUsed(_ context.Context, id generic.AllocationID, delta decimal.Decimal, at time.Time) error {
	a, ok := s.allocations[id]
	if !ok {
		return generic.NotFound("allocation", id)
	}
	a.UsedAmount = a.UsedAmount.Add(delta)
	a.UpdatedAt = at
	s.allocations[id] = a
	return nil
}

// Expenses

func (s *state) CreateExpense(_ context.Context, e generic.BudgetExpense) error {
	if _, ok := s.expenses[e.ID]; ok {
		return fmt.Errorf("expense %s: %w", e.ID, generic.ErrDuplicateID)
	}
	s.expenses[e.ID] = e
	return nil
}

func (s *state) GetExpense(_ context.Context, id generic.ExpenseID) (*generic.BudgetExpense, error) {
	e, ok := s.expenses[id]
	if !ok {
		return nil, generic.NotFound("expense", id)
	}
	return &e, nil
}

func (s *state) UpdateExpense(_ context.Context, e generic.BudgetExpense) error {
	if _, ok := s.expenses[e.ID]; !ok {
		return generic.NotFound("expense", e.ID)
	}
	s.expenses[e.ID] = e
	return nil
}

func (s *state) DeleteExpense(_ context.Context, id generic.ExpenseID) error {
	if _, ok := s.expenses[id]; !ok {
		return generic.NotFound("expense", id)
	}
	delete(s.expenses, id)
	return nil
}

func expenseOrder(a, b generic.BudgetExpense) bool {
	if !a.ExpenseDate.Equal(b.ExpenseDate) {
		return a.ExpenseDate.Before(b.ExpenseDate)
	}
	return a.ID < b.ID
}

func (s *state) ListExpensesByAllocation(_ context.Context, id generic.AllocationID) ([]generic.BudgetExpense, error) {
	return values(s.expenses,
		func(e generic.BudgetExpense) bool { return e.AllocationID != nil && *e.AllocationID == id },
		expenseOrder), nil
}

func (s *state) ListExpensesByCompensation(_ context.Context, id generic.CompensationID) ([]generic.BudgetExpense, error) {
	return values(s.expenses,
		func(e generic.BudgetExpense) bool { return e.CompensationID != nil && *e.CompensationID == id },
		expenseOrder), nil
}

// Time logs

func (s *state) SaveTimeLog(_ context.Context, l generic.TimeLog) error {
	s.timeLogs[l.ID] = l
	return nil
}

func (s *state) GetTimeLog(_ context.Context, id generic.TimeLogID) (*generic.TimeLog, error) {
	l, ok := s.timeLogs[id]
	if !ok {
		return nil, generic.NotFound("time log", id)
	}
	return &l, nil
}

func (s *state) ListTimeLogsByStaff(_ context.Context, staffID generic.StaffID, p generic.Period) ([]generic.TimeLog, error) {
	return values(s.timeLogs,
		func(l generic.TimeLog) bool { return l.StaffID == staffID && p.Contains(l.ServiceDate) },
		func(a, b generic.TimeLog) bool {
			if !a.ServiceDate.Equal(b.ServiceDate) {
				return a.ServiceDate.Before(b.ServiceDate)
			}
			return a.ID < b.ID
		}), nil
}

func (s *state) ListStaffWithTimeLogs(_ context.Context, p generic.Period) ([]generic.StaffID, error) {
	seen := make(map[generic.StaffID]bool)
	for _, l := range s.timeLogs {
		if p.Contains(l.ServiceDate) {
			seen[l.StaffID] = true
		}
	}
	ids := make([]generic.StaffID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Compensations

func (s *state) CreateCompensation(_ context.Context, c generic.StaffCompensation) error {
	if _, ok := s.compensation[c.ID]; ok {
		return fmt.Errorf("compensation %s: %w", c.ID, generic.ErrDuplicateID)
	}
	s.compensation[c.ID] = c
	return nil
}

func (s *state) GetCompensation(_ context.Context, id generic.CompensationID) (*generic.StaffCompensation, error) {
	c, ok := s.compensation[id]
	if !ok {
		return nil, generic.NotFound("compensation", id)
	}
	return &c, nil
}

func (s *state) FindCompensation(_ context.Context, staffID generic.StaffID, p generic.Period) (*generic.StaffCompensation, error) {
	for _, c := range s.compensation {
		if c.StaffID == staffID && c.PeriodStart.Equal(p.Start) && c.PeriodEnd.Equal(p.End) {
			return ptr(c), nil
		}
	}
	return nil, generic.NotFound("compensation", fmt.Sprintf("%s %s", staffID, p))
}

func (s *state) ListCompensations(_ context.Context, f generic.CompensationFilter) ([]generic.StaffCompensation, error) {
	return values(s.compensation,
		func(c generic.StaffCompensation) bool {
			if f.StaffID != nil && c.StaffID != *f.StaffID {
				return false
			}
			if f.Status != nil && c.Status != *f.Status {
				return false
			}
			if f.Period != nil && (!f.Period.Contains(c.PeriodStart) || !f.Period.Contains(c.PeriodEnd)) {
				return false
			}
			return true
		},
		func(a, b generic.StaffCompensation) bool {
			if !a.PeriodStart.Equal(b.PeriodStart) {
				return a.PeriodStart.Before(b.PeriodStart)
			}
			if a.StaffID != b.StaffID {
				return a.StaffID < b.StaffID
			}
			return a.ID < b.ID
		}), nil
}

func (s *state) UpdateCompensationFigures(_ context.Context, c generic.StaffCompensation) error {
	cur, ok := s.compensation[c.ID]
	if !ok {
		return generic.NotFound("compensation", c.ID)
	}
	cur.RegularHours = c.RegularHours
	cur.HolidayHours = c.HolidayHours
	cur.TotalMileage = c.TotalMileage
	cur.BaseCompensation = c.BaseCompensation
	cur.HolidayCompensation = c.HolidayCompensation
	cur.MileageReimbursement = c.MileageReimbursement
	cur.TotalCompensation = c.TotalCompensation
	cur.UpdatedAt = c.UpdatedAt
	s.compensation[c.ID] = cur
	return nil
}

func (s *state) TransitionCompensation(_ context.Context, id generic.CompensationID, change generic.StatusChange) error {
	cur, ok := s.compensation[id]
	if !ok {
		return generic.NotFound("compensation", id)
	}
	if !change.Allows(cur.Status) {
		return change.Rejected(cur.Status)
	}
	cur.Status = change.To
	if change.ApprovedBy != "" {
		cur.ApprovedBy = change.ApprovedBy
	}
	if change.ApprovedAt != nil {
		cur.ApprovedAt = ptr(*change.ApprovedAt)
	}
	if change.PaidAt != nil {
		cur.PaidAt = ptr(*change.PaidAt)
	}
	cur.UpdatedAt = change.At
	s.compensation[id] = cur
	return nil
}

func (s *state) CreateCompensationAllocation(_ context.Context, a generic.CompensationBudgetAllocation) error {
	for _, existing := range s.compAllocs[a.CompensationID] {
		if existing.ID == a.ID {
			return fmt.Errorf("compensation allocation %s: %w", a.ID, generic.ErrDuplicateID)
		}
	}
	s.compAllocs[a.CompensationID] = append(s.compAllocs[a.CompensationID], a)
	return nil
}

func (s *state) ListCompensationAllocations(_ context.Context, id generic.CompensationID) ([]generic.CompensationBudgetAllocation, error) {
	return append([]generic.CompensationBudgetAllocation(nil), s.compAllocs[id]...), nil
}

func (s *state) SaveCalculationDetail(_ context.Context, d generic.CalculationDetail) error {
	s.details[d.CompensationID] = append(s.details[d.CompensationID], d)
	return nil
}

func (s *state) ListCalculationDetails(_ context.Context, id generic.CompensationID) ([]generic.CalculationDetail, error) {
	return append([]generic.CalculationDetail(nil), s.details[id]...), nil
}

// Audit

func (s *state) AppendAdjustment(_ context.Context, a generic.CompensationAdjustment) error {
	s.adjustments[a.CompensationID] = append(s.adjustments[a.CompensationID], a)
	return nil
}

func (s *state) ListAdjustments(_ context.Context, id generic.CompensationID) ([]generic.CompensationAdjustment, error) {
	return append([]generic.CompensationAdjustment(nil), s.adjustments[id]...), nil
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}
