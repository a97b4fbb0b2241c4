/*
expenses.go - Budget expense ledger

PURPOSE:
  Every movement of an allocation's used amount is mirrored by an expense
  row, and every expense row change is mirrored on the used amount, inside
  one transaction. That keeps the conservation invariant:

    allocation.UsedAmount == opening used + sum(live expenses on allocation)

SYMMETRY:
  Record  +amount on the allocation
  Amend   same allocation:    +(new - old)
          allocation changed: -old on the old one, +new on the new one
  Remove  -amount on the allocation

  Direct assistance expenses (nil allocation) touch no counter, but their
  client must exist.

  Expenses written by compensation approval are owned by their
  CompensationBudgetAllocation row and cannot be amended or removed here.

SEE ALSO:
  - allocator.go: Commit, the shared write path used by hour allocation
    and compensation approval
*/
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/warp/care-ledger/generic"
)

// ExpenseInput describes an expense to record or the full new state of
// one being amended.
type ExpenseInput struct {
	ClientID       generic.ClientID
	BudgetTypeID   generic.BudgetTypeID
	AllocationID   *generic.AllocationID // nil = direct assistance
	Amount         decimal.Decimal
	ExpenseDate    time.Time
	Description    string
	CompensationID *generic.CompensationID
	TimeLogID      *generic.TimeLogID
	CreatedBy      string
}

func (in ExpenseInput) validate() error {
	if in.ClientID == "" {
		return generic.Invalid("clientId", "required")
	}
	if in.Amount.IsNegative() {
		return generic.Invalid("amount", "must not be negative, got %s", in.Amount)
	}
	if in.ExpenseDate.IsZero() {
		return generic.Invalid("expenseDate", "required")
	}
	if in.AllocationID == nil && in.BudgetTypeID == "" {
		return generic.Invalid("budgetTypeId", "required for direct expenses")
	}
	return nil
}

// ExpenseLedger records, amends and removes expenses.
type ExpenseLedger struct {
	Store generic.TxStore
	Clock generic.Clock
}

func NewExpenseLedger(store generic.TxStore, clock generic.Clock) *ExpenseLedger {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &ExpenseLedger{Store: store, Clock: clock}
}

// Record creates an expense and charges its allocation.
func (l *ExpenseLedger) Record(ctx context.Context, in ExpenseInput) (*generic.BudgetExpense, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var out generic.BudgetExpense
	err := l.Store.WithTx(ctx, func(st generic.Store) error {
		e, err := recordExpense(ctx, st, in, l.Clock.Now())
		out = e
		return err
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"expense_id": out.ID,
		"client_id":  out.ClientID,
		"amount":     out.Amount.StringFixed(2),
		"direct":     out.IsDirect(),
	}).Info("expense recorded")
	return &out, nil
}

// Amend replaces an expense with in and moves the difference between
// allocations as needed.
func (l *ExpenseLedger) Amend(ctx context.Context, id generic.ExpenseID, in ExpenseInput) (*generic.BudgetExpense, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := l.Clock.Now()
	var out generic.BudgetExpense
	err := l.Store.WithTx(ctx, func(st generic.Store) error {
		old, err := st.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if old.CompensationID != nil {
			return linkedToCompensation("amend", old)
		}
		in.Amount = generic.RoundMoney(in.Amount)
		if in.AllocationID != nil {
			alloc, err := allocationFor(ctx, st, *in.AllocationID, in.ClientID)
			if err != nil {
				return err
			}
			in.BudgetTypeID = alloc.BudgetTypeID
		} else if _, err := st.GetClient(ctx, in.ClientID); err != nil {
			return err
		}

		if sameAllocation(old.AllocationID, in.AllocationID) {
			if in.AllocationID != nil {
				if err := st.IncrementUsed(ctx, *in.AllocationID, in.Amount.Sub(old.Amount), now); err != nil {
					return err
				}
			}
		} else {
			if old.AllocationID != nil {
				if err := st.IncrementUsed(ctx, *old.AllocationID, old.Amount.Neg(), now); err != nil {
					return err
				}
			}
			if in.AllocationID != nil {
				if err := st.IncrementUsed(ctx, *in.AllocationID, in.Amount, now); err != nil {
					return err
				}
			}
		}

		out = *old
		out.ClientID = in.ClientID
		out.BudgetTypeID = in.BudgetTypeID
		out.AllocationID = in.AllocationID
		out.Amount = in.Amount
		out.ExpenseDate = generic.TruncateDay(in.ExpenseDate)
		out.Description = in.Description
		if in.CompensationID != nil {
			out.CompensationID = in.CompensationID
		}
		if in.TimeLogID != nil {
			out.TimeLogID = in.TimeLogID
		}
		out.UpdatedAt = now
		return st.UpdateExpense(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"expense_id": id, "amount": out.Amount.StringFixed(2)}).Info("expense amended")
	return &out, nil
}

// Remove deletes an expense and gives its amount back to the allocation.
func (l *ExpenseLedger) Remove(ctx context.Context, id generic.ExpenseID) error {
	err := l.Store.WithTx(ctx, func(st generic.Store) error {
		old, err := st.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if old.CompensationID != nil {
			return linkedToCompensation("remove", old)
		}
		if err := st.DeleteExpense(ctx, id); err != nil {
			return err
		}
		if old.AllocationID == nil {
			return nil
		}
		return st.IncrementUsed(ctx, *old.AllocationID, old.Amount.Neg(), l.Clock.Now())
	})
	if err != nil {
		return err
	}
	log.WithField("expense_id", id).Info("expense removed")
	return nil
}

// =============================================================================
// SHARED WRITE PATH - Runs inside a caller's transaction
// =============================================================================

// recordExpense writes the expense row and applies the atomic increment.
func recordExpense(ctx context.Context, st generic.Store, in ExpenseInput, now time.Time) (generic.BudgetExpense, error) {
	amount := generic.RoundMoney(in.Amount)
	if in.AllocationID != nil {
		alloc, err := allocationFor(ctx, st, *in.AllocationID, in.ClientID)
		if err != nil {
			return generic.BudgetExpense{}, err
		}
		in.BudgetTypeID = alloc.BudgetTypeID
	} else if _, err := st.GetClient(ctx, in.ClientID); err != nil {
		return generic.BudgetExpense{}, err
	}
	e := generic.BudgetExpense{
		ID:             generic.ExpenseID(generic.NewID()),
		ClientID:       in.ClientID,
		BudgetTypeID:   in.BudgetTypeID,
		AllocationID:   in.AllocationID,
		Amount:         amount,
		ExpenseDate:    generic.TruncateDay(in.ExpenseDate),
		Description:    in.Description,
		CompensationID: in.CompensationID,
		TimeLogID:      in.TimeLogID,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := st.CreateExpense(ctx, e); err != nil {
		return generic.BudgetExpense{}, fmt.Errorf("create expense: %w", err)
	}
	if e.AllocationID != nil {
		if err := st.IncrementUsed(ctx, *e.AllocationID, amount, now); err != nil {
			return generic.BudgetExpense{}, fmt.Errorf("increment used: %w", err)
		}
	}
	return e, nil
}

// allocationFor loads an allocation and checks it belongs to clientID.
func allocationFor(ctx context.Context, st generic.AllocationStore, id generic.AllocationID, clientID generic.ClientID) (*generic.ClientBudgetAllocation, error) {
	alloc, err := st.GetAllocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if alloc.ClientID != clientID {
		return nil, generic.Invalid("allocationId", "allocation %s belongs to client %s, not %s", id, alloc.ClientID, clientID)
	}
	return alloc, nil
}

func linkedToCompensation(action string, e *generic.BudgetExpense) error {
	return &generic.InvalidStateError{
		Action:  fmt.Sprintf("%s expense %s", action, e.ID),
		Current: fmt.Sprintf("linked to compensation %s", *e.CompensationID),
		Allowed: []string{"unlinked"},
	}
}

func sameAllocation(a, b *generic.AllocationID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
