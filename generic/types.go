/*
Package generic provides the shared kernel of the care funding ledger.

PURPOSE:
  This package contains the types every other package speaks: identifiers,
  money helpers, the persisted records (models.go), the error taxonomy
  (errors.go), the persistence contracts (store.go) and day/period/clock
  helpers (time.go). It holds no business rules of its own; those live in
  the budget and compensation packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: StaffID, ClientID, AllocationID, ... so a staff id
    can never be passed where an allocation id is expected
  - Money: decimal.Decimal rounded to cents when it enters the ledger
  - Rates: decimal.NullDecimal for optional per-unit prices

DESIGN PRINCIPLES:
  1. Precision: money is never a float64
  2. Conservation: every committed amount is rounded to cents BEFORE it is
     added to a used counter, so sums of expenses equal used amounts exactly
  3. Type Safety: distinct ID types per aggregate

USAGE:
  cost := generic.RoundMoney(hours.Mul(rate))
  cents := generic.ToCents(cost)     // 8500 for 85.00
  back := generic.FromCents(cents)   // 85.00

SEE ALSO:
  - models.go: Persisted records
  - store.go: Persistence interfaces
  - errors.go: NotFound / InvalidState / Validation
*/
package generic

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StaffID string
type ClientID string
type BudgetTypeID string
type AllocationID string
type ExpenseID string
type TimeLogID string
type CompensationID string
type CompensationAllocationID string
type AdjustmentID string

// NewID returns a random identifier for a new record.
func NewID() string { return uuid.NewString() }

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places of a committed money amount.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// ToCents converts a money amount to integer minor units.
func ToCents(d decimal.Decimal) int64 { return RoundMoney(d).Shift(MoneyPlaces).IntPart() }

// FromCents converts integer minor units back to a money amount.
func FromCents(cents int64) decimal.Decimal { return decimal.New(cents, -MoneyPlaces) }

// Percentage returns part/whole*100 rounded to two places, or zero when
// whole is zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

// MustParseDecimal parses s, returning zero for malformed input.
// Only for literals in code and tests.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Rate builds a present NullDecimal from a literal.
func Rate(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(MustParseDecimal(s))
}

// NoRate is an absent rate.
var NoRate = decimal.NullDecimal{}

// FirstRate returns the first present rate, or fallback when none is set.
func FirstRate(fallback decimal.Decimal, rates ...decimal.NullDecimal) decimal.Decimal {
	for _, r := range rates {
		if r.Valid {
			return r.Decimal
		}
	}
	return fallback
}
