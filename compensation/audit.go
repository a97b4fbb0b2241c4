package compensation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/generic"
)

// Editable fields of a compensation.
const (
	FieldRegularHours = "regular_hours"
	FieldHolidayHours = "holiday_hours"
	FieldTotalMileage = "total_mileage"
)

// FieldAdjustmentType maps an editable field to its adjustment type.
// ok is false for fields that cannot be edited.
func FieldAdjustmentType(field string) (generic.AdjustmentType, bool) {
	switch field {
	case FieldRegularHours, FieldHolidayHours:
		return generic.AdjustmentHours, true
	case FieldTotalMileage:
		return generic.AdjustmentMileage, true
	}
	return "", false
}

// AuditWriter appends adjustment rows. Rows are never updated or deleted.
type AuditWriter struct {
	Clock generic.Clock
}

func NewAuditWriter(clock generic.Clock) *AuditWriter {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &AuditWriter{Clock: clock}
}

// RecordAdjustment appends one row with amount = newValue - oldValue.
// st is usually the transaction that applies the edit.
func (w *AuditWriter) RecordAdjustment(ctx context.Context, st generic.AuditStore, compID generic.CompensationID,
	field string, oldValue, newValue decimal.Decimal, userID, reason string) (*generic.CompensationAdjustment, error) {

	kind, ok := FieldAdjustmentType(field)
	if !ok {
		return nil, generic.Invalid("field", "%q is not editable", field)
	}
	adj := generic.CompensationAdjustment{
		ID:             generic.AdjustmentID(generic.NewID()),
		CompensationID: compID,
		AdjustedBy:     userID,
		FieldName:      field,
		OriginalValue:  oldValue,
		NewValue:       newValue,
		Amount:         newValue.Sub(oldValue),
		Reason:         reason,
		AdjustmentType: kind,
		CreatedAt:      w.Clock.Now(),
	}
	if err := st.AppendAdjustment(ctx, adj); err != nil {
		return nil, fmt.Errorf("append adjustment: %w", err)
	}
	return &adj, nil
}
