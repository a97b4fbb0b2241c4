package compensation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
)

// Service owns the draft side of the lifecycle.
type Service struct {
	Store      generic.TxStore
	Calculator *Calculator
	Rates      *budget.RateResolver
	Audit      *AuditWriter
	Clock      generic.Clock
}

func NewService(store generic.TxStore, calc *Calculator, clock generic.Clock) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Service{
		Store:      store,
		Calculator: calc,
		Rates:      calc.Rates,
		Audit:      NewAuditWriter(clock),
		Clock:      clock,
	}
}

// Generate creates the draft compensation of staffID for period, or
// refreshes the figures of an existing draft or pending one. Approved and
// paid compensations are never recomputed.
func (s *Service) Generate(ctx context.Context, staffID generic.StaffID, period generic.Period) (*generic.StaffCompensation, error) {
	totals, err := s.Calculator.Calculate(ctx, staffID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	period = generic.NewPeriod(period.Start, period.End)
	now := s.Clock.Now()

	var out generic.StaffCompensation
	err = s.Store.WithTx(ctx, func(st generic.Store) error {
		existing, err := st.FindCompensation(ctx, staffID, period)
		switch {
		case generic.IsNotFound(err):
			out = generic.StaffCompensation{
				ID:          generic.CompensationID(generic.NewID()),
				StaffID:     staffID,
				PeriodStart: period.Start,
				PeriodEnd:   period.End,
				Status:      generic.StatusDraft,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			totals.Apply(&out)
			return st.CreateCompensation(ctx, out)
		case err != nil:
			return err
		}
		if !existing.Status.Editable() {
			return &generic.InvalidStateError{
				Action:  "regenerate",
				Current: string(existing.Status),
				Allowed: []string{string(generic.StatusDraft), string(generic.StatusPendingApproval)},
			}
		}
		out = *existing
		totals.Apply(&out)
		out.UpdatedAt = now
		return st.UpdateCompensationFigures(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"compensation_id": out.ID,
		"staff_id":        staffID,
		"period":          period.String(),
		"total":           out.TotalCompensation.StringFixed(2),
	}).Info("compensation generated")
	return &out, nil
}

// Submit moves a draft to pending approval.
func (s *Service) Submit(ctx context.Context, id generic.CompensationID) (*generic.StaffCompensation, error) {
	err := s.Store.TransitionCompensation(ctx, id, generic.StatusChange{
		From: []generic.CompensationStatus{generic.StatusDraft},
		To:   generic.StatusPendingApproval,
		At:   s.Clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	log.WithField("compensation_id", id).Info("compensation submitted")
	return s.Store.GetCompensation(ctx, id)
}

// PatchResult is the outcome of an inline edit.
type PatchResult struct {
	Compensation generic.StaffCompensation
	Adjustment   *generic.CompensationAdjustment // nil when nothing changed
}

// PatchField sets one of regular_hours, holiday_hours or total_mileage and
// recomputes the money fields from the stored figures and the staff member's
// current rates. An equal value is a no-op.
func (s *Service) PatchField(ctx context.Context, id generic.CompensationID, field string, value decimal.Decimal, userID, reason string) (*PatchResult, error) {
	if _, ok := FieldAdjustmentType(field); !ok {
		return nil, generic.Invalid("field", "%q is not editable (want %s, %s or %s)", field, FieldRegularHours, FieldHolidayHours, FieldTotalMileage)
	}
	if value.IsNegative() {
		return nil, generic.Invalid(field, "must not be negative, got %s", value)
	}

	var res PatchResult
	err := s.Store.WithTx(ctx, func(st generic.Store) error {
		c, err := st.GetCompensation(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.Editable() {
			return &generic.InvalidStateError{
				Action:  "edit",
				Current: string(c.Status),
				Allowed: []string{string(generic.StatusDraft), string(generic.StatusPendingApproval)},
			}
		}
		res.Compensation = *c

		t := TotalsOf(*c)
		var old decimal.Decimal
		switch field {
		case FieldRegularHours:
			old, t.RegularHours = t.RegularHours, value
		case FieldHolidayHours:
			old, t.HolidayHours = t.HolidayHours, value
		case FieldTotalMileage:
			old, t.TotalMileage = t.TotalMileage, value
		}
		if old.Equal(value) {
			return nil
		}

		staff, err := st.GetStaff(ctx, c.StaffID)
		if err != nil {
			return err
		}
		adj, err := s.Audit.RecordAdjustment(ctx, st, id, field, old, value, userID, reason)
		if err != nil {
			return err
		}
		res.Adjustment = adj

		t.Price(s.Rates.ResolveStaff(staff))
		t.Apply(&res.Compensation)
		res.Compensation.UpdatedAt = s.Clock.Now()
		return st.UpdateCompensationFigures(ctx, res.Compensation)
	})
	if err != nil {
		return nil, err
	}
	if res.Adjustment != nil {
		log.WithFields(log.Fields{
			"compensation_id": id,
			"field":           field,
			"from":            res.Adjustment.OriginalValue.String(),
			"to":              value.String(),
			"user":            userID,
		}).Info("compensation adjusted")
	}
	return &res, nil
}

// Adjustments lists the audit rows of a compensation.
func (s *Service) Adjustments(ctx context.Context, id generic.CompensationID) ([]generic.CompensationAdjustment, error) {
	if _, err := s.Store.GetCompensation(ctx, id); err != nil {
		return nil, err
	}
	adjs, err := s.Store.ListAdjustments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	return adjs, nil
}
