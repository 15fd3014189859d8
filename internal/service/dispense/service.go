// Package dispense implements the dispensary bill lifecycle:
// pending <-> {partial, paid} -> cancelled, with stock reconciled on
// every mutation and the bill number assigned lazily on first payment.
package dispense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opdclinic/clinic-api/internal/model"
	"github.com/opdclinic/clinic-api/internal/repository"
	"github.com/opdclinic/clinic-api/internal/service/event"
	"github.com/opdclinic/clinic-api/internal/service/payment"
	"github.com/opdclinic/clinic-api/internal/service/stock"
	apperrors "github.com/opdclinic/clinic-api/pkg/errors"
	"github.com/opdclinic/clinic-api/pkg/logger"
	"github.com/opdclinic/clinic-api/pkg/metrics"
)

type Service struct {
	repo         repository.DispenseRepository
	appointments repository.AppointmentRepository
	patients     repository.PatientRepository
	ledger       *stock.Ledger
	events       *event.Service
	tx           repository.Transactor
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewService(
	repo repository.DispenseRepository,
	appointments repository.AppointmentRepository,
	patients repository.PatientRepository,
	ledger *stock.Ledger,
	events *event.Service,
	tx repository.Transactor,
	l *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		patients:     patients,
		ledger:       ledger,
		events:       events,
		tx:           tx,
		logger:       l,
		metrics:      m,
		now:          time.Now,
	}
}

// Create opens a bill in pending state with nothing paid and no bill
// number, consumes stock, and emits dispense.created through the outbox
// inside the same transaction as the bill row.
func (s *Service) Create(ctx context.Context, req *model.CreateDispenseRequest) (*model.Dispense, error) {
	d := &model.Dispense{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		Items:         buildItems(req.Items),
		Tax:           req.Tax,
		Discount:      req.Discount,
		PaymentStatus: model.PaymentStatusPending,
	}
	d.ID = uuid.New()
	d.Subtotal, d.Total = computeTotals(d.Items, d.Tax, d.Discount)

	if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	if req.AppointmentID != nil {
		apt, err := s.appointments.Get(ctx, *req.AppointmentID)
		if err != nil {
			if errors.Is(err, repository.ErrNoRows) {
				return nil, apperrors.NotFound("appointment", err)
			}
			return nil, fmt.Errorf("failed to get appointment: %w", err)
		}
		day := apt.AppointmentDay
		token := apt.DailyToken
		d.AppointmentDay = &day
		d.DailyToken = &token
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.ApplyDelta(ctx, d.Items, stock.SignConsume); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, d); err != nil {
			return err
		}
		return s.events.Emit(ctx, model.EventDispenseCreated, &model.DispenseCreatedEvent{
			DispenseID:    d.ID,
			AppointmentID: d.AppointmentID,
			PatientID:     d.PatientID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DispenseTransitions.WithLabelValues(string(model.PaymentStatusPending)).Inc()
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Dispense, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, apperrors.NotFound("dispense", err)
		}
		return nil, fmt.Errorf("failed to get dispense: %w", err)
	}
	return d, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Dispense, error) {
	dispenses, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispenses: %w", err)
	}
	return dispenses, nil
}

// RecordPayment collects money against a live bill. paidAmount only ever
// grows; the first payment that moves the status out of pending assigns
// the bill number, which is immutable afterwards.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, amount float64) (*model.Dispense, error) {
	if amount <= 0 {
		return nil, apperrors.BadRequest("payment amount must be positive", nil)
	}

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Cancelled() {
		return nil, apperrors.InvalidStateTransition("cannot record payment on a cancelled dispense")
	}

	d.PaidAmount += amount
	d.PaymentStatus = payment.Derive(d.PaidAmount, d.Total, 0)

	if d.PaymentStatus != model.PaymentStatusPending && d.BillNumber == "" {
		d.BillNumber = generateBillNumber(d.ID, s.now())
	}

	if err := s.repo.UpdatePayment(ctx, d); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, apperrors.NotFound("dispense", err)
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.metrics.DispenseTransitions.WithLabelValues(string(d.PaymentStatus)).Inc()
	return d, nil
}

// Update replaces the item list and tax/discount on a live bill. Stock
// is reconciled revert-then-reapply: the old list is restored in full
// before the new list is consumed, so overlapping items are not
// double-counted. The status is re-derived from the money already paid
// against the new total.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateDispenseRequest) (*model.Dispense, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Cancelled() {
		return nil, apperrors.InvalidStateTransition("cannot update a cancelled dispense")
	}

	oldItems := d.Items

	d.Items = buildItems(req.Items)
	if req.Tax != nil {
		d.Tax = *req.Tax
	}
	if req.Discount != nil {
		d.Discount = *req.Discount
	}
	d.Subtotal, d.Total = computeTotals(d.Items, d.Tax, d.Discount)
	d.PaymentStatus = payment.Derive(d.PaidAmount, d.Total, 0)

	if d.PaymentStatus != model.PaymentStatusPending && d.BillNumber == "" {
		d.BillNumber = generateBillNumber(d.ID, s.now())
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.Reconcile(ctx, oldItems, d.Items); err != nil {
			return err
		}
		return s.repo.Update(ctx, d)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, apperrors.NotFound("dispense", err)
		}
		return nil, err
	}

	s.metrics.DispenseTransitions.WithLabelValues(string(d.PaymentStatus)).Inc()
	return d, nil
}

// Cancel is one-shot: a second cancel fails. Stock is restored in a
// single pass and paidAmount is left untouched as a historical record.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*model.Dispense, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Cancelled() {
		return nil, apperrors.InvalidStateTransition("dispense is already cancelled")
	}

	d.PaymentStatus = model.PaymentStatusCancelled

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.ApplyDelta(ctx, d.Items, stock.SignRestore); err != nil {
			return err
		}
		if err := s.repo.UpdatePayment(ctx, d); err != nil {
			return err
		}
		return s.events.Emit(ctx, model.EventDispenseCancelled, &model.DispenseCreatedEvent{
			DispenseID:    d.ID,
			AppointmentID: d.AppointmentID,
			PatientID:     d.PatientID,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, apperrors.NotFound("dispense", err)
		}
		return nil, err
	}

	s.metrics.DispenseTransitions.WithLabelValues(string(model.PaymentStatusCancelled)).Inc()
	return d, nil
}

func buildItems(reqs []model.DispenseItemRequest) []model.DispenseItem {
	items := make([]model.DispenseItem, 0, len(reqs))
	for i, r := range reqs {
		items = append(items, model.DispenseItem{
			ID:        uuid.New(),
			Name:      r.Name,
			Strength:  r.Strength,
			Form:      r.Form,
			Duration:  r.Duration,
			Quantity:  r.Quantity,
			UnitPrice: r.UnitPrice,
			Position:  i,
		})
	}
	return items
}

// computeTotals derives subtotal and total = max(0, subtotal+tax-discount).
func computeTotals(items []model.DispenseItem, tax, discount float64) (subtotal, total float64) {
	for _, item := range items {
		subtotal += float64(item.Quantity) * item.UnitPrice
	}
	total = subtotal + tax - discount
	if total < 0 {
		total = 0
	}
	return subtotal, total
}
