package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opdclinic/clinic-api/internal/model"
)

// ErrUniqueViolation is returned by writes that lost a race on a store
// uniqueness constraint, e.g. the (appointment_day, daily_token) index.
// It is the authoritative signal the token allocator retries on.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrNoRows is returned by lookups that matched nothing.
var ErrNoRows = errors.New("no rows found")

// Transactor runs fn inside a single store transaction. Repository calls
// made with the ctx passed to fn join that transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// All repository interfaces in one file
type (
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		Delete(ctx context.Context, id uuid.UUID) error
		ListByDay(ctx context.Context, day time.Time) ([]*model.Appointment, error)
		// CountForDay counts non-deleted appointments on the truncated day,
		// excluding the given identity when reallocating for an update.
		CountForDay(ctx context.Context, day time.Time, excludeID *uuid.UUID) (int, error)
		// HasSlotConflict reports a live booking for the same doctor, exact
		// date and HH:MM slot.
		HasSlotConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, slot string, excludeID *uuid.UUID) (bool, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error
	}

	DispenseRepository interface {
		Create(ctx context.Context, dispense *model.Dispense) error
		Get(ctx context.Context, id uuid.UUID) (*model.Dispense, error)
		Update(ctx context.Context, dispense *model.Dispense) error
		UpdatePayment(ctx context.Context, dispense *model.Dispense) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Dispense, error)
	}

	MedicineRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Medicine, error)
		List(ctx context.Context) ([]*model.Medicine, error)
		// FindExact matches on the (name, strength, form) natural key;
		// FindByName is the ledger's fallback. Both return ErrNoRows when
		// nothing matches.
		FindExact(ctx context.Context, name, strength, form string) (*model.Medicine, error)
		FindByName(ctx context.Context, name string) (*model.Medicine, error)
		// AdjustStock applies a signed delta, clamped at zero downward.
		AdjustStock(ctx context.Context, id uuid.UUID, delta int) error
		Upsert(ctx context.Context, medicine *model.Medicine) error
	}

	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	DoctorRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
	}
)
