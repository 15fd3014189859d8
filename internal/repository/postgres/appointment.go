package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opdclinic/clinic-api/internal/model"
	"github.com/opdclinic/clinic-api/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: NewBaseRepository(db)}
}

const appointmentColumns = `
	id, patient_id, doctor_id, appointment_date, appointment_day,
	appointment_time, daily_token, status, amount, discount,
	payment_online, payment_offline, payment_status, notes,
	created_at, updated_at, deleted_at
`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, appointment_date, appointment_day,
			appointment_time, daily_token, status, amount, discount,
			payment_online, payment_offline, payment_status, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	now := time.Now()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	_, err := r.ext(ctx).ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.AppointmentDate,
		appointment.AppointmentDay,
		appointment.AppointmentTime,
		appointment.DailyToken,
		appointment.Status,
		appointment.Amount,
		appointment.Discount,
		appointment.PaymentOnline,
		appointment.PaymentOffline,
		appointment.PaymentStatus,
		appointment.Notes,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); errors.Is(mapped, repository.ErrUniqueViolation) {
			return mapped
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND deleted_at IS NULL
	`
	var appointment model.Appointment
	err := sqlx.GetContext(ctx, r.ext(ctx), &appointment, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET patient_id = $1, doctor_id = $2, appointment_date = $3,
			appointment_day = $4, appointment_time = $5, daily_token = $6,
			status = $7, amount = $8, discount = $9, payment_online = $10,
			payment_offline = $11, payment_status = $12, notes = $13,
			updated_at = $14
		WHERE id = $15 AND deleted_at IS NULL
	`
	appointment.UpdatedAt = time.Now()

	result, err := r.ext(ctx).ExecContext(ctx, query,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.AppointmentDate,
		appointment.AppointmentDay,
		appointment.AppointmentTime,
		appointment.DailyToken,
		appointment.Status,
		appointment.Amount,
		appointment.Discount,
		appointment.PaymentOnline,
		appointment.PaymentOffline,
		appointment.PaymentStatus,
		appointment.Notes,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); errors.Is(mapped, repository.ErrUniqueViolation) {
			return mapped
		}
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNoRows
	}

	return nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE appointments
		SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`
	result, err := r.ext(ctx).ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNoRows
	}

	return nil
}

func (r *appointmentRepository) ListByDay(ctx context.Context, day time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE appointment_day = $1 AND deleted_at IS NULL
		ORDER BY daily_token ASC
	`
	var appointments []*model.Appointment
	err := sqlx.SelectContext(ctx, r.ext(ctx), &appointments, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) CountForDay(ctx context.Context, day time.Time, excludeID *uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE appointment_day = $1 AND deleted_at IS NULL
	`
	args := []interface{}{day}

	if excludeID != nil {
		query += " AND id != $2"
		args = append(args, *excludeID)
	}

	var count int
	err := sqlx.GetContext(ctx, r.ext(ctx), &count, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments for day: %w", err)
	}
	return count, nil
}

func (r *appointmentRepository) HasSlotConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, slot string, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			AND appointment_date = $2
			AND appointment_time = $3
			AND status IN ('scheduled', 'confirmed')
			AND deleted_at IS NULL
	`
	args := []interface{}{doctorID, date, slot}

	if excludeID != nil {
		query += " AND id != $4"
		args = append(args, *excludeID)
	}

	query += ")"

	var hasConflict bool
	err := sqlx.GetContext(ctx, r.ext(ctx), &hasConflict, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to check slot conflict: %w", err)
	}
	return hasConflict, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	query := `
		UPDATE appointments
		SET status = $1, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`
	result, err := r.ext(ctx).ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNoRows
	}

	return nil
}
