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

type dispenseRepository struct {
	BaseRepository
}

func NewDispenseRepository(db *sqlx.DB) repository.DispenseRepository {
	return &dispenseRepository{BaseRepository: NewBaseRepository(db)}
}

const dispenseColumns = `
	id, patient_id, appointment_id, appointment_day, daily_token,
	subtotal, tax, discount, total, paid_amount, payment_status,
	bill_number, created_at, updated_at, deleted_at
`

func (r *dispenseRepository) Create(ctx context.Context, dispense *model.Dispense) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO dispenses (
				id, patient_id, appointment_id, appointment_day, daily_token,
				subtotal, tax, discount, total, paid_amount, payment_status,
				bill_number, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`
		now := time.Now()
		dispense.CreatedAt = now
		dispense.UpdatedAt = now

		_, err := r.ext(ctx).ExecContext(ctx, query,
			dispense.ID,
			dispense.PatientID,
			dispense.AppointmentID,
			dispense.AppointmentDay,
			dispense.DailyToken,
			dispense.Subtotal,
			dispense.Tax,
			dispense.Discount,
			dispense.Total,
			dispense.PaidAmount,
			dispense.PaymentStatus,
			dispense.BillNumber,
			dispense.CreatedAt,
			dispense.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create dispense: %w", err)
		}

		return r.insertItems(ctx, dispense.ID, dispense.Items)
	})
}

func (r *dispenseRepository) insertItems(ctx context.Context, dispenseID uuid.UUID, items []model.DispenseItem) error {
	query := `
		INSERT INTO dispense_items (
			id, dispense_id, name, strength, form, duration,
			quantity, unit_price, position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i := range items {
		item := &items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.DispenseID = dispenseID
		item.Position = i

		_, err := r.ext(ctx).ExecContext(ctx, query,
			item.ID,
			item.DispenseID,
			item.Name,
			item.Strength,
			item.Form,
			item.Duration,
			item.Quantity,
			item.UnitPrice,
			item.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert dispense item: %w", err)
		}
	}
	return nil
}

func (r *dispenseRepository) Get(ctx context.Context, id uuid.UUID) (*model.Dispense, error) {
	query := `
		SELECT ` + dispenseColumns + `
		FROM dispenses
		WHERE id = $1 AND deleted_at IS NULL
	`
	var dispense model.Dispense
	err := sqlx.GetContext(ctx, r.ext(ctx), &dispense, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get dispense: %w", err)
	}

	items, err := r.getItems(ctx, id)
	if err != nil {
		return nil, err
	}
	dispense.Items = items

	return &dispense, nil
}

func (r *dispenseRepository) getItems(ctx context.Context, dispenseID uuid.UUID) ([]model.DispenseItem, error) {
	query := `
		SELECT id, dispense_id, name, strength, form, duration,
			   quantity, unit_price, position
		FROM dispense_items
		WHERE dispense_id = $1
		ORDER BY position ASC
	`
	var items []model.DispenseItem
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, dispenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispense items: %w", err)
	}
	return items, nil
}

// Update rewrites the bill row and replaces its item list in one
// transaction.
func (r *dispenseRepository) Update(ctx context.Context, dispense *model.Dispense) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		query := `
			UPDATE dispenses
			SET subtotal = $1, tax = $2, discount = $3, total = $4,
				paid_amount = $5, payment_status = $6, bill_number = $7,
				updated_at = $8
			WHERE id = $9 AND deleted_at IS NULL
		`
		dispense.UpdatedAt = time.Now()

		result, err := r.ext(ctx).ExecContext(ctx, query,
			dispense.Subtotal,
			dispense.Tax,
			dispense.Discount,
			dispense.Total,
			dispense.PaidAmount,
			dispense.PaymentStatus,
			dispense.BillNumber,
			dispense.UpdatedAt,
			dispense.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update dispense: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrNoRows
		}

		if _, err := r.ext(ctx).ExecContext(ctx,
			`DELETE FROM dispense_items WHERE dispense_id = $1`, dispense.ID); err != nil {
			return fmt.Errorf("failed to clear dispense items: %w", err)
		}

		return r.insertItems(ctx, dispense.ID, dispense.Items)
	})
}

// UpdatePayment touches only the money fields; the item list is left
// alone.
func (r *dispenseRepository) UpdatePayment(ctx context.Context, dispense *model.Dispense) error {
	query := `
		UPDATE dispenses
		SET paid_amount = $1, payment_status = $2, bill_number = $3, updated_at = $4
		WHERE id = $5 AND deleted_at IS NULL
	`
	dispense.UpdatedAt = time.Now()

	result, err := r.ext(ctx).ExecContext(ctx, query,
		dispense.PaidAmount,
		dispense.PaymentStatus,
		dispense.BillNumber,
		dispense.UpdatedAt,
		dispense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update dispense payment: %w", err)
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

func (r *dispenseRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Dispense, error) {
	query := `
		SELECT ` + dispenseColumns + `
		FROM dispenses
		WHERE patient_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`
	var dispenses []*model.Dispense
	err := sqlx.SelectContext(ctx, r.ext(ctx), &dispenses, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispenses: %w", err)
	}

	for _, d := range dispenses {
		items, err := r.getItems(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		d.Items = items
	}

	return dispenses, nil
}
