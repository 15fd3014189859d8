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

type medicineRepository struct {
	BaseRepository
}

func NewMedicineRepository(db *sqlx.DB) repository.MedicineRepository {
	return &medicineRepository{BaseRepository: NewBaseRepository(db)}
}

const medicineColumns = `
	id, name, strength, form, stock, created_at, updated_at, deleted_at
`

func (r *medicineRepository) Get(ctx context.Context, id uuid.UUID) (*model.Medicine, error) {
	query := `
		SELECT ` + medicineColumns + `
		FROM medicines
		WHERE id = $1 AND deleted_at IS NULL
	`
	var medicine model.Medicine
	err := sqlx.GetContext(ctx, r.ext(ctx), &medicine, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get medicine: %w", err)
	}
	return &medicine, nil
}

func (r *medicineRepository) List(ctx context.Context) ([]*model.Medicine, error) {
	query := `
		SELECT ` + medicineColumns + `
		FROM medicines
		WHERE deleted_at IS NULL
		ORDER BY name, strength, form
	`
	var medicines []*model.Medicine
	err := sqlx.SelectContext(ctx, r.ext(ctx), &medicines, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list medicines: %w", err)
	}
	return medicines, nil
}

func (r *medicineRepository) FindExact(ctx context.Context, name, strength, form string) (*model.Medicine, error) {
	query := `
		SELECT ` + medicineColumns + `
		FROM medicines
		WHERE name = $1 AND strength = $2 AND form = $3 AND deleted_at IS NULL
	`
	var medicine model.Medicine
	err := sqlx.GetContext(ctx, r.ext(ctx), &medicine, query, name, strength, form)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoRows
		}
		return nil, fmt.Errorf("failed to find medicine: %w", err)
	}
	return &medicine, nil
}

func (r *medicineRepository) FindByName(ctx context.Context, name string) (*model.Medicine, error) {
	query := `
		SELECT ` + medicineColumns + `
		FROM medicines
		WHERE name = $1 AND deleted_at IS NULL
		ORDER BY strength, form
		LIMIT 1
	`
	var medicine model.Medicine
	err := sqlx.GetContext(ctx, r.ext(ctx), &medicine, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoRows
		}
		return nil, fmt.Errorf("failed to find medicine by name: %w", err)
	}
	return &medicine, nil
}

// AdjustStock applies a signed delta clamped at zero on the way down, so
// over-consumption floors rather than going negative.
func (r *medicineRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) error {
	query := `
		UPDATE medicines
		SET stock = GREATEST(0, stock + $1), updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`
	result, err := r.ext(ctx).ExecContext(ctx, query, delta, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
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

// Upsert is the idempotent ensure-master write keyed on the natural key.
// Stock is only seeded on insert, never overwritten.
func (r *medicineRepository) Upsert(ctx context.Context, medicine *model.Medicine) error {
	query := `
		INSERT INTO medicines (id, name, strength, form, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (name, strength, form) WHERE deleted_at IS NULL
		DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id, stock, created_at
	`
	if medicine.ID == uuid.Nil {
		medicine.ID = uuid.New()
	}
	now := time.Now()
	medicine.UpdatedAt = now

	row := r.ext(ctx).QueryRowxContext(ctx, query,
		medicine.ID,
		medicine.Name,
		medicine.Strength,
		medicine.Form,
		medicine.Stock,
		now,
	)
	if err := row.Scan(&medicine.ID, &medicine.Stock, &medicine.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert medicine: %w", err)
	}
	return nil
}
