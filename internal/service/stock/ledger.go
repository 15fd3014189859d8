// Package stock adjusts medicine inventory in response to dispensary
// activity. The ledger never creates catalog records; EnsureMedicine is
// the separate master-data collaborator for that.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/opdclinic/clinic-api/internal/model"
	"github.com/opdclinic/clinic-api/internal/repository"
	"github.com/opdclinic/clinic-api/pkg/logger"
	"github.com/opdclinic/clinic-api/pkg/metrics"
)

// Ledger delta directions.
const (
	SignRestore = +1
	SignConsume = -1
)

type Ledger struct {
	medicines repository.MedicineRepository
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewLedger(medicines repository.MedicineRepository, l *logger.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{
		medicines: medicines,
		logger:    l,
		metrics:   m,
	}
}

// ApplyDelta adjusts stock by sign*quantity for each line item. Items
// resolve by exact (name, strength, form), falling back to a name-only
// match; items absent from the catalog are skipped, not failed. The
// store clamps stock at zero on consumption, so over-dispensing floors
// silently (a tolerated discrepancy, observed via metrics).
func (l *Ledger) ApplyDelta(ctx context.Context, items []model.DispenseItem, sign int) error {
	direction := "restore"
	if sign < 0 {
		direction = "consume"
	}

	for i := range items {
		item := &items[i]

		medicine, err := l.resolve(ctx, item)
		if err != nil {
			return err
		}
		if medicine == nil {
			l.metrics.StockAdjustmentsSkipped.Inc()
			l.logger.Warn("stock adjustment skipped, no catalog match",
				"name", item.Name,
				"strength", item.Strength,
				"form", item.Form,
			)
			continue
		}

		if err := l.medicines.AdjustStock(ctx, medicine.ID, sign*item.Quantity); err != nil {
			return fmt.Errorf("failed to adjust stock for %s: %w", item.Name, err)
		}
		l.metrics.StockAdjustmentsApplied.WithLabelValues(direction).Inc()
	}

	return nil
}

// Reconcile reverts the complete old item list before consuming any of
// the new one. Ordering matters: interleaving the passes double-counts
// overlapping items.
func (l *Ledger) Reconcile(ctx context.Context, oldItems, newItems []model.DispenseItem) error {
	if err := l.ApplyDelta(ctx, oldItems, SignRestore); err != nil {
		return err
	}
	return l.ApplyDelta(ctx, newItems, SignConsume)
}

// EnsureMedicine lazily creates the master catalog record for an item
// that is prescribed before it was cataloged. Idempotent on the
// (name, strength, form) natural key; existing stock is never touched.
func (l *Ledger) EnsureMedicine(ctx context.Context, name, strength, form string, initialStock int) (*model.Medicine, error) {
	medicine := &model.Medicine{
		Name:     name,
		Strength: strength,
		Form:     form,
		Stock:    initialStock,
	}
	if err := l.medicines.Upsert(ctx, medicine); err != nil {
		return nil, fmt.Errorf("failed to ensure medicine: %w", err)
	}
	return medicine, nil
}

func (l *Ledger) resolve(ctx context.Context, item *model.DispenseItem) (*model.Medicine, error) {
	medicine, err := l.medicines.FindExact(ctx, item.Name, item.Strength, item.Form)
	if err == nil {
		return medicine, nil
	}
	if !errors.Is(err, repository.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve medicine: %w", err)
	}

	medicine, err = l.medicines.FindByName(ctx, item.Name)
	if err == nil {
		return medicine, nil
	}
	if !errors.Is(err, repository.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve medicine by name: %w", err)
	}

	return nil, nil
}
