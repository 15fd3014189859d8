package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opdclinic/clinic-api/internal/model"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		paid     float64
		amount   float64
		discount float64
		want     model.PaymentStatus
	}{
		{"nothing paid", 0, 100, 0, model.PaymentStatusPending},
		{"half paid", 50, 100, 0, model.PaymentStatusPartial},
		{"fully paid", 100, 100, 0, model.PaymentStatusPaid},
		{"overpaid against discounted payable", 100, 100, 20, model.PaymentStatusPaid},
		{"partial against discounted payable", 60, 100, 20, model.PaymentStatusPartial},
		{"exactly payable after discount", 80, 100, 20, model.PaymentStatusPaid},
		{"negative paid treated as pending", -5, 100, 0, model.PaymentStatusPending},
		{"discount exceeds amount, any payment settles", 1, 50, 80, model.PaymentStatusPaid},
		{"discount exceeds amount, nothing paid stays pending", 0, 50, 80, model.PaymentStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.paid, tt.amount, tt.discount))
		})
	}
}

func TestPayable(t *testing.T) {
	assert.Equal(t, 80.0, Payable(100, 20))
	assert.Equal(t, 0.0, Payable(50, 80))
	assert.Equal(t, 100.0, Payable(100, 0))
}
