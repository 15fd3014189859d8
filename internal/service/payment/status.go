// Package payment derives the tri-state payment status shared by
// appointments and dispensary bills.
package payment

import (
	"github.com/opdclinic/clinic-api/internal/model"
)

// Payable is the amount actually owed: amount minus discount, floored at
// zero so an over-discounted bill never goes negative.
func Payable(amount, discount float64) float64 {
	payable := amount - discount
	if payable < 0 {
		return 0
	}
	return payable
}

// Derive computes the payment status from money received versus money
// owed. Appointments pass paymentOnline+paymentOffline as paid;
// dispenses pass paidAmount against the bill total with discount already
// folded in.
//
// A zero payable with any payment counts as paid, so fully discounted
// visits settle immediately.
func Derive(paid, amount, discount float64) model.PaymentStatus {
	payable := Payable(amount, discount)

	switch {
	case paid <= 0:
		return model.PaymentStatusPending
	case paid < payable:
		return model.PaymentStatusPartial
	default:
		return model.PaymentStatusPaid
	}
}
