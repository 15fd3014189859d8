package model

import (
	"time"

	"github.com/google/uuid"
)

// DispenseItem is one prescribed line on a dispensary bill.
type DispenseItem struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DispenseID uuid.UUID `db:"dispense_id" json:"dispense_id"`
	Name       string    `db:"name" json:"name"`
	Strength   string    `db:"strength" json:"strength,omitempty"`
	Form       string    `db:"form" json:"form,omitempty"`
	Duration   string    `db:"duration" json:"duration,omitempty"`
	Quantity   int       `db:"quantity" json:"quantity"`
	UnitPrice  float64   `db:"unit_price" json:"unit_price"`
	Position   int       `db:"position" json:"position"`
}

// Dispense is a dispensary transaction (bill). The bill number is empty
// until the first payment moves the status out of pending, and immutable
// once set.
type Dispense struct {
	Base
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	AppointmentID  *uuid.UUID     `db:"appointment_id" json:"appointment_id,omitempty"`
	AppointmentDay *time.Time     `db:"appointment_day" json:"appointment_day,omitempty"`
	DailyToken     *int           `db:"daily_token" json:"daily_token,omitempty"`
	Items          []DispenseItem `db:"-" json:"items"`
	Subtotal       float64        `db:"subtotal" json:"subtotal"`
	Tax            float64        `db:"tax" json:"tax"`
	Discount       float64        `db:"discount" json:"discount"`
	Total          float64        `db:"total" json:"total"`
	PaidAmount     float64        `db:"paid_amount" json:"paid_amount"`
	PaymentStatus  PaymentStatus  `db:"payment_status" json:"payment_status"`
	BillNumber     string         `db:"bill_number" json:"bill_number,omitempty"`
}

// Cancelled reports whether the bill has reached its terminal state.
func (d *Dispense) Cancelled() bool {
	return d.PaymentStatus == PaymentStatusCancelled
}

type DispenseItemRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Strength  string  `json:"strength" validate:"max=50"`
	Form      string  `json:"form" validate:"max=50"`
	Duration  string  `json:"duration" validate:"max=100"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type CreateDispenseRequest struct {
	PatientID     uuid.UUID             `json:"patient_id" validate:"required"`
	AppointmentID *uuid.UUID            `json:"appointment_id"`
	Items         []DispenseItemRequest `json:"items" validate:"required,min=1,dive"`
	Tax           float64               `json:"tax" validate:"gte=0"`
	Discount      float64               `json:"discount" validate:"gte=0"`
}

type UpdateDispenseRequest struct {
	Items    []DispenseItemRequest `json:"items" validate:"required,min=1,dive"`
	Tax      *float64              `json:"tax" validate:"omitempty,gte=0"`
	Discount *float64              `json:"discount" validate:"omitempty,gte=0"`
}

type RecordPaymentRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}
