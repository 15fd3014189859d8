package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled             AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed             AppointmentStatus = "confirmed"
	AppointmentStatusInProgress            AppointmentStatus = "in_progress"
	AppointmentStatusCompleted             AppointmentStatus = "completed"
	AppointmentStatusCancelled             AppointmentStatus = "cancelled"
	AppointmentStatusNoShow                AppointmentStatus = "no_show"
	AppointmentStatusPrescriptionDispensed AppointmentStatus = "prescription_dispensed"
)

// Blocking reports whether an appointment in this status holds its
// doctor/date/time slot against new bookings.
func (s AppointmentStatus) Blocking() bool {
	return s == AppointmentStatusScheduled || s == AppointmentStatusConfirmed
}

type Appointment struct {
	Base
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	AppointmentDate time.Time         `db:"appointment_date" json:"appointment_date"`
	AppointmentDay  time.Time         `db:"appointment_day" json:"appointment_day"`
	AppointmentTime string            `db:"appointment_time" json:"appointment_time"`
	DailyToken      int               `db:"daily_token" json:"daily_token"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Amount          float64           `db:"amount" json:"amount"`
	Discount        float64           `db:"discount" json:"discount"`
	PaymentOnline   float64           `db:"payment_online" json:"payment_online"`
	PaymentOffline  float64           `db:"payment_offline" json:"payment_offline"`
	PaymentStatus   PaymentStatus     `db:"payment_status" json:"payment_status"`
	Notes           string            `db:"notes" json:"notes,omitempty"`
}

// Paid is the total money received for the appointment.
func (a *Appointment) Paid() float64 {
	return a.PaymentOnline + a.PaymentOffline
}

type CreateAppointmentRequest struct {
	PatientID       uuid.UUID `json:"patient_id" validate:"required"`
	DoctorID        uuid.UUID `json:"doctor_id" validate:"required"`
	AppointmentDate time.Time `json:"appointment_date" validate:"required"`
	AppointmentTime string    `json:"appointment_time" validate:"required,hhmm"`
	Amount          *float64  `json:"amount" validate:"omitempty,gte=0"`
	Discount        float64   `json:"discount" validate:"gte=0"`
	PaymentOnline   float64   `json:"payment_online" validate:"gte=0"`
	PaymentOffline  float64   `json:"payment_offline" validate:"gte=0"`
	Notes           string    `json:"notes" validate:"max=1000"`
}

// UpdateAppointmentRequest carries a partial change set; nil fields are
// left untouched.
type UpdateAppointmentRequest struct {
	DoctorID        *uuid.UUID `json:"doctor_id"`
	AppointmentDate *time.Time `json:"appointment_date"`
	AppointmentTime *string    `json:"appointment_time" validate:"omitempty,hhmm"`
	Amount          *float64   `json:"amount" validate:"omitempty,gte=0"`
	Discount        *float64   `json:"discount" validate:"omitempty,gte=0"`
	PaymentOnline   *float64   `json:"payment_online" validate:"omitempty,gte=0"`
	PaymentOffline  *float64   `json:"payment_offline" validate:"omitempty,gte=0"`
	Notes           *string    `json:"notes" validate:"omitempty,max=1000"`
}
