package model

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

type Patient struct {
	Base
	Name   string        `db:"name" json:"name"`
	Phone  string        `db:"phone" json:"phone,omitempty"`
	Email  string        `db:"email" json:"email,omitempty"`
	Status PatientStatus `db:"status" json:"status"`
}
