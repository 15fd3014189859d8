package model

type Doctor struct {
	Base
	Name      string `db:"name" json:"name"`
	Specialty string `db:"specialty" json:"specialty,omitempty"`
	// Fee is the default consultation amount applied to a booking when
	// the caller does not supply one.
	Fee    float64 `db:"fee" json:"fee"`
	Status string  `db:"status" json:"status"`
}
