package model

// Medicine is a master catalog record. The (name, strength, form) triple
// is its natural key; stock is mutated only through the stock ledger.
type Medicine struct {
	Base
	Name     string `db:"name" json:"name"`
	Strength string `db:"strength" json:"strength,omitempty"`
	Form     string `db:"form" json:"form,omitempty"`
	Stock    int    `db:"stock" json:"stock"`
}

type EnsureMedicineRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Strength string `json:"strength" validate:"max=50"`
	Form     string `json:"form" validate:"max=50"`
	Stock    int    `json:"stock" validate:"gte=0"`
}

type AdjustStockRequest struct {
	Delta int `json:"delta" validate:"required"`
}
