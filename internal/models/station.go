package models

import "time"

// Station is a police station cases are routed to and officers are scoped to.
type Station struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	City      string    `db:"city" json:"city"`
	State     string    `db:"state" json:"state"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	Address   string    `db:"address" json:"address"`
	InCharge  string    `db:"in_charge" json:"in_charge"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
