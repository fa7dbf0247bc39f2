package models

import "time"

// Offering is a concrete, sellable instance of a course or package in a cycle.
type Offering struct {
	ID            string       `db:"id" json:"id"`
	Type          OfferingType `db:"-" json:"type"`
	ItemID        string       `db:"item_id" json:"item_id"`
	CycleID       *string      `db:"cycle_id" json:"cycle_id,omitempty"`
	GroupLabel    *string      `db:"group_label" json:"group_label,omitempty"`
	PriceOverride *Money       `db:"price_override_cents" json:"price_override,omitempty"`
	Capacity      *int         `db:"capacity" json:"capacity,omitempty"`
}

// Cycle is an academic period offerings belong to.
type Cycle struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
}
