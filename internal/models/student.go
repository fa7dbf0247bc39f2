package models

import "time"

// Student represents a learner registered in the academy. DNI is the login identifier.
type Student struct {
	ID           string    `db:"id" json:"id"`
	DNI          string    `db:"dni" json:"dni"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	ParentName   *string   `db:"parent_name" json:"parent_name,omitempty"`
	ParentPhone  *string   `db:"parent_phone" json:"parent_phone,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}
