package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the authorization role carried by a principal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// User is a staff account stored in the users table. Students authenticate
// against the students table instead.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Principal is the authenticated caller as seen by the core.
type Principal struct {
	SubjectID string `json:"subject_id"`
	Role      Role   `json:"role"`
}

// IsAdmin reports whether the principal has the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	SubjectID string `json:"subject_id"`
	Role      Role   `json:"role"`
	Login     string `json:"login"`
	jwt.RegisteredClaims
}

// Principal converts the claims to the core's view of the caller.
func (c *JWTClaims) Principal() *Principal {
	if c == nil {
		return nil
	}
	return &Principal{SubjectID: c.SubjectID, Role: c.Role}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
