package dto

import "github.com/noah-isme/academy-enrollment-api/internal/models"

// LoginRequest authenticates staff by username or students by DNI.
type LoginRequest struct {
	Login    string `json:"dni" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued access token.
type LoginResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresIn   int64            `json:"expires_in"`
	Principal   models.Principal `json:"user"`
}

// RegisterStudentRequest creates a student account.
type RegisterStudentRequest struct {
	DNI         string `json:"dni" validate:"required,numeric,min=8,max=12"`
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	ParentName  string `json:"parent_name" validate:"omitempty,max=150"`
	ParentPhone string `json:"parent_phone" validate:"omitempty,max=32"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
}

// ProvisionUserRequest creates or resets a staff account from the CLI.
type ProvisionUserRequest struct {
	Username string      `validate:"required,max=64"`
	Password string      `validate:"required,min=8,max=72"`
	Role     models.Role `validate:"required,oneof=admin teacher"`
}
