package dto

import "github.com/noah-isme/academy-enrollment-api/internal/models"

// EnrollItem selects one offering to enroll into.
type EnrollItem struct {
	Type       models.OfferingType `json:"type" validate:"required,oneof=course package"`
	OfferingID string              `json:"offering_id" validate:"required,max=64"`
}

// EnrollRequest is a batch of offerings enrolled atomically.
type EnrollRequest struct {
	Items []EnrollItem `json:"items" validate:"required,min=1,max=20,dive"`
}

// SetEnrollmentStatusRequest is an admin decision on a pending enrollment.
type SetEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=aceptado rechazado cancelado"`
}

// EnrollResponse lists the receipts of a committed batch.
type EnrollResponse struct {
	Enrollments []models.EnrollmentReceipt `json:"enrollments"`
}
