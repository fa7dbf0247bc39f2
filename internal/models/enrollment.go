package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "pendiente"
	EnrollmentStatusAccepted  EnrollmentStatus = "aceptado"
	EnrollmentStatusRejected  EnrollmentStatus = "rechazado"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelado"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusAccepted, EnrollmentStatusRejected, EnrollmentStatusCancelled:
		return true
	}
	return false
}

// IsDecision reports whether s can be the target of an admin decision.
func (s EnrollmentStatus) IsDecision() bool {
	return s == EnrollmentStatusAccepted || s == EnrollmentStatusRejected || s == EnrollmentStatusCancelled
}

// CanTransition reports whether an enrollment may move from one status to another.
// Only pending enrollments are ever decided; decided ones never move again.
func CanTransition(from, to EnrollmentStatus) bool {
	return from == EnrollmentStatusPending && to.IsDecision()
}

// OfferingType discriminates course and package enrollments.
type OfferingType string

const (
	OfferingTypeCourse  OfferingType = "course"
	OfferingTypePackage OfferingType = "package"
)

// Valid reports whether t is a supported offering type.
func (t OfferingType) Valid() bool {
	return t == OfferingTypeCourse || t == OfferingTypePackage
}

// DecisionSource records who accepted an enrollment.
type DecisionSource string

const (
	DecisionSourceManual DecisionSource = "manual"
	DecisionSourceSystem DecisionSource = "system"
)

// Enrollment captures a student's registration to exactly one course or package offering.
type Enrollment struct {
	ID                string           `db:"id" json:"id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	CourseOfferingID  *string          `db:"course_offering_id" json:"course_offering_id,omitempty"`
	PackageOfferingID *string          `db:"package_offering_id" json:"package_offering_id,omitempty"`
	Type              OfferingType     `db:"enrollment_type" json:"type"`
	Status            EnrollmentStatus `db:"status" json:"status"`
	DecisionSource    *DecisionSource  `db:"decision_source" json:"decision_source,omitempty"`
	AcceptedBy        *string          `db:"accepted_by" json:"accepted_by,omitempty"`
	AcceptedAt        *time.Time       `db:"accepted_at" json:"accepted_at,omitempty"`
	RegisteredAt      time.Time        `db:"registered_at" json:"registered_at"`
}

// OfferingID returns whichever offering reference is set.
func (e Enrollment) OfferingID() string {
	if e.Type == OfferingTypePackage && e.PackageOfferingID != nil {
		return *e.PackageOfferingID
	}
	if e.CourseOfferingID != nil {
		return *e.CourseOfferingID
	}
	if e.PackageOfferingID != nil {
		return *e.PackageOfferingID
	}
	return ""
}

// NewEnrollment builds a pending enrollment pointing at the offering column matching its type.
func NewEnrollment(id, studentID string, offeringType OfferingType, offeringID string, registeredAt time.Time) Enrollment {
	e := Enrollment{
		ID:           id,
		StudentID:    studentID,
		Type:         offeringType,
		Status:       EnrollmentStatusPending,
		RegisteredAt: registeredAt,
	}
	ref := offeringID
	if offeringType == OfferingTypePackage {
		e.PackageOfferingID = &ref
	} else {
		e.CourseOfferingID = &ref
	}
	return e
}

// EnrollmentReceipt summarises one enrollment created by a batch.
type EnrollmentReceipt struct {
	EnrollmentID   string       `json:"enrollment_id"`
	PaymentPlanID  string       `json:"payment_plan_id"`
	InstallmentID  string       `json:"installment_id"`
	InstallmentIDs []string     `json:"installment_ids"`
	Type           OfferingType `json:"type"`
	OfferingID     string       `json:"offering_id"`
	Amount         Money        `json:"amount"`
}
