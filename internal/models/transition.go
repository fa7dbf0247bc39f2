package models

import "time"

// TransitionTrigger names what moved an enrollment between statuses.
type TransitionTrigger string

const (
	TriggerManualDecision TransitionTrigger = "manual_decision"
	TriggerSystemCascade  TransitionTrigger = "system_cascade"
)

// CascadeReason explains a system-driven transition.
type CascadeReason string

// CascadeAllInstallmentsPaid fires when the last pending installment of a plan is paid.
const CascadeAllInstallmentsPaid CascadeReason = "all_installments_paid"

// EnrollmentTransition is a request to move an enrollment out of pendiente.
type EnrollmentTransition interface {
	Trigger() TransitionTrigger
	Target() EnrollmentStatus
	// Actor is the admin behind the change, nil for system transitions.
	Actor() *string
	Source() DecisionSource
	Reason() string
}

// ManualDecision is an admin accepting, rejecting or cancelling an enrollment.
type ManualDecision struct {
	AdminID  string
	Decision EnrollmentStatus
}

func (d ManualDecision) Trigger() TransitionTrigger { return TriggerManualDecision }
func (d ManualDecision) Target() EnrollmentStatus   { return d.Decision }
func (d ManualDecision) Source() DecisionSource     { return DecisionSourceManual }
func (d ManualDecision) Reason() string             { return "admin_decision" }

func (d ManualDecision) Actor() *string {
	id := d.AdminID
	return &id
}

// SystemCascade is the automatic acceptance after a plan is fully paid.
type SystemCascade struct {
	Cause CascadeReason
}

func (c SystemCascade) Trigger() TransitionTrigger { return TriggerSystemCascade }
func (c SystemCascade) Target() EnrollmentStatus   { return EnrollmentStatusAccepted }
func (c SystemCascade) Actor() *string             { return nil }
func (c SystemCascade) Source() DecisionSource     { return DecisionSourceSystem }
func (c SystemCascade) Reason() string             { return string(c.Cause) }

// EnrollmentTransitionRecord is the append-only audit row for a status change.
type EnrollmentTransitionRecord struct {
	ID           string            `db:"id" json:"id"`
	EnrollmentID string            `db:"enrollment_id" json:"enrollment_id"`
	FromStatus   EnrollmentStatus  `db:"from_status" json:"from_status"`
	ToStatus     EnrollmentStatus  `db:"to_status" json:"to_status"`
	Trigger      TransitionTrigger `db:"trigger" json:"trigger"`
	ActorID      *string           `db:"actor_id" json:"actor_id,omitempty"`
	Reason       string            `db:"reason" json:"reason"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}
