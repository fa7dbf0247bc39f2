package models

import (
	"fmt"
	"time"
)

// InstallmentStatus is the stored state of an installment. Paid is terminal.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	// InstallmentStatusOverdue is never stored; it is derived on read.
	InstallmentStatusOverdue InstallmentStatus = "overdue"
)

// PaymentPlan is the payment obligation opened for one enrollment.
type PaymentPlan struct {
	ID               string    `db:"id" json:"id"`
	EnrollmentID     string    `db:"enrollment_id" json:"enrollment_id"`
	TotalAmount      Money     `db:"total_amount_cents" json:"total_amount"`
	InstallmentCount int       `db:"installment_count" json:"installment_count"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Installment is one dated obligation within a payment plan.
type Installment struct {
	ID                     string            `db:"id" json:"id"`
	PaymentPlanID          string            `db:"payment_plan_id" json:"payment_plan_id"`
	Number                 int               `db:"installment_number" json:"installment_number"`
	Amount                 Money             `db:"amount_cents" json:"amount"`
	DueDate                time.Time         `db:"due_date" json:"due_date"`
	Status                 InstallmentStatus `db:"status" json:"status"`
	VoucherRef             *string           `db:"voucher_ref" json:"voucher_ref,omitempty"`
	VoucherSubmittedAt     *time.Time        `db:"voucher_submitted_at" json:"voucher_submitted_at,omitempty"`
	VoucherRejectedAt      *time.Time        `db:"voucher_rejected_at" json:"voucher_rejected_at,omitempty"`
	VoucherRejectionReason *string           `db:"voucher_rejection_reason" json:"voucher_rejection_reason,omitempty"`
	PaidAt                 *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
}

// Overdue reports whether the installment is unpaid past its due date.
func (i Installment) Overdue(today time.Time) bool {
	return i.Status == InstallmentStatusPending && DateOf(i.DueDate).Before(DateOf(today))
}

// EffectiveStatus folds the derived overdue flag into the status.
func (i Installment) EffectiveStatus(today time.Time) InstallmentStatus {
	if i.Overdue(today) {
		return InstallmentStatusOverdue
	}
	return i.Status
}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SchedulePolicy controls how a plan total is spread over installments.
type SchedulePolicy struct {
	Count        int
	FirstDueDays int
	IntervalDays int
}

// DefaultSchedulePolicy is a single installment due a week after enrollment.
var DefaultSchedulePolicy = SchedulePolicy{Count: 1, FirstDueDays: 7, IntervalDays: 30}

// Schedule builds the installments for a plan. Amounts are an even split with
// the remainder on the last installment; installment k is due
// FirstDueDays + (k-1)*IntervalDays days after today.
func (p SchedulePolicy) Schedule(planID string, total Money, today time.Time) ([]Installment, error) {
	if total < 0 {
		return nil, fmt.Errorf("negative plan total %s", total)
	}
	amounts, err := total.Split(p.Count)
	if err != nil {
		return nil, err
	}
	base := DateOf(today)
	installments := make([]Installment, len(amounts))
	for k, amount := range amounts {
		installments[k] = Installment{
			PaymentPlanID: planID,
			Number:        k + 1,
			Amount:        amount,
			DueDate:       base.AddDate(0, 0, p.FirstDueDays+k*p.IntervalDays),
			Status:        InstallmentStatusPending,
		}
	}
	return installments, nil
}

// InstallmentOwnership is the installment → plan → enrollment → student chain
// used for authorization and cascades.
type InstallmentOwnership struct {
	InstallmentID    string            `db:"installment_id"`
	PaymentPlanID    string            `db:"payment_plan_id"`
	EnrollmentID     string            `db:"enrollment_id"`
	StudentID        string            `db:"student_id"`
	Status           InstallmentStatus `db:"status"`
	VoucherRef       *string           `db:"voucher_ref"`
	EnrollmentStatus EnrollmentStatus  `db:"enrollment_status"`
}

// ApprovalResult describes the outcome of approving one installment.
type ApprovalResult struct {
	InstallmentID      string `json:"installment_id"`
	EnrollmentID       string `json:"enrollment_id"`
	PlanCompleted      bool   `json:"plan_completed"`
	EnrollmentAccepted bool   `json:"enrollment_accepted"`
}
