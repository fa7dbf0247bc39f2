package models

import "time"

// Notification types and delivery statuses.
const (
	NotificationTypePayment   = "payment"
	NotificationStatusPending = "pending"
)

// NotificationRecord is an append-only log entry of a message addressed to a parent.
type NotificationRecord struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	ParentPhone string    `db:"parent_phone" json:"parent_phone"`
	Type        string    `db:"type" json:"type"`
	Message     string    `db:"message" json:"message"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// PaymentNotification is the payload dispatched after an installment is approved.
type PaymentNotification struct {
	StudentID     string
	EnrollmentID  string
	InstallmentID string
}
