package models

import "time"

// EnrollmentFilter enumerates every supported criterion for enrollment listings.
// Zero values mean "no restriction".
type EnrollmentFilter struct {
	StudentID string
	CycleID   string
	Status    EnrollmentStatus
	Type      OfferingType
}

// InstallmentFilter enumerates the criteria of the admin installment report.
// Status accepts pending, paid or the derived overdue.
type InstallmentFilter struct {
	Status    InstallmentStatus
	CycleID   string
	StudentID string
	DueFrom   *time.Time
	DueTo     *time.Time
	Page      int
	PageSize  int
}

// EnrollmentView is the read projection of an enrollment with catalog context.
type EnrollmentView struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	StudentName    string           `db:"student_name" json:"student_name"`
	StudentDNI     string           `db:"student_dni" json:"student_dni"`
	Type           OfferingType     `db:"enrollment_type" json:"type"`
	OfferingID     string           `db:"offering_id" json:"offering_id"`
	ItemID         string           `db:"item_id" json:"item_id"`
	ItemName       string           `db:"item_name" json:"item_name"`
	GroupLabel     *string          `db:"group_label" json:"group_label,omitempty"`
	Price          Money            `db:"price_cents" json:"price"`
	CycleID        *string          `db:"cycle_id" json:"cycle_id,omitempty"`
	CycleName      *string          `db:"cycle_name" json:"cycle_name,omitempty"`
	CycleStartDate *time.Time       `db:"cycle_start_date" json:"cycle_start_date,omitempty"`
	CycleEndDate   *time.Time       `db:"cycle_end_date" json:"cycle_end_date,omitempty"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	DecisionSource *DecisionSource  `db:"decision_source" json:"decision_source,omitempty"`
	AcceptedBy     *string          `db:"accepted_by" json:"accepted_by,omitempty"`
	AcceptedAt     *time.Time       `db:"accepted_at" json:"accepted_at,omitempty"`
	RegisteredAt   time.Time        `db:"registered_at" json:"registered_at"`
	Plan           *PaymentPlanView `db:"-" json:"payment_plan,omitempty"`
}

// PaymentPlanView is a plan with its ordered installments and running totals.
type PaymentPlanView struct {
	PaymentPlan
	PaidAmount        Money             `json:"paid_amount"`
	OutstandingAmount Money             `json:"outstanding_amount"`
	Installments      []InstallmentView `json:"installments"`
}

// InstallmentView adds the read-time overdue derivation to an installment.
type InstallmentView struct {
	Installment
	Overdue         bool              `json:"overdue"`
	EffectiveStatus InstallmentStatus `json:"effective_status"`
}

// NewInstallmentView derives overdue state relative to today.
func NewInstallmentView(inst Installment, today time.Time) InstallmentView {
	return InstallmentView{
		Installment:     inst,
		Overdue:         inst.Overdue(today),
		EffectiveStatus: inst.EffectiveStatus(today),
	}
}

// NewPaymentPlanView assembles a plan view with paid and outstanding totals.
// Installments are kept in the order given.
func NewPaymentPlanView(plan PaymentPlan, installments []Installment, today time.Time) *PaymentPlanView {
	view := &PaymentPlanView{PaymentPlan: plan, Installments: make([]InstallmentView, 0, len(installments))}
	for _, inst := range installments {
		if inst.Status == InstallmentStatusPaid {
			view.PaidAmount += inst.Amount
		} else {
			view.OutstandingAmount += inst.Amount
		}
		view.Installments = append(view.Installments, NewInstallmentView(inst, today))
	}
	return view
}

// InstallmentReportRow is one line of the admin installment report.
type InstallmentReportRow struct {
	Installment
	EnrollmentID     string            `db:"enrollment_id" json:"enrollment_id"`
	EnrollmentStatus EnrollmentStatus  `db:"enrollment_status" json:"enrollment_status"`
	StudentID        string            `db:"student_id" json:"student_id"`
	StudentName      string            `db:"student_name" json:"student_name"`
	StudentDNI       string            `db:"student_dni" json:"student_dni"`
	ParentPhone      *string           `db:"parent_phone" json:"parent_phone,omitempty"`
	ItemName         string            `db:"item_name" json:"item_name"`
	CycleID          *string           `db:"cycle_id" json:"cycle_id,omitempty"`
	CycleName        *string           `db:"cycle_name" json:"cycle_name,omitempty"`
	Overdue          bool              `db:"-" json:"overdue"`
	EffectiveStatus  InstallmentStatus `db:"-" json:"effective_status"`
}
