package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type enrollmentTransitioner interface {
	TransitionTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.EnrollmentStatus, source models.DecisionSource, acceptedBy *string, acceptedAt *time.Time) (bool, error)
	InsertTransitionTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentTransitionRecord) error
}

// applyTransition is the single write path for enrollment status changes,
// shared by admin decisions and the payment cascade. It reports false when
// the enrollment was no longer in from.
func applyTransition(ctx context.Context, tx *sqlx.Tx, repo enrollmentTransitioner, enrollmentID string, from models.EnrollmentStatus, transition models.EnrollmentTransition, at time.Time) (bool, error) {
	to := transition.Target()
	if !models.CanTransition(from, to) {
		return false, nil
	}

	var acceptedBy *string
	var acceptedAt *time.Time
	if to == models.EnrollmentStatusAccepted {
		acceptedBy = transition.Actor()
		acceptedAt = &at
	}

	changed, err := repo.TransitionTx(ctx, tx, enrollmentID, from, to, transition.Source(), acceptedBy, acceptedAt)
	if err != nil {
		return false, internalError(err, "failed to update enrollment status")
	}
	if !changed {
		return false, nil
	}

	record := &models.EnrollmentTransitionRecord{
		EnrollmentID: enrollmentID,
		FromStatus:   from,
		ToStatus:     to,
		Trigger:      transition.Trigger(),
		ActorID:      transition.Actor(),
		Reason:       transition.Reason(),
		CreatedAt:    at,
	}
	if err := repo.InsertTransitionTx(ctx, tx, record); err != nil {
		return false, internalError(err, "failed to record enrollment transition")
	}
	return true, nil
}

// internalError keeps typed errors intact and wraps anything else as internal.
func internalError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
