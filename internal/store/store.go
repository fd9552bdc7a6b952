// Package store holds canonical job records and performs atomic, guarded
// status transitions. Two implementations share the Store interface: a
// Postgres store (pgx) for production and an in-memory store for tests and
// single-node development.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/models"
)

// StatusUpdate carries the fields that may be written together with a
// status change. Every field is optional; nil means "leave unchanged".
type StatusUpdate struct {
	CompletedAt        *time.Time
	FinalPrice         *float64
	CancellationReason *models.CancellationReason
}

type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)

	// UpdateJobStatus is the single compare-and-set on a job's status: the
	// write applies only if the job is still in from. On a miss it returns
	// common.ErrConflict (job exists, status moved) or common.ErrJobNotFound.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, from, to models.Status, upd StatusUpdate) (*models.Job, error)

	// ActiveJobForCustomer returns the customer's job in a non-terminal
	// status, or nil when there is none.
	ActiveJobForCustomer(ctx context.Context, customerID uuid.UUID) (*models.Job, error)

	// TechnicianBusy reports whether the technician holds a job in
	// accepted, arrived or in_progress.
	TechnicianBusy(ctx context.Context, technicianID uuid.UUID) (bool, error)

	ListJobsByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Job, error)
	ListJobsByTechnician(ctx context.Context, technicianID uuid.UUID) ([]models.Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]models.Job, error)

	// AttachRating sets rating/review once, only on a completed job.
	// Returns common.ErrValidation when the job is not completed and
	// common.ErrConflict when a rating already exists.
	AttachRating(ctx context.Context, jobID uuid.UUID, rating int, review string) (*models.Job, error)

	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, jobID uuid.UUID) ([]models.Message, error)

	CreateAttachment(ctx context.Context, att *models.Attachment) error
	ListAttachments(ctx context.Context, jobID uuid.UUID) ([]models.Attachment, error)
}
