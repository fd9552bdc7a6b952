// Package lifecycle validates and applies every status-changing request.
// It is the only writer of a job's status.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/models"
	"github.com/avdeeva/fieldline/internal/pubsub"
	"github.com/avdeeva/fieldline/internal/store"
)

// technicianOnly lists the targets only the job's technician may request.
// cancelled is absent: either party may cancel.
var technicianOnly = map[models.Status]bool{
	models.StatusAccepted:   true,
	models.StatusRejected:   true,
	models.StatusArrived:    true,
	models.StatusInProgress: true,
	models.StatusCompleted:  true,
}

type TransitionRequest struct {
	JobID     uuid.UUID
	ActorID   uuid.UUID
	ActorRole models.Role
	Target    models.Status
	// Reason is required when Target is cancelled; By is overwritten with
	// the actor's role.
	Reason *models.CancellationReason
	// FinalPrice optionally attaches a settlement figure on completion.
	FinalPrice *float64
}

type Controller struct {
	store  store.Store
	broker pubsub.Broker
}

func NewController(s store.Store, b pubsub.Broker) *Controller {
	return &Controller{store: s, broker: b}
}

// Transition applies one edge of the job lifecycle graph. Re-issuing a
// transition that already applied returns the current job as a no-op
// success, so network retries cannot corrupt state.
func (c *Controller) Transition(ctx context.Context, req TransitionRequest) (*models.Job, error) {
	if !models.ValidStatus(req.Target) {
		return nil, common.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", req.Target)}
	}
	if req.Target == models.StatusPending {
		return nil, common.ValidationError{Field: "status", Message: "pending is not a transition target"}
	}

	job, err := c.store.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}

	if err := authorize(job, req); err != nil {
		return nil, err
	}

	// Already-applied transition: no-op success.
	if job.Status == req.Target {
		return job, nil
	}

	if !job.Status.CanTransitionTo(req.Target) {
		return nil, common.InvalidTransitionError{From: string(job.Status), To: string(req.Target)}
	}

	upd := store.StatusUpdate{}
	switch req.Target {
	case models.StatusCompleted:
		now := time.Now()
		upd.CompletedAt = &now
		upd.FinalPrice = req.FinalPrice
	case models.StatusCancelled:
		if req.Reason == nil || req.Reason.Code == "" {
			return nil, common.ValidationError{Field: "reason", Message: "cancellation requires a reason code"}
		}
		reason := *req.Reason
		reason.By = req.ActorRole
		upd.CancellationReason = &reason
	}

	updated, err := c.store.UpdateJobStatus(ctx, job.ID, job.Status, req.Target, upd)
	if errors.Is(err, common.ErrConflict) {
		// Lost a race: someone moved the job first. A duplicate of the same
		// transition is still a no-op success; anything else is off-graph
		// from where the job is now.
		current, getErr := c.store.GetJob(ctx, req.JobID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == req.Target {
			return current, nil
		}
		return nil, common.InvalidTransitionError{From: string(current.Status), To: string(req.Target)}
	}
	if err != nil {
		return nil, err
	}

	c.fanOut(ctx, updated)

	slog.Info("job transitioned",
		"job_id", updated.ID,
		"from", job.Status,
		"to", updated.Status,
		"actor_role", req.ActorRole)

	return updated, nil
}

func authorize(job *models.Job, req TransitionRequest) error {
	switch req.ActorRole {
	case models.RoleCustomer:
		if job.CustomerID != req.ActorID {
			return fmt.Errorf("actor is not the job's customer: %w", common.ErrForbidden)
		}
	case models.RoleTechnician:
		if job.TechnicianID != req.ActorID {
			return fmt.Errorf("actor is not the job's technician: %w", common.ErrForbidden)
		}
	default:
		return fmt.Errorf("role %s may not transition jobs: %w", req.ActorRole, common.ErrForbidden)
	}

	if technicianOnly[req.Target] && req.ActorRole != models.RoleTechnician {
		return fmt.Errorf("only the technician may set %s: %w", req.Target, common.ErrForbidden)
	}
	return nil
}

// fanOut publishes the post-transition job to every interested party:
// the customer's private feed (the one polled for an active job), the job's
// shared feed for chat/location consumers, and the admin broadcast. Delivery
// failures are logged and never roll back the mutation.
func (c *Controller) fanOut(ctx context.Context, job *models.Job) {
	publish := func(topic, event string) {
		if err := c.broker.Publish(ctx, topic, event, job); err != nil {
			slog.Warn("event delivery failed",
				"topic", topic, "event", event, "job_id", job.ID,
				"error", fmt.Errorf("%w: %w", common.ErrTransientDelivery, err))
		}
	}

	publish(pubsub.UserTopic(job.CustomerID), pubsub.EventJobUpdate)
	publish(pubsub.JobTopic(job.ID), pubsub.EventJobUpdate)
	publish(pubsub.AdminTopic, pubsub.EventJobStatusChange)
	if job.Status == models.StatusCancelled {
		publish(pubsub.AdminTopic, pubsub.EventJobCancelled)
	}
}

// AttachRating records the customer's rating of a completed job, at most
// once.
func (c *Controller) AttachRating(ctx context.Context, jobID, customerID uuid.UUID, rating int, review string) (*models.Job, error) {
	if rating < 1 || rating > 5 {
		return nil, common.ValidationError{Field: "rating", Message: "rating must be between 1 and 5"}
	}

	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != customerID {
		return nil, fmt.Errorf("actor is not the job's customer: %w", common.ErrForbidden)
	}

	updated, err := c.store.AttachRating(ctx, jobID, rating, review)
	if err != nil {
		return nil, err
	}

	if err := c.broker.Publish(ctx, pubsub.JobTopic(jobID), pubsub.EventJobUpdate, updated); err != nil {
		slog.Warn("event delivery failed", "topic", pubsub.JobTopic(jobID), "job_id", jobID, "error", err)
	}
	return updated, nil
}

// ListJobs is the active-job recovery path: a client calls it on
// mount/reload to find any job not in a terminal status, substituting for
// push events missed while disconnected.
func (c *Controller) ListJobs(ctx context.Context, userID uuid.UUID, role models.Role) ([]models.Job, error) {
	switch role {
	case models.RoleCustomer:
		return c.store.ListJobsByCustomer(ctx, userID)
	case models.RoleTechnician:
		return c.store.ListJobsByTechnician(ctx, userID)
	case models.RoleAdmin:
		return c.store.ListRecentJobs(ctx, 100)
	default:
		return nil, common.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
}
