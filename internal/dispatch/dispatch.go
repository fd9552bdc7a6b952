// Package dispatch routes a new booking request to its target technician:
// it creates the job record, decides between immediate notification and
// queuing behind the technician's current job, and emits the notification
// event.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/models"
	"github.com/avdeeva/fieldline/internal/pubsub"
	"github.com/avdeeva/fieldline/internal/store"
	"github.com/avdeeva/fieldline/internal/validation"
)

// UserDirectory resolves a user id to a display name for notification
// payloads. Lookup failures degrade the notification, never the booking.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

type BookingRequest struct {
	CustomerID   uuid.UUID `json:"customer_id" validate:"required"`
	TechnicianID uuid.UUID `json:"technician_id" validate:"required"`
	ServiceType  string    `json:"service_type" validate:"required,max=100"`
	Address      string    `json:"address" validate:"required,max=500"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Price        float64   `json:"price" validate:"gte=0"`
	Description  string    `json:"description" validate:"max=2000"`
	IsEmergency  bool      `json:"is_emergency"`
}

// NewJobRequest is the payload published to the technician's topic for a
// fresh booking.
type NewJobRequest struct {
	Job          models.Job `json:"job"`
	CustomerName string     `json:"customer_name,omitempty"`
	Queued       bool       `json:"queued"`
}

type Engine struct {
	store  store.Store
	broker pubsub.Broker
	users  UserDirectory
}

func NewEngine(s store.Store, b pubsub.Broker, users UserDirectory) *Engine {
	return &Engine{store: s, broker: b, users: users}
}

// CreateJob creates a pending job for the request and notifies the
// technician. The job is created queued when the technician already holds an
// accepted, arrived or in_progress job. Persistence failure is fatal to the
// request; notification failure is not.
func (e *Engine) CreateJob(ctx context.Context, req BookingRequest) (*models.Job, error) {
	if errs := validation.Struct(req); len(errs) > 0 {
		return nil, common.ValidationError{Field: errs[0].Field, Message: errs[0].Message}
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, common.ValidationError{Field: "location", Message: "latitude and longitude must be provided together"}
	}
	if req.Latitude != nil {
		if errs := validation.ValidateCoordinates(*req.Latitude, *req.Longitude); len(errs) > 0 {
			return nil, common.ValidationError{Field: errs[0].Field, Message: errs[0].Message}
		}
	}

	active, err := e.store.ActiveJobForCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if active != nil {
		return nil, common.ValidationError{
			Field:   "customer_id",
			Message: "customer already has an active job",
		}
	}

	busy, err := e.store.TechnicianBusy(ctx, req.TechnicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to check technician availability: %w", err)
	}

	now := time.Now()
	job := &models.Job{
		ID:           uuid.New(),
		CustomerID:   req.CustomerID,
		TechnicianID: req.TechnicianID,
		ServiceType:  req.ServiceType,
		Status:       models.StatusPending,
		Address:      req.Address,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Price:        req.Price,
		Description:  req.Description,
		IsEmergency:  req.IsEmergency,
		IsQueued:     busy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	customerName, err := e.users.DisplayName(ctx, req.CustomerID)
	if err != nil {
		slog.Warn("failed to resolve customer name", "customer_id", req.CustomerID, "error", err)
	}

	notification := NewJobRequest{
		Job:          *job,
		CustomerName: customerName,
		Queued:       busy,
	}
	if err := e.broker.Publish(ctx, pubsub.UserTopic(job.TechnicianID), pubsub.EventNewJobRequest, notification); err != nil {
		// The job exists and is recoverable through the customer's
		// active-job poll, so a lost notification does not roll it back.
		slog.Error("failed to notify technician", "job_id", job.ID, "error", err)
	}
	if err := e.broker.Publish(ctx, pubsub.AdminTopic, pubsub.EventNewBooking, job); err != nil {
		slog.Warn("failed to publish admin booking event", "job_id", job.ID, "error", err)
	}

	slog.Info("job created",
		"job_id", job.ID,
		"customer_id", job.CustomerID,
		"technician_id", job.TechnicianID,
		"queued", busy)

	return job, nil
}
