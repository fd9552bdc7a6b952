// Package relay accepts high-frequency location samples and chat messages
// scoped to a job and republishes them on the job's topic. It carries no
// lifecycle logic and never mutates a job.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/models"
	"github.com/avdeeva/fieldline/internal/pubsub"
	"github.com/avdeeva/fieldline/internal/store"
	"github.com/avdeeva/fieldline/internal/validation"
)

// LocationCache holds the last-known location per job. Ephemeral state:
// nothing here survives on the job record.
type LocationCache interface {
	SetLastLocation(ctx context.Context, sample models.LocationSample) error
	LastLocation(ctx context.Context, jobID uuid.UUID) (*models.LocationSample, error)
}

// MemoryLocationCache is the in-process LocationCache used in tests and
// single-node setups.
type MemoryLocationCache struct {
	mu      sync.RWMutex
	samples map[uuid.UUID]models.LocationSample
}

func NewMemoryLocationCache() *MemoryLocationCache {
	return &MemoryLocationCache{samples: make(map[uuid.UUID]models.LocationSample)}
}

func (c *MemoryLocationCache) SetLastLocation(ctx context.Context, sample models.LocationSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[sample.JobID] = sample
	return nil
}

func (c *MemoryLocationCache) LastLocation(ctx context.Context, jobID uuid.UUID) (*models.LocationSample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.samples[jobID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &s, nil
}

// streamingStatuses are the job states during which location samples are
// accepted.
var streamingStatuses = map[models.Status]bool{
	models.StatusAccepted:   true,
	models.StatusInProgress: true,
}

type Relay struct {
	store     store.Store
	broker    pubsub.Broker
	locations LocationCache
}

func NewRelay(s store.Store, b pubsub.Broker, locations LocationCache) *Relay {
	return &Relay{store: s, broker: b, locations: locations}
}

// PostLocation overwrites the job's last-known technician position and
// republishes it on the job topic. The publish is fire-and-forget: samples
// arrive at sub-second cadence and a slow subscriber must not block the
// stream.
func (r *Relay) PostLocation(ctx context.Context, jobID, technicianID uuid.UUID, lat, lng float64) (*models.LocationSample, error) {
	if errs := validation.ValidateCoordinates(lat, lng); len(errs) > 0 {
		return nil, common.ValidationError{Field: errs[0].Field, Message: errs[0].Message}
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.TechnicianID != technicianID {
		return nil, fmt.Errorf("sender is not the job's technician: %w", common.ErrForbidden)
	}
	if !streamingStatuses[job.Status] {
		return nil, common.ValidationError{Field: "status", Message: fmt.Sprintf("job is not streaming location in status %s", job.Status)}
	}

	sample := models.LocationSample{
		JobID:      jobID,
		Latitude:   lat,
		Longitude:  lng,
		RecordedAt: time.Now(),
	}
	if err := r.locations.SetLastLocation(ctx, sample); err != nil {
		return nil, fmt.Errorf("failed to record location: %w", err)
	}

	if err := r.broker.Publish(ctx, pubsub.JobTopic(jobID), pubsub.EventTechnicianLocation, sample); err != nil {
		slog.Warn("location publish failed", "job_id", jobID, "error", err)
	}
	return &sample, nil
}

// LastLocation returns the most recent sample for a job, for a client that
// opens the job view between pushes.
func (r *Relay) LastLocation(ctx context.Context, jobID uuid.UUID) (*models.LocationSample, error) {
	return r.locations.LastLocation(ctx, jobID)
}

// PostMessage appends one chat line to the job and republishes it on the
// job topic. The sender must be one of the job's two parties.
func (r *Relay) PostMessage(ctx context.Context, jobID, senderID uuid.UUID, senderRole models.Role, text string) (*models.Message, error) {
	if errs := validation.ValidateMessageText(text); len(errs) > 0 {
		return nil, common.ValidationError{Field: errs[0].Field, Message: errs[0].Message}
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch senderRole {
	case models.RoleCustomer:
		if job.CustomerID != senderID {
			return nil, fmt.Errorf("sender is not the job's customer: %w", common.ErrForbidden)
		}
	case models.RoleTechnician:
		if job.TechnicianID != senderID {
			return nil, fmt.Errorf("sender is not the job's technician: %w", common.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("role %s may not post messages: %w", senderRole, common.ErrForbidden)
	}

	msg := &models.Message{
		ID:         uuid.New(),
		JobID:      jobID,
		SenderID:   senderID,
		SenderRole: senderRole,
		Text:       text,
		CreatedAt:  time.Now(),
	}
	if err := r.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	if err := r.broker.Publish(ctx, pubsub.JobTopic(jobID), pubsub.EventReceiveMessage, msg); err != nil {
		slog.Warn("message publish failed", "job_id", jobID, "error", err)
	}
	return msg, nil
}

// ListMessages returns the job's chat history in creation order.
func (r *Relay) ListMessages(ctx context.Context, jobID, requesterID uuid.UUID, requesterRole models.Role) ([]models.Message, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if requesterRole != models.RoleAdmin && job.CustomerID != requesterID && job.TechnicianID != requesterID {
		return nil, fmt.Errorf("requester is not a party to the job: %w", common.ErrForbidden)
	}
	return r.store.ListMessages(ctx, jobID)
}
