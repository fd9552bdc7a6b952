// Package pubsub is the channel registry: it maps logical topics to the set
// of currently interested subscribers and delivers published events to all
// of them. Delivery is best-effort and at-most-once per subscriber; there is
// no backlog, so a disconnected subscriber resynchronizes through the
// active-job query, not through replay.
package pubsub

import (
	"context"

	"github.com/google/uuid"
)

// Event names published by the core.
const (
	EventNewJobRequest      = "new_job_request"
	EventJobUpdate          = "job_update"
	EventTechnicianLocation = "technician_location_update"
	EventReceiveMessage     = "receive_message"
	EventNewTechnician      = "new_technician"
	EventNewBooking         = "new_booking"
	EventJobStatusChange    = "job_status_change"
	EventJobCancelled       = "job_cancelled"
)

// AdminTopic fans every registration, booking and status-change event out to
// any number of admin observers.
const AdminTopic = "admin-broadcast"

// UserTopic is the private per-user feed: job updates, new-request
// notifications.
func UserTopic(userID uuid.UUID) string {
	return "user-" + userID.String()
}

// JobTopic is the shared feed for one job's chat and location stream.
func JobTopic(jobID uuid.UUID) string {
	return "job-" + jobID.String()
}

// Handler receives a published event. Payload is the JSON encoding of
// whatever was passed to Publish.
type Handler func(topic, event string, payload []byte)

// Broker delivers published events to every currently bound subscriber of a
// topic. Publish must not block on slow or absent subscribers.
type Broker interface {
	Publish(ctx context.Context, topic, event string, payload any) error
	// Subscribe binds handler to the topic/event pair and returns an
	// unsubscribe func. Multiple handlers may bind the same pair; each
	// receives the event independently.
	Subscribe(topic, event string, handler Handler) (func(), error)
	Close() error
}
