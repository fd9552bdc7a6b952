package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/models"
	"github.com/avdeeva/fieldline/internal/pubsub"
	"github.com/avdeeva/fieldline/internal/store"
)

type recordedEvent struct {
	Topic   string
	Event   string
	Payload any
}

type recordingBroker struct {
	mu     sync.Mutex
	events []recordedEvent
	fail   bool
}

func (b *recordingBroker) Publish(ctx context.Context, topic, event string, payload any) error {
	if b.fail {
		return errors.New("broker down")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Topic: topic, Event: event, Payload: payload})
	return nil
}

func (b *recordingBroker) Subscribe(topic, event string, handler pubsub.Handler) (func(), error) {
	return func() {}, nil
}

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) recorded() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]recordedEvent, len(b.events))
	copy(out, b.events)
	return out
}

type staticDirectory struct {
	names map[uuid.UUID]string
}

func (d *staticDirectory) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	name, ok := d.names[userID]
	if !ok {
		return "", common.ErrUserNotFound
	}
	return name, nil
}

func newTestEngine() (*Engine, *store.MemoryStore, *recordingBroker, *staticDirectory) {
	s := store.NewMemoryStore()
	b := &recordingBroker{}
	d := &staticDirectory{names: make(map[uuid.UUID]string)}
	return NewEngine(s, b, d), s, b, d
}

func validRequest() BookingRequest {
	return BookingRequest{
		CustomerID:   uuid.New(),
		TechnicianID: uuid.New(),
		ServiceType:  "plumbing",
		Address:      "1 Main St",
		Price:        50,
	}
}

func TestCreateJob_ImmediateWhenTechnicianFree(t *testing.T) {
	e, _, b, d := newTestEngine()
	req := validRequest()
	d.names[req.CustomerID] = "Anna"

	job, err := e.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if job.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.IsQueued {
		t.Fatalf("expected immediate booking, got queued")
	}

	events := b.recorded()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Topic != pubsub.UserTopic(req.TechnicianID) || events[0].Event != pubsub.EventNewJobRequest {
		t.Fatalf("unexpected technician notification: %+v", events[0])
	}
	notif, ok := events[0].Payload.(NewJobRequest)
	if !ok {
		t.Fatalf("unexpected notification payload type %T", events[0].Payload)
	}
	if notif.CustomerName != "Anna" {
		t.Fatalf("expected customer name in notification, got %q", notif.CustomerName)
	}
	if notif.Queued {
		t.Fatalf("notification should not be tagged queued")
	}
	if events[1].Topic != pubsub.AdminTopic || events[1].Event != pubsub.EventNewBooking {
		t.Fatalf("unexpected admin event: %+v", events[1])
	}
}

func TestCreateJob_QueuedWhenTechnicianBusy(t *testing.T) {
	e, s, b, _ := newTestEngine()
	req := validRequest()

	// The technician is mid-job for another customer.
	current := &models.Job{
		ID:           uuid.New(),
		CustomerID:   uuid.New(),
		TechnicianID: req.TechnicianID,
		Status:       models.StatusInProgress,
	}
	if err := s.CreateJob(context.Background(), current); err != nil {
		t.Fatalf("seed job error: %v", err)
	}

	job, err := e.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if job.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if !job.IsQueued {
		t.Fatalf("expected queued booking")
	}

	events := b.recorded()
	if len(events) == 0 {
		t.Fatalf("expected notification events")
	}
	notif, ok := events[0].Payload.(NewJobRequest)
	if !ok {
		t.Fatalf("unexpected notification payload type %T", events[0].Payload)
	}
	if !notif.Queued {
		t.Fatalf("notification should be tagged queued")
	}
}

func TestCreateJob_RejectsSecondActiveJob(t *testing.T) {
	e, _, _, d := newTestEngine()
	req := validRequest()
	d.names[req.CustomerID] = "Anna"

	if _, err := e.CreateJob(context.Background(), req); err != nil {
		t.Fatalf("first CreateJob error: %v", err)
	}

	second := validRequest()
	second.CustomerID = req.CustomerID
	_, err := e.CreateJob(context.Background(), second)
	if !common.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateJob_AllowsRebookingAfterTerminal(t *testing.T) {
	e, s, _, d := newTestEngine()
	req := validRequest()
	d.names[req.CustomerID] = "Anna"

	first, err := e.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("first CreateJob error: %v", err)
	}
	if _, err := s.UpdateJobStatus(context.Background(), first.ID, models.StatusPending, models.StatusRejected, store.StatusUpdate{}); err != nil {
		t.Fatalf("UpdateJobStatus error: %v", err)
	}

	second := validRequest()
	second.CustomerID = req.CustomerID
	if _, err := e.CreateJob(context.Background(), second); err != nil {
		t.Fatalf("expected rebooking after rejection to succeed, got %v", err)
	}
}

func TestCreateJob_ValidatesInput(t *testing.T) {
	e, _, _, _ := newTestEngine()

	missing := validRequest()
	missing.ServiceType = ""
	if _, err := e.CreateJob(context.Background(), missing); !common.IsValidation(err) {
		t.Fatalf("expected validation error for missing service type, got %v", err)
	}

	lat := 91.0
	lng := 10.0
	badCoords := validRequest()
	badCoords.Latitude = &lat
	badCoords.Longitude = &lng
	if _, err := e.CreateJob(context.Background(), badCoords); !common.IsValidation(err) {
		t.Fatalf("expected validation error for out-of-range latitude, got %v", err)
	}

	half := validRequest()
	half.Latitude = &lng
	if _, err := e.CreateJob(context.Background(), half); !common.IsValidation(err) {
		t.Fatalf("expected validation error for latitude without longitude, got %v", err)
	}
}

func TestCreateJob_SurvivesNameLookupAndPublishFailure(t *testing.T) {
	e, s, b, _ := newTestEngine()
	b.fail = true
	req := validRequest() // customer absent from the directory

	job, err := e.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	// The job must be persisted and recoverable even though every
	// notification failed.
	got, err := s.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
}
