package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/models"
)

func newJob(status models.Status) *models.Job {
	now := time.Now()
	return &models.Job{
		ID:           uuid.New(),
		CustomerID:   uuid.New(),
		TechnicianID: uuid.New(),
		ServiceType:  "plumbing",
		Status:       status,
		Address:      "1 Main St",
		Price:        50,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob(models.StatusPending)

	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if err := s.CreateJob(ctx, job); !common.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}

	// The store must hand out copies, not aliases into its own state.
	got.Status = models.StatusCompleted
	again, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if again.Status != models.StatusPending {
		t.Fatalf("caller mutation leaked into the store")
	}

	if _, err := s.GetJob(ctx, uuid.New()); !common.IsNotFound(err) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

func TestMemoryStore_UpdateJobStatus_CompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob(models.StatusPending)
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	updated, err := s.UpdateJobStatus(ctx, job.ID, models.StatusPending, models.StatusAccepted, StatusUpdate{})
	if err != nil {
		t.Fatalf("UpdateJobStatus error: %v", err)
	}
	if updated.Status != models.StatusAccepted {
		t.Fatalf("expected accepted, got %s", updated.Status)
	}

	// Stale expected status: the job already left pending.
	if _, err := s.UpdateJobStatus(ctx, job.ID, models.StatusPending, models.StatusRejected, StatusUpdate{}); !common.IsConflict(err) {
		t.Fatalf("expected conflict on stale from-status, got %v", err)
	}

	if _, err := s.UpdateJobStatus(ctx, uuid.New(), models.StatusPending, models.StatusAccepted, StatusUpdate{}); !common.IsNotFound(err) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

func TestMemoryStore_UpdateJobStatus_AppliesSideFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob(models.StatusInProgress)
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	now := time.Now()
	price := 75.0
	updated, err := s.UpdateJobStatus(ctx, job.ID, models.StatusInProgress, models.StatusCompleted, StatusUpdate{
		CompletedAt: &now,
		FinalPrice:  &price,
	})
	if err != nil {
		t.Fatalf("UpdateJobStatus error: %v", err)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(now) {
		t.Fatalf("expected completedAt to be set")
	}
	if updated.FinalPrice == nil || *updated.FinalPrice != price {
		t.Fatalf("expected finalPrice to be set")
	}
}

func TestMemoryStore_ConcurrentCAS_ExactlyOneWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob(models.StatusPending)
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		target := models.StatusAccepted
		if i%2 == 1 {
			target = models.StatusRejected
		}
		wg.Add(1)
		go func(to models.Status) {
			defer wg.Done()
			_, err := s.UpdateJobStatus(ctx, job.ID, models.StatusPending, to, StatusUpdate{})
			results <- err
		}(target)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !common.IsConflict(err) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestMemoryStore_ActiveJobForCustomer(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	customerID := uuid.New()

	done := newJob(models.StatusCompleted)
	done.CustomerID = customerID
	if err := s.CreateJob(ctx, done); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	active, err := s.ActiveJobForCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("ActiveJobForCustomer error: %v", err)
	}
	if active != nil {
		t.Fatalf("completed job reported as active")
	}

	pending := newJob(models.StatusPending)
	pending.CustomerID = customerID
	if err := s.CreateJob(ctx, pending); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	active, err = s.ActiveJobForCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("ActiveJobForCustomer error: %v", err)
	}
	if active == nil || active.ID != pending.ID {
		t.Fatalf("expected the pending job to be the active one")
	}
}

func TestMemoryStore_TechnicianBusy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	techID := uuid.New()

	pending := newJob(models.StatusPending)
	pending.TechnicianID = techID
	if err := s.CreateJob(ctx, pending); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	// A pending assignment does not occupy the technician.
	busy, err := s.TechnicianBusy(ctx, techID)
	if err != nil {
		t.Fatalf("TechnicianBusy error: %v", err)
	}
	if busy {
		t.Fatalf("pending job should not mark technician busy")
	}

	working := newJob(models.StatusInProgress)
	working.TechnicianID = techID
	if err := s.CreateJob(ctx, working); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	busy, err = s.TechnicianBusy(ctx, techID)
	if err != nil {
		t.Fatalf("TechnicianBusy error: %v", err)
	}
	if !busy {
		t.Fatalf("in_progress job should mark technician busy")
	}
}

func TestMemoryStore_AttachRating_Guards(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	running := newJob(models.StatusInProgress)
	if err := s.CreateJob(ctx, running); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if _, err := s.AttachRating(ctx, running.ID, 5, "great"); !common.IsValidation(err) {
		t.Fatalf("expected validation error on non-completed job, got %v", err)
	}

	done := newJob(models.StatusCompleted)
	if err := s.CreateJob(ctx, done); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	rated, err := s.AttachRating(ctx, done.ID, 4, "")
	if err != nil {
		t.Fatalf("AttachRating error: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 4 {
		t.Fatalf("expected rating 4, got %+v", rated.Rating)
	}
	if rated.Review != nil {
		t.Fatalf("expected empty review to stay nil")
	}

	if _, err := s.AttachRating(ctx, done.ID, 5, "again"); !common.IsConflict(err) {
		t.Fatalf("expected conflict on second rating, got %v", err)
	}
}

func TestMemoryStore_Messages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob(models.StatusAccepted)
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	orphan := &models.Message{ID: uuid.New(), JobID: uuid.New(), SenderID: job.CustomerID, Text: "hi"}
	if err := s.CreateMessage(ctx, orphan); !common.IsNotFound(err) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}

	for _, text := range []string{"on my way", "thanks"} {
		msg := &models.Message{ID: uuid.New(), JobID: job.ID, SenderID: job.CustomerID, Text: text, CreatedAt: time.Now()}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage error: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListMessages error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "on my way" {
		t.Fatalf("expected creation order, got %q first", msgs[0].Text)
	}
}
