package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/models"
)

// MemoryStore keeps everything behind one mutex so a status compare-and-set
// is a single critical section, same guarantee the conditional UPDATE gives
// the Postgres store.
type MemoryStore struct {
	mu          sync.RWMutex
	jobs        map[uuid.UUID]*models.Job
	messages    map[uuid.UUID][]models.Message
	attachments map[uuid.UUID][]models.Attachment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[uuid.UUID]*models.Job),
		messages:    make(map[uuid.UUID][]models.Message),
		attachments: make(map[uuid.UUID][]models.Attachment),
	}
}

func copyJob(j *models.Job) *models.Job {
	cp := *j
	return &cp
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return common.ErrConflict
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	return copyJob(j), nil
}

func (s *MemoryStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, from, to models.Status, upd StatusUpdate) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	if j.Status != from {
		return nil, common.ErrConflict
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	if upd.CompletedAt != nil {
		j.CompletedAt = upd.CompletedAt
	}
	if upd.FinalPrice != nil {
		j.FinalPrice = upd.FinalPrice
	}
	if upd.CancellationReason != nil {
		reason := *upd.CancellationReason
		j.CancellationReason = &reason
	}
	return copyJob(j), nil
}

func (s *MemoryStore) ActiveJobForCustomer(ctx context.Context, customerID uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.CustomerID == customerID && j.Status.Active() {
			return copyJob(j), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) TechnicianBusy(ctx context.Context, technicianID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.TechnicianID != technicianID {
			continue
		}
		for _, st := range models.BusyStatuses {
			if j.Status == st {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemoryStore) listJobs(match func(*models.Job) bool) []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Job
	for _, j := range s.jobs {
		if match(j) {
			out = append(out, *copyJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

func (s *MemoryStore) ListJobsByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Job, error) {
	return s.listJobs(func(j *models.Job) bool { return j.CustomerID == customerID }), nil
}

func (s *MemoryStore) ListJobsByTechnician(ctx context.Context, technicianID uuid.UUID) ([]models.Job, error) {
	return s.listJobs(func(j *models.Job) bool { return j.TechnicianID == technicianID }), nil
}

func (s *MemoryStore) ListRecentJobs(ctx context.Context, limit int) ([]models.Job, error) {
	jobs := s.listJobs(func(*models.Job) bool { return true })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *MemoryStore) AttachRating(ctx context.Context, jobID uuid.UUID, rating int, review string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	if j.Status != models.StatusCompleted {
		return nil, common.ValidationError{Field: "status", Message: "job is not completed"}
	}
	if j.Rating != nil {
		return nil, common.ErrConflict
	}
	j.Rating = &rating
	if review != "" {
		j.Review = &review
	}
	j.UpdatedAt = time.Now()
	return copyJob(j), nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[msg.JobID]; !ok {
		return common.ErrJobNotFound
	}
	s.messages[msg.JobID] = append(s.messages[msg.JobID], *msg)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, jobID uuid.UUID) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[jobID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) CreateAttachment(ctx context.Context, att *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[att.JobID]; !ok {
		return common.ErrJobNotFound
	}
	s.attachments[att.JobID] = append(s.attachments[att.JobID], *att)
	return nil
}

func (s *MemoryStore) ListAttachments(ctx context.Context, jobID uuid.UUID) ([]models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	atts := s.attachments[jobID]
	out := make([]models.Attachment, len(atts))
	copy(out, atts)
	return out, nil
}
