package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/database"
	"github.com/avdeeva/fieldline/internal/models"
)

type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `
	id, customer_id, technician_id, service_type, status, address,
	latitude, longitude, price, final_price, description, is_emergency,
	is_queued, rating, review, cancel_code, cancel_note, cancelled_by,
	created_at, updated_at, completed_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var cancelCode, cancelNote, cancelledBy sql.NullString
	var review sql.NullString
	var rating sql.NullInt32

	err := row.Scan(
		&j.ID, &j.CustomerID, &j.TechnicianID, &j.ServiceType, &j.Status,
		&j.Address, &j.Latitude, &j.Longitude, &j.Price, &j.FinalPrice,
		&j.Description, &j.IsEmergency, &j.IsQueued, &rating, &review,
		&cancelCode, &cancelNote, &cancelledBy,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if rating.Valid {
		r := int(rating.Int32)
		j.Rating = &r
	}
	if review.Valid {
		j.Review = &review.String
	}
	if cancelCode.Valid {
		j.CancellationReason = &models.CancellationReason{
			Code: cancelCode.String,
			Note: cancelNote.String,
			By:   models.Role(cancelledBy.String),
		}
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (
			id, customer_id, technician_id, service_type, status, address,
			latitude, longitude, price, description, is_emergency, is_queued,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`

	_, err := s.db.Pool().Exec(ctx, query,
		job.ID, job.CustomerID, job.TechnicianID, job.ServiceType, job.Status,
		job.Address, job.Latitude, job.Longitude, job.Price, job.Description,
		job.IsEmergency, job.IsQueued, job.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	j, err := scanJob(s.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// UpdateJobStatus relies on the conditional UPDATE for atomicity: of two
// racing transitions exactly one matches the status predicate.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, from, to models.Status, upd StatusUpdate) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = $3,
			updated_at = NOW(),
			completed_at = COALESCE($4, completed_at),
			final_price = COALESCE($5, final_price),
			cancel_code = COALESCE($6, cancel_code),
			cancel_note = COALESCE($7, cancel_note),
			cancelled_by = COALESCE($8, cancelled_by)
		WHERE id = $1 AND status = $2
		RETURNING ` + jobColumns

	var cancelCode, cancelNote, cancelledBy *string
	if upd.CancellationReason != nil {
		cancelCode = &upd.CancellationReason.Code
		cancelNote = &upd.CancellationReason.Note
		by := string(upd.CancellationReason.By)
		cancelledBy = &by
	}

	j, err := scanJob(s.db.Pool().QueryRow(ctx, query,
		id, from, to, upd.CompletedAt, upd.FinalPrice,
		cancelCode, cancelNote, cancelledBy,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the job moved out of `from` or it does not exist.
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, common.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *PostgresStore) ActiveJobForCustomer(ctx context.Context, customerID uuid.UUID) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE customer_id = $1
		  AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1
	`

	j, err := scanJob(s.db.Pool().QueryRow(ctx, query, customerID, statusStrings(models.ActiveStatuses)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *PostgresStore) TechnicianBusy(ctx context.Context, technicianID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE technician_id = $1 AND status = ANY($2)
		)
	`

	var busy bool
	err := s.db.Pool().QueryRow(ctx, query, technicianID, statusStrings(models.BusyStatuses)).Scan(&busy)
	return busy, err
}

func (s *PostgresStore) ListJobsByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE customer_id = $1 ORDER BY created_at DESC`
	return s.queryJobs(ctx, query, customerID)
}

func (s *PostgresStore) ListJobsByTechnician(ctx context.Context, technicianID uuid.UUID) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE technician_id = $1 ORDER BY created_at DESC`
	return s.queryJobs(ctx, query, technicianID)
}

func (s *PostgresStore) ListRecentJobs(ctx context.Context, limit int) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1`
	return s.queryJobs(ctx, query, limit)
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) AttachRating(ctx context.Context, jobID uuid.UUID, rating int, review string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET rating = $2, review = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status = $4 AND rating IS NULL
		RETURNING ` + jobColumns

	j, err := scanJob(s.db.Pool().QueryRow(ctx, query, jobID, rating, review, models.StatusCompleted))
	if errors.Is(err, pgx.ErrNoRows) {
		cur, getErr := s.GetJob(ctx, jobID)
		if getErr != nil {
			return nil, getErr
		}
		if cur.Status != models.StatusCompleted {
			return nil, common.ValidationError{Field: "status", Message: "job is not completed"}
		}
		return nil, fmt.Errorf("rating %w", common.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, job_id, sender_id, sender_role, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.Pool().Exec(ctx, query,
		msg.ID, msg.JobID, msg.SenderID, msg.SenderRole, msg.Text, msg.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListMessages(ctx context.Context, jobID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT id, job_id, sender_id, sender_role, text, created_at
		FROM messages
		WHERE job_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.Pool().Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.JobID, &m.SenderID, &m.SenderRole, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) CreateAttachment(ctx context.Context, att *models.Attachment) error {
	query := `
		INSERT INTO attachments (id, job_id, uploader_id, filename, content_type, file_size, storage_key, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Pool().Exec(ctx, query,
		att.ID, att.JobID, att.UploaderID, att.Filename, att.ContentType,
		att.Size, att.StorageKey, att.URL, att.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListAttachments(ctx context.Context, jobID uuid.UUID) ([]models.Attachment, error) {
	query := `
		SELECT id, job_id, uploader_id, filename, content_type, file_size, storage_key, url, created_at
		FROM attachments
		WHERE job_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.Pool().Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.JobID, &a.UploaderID, &a.Filename, &a.ContentType, &a.Size, &a.StorageKey, &a.URL, &a.CreatedAt); err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
