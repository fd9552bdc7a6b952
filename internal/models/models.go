package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

func ValidRole(r Role) bool {
	return r == RoleCustomer || r == RoleTechnician || r == RoleAdmin
}

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// CancellationReason is attached to a job exactly once, on the transition
// into cancelled.
type CancellationReason struct {
	Code string `json:"code"`
	Note string `json:"note,omitempty"`
	By   Role   `json:"by"`
}

// Job is one customer-technician service engagement and its lifecycle
// record. CustomerID and TechnicianID are fixed for the job's lifetime;
// Status only moves along the edges in status.go.
type Job struct {
	ID           uuid.UUID `json:"id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	TechnicianID uuid.UUID `json:"technician_id"`
	ServiceType  string    `json:"service_type"`
	Status       Status    `json:"status"`
	Address      string    `json:"address"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Price        float64   `json:"price"`
	// FinalPrice is the settlement figure, attached only on completion.
	FinalPrice         *float64            `json:"final_price,omitempty"`
	Description        string              `json:"description,omitempty"`
	IsEmergency        bool                `json:"is_emergency"`
	IsQueued           bool                `json:"is_queued"`
	Rating             *int                `json:"rating,omitempty"`
	Review             *string             `json:"review,omitempty"`
	CancellationReason *CancellationReason `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
}

// Message is one chat line scoped to exactly one job. Immutable once
// created; ordering is by creation time within the job.
type Message struct {
	ID         uuid.UUID `json:"id"`
	JobID      uuid.UUID `json:"job_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderRole Role      `json:"sender_role"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// LocationSample is the technician's last reported position for a job.
// Ephemeral: only the most recent sample per job is kept.
type LocationSample struct {
	JobID      uuid.UUID `json:"job_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Attachment is a photo or document uploaded against a job (problem photos
// from the customer, completion photos from the technician).
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	UploaderID  uuid.UUID `json:"uploader_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size,omitempty"`
	StorageKey  string    `json:"storage_key"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
