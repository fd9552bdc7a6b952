package storage

import (
	"context"
	"io"
	"time"
)

// Storage persists job attachment files (problem photos, completion
// photos). Attachment metadata lives in the job store; this only holds the
// bytes.
type Storage interface {
	UploadFile(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error)
	GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)
	DeleteFile(ctx context.Context, key string) error
}

type UploadResult struct {
	Key string
	URL string
}
