package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/models"
)

type Service struct {
	client      *redis.Client
	locationTTL time.Duration
}

func New(redisURL string, locationTTL time.Duration) (*Service, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Service{client: client, locationTTL: locationTTL}, nil
}

func (s *Service) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *Service) Client() *redis.Client {
	return s.client
}

func (s *Service) StoreRefreshToken(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	key := fmt.Sprintf("refresh_token:%s", tokenHash)
	return s.client.Set(ctx, key, userID, ttl).Err()
}

func (s *Service) GetRefreshTokenUserID(ctx context.Context, tokenHash string) (string, error) {
	key := fmt.Sprintf("refresh_token:%s", tokenHash)
	userID, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("refresh token not found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get refresh token: %w", err)
	}
	return userID, nil
}

func (s *Service) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	key := fmt.Sprintf("refresh_token:%s", tokenHash)
	return s.client.Del(ctx, key).Err()
}

// SetLastLocation implements relay.LocationCache. The TTL keeps stale
// samples from outliving an abandoned job.
func (s *Service) SetLastLocation(ctx context.Context, sample models.LocationSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal location sample: %w", err)
	}
	key := fmt.Sprintf("job_location:%s", sample.JobID)
	return s.client.Set(ctx, key, data, s.locationTTL).Err()
}

// LastLocation implements relay.LocationCache.
func (s *Service) LastLocation(ctx context.Context, jobID uuid.UUID) (*models.LocationSample, error) {
	key := fmt.Sprintf("job_location:%s", jobID)
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	var sample models.LocationSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location sample: %w", err)
	}
	return &sample, nil
}
