package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"attest/internal/credential/models"
)

const attemptKeyPrefix = "access_attempts:"

// RedisAttemptCounter uses INCR so concurrent failures across instances are
// never lost. Each failure pushes the expiry out by the window.
type RedisAttemptCounter struct {
	client redis.Cmdable
	window time.Duration
}

// NewRedisAttemptCounter uses DefaultAttemptWindow when window is not positive.
func NewRedisAttemptCounter(client redis.Cmdable, window time.Duration) *RedisAttemptCounter {
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &RedisAttemptCounter{client: client, window: window}
}

// RecordFailure increments and refreshes the expiry in one transaction.
func (s *RedisAttemptCounter) RecordFailure(ctx context.Context, id models.CredentialID) (int64, error) {
	key := attemptKeyPrefix + id.String()
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, s.window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record access failure: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisAttemptCounter) Failures(ctx context.Context, id models.CredentialID) (int64, error) {
	n, err := s.client.Get(ctx, attemptKeyPrefix+id.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read access failures: %w", err)
	}
	return n, nil
}

func (s *RedisAttemptCounter) Reset(ctx context.Context, id models.CredentialID) error {
	if err := s.client.Del(ctx, attemptKeyPrefix+id.String()).Err(); err != nil {
		return fmt.Errorf("reset access failures: %w", err)
	}
	return nil
}
