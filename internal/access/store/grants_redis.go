package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"attest/internal/credential/models"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

const grantKeyPrefix = "access_grant:"

// RedisGrantStore keeps grants as keys that expire with the grant. GETDEL
// makes consumption atomic across instances.
type RedisGrantStore struct {
	client redis.Cmdable
}

// NewRedisGrantStore stores grants under keys that expire with the grant.
func NewRedisGrantStore(client redis.Cmdable) *RedisGrantStore {
	return &RedisGrantStore{client: client}
}

func (s *RedisGrantStore) Save(ctx context.Context, grantID string, credentialID models.CredentialID, expiresAt time.Time) error {
	ttl := expiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	ok, err := s.client.SetNX(ctx, grantKeyPrefix+grantID, credentialID.String(), ttl).Result()
	if err != nil {
		return fmt.Errorf("save access grant: %w", err)
	}
	if !ok {
		return fmt.Errorf("save access grant: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisGrantStore) Consume(ctx context.Context, grantID string) error {
	err := s.client.GetDel(ctx, grantKeyPrefix+grantID).Err()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("consume access grant: %w", err)
	}
	return nil
}
