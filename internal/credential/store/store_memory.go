package store

import (
	"context"

	"attest/internal/credential/models"
	psync "attest/pkg/platform/sync"
)

// InMemoryStore keeps one map per lock shard so that a credential's data and
// its lock always live on the same shard.
type InMemoryStore struct {
	locks  *psync.ShardedRWMutex
	shards [psync.ShardCount]map[models.CredentialID]*models.Credential
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{locks: psync.NewShardedRWMutex()}
	for i := range s.shards {
		s.shards[i] = make(map[models.CredentialID]*models.Credential)
	}
	return s
}

func (s *InMemoryStore) shard(id models.CredentialID) map[models.CredentialID]*models.Credential {
	return s.shards[psync.Shard(id.String())]
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Credential) error {
	key := c.ID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	m := s.shard(c.ID)
	if _, exists := m[c.ID]; exists {
		return conflict()
	}
	m[c.ID] = c.Clone()
	return nil
}

// FindByID returns a copy; callers may mutate it freely.
func (s *InMemoryStore) FindByID(ctx context.Context, id models.CredentialID) (*models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := id.String()
	s.locks.RLock(key)
	defer s.locks.RUnlock(key)

	c, ok := s.shard(id)[id]
	if !ok {
		return nil, notFound()
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) GetAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error) {
	c, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Anchor, nil
}

// Update applies mutate to a copy and stores it only if mutate succeeds.
func (s *InMemoryStore) Update(ctx context.Context, id models.CredentialID, mutate Mutation) (*models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := id.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	m := s.shard(id)
	current, ok := m[id]
	if !ok {
		return nil, notFound()
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	m[id] = next
	return next.Clone(), nil
}
