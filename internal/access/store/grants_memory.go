// Package store persists access grants and failed-attempt counters.
package store

import (
	"context"
	"sync"
	"time"

	"attest/internal/credential/models"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

type grantEntry struct {
	credentialID models.CredentialID
	expiresAt    time.Time
}

// InMemoryGrantStore is for tests and single-process deployments.
type InMemoryGrantStore struct {
	mu     sync.Mutex
	grants map[string]grantEntry
}

// NewInMemoryGrantStore returns an empty store.
func NewInMemoryGrantStore() *InMemoryGrantStore {
	return &InMemoryGrantStore{grants: make(map[string]grantEntry)}
}

// Save records a grant and drops any that have expired.
func (s *InMemoryGrantStore) Save(ctx context.Context, grantID string, credentialID models.CredentialID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(requestcontext.Now(ctx))
	s.grants[grantID] = grantEntry{credentialID: credentialID, expiresAt: expiresAt}
	return nil
}

// Consume deletes under the lock, so of two concurrent redemptions exactly
// one succeeds.
func (s *InMemoryGrantStore) Consume(ctx context.Context, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.grants[grantID]
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	delete(s.grants, grantID)
	if !requestcontext.Now(ctx).Before(entry.expiresAt) {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

// Len reports the number of grants held, expired or not.
func (s *InMemoryGrantStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.grants)
}

func (s *InMemoryGrantStore) sweepLocked(now time.Time) {
	for id, e := range s.grants {
		if !now.Before(e.expiresAt) {
			delete(s.grants, id)
		}
	}
}
