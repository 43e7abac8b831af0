package store

import (
	"context"
	"sync"
	"time"

	"attest/internal/credential/models"
	"attest/pkg/requestcontext"
)

// DefaultAttemptWindow is how long failures are remembered after the last one.
const DefaultAttemptWindow = 15 * time.Minute

type attemptRecord struct {
	failures      int64
	lastFailureAt time.Time
}

// InMemoryAttemptCounter keeps failure counts per credential. Stale records
// are swept at most once per window, on the write path.
type InMemoryAttemptCounter struct {
	mu        sync.Mutex
	window    time.Duration
	records   map[models.CredentialID]*attemptRecord
	lastSweep time.Time
}

// NewInMemoryAttemptCounter uses DefaultAttemptWindow when window is not positive.
func NewInMemoryAttemptCounter(window time.Duration) *InMemoryAttemptCounter {
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &InMemoryAttemptCounter{
		window:  window,
		records: make(map[models.CredentialID]*attemptRecord),
	}
}

func (s *InMemoryAttemptCounter) RecordFailure(ctx context.Context, id models.CredentialID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	if now.Sub(s.lastSweep) > s.window {
		s.sweepLocked(now)
	}
	rec, ok := s.records[id]
	if !ok || now.Sub(rec.lastFailureAt) > s.window {
		rec = &attemptRecord{}
		s.records[id] = rec
	}
	rec.failures++
	rec.lastFailureAt = now
	return rec.failures, nil
}

// Failures returns zero once the window has passed since the last failure.
func (s *InMemoryAttemptCounter) Failures(ctx context.Context, id models.CredentialID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || requestcontext.Now(ctx).Sub(rec.lastFailureAt) > s.window {
		return 0, nil
	}
	return rec.failures, nil
}

func (s *InMemoryAttemptCounter) Reset(_ context.Context, id models.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Len reports how many credentials currently hold a record.
func (s *InMemoryAttemptCounter) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *InMemoryAttemptCounter) sweepLocked(now time.Time) {
	for id, rec := range s.records {
		if now.Sub(rec.lastFailureAt) > s.window {
			delete(s.records, id)
		}
	}
	s.lastSweep = now
}
