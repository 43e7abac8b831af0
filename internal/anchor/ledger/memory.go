package ledger

import (
	"context"
	"sync"
	"time"

	"attest/internal/anchor"
	"attest/internal/credential/models"
	"attest/internal/integrity"
	"attest/pkg/requestcontext"
)

// InMemory is a ledger for tests and single-process deployments.
type InMemory struct {
	mu      sync.RWMutex
	entries map[models.CredentialID]models.Anchor
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[models.CredentialID]models.Anchor)}
}

// SubmitAnchor records digest once per credential.
func (l *InMemory) SubmitAnchor(ctx context.Context, id models.CredentialID, digest integrity.Digest) (*models.Anchor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[id]; exists {
		return nil, anchor.ErrAlreadyAnchored
	}
	a := models.Anchor{
		Hash:       digest,
		Reference:  newReference(),
		AnchoredAt: requestcontext.Now(ctx).UTC().Truncate(time.Microsecond),
	}
	l.entries[id] = a
	return &a, nil
}

// FetchAnchor returns nil, nil for a credential that was never anchored.
func (l *InMemory) FetchAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.entries[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// Put records an entry verbatim. Seeders use it to plant fixtures.
func (l *InMemory) Put(id models.CredentialID, a models.Anchor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = a
}
