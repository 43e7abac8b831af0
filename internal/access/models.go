// Package access decides whether a requester may see a private credential
// and issues short-lived access grants to those who may.
package access

import (
	"context"
	"time"

	"attest/internal/credential/models"
	dErrors "attest/pkg/domain-errors"
)

// ErrAccessDenied is the only denial callers ever see. It never says whether
// the code, the email, or the credential itself was the problem.
var ErrAccessDenied = dErrors.New(dErrors.CodeAccessDenied, "access denied")

// AccessGrant is proof that a requester passed access control for one
// credential.
type AccessGrant struct {
	ID           string
	CredentialID models.CredentialID
	IssuedTo     string
	Token        string
	ExpiresAt    time.Time
}

// Request carries the requester's access proof.
type Request struct {
	Code  string
	Email string
	// TTL overrides the evaluator's default grant lifetime when positive.
	TTL time.Duration
}

// Decision is the outcome of Evaluate. Grant is set only when Granted.
type Decision struct {
	Granted bool
	Grant   *AccessGrant
}

// GrantStore tracks issued grants so a grant can be redeemed once.
type GrantStore interface {
	Save(ctx context.Context, grantID string, credentialID models.CredentialID, expiresAt time.Time) error
	// Consume atomically removes the grant. A missing, expired or already
	// consumed grant returns sentinel.ErrAlreadyUsed.
	Consume(ctx context.Context, grantID string) error
}

// AttemptCounter counts failed access attempts per credential. Increments
// must be atomic.
type AttemptCounter interface {
	RecordFailure(ctx context.Context, id models.CredentialID) (int64, error)
	Failures(ctx context.Context, id models.CredentialID) (int64, error)
	Reset(ctx context.Context, id models.CredentialID) error
}

// FailureHook is called after every denied attempt with the new failure
// count, for a throttling layer to act on.
type FailureHook func(ctx context.Context, id models.CredentialID, failures int64)
