// Package anchor reconciles live credential fingerprints against hashes held
// by an external ledger, and defines the ledger collaborator boundary.
//
// Reconcile is a pure comparison. Fetching and submitting anchors happens
// through Fetcher and Submitter, which are chain-agnostic: an anchor is only
// a digest plus an opaque reference.
package anchor

import (
	"context"

	"attest/internal/credential/models"
	"attest/internal/integrity"
	dErrors "attest/pkg/domain-errors"
)

// Status is the outcome of reconciliation.
type Status string

const (
	StatusNotAnchored Status = "not-anchored"
	StatusMatched     Status = "matched"
	StatusMismatched  Status = "mismatched"
)

var (
	// ErrUnavailable means the ledger could not be read in time. Verification
	// treats it as "not anchored" plus a warning.
	ErrUnavailable = dErrors.New(dErrors.CodeUnavailable, "anchor unavailable")

	// ErrAlreadyAnchored is returned by ledgers, which never overwrite.
	ErrAlreadyAnchored = dErrors.New(dErrors.CodeConflict, "credential already anchored")
)

// Reconcile compares live against the stored anchor. live must have been
// computed with stored.Hash.Algorithm(); a different algorithm is reported as
// a mismatch. The anchor is never modified here.
func Reconcile(live integrity.Digest, stored *models.Anchor) Status {
	if stored == nil || stored.Hash.IsZero() {
		return StatusNotAnchored
	}
	if integrity.Compare(live, stored.Hash) == integrity.Equal {
		return StatusMatched
	}
	return StatusMismatched
}

// Fetcher reads the anchor recorded for a credential. A nil anchor with a
// nil error means the credential was never anchored.
type Fetcher interface {
	FetchAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error)
}

// Submitter records a fingerprint on the ledger and returns its reference.
type Submitter interface {
	SubmitAnchor(ctx context.Context, id models.CredentialID, digest integrity.Digest) (*models.Anchor, error)
}

// FetcherFunc adapts a function, typically a store's GetAnchor, to Fetcher.
type FetcherFunc func(ctx context.Context, id models.CredentialID) (*models.Anchor, error)

func (f FetcherFunc) FetchAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error) {
	return f(ctx, id)
}
