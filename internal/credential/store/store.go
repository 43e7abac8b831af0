// Package store persists credentials. Every read returns a private copy
// taken at a single point in time, so callers never see a record that is
// half-way through an update.
package store

import (
	"context"

	"attest/internal/credential/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
)

// ErrNotFound is returned when a credential does not exist.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "credential not found")

// Mutation edits a credential inside Update. Returning an error aborts the
// update and leaves the stored record untouched.
type Mutation func(c *models.Credential) error

// Store is implemented by the in-memory and Postgres credential stores.
type Store interface {
	Create(ctx context.Context, c *models.Credential) error
	FindByID(ctx context.Context, id models.CredentialID) (*models.Credential, error)
	GetAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error)
	Update(ctx context.Context, id models.CredentialID, mutate Mutation) (*models.Credential, error)
}

func notFound() error {
	return &dErrors.Error{Code: dErrors.CodeNotFound, Message: "credential not found", Err: sentinel.ErrNotFound}
}

func conflict() error {
	return &dErrors.Error{Code: dErrors.CodeConflict, Message: "credential already exists", Err: sentinel.ErrConflict}
}
