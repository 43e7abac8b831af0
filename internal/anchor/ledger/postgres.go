package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attest/internal/anchor"
	"attest/internal/credential/models"
	"attest/internal/integrity"
	"attest/pkg/requestcontext"
)

// Postgres stores anchors in credential_anchors. The table has no UPDATE
// path; a second submission for the same credential is rejected.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a ledger on db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// SubmitAnchor inserts the entry or reports anchor.ErrAlreadyAnchored.
func (l *Postgres) SubmitAnchor(ctx context.Context, id models.CredentialID, digest integrity.Digest) (*models.Anchor, error) {
	a := models.Anchor{
		Hash:       digest,
		Reference:  newReference(),
		AnchoredAt: requestcontext.Now(ctx).UTC().Truncate(time.Microsecond),
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO credential_anchors (credential_id, hash, reference, anchored_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (credential_id) DO NOTHING`,
		id.String(), digest.String(), a.Reference, a.AnchoredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert anchor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert anchor: %w", err)
	}
	if n == 0 {
		return nil, anchor.ErrAlreadyAnchored
	}
	return &a, nil
}

// FetchAnchor returns nil, nil when no entry exists.
func (l *Postgres) FetchAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error) {
	var (
		hash string
		a    models.Anchor
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT hash, reference, anchored_at FROM credential_anchors WHERE credential_id = $1`,
		id.String(),
	).Scan(&hash, &a.Reference, &a.AnchoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch anchor: %w", err)
	}
	a.Hash, err = integrity.ParseDigest(hash)
	if err != nil {
		return nil, fmt.Errorf("anchor for %s: %w", id, err)
	}
	a.AnchoredAt = a.AnchoredAt.UTC()
	return &a, nil
}
