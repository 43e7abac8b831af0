package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"attest/internal/canonical"
	"attest/internal/credential/models"
	"attest/internal/integrity"
	dErrors "attest/pkg/domain-errors"
)

const credentialColumns = `
	id, status, visibility, content, access_code_hash, bound_email,
	issued_at, expires_at, revoked_at, revocation_reason,
	anchor_hash, anchor_reference, anchored_at,
	version, created_at, updated_at`

const pgUniqueViolation = "23505"

// PostgresStore persists credentials in PostgreSQL. A credential is one row,
// so a single SELECT is a consistent snapshot.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts c. A duplicate id is reported as a conflict.
func (s *PostgresStore) Create(ctx context.Context, c *models.Credential) error {
	row, err := toRow(c)
	if err != nil {
		return err
	}
	query := `INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = s.db.ExecContext(ctx, query, row.args()...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return conflict()
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// FindByID loads one credential. A row that fails to decode is an internal
// error rather than not-found.
func (s *PostgresStore) FindByID(ctx context.Context, id models.CredentialID) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound()
		}
		return nil, fmt.Errorf("find credential by id: %w", err)
	}
	return c, nil
}

// GetAnchor reads only the anchor columns.
func (s *PostgresStore) GetAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error) {
	var (
		hash, reference sql.NullString
		anchoredAt      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT anchor_hash, anchor_reference, anchored_at FROM credentials WHERE id = $1`,
		id.String(),
	).Scan(&hash, &reference, &anchoredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound()
		}
		return nil, fmt.Errorf("get credential anchor: %w", err)
	}
	return anchorFromColumns(hash, reference, anchoredAt)
}

// Update locks the row for the duration of the mutation.
func (s *PostgresStore) Update(ctx context.Context, id models.CredentialID, mutate Mutation) (*models.Credential, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin credential update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1 FOR UPDATE`
	current, err := scanCredential(tx.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound()
		}
		return nil, fmt.Errorf("lock credential: %w", err)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID

	row, err := toRow(next)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE credentials SET
			status = $2, visibility = $3, content = $4, access_code_hash = $5, bound_email = $6,
			issued_at = $7, expires_at = $8, revoked_at = $9, revocation_reason = $10,
			anchor_hash = $11, anchor_reference = $12, anchored_at = $13,
			version = $14, created_at = $15, updated_at = $16
		WHERE id = $1`, row.args()...)
	if err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credential update: %w", err)
	}
	return next, nil
}

type credentialRow struct {
	id, status, visibility string
	content                []byte
	accessCodeHash         []byte
	boundEmail             sql.NullString
	issuedAt, expiresAt    sql.NullTime
	revokedAt              sql.NullTime
	revocationReason       string
	anchorHash, anchorRef  sql.NullString
	anchoredAt             sql.NullTime
	version                int64
	createdAt, updatedAt   time.Time
}

func (r credentialRow) args() []any {
	return []any{
		r.id, r.status, r.visibility, r.content, r.accessCodeHash, r.boundEmail,
		r.issuedAt, r.expiresAt, r.revokedAt, r.revocationReason,
		r.anchorHash, r.anchorRef, r.anchoredAt,
		r.version, r.createdAt, r.updatedAt,
	}
}

func toRow(c *models.Credential) (credentialRow, error) {
	content, err := canonical.EncodeTyped(c.Content)
	if err != nil {
		return credentialRow{}, fmt.Errorf("encode credential content: %w", err)
	}
	row := credentialRow{
		id:               c.ID.String(),
		status:           string(c.Status),
		visibility:       string(c.Visibility),
		content:          content,
		issuedAt:         nullTime(c.IssuedAt),
		expiresAt:        nullTime(c.ExpiresAt),
		revokedAt:        nullTime(c.RevokedAt),
		revocationReason: c.RevocationReason,
		version:          c.Version,
		createdAt:        c.CreatedAt,
		updatedAt:        c.UpdatedAt,
	}
	if p := c.AccessPolicy; p != nil {
		row.accessCodeHash = p.AccessCodeHash
		row.boundEmail = sql.NullString{String: p.BoundEmail, Valid: p.BoundEmail != ""}
	}
	if a := c.Anchor; a != nil {
		row.anchorHash = sql.NullString{String: a.Hash.String(), Valid: true}
		row.anchorRef = sql.NullString{String: a.Reference, Valid: true}
		row.anchoredAt = sql.NullTime{Time: a.AnchoredAt, Valid: !a.AnchoredAt.IsZero()}
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var r credentialRow
	err := row.Scan(
		&r.id, &r.status, &r.visibility, &r.content, &r.accessCodeHash, &r.boundEmail,
		&r.issuedAt, &r.expiresAt, &r.revokedAt, &r.revocationReason,
		&r.anchorHash, &r.anchorRef, &r.anchoredAt,
		&r.version, &r.createdAt, &r.updatedAt,
	)
	if err != nil {
		return nil, err
	}

	status, err := models.ParseStatus(r.status)
	if err != nil {
		return nil, corrupt(r.id, "status", err)
	}
	visibility, err := models.ParseVisibility(r.visibility)
	if err != nil {
		return nil, corrupt(r.id, "visibility", err)
	}
	content, err := canonical.DecodeTyped(r.content)
	if err != nil {
		return nil, corrupt(r.id, "content", err)
	}
	anchor, err := anchorFromColumns(r.anchorHash, r.anchorRef, r.anchoredAt)
	if err != nil {
		return nil, corrupt(r.id, "anchor_hash", err)
	}

	c := &models.Credential{
		ID:               models.CredentialID(r.id),
		Status:           status,
		Visibility:       visibility,
		Content:          content,
		IssuedAt:         timePtr(r.issuedAt),
		ExpiresAt:        timePtr(r.expiresAt),
		RevokedAt:        timePtr(r.revokedAt),
		RevocationReason: r.revocationReason,
		Anchor:           anchor,
		Version:          r.version,
		CreatedAt:        r.createdAt.UTC(),
		UpdatedAt:        r.updatedAt.UTC(),
	}
	if len(r.accessCodeHash) > 0 || r.boundEmail.Valid {
		c.AccessPolicy = &models.AccessPolicy{
			AccessCodeHash: r.accessCodeHash,
			BoundEmail:     r.boundEmail.String,
		}
	}
	return c, nil
}

// corrupt reports a stored row that no longer decodes. Whatever code the
// decoder attached, the caller sees an internal error: a bad row is neither
// the client's fault nor worth retrying.
func corrupt(id, column string, err error) error {
	return &dErrors.Error{
		Code:    dErrors.CodeInternal,
		Message: "corrupt credential record",
		Err:     fmt.Errorf("credential %s: column %s: %w", id, column, err),
	}
}

func anchorFromColumns(hash, reference sql.NullString, anchoredAt sql.NullTime) (*models.Anchor, error) {
	if !hash.Valid || hash.String == "" {
		return nil, nil
	}
	digest, err := integrity.ParseDigest(hash.String)
	if err != nil {
		return nil, err
	}
	a := &models.Anchor{Hash: digest, Reference: reference.String}
	if anchoredAt.Valid {
		a.AnchoredAt = anchoredAt.Time.UTC()
	}
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
