// Package models holds the credential record shared by the lifecycle,
// storage and verification layers.
//
// Domain Purity: no I/O, no context.Context, no time.Now(). Callers pass
// time in.
package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"attest/internal/canonical"
	"attest/internal/integrity"
	dErrors "attest/pkg/domain-errors"

	"github.com/google/uuid"
)

const (
	credentialIDPrefix = "cred_"
	maxCredentialIDLen = 128
)

// Reserved content keys bound into the fingerprint from record fields.
const (
	FieldCredentialID = "credential_id"
	FieldIssuedAt     = "issued_at"
	FieldExpiresAt    = "expires_at"

	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldRecipientName  = "recipient_name"
	FieldRecipientEmail = "recipient_email"
	FieldIssuer         = "issuer"
	FieldOrganization   = "organization"
)

var validCredentialID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CredentialID is an opaque identifier used in public verification URLs.
type CredentialID string

// NewCredentialID returns a random, non-guessable id.
func NewCredentialID() CredentialID {
	return CredentialID(credentialIDPrefix + uuid.NewString())
}

// ParseCredentialID checks shape only. Ids from earlier formats (for example
// "DCP-20250101-A1B2C3D4") remain valid lookups.
func ParseCredentialID(value string) (CredentialID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", dErrors.New(dErrors.CodeValidation, "credential_id is required")
	}
	if len(value) > maxCredentialIDLen || !validCredentialID.MatchString(value) {
		return "", dErrors.New(dErrors.CodeValidation, "invalid credential_id format")
	}
	return CredentialID(value), nil
}

func (id CredentialID) String() string { return string(id) }

// Status is the stored lifecycle state of a credential.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusIssued  Status = "issued"
	StatusRevoked Status = "revoked"
	// StatusExpired is only stored by legacy writers. Expiry is otherwise
	// derived from ExpiresAt.
	StatusExpired Status = "expired"
)

// ParseStatus rejects values outside the known set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusIssued, StatusRevoked, StatusExpired:
		return Status(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown credential status")
}

// Visibility controls whether verifiers need an access proof.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility treats an empty string as public.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityPrivate:
		return Visibility(s), nil
	case "":
		return VisibilityPublic, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "visibility must be public or private")
}

// AccessPolicy guards a private credential. AccessCodeHash is a bcrypt hash.
type AccessPolicy struct {
	AccessCodeHash []byte
	BoundEmail     string
}

func (p *AccessPolicy) clone() *AccessPolicy {
	if p == nil {
		return nil
	}
	cp := *p
	cp.AccessCodeHash = append([]byte(nil), p.AccessCodeHash...)
	return &cp
}

// Anchor is a fingerprint recorded by an external ledger and the ledger's
// opaque reference for it (transaction hash, entry id).
type Anchor struct {
	Hash       integrity.Digest
	Reference  string
	AnchoredAt time.Time
}

var (
	ErrNotDraft       = errors.New("only draft credentials can be issued")
	ErrAlreadyRevoked = errors.New("credential is already revoked")
	ErrNotIssued      = errors.New("only issued credentials can be revoked")
	ErrExpiryOrder    = errors.New("expires_at must be after issued_at")
)

// Credential is the unit of trust.
//
// Invariants:
//   - ID never changes after creation
//   - Content is never nil
//   - AccessPolicy is only meaningful when Visibility is private
type Credential struct {
	ID               CredentialID
	Status           Status
	Visibility       Visibility
	Content          *canonical.Map
	AccessPolicy     *AccessPolicy
	IssuedAt         *time.Time
	ExpiresAt        *time.Time
	RevokedAt        *time.Time
	RevocationReason string
	Anchor           *Anchor
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewDraft creates a draft credential.
func NewDraft(id CredentialID, content *canonical.Map, visibility Visibility, expiresAt *time.Time, now time.Time) (*Credential, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credential_id is required")
	}
	if content == nil {
		content = canonical.NewMap()
	}
	if visibility == "" {
		visibility = VisibilityPublic
	}
	return &Credential{
		ID:         id,
		Status:     StatusDraft,
		Visibility: visibility,
		Content:    content.Clone(),
		ExpiresAt:  copyTime(expiresAt),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Issue moves a draft to issued.
func (c *Credential) Issue(now time.Time) error {
	if c.Status != StatusDraft {
		return ErrNotDraft
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return ErrExpiryOrder
	}
	c.Status = StatusIssued
	c.IssuedAt = &now
	c.touch(now)
	return nil
}

// Revoke records the revocation. Revoking twice is an error.
func (c *Credential) Revoke(reason string, now time.Time) error {
	switch c.Status {
	case StatusRevoked:
		return ErrAlreadyRevoked
	case StatusDraft:
		return ErrNotIssued
	}
	c.Status = StatusRevoked
	c.RevokedAt = &now
	c.RevocationReason = reason
	c.touch(now)
	return nil
}

// ReplaceContent swaps content. The anchor is left untouched so a change
// after anchoring shows up as a mismatch.
func (c *Credential) ReplaceContent(content *canonical.Map, now time.Time) {
	c.Content = content.Clone()
	c.touch(now)
}

// SetAccessPolicy stores a copy of policy. A public credential never keeps one.
func (c *Credential) SetAccessPolicy(visibility Visibility, policy *AccessPolicy, now time.Time) {
	c.Visibility = visibility
	c.AccessPolicy = policy.clone()
	if visibility == VisibilityPublic {
		c.AccessPolicy = nil
	}
	c.touch(now)
}

// RecordAnchor attaches the ledger entry for the current content.
func (c *Credential) RecordAnchor(a Anchor, now time.Time) {
	c.Anchor = &a
	c.touch(now)
}

func (c *Credential) touch(now time.Time) {
	c.UpdatedAt = now
	c.Version++
}

func (c *Credential) IsPrivate() bool { return c.Visibility == VisibilityPrivate }

// IsExpiredAt reports whether ExpiresAt has passed. No ExpiresAt means the
// credential never expires.
func (c *Credential) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// FingerprintContent is the content hashed for integrity: the semantic
// fields plus the record's id and validity window.
func (c *Credential) FingerprintContent() *canonical.Map {
	out := c.Content.Clone()
	out.Set(FieldCredentialID, canonical.String(c.ID.String()))
	out.Set(FieldIssuedAt, timeValue(c.IssuedAt))
	out.Set(FieldExpiresAt, timeValue(c.ExpiresAt))
	return out
}

// Clone returns a deep copy so readers never share mutable state with the
// store.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Content = c.Content.Clone()
	cp.AccessPolicy = c.AccessPolicy.clone()
	cp.IssuedAt = copyTime(c.IssuedAt)
	cp.ExpiresAt = copyTime(c.ExpiresAt)
	cp.RevokedAt = copyTime(c.RevokedAt)
	if c.Anchor != nil {
		a := *c.Anchor
		cp.Anchor = &a
	}
	return &cp
}

func timeValue(t *time.Time) canonical.Value {
	if t == nil {
		return canonical.Absent()
	}
	return canonical.Timestamp(*t)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
