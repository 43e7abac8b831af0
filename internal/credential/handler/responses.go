package handler

import (
	"time"

	"attest/internal/canonical"
	"attest/internal/credential/models"
)

// AnchorResponse describes the anchor recorded on the credential.
type AnchorResponse struct {
	Hash       string    `json:"hash"`
	Reference  string    `json:"reference"`
	AnchoredAt time.Time `json:"anchored_at"`
}

// CredentialResponse is the issuer's view of a credential. Access code
// hashes are never rendered.
type CredentialResponse struct {
	CredentialID     string          `json:"credential_id"`
	Status           string          `json:"status"`
	Visibility       string          `json:"visibility"`
	Content          *canonical.Map  `json:"content"`
	BoundEmail       string          `json:"bound_email,omitempty"`
	IssuedAt         *time.Time      `json:"issued_at,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	RevokedAt        *time.Time      `json:"revoked_at,omitempty"`
	RevocationReason string          `json:"revocation_reason,omitempty"`
	Anchor           *AnchorResponse `json:"anchor,omitempty"`
	AnchorPending    bool            `json:"anchor_pending,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toResponse(c *models.Credential) *CredentialResponse {
	res := &CredentialResponse{
		CredentialID:     c.ID.String(),
		Status:           string(c.Status),
		Visibility:       string(c.Visibility),
		Content:          c.Content,
		IssuedAt:         c.IssuedAt,
		ExpiresAt:        c.ExpiresAt,
		RevokedAt:        c.RevokedAt,
		RevocationReason: c.RevocationReason,
		Version:          c.Version,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if c.AccessPolicy != nil {
		res.BoundEmail = c.AccessPolicy.BoundEmail
	}
	if c.Anchor != nil {
		res.Anchor = &AnchorResponse{
			Hash:       c.Anchor.Hash.String(),
			Reference:  c.Anchor.Reference,
			AnchoredAt: c.Anchor.AnchoredAt,
		}
	}
	if c.Status != models.StatusDraft && c.Anchor == nil {
		res.AnchorPending = true
	}
	return res
}
