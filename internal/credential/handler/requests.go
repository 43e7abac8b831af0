package handler

import (
	"strings"
	"time"

	"attest/internal/canonical"
)

// CreateRequest creates a draft. credential_id is generated when omitted.
type CreateRequest struct {
	CredentialID string         `json:"credential_id" validate:"omitempty,max=128"`
	Content      *canonical.Map `json:"content" validate:"required"`
	Visibility   string         `json:"visibility" validate:"omitempty,oneof=public private"`
	ExpiresAt    *time.Time     `json:"expires_at"`
	AccessCode   string         `json:"access_code" validate:"omitempty,max=128"`
	BoundEmail   string         `json:"bound_email" validate:"omitempty,email,max=255"`
}

func (r *CreateRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Visibility = strings.ToLower(strings.TrimSpace(r.Visibility))
	r.BoundEmail = strings.ToLower(strings.TrimSpace(r.BoundEmail))
}

// RevokeRequest is the body of a revocation.
type RevokeRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

func (r *RevokeRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

// ContentRequest replaces a credential's content wholesale.
type ContentRequest struct {
	Content *canonical.Map `json:"content" validate:"required"`
}

// AccessPolicyRequest changes visibility. Code and email are required only
// for private credentials.
type AccessPolicyRequest struct {
	Visibility string `json:"visibility" validate:"required,oneof=public private"`
	AccessCode string `json:"access_code" validate:"required_if=Visibility private,max=128"`
	BoundEmail string `json:"bound_email" validate:"required_if=Visibility private,max=255"`
}

func (r *AccessPolicyRequest) Normalize() {
	r.Visibility = strings.ToLower(strings.TrimSpace(r.Visibility))
	r.BoundEmail = strings.ToLower(strings.TrimSpace(r.BoundEmail))
}
