package handler

import (
	"time"

	"attest/internal/canonical"
	"attest/internal/credential/models"
	"attest/internal/verification"
	"attest/pkg/platform/privacy"
)

// VerificationResponse is the public view of a verification result. Fields
// of private credentials are omitted unless access was granted.
type VerificationResponse struct {
	CredentialID    string          `json:"credential_id"`
	IsValid         bool            `json:"is_valid"`
	State           string          `json:"state"`
	Reason          string          `json:"reason,omitempty"`
	ChecksPerformed []string        `json:"checks_performed"`
	Warnings        []string        `json:"warnings"`
	Errors          []string        `json:"errors"`
	AnchorStatus    string          `json:"anchor_status"`
	Fingerprint     string          `json:"fingerprint,omitempty"`
	AnchorReference string          `json:"anchor_reference,omitempty"`
	VerifiedAt      time.Time       `json:"verified_at"`
	Credential      *CredentialView `json:"credential,omitempty"`
}

// CredentialView is the disclosable part of a valid credential.
type CredentialView struct {
	Visibility string         `json:"visibility"`
	IssuedAt   *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	Content    *canonical.Map `json:"content"`
}

// AccessResponse carries a grant token when access was granted.
type AccessResponse struct {
	AccessGranted bool       `json:"access_granted"`
	AccessToken   string     `json:"access_token,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func toResponse(r *verification.Result) *VerificationResponse {
	res := &VerificationResponse{
		CredentialID:    r.CredentialID.String(),
		IsValid:         r.IsValid,
		State:           string(r.State),
		Reason:          string(r.Reason),
		ChecksPerformed: make([]string, 0, len(r.ChecksPerformed)),
		Warnings:        r.Warnings,
		Errors:          r.Errors,
		AnchorStatus:    string(r.AnchorStatus),
		AnchorReference: r.AnchorReference,
		VerifiedAt:      r.VerifiedAt,
	}
	for _, c := range r.ChecksPerformed {
		res.ChecksPerformed = append(res.ChecksPerformed, string(c))
	}
	if !r.Fingerprint.IsZero() {
		res.Fingerprint = r.Fingerprint.String()
	}
	if r.IsValid && r.Credential != nil {
		res.Credential = toView(r.Credential)
	}
	return res
}

// toView masks the recipient email of private credentials.
func toView(c *models.Credential) *CredentialView {
	content := c.Content.Clone()
	if c.IsPrivate() {
		if email := content.GetString(models.FieldRecipientEmail); email != "" {
			content.Set(models.FieldRecipientEmail, canonical.String(privacy.MaskEmail(email)))
		}
	}
	return &CredentialView{
		Visibility: string(c.Visibility),
		IssuedAt:   c.IssuedAt,
		ExpiresAt:  c.ExpiresAt,
		Content:    content,
	}
}
