package verification

import (
	"time"

	"attest/internal/anchor"
	"attest/internal/credential/models"
	"attest/internal/integrity"
	dErrors "attest/pkg/domain-errors"
)

// State is derived on every request; it is never stored.
type State string

const (
	// StateDraft and StateIssued describe the record before the terminal
	// decision. Results only ever carry the terminal states below.
	StateDraft  State = "DRAFT"
	StateIssued State = "ISSUED"

	StateValid        State = "VALID"
	StateInvalid      State = "INVALID"
	StateExpired      State = "EXPIRED"
	StateRevoked      State = "REVOKED"
	StateNotFound     State = "NOT_FOUND"
	StateAccessDenied State = "ACCESS_DENIED"
)

// Reason is the generic failure category shown to verifiers.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNotFound     Reason = "not_found"
	ReasonInvalid      Reason = "invalid"
	ReasonExpired      Reason = "expired"
	ReasonRevoked      Reason = "revoked"
	ReasonAccessDenied Reason = "access_denied"
)

// Check names a step of the state machine, recorded in execution order.
type Check string

const (
	CheckExistence       Check = "existence"
	CheckStatus          Check = "status"
	CheckExpiry          Check = "expiry"
	CheckAccessControl   Check = "access_control"
	CheckIntegrityAnchor Check = "integrity_anchor"
)

// Method is how the verifier reached the credential.
type Method string

const (
	MethodURL    Method = "url"
	MethodQRCode Method = "qr_code"
	MethodAPI    Method = "api"
)

func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "":
		return MethodURL, nil
	case MethodURL, MethodQRCode, MethodAPI:
		return Method(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "method must be url, qr_code or api")
}

// Config is the verification policy.
type Config struct {
	// StrictAnchorMatch makes an anchor mismatch fatal. When false a
	// mismatch is only a warning.
	StrictAnchorMatch bool
	// AccessGrantTTL is the lifetime of grants issued by RequestAccess.
	AccessGrantTTL time.Duration
}

// Request asks for a verification. A private credential needs either
// AccessToken (from RequestAccess) or Code and Email.
type Request struct {
	CredentialID models.CredentialID
	AccessToken  string
	Code         string
	Email        string
	Method       Method
}

func (r Request) hasProof() bool {
	return r.AccessToken != "" || r.Code != "" || r.Email != ""
}

// Result is produced fresh per request. Credential is only set when IsValid.
type Result struct {
	CredentialID    models.CredentialID
	IsValid         bool
	State           State
	Reason          Reason
	ChecksPerformed []Check
	Warnings        []string
	Errors          []string
	AnchorStatus    anchor.Status
	Fingerprint     integrity.Digest
	AnchorReference string
	VerifiedAt      time.Time
	Credential      *models.Credential
}

func newResult(id models.CredentialID, now time.Time) *Result {
	return &Result{
		CredentialID:    id,
		AnchorStatus:    anchor.StatusNotAnchored,
		ChecksPerformed: make([]Check, 0, 5),
		Warnings:        []string{},
		Errors:          []string{},
		VerifiedAt:      now,
	}
}

func (r *Result) check(c Check) {
	r.ChecksPerformed = append(r.ChecksPerformed, c)
}

func (r *Result) fail(state State, reason Reason) *Result {
	r.IsValid = false
	r.State = state
	r.Reason = reason
	r.Credential = nil
	return r
}

// AccessRequest is the private access proof exchanged for a grant.
type AccessRequest struct {
	CredentialID models.CredentialID
	Code         string
	Email        string
}

// AccessResult never says why access was refused.
type AccessResult struct {
	Granted   bool
	Token     string
	ExpiresAt time.Time
}

// Export is a verification result plus, when valid, the rendered document.
type Export struct {
	Result   *Result
	Document []byte
	NQuads   string
}
