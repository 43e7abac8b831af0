package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event records a lifecycle change or a verification attempt. It carries
// no credential content and no raw client address.
type Event struct {
	ID           uuid.UUID `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       Action    `json:"action"`
	CredentialID string    `json:"credential_id"`
	Outcome      string    `json:"outcome,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Method       string    `json:"method,omitempty"`
	AnchorStatus string    `json:"anchor_status,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	Browser      string    `json:"browser,omitempty"`
	OS           string    `json:"os,omitempty"`
	IsBot        bool      `json:"is_bot,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
}

// Action names what happened to a credential.
type Action string

const (
	ActionCredentialCreated  Action = "credential_created"
	ActionCredentialIssued   Action = "credential_issued"
	ActionCredentialRevoked  Action = "credential_revoked"
	ActionContentReplaced    Action = "credential_content_replaced"
	ActionAccessPolicySet    Action = "credential_access_policy_set"
	ActionCredentialVerified Action = "credential_verified"
	ActionAccessRequested    Action = "credential_access_requested"
)
