// Package service implements the issuer-side credential lifecycle: drafts,
// issuance with anchoring, revocation, content edits and access policies.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"attest/internal/anchor"
	"attest/internal/audit"
	"attest/internal/canonical"
	"attest/internal/credential/models"
	"attest/internal/credential/store"
	"attest/internal/integrity"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/privacy"
	"attest/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,AnchorSubmitter

// Store persists credentials. Update runs the mutation under the record's lock.
type Store interface {
	Create(ctx context.Context, c *models.Credential) error
	FindByID(ctx context.Context, id models.CredentialID) (*models.Credential, error)
	Update(ctx context.Context, id models.CredentialID, mutate store.Mutation) (*models.Credential, error)
}

// AnchorSubmitter records a fingerprint with the external ledger and reads
// back what the ledger holds when a submission conflicts.
type AnchorSubmitter interface {
	SubmitAnchor(ctx context.Context, id models.CredentialID, digest integrity.Digest) (*models.Anchor, error)
	FetchAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error)
}

// CodeHasher hashes access codes before they are stored.
type CodeHasher interface {
	HashAccessCode(code string) ([]byte, error)
}

// AuditPublisher receives lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) { s.auditor = a }
}

// Service coordinates the store, the ledger and the audit trail for issuer
// operations. It is safe for concurrent use.
type Service struct {
	store         Store
	submitter     AnchorSubmitter
	fingerprinter *integrity.Fingerprinter
	hasher        CodeHasher
	auditor       AuditPublisher
	logger        *slog.Logger
}

// New creates a Service. The logger defaults to slog.Default and auditing is
// off until WithAuditor is given.
func New(st Store, submitter AnchorSubmitter, fp *integrity.Fingerprinter, hasher CodeHasher, opts ...Option) *Service {
	s := &Service{
		store:         st,
		submitter:     submitter,
		fingerprinter: fp,
		hasher:        hasher,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCommand describes a new draft. ID is generated when empty.
type CreateCommand struct {
	ID         models.CredentialID
	Content    *canonical.Map
	Visibility models.Visibility
	ExpiresAt  *time.Time
	AccessCode string
	BoundEmail string
}

// AccessPolicyCommand sets visibility. Code and email are required for
// private credentials and ignored for public ones.
type AccessPolicyCommand struct {
	Visibility models.Visibility
	AccessCode string
	BoundEmail string
}

// Create validates content and stores a new draft. An empty ID gets a
// generated one; a taken ID is a conflict.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.Credential, error) {
	id := cmd.ID
	if id == "" {
		id = models.NewCredentialID()
	} else if _, err := models.ParseCredentialID(id.String()); err != nil {
		return nil, err
	}
	if err := s.checkContent(cmd.Content); err != nil {
		return nil, err
	}
	policy, err := s.buildPolicy(cmd.Visibility, cmd.AccessCode, cmd.BoundEmail)
	if err != nil {
		return nil, err
	}

	now := now(ctx)
	c, err := models.NewDraft(id, cmd.Content, cmd.Visibility, truncate(cmd.ExpiresAt), now)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		c.AccessPolicy = policy
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, storageError(err, "create credential")
	}

	s.emit(ctx, audit.Event{Action: audit.ActionCredentialCreated, CredentialID: id.String(), Outcome: string(c.Status)})
	return c, nil
}

// Issue moves a draft to issued, then fingerprints the issued record and
// submits it to the ledger. If anchoring fails the credential stays issued
// and unanchored; Anchor can be retried.
func (s *Service) Issue(ctx context.Context, id models.CredentialID) (*models.Credential, error) {
	now := now(ctx)
	issued, err := s.store.Update(ctx, id, func(c *models.Credential) error {
		return lifecycleError(c.Issue(now))
	})
	if err != nil {
		return nil, storageError(err, "issue credential")
	}
	s.emit(ctx, audit.Event{Action: audit.ActionCredentialIssued, CredentialID: id.String(), Outcome: string(issued.Status)})

	anchored, err := s.anchor(ctx, issued)
	if err != nil {
		return issued, err
	}
	return anchored, nil
}

// Anchor submits an issued, not yet anchored credential to the ledger.
func (s *Service) Anchor(ctx context.Context, id models.CredentialID) (*models.Credential, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "load credential")
	}
	if c.Status == models.StatusDraft {
		return nil, dErrors.New(dErrors.CodeConflict, "draft credentials cannot be anchored")
	}
	if c.Anchor != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "credential already anchored")
	}
	return s.anchor(ctx, c)
}

func (s *Service) anchor(ctx context.Context, c *models.Credential) (*models.Credential, error) {
	digest, err := s.fingerprinter.Content(c.FingerprintContent())
	if err != nil {
		return nil, err
	}
	a, err := s.submitter.SubmitAnchor(ctx, c.ID, digest)
	if errors.Is(err, anchor.ErrAlreadyAnchored) {
		a, err = s.recoverAnchor(ctx, c.ID, digest)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "anchor submission failed",
			"credential_id", c.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "credential issued but anchoring failed")
	}
	anchored, err := s.store.Update(ctx, c.ID, func(cur *models.Credential) error {
		cur.RecordAnchor(*a, now(ctx))
		return nil
	})
	if err != nil {
		return nil, storageError(err, "record anchor")
	}
	s.logger.InfoContext(ctx, "credential anchored",
		"credential_id", c.ID,
		"fingerprint", digest.String(),
		"anchor_reference", a.Reference,
	)
	return anchored, nil
}

// recoverAnchor handles a ledger that already holds an entry, which happens
// when an earlier submission succeeded but recording it locally did not. A
// matching entry is adopted; a different fingerprint is left for an operator.
func (s *Service) recoverAnchor(ctx context.Context, id models.CredentialID, digest integrity.Digest) (*models.Anchor, error) {
	existing, err := s.submitter.FetchAnchor(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "ledger reported a conflict but holds no anchor")
	}
	if existing.Hash.String() != digest.String() {
		return nil, dErrors.New(dErrors.CodeConflict, "ledger holds a different fingerprint for this credential")
	}
	s.logger.InfoContext(ctx, "adopting existing ledger anchor",
		"credential_id", id,
		"anchor_reference", existing.Reference,
	)
	return existing, nil
}

// Revoke marks an issued credential revoked with reason. Drafts cannot be
// revoked.
func (s *Service) Revoke(ctx context.Context, id models.CredentialID, reason string) (*models.Credential, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation reason is required")
	}
	now := now(ctx)
	c, err := s.store.Update(ctx, id, func(c *models.Credential) error {
		return lifecycleError(c.Revoke(reason, now))
	})
	if err != nil {
		return nil, storageError(err, "revoke credential")
	}
	s.emit(ctx, audit.Event{Action: audit.ActionCredentialRevoked, CredentialID: id.String(), Outcome: string(c.Status), Reason: reason})
	return c, nil
}

// UpdateContent replaces the content of a credential in any state. The
// anchor is kept, so an edit after anchoring is visible to verifiers as a
// mismatch.
func (s *Service) UpdateContent(ctx context.Context, id models.CredentialID, content *canonical.Map) (*models.Credential, error) {
	if err := s.checkContent(content); err != nil {
		return nil, err
	}
	now := now(ctx)
	c, err := s.store.Update(ctx, id, func(c *models.Credential) error {
		c.ReplaceContent(content, now)
		return nil
	})
	if err != nil {
		return nil, storageError(err, "update credential content")
	}
	s.emit(ctx, audit.Event{Action: audit.ActionContentReplaced, CredentialID: id.String(), Outcome: string(c.Status)})
	return c, nil
}

// SetAccessPolicy changes visibility. Making a credential public drops its
// policy.
func (s *Service) SetAccessPolicy(ctx context.Context, id models.CredentialID, cmd AccessPolicyCommand) (*models.Credential, error) {
	policy, err := s.buildPolicy(cmd.Visibility, cmd.AccessCode, cmd.BoundEmail)
	if err != nil {
		return nil, err
	}
	now := now(ctx)
	c, err := s.store.Update(ctx, id, func(c *models.Credential) error {
		c.SetAccessPolicy(cmd.Visibility, policy, now)
		return nil
	})
	if err != nil {
		return nil, storageError(err, "set access policy")
	}
	s.emit(ctx, audit.Event{Action: audit.ActionAccessPolicySet, CredentialID: id.String(), Outcome: string(c.Visibility)})
	if policy != nil {
		s.logger.InfoContext(ctx, "access policy set",
			"credential_id", id,
			"bound_email", privacy.MaskEmail(policy.BoundEmail),
		)
	}
	return c, nil
}

// Get returns the stored record.
func (s *Service) Get(ctx context.Context, id models.CredentialID) (*models.Credential, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "load credential")
	}
	return c, nil
}

func (s *Service) buildPolicy(visibility models.Visibility, code, email string) (*models.AccessPolicy, error) {
	if visibility != models.VisibilityPrivate {
		return nil, nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if code == "" || email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "private credentials require an access code and a bound email")
	}
	hash, err := s.hasher.HashAccessCode(code)
	if err != nil {
		return nil, err
	}
	return &models.AccessPolicy{AccessCodeHash: hash, BoundEmail: email}, nil
}

// checkContent rejects content the canonicalizer cannot encode, so a
// credential that cannot be fingerprinted is never stored.
func (s *Service) checkContent(content *canonical.Map) error {
	if content == nil {
		return nil
	}
	if _, err := s.fingerprinter.Content(content); err != nil {
		return &dErrors.Error{Code: dErrors.CodeValidation, Message: err.Error(), Err: err}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, e audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", e.Action, "error", err)
	}
}

func lifecycleError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrExpiryOrder):
		return &dErrors.Error{Code: dErrors.CodeValidation, Message: err.Error(), Err: err}
	default:
		return &dErrors.Error{Code: dErrors.CodeConflict, Message: err.Error(), Err: err}
	}
}

// storageError keeps domain codes and treats anything else from the store
// as a retriable outage.
func storageError(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
}

// now is request time truncated to what PostgreSQL stores, so fingerprints
// computed before and after a round trip agree.
func now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
}

func truncate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}
