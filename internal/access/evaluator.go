package access

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"attest/internal/credential/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/privacy"
	"attest/pkg/platform/sentinel"
	"attest/pkg/secrets"
)

const (
	DefaultGrantTTL = 5 * time.Minute
	MaxGrantTTL     = time.Hour
)

// Config configures the Evaluator.
type Config struct {
	SigningKey []byte
	GrantTTL   time.Duration
	// SingleUse makes every grant redeemable exactly once.
	SingleUse bool
	// HashCost must match the cost used for stored access-code hashes so the
	// placeholder comparison on ineligible requests costs the same.
	HashCost int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// WithFailureHook is called after every recorded failure with the running count.
func WithFailureHook(hook FailureHook) Option {
	return func(e *Evaluator) { e.onFailure = hook }
}

// Evaluator is safe for concurrent use.
type Evaluator struct {
	cfg         Config
	tokens      *tokenService
	grants      GrantStore
	attempts    AttemptCounter
	placeholder []byte
	logger      *slog.Logger
	onFailure   FailureHook
}

// New validates cfg and creates an Evaluator.
func New(cfg Config, grants GrantStore, attempts AttemptCounter, opts ...Option) (*Evaluator, error) {
	if grants == nil && cfg.SingleUse {
		return nil, dErrors.New(dErrors.CodeValidation, "grant store is required for single-use grants")
	}
	if attempts == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "attempt counter is required")
	}
	if cfg.GrantTTL <= 0 {
		cfg.GrantTTL = DefaultGrantTTL
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	tokens, err := newTokenService(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	// Hash of a random secret nobody knows; compared against on requests
	// that can never succeed so they do the same bcrypt work.
	seed, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	placeholder, err := secrets.HashWithCost(seed, cfg.HashCost)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		cfg:         cfg,
		tokens:      tokens,
		grants:      grants,
		attempts:    attempts,
		placeholder: placeholder,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// HashAccessCode produces a stored access-code hash at the evaluator's cost.
func (e *Evaluator) HashAccessCode(code string) ([]byte, error) {
	return secrets.HashWithCost(code, e.cfg.HashCost)
}

// Evaluate checks the supplied code and email against cred's access policy
// and, on success, issues a grant the caller can hand back to the requester.
// cred may be nil when the id does not exist; the request is then denied
// after the same amount of work as a wrong code.
//
// The returned error is reserved for infrastructure failures. A denial is a
// Decision with Granted false.
func (e *Evaluator) Evaluate(ctx context.Context, id models.CredentialID, cred *models.Credential, req Request) (*Decision, error) {
	if !e.match(ctx, id, cred, req) {
		return &Decision{Granted: false}, nil
	}

	ttl := e.grantTTL(req.TTL)
	grant, err := e.tokens.issue(ctx, id, req.Email, ttl)
	if err != nil {
		return nil, err
	}
	if e.cfg.SingleUse {
		if err := e.grants.Save(ctx, grant.ID, id, grant.ExpiresAt); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "record access grant")
		}
	}
	e.resetAttempts(ctx, id)
	e.info(ctx, "access granted", id, "issued_to", privacy.MaskEmail(grant.IssuedTo), "expires_at", grant.ExpiresAt)
	return &Decision{Granted: true, Grant: grant}, nil
}

// Check is Evaluate without the grant: a one-shot authorization for the
// current request. Failures count toward the attempt limit the same way.
func (e *Evaluator) Check(ctx context.Context, id models.CredentialID, cred *models.Credential, req Request) (bool, error) {
	if !e.match(ctx, id, cred, req) {
		return false, nil
	}
	e.resetAttempts(ctx, id)
	e.info(ctx, "access checked", id)
	return true, nil
}

// match does the same work whether or not the credential exists or is
// private, and records a failure on any mismatch.
func (e *Evaluator) match(ctx context.Context, id models.CredentialID, cred *models.Credential, req Request) bool {
	hash := e.placeholder
	boundEmail := ""
	eligible := 0

	switch {
	case cred == nil:
	case !cred.IsPrivate():
	case cred.AccessPolicy == nil || len(cred.AccessPolicy.AccessCodeHash) == 0:
		e.warn(ctx, "private credential has no access policy", id)
	default:
		hash = cred.AccessPolicy.AccessCodeHash
		boundEmail = cred.AccessPolicy.BoundEmail
		eligible = 1
	}

	codeOK := 0
	if bcrypt.CompareHashAndPassword(hash, []byte(req.Code)) == nil {
		codeOK = 1
	}
	emailOK := emailMatches(boundEmail, req.Email)

	if eligible&codeOK&emailOK != 1 {
		e.recordFailure(ctx, id)
		return false
	}
	return true
}

// Redeem validates an access token for id and, for single-use grants,
// consumes it. Any problem with the token is ErrAccessDenied; grant store
// outages are CodeUnavailable.
func (e *Evaluator) Redeem(ctx context.Context, id models.CredentialID, token string) (*AccessGrant, error) {
	claims, err := e.tokens.parse(ctx, token)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(claims.CredentialID), []byte(id.String())) != 1 {
		return nil, ErrAccessDenied
	}
	if e.cfg.SingleUse {
		if err := e.grants.Consume(ctx, claims.ID); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				e.warn(ctx, "access grant replayed", id)
				return nil, ErrAccessDenied
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consume access grant")
		}
	}
	return &AccessGrant{
		ID:           claims.ID,
		CredentialID: id,
		Token:        token,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// Failures exposes the failed-attempt counter for id.
func (e *Evaluator) Failures(ctx context.Context, id models.CredentialID) (int64, error) {
	return e.attempts.Failures(ctx, id)
}

func (e *Evaluator) grantTTL(requested time.Duration) time.Duration {
	ttl := e.cfg.GrantTTL
	if requested > 0 {
		ttl = requested
	}
	return min(ttl, MaxGrantTTL)
}

func (e *Evaluator) resetAttempts(ctx context.Context, id models.CredentialID) {
	if err := e.attempts.Reset(ctx, id); err != nil {
		e.warn(ctx, "failed to reset access attempt counter", id, "error", err)
	}
}

func (e *Evaluator) recordFailure(ctx context.Context, id models.CredentialID) {
	failures, err := e.attempts.RecordFailure(ctx, id)
	if err != nil {
		e.warn(ctx, "failed to record access attempt", id, "error", err)
		return
	}
	if e.onFailure != nil {
		e.onFailure(ctx, id, failures)
	}
}

// emailMatches compares fixed-length digests so the comparison time does not
// depend on where the strings differ. An unbound policy accepts any email but
// still pays for the digest.
func emailMatches(bound, supplied string) int {
	want := sha256.Sum256([]byte(normalizeEmail(bound)))
	got := sha256.Sum256([]byte(normalizeEmail(supplied)))
	eq := subtle.ConstantTimeCompare(want[:], got[:])
	unbound := subtle.ConstantTimeEq(int32(len(bound)), 0)
	return eq | unbound
}

func (e *Evaluator) info(ctx context.Context, msg string, id models.CredentialID, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.InfoContext(ctx, msg, append([]any{"credential_id", id.String()}, args...)...)
}

func (e *Evaluator) warn(ctx context.Context, msg string, id models.CredentialID, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.WarnContext(ctx, msg, append([]any{"credential_id", id.String()}, args...)...)
}
