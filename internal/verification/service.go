// Package verification decides, per request, whether a credential is
// authentic, current and disclosable to the caller.
//
// Nothing here mutates credential state. Every decision is re-derived from
// one snapshot of the record, so an abandoned request leaves nothing to
// roll back.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"attest/internal/access"
	"attest/internal/anchor"
	"attest/internal/audit"
	"attest/internal/credential/models"
	"attest/internal/integrity"
	"attest/internal/jsonld"
	"attest/internal/platform/tracer"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks CredentialReader,AccessEvaluator

// DefaultStorageTimeout bounds a single credential lookup.
const DefaultStorageTimeout = 2 * time.Second

// CredentialReader is the read side of the credential store.
type CredentialReader interface {
	FindByID(ctx context.Context, id models.CredentialID) (*models.Credential, error)
}

// AccessEvaluator decides whether a requester may see a private credential.
// Evaluate issues a grant; Check authorizes one request and issues nothing.
type AccessEvaluator interface {
	Evaluate(ctx context.Context, id models.CredentialID, cred *models.Credential, req access.Request) (*access.Decision, error)
	Check(ctx context.Context, id models.CredentialID, cred *models.Credential, req access.Request) (bool, error)
	Redeem(ctx context.Context, id models.CredentialID, token string) (*access.AccessGrant, error)
}

// Exporter renders a verified credential as a JSON-LD document.
type Exporter interface {
	Export(ctx context.Context, c *models.Credential, in jsonld.Integrity) (*jsonld.Document, error)
}

// AuditPublisher records verification attempts.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAnchorFetcher reads anchors from the ledger instead of trusting the
// copy kept on the credential record.
func WithAnchorFetcher(f anchor.Fetcher) Option {
	return func(s *Service) { s.anchors = f }
}

func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) { s.auditor = a }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storageTimeout = d
		}
	}
}

// Service answers public verification requests.
type Service struct {
	cfg            Config
	credentials    CredentialReader
	evaluator      AccessEvaluator
	fingerprinter  *integrity.Fingerprinter
	anchors        anchor.Fetcher
	exporter       Exporter
	auditor        AuditPublisher
	metrics        *Metrics
	tracer         tracer.Tracer
	logger         *slog.Logger
	storageTimeout time.Duration
}

// New creates a verification service. Without WithAnchorFetcher the anchor
// stored on the credential record is trusted.
func New(cfg Config, credentials CredentialReader, evaluator AccessEvaluator, fp *integrity.Fingerprinter, opts ...Option) *Service {
	s := &Service{
		cfg:            cfg,
		credentials:    credentials,
		evaluator:      evaluator,
		fingerprinter:  fp,
		tracer:         tracer.NewNoop(),
		logger:         slog.Default(),
		storageTimeout: DefaultStorageTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify runs the state machine. Verification outcomes, including
// NOT_FOUND and ACCESS_DENIED, are Results; the error is reserved for
// storage outages (CodeUnavailable), malformed content
// (CodeCanonicalization) and cancellation.
func (s *Service) Verify(ctx context.Context, req Request) (*Result, error) {
	if req.Method == "" {
		req.Method = MethodURL
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrCredentialID, req.CredentialID.String()),
		tracer.String(tracer.AttrMethod, string(req.Method)),
	)

	res, err := s.verify(ctx, req, span)
	if err != nil {
		span.End(err)
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "verification failed",
			"credential_id", req.CredentialID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		s.emit(ctx, audit.Event{
			Action:       audit.ActionCredentialVerified,
			CredentialID: req.CredentialID.String(),
			Outcome:      "error",
			Reason:       string(dErrors.CodeOf(err)),
			Method:       string(req.Method),
		})
		return nil, err
	}
	span.SetAttributes(
		tracer.String(tracer.AttrState, string(res.State)),
		tracer.String(tracer.AttrAnchorStatus, string(res.AnchorStatus)),
	)
	span.End(nil)

	s.metrics.observeResult(res, req.Method, time.Since(start))
	s.logger.InfoContext(ctx, "credential verified",
		"log_type", "audit",
		"credential_id", res.CredentialID,
		"state", res.State,
		"anchor_status", res.AnchorStatus,
		"method", req.Method,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{
		Action:       audit.ActionCredentialVerified,
		CredentialID: res.CredentialID.String(),
		Outcome:      string(res.State),
		Reason:       string(res.Reason),
		Method:       string(req.Method),
		AnchorStatus: string(res.AnchorStatus),
	})
	return res, nil
}

func (s *Service) verify(ctx context.Context, req Request, span tracer.Span) (*Result, error) {
	now := requestcontext.Now(ctx)
	res := newResult(req.CredentialID, now)

	res.check(CheckExistence)
	id, err := models.ParseCredentialID(req.CredentialID.String())
	if err != nil {
		return res.fail(StateNotFound, ReasonNotFound), nil
	}
	snap, err := s.load(ctx, id)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return res.fail(StateNotFound, ReasonNotFound), nil
		}
		return nil, err
	}
	cred := snap.credential

	state := derive(cred, now)
	res.check(CheckStatus)
	switch state {
	case StateDraft:
		res.Errors = append(res.Errors, "credential has not been issued")
		return res.fail(StateInvalid, ReasonInvalid), nil
	case StateRevoked:
		res.Errors = append(res.Errors, "credential has been revoked")
		return res.fail(StateRevoked, ReasonRevoked), nil
	}

	res.check(CheckExpiry)
	if state == StateExpired {
		res.Errors = append(res.Errors, "credential has expired")
		return res.fail(StateExpired, ReasonExpired), nil
	}

	if cred.IsPrivate() {
		res.check(CheckAccessControl)
		granted, err := s.authorize(ctx, cred, req)
		if err != nil {
			return nil, err
		}
		if !granted {
			res.Errors = append(res.Errors, "access denied")
			return res.fail(StateAccessDenied, ReasonAccessDenied), nil
		}
	}

	res.check(CheckIntegrityAnchor)
	if err := s.reconcile(ctx, res, cred, snap, span); err != nil {
		return nil, err
	}
	if res.AnchorStatus == anchor.StatusMismatched && s.cfg.StrictAnchorMatch {
		res.Errors = append(res.Errors, "anchor_status: mismatched")
		return res.fail(StateInvalid, ReasonInvalid), nil
	}

	res.IsValid = true
	res.State = StateValid
	res.Credential = cred
	return res, nil
}

// derive maps the record to its current state. Revocation wins over expiry.
func derive(c *models.Credential, now time.Time) State {
	switch {
	case c.Status == models.StatusDraft:
		return StateDraft
	case c.Status == models.StatusRevoked:
		return StateRevoked
	case c.Status == models.StatusExpired, c.IsExpiredAt(now):
		return StateExpired
	default:
		return StateIssued
	}
}

type snapshot struct {
	credential *models.Credential
	// ledgerAnchor and ledgerErr are only meaningful with a fetcher.
	ledgerAnchor *models.Anchor
	ledgerErr    error
}

// load reads the credential and, when a ledger is configured, its anchor
// in parallel. Only the credential read can fail the request.
func (s *Service) load(ctx context.Context, id models.CredentialID) (*snapshot, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLoad, tracer.String(tracer.AttrCredentialID, id.String()))
	snap := &snapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.findCredential(gctx, id)
		if err != nil {
			return err
		}
		snap.credential = c
		return nil
	})
	if s.anchors != nil {
		g.Go(func() error {
			snap.ledgerAnchor, snap.ledgerErr = s.anchors.FetchAnchor(gctx, id)
			return nil
		})
	}
	err := g.Wait()
	span.End(err)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) findCredential(ctx context.Context, id models.CredentialID) (*models.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	c, err := s.credentials.FindByID(ctx, id)
	if err == nil {
		return c, nil
	}
	var de *dErrors.Error
	switch {
	case errors.Is(err, context.Canceled):
		return nil, err
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics.observeUnavailable("storage")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "credential storage timed out")
	case errors.As(err, &de):
		// Domain errors from the store, including corrupt records, keep
		// their code. Only driver failures are retriable.
		return nil, err
	default:
		s.metrics.observeUnavailable("storage")
		return nil, &dErrors.Error{Code: dErrors.CodeUnavailable, Message: "credential storage unavailable", Err: err}
	}
}

func (s *Service) authorize(ctx context.Context, cred *models.Credential, req Request) (bool, error) {
	if !req.hasProof() {
		return false, nil
	}
	if req.AccessToken != "" {
		_, err := s.evaluator.Redeem(ctx, cred.ID, req.AccessToken)
		switch {
		case err == nil:
			return true, nil
		case dErrors.HasCode(err, dErrors.CodeAccessDenied):
			return false, nil
		default:
			return false, err
		}
	}
	return s.evaluator.Check(ctx, cred.ID, cred, access.Request{Code: req.Code, Email: req.Email})
}

// reconcile fingerprints the snapshot and compares it with the anchor. An
// unreachable ledger downgrades to not-anchored plus a warning.
func (s *Service) reconcile(ctx context.Context, res *Result, cred *models.Credential, snap *snapshot, span tracer.Span) error {
	stored := cred.Anchor
	if s.anchors != nil {
		stored = snap.ledgerAnchor
		switch {
		case snap.ledgerErr != nil:
			stored = nil
			res.Warnings = append(res.Warnings, "anchor ledger unavailable; integrity was not checked against the anchor")
			s.metrics.observeUnavailable("ledger")
			span.AddEvent(tracer.EventAnchorUnavailable)
		case stored == nil && cred.Anchor != nil:
			res.Warnings = append(res.Warnings, "credential lists an anchor that the ledger does not hold")
		}
	}

	alg := s.fingerprinter.Algorithm()
	if stored != nil && !stored.Hash.IsZero() {
		alg = stored.Hash.Algorithm()
	}
	_, fpSpan := s.tracer.Start(ctx, tracer.SpanFingerprint, tracer.Int64(tracer.AttrAlgorithm, int64(alg)))
	live, err := s.fingerprinter.ContentWith(alg, cred.FingerprintContent())
	fpSpan.End(err)
	if err != nil {
		return err
	}
	res.Fingerprint = live

	res.AnchorStatus = anchor.Reconcile(live, stored)
	if stored != nil {
		res.AnchorReference = stored.Reference
	}
	s.metrics.observeAnchor(res.AnchorStatus)
	if res.AnchorStatus == anchor.StatusMismatched {
		span.AddEvent(tracer.EventAnchorMismatch)
		s.logger.WarnContext(ctx, "anchor mismatch",
			"credential_id", cred.ID,
			"fingerprint", live.String(),
			"anchor_reference", stored.Reference,
			"request_id", requestcontext.RequestID(ctx),
		)
		if !s.cfg.StrictAnchorMatch {
			res.Warnings = append(res.Warnings, "anchor_status: mismatched; content changed after anchoring")
		}
	}
	return nil
}

// RequestAccess exchanges an access code and email for a short-lived grant.
// Unknown ids, public credentials and wrong proofs all produce the same
// denial after the same amount of work.
func (s *Service) RequestAccess(ctx context.Context, req AccessRequest) (*AccessResult, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAccessRequest, tracer.String(tracer.AttrCredentialID, req.CredentialID.String()))

	var cred *models.Credential
	id, err := models.ParseCredentialID(req.CredentialID.String())
	if err == nil {
		cred, err = s.findCredential(ctx, id)
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			cred, err = nil, nil
		}
	} else {
		id, err = req.CredentialID, nil
	}
	if err != nil {
		span.End(err)
		return nil, err
	}

	decision, err := s.evaluator.Evaluate(ctx, id, cred, access.Request{
		Code:  req.Code,
		Email: req.Email,
		TTL:   s.cfg.AccessGrantTTL,
	})
	if err != nil {
		span.End(err)
		return nil, err
	}
	span.SetAttributes(tracer.Bool(tracer.AttrGranted, decision.Granted))
	span.End(nil)

	s.metrics.observeAccess(decision.Granted)
	outcome := "denied"
	if decision.Granted {
		outcome = "granted"
	}
	s.emit(ctx, audit.Event{
		Action:       audit.ActionAccessRequested,
		CredentialID: req.CredentialID.String(),
		Outcome:      outcome,
		Method:       string(MethodAPI),
	})

	if !decision.Granted {
		return &AccessResult{Granted: false}, nil
	}
	return &AccessResult{
		Granted:   true,
		Token:     decision.Grant.Token,
		ExpiresAt: decision.Grant.ExpiresAt,
	}, nil
}

// Export verifies and, when the credential is valid, renders the snapshot
// that was verified. Nothing is re-read between the two steps.
func (s *Service) Export(ctx context.Context, req Request) (*Export, error) {
	if s.exporter == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "json-ld export is not configured")
	}
	res, err := s.Verify(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.IsValid {
		return &Export{Result: res}, nil
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanExport, tracer.String(tracer.AttrCredentialID, res.CredentialID.String()))
	doc, err := s.exporter.Export(ctx, res.Credential, jsonld.Integrity{
		Fingerprint:     res.Fingerprint.String(),
		AnchorStatus:    string(res.AnchorStatus),
		AnchorReference: res.AnchorReference,
		VerifiedAt:      res.VerifiedAt,
	})
	span.End(err)
	if err != nil {
		return nil, err
	}
	return &Export{Result: res, Document: doc.JSON, NQuads: doc.NQuads}, nil
}

func (s *Service) emit(ctx context.Context, e audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", e.Action, "error", err)
	}
}
