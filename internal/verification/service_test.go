package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"attest/internal/access"
	accessstore "attest/internal/access/store"
	"attest/internal/anchor"
	"attest/internal/anchor/ledger"
	"attest/internal/audit"
	"attest/internal/canonical"
	"attest/internal/credential/models"
	credservice "attest/internal/credential/service"
	credstore "attest/internal/credential/store"
	"attest/internal/integrity"
	"attest/internal/jsonld"
	"attest/internal/verification/mocks"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	issuedAt   = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	verifiedAt = issuedAt.Add(30 * 24 * time.Hour)
)

type VerifySuite struct {
	suite.Suite
	store     *credstore.InMemoryStore
	ledger    *ledger.InMemory
	evaluator *access.Evaluator
	grants    *accessstore.InMemoryGrantStore
	fp        *integrity.Fingerprinter
	issuer    *credservice.Service
	audit     *audit.InMemoryStore
	metrics   *Metrics
	logger    *slog.Logger
}

func TestVerifySuite(t *testing.T) {
	suite.Run(t, new(VerifySuite))
}

func (s *VerifySuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = credstore.NewInMemoryStore()
	s.ledger = ledger.NewInMemory()
	s.audit = audit.NewInMemoryStore()
	s.metrics = NewMetrics(prometheus.NewRegistry())

	fp, err := integrity.New()
	s.Require().NoError(err)
	s.fp = fp

	s.grants = accessstore.NewInMemoryGrantStore()
	s.evaluator, err = access.New(access.Config{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		GrantTTL:   2 * time.Minute,
		SingleUse:  true,
		HashCost:   bcrypt.MinCost,
	}, s.grants, accessstore.NewInMemoryAttemptCounter(time.Hour))
	s.Require().NoError(err)

	s.issuer = credservice.New(s.store, s.ledger, fp, s.evaluator, credservice.WithLogger(s.logger))
}

func (s *VerifySuite) service(cfg Config, opts ...Option) *Service {
	base := []Option{
		WithLogger(s.logger),
		WithAnchorFetcher(s.ledger),
		WithAuditor(audit.NewPublisher(s.audit)),
		WithMetrics(s.metrics),
	}
	return New(cfg, s.store, s.evaluator, s.fp, append(base, opts...)...)
}

func (s *VerifySuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func content(title string) *canonical.Map {
	return canonical.NewMap().
		Set(models.FieldTitle, canonical.String(title)).
		Set(models.FieldRecipientName, canonical.String("Ada Lovelace")).
		Set(models.FieldIssuer, canonical.String("University of London"))
}

// issue creates and anchors a credential through the issuer workflow.
func (s *VerifySuite) issue(cmd credservice.CreateCommand) *models.Credential {
	ctx := s.at(issuedAt)
	if cmd.Content == nil {
		cmd.Content = content("BSc Mathematics")
	}
	_, err := s.issuer.Create(ctx, cmd)
	s.Require().NoError(err)
	c, err := s.issuer.Issue(ctx, cmd.ID)
	s.Require().NoError(err)
	return c
}

func (s *VerifySuite) TestValidPublicCredential() {
	s.issue(credservice.CreateCommand{ID: "cred-1"})

	res, err := s.service(Config{}).Verify(s.at(verifiedAt), Request{CredentialID: "cred-1"})
	s.Require().NoError(err)
	s.True(res.IsValid)
	s.Equal(StateValid, res.State)
	s.Equal(ReasonNone, res.Reason)
	s.Equal([]Check{CheckExistence, CheckStatus, CheckExpiry, CheckIntegrityAnchor}, res.ChecksPerformed)
	s.Equal(anchor.StatusMatched, res.AnchorStatus)
	s.NotEmpty(res.AnchorReference)
	s.False(res.Fingerprint.IsZero())
	s.Empty(res.Warnings)
	s.Require().NotNil(res.Credential)

	s.Equal(1.0, promtest.ToFloat64(s.metrics.results.WithLabelValues("VALID", "url")))
	events, _ := s.audit.ListByCredential(context.Background(), "cred-1")
	s.Require().NotEmpty(events)
	last := events[len(events)-1]
	s.Equal(audit.ActionCredentialVerified, last.Action)
	s.Equal("VALID", last.Outcome)
	s.Equal("matched", last.AnchorStatus)
}

func (s *VerifySuite) TestUnanchoredCredentialIsValid() {
	c, err := models.NewDraft("cred-plain", content("Badge"), models.VisibilityPublic, nil, issuedAt)
	s.Require().NoError(err)
	s.Require().NoError(c.Issue(issuedAt))
	s.Require().NoError(s.store.Create(context.Background(), c))

	res, err := s.service(Config{StrictAnchorMatch: true}).Verify(s.at(verifiedAt), Request{CredentialID: "cred-plain"})
	s.Require().NoError(err)
	s.True(res.IsValid)
	s.Equal(anchor.StatusNotAnchored, res.AnchorStatus)
	s.Empty(res.Warnings)
}

func (s *VerifySuite) TestExpiredCredential() {
	expires := issuedAt.Add(24 * time.Hour)
	s.issue(credservice.CreateCommand{ID: "cred-123", ExpiresAt: &expires})

	res, err := s.service(Config{}).Verify(s.at(verifiedAt), Request{CredentialID: "cred-123"})
	s.Require().NoError(err)
	s.False(res.IsValid)
	s.Equal(StateExpired, res.State)
	s.Equal(ReasonExpired, res.Reason)
	s.Equal([]Check{CheckExistence, CheckStatus, CheckExpiry}, res.ChecksPerformed)
	s.Nil(res.Credential)

	s.Run("not yet expired exactly at the deadline", func() {
		res, err := s.service(Config{}).Verify(s.at(expires), Request{CredentialID: "cred-123"})
		s.Require().NoError(err)
		s.True(res.IsValid)
	})
}

func (s *VerifySuite) TestLegacyExpiredStatus() {
	c, err := models.NewDraft("DCP-20250101-A1B2C3D4", content("Legacy"), models.VisibilityPublic, nil, issuedAt)
	s.Require().NoError(err)
	c.Status = models.StatusExpired
	s.Require().NoError(s.store.Create(context.Background(), c))

	res, err := s.service(Config{}).Verify(s.at(verifiedAt), Request{CredentialID: "DCP-20250101-A1B2C3D4"})
	s.Require().NoError(err)
	s.Equal(StateExpired, res.State)
}

func (s *VerifySuite) TestRevokedWinsOverExpired() {
	expires := issuedAt.Add(24 * time.Hour)
	s.issue(credservice.CreateCommand{ID: "cred-r", ExpiresAt: &expires})
	_, err := s.issuer.Revoke(s.at(issuedAt.Add(time.Hour)), "cred-r", "issued in error")
	s.Require().NoError(err)

	res, err := s.service(Config{}).Verify(s.at(verifiedAt), Request{CredentialID: "cred-r"})
	s.Require().NoError(err)
	s.Equal(StateRevoked, res.State)
	s.Equal(ReasonRevoked, res.Reason)
	s.Equal([]Check{CheckExistence, CheckStatus}, res.ChecksPerformed)
}

func (s *VerifySuite) TestDraftNeverVerifies() {
	_, err := s.issuer.Create(s.at(issuedAt), credservice.CreateCommand{ID: "cred-d", Content: content("x")})
	s.Require().NoError(err)

	res, err := s.service(Config{}).Verify(s.at(verifiedAt), Request{CredentialID: "cred-d"})
	s.Require().NoError(err)
	s.Equal(StateInvalid, res.State)
	s.Equal(ReasonInvalid, res.Reason)
}

func (s *VerifySuite) TestNotFound() {
	for _, id := range []models.CredentialID{"cred-789", "../../etc/passwd", ""} {
		res, err := s.service(Config{}).Verify(s.at(verifiedAt), Request{CredentialID: id})
		s.Require().NoError(err)
		s.Equal(StateNotFound, res.State, "id %q", id)
		s.Equal(ReasonNotFound, res.Reason)
		s.Nil(res.Credential)
		s.Equal([]Check{CheckExistence}, res.ChecksPerformed)
	}
}

func (s *VerifySuite) TestPrivateCredential() {
	s.issue(credservice.CreateCommand{
		ID: "cred-456", Visibility: models.VisibilityPrivate,
		AccessCode: "ABCD", BoundEmail: "a@b.com",
	})
	svc := s.service(Config{AccessGrantTTL: time.Minute})
	ctx := s.at(verifiedAt)

	s.Run("no proof is denied", func() {
		res, err := svc.Verify(ctx, Request{CredentialID: "cred-456"})
		s.Require().NoError(err)
		s.Equal(StateAccessDenied, res.State)
		s.Contains(res.ChecksPerformed, CheckAccessControl)
		s.Nil(res.Credential)
	})

	s.Run("grant then verify", func() {
		grant, err := svc.RequestAccess(ctx, AccessRequest{CredentialID: "cred-456", Code: "ABCD", Email: "A@B.com"})
		s.Require().NoError(err)
		s.True(grant.Granted)
		s.Equal(verifiedAt.Add(time.Minute), grant.ExpiresAt)

		res, err := svc.Verify(ctx, Request{CredentialID: "cred-456", AccessToken: grant.Token})
		s.Require().NoError(err)
		s.Equal(StateValid, res.State)
		s.Equal([]Check{CheckExistence, CheckStatus, CheckExpiry, CheckAccessControl, CheckIntegrityAnchor}, res.ChecksPerformed)

		replay, err := svc.Verify(ctx, Request{CredentialID: "cred-456", AccessToken: grant.Token})
		s.Require().NoError(err)
		s.Equal(StateAccessDenied, replay.State, "grants are single-use")
	})

	s.Run("denials are indistinguishable", func() {
		for _, req := range []AccessRequest{
			{CredentialID: "cred-456", Code: "WRONG", Email: "a@b.com"},
			{CredentialID: "cred-456", Code: "ABCD", Email: "x@b.com"},
			{CredentialID: "cred-789", Code: "ABCD", Email: "a@b.com"},
			{CredentialID: "cred-1", Code: "ABCD", Email: "a@b.com"},
		} {
			res, err := svc.RequestAccess(ctx, req)
			s.Require().NoError(err)
			s.Equal(&AccessResult{Granted: false}, res)
		}
	})

	s.Run("code and email inline", func() {
		before := s.grants.Len()
		res, err := svc.Verify(ctx, Request{CredentialID: "cred-456", Code: "ABCD", Email: "a@b.com", Method: MethodAPI})
		s.Require().NoError(err)
		s.True(res.IsValid)
		s.Equal(before, s.grants.Len(), "inline proof must not leave a grant behind")
	})

	s.Run("token for another credential", func() {
		s.issue(credservice.CreateCommand{
			ID: "cred-other", Visibility: models.VisibilityPrivate,
			AccessCode: "ZZZZ", BoundEmail: "z@b.com",
		})
		grant, err := svc.RequestAccess(ctx, AccessRequest{CredentialID: "cred-other", Code: "ZZZZ", Email: "z@b.com"})
		s.Require().NoError(err)
		res, err := svc.Verify(ctx, Request{CredentialID: "cred-456", AccessToken: grant.Token})
		s.Require().NoError(err)
		s.Equal(StateAccessDenied, res.State)
	})
}

func (s *VerifySuite) TestContentMutatedAfterAnchoring() {
	s.issue(credservice.CreateCommand{ID: "cred-d1"})
	_, err := s.issuer.UpdateContent(s.at(issuedAt.Add(time.Hour)), "cred-d1", content("PhD Mathematics"))
	s.Require().NoError(err)

	s.Run("strict", func() {
		res, err := s.service(Config{StrictAnchorMatch: true}).Verify(s.at(verifiedAt), Request{CredentialID: "cred-d1"})
		s.Require().NoError(err)
		s.False(res.IsValid)
		s.Equal(StateInvalid, res.State)
		s.Equal(anchor.StatusMismatched, res.AnchorStatus)
		s.Contains(res.Errors, "anchor_status: mismatched")
		s.Nil(res.Credential)
	})

	s.Run("lenient", func() {
		res, err := s.service(Config{}).Verify(s.at(verifiedAt), Request{CredentialID: "cred-d1"})
		s.Require().NoError(err)
		s.True(res.IsValid)
		s.Equal(anchor.StatusMismatched, res.AnchorStatus)
		s.Require().Len(res.Warnings, 1)
		s.True(strings.HasPrefix(res.Warnings[0], "anchor_status: mismatched"))
	})
}

func (s *VerifySuite) TestLedgerOutageFailsOpen() {
	s.issue(credservice.CreateCommand{ID: "cred-1"})
	stalled := anchor.FetcherFunc(func(ctx context.Context, _ models.CredentialID) (*models.Anchor, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	fetcher := anchor.NewResilientFetcher(stalled, anchor.WithFetchTimeout(10*time.Millisecond))

	res, err := s.service(Config{StrictAnchorMatch: true}, WithAnchorFetcher(fetcher)).
		Verify(s.at(verifiedAt), Request{CredentialID: "cred-1"})
	s.Require().NoError(err)
	s.True(res.IsValid)
	s.Equal(anchor.StatusNotAnchored, res.AnchorStatus)
	s.Len(res.Warnings, 1)
}

func (s *VerifySuite) TestRecordAnchorUsedWithoutLedger() {
	s.issue(credservice.CreateCommand{ID: "cred-1"})
	svc := New(Config{}, s.store, s.evaluator, s.fp, WithLogger(s.logger))

	res, err := svc.Verify(s.at(verifiedAt), Request{CredentialID: "cred-1"})
	s.Require().NoError(err)
	s.Equal(anchor.StatusMatched, res.AnchorStatus)
}

func (s *VerifySuite) TestStorageFailuresAreRetriable() {
	ctrl := gomock.NewController(s.T())
	reader := mocks.NewMockCredentialReader(ctrl)
	svc := New(Config{}, reader, s.evaluator, s.fp, WithLogger(s.logger), WithMetrics(s.metrics))

	s.Run("timeout", func() {
		reader.EXPECT().FindByID(gomock.Any(), models.CredentialID("cred-1")).Return(nil, context.DeadlineExceeded)
		_, err := svc.Verify(s.at(verifiedAt), Request{CredentialID: "cred-1"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.False(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("connection error", func() {
		reader.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
		_, err := svc.Verify(s.at(verifiedAt), Request{CredentialID: "cred-1"})
		s.True(dErrors.IsRetriable(err))
	})

	s.Run("slow store hits the storage timeout", func() {
		reader.EXPECT().FindByID(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ models.CredentialID) (*models.Credential, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		slow := New(Config{}, reader, s.evaluator, s.fp, WithLogger(s.logger), WithStorageTimeout(10*time.Millisecond))
		_, err := slow.Verify(s.at(verifiedAt), Request{CredentialID: "cred-1"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("caller cancellation is not an outage", func() {
		reader.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, context.Canceled)
		ctx, cancel := context.WithCancel(s.at(verifiedAt))
		cancel()
		_, err := svc.Verify(ctx, Request{CredentialID: "cred-1"})
		s.ErrorIs(err, context.Canceled)
	})

	s.Equal(2.0, promtest.ToFloat64(s.metrics.unavailable.WithLabelValues("storage")))
}

func (s *VerifySuite) TestCorruptRecordIsInternal() {
	ctrl := gomock.NewController(s.T())
	reader := mocks.NewMockCredentialReader(ctrl)
	svc := New(Config{}, reader, s.evaluator, s.fp, WithLogger(s.logger), WithMetrics(s.metrics))

	corrupt := &dErrors.Error{
		Code:    dErrors.CodeInternal,
		Message: "corrupt credential record",
		Err:     dErrors.New(dErrors.CodeValidation, "unknown status"),
	}
	reader.EXPECT().FindByID(gomock.Any(), models.CredentialID("cred-1")).Return(nil, corrupt)

	_, err := svc.Verify(s.at(verifiedAt), Request{CredentialID: "cred-1"})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
	s.False(dErrors.IsRetriable(err))
	s.Equal(0.0, promtest.ToFloat64(s.metrics.unavailable.WithLabelValues("storage")))
}

func (s *VerifySuite) TestAccessGrantStoreOutage() {
	s.issue(credservice.CreateCommand{
		ID: "cred-456", Visibility: models.VisibilityPrivate,
		AccessCode: "ABCD", BoundEmail: "a@b.com",
	})
	ctrl := gomock.NewController(s.T())
	evaluator := mocks.NewMockAccessEvaluator(ctrl)
	evaluator.EXPECT().Redeem(gomock.Any(), models.CredentialID("cred-456"), "token").
		Return(nil, dErrors.New(dErrors.CodeUnavailable, "consume access grant"))

	svc := New(Config{}, s.store, evaluator, s.fp, WithLogger(s.logger))
	_, err := svc.Verify(s.at(verifiedAt), Request{CredentialID: "cred-456", AccessToken: "token"})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *VerifySuite) TestMalformedContentIsAnInternalError() {
	c, err := models.NewDraft("cred-bad", content(strings.Repeat("x", 64)), models.VisibilityPublic, nil, issuedAt)
	s.Require().NoError(err)
	s.Require().NoError(c.Issue(issuedAt))
	s.Require().NoError(s.store.Create(context.Background(), c))

	tight, err := integrity.New(integrity.WithCanonicalizer(canonical.New(canonical.WithMaxValueBytes(16))))
	s.Require().NoError(err)
	svc := New(Config{}, s.store, s.evaluator, tight, WithLogger(s.logger))

	_, err = svc.Verify(s.at(verifiedAt), Request{CredentialID: "cred-bad"})
	s.True(dErrors.HasCode(err, dErrors.CodeCanonicalization))
}

func (s *VerifySuite) TestExport() {
	s.issue(credservice.CreateCommand{ID: "cred-1"})
	exporter, err := jsonld.New("https://verify.example")
	s.Require().NoError(err)
	svc := s.service(Config{}, WithExporter(exporter))

	out, err := svc.Export(s.at(verifiedAt), Request{CredentialID: "cred-1"})
	s.Require().NoError(err)
	s.True(out.Result.IsValid)
	s.Contains(string(out.Document), `"id":"https://verify.example/verify/cred-1"`)
	s.Contains(out.NQuads, out.Result.Fingerprint.String())

	missing, err := svc.Export(s.at(verifiedAt), Request{CredentialID: "cred-789"})
	s.Require().NoError(err)
	s.Nil(missing.Document)
	s.Equal(StateNotFound, missing.Result.State)
}

func (s *VerifySuite) TestConcurrentVerificationDuringEdits() {
	s.issue(credservice.CreateCommand{ID: "cred-1"})
	svc := s.service(Config{StrictAnchorMatch: true})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 50 {
			_, _ = s.issuer.UpdateContent(s.at(issuedAt.Add(time.Duration(i)*time.Minute)), "cred-1", content("edit"))
		}
	}()
	for range 50 {
		res, err := svc.Verify(s.at(verifiedAt), Request{CredentialID: "cred-1"})
		s.Require().NoError(err)
		if res.IsValid {
			s.Equal(anchor.StatusMatched, res.AnchorStatus)
		} else {
			s.Equal(anchor.StatusMismatched, res.AnchorStatus)
		}
	}
	<-done
}
