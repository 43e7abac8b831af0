package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"attest/internal/anchor"
	"attest/internal/anchor/ledger"
	"attest/internal/audit"
	"attest/internal/canonical"
	"attest/internal/credential/models"
	"attest/internal/credential/service/mocks"
	"attest/internal/credential/store"
	"attest/internal/integrity"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
	"attest/pkg/secrets"
)

var issueTime = time.Date(2026, 1, 15, 10, 30, 0, 123456789, time.UTC)

type bcryptHasher struct{}

func (bcryptHasher) HashAccessCode(code string) ([]byte, error) {
	return secrets.HashWithCost(code, bcrypt.MinCost)
}

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.InMemoryStore
	ledger *ledger.InMemory
	audit  *audit.InMemoryStore
	fp     *integrity.Fingerprinter
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), issueTime)
	s.store = store.NewInMemoryStore()
	s.ledger = ledger.NewInMemory()
	s.audit = audit.NewInMemoryStore()
	fp, err := integrity.New()
	s.Require().NoError(err)
	s.fp = fp
	s.svc = New(s.store, s.ledger, fp, bcryptHasher{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditor(audit.NewPublisher(s.audit)),
	)
}

func (s *ServiceSuite) content(title string) *canonical.Map {
	return canonical.NewMap().
		Set("title", canonical.String(title)).
		Set("recipient_name", canonical.String("Ada Lovelace"))
}

func (s *ServiceSuite) draft(id models.CredentialID) *models.Credential {
	c, err := s.svc.Create(s.ctx, CreateCommand{ID: id, Content: s.content("BSc Mathematics")})
	s.Require().NoError(err)
	return c
}

func (s *ServiceSuite) TestCreate() {
	s.Run("generates an id", func() {
		c, err := s.svc.Create(s.ctx, CreateCommand{Content: s.content("x")})
		s.Require().NoError(err)
		s.Regexp(`^cred_[0-9a-f-]{36}$`, c.ID.String())
		s.Equal(models.StatusDraft, c.Status)
		s.Equal(models.VisibilityPublic, c.Visibility)
	})

	s.Run("rejects malformed ids", func() {
		_, err := s.svc.Create(s.ctx, CreateCommand{ID: "bad id!", Content: s.content("x")})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects content that cannot be canonicalized", func() {
		huge := canonical.NewMap().Set("blob", canonical.String(string(make([]byte, 70<<10))))
		_, err := s.svc.Create(s.ctx, CreateCommand{Content: huge})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("private needs code and email", func() {
		_, err := s.svc.Create(s.ctx, CreateCommand{Content: s.content("x"), Visibility: models.VisibilityPrivate, AccessCode: "ABCD"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("private stores a hash, never the code", func() {
		c, err := s.svc.Create(s.ctx, CreateCommand{
			Content: s.content("x"), Visibility: models.VisibilityPrivate,
			AccessCode: "ABCD", BoundEmail: " A@B.com ",
		})
		s.Require().NoError(err)
		s.Require().NotNil(c.AccessPolicy)
		s.NotEqual("ABCD", string(c.AccessPolicy.AccessCodeHash))
		s.NoError(bcrypt.CompareHashAndPassword(c.AccessPolicy.AccessCodeHash, []byte("ABCD")))
		s.Equal("a@b.com", c.AccessPolicy.BoundEmail)
	})

	s.Run("duplicate id conflicts", func() {
		s.draft("cred-dup")
		_, err := s.svc.Create(s.ctx, CreateCommand{ID: "cred-dup", Content: s.content("x")})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestIssueAnchorsTheIssuedRecord() {
	s.draft("cred-1")

	c, err := s.svc.Issue(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, c.Status)
	s.Require().NotNil(c.IssuedAt)
	s.Equal(issueTime.Truncate(time.Microsecond), *c.IssuedAt)
	s.Require().NotNil(c.Anchor)

	live, err := s.fp.Content(c.FingerprintContent())
	s.Require().NoError(err)
	s.Equal(anchor.StatusMatched, anchor.Reconcile(live, c.Anchor))

	onLedger, err := s.ledger.FetchAnchor(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(c.Anchor.Reference, onLedger.Reference)

	events, _ := s.audit.ListByCredential(s.ctx, "cred-1")
	s.Require().Len(events, 2)
	s.Equal(audit.ActionCredentialIssued, events[1].Action)

	s.Run("only drafts can be issued", func() {
		_, err := s.svc.Issue(s.ctx, "cred-1")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("anchoring twice conflicts", func() {
		_, err := s.svc.Anchor(s.ctx, "cred-1")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestIssueRejectsPastExpiry() {
	past := issueTime.Add(-time.Hour)
	_, err := s.svc.Create(s.ctx, CreateCommand{ID: "cred-old", Content: s.content("x"), ExpiresAt: &past})
	s.Require().NoError(err)

	_, err = s.svc.Issue(s.ctx, "cred-old")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestContentEditAfterAnchoringIsDetectable() {
	s.draft("cred-1")
	issued, err := s.svc.Issue(s.ctx, "cred-1")
	s.Require().NoError(err)

	edited, err := s.svc.UpdateContent(s.ctx, "cred-1", s.content("BSc Mathematics (First Class)"))
	s.Require().NoError(err)
	s.Equal(issued.Anchor, edited.Anchor, "anchor is never rewritten by an edit")

	live, err := s.fp.Content(edited.FingerprintContent())
	s.Require().NoError(err)
	s.Equal(anchor.StatusMismatched, anchor.Reconcile(live, edited.Anchor))
}

func (s *ServiceSuite) TestRevoke() {
	s.draft("cred-1")

	_, err := s.svc.Revoke(s.ctx, "cred-1", "too early")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "drafts cannot be revoked")

	_, err = s.svc.Issue(s.ctx, "cred-1")
	s.Require().NoError(err)

	_, err = s.svc.Revoke(s.ctx, "cred-1", "   ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	c, err := s.svc.Revoke(s.ctx, "cred-1", "issued in error")
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, c.Status)
	s.Equal("issued in error", c.RevocationReason)

	_, err = s.svc.Revoke(s.ctx, "cred-1", "again")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestSetAccessPolicy() {
	s.draft("cred-1")

	c, err := s.svc.SetAccessPolicy(s.ctx, "cred-1", AccessPolicyCommand{
		Visibility: models.VisibilityPrivate, AccessCode: "ABCD", BoundEmail: "a@b.com",
	})
	s.Require().NoError(err)
	s.True(c.IsPrivate())

	c, err = s.svc.SetAccessPolicy(s.ctx, "cred-1", AccessPolicyCommand{Visibility: models.VisibilityPublic})
	s.Require().NoError(err)
	s.False(c.IsPrivate())
	s.Nil(c.AccessPolicy)
}

func (s *ServiceSuite) TestGetMissing() {
	_, err := s.svc.Get(s.ctx, "cred-789")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestLedgerOutageLeavesCredentialIssued() {
	ctrl := gomock.NewController(s.T())
	submitter := mocks.NewMockAnchorSubmitter(ctrl)
	svc := New(s.store, submitter, s.fp, bcryptHasher{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	s.draft("cred-1")
	submitter.EXPECT().
		SubmitAnchor(gomock.Any(), models.CredentialID("cred-1"), gomock.Any()).
		Return(nil, errors.New("ledger timeout"))

	c, err := svc.Issue(s.ctx, "cred-1")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Require().NotNil(c)
	s.Equal(models.StatusIssued, c.Status)
	s.Nil(c.Anchor)

	submitter.EXPECT().
		SubmitAnchor(gomock.Any(), models.CredentialID("cred-1"), gomock.Any()).
		Return(&models.Anchor{Hash: integrity.Digest{}, Reference: "ledger:retry"}, nil).
		Do(func(_ context.Context, _ models.CredentialID, d integrity.Digest) {
			s.False(d.IsZero())
		})
	retried, err := svc.Anchor(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal("ledger:retry", retried.Anchor.Reference)
}

// issueUnanchored issues id while the ledger is down, leaving it issued
// with no local anchor.
func (s *ServiceSuite) issueUnanchored(id models.CredentialID) *models.Credential {
	ctrl := gomock.NewController(s.T())
	down := mocks.NewMockAnchorSubmitter(ctrl)
	down.EXPECT().SubmitAnchor(gomock.Any(), id, gomock.Any()).Return(nil, errors.New("ledger timeout"))
	svc := New(s.store, down, s.fp, bcryptHasher{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	s.draft(id)
	c, err := svc.Issue(s.ctx, id)
	s.Require().Error(err)
	s.Require().Nil(c.Anchor)
	return c
}

func (s *ServiceSuite) TestAnchorRetryAdoptsLedgerEntry() {
	c := s.issueUnanchored("cred-1")
	digest, err := s.fp.Content(c.FingerprintContent())
	s.Require().NoError(err)
	// The ledger accepted an earlier submission that was never recorded locally.
	landed, err := s.ledger.SubmitAnchor(s.ctx, "cred-1", digest)
	s.Require().NoError(err)

	anchored, err := s.svc.Anchor(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Require().NotNil(anchored.Anchor)
	s.Equal(landed.Reference, anchored.Anchor.Reference)
	s.Equal(digest.String(), anchored.Anchor.Hash.String())

	_, err = s.svc.Anchor(s.ctx, "cred-1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestAnchorRetryRejectsForeignLedgerEntry() {
	s.issueUnanchored("cred-1")
	other, err := s.fp.Content(s.content("forged"))
	s.Require().NoError(err)
	_, err = s.ledger.SubmitAnchor(s.ctx, "cred-1", other)
	s.Require().NoError(err)

	_, err = s.svc.Anchor(s.ctx, "cred-1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	stored, err := s.svc.Get(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Nil(stored.Anchor)
}

func (s *ServiceSuite) TestStorageOutageIsRetriable() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	svc := New(st, s.ledger, s.fp, bcryptHasher{})

	st.EXPECT().FindByID(gomock.Any(), models.CredentialID("cred-1")).Return(nil, context.DeadlineExceeded)
	_, err := svc.Get(s.ctx, "cred-1")
	s.True(dErrors.IsRetriable(err))
	s.False(dErrors.HasCode(err, dErrors.CodeNotFound))

	st.EXPECT().Update(gomock.Any(), models.CredentialID("cred-1"), gomock.Any()).Return(nil, errors.New("connection reset"))
	_, err = svc.Revoke(s.ctx, "cred-1", "fraud")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
