//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/canonical"
	"attest/internal/credential/models"
	"attest/internal/credential/store"
	"attest/internal/integrity"
	"attest/pkg/platform/sentinel"
	"attest/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "credentials"))
}

func (s *PostgresStoreSuite) TestRoundTripKeepsFingerprint() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	expires := now.Add(24 * time.Hour)
	gpa, err := canonical.Decimal("3.85")
	s.Require().NoError(err)

	content := canonical.NewMap().
		Set("title", canonical.String("MSc Data Science")).
		Set("gpa", gpa).
		Set("awarded", canonical.Timestamp(now)).
		Set("honours", canonical.Null())
	c, err := models.NewDraft("cred-pg-1", content, models.VisibilityPrivate, &expires, now)
	s.Require().NoError(err)
	s.Require().NoError(c.Issue(now))
	c.SetAccessPolicy(models.VisibilityPrivate, &models.AccessPolicy{AccessCodeHash: []byte("$2a$04$hash"), BoundEmail: "a@b.com"}, now)

	fp, err := integrity.New()
	s.Require().NoError(err)
	before, err := fp.Content(c.FingerprintContent())
	s.Require().NoError(err)
	c.RecordAnchor(models.Anchor{Hash: before, Reference: "ledger:1", AnchoredAt: now}, now)

	s.Require().NoError(s.store.Create(s.ctx, c))

	got, err := s.store.FindByID(s.ctx, "cred-pg-1")
	s.Require().NoError(err)
	s.Equal(c.Content.Keys(), got.Content.Keys())
	s.Equal("a@b.com", got.AccessPolicy.BoundEmail)

	after, err := fp.Content(got.FingerprintContent())
	s.Require().NoError(err)
	s.Equal(integrity.Equal, integrity.Compare(before, after))

	anchor, err := s.store.GetAnchor(s.ctx, "cred-pg-1")
	s.Require().NoError(err)
	s.Equal("ledger:1", anchor.Reference)
}

func (s *PostgresStoreSuite) TestConflictAndNotFound() {
	now := time.Now().UTC()
	c, err := models.NewDraft("cred-pg-2", nil, "", nil, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, c))
	s.ErrorIs(s.store.Create(s.ctx, c), sentinel.ErrConflict)

	_, err = s.store.FindByID(s.ctx, "cred-missing")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateRevokes() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	c, err := models.NewDraft("cred-pg-3", nil, "", nil, now)
	s.Require().NoError(err)
	s.Require().NoError(c.Issue(now))
	s.Require().NoError(s.store.Create(s.ctx, c))

	updated, err := s.store.Update(s.ctx, "cred-pg-3", func(c *models.Credential) error {
		return c.Revoke("issued in error", now)
	})
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, updated.Status)

	got, err := s.store.FindByID(s.ctx, "cred-pg-3")
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, got.Status)
	s.Equal("issued in error", got.RevocationReason)
}
