// Package seeder loads demo credentials covering every verification
// outcome. It goes through the issuer workflow, so seeded credentials are
// fingerprinted and anchored like real ones.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attest/internal/canonical"
	"attest/internal/credential/models"
	"attest/internal/credential/service"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// Demo credential ids.
const (
	ExpiredID  models.CredentialID = "cred-123"
	PrivateID  models.CredentialID = "cred-456"
	MissingID  models.CredentialID = "cred-789"
	TamperedID models.CredentialID = "cred-321"
	RevokedID  models.CredentialID = "cred-654"
	ValidID    models.CredentialID = "cred-100"

	PrivateAccessCode = "ABCD"
	PrivateEmail      = "a@b.com"
)

// Issuer is the part of the credential service the seeder drives.
type Issuer interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.Credential, error)
	Issue(ctx context.Context, id models.CredentialID) (*models.Credential, error)
	Revoke(ctx context.Context, id models.CredentialID, reason string) (*models.Credential, error)
	UpdateContent(ctx context.Context, id models.CredentialID, content *canonical.Map) (*models.Credential, error)
}

// Seeder plants the demo credentials.
type Seeder struct {
	issuer Issuer
	logger *slog.Logger
}

func New(issuer Issuer, logger *slog.Logger) *Seeder {
	return &Seeder{issuer: issuer, logger: logger}
}

// SeedAll is idempotent: credentials that already exist are left alone.
func (s *Seeder) SeedAll(ctx context.Context) error {
	s.logger.InfoContext(ctx, "seeding demo credentials...")
	now := requestcontext.Now(ctx).UTC()
	lastYear := now.AddDate(-1, 0, 0)

	seeds := []struct {
		id   models.CredentialID
		seed func(ctx context.Context, id models.CredentialID) error
	}{
		{ValidID, func(ctx context.Context, id models.CredentialID) error {
			return s.issue(ctx, lastYear, service.CreateCommand{ID: id, Content: demoContent("Cloud Architecture Fundamentals", "Grace Hopper")})
		}},
		{ExpiredID, func(ctx context.Context, id models.CredentialID) error {
			expired := now.AddDate(0, -1, 0)
			return s.issue(ctx, lastYear, service.CreateCommand{ID: id, ExpiresAt: &expired, Content: demoContent("First Aid Certificate", "Alan Turing")})
		}},
		{PrivateID, func(ctx context.Context, id models.CredentialID) error {
			return s.issue(ctx, lastYear, service.CreateCommand{
				ID:         id,
				Visibility: models.VisibilityPrivate,
				AccessCode: PrivateAccessCode,
				BoundEmail: PrivateEmail,
				Content:    demoContent("MSc Computer Science", "Ada Lovelace").Set(models.FieldRecipientEmail, canonical.String(PrivateEmail)),
			})
		}},
		{TamperedID, func(ctx context.Context, id models.CredentialID) error {
			if err := s.issue(ctx, lastYear, service.CreateCommand{ID: id, Content: demoContent("Safety Training", "Edsger Dijkstra")}); err != nil {
				return err
			}
			_, err := s.issuer.UpdateContent(ctx, id, demoContent("Advanced Safety Training", "Edsger Dijkstra"))
			return err
		}},
		{RevokedID, func(ctx context.Context, id models.CredentialID) error {
			if err := s.issue(ctx, lastYear, service.CreateCommand{ID: id, Content: demoContent("Forklift License", "Barbara Liskov")}); err != nil {
				return err
			}
			_, err := s.issuer.Revoke(ctx, id, "issued in error")
			return err
		}},
	}

	seeded := 0
	for _, sd := range seeds {
		err := sd.seed(ctx, sd.id)
		switch {
		case err == nil:
			seeded++
		case dErrors.HasCode(err, dErrors.CodeConflict):
			s.logger.DebugContext(ctx, "demo credential already present", "credential_id", sd.id)
		default:
			return fmt.Errorf("failed to seed %s: %w", sd.id, err)
		}
	}

	s.logger.InfoContext(ctx, "demo credentials seeded", "credentials", seeded)
	return nil
}

// issue creates and issues a credential as of issuedAt.
func (s *Seeder) issue(ctx context.Context, issuedAt time.Time, cmd service.CreateCommand) error {
	ctx = requestcontext.WithTime(ctx, issuedAt)
	if _, err := s.issuer.Create(ctx, cmd); err != nil {
		return err
	}
	_, err := s.issuer.Issue(ctx, cmd.ID)
	return err
}

func demoContent(title, recipient string) *canonical.Map {
	return canonical.NewMap().
		Set(models.FieldTitle, canonical.String(title)).
		Set(models.FieldDescription, canonical.String("Awarded on successful completion of "+title)).
		Set(models.FieldRecipientName, canonical.String(recipient)).
		Set(models.FieldIssuer, canonical.String("Attest Academy")).
		Set(models.FieldOrganization, canonical.String("Attest Academy"))
}
