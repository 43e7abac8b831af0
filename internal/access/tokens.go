package access

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"attest/internal/credential/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	grantIssuer   = "attest"
	grantAudience = "credential-verification"
)

// grantClaims binds a token to one credential. The requester's email is
// carried only as a digest.
type grantClaims struct {
	CredentialID string `json:"cid"`
	jwt.RegisteredClaims
}

// tokenService signs and parses grant tokens (HS256).
type tokenService struct {
	signingKey []byte
}

func newTokenService(signingKey []byte) (*tokenService, error) {
	if len(signingKey) < 32 {
		return nil, dErrors.New(dErrors.CodeValidation, "grant signing key must be at least 32 bytes")
	}
	return &tokenService{signingKey: signingKey}, nil
}

func (s *tokenService) issue(ctx context.Context, id models.CredentialID, email string, ttl time.Duration) (*AccessGrant, error) {
	now := requestcontext.Now(ctx)
	grant := &AccessGrant{
		ID:           uuid.NewString(),
		CredentialID: id,
		IssuedTo:     normalizeEmail(email),
		ExpiresAt:    now.Add(ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, grantClaims{
		CredentialID: id.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectDigest(grant.IssuedTo),
			ExpiresAt: jwt.NewNumericDate(grant.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    grantIssuer,
			Audience:  []string{grantAudience},
			ID:        grant.ID,
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign access grant")
	}
	grant.Token = signed
	return grant, nil
}

// parse validates signature, algorithm, issuer, audience and expiry against
// the request time. Every failure is ErrAccessDenied.
func (s *tokenService) parse(ctx context.Context, tokenString string) (*grantClaims, error) {
	if tokenString == "" {
		return nil, ErrAccessDenied
	}
	now := requestcontext.Now(ctx)
	claims := new(grantClaims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(grantIssuer),
		jwt.WithAudience(grantAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &dErrors.Error{Code: dErrors.CodeAccessDenied, Message: "access denied", Err: err}
		}
		return nil, ErrAccessDenied
	}
	if claims.ID == "" || claims.CredentialID == "" {
		return nil, ErrAccessDenied
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func subjectDigest(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:16])
}
