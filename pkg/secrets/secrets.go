package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "attest/pkg/domain-errors"
)

// Generate returns 32 random bytes, base64url encoded. Used for signing
// keys and admin tokens when none is configured.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash bcrypt-hashes secret at the default cost.
func Hash(secret string) ([]byte, error) {
	return HashWithCost(secret, bcrypt.DefaultCost)
}

// HashWithCost exists so tests can use bcrypt.MinCost.
func HashWithCost(secret string, cost int) ([]byte, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, dErrors.New(dErrors.CodeValidation, "secret is too long")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not hash secret")
	}
	return hashed, nil
}

// Verify checks secret against a bcrypt hash.
func Verify(secret string, hash []byte) error {
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid secret")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify secret")
	}
	return nil
}

// Cost reports the bcrypt cost of hash, or 0 when hash is malformed.
func Cost(hash []byte) int {
	c, err := bcrypt.Cost(hash)
	if err != nil {
		return 0
	}
	return c
}
