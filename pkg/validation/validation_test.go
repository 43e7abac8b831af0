package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "attest/pkg/domain-errors"
)

type accessRequest struct {
	AccessCode string `json:"access_code" validate:"required,notblank,max=128"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Visibility string `json:"visibility,omitempty" validate:"omitempty,oneof=public private"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  accessRequest
		msg  string
	}{
		{"missing code", accessRequest{Email: "a@b.com"}, "access_code is required"},
		{"blank code", accessRequest{AccessCode: "   ", Email: "a@b.com"}, "access_code must not be blank"},
		{"bad email", accessRequest{AccessCode: "ABCD", Email: "nope"}, "email must be a valid email"},
		{"bad visibility", accessRequest{AccessCode: "ABCD", Email: "a@b.com", Visibility: "secret"}, "visibility must be one of [public private]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.EqualError(t, err, tt.msg)
		})
	}

	assert.NoError(t, Validate(accessRequest{AccessCode: "ABCD", Email: "a@b.com"}))
}
