package handler

import "strings"

// AccessRequest is the body of an access grant request.
type AccessRequest struct {
	AccessCode string `json:"access_code" validate:"required,max=128"`
	Email      string `json:"email" validate:"required,email,max=255"`
}

func (r *AccessRequest) Normalize() {
	r.AccessCode = strings.TrimSpace(r.AccessCode)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}
