package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
	"attest/pkg/validation"
)

// Normalizable request types trim and case-fold their fields before
// validation.
type Normalizable interface {
	Normalize()
}

// DecodeJSON decodes the body into T. On failure it writes a 400 and
// returns false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	body := http.MaxBytesReader(w, r.Body, validation.MaxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		logWarn(r.Context(), logger, "failed to decode request body", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	return &req, true
}

// DecodeAndValidate decodes, normalizes and validates struct tags.
func DecodeAndValidate[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger)
	if !ok {
		return nil, false
	}
	if n, ok := any(req).(Normalizable); ok {
		n.Normalize()
	}
	if err := validation.Validate(req); err != nil {
		logWarn(r.Context(), logger, "invalid request", err)
		var domainErr *dErrors.Error
		if !errors.As(err, &domainErr) {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}

func logWarn(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if logger == nil {
		return
	}
	logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
}
