// Package handler serves public verification, private access grants and
// JSON-LD export.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"attest/internal/credential/models"
	"attest/internal/verification"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// ContentTypeJSONLD is sent with exported documents.
const ContentTypeJSONLD = "application/ld+json"

// Service is the verification use case as seen from HTTP.
type Service interface {
	Verify(ctx context.Context, req verification.Request) (*verification.Result, error)
	RequestAccess(ctx context.Context, req verification.AccessRequest) (*verification.AccessResult, error)
	Export(ctx context.Context, req verification.Request) (*verification.Export, error)
}

// Handler serves the public verification endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a verification handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the public routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/verify/{id}", h.HandleVerify)
	r.Post("/verify/{id}/access", h.HandleRequestAccess)
	r.Get("/verify/{id}/jsonld", h.HandleExport)
}

// HandleVerify answers 200 for every outcome except an unknown credential,
// which is 404. The outcome itself is in the body.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.verificationRequest(w, r)
	if !ok {
		return
	}
	res, err := h.service.Verify(r.Context(), req)
	if err != nil {
		h.fail(w, r, "verification failed", err)
		return
	}
	httputil.WriteJSON(w, statusFor(res), toResponse(res))
}

// HandleRequestAccess answers 403 with the same body for every kind of
// refusal.
func (h *Handler) HandleRequestAccess(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.DecodeAndValidate[AccessRequest](w, r, h.logger)
	if !ok {
		return
	}
	res, err := h.service.RequestAccess(r.Context(), verification.AccessRequest{
		CredentialID: models.CredentialID(chi.URLParam(r, "id")),
		Code:         body.AccessCode,
		Email:        body.Email,
	})
	if err != nil {
		h.fail(w, r, "access request failed", err)
		return
	}
	if !res.Granted {
		httputil.WriteJSON(w, http.StatusForbidden, AccessResponse{AccessGranted: false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AccessResponse{
		AccessGranted: true,
		AccessToken:   res.Token,
		ExpiresAt:     &res.ExpiresAt,
	})
}

// HandleExport returns the JSON-LD document for a valid credential and the
// plain verification result otherwise.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	req, ok := h.verificationRequest(w, r)
	if !ok {
		return
	}
	out, err := h.service.Export(r.Context(), req)
	if err != nil {
		h.fail(w, r, "json-ld export failed", err)
		return
	}
	if out.Document == nil {
		httputil.WriteJSON(w, statusFor(out.Result), toResponse(out.Result))
		return
	}
	w.Header().Set("Content-Type", ContentTypeJSONLD)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Document)
}

func (h *Handler) verificationRequest(w http.ResponseWriter, r *http.Request) (verification.Request, bool) {
	q := r.URL.Query()
	method, err := verification.ParseMethod(q.Get("method"))
	if err != nil {
		httputil.WriteError(w, err)
		return verification.Request{}, false
	}
	return verification.Request{
		CredentialID: models.CredentialID(chi.URLParam(r, "id")),
		AccessToken:  accessToken(r),
		Method:       method,
	}, true
}

// accessToken reads the grant from the query string or a bearer header.
func accessToken(r *http.Request) string {
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t
	}
	if t, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

// statusFor keeps every verification outcome at 200 except NOT_FOUND.
func statusFor(res *verification.Result) int {
	if res.State == verification.StateNotFound {
		return http.StatusNotFound
	}
	return http.StatusOK
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	args := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if dErrors.IsRetriable(err) {
		h.logger.WarnContext(ctx, msg, args...)
	} else {
		h.logger.ErrorContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}
