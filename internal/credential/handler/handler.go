// Package handler exposes the credential lifecycle to issuers. Routes are
// expected to sit behind the admin token middleware.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attest/internal/canonical"
	"attest/internal/credential/models"
	"attest/internal/credential/service"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the issuer-side credential lifecycle.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.Credential, error)
	Issue(ctx context.Context, id models.CredentialID) (*models.Credential, error)
	Anchor(ctx context.Context, id models.CredentialID) (*models.Credential, error)
	Revoke(ctx context.Context, id models.CredentialID, reason string) (*models.Credential, error)
	UpdateContent(ctx context.Context, id models.CredentialID, content *canonical.Map) (*models.Credential, error)
	SetAccessPolicy(ctx context.Context, id models.CredentialID, cmd service.AccessPolicyCommand) (*models.Credential, error)
	Get(ctx context.Context, id models.CredentialID) (*models.Credential, error)
}

// Handler serves the admin credential endpoints. Routes are expected to sit
// behind the admin token middleware.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a credential handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the admin routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/credentials", h.HandleCreate)
	r.Get("/admin/credentials/{id}", h.HandleGet)
	r.Post("/admin/credentials/{id}/issue", h.HandleIssue)
	r.Post("/admin/credentials/{id}/anchor", h.HandleAnchor)
	r.Post("/admin/credentials/{id}/revoke", h.HandleRevoke)
	r.Put("/admin/credentials/{id}/content", h.HandleUpdateContent)
	r.Put("/admin/credentials/{id}/access-policy", h.HandleSetAccessPolicy)
}

// HandleCreate stores a draft and answers 201.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndValidate[CreateRequest](w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.service.Create(r.Context(), service.CreateCommand{
		ID:         models.CredentialID(req.CredentialID),
		Content:    req.Content,
		Visibility: models.Visibility(req.Visibility),
		ExpiresAt:  req.ExpiresAt,
		AccessCode: req.AccessCode,
		BoundEmail: req.BoundEmail,
	})
	if err != nil {
		h.fail(w, r, "failed to create credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(c))
}

// HandleGet returns the full record, including fields hidden from verifiers.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.credentialID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to load credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c))
}

// HandleIssue answers 202 when the credential was issued but the ledger
// could not be reached. The issuer retries through HandleAnchor.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.credentialID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Issue(r.Context(), id)
	if err != nil && c != nil && dErrors.IsRetriable(err) {
		h.logger.WarnContext(r.Context(), "credential issued without anchor",
			"credential_id", id,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteJSON(w, http.StatusAccepted, toResponse(c))
		return
	}
	if err != nil {
		h.fail(w, r, "failed to issue credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c))
}

// HandleAnchor retries anchoring for an issued credential.
func (h *Handler) HandleAnchor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.credentialID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Anchor(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to anchor credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c))
}

// HandleRevoke revokes a credential. A reason is required.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := h.credentialID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndValidate[RevokeRequest](w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.service.Revoke(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, r, "failed to revoke credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c))
}

// HandleUpdateContent replaces the content. An existing anchor is kept.
func (h *Handler) HandleUpdateContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.credentialID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndValidate[ContentRequest](w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.service.UpdateContent(r.Context(), id, req.Content)
	if err != nil {
		h.fail(w, r, "failed to update credential content", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c))
}

// HandleSetAccessPolicy switches visibility and, for private credentials,
// sets the access code and bound email.
func (h *Handler) HandleSetAccessPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.credentialID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndValidate[AccessPolicyRequest](w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.service.SetAccessPolicy(r.Context(), id, service.AccessPolicyCommand{
		Visibility: models.Visibility(req.Visibility),
		AccessCode: req.AccessCode,
		BoundEmail: req.BoundEmail,
	})
	if err != nil {
		h.fail(w, r, "failed to set access policy", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) credentialID(w http.ResponseWriter, r *http.Request) (models.CredentialID, bool) {
	id, err := models.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}

// fail logs server-side failures at error level and client mistakes at warn.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	args := []any{"error", err, "request_id", requestcontext.RequestID(ctx)}
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}
