package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"attest/internal/canonical"
	"attest/internal/credential/handler/mocks"
	"attest/internal/credential/models"
	"attest/internal/credential/service"
	dErrors "attest/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	svc    *mocks.MockService
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.svc = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func issued(id models.CredentialID) *models.Credential {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c, _ := models.NewDraft(id, canonical.NewMap().Set("title", canonical.String("BSc")), models.VisibilityPublic, nil, now)
	_ = c.Issue(now)
	return c
}

func (s *HandlerSuite) TestCreate() {
	s.Run("passes the decoded command through", func() {
		s.svc.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, cmd service.CreateCommand) (*models.Credential, error) {
				s.Equal(models.CredentialID("cred-1"), cmd.ID)
				s.Equal(models.VisibilityPrivate, cmd.Visibility)
				s.Equal("a@b.com", cmd.BoundEmail)
				s.Equal("BSc", cmd.Content.GetString("title"))
				c, _ := models.NewDraft(cmd.ID, cmd.Content, cmd.Visibility, nil, time.Now())
				return c, nil
			})

		w := s.do(http.MethodPost, "/admin/credentials",
			`{"credential_id":"cred-1","visibility":"Private","access_code":"ABCD","bound_email":"A@B.com","content":{"title":"BSc"}}`)

		s.Equal(http.StatusCreated, w.Code)
		body := s.decode(w)
		s.Equal("cred-1", body["credential_id"])
		s.Equal("draft", body["status"])
		s.NotContains(w.Body.String(), "access_code")
	})

	s.Run("missing content is a validation error", func() {
		w := s.do(http.MethodPost, "/admin/credentials", `{"visibility":"public"}`)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("validation_error", s.decode(w)["error"])
	})

	s.Run("unknown visibility is a validation error", func() {
		w := s.do(http.MethodPost, "/admin/credentials", `{"visibility":"secret","content":{}}`)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("malformed json", func() {
		w := s.do(http.MethodPost, "/admin/credentials", `{"content":`)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("bad_request", s.decode(w)["error"])
	})
}

func (s *HandlerSuite) TestIssue() {
	s.Run("anchored", func() {
		c := issued("cred-1")
		c.Anchor = &models.Anchor{Reference: "ledger:1"}
		s.svc.EXPECT().Issue(gomock.Any(), models.CredentialID("cred-1")).Return(c, nil)

		w := s.do(http.MethodPost, "/admin/credentials/cred-1/issue", "")
		s.Equal(http.StatusOK, w.Code)
		s.Nil(s.decode(w)["anchor_pending"])
	})

	s.Run("ledger outage still reports the issued credential", func() {
		s.svc.EXPECT().Issue(gomock.Any(), models.CredentialID("cred-2")).
			Return(issued("cred-2"), dErrors.New(dErrors.CodeUnavailable, "anchoring failed"))

		w := s.do(http.MethodPost, "/admin/credentials/cred-2/issue", "")
		s.Equal(http.StatusAccepted, w.Code)
		body := s.decode(w)
		s.Equal("issued", body["status"])
		s.Equal(true, body["anchor_pending"])
	})

	s.Run("not a draft", func() {
		s.svc.EXPECT().Issue(gomock.Any(), models.CredentialID("cred-3")).
			Return(nil, dErrors.New(dErrors.CodeConflict, "only draft credentials can be issued"))

		w := s.do(http.MethodPost, "/admin/credentials/cred-3/issue", "")
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *HandlerSuite) TestRevokeRequiresReason() {
	w := s.do(http.MethodPost, "/admin/credentials/cred-1/revoke", `{"reason":"   "}`)
	s.Equal(http.StatusBadRequest, w.Code)

	s.svc.EXPECT().Revoke(gomock.Any(), models.CredentialID("cred-1"), "issued in error").
		Return(issued("cred-1"), nil)
	w = s.do(http.MethodPost, "/admin/credentials/cred-1/revoke", `{"reason":" issued in error "}`)
	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerSuite) TestSetAccessPolicyPrivateNeedsCode() {
	w := s.do(http.MethodPut, "/admin/credentials/cred-1/access-policy", `{"visibility":"private","bound_email":"a@b.com"}`)
	s.Equal(http.StatusBadRequest, w.Code)

	s.svc.EXPECT().SetAccessPolicy(gomock.Any(), models.CredentialID("cred-1"), service.AccessPolicyCommand{
		Visibility: models.VisibilityPublic,
	}).Return(issued("cred-1"), nil)
	w = s.do(http.MethodPut, "/admin/credentials/cred-1/access-policy", `{"visibility":"public"}`)
	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerSuite) TestErrorMapping() {
	s.Run("invalid id never reaches the service", func() {
		w := s.do(http.MethodGet, "/admin/credentials/bad%20id", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("not found", func() {
		s.svc.EXPECT().Get(gomock.Any(), models.CredentialID("cred-789")).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		w := s.do(http.MethodGet, "/admin/credentials/cred-789", "")
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("storage outage is retriable", func() {
		s.svc.EXPECT().Get(gomock.Any(), models.CredentialID("cred-1")).
			Return(nil, dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeUnavailable, "load credential"))
		w := s.do(http.MethodGet, "/admin/credentials/cred-1", "")
		s.Equal(http.StatusServiceUnavailable, w.Code)
		s.Equal("2", w.Header().Get("Retry-After"))
		s.NotContains(w.Body.String(), "dial tcp")
	})

	s.Run("content edits are decoded losslessly", func() {
		s.svc.EXPECT().UpdateContent(gomock.Any(), models.CredentialID("cred-1"), gomock.Any()).
			DoAndReturn(func(_ any, _ models.CredentialID, content *canonical.Map) (*models.Credential, error) {
				v, ok := content.Get("gpa")
				s.True(ok)
				r, isNum := v.AsRat()
				s.True(isNum)
				s.Equal("39/10", r.String())
				return issued("cred-1"), nil
			})
		w := s.do(http.MethodPut, "/admin/credentials/cred-1/content", `{"content":{"gpa":3.9}}`)
		s.Equal(http.StatusOK, w.Code)
	})
}
