package verification

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetAccessToken() string
	SetAccessToken(token string)
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^I verify credential "([^"]*)"$`, steps.verify)
	ctx.Step(`^I verify credential "([^"]*)" via "([^"]*)"$`, steps.verifyVia)
	ctx.Step(`^I verify credential "([^"]*)" with the access token$`, steps.verifyWithToken)
	ctx.Step(`^I request access to "([^"]*)" with code "([^"]*)" and email "([^"]*)"$`, steps.requestAccess)
	ctx.Step(`^I save the access token$`, steps.saveAccessToken)
	ctx.Step(`^I export credential "([^"]*)" as JSON-LD$`, steps.export)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) verify(ctx context.Context, id string) error {
	return s.tc.GET("/verify/"+url.PathEscape(id), nil)
}

func (s *verificationSteps) verifyVia(ctx context.Context, id, method string) error {
	return s.tc.GET("/verify/"+url.PathEscape(id)+"?method="+url.QueryEscape(method), nil)
}

func (s *verificationSteps) verifyWithToken(ctx context.Context, id string) error {
	return s.tc.GET("/verify/"+url.PathEscape(id), map[string]string{
		"Authorization": "Bearer " + s.tc.GetAccessToken(),
	})
}

func (s *verificationSteps) requestAccess(ctx context.Context, id, code, email string) error {
	return s.tc.POST("/verify/"+url.PathEscape(id)+"/access", map[string]any{
		"access_code": code,
		"email":       email,
	}, nil)
}

func (s *verificationSteps) saveAccessToken(ctx context.Context) error {
	token, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	str, ok := token.(string)
	if !ok || str == "" {
		return fmt.Errorf("access_token missing from response")
	}
	s.tc.SetAccessToken(str)
	return nil
}

func (s *verificationSteps) export(ctx context.Context, id string) error {
	return s.tc.GET("/verify/"+url.PathEscape(id)+"/jsonld", nil)
}
