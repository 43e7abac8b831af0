package admin

import (
	"context"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	PUT(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	AdminHeaders() map[string]string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &adminSteps{tc: tc}

	ctx.Step(`^I create a public credential "([^"]*)" titled "([^"]*)" for "([^"]*)"$`, steps.createPublic)
	ctx.Step(`^I create a private credential "([^"]*)" with code "([^"]*)" and email "([^"]*)"$`, steps.createPrivate)
	ctx.Step(`^I create a credential "([^"]*)" without the admin token$`, steps.createWithoutToken)
	ctx.Step(`^I issue credential "([^"]*)"$`, steps.issue)
	ctx.Step(`^I revoke credential "([^"]*)" because "([^"]*)"$`, steps.revoke)
	ctx.Step(`^I change the title of "([^"]*)" to "([^"]*)"$`, steps.changeTitle)
	ctx.Step(`^I fetch credential "([^"]*)" as admin$`, steps.fetch)
}

type adminSteps struct {
	tc TestContext
}

func path(id string, suffix string) string {
	return "/admin/credentials/" + url.PathEscape(id) + suffix
}

func (s *adminSteps) createPublic(ctx context.Context, id, title, recipient string) error {
	return s.tc.POST("/admin/credentials", map[string]any{
		"credential_id": id,
		"visibility":    "public",
		"content": map[string]any{
			"title":          title,
			"recipient_name": recipient,
			"issuer":         "Attest Academy",
		},
	}, s.tc.AdminHeaders())
}

func (s *adminSteps) createPrivate(ctx context.Context, id, code, email string) error {
	return s.tc.POST("/admin/credentials", map[string]any{
		"credential_id": id,
		"visibility":    "private",
		"access_code":   code,
		"bound_email":   email,
		"content": map[string]any{
			"title":           "Private Diploma",
			"recipient_name":  "Private Holder",
			"recipient_email": email,
		},
	}, s.tc.AdminHeaders())
}

func (s *adminSteps) createWithoutToken(ctx context.Context, id string) error {
	return s.tc.POST("/admin/credentials", map[string]any{
		"credential_id": id,
		"content":       map[string]any{"title": "Unauthorized"},
	}, nil)
}

func (s *adminSteps) issue(ctx context.Context, id string) error {
	return s.tc.POST(path(id, "/issue"), map[string]any{}, s.tc.AdminHeaders())
}

func (s *adminSteps) revoke(ctx context.Context, id, reason string) error {
	return s.tc.POST(path(id, "/revoke"), map[string]any{"reason": reason}, s.tc.AdminHeaders())
}

func (s *adminSteps) changeTitle(ctx context.Context, id, title string) error {
	return s.tc.PUT(path(id, "/content"), map[string]any{
		"content": map[string]any{"title": title},
	}, s.tc.AdminHeaders())
}

func (s *adminSteps) fetch(ctx context.Context, id string) error {
	return s.tc.GET(path(id, ""), s.tc.AdminHeaders())
}
