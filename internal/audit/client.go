package audit

import (
	"context"
	"strings"

	"github.com/mssola/useragent"

	"attest/pkg/platform/privacy"
	"attest/pkg/requestcontext"
)

// enrich copies request metadata from ctx onto e. The client address is
// anonymized before it leaves this function.
func enrich(ctx context.Context, e *Event) {
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.ClientIP == "" {
		if ip := requestcontext.ClientIP(ctx); ip != "" {
			e.ClientIP = privacy.AnonymizeIP(ip)
		}
	}
	if e.Browser == "" && e.OS == "" {
		e.Browser, e.OS, e.IsBot = describeClient(requestcontext.UserAgent(ctx))
	}
}

// describeClient reduces a User-Agent to browser family and OS.
func describeClient(raw string) (browser, os string, bot bool) {
	if strings.TrimSpace(raw) == "" {
		return "", "", false
	}
	ua := useragent.New(raw)
	browser, _ = ua.Browser()
	browser = strings.ToLower(strings.TrimSpace(browser))
	os = strings.ToLower(strings.TrimSpace(ua.OS()))
	if browser == "" {
		browser = "unknown"
	}
	if os == "" {
		os = "unknown"
	}
	return browser, os, ua.Bot()
}
