// Package requestcontext carries request-scoped values (request id, client
// metadata, request time) through context.Context so services never need to
// see an *http.Request.
package requestcontext

import (
	"context"
	"time"
)

type (
	ctxKeyRequestID   struct{}
	ctxKeyClientIP    struct{}
	ctxKeyUserAgent   struct{}
	ctxKeyRequestTime struct{}
)

// WithRequestID returns a context carrying the correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, requestID)
}

// RequestID returns the correlation id or "" when none was set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID{}).(string); ok {
		return v
	}
	return ""
}

// WithClientMetadata stores the resolved client IP and raw User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClientIP{}, clientIP)
	return context.WithValue(ctx, ctxKeyUserAgent{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP{}).(string); ok {
		return v
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent{}).(string); ok {
		return v
	}
	return ""
}

// WithTime pins "now" for everything downstream of ctx.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyRequestTime{}, t)
}

// Now returns the pinned request time, falling back to the wall clock for
// callers outside an HTTP request (workers, seeders, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ctxKeyRequestTime{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
