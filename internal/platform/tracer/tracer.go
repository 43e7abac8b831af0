// Package tracer is a small span abstraction over OpenTelemetry so domain
// packages never import the otel API directly.
//
// NoopTracer is used in tests and when OTEL_TRACING is off. OTelTracer
// reports to the global tracer provider installed by the embedding process.
package tracer

import (
	"context"
	"time"
)

// Span must be ended exactly once, typically via defer.
type Span interface {
	// End marks the span failed when err is non-nil.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer is safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a span key/value pair.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration is recorded in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

const (
	SpanVerify        = "verification.verify"
	SpanLoad          = "verification.load"
	SpanFingerprint   = "verification.fingerprint"
	SpanAccessRequest = "verification.access"
	SpanExport        = "verification.export"
)

const (
	AttrCredentialID = "credential.id"
	AttrState        = "verification.state"
	AttrAnchorStatus = "anchor.status"
	AttrMethod       = "verification.method"
	AttrGranted      = "access.granted"
	AttrAlgorithm    = "fingerprint.algorithm"
)

const (
	EventAnchorUnavailable = "anchor.unavailable"
	EventAnchorMismatch    = "anchor.mismatch"
)
