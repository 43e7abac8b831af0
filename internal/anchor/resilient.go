package anchor

import (
	"context"
	"log/slog"
	"time"

	"attest/internal/credential/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/circuit"
)

// DefaultFetchTimeout bounds one ledger read.
const DefaultFetchTimeout = time.Second

// ResilientFetcher bounds ledger reads with a timeout and a circuit breaker.
// Every ledger failure comes back as ErrUnavailable so callers can fail open.
type ResilientFetcher struct {
	next    Fetcher
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type ResilientOption func(*ResilientFetcher)

func WithFetchTimeout(d time.Duration) ResilientOption {
	return func(r *ResilientFetcher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) ResilientOption {
	return func(r *ResilientFetcher) { r.breaker = b }
}

func WithLogger(logger *slog.Logger) ResilientOption {
	return func(r *ResilientFetcher) { r.logger = logger }
}

// NewResilientFetcher wraps next. A breaker named anchor-ledger is created
// when none is given.
func NewResilientFetcher(next Fetcher, opts ...ResilientOption) *ResilientFetcher {
	r := &ResilientFetcher{
		next:    next,
		timeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("anchor-ledger")
	}
	return r
}

// FetchAnchor fails fast with ErrUnavailable while the breaker is open.
func (r *ResilientFetcher) FetchAnchor(ctx context.Context, id models.CredentialID) (*models.Anchor, error) {
	if !r.breaker.Allow() {
		return nil, ErrUnavailable
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	a, err := r.next.FetchAnchor(fetchCtx, id)
	if err != nil {
		if ctx.Err() != nil {
			// Caller gave up; not the ledger's fault.
			return nil, ctx.Err()
		}
		_, change := r.breaker.RecordFailure()
		r.log(ctx, "anchor fetch failed", "error", err, "breaker_opened", change.Opened)
		return nil, &dErrors.Error{Code: dErrors.CodeUnavailable, Message: "anchor unavailable", Err: err}
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.log(ctx, "anchor ledger recovered")
	}
	return a, nil
}

func (r *ResilientFetcher) log(ctx context.Context, msg string, args ...any) {
	if r.logger == nil {
		return
	}
	args = append(args, "breaker", r.breaker.Name())
	r.logger.WarnContext(ctx, msg, args...)
}
