package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"time"

	"golang.org/x/crypto/bcrypt"

	"attest/internal/access"
	accessstore "attest/internal/access/store"
	"attest/internal/anchor/ledger"
	"attest/internal/audit"
	credhandler "attest/internal/credential/handler"
	credservice "attest/internal/credential/service"
	credstore "attest/internal/credential/store"
	"attest/internal/integrity"
	"attest/internal/jsonld"
	"attest/internal/platform/health"
	"attest/internal/platform/metrics"
	"attest/internal/seeder"
	httptransport "attest/internal/transport/http"
	"attest/internal/verification"
	verifyhandler "attest/internal/verification/handler"
	"attest/pkg/platform/middleware/request"
)

// startServer runs the full in-memory stack with demo data and strict
// anchor matching, for runs without BASE_URL.
func startServer() (*httptest.Server, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.NewRegistry()

	credentials := credstore.NewInMemoryStore()
	anchors := ledger.NewInMemory()
	fp, err := integrity.New()
	if err != nil {
		return nil, err
	}
	evaluator, err := access.New(access.Config{
		SigningKey: []byte("e2e-grant-signing-key-0123456789abcdef"),
		GrantTTL:   time.Minute,
		SingleUse:  true,
		HashCost:   bcrypt.MinCost,
	}, accessstore.NewInMemoryGrantStore(), accessstore.NewInMemoryAttemptCounter(time.Hour))
	if err != nil {
		return nil, err
	}
	auditor := audit.NewPublisher(audit.NewInMemoryStore())
	srv := httptest.NewUnstartedServer(nil)
	exporter, err := jsonld.New("http://" + srv.Listener.Addr().String())
	if err != nil {
		return nil, err
	}

	issuer := credservice.New(credentials, anchors, fp, evaluator,
		credservice.WithLogger(logger),
		credservice.WithAuditor(auditor),
	)
	verifier := verification.New(verification.Config{StrictAnchorMatch: true}, credentials, evaluator, fp,
		verification.WithLogger(logger),
		verification.WithAnchorFetcher(anchors),
		verification.WithExporter(exporter),
		verification.WithAuditor(auditor),
		verification.WithMetrics(verification.NewMetrics(reg)),
	)
	if err := seeder.New(issuer, logger).SeedAll(context.Background()); err != nil {
		return nil, err
	}

	srv.Config.Handler = httptransport.NewRouter(httptransport.Config{AdminToken: defaultAdminToken}, httptransport.Dependencies{
		Logger:         logger,
		Registry:       reg,
		RequestMetrics: request.NewMetrics(reg),
		Health:         health.New("e2e"),
		Verification:   verifyhandler.New(verifier, logger),
		Credentials:    credhandler.New(issuer, logger),
	})
	srv.Start()
	return srv, nil
}
