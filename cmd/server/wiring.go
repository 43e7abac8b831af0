package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"attest/internal/access"
	accessstore "attest/internal/access/store"
	"attest/internal/anchor"
	"attest/internal/anchor/ledger"
	"attest/internal/audit"
	"attest/internal/canonical"
	credhandler "attest/internal/credential/handler"
	credservice "attest/internal/credential/service"
	credstore "attest/internal/credential/store"
	"attest/internal/credential/models"
	"attest/internal/integrity"
	"attest/internal/jsonld"
	"attest/internal/platform/config"
	"attest/internal/platform/database"
	"attest/internal/platform/health"
	"attest/internal/platform/kafka"
	"attest/internal/platform/kafka/producer"
	"attest/internal/platform/metrics"
	"attest/internal/platform/redis"
	"attest/internal/platform/tracer"
	"attest/internal/seeder"
	httptransport "attest/internal/transport/http"
	"attest/internal/verification"
	verifyhandler "attest/internal/verification/handler"
	"attest/pkg/platform/circuit"
	"attest/pkg/platform/middleware/metadata"
	"attest/pkg/platform/middleware/request"
)

// Denied attempts at or above this count are logged for security review.
const accessFailureAlertThreshold = 5

type application struct {
	router  http.Handler
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type infrastructure struct {
	credentials credservice.Store
	ledger      credservice.AnchorSubmitter
	grants      access.GrantStore
	attempts    access.AttemptCounter
	audit       audit.Store
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	app := &application{}
	reg := metrics.NewRegistry()
	healthHandler := health.New(cfg.Environment)

	infra, err := buildInfrastructure(ctx, cfg, log, reg, healthHandler, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	fp, err := integrity.New(
		integrity.WithAlgorithm(cfg.FingerprintAlgorithm),
		integrity.WithCanonicalizer(canonical.New(canonical.WithMaxValueBytes(cfg.CanonicalMaxValueBytes))),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("fingerprinter: %w", err)
	}

	evaluator, err := access.New(access.Config{
		SigningKey: []byte(cfg.GrantSigningKey),
		GrantTTL:   cfg.AccessGrantTTL,
		SingleUse:  cfg.AccessGrantSingleUse,
		HashCost:   bcrypt.DefaultCost,
	}, infra.grants, infra.attempts,
		access.WithLogger(log),
		access.WithFailureHook(func(ctx context.Context, id models.CredentialID, failures int64) {
			if failures >= accessFailureAlertThreshold {
				log.WarnContext(ctx, "repeated access failures",
					"credential_id", id,
					"failures", failures,
					"log_type", "security",
				)
			}
		}),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("access evaluator: %w", err)
	}

	auditor := audit.NewPublisher(infra.audit,
		audit.WithAsyncBuffer(1024),
		audit.WithPublisherLogger(log),
	)
	app.closers = append(app.closers, auditor.Close)

	exporter, err := jsonld.New(cfg.PublicBaseURL)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("jsonld exporter: %w", err)
	}

	var tr tracer.Tracer = tracer.NewNoop()
	if cfg.OTelTracing {
		tr = tracer.NewOTel()
	}

	fetcher := anchor.NewResilientFetcher(infra.ledger,
		anchor.WithFetchTimeout(cfg.AnchorFetchTimeout),
		anchor.WithBreaker(circuit.New("anchor-ledger")),
		anchor.WithLogger(log),
	)

	issuer := credservice.New(infra.credentials, infra.ledger, fp, evaluator,
		credservice.WithLogger(log),
		credservice.WithAuditor(auditor),
	)
	verifier := verification.New(verification.Config{
		StrictAnchorMatch: cfg.StrictAnchorMatch,
		AccessGrantTTL:    cfg.AccessGrantTTL,
	}, infra.credentials, evaluator, fp,
		verification.WithLogger(log),
		verification.WithAnchorFetcher(fetcher),
		verification.WithExporter(exporter),
		verification.WithAuditor(auditor),
		verification.WithMetrics(verification.NewMetrics(reg)),
		verification.WithTracer(tr),
		verification.WithStorageTimeout(cfg.StorageTimeout),
	)

	if cfg.SeedDemoData && !cfg.IsProduction() {
		if err := seeder.New(issuer, log).SeedAll(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	app.router = httptransport.NewRouter(httptransport.Config{
		AdminToken:     cfg.AdminAPIToken,
		TrustedProxies: metadata.ParseTrustedProxies(cfg.TrustedProxies),
		RequestTimeout: cfg.RequestTimeout,
	}, httptransport.Dependencies{
		Logger:         log,
		Registry:       reg,
		RequestMetrics: request.NewMetrics(reg),
		Health:         healthHandler,
		Verification:   verifyhandler.New(verifier, log),
		Credentials:    credhandler.New(issuer, log),
	})
	return app, nil
}

// buildInfrastructure picks Postgres, Redis and Kafka when configured and
// in-memory implementations otherwise.
func buildInfrastructure(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer, hh *health.Handler, app *application) (*infrastructure, error) {
	infra := &infrastructure{}

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		app.closers = append(app.closers, func() { _ = pool.Close() })
		if err := pool.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		hh.Register(pool)
		infra.credentials = credstore.NewPostgres(pool.DB())
		infra.ledger = ledger.NewPostgres(pool.DB())
		infra.audit = audit.NewPostgresStore(pool.DB())
		log.Info("using postgres storage")
	} else {
		infra.credentials = credstore.NewInMemoryStore()
		infra.ledger = ledger.NewInMemory()
		infra.audit = audit.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		app.closers = append(app.closers, func() { _ = rc.Close() })
		hh.Register(rc)
		reg.MustRegister(redis.NewPoolCollector(rc.Client))
		infra.grants = accessstore.NewRedisGrantStore(rc)
		infra.attempts = accessstore.NewRedisAttemptCounter(rc, time.Hour)
	} else {
		infra.grants = accessstore.NewInMemoryGrantStore()
		infra.attempts = accessstore.NewInMemoryAttemptCounter(time.Hour)
	}

	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Acks:            cfg.Kafka.Acks,
			Retries:         cfg.Kafka.Retries,
			DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, func() { p.Close(5 * time.Second) })
		hh.Register(kafka.NewHealthChecker(p, cfg.Kafka.AuditTopic))
		infra.audit = audit.MultiStore{infra.audit, audit.NewKafkaStore(p, cfg.Kafka.AuditTopic)}
		log.Info("streaming audit events to kafka", "topic", cfg.Kafka.AuditTopic)
	}

	return infra, nil
}
