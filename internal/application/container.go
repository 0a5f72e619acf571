package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	scanapp "github.com/khanhnv2901/cybersafe/internal/application/scan"
	"github.com/khanhnv2901/cybersafe/internal/domain/audit"
	auditlog "github.com/khanhnv2901/cybersafe/internal/infrastructure/audit"
	"github.com/khanhnv2901/cybersafe/internal/infrastructure/cache"
	"github.com/khanhnv2901/cybersafe/internal/scoring"
	"github.com/khanhnv2901/cybersafe/internal/telemetry"
)

// Config collects everything needed to assemble the scan pipeline.
type Config struct {
	Probes  scanapp.ProbeConfig
	Weights scoring.Weights

	Cache    cache.StoreConfig
	CacheTTL time.Duration
	NoCache  bool

	AuditPath string

	TracingEndpoint string
	TracingInsecure bool
	Version         string
}

// Container holds all application services and infrastructure
// This is a simple dependency injection container
type Container struct {
	Cache     *cache.ResultCache
	AuditRepo audit.Repository
	Metrics   *telemetry.Metrics
	Tracing   *telemetry.Tracing

	Orchestrator *scanapp.Orchestrator
	ScanService  *scanapp.Service
}

// NewContainer creates a new application service container
func NewContainer(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	scorer, err := scoring.NewScorer(cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("invalid scoring weights: %w", err)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, err
	}

	tracing, err := telemetry.NewTracing(ctx, telemetry.TracingOptions{
		Endpoint:       cfg.TracingEndpoint,
		Insecure:       cfg.TracingInsecure,
		ServiceVersion: cfg.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	c := &Container{Metrics: metrics, Tracing: tracing}

	if !cfg.NoCache {
		store, err := cache.NewStore(ctx, cfg.Cache)
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("failed to create cache store: %w", err)
		}
		c.Cache = cache.New(store, cache.WithLogger(logger))
	}

	if cfg.AuditPath != "" {
		repo, err := auditlog.NewLog(cfg.AuditPath)
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("failed to create audit log: %w", err)
		}
		c.AuditRepo = repo
	}

	c.Orchestrator = scanapp.NewOrchestrator(scorer,
		scanapp.WithMetrics(metrics),
		scanapp.WithTracer(tracing.Tracer()),
		scanapp.WithLogger(logger),
	)

	opts := []scanapp.ServiceOption{
		scanapp.WithServiceMetrics(metrics),
		scanapp.WithServiceTracer(tracing.Tracer()),
		scanapp.WithServiceLogger(logger),
	}
	if c.Cache != nil {
		opts = append(opts, scanapp.WithCache(c.Cache, cfg.CacheTTL))
	}
	if c.AuditRepo != nil {
		opts = append(opts, scanapp.WithAudit(c.AuditRepo))
	}
	c.ScanService = scanapp.NewService(c.Orchestrator, scanapp.DefaultProbes(cfg.Probes), opts...)

	return c, nil
}

// Close flushes traces and releases the cache store.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if err := c.Tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	if err := c.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	return errors.Join(errs...)
}
