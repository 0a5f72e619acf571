package scan

import (
	"context"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/khanhnv2901/cybersafe/internal/checker"
	"github.com/khanhnv2901/cybersafe/internal/domain/audit"
	"github.com/khanhnv2901/cybersafe/internal/domain/consent"
	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	"github.com/khanhnv2901/cybersafe/internal/infrastructure/cache"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
	"github.com/khanhnv2901/cybersafe/internal/telemetry"
)

// ProbeConfig holds the tunables handed to every probe.
type ProbeConfig struct {
	HTTPTimeout     time.Duration
	TLSTimeout      time.Duration
	TLSPort         int
	PortTimeout     time.Duration
	PortConcurrency int
	Ports           []int
	SensitivePorts  []int
	RootCAs         *x509.CertPool
	Transport       http.RoundTripper
}

// ProbeFactory builds the probe set for one request. Active probes are only
// included when active is true.
type ProbeFactory func(req scan.Request, active bool) []checker.Probe

// DefaultProbes returns a factory producing the built-in probes.
func DefaultProbes(cfg ProbeConfig) ProbeFactory {
	return func(req scan.Request, active bool) []checker.Probe {
		probes := []checker.Probe{
			&checker.HeadersProbe{Timeout: cfg.HTTPTimeout, Transport: cfg.Transport},
			&checker.TLSProbe{
				Port:     cfg.TLSPort,
				Timeout:  cfg.TLSTimeout,
				RootCAs:  cfg.RootCAs,
				Advanced: req.AdvancedTLS,
			},
			&checker.CORSProbe{Timeout: cfg.HTTPTimeout, Transport: cfg.Transport},
			&checker.MethodsProbe{Timeout: cfg.HTTPTimeout, Transport: cfg.Transport},
		}
		if active {
			ports := cfg.Ports
			if len(req.Ports) > 0 {
				ports = req.Ports
			}
			probes = append(probes, &checker.PortsProbe{
				Ports:          ports,
				SensitivePorts: cfg.SensitivePorts,
				Timeout:        cfg.PortTimeout,
				MaxWorkers:     cfg.PortConcurrency,
			})
		}
		return probes
	}
}

// Outcome is everything the caller needs to present a finished scan.
type Outcome struct {
	ScanID   string
	Target   *checker.TargetInfo
	Decision consent.Decision
	Result   scan.ScanResult
	CacheHit bool
	Duration time.Duration
}

// Service is the single entry point for running a scan: consent gate, cache,
// orchestration, scoring and audit.
type Service struct {
	orchestrator *Orchestrator
	probes       ProbeFactory
	cache        *cache.ResultCache
	cacheTTL     time.Duration
	auditRepo    audit.Repository
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
	logger       *zap.SugaredLogger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache serves and stores results through c for ttl.
func WithCache(c *cache.ResultCache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithAudit appends one record per scan to repo.
func WithAudit(repo audit.Repository) ServiceOption {
	return func(s *Service) { s.auditRepo = repo }
}

// WithServiceMetrics records scan-level metrics.
func WithServiceMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithServiceTracer traces each scan.
func WithServiceTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *zap.SugaredLogger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a scan service
func NewService(orchestrator *Orchestrator, probes ProbeFactory, opts ...ServiceOption) *Service {
	s := &Service{
		orchestrator: orchestrator,
		probes:       probes,
		cacheTTL:     consts.DefaultCacheTTL,
		tracer:       noop.NewTracerProvider().Tracer("cybersafe"),
		logger:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs one scan request. A confirmation mismatch returns
// ErrConsentMismatch without running any probe. Missing consent for an
// active scan is not an error: the passive probes run and the decision
// carries the warning.
func (s *Service) Scan(ctx context.Context, req scan.Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	info, err := checker.NormalizeTarget(req.TargetURL)
	if err != nil {
		return nil, err
	}

	decision := consent.Evaluate(req.ActiveRequested, req.ConsentConfirmed, req.TypedConfirmation, info.ConfirmationDomain())
	if decision.Blocking() {
		s.metrics.ConsentBlocked()
		s.logger.Warnw("active scan blocked", "target", info.Host, "typed", req.TypedConfirmation)
		return nil, fmt.Errorf("%w: typed %q, expected %q",
			sharedErrors.ErrConsentMismatch, req.TypedConfirmation, info.ConfirmationDomain())
	}
	if decision.Warning() {
		s.logger.Warnw("active scan requested without consent, running passive checks only", "target", info.Host)
	}

	ctx, span := s.tracer.Start(ctx, "scan", trace.WithAttributes(
		attribute.String("scan.target", info.Host),
		attribute.Bool("scan.active", decision.Allowed),
		attribute.Bool("scan.advanced_tls", req.AdvancedTLS),
	))
	defer span.End()

	start := time.Now()
	outcome := &Outcome{Target: info, Decision: decision}
	key := cache.Key(info.Origin(), decision.Allowed, req.AdvancedTLS)

	if !req.Refresh {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.metrics.ObserveCache(true)
			s.logger.Debugw("serving cached result", "key", key)
			outcome.Result = *cached
			outcome.CacheHit = true
		} else if s.cache != nil {
			s.metrics.ObserveCache(false)
		}
	}

	if !outcome.CacheHit {
		outcome.Result = s.orchestrator.Run(ctx, info.FullURL, s.probes(req, decision.Allowed))
		s.cache.Set(ctx, key, outcome.Result, s.cacheTTL)
	}
	outcome.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("scan.overall_score", outcome.Result.OverallScore),
		attribute.Bool("scan.cache_hit", outcome.CacheHit),
	)

	outcome.ScanID = s.recordAudit(ctx, req, outcome)
	s.metrics.ObserveScan(info.Host, decision.Allowed, &outcome.Result)
	s.logger.Infow("scan completed",
		"scan_id", outcome.ScanID,
		"target", info.Host,
		"overall_score", outcome.Result.OverallScore,
		"active", decision.Allowed,
		"cache_hit", outcome.CacheHit,
		"duration", outcome.Duration,
	)
	return outcome, nil
}

// ClearCache drops every cached result.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// recordAudit appends the scan to the audit log and returns the scan ID.
// Audit failures are logged; they never fail the scan.
func (s *Service) recordAudit(ctx context.Context, req scan.Request, outcome *Outcome) string {
	if s.auditRepo == nil {
		return uuid.NewString()
	}
	record, err := audit.NewRecord(req.TargetURL, outcome.Target.Host, &outcome.Result)
	if err != nil {
		s.logger.Warnw("audit record not created", "error", err)
		return uuid.NewString()
	}
	record.Operator = req.Operator
	record.ActiveRequested = req.ActiveRequested
	record.ConsentOutcome = string(outcome.Decision.Outcome)
	record.AdvancedTLS = req.AdvancedTLS
	record.CacheHit = outcome.CacheHit
	record.DurationSeconds = outcome.Duration.Seconds()

	if err := s.auditRepo.Append(ctx, record); err != nil {
		s.logger.Warnw("audit append failed", "scan_id", record.ScanID, "error", err)
	}
	return record.ScanID
}
