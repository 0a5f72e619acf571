// Package api exposes the scan pipeline over HTTP. Scans run asynchronously
// as jobs; clients poll a job or follow the job stream.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/cybersafe/internal/api/middleware"
	scanapp "github.com/khanhnv2901/cybersafe/internal/application/scan"
	"github.com/khanhnv2901/cybersafe/internal/checker"
	"github.com/khanhnv2901/cybersafe/internal/domain/consent"
	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	"github.com/khanhnv2901/cybersafe/internal/report"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

const (
	apiPrefix        = "/api/v1"
	maxRequestBody   = 1 << 20
	defaultListLimit = 25
	operatorHeader   = "X-Operator"
	defaultOperator  = "api"
)

// CacheService clears cached scan results.
type CacheService interface {
	ClearCache(ctx context.Context) error
}

type Config struct {
	Scanner     scanapp.Scanner
	Cache       CacheService        // nil disables DELETE /cache
	Metrics     prometheus.Gatherer // nil disables /metrics
	Jobs        *JobManager
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string      // Allowed CORS origins (empty = allow all)
	RateLimit   int           // Requests per second per IP (0 = disabled)
	RateBurst   int           // Burst size for rate limiter
	ScanTimeout time.Duration // Timeout for each scan job (0 = none)
	MaxScans    int           // Concurrent scan jobs (0 = unlimited)
	Version     string
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap

	scans    conc.WaitGroup
	slots    chan struct{}
	draining atomic.Bool
	baseCtx  context.Context
	cancel   context.CancelFunc
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Jobs == nil {
		cfg.Jobs = NewJobManager()
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	if cfg.MaxScans > 0 {
		srv.slots = make(chan struct{}, cfg.MaxScans)
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// RequestID -> Logging -> RateLimit -> CORS -> Auth -> Handler
	handler := middleware.RequestID(s.withLogging(s.withRateLimit(s.withCORS(s.mux))))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle(apiPrefix+"/health", s.withAuth(http.HandlerFunc(s.handleHealth)))
	s.mux.Handle(apiPrefix+"/ready", s.withAuth(http.HandlerFunc(s.handleReady)))
	s.mux.Handle(apiPrefix+"/scans", s.withAuth(http.HandlerFunc(s.handleScans)))
	s.mux.Handle(apiPrefix+"/scans/", s.withAuth(http.HandlerFunc(s.handleScanByID)))
	s.mux.Handle(apiPrefix+"/scans-stream", s.withAuth(http.HandlerFunc(s.handleScanStream)))
	s.mux.Handle(apiPrefix+"/cache", s.withAuth(http.HandlerFunc(s.handleCache)))
	if s.cfg.Metrics != nil {
		s.mux.Handle("/metrics", s.withAuth(promhttp.HandlerFor(s.cfg.Metrics, promhttp.HandlerOpts{})))
	}
}

// Shutdown stops accepting scan work and waits for running scans. When ctx
// expires first the running scans are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	done := make(chan struct{})
	go func() {
		if recovered := s.scans.WaitAndRecover(); recovered != nil {
			s.cfg.Logger.Error("scan job panicked", zap.String("panic", recovered.String()))
		}
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Server) shuttingDown() bool {
	return s.draining.Load() || s.baseCtx.Err() != nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.cfg.Version})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Scanner == nil || s.shuttingDown() {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("not ready"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := defaultListLimit
		if q := r.URL.Query().Get("limit"); q != "" {
			if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		writeJSON(w, http.StatusOK, s.cfg.Jobs.ListJobs(limit))
	case http.MethodPost:
		s.startScan(w, r)
	default:
		s.methodNotAllowed(w, r)
	}
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scanner == nil || s.shuttingDown() {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("scanner not available"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req scan.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidInput, err))
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	info, err := checker.NormalizeTarget(req.TargetURL)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	// A confirmation mismatch is rejected before a job exists.
	decision := consent.Evaluate(req.ActiveRequested, req.ConsentConfirmed, req.TypedConfirmation, info.ConfirmationDomain())
	if decision.Blocking() {
		s.requestLogger(r).Warn("active scan blocked", zap.String("target", info.Host))
		s.writeError(w, r, http.StatusForbidden, fmt.Errorf("%w: type %q to authorize active checks",
			sharedErrors.ErrConsentMismatch, info.ConfirmationDomain()))
		return
	}

	if req.Operator == "" {
		req.Operator = r.Header.Get(operatorHeader)
	}
	if req.Operator == "" {
		req.Operator = defaultOperator
	}

	job := s.cfg.Jobs.CreateJob(req.TargetURL, req.Operator)
	requestID := middleware.GetRequestID(r.Context())
	s.scans.Go(func() { s.runScan(job.ID, requestID, req) })

	w.Header().Set("Location", apiPrefix+"/scans/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) runScan(jobID, requestID string, req scan.Request) {
	logger := s.cfg.Logger.With(zap.String("job_id", jobID), zap.String("request_id", requestID))

	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-s.baseCtx.Done():
			s.finishJob(jobID, nil, s.baseCtx.Err())
			return
		}
	}

	ctx := s.baseCtx
	if s.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ScanTimeout)
		defer cancel()
	}

	started := time.Now()
	s.cfg.Jobs.UpdateJob(jobID, func(j *Job) {
		j.Status = JobRunning
		j.StartedAt = &started
	})

	outcome, err := s.cfg.Scanner.Scan(ctx, req)
	if err != nil {
		logger.Warn("scan job failed", zap.String("target", req.TargetURL), zap.Error(err))
	} else {
		logger.Info("scan job finished",
			zap.String("target", req.TargetURL),
			zap.String("scan_id", outcome.ScanID),
			zap.Int("overall_score", outcome.Result.OverallScore),
		)
	}
	s.finishJob(jobID, outcome, err)
}

func (s *Server) finishJob(jobID string, outcome *scanapp.Outcome, err error) {
	finished := time.Now()
	s.cfg.Jobs.UpdateJob(jobID, func(j *Job) {
		j.FinishedAt = &finished
		if err != nil {
			j.Status = JobError
			j.Error = err.Error()
			return
		}
		j.Status = JobDone
		j.ScanID = outcome.ScanID
		j.CacheHit = outcome.CacheHit
		j.ConsentOutcome = string(outcome.Decision.Outcome)
		result := outcome.Result.Clone()
		j.Result = &result
	})
}

func (s *Server) handleScanByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, apiPrefix+"/scans/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}
	job, ok := s.cfg.Jobs.GetJob(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan not found"))
		return
	}

	switch sub {
	case "":
		writeJSON(w, http.StatusOK, job)
	case "report":
		s.writeReport(w, r, job)
	default:
		s.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	}
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, job Job) {
	if job.Status != JobDone || job.Result == nil {
		s.writeError(w, r, http.StatusConflict, fmt.Errorf("scan is %s", job.Status))
		return
	}
	format := report.FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := report.ParseFormat(q)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		format = f
	}

	rpt := report.Report{
		ScanID:      job.ScanID,
		Target:      job.Target,
		Operator:    job.Operator,
		CacheHit:    job.CacheHit,
		GeneratedAt: time.Now().UTC(),
		Result:      *job.Result,
	}
	w.Header().Set("Content-Type", contentType(format))
	if format.Binary() {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, job.ID, format.Extension()))
	}
	if err := report.Render(w, format, rpt); err != nil {
		s.requestLogger(r).Error("report rendering failed", zap.Error(err))
	}
}

func contentType(f report.Format) string {
	switch f {
	case report.FormatJSON:
		return "application/json"
	case report.FormatYAML:
		return "application/yaml"
	case report.FormatHTML:
		return "text/html; charset=utf-8"
	case report.FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

func (s *Server) handleScanStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	updates, unsubscribe := s.cfg.Jobs.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			// Results can be large; stream clients fetch them by ID.
			job.Result = nil
			payload, err := json.Marshal(job)
			if err != nil {
				s.cfg.Logger.Error("failed to marshal job", zap.Error(err))
				continue
			}
			if !s.writeStreamChunk(w, []byte("event: scan\ndata: ")) ||
				!s.writeStreamChunk(w, payload) ||
				!s.writeStreamChunk(w, []byte("\n\n")) {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		case <-s.baseCtx.Done():
			return
		}
	}
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Cache == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("cache not enabled"))
		return
	}
	if err := s.cfg.Cache.ClearCache(r.Context()); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := clientAddr(r)
		limiter := s.limiters.getLimiter(clientIP, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client_ip", clientIP))
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr returns the caller IP, preferring the first X-Forwarded-For hop.
func clientAddr(r *http.Request) string {
	clientIP := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		clientIP = strings.TrimSpace(first)
	}
	if strings.HasPrefix(clientIP, "[") {
		if end := strings.Index(clientIP, "]"); end > 0 {
			return clientIP[1:end]
		}
	}
	if strings.Count(clientIP, ":") == 1 {
		clientIP, _, _ = strings.Cut(clientIP, ":")
	}
	return clientIP
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowed := range s.cfg.CORSOrigins {
				if allowed == origin {
					allowOrigin = origin
					break
				}
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token, X-Operator, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
			if allowOrigin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		s.cfg.Logger.Info("http_request",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lrw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes", lrw.bytesWritten),
		)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingResponseWriter captures the status code and bytes written.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError hides 5xx details from the client and logs them instead.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error", zap.Error(err), zap.Int("status", status))
		msg = http.StatusText(status)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (s *Server) writeStreamChunk(w http.ResponseWriter, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		s.cfg.Logger.Debug("stream client went away", zap.Error(err))
		return false
	}
	return true
}

// rateLimiterMap holds one limiter per client IP. Idle limiters are evicted
// lazily on access.
type rateLimiterMap struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	idleAfter time.Duration
	lastSweep time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	return &rateLimiterMap{
		limiters:  make(map[string]*ipLimiter),
		idleAfter: 5 * time.Minute,
		lastSweep: time.Now(),
	}
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Sub(m.lastSweep) > time.Minute {
		for key, l := range m.limiters {
			if now.Sub(l.lastSeen) > m.idleAfter {
				delete(m.limiters, key)
			}
		}
		m.lastSweep = now
	}

	l, ok := m.limiters[ip]
	if !ok {
		if burst <= 0 {
			burst = rps
		}
		l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[ip] = l
	}
	l.lastSeen = now
	return l.limiter
}
