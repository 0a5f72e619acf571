package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/cybersafe/internal/checker"
	"github.com/khanhnv2901/cybersafe/internal/domain/audit"
	"github.com/khanhnv2901/cybersafe/internal/domain/consent"
	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	"github.com/khanhnv2901/cybersafe/internal/infrastructure/cache"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
	"github.com/khanhnv2901/cybersafe/internal/telemetry"
)

type recordingFactory struct {
	mu      sync.Mutex
	calls   int
	actives []bool
}

func (f *recordingFactory) build(req scan.Request, active bool) []checker.Probe {
	f.mu.Lock()
	f.calls++
	f.actives = append(f.actives, active)
	f.mu.Unlock()

	probes := []checker.Probe{
		fixedProbe(scan.ProbeHeaders, 100),
		fixedProbe(scan.ProbeTLS, 100),
		fixedProbe(scan.ProbeCORS, 50),
		fixedProbe(scan.ProbeMethods, 100),
	}
	if active {
		probes = append(probes, fixedProbe(scan.ProbePorts, 80))
	}
	return probes
}

type memoryAudit struct {
	records []*audit.Record
}

func (m *memoryAudit) Append(ctx context.Context, r *audit.Record) error {
	prev := ""
	if len(m.records) > 0 {
		prev = m.records[len(m.records)-1].Hash
	}
	if err := r.Seal(prev); err != nil {
		return err
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memoryAudit) List(ctx context.Context) ([]*audit.Record, error) { return m.records, nil }

func (m *memoryAudit) Verify(ctx context.Context) error { return nil }

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *recordingFactory) {
	t.Helper()
	f := &recordingFactory{}
	return NewService(newTestOrchestrator(t), f.build, opts...), f
}

func TestService_PassiveScan(t *testing.T) {
	svc, f := newTestService(t)

	out, err := svc.Scan(context.Background(), scan.Request{TargetURL: "example.com"})
	require.NoError(t, err)

	assert.Equal(t, consent.OutcomeNotRequested, out.Decision.Outcome)
	assert.Equal(t, []bool{false}, f.actives)
	assert.False(t, out.Result.ActiveRan())
	assert.Equal(t, "https://example.com", out.Target.FullURL)
	// floor((100*30 + 100*30 + 50*15 + 100*15) / 90)
	assert.Equal(t, 91, out.Result.OverallScore)
	assert.NotEmpty(t, out.ScanID)
}

func TestService_ActiveScanWithConsent(t *testing.T) {
	svc, f := newTestService(t)

	out, err := svc.Scan(context.Background(), scan.Request{
		TargetURL:         "https://Example.com/login",
		ActiveRequested:   true,
		ConsentConfirmed:  true,
		TypedConfirmation: "example.com",
	})
	require.NoError(t, err)

	assert.True(t, out.Decision.Allowed)
	assert.Equal(t, []bool{true}, f.actives)
	assert.True(t, out.Result.ActiveRan())
	assert.Equal(t, 80, out.Result.Probes[scan.ProbePorts].Score)
}

func TestService_ConsentMissingRunsPassive(t *testing.T) {
	svc, f := newTestService(t)

	out, err := svc.Scan(context.Background(), scan.Request{
		TargetURL:       "example.com",
		ActiveRequested: true,
	})
	require.NoError(t, err)

	assert.True(t, out.Decision.Warning())
	assert.Equal(t, []bool{false}, f.actives)
	assert.False(t, out.Result.ActiveRan())
}

func TestService_ConfirmationMismatchBlocks(t *testing.T) {
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	svc, f := newTestService(t, WithServiceMetrics(metrics))

	out, err := svc.Scan(context.Background(), scan.Request{
		TargetURL:         "example.com",
		ActiveRequested:   true,
		ConsentConfirmed:  true,
		TypedConfirmation: "wrong.com",
	})

	assert.ErrorIs(t, err, sharedErrors.ErrConsentMismatch)
	assert.Nil(t, out)
	assert.Equal(t, 0, f.calls, "no probe may run after a mismatch")
}

func TestService_InvalidRequest(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Scan(context.Background(), scan.Request{})
	assert.ErrorIs(t, err, sharedErrors.ErrEmptyTarget)

	_, err = svc.Scan(context.Background(), scan.Request{TargetURL: "ftp://example.com"})
	assert.ErrorIs(t, err, sharedErrors.ErrInvalidTarget)

	_, err = svc.Scan(context.Background(), scan.Request{TargetURL: "example.com", Ports: []int{0}})
	assert.ErrorIs(t, err, sharedErrors.ErrInvalidPort)
}

func TestService_CacheHit(t *testing.T) {
	c := cache.New(cache.NewMemoryStore())
	svc, f := newTestService(t, WithCache(c, time.Hour))
	ctx := context.Background()

	first, err := svc.Scan(ctx, scan.Request{TargetURL: "example.com"})
	require.NoError(t, err)
	second, err := svc.Scan(ctx, scan.Request{TargetURL: "https://example.com"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls)
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Result, second.Result)
}

func TestService_CacheKeysSeparateModes(t *testing.T) {
	c := cache.New(cache.NewMemoryStore())
	svc, f := newTestService(t, WithCache(c, time.Hour))
	ctx := context.Background()

	_, err := svc.Scan(ctx, scan.Request{TargetURL: "example.com"})
	require.NoError(t, err)
	active, err := svc.Scan(ctx, scan.Request{
		TargetURL:         "example.com",
		ActiveRequested:   true,
		ConsentConfirmed:  true,
		TypedConfirmation: "example.com",
	})
	require.NoError(t, err)
	advanced, err := svc.Scan(ctx, scan.Request{TargetURL: "example.com", AdvancedTLS: true})
	require.NoError(t, err)

	assert.Equal(t, 3, f.calls)
	assert.False(t, active.CacheHit)
	assert.True(t, active.Result.ActiveRan())
	assert.False(t, advanced.CacheHit)
}

func TestService_CacheKeysSeparateOrigins(t *testing.T) {
	c := cache.New(cache.NewMemoryStore())
	svc, f := newTestService(t, WithCache(c, time.Hour))
	ctx := context.Background()

	for _, target := range []string{"example.com", "https://example.com:443/", "https://example.com:8443", "http://example.com"} {
		_, err := svc.Scan(ctx, scan.Request{TargetURL: target})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, f.calls, "default port shares an entry, other ports and schemes do not")
}

func TestService_FileCacheServesIdenticalResult(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	probes := func(req scan.Request, active bool) []checker.Probe {
		return []checker.Probe{
			checker.ProbeFunc{ProbeName: scan.ProbeTLS, Fn: func(ctx context.Context, target string) scan.ProbeResult {
				return scan.ProbeResult{Score: 100, Details: map[string]any{"days_left": 90, "version": "TLSv1.3"}}
			}},
			checker.ProbeFunc{ProbeName: scan.ProbeMethods, Fn: func(ctx context.Context, target string) scan.ProbeResult {
				return scan.ProbeResult{Score: 100, Details: map[string]any{"allowed_methods": []string{"GET", "HEAD"}}}
			}},
		}
	}
	svc := NewService(newTestOrchestrator(t), probes, WithCache(cache.New(store), time.Hour))
	ctx := context.Background()

	fresh, err := svc.Scan(ctx, scan.Request{TargetURL: "example.com"})
	require.NoError(t, err)
	cached, err := svc.Scan(ctx, scan.Request{TargetURL: "example.com"})
	require.NoError(t, err)

	require.True(t, cached.CacheHit)
	assert.Equal(t, fresh.Result, cached.Result)
}

func TestService_RefreshBypassesCache(t *testing.T) {
	c := cache.New(cache.NewMemoryStore())
	svc, f := newTestService(t, WithCache(c, time.Hour))
	ctx := context.Background()

	_, err := svc.Scan(ctx, scan.Request{TargetURL: "example.com"})
	require.NoError(t, err)
	out, err := svc.Scan(ctx, scan.Request{TargetURL: "example.com", Refresh: true})
	require.NoError(t, err)

	assert.Equal(t, 2, f.calls)
	assert.False(t, out.CacheHit)

	require.NoError(t, svc.ClearCache(ctx))
	out, err = svc.Scan(ctx, scan.Request{TargetURL: "example.com"})
	require.NoError(t, err)
	assert.False(t, out.CacheHit)
}

func TestService_AuditRecord(t *testing.T) {
	repo := &memoryAudit{}
	svc, _ := newTestService(t, WithAudit(repo))

	out, err := svc.Scan(context.Background(), scan.Request{
		TargetURL:       "example.com",
		ActiveRequested: true,
		Operator:        "alice",
	})
	require.NoError(t, err)

	require.Len(t, repo.records, 1)
	rec := repo.records[0]
	assert.Equal(t, out.ScanID, rec.ScanID)
	assert.Equal(t, "alice", rec.Operator)
	assert.Equal(t, "example.com", rec.Host)
	assert.Equal(t, string(consent.OutcomeConsentMissing), rec.ConsentOutcome)
	assert.True(t, rec.ActiveRequested)
	assert.False(t, rec.ActiveRan)
	assert.Equal(t, out.Result.OverallScore, rec.OverallScore)
	assert.True(t, rec.VerifyIntegrity())
}

func TestDefaultProbes(t *testing.T) {
	factory := DefaultProbes(ProbeConfig{Ports: []int{80, 443}})

	passive := factory(scan.Request{}, false)
	require.Len(t, passive, 4)
	names := make([]scan.ProbeName, 0, len(passive))
	for _, p := range passive {
		names = append(names, p.Name())
	}
	assert.Equal(t, scan.PassiveProbes, names)

	active := factory(scan.Request{Ports: []int{8080}, AdvancedTLS: true}, true)
	require.Len(t, active, 5)
	ports, ok := active[4].(*checker.PortsProbe)
	require.True(t, ok)
	assert.Equal(t, []int{8080}, ports.Ports)
	tlsProbe, ok := active[1].(*checker.TLSProbe)
	require.True(t, ok)
	assert.True(t, tlsProbe.Advanced)
}
