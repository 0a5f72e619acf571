package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// sampleResult is normalized the way the orchestrator leaves every result.
func sampleResult() scan.ScanResult {
	return scan.ScanResult{
		Probes: map[scan.ProbeName]scan.ProbeResult{
			scan.ProbeHeaders: {
				Score: 90,
				Findings: []scan.Finding{{
					Severity:    scan.SeverityMedium,
					Description: "Content-Security-Policy contains unsafe directives ('unsafe-inline').",
					Remediation: "Refine CSP to avoid using unsafe directives.",
				}},
				Details: map[string]any{
					"headers":    map[string]string{"X-Frame-Options": "DENY"},
					"raw_points": 45,
				},
			},
			scan.ProbePorts: {
				Score:    100,
				Findings: []scan.Finding{},
				Details:  map[string]any{"open_ports": []int{80, 443}},
			},
			scan.ProbeTLS: scan.Failed("connection refused"),
		},
		OverallScore: 74,
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}.Normalize()
}

func TestKey(t *testing.T) {
	assert.Equal(t, "https://example.com:443_false_false", Key("https://example.com:443", false, false))
	assert.NotEqual(t, Key("example.com", true, false), Key("example.com", false, false))
	assert.NotEqual(t, Key("example.com", true, true), Key("example.com", true, false))
}

func TestResultCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(NewMemoryStore(), WithClock(clock.Now))

	result := sampleResult()
	c.Set(ctx, "k", result, 1000*time.Second)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, result, *got)
}

func TestResultCache_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore()
	c := New(store, WithClock(clock.Now))

	c.Set(ctx, "k", sampleResult(), 1000*time.Second)

	clock.Advance(999 * time.Second)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok, "entry should still be valid before the TTL elapses")

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "entry should be absent once the TTL elapses")
	assert.Equal(t, 0, store.Len(), "expired entry should be dropped on read")
}

func TestResultCache_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(NewMemoryStore(), WithClock(clock.Now))

	c.Set(ctx, "k", sampleResult(), 0)

	clock.Advance(12*time.Hour - time.Second)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestResultCache_CopiesAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())

	result := sampleResult()
	c.Set(ctx, "k", result, time.Hour)

	result.Probes[scan.ProbeHeaders].Details["raw_points"] = 0
	result.Probes[scan.ProbePorts].Details["open_ports"].([]any)[0] = float64(22)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, float64(45), got.Probes[scan.ProbeHeaders].Details["raw_points"])
	assert.Equal(t, []any{float64(80), float64(443)}, got.Probes[scan.ProbePorts].Details["open_ports"])

	got.OverallScore = 0
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, 74, again.OverallScore)
}

func TestResultCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())

	c.Set(ctx, Key("a.com", false, false), sampleResult(), time.Hour)
	c.Set(ctx, Key("a.com", true, false), sampleResult(), time.Hour)
	require.NoError(t, c.Clear(ctx))

	_, ok := c.Get(ctx, Key("a.com", false, false))
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key("a.com", true, false))
	assert.False(t, ok)
}

type failingStore struct{ MemoryStore }

func (*failingStore) Get(context.Context, string) (Entry, error) {
	return Entry{}, errors.New("disk on fire")
}

func (*failingStore) Set(context.Context, Entry) error {
	return errors.New("disk on fire")
}

func TestResultCache_StoreErrorsAreMisses(t *testing.T) {
	ctx := context.Background()
	c := New(&failingStore{})

	c.Set(ctx, "k", sampleResult(), time.Hour)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestResultCache_NilIsNoop(t *testing.T) {
	var c *ResultCache
	c.Set(context.Background(), "k", sampleResult(), time.Hour)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.NoError(t, c.Clear(context.Background()))
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(ctx, StoreConfig{Backend: "FILE", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = NewStore(ctx, StoreConfig{Backend: "file"})
	assert.ErrorIs(t, err, sharedErrors.ErrCacheDirRequired)

	_, err = NewStore(ctx, StoreConfig{Backend: "postgres"})
	assert.ErrorIs(t, err, sharedErrors.ErrMissingCacheDSN)

	_, err = NewStore(ctx, StoreConfig{Backend: "redis"})
	assert.ErrorIs(t, err, sharedErrors.ErrUnknownCacheStore)
}
