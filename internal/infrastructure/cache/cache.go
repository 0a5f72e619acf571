package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// Entry is one stored scan result with its absolute expiry.
type Entry struct {
	Key       string          `json:"key"`
	Result    scan.ScanResult `json:"result"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry is no longer valid at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store persists cache entries. Get returns sharedErrors.ErrCacheMiss when
// the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		c.now = now
	}
}

// WithLogger attaches a logger for store failures.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *ResultCache) {
		c.logger = logger
	}
}

// ResultCache is a TTL cache of scan results in front of a Store. Expired
// entries are treated as absent on read; there is no background eviction.
// Store failures are logged and behave as misses since the cache never
// affects scan correctness.
type ResultCache struct {
	store  Store
	now    func() time.Time
	logger *zap.SugaredLogger
}

// New wraps store in a ResultCache.
func New(store Store, opts ...Option) *ResultCache {
	c := &ResultCache{
		store:  store,
		now:    time.Now,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the composite cache key from the target origin and the scan
// modes. Passive and active scans of the same target, with or without
// advanced TLS, never share an entry.
func Key(origin string, active, advanced bool) string {
	return fmt.Sprintf("%s_%t_%t", origin, active, advanced)
}

// Get returns a copy of the cached result, or false when absent or expired.
func (c *ResultCache) Get(ctx context.Context, key string) (*scan.ScanResult, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, sharedErrors.ErrCacheMiss) {
			c.logger.Warnw("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	if entry.Expired(c.now()) {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Debugw("cache delete failed", "key", key, "error", err)
		}
		return nil, false
	}
	result := entry.Result.Clone()
	return &result, true
}

// Set stores a normalized copy of result for ttl, so every store returns the
// same value on Get. A non-positive ttl uses the 12 hour default.
func (c *ResultCache) Set(ctx context.Context, key string, result scan.ScanResult, ttl time.Duration) {
	if c == nil || c.store == nil {
		return
	}
	if ttl <= 0 {
		ttl = consts.DefaultCacheTTL
	}
	entry := Entry{
		Key:       key,
		Result:    result.Clone().Normalize(),
		ExpiresAt: c.now().Add(ttl),
	}
	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.Warnw("cache write failed", "key", key, "error", err)
	}
}

// Clear removes every entry.
func (c *ResultCache) Clear(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Clear(ctx)
}

// Close releases the underlying store.
func (c *ResultCache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}
