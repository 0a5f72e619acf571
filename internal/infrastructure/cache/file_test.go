package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	want := sampleResult()
	require.NoError(t, store.Set(ctx, Entry{Key: "example.com_true_false", Result: want, ExpiresAt: expires}))

	got, err := store.Get(ctx, "example.com_true_false")
	require.NoError(t, err)

	assert.True(t, expires.Equal(got.ExpiresAt))
	assert.Equal(t, want, got.Result)
}

func TestFileStore_MissAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "absent")
	assert.ErrorIs(t, err, sharedErrors.ErrCacheMiss)

	require.NoError(t, store.Set(ctx, Entry{Key: "k", Result: sampleResult(), ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, sharedErrors.ErrCacheMiss)

	assert.NoError(t, store.Delete(ctx, "k"), "deleting a missing key is not an error")
}

func TestFileStore_ClearKeepsForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, Entry{Key: "a", Result: sampleResult(), ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Set(ctx, Entry{Key: "b", Result: sampleResult(), ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("keep"), 0o600))

	require.NoError(t, store.Clear(ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "README", entries[0].Name())
}

func TestFileStore_EmptyKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, sharedErrors.ErrInvalidCacheKey)
}

func TestFileStore_WithResultCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(store, WithClock(clock.Now))
	c.Set(ctx, "k", sampleResult(), time.Minute)

	// A second cache over the same directory sees the entry.
	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	c2 := New(reopened, WithClock(clock.Now))
	got, ok := c2.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 74, got.OverallScore)

	clock.Advance(time.Minute)
	_, ok = c2.Get(ctx, "k")
	assert.False(t, ok)
}

func TestFileStore_ResultCacheMatchesMemory(t *testing.T) {
	ctx := context.Background()
	raw := scan.ScanResult{
		Probes: map[scan.ProbeName]scan.ProbeResult{
			scan.ProbePorts: {
				Score:    100,
				Findings: []scan.Finding{},
				Details: map[string]any{
					"open_ports": []int{80},
					"services":   map[string]string{"80": "HTTP"},
				},
			},
			scan.ProbeTLS: {
				Score:    100,
				Findings: []scan.Finding{},
				Details:  map[string]any{"days_left": 99, "verified": true},
			},
			scan.ProbeMethods: {Score: 100},
		},
		OverallScore: 100,
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	fromFile := New(store)
	fromMemory := New(NewMemoryStore())
	fromFile.Set(ctx, "k", raw, time.Hour)
	fromMemory.Set(ctx, "k", raw, time.Hour)

	got, ok := fromFile.Get(ctx, "k")
	require.True(t, ok)
	inMemory, ok := fromMemory.Get(ctx, "k")
	require.True(t, ok)

	assert.Equal(t, raw.Normalize(), *got)
	assert.Equal(t, *inMemory, *got)
	assert.Equal(t, []any{float64(80)}, got.Probes[scan.ProbePorts].Details["open_ports"])
	assert.Equal(t, float64(99), got.Probes[scan.ProbeTLS].Details["days_left"])
	assert.Equal(t, map[string]any{}, got.Probes[scan.ProbeMethods].Details)
	assert.Equal(t, []int{80}, raw.Probes[scan.ProbePorts].Details["open_ports"], "input is left untouched")
}
