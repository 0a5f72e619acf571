package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

type fakeScanner struct {
	inFlight int64
	peak     int64
	mu       sync.Mutex
}

func (f *fakeScanner) Scan(ctx context.Context, req scan.Request) (*Outcome, error) {
	n := atomic.AddInt64(&f.inFlight, 1)
	f.mu.Lock()
	if n > f.peak {
		f.peak = n
	}
	f.mu.Unlock()
	defer atomic.AddInt64(&f.inFlight, -1)

	time.Sleep(5 * time.Millisecond)
	if req.TargetURL == "bad.example" {
		return nil, errors.New("scan failed")
	}
	return &Outcome{Result: scan.ScanResult{OverallScore: len(req.TargetURL)}}, nil
}

func TestBatchRunner_Run(t *testing.T) {
	targets := []string{"a.example", "bad.example", "ccc.example", "dd.example", "e.example", "f.example"}
	reqs := make([]scan.Request, len(targets))
	for i, target := range targets {
		reqs[i] = scan.Request{TargetURL: target}
	}

	var done int64
	runner := &BatchRunner{
		Concurrency: 2,
		OnDone:      func(BatchItem) { atomic.AddInt64(&done, 1) },
	}
	scanner := &fakeScanner{}
	items := runner.Run(context.Background(), scanner, reqs)

	require.Len(t, items, len(targets))
	for i, item := range items {
		assert.Equal(t, targets[i], item.Request.TargetURL, "items keep request order")
	}
	assert.Error(t, items[1].Err)
	assert.Nil(t, items[1].Outcome)
	assert.Equal(t, len("ccc.example"), items[2].Outcome.Result.OverallScore)
	assert.LessOrEqual(t, scanner.peak, int64(2))
	assert.Equal(t, int64(len(targets)), atomic.LoadInt64(&done))
}

func TestBatchRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &BatchRunner{Concurrency: 1, RateLimit: 1}
	items := runner.Run(ctx, &fakeScanner{}, []scan.Request{{TargetURL: "a.example"}, {TargetURL: "b.example"}})

	for _, item := range items {
		assert.Error(t, item.Err)
	}
}
