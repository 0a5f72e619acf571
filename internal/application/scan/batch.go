package scan

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

// Scanner runs a single scan request.
type Scanner interface {
	Scan(ctx context.Context, req scan.Request) (*Outcome, error)
}

// BatchItem is the result of one request in a batch.
type BatchItem struct {
	Request scan.Request
	Outcome *Outcome
	Err     error
}

// BatchRunner scans many targets with bounded concurrency and a global rate limit
type BatchRunner struct {
	Concurrency int           // Maximum number of concurrent scans
	RateLimit   int           // Scans started per second; 0 means unlimited
	Timeout     time.Duration // Timeout for each scan; 0 means none
	// OnDone is called after each scan completes, from the scanning goroutine.
	OnDone func(item BatchItem)
}

// Run executes every request and returns the items in request order.
func (r *BatchRunner) Run(ctx context.Context, scanner Scanner, reqs []scan.Request) []BatchItem {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if r.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.RateLimit), r.RateLimit)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	items := make([]BatchItem, len(reqs))

	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			item := BatchItem{Request: req}
			if err := limiter.Wait(ctx); err != nil {
				item.Err = err
				items[i] = item
				r.done(item)
				return
			}

			scanCtx := ctx
			if r.Timeout > 0 {
				var cancel context.CancelFunc
				scanCtx, cancel = context.WithTimeout(ctx, r.Timeout)
				defer cancel()
			}

			item.Outcome, item.Err = scanner.Scan(scanCtx, req)
			items[i] = item
			r.done(item)
		}()
	}

	wg.Wait()
	return items
}

func (r *BatchRunner) done(item BatchItem) {
	if r.OnDone != nil {
		r.OnDone(item)
	}
}
