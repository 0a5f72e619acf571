package checker

import (
	"context"
	"net/http"
	"time"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
)

// Probe is the interface that all security probes must satisfy
type Probe interface {
	// Probe inspects one security dimension of target. It never returns an
	// error: failures are reported through ProbeResult.Error with score 0.
	Probe(ctx context.Context, target string) scan.ProbeResult

	// Name returns the key the result is stored under (e.g., "headers", "tls")
	Name() scan.ProbeName
}

// ProbeFunc adapts a plain function to the Probe interface.
type ProbeFunc struct {
	ProbeName scan.ProbeName
	Fn        func(ctx context.Context, target string) scan.ProbeResult
}

// Probe calls the wrapped function.
func (f ProbeFunc) Probe(ctx context.Context, target string) scan.ProbeResult {
	return f.Fn(ctx, target)
}

// Name returns the configured probe name.
func (f ProbeFunc) Name() scan.ProbeName {
	return f.ProbeName
}

// newHTTPClient builds the client shared by the HTTP-based probes.
// Certificate verification stays enabled; TLS problems are the TLS probe's concern.
func newHTTPClient(timeout time.Duration, followRedirects bool, transport http.RoundTripper) *http.Client {
	if timeout <= 0 {
		timeout = consts.HTTPProbeTimeout
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// newRequest builds a request carrying the scanner's user agent.
func newRequest(ctx context.Context, method, target string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", consts.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// newResult returns an empty result starting at base.
func newResult(base int) scan.ProbeResult {
	return scan.ProbeResult{
		Score:    base,
		Findings: []scan.Finding{},
		Details:  map[string]any{},
	}
}
