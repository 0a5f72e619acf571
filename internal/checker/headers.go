package checker

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

// headersMaxPoints is the raw subtotal of a fully configured response.
const headersMaxPoints = 50

// HeadersProbe checks the presence and configuration of security headers.
type HeadersProbe struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Name returns the name of this probe
func (h *HeadersProbe) Name() scan.ProbeName {
	return scan.ProbeHeaders
}

// Probe issues one GET (following redirects) and scores the response headers.
func (h *HeadersProbe) Probe(ctx context.Context, target string) scan.ProbeResult {
	client := newHTTPClient(h.Timeout, true, h.Transport)

	req, err := newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return scan.Failed(fmt.Sprintf("create request: %v", err))
	}
	resp, err := client.Do(req)
	if err != nil {
		return scan.Failed(err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	result := EvaluateHeaders(resp.Header)
	result.Details["status_code"] = resp.StatusCode
	result.Details["final_url"] = resp.Request.URL.String()
	return result
}

// EvaluateHeaders scores a response header set. The six conditions add up to
// 50 raw points which are scaled to 0-100.
func EvaluateHeaders(headers http.Header) scan.ProbeResult {
	result := newResult(0)

	raw, findings := Fold(0, headers, headerRules)
	result.Score = scan.ClampScore(int(math.Round(float64(raw) / headersMaxPoints * 100)))
	result.Findings = findings
	result.Details["headers"] = flattenHeaders(headers)
	result.Details["raw_points"] = raw
	return result
}

var headerRules = []Rule[http.Header]{
	{
		Name: "strict-transport-security",
		Eval: func(h http.Header) Outcome {
			if hasHeader(h, "Strict-Transport-Security") {
				return pass(10)
			}
			return fail(0, scan.SeverityHigh,
				"Missing Strict-Transport-Security (HSTS) header.",
				"Enable HSTS to force HTTPS connections.")
		},
	},
	{
		Name: "content-security-policy",
		Eval: func(h http.Header) Outcome {
			if !hasHeader(h, "Content-Security-Policy") {
				return fail(0, scan.SeverityHigh,
					"Missing Content-Security-Policy (CSP) header.",
					"Implement a CSP to mitigate XSS and other attacks.")
			}
			unsafe := unsafeCSPDirectives(strings.Join(h.Values("Content-Security-Policy"), "; "))
			if len(unsafe) > 0 {
				return fail(5, scan.SeverityMedium,
					fmt.Sprintf("Content-Security-Policy contains unsafe directives (%s).", strings.Join(unsafe, ", ")),
					"Refine CSP to avoid using unsafe directives.")
			}
			return pass(10)
		},
	},
	{
		Name: "x-frame-options",
		Eval: func(h http.Header) Outcome {
			if hasHeader(h, "X-Frame-Options") {
				return pass(10)
			}
			return fail(0, scan.SeverityMedium,
				"Missing X-Frame-Options header.",
				"Set X-Frame-Options to DENY or SAMEORIGIN to prevent clickjacking.")
		},
	},
	{
		Name: "x-content-type-options",
		Eval: func(h http.Header) Outcome {
			if h.Get("X-Content-Type-Options") == "nosniff" {
				return pass(10)
			}
			return fail(0, scan.SeverityLow,
				"Missing or incorrect X-Content-Type-Options header.",
				"Set X-Content-Type-Options to 'nosniff'.")
		},
	},
	{
		Name: "referrer-policy",
		Eval: func(h http.Header) Outcome {
			if hasHeader(h, "Referrer-Policy") {
				return pass(5)
			}
			return fail(0, scan.SeverityLow,
				"Missing Referrer-Policy header.",
				"Set a Referrer-Policy to control information sent in Referer headers.")
		},
	},
	{
		Name: "permissions-policy",
		Eval: func(h http.Header) Outcome {
			if hasHeader(h, "Permissions-Policy") || hasHeader(h, "Feature-Policy") {
				return pass(5)
			}
			return fail(0, scan.SeverityLow,
				"Missing Permissions-Policy (or Feature-Policy) header.",
				"Set Permissions-Policy to control browser features.")
		},
	},
}

// hasHeader reports presence, including headers sent with an empty value.
func hasHeader(h http.Header, name string) bool {
	return len(h.Values(name)) > 0
}

// unsafeCSPDirectives returns the unsafe keywords present in a CSP value, in a fixed order.
func unsafeCSPDirectives(csp string) []string {
	found := []string{}
	for _, kw := range []string{"unsafe-inline", "unsafe-eval"} {
		if strings.Contains(csp, kw) {
			found = append(found, "'"+kw+"'")
		}
	}
	return found
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
