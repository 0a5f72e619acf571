package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

// dangerousMethods cost 20 points each when advertised in Allow.
var dangerousMethods = map[string]bool{
	"TRACE":   true,
	"TRACK":   true,
	"PUT":     true,
	"DELETE":  true,
	"CONNECT": true,
}

// MethodsProbe asks the server which HTTP methods it allows.
type MethodsProbe struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Name returns the name of this probe
func (m *MethodsProbe) Name() scan.ProbeName {
	return scan.ProbeMethods
}

// Probe issues a single OPTIONS request and scores the Allow header of
// that response. Redirects are not followed.
func (m *MethodsProbe) Probe(ctx context.Context, target string) scan.ProbeResult {
	client := newHTTPClient(m.Timeout, false, m.Transport)

	req, err := newRequest(ctx, http.MethodOptions, target, nil)
	if err != nil {
		return scan.Failed(fmt.Sprintf("create request: %v", err))
	}
	resp, err := client.Do(req)
	if err != nil {
		return scan.Failed(err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return EvaluateMethods(resp.Header.Get("Allow"))
}

// ParseAllow splits an Allow header into upper-cased method names.
func ParseAllow(allow string) []string {
	methods := []string{}
	for _, m := range strings.Split(allow, ",") {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			methods = append(methods, m)
		}
	}
	return methods
}

// EvaluateMethods scores an Allow header value. An empty header is not
// penalized since nothing could be verified.
func EvaluateMethods(allow string) scan.ProbeResult {
	result := newResult(100)
	if strings.TrimSpace(allow) == "" {
		result.Details["message"] = "No Allow header received in OPTIONS response."
		return result
	}

	methods := ParseAllow(allow)
	result.Details["allowed_methods"] = methods
	result.Score, result.Findings = Fold(100, methods, methodRules)
	return result
}

var methodRules = []Rule[[]string]{
	{
		Name: "dangerous-methods",
		Eval: func(methods []string) Outcome {
			found := []string{}
			for _, m := range methods {
				if dangerousMethods[m] {
					found = append(found, m)
				}
			}
			if len(found) == 0 {
				return pass(0)
			}
			return fail(-20*len(found), scan.SeverityMedium,
				fmt.Sprintf("Potentially dangerous HTTP methods enabled: %s.", strings.Join(found, ", ")),
				"Disable unnecessary HTTP methods like TRACE, TRACK, PUT, DELETE unless required.")
		},
	},
}
