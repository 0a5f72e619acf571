package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
)

// CORSProbe sends a cross-origin GET and inspects how the server answers it.
type CORSProbe struct {
	Timeout   time.Duration
	Transport http.RoundTripper
	// Origin is the attacker origin sent with the request. Defaults to https://evil.com.
	Origin string
}

// Name returns the name of this probe
func (c *CORSProbe) Name() scan.ProbeName {
	return scan.ProbeCORS
}

func (c *CORSProbe) origin() string {
	if c.Origin == "" {
		return consts.AttackerOrigin
	}
	return c.Origin
}

// Probe issues one GET with a foreign Origin header. Redirects are not
// followed, so the CORS headers of the first response are scored.
func (c *CORSProbe) Probe(ctx context.Context, target string) scan.ProbeResult {
	client := newHTTPClient(c.Timeout, false, c.Transport)

	req, err := newRequest(ctx, http.MethodGet, target, map[string]string{"Origin": c.origin()})
	if err != nil {
		return scan.Failed(fmt.Sprintf("create request: %v", err))
	}
	resp, err := client.Do(req)
	if err != nil {
		return scan.Failed(err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return EvaluateCORS(ObserveCORS(resp.Header, c.origin()))
}

// CORSObservation captures the CORS response headers for a given request origin.
type CORSObservation struct {
	RequestOrigin    string
	AllowOrigin      string
	AllowCredentials string
	VaryOrigin       bool
}

// ObserveCORS extracts the CORS-relevant headers from a response.
func ObserveCORS(headers http.Header, requestOrigin string) CORSObservation {
	return CORSObservation{
		RequestOrigin:    requestOrigin,
		AllowOrigin:      headers.Get("Access-Control-Allow-Origin"),
		AllowCredentials: headers.Get("Access-Control-Allow-Credentials"),
		VaryOrigin:       varyIncludesOrigin(headers.Values("Vary")),
	}
}

// EvaluateCORS scores a CORS observation starting from 100.
func EvaluateCORS(obs CORSObservation) scan.ProbeResult {
	result := newResult(0)
	result.Score, result.Findings = Fold(100, obs, corsRules)
	result.Details["Access-Control-Allow-Origin"] = obs.AllowOrigin
	result.Details["Access-Control-Allow-Credentials"] = obs.AllowCredentials
	result.Details["vary_origin"] = obs.VaryOrigin
	return result
}

var corsRules = []Rule[CORSObservation]{
	{
		Name: "wildcard-origin",
		Eval: func(o CORSObservation) Outcome {
			if o.AllowOrigin != "*" {
				return pass(0)
			}
			return fail(-50, scan.SeverityMedium,
				"Access-Control-Allow-Origin is set to wildcard '*'.",
				"Restrict Access-Control-Allow-Origin to trusted domains.")
		},
	},
	{
		Name: "credentialed-reflection",
		Eval: func(o CORSObservation) Outcome {
			if o.AllowOrigin != o.RequestOrigin || o.AllowCredentials != "true" {
				return pass(0)
			}
			out := fail(0, scan.SeverityHigh,
				"Server reflects arbitrary Origin with Access-Control-Allow-Credentials: true.",
				"Do not reflect the Origin header blindly if credentials are allowed.")
			out.ForceZero = true
			return out
		},
	},
}

func varyIncludesOrigin(values []string) bool {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "origin") {
				return true
			}
		}
	}
	return false
}
