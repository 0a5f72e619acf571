package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

func secureHeaders() http.Header {
	headers := http.Header{}
	headers.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	headers.Set("Content-Security-Policy", "default-src 'self'")
	headers.Set("X-Frame-Options", "DENY")
	headers.Set("X-Content-Type-Options", "nosniff")
	headers.Set("Referrer-Policy", "no-referrer")
	headers.Set("Permissions-Policy", "geolocation=()")
	return headers
}

func TestEvaluateHeaders_AllPresent(t *testing.T) {
	result := EvaluateHeaders(secureHeaders())

	if result.Score != 100 {
		t.Errorf("Expected score 100 with all headers present, got %d", result.Score)
	}
	if len(result.Findings) != 0 {
		t.Errorf("Expected no findings, got %d: %v", len(result.Findings), result.Findings)
	}
}

func TestEvaluateHeaders_AllMissing(t *testing.T) {
	result := EvaluateHeaders(http.Header{})

	if result.Score != 0 {
		t.Errorf("Expected score 0 with no headers, got %d", result.Score)
	}
	if len(result.Findings) < 5 {
		t.Errorf("Expected at least 5 findings, got %d", len(result.Findings))
	}

	severities := map[scan.Severity]int{}
	for _, f := range result.Findings {
		severities[f.Severity]++
	}
	if severities[scan.SeverityHigh] != 2 {
		t.Errorf("Expected HSTS and CSP to be High, got %d High findings", severities[scan.SeverityHigh])
	}
}

func TestEvaluateHeaders_UnsafeCSP(t *testing.T) {
	headers := secureHeaders()
	headers.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'")

	result := EvaluateHeaders(headers)

	if result.Score != 90 {
		t.Errorf("Expected partial credit score 90, got %d", result.Score)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("Expected exactly one finding, got %d", len(result.Findings))
	}
	f := result.Findings[0]
	if f.Severity != scan.SeverityMedium {
		t.Errorf("Expected Medium severity, got %s", f.Severity)
	}
	if !strings.Contains(f.Description, "unsafe-inline") {
		t.Errorf("Expected description to mention unsafe-inline, got %q", f.Description)
	}
}

func TestEvaluateHeaders_WrongNosniffValue(t *testing.T) {
	headers := secureHeaders()
	headers.Set("X-Content-Type-Options", "sniff")

	result := EvaluateHeaders(headers)

	if result.Score != 80 {
		t.Errorf("Expected score 80, got %d", result.Score)
	}
	if len(result.Findings) != 1 || result.Findings[0].Severity != scan.SeverityLow {
		t.Errorf("Expected one Low finding, got %v", result.Findings)
	}
}

func TestEvaluateHeaders_FeaturePolicyFallback(t *testing.T) {
	headers := secureHeaders()
	headers.Del("Permissions-Policy")
	headers.Set("Feature-Policy", "camera 'none'")

	result := EvaluateHeaders(headers)
	if result.Score != 100 {
		t.Errorf("Expected Feature-Policy to satisfy the permissions rule, got %d", result.Score)
	}
}

func TestHeadersProbe_Probe(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		for k, v := range secureHeaders() {
			w.Header()[k] = v
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := &HeadersProbe{}
	result := probe.Probe(context.Background(), srv.URL)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Score != 100 {
		t.Errorf("Expected score 100, got %d", result.Score)
	}
	if result.Details["status_code"] != http.StatusOK {
		t.Errorf("Expected status_code 200, got %v", result.Details["status_code"])
	}
	if !strings.HasPrefix(gotUA, "Cybersafe/") {
		t.Errorf("Expected scanner user agent, got %q", gotUA)
	}
}

func TestHeadersProbe_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result := (&HeadersProbe{}).Probe(context.Background(), srv.URL)

	if result.Score != 20 {
		t.Errorf("Expected score 20 from the redirected response, got %d", result.Score)
	}
	if !strings.HasSuffix(result.Details["final_url"].(string), "/final") {
		t.Errorf("Expected final_url to end with /final, got %v", result.Details["final_url"])
	}
}

func TestHeadersProbe_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := (&HeadersProbe{}).Probe(context.Background(), url)

	if result.Error == "" {
		t.Fatal("Expected an error for a closed server")
	}
	if result.Score != 0 {
		t.Errorf("Expected score 0 on error, got %d", result.Score)
	}
	if len(result.Findings) != 0 {
		t.Errorf("Expected no findings on error, got %d", len(result.Findings))
	}
}
