package checker

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// TargetInfo contains parsed target information
type TargetInfo struct {
	Original    string // Original target string
	Scheme      string // http or https
	Host        string // Lower-cased hostname (without protocol, path, port)
	Port        string // Port if specified
	Path        string // Path if specified
	FullURL     string // Full normalized URL (for HTTP requests)
	Registrable string // eTLD+1 (e.g., example.co.uk), or Host for IPs and single labels
}

// ConfirmationDomain is the exact string an operator must type to consent
// to an active scan of this target.
func (t *TargetInfo) ConfirmationDomain() string {
	return t.Host
}

// Origin returns scheme://host:port with the scheme's default port filled in,
// so example.com and https://example.com:443 share one origin.
func (t *TargetInfo) Origin() string {
	port := t.Port
	if port == "" {
		port = "443"
		if t.Scheme == "http" {
			port = "80"
		}
	}
	return t.Scheme + "://" + net.JoinHostPort(t.Host, port)
}

// HostPort joins the host with port, bracketing IPv6 literals.
func (t *TargetInfo) HostPort(port int) string {
	return net.JoinHostPort(t.Host, fmt.Sprintf("%d", port))
}

// NormalizeTarget parses free-text input into a target every probe can use.
// This handles various input formats:
//   - example.com
//   - http://example.com
//   - https://example.com:443/path
//   - example.com:8080
//
// Inputs without a scheme are treated as https.
func NormalizeTarget(target string) (*TargetInfo, error) {
	raw := strings.TrimSpace(target)
	if raw == "" {
		return nil, sharedErrors.ErrEmptyTarget
	}

	info := &TargetInfo{Original: target}

	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(raw, "://") {
			return nil, fmt.Errorf("%w: unsupported scheme in %q", sharedErrors.ErrInvalidTarget, target)
		}
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidTarget, err)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: no host in %q", sharedErrors.ErrInvalidTarget, target)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	info.Scheme = parsed.Scheme
	info.Host = strings.ToLower(parsed.Hostname())
	info.Port = parsed.Port()
	info.Path = parsed.Path
	info.FullURL = parsed.String()
	info.Registrable = registrableDomain(info.Host)

	return info, nil
}

// ExtractHost extracts just the hostname from a target.
// It returns an empty string when the target cannot be parsed.
func ExtractHost(target string) string {
	info, err := NormalizeTarget(target)
	if err != nil {
		return ""
	}
	return info.Host
}

func registrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
