package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
)

// versionSSL30 represents the legacy SSL 3.0 protocol version (0x0300).
// Defined locally so we can report SSL 3.0 without referencing the
// deprecated tls.VersionSSL30 symbol.
const versionSSL30 uint16 = 0x0300

// enumeratedVersions are the protocol versions tried one by one in advanced mode.
var enumeratedVersions = []uint16{
	tls.VersionTLS10,
	tls.VersionTLS11,
	tls.VersionTLS12,
	tls.VersionTLS13,
}

// TLSProbe checks the certificate and negotiated protocol of the target's TLS endpoint.
type TLSProbe struct {
	Port     int            // defaults to 443
	Timeout  time.Duration  // connect + handshake budget, defaults to 5s
	RootCAs  *x509.CertPool // nil uses the system trust store
	Advanced bool           // also enumerate accepted protocol versions
	Now      func() time.Time
}

// TLSObservation is everything the TLS scoring rules look at.
type TLSObservation struct {
	Version           uint16
	CipherSuite       uint16
	NotAfter          time.Time
	Issuer            string
	Subject           string
	VerifyErr         error
	Now               time.Time
	SupportedVersions []uint16 // only populated in advanced mode
}

// DaysLeft returns whole days until expiry, rounded toward negative infinity.
func (o TLSObservation) DaysLeft() int {
	return int(math.Floor(o.NotAfter.Sub(o.Now).Hours() / 24))
}

// Name returns the name of this probe
func (p *TLSProbe) Name() scan.ProbeName {
	return scan.ProbeTLS
}

// Probe opens a TLS connection to the host portion of target and scores it.
// Findings are cumulative: an untrusted chain is reported as a Critical
// finding with score 0, alongside any expiry and protocol findings for the
// same certificate.
func (p *TLSProbe) Probe(ctx context.Context, target string) scan.ProbeResult {
	info, err := NormalizeTarget(target)
	if err != nil {
		return scan.Failed(err.Error())
	}

	obs, err := p.observe(ctx, info.Host)
	if err != nil {
		return scan.Failed(err.Error())
	}
	return EvaluateTLS(obs)
}

func (p *TLSProbe) port() int {
	if p.Port == 0 {
		return consts.DefaultTLSPort
	}
	return p.Port
}

func (p *TLSProbe) timeout() time.Duration {
	if p.Timeout <= 0 {
		return consts.TLSHandshakeTimeout
	}
	return p.Timeout
}

func (p *TLSProbe) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *TLSProbe) observe(ctx context.Context, host string) (TLSObservation, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", p.port()))

	// Verification runs after the handshake so an expired certificate can
	// still be read and reported through the expiry rule.
	state, err := p.handshake(ctx, addr, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, //nolint:gosec // chain is verified explicitly below
		MinVersion:         tls.VersionTLS10,
	})
	if err != nil {
		return TLSObservation{}, err
	}
	if len(state.PeerCertificates) == 0 {
		return TLSObservation{}, errors.New("server presented no certificate")
	}

	leaf := state.PeerCertificates[0]
	obs := TLSObservation{
		Version:     state.Version,
		CipherSuite: state.CipherSuite,
		NotAfter:    leaf.NotAfter.UTC(),
		Issuer:      leaf.Issuer.String(),
		Subject:     leaf.Subject.String(),
		Now:         p.now(),
	}
	obs.VerifyErr = verifyChain(state.PeerCertificates, host, p.RootCAs, obs.Now)

	if p.Advanced {
		obs.SupportedVersions = p.enumerateVersions(ctx, addr, host)
	}
	return obs, nil
}

func (p *TLSProbe) handshake(ctx context.Context, addr string, cfg *tls.Config) (tls.ConnectionState, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.timeout()},
		Config:    cfg,
	}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return tls.ConnectionState{}, err
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, fmt.Errorf("unexpected connection type %T", conn)
	}
	return tlsConn.ConnectionState(), nil
}

// enumerateVersions reports which protocol versions the server accepts.
func (p *TLSProbe) enumerateVersions(ctx context.Context, addr, host string) []uint16 {
	supported := []uint16{}
	for _, v := range enumeratedVersions {
		_, err := p.handshake(ctx, addr, &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, //nolint:gosec // only protocol acceptance is tested
			MinVersion:         v,
			MaxVersion:         v,
		})
		if err == nil {
			supported = append(supported, v)
		}
	}
	return supported
}

// verifyChain validates the presented chain and hostname. An expired leaf is
// not a verification failure here; the chain is re-checked at a time inside
// the validity window so trust and hostname problems are still caught.
func verifyChain(chain []*x509.Certificate, host string, roots *x509.CertPool, now time.Time) error {
	leaf := chain[0]
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	opts := x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
	}
	_, err := leaf.Verify(opts)

	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) && invalid.Reason == x509.Expired && now.After(leaf.NotAfter) {
		opts.CurrentTime = leaf.NotAfter.Add(-time.Second)
		_, err = leaf.Verify(opts)
	}
	return err
}

// EvaluateTLS scores a TLS observation. Every rule is evaluated, so a
// verification failure does not suppress the expiry or protocol findings;
// the score is the floor-clamped sum of the applicable deltas.
func EvaluateTLS(obs TLSObservation) scan.ProbeResult {
	result := newResult(0)
	result.Score, result.Findings = Fold(100, obs, tlsRules)

	result.Details["version"] = protocolName(obs.Version)
	result.Details["cipher"] = tls.CipherSuiteName(obs.CipherSuite)
	result.Details["expiry"] = obs.NotAfter.Format(time.RFC3339)
	result.Details["days_left"] = obs.DaysLeft()
	result.Details["issuer"] = obs.Issuer
	result.Details["subject"] = obs.Subject
	result.Details["verified"] = obs.VerifyErr == nil
	if obs.SupportedVersions != nil {
		names := make([]string, 0, len(obs.SupportedVersions))
		for _, v := range obs.SupportedVersions {
			names = append(names, protocolName(v))
		}
		result.Details["supported_versions"] = names
	}
	return result
}

var tlsRules = []Rule[TLSObservation]{
	{
		Name: "certificate-verification",
		Eval: func(o TLSObservation) Outcome {
			if o.VerifyErr == nil {
				return pass(0)
			}
			out := fail(0, scan.SeverityCritical,
				fmt.Sprintf("Certificate verification failed: %s.", verifyMessage(o.VerifyErr)),
				"Ensure the certificate is valid and issued by a trusted CA.")
			out.ForceZero = true
			return out
		},
	},
	{
		Name: "certificate-expiry",
		Eval: func(o TLSObservation) Outcome {
			days := o.DaysLeft()
			switch {
			case days < 0:
				return fail(-100, scan.SeverityCritical,
					fmt.Sprintf("Certificate expired on %s.", o.NotAfter.Format(time.RFC3339)),
					"Renew the SSL certificate immediately.")
			case days < consts.TLSSoonExpiryDays:
				return fail(-50, scan.SeverityHigh,
					fmt.Sprintf("Certificate expires soon (%d days).", days),
					"Renew the SSL certificate.")
			}
			return pass(0)
		},
	},
	{
		Name: "protocol-version",
		Eval: func(o TLSObservation) Outcome {
			if isObsoleteVersion(o.Version) {
				return fail(-50, scan.SeverityHigh,
					fmt.Sprintf("Obsolete TLS version detected: %s.", protocolName(o.Version)),
					"Disable older TLS versions and support TLS 1.2 or 1.3.")
			}
			return pass(0)
		},
	},
	{
		Name: "legacy-versions-accepted",
		Eval: func(o TLSObservation) Outcome {
			legacy := []string{}
			for _, v := range o.SupportedVersions {
				if isObsoleteVersion(v) {
					legacy = append(legacy, protocolName(v))
				}
			}
			if len(legacy) == 0 {
				return pass(0)
			}
			return fail(0, scan.SeverityMedium,
				fmt.Sprintf("Server still accepts legacy protocol versions: %v.", legacy),
				"Disable TLS 1.0 and TLS 1.1 on the server.")
		},
	},
}

func isObsoleteVersion(v uint16) bool {
	return v == versionSSL30 || v == tls.VersionTLS10 || v == tls.VersionTLS11
}

func verifyMessage(err error) string {
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return "hostname mismatch"
	}
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &authErr) {
		return "unable to get local issuer certificate"
	}
	return err.Error()
}

// protocolName converts a protocol version to the names used in reports
func protocolName(version uint16) string {
	switch version {
	case versionSSL30:
		return "SSLv3"
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}
