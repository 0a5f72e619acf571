package checker

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
)

// PortsProbe performs a TCP connect scan of a small candidate port list.
// It is an active probe and must only run after consent was granted.
type PortsProbe struct {
	Ports          []int
	SensitivePorts []int
	Timeout        time.Duration // per port
	MaxWorkers     int

	// LookupHost resolves the target; defaults to net.DefaultResolver.
	LookupHost func(ctx context.Context, host string) ([]string, error)
	// Dial opens a connection; defaults to a net.Dialer with Timeout.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Name returns the name of this probe
func (p *PortsProbe) Name() scan.ProbeName {
	return scan.ProbePorts
}

// Probe resolves the target host and tries every candidate port.
func (p *PortsProbe) Probe(ctx context.Context, target string) scan.ProbeResult {
	info, err := NormalizeTarget(target)
	if err != nil {
		return scan.Failed(err.Error())
	}

	addr, err := p.resolve(ctx, info.Host)
	if err != nil {
		return scan.Failed(fmt.Sprintf("resolve %s: %v", info.Host, err))
	}

	open := p.scanPorts(ctx, addr)
	return EvaluatePorts(open, p.sensitive())
}

func (p *PortsProbe) ports() []int {
	if len(p.Ports) == 0 {
		return consts.DefaultPorts
	}
	return p.Ports
}

func (p *PortsProbe) sensitive() []int {
	if p.SensitivePorts == nil {
		return consts.SensitivePorts
	}
	return p.SensitivePorts
}

func (p *PortsProbe) timeout() time.Duration {
	if p.Timeout <= 0 {
		return consts.PortConnectTimeout
	}
	return p.Timeout
}

func (p *PortsProbe) workers() int {
	if p.MaxWorkers <= 0 {
		return consts.MaxPortConcurrency
	}
	return p.MaxWorkers
}

func (p *PortsProbe) resolve(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	lookup := p.LookupHost
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}
	addrs, err := lookup(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses for %s", host)
	}
	return addrs[0], nil
}

// scanPorts returns the open ports, sorted ascending. At most MaxWorkers
// connection attempts are in flight at once.
func (p *PortsProbe) scanPorts(ctx context.Context, addr string) []int {
	results := pool.NewWithResults[int]().WithMaxGoroutines(p.workers())
	for _, port := range p.ports() {
		results.Go(func() int {
			if p.checkPort(ctx, addr, port) {
				return port
			}
			return 0
		})
	}

	open := []int{}
	for _, port := range results.Wait() {
		if port != 0 {
			open = append(open, port)
		}
	}
	sort.Ints(open)
	return open
}

// checkPort reports whether a TCP connect succeeds within the timeout.
// Refused, filtered and timed-out ports all count as closed.
func (p *PortsProbe) checkPort(ctx context.Context, addr string, port int) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	dial := p.Dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: p.timeout()}).DialContext
	}
	conn, err := dial(dialCtx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

type portsObservation struct {
	open      []int
	sensitive []int
}

// EvaluatePorts scores a set of open ports starting from 100.
func EvaluatePorts(open, sensitive []int) scan.ProbeResult {
	sorted := append([]int{}, open...)
	sort.Ints(sorted)

	result := newResult(0)
	result.Score, result.Findings = Fold(100, portsObservation{open: sorted, sensitive: sensitive}, portRules)
	result.Details["open_ports"] = sorted

	services := make(map[string]string, len(sorted))
	for _, port := range sorted {
		services[strconv.Itoa(port)] = getServiceName(port)
	}
	result.Details["services"] = services
	return result
}

var portRules = []Rule[portsObservation]{
	{
		Name: "open-ports",
		Eval: func(o portsObservation) Outcome {
			if len(o.open) == 0 {
				return pass(0)
			}
			return fail(0, scan.SeverityInfo,
				fmt.Sprintf("Open ports detected: %s.", joinPorts(o.open)),
				"Ensure only necessary ports are exposed to the public internet.")
		},
	},
	{
		Name: "sensitive-ports",
		Eval: func(o portsObservation) Outcome {
			found := []int{}
			for _, port := range o.open {
				if containsPort(o.sensitive, port) {
					found = append(found, port)
				}
			}
			if len(found) == 0 {
				return pass(0)
			}
			return fail(-20*len(found), scan.SeverityHigh,
				fmt.Sprintf("Sensitive services detected on public ports: %s.", joinPorts(found)),
				"Restrict access to administrative and database ports using firewalls or VPNs.")
		},
	},
}

func containsPort(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

// getServiceName returns common service name for a port
func getServiceName(port int) string {
	services := map[int]string{
		21:    "ftp",
		22:    "ssh",
		23:    "telnet",
		25:    "smtp",
		53:    "dns",
		80:    "http",
		443:   "https",
		3306:  "mysql",
		3389:  "rdp",
		5432:  "postgresql",
		6379:  "redis",
		8080:  "http-alt",
		8443:  "https-alt",
		27017: "mongodb",
	}

	if service, ok := services[port]; ok {
		return service
	}
	return "unknown"
}
