package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/khanhnv2901/cybersafe/internal/domain/scan"
)

// Metrics records scan activity in a private Prometheus registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal     *prometheus.CounterVec
	cacheTotal     *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	probeScore     *prometheus.GaugeVec
	probeErrors    *prometheus.CounterVec
	findingsTotal  *prometheus.CounterVec
	overallScore   *prometheus.GaugeVec
	consentBlocked prometheus.Counter
}

// NewMetrics creates and registers all scan metrics.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cybersafe_scans_total",
				Help: "Total number of scans executed",
			},
			[]string{"mode"},
		),
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cybersafe_cache_lookups_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cybersafe_probe_duration_seconds",
				Help:    "Probe execution time",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"probe"},
		),
		probeScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cybersafe_probe_score",
				Help: "Score of the last run of each probe per target",
			},
			[]string{"target", "probe"},
		),
		probeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cybersafe_probe_errors_total",
				Help: "Probes that could not complete",
			},
			[]string{"probe"},
		),
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cybersafe_findings_total",
				Help: "Findings emitted by severity",
			},
			[]string{"probe", "severity"},
		),
		overallScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cybersafe_overall_score",
				Help: "Overall score of the last scan per target",
			},
			[]string{"target"},
		),
		consentBlocked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cybersafe_consent_blocked_total",
				Help: "Active scans refused because the typed confirmation did not match",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.scansTotal, m.cacheTotal, m.probeDuration, m.probeScore,
		m.probeErrors, m.findingsTotal, m.overallScore, m.consentBlocked,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveProbe records the outcome of one probe run.
func (m *Metrics) ObserveProbe(target string, name scan.ProbeName, result scan.ProbeResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	probe := string(name)
	m.probeDuration.WithLabelValues(probe).Observe(elapsed.Seconds())
	m.probeScore.WithLabelValues(target, probe).Set(float64(result.Score))
	if result.HasError() {
		m.probeErrors.WithLabelValues(probe).Inc()
	}
	for _, f := range result.Findings {
		m.findingsTotal.WithLabelValues(probe, string(f.Severity)).Inc()
	}
}

// ObserveScan records a completed scan.
func (m *Metrics) ObserveScan(target string, active bool, result *scan.ScanResult) {
	if m == nil || result == nil {
		return
	}
	mode := "passive"
	if active {
		mode = "active"
	}
	m.scansTotal.WithLabelValues(mode).Inc()
	m.overallScore.WithLabelValues(target).Set(float64(result.OverallScore))
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheTotal.WithLabelValues(outcome).Inc()
}

// ConsentBlocked counts an active scan refused by the consent gate.
func (m *Metrics) ConsentBlocked() {
	if m == nil {
		return
	}
	m.consentBlocked.Inc()
}

// WriteTextfile writes the current metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
