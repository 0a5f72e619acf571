package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khanhnv2901/cybersafe/internal/application"
	scanapp "github.com/khanhnv2901/cybersafe/internal/application/scan"
	"github.com/khanhnv2901/cybersafe/internal/infrastructure/cache"
	"github.com/khanhnv2901/cybersafe/internal/scoring"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

const (
	envPrefix      = "CYBERSAFE"
	configFileName = ".cybersafe"

	defaultBatchConcurrency = 4
	defaultBatchRateLimit   = 2
	defaultBatchTimeout     = 2 * time.Minute

	defaultAPIAddr            = "127.0.0.1:8080"
	defaultAPIRateLimit       = 10
	defaultAPIRateBurst       = 20
	defaultAPIMaxScans        = 4
	defaultAPIScanTimeout     = 2 * time.Minute
	defaultAPIShutdownTimeout = 30 * time.Second
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Scan            ScanConfig
	Weights         scoring.Weights
	Cache           CacheConfig
	AuditPath       string
	MetricsTextfile string
	Tracing         TracingConfig
	Batch           BatchConfig
	API             APIConfig
}

// ScanConfig holds probe tunables.
type ScanConfig struct {
	Ports           []int
	HTTPTimeout     time.Duration
	TLSTimeout      time.Duration
	TLSPort         int
	PortTimeout     time.Duration
	PortConcurrency int
}

// CacheConfig selects and configures the result cache backend.
type CacheConfig struct {
	Backend string
	Dir     string
	DSN     string
	TTL     time.Duration
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint string
	Insecure bool
}

// BatchConfig holds the batch command defaults.
type BatchConfig struct {
	Concurrency int
	RateLimit   int
	Timeout     time.Duration
}

// APIConfig holds the serve command defaults.
type APIConfig struct {
	Addr            string
	Token           string
	CORSOrigins     []string
	RateLimit       int
	RateBurst       int
	MaxScans        int
	ScanTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// newViper returns a viper instance reading CYBERSAFE_* env vars, with
// every key defaulted.
func newViper(dataDir string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, dataDir)
	return v
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("scan.ports", consts.DefaultPorts)
	v.SetDefault("scan.http_timeout", consts.HTTPProbeTimeout.String())
	v.SetDefault("scan.tls_timeout", consts.TLSHandshakeTimeout.String())
	v.SetDefault("scan.tls_port", consts.DefaultTLSPort)
	v.SetDefault("scan.port_timeout", consts.PortConnectTimeout.String())
	v.SetDefault("scan.port_concurrency", consts.MaxPortConcurrency)

	for name, weight := range scoring.DefaultWeights() {
		v.SetDefault("scoring.weights."+string(name), weight)
	}

	v.SetDefault("cache.backend", cache.BackendFile)
	v.SetDefault("cache.dir", defaultCacheDir(dataDir))
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.ttl", consts.DefaultCacheTTL.String())

	v.SetDefault("audit.path", defaultAuditPath(dataDir))
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("batch.concurrency", defaultBatchConcurrency)
	v.SetDefault("batch.rate_limit", defaultBatchRateLimit)
	v.SetDefault("batch.timeout", defaultBatchTimeout.String())

	v.SetDefault("api.addr", defaultAPIAddr)
	v.SetDefault("api.token", "")
	v.SetDefault("api.cors_origins", "")
	v.SetDefault("api.rate_limit", defaultAPIRateLimit)
	v.SetDefault("api.rate_burst", defaultAPIRateBurst)
	v.SetDefault("api.max_scans", defaultAPIMaxScans)
	v.SetDefault("api.scan_timeout", defaultAPIScanTimeout.String())
	v.SetDefault("api.shutdown_timeout", defaultAPIShutdownTimeout.String())
}

// readConfigFile loads cfgFile, or $HOME/.cybersafe.yaml when cfgFile is
// empty. A missing default file is not an error; a missing explicit one is.
func readConfigFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath("$HOME")
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// loadCLIConfig resolves every setting from v.
func loadCLIConfig(v *viper.Viper) (*CLIConfig, error) {
	ports, err := portsFromValue(v.Get("scan.ports"))
	if err != nil {
		return nil, fmt.Errorf("scan.ports: %w", err)
	}

	durations := map[string]*time.Duration{}
	cfg := &CLIConfig{
		Scan: ScanConfig{
			Ports:           ports,
			TLSPort:         v.GetInt("scan.tls_port"),
			PortConcurrency: v.GetInt("scan.port_concurrency"),
		},
		Weights: scoring.Weights{},
		Cache: CacheConfig{
			Backend: strings.ToLower(v.GetString("cache.backend")),
			Dir:     v.GetString("cache.dir"),
			DSN:     v.GetString("cache.dsn"),
		},
		AuditPath:       v.GetString("audit.path"),
		MetricsTextfile: v.GetString("metrics.textfile"),
		Tracing: TracingConfig{
			Endpoint: v.GetString("tracing.endpoint"),
			Insecure: v.GetBool("tracing.insecure"),
		},
		Batch: BatchConfig{
			Concurrency: v.GetInt("batch.concurrency"),
			RateLimit:   v.GetInt("batch.rate_limit"),
		},
		API: APIConfig{
			Addr:        v.GetString("api.addr"),
			Token:       v.GetString("api.token"),
			CORSOrigins: stringsFromValue(v.Get("api.cors_origins")),
			RateLimit:   v.GetInt("api.rate_limit"),
			RateBurst:   v.GetInt("api.rate_burst"),
			MaxScans:    v.GetInt("api.max_scans"),
		},
	}
	durations["scan.http_timeout"] = &cfg.Scan.HTTPTimeout
	durations["scan.tls_timeout"] = &cfg.Scan.TLSTimeout
	durations["scan.port_timeout"] = &cfg.Scan.PortTimeout
	durations["cache.ttl"] = &cfg.Cache.TTL
	durations["batch.timeout"] = &cfg.Batch.Timeout
	durations["api.scan_timeout"] = &cfg.API.ScanTimeout
	durations["api.shutdown_timeout"] = &cfg.API.ShutdownTimeout

	for key, target := range durations {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*target = d
	}

	for name := range scoring.DefaultWeights() {
		cfg.Weights[name] = v.GetInt("scoring.weights." + string(name))
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Cache.Backend {
	case cache.BackendMemory, cache.BackendFile, cache.BackendPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", sharedErrors.ErrUnknownCacheStore, cfg.Cache.Backend)
	}
	return cfg, nil
}

// containerConfig maps the CLI configuration onto the application container.
func (c *CLIConfig) containerConfig(noCache bool, version string) application.Config {
	return application.Config{
		Probes: scanapp.ProbeConfig{
			HTTPTimeout:     c.Scan.HTTPTimeout,
			TLSTimeout:      c.Scan.TLSTimeout,
			TLSPort:         c.Scan.TLSPort,
			PortTimeout:     c.Scan.PortTimeout,
			PortConcurrency: c.Scan.PortConcurrency,
			Ports:           c.Scan.Ports,
		},
		Weights: c.Weights,
		Cache: cache.StoreConfig{
			Backend: c.Cache.Backend,
			Dir:     c.Cache.Dir,
			DSN:     c.Cache.DSN,
		},
		CacheTTL:        c.Cache.TTL,
		NoCache:         noCache,
		AuditPath:       c.AuditPath,
		TracingEndpoint: c.Tracing.Endpoint,
		TracingInsecure: c.Tracing.Insecure,
		Version:         version,
	}
}

// portsFromValue accepts a YAML list or a comma separated string (as set
// through CYBERSAFE_SCAN_PORTS).
func portsFromValue(raw any) ([]int, error) {
	var parts []string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []int:
		parts = make([]string, len(v))
		for i, p := range v {
			parts[i] = strconv.Itoa(p)
		}
	case []any:
		parts = make([]string, len(v))
		for i, p := range v {
			parts[i] = fmt.Sprint(p)
		}
	case []string:
		parts = v
	case string:
		parts = strings.Split(v, ",")
	default:
		return nil, fmt.Errorf("unsupported port list %T", raw)
	}

	ports := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		if p < 1 || p > 65535 {
			return nil, fmt.Errorf("%w: %d", sharedErrors.ErrInvalidPort, p)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// stringsFromValue accepts a YAML list or a comma separated string.
func stringsFromValue(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case []string:
		parts = v
	case []any:
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
	case string:
		parts = strings.Split(v, ",")
	}

	out := []string{}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func detectOperatorFromEnv() string {
	if env := os.Getenv("USER"); env != "" {
		return env
	}
	if env := os.Getenv("LOGNAME"); env != "" {
		return env
	}
	return ""
}

// applyIntDefault hands value to setter unless the named flag was set
// explicitly on the command line.
func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyDurationDefault(flags *pflag.FlagSet, name string, value time.Duration, setter func(time.Duration)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}
