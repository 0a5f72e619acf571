package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// UserAgent identifies the scanner on every HTTP probe.
	UserAgent = "Cybersafe/1.0 (Security Hygiene Checker)"
	// AttackerOrigin is the untrusted Origin sent by the CORS probe.
	AttackerOrigin = "https://evil.com"
)

const (
	// HTTPProbeTimeout bounds the headers, CORS and methods requests.
	HTTPProbeTimeout = 10 * time.Second
	// TLSHandshakeTimeout bounds the TLS connect and handshake.
	TLSHandshakeTimeout = 5 * time.Second
	// PortConnectTimeout bounds a single TCP connect attempt.
	PortConnectTimeout = 1 * time.Second
	// MaxPortConcurrency caps in-flight TCP connect attempts.
	MaxPortConcurrency = 20
	// TLSSoonExpiryDays flags certificates expiring inside this many days.
	TLSSoonExpiryDays = 30
	// DefaultTLSPort is where the TLS probe connects.
	DefaultTLSPort = 443
)

const (
	// DefaultCacheTTL keeps scan results for 12 hours.
	DefaultCacheTTL = 43200 * time.Second
)

// DefaultPorts are the candidate ports for the active scan.
var DefaultPorts = []int{21, 22, 80, 443, 3306, 5432, 6379}

// SensitivePorts are ports whose exposure is penalized (FTP, SSH, MySQL, PostgreSQL, Redis).
var SensitivePorts = []int{21, 22, 3306, 5432, 6379}
