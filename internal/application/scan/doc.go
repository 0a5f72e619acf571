// Package scan coordinates a complete scan: consent gate, cache, concurrent
// probe fan-out, scoring and audit.
//
// Orchestrator owns the fan-out/fan-in barrier over one probe set. Service
// is what callers use; it decides which probes may run and records the
// outcome. BatchRunner drives Service over many targets.
package scan
