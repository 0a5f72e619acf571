// Package constants centralizes configuration defaults shared across the CLI.
//
// Storing file permissions, probe timeouts, candidate ports and the cache TTL
// in one place prevents magic numbers from scattering across cmd/ and
// internal/. Callers that need different values pass them explicitly through
// the probe and scanner constructors.
package constants
