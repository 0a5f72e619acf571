// Package cache stores completed scan results for a limited time.
//
// ResultCache applies the TTL and copy semantics; the Store implementations
// (memory, file, postgres) only persist entries.
package cache
