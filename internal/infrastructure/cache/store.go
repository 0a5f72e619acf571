package cache

import (
	"context"
	"fmt"
	"strings"

	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// Backend names accepted by NewStore.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// StoreConfig selects and configures a cache backend.
type StoreConfig struct {
	Backend string
	Dir     string // file backend
	DSN     string // postgres backend
}

// NewStore builds the configured backend. An empty backend means memory.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(cfg.Dir)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", sharedErrors.ErrUnknownCacheStore, cfg.Backend)
	}
}
