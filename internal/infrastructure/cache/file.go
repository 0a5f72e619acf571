package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
	"github.com/khanhnv2901/cybersafe/internal/shared/security"
)

const entryExt = ".json"

// FileStore keeps one JSON document per key in a directory, so cached
// results survive between CLI invocations.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, sharedErrors.ErrCacheDirRequired
	}
	if err := os.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// path maps a key to a file name. Keys embed host names, so they are hashed
// rather than used as file names directly.
func (s *FileStore) path(key string) (string, error) {
	if key == "" {
		return "", sharedErrors.ErrInvalidCacheKey
	}
	sum := sha256.Sum256([]byte(key))
	p, err := security.ResolveWithin(s.dir, hex.EncodeToString(sum[:])+entryExt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrInvalidCacheKey, err)
	}
	return p, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (Entry, error) {
	p, err := s.path(key)
	if err != nil {
		return Entry{}, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(p)
	s.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, sharedErrors.ErrCacheMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	if entry.Key != key {
		return Entry{}, sharedErrors.ErrCacheMiss
	}
	return entry, nil
}

func (s *FileStore) Set(ctx context.Context, entry Entry) error {
	p, err := s.path(entry.Key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	if err := os.Chmod(tmpName, consts.DefaultFilePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != entryExt {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove cache entry: %w", err)
		}
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
