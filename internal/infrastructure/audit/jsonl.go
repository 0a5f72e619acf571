package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/khanhnv2901/cybersafe/internal/domain/audit"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/cybersafe/internal/shared/errors"
)

// Log implements audit.Repository as an append-only JSON Lines file.
type Log struct {
	path     string
	mu       sync.Mutex
	lastHash string
	loaded   bool
}

var _ audit.Repository = (*Log)(nil)

// NewLog returns a log writing to path, creating its directory if needed.
func NewLog(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), consts.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Log{path: path}, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Append seals record against the previous line and writes it.
func (l *Log) Append(ctx context.Context, record *audit.Record) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		records, err := l.read()
		if err != nil && !errors.Is(err, sharedErrors.ErrAuditLogNotFound) {
			return err
		}
		if len(records) > 0 {
			l.lastHash = records[len(records)-1].Hash
		}
		l.loaded = true
	}

	if err := record.Seal(l.lastHash); err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, consts.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	l.lastHash = record.Hash
	return nil
}

// List returns every record in the log.
func (l *Log) List(ctx context.Context) ([]*audit.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// Verify walks the hash chain and reports the first broken record.
func (l *Log) Verify(ctx context.Context) error {
	records, err := l.List(ctx)
	if err != nil {
		return err
	}
	if idx := audit.VerifyChain(records); idx >= 0 {
		return fmt.Errorf("%w at line %d (scan %s)", sharedErrors.ErrAuditChainBroken, idx+1, records[idx].ScanID)
	}
	return nil
}

func (l *Log) read() ([]*audit.Record, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, sharedErrors.ErrAuditLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []*audit.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", sharedErrors.ErrDeserializationFailed, line, err)
		}
		records = append(records, &r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return records, nil
}
