package audit

import "context"

// Repository defines the interface for audit log persistence
type Repository interface {
	// Append seals record against the last stored hash and persists it
	Append(ctx context.Context, record *Record) error

	// List returns every record in append order
	List(ctx context.Context) ([]*Record, error)

	// Verify checks the hash chain of the stored log
	Verify(ctx context.Context) error
}
