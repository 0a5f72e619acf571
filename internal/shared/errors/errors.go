package errors

import "errors"

// Domain errors
var (
	// Scan request errors
	ErrEmptyTarget   = errors.New("target cannot be empty")
	ErrInvalidTarget = errors.New("invalid target")
	ErrInvalidPort   = errors.New("port out of range")

	// Consent errors
	ErrConsentMismatch = errors.New("domain confirmation does not match target - active scan blocked")

	// Scoring errors
	ErrInvalidWeight = errors.New("scoring weight must not be negative")

	// Cache errors
	ErrCacheMiss         = errors.New("cache miss")
	ErrUnknownCacheStore = errors.New("unknown cache backend")
	ErrMissingCacheDSN   = errors.New("postgres cache backend requires a DSN")
	ErrCacheDirRequired  = errors.New("file cache backend requires a directory")
	ErrInvalidCacheKey   = errors.New("invalid cache key")

	// Audit errors
	ErrAuditLogNotFound = errors.New("audit log not found")
	ErrAuditChainBroken = errors.New("audit log hash chain broken")

	// Report errors
	ErrInvalidFormat = errors.New("unsupported report format")

	// Repository errors
	ErrRepositoryOperation   = errors.New("repository operation failed")
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")
)
