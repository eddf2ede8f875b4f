// Package remote implements the shared backend contract: per-table CRUD over
// JSON records with snake_case keys, plus the realtime change feed. Two
// backend implementations exist, an HTTP REST client and a direct Postgres
// client, selected by configuration.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Backend is the remote store contract. Records are JSON objects keyed by a
// primary "id" field; Upsert must be safe to replay.
type Backend interface {
	// Select returns rows of a table, optionally filtered by field equality
	Select(ctx context.Context, table string, filters map[string]string) ([]map[string]any, error)
	// GetByID returns one row, or ErrNotFound
	GetByID(ctx context.Context, table, id string) (map[string]any, error)
	// Upsert inserts or replaces a row keyed by its id
	Upsert(ctx context.Context, table string, record map[string]any) error
	// Update modifies an existing row by id
	Update(ctx context.Context, table, id string, record map[string]any) error
	// Delete removes a row by id
	Delete(ctx context.Context, table, id string) error
	// Ping checks reachability
	Ping(ctx context.Context) error
}

var (
	// ErrNotConfigured means no backend credentials are present
	ErrNotConfigured = errors.New("remote backend not configured")
	// ErrNotFound means the requested row does not exist
	ErrNotFound = errors.New("remote record not found")
)

// TransientError marks a failure worth retrying: timeouts, transport
// failures, 5xx responses
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient remote error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable remote failure
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
