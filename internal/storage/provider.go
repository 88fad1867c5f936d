// Package storage defines the key-value persistence used for the workspace
// record, with SQLite and file-system drivers.
package storage

import (
	"context"
	"fmt"
)

// WorkspaceKey is the fixed key the workspace record is stored under.
const WorkspaceKey = "workspace"

// Provider is a minimal key-value store.
type Provider interface {
	// Get returns the value stored under key. A missing key yields an error
	// wrapping apperr.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Close releases the underlying resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Open creates a provider for the named driver. For sqlite, path is the
// database file; for file, it is the directory holding one file per key.
func Open(driver, path string) (Provider, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(path)
	case DriverFile:
		return NewFS(path)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
