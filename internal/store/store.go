// Package store persists configuration documents. Every backend is append
// only from the caller's point of view and lists documents in insertion
// order.
package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/eltrade/mnconfig/internal/config"
)

// Store is the persistence layer for configuration documents
type Store interface {
	// List returns matching documents in insertion order
	List(ctx context.Context, f Filter) ([]Document, error)
	// Append adds a document
	Append(ctx context.Context, doc Document) error
	// Delete removes matching documents and returns how many were removed
	Delete(ctx context.Context, f Filter) (int, error)
	// Clear removes every document
	Clear(ctx context.Context) error
	Close() error
}

// File names inside the data directory
const (
	JSONFileName   = "config_store.json"
	BoltFileName   = "config_store.db"
	SQLiteFileName = "config_store.sqlite"
)

// Open creates the configured backend inside dataDir
func Open(backend, dataDir string) (Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "error creating data dir %s", dataDir)
	}

	switch backend {
	case config.BackendJSON, "":
		return NewJSONStore(filepath.Join(dataDir, JSONFileName))
	case config.BackendBolt:
		return NewBoltStore(filepath.Join(dataDir, BoltFileName))
	case config.BackendSQLite:
		return NewSQLiteStore(filepath.Join(dataDir, SQLiteFileName))
	}
	return nil, errors.Errorf("unknown store backend %q", backend)
}
