// Package checkpoint persists the watermark and pagination progress of ingestion runs.
//
// Backends store opaque documents under a key with read-whole / overwrite-whole
// semantics. The Manager layers the two JSON documents on top of a Store.
package checkpoint

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Store when no document exists under a key.
var ErrNotFound = errors.New("checkpoint document not found")

// Store is durable key to document storage.
type Store interface {
	// Load returns the whole document stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save overwrites the whole document stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Keys names the two documents a Manager reads and writes.
type Keys struct {
	// Watermark is the key of the last-fetched document.
	Watermark string

	// Progress is the key of the per-video pagination document.
	Progress string
}

// DefaultKeys returns the document keys used by default.
func DefaultKeys() Keys {
	return Keys{
		Watermark: "last_fetched.json",
		Progress:  "fetch_progress.json",
	}
}
