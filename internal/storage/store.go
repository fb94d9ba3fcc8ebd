// Package storage abstracts raw byte I/O behind a narrow contract.
// Stores are addressed by absolute, pre-resolved locations: scheme
// parsing and path normalization happen upstream in the Uri resolver,
// never inside a Store.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotExist is returned when a location has no stored bytes.
var ErrNotExist = errors.New("location does not exist")

// Stat describes stored bytes at a location.
type Stat struct {
	Size    int64
	ModTime time.Time
}

// Store is the byte storage contract. Implementations must not parse
// schemes or normalize paths; locations arrive fully resolved.
type Store interface {
	// Read returns the bytes at a location.
	Read(ctx context.Context, location string) ([]byte, error)

	// Write persists bytes at a location, replacing any previous content.
	Write(ctx context.Context, location string, data []byte) error

	// Copy duplicates src to dst.
	Copy(ctx context.Context, src, dst string) error

	// Delete removes the bytes at a location.
	Delete(ctx context.Context, location string) error

	// List returns the locations under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Rename moves src to dst.
	Rename(ctx context.Context, src, dst string) error

	// Append adds bytes to the end of a location, creating it if absent.
	Append(ctx context.Context, location string, data []byte) error

	// Exists reports whether a location holds bytes.
	Exists(ctx context.Context, location string) (bool, error)

	// Stats returns metadata for a location, or ErrNotExist.
	Stats(ctx context.Context, location string) (*Stat, error)
}
