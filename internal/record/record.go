// Package record persists file metadata records, independent of byte
// storage. A FileRecord is the only artifact the pipeline exposes to
// collaborators outside the core.
package record

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Find when no record matches.
var ErrNotFound = errors.New("file record not found")

// VariantRecord is the persisted metadata of one derived artifact.
type VariantRecord struct {
	Mime        string    `json:"mime"`
	Extension   string    `json:"extension"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
	StoragePath string    `json:"storage_path"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
}

// FileRecord is the persisted metadata of a normalized file and its
// variant manifest. Created after a successful store write; updated on
// re-derivation of variants; deleted on explicit removal.
type FileRecord struct {
	ID          string                   `json:"id"`
	Namespace   string                   `json:"namespace"`
	Mime        string                   `json:"mime"`
	Extension   string                   `json:"extension"`
	Size        int64                    `json:"size"`
	ContentHash string                   `json:"content_hash"`
	StoragePath string                   `json:"storage_path"`
	Variants    map[string]VariantRecord `json:"variants,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Store persists FileRecords keyed by their canonical identifier.
type Store interface {
	// Save persists a new record.
	Save(ctx context.Context, rec *FileRecord) error

	// Update replaces an existing record.
	Update(ctx context.Context, rec *FileRecord) error

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error

	// Find returns the record with the given ID, or ErrNotFound.
	Find(ctx context.Context, id string) (*FileRecord, error)

	// FindByHash returns the record in a namespace with the given
	// content hash, or ErrNotFound.
	FindByHash(ctx context.Context, namespace, hash string) (*FileRecord, error)

	// Exists reports whether a record with the given ID exists.
	Exists(ctx context.Context, id string) (bool, error)
}
