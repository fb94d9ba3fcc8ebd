package record

import "context"

// Noop is the drop-in default Store: writes are discarded and reads
// return nothing. It lets the pipeline run without any metadata
// backend configured.
type Noop struct{}

// NewNoop creates a no-op store.
func NewNoop() Noop { return Noop{} }

// Save implements Store. The record is discarded.
func (Noop) Save(ctx context.Context, rec *FileRecord) error { return nil }

// Update implements Store. The record is discarded.
func (Noop) Update(ctx context.Context, rec *FileRecord) error { return nil }

// Delete implements Store.
func (Noop) Delete(ctx context.Context, id string) error { return nil }

// Find implements Store. Always ErrNotFound.
func (Noop) Find(ctx context.Context, id string) (*FileRecord, error) {
	return nil, ErrNotFound
}

// FindByHash implements Store. Always ErrNotFound.
func (Noop) FindByHash(ctx context.Context, namespace, hash string) (*FileRecord, error) {
	return nil, ErrNotFound
}

// Exists implements Store. Always false.
func (Noop) Exists(ctx context.Context, id string) (bool, error) {
	return false, nil
}
