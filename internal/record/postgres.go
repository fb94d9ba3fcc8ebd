package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx operations Postgres needs.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres persists FileRecords in a file_records table. The variant
// manifest is stored as JSONB alongside the scalar columns.
//
// Expected schema:
//
//	CREATE TABLE file_records (
//	    id           UUID PRIMARY KEY,
//	    namespace    TEXT NOT NULL,
//	    mime         TEXT NOT NULL,
//	    extension    TEXT NOT NULL,
//	    size         BIGINT NOT NULL,
//	    content_hash TEXT NOT NULL,
//	    storage_path TEXT NOT NULL,
//	    variants     JSONB NOT NULL DEFAULT '{}',
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX file_records_content_hash_idx ON file_records (content_hash);
type Postgres struct {
	db DBTX
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Save implements Store.
func (p *Postgres) Save(ctx context.Context, rec *FileRecord) error {
	variants, err := json.Marshal(rec.Variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}

	now := time.Now().UTC()
	_, err = p.db.Exec(ctx, `
		INSERT INTO file_records
			(id, namespace, mime, extension, size, content_hash, storage_path, variants, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		rec.ID, rec.Namespace, rec.Mime, rec.Extension, rec.Size,
		rec.ContentHash, rec.StoragePath, variants, now,
	)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

// Update implements Store.
func (p *Postgres) Update(ctx context.Context, rec *FileRecord) error {
	variants, err := json.Marshal(rec.Variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}

	tag, err := p.db.Exec(ctx, `
		UPDATE file_records
		SET namespace = $2, mime = $3, extension = $4, size = $5,
		    content_hash = $6, storage_path = $7, variants = $8, updated_at = $9
		WHERE id = $1`,
		rec.ID, rec.Namespace, rec.Mime, rec.Extension, rec.Size,
		rec.ContentHash, rec.StoragePath, variants, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update file record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM file_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Find implements Store.
func (p *Postgres) Find(ctx context.Context, id string) (*FileRecord, error) {
	var rec FileRecord
	var variants []byte

	err := p.db.QueryRow(ctx, `
		SELECT id, namespace, mime, extension, size, content_hash, storage_path, variants, created_at, updated_at
		FROM file_records WHERE id = $1`, id,
	).Scan(
		&rec.ID, &rec.Namespace, &rec.Mime, &rec.Extension, &rec.Size,
		&rec.ContentHash, &rec.StoragePath, &variants, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find file record: %w", err)
	}

	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &rec.Variants); err != nil {
			return nil, fmt.Errorf("unmarshal variants: %w", err)
		}
	}
	return &rec, nil
}

// FindByHash implements Store. When the same content was ingested more
// than once, the most recent record wins.
func (p *Postgres) FindByHash(ctx context.Context, namespace, hash string) (*FileRecord, error) {
	var rec FileRecord
	var variants []byte

	err := p.db.QueryRow(ctx, `
		SELECT id, namespace, mime, extension, size, content_hash, storage_path, variants, created_at, updated_at
		FROM file_records WHERE namespace = $1 AND content_hash = $2
		ORDER BY created_at DESC LIMIT 1`, namespace, hash,
	).Scan(
		&rec.ID, &rec.Namespace, &rec.Mime, &rec.Extension, &rec.Size,
		&rec.ContentHash, &rec.StoragePath, &variants, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find file record by hash: %w", err)
	}

	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &rec.Variants); err != nil {
			return nil, fmt.Errorf("unmarshal variants: %w", err)
		}
	}
	return &rec, nil
}

// Exists implements Store.
func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM file_records WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check file record: %w", err)
	}
	return exists, nil
}
