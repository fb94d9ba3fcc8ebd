package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores bytes on the local filesystem under a root directory.
// Locations are relative to the root and already resolved: Local joins
// them without interpreting segments.
type Local struct {
	root string
}

// NewLocal creates a disk store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: dir}, nil
}

func (l *Local) abs(location string) string {
	return filepath.Join(l.root, filepath.FromSlash(location))
}

// Read implements Store.
func (l *Local) Read(ctx context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(l.abs(location))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return data, err
}

// Write implements Store.
func (l *Local) Write(ctx context.Context, location string, data []byte) error {
	path := l.abs(location)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// Write through a temp file in the same directory, then rename, so
	// readers never observe a half-written object.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".filevet-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Copy implements Store.
func (l *Local) Copy(ctx context.Context, src, dst string) error {
	data, err := l.Read(ctx, src)
	if err != nil {
		return err
	}
	return l.Write(ctx, dst, data)
}

// Delete implements Store.
func (l *Local) Delete(ctx context.Context, location string) error {
	err := os.Remove(l.abs(location))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotExist
	}
	return err
}

// List implements Store. Returned locations use forward slashes
// relative to the root.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if prefix == "" || len(rel) >= len(prefix) && rel[:len(prefix)] == prefix {
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}

// Rename implements Store.
func (l *Local) Rename(ctx context.Context, src, dst string) error {
	dstPath := l.abs(dst)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	err := os.Rename(l.abs(src), dstPath)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotExist
	}
	return err
}

// Append implements Store.
func (l *Local) Append(ctx context.Context, location string, data []byte) error {
	path := l.abs(location)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Exists implements Store.
func (l *Local) Exists(ctx context.Context, location string) (bool, error) {
	_, err := os.Stat(l.abs(location))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stats implements Store.
func (l *Local) Stats(ctx context.Context, location string) (*Stat, error) {
	info, err := os.Stat(l.abs(location))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return &Stat{Size: info.Size(), ModTime: info.ModTime()}, nil
}
