package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/filevet/filevet/internal/storage"
)

// pngBytes produces a valid PNG of the given dimensions with a simple
// gradient so re-encoding has real pixel data to chew on.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("encoding fixture png: %v", err)
	}
	return buf.Bytes()
}

// jpegBytes produces a valid JPEG of the given dimensions.
func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), nil); err != nil {
		t.Fatalf("encoding fixture jpeg: %v", err)
	}
	return buf.Bytes()
}

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

// gifBytes produces a valid GIF whose left half is fully transparent
// and whose right half is opaque red.
func gifBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{
		color.NRGBA{},
		color.NRGBA{R: 255, A: 255},
	})
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetColorIndex(x, y, 1)
		}
	}
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding fixture gif: %v", err)
	}
	return buf.Bytes()
}

// closeTrackingReader records whether the pipeline closed the source
// stream it was handed.
type closeTrackingReader struct {
	io.Reader
	closed bool
}

func (r *closeTrackingReader) Close() error {
	r.closed = true
	return nil
}

// writeTempFile writes fixture bytes to a file under the test's temp
// dir and returns its path.
func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	return path
}

// provedContext runs the image strategy over fixture bytes and returns
// the proved context. The canonical temp file is removed when the test
// ends.
func provedContext(t *testing.T, data []byte) FileContext {
	t.Helper()
	s := NewImageStrategy(DefaultOptions())
	fc, err := s.Prove(context.Background(), NewContext(Payload{
		ClaimedName: "fixture",
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}))
	if err != nil {
		t.Fatalf("proving fixture: %v", err)
	}
	t.Cleanup(func() { os.Remove(fc.NormalizedPath) })
	return fc
}

// memStore is an in-memory storage.Store for processor tests. failWrite
// makes Write fail after acceptCount successful writes.
type memStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failWrite   bool
	acceptCount int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Read(_ context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[location]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (m *memStore) Write(_ context.Context, location string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite && m.acceptCount <= 0 {
		return os.ErrPermission
	}
	if m.failWrite {
		m.acceptCount--
	}
	m.objects[location] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Copy(ctx context.Context, src, dst string) error {
	data, err := m.Read(ctx, src)
	if err != nil {
		return err
	}
	return m.Write(ctx, dst, data)
}

func (m *memStore) Delete(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[location]; !ok {
		return storage.ErrNotExist
	}
	delete(m.objects, location)
	return nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for loc := range m.objects {
		if len(loc) >= len(prefix) && loc[:len(prefix)] == prefix {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (m *memStore) Rename(ctx context.Context, src, dst string) error {
	if err := m.Copy(ctx, src, dst); err != nil {
		return err
	}
	return m.Delete(ctx, src)
}

func (m *memStore) Append(_ context.Context, location string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[location] = append(m.objects[location], data...)
	return nil
}

func (m *memStore) Exists(_ context.Context, location string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[location]
	return ok, nil
}

func (m *memStore) Stats(_ context.Context, location string) (*storage.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[location]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return &storage.Stat{Size: int64(len(data))}, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
