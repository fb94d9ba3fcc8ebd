package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/filevet/filevet/internal/record"
)

// failingRecords rejects every save, standing in for a dead database.
type failingRecords struct {
	record.Noop
}

func (failingRecords) Save(context.Context, *record.FileRecord) error {
	return errors.New("connection refused")
}

// failingTransform always errors, for variant failure paths.
type failingTransform struct{}

func (failingTransform) Name() string { return "failing" }

func (failingTransform) Transform(fc FileContext) (FileContext, error) {
	return fc, errors.New("transform exploded")
}

func testPolicy(store *memStore) *Policy {
	pol := NewPolicy("image", store, Options{
		Storage: StorageOptions{},
	})
	pol.Space = "test"
	return pol
}

func TestProcessor_Process_Accepted(t *testing.T) {
	store := newMemStore()
	records := record.NewMemory()
	proc := NewProcessor(ProcessorConfig{Records: records})

	pol := testPolicy(store)
	pol.Profiles = []VariantProfile{
		{
			Name:  "thumbnail",
			Chain: []Transformer{Resize{MaxWidth: 100, MaxHeight: 100, TempDir: t.TempDir()}},
		},
	}

	data := pngBytes(t, 800, 600)
	rec, err := proc.Process(context.Background(), Payload{
		ClaimedName: "photo.png",
		ClaimedMime: "image/png",
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, pol)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if rec.ID == "" {
		t.Error("record must carry an ID")
	}
	if rec.Namespace != "test" {
		t.Errorf("Namespace = %q, want test", rec.Namespace)
	}
	if rec.Mime != "image/png" {
		t.Errorf("Mime = %q, want image/png", rec.Mime)
	}
	if !strings.HasPrefix(rec.StoragePath, "test/") {
		t.Errorf("StoragePath = %q, want it under the namespace", rec.StoragePath)
	}

	// Canonical bytes landed in the store
	stored, err := store.Read(context.Background(), rec.StoragePath)
	if err != nil {
		t.Fatalf("reading stored bytes: %v", err)
	}
	if int64(len(stored)) != rec.Size {
		t.Errorf("stored %d bytes, record says %d", len(stored), rec.Size)
	}

	// Variant landed too, with its own path and dimensions
	thumb, ok := rec.Variants["thumbnail"]
	if !ok {
		t.Fatal("record is missing the thumbnail variant")
	}
	if thumb.Width != 100 || thumb.Height != 75 {
		t.Errorf("thumbnail is %dx%d, want 100x75", thumb.Width, thumb.Height)
	}
	if thumb.StoragePath == rec.StoragePath {
		t.Error("variant shares the primary artifact's path")
	}
	if exists, _ := store.Exists(context.Background(), thumb.StoragePath); !exists {
		t.Error("thumbnail bytes were not written")
	}

	// Record persisted
	saved, err := records.Find(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("finding saved record: %v", err)
	}
	if saved.ContentHash != rec.ContentHash {
		t.Error("saved record diverges from the returned one")
	}
}

func TestProcessor_Process_TempFilesRemoved(t *testing.T) {
	tempDir := t.TempDir()
	store := newMemStore()
	proc := NewProcessor(ProcessorConfig{Records: record.NewMemory()})

	pol := NewPolicy("image", store, Options{
		Storage: StorageOptions{TempDir: tempDir},
	})
	pol.Space = "test"
	pol.Profiles = []VariantProfile{
		{Name: "thumbnail", Chain: []Transformer{Resize{MaxWidth: 50, MaxHeight: 50, TempDir: tempDir}}},
	}

	data := pngBytes(t, 200, 200)
	if _, err := proc.Process(context.Background(), Payload{
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, pol); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	leftovers, err := filepath.Glob(filepath.Join(tempDir, "filevet-*"))
	if err != nil {
		t.Fatalf("globbing temp dir: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestProcessor_Process_SpoofRejected(t *testing.T) {
	store := newMemStore()
	records := record.NewMemory()
	proc := NewProcessor(ProcessorConfig{Records: records})

	data := []byte("plain text pretending to be an image")
	_, err := proc.Process(context.Background(), Payload{
		ClaimedName: "fake.png",
		ClaimedMime: "image/png",
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, testPolicy(store))

	var spoofErr *SpoofError
	if !errors.As(err, &spoofErr) {
		t.Fatalf("error = %v, want *SpoofError", err)
	}
	if store.len() != 0 {
		t.Error("rejected upload left bytes in the store")
	}
	if records.Len() != 0 {
		t.Error("rejected upload left a record")
	}
}

func TestProcessor_Process_FilterRejected(t *testing.T) {
	store := newMemStore()
	records := record.NewMemory()
	proc := NewProcessor(ProcessorConfig{Records: records})

	pol := testPolicy(store)
	pol.FilterChain = []Filter{MinDimensions{Width: 1000, Height: 1000}}

	data := pngBytes(t, 100, 100)
	_, err := proc.Process(context.Background(), Payload{
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, pol)

	var policyErr *PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("error = %v, want *PolicyError", err)
	}
	if store.len() != 0 {
		t.Error("filtered upload left bytes in the store")
	}
	if records.Len() != 0 {
		t.Error("filtered upload left a record")
	}
}

func TestProcessor_Process_StoreFailureLeavesNoRecord(t *testing.T) {
	store := newMemStore()
	store.failWrite = true
	records := record.NewMemory()
	proc := NewProcessor(ProcessorConfig{Records: records})

	data := pngBytes(t, 50, 50)
	_, err := proc.Process(context.Background(), Payload{
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, testPolicy(store))

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error = %v, want *StorageError", err)
	}
	if records.Len() != 0 {
		t.Error("store failure must leave no record")
	}
}

func TestProcessor_Process_VariantWriteFailureRollsBack(t *testing.T) {
	// The primary write succeeds, the variant write fails: the primary
	// bytes must be rolled back.
	store := newMemStore()
	store.failWrite = true
	store.acceptCount = 1
	records := record.NewMemory()
	proc := NewProcessor(ProcessorConfig{Records: records})

	pol := testPolicy(store)
	pol.Profiles = []VariantProfile{
		{Name: "thumbnail", Chain: []Transformer{Resize{MaxWidth: 10, MaxHeight: 10, TempDir: t.TempDir()}}},
	}

	data := pngBytes(t, 50, 50)
	_, err := proc.Process(context.Background(), Payload{
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, pol)

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error = %v, want *StorageError", err)
	}
	if store.len() != 0 {
		t.Errorf("store holds %d objects after rollback, want 0", store.len())
	}
	if records.Len() != 0 {
		t.Error("variant write failure must leave no record")
	}
}

func TestProcessor_Process_RecordFailureRollsBackBytes(t *testing.T) {
	store := newMemStore()
	proc := NewProcessor(ProcessorConfig{Records: failingRecords{}})

	data := pngBytes(t, 50, 50)
	_, err := proc.Process(context.Background(), Payload{
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, testPolicy(store))

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error = %v, want *StorageError", err)
	}
	if storageErr.Op != "save record" {
		t.Errorf("StorageError.Op = %q, want save record", storageErr.Op)
	}
	if store.len() != 0 {
		t.Errorf("store holds %d objects after record failure, want 0", store.len())
	}
}

func TestProcessor_Process_OptionalVariantFailureIsIsolated(t *testing.T) {
	store := newMemStore()
	records := record.NewMemory()
	proc := NewProcessor(ProcessorConfig{Records: records})

	pol := testPolicy(store)
	pol.Profiles = []VariantProfile{
		{Name: "broken", Chain: []Transformer{failingTransform{}}},
		{Name: "thumbnail", Chain: []Transformer{Resize{MaxWidth: 10, MaxHeight: 10, TempDir: t.TempDir()}}},
	}

	data := pngBytes(t, 50, 50)
	rec, err := proc.Process(context.Background(), Payload{
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, pol)
	if err != nil {
		t.Fatalf("optional variant failure must not fail the upload: %v", err)
	}

	if _, ok := rec.Variants["broken"]; ok {
		t.Error("failed variant must not appear in the record")
	}
	if _, ok := rec.Variants["thumbnail"]; !ok {
		t.Error("healthy variant must survive a sibling's failure")
	}
}

func TestProcessor_Process_MandatoryVariantFailureFailsUpload(t *testing.T) {
	store := newMemStore()
	records := record.NewMemory()
	proc := NewProcessor(ProcessorConfig{Records: records})

	pol := testPolicy(store)
	pol.Profiles = []VariantProfile{
		{Name: "required", Mandatory: true, Chain: []Transformer{failingTransform{}}},
	}

	data := pngBytes(t, 50, 50)
	_, err := proc.Process(context.Background(), Payload{
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, pol)

	var variantErr *VariantError
	if !errors.As(err, &variantErr) {
		t.Fatalf("error = %v, want *VariantError", err)
	}
	if variantErr.Variant != "required" {
		t.Errorf("VariantError.Variant = %q, want required", variantErr.Variant)
	}
	if store.len() != 0 || records.Len() != 0 {
		t.Error("mandatory variant failure must persist nothing")
	}
}

func TestProcessor_Process_UnsupportedSource(t *testing.T) {
	proc := NewProcessor(ProcessorConfig{})

	_, err := proc.Process(context.Background(), 42, testPolicy(newMemStore()))
	if !errors.Is(err, ErrUnsupportedSource) {
		t.Errorf("error = %v, want ErrUnsupportedSource", err)
	}
}

func TestProcessor_Process_NilRecordsDefaultsToNoop(t *testing.T) {
	store := newMemStore()
	proc := NewProcessor(ProcessorConfig{})

	data := pngBytes(t, 20, 20)
	rec, err := proc.Process(context.Background(), Payload{
		ClaimedSize: int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, testPolicy(store))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if rec == nil || rec.ID == "" {
		t.Error("noop-backed processor must still return a complete record")
	}
}

func TestProcessor_Process_LimiterRejection(t *testing.T) {
	store := newMemStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	proc := NewProcessor(ProcessorConfig{
		MaxConcurrentProves: 1,
		ProveWaitTime:       20 * time.Millisecond,
		Metrics:             metrics,
	})

	// Occupy the only slot so the upload times out waiting for one.
	if err := proc.limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("seeding limiter: %v", err)
	}
	defer proc.limiter.Release()

	data := pngBytes(t, 10, 10)
	src := &closeTrackingReader{Reader: bytes.NewReader(data)}
	_, err := proc.Process(context.Background(), Payload{
		ClaimedName: "busy.png",
		ClaimedSize: int64(len(data)),
		Reader:      src,
	}, testPolicy(store))

	if !errors.Is(err, ErrTooManyUploads) {
		t.Fatalf("error = %v, want ErrTooManyUploads", err)
	}
	if !src.closed {
		t.Error("source reader left open after limiter rejection")
	}

	// Backpressure rejections show up in the counters
	if got := testutil.ToFloat64(metrics.uploadsTotal.WithLabelValues("test", "rejected")); got != 1 {
		t.Errorf("uploads_total{outcome=rejected} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.rejectionsByRule.WithLabelValues(rejectionRule(ErrTooManyUploads))); got != 1 {
		t.Errorf("rejections_total = %v, want 1", got)
	}
}

func TestProcessor_LimiterStatus(t *testing.T) {
	proc := NewProcessor(ProcessorConfig{MaxConcurrentProves: 2})

	status := proc.LimiterStatus()
	if status.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", status.MaxConcurrent)
	}
	if status.Active != 0 {
		t.Errorf("Active = %d, want 0", status.Active)
	}
}

func TestProcessor_WaitForDrain_Idle(t *testing.T) {
	proc := NewProcessor(ProcessorConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := proc.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain on idle processor failed: %v", err)
	}
}

func TestProcessor_Process_SourceFileUntouchedOnReject(t *testing.T) {
	// A transfer-protocol source is caller-owned; rejection must not
	// remove it.
	srcPath := writeTempFile(t, "fake.png", []byte("not an image"))
	proc := NewProcessor(ProcessorConfig{})

	_, err := proc.Process(context.Background(), TransferRecord{
		Name:    "fake.png",
		Mime:    "image/png",
		TmpPath: srcPath,
	}, testPolicy(newMemStore()))
	if err == nil {
		t.Fatal("expected rejection")
	}

	if _, statErr := os.Stat(srcPath); statErr != nil {
		t.Errorf("caller-owned source was removed: %v", statErr)
	}
}
