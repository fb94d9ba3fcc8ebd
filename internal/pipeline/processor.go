package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/filevet/filevet/internal/logging"
	"github.com/filevet/filevet/internal/record"
	"github.com/filevet/filevet/internal/storage"
)

// Processor orchestrates the pipeline: entry → prove → normalize →
// filters → variants → store → record. It owns the prove concurrency
// bound and the persistence rollback boundary; everything in between
// is the policy's business.
type Processor struct {
	limiter *ProveLimiter
	records record.Store
	metrics *Metrics
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// MaxConcurrentProves bounds parallel decode work. Zero uses the
	// default.
	MaxConcurrentProves int

	// ProveWaitTime is how long an upload waits for a prove slot.
	ProveWaitTime time.Duration

	// Records receives FileRecords. Nil means the no-op store.
	Records record.Store

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

// NewProcessor creates a pipeline processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	records := cfg.Records
	if records == nil {
		records = record.NewNoop()
	}
	return &Processor{
		limiter: NewProveLimiter(cfg.MaxConcurrentProves, cfg.ProveWaitTime),
		records: records,
		metrics: cfg.Metrics,
	}
}

// LimiterStatus exposes the prove limiter state for monitoring.
func (p *Processor) LimiterStatus() LimiterStatus {
	return p.limiter.Status()
}

// WaitForDrain blocks until in-flight uploads complete. Used during
// graceful shutdown.
func (p *Processor) WaitForDrain(ctx context.Context) error {
	return p.limiter.WaitForDrain(ctx)
}

// Process runs one upload through the full pipeline under the given
// policy. On success the returned FileRecord is the only artifact the
// caller sees; on failure nothing has been persisted — bytes and
// record commit together or not at all.
func (p *Processor) Process(ctx context.Context, raw any, pol *Policy) (*record.FileRecord, error) {
	logger := logging.FromContext(ctx).With("namespace", pol.Namespace())

	payload, err := ToPayload(raw)
	if err != nil {
		p.metrics.observeRejection(err)
		return nil, err
	}
	fc := NewContext(payload)
	if c, ok := fc.SourceReader.(io.Closer); ok {
		// Entry adapters hand over open stream handles; rejections
		// before the strategy consumes the stream must still close it.
		defer c.Close()
	}

	if err := p.limiter.Acquire(ctx); err != nil {
		p.metrics.observeRejection(err)
		p.metrics.observeOutcome(pol.Namespace(), "rejected")
		return nil, err
	}
	defer p.limiter.Release()

	strategy, err := pol.Strategy(fc)
	if err != nil {
		return nil, err
	}

	// Canonical temp files live only as long as this call, on every
	// exit path.
	var temps []string
	defer func() {
		for _, t := range temps {
			os.Remove(t)
		}
	}()

	proved, err := p.prove(ctx, strategy, fc, pol)
	if proved.NormalizedPath != "" {
		temps = append(temps, proved.NormalizedPath)
	}
	if err != nil {
		p.metrics.observeRejection(err)
		p.metrics.observeOutcome(pol.Namespace(), "rejected")
		logger.Info("upload rejected",
			"stage", "prove",
			"claimed_name", fc.ClaimedName,
			"claimed_mime", fc.ClaimedMime,
			"error", err.Error(),
		)
		return nil, err
	}

	normalized, err := strategy.Normalize(ctx, proved)
	if err != nil {
		p.metrics.observeRejection(err)
		p.metrics.observeOutcome(pol.Namespace(), "rejected")
		return nil, err
	}

	for _, filter := range pol.Filters(normalized) {
		normalized, err = filter.Apply(normalized)
		if err != nil {
			p.metrics.observeRejection(err)
			p.metrics.observeOutcome(pol.Namespace(), "rejected")
			logger.Info("upload rejected",
				"stage", "filter",
				"filter", filter.Name(),
				"error", err.Error(),
			)
			return nil, err
		}
	}

	normalized, variantTemps, err := p.deriveVariants(ctx, normalized, pol, logger)
	temps = append(temps, variantTemps...)
	if err != nil {
		p.metrics.observeOutcome(pol.Namespace(), "rejected")
		return nil, err
	}

	rec, err := p.persist(ctx, normalized, pol, logger)
	if err != nil {
		p.metrics.observeOutcome(pol.Namespace(), "failed")
		return nil, err
	}

	p.metrics.observeOutcome(pol.Namespace(), "accepted")
	logger.Info("upload accepted",
		"record_id", rec.ID,
		"mime", rec.Mime,
		"size", rec.Size,
		"hash", rec.ContentHash,
		"variants", len(rec.Variants),
	)
	return rec, nil
}

// prove runs the strategy's trust boundary under the policy's timeout.
// A timeout is a rejection of the upload, reported as a DecodeError.
func (p *Processor) prove(ctx context.Context, strategy Strategy, fc FileContext, pol *Policy) (FileContext, error) {
	proveCtx := ctx
	if timeout := pol.Opts.Prove.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		proveCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	proved, err := strategy.Prove(proveCtx, fc)
	p.metrics.observeProve(time.Since(start).Seconds())

	if err == nil && proveCtx.Err() != nil {
		// The decode finished after the deadline; too late counts as
		// rejected.
		return proved, &DecodeError{Mime: fc.ClaimedMime, Err: proveCtx.Err()}
	}
	return proved, err
}

// deriveVariants runs every profile's transformer chain in parallel.
// Each chain is independent: a failure aborts only that variant and is
// reported, unless the profile is mandatory.
func (p *Processor) deriveVariants(ctx context.Context, fc FileContext, pol *Policy, logger *slog.Logger) (FileContext, []string, error) {
	if len(pol.Profiles) == 0 {
		return fc, nil, nil
	}

	var (
		mu      sync.Mutex
		temps   []string
		results = make(map[string]FileContext, len(pol.Profiles))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, profile := range pol.Profiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			derived := fc
			var err error
			for _, t := range profile.Chain {
				derived, err = t.Transform(derived)
				if err != nil {
					break
				}
				mu.Lock()
				if derived.NormalizedPath != fc.NormalizedPath {
					temps = append(temps, derived.NormalizedPath)
				}
				mu.Unlock()
			}
			if err != nil {
				p.metrics.observeVariantFailure(profile.Name)
				if profile.Mandatory {
					return &VariantError{Variant: profile.Name, Err: err}
				}
				logger.Warn("variant derivation failed",
					"variant", profile.Name,
					"error", err.Error(),
				)
				return nil
			}

			mu.Lock()
			results[profile.Name] = derived
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fc, temps, err
	}

	for name, derived := range results {
		fc = fc.WithVariant(name, derived)
	}
	return fc, temps, nil
}

// persist writes canonical bytes for the primary artifact and every
// variant, then saves the metadata record. Store and RecordStore are
// each other's rollback boundary: a record failure deletes the bytes
// already written, a write failure leaves no record.
func (p *Processor) persist(ctx context.Context, fc FileContext, pol *Policy, logger *slog.Logger) (*record.FileRecord, error) {
	store := pol.Store(fc)
	resolver := storage.Uri{}

	profiles := make(map[string]VariantProfile, len(pol.Profiles))
	for _, profile := range pol.Profiles {
		profiles[profile.Name] = profile
	}

	var written []string
	rollback := func() {
		for _, loc := range written {
			if err := store.Delete(ctx, loc); err != nil {
				logger.Warn("rollback delete failed", "location", loc, "error", err.Error())
			}
		}
	}

	write := func(fc FileContext, location string) error {
		data, err := os.ReadFile(fc.NormalizedPath)
		if err != nil {
			return &StorageError{Op: "read canonical", Location: fc.NormalizedPath, Err: err}
		}
		if err := store.Write(ctx, location, data); err != nil {
			return &StorageError{Op: "write", Location: location, Err: err}
		}
		written = append(written, location)
		p.metrics.observeBytes(int64(len(data)))
		return nil
	}

	primaryLoc, err := resolver.Resolve("", pol.StorePath(fc, ""))
	if err != nil {
		return nil, &StorageError{Op: "resolve", Location: pol.StorePath(fc, ""), Err: err}
	}
	if err := write(fc, primaryLoc); err != nil {
		rollback()
		return nil, err
	}

	variants := make(map[string]record.VariantRecord, len(fc.Variants))
	for name, vfc := range fc.Variants {
		subpath := ""
		if profile, ok := profiles[name]; ok {
			subpath = profile.Path()
		}
		loc, err := resolver.Resolve(subpath, pol.StorePath(vfc, name))
		if err != nil {
			rollback()
			return nil, &StorageError{Op: "resolve", Location: pol.StorePath(vfc, name), Err: err}
		}
		if err := write(vfc, loc); err != nil {
			rollback()
			return nil, err
		}
		variants[name] = record.VariantRecord{
			Mime:        vfc.TrustedMime,
			Extension:   vfc.TrustedExtension,
			Size:        vfc.NormalizedSize,
			ContentHash: vfc.ContentHash,
			StoragePath: loc,
			Width:       vfc.MetaInt(MetaWidth),
			Height:      vfc.MetaInt(MetaHeight),
		}
	}

	rec := &record.FileRecord{
		ID:          uuid.NewString(),
		Namespace:   pol.Namespace(),
		Mime:        fc.TrustedMime,
		Extension:   fc.TrustedExtension,
		Size:        fc.NormalizedSize,
		ContentHash: fc.ContentHash,
		StoragePath: primaryLoc,
		Variants:    variants,
		CreatedAt:   time.Now().UTC(),
	}

	if err := p.records.Save(ctx, rec); err != nil {
		rollback()
		return nil, &StorageError{Op: "save record", Location: rec.ID, Err: err}
	}
	return rec, nil
}
