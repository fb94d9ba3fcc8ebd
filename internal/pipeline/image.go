package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"slices"
)

func init() {
	RegisterStrategy("image", func(opts Options) Strategy {
		return NewImageStrategy(opts)
	})
}

// ImageStrategy proves and canonicalizes raster images. The full
// decode/re-encode cycle is the security boundary: metadata blocks,
// steganographic payloads, and malformed structural edge cases cannot
// survive an encoder round-trip, so the original bytes are discarded
// and only regenerated bytes move downstream.
type ImageStrategy struct {
	maxBytes    int64
	allowed     []string
	jpegQuality int
	tempDir     string
}

// NewImageStrategy builds the strategy from policy options.
func NewImageStrategy(opts Options) *ImageStrategy {
	return &ImageStrategy{
		maxBytes:    opts.Images.MaxBytes,
		allowed:     opts.Images.AllowedMimes,
		jpegQuality: opts.Images.JPEGQuality,
		tempDir:     opts.Storage.TempDir,
	}
}

// Family implements Strategy.
func (s *ImageStrategy) Family() string { return "image" }

// Prove implements Strategy. Order: claimed-size ceiling, materialize,
// content sniff, allow-list, structural validation, full decode and
// canonical re-encode, hash. Every error is a terminal rejection of
// this upload, never a transient fault.
func (s *ImageStrategy) Prove(ctx context.Context, fc FileContext) (FileContext, error) {
	if c, ok := fc.SourceReader.(io.Closer); ok {
		// The source stream never outlives the prove call, accepted or
		// rejected.
		defer c.Close()
	}

	if fc.ClaimedSize > s.maxBytes {
		return fc, &SizeError{Claimed: fc.ClaimedSize, Limit: s.maxBytes}
	}

	srcPath, owned, err := s.materialize(fc)
	if err != nil {
		return fc, err
	}
	if owned {
		// The materialized copy of the untrusted bytes never outlives
		// the prove call.
		defer os.Remove(srcPath)
	}

	if info, err := os.Stat(srcPath); err != nil {
		return fc, &DecodeError{Mime: fc.ClaimedMime, Err: err}
	} else if info.Size() > s.maxBytes {
		return fc, &SizeError{Claimed: fc.ClaimedSize, Actual: info.Size(), Limit: s.maxBytes}
	}

	sniffed, err := sniffMime(srcPath)
	if err != nil {
		return fc, &DecodeError{Mime: fc.ClaimedMime, Err: err}
	}

	if !slices.Contains(s.allowed, sniffed) {
		return fc, &SpoofError{Claimed: fc.ClaimedMime, Sniffed: sniffed}
	}

	if err := ctx.Err(); err != nil {
		return fc, &DecodeError{Mime: sniffed, Err: err}
	}

	width, height, err := validateStructure(srcPath, sniffed)
	if err != nil {
		return fc, err
	}

	img, err := decodeImageFile(srcPath)
	if err != nil {
		return fc, &DecodeError{Mime: sniffed, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fc, &DecodeError{Mime: sniffed, Err: err}
	}

	trusted := canonicalMime(sniffed)
	ext, _ := canonicalExtension(trusted)

	canonPath, size, hash, err := encodeCanonical(img, trusted, s.jpegQuality, s.tempDir)
	if err != nil {
		return fc, err
	}

	out := NewContext(Payload{
		ClaimedName: fc.ClaimedName,
		ClaimedMime: fc.ClaimedMime,
		ClaimedSize: fc.ClaimedSize,
	})
	out = out.WithProof(trusted, ext)
	out = out.WithNormalized(canonPath, size, hash)
	out = out.WithMetadata(MetaWidth, width)
	out = out.WithMetadata(MetaHeight, height)
	return out, nil
}

// Normalize implements Strategy. Image proof already produced the
// canonical form, so normalization is a committed no-op: idempotent
// given the same proved context.
func (s *ImageStrategy) Normalize(ctx context.Context, fc FileContext) (FileContext, error) {
	if !fc.Proved {
		return fc, ErrNotProved
	}
	if fc.NormalizedPath == "" {
		return fc, &DecodeError{Mime: fc.TrustedMime, Err: fmt.Errorf("proved context has no canonical form")}
	}
	return fc, nil
}

// materialize ensures the source is an addressable file, draining a
// stream source to a bounded temp file when necessary. The bool return
// reports whether the strategy owns (and must remove) the file.
func (s *ImageStrategy) materialize(fc FileContext) (string, bool, error) {
	if fc.SourcePath != "" {
		return fc.SourcePath, false, nil
	}
	if fc.SourceReader == nil {
		return "", false, ErrMissingPayload
	}

	f, err := os.CreateTemp(s.tempDir, "filevet-src-*")
	if err != nil {
		return "", false, &StorageError{Op: "create temp", Location: s.tempDir, Err: err}
	}

	// Drain at most one byte past the ceiling so overlong streams are
	// caught without buffering them whole.
	n, copyErr := io.Copy(f, io.LimitReader(fc.SourceReader, s.maxBytes+1))
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(f.Name())
		return "", false, &DecodeError{Mime: fc.ClaimedMime, Err: copyErr}
	}
	if n > s.maxBytes {
		os.Remove(f.Name())
		return "", false, &SizeError{Claimed: fc.ClaimedSize, Actual: n, Limit: s.maxBytes}
	}

	return f.Name(), true, nil
}

// validateStructure decodes only the image header and applies the
// family's structural checks.
func validateStructure(path, mime string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, &DecodeError{Mime: mime, Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, &StructureError{Mime: mime, Reason: fmt.Sprintf("undecodable header: %v", err)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, &StructureError{Mime: mime, Reason: fmt.Sprintf("non-positive dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	return cfg.Width, cfg.Height, nil
}
