package pipeline

import "io"

// FileContext is the value carried through the whole pipeline. It
// accumulates claimed data, then proof results, then the normalized
// form, then variant results. Every mutation returns a new instance;
// no stage may hold on to a context after producing its successor.
type FileContext struct {
	// Claimed fields, copied from the Payload. Advisory only: after a
	// successful Prove they must never influence a downstream decision.
	ClaimedName string
	ClaimedMime string
	ClaimedSize int64

	// SourcePath is the addressable location of the original bytes, set
	// once the source has been materialized. SourceReader holds a
	// not-yet-materialized stream.
	SourcePath   string
	SourceReader io.Reader

	// Proof results. Proved is set only by a successful Strategy.Prove;
	// TrustedMime and TrustedExtension are authoritative from then on.
	Proved           bool
	TrustedMime      string
	TrustedExtension string

	// Normalized canonical form. ContentHash is computed strictly over
	// the canonical bytes, never over the original upload.
	NormalizedPath string
	NormalizedSize int64
	ContentHash    string

	// Metadata holds strategy-specific facts (pixel width/height, ...).
	Metadata map[string]any

	// Variants maps profile names to derived contexts, same shape
	// recursively.
	Variants map[string]FileContext
}

// NewContext builds the initial claimed-only context from a Payload.
func NewContext(p Payload) FileContext {
	return FileContext{
		ClaimedName:  p.ClaimedName,
		ClaimedMime:  p.ClaimedMime,
		ClaimedSize:  p.ClaimedSize,
		SourcePath:   p.Path,
		SourceReader: p.Reader,
	}
}

// WithSourcePath returns a copy whose source has been materialized to
// an addressable location. The reader is dropped: once on disk, the
// stream must not be consumed twice.
func (fc FileContext) WithSourcePath(path string) FileContext {
	out := fc.clone()
	out.SourcePath = path
	out.SourceReader = nil
	return out
}

// WithProof returns a proved copy carrying the trusted type. Only a
// Strategy calls this, and only after content sniffing and structural
// validation have both passed.
func (fc FileContext) WithProof(mime, extension string) FileContext {
	out := fc.clone()
	out.Proved = true
	out.TrustedMime = mime
	out.TrustedExtension = extension
	return out
}

// WithNormalized returns a copy pointing at the canonical re-encoded
// bytes, with their size and content hash.
func (fc FileContext) WithNormalized(path string, size int64, hash string) FileContext {
	out := fc.clone()
	out.NormalizedPath = path
	out.NormalizedSize = size
	out.ContentHash = hash
	return out
}

// WithMetadata returns a copy with one strategy-specific fact recorded.
func (fc FileContext) WithMetadata(key string, value any) FileContext {
	out := fc.clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[key] = value
	return out
}

// WithVariant returns a copy with a derived artifact attached.
func (fc FileContext) WithVariant(name string, v FileContext) FileContext {
	out := fc.clone()
	if out.Variants == nil {
		out.Variants = make(map[string]FileContext, 1)
	}
	out.Variants[name] = v
	return out
}

// Meta looks up a metadata fact.
func (fc FileContext) Meta(key string) (any, bool) {
	v, ok := fc.Metadata[key]
	return v, ok
}

// MetaInt looks up a metadata fact as an int, returning 0 when absent
// or of another type.
func (fc FileContext) MetaInt(key string) int {
	if v, ok := fc.Metadata[key]; ok {
		if i, ok := v.(int); ok {
			return i
		}
	}
	return 0
}

// clone copies the context including its maps, so that a successor
// never shares mutable state with its predecessor.
func (fc FileContext) clone() FileContext {
	out := fc
	if fc.Metadata != nil {
		out.Metadata = make(map[string]any, len(fc.Metadata))
		for k, v := range fc.Metadata {
			out.Metadata[k] = v
		}
	}
	if fc.Variants != nil {
		out.Variants = make(map[string]FileContext, len(fc.Variants))
		for k, v := range fc.Variants {
			out.Variants[k] = v
		}
	}
	return out
}
