package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for the entry stage. These indicate caller mistakes,
// not hostile input: the raw source handed to ToPayload was the wrong
// shape or had no bytes attached at all.
var (
	// ErrUnsupportedSource is returned when the raw input type handed to
	// an entry adapter is not one of the recognized source shapes.
	ErrUnsupportedSource = errors.New("unsupported upload source type")

	// ErrMissingPayload is returned when a recognized source carries no
	// byte source (no path and no reader).
	ErrMissingPayload = errors.New("no payload attached to upload source")

	// ErrNotProved guards every stage downstream of Prove. A context that
	// has not passed the trust boundary must never reach normalization,
	// filters, transformers, or a store.
	ErrNotProved = errors.New("file context has not been proved")
)

// SizeError rejects an upload whose claimed or actual size is outside
// the family's hard ceiling.
type SizeError struct {
	Claimed int64 // size as reported by the untrusted origin (0 if unknown)
	Actual  int64 // bytes actually observed, if the source was drained
	Limit   int64
}

func (e *SizeError) Error() string {
	if e.Actual > 0 {
		return fmt.Sprintf("size violation: %d bytes exceeds limit of %d", e.Actual, e.Limit)
	}
	return fmt.Sprintf("size violation: claimed %d bytes exceeds limit of %d", e.Claimed, e.Limit)
}

// SpoofError rejects an upload whose content-sniffed MIME type is not in
// the strategy's allow-list. The claimed MIME is recorded for logging
// only; it played no part in the decision.
type SpoofError struct {
	Claimed string
	Sniffed string
}

func (e *SpoofError) Error() string {
	return fmt.Sprintf("spoofed type: content is %q, claimed %q", e.Sniffed, e.Claimed)
}

// StructureError rejects bytes that sniff as an accepted type but fail
// the family's structural checks (unparseable header, non-positive
// dimensions, and so on).
type StructureError struct {
	Mime   string
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("structural validation failed for %s: %s", e.Mime, e.Reason)
}

// DecodeError rejects an upload the canonical decoder could not
// materialize. A prove timeout is reported as a DecodeError as well:
// either way the bytes never produced a canonical form.
type DecodeError struct {
	Mime string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Mime, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PolicyError rejects an already-proved file on a business rule. The
// file was structurally sound; a filter declined it.
type PolicyError struct {
	Filter string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Filter, e.Reason)
}

// StorageError wraps a failure to persist bytes or metadata. It is
// surfaced to the caller unchanged; the pipeline does not retry.
type StorageError struct {
	Op       string // "write", "delete", "save record", ...
	Location string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// VariantError reports the failure of a single mandatory variant chain.
// Optional variant failures are logged and dropped, never returned.
type VariantError struct {
	Variant string
	Err     error
}

func (e *VariantError) Error() string {
	return fmt.Sprintf("variant %q: %v", e.Variant, e.Err)
}

func (e *VariantError) Unwrap() error { return e.Err }
