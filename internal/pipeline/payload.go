package pipeline

import (
	"io"
	"mime/multipart"
)

// Payload is the immutable descriptor of a claimed, not-yet-trusted
// file. Every field is advisory until a Strategy proves the content:
// the name, MIME type, and size are whatever the untrusted origin said
// they were.
type Payload struct {
	ClaimedName string
	ClaimedMime string
	ClaimedSize int64

	// Exactly one of Path or Reader locates the bytes. Path points at an
	// already-addressable location (a transfer temp file); Reader is a
	// stream that has not been materialized yet.
	Path   string
	Reader io.Reader
}

// HasSource reports whether the payload carries any byte source.
func (p Payload) HasSource() bool {
	return p.Path != "" || p.Reader != nil
}

// TransferRecord is the raw transfer-protocol shape: the four-field
// tuple a form upload arrives as before any wrapping.
type TransferRecord struct {
	Name    string
	Mime    string
	Size    int64
	TmpPath string
}

// FromMultipart adapts a parsed multipart file header into a Payload.
// The part is opened but not read; content validation belongs to the
// Strategy, never to the entry stage.
func FromMultipart(fh *multipart.FileHeader) (Payload, error) {
	if fh == nil {
		return Payload{}, ErrMissingPayload
	}
	f, err := fh.Open()
	if err != nil {
		return Payload{}, ErrMissingPayload
	}
	return Payload{
		ClaimedName: fh.Filename,
		ClaimedMime: fh.Header.Get("Content-Type"),
		ClaimedSize: fh.Size,
		Reader:      f,
	}, nil
}

// FromTransferRecord adapts a raw transfer-protocol record.
func FromTransferRecord(rec TransferRecord) (Payload, error) {
	if rec.TmpPath == "" {
		return Payload{}, ErrMissingPayload
	}
	return Payload{
		ClaimedName: rec.Name,
		ClaimedMime: rec.Mime,
		ClaimedSize: rec.Size,
		Path:        rec.TmpPath,
	}, nil
}

// FromReader adapts an arbitrary byte stream with claimed metadata.
func FromReader(name, mime string, size int64, r io.Reader) (Payload, error) {
	if r == nil {
		return Payload{}, ErrMissingPayload
	}
	return Payload{
		ClaimedName: name,
		ClaimedMime: mime,
		ClaimedSize: size,
		Reader:      r,
	}, nil
}

// ToPayload normalizes any recognized raw source into a Payload. It is
// a pure repackaging step: no bytes are read and nothing is validated.
func ToPayload(raw any) (Payload, error) {
	switch v := raw.(type) {
	case nil:
		return Payload{}, ErrMissingPayload
	case Payload:
		if !v.HasSource() {
			return Payload{}, ErrMissingPayload
		}
		return v, nil
	case *Payload:
		if v == nil || !v.HasSource() {
			return Payload{}, ErrMissingPayload
		}
		return *v, nil
	case *multipart.FileHeader:
		return FromMultipart(v)
	case TransferRecord:
		return FromTransferRecord(v)
	case *TransferRecord:
		if v == nil {
			return Payload{}, ErrMissingPayload
		}
		return FromTransferRecord(*v)
	default:
		return Payload{}, ErrUnsupportedSource
	}
}
