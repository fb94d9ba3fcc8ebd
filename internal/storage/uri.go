package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Uri resolver errors.
var (
	// ErrPathTraversal is returned for locations containing ".." segments.
	ErrPathTraversal = errors.New("path traversal rejected")

	// ErrInvalidName is returned for filenames carrying embedded
	// separators or control characters.
	ErrInvalidName = errors.New("invalid file name")
)

// Uri resolves scheme-qualified relative locations into the absolute,
// pre-resolved form Stores expect. All path normalization and
// injection rejection happens here, upstream of any Store.
type Uri struct {
	// Scheme labels the target store ("file", "s3"). Informational:
	// the resolved location carries no scheme.
	Scheme string
}

// Resolve joins namespace and relative path segments into a clean
// slash-separated location. Rejects ".." traversal, absolute paths,
// and empty results.
func (u Uri) Resolve(namespace string, segments ...string) (string, error) {
	parts := make([]string, 0, len(segments)+1)
	if namespace != "" {
		parts = append(parts, namespace)
	}
	parts = append(parts, segments...)

	for _, p := range parts {
		if strings.Contains(p, "..") {
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, p)
		}
	}

	joined := path.Join(parts...)
	cleaned := path.Clean(joined)
	cleaned = strings.TrimPrefix(cleaned, "/")

	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: empty location", ErrInvalidName)
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, joined)
	}
	return cleaned, nil
}

// ValidateFilename rejects names that attempt filename injection: path
// separators, traversal, NUL bytes, or emptiness.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidName, name)
	}
	return nil
}
