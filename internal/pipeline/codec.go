package pipeline

// codec.go holds the shared decode/encode primitives behind the trust
// boundary. Canonical bytes are always produced by an encoder in this
// file — original upload bytes are never forwarded.

import (
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	_ "golang.org/x/image/webp" // decode-only; webp canonicalizes to png
)

// DefaultJPEGQuality is used when a policy does not set its own.
const DefaultJPEGQuality = 85

// canonicalExtension maps a trusted MIME type to the extension of its
// canonical encoding. The second return is false for types this module
// cannot encode.
func canonicalExtension(mime string) (string, bool) {
	switch mime {
	case "image/png":
		return "png", true
	case "image/jpeg":
		return "jpg", true
	case "image/gif":
		return "gif", true
	default:
		return "", false
	}
}

// canonicalMime maps a sniffed MIME to the MIME of its canonical
// re-encoding. WebP decodes fine but x/image carries no encoder, so its
// canonical form is PNG.
func canonicalMime(sniffed string) string {
	if sniffed == "image/webp" {
		return "image/png"
	}
	return sniffed
}

// sniffMime detects the real MIME type from the first bytes of a file.
// The claimed MIME never participates.
func sniffMime(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}

	mime := http.DetectContentType(buf[:n])
	// DetectContentType may append parameters ("text/plain; charset=utf-8").
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime, nil
}

// decodeImageFile fully materializes an image from disk.
func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// encodeCanonical writes the canonical encoding of img to a fresh temp
// file, hashing the canonical bytes as they are written. Returns the
// temp path, byte size, and hex BLAKE3 digest. The caller owns the temp
// file and must remove it on every failure path.
func encodeCanonical(img image.Image, mime string, jpegQuality int, tempDir string) (string, int64, string, error) {
	ext, ok := canonicalExtension(mime)
	if !ok {
		return "", 0, "", fmt.Errorf("no canonical encoder for %q", mime)
	}

	f, err := os.CreateTemp(tempDir, "filevet-*."+ext)
	if err != nil {
		return "", 0, "", &StorageError{Op: "create temp", Location: tempDir, Err: err}
	}

	hasher := blake3.New()
	counter := &countingWriter{w: io.MultiWriter(f, hasher)}

	switch mime {
	case "image/png":
		err = png.Encode(counter, img)
	case "image/jpeg":
		q := jpegQuality
		if q <= 0 {
			q = DefaultJPEGQuality
		}
		err = jpeg.Encode(counter, img, &jpeg.Options{Quality: q})
	case "image/gif":
		err = gif.Encode(counter, img, nil)
	}

	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, "", &DecodeError{Mime: mime, Err: err}
	}

	return f.Name(), counter.n, hex.EncodeToString(hasher.Sum(nil)), nil
}

// hashFile returns the hex BLAKE3 digest and size of a file's bytes.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hasher := blake3.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
