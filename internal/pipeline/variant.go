package pipeline

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Transformer derives a new FileContext from a proved one. Transform is
// a pure function: it never mutates its input and writes its output to
// a fresh temp location.
type Transformer interface {
	// Name identifies the transformer in logs and errors.
	Name() string

	// Transform produces the derived context or fails. The input is
	// returned unchanged alongside any error.
	Transform(fc FileContext) (FileContext, error)
}

// VariantProfile names a derived artifact and the transformer chain
// that produces it. Profiles are independent of each other and of the
// primary artifact: one profile failing aborts only that variant,
// unless the profile is Mandatory.
type VariantProfile struct {
	// Name keys the variant in the FileContext and the record manifest.
	Name string

	// Suffix is appended to derived file names ("-thumb").
	Suffix string

	// Subpath is the storage subdirectory for this variant's artifact.
	Subpath string

	// Mandatory fails the whole upload when this variant's chain fails.
	Mandatory bool

	// Chain runs in order; each transformer consumes the previous output.
	Chain []Transformer
}

// Transformers returns the ordered chain for a context.
func (vp VariantProfile) Transformers(fc FileContext) []Transformer {
	return vp.Chain
}

// NameSuffix returns the file name suffix for this variant.
func (vp VariantProfile) NameSuffix() string {
	if vp.Suffix == "" {
		return "-" + vp.Name
	}
	return vp.Suffix
}

// Path returns the storage subpath for this variant.
func (vp VariantProfile) Path() string {
	return vp.Subpath
}

// Resize bounds an image to MaxWidth x MaxHeight preserving aspect
// ratio. The scale factor is the minimum of the width and height
// ratios, capped at 1.0: images are never upscaled. Alpha is preserved
// when the source carries it.
type Resize struct {
	MaxWidth  int
	MaxHeight int

	// TempDir receives the derived temp file; empty means the system
	// temp directory.
	TempDir string

	// JPEGQuality applies when the trusted format is JPEG. Zero means
	// the canonical default.
	JPEGQuality int
}

func (t Resize) Name() string { return "resize" }

func (t Resize) Transform(fc FileContext) (FileContext, error) {
	if !fc.Proved || fc.NormalizedPath == "" {
		return fc, ErrNotProved
	}

	img, err := decodeImageFile(fc.NormalizedPath)
	if err != nil {
		return fc, &DecodeError{Mime: fc.TrustedMime, Err: err}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	targetW, targetH := fitDimensions(w, h, t.MaxWidth, t.MaxHeight)

	out := img
	if targetW != w || targetH != h {
		scaled := newCanvasLike(img, targetW, targetH)
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		out = scaled
	}

	path, size, hash, err := encodeCanonical(out, fc.TrustedMime, t.JPEGQuality, t.TempDir)
	if err != nil {
		return fc, err
	}

	next := fc.WithNormalized(path, size, hash)
	next = next.WithMetadata(MetaWidth, targetW)
	next = next.WithMetadata(MetaHeight, targetH)
	return next, nil
}

// Reencode re-expresses the image in another canonical format. The
// derived context's trusted type becomes the target format: the bytes
// it points at really are that format, freshly encoded.
type Reencode struct {
	Mime string

	TempDir     string
	JPEGQuality int
}

func (t Reencode) Name() string { return "reencode" }

func (t Reencode) Transform(fc FileContext) (FileContext, error) {
	if !fc.Proved || fc.NormalizedPath == "" {
		return fc, ErrNotProved
	}

	ext, ok := canonicalExtension(t.Mime)
	if !ok {
		return fc, fmt.Errorf("reencode: no encoder for %q", t.Mime)
	}

	img, err := decodeImageFile(fc.NormalizedPath)
	if err != nil {
		return fc, &DecodeError{Mime: fc.TrustedMime, Err: err}
	}

	path, size, hash, err := encodeCanonical(img, t.Mime, t.JPEGQuality, t.TempDir)
	if err != nil {
		return fc, err
	}

	next := fc.WithProof(t.Mime, ext)
	next = next.WithNormalized(path, size, hash)
	return next, nil
}

// fitDimensions computes bounded target dimensions: the scale factor is
// min(maxW/w, maxH/h) capped at 1.0, rounded to nearest. A zero bound
// means unbounded on that axis.
func fitDimensions(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}

	scale := 1.0
	if maxW > 0 {
		if r := float64(maxW) / float64(w); r < scale {
			scale = r
		}
	}
	if maxH > 0 {
		if r := float64(maxH) / float64(h); r < scale {
			scale = r
		}
	}
	if scale >= 1.0 {
		return w, h
	}

	targetW := int(math.Round(float64(w) * scale))
	targetH := int(math.Round(float64(h) * scale))
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}
	return targetW, targetH
}

// newCanvasLike allocates the scale target, keeping an alpha channel
// when the source has one.
func newCanvasLike(src image.Image, w, h int) draw.Image {
	switch s := src.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return image.NewNRGBA(image.Rect(0, 0, w, h))
	case *image.Gray, *image.Gray16:
		return image.NewGray(image.Rect(0, 0, w, h))
	case *image.Paletted:
		// GIF re-encoding quantizes any non-paletted canvas against an
		// opaque palette, so the source palette, transparent index
		// included, must survive the resize.
		return image.NewPaletted(image.Rect(0, 0, w, h), s.Palette)
	default:
		// YCbCr and friends
		return image.NewNRGBA(image.Rect(0, 0, w, h))
	}
}
