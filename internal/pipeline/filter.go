package pipeline

import "fmt"

// Metadata keys populated by the image strategy and consumed by
// filters and transformers.
const (
	MetaWidth  = "width"
	MetaHeight = "height"
)

// Filter is a post-normalization business rule. Filters run only on
// already-proved contexts, never mutate trust fields, and reject with
// a *PolicyError carrying a human-readable reason. Structural trust is
// the Strategy's job; filters express what the use case will accept.
type Filter interface {
	// Name identifies the filter in rejection reasons and logs.
	Name() string

	// Apply returns the context unchanged or a *PolicyError.
	Apply(fc FileContext) (FileContext, error)
}

// MaxDimensions rejects images wider or taller than the given bounds.
type MaxDimensions struct {
	Width  int
	Height int
}

func (f MaxDimensions) Name() string { return "max_dimensions" }

func (f MaxDimensions) Apply(fc FileContext) (FileContext, error) {
	if !fc.Proved {
		return fc, ErrNotProved
	}
	w, h := fc.MetaInt(MetaWidth), fc.MetaInt(MetaHeight)
	if (f.Width > 0 && w > f.Width) || (f.Height > 0 && h > f.Height) {
		return fc, &PolicyError{
			Filter: f.Name(),
			Reason: fmt.Sprintf("image is %dx%d, maximum allowed is %dx%d", w, h, f.Width, f.Height),
		}
	}
	return fc, nil
}

// MinDimensions rejects images smaller than the given bounds.
type MinDimensions struct {
	Width  int
	Height int
}

func (f MinDimensions) Name() string { return "min_dimensions" }

func (f MinDimensions) Apply(fc FileContext) (FileContext, error) {
	if !fc.Proved {
		return fc, ErrNotProved
	}
	w, h := fc.MetaInt(MetaWidth), fc.MetaInt(MetaHeight)
	if w < f.Width || h < f.Height {
		return fc, &PolicyError{
			Filter: f.Name(),
			Reason: fmt.Sprintf("image is %dx%d, minimum required is %dx%d", w, h, f.Width, f.Height),
		}
	}
	return fc, nil
}

// AspectRatio rejects images whose width/height ratio deviates from
// Width:Height by more than Tolerance (a fraction, e.g. 0.01 for 1%).
type AspectRatio struct {
	Width     int
	Height    int
	Tolerance float64
}

func (f AspectRatio) Name() string { return "aspect_ratio" }

func (f AspectRatio) Apply(fc FileContext) (FileContext, error) {
	if !fc.Proved {
		return fc, ErrNotProved
	}
	w, h := fc.MetaInt(MetaWidth), fc.MetaInt(MetaHeight)
	if h == 0 || f.Height == 0 {
		return fc, &PolicyError{Filter: f.Name(), Reason: "image has no measurable aspect ratio"}
	}

	got := float64(w) / float64(h)
	want := float64(f.Width) / float64(f.Height)
	tol := f.Tolerance
	if tol == 0 {
		tol = 0.01
	}

	if diff := got - want; diff > want*tol || diff < -want*tol {
		return fc, &PolicyError{
			Filter: f.Name(),
			Reason: fmt.Sprintf("image aspect ratio %dx%d does not match required %d:%d", w, h, f.Width, f.Height),
		}
	}
	return fc, nil
}
