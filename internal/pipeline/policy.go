package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/filevet/filevet/internal/storage"
)

// Options is the nested per-policy configuration. Defaults are merged
// under caller overrides via Merge; the merge is deep, so a partial
// override of one section leaves the other sections' defaults intact.
type Options struct {
	Images  ImageOptions
	Storage StorageOptions
	Prove   ProveOptions
}

// ImageOptions configures the image strategy.
type ImageOptions struct {
	// MaxBytes is the hard ceiling for a single image upload, checked
	// against both the claimed size and the bytes actually drained.
	MaxBytes int64

	// AllowedMimes is the allow-list checked against the content-sniffed
	// type. The claimed MIME never participates.
	AllowedMimes []string

	// JPEGQuality is the quality used when re-encoding canonical JPEG.
	JPEGQuality int
}

// StorageOptions configures where canonical bytes land.
type StorageOptions struct {
	// TempDir holds canonical temp files during prove/normalize.
	// Empty means the system temp directory.
	TempDir string
}

// ProveOptions bounds the prove call.
type ProveOptions struct {
	// Timeout wraps the whole Prove call; on expiry the upload is
	// rejected with a DecodeError.
	Timeout time.Duration
}

// DefaultOptions returns the baseline option set policies start from.
func DefaultOptions() Options {
	return Options{
		Images: ImageOptions{
			MaxBytes:     20 * 1024 * 1024,
			AllowedMimes: []string{"image/png", "image/jpeg", "image/gif", "image/webp"},
			JPEGQuality:  85,
		},
		Prove: ProveOptions{
			Timeout: 30 * time.Second,
		},
	}
}

// Merge returns a copy of o with every non-zero field of overrides
// applied, section by section. Neither receiver nor argument is
// mutated.
func (o Options) Merge(overrides Options) Options {
	out := o

	if overrides.Images.MaxBytes != 0 {
		out.Images.MaxBytes = overrides.Images.MaxBytes
	}
	if len(overrides.Images.AllowedMimes) > 0 {
		out.Images.AllowedMimes = append([]string(nil), overrides.Images.AllowedMimes...)
	}
	if overrides.Images.JPEGQuality != 0 {
		out.Images.JPEGQuality = overrides.Images.JPEGQuality
	}

	if overrides.Storage.TempDir != "" {
		out.Storage.TempDir = overrides.Storage.TempDir
	}

	if overrides.Prove.Timeout != 0 {
		out.Prove.Timeout = overrides.Prove.Timeout
	}

	return out
}

// Lookup resolves a dotted option path ("images.max_bytes") for the
// external configuration surface. Returns false for unknown paths.
func (o Options) Lookup(path string) (any, bool) {
	switch strings.ToLower(path) {
	case "images.max_bytes":
		return o.Images.MaxBytes, true
	case "images.allowed_mimes":
		return o.Images.AllowedMimes, true
	case "images.jpeg_quality":
		return o.Images.JPEGQuality, true
	case "storage.temp_dir":
		return o.Storage.TempDir, true
	case "prove.timeout":
		return o.Prove.Timeout, true
	default:
		return nil, false
	}
}

// Policy binds one upload use case ("avatar", "evidence photo") to a
// strategy family, MIME allow-list, filter chain, variant set, and
// storage target. A policy is immutable after construction except
// through With, which copies.
type Policy struct {
	// Family selects the registered Strategy ("image").
	Family string

	// Accept narrows the strategy's MIME allow-list. Empty means the
	// option defaults apply.
	Accept []string

	// FilterChain runs in order on the proved, normalized context.
	FilterChain []Filter

	// Profiles derive named secondary artifacts.
	Profiles []VariantProfile

	// Target receives canonical bytes at StorePath locations.
	Target storage.Store

	// Space is the logical namespace bucketing this policy's files.
	Space string

	// PathTemplate expands to the storage path. Recognized placeholders:
	// {namespace}, {hash}, {ext}, {variant}. Empty means the default
	// "{namespace}/{hash}.{ext}".
	PathTemplate string

	// Opts are the policy's merged options.
	Opts Options
}

// NewPolicy builds a policy for a strategy family with defaults merged
// under the given overrides.
func NewPolicy(family string, target storage.Store, overrides Options) *Policy {
	return &Policy{
		Family: family,
		Target: target,
		Opts:   DefaultOptions().Merge(overrides),
	}
}

// With returns a copy of the policy with additional option overrides
// merged in. The receiver is never mutated.
func (p *Policy) With(overrides Options) *Policy {
	out := *p
	out.Accept = append([]string(nil), p.Accept...)
	out.FilterChain = append([]Filter(nil), p.FilterChain...)
	out.Profiles = append([]VariantProfile(nil), p.Profiles...)
	out.Opts = p.Opts.Merge(overrides)
	return &out
}

// Strategy resolves the strategy for this policy's family, with the
// policy's allow-list applied.
func (p *Policy) Strategy(fc FileContext) (Strategy, error) {
	opts := p.Opts
	if len(p.Accept) > 0 {
		opts.Images.AllowedMimes = p.Accept
	}
	s, ok := StrategyFor(p.Family, opts)
	if !ok {
		return nil, fmt.Errorf("no strategy registered for family %q", p.Family)
	}
	return s, nil
}

// Mimes returns the effective MIME allow-list.
func (p *Policy) Mimes() []string {
	if len(p.Accept) > 0 {
		return p.Accept
	}
	return p.Opts.Images.AllowedMimes
}

// Filters returns the ordered filter chain for a context.
func (p *Policy) Filters(fc FileContext) []Filter {
	return p.FilterChain
}

// Transformers returns the transformer chain per variant name.
func (p *Policy) Transformers(fc FileContext) map[string][]Transformer {
	out := make(map[string][]Transformer, len(p.Profiles))
	for _, profile := range p.Profiles {
		out[profile.Name] = profile.Transformers(fc)
	}
	return out
}

// Store returns the byte store for a context.
func (p *Policy) Store(fc FileContext) storage.Store {
	return p.Target
}

// Namespace returns the policy's logical namespace.
func (p *Policy) Namespace() string {
	return p.Space
}

// StorePath expands the path template for a proved context. The
// variant argument is empty for the primary artifact.
func (p *Policy) StorePath(fc FileContext, variant string) string {
	tmpl := p.PathTemplate
	if tmpl == "" {
		tmpl = "{namespace}/{hash}.{ext}"
	}

	name := fc.ContentHash
	if variant != "" {
		name = fc.ContentHash + "-" + variant
	}

	r := strings.NewReplacer(
		"{namespace}", p.Space,
		"{hash}", name,
		"{ext}", fc.TrustedExtension,
		"{variant}", variant,
	)
	return strings.Trim(r.Replace(tmpl), "/")
}
