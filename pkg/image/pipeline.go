package image

import (
	"fmt"
	"iter"
)

// Default limits.
const (
	DefaultMaxWidth     = 800
	DefaultMaxHeight    = 600
	DefaultMaxInputSize = 5 << 20
	DefaultMaxPixels    = 40_000_000
)

// Limits bounds the input accepted by a composition and the size of its
// output.
type Limits struct {
	MaxWidth     int
	MaxHeight    int
	MaxInputSize int
	MaxPixels    int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxWidth:     DefaultMaxWidth,
		MaxHeight:    DefaultMaxHeight,
		MaxInputSize: DefaultMaxInputSize,
		MaxPixels:    DefaultMaxPixels,
	}
}

// Pipeline turns untrusted image bytes into a named JPEG with an overlay
// applied. It holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	overlays Overlays
	prefix   string
	resample Resampler
}

type Option func(*Pipeline)

// WithPrefix sets the prefix of generated filenames.
func WithPrefix(prefix string) Option {
	return func(p *Pipeline) {
		p.prefix = prefix
	}
}

// WithResampler sets the filter used to downscale oversized inputs.
func WithResampler(r Resampler) Option {
	return func(p *Pipeline) {
		p.resample = r
	}
}

// New returns a pipeline that composes images with the given overlays.
func New(overlays Overlays, opts ...Option) *Pipeline {
	p := &Pipeline{
		overlays: overlays,
		prefix:   DefaultPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.resample == nil {
		p.resample, _ = ParseResampler(CatmullRom)
	}
	return p
}

// ListOverlays returns the names accepted by Compose.
func (p *Pipeline) ListOverlays() iter.Seq[string] {
	return p.overlays.List()
}

// Compose validates raw, decodes it, downscales it to the limits if needed,
// centers the named overlay over it and encodes the result as JPEG.
// It either returns a complete result or an error; it performs no I/O.
func (p *Pipeline) Compose(raw []byte, overlayName string, limits Limits) (*Result, error) {
	overlay, err := p.overlays.Get(overlayName)
	if err != nil {
		return nil, err
	}
	src, err := ValidateLimits(raw, limits)
	if err != nil {
		return nil, err
	}
	base, err := DecodeSource(src)
	if err != nil {
		return nil, err
	}
	base = Fit(base, limits.MaxWidth, limits.MaxHeight, p.resample)
	composite := Compose(base, overlay)
	result, err := Finalize(composite, p.prefix)
	if err != nil {
		return nil, fmt.Errorf("image: couldn't finalize %s: %w", overlayName, err)
	}
	return result, nil
}
