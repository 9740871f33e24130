package image

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resampler scales a raster to exactly width x height.
type Resampler func(src *Raster, width, height int) *Raster

// Resampler names accepted by ParseResampler.
const (
	CatmullRom = "catmullrom"
	BiLinear   = "bilinear"
	Box        = "box"
	Lanczos    = "lanczos"
)

// ParseResampler returns the resampler registered under name.
// An empty name selects catmullrom.
func ParseResampler(name string) (Resampler, error) {
	switch name {
	case "", CatmullRom:
		return kernelResampler(draw.CatmullRom), nil
	case BiLinear:
		return kernelResampler(draw.BiLinear), nil
	case Box:
		return func(src *Raster, width, height int) *Raster {
			return fromNRGBA(imaging.Resize(src.NRGBA(), width, height, imaging.Box))
		}, nil
	case Lanczos:
		return func(src *Raster, width, height int) *Raster {
			out := resize.Resize(uint(width), uint(height), src.NRGBA(), resize.Lanczos3)
			if nrgba, ok := out.(*image.NRGBA); ok {
				return fromNRGBA(nrgba)
			}
			return FromImage(out)
		}, nil
	default:
		return nil, fmt.Errorf("image: unknown resampler %q", name)
	}
}

func kernelResampler(k *draw.Kernel) Resampler {
	return func(src *Raster, width, height int) *Raster {
		dst := NewRaster(width, height)
		k.Scale(dst.NRGBA(), dst.Bounds(), src.NRGBA(), src.Bounds(), draw.Src, nil)
		return dst
	}
}

// FitSize returns the dimensions of a width x height image scaled down to fit
// within maxWidth x maxHeight, keeping the aspect ratio. Images that already
// fit are returned unchanged.
func FitSize(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	// Compare maxWidth/width against maxHeight/height without floats so the
	// result is floor(dim*scale) exactly.
	var w, h int
	if int64(maxWidth)*int64(height) <= int64(maxHeight)*int64(width) {
		w = maxWidth
		h = int(int64(height) * int64(maxWidth) / int64(width))
	} else {
		h = maxHeight
		w = int(int64(width) * int64(maxHeight) / int64(height))
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Fit downscales r to fit within maxWidth x maxHeight. It never upscales and
// returns r itself when no scaling is needed. A bound <= 0 leaves that axis
// unbounded.
func Fit(r *Raster, maxWidth, maxHeight int, resample Resampler) *Raster {
	if maxWidth <= 0 && maxHeight <= 0 {
		return r
	}
	if maxWidth <= 0 {
		maxWidth = r.Width
	}
	if maxHeight <= 0 {
		maxHeight = r.Height
	}
	w, h := FitSize(r.Width, r.Height, maxWidth, maxHeight)
	if w == r.Width && h == r.Height {
		return r
	}
	if resample == nil {
		resample = kernelResampler(draw.CatmullRom)
	}
	return resample(r, w, h)
}
