package image

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

// Format is one of the raster formats accepted as input.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatGIF
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatGIF:
		return "gif"
	default:
		return "unknown"
	}
}

// MIME returns the canonical content type of the format.
func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

type Decode func(io.Reader) (image.Image, error)

type DecodeConfig func(io.Reader) (image.Config, error)

func getDecoder(f Format) (Decode, DecodeConfig, error) {
	switch f {
	case FormatJPEG:
		return jpeg.Decode, jpeg.DecodeConfig, nil
	case FormatPNG:
		return png.Decode, png.DecodeConfig, nil
	case FormatGIF:
		// gif.Decode only returns the first frame
		return gif.Decode, gif.DecodeConfig, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// Raster is an in-memory image with straight (non premultiplied) RGBA pixels,
// 8 bits per channel, rows stored contiguously.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRaster returns a transparent raster of the given size.
func NewRaster(width, height int) *Raster {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("image: invalid raster size %dx%d", width, height))
	}
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// NRGBA returns a view of the raster sharing its pixel buffer.
func (r *Raster) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.Pix,
		Stride: r.Width * 4,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

// Bounds returns the raster rectangle anchored at the origin.
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// At returns the RGBA components of the pixel at (x, y).
func (r *Raster) At(x, y int) (uint8, uint8, uint8, uint8) {
	i := (y*r.Width + x) * 4
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2], r.Pix[i+3]
}

// FromImage copies any image into a new raster anchored at the origin.
func FromImage(src image.Image) *Raster {
	b := src.Bounds()
	r := NewRaster(b.Dx(), b.Dy())
	draw.Draw(r.NRGBA(), r.Bounds(), src, b.Min, draw.Src)
	return r
}

func fromNRGBA(img *image.NRGBA) *Raster {
	b := img.Bounds()
	if b.Min == (image.Point{}) && img.Stride == b.Dx()*4 && len(img.Pix) == b.Dx()*b.Dy()*4 {
		return &Raster{Width: b.Dx(), Height: b.Dy(), Pix: img.Pix}
	}
	return FromImage(img)
}
