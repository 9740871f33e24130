package image

import (
	"image"

	"golang.org/x/image/draw"
)

// Overlay is a named decorative raster with transparency.
type Overlay struct {
	Name string
	*Raster
}

// Offset returns where the overlay's top left corner lands when centered over
// the base. It may be negative when the overlay is larger than the base.
func Offset(base, overlay *Raster) image.Point {
	return image.Pt((base.Width-overlay.Width)/2, (base.Height-overlay.Height)/2)
}

// Compose blends the overlay centered over the base and returns a new fully
// opaque raster the size of base. Neither input is modified.
func Compose(base *Raster, overlay *Overlay) *Raster {
	// Create an image the size of the base image to hold the final output.
	// The output has no alpha, so base pixels are copied as opaque.
	output := image.NewRGBA(base.Bounds())
	for i := 0; i < len(base.Pix); i += 4 {
		output.Pix[i] = base.Pix[i]
		output.Pix[i+1] = base.Pix[i+1]
		output.Pix[i+2] = base.Pix[i+2]
		output.Pix[i+3] = 0xff
	}

	// Draw the overlay image onto the output image. Draw clips to the
	// intersection with the output bounds.
	offset := Offset(base, overlay.Raster)
	draw.Draw(output, overlay.Bounds().Add(offset), overlay.NRGBA(), image.Point{}, draw.Over)

	// An opaque premultiplied buffer has the same bytes as its straight form.
	return &Raster{
		Width:  base.Width,
		Height: base.Height,
		Pix:    output.Pix,
	}
}
