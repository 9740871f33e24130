package image

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// DecodeSource decodes a validated source into a raster.
// Only the first frame of a GIF is decoded.
func DecodeSource(src *Source) (*Raster, error) {
	decode, _, err := getDecoder(src.Format)
	if err != nil {
		return nil, err
	}
	img, err := decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, src.Format, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s: empty image", ErrDecodeFailed, src.Format)
	}
	// A GIF frame may cover only part of the logical screen.
	if src.Format == FormatGIF && img.Bounds() != image.Rect(0, 0, src.Width, src.Height) {
		canvas := NewRaster(src.Width, src.Height)
		draw.Draw(canvas.NRGBA(), img.Bounds(), img, img.Bounds().Min, draw.Src)
		return canvas, nil
	}
	if nrgba, ok := img.(*image.NRGBA); ok {
		return fromNRGBA(nrgba), nil
	}
	return FromImage(img), nil
}
