package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"testing"
)

func TestDecodeSource(t *testing.T) {
	green := color.NRGBA{G: 255, A: 255}
	tests := []struct {
		name string
		data []byte
	}{
		{"jpeg", encodeJPEG(t, solid(20, 10, green))},
		{"png", encodePNG(t, solid(20, 10, green))},
		{"gif", encodeGIF(t, paletted(20, 10, green))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Validate(tt.data, 1<<20)
			if err != nil {
				t.Fatalf("Validate() err = %v; want nil", err)
			}
			r, err := DecodeSource(src)
			if err != nil {
				t.Fatalf("DecodeSource() err = %v; want nil", err)
			}
			if r.Width != 20 || r.Height != 10 {
				t.Fatalf("DecodeSource() size = %dx%d; want 20x10", r.Width, r.Height)
			}
			if len(r.Pix) != r.Width*r.Height*4 {
				t.Fatalf("DecodeSource() len(Pix) = %d; want %d", len(r.Pix), r.Width*r.Height*4)
			}
			cr, cg, cb, ca := r.At(10, 5)
			if cr > 10 || cg < 245 || cb > 10 || ca != 255 {
				t.Fatalf("DecodeSource() pixel = %d,%d,%d,%d; want green", cr, cg, cb, ca)
			}
		})
	}
}

func TestDecodeSourceGIFFirstFrame(t *testing.T) {
	first := paletted(8, 8, color.NRGBA{R: 255, A: 255})
	second := paletted(8, 8, color.NRGBA{B: 255, A: 255})
	src, err := Validate(encodeGIF(t, first, second), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	r, err := DecodeSource(src)
	if err != nil {
		t.Fatalf("DecodeSource() err = %v; want nil", err)
	}
	if cr, _, cb, _ := r.At(4, 4); cr != 255 || cb != 0 {
		t.Fatalf("DecodeSource() pixel = %d,_,%d; want first frame (red)", cr, cb)
	}
}

func TestDecodeSourceKeepsAlpha(t *testing.T) {
	img := solid(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	src, err := Validate(encodePNG(t, img), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	r, err := DecodeSource(src)
	if err != nil {
		t.Fatalf("DecodeSource() err = %v; want nil", err)
	}
	if _, _, _, a := r.At(1, 1); a != 0 {
		t.Fatalf("DecodeSource() alpha = %d; want 0", a)
	}
	if cr, cg, cb, a := r.At(0, 0); cr != 200 || cg != 100 || cb != 50 || a != 255 {
		t.Fatalf("DecodeSource() pixel = %d,%d,%d,%d; want 200,100,50,255", cr, cg, cb, a)
	}
}

func TestDecodeSourceFailure(t *testing.T) {
	// A JPEG whose header is intact but whose scan data is cut off.
	data := encodeJPEG(t, noise(256, 256))
	src, err := Validate(data[:len(data)/2], 1<<20)
	if err != nil {
		t.Fatalf("Validate() err = %v; want nil", err)
	}
	r, err := DecodeSource(src)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("DecodeSource() err = %v; want %v", err, ErrDecodeFailed)
	}
	if r != nil {
		t.Fatalf("DecodeSource() raster = %v; want nil", r)
	}

	// Format tag disagreeing with the content.
	_, err = DecodeSource(&Source{Data: data, Format: FormatPNG})
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("DecodeSource() err = %v; want %v", err, ErrDecodeFailed)
	}
}

func TestFromImageOffsetBounds(t *testing.T) {
	img := solid(10, 10, color.NRGBA{B: 255, A: 255}).SubImage(image.Rect(5, 5, 10, 10))
	r := FromImage(img)
	if r.Width != 5 || r.Height != 5 {
		t.Fatalf("FromImage() size = %dx%d; want 5x5", r.Width, r.Height)
	}
	if _, _, cb, _ := r.At(0, 0); cb != 255 {
		t.Fatalf("FromImage() pixel blue = %d; want 255", cb)
	}
}

func TestDecodeSourceGIFPartialFrame(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	frame := image.NewPaletted(image.Rect(10, 10, 50, 50), color.Palette{red, color.Black})
	var buf bytes.Buffer
	g := &gif.GIF{
		Image:  []*image.Paletted{frame},
		Delay:  []int{0},
		Config: image.Config{Width: 100, Height: 100},
	}
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatal(err)
	}
	src, err := Validate(buf.Bytes(), 1<<20)
	if err != nil {
		t.Fatalf("Validate() err = %v; want nil", err)
	}
	r, err := DecodeSource(src)
	if err != nil {
		t.Fatalf("DecodeSource() err = %v; want nil", err)
	}
	if r.Width != src.Width || r.Height != src.Height || r.Width != 100 || r.Height != 100 {
		t.Fatalf("DecodeSource() = %dx%d; want 100x100", r.Width, r.Height)
	}
	if cr, cg, cb, ca := r.At(30, 30); cr != 255 || cg != 0 || cb != 0 || ca != 255 {
		t.Errorf("pixel inside frame = %d,%d,%d,%d; want red", cr, cg, cb, ca)
	}
	if cr, cg, cb, ca := r.At(10, 10); cr != 255 || ca != 255 {
		t.Errorf("frame corner = %d,%d,%d,%d; want red", cr, cg, cb, ca)
	}
	for _, p := range []image.Point{{5, 5}, {60, 60}, {99, 0}} {
		if _, _, _, ca := r.At(p.X, p.Y); ca != 0 {
			t.Errorf("pixel %v outside frame alpha = %d; want 0", p, ca)
		}
	}
}
