package image

import (
	"bytes"
	"image/color"
	"math"
	"testing"
)

func TestFitSmallIsUnchanged(t *testing.T) {
	tests := []struct {
		w, h int
	}{
		{800, 600},
		{640, 480},
		{1, 1},
		{800, 1},
		{10, 600},
	}
	for _, tt := range tests {
		in := fromNRGBA(noise(tt.w, tt.h))
		pix := bytes.Clone(in.Pix)
		out := Fit(in, 800, 600, nil)
		if out != in {
			t.Fatalf("Fit(%dx%d) returned a new raster; want the input", tt.w, tt.h)
		}
		if out.Width != tt.w || out.Height != tt.h {
			t.Fatalf("Fit(%dx%d) = %dx%d; want unchanged", tt.w, tt.h, out.Width, out.Height)
		}
		if !bytes.Equal(out.Pix, pix) {
			t.Fatalf("Fit(%dx%d) changed pixel data", tt.w, tt.h)
		}
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		w, h, mw, mh int
		wantW, wantH int
	}{
		{4000, 3000, 800, 600, 800, 600},
		{1600, 1200, 800, 600, 800, 600},
		{1000, 100, 800, 600, 800, 80},
		{300, 1200, 800, 600, 150, 600},
		{1001, 333, 800, 600, 800, 266},
		{801, 600, 800, 600, 800, 599},
		{10000, 1, 800, 600, 800, 1},
		{640, 480, 800, 600, 640, 480},
	}
	for _, tt := range tests {
		w, h := FitSize(tt.w, tt.h, tt.mw, tt.mh)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("FitSize(%d, %d, %d, %d) = %d, %d; want %d, %d", tt.w, tt.h, tt.mw, tt.mh, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestFitAspectRatio(t *testing.T) {
	tests := []struct {
		w, h int
	}{
		{4000, 3000},
		{1920, 1080},
		{1080, 1920},
		{2048, 2048},
		{3333, 1111},
		{1234, 987},
	}
	for _, tt := range tests {
		w, h := FitSize(tt.w, tt.h, 800, 600)
		if w > 800 || h > 600 {
			t.Fatalf("FitSize(%d, %d) = %d, %d; exceeds bounds", tt.w, tt.h, w, h)
		}
		in := float64(tt.w) / float64(tt.h)
		out := float64(w) / float64(h)
		// Flooring one side changes the ratio by at most one pixel's worth.
		eps := (in + 1) / float64(h)
		if math.Abs(in-out) > eps {
			t.Errorf("FitSize(%d, %d) ratio = %f; want %f (eps %f)", tt.w, tt.h, out, in, eps)
		}
	}
}

func TestFitResamplers(t *testing.T) {
	in := fromNRGBA(solid(1600, 1200, color.NRGBA{R: 100, G: 150, B: 200, A: 255}))
	for _, name := range []string{"", CatmullRom, BiLinear, Box, Lanczos} {
		t.Run(name, func(t *testing.T) {
			resample, err := ParseResampler(name)
			if err != nil {
				t.Fatalf("ParseResampler(%q) err = %v; want nil", name, err)
			}
			out := Fit(in, 800, 600, resample)
			if out.Width != 800 || out.Height != 600 {
				t.Fatalf("Fit() = %dx%d; want 800x600", out.Width, out.Height)
			}
			if len(out.Pix) != 800*600*4 {
				t.Fatalf("Fit() len(Pix) = %d; want %d", len(out.Pix), 800*600*4)
			}
			// A flat color must survive any quality filter.
			cr, cg, cb, ca := out.At(400, 300)
			if absDiff(cr, 100) > 1 || absDiff(cg, 150) > 1 || absDiff(cb, 200) > 1 || ca != 255 {
				t.Fatalf("Fit() pixel = %d,%d,%d,%d; want 100,150,200,255", cr, cg, cb, ca)
			}
			again := Fit(in, 800, 600, resample)
			if !bytes.Equal(out.Pix, again.Pix) {
				t.Fatalf("Fit() isn't deterministic")
			}
		})
	}
}

func TestFitDoesNotMutateInput(t *testing.T) {
	in := fromNRGBA(noise(400, 300))
	pix := bytes.Clone(in.Pix)
	_ = Fit(in, 200, 100, nil)
	if !bytes.Equal(in.Pix, pix) {
		t.Fatalf("Fit() mutated its input")
	}
}

func TestParseResamplerUnknown(t *testing.T) {
	if _, err := ParseResampler("nearest"); err == nil {
		t.Fatalf("ParseResampler(nearest) err = nil; want error")
	}
}

func TestFitOneAxisUnbounded(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{640, 2000, 0, 600, 192, 600},
		{2000, 640, 600, 0, 600, 192},
		{640, 2000, -1, 600, 192, 600},
		{640, 480, 0, 600, 640, 480},
		{4000, 3000, 0, 0, 4000, 3000},
	}
	for _, tt := range tests {
		in := NewRaster(tt.w, tt.h)
		out := Fit(in, tt.maxW, tt.maxH, nil)
		if out.Width != tt.wantW || out.Height != tt.wantH {
			t.Errorf("Fit(%dx%d, %d, %d) = %dx%d; want %dx%d",
				tt.w, tt.h, tt.maxW, tt.maxH, out.Width, out.Height, tt.wantW, tt.wantH)
		}
	}
}
