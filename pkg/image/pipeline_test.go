package image

import (
	"bytes"
	"errors"
	"image/color"
	"image/jpeg"
	"iter"
	"sync"
	"testing"
)

func TestPipelineEndToEnd(t *testing.T) {
	frame := solid(640, 480, color.NRGBA{})
	// Opaque border, transparent center.
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			if x < 10 || y < 10 || x >= 630 || y >= 470 {
				frame.SetNRGBA(x, y, red)
			}
		}
	}
	reg := testRegistry(t, &Overlay{Name: "frame1.png", Raster: fromNRGBA(frame)})
	p := New(reg)
	input := encodeJPEG(t, solid(640, 480, blue))
	limits := Limits{MaxWidth: 800, MaxHeight: 600, MaxInputSize: 5 << 20}

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Compose(input, "frame1.png", limits)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("Compose() err = %v; want nil", errs[i])
		}
		if res.Width != 640 || res.Height != 480 {
			t.Fatalf("Compose() size = %dx%d; want 640x480", res.Width, res.Height)
		}
		if !ValidFilename(res.Filename) {
			t.Fatalf("Compose() filename = %q; want generated pattern", res.Filename)
		}
		img, err := jpeg.Decode(bytes.NewReader(res.Data))
		if err != nil {
			t.Fatalf("jpeg.Decode() err = %v; want nil", err)
		}
		if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
			t.Fatalf("decoded size = %dx%d; want 640x480", b.Dx(), b.Dy())
		}
		// Border comes from the overlay, the center from the base.
		if r, _, b, _ := img.At(2, 2).RGBA(); r>>8 < 200 || b>>8 > 60 {
			t.Errorf("border pixel = %d,_,%d; want red", r>>8, b>>8)
		}
		if r, _, b, _ := img.At(320, 240).RGBA(); r>>8 > 60 || b>>8 < 200 {
			t.Errorf("center pixel = %d,_,%d; want blue", r>>8, b>>8)
		}
	}
	if results[0].Filename == results[1].Filename {
		t.Fatalf("Compose() returned the same filename twice: %s", results[0].Filename)
	}
}

func TestPipelineResizesOversized(t *testing.T) {
	reg := testRegistry(t, &Overlay{Name: "small.png", Raster: solidRaster(200, 100, red)})
	p := New(reg)
	tests := []struct {
		name         string
		data         []byte
		wantW, wantH int
	}{
		{"jpeg", encodeJPEG(t, solid(1600, 1200, blue)), 800, 600},
		{"png", encodePNG(t, solid(2000, 500, blue)), 800, 200},
		{"gif", encodeGIF(t, paletted(300, 1200, blue)), 150, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Compose(tt.data, "small.png", DefaultLimits())
			if err != nil {
				t.Fatalf("Compose() err = %v; want nil", err)
			}
			if res.Width != tt.wantW || res.Height != tt.wantH {
				t.Fatalf("Compose() size = %dx%d; want %dx%d", res.Width, res.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPipelineErrors(t *testing.T) {
	reg := testRegistry(t, &Overlay{Name: "frame1.png", Raster: solidRaster(10, 10, red)})
	p := New(reg)
	valid := encodePNG(t, solid(20, 20, blue))
	limits := Limits{MaxWidth: 800, MaxHeight: 600, MaxInputSize: 1 << 20}
	tests := []struct {
		name    string
		data    []byte
		overlay string
		limits  Limits
		want    error
	}{
		{"zeros", make([]byte, 50), "frame1.png", limits, ErrUnsupportedFormat},
		{"too large", make([]byte, 1<<20+1), "frame1.png", limits, ErrTooLarge},
		{"empty", nil, "frame1.png", limits, ErrTooLarge},
		{"corrupt", valid[:30], "frame1.png", limits, ErrCorruptImage},
		{"unknown overlay", valid, "frame9.png", limits, ErrOverlayNotFound},
		{"traversal", valid, "../../etc/passwd", limits, ErrOverlayNotFound},
		{"pixels", valid, "frame1.png", Limits{MaxWidth: 800, MaxHeight: 600, MaxInputSize: 1 << 20, MaxPixels: 399}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Compose(tt.data, tt.overlay, tt.limits)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Compose() err = %v; want %v", err, tt.want)
			}
			if res != nil {
				t.Fatalf("Compose() result = %v; want nil", res)
			}
		})
	}
}

func TestPipelineRoundTripRegistry(t *testing.T) {
	reg, err := Load(overlayFS(t))
	if err != nil {
		t.Fatal(err)
	}
	p := New(reg)
	input := encodeJPEG(t, solid(32, 32, blue))
	var count int
	for name := range p.ListOverlays() {
		count++
		if _, err := p.Compose(input, name, DefaultLimits()); err != nil {
			t.Errorf("Compose(%q) err = %v; want nil", name, err)
		}
	}
	if count != 3 {
		t.Fatalf("ListOverlays() yielded %d names; want 3", count)
	}
	for _, name := range []string{"photo.jpg", "notes.txt", "nested/sub.png", "missing.png"} {
		if _, err := p.Compose(input, name, DefaultLimits()); !errors.Is(err, ErrOverlayNotFound) {
			t.Errorf("Compose(%q) err = %v; want %v", name, err, ErrOverlayNotFound)
		}
	}
}

func TestPipelineUniqueFilenames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	reg := testRegistry(t, &Overlay{Name: "dot.png", Raster: solidRaster(2, 2, red)})
	p := New(reg, WithPrefix("booth_"))
	input := encodePNG(t, solid(8, 8, blue))

	const n = 10000
	names := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Compose(input, "dot.png", DefaultLimits())
			if err != nil {
				t.Errorf("Compose() err = %v; want nil", err)
				return
			}
			names[i] = res.Filename
		}(i)
	}
	wg.Wait()
	seen := make(map[string]struct{}, n)
	for _, name := range names {
		if _, ok := seen[name]; ok {
			t.Fatalf("Compose() returned %q twice", name)
		}
		seen[name] = struct{}{}
	}
}

type fakeOverlays struct {
	overlay *Overlay
	gets    int
	mu      sync.Mutex
}

func (f *fakeOverlays) Get(name string) (*Overlay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if name != f.overlay.Name {
		return nil, ErrOverlayNotFound
	}
	return f.overlay, nil
}

func (f *fakeOverlays) List() iter.Seq[string] {
	return func(yield func(string) bool) {
		yield(f.overlay.Name)
	}
}

func TestPipelineWithFakeOverlays(t *testing.T) {
	fake := &fakeOverlays{overlay: &Overlay{Name: "fake", Raster: solidRaster(4, 4, red)}}
	resample, err := ParseResampler(Box)
	if err != nil {
		t.Fatal(err)
	}
	p := New(fake, WithResampler(resample))
	res, err := p.Compose(encodePNG(t, solid(1000, 1000, blue)), "fake", DefaultLimits())
	if err != nil {
		t.Fatalf("Compose() err = %v; want nil", err)
	}
	if res.Width != 600 || res.Height != 600 {
		t.Fatalf("Compose() size = %dx%d; want 600x600", res.Width, res.Height)
	}
	if fake.gets != 1 {
		t.Fatalf("Get() calls = %d; want 1", fake.gets)
	}
}
