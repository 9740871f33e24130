package overlays

import (
	"bytes"
	"context"
	stdimage "image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, stdimage.NewNRGBA(stdimage.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 4, 3)
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2)
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Run(context.Background(), &buf, &Config{Overlays: dir}); err != nil {
		t.Fatalf("Run() err = %v; want nil", err)
	}
	want := "a.png\t2x2\nb.png\t4x3\n"
	if buf.String() != want {
		t.Fatalf("Run() output = %q; want %q", buf.String(), want)
	}
}

func TestRunMissingDir(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(context.Background(), &buf, &Config{Overlays: filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatalf("Run() err = nil; want error")
	}
}
