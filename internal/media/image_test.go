package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

type stubFetcher struct {
	data   []byte
	err    error
	prompt string
}

func (s *stubFetcher) Fetch(ctx context.Context, prompt string) ([]byte, error) {
	s.prompt = prompt
	return s.data, s.err
}

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d > -8 && d < 8
}

func TestVisualRenderer_CoverFit(t *testing.T) {
	fetcher := &stubFetcher{data: encodePNG(t, 400, 200, color.RGBA{R: 200, G: 40, B: 40, A: 255})}
	r := NewVisualRenderer(fetcher, 108, 192)
	dest := filepath.Join(t.TempDir(), "img_0.jpg")

	if err := r.RenderVisual(context.Background(), "a red sunset", dest); err != nil {
		t.Fatalf("RenderVisual: %v", err)
	}

	if fetcher.prompt != EnhancePrompt("a red sunset") {
		t.Errorf("prompt = %q", fetcher.prompt)
	}

	img := decodeJPEG(t, dest)
	if b := img.Bounds(); b.Dx() != 108 || b.Dy() != 192 {
		t.Fatalf("size = %dx%d, want 108x192", b.Dx(), b.Dy())
	}
	r8, g8, b8 := rgb(img.At(54, 96))
	if !near(r8, 200) || !near(g8, 40) || !near(b8, 40) {
		t.Errorf("centre pixel = %d,%d,%d", r8, g8, b8)
	}
}

func TestVisualRenderer_Failures(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *stubFetcher
	}{
		{"fetch error", &stubFetcher{err: errors.New("status 500")}},
		{"undecodable", &stubFetcher{data: []byte("<html>rate limited</html>")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "img.jpg")
			r := NewVisualRenderer(tt.fetcher, 10, 10)
			if err := r.RenderVisual(context.Background(), "x", dest); err == nil {
				t.Fatal("expected error")
			}
			if _, err := os.Stat(dest); !os.IsNotExist(err) {
				t.Error("dest written on failure")
			}
		})
	}
}

func TestFallbackImager(t *testing.T) {
	dir := t.TempDir()
	f := NewFallbackImager(1080, 1920)

	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	if err := f.RenderFallback(a, 2); err != nil {
		t.Fatalf("RenderFallback: %v", err)
	}
	if err := f.RenderFallback(b, 2); err != nil {
		t.Fatalf("RenderFallback: %v", err)
	}

	img := decodeJPEG(t, a)
	if bounds := img.Bounds(); bounds.Dx() != 1080 || bounds.Dy() != 1920 {
		t.Fatalf("size = %dx%d", bounds.Dx(), bounds.Dy())
	}
	r8, g8, b8 := rgb(img.At(5, 5))
	if !near(r8, FallbackBackground.R) || !near(g8, FallbackBackground.G) || !near(b8, FallbackBackground.B) {
		t.Errorf("corner = %d,%d,%d, want background", r8, g8, b8)
	}

	bright := 0
	for x := 0; x < 1080; x++ {
		if r, _, _ := rgb(img.At(x, 960)); r > 200 {
			bright++
		}
	}
	if bright == 0 {
		t.Error("no label pixels on the centre row")
	}

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if !bytes.Equal(da, db) {
		t.Error("fallback image is not deterministic")
	}
}

func rgb(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}
