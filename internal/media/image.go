// Package media renders scene images and composes the final reel.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// promptSuffix steers the image model towards punchy reel visuals.
const promptSuffix = ", vibrant colors, cinematic lighting, high quality, dramatic, 4k, professional photography"

const jpegQuality = 95

// FallbackBackground is the solid fill of placeholder scene images.
var FallbackBackground = color.RGBA{R: 30, G: 30, B: 50, A: 255}

// ImageFetcher returns encoded image bytes for a prompt.
type ImageFetcher interface {
	Fetch(ctx context.Context, prompt string) ([]byte, error)
}

// VisualRenderer turns a scene description into a JPEG of the reel size.
type VisualRenderer struct {
	fetcher ImageFetcher
	width   int
	height  int
}

func NewVisualRenderer(fetcher ImageFetcher, width, height int) *VisualRenderer {
	return &VisualRenderer{fetcher: fetcher, width: width, height: height}
}

// EnhancePrompt appends the style suffix to a scene description.
func EnhancePrompt(description string) string {
	return description + promptSuffix
}

// RenderVisual fetches, decodes and cover-fits the image, then writes it to
// dest. Any failure leaves dest untouched.
func (r *VisualRenderer) RenderVisual(ctx context.Context, description, dest string) error {
	data, err := r.fetcher.Fetch(ctx, EnhancePrompt(description))
	if err != nil {
		return err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	return writeJPEG(dest, coverFit(src, r.width, r.height))
}

// coverFit scales src to fill w×h and crops the overflow around the centre.
func coverFit(src image.Image, w, h int) *image.RGBA {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()

	crop := b
	if sw*h > sh*w {
		cw := sh * w / h
		x0 := b.Min.X + (sw-cw)/2
		crop = image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	} else if sw*h < sh*w {
		ch := sw * h / w
		y0 := b.Min.Y + (sh-ch)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// FallbackImager draws the placeholder used when a scene image cannot be
// generated.
type FallbackImager struct {
	width  int
	height int
}

func NewFallbackImager(width, height int) *FallbackImager {
	return &FallbackImager{width: width, height: height}
}

// RenderFallback writes a solid image labelled "Scene N" (index+1) to dest.
func (f *FallbackImager) RenderFallback(dest string, index int) error {
	canvas := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: FallbackBackground}, image.Point{}, draw.Src)

	label := renderLabel(fmt.Sprintf("Scene %d", index+1))
	lw, lh := label.Bounds().Dx(), label.Bounds().Dy()

	scale := f.width * 6 / 10 / lw
	if scale < 1 {
		scale = 1
	}
	tw, th := lw*scale, lh*scale
	x0 := (f.width - tw) / 2
	y0 := (f.height - th) / 2
	draw.NearestNeighbor.Scale(canvas, image.Rect(x0, y0, x0+tw, y0+th), label, label.Bounds(), draw.Over, nil)

	return writeJPEG(dest, canvas)
}

// renderLabel draws text in white on a transparent image sized to fit it.
func renderLabel(text string) *image.RGBA {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	width := d.MeasureString(text).Ceil()
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	d.Dst = img
	d.Src = image.White
	d.Dot = fixed.Point26_6{X: 0, Y: metrics.Ascent}
	d.DrawString(text)
	return img
}

func writeJPEG(dest string, img image.Image) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return f.Close()
}
