// Package testutil provides helpers for generating synthetic document
// page images used across the test suites.
package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PageSize represents common page image dimensions.
type PageSize struct {
	Width  int
	Height int
}

var (
	// Common test page sizes. PortraitSize approximates a letter page
	// rendered at a low DPI.
	SmallSize    = PageSize{320, 240}
	PortraitSize = PageSize{480, 640}
	SquareSize   = PageSize{400, 400}
)

// PageImageConfig holds configuration for generating synthetic pages.
type PageImageConfig struct {
	Text       string
	Size       PageSize
	Background color.Color
	Foreground color.Color
	FontFace   font.Face
	Rotation   float64 // counter-clockwise rotation in degrees
	Paragraphs int     // number of repeated text lines, 0 = single line
}

// DefaultPageImageConfig returns a portrait page with a few lines of text.
func DefaultPageImageConfig() PageImageConfig {
	return PageImageConfig{
		Text:       "The quick brown fox jumps over the lazy dog",
		Size:       PortraitSize,
		Background: color.White,
		Foreground: color.Black,
		FontFace:   basicfont.Face7x13,
		Paragraphs: 8,
	}
}

// GeneratePageImage creates a synthetic document page with the given
// configuration.
func GeneratePageImage(config PageImageConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, config.Size.Width, config.Size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{config.Background}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{config.Foreground},
		Face: config.FontFace,
	}

	lines := []string{config.Text}
	if words := strings.Fields(config.Text); config.Paragraphs > 0 && len(words) > 0 {
		lines = lines[:0]
		for i := 0; i < config.Paragraphs; i++ {
			// Rotate word order per line so rows are not identical.
			shifted := append(append([]string{}, words[i%len(words):]...), words[:i%len(words)]...)
			lines = append(lines, strings.Join(shifted, " "))
		}
	}

	lineHeight := config.FontFace.Metrics().Height.Ceil() * 2
	startY := (config.Size.Height - len(lines)*lineHeight) / 2
	for i, line := range lines {
		y := startY + (i+1)*lineHeight
		textWidth := font.MeasureString(config.FontFace, line).Ceil()
		x := (config.Size.Width - textWidth) / 2
		if x < 4 {
			x = 4
		}
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(line)
	}

	if config.Rotation != 0 {
		rotated := imaging.Rotate(img, config.Rotation, color.White)
		rgba := image.NewRGBA(rotated.Bounds())
		draw.Draw(rgba, rgba.Bounds(), rotated, rotated.Bounds().Min, draw.Src)
		return rgba
	}
	return img
}

// SolidImage creates a uniformly colored image, useful where page content
// does not matter.
func SolidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// StripedImage creates an image with horizontal dark stripes on a white
// background. Rotating it by 90 degrees swaps the stripe direction, which
// exercises the layout heuristic.
func StripedImage(width, height, stripeHeight int) *image.RGBA {
	img := SolidImage(width, height, color.White)
	for y := 0; y < height; y++ {
		if (y/stripeHeight)%2 == 0 {
			continue
		}
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return img
}

// SaveImage writes an image to path as PNG, failing the test on error.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
}
