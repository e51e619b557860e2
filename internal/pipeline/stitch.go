package pipeline

import (
	"image"
	"image/color"
	"image/draw"
)

// Stitch composes the ordered corrected page set into one vertically
// concatenated image. The composite width equals the widest page;
// narrower pages are left-aligned over a white background. Pixel data is
// fully copied, so the source pages remain independently disposable.
func Stitch(pages []Page) (*image.RGBA, error) {
	if len(pages) == 0 {
		return nil, ErrNothingToStitch
	}

	maxWidth, totalHeight := 0, 0
	for _, p := range pages {
		if p.Width > maxWidth {
			maxWidth = p.Width
		}
		totalHeight += p.Height
	}

	composite := image.NewRGBA(image.Rect(0, 0, maxWidth, totalHeight))
	draw.Draw(composite, composite.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	y := 0
	for _, p := range pages {
		target := image.Rect(0, y, p.Width, y+p.Height)
		draw.Draw(composite, target, p.Image, p.Image.Bounds().Min, draw.Src)
		y += p.Height
	}

	return composite, nil
}
