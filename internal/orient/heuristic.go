package orient

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// heuristicDetector distinguishes horizontal from vertical text flow by
// comparing black/white transition counts along rows and columns of a
// thumbnail. It cannot tell 0 from 180 or 90 from 270, so it only ever
// reports 0 or 90.
type heuristicDetector struct {
	cfg Config
}

func (d *heuristicDetector) Detect(_ context.Context, img image.Image) (Result, error) {
	if img == nil {
		return Result{}, errors.New("nil image")
	}
	if d.cfg.SkipSquareImages && nearSquare(img, d.cfg.SquareThreshold) {
		return Result{Angle: 0, Confidence: 1.0}, nil
	}
	angle, conf := heuristicOrientation(img)
	if conf < d.cfg.ConfidenceThreshold {
		return Result{Angle: 0, Confidence: conf}, nil
	}
	return Result{Angle: angle, Confidence: conf}, nil
}

func (d *heuristicDetector) Close() error { return nil }

func heuristicOrientation(img image.Image) (int, float64) {
	thumb := imaging.Resize(img, 128, 128, imaging.Lanczos)
	b := thumb.Bounds()
	if b.Dx() <= 1 || b.Dy() <= 1 {
		return 0, 0
	}

	mean := meanLuminance(thumb)
	rows := countTransitionsInRows(thumb, mean)
	cols := countTransitionsInColumns(thumb, mean)

	return classifyTransitions(rows, cols, img.Bounds())
}

func meanLuminance(img image.Image) float64 {
	b := img.Bounds()
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += luminance(img.At(x, y))
		}
	}
	return sum / float64(b.Dx()*b.Dy())
}

func countTransitionsInRows(img image.Image, threshold float64) float64 {
	b := img.Bounds()
	var transitions float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		var prev int
		for x := b.Min.X; x < b.Max.X; x++ {
			cur := binarize(luminance(img.At(x, y)), threshold)
			if x > b.Min.X && cur != prev {
				transitions++
			}
			prev = cur
		}
	}
	return transitions
}

func countTransitionsInColumns(img image.Image, threshold float64) float64 {
	b := img.Bounds()
	var transitions float64
	for x := b.Min.X; x < b.Max.X; x++ {
		var prev int
		for y := b.Min.Y; y < b.Max.Y; y++ {
			cur := binarize(luminance(img.At(x, y)), threshold)
			if y > b.Min.Y && cur != prev {
				transitions++
			}
			prev = cur
		}
	}
	return transitions
}

func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

func binarize(lum, threshold float64) int {
	if lum < threshold {
		return 1
	}
	return 0
}

// classifyTransitions maps transition counts to an orientation guess.
// Horizontal text produces many transitions along rows; vertical text
// (a page lying on its side) produces them along columns. Aspect ratio
// of the original page nudges the confidence.
func classifyTransitions(rows, cols float64, bounds image.Rectangle) (int, float64) {
	total := rows + cols
	if total == 0 {
		return 0, 0
	}

	ar := float64(bounds.Dy()) / float64(bounds.Dx())

	if cols > rows {
		conf := (cols - rows) / total
		if ar < 0.8 {
			// Landscape page with column-dominant transitions: likely rotated.
			conf = math.Min(1.0, conf+0.15)
		}
		return 90, conf
	}

	conf := (rows - cols) / total
	if ar > 1.2 {
		conf = math.Min(1.0, conf+0.1)
	}
	return 0, conf
}
