// Package orient detects the text orientation of page images and rotates
// them upright.
//
// Detection is best-effort: low or no confidence degrades to an angle of
// zero instead of failing, since orientation correction is a quality
// enhancement rather than a correctness requirement. Correction itself is
// a deterministic geometric transform and never fails on well-formed
// raster input.
package orient

import (
	"context"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// Angles are the four orientations an OCR engine can discriminate
// without semantic language understanding.
var Angles = [4]int{0, 90, 180, 270}

// Config controls orientation detection behavior.
type Config struct {
	Enabled             bool
	ConfidenceThreshold float64  // below this, detection degrades to angle 0
	Languages           []string // tesseract language hints, e.g. "eng"
	// If true, falls back to a simple heuristic when the tesseract engine
	// is unavailable or fails (useful for tests without tesseract installed).
	UseHeuristicFallback bool
	// Heuristic-only mode bypasses tesseract entirely.
	HeuristicOnly bool
	// Early exit for near-square images where orientation is ambiguous.
	SkipSquareImages bool
	SquareThreshold  float64
	// ProbeSize bounds the longest edge of the downscaled copy used for
	// detection. Full-resolution pages are never fed to the OCR engine.
	ProbeSize int
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		ConfidenceThreshold:  0.6,
		Languages:            []string{"eng"},
		UseHeuristicFallback: true,
		HeuristicOnly:        false,
		SkipSquareImages:     false,
		SquareThreshold:      1.05,
		ProbeSize:            800,
	}
}

// Result is the predicted orientation of a page image. Angle is the
// counter-clockwise rotation the page currently has relative to upright;
// Correct undoes it.
type Result struct {
	Angle      int     `json:"angle"`      // one of {0, 90, 180, 270}
	Confidence float64 `json:"confidence"` // 0..1
}

// Detector classifies the orientation of a page image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (Result, error)
	Close() error
}

// NewDetector builds a Detector from the config. A disabled config yields
// a detector that reports every page as already upright, so no page is
// ever rotated.
func NewDetector(cfg Config) (Detector, error) {
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, errors.New("confidence threshold must be within [0,1]")
	}
	if !cfg.Enabled {
		return disabledDetector{}, nil
	}
	if cfg.ProbeSize <= 0 {
		cfg.ProbeSize = DefaultConfig().ProbeSize
	}
	if cfg.HeuristicOnly {
		return &heuristicDetector{cfg: cfg}, nil
	}
	return newTesseractDetector(cfg), nil
}

// disabledDetector reports every page as upright. Correct(img, 0) clones
// without rotating, so detection and correction are both effectively off.
type disabledDetector struct{}

func (disabledDetector) Detect(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Angle: 0, Confidence: 1}, nil
}

func (disabledDetector) Close() error { return nil }

// Correct rotates img so the dominant text baseline is horizontal and the
// reading direction is top-to-bottom, applying (360 - angle) mod 360
// counter-clockwise. Width and height swap for 90 and 270. The result is
// always a fresh buffer; the input image is left untouched.
func Correct(img image.Image, angle int) image.Image {
	switch normalizeAngle(angle) {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}

// rotateCCW rotates img counter-clockwise by a right-angle multiple.
func rotateCCW(img image.Image, angle int) image.Image {
	switch normalizeAngle(angle) {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}

func normalizeAngle(angle int) int {
	a := angle % 360
	if a < 0 {
		a += 360
	}
	// Snap to the nearest supported right angle; detection only ever
	// produces multiples of 90.
	return a - a%90
}

// nearSquare reports whether orientation detection should be skipped
// because the aspect ratio offers no signal.
func nearSquare(img image.Image, threshold float64) bool {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	if w <= 0 || h <= 0 {
		return true
	}
	ar := w / h
	if ar < 1 {
		ar = 1 / ar
	}
	return ar <= threshold
}
