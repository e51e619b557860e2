package orient

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// tesseractDetector scores OCR recognition confidence of a downscaled
// probe at each right-angle rotation and picks the one that reads best.
// A fresh gosseract client is created per recognition pass; the tesseract
// C API is not safe to share across goroutines.
type tesseractDetector struct {
	cfg           Config
	clientFactory func() *gosseract.Client
	// score rates how well the probe reads after a counter-clockwise
	// rotation. Defaults to the gosseract pass; replaceable in tests.
	score    func(probe image.Image, rotation int) (float64, error)
	fallback *heuristicDetector
}

func newTesseractDetector(cfg Config) *tesseractDetector {
	d := &tesseractDetector{
		cfg:           cfg,
		clientFactory: gosseract.NewClient,
	}
	d.score = d.scoreRotation
	if cfg.UseHeuristicFallback {
		d.fallback = &heuristicDetector{cfg: cfg}
	}
	return d
}

func (d *tesseractDetector) Detect(ctx context.Context, img image.Image) (Result, error) {
	if img == nil {
		return Result{}, errors.New("nil image")
	}
	if d.cfg.SkipSquareImages && nearSquare(img, d.cfg.SquareThreshold) {
		return Result{Angle: 0, Confidence: 1.0}, nil
	}

	probe := imaging.Fit(img, d.cfg.ProbeSize, d.cfg.ProbeSize, imaging.Lanczos)

	scores := make([]float64, len(Angles))
	for i, rotation := range Angles {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		score, err := d.score(probe, rotation)
		if err != nil {
			return d.degrade(ctx, img, err)
		}
		scores[i] = score
	}

	best, second := 0, -1
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			second = best
			best = i
		} else if second < 0 || scores[i] > scores[second] {
			second = i
		}
	}

	if scores[best] == 0 {
		// No recoverable text at any rotation (blank page, low contrast).
		return Result{Angle: 0, Confidence: 0}, nil
	}

	confidence := (scores[best] - scores[second]) / scores[best]
	if confidence < d.cfg.ConfidenceThreshold {
		return Result{Angle: 0, Confidence: confidence}, nil
	}

	// The probe read best after a counter-clockwise rotation of
	// Angles[best], so the page itself is rotated by the complement.
	angle := (360 - Angles[best]) % 360
	return Result{Angle: angle, Confidence: confidence}, nil
}

// scoreRotation runs word-level recognition on the probe rotated
// counter-clockwise by the given angle and sums word confidences.
func (d *tesseractDetector) scoreRotation(probe image.Image, rotation int) (float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, rotateCCW(probe, rotation)); err != nil {
		return 0, err
	}

	c := d.clientFactory()
	defer func() { _ = c.Close() }()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return 0, err
	}
	if len(d.cfg.Languages) > 0 {
		if err := c.SetLanguage(d.cfg.Languages...); err != nil {
			return 0, err
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return 0, err
	}

	var score float64
	for _, b := range boxes {
		if b.Word == "" {
			continue
		}
		score += b.Confidence / 100.0
	}
	return score, nil
}

// degrade routes a tesseract failure to the heuristic fallback when
// configured, or absorbs it as "no rotation" otherwise. Engine trouble
// never fails the request.
func (d *tesseractDetector) degrade(ctx context.Context, img image.Image, err error) (Result, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{}, err
	}
	if d.fallback != nil {
		return d.fallback.Detect(ctx, img)
	}
	return Result{Angle: 0, Confidence: 0}, nil
}

func (d *tesseractDetector) Close() error { return nil }
