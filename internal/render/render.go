// Package render turns PDF documents into per-page raster images.
//
// The rendering capability is expressed as the Renderer interface so the
// MuPDF-backed implementation can be swapped for a fake in tests without
// touching pipeline logic.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrUnsupportedFormat indicates the input bytes are not a parseable PDF.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// RenderError reports that a specific page could not be rasterized.
// Pages produced before the failing one remain valid; the remainder of
// the sequence is aborted.
type RenderError struct {
	Page int // zero-based page index
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer exposes page-oriented rasterization of an opened document.
// Implementations are not required to be safe for concurrent use.
type Renderer interface {
	// PageCount returns the number of pages in the document.
	PageCount() int
	// RenderPage rasterizes the zero-based page at the given DPI.
	RenderPage(ctx context.Context, index int, dpi float64) (image.Image, error)
	// Close releases resources held by the underlying engine.
	Close() error
}

// Opener creates a Renderer from raw document bytes. It returns
// ErrUnsupportedFormat (possibly wrapped) when the bytes are not a valid
// PDF.
type Opener func(data []byte) (Renderer, error)

// validateDPI rejects non-positive resolutions before any rendering work.
func validateDPI(dpi float64) error {
	if dpi <= 0 {
		return fmt.Errorf("dpi must be positive, got %v", dpi)
	}
	return nil
}
