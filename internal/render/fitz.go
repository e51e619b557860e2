package render

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer rasterizes PDF pages using the MuPDF engine via go-fitz.
// Each page is rendered independently; DPI only affects pixel density,
// never page count or ordering.
type FitzRenderer struct {
	doc *fitz.Document
}

// Open creates a FitzRenderer from in-memory PDF bytes. Invalid or
// truncated documents yield ErrUnsupportedFormat.
func Open(data []byte) (Renderer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupportedFormat)
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return &FitzRenderer{doc: doc}, nil
}

// PageCount returns the number of pages reported by MuPDF.
func (r *FitzRenderer) PageCount() int {
	return r.doc.NumPage()
}

// RenderPage rasterizes a single zero-based page at the requested DPI.
func (r *FitzRenderer) RenderPage(ctx context.Context, index int, dpi float64) (image.Image, error) {
	if err := validateDPI(dpi); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= r.doc.NumPage() {
		return nil, &RenderError{Page: index, Err: fmt.Errorf("page out of range (document has %d pages)", r.doc.NumPage())}
	}
	img, err := r.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, &RenderError{Page: index, Err: err}
	}
	return img, nil
}

// Close releases the MuPDF document.
func (r *FitzRenderer) Close() error {
	return r.doc.Close()
}
