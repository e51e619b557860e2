package pipeline

import (
	"image"

	"github.com/pagemill/pagemill/internal/orient"
)

// Page is a single corrected page image.
type Page struct {
	// Index is the zero-based page ordinal in the source document.
	Index int `json:"index"`
	// Image holds the upright raster. Width/height reflect the corrected
	// orientation (swapped relative to the render for 90/270 rotations).
	Image  image.Image `json:"-"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	// Orientation records what the detector saw before correction.
	Orientation orient.Result `json:"orientation"`
}

// DocumentResult is the outcome of running the conversion pipeline over
// one source document.
type DocumentResult struct {
	Filename string `json:"filename"`
	// TotalPages is the page count declared by the source document.
	TotalPages int `json:"total_pages"`
	// ProcessedPages is how many pages were actually rendered; it is
	// capped by the configured page ceiling.
	ProcessedPages int `json:"processed_pages"`
	// Truncated reports that pages beyond the ceiling were skipped,
	// so callers can detect the cut.
	Truncated bool   `json:"truncated"`
	Pages     []Page `json:"pages"`
	// Processing carries wall-clock timings in nanoseconds.
	Processing ProcessingInfo `json:"processing"`
}

// ProcessingInfo contains timing information for a conversion.
type ProcessingInfo struct {
	RenderNs      int64 `json:"render_ns"`
	OrientationNs int64 `json:"orientation_ns"`
	TotalNs       int64 `json:"total_ns"`
}

func newPage(index int, img image.Image, res orient.Result) Page {
	b := img.Bounds()
	return Page{
		Index:       index,
		Image:       img,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Orientation: res,
	}
}
