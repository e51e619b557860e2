package render

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DocumentInfo holds the structural facts established before rendering.
type DocumentInfo struct {
	PageCount int
}

// Inspect validates that the given bytes form a parseable PDF and reports
// the declared page count, without rasterizing anything. This runs before
// the MuPDF engine is opened so malformed uploads are rejected cheaply.
func Inspect(data []byte) (DocumentInfo, error) {
	if len(data) == 0 {
		return DocumentInfo{}, fmt.Errorf("%w: empty input", ErrUnsupportedFormat)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return DocumentInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return DocumentInfo{PageCount: n}, nil
}
