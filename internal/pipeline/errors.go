package pipeline

import "errors"

var (
	// ErrEmptyDocument indicates the source PDF has zero pages.
	ErrEmptyDocument = errors.New("document has no pages")

	// ErrNothingToStitch indicates stitching was requested on an empty
	// corrected-page set.
	ErrNothingToStitch = errors.New("no pages to stitch")
)
