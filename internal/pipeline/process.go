package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/pagemill/pagemill/internal/orient"
)

// ProgressFunc receives page-level progress while a document is
// converted: done pages out of total so far.
type ProgressFunc func(done, total int)

// ProcessDocument renders a PDF at the configured DPI, corrects each
// page's orientation and returns the ordered corrected page set.
//
// Pages beyond the configured ceiling are never rendered; the result
// reports the declared page count next to the processed count so callers
// can detect truncation. A per-page render failure aborts the remainder
// of the sequence and is returned alongside the pages produced so far.
func (p *Pipeline) ProcessDocument(ctx context.Context, filename string, data []byte) (*DocumentResult, error) {
	return p.ProcessDocumentProgress(ctx, filename, data, nil)
}

// ProcessDocumentProgress is ProcessDocument with an optional progress
// callback, invoked after each page finishes rendering.
func (p *Pipeline) ProcessDocumentProgress(ctx context.Context, filename string, data []byte,
	progress ProgressFunc,
) (*DocumentResult, error) {
	if p == nil || p.detector == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	totalStart := time.Now()

	info, err := p.inspect(data)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", filename, err)
	}
	if info.PageCount == 0 {
		return nil, fmt.Errorf("document %q: %w", filename, ErrEmptyDocument)
	}

	limit := info.PageCount
	if limit > p.cfg.MaxPages {
		limit = p.cfg.MaxPages
	}

	result := &DocumentResult{
		Filename:       filename,
		TotalPages:     info.PageCount,
		ProcessedPages: 0,
		Truncated:      info.PageCount > p.cfg.MaxPages,
	}

	renderStart := time.Now()
	rendered, renderErr := p.renderPages(ctx, data, limit, progress)
	result.Processing.RenderNs = time.Since(renderStart).Nanoseconds()

	orientStart := time.Now()
	pages, err := p.correctPages(ctx, rendered)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", filename, err)
	}
	result.Processing.OrientationNs = time.Since(orientStart).Nanoseconds()

	result.Pages = pages
	result.ProcessedPages = len(pages)
	result.Processing.TotalNs = time.Since(totalStart).Nanoseconds()

	if renderErr != nil {
		// Partial-failure signal: the pages already produced are valid and
		// included, the remainder was aborted.
		return result, fmt.Errorf("document %q: %w", filename, renderErr)
	}
	return result, nil
}

// renderPages rasterizes pages 0..limit-1 sequentially. The MuPDF
// document handle is not safe for concurrent use, and rendering must
// stop at the first page failure anyway.
func (p *Pipeline) renderPages(ctx context.Context, data []byte, limit int,
	progress ProgressFunc,
) ([]image.Image, error) {
	renderer, err := p.open(data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := renderer.Close(); cerr != nil {
			slog.Warn("closing render backend", "error", cerr)
		}
	}()

	images := make([]image.Image, 0, limit)
	for i := range limit {
		if err := ctx.Err(); err != nil {
			return images, err
		}
		img, err := renderer.RenderPage(ctx, i, p.cfg.DPI)
		if err != nil {
			return images, err
		}
		images = append(images, img)
		if progress != nil {
			progress(i+1, limit)
		}
	}
	return images, nil
}

// pageJob and pageResult carry per-page orientation work through the
// worker pool.
type pageJob struct {
	index int
	image image.Image
}

type pageResult struct {
	index int
	page  Page
	err   error
}

// correctPages runs orientation detection and correction over the
// rendered pages. Pages are independent, so detection fans out across a
// bounded worker pool; results are collected by index, never by arrival
// order.
func (p *Pipeline) correctPages(ctx context.Context, images []image.Image) ([]Page, error) {
	if len(images) == 0 {
		return nil, nil
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(images) {
		workers = len(images)
	}

	if workers == 1 {
		return p.correctPagesSequential(ctx, images)
	}

	jobs := make(chan pageJob, len(images))
	results := make(chan pageResult, len(images))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := ctx.Err(); err != nil {
					results <- pageResult{index: job.index, err: err}
					continue
				}
				page, err := p.correctPage(ctx, job.index, job.image)
				results <- pageResult{index: job.index, page: page, err: err}
			}
		}()
	}

	for i, img := range images {
		jobs <- pageJob{index: i, image: img}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := make([]Page, len(images))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", res.index, res.err)
			}
			continue
		}
		pages[res.index] = res.page
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return pages, nil
}

func (p *Pipeline) correctPagesSequential(ctx context.Context, images []image.Image) ([]Page, error) {
	pages := make([]Page, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := p.correctPage(ctx, i, img)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages[i] = page
	}
	return pages, nil
}

// correctPage is the pure per-page step: detect, then rotate upright.
// Detection trouble is absorbed as "no rotation"; only cancellation
// propagates.
func (p *Pipeline) correctPage(ctx context.Context, index int, img image.Image) (Page, error) {
	res, err := p.detector.Detect(ctx, img)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Page{}, err
		}
		slog.Debug("orientation detection failed, keeping page as rendered",
			"page", index, "error", err)
		res = orient.Result{}
	}

	corrected := orient.Correct(img, res.Angle)
	if res.Angle != 0 {
		slog.Debug("applied orientation correction",
			"page", index, "angle", res.Angle, "confidence", res.Confidence)
	}
	return newPage(index, corrected, res), nil
}
