package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemill/pagemill/internal/orient"
	"github.com/pagemill/pagemill/internal/render"
	"github.com/pagemill/pagemill/internal/testutil"
)

// fakeRenderer produces solid pages whose width encodes the page index,
// so ordering assertions can read it back from the output.
type fakeRenderer struct {
	pages     int
	failAt    int // -1 = never fail
	rendered  int
	closed    bool
	closeErr  error
	baseWidth int
}

func (r *fakeRenderer) PageCount() int { return r.pages }

func (r *fakeRenderer) RenderPage(ctx context.Context, index int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.failAt >= 0 && index == r.failAt {
		return nil, &render.RenderError{Page: index, Err: errors.New("damaged page stream")}
	}
	r.rendered++
	w := r.baseWidth
	if w == 0 {
		w = 100
	}
	return testutil.SolidImage(w+index, 40, color.White), nil
}

func (r *fakeRenderer) Close() error {
	r.closed = true
	return r.closeErr
}

// fakeBackend wires a fakeRenderer into the pipeline's opener and
// inspector seams.
type fakeBackend struct {
	renderer *fakeRenderer
	openErr  error
}

func (b *fakeBackend) opener() render.Opener {
	return func(data []byte) (render.Renderer, error) {
		if b.openErr != nil {
			return nil, b.openErr
		}
		return b.renderer, nil
	}
}

func (b *fakeBackend) inspector() Inspector {
	return func(data []byte) (render.DocumentInfo, error) {
		if b.openErr != nil {
			return render.DocumentInfo{}, b.openErr
		}
		return render.DocumentInfo{PageCount: b.renderer.pages}, nil
	}
}

// fixedDetector reports the same orientation for every page.
type fixedDetector struct {
	result orient.Result
	err    error
	calls  atomic.Int32
}

func (d *fixedDetector) Detect(ctx context.Context, img image.Image) (orient.Result, error) {
	if err := ctx.Err(); err != nil {
		return orient.Result{}, err
	}
	d.calls.Add(1)
	return d.result, d.err
}

func (d *fixedDetector) Close() error { return nil }

func buildTestPipeline(t *testing.T, backend *fakeBackend, detector orient.Detector,
	mutate func(*Builder),
) *Pipeline {
	t.Helper()
	b := NewBuilder().
		WithOpener(backend.opener()).
		WithInspector(backend.inspector()).
		WithDetector(detector).
		WithWorkers(1)
	if mutate != nil {
		mutate(b)
	}
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func TestProcessDocumentAllPages(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 4, failAt: -1}}
	detector := &fixedDetector{}
	p := buildTestPipeline(t, backend, detector, nil)

	result, err := p.ProcessDocument(context.Background(), "sample.pdf", []byte("pdf"))
	require.NoError(t, err)

	assert.Equal(t, "sample.pdf", result.Filename)
	assert.Equal(t, 4, result.TotalPages)
	assert.Equal(t, 4, result.ProcessedPages)
	assert.False(t, result.Truncated)
	require.Len(t, result.Pages, 4)

	for i, page := range result.Pages {
		assert.Equal(t, i, page.Index)
		assert.Equal(t, 100+i, page.Width, "page width encodes the source index")
	}
	assert.True(t, backend.renderer.closed)
	assert.EqualValues(t, 4, detector.calls.Load(), "every rendered page is inspected once")
}

func TestProcessDocumentTruncatesAtCeiling(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 25, failAt: -1}}
	p := buildTestPipeline(t, backend, &fixedDetector{}, nil)

	result, err := p.ProcessDocument(context.Background(), "long.pdf", []byte("pdf"))
	require.NoError(t, err)

	assert.Equal(t, 25, result.TotalPages)
	assert.Equal(t, DefaultMaxPages, result.ProcessedPages)
	assert.True(t, result.Truncated)
	require.Len(t, result.Pages, DefaultMaxPages)

	// Pages beyond the ceiling were never rendered.
	assert.Equal(t, DefaultMaxPages, backend.renderer.rendered)
	assert.Equal(t, DefaultMaxPages-1, result.Pages[DefaultMaxPages-1].Index)
}

func TestProcessDocumentExactCeilingNotTruncated(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: DefaultMaxPages, failAt: -1}}
	p := buildTestPipeline(t, backend, &fixedDetector{}, nil)

	result, err := p.ProcessDocument(context.Background(), "even.pdf", []byte("pdf"))
	require.NoError(t, err)

	assert.False(t, result.Truncated)
	assert.Equal(t, DefaultMaxPages, result.ProcessedPages)
}

func TestProcessDocumentEmptyDocument(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 0, failAt: -1}}
	p := buildTestPipeline(t, backend, &fixedDetector{}, nil)

	_, err := p.ProcessDocument(context.Background(), "empty.pdf", []byte("pdf"))
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestProcessDocumentInvalidInput(t *testing.T) {
	backend := &fakeBackend{
		renderer: &fakeRenderer{},
		openErr:  fmt.Errorf("%w: not a pdf", render.ErrUnsupportedFormat),
	}
	p := buildTestPipeline(t, backend, &fixedDetector{}, nil)

	_, err := p.ProcessDocument(context.Background(), "junk.bin", []byte("junk"))
	require.ErrorIs(t, err, render.ErrUnsupportedFormat)
}

func TestProcessDocumentRenderFailureReturnsPartial(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 5, failAt: 2}}
	p := buildTestPipeline(t, backend, &fixedDetector{}, nil)

	result, err := p.ProcessDocument(context.Background(), "damaged.pdf", []byte("pdf"))
	require.Error(t, err)

	var re *render.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Page)

	// Pages before the failure are still delivered.
	require.NotNil(t, result)
	assert.Equal(t, 2, result.ProcessedPages)
	require.Len(t, result.Pages, 2)
	assert.Equal(t, 0, result.Pages[0].Index)
	assert.Equal(t, 1, result.Pages[1].Index)
}

func TestProcessDocumentAppliesCorrection(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 1, failAt: -1, baseWidth: 60}}
	detector := &fixedDetector{result: orient.Result{Angle: 90, Confidence: 0.9}}
	p := buildTestPipeline(t, backend, detector, nil)

	result, err := p.ProcessDocument(context.Background(), "side.pdf", []byte("pdf"))
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)

	// Rendered 60x40, corrected by 90 degrees: dimensions swap.
	page := result.Pages[0]
	assert.Equal(t, 40, page.Width)
	assert.Equal(t, 60, page.Height)
	assert.Equal(t, 90, page.Orientation.Angle)
	assert.InDelta(t, 0.9, page.Orientation.Confidence, 1e-9)
}

func TestProcessDocumentAbsorbsDetectorFailure(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 2, failAt: -1}}
	detector := &fixedDetector{err: errors.New("engine crashed")}
	p := buildTestPipeline(t, backend, detector, nil)

	result, err := p.ProcessDocument(context.Background(), "sample.pdf", []byte("pdf"))
	require.NoError(t, err)
	require.Len(t, result.Pages, 2)

	for _, page := range result.Pages {
		assert.Equal(t, 0, page.Orientation.Angle)
		assert.Equal(t, 0.0, page.Orientation.Confidence)
	}
}

func TestProcessDocumentCancellation(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 3, failAt: -1}}
	p := buildTestPipeline(t, backend, &fixedDetector{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessDocument(ctx, "sample.pdf", []byte("pdf"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessDocumentParallelOrderingPreserved(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 8, failAt: -1}}
	p := buildTestPipeline(t, backend, &fixedDetector{}, func(b *Builder) {
		b.WithWorkers(4)
	})

	result, err := p.ProcessDocument(context.Background(), "sample.pdf", []byte("pdf"))
	require.NoError(t, err)
	require.Len(t, result.Pages, 8)

	for i, page := range result.Pages {
		assert.Equal(t, i, page.Index)
		assert.Equal(t, 100+i, page.Width)
	}
}

func TestProcessDocumentProgressCallback(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 3, failAt: -1}}
	p := buildTestPipeline(t, backend, &fixedDetector{}, nil)

	var calls [][2]int
	progress := func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}

	_, err := p.ProcessDocumentProgress(context.Background(), "sample.pdf", []byte("pdf"), progress)
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, calls)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero dpi", func(c *Config) { c.DPI = 0 }, true},
		{"negative dpi", func(c *Config) { c.DPI = -1 }, true},
		{"zero max pages", func(c *Config) { c.MaxPages = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPipelineWithDPIClone(t *testing.T) {
	backend := &fakeBackend{renderer: &fakeRenderer{pages: 1, failAt: -1}}
	p := buildTestPipeline(t, backend, &fixedDetector{}, nil)

	clone := p.WithDPI(150)
	assert.NotSame(t, p, clone)
	assert.Equal(t, 150.0, clone.Config().DPI)
	assert.Equal(t, float64(DefaultDPI), p.Config().DPI)

	// Same or non-positive DPI returns the receiver unchanged.
	assert.Same(t, p, p.WithDPI(DefaultDPI))
	assert.Same(t, p, p.WithDPI(0))
}
