package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemill/pagemill/internal/orient"
	"github.com/pagemill/pagemill/internal/pipeline"
	"github.com/pagemill/pagemill/internal/render"
	"github.com/pagemill/pagemill/internal/storage"
	"github.com/pagemill/pagemill/internal/testutil"
)

type stubRenderer struct{ pages int }

func (r *stubRenderer) PageCount() int { return r.pages }

func (r *stubRenderer) RenderPage(ctx context.Context, index int, dpi float64) (image.Image, error) {
	return testutil.SolidImage(40, 60, color.White), nil
}

func (r *stubRenderer) Close() error { return nil }

type uprightDetector struct{}

func (uprightDetector) Detect(ctx context.Context, img image.Image) (orient.Result, error) {
	return orient.Result{Angle: 0, Confidence: 1}, nil
}

func (uprightDetector) Close() error { return nil }

func newStubPipeline(t *testing.T, pages int) *pipeline.Pipeline {
	t.Helper()
	pl, err := pipeline.NewBuilder().
		WithOpener(func([]byte) (render.Renderer, error) {
			return &stubRenderer{pages: pages}, nil
		}).
		WithInspector(func([]byte) (render.DocumentInfo, error) {
			return render.DocumentInfo{PageCount: pages}, nil
		}).
		WithDetector(uprightDetector{}).
		Build()
	require.NoError(t, err)
	return pl
}

func newConvertTestCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

// Local output names come straight from the source filename; the random
// suffix the server uses to separate concurrent uploads never shows up in
// a user-chosen directory.
func TestConvertFileUsesPlainBaseName(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "Annual Report.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4 stub"), 0o600))

	outDir := t.TempDir()
	store, err := storage.NewLocalStore(outDir, "")
	require.NoError(t, err)

	pl := newStubPipeline(t, 2)
	defer func() { _ = pl.Close() }()

	out := &bytes.Buffer{}
	require.NoError(t, convertFile(newConvertTestCommand(out), pl, store, src, false))

	assert.FileExists(t, filepath.Join(outDir, "Annual_Report_page_1.png"))
	assert.FileExists(t, filepath.Join(outDir, "Annual_Report_page_2.png"))
	assert.Contains(t, out.String(), "Annual_Report_page_1.png")
}

func TestConvertFileStitchedName(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "scan.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4 stub"), 0o600))

	outDir := t.TempDir()
	store, err := storage.NewLocalStore(outDir, "")
	require.NoError(t, err)

	pl := newStubPipeline(t, 3)
	defer func() { _ = pl.Close() }()

	out := &bytes.Buffer{}
	require.NoError(t, convertFile(newConvertTestCommand(out), pl, store, src, true))

	assert.FileExists(t, filepath.Join(outDir, "scan_stitched.png"))
	assert.Contains(t, out.String(), "3/3 pages")
}
