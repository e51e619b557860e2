package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemill/pagemill/internal/layout"
	"github.com/pagemill/pagemill/internal/orient"
	"github.com/pagemill/pagemill/internal/pipeline"
	"github.com/pagemill/pagemill/internal/render"
	"github.com/pagemill/pagemill/internal/storage"
	"github.com/pagemill/pagemill/internal/testutil"
)

// fakeRenderer serves solid white pages without touching MuPDF.
type fakeRenderer struct {
	pages int
}

func (r *fakeRenderer) PageCount() int { return r.pages }

func (r *fakeRenderer) RenderPage(ctx context.Context, index int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return testutil.SolidImage(60, 80, color.White), nil
}

func (r *fakeRenderer) Close() error { return nil }

// nullDetector reports every page as upright.
type nullDetector struct{}

func (nullDetector) Detect(ctx context.Context, img image.Image) (orient.Result, error) {
	return orient.Result{}, nil
}

func (nullDetector) Close() error { return nil }

func newTestServer(t *testing.T, pages int, layoutURL string) *Server {
	t.Helper()

	pl, err := pipeline.NewBuilder().
		WithOpener(func(data []byte) (render.Renderer, error) {
			if len(data) == 0 || !bytes.HasPrefix(data, []byte("%PDF")) {
				return nil, fmt.Errorf("%w: not a pdf", render.ErrUnsupportedFormat)
			}
			return &fakeRenderer{pages: pages}, nil
		}).
		WithInspector(func(data []byte) (render.DocumentInfo, error) {
			if len(data) == 0 || !bytes.HasPrefix(data, []byte("%PDF")) {
				return render.DocumentInfo{}, fmt.Errorf("%w: not a pdf", render.ErrUnsupportedFormat)
			}
			return render.DocumentInfo{PageCount: pages}, nil
		}).
		WithDetector(nullDetector{}).
		Build()
	require.NoError(t, err)

	store, err := storage.NewLocalStore(t.TempDir(), StaticPrefix)
	require.NoError(t, err)

	return &Server{
		pipeline:     pl,
		store:        store,
		layoutClient: layout.NewClient(layoutURL, layout.WithLocalResolver(localArtifactResolver(store))),
		corsOrigin:   "*",
		maxUploadMB:  10,
		timeoutSec:   30,
	}
}

func multipartPDF(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake content"))
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, 1, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Time)
}

func TestHealthHandlerRejectsPost(t *testing.T) {
	s := newTestServer(t, 1, "")

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProcessPDFPagesMode(t *testing.T) {
	s := newTestServer(t, 3, "")

	body, contentType := multipartPDF(t, "report.pdf", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ConvertResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.TotalPages)
	assert.Equal(t, 3, resp.ProcessedPages)
	assert.False(t, resp.Truncated)
	require.Len(t, resp.ImageURLs, 3)
	for i, url := range resp.ImageURLs {
		assert.Contains(t, url, StaticPrefix+"/")
		assert.Contains(t, url, fmt.Sprintf("_page_%d.png", i+1))
		assert.True(t, strings.HasPrefix(url, "http://"), "locators are absolute URLs")
	}
	assert.Empty(t, resp.ImageURL)
}

func TestProcessPDFStitchedMode(t *testing.T) {
	s := newTestServer(t, 2, "")

	body, contentType := multipartPDF(t, "report.pdf", map[string]string{"mode": "stitched"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ConvertResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp.ImageURL, "_stitched.png")
	assert.Empty(t, resp.ImageURLs)
}

func TestProcessPDFTruncationReported(t *testing.T) {
	s := newTestServer(t, 15, "")

	body, contentType := multipartPDF(t, "long.pdf", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConvertResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 15, resp.TotalPages)
	assert.Equal(t, 10, resp.ProcessedPages)
	assert.True(t, resp.Truncated)
	assert.Len(t, resp.ImageURLs, 10)
}

func TestProcessPDFRejectsNonPDF(t *testing.T) {
	s := newTestServer(t, 1, "")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("plain text"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-pdf", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessPDFMissingFile(t *testing.T) {
	s := newTestServer(t, 1, "")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("mode", "pages"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-pdf", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessPDFInvalidMode(t *testing.T) {
	s := newTestServer(t, 1, "")

	body, contentType := multipartPDF(t, "report.pdf", map[string]string{"mode": "collage"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessPDFInvalidDPI(t *testing.T) {
	s := newTestServer(t, 1, "")

	body, contentType := multipartPDF(t, "report.pdf", map[string]string{"dpi": "-30"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessPDFEmptyDocument(t *testing.T) {
	s := newTestServer(t, 0, "")

	body, contentType := multipartPDF(t, "empty.pdf", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "no pages")
}

func TestProcessPDFRejectsGet(t *testing.T) {
	s := newTestServer(t, 1, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/process-pdf", nil)
	rec := httptest.NewRecorder()
	s.processPDFHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(t, 1, "")
	handler := s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/process-pdf", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestWriteConvertErrorStatusMapping(t *testing.T) {
	s := newTestServer(t, 1, "")

	tests := []struct {
		err  error
		want int
	}{
		{render.ErrUnsupportedFormat, http.StatusBadRequest},
		{pipeline.ErrEmptyDocument, http.StatusBadRequest},
		{pipeline.ErrNothingToStitch, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", render.ErrUnsupportedFormat), http.StatusBadRequest},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.writeConvertError(rec, tt.err)
		assert.Equal(t, tt.want, rec.Code, "error %v", tt.err)
	}
}

func TestIsPDFUpload(t *testing.T) {
	assert.True(t, isPDFUpload("application/pdf", "file.bin"))
	assert.True(t, isPDFUpload("APPLICATION/PDF", "file.bin"))
	assert.True(t, isPDFUpload("application/octet-stream", "scan.PDF"))
	assert.True(t, isPDFUpload("", "scan.pdf"))
	assert.False(t, isPDFUpload("image/png", "photo.png"))
}
