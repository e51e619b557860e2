package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pagemill/pagemill/internal/pipeline"
	"github.com/pagemill/pagemill/internal/render"
	"github.com/pagemill/pagemill/internal/storage"
	"github.com/pagemill/pagemill/internal/version"
)

const (
	modePages    = "pages"
	modeStitched = "stitched"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// processPDFHandler converts an uploaded PDF into corrected page images
// (mode=pages, the default) or one stitched composite (mode=stitched) and
// responds with the artifact locators.
func (s *Server) processPDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	if err := r.ParseMultipartForm(s.maxUploadMB * 1024 * 1024); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErrorResponse(w, "No PDF file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if !isPDFUpload(header.Header.Get("Content-Type"), header.Filename) {
		s.writeErrorResponse(w, "Invalid file type. Please upload a PDF.", http.StatusBadRequest)
		return
	}

	dpi := s.pipeline.Config().DPI
	if v := r.FormValue("dpi"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			s.writeErrorResponse(w, fmt.Sprintf("Invalid dpi value %q", v), http.StatusBadRequest)
			return
		}
		dpi = parsed
	}

	mode := r.FormValue("mode")
	if mode == "" {
		mode = modePages
	}
	if mode != modePages && mode != modeStitched {
		s.writeErrorResponse(w, fmt.Sprintf("Invalid mode %q (want %q or %q)", mode, modePages, modeStitched),
			http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	start := time.Now()
	result, err := s.pipeline.WithDPI(dpi).ProcessDocument(r.Context(), header.Filename, data)
	if err != nil {
		convertRequestsTotal.WithLabelValues(mode, "error").Inc()
		s.writeConvertError(w, err)
		return
	}
	pagesProcessed.Observe(float64(result.ProcessedPages))

	base := storage.RequestBaseName(header.Filename)
	response := ConvertResponse{
		TotalPages:     result.TotalPages,
		ProcessedPages: result.ProcessedPages,
		Truncated:      result.Truncated,
	}

	switch mode {
	case modeStitched:
		composite, err := pipeline.Stitch(result.Pages)
		if err != nil {
			convertRequestsTotal.WithLabelValues(mode, "error").Inc()
			s.writeConvertError(w, err)
			return
		}
		artifact, err := storage.SaveStitched(r.Context(), s.store, base, composite)
		if err != nil {
			convertRequestsTotal.WithLabelValues(mode, "error").Inc()
			s.writeConvertError(w, err)
			return
		}
		response.Message = "PDF processed successfully"
		response.ImageURL = absoluteLocator(r, artifact.Locator)

	default:
		artifacts, err := storage.SavePages(r.Context(), s.store, base, result.Pages)
		if err != nil {
			convertRequestsTotal.WithLabelValues(mode, "error").Inc()
			s.writeConvertError(w, err)
			return
		}
		response.Message = "PDF processed successfully"
		response.ImageURLs = make([]string, len(artifacts))
		for i, a := range artifacts {
			response.ImageURLs[i] = absoluteLocator(r, a.Locator)
		}
	}

	convertRequestsTotal.WithLabelValues(mode, "ok").Inc()
	convertDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// writeConvertError maps pipeline errors onto HTTP statuses.
func (s *Server) writeConvertError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, render.ErrUnsupportedFormat),
		errors.Is(err, pipeline.ErrEmptyDocument),
		errors.Is(err, pipeline.ErrNothingToStitch):
		status = http.StatusBadRequest
	}
	s.writeErrorResponse(w, err.Error(), status)
}

// isPDFUpload accepts either a declared PDF content type or a .pdf
// filename; browsers are not consistent about multipart part types.
func isPDFUpload(contentType, filename string) bool {
	if strings.EqualFold(contentType, "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// absoluteLocator turns store-relative locators into URLs resolvable by
// the requesting client.
func absoluteLocator(r *http.Request, locator string) string {
	if !strings.HasPrefix(locator, "/") {
		return locator
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, locator)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: message})
}
