package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pagemill/pagemill/internal/layout"
	"github.com/pagemill/pagemill/internal/storage"
)

// layoutParsingRequest is the JSON body accepted by the proxy endpoint.
// File is either a URL or base64-encoded content, matching what the
// upstream service understands.
type layoutParsingRequest struct {
	File                string `json:"file"`
	FileType            *int   `json:"file_type"`
	Visualize           bool   `json:"visualize"`
	PrettifyMarkdown    *bool  `json:"prettify_markdown"`
	UseLayoutDetection  *bool  `json:"use_layout_detection"`
	UseChartRecognition *bool  `json:"use_chart_recognition"`
	MergeLayoutBlocks   *bool  `json:"merge_layout_blocks"`
}

func (req layoutParsingRequest) toClientRequest() layout.Request {
	prettify := true
	if req.PrettifyMarkdown != nil {
		prettify = *req.PrettifyMarkdown
	}
	return layout.Request{
		File:                req.File,
		FileType:            req.FileType,
		Visualize:           req.Visualize,
		PrettifyMarkdown:    prettify,
		UseLayoutDetection:  req.UseLayoutDetection,
		UseChartRecognition: req.UseChartRecognition,
		MergeLayoutBlocks:   req.MergeLayoutBlocks,
	}
}

// layoutParsingHandler forwards a document reference to the remote
// layout-parsing service and relays the per-page Markdown it returns.
func (s *Server) layoutParsingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req layoutParsingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.File) == "" {
		s.writeErrorResponse(w, "Missing required field: file", http.StatusBadRequest)
		return
	}

	result, err := s.layoutClient.Parse(r.Context(), req.toClientRequest())
	if err != nil {
		layoutRequestsTotal.WithLabelValues("error").Inc()
		s.writeLayoutError(w, err)
		return
	}
	layoutRequestsTotal.WithLabelValues("ok").Inc()

	s.writeLayoutResponse(w, result, "")
}

// layoutParsingUploadHandler accepts a multipart file upload, persists it
// as a served artifact and runs layout parsing on it in one step.
func (s *Server) layoutParsingUploadHandler(w http.ResponseWriter, r *http.Request) {
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
		s.writeErrorResponse(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".pdf"
	}
	name := storage.RequestBaseName(header.Filename) + ext
	locator, err := s.store.Write(name, data)
	if err != nil {
		s.writeErrorResponse(w, "Failed to store uploaded file", http.StatusInternalServerError)
		return
	}
	fileURL := absoluteLocator(r, locator)

	result, err := s.layoutClient.Parse(r.Context(), layout.Request{
		File:             fileURL,
		PrettifyMarkdown: true,
	})
	if err != nil {
		layoutRequestsTotal.WithLabelValues("error").Inc()
		s.writeLayoutError(w, err)
		return
	}
	layoutRequestsTotal.WithLabelValues("ok").Inc()

	s.writeLayoutResponse(w, result, fileURL)
}

func (s *Server) writeLayoutResponse(w http.ResponseWriter, result *layout.ParseResult, fileURL string) {
	response := LayoutParsingResponse{
		LogID:           result.LogID,
		MarkdownResults: result.MarkdownResults,
		DataInfo:        result.DataInfo,
		FullMarkdown:    layout.FullMarkdown(result.MarkdownResults),
		FileURL:         fileURL,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// writeLayoutError maps layout client errors onto HTTP statuses. Errors
// reported by the upstream service itself come back as 502 with the
// upstream code preserved in the message.
func (s *Server) writeLayoutError(w http.ResponseWriter, err error) {
	var apiErr *layout.APIError
	switch {
	case errors.Is(err, layout.ErrNotConfigured):
		s.writeErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &apiErr):
		s.writeErrorResponse(w, fmt.Sprintf("Upstream error %d: %s", apiErr.Code, apiErr.Message),
			http.StatusBadGateway)
	default:
		s.writeErrorResponse(w, err.Error(), http.StatusBadGateway)
	}
}
