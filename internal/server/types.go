// Package server exposes the conversion pipeline and the layout-parsing
// proxy over HTTP.
package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagemill/pagemill/internal/layout"
	"github.com/pagemill/pagemill/internal/pipeline"
	"github.com/pagemill/pagemill/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StaticPrefix is the URL path under which persisted artifacts are served.
const StaticPrefix = "/static"

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	StorageDir     string
	LayoutAPIURL   string
	PipelineConfig pipeline.Config
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline     *pipeline.Pipeline
	store        *storage.LocalStore
	layoutClient *layout.Client
	corsOrigin   string
	maxUploadMB  int64
	timeoutSec   int
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type ConvertResponse struct {
	Message        string   `json:"message"`
	ImageURLs      []string `json:"image_urls,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	TotalPages     int      `json:"total_pages"`
	ProcessedPages int      `json:"processed_pages"`
	Truncated      bool     `json:"truncated"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type LayoutParsingResponse struct {
	LogID           string                  `json:"log_id"`
	MarkdownResults []layout.MarkdownResult `json:"markdown_results"`
	DataInfo        map[string]any          `json:"data_info"`
	FullMarkdown    string                  `json:"full_markdown,omitempty"`
	FileURL         string                  `json:"file_url,omitempty"`
}

// NewServer creates a server instance: builds the conversion pipeline,
// opens the artifact store and wires the layout-parsing client against
// the local store so it can resolve its own artifact URLs without HTTP
// round-trips.
func NewServer(cfg Config) (*Server, error) {
	pl, err := pipeline.NewBuilder().WithConfig(cfg.PipelineConfig).Build()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewLocalStore(cfg.StorageDir, StaticPrefix)
	if err != nil {
		_ = pl.Close()
		return nil, err
	}

	lc := layout.NewClient(cfg.LayoutAPIURL, layout.WithLocalResolver(localArtifactResolver(store)))

	return &Server{
		pipeline:     pl,
		store:        store,
		layoutClient: lc,
		corsOrigin:   cfg.CORSOrigin,
		maxUploadMB:  cfg.MaxUploadMB,
		timeoutSec:   cfg.TimeoutSec,
	}, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/api/v1/process-pdf", s.corsMiddleware(s.processPDFHandler))
	mux.HandleFunc("/api/v1/layout-parsing", s.corsMiddleware(s.layoutParsingHandler))
	mux.HandleFunc("/api/v1/layout-parsing/upload", s.corsMiddleware(s.layoutParsingUploadHandler))
	mux.HandleFunc("/ws/convert", s.convertWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle(StaticPrefix+"/", http.StripPrefix(StaticPrefix+"/",
		http.FileServer(http.Dir(s.store.Dir()))))
}

// localArtifactResolver lets the layout client read files served under
// /static directly from disk instead of downloading them from itself.
func localArtifactResolver(store *storage.LocalStore) layout.LocalResolver {
	return func(url string) ([]byte, bool) {
		idx := strings.Index(url, StaticPrefix+"/")
		if idx < 0 {
			return nil, false
		}
		name := url[idx+len(StaticPrefix)+1:]
		if name == "" || name != filepath.Base(name) {
			return nil, false
		}
		data, err := os.ReadFile(filepath.Join(store.Dir(), name))
		if err != nil {
			return nil, false
		}
		return data, true
	}
}
