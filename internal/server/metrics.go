package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemill_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagemill_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Conversion metrics
	convertRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemill_convert_requests_total",
			Help: "Total number of PDF conversion requests",
		},
		[]string{"mode", "status"}, // mode: pages, stitched
	)

	convertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagemill_convert_duration_seconds",
			Help:    "PDF conversion duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"mode"},
	)

	pagesProcessed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagemill_pages_processed",
			Help:    "Number of pages processed per document",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagemill_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// Layout-parsing proxy metrics
	layoutRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemill_layout_requests_total",
			Help: "Total number of layout parsing proxy requests",
		},
		[]string{"status"},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagemill_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)
)
