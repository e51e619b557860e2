package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagemill/pagemill/internal/pipeline"
	"github.com/pagemill/pagemill/internal/storage"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		// In production, you should check against allowed origins
		return true
	},
}

// WebSocketConvertRequest is a conversion request sent over WebSocket.
// Data carries the raw PDF bytes (base64 in the JSON encoding).
type WebSocketConvertRequest struct {
	Filename string  `json:"filename"`
	Data     []byte  `json:"data"`
	DPI      float64 `json:"dpi,omitempty"`
	Mode     string  `json:"mode,omitempty"`
}

// WebSocketConvertResponse is a conversion status update or result sent
// over WebSocket.
type WebSocketConvertResponse struct {
	Type      string   `json:"type"`
	Status    string   `json:"status"` // "processing", "completed", "error"
	Progress  float64  `json:"progress,omitempty"`
	Page      int      `json:"page,omitempty"`
	Total     int      `json:"total,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorType string   `json:"error_type,omitempty"`
}

// convertWebSocketHandler handles WebSocket connections that stream
// per-page conversion progress back to the client.
func (s *Server) convertWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	s.handleWebSocketConnection(r, conn)
}

// handleWebSocketConnection reads conversion requests from a WebSocket
// connection until the client disconnects.
func (s *Server) handleWebSocketConnection(r *http.Request, conn *websocket.Conn) {
	// Set read deadline to prevent hanging connections
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Send ping messages to keep connection alive
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(r, conn, data)
		}
	}
}

// handleWebSocketMessage runs one conversion request and streams its
// progress back over the connection.
func (s *Server) handleWebSocketMessage(r *http.Request, conn *websocket.Conn, data []byte) {
	var req WebSocketConvertRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if len(req.Data) == 0 {
		s.sendWebSocketError(conn, "invalid_request", "No PDF data provided")
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = modePages
	}
	if mode != modePages && mode != modeStitched {
		s.sendWebSocketError(conn, "invalid_request", "Unsupported mode: "+req.Mode)
		return
	}

	pl := s.pipeline
	if req.DPI > 0 {
		pl = pl.WithDPI(req.DPI)
	}

	s.sendWebSocketResponse(conn, WebSocketConvertResponse{
		Type:   "convert_response",
		Status: "processing",
	})

	progress := func(done, total int) {
		s.sendWebSocketResponse(conn, WebSocketConvertResponse{
			Type:     "convert_response",
			Status:   "processing",
			Progress: float64(done) / float64(total),
			Page:     done,
			Total:    total,
		})
	}

	start := time.Now()
	result, err := pl.ProcessDocumentProgress(r.Context(), req.Filename, req.Data, progress)
	if err != nil {
		convertRequestsTotal.WithLabelValues(mode, "error").Inc()
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("PDF processing failed: %v", err))
		return
	}
	pagesProcessed.Observe(float64(result.ProcessedPages))

	base := storage.RequestBaseName(req.Filename)
	response := WebSocketConvertResponse{
		Type:      "convert_response",
		Status:    "completed",
		Progress:  1.0,
		Total:     result.TotalPages,
		Truncated: result.Truncated,
	}

	switch mode {
	case modeStitched:
		composite, err := pipeline.Stitch(result.Pages)
		if err != nil {
			convertRequestsTotal.WithLabelValues(mode, "error").Inc()
			s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("Stitching failed: %v", err))
			return
		}
		artifact, err := storage.SaveStitched(r.Context(), s.store, base, composite)
		if err != nil {
			convertRequestsTotal.WithLabelValues(mode, "error").Inc()
			s.sendWebSocketError(conn, "storage_error", fmt.Sprintf("Failed to persist image: %v", err))
			return
		}
		response.ImageURL = absoluteLocator(r, artifact.Locator)

	default:
		artifacts, err := storage.SavePages(r.Context(), s.store, base, result.Pages)
		if err != nil {
			convertRequestsTotal.WithLabelValues(mode, "error").Inc()
			s.sendWebSocketError(conn, "storage_error", fmt.Sprintf("Failed to persist images: %v", err))
			return
		}
		response.ImageURLs = make([]string, len(artifacts))
		for i, a := range artifacts {
			response.ImageURLs[i] = absoluteLocator(r, a.Locator)
		}
	}

	convertRequestsTotal.WithLabelValues(mode, "ok").Inc()
	convertDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	s.sendWebSocketResponse(conn, response)
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn *websocket.Conn, response WebSocketConvertResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
	}
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn *websocket.Conn, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketConvertResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
	})
}
