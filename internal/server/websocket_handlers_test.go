package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWebSocket(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(s.convertWebSocketHandler))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/convert"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) WebSocketConvertResponse {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp WebSocketConvertResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestConvertWebSocketStreamsProgress(t *testing.T) {
	s := newTestServer(t, 3, "")
	conn := dialWebSocket(t, s)

	req := WebSocketConvertRequest{
		Filename: "report.pdf",
		Data:     []byte("%PDF-1.4 fake content"),
	}
	require.NoError(t, conn.WriteJSON(req))

	// First message acknowledges processing started.
	resp := readResponse(t, conn)
	assert.Equal(t, "processing", resp.Status)

	// Then one progress update per rendered page.
	for want := 1; want <= 3; want++ {
		resp = readResponse(t, conn)
		require.Equal(t, "processing", resp.Status)
		assert.Equal(t, want, resp.Page)
		assert.Equal(t, 3, resp.Total)
	}

	// Terminal message carries the artifact locators.
	resp = readResponse(t, conn)
	require.Equal(t, "completed", resp.Status)
	assert.Equal(t, 1.0, resp.Progress)
	assert.Len(t, resp.ImageURLs, 3)
	assert.False(t, resp.Truncated)
}

func TestConvertWebSocketStitchedMode(t *testing.T) {
	s := newTestServer(t, 2, "")
	conn := dialWebSocket(t, s)

	req := WebSocketConvertRequest{
		Filename: "report.pdf",
		Data:     []byte("%PDF-1.4 fake content"),
		Mode:     "stitched",
	}
	require.NoError(t, conn.WriteJSON(req))

	var resp WebSocketConvertResponse
	for {
		resp = readResponse(t, conn)
		if resp.Status != "processing" {
			break
		}
	}

	require.Equal(t, "completed", resp.Status)
	assert.Contains(t, resp.ImageURL, "_stitched.png")
	assert.Empty(t, resp.ImageURLs)
}

func TestConvertWebSocketInvalidRequest(t *testing.T) {
	s := newTestServer(t, 1, "")
	conn := dialWebSocket(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	resp := readResponse(t, conn)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "invalid_request", resp.ErrorType)
}

func TestConvertWebSocketMissingData(t *testing.T) {
	s := newTestServer(t, 1, "")
	conn := dialWebSocket(t, s)

	require.NoError(t, conn.WriteJSON(WebSocketConvertRequest{Filename: "report.pdf"}))

	resp := readResponse(t, conn)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "invalid_request", resp.ErrorType)
}

func TestConvertWebSocketProcessingError(t *testing.T) {
	s := newTestServer(t, 1, "")
	conn := dialWebSocket(t, s)

	require.NoError(t, conn.WriteJSON(WebSocketConvertRequest{
		Filename: "junk.bin",
		Data:     []byte("not a pdf"),
	}))

	resp := readResponse(t, conn)
	require.Equal(t, "processing", resp.Status)

	resp = readResponse(t, conn)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "processing_error", resp.ErrorType)
}
