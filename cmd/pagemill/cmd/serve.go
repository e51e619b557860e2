package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for PDF conversion",
	Long: `Start an HTTP server that converts uploaded PDFs into
orientation-corrected page images.

The server provides the following endpoints:
  POST /api/v1/process-pdf           - Convert an uploaded PDF
  POST /api/v1/layout-parsing        - Proxy layout parsing for a document
  POST /api/v1/layout-parsing/upload - Upload and layout-parse in one step
  GET  /ws/convert                   - Conversion with progress streaming
  GET  /static/...                   - Persisted page images
  GET  /health                       - Health check endpoint
  GET  /metrics                      - Prometheus metrics

Examples:
  pagemill serve
  pagemill serve --port 8080
  pagemill serve --host 0.0.0.0 --port 3000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 120, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().String("storage-dir", "", "directory for persisted page images")
	serveCmd.Flags().String("layout-api-url", "", "remote layout parsing API URL")
	serveCmd.Flags().Float64("dpi", 0, "render resolution in dots per inch")
	serveCmd.Flags().Int("max-pages", 0, "maximum pages to process per document")
	serveCmd.Flags().Bool("no-orientation", false, "disable orientation detection and correction")
	serveCmd.Flags().Float64("orientation-threshold", 0, "orientation confidence threshold (0..1)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	host := cfg.Server.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	corsOrigin := cfg.Server.CORSOrigin
	if cmd.Flags().Changed("cors-origin") {
		corsOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	maxUploadMB := cfg.Server.MaxUploadMB
	if cmd.Flags().Changed("max-upload-size") {
		maxUploadMB, _ = cmd.Flags().GetInt("max-upload-size")
	}
	timeout := cfg.Server.TimeoutSec
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetInt("timeout")
	}
	shutdownTimeout := cfg.Server.ShutdownTimeoutSec
	if cmd.Flags().Changed("shutdown-timeout") {
		shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}
	storageDir := cfg.Storage.Dir
	if cmd.Flags().Changed("storage-dir") {
		storageDir, _ = cmd.Flags().GetString("storage-dir")
	}
	layoutAPIURL := cfg.Layout.APIURL
	if cmd.Flags().Changed("layout-api-url") {
		layoutAPIURL, _ = cmd.Flags().GetString("layout-api-url")
	}

	pCfg := cfg.PipelineSettings()
	if v, _ := cmd.Flags().GetFloat64("dpi"); v > 0 {
		pCfg.DPI = v
	}
	if v, _ := cmd.Flags().GetInt("max-pages"); v > 0 {
		pCfg.MaxPages = v
	}
	if v, _ := cmd.Flags().GetBool("no-orientation"); v {
		pCfg.Orientation.Enabled = false
	}
	if v, _ := cmd.Flags().GetFloat64("orientation-threshold"); v > 0 {
		pCfg.Orientation.ConfidenceThreshold = v
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv, err := server.NewServer(server.Config{
		Host:           host,
		Port:           port,
		CORSOrigin:     corsOrigin,
		MaxUploadMB:    int64(maxUploadMB),
		TimeoutSec:     timeout,
		StorageDir:     storageDir,
		LayoutAPIURL:   layoutAPIURL,
		PipelineConfig: pCfg,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(timeout) * time.Second,
		WriteTimeout:      time.Duration(timeout) * time.Second,
	}

	go func() {
		slog.Info("Starting server", "host", host, "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}

	slog.Info("Graceful shutdown completed")
	return nil
}
