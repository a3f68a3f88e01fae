package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesoscan/pesoscan/internal/handlers"
	"github.com/pesoscan/pesoscan/internal/imaging"
	"github.com/pesoscan/pesoscan/internal/metrics"
)

func newServeCmd(opts *options) *cobra.Command {
	var port, uploadsDir, staticDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface and JSON API",
		Long: `Starts the PesoScan web interface on the specified port.

The browser frontend under --static-dir talks to /api/scan and /api/history;
scanned images are kept under --uploads-dir and served back from
/static/uploads/. Prometheus metrics are exposed on /metrics.`,
		Example: `  # Start server on default port 8888
  pesoscan serve

  # Start server on a custom port against a remote backend
  pesoscan serve --port 3000 --api-url http://10.0.0.5:8000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics.Register()

			handler := handlers.New(handlers.Config{
				History:    opts.historyStore(),
				Scanner:    opts.scanClient(),
				Fetcher:    imaging.NewFetcher(),
				UploadsDir: uploadsDir,
				StaticDir:  staticDir,
			})

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("PesoScan interface available",
					"addr", addr,
					"url", "http://localhost"+addr,
					"backend", opts.apiURL,
					"history", opts.historyFile)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&uploadsDir, "uploads-dir", "uploads", "Directory for scanned images")
	cmd.Flags().StringVar(&staticDir, "static-dir", "static", "Directory holding the browser frontend")

	return cmd
}
