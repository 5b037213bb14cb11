package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/platereader/internal/config"
	"github.com/lehigh-university-libraries/platereader/internal/detector"
	"github.com/lehigh-university-libraries/platereader/internal/environment"
	"github.com/lehigh-university-libraries/platereader/internal/handlers"
	"github.com/lehigh-university-libraries/platereader/internal/ocr"
	"github.com/lehigh-university-libraries/platereader/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for plate recognition",
		Long: `Starts the Platereader web interface on the specified port.

Upload a JPEG or PNG photo of a vehicle and the interface shows each
detected plate crop, the annotated image and the recognized text.`,
		Example: `  # Start server on default port 8888
  platereader serve

  # Start server on custom port with a config file
  platereader serve --port 3000 --config platereader.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}

			orchestrator, closeEngine, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeEngine()

			handler := handlers.New(cfg, orchestrator)

			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:    addr,
				Handler: handler.Routes(),
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Platereader interface available", "addr", addr, "url", "http://localhost"+addr)
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

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default from config, 8888)")

	return cmd
}

// buildPipeline resets the OCR cache, loads the OCR engine and connects the
// detector. Any failure here is fatal.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Orchestrator, func(), error) {
	preparer := environment.NewPreparer(cfg.OCR.CacheDir, cfg.OCR.Language, cfg.OCR.TessdataURL)
	if err := preparer.Prepare(ctx); err != nil {
		return nil, nil, fmt.Errorf("preparing OCR environment: %w", err)
	}

	engine, err := ocr.NewEngine(ctx, cfg.OCR)
	if err != nil {
		return nil, nil, fmt.Errorf("loading OCR engine %s: %w", cfg.OCR.Engine, err)
	}
	closeEngine := func() {
		if err := engine.Close(); err != nil {
			slog.Warn("Unable to close OCR engine", "err", err)
		}
	}

	det := detector.New(cfg.Detector)
	if err := det.CheckHealth(ctx); err != nil {
		slog.Warn("Detector service is not reachable yet", "url", cfg.Detector.URL, "err", err)
	}

	slog.Info("Pipeline ready",
		"ocr_engine", cfg.OCR.Engine,
		"detector", cfg.Detector.URL,
		"model", cfg.Detector.ModelPath,
		"confidence", cfg.Detector.Confidence)
	return pipeline.New(det, engine), closeEngine, nil
}
