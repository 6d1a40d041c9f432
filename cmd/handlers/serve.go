package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"headlines/internal/pipeline"
	"headlines/internal/server"
)

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port          int
		host          string
		skipBootstrap bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the headlines HTTP server.

On startup the highlights index is prepared: when no highlights CSV exists
yet the daily pipeline runs first, otherwise the existing highlights are
indexed.

Endpoints:
  • POST /api/chat        answer a question about the highlights
  • POST /api/process     run the daily pipeline
  • GET  /api/highlights  list the current highlights (?category=)
  • GET  /health          health check

Examples:
  # Start server on default port 8000
  headlines serve

  # Start on custom port
  headlines serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host, skipBootstrap)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8000)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")
	cmd.Flags().BoolVar(&skipBootstrap, "skip-bootstrap", false, "Serve without preparing the highlights index")

	return cmd
}

func runServe(ctx context.Context, port int, host string, skipBootstrap bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	// Override server config from flags if provided
	serverCfg := a.cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	if !skipBootstrap {
		if err := bootstrap(ctx, a); err != nil {
			return err
		}
	}

	srv := server.New(server.Dependencies{
		Answerer:      a.answerer,
		Processor:     a.pipeline,
		Index:         a.store,
		ClassifiedCSV: a.cfg.Data.ClassifiedCSV,
		HighlightsCSV: a.cfg.Data.HighlightsCSV,
	}, serverCfg, log)

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		log.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		log.Info("Server shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed", "error", err)
			return err
		}

		log.Info("Server stopped successfully")
	}

	return nil
}

// bootstrap makes sure the highlights index reflects the latest run before
// the first request arrives.
func bootstrap(ctx context.Context, a *app) error {
	highlightsCSV := a.cfg.Data.HighlightsCSV
	if _, err := os.Stat(highlightsCSV); err == nil {
		n, err := a.pipeline.IndexHighlights(ctx, highlightsCSV)
		if err != nil {
			return fmt.Errorf("failed to index highlights: %w", err)
		}
		a.log.Info("Highlights index ready", "highlights", n)
		return nil
	}

	if _, err := os.Stat(a.cfg.Data.NewsCSV); errors.Is(err, os.ErrNotExist) {
		a.log.Warn("No highlights and no news dataset; serving with an empty highlights index",
			"news_csv", a.cfg.Data.NewsCSV)
		_, err := a.pipeline.IndexHighlights(ctx, highlightsCSV)
		return err
	}

	a.log.Info("No highlights found, running the pipeline", "news_csv", a.cfg.Data.NewsCSV)
	result, err := a.pipeline.Process(ctx, pipeline.Options{})
	if err != nil {
		return fmt.Errorf("initial processing failed: %w", err)
	}
	a.log.Info("Initial processing complete", "run_id", result.RunID, "highlights", len(result.Highlights))
	return nil
}
