package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/lossrun/internal/api"
	"github.com/dgallion1/lossrun/internal/pipeline"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server with a background worker pool.

Endpoints (all but /health need "Authorization: Bearer <server_api_key>"):
  GET    /health
  POST   /api/extract                  multipart "file", returns a job
  POST   /api/extract/batch            multipart "files"
  POST   /api/extract/text             {"text": "..."}, synchronous
  GET    /api/extract/{id}/status
  GET    /api/extract/{id}/result
  GET    /api/outputs?kind=json
  GET    /api/outputs/{kind}/{name}
  DELETE /api/outputs/{kind}/{name}
  GET    /api/history?limit=20
  GET    /api/stats/llm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Port = servePort
		}
		if err := cfg.ValidateServer(); err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, log, true)
		if err != nil {
			return err
		}
		defer a.Close()

		orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
			Workers:   cfg.WorkerCount,
			QueueSize: cfg.MaxQueueSize,
			JobTTL:    cfg.JobTTL,
		}, a.worker, log)
		orch.Start(ctx)

		srv := api.NewServer(api.Deps{
			Orchestrator:   orch,
			Outputs:        a.outputs,
			History:        a.history,
			Stats:          a.stats,
			Model:          cfg.Model,
			APIKey:         cfg.ServerAPIKey,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Log:            log,
		})

		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute, // synchronous text extraction
			IdleTimeout:  60 * time.Second,
		}

		// Graceful shutdown.
		go func() {
			<-ctx.Done()
			log.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			_ = httpServer.Shutdown(shutdownCtx)

			orch.Stop()
		}()

		log.Info("starting lossrun", "port", cfg.Port, "model", cfg.Model, "workers", cfg.WorkerCount)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			orch.Stop()
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (overrides config)")
}
