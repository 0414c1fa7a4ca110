package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/lossrun/internal/extract"
	"github.com/dgallion1/lossrun/internal/history"
	"github.com/dgallion1/lossrun/internal/output"
	"github.com/dgallion1/lossrun/internal/pipeline"
)

// Deps wires the server. Outputs, History and Stats are optional; their
// endpoints answer 503 without them.
type Deps struct {
	Orchestrator   *pipeline.Orchestrator
	Outputs        *output.Manager
	History        *history.Store
	Stats          *extract.Stats
	Model          string
	APIKey         string
	MaxUploadBytes int64
	Log            *slog.Logger
}

// Server is the HTTP API server for loss run extraction.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	outputs      *output.Manager
	history      *history.Store
	stats        *extract.Stats
	model        string
	apiKey       string
	maxUpload    int64
	log          *slog.Logger
}

// NewServer creates and configures the HTTP server.
func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	s := &Server{
		orchestrator: d.Orchestrator,
		outputs:      d.Outputs,
		history:      d.History,
		stats:        d.Stats,
		model:        d.Model,
		apiKey:       d.APIKey,
		maxUpload:    maxUpload,
		log:          log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKey, s.log))

		r.Post("/api/extract", s.handleExtract)
		r.Post("/api/extract/batch", s.handleBatchExtract)
		r.Post("/api/extract/text", s.handleExtractText)
		r.Get("/api/extract/{jobID}/status", s.handleExtractStatus)
		r.Get("/api/extract/{jobID}/result", s.handleExtractResult)

		r.Get("/api/outputs", s.handleListOutputs)
		r.Get("/api/outputs/{kind}/{name}", s.handleDownloadOutput)
		r.Delete("/api/outputs/{kind}/{name}", s.handleDeleteOutput)

		r.Get("/api/history", s.handleHistory)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
