package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/lossrun/internal/output"
)

// handleListOutputs lists saved files of one kind (?kind=, default json).
func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	if s.outputs == nil {
		jsonError(w, "outputs unavailable", http.StatusServiceUnavailable)
		return
	}
	kindName := r.URL.Query().Get("kind")
	if kindName == "" {
		kindName = output.KindJSON.Dir()
	}
	kind, err := output.ParseKind(kindName)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files, err := s.outputs.Stat(kind)
	if err != nil {
		jsonError(w, "failed to list outputs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":  kind.Dir(),
		"files": files,
		"count": len(files),
	})
}

func (s *Server) handleDownloadOutput(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolveOutput(w, r)
	if !ok {
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleDeleteOutput(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolveOutput(w, r); !ok {
		return
	}
	kind, _ := output.ParseKind(chi.URLParam(r, "kind"))
	name := chi.URLParam(r, "name")
	if err := s.outputs.Remove(kind, name); err != nil {
		jsonError(w, "failed to delete output: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name, "kind": kind.Dir()})
}

// resolveOutput maps the {kind}/{name} URL params to a file, writing the
// error response itself when that fails.
func (s *Server) resolveOutput(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.outputs == nil {
		jsonError(w, "outputs unavailable", http.StatusServiceUnavailable)
		return "", false
	}
	kind, err := output.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	path, err := s.outputs.Resolve(kind, chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, output.ErrInvalidName):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return "", false
	case errors.Is(err, output.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
		return "", false
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return "", false
	}
	return path, true
}

// handleHistory returns recent runs (?limit=, default 20) and totals.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		jsonError(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}

	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		jsonError(w, "failed to read history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	agg, err := s.history.Aggregate(r.Context())
	if err != nil {
		jsonError(w, "failed to aggregate history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":      runs,
		"aggregate": agg,
	})
}
