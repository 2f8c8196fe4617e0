package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formlab/formd/internal/analysis"
	"github.com/formlab/formd/internal/jobs"
	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.health.ServeHealth(w, r)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.health.ServeReady(w, r)
}

// statusResponse reports whether a run is active and the last run's outcome.
type statusResponse struct {
	Running bool         `json:"running"`
	Last    *jobs.Status `json:"last,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Running: s.runner.Running(),
		Last:    s.runner.Status(),
	})
}

// analyzeResponse acknowledges a triggered run.
type analyzeResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	runID, err := s.runner.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, jobs.ErrRunInProgress) {
			logger.Warn().Str("event", "analyze.conflict").Msg("analysis already in progress")
			w.Header().Set("Retry-After", "30")
			RespondError(w, r, http.StatusConflict, ErrAnalysisInProgress)
			return
		}
		logger.Error().Err(err).Str("event", "analyze.failed").Msg("could not trigger analysis")
		RespondError(w, r, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	logger.Info().
		Str("event", "analyze.accepted").
		Str(log.FieldRunID, runID).
		Msg("analysis run accepted")
	writeJSON(w, http.StatusAccepted, analyzeResponse{
		RunID:  runID,
		Status: store.RunRunning,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context())
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str("event", "runs.list_failed").
			Msg("could not list runs")
		RespondError(w, r, http.StatusInternalServerError, ErrInternalServer)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// runDetail is one run together with its per-video results.
type runDetail struct {
	Run     *store.Run         `json:"run"`
	Results []*analysis.Result `json:"results"`
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			RespondError(w, r, http.StatusNotFound, ErrRunNotFound)
			return
		}
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str("event", "runs.get_failed").
			Str(log.FieldRunID, runID).
			Msg("could not load run")
		RespondError(w, r, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	results, err := s.runs.ListResults(r.Context(), runID)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str("event", "runs.results_failed").
			Str(log.FieldRunID, runID).
			Msg("could not load run results")
		RespondError(w, r, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	writeJSON(w, http.StatusOK, runDetail{Run: run, Results: results})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.List(r.Context())
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str("event", "videos.list_failed").
			Msg("could not list catalog")
		RespondError(w, r, http.StatusInternalServerError, ErrInternalServer)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
