package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/runner"
	"github.com/trialkit/codify/version"
)

// createRunRequest is the POST /runs body. Zero values for limit and
// keypaths fall back to the configured run defaults.
type createRunRequest struct {
	Condition     string   `json:"condition"`
	Term          string   `json:"term"`
	Limit         int      `json:"limit"`
	Keypaths      []string `json:"keypaths"`
	Strict        bool     `json:"strict"`
	DiscardCached bool     `json:"discard_cached"`
}

// createRunResponse acknowledges a started run.
type createRunResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// HandleRuns lists recorded runs (GET) or starts a new one (POST).
func (s *Server) HandleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRuns(w, r)
	case http.MethodPost:
		s.createRun(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.List(limit)
	if err != nil {
		s.logger.Errorw("Failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*runner.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Condition == "" && req.Term == "" {
		writeError(w, http.StatusBadRequest, "a run needs a condition or a term")
		return
	}

	run := runner.New(runner.NewRunID(), s.cfg.Run.Dir, s.logger)
	run.Condition = req.Condition
	run.Term = req.Term
	run.Limit = req.Limit
	if run.Limit == 0 {
		run.Limit = s.cfg.Run.Limit
	}
	run.Keypaths = req.Keypaths
	if len(run.Keypaths) == 0 {
		run.Keypaths = s.cfg.Run.Keypaths
	}
	run.Strict = req.Strict || s.cfg.Run.Strict
	run.DiscardCached = req.DiscardCached || s.cfg.Run.DiscardCached
	run.Engines = s.engines
	run.Trials = s.trials
	run.Runs = s.runs
	run.Registry = s.registry
	run.Finder = s.finder
	run.Vocab = s.cfg.Vocab
	run.InBackground = true

	s.mu.Lock()
	s.active[run.ID] = run
	s.mu.Unlock()

	if err := run.Run(s.ctx); err != nil {
		s.mu.Lock()
		delete(s.active, run.ID)
		s.mu.Unlock()
		s.logger.Errorw("Failed to start run", "run", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	s.wg.Add(1)
	go s.watchRun(run)

	s.logger.Infow("Run started", "run", run.ID, "name", run.Name())
	writeJSON(w, http.StatusAccepted, createRunResponse{
		ID:     run.ID,
		Name:   run.Name(),
		Status: run.Status(),
	})
}

// watchRun waits for a background run to finish, drops it from the
// active set, and keeps watching engine output directories when units
// are still waiting for out-of-band engines.
func (s *Server) watchRun(run *runner.Runner) {
	defer s.wg.Done()
	run.Wait()

	s.mu.Lock()
	delete(s.active, run.ID)
	s.mu.Unlock()

	row, err := s.runs.Get(run.ID)
	if err != nil || row.WaitingCount == 0 {
		return
	}

	h, err := run.NewHarvester()
	if err != nil {
		s.logger.Warnw("Cannot watch engine output", "run", run.ID, "error", err)
		return
	}

	s.logger.Infow("Watching engine output for late results",
		"run", run.ID,
		"waiting", row.WaitingCount,
	)
	h.Start(s.ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		h.Stop()
	}()
}

// HandleRun returns the stored state of one run.
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	id := r.PathValue("id")
	row, err := s.runs.Get(id)
	if errors.IsNotFoundError(err) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no run %s", id))
		return
	}
	if err != nil {
		s.logger.Errorw("Failed to load run", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleHealth reports store reachability and activity counts.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	count, err := s.trials.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database unavailable")
		return
	}

	s.mu.RLock()
	active := len(s.active)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"trials":      count,
		"active_runs": active,
		"engines":     len(s.engines),
	})
}

// HandleVersion reports build information.
func (s *Server) HandleVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, version.Get())
}
