package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
	"github.com/hochfrequenz/deep-research-orchestrator/internal/runstore"
)

// RunResponse is the API response for a run summary
type RunResponse struct {
	RunID         string  `json:"run_id"`
	Topic         string  `json:"topic"`
	Status        string  `json:"status"`
	LatestVersion int     `json:"latest_version"`
	Versions      int     `json:"versions"`
	CreatedAt     string  `json:"created_at"`
	CostUSD       float64 `json:"cost_usd"`
}

// RunDetailResponse is the API response for a single run version
type RunDetailResponse struct {
	RunID         string            `json:"run_id"`
	JobID         string            `json:"job_id,omitempty"`
	Version       int               `json:"version"`
	Topic         string            `json:"topic"`
	Status        string            `json:"status"`
	CreatedAt     string            `json:"created_at"`
	Feedback      string            `json:"feedback,omitempty"`
	PreviousJobID string            `json:"previous_job_id,omitempty"`
	Usage         *domain.Usage     `json:"usage,omitempty"`
	Inputs        *domain.RunInputs `json:"inputs,omitempty"`
	Report        string            `json:"report,omitempty"`
	HasReport     bool              `json:"has_report"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Running     int     `json:"running"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Interrupted int     `json:"interrupted"`
	CostUSD     float64 `json:"cost_usd"`
}

func metadataToResponse(m *domain.RunMetadata) RunResponse {
	resp := RunResponse{
		RunID:         m.RunID,
		Topic:         m.Topic,
		LatestVersion: m.LatestVersion,
		Versions:      len(m.Versions),
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
	if entry := m.VersionEntry(m.LatestVersion); entry != nil {
		resp.Status = string(entry.Status)
	}
	for _, v := range m.Versions {
		if v.Usage != nil {
			resp.CostUSD += v.Usage.Cost()
		}
	}
	return resp
}

func runToDetailResponse(r *domain.Run) RunDetailResponse {
	return RunDetailResponse{
		RunID:         r.RunID,
		JobID:         r.JobID,
		Version:       r.Version,
		Topic:         r.Topic(),
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		Feedback:      r.Feedback,
		PreviousJobID: r.PreviousJobID,
		Usage:         r.Usage,
		Inputs:        r.Inputs,
		Report:        r.ReportText,
		HasReport:     r.HasReport,
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		metas, err := s.store.ListAll()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var status StatusResponse
		status.Total = len(metas)

		for _, m := range metas {
			entry := m.VersionEntry(m.LatestVersion)
			if entry == nil {
				continue
			}
			switch entry.Status {
			case domain.StatusPending:
				status.Pending++
			case domain.StatusRunning:
				status.Running++
			case domain.StatusCompleted:
				status.Completed++
			case domain.StatusFailed, domain.StatusCancelled:
				status.Failed++
			case domain.StatusInterrupted:
				status.Interrupted++
			}
			for _, v := range m.Versions {
				if v.Usage != nil {
					status.CostUSD += v.Usage.Cost()
				}
			}
		}

		writeJSON(w, status)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		metas, err := s.store.ListAll()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, len(metas))
		for i, m := range metas {
			responses[i] = metadataToResponse(m)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// Path is /api/runs/{id} or /api/runs/{id}/sources
		path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		runID := path
		wantSources := false
		if idx := strings.Index(path, "/"); idx > 0 {
			runID = path[:idx]
			if path[idx+1:] != "sources" {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			wantSources = true
		}

		version := 0
		if v := r.URL.Query().Get("version"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid version")
				return
			}
			version = n
		}

		var run *domain.Run
		var err error
		if version > 0 {
			run, err = s.store.LoadVersion(runID, version)
		} else {
			run, err = s.store.LoadLatest(runID)
		}
		if errors.Is(err, runstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if wantSources {
			sources, err := s.store.LoadSources(runID, run.Version)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, map[string]interface{}{
				"run_id":  runID,
				"version": run.Version,
				"sources": sources,
			})
			return
		}

		writeJSON(w, runToDetailResponse(run))
	}
}
