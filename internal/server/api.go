// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"hfmirror/pkg/hfmirror"
)

// MirrorRequest is the request body for starting a mirror job. Either URL or
// Repo must be set; URL wins when both are present. The output path is not
// configurable via the API, the server always mirrors into its configured
// root.
type MirrorRequest struct {
	URL       string `json:"url,omitempty"`
	Repo      string `json:"repo,omitempty"`
	Ref       string `json:"ref,omitempty"`
	Path      string `json:"path,omitempty"`
	Dataset   bool   `json:"dataset,omitempty"`
	ForceFile bool   `json:"forceFile,omitempty"`
	DryRun    bool   `json:"dryRun,omitempty"`
}

// PlanResponse is the response for a dry-run/plan request.
type PlanResponse struct {
	Repo       string                  `json:"repo"`
	Ref        string                  `json:"ref"`
	Files      []hfmirror.ManifestItem `json:"files"`
	TotalSize  int64                   `json:"totalSize"`
	TotalFiles int                     `json:"totalFiles"`
	Shortfalls int                     `json:"shortfalls,omitempty"`
}

// SettingsView is the API representation of the job defaults. The token is
// never echoed back, only whether one is configured.
type SettingsView struct {
	OutputDir string `json:"outputDir"`
	Workers   int    `json:"workers"`
	Retries   int    `json:"retries"`
	Endpoint  string `json:"endpoint,omitempty"`
	HasToken  bool   `json:"hasToken"`
}

// SettingsUpdate carries the fields POST /api/settings may change. Absent
// fields are left alone. The output directory stays server-controlled.
type SettingsUpdate struct {
	Workers  *int    `json:"workers,omitempty"`
	Retries  *int    `json:"retries,omitempty"`
	Endpoint *string `json:"endpoint,omitempty"`
	Token    *string `json:"token,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// locatorFromRequest resolves the request into a Locator.
func locatorFromRequest(req MirrorRequest) (hfmirror.Locator, error) {
	var loc hfmirror.Locator
	if req.URL != "" {
		var err error
		loc, err = hfmirror.ParseURL(req.URL)
		if err != nil {
			return loc, err
		}
	} else {
		loc = hfmirror.Locator{
			RepoID:    req.Repo,
			Ref:       req.Ref,
			Path:      req.Path,
			IsDataset: req.Dataset,
		}
		if !hfmirror.ValidRepoID(loc.RepoID) {
			return loc, &hfmirror.InvalidURLError{URL: loc.RepoID, Reason: "expected owner/name"}
		}
	}
	if req.ForceFile {
		loc.Kind = hfmirror.KindFile
	}
	return loc, nil
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStartMirror starts a new mirror job.
func (s *Server) handleStartMirror(w http.ResponseWriter, r *http.Request) {
	var req MirrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	loc, err := locatorFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid mirror target", err.Error())
		return
	}

	if req.DryRun {
		s.writePlan(w, loc)
		return
	}

	job, wasExisting := s.jobs.CreateJob(loc)
	if wasExisting {
		writeJSON(w, http.StatusOK, map[string]any{
			"job":     job,
			"message": "Mirror already in progress",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handlePlan returns a mirror plan without starting the transfer.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req MirrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	loc, err := locatorFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid mirror target", err.Error())
		return
	}
	s.writePlan(w, loc)
}

func (s *Server) writePlan(w http.ResponseWriter, loc hfmirror.Locator) {
	cfg := hfmirror.Settings{
		Token:    s.config.Token,
		Endpoint: s.config.Endpoint,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	man, err := hfmirror.Plan(ctx, loc, cfg)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to scan repository", err.Error())
		return
	}

	var totalSize int64
	for _, it := range man.Items {
		totalSize += it.Size
	}
	ref := loc.Ref
	if ref == "" {
		ref = "main"
	}
	writeJSON(w, http.StatusOK, PlanResponse{
		Repo:       loc.RepoID,
		Ref:        ref,
		Files:      man.Items,
		TotalSize:  totalSize,
		TotalFiles: len(man.Items),
		Shortfalls: man.Shortfalls,
	})
}

func settingsView(cfg Config) SettingsView {
	return SettingsView{
		OutputDir: cfg.OutputDir,
		Workers:   cfg.Workers,
		Retries:   cfg.Retries,
		Endpoint:  cfg.Endpoint,
		HasToken:  cfg.Token != "",
	}
}

// handleGetSettings returns the defaults applied to new jobs.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsView(s.jobs.Settings()))
}

// handleUpdateSettings changes the defaults applied to new jobs. Running jobs
// are unaffected.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Workers != nil && *req.Workers < 1 {
		writeError(w, http.StatusBadRequest, "Invalid settings", "workers must be at least 1")
		return
	}
	if req.Retries != nil && *req.Retries < 0 {
		writeError(w, http.StatusBadRequest, "Invalid settings", "retries must not be negative")
		return
	}

	cfg := s.jobs.UpdateSettings(func(c *Config) {
		if req.Workers != nil {
			c.Workers = *req.Workers
		}
		if req.Retries != nil {
			c.Retries = *req.Retries
		}
		if req.Endpoint != nil {
			c.Endpoint = *req.Endpoint
		}
		if req.Token != nil {
			c.Token = *req.Token
		}
	})
	writeJSON(w, http.StatusOK, settingsView(cfg))
}

// handleListJobs returns all jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.ListJobs()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob returns a specific job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.jobs.GetJob(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found", "")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob cancels a job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.jobs.CancelJob(id) {
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Job cancelled"})
		return
	}
	writeError(w, http.StatusNotFound, "Job not found or already completed", "")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}
