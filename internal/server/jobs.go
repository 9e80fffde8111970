// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hfmirror/pkg/hfmirror"
)

// JobStatus represents the state of a mirror job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	// JobStatusIncomplete means the run finished but some files failed or
	// some subtrees could not be listed.
	JobStatusIncomplete JobStatus = "incomplete"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job represents one mirror run.
type Job struct {
	ID        string            `json:"id"`
	Repo      string            `json:"repo"`
	Ref       string            `json:"ref"`
	Path      string            `json:"path,omitempty"`
	IsDataset bool              `json:"isDataset,omitempty"`
	OutputDir string            `json:"outputDir"`
	Status    JobStatus         `json:"status"`
	Progress  JobProgress       `json:"progress"`
	Summary   *hfmirror.Summary `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
	EndedAt   *time.Time        `json:"endedAt,omitempty"`

	cancel context.CancelFunc
}

// JobProgress holds aggregate progress info.
type JobProgress struct {
	TotalFiles      int   `json:"totalFiles"`
	CompletedFiles  int   `json:"completedFiles"`
	TotalBytes      int64 `json:"totalBytes"`
	DownloadedBytes int64 `json:"downloadedBytes"`
}

// JobManager owns the job table and runs jobs.
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	config Config
	wsHub  *WSHub
}

// NewJobManager creates a job manager.
func NewJobManager(cfg Config, wsHub *WSHub) *JobManager {
	return &JobManager{
		jobs:   make(map[string]*Job),
		config: cfg,
		wsHub:  wsHub,
	}
}

// CreateJob creates and starts a mirror job. If an active job already mirrors
// the same repo, ref and path, that job is returned instead of a new one.
func (m *JobManager) CreateJob(loc hfmirror.Locator) (*Job, bool) {
	if loc.Ref == "" {
		loc.Ref = "main"
	}

	m.mu.Lock()
	for _, existing := range m.jobs {
		if existing.Repo == loc.RepoID &&
			existing.Ref == loc.Ref &&
			existing.Path == loc.Path &&
			existing.IsDataset == loc.IsDataset &&
			(existing.Status == JobStatusQueued || existing.Status == JobStatusRunning) {
			m.mu.Unlock()
			return existing, true
		}
	}

	job := &Job{
		ID:        uuid.NewString(),
		Repo:      loc.RepoID,
		Ref:       loc.Ref,
		Path:      loc.Path,
		IsDataset: loc.IsDataset,
		OutputDir: m.config.OutputDir,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.runJob(job, loc)

	return job, false
}

// Settings returns a copy of the defaults applied to new jobs.
func (m *JobManager) Settings() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// UpdateSettings mutates the defaults applied to new jobs. Jobs already
// running keep the settings they started with.
func (m *JobManager) UpdateSettings(fn func(*Config)) Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.config)
	return m.config
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CancelJob cancels a running or queued job.
func (m *JobManager) CancelJob(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false
	}
	if job.Status != JobStatusQueued && job.Status != JobStatusRunning {
		return false
	}
	if job.cancel != nil {
		job.cancel()
	}
	job.Status = JobStatusCancelled
	now := time.Now()
	job.EndedAt = &now
	m.notify(job)
	return true
}

func (m *JobManager) notify(job *Job) {
	if m.wsHub != nil {
		m.wsHub.BroadcastJob(job)
	}
}

// runJob executes the mirror and records the outcome.
func (m *JobManager) runJob(job *Job, loc hfmirror.Locator) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.mu.Lock()
	job.cancel = cancel
	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	cfg := hfmirror.Settings{
		OutputDir: m.config.OutputDir,
		Workers:   m.config.Workers,
		Retries:   m.config.Retries,
		Token:     m.config.Token,
		Endpoint:  m.config.Endpoint,
	}
	m.mu.Unlock()
	m.notify(job)

	fileBytes := map[string]int64{}
	progress := func(ev hfmirror.ProgressEvent) {
		m.mu.Lock()
		switch ev.Event {
		case "plan_item":
			job.Progress.TotalFiles++
			job.Progress.TotalBytes += ev.Total
		case "file_progress":
			fileBytes[ev.Path] = ev.Downloaded
			var total int64
			for _, b := range fileBytes {
				total += b
			}
			job.Progress.DownloadedBytes = total
		case "file_done":
			job.Progress.CompletedFiles++
		}
		m.mu.Unlock()

		// Do not hold the table lock while broadcasting.
		if m.wsHub != nil {
			m.wsHub.BroadcastEvent(ev)
		}
	}

	sum, err := hfmirror.MirrorLocator(ctx, loc, cfg, progress)

	m.mu.Lock()
	end := time.Now()
	job.EndedAt = &end
	job.Summary = &sum
	switch {
	case ctx.Err() != nil:
		job.Status = JobStatusCancelled
	case err != nil:
		job.Status = JobStatusFailed
		job.Error = err.Error()
	case !sum.OK():
		job.Status = JobStatusIncomplete
	default:
		job.Status = JobStatusCompleted
	}
	m.mu.Unlock()
	m.notify(job)
}
