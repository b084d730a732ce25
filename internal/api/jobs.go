package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/PaathGuide/internal/loader"
	"github.com/FocuswithJustin/PaathGuide/internal/logging"
	"github.com/FocuswithJustin/PaathGuide/internal/server"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// LoadRequest is the request body for an asynchronous corpus load.
type LoadRequest struct {
	Path          string `json:"path"`
	SkipFirst     int    `json:"skip_first,omitempty"`
	ClearExisting bool   `json:"clear_existing,omitempty"`
}

// LoadResult summarizes a completed load.
type LoadResult struct {
	Source     string   `json:"source"`
	Loaded     int      `json:"loaded"`
	Skipped    int      `json:"skipped"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors,omitempty"`
	Duration   string   `json:"duration"`
}

// Job represents an asynchronous load job.
type Job struct {
	ID          string             `json:"id"`
	Status      JobStatus          `json:"status"`
	Progress    int                `json:"progress"` // 0-100
	Result      *LoadResult        `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
	CompletedAt string             `json:"completed_at,omitempty"`
	Request     LoadRequest        `json:"request"`
	ctx         context.Context    `json:"-"`
	cancel      context.CancelFunc `json:"-"`
}

// JobStore manages load jobs in memory.
type JobStore struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewJobStore creates a new job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
	}
}

// Create creates a new job and returns it.
func (s *JobStore) Create(req LoadRequest) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC().Format(time.RFC3339)

	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
		Request:   req,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.jobs[job.ID] = job
	return job
}

// Get retrieves a job by ID.
func (s *JobStore) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	return job, exists
}

// Update updates a job's status and progress.
func (s *JobStore) Update(id string, status JobStatus, progress int, result *LoadResult, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	job.Status = status
	job.Progress = progress
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if result != nil {
		job.Result = result
	}

	if errMsg != "" {
		job.Error = errMsg
	}

	if status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled {
		job.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}

	return nil
}

// Cancel cancels a pending or running job.
func (s *JobStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	if job.Status != JobStatusPending && job.Status != JobStatusRunning {
		return fmt.Errorf("job cannot be cancelled (status: %s)", job.Status)
	}

	if job.cancel != nil {
		job.cancel()
	}

	job.Status = JobStatusCancelled
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	job.CompletedAt = job.UpdatedAt

	return nil
}

// List returns all jobs.
func (s *JobStore) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// runLoadJob executes a load job in a goroutine, streaming progress to
// the job store and all WebSocket clients.
func (s *Server) runLoadJob(job *Job) {
	go func() {
		s.jobs.Update(job.ID, JobStatusRunning, 0, nil, "")
		s.hub.BroadcastProgress("load", "starting", "Loading "+job.Request.Path, 0)

		start := time.Now()
		lastPercent := 0
		summary, err := s.loader.LoadFile(job.ctx, job.Request.Path, loader.Options{
			SkipFirst:     job.Request.SkipFirst,
			ClearExisting: job.Request.ClearExisting,
			Progress: func(stage string, percent int) {
				lastPercent = percent
				s.jobs.Update(job.ID, JobStatusRunning, percent, nil, "")
				s.hub.BroadcastProgress("load", stage, "Loading "+job.Request.Path, percent)
			},
		})
		if err != nil {
			if job.ctx.Err() != nil {
				s.jobs.Update(job.ID, JobStatusCancelled, lastPercent, nil, "Job cancelled by user")
				s.hub.BroadcastError("load", "Load cancelled")
				return
			}
			logging.Error("load job failed", "job_id", job.ID, "path", job.Request.Path, "error", err)
			s.jobs.Update(job.ID, JobStatusFailed, lastPercent, nil, err.Error())
			s.hub.BroadcastError("load", err.Error())
			return
		}

		result := &LoadResult{
			Source:     summary.Source,
			Loaded:     summary.Loaded,
			Skipped:    summary.Skipped,
			Duplicates: summary.Duplicates,
			Errors:     summary.ErrorStrings(),
			Duration:   time.Since(start).String(),
		}
		s.jobs.Update(job.ID, JobStatusCompleted, 100, result, "")
		s.hub.BroadcastComplete("load", fmt.Sprintf("Loaded %d verses", result.Loaded), map[string]interface{}{
			"loaded":     result.Loaded,
			"skipped":    result.Skipped,
			"duplicates": result.Duplicates,
		})
	}()
}

// handleLoad handles POST /admin/load by starting an asynchronous job.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Path) == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "path is required")
		return
	}
	if req.SkipFirst < 0 {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "skip_first must not be negative")
		return
	}

	// Jobs outlive the request; record the resolved path so the job
	// report is unambiguous regardless of the server's working directory.
	req.Path = server.AbsPath(req.Path)

	job := s.jobs.Create(req)
	s.runLoadJob(job)

	respond(w, http.StatusAccepted, job)
}

// handleJobByID handles GET /jobs/{id} and DELETE /jobs/{id}.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "Job ID is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, exists := s.jobs.Get(id)
		if !exists {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		respond(w, http.StatusOK, job)

	case http.MethodDelete:
		if err := s.jobs.Cancel(id); err != nil {
			if strings.Contains(err.Error(), "not found") {
				respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
				return
			}
			respondError(w, http.StatusBadRequest, "CANCEL_FAILED", err.Error())
			return
		}
		respond(w, http.StatusOK, map[string]string{"message": "Job cancelled"})

	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}
