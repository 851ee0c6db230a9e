package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/jobqueue"
	"github.com/legout/flowerpower/internal/project"
)

// Server adapts a *project.Project into the thin introspection HTTP surface
// named by SPEC_FULL.md §2 (outside the CLI/web-UI non-goal): run/enqueue/
// schedule a pipeline, list/scaffold/delete pipelines, and inspect jobs and
// schedules.
type Server struct {
	Project *project.Project
}

func NewServer(p *project.Project) *Server { return &Server{Project: p} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type runRequest struct {
	RunConfig config.RunConfig `json:"run_config"`
	Async     bool             `json:"async"`
}

// RunHandler executes a pipeline synchronously and returns its result.
func (s *Server) RunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var req runRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		var (
			result map[string]any
			err    error
		)
		if req.Async {
			result, err = s.Project.Manager.RunAsync(r.Context(), name, s.Project.Name(), req.RunConfig)
		} else {
			result, err = s.Project.Manager.Run(r.Context(), name, s.Project.Name(), req.RunConfig)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type enqueueRequest struct {
	RunConfig config.RunConfig    `json:"run_config"`
	JobID     string              `json:"job_id"`
	QueueName string              `json:"queue_name"`
	RunIn     time.Duration       `json:"run_in"`
	Retry     domain.JobRetrySpec `json:"retry"`
}

// EnqueueHandler defers a pipeline run through the job queue.
func (s *Server) EnqueueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var req enqueueRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		job, err := s.Project.Manager.Enqueue(r.Context(), name, s.Project.Name(), req.RunConfig, jobqueue.AddJobOptions{
			JobID:     req.JobID,
			QueueName: req.QueueName,
			RunIn:     req.RunIn,
			Retry:     req.Retry,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

type scheduleRequest struct {
	RunConfig  config.RunConfig `json:"run_config"`
	ScheduleID string           `json:"schedule_id"`
	Cron       string           `json:"cron"`
	Interval   time.Duration    `json:"interval"`
	Date       *time.Time       `json:"date"`
	QueueName  string           `json:"queue_name"`
}

// ScheduleHandler registers a recurring pipeline run.
func (s *Server) ScheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var req scheduleRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		sched, err := s.Project.Manager.Schedule(r.Context(), name, s.Project.Name(), req.RunConfig, jobqueue.AddScheduleOptions{
			ScheduleID: req.ScheduleID,
			Cron:       req.Cron,
			Interval:   req.Interval,
			Date:       req.Date,
			QueueName:  req.QueueName,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sched)
	}
}

// ListPipelinesHandler lists every pipeline module under pipelines/.
func (s *Server) ListPipelinesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listings, err := s.Project.Manager.ListPipelines()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listings)
	}
}

// NewPipelineHandler scaffolds a new pipeline's module and config pair.
func (s *Server) NewPipelineHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		overwrite := r.URL.Query().Get("overwrite") == "true"
		if err := s.Project.Manager.NewPipeline(name, overwrite); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"name": name})
	}
}

// DeletePipelineHandler removes a pipeline's config and/or module files.
func (s *Server) DeletePipelineHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		cfg := r.URL.Query().Get("cfg") != "false"
		module := r.URL.Query().Get("module") != "false"
		s.Project.Manager.Delete(name, cfg, module)
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetJobHandler returns one job's state.
func (s *Server) GetJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.Project.JobQueue.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// ListJobsHandler returns every job, grouped by queue.
func (s *Server) ListJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := s.Project.JobQueue.GetJobs(r.Context(), r.URL.Query().Get("queue"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

// ListSchedulesHandler returns every registered schedule.
func (s *Server) ListSchedulesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheds, err := s.Project.JobQueue.GetSchedules(r.Context(), nil, 0, 0)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, scheds)
	}
}
