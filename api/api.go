// Package api is the request/response surface of the job subsystem.
// It translates external calls into runner and store operations; transport
// is owned by the caller.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/solenne/vesper/errors"
	"github.com/solenne/vesper/sched"
)

const resultPreviewLen = 100

// Service exposes the job API over a runner and store
type Service struct {
	runner *sched.Runner
	store  *sched.Store
}

// NewService creates the job API service
func NewService(runner *sched.Runner, store *sched.Store) *Service {
	return &Service{
		runner: runner,
		store:  store,
	}
}

// ScheduleRequest creates a new job
type ScheduleRequest struct {
	Name     string          `json:"name"`
	Schedule string          `json:"schedule"`
	Action   string          `json:"action"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// ScheduleResponse reports the created job
type ScheduleResponse struct {
	JobID        string             `json:"job_id"`
	ScheduleType sched.ScheduleType `json:"schedule_type"`
	NextRun      time.Time          `json:"next_run"`
}

// Schedule creates a job from a schedule phrase
func (s *Service) Schedule(req ScheduleRequest) (*ScheduleResponse, error) {
	job, err := s.runner.Schedule(req.Name, req.Schedule, req.Action, req.Params)
	if err != nil {
		return nil, err
	}
	return &ScheduleResponse{
		JobID:        job.ID,
		ScheduleType: job.ScheduleType,
		NextRun:      *job.NextRunAt,
	}, nil
}

// List returns jobs, optionally filtered by status
func (s *Service) List(statusFilter string, limit int) ([]*sched.Job, error) {
	var status *sched.Status
	if statusFilter != "" {
		if !sched.IsValidStatus(statusFilter) {
			return nil, errors.NewInvalidRequestError("invalid status filter: %s", statusFilter)
		}
		st := sched.Status(statusFilter)
		status = &st
	}
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListJobs(status, limit)
}

// CancelRequest targets jobs by ID or name pattern
type CancelRequest struct {
	JobID       string `json:"job_id,omitempty"`
	NamePattern string `json:"name_pattern,omitempty"`
}

// CancelResponse reports how many jobs were cancelled
type CancelResponse struct {
	CancelledCount int `json:"cancelled_count"`
}

// Cancel transitions matching pending jobs to cancelled
func (s *Service) Cancel(req CancelRequest) (*CancelResponse, error) {
	count, err := s.runner.Cancel(req.JobID, req.NamePattern)
	if err != nil {
		return nil, err
	}
	return &CancelResponse{CancelledCount: count}, nil
}

// JobStatus returns a single job by ID or name pattern
func (s *Service) JobStatus(jobID, namePattern string) (*sched.Job, error) {
	return s.runner.Status(jobID, namePattern)
}

// HistoryRequest scopes the history view
type HistoryRequest struct {
	JobID string `json:"job_id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// History returns execution records, newest first
func (s *Service) History(req HistoryRequest) ([]*sched.HistoryEntry, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	return s.runner.History(req.JobID, limit)
}

// RunNowRequest targets a job by ID or name pattern
type RunNowRequest struct {
	JobID       string `json:"job_id,omitempty"`
	NamePattern string `json:"name_pattern,omitempty"`
}

// RunNowResponse reports the out-of-band execution
type RunNowResponse struct {
	JobID      string `json:"job_id"`
	Success    bool   `json:"success"`
	Result     string `json:"result"`
	DurationMs int    `json:"duration_ms"`
}

// RunNow executes a job immediately, outside its schedule
func (s *Service) RunNow(ctx context.Context, req RunNowRequest) (*RunNowResponse, error) {
	jobID, err := s.runner.ResolveJobID(req.JobID, req.NamePattern)
	if err != nil {
		return nil, err
	}

	result, err := s.runner.RunNow(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &RunNowResponse{
		JobID:      result.JobID,
		Success:    result.Success,
		Result:     result.Result,
		DurationMs: result.DurationMs,
	}, nil
}

// RunSummary is one job's outcome within a poll sweep
type RunSummary struct {
	JobID         string `json:"job_id"`
	Success       bool   `json:"success"`
	ResultPreview string `json:"result_preview"`
}

// PollResponse reports a poll sweep
type PollResponse struct {
	RanCount int          `json:"ran_count"`
	Runs     []RunSummary `json:"runs"`
}

// PollAndRun sweeps for due jobs and executes them. Intended to be called on
// a periodic cadence; a sweep with nothing due is a no-op.
func (s *Service) PollAndRun(ctx context.Context, now time.Time) (*PollResponse, error) {
	results, err := s.runner.PollAndRun(ctx, now)
	if err != nil {
		return nil, err
	}

	resp := &PollResponse{
		RanCount: len(results),
		Runs:     make([]RunSummary, 0, len(results)),
	}
	for _, res := range results {
		preview := res.Result
		if len(preview) > resultPreviewLen {
			preview = preview[:resultPreviewLen]
		}
		resp.Runs = append(resp.Runs, RunSummary{
			JobID:         res.JobID,
			Success:       res.Success,
			ResultPreview: preview,
		})
	}
	return resp, nil
}
