package sched

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solenne/vesper/errors"
)

// ActionExecutor executes whitelisted actions on behalf of the runner.
// Implementations never propagate faults: every failure is converted to
// (false, message).
type ActionExecutor interface {
	Execute(ctx context.Context, action string, params json.RawMessage) (success bool, result string)
	Known(action string) bool
}

// RunResult summarizes one execution attempt
type RunResult struct {
	JobID      string `json:"job_id"`
	Success    bool   `json:"success"`
	Result     string `json:"result"`
	DurationMs int    `json:"duration_ms"`
}

const reapedResult = "reaped: job stuck in running (possible crash during execution)"

// Runner drives jobs through the state machine: it claims due jobs, executes
// their actions, records history, and reschedules recurring jobs.
//
// All inputs arrive as explicit parameters (now, job rows); the runner reads
// no ambient process state, so PollAndRun and RunNow are independently
// testable.
type Runner struct {
	store      *Store
	exec       ActionExecutor
	staleAfter time.Duration
	log        *zap.SugaredLogger
}

// NewRunner creates a job runner. staleAfter bounds how long a job may sit in
// running before a sweep reaps it as failed; zero selects the default of 5m.
func NewRunner(store *Store, exec ActionExecutor, staleAfter time.Duration, log *zap.SugaredLogger) *Runner {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Runner{
		store:      store,
		exec:       exec,
		staleAfter: staleAfter,
		log:        log,
	}
}

// Schedule validates the request, parses the schedule phrase, and creates a
// pending job. Validation failures reject the request; no job is created.
func (r *Runner) Schedule(name, scheduleText, action string, params json.RawMessage) (*Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.NewInvalidRequestError("job name is required")
	}
	if strings.TrimSpace(scheduleText) == "" {
		return nil, errors.NewInvalidRequestError("schedule is required")
	}
	if strings.TrimSpace(action) == "" {
		return nil, errors.NewInvalidRequestError("action is required")
	}
	if !r.exec.Known(action) {
		return nil, errors.NewInvalidRequestError("unknown action: %s", action)
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	} else if !json.Valid(params) {
		return nil, errors.NewInvalidRequestError("action params must be valid JSON")
	}

	parsed := Parse(scheduleText, time.Now())
	job := NewJob(name, parsed, action, params)

	if err := r.store.CreateJob(job); err != nil {
		return nil, errors.Wrap(err, "failed to persist job")
	}

	r.log.Infow("Job scheduled",
		"job_id", job.ID,
		"name", job.Name,
		"schedule_type", job.ScheduleType,
		"recurrence_rule", job.RecurrenceRule,
		"next_run_at", job.NextRunAt.Format(time.RFC3339),
		"action", job.Action)

	return job, nil
}

// PollAndRun executes every due job once: for each pending job with
// next_run_at <= now it atomically claims the job, dispatches its action,
// records a history entry, and either terminates it (one-shot) or reschedules
// it (recurring). One failing job never aborts the sweep.
//
// Designed to be invoked on a fixed cadence; calling it more often is safe
// because a re-poll with nothing due is a no-op.
func (r *Runner) PollAndRun(ctx context.Context, now time.Time) ([]RunResult, error) {
	r.reapStale(now)

	due, err := r.store.ListDueJobs(now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}

	var results []RunResult
	for _, job := range due {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		claimed, err := r.store.ClaimJob(job.ID, now)
		if err != nil {
			r.log.Errorw("Failed to claim job", "job_id", job.ID, "error", err)
			continue
		}
		if !claimed {
			// Another runner got here first; skip rather than double-run
			r.log.Debugw("Job no longer pending, skipping", "job_id", job.ID)
			continue
		}

		results = append(results, r.runClaimed(ctx, job, now))
	}

	return results, nil
}

// RunNow executes a job immediately, outside its schedule. Usable for pending
// jobs and for terminal completed/failed jobs (manual re-run). Running jobs
// are refused to keep at-most-one execution per job; cancelled jobs are
// refused because cancellation is irreversible.
func (r *Runner) RunNow(ctx context.Context, id string) (*RunResult, error) {
	job, err := r.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	claimed, err := r.store.ClaimJobForRerun(id, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim job for run")
	}
	if !claimed {
		switch job.Status {
		case StatusCancelled:
			return nil, errors.NewInvalidRequestError("job %s is cancelled", id)
		default:
			return nil, errors.Wrapf(errors.ErrConflict, "job %s is already running", id)
		}
	}

	result := r.runClaimed(ctx, job, now)
	return &result, nil
}

// Cancel transitions matching pending jobs to cancelled. An unknown job ID is
// a not-found error; a pattern that matches nothing reports zero affected.
func (r *Runner) Cancel(id, namePattern string) (int, error) {
	switch {
	case id != "":
		if _, err := r.store.GetJob(id); err != nil {
			return 0, err
		}
		count, err := r.store.CancelJob(id)
		if err == nil && count > 0 {
			r.log.Infow("Job cancelled", "job_id", id)
		}
		return count, err
	case namePattern != "":
		count, err := r.store.CancelJobsByName(namePattern)
		if err == nil && count > 0 {
			r.log.Infow("Jobs cancelled", "name_pattern", namePattern, "count", count)
		}
		return count, err
	default:
		return 0, errors.NewInvalidRequestError("job id or name pattern is required")
	}
}

// Status returns a job by ID, or the most recently created job whose name
// contains the pattern
func (r *Runner) Status(id, namePattern string) (*Job, error) {
	switch {
	case id != "":
		return r.store.GetJob(id)
	case namePattern != "":
		jobs, err := r.store.FindJobsByName(namePattern)
		if err != nil {
			return nil, err
		}
		if len(jobs) == 0 {
			return nil, errors.NewNotFoundError("no job matches name pattern: %s", namePattern)
		}
		return jobs[0], nil
	default:
		return nil, errors.NewInvalidRequestError("job id or name pattern is required")
	}
}

// History returns execution records, newest first, optionally scoped to one job
func (r *Runner) History(jobID string, limit int) ([]*HistoryEntry, error) {
	return r.store.ListHistory(jobID, limit)
}

// ResolveJobID turns an (id, namePattern) pair into a concrete job ID
func (r *Runner) ResolveJobID(id, namePattern string) (string, error) {
	if id != "" {
		return id, nil
	}
	job, err := r.Status("", namePattern)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// runClaimed executes a job that has already been transitioned to running,
// then writes the post-run state and appends one history entry
func (r *Runner) runClaimed(ctx context.Context, job *Job, now time.Time) RunResult {
	start := time.Now()
	success, output := r.exec.Execute(ctx, job.Action, job.ActionParams)
	durationMs := int(time.Since(start).Milliseconds())

	runStatus := StatusCompleted
	if !success {
		runStatus = StatusFailed
	}

	job.LastRunAt = &now
	job.LastResult = output
	if job.ScheduleType == ScheduleRecurring {
		// Recurring jobs return to pending regardless of outcome
		next := NextAfter(job.RecurrenceRule, now)
		job.Status = StatusPending
		job.NextRunAt = &next
	} else {
		job.Status = runStatus
		job.NextRunAt = nil
	}

	if err := r.store.FinishJob(job); err != nil {
		r.log.Errorw("Failed to record job state after run", "job_id", job.ID, "error", err)
	}

	entry := &HistoryEntry{
		JobID:      job.ID,
		RunAt:      now,
		Status:     runStatus,
		Result:     output,
		DurationMs: durationMs,
	}
	if err := r.store.AppendHistory(entry); err != nil {
		r.log.Errorw("Failed to append history", "job_id", job.ID, "error", err)
	}

	if success {
		r.log.Infow("Job run OK",
			"job_id", job.ID,
			"name", job.Name,
			"action", job.Action,
			"duration_ms", durationMs,
			"next_run_at", formatNextRun(job.NextRunAt))
	} else {
		r.log.Warnw("Job run FAILED",
			"job_id", job.ID,
			"name", job.Name,
			"action", job.Action,
			"duration_ms", durationMs,
			"result", output,
			"next_run_at", formatNextRun(job.NextRunAt))
	}

	return RunResult{
		JobID:      job.ID,
		Success:    success,
		Result:     output,
		DurationMs: durationMs,
	}
}

// reapStale fails jobs stuck in running longer than staleAfter. A crash
// mid-execution leaves the row in running forever otherwise; the sweep turns
// that into an inspectable failed run. Recurring jobs are rescheduled.
func (r *Runner) reapStale(now time.Time) {
	stale, err := r.store.ListStaleRunning(now.Add(-r.staleAfter))
	if err != nil {
		r.log.Warnw("Failed to list stale running jobs", "error", err)
		return
	}

	for _, job := range stale {
		job.LastResult = reapedResult
		if job.ScheduleType == ScheduleRecurring {
			next := NextAfter(job.RecurrenceRule, now)
			job.Status = StatusPending
			job.NextRunAt = &next
		} else {
			job.Status = StatusFailed
			job.NextRunAt = nil
		}

		if err := r.store.FinishJob(job); err != nil {
			r.log.Errorw("Failed to reap stale job", "job_id", job.ID, "error", err)
			continue
		}

		entry := &HistoryEntry{
			JobID:  job.ID,
			RunAt:  now,
			Status: StatusFailed,
			Result: reapedResult,
		}
		if err := r.store.AppendHistory(entry); err != nil {
			r.log.Errorw("Failed to append reap history", "job_id", job.ID, "error", err)
		}

		r.log.Warnw("Reaped stale running job",
			"job_id", job.ID,
			"name", job.Name,
			"stale_after", r.staleAfter)
	}
}

func formatNextRun(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
