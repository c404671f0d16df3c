package sched

import (
	"database/sql"
	"time"

	"github.com/solenne/vesper/errors"
)

// Due-job sweeps and list queries are capped to keep batches bounded
const (
	dueJobBatchLimit  = 100
	listJobsMaxLimit  = 1000
	historyQueryLimit = 200
)

const jobColumns = `id, name, schedule_type, recurrence_rule, next_run_at,
	       last_run_at, status, action, action_params, last_result,
	       created_at, updated_at`

// Store handles persistence of jobs and their run history
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job row
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (
			id, name, schedule_type, recurrence_rule, next_run_at,
			last_run_at, status, action, action_params, last_result,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	params := "{}"
	if len(job.ActionParams) > 0 {
		params = string(job.ActionParams)
	}

	_, err := s.db.Exec(query,
		job.ID,
		job.Name,
		string(job.ScheduleType),
		nullIfEmpty(job.RecurrenceRule),
		nullableTime(job.NextRunAt),
		nullableTime(job.LastRunAt),
		string(job.Status),
		job.Action,
		params,
		nullIfEmpty(job.LastResult),
		job.CreatedAt.UTC().Format(time.RFC3339),
		job.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// ListJobs returns jobs ordered newest-first, optionally filtered by status
func (s *Store) ListJobs(status *Status, limit int) ([]*Job, error) {
	if limit <= 0 || limit > listJobsMaxLimit {
		limit = listJobsMaxLimit
	}

	var rows *sql.Rows
	var err error
	if status != nil {
		query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?`
		rows, err = s.db.Query(query, string(*status), limit)
	} else {
		query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`
		rows, err = s.db.Query(query, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// FindJobsByName returns jobs whose name contains the pattern,
// newest first for deterministic "best match" selection
func (s *Store) FindJobsByName(pattern string) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE name LIKE ? ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.Query(query, "%"+pattern+"%", listJobsMaxLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find jobs by name")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListDueJobs returns pending jobs with next_run_at <= now.
// Ordered by next_run_at ASC then id ASC for deterministic sweeps,
// limited per batch to keep a single sweep bounded.
func (s *Store) ListDueJobs(now time.Time) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC, id ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, string(StatusPending), now.UTC().Format(time.RFC3339), dueJobBatchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// NextPendingJob returns the pending job with the earliest next_run_at,
// or nil when nothing is scheduled
func (s *Store) NextPendingJob() (*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ? AND next_run_at IS NOT NULL
		ORDER BY next_run_at ASC, id ASC
		LIMIT 1
	`

	job, err := scanJob(s.db.QueryRow(query, string(StatusPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No jobs scheduled
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next pending job")
	}
	return job, nil
}

// ClaimJob atomically transitions a pending job to running.
// Returns false when the job is no longer pending: a losing racer must skip
// the job rather than double-run it.
func (s *Store) ClaimJob(id string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = ?, last_run_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query,
		string(StatusRunning),
		now.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(StatusPending),
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows == 1, nil
}

// ClaimJobForRerun transitions a pending or terminal (completed/failed) job
// to running for an on-demand execution. Running and cancelled jobs are not
// claimable: the former to enforce at-most-one execution per job, the latter
// because cancellation is irreversible.
func (s *Store) ClaimJobForRerun(id string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET status = ?, last_run_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?, ?)
	`

	result, err := s.db.Exec(query,
		string(StatusRunning),
		now.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(StatusPending), string(StatusCompleted), string(StatusFailed),
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim job for rerun")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows == 1, nil
}

// FinishJob writes the post-run state of a job: status, next_run_at,
// last_result, updated_at
func (s *Store) FinishJob(job *Job) error {
	query := `
		UPDATE jobs
		SET status = ?, next_run_at = ?, last_result = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		string(job.Status),
		nullableTime(job.NextRunAt),
		nullIfEmpty(job.LastResult),
		time.Now().UTC().Format(time.RFC3339),
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to finish job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", job.ID)
	}
	return nil
}

// CancelJob transitions a pending job to cancelled.
// Returns the number of rows affected: 0 when the job exists but is not
// pending (cancel has no effect on running or terminal jobs).
func (s *Store) CancelJob(id string) (int, error) {
	query := `
		UPDATE jobs
		SET status = ?, next_run_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query,
		string(StatusCancelled),
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(StatusPending),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cancel job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// CancelJobsByName transitions all pending jobs whose name contains the
// pattern to cancelled, returning the number affected
func (s *Store) CancelJobsByName(pattern string) (int, error) {
	query := `
		UPDATE jobs
		SET status = ?, next_run_at = NULL, updated_at = ?
		WHERE name LIKE ? AND status = ?
	`

	result, err := s.db.Exec(query,
		string(StatusCancelled),
		time.Now().UTC().Format(time.RFC3339),
		"%"+pattern+"%",
		string(StatusPending),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cancel jobs by name")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// ListStaleRunning returns jobs stuck in running whose updated_at is older
// than the cutoff. These are executions interrupted by a crash; the runner
// reaps them as failed.
func (s *Store) ListStaleRunning(cutoff time.Time) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC, id ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, string(StatusRunning), cutoff.UTC().Format(time.RFC3339), dueJobBatchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stale running jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// AppendHistory inserts an execution record. History rows are insert-only.
func (s *Store) AppendHistory(entry *HistoryEntry) error {
	query := `
		INSERT INTO job_history (job_id, run_at, status, result, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		entry.JobID,
		entry.RunAt.UTC().Format(time.RFC3339),
		string(entry.Status),
		nullIfEmpty(entry.Result),
		entry.DurationMs,
	)
	if err != nil {
		return errors.Wrap(err, "failed to append history")
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListHistory returns execution records newest-first, optionally scoped to a
// single job. The limit is clamped to keep history views bounded.
func (s *Store) ListHistory(jobID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 || limit > historyQueryLimit {
		limit = historyQueryLimit
	}

	var rows *sql.Rows
	var err error
	if jobID != "" {
		query := `SELECT id, job_id, run_at, status, result, duration_ms
			FROM job_history WHERE job_id = ? ORDER BY id DESC LIMIT ?`
		rows, err = s.db.Query(query, jobID, limit)
	} else {
		query := `SELECT id, job_id, run_at, status, result, duration_ms
			FROM job_history ORDER BY id DESC LIMIT ?`
		rows, err = s.db.Query(query, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list history")
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var runAt string
		var result sql.NullString
		var status string

		if err := rows.Scan(&entry.ID, &entry.JobID, &runAt, &status, &result, &entry.DurationMs); err != nil {
			return nil, errors.Wrap(err, "failed to scan history entry")
		}

		entry.RunAt, err = time.Parse(time.RFC3339, runAt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse run_at for history entry %d", entry.ID)
		}
		entry.Status = Status(status)
		if result.Valid {
			entry.Result = result.String
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// CountHistory returns the total number of history rows for a job
func (s *Store) CountHistory(jobID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM job_history WHERE job_id = ?`, jobID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count history")
	}
	return count, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var scheduleType, status, createdAt, updatedAt string
	var recurrenceRule, nextRunAt, lastRunAt, actionParams, lastResult sql.NullString

	err := row.Scan(
		&job.ID,
		&job.Name,
		&scheduleType,
		&recurrenceRule,
		&nextRunAt,
		&lastRunAt,
		&status,
		&job.Action,
		&actionParams,
		&lastResult,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ScheduleType = ScheduleType(scheduleType)
	job.Status = Status(status)

	// Parse timestamps (return error if parsing fails - indicates data corruption or schema mismatch)
	job.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse next_run_at for job %s", job.ID)
		}
		job.NextRunAt = &t
	}
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_run_at for job %s", job.ID)
		}
		job.LastRunAt = &t
	}

	if recurrenceRule.Valid {
		job.RecurrenceRule = recurrenceRule.String
	}
	if actionParams.Valid {
		job.ActionParams = []byte(actionParams.String)
	}
	if lastResult.Valid {
		job.LastResult = lastResult.String
	}

	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Timestamps are stored in UTC so the lexicographic next_run_at <= now
// comparison in SQL matches chronological order
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
