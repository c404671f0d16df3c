// Package sched provides durable job scheduling: parsing informal schedule
// phrases, computing recurrence, persisting jobs, and running them when due.
package sched

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScheduleType distinguishes one-shot jobs from recurring ones
type ScheduleType string

const (
	ScheduleOnce      ScheduleType = "once"
	ScheduleRecurring ScheduleType = "recurring"
)

// Status represents the current state of a job.
//
// State machine: pending -> running -> {completed | failed}.
// Recurring jobs return to pending with a fresh next_run_at after every run
// attempt, regardless of outcome. One-shot jobs stay terminal.
// pending -> cancelled on explicit cancellation and is irreversible.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a one-shot job in this status will never run again
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job represents a scheduled unit of work
type Job struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ScheduleType   ScheduleType    `json:"schedule_type"`
	RecurrenceRule string          `json:"recurrence_rule,omitempty"` // present iff recurring
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`     // always set while pending
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	Status         Status          `json:"status"`
	Action         string          `json:"action"`
	ActionParams   json.RawMessage `json:"action_params,omitempty"`
	LastResult     string          `json:"last_result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewJob creates a pending job from a parsed schedule
func NewJob(name string, parsed Parsed, action string, params json.RawMessage) *Job {
	now := time.Now()
	nextRun := parsed.NextRun
	return &Job{
		ID:             uuid.NewString(),
		Name:           name,
		ScheduleType:   parsed.Type,
		RecurrenceRule: parsed.Rule,
		NextRunAt:      &nextRun,
		Status:         StatusPending,
		Action:         action,
		ActionParams:   params,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HistoryEntry is an immutable record of one execution attempt
type HistoryEntry struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	RunAt      time.Time `json:"run_at"`
	Status     Status    `json:"status"` // completed | failed
	Result     string    `json:"result,omitempty"`
	DurationMs int       `json:"duration_ms"`
}
