package sched

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solenne/vesper/errors"
	vtesting "github.com/solenne/vesper/internal/testing"
)

// fakeExecutor is a scriptable ActionExecutor that records every dispatch
type fakeExecutor struct {
	mu      sync.Mutex
	known   map[string]bool
	success bool
	result  string
	calls   []string
}

func newFakeExecutor(actions ...string) *fakeExecutor {
	known := make(map[string]bool)
	for _, a := range actions {
		known[a] = true
	}
	return &fakeExecutor{known: known, success: true, result: "ok"}
}

func (f *fakeExecutor) Execute(ctx context.Context, action string, params json.RawMessage) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	return f.success, f.result
}

func (f *fakeExecutor) Known(action string) bool {
	return f.known[action]
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestRunner(t *testing.T) (*Runner, *Store, *fakeExecutor) {
	t.Helper()
	store := NewStore(vtesting.CreateTestDB(t))
	exec := newFakeExecutor("remind", "note_write")
	runner := NewRunner(store, exec, time.Minute, zap.NewNop().Sugar())
	return runner, store, exec
}

func TestScheduleValidation(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	cases := []struct {
		name, schedule, action, params string
	}{
		{"", "in 5 minutes", "remind", ""},
		{"job", "", "remind", ""},
		{"job", "in 5 minutes", "", ""},
		{"job", "in 5 minutes", "not registered", ""},
		{"job", "in 5 minutes", "remind", "{not json"},
	}
	for _, c := range cases {
		_, err := runner.Schedule(c.name, c.schedule, c.action, json.RawMessage(c.params))
		assert.True(t, errors.IsInvalidRequestError(err),
			"name=%q schedule=%q action=%q params=%q", c.name, c.schedule, c.action, c.params)
	}
}

func TestScheduleCreatesPendingJob(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	job, err := runner.Schedule("water plants", "every 15 minutes", "remind", nil)
	require.NoError(t, err)

	assert.Equal(t, ScheduleRecurring, job.ScheduleType)
	assert.Equal(t, "*/15 * * * *", job.RecurrenceRule)
	assert.Equal(t, StatusPending, job.Status)
	require.NotNil(t, job.NextRunAt)
	assert.True(t, job.NextRunAt.After(time.Now()))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "water plants", got.Name)
	assert.JSONEq(t, "{}", string(got.ActionParams))
}

func TestPollAndRunExecutesDueJob(t *testing.T) {
	runner, store, exec := newTestRunner(t)

	now := time.Now()
	job := makeJob(t, store, "due now", now.Add(-time.Minute))

	results, err := runner.PollAndRun(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, job.ID, results[0].JobID)
	assert.True(t, results[0].Success)
	assert.Equal(t, "ok", results[0].Result)
	assert.Equal(t, 1, exec.callCount())

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Nil(t, got.NextRunAt)
	assert.Equal(t, "ok", got.LastResult)

	entries, err := store.ListHistory(job.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusCompleted, entries[0].Status)
}

func TestPollAndRunSecondSweepIsNoOp(t *testing.T) {
	runner, store, exec := newTestRunner(t)

	now := time.Now()
	makeJob(t, store, "once only", now.Add(-time.Minute))

	results, err := runner.PollAndRun(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = runner.PollAndRun(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, exec.callCount())
}

func TestPollAndRunNothingDue(t *testing.T) {
	runner, store, exec := newTestRunner(t)

	now := time.Now()
	makeJob(t, store, "future", now.Add(time.Hour))

	results, err := runner.PollAndRun(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, exec.callCount())
}

func TestPollAndRunReschedulesRecurring(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	now := time.Now()
	job := makeRecurringJob(t, store, "heartbeat", "*/5 * * * *", now.Add(-time.Minute))

	results, err := runner.PollAndRun(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(now))
	require.NotNil(t, got.LastRunAt)
}

func TestPollAndRunFailedRecurringStillReschedules(t *testing.T) {
	runner, store, exec := newTestRunner(t)
	exec.success = false
	exec.result = "action exploded"

	now := time.Now()
	job := makeRecurringJob(t, store, "flaky", "*/5 * * * *", now.Add(-time.Minute))

	results, err := runner.PollAndRun(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(now))

	entries, err := store.ListHistory(job.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, "action exploded", entries[0].Result)
}

func TestPollAndRunFailedOnceJobIsTerminal(t *testing.T) {
	runner, store, exec := newTestRunner(t)
	exec.success = false
	exec.result = "nope"

	now := time.Now()
	job := makeJob(t, store, "one shot", now.Add(-time.Minute))

	_, err := runner.PollAndRun(context.Background(), now)
	require.NoError(t, err)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, got.NextRunAt)
	assert.Equal(t, "nope", got.LastResult)
}

func TestPollAndRunHonorsContextCancel(t *testing.T) {
	runner, store, exec := newTestRunner(t)

	now := time.Now()
	makeJob(t, store, "never runs", now.Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.PollAndRun(ctx, now)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, exec.callCount())
}

func TestRunNowExecutesPendingJob(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	job := makeJob(t, store, "on demand", time.Now().Add(time.Hour))

	result, err := runner.RunNow(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestRunNowRerunsTerminalJob(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	now := time.Now()
	job := makeJob(t, store, "rerun", now.Add(-time.Minute))

	_, err := runner.PollAndRun(context.Background(), now)
	require.NoError(t, err)

	result, err := runner.RunNow(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	count, err := store.CountHistory(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunNowRefusesCancelledJob(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	job := makeJob(t, store, "cancelled", time.Now().Add(time.Hour))
	_, err := store.CancelJob(job.ID)
	require.NoError(t, err)

	_, err = runner.RunNow(context.Background(), job.ID)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestRunNowRefusesRunningJob(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	now := time.Now()
	job := makeJob(t, store, "busy", now)
	claimed, err := store.ClaimJob(job.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = runner.RunNow(context.Background(), job.ID)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestRunNowUnknownJob(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	_, err := runner.RunNow(context.Background(), "ghost")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestCancelByID(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	job := makeJob(t, store, "cancel me", time.Now().Add(time.Hour))

	count, err := runner.Cancel(job.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Unknown ID is a not-found error, not a zero count
	_, err = runner.Cancel("ghost", "")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestCancelByNamePattern(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	now := time.Now().Add(time.Hour)
	makeJob(t, store, "daily report", now)
	makeJob(t, store, "weekly report", now)

	count, err := runner.Cancel("", "report")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Pattern matching nothing is zero, not an error
	count, err = runner.Cancel("", "no such job")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCancelRequiresTarget(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	_, err := runner.Cancel("", "")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestStatusByIDAndName(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	job := makeJob(t, store, "morning briefing", time.Now().Add(time.Hour))

	got, err := runner.Status(job.ID, "")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	got, err = runner.Status("", "briefing")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = runner.Status("", "no match")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = runner.Status("", "")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestReapStaleRunningJob(t *testing.T) {
	store := NewStore(vtesting.CreateTestDB(t))
	exec := newFakeExecutor("remind")
	// staleAfter of 1ns so the fresh claim below is already stale
	runner := NewRunner(store, exec, time.Nanosecond, zap.NewNop().Sugar())

	now := time.Now()
	job := makeJob(t, store, "stuck once", now)
	claimed, err := store.ClaimJob(job.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	recurring := makeRecurringJob(t, store, "stuck recurring", "*/5 * * * *", now)
	claimed, err = store.ClaimJob(recurring.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	// Sweep far enough in the future that both claims are stale
	sweepAt := now.Add(time.Hour)
	_, err = runner.PollAndRun(context.Background(), sweepAt)
	require.NoError(t, err)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.True(t, strings.Contains(got.LastResult, "reaped"))

	gotRecurring, err := store.GetJob(recurring.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, gotRecurring.Status)
	require.NotNil(t, gotRecurring.NextRunAt)
	assert.True(t, gotRecurring.NextRunAt.After(sweepAt))

	entries, err := store.ListHistory(job.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
}
