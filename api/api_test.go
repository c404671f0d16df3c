package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solenne/vesper/action"
	"github.com/solenne/vesper/errors"
	vtesting "github.com/solenne/vesper/internal/testing"
	"github.com/solenne/vesper/sched"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	store := sched.NewStore(vtesting.CreateTestDB(t))
	registry := action.NewRegistry()
	registry.Register(action.NewRemindAction())
	dispatcher := action.NewDispatcher(registry, zap.NewNop().Sugar())
	runner := sched.NewRunner(store, dispatcher, time.Minute, zap.NewNop().Sugar())

	return NewService(runner, store)
}

func TestScheduleAndJobStatusRoundtrip(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Schedule(ScheduleRequest{
		Name:     "stretch break",
		Schedule: "every 30 minutes",
		Action:   "remind",
		Params:   json.RawMessage(`{"message":"stretch"}`),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, sched.ScheduleRecurring, resp.ScheduleType)
	assert.True(t, resp.NextRun.After(time.Now()))

	job, err := svc.JobStatus(resp.JobID, "")
	require.NoError(t, err)
	assert.Equal(t, "stretch break", job.Name)
	assert.Equal(t, sched.StatusPending, job.Status)
	assert.JSONEq(t, `{"message":"stretch"}`, string(job.ActionParams))

	// Name lookup reaches the same job
	byName, err := svc.JobStatus("", "stretch")
	require.NoError(t, err)
	assert.Equal(t, resp.JobID, byName.ID)
}

func TestScheduleRejectsUnknownAction(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Schedule(ScheduleRequest{
		Name:     "bad",
		Schedule: "in 5 minutes",
		Action:   "launch_missiles",
	})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestListValidatesStatusFilter(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Schedule(ScheduleRequest{Name: "a", Schedule: "in 1 hour", Action: "remind"})
	require.NoError(t, err)

	jobs, err := svc.List("pending", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	jobs, err = svc.List("completed", 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	_, err = svc.List("sleeping", 0)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestCancelReportsCount(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Schedule(ScheduleRequest{Name: "daily sync", Schedule: "daily at 09:00", Action: "remind"})
	require.NoError(t, err)
	_, err = svc.Schedule(ScheduleRequest{Name: "weekly sync", Schedule: "in 1 day", Action: "remind"})
	require.NoError(t, err)

	resp, err := svc.Cancel(CancelRequest{NamePattern: "sync"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CancelledCount)

	resp, err = svc.Cancel(CancelRequest{NamePattern: "sync"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.CancelledCount)
}

func TestRunNowByName(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Schedule(ScheduleRequest{
		Name:     "on demand",
		Schedule: "in 2 hours",
		Action:   "remind",
		Params:   json.RawMessage(`{"message":"now"}`),
	})
	require.NoError(t, err)

	resp, err := svc.RunNow(context.Background(), RunNowRequest{NamePattern: "on demand"})
	require.NoError(t, err)

	assert.Equal(t, created.JobID, resp.JobID)
	assert.True(t, resp.Success)
	assert.Equal(t, "Reminder: now", resp.Result)
	assert.GreaterOrEqual(t, resp.DurationMs, 0)
}

func TestRunNowUnknownJob(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.RunNow(context.Background(), RunNowRequest{JobID: "ghost"})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestPollResponseShape(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Schedule(ScheduleRequest{
		Name:     "due",
		Schedule: "in 1 minute",
		Action:   "remind",
		Params:   json.RawMessage(`{"message":"tick"}`),
	})
	require.NoError(t, err)

	// Sweep after the job is due
	resp, err := svc.PollAndRun(context.Background(), time.Now().Add(2*time.Minute))
	require.NoError(t, err)

	require.Equal(t, 1, resp.RanCount)
	require.Len(t, resp.Runs, 1)
	assert.True(t, resp.Runs[0].Success)
	assert.Equal(t, "Reminder: tick", resp.Runs[0].ResultPreview)

	// Nothing due on the next sweep
	resp, err = svc.PollAndRun(context.Background(), time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, resp.RanCount)
	assert.Empty(t, resp.Runs)
}

func TestHistoryAfterRuns(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Schedule(ScheduleRequest{Name: "tracked", Schedule: "in 2 hours", Action: "remind"})
	require.NoError(t, err)

	_, err = svc.RunNow(context.Background(), RunNowRequest{JobID: created.JobID})
	require.NoError(t, err)
	_, err = svc.RunNow(context.Background(), RunNowRequest{JobID: created.JobID})
	require.NoError(t, err)

	entries, err := svc.History(HistoryRequest{JobID: created.JobID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, sched.StatusCompleted, entries[0].Status)

	limited, err := svc.History(HistoryRequest{JobID: created.JobID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
