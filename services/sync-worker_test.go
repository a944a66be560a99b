package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/config"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{40, 10 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt, time.Minute, 10*time.Minute), "attempt %d", tt.attempt)
	}
}

func TestSyncWorker_RetriesAfterBackoff(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	e.drain()

	e.store.FailWith(errors.New("connection refused"))
	task := e.task(p.ID.Hex(), owner, "", "")
	e.drain()

	job := e.jobsOfKind(models.JobSyncTaskMetrics)[0]
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, e.clock.Add(time.Minute), job.NextAttemptAt)

	e.store.FailWith(nil)
	e.advance(30 * time.Second)
	n, err := e.worker.ProcessPending(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is due before the backoff elapses")

	e.advance(30 * time.Second)
	e.drain()

	job = e.jobsOfKind(models.JobSyncTaskMetrics)[0]
	assert.Equal(t, models.JobDone, job.Status)
	assert.Equal(t, 2, job.Attempts)
	assert.Empty(t, job.LastError)
	_, ok := e.store.TaskMetricsRow(task.ID.Hex())
	assert.True(t, ok)
}

func TestSyncWorker_DeadAfterMaxAttempts(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	e.drain()
	e.ops.ResetSyncJobs()

	e.store.FailWith(errors.New("disk full"))
	e.task(p.ID.Hex(), owner, "", "")

	e.drain()
	e.advance(time.Minute)
	e.drain()
	e.advance(2 * time.Minute)
	e.drain()
	e.advance(time.Hour)
	e.drain()

	for _, j := range e.ops.SyncJobs() {
		assert.Equal(t, models.JobDead, j.Status, "job %s", j.Kind)
		assert.Equal(t, 3, j.Attempts)
	}
	stats, err := e.worker.Stats(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStats{Dead: 2}, stats)
}

func TestSyncWorker_BreakerOpenSkipsStore(t *testing.T) {
	e := newTestEnvWithBreaker(t, config.BreakerConfig{
		MaxRequests:         1,
		Timeout:             time.Hour,
		ConsecutiveFailures: 1,
	})
	owner := e.user("owner")
	assignee := e.user("assignee")
	p := e.project(owner)
	e.drain()
	e.ops.ResetSyncJobs()

	e.store.FailWith(errors.New("too many connections"))
	metricsCalls := e.store.Calls("UpsertTaskMetrics")
	e.task(p.ID.Hex(), owner, "", assignee)
	e.task(p.ID.Hex(), owner, "", "")
	e.drain()

	assert.Equal(t, metricsCalls+1, e.store.Calls("UpsertTaskMetrics"), "only the first job reaches the store")
	assert.Zero(t, e.store.Calls("UpsertUserStats"))

	var deferred int
	for _, j := range e.ops.SyncJobs() {
		if j.Kind == models.JobNotifyUser {
			assert.Equal(t, models.JobDone, j.Status, "notifications bypass the analytics breaker")
			continue
		}
		assert.Equal(t, models.JobPending, j.Status)
		if j.LastError == "circuit breaker is open" {
			deferred++
		}
	}
	assert.Equal(t, 4, deferred)

	notes, err := e.notifications.ListForUser(e.ctx, assignee, 10)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestSyncWorker_PermanentFailures(t *testing.T) {
	e := newTestEnv(t)
	now := e.clock.Add(-time.Second)

	badRef := models.TaskMetricsJob(models.AnalyticsRef("not-an-object-id"), now)
	unknown := models.SyncJob{ID: primitive.NewObjectID(), Kind: "rebuild_everything", Status: models.JobPending, NextAttemptAt: now}
	emptyNotify := models.NotifyJob(models.UserID("2f1c5a8e-7a3b-4d51-9f0e-6a0c8b1e9d42"), "", "", now)
	require.NoError(t, e.ops.EnqueueSyncJobs(e.ctx, badRef, unknown, emptyNotify))

	e.drain()

	for _, j := range e.ops.SyncJobs() {
		assert.Equal(t, models.JobDead, j.Status, "job %s", j.Kind)
		assert.Equal(t, 1, j.Attempts)
		assert.Contains(t, j.LastError, "permanent sync failure")
	}
}

func TestSyncWorker_RefreshOfDeletedProjectCompletes(t *testing.T) {
	e := newTestEnv(t)
	job := models.ProjectAnalyticsJob(models.OperationalRef(primitive.NewObjectID()), e.clock)
	require.NoError(t, e.ops.EnqueueSyncJobs(e.ctx, job))

	e.drain()

	jobs := e.ops.SyncJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobDone, jobs[0].Status)
}

func TestSyncWorker_ReclaimsExpiredLease(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	e.drain()
	e.ops.ResetSyncJobs()
	task := e.task(p.ID.Hex(), owner, "", "")

	// a worker that crashed after claiming
	claimed, err := e.ops.ClaimSyncJobs(e.ctx, e.clock, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	n, err := e.worker.ProcessPending(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.advance(2 * time.Minute)
	e.drain()
	stats, err := e.worker.Stats(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Done)
	_, ok := e.store.TaskMetricsRow(task.ID.Hex())
	assert.True(t, ok)
}

func TestSyncWorker_Run(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)

	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})
	go func() {
		e.worker.Run(ctx)
		close(done)
	}()

	task := e.task(p.ID.Hex(), owner, models.StatusDone, "")
	assert.Eventually(t, func() bool {
		_, ok := e.store.TaskMetricsRow(task.ID.Hex())
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
