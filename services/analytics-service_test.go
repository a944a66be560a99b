package services

import (
	"errors"
	"testing"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestComputeProjectAnalytics(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		tasks []models.TaskDigest
		want  models.ProjectAnalytics
	}{
		{
			name: "no tasks",
			want: models.ProjectAnalytics{ProjectID: "p", TotalMembers: 2, TotalComments: 1, LastUpdated: now},
		},
		{
			name: "mixed",
			tasks: []models.TaskDigest{
				{Status: models.StatusDone, DueDate: &past},
				{Status: models.StatusInProgress, DueDate: &past},
				{Status: models.StatusTodo, DueDate: &future},
				{Status: "review"},
			},
			want: models.ProjectAnalytics{
				ProjectID:       "p",
				TotalTasks:      4,
				CompletedTasks:  1,
				InProgressTasks: 1,
				PendingTasks:    2,
				OverdueTasks:    1,
				TotalMembers:    2,
				TotalComments:   1,
				CompletionRate:  25,
				LastUpdated:     now,
			},
		},
		{
			name:  "thirds round to two decimals",
			tasks: []models.TaskDigest{{Status: models.StatusDone}, {Status: models.StatusTodo}, {Status: models.StatusTodo}},
			want: models.ProjectAnalytics{
				ProjectID:      "p",
				TotalTasks:     3,
				CompletedTasks: 1,
				PendingTasks:   2,
				TotalMembers:   2,
				TotalComments:  1,
				CompletionRate: 33.33,
				LastUpdated:    now,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeProjectAnalytics("p", tt.tasks, 2, 1, now))
		})
	}
}

func TestAnalyticsService_ProjectAnalytics_StoreDown(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	e.task(p.ID.Hex(), owner, models.StatusDone, "")
	e.drain()

	e.store.FailWith(errors.New("postgres down"))
	a, err := e.analytics.ProjectAnalytics(e.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.TotalTasks)
	assert.Equal(t, 100.0, a.CompletionRate)

	_, err = e.analytics.UpdateProjectAnalytics(e.ctx, p.ID)
	var de *DatabaseError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "upsert project analytics", de.Op)
}

func TestAnalyticsService_SyncTaskMetrics(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	task := e.task(p.ID.Hex(), owner, models.StatusDone, owner)

	require.NoError(t, e.analytics.SyncTaskMetrics(e.ctx, task.ID))
	row, ok := e.store.TaskMetricsRow(task.ID.Hex())
	require.True(t, ok)
	assert.Equal(t, p.ID.Hex(), row.ProjectID)
	assert.Equal(t, string(owner), row.AssignedTo)
	require.NotNil(t, row.CompletionTime)
	assert.InDelta(t, 0, *row.CompletionTime, 0.01)

	require.NoError(t, e.tasks.DeleteTask(e.ctx, task.ID.Hex()))
	require.NoError(t, e.analytics.SyncTaskMetrics(e.ctx, task.ID))
	_, ok = e.store.TaskMetricsRow(task.ID.Hex())
	assert.False(t, ok)

	// syncing an unknown task is a no-op delete
	require.NoError(t, e.analytics.SyncTaskMetrics(e.ctx, primitive.NewObjectID()))
}

func TestAnalyticsService_InitProjectAnalytics_SkipsDeletedProject(t *testing.T) {
	e := newTestEnv(t)
	before := e.store.Calls("InitProjectAnalytics")
	require.NoError(t, e.analytics.InitProjectAnalytics(e.ctx, primitive.NewObjectID(), e.user("owner")))
	assert.Equal(t, before, e.store.Calls("InitProjectAnalytics"))
}

func TestAnalyticsService_RecomputeUserStats(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	worker := e.user("worker")
	p := e.project(owner)

	for _, in := range []CreateTaskInput{
		{Title: "a", Status: models.StatusDone, TimeSpent: 1.5},
		{Title: "b", Status: models.StatusInProgress, TimeSpent: 2},
		{Title: "c", Status: models.StatusTodo},
		{Title: "d", Status: models.StatusTodo},
	} {
		in.ProjectID = p.ID.Hex()
		in.CreatedBy = owner
		in.AssignedTo = worker
		_, err := e.tasks.CreateTask(e.ctx, in)
		require.NoError(t, err)
	}
	e.drain()

	stats, err := e.analytics.RecomputeUserStats(e.ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTasks)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, 1, stats.TasksInProgress)
	assert.Equal(t, 0, stats.TasksCreated)
	assert.Equal(t, 25.0, stats.ProductivityScore)
	assert.Equal(t, 3.5, stats.TotalTimeSpent)
	require.NotNil(t, stats.LastActivityAt)

	stored, err := e.analytics.UserStats(e.ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, stats.TotalTasks, stored.TotalTasks)
}
