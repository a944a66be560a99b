package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"
	"github.com/YadneshTeli/TaskForge-sub000/repositories/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTaskService_CreateTask_Validation(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)

	tests := []struct {
		name   string
		input  CreateTaskInput
		fields []string
	}{
		{
			name:   "missing title and project",
			input:  CreateTaskInput{CreatedBy: owner},
			fields: []string{"title", "projectId"},
		},
		{
			name:   "bad priority and assignee",
			input:  CreateTaskInput{Title: "x", ProjectID: p.ID.Hex(), CreatedBy: owner, Priority: "whenever", AssignedTo: "not-a-uuid"},
			fields: []string{"priority", "assignedTo"},
		},
		{
			name:   "malformed project id",
			input:  CreateTaskInput{Title: "x", ProjectID: "123", CreatedBy: owner},
			fields: []string{"projectId"},
		},
		{
			name:   "negative time spent",
			input:  CreateTaskInput{Title: "x", ProjectID: p.ID.Hex(), CreatedBy: owner, TimeSpent: -1},
			fields: []string{"timeSpent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tasks.CreateTask(e.ctx, tt.input)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			var got []string
			for _, f := range ve.Fields {
				got = append(got, f.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestTaskService_CreateTask_MissingProject(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.tasks.CreateTask(e.ctx, CreateTaskInput{
		Title:     "orphan",
		ProjectID: primitive.NewObjectID().Hex(),
		CreatedBy: e.user("u"),
	})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "project", nf.Resource)
}

func TestTaskService_CreateTask_Defaults(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)

	task := e.task(p.ID.Hex(), owner, "", "")
	assert.Equal(t, models.StatusTodo, task.Status)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Nil(t, task.CompletedAt)
	assert.NotNil(t, task.Tags)

	done := e.task(p.ID.Hex(), owner, models.StatusDone, "")
	require.NotNil(t, done.CompletedAt)
}

func TestTaskService_CreateTask_AnalyticsFailureIsIsolated(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	assignee := e.user("assignee")
	p := e.project(owner)

	e.store.FailWith(errors.New("postgres unavailable"))

	task, err := e.tasks.CreateTask(e.ctx, CreateTaskInput{
		Title:      "survives",
		ProjectID:  p.ID.Hex(),
		CreatedBy:  owner,
		AssignedTo: assignee,
	})
	require.NoError(t, err)
	require.NotNil(t, task)

	e.drain()

	stored, err := e.tasks.GetTask(e.ctx, task.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "survives", stored.Title)

	metricsJobs := e.jobsOfKind(models.JobSyncTaskMetrics)
	require.NotEmpty(t, metricsJobs)
	for _, j := range metricsJobs {
		assert.Equal(t, models.JobPending, j.Status, "failed sync stays queued for retry")
		assert.Contains(t, j.LastError, "database operation failed")
	}
}

func TestTaskService_CreateTask_OperationalFailurePropagates(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	e.ops.ResetSyncJobs()

	e.ops.FailWith(errors.New("mongo unavailable"))
	_, err := e.tasks.CreateTask(e.ctx, CreateTaskInput{Title: "x", ProjectID: p.ID.Hex(), CreatedBy: owner})
	var de *DatabaseError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "database operation failed: find project", err.Error())

	e.ops.FailWith(nil)
	assert.Empty(t, e.ops.SyncJobs())
}

func TestTaskService_CreateTask_EnqueuesJobs(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	assignee := e.user("assignee")
	p := e.project(owner)
	e.ops.ResetSyncJobs()

	e.task(p.ID.Hex(), owner, "", assignee)

	kinds := map[models.SyncJobKind]int{}
	for _, j := range e.ops.SyncJobs() {
		kinds[j.Kind]++
	}
	assert.Equal(t, map[models.SyncJobKind]int{
		models.JobSyncTaskMetrics:         1,
		models.JobRefreshProjectAnalytics: 1,
		models.JobRecomputeUserStats:      1,
		models.JobNotifyUser:              1,
	}, kinds)

	e.drain()
	notes, err := e.notifications.ListForUser(e.ctx, assignee, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationTaskAssigned, notes[0].Kind)
}

func TestTaskService_CreateTask_ParentMustShareProject(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p1 := e.project(owner)
	p2 := e.project(owner)
	parent := e.task(p1.ID.Hex(), owner, "", "")

	_, err := e.tasks.CreateTask(e.ctx, CreateTaskInput{
		Title: "child", ProjectID: p2.ID.Hex(), CreatedBy: owner, ParentTaskID: parent.ID.Hex(),
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "parentTaskId", ve.Fields[0].Field)

	child, err := e.tasks.CreateTask(e.ctx, CreateTaskInput{
		Title: "child", ProjectID: p1.ID.Hex(), CreatedBy: owner, ParentTaskID: parent.ID.Hex(),
	})
	require.NoError(t, err)
	require.NotNil(t, child.ParentTaskID)
	assert.Equal(t, parent.ID, *child.ParentTaskID)
}

func TestTaskService_UpdateTask_SelectiveResync(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	assignee := e.user("assignee")
	p := e.project(owner)
	task := e.task(p.ID.Hex(), owner, models.StatusTodo, assignee)
	e.drain()

	before := e.store.Calls("UpsertUserStats")
	e.ops.ResetSyncJobs()

	title := "new"
	_, err := e.tasks.UpdateTask(e.ctx, task.ID.Hex(), models.TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, e.jobsOfKind(models.JobRecomputeUserStats))
	assert.Len(t, e.jobsOfKind(models.JobSyncTaskMetrics), 1)
	e.drain()
	assert.Equal(t, before, e.store.Calls("UpsertUserStats"))

	status := models.StatusDone
	updated, err := e.tasks.UpdateTask(e.ctx, task.ID.Hex(), models.TaskPatch{Status: &status})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	e.drain()
	assert.Equal(t, before+1, e.store.Calls("UpsertUserStats"))

	stats, err := e.tasks.GetUserTaskStats(e.ctx, assignee)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, 100.0, stats.ProductivityScore)
}

func TestTaskService_UpdateTask_ReassignRefreshesBothUsers(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	first := e.user("first")
	second := e.user("second")
	p := e.project(owner)
	task := e.task(p.ID.Hex(), owner, models.StatusInProgress, first)
	e.drain()
	e.ops.ResetSyncJobs()

	_, err := e.tasks.AssignTaskToUser(e.ctx, task.ID.Hex(), second)
	require.NoError(t, err)

	var users []string
	for _, j := range e.jobsOfKind(models.JobRecomputeUserStats) {
		users = append(users, j.UserRef.ID)
	}
	assert.ElementsMatch(t, []string{string(first), string(second)}, users)
	assert.Len(t, e.jobsOfKind(models.JobNotifyUser), 1)

	e.drain()
	firstStats, err := e.tasks.GetUserTaskStats(e.ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 0, firstStats.TotalTasks)
	secondStats, err := e.tasks.GetUserTaskStats(e.ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, secondStats.TasksInProgress)
}

func TestTaskService_AssignTaskToUser_UnknownUser(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	task := e.task(p.ID.Hex(), owner, "", "")

	_, err := e.tasks.AssignTaskToUser(e.ctx, task.ID.Hex(), models.UserID("6c1a1d6e-3f53-4c39-9d4f-0a5d0c4b2f11"))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Resource)
}

func TestTaskService_DeleteTask_Twice(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	task := e.task(p.ID.Hex(), owner, "", "")
	e.drain()
	_, ok := e.store.TaskMetricsRow(task.ID.Hex())
	require.True(t, ok)

	require.NoError(t, e.tasks.DeleteTask(e.ctx, task.ID.Hex()))
	e.drain()
	_, ok = e.store.TaskMetricsRow(task.ID.Hex())
	assert.False(t, ok)

	err := e.tasks.DeleteTask(e.ctx, task.ID.Hex())
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, task.ID.Hex(), nf.ID)
}

func TestTaskService_DeleteTask_NoSynchronousRecompute(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	task := e.task(p.ID.Hex(), owner, "", "")
	e.drain()

	upserts := e.store.Calls("UpsertProjectAnalytics")
	require.NoError(t, e.tasks.DeleteTask(e.ctx, task.ID.Hex()))
	assert.Equal(t, upserts, e.store.Calls("UpsertProjectAnalytics"))
}

func TestTaskService_GetTasksByProject(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	assignee := e.user("assignee")
	p := e.project(owner)
	for i := 0; i < 5; i++ {
		_, err := e.tasks.CreateTask(e.ctx, CreateTaskInput{
			Title: "t", ProjectID: p.ID.Hex(), CreatedBy: owner, Order: 5 - i,
		})
		require.NoError(t, err)
	}
	e.task(p.ID.Hex(), owner, models.StatusDone, assignee)

	page, err := e.tasks.GetTasksByProject(e.ctx, p.ID.Hex(), TaskQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(6), page.Total)
	assert.Equal(t, int64(3), page.TotalPages)
	require.Len(t, page.Tasks, 2)
	assert.LessOrEqual(t, page.Tasks[0].Order, page.Tasks[1].Order)

	done, err := e.tasks.GetTasksByProject(e.ctx, p.ID.Hex(), TaskQuery{Status: models.StatusDone})
	require.NoError(t, err)
	assert.Equal(t, int64(1), done.Total)
	assert.Equal(t, int64(defaultPageLimit), done.Limit)

	mine, err := e.tasks.GetTasksByProject(e.ctx, p.ID.Hex(), TaskQuery{AssignedTo: assignee})
	require.NoError(t, err)
	require.Len(t, mine.Tasks, 1)

	_, err = e.tasks.GetTasksByProject(e.ctx, primitive.NewObjectID().Hex(), TaskQuery{})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestTaskService_GetTaskAnalytics(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	a := e.user("a")
	b := e.user("b")
	p := e.project(owner)

	for _, in := range []CreateTaskInput{
		{Title: "1", Status: models.StatusDone, AssignedTo: a, TimeSpent: 2},
		{Title: "2", Status: models.StatusDone, AssignedTo: a, TimeSpent: 4},
		{Title: "3", Status: models.StatusTodo, AssignedTo: b, TimeSpent: 1.5},
	} {
		in.ProjectID = p.ID.Hex()
		in.CreatedBy = owner
		_, err := e.tasks.CreateTask(e.ctx, in)
		require.NoError(t, err)
	}
	e.drain()

	byStatus, err := e.tasks.GetTaskAnalytics(e.ctx, p.ID.Hex(), TaskAnalyticsQuery{GroupBy: interfaces.GroupByStatus})
	require.NoError(t, err)
	groups := map[string]models.MetricsGroup{}
	for _, g := range byStatus.Groups {
		groups[g.Key] = g
	}
	assert.Equal(t, int64(2), groups[models.StatusDone].Count)
	assert.Equal(t, 3.0, groups[models.StatusDone].AvgTimeSpent)
	assert.Equal(t, int64(1), groups[models.StatusTodo].Count)

	byUser, err := e.tasks.GetTaskAnalytics(e.ctx, p.ID.Hex(), TaskAnalyticsQuery{GroupBy: interfaces.GroupByUser})
	require.NoError(t, err)
	totals := map[string]float64{}
	for _, g := range byUser.Groups {
		totals[g.Key] = g.TotalTimeSpent
	}
	assert.Equal(t, map[string]float64{string(a): 6, string(b): 1.5}, totals)

	raw, err := e.tasks.GetTaskAnalytics(e.ctx, p.ID.Hex(), TaskAnalyticsQuery{Status: models.StatusDone})
	require.NoError(t, err)
	assert.Len(t, raw.Metrics, 2)
	assert.Empty(t, raw.Groups)

	_, err = e.tasks.GetTaskAnalytics(e.ctx, p.ID.Hex(), TaskAnalyticsQuery{GroupBy: "priority"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTaskService_GetUserTaskStats_Missing(t *testing.T) {
	e := newTestEnv(t)
	user := e.user("nobody")

	stats, err := e.tasks.GetUserTaskStats(e.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, string(user), stats.UserID)
	assert.Zero(t, stats.TotalTasks)
	assert.Zero(t, stats.TasksCompleted)
	assert.Zero(t, stats.TasksInProgress)
	assert.Zero(t, stats.TasksCreated)
	assert.Zero(t, stats.TotalTimeSpent)
	assert.Zero(t, stats.AvgCompletionTime)
	assert.Zero(t, stats.ProductivityScore)
	assert.Nil(t, stats.LastActivityAt)

	_, err = e.tasks.GetUserTaskStats(e.ctx, "bogus")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTaskService_UpdateUserStats(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	e.task(p.ID.Hex(), owner, models.StatusDone, owner)
	e.task(p.ID.Hex(), owner, models.StatusTodo, owner)

	stats, err := e.tasks.UpdateUserStats(e.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 2, stats.TasksCreated)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, 50.0, stats.ProductivityScore)
	require.NotNil(t, stats.LastActivityAt)
}

func TestTaskService_BatchCreateTasks(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	e.ops.ResetSyncJobs()

	tasks, err := e.tasks.BatchCreateTasks(e.ctx, []CreateTaskInput{
		{Title: "a", ProjectID: p.ID.Hex(), CreatedBy: owner},
		{Title: "b", ProjectID: p.ID.Hex(), CreatedBy: owner, Status: models.StatusDone},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Len(t, e.jobsOfKind(models.JobSyncTaskMetrics), 2)

	e.drain()
	a, err := e.analytics.ProjectAnalytics(e.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.TotalTasks)
	assert.Equal(t, 1, a.CompletedTasks)

	_, err = e.tasks.BatchCreateTasks(e.ctx, []CreateTaskInput{
		{Title: "ok", ProjectID: p.ID.Hex(), CreatedBy: owner},
		{ProjectID: p.ID.Hex(), CreatedBy: owner},
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "tasks[1].title", ve.Fields[0].Field)

	_, err = e.tasks.BatchCreateTasks(e.ctx, nil)
	assert.ErrorAs(t, err, &ve)
}

func TestTaskService_BatchUpdateTasks(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	t1 := e.task(p.ID.Hex(), owner, "", "")
	t2 := e.task(p.ID.Hex(), owner, "", "")
	e.drain()

	done := models.StatusDone
	updated, err := e.tasks.BatchUpdateTasks(e.ctx, []TaskUpdate{
		{ID: t1.ID.Hex(), Patch: models.TaskPatch{Status: &done}},
		{ID: t2.ID.Hex(), Patch: models.TaskPatch{Status: &done}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Tasks, 2)
	assert.Empty(t, updated.Missing)
	e.drain()

	a, err := e.analytics.ProjectAnalytics(e.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.CompletedTasks)
	assert.Equal(t, 100.0, a.CompletionRate)

	_, err = e.tasks.BatchUpdateTasks(e.ctx, []TaskUpdate{
		{ID: "nope", Patch: models.TaskPatch{Status: &done}},
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "updates[0].id", ve.Fields[0].Field)
}

func TestTaskService_BatchUpdateTasks_ReportsMissing(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	kept := e.task(p.ID.Hex(), owner, models.StatusTodo, "")
	gone := e.task(p.ID.Hex(), owner, models.StatusTodo, "")
	e.drain()
	require.NoError(t, e.ops.DeleteTask(e.ctx, gone.ID))
	e.ops.ResetSyncJobs()

	done := models.StatusDone
	res, err := e.tasks.BatchUpdateTasks(e.ctx, []TaskUpdate{
		{ID: gone.ID.Hex(), Patch: models.TaskPatch{Status: &done}},
		{ID: kept.ID.Hex(), Patch: models.TaskPatch{Status: &done}},
	})
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, kept.ID, res.Tasks[0].ID)
	assert.Equal(t, []string{gone.ID.Hex()}, res.Missing)

	metrics := e.jobsOfKind(models.JobSyncTaskMetrics)
	require.Len(t, metrics, 1)
	assert.Equal(t, kept.ID.Hex(), metrics[0].TaskRef.ID)
	assert.Len(t, e.jobsOfKind(models.JobRefreshProjectAnalytics), 1)

	e.drain()
	row, ok := e.store.TaskMetricsRow(kept.ID.Hex())
	require.True(t, ok)
	assert.Equal(t, models.StatusDone, row.Status)
}

// racingStore runs another write right before the next PatchTask reaches
// the store.
type racingStore struct {
	*memstore.Operational
	first func()
}

func (s *racingStore) PatchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch, now time.Time, jobs interfaces.TaskJobs) (*models.Task, error) {
	if f := s.first; f != nil {
		s.first = nil
		f()
	}
	return s.Operational.PatchTask(ctx, id, patch, now, jobs)
}

func TestTaskService_UpdateTask_KeepsConcurrentWrites(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	task := e.task(p.ID.Hex(), owner, models.StatusTodo, "")
	e.drain()

	racing := &racingStore{Operational: e.ops}
	tasks := NewTaskService(racing, e.store, e.analytics, e.worker)
	done := models.StatusDone
	racing.first = func() {
		_, err := tasks.UpdateTask(e.ctx, task.ID.Hex(), models.TaskPatch{Status: &done})
		require.NoError(t, err)
	}

	title := "renamed"
	got, err := tasks.UpdateTask(e.ctx, task.ID.Hex(), models.TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.NotNil(t, got.CompletedAt)

	stored, err := e.ops.FindTask(e.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Title)
	assert.Equal(t, models.StatusDone, stored.Status)

	e.drain()
	row, ok := e.store.TaskMetricsRow(task.ID.Hex())
	require.True(t, ok)
	assert.Equal(t, models.StatusDone, row.Status)
}

func TestTaskService_BatchDeleteTasks(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	t1 := e.task(p.ID.Hex(), owner, "", "")
	t2 := e.task(p.ID.Hex(), owner, "", "")
	e.drain()

	n, err := e.tasks.BatchDeleteTasks(e.ctx, []string{t1.ID.Hex(), t2.ID.Hex(), primitive.NewObjectID().Hex()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	e.drain()

	_, ok := e.store.TaskMetricsRow(t1.ID.Hex())
	assert.False(t, ok)
	_, ok = e.store.TaskMetricsRow(t2.ID.Hex())
	assert.False(t, ok)

	_, err = e.tasks.BatchDeleteTasks(e.ctx, []string{"nope"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTaskService_OverdueCountedInAnalytics(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	p := e.project(owner)
	past := time.Now().Add(-48 * time.Hour)
	_, err := e.tasks.CreateTask(e.ctx, CreateTaskInput{Title: "late", ProjectID: p.ID.Hex(), CreatedBy: owner, DueDate: &past})
	require.NoError(t, err)
	_, err = e.tasks.CreateTask(e.ctx, CreateTaskInput{Title: "late but done", ProjectID: p.ID.Hex(), CreatedBy: owner, DueDate: &past, Status: models.StatusDone})
	require.NoError(t, err)

	a, err := e.analytics.UpdateProjectAnalytics(e.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.OverdueTasks)
	assert.Equal(t, 1, a.PendingTasks)
}
