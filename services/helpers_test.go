package services

import (
	"context"
	"testing"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/config"
	"github.com/YadneshTeli/TaskForge-sub000/models"
	"github.com/YadneshTeli/TaskForge-sub000/repositories/memstore"
	"github.com/YadneshTeli/TaskForge-sub000/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	t             *testing.T
	ctx           context.Context
	ops           *memstore.Operational
	store         *memstore.Analytics
	notes         *memstore.Notifications
	analytics     *AnalyticsService
	notifications *NotificationService
	worker        *SyncWorker
	tasks         *TaskService
	projects      *ProjectService
	comments      *CommentService
	dashboard     *DashboardService
	reconciler    *Reconciler
	authz         *Authorizer
	clock         time.Time
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		PollInterval: time.Hour,
		BatchSize:    50,
		Concurrency:  1,
		MaxAttempts:  3,
		BaseBackoff:  time.Minute,
		MaxBackoff:   10 * time.Minute,
		Lease:        30 * time.Second,
	}
}

// newTestEnv wires every service over in-memory stores. The worker runs on
// env.clock, which starts an hour ahead so freshly enqueued jobs are due.
func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithBreaker(t, config.BreakerConfig{
		MaxRequests:         1,
		Timeout:             time.Millisecond,
		ConsecutiveFailures: 1000,
	})
}

func newTestEnvWithBreaker(t *testing.T, breaker config.BreakerConfig) *testEnv {
	t.Helper()
	e := &testEnv{
		t:     t,
		ctx:   context.Background(),
		ops:   memstore.NewOperational(),
		store: memstore.NewAnalytics(),
		notes: memstore.NewNotifications(),
		clock: time.Now().UTC().Add(time.Hour),
	}
	e.analytics = NewAnalyticsService(e.ops, e.store, 5*time.Minute)
	e.notifications = NewNotificationService(e.notes)
	e.worker = NewSyncWorker(e.ops, e.analytics, e.notifications, utils.NewBreaker("test-analytics", breaker), testSyncConfig())
	e.worker.now = func() time.Time { return e.clock }
	e.tasks = NewTaskService(e.ops, e.store, e.analytics, e.worker)
	e.projects = NewProjectService(e.ops, e.store, e.store, e.analytics, e.worker)
	e.comments = NewCommentService(e.ops, e.worker)
	e.dashboard = NewDashboardService(e.projects, e.tasks, e.ops)
	e.reconciler = NewReconciler(e.ops, e.store, e.analytics, time.Hour)
	e.authz = NewAuthorizer(e.ops)
	return e
}

func (e *testEnv) user(name string) models.UserID {
	id := uuid.NewString()
	e.store.AddUser(models.User{ID: id, Username: name, Email: name + "@example.com", FullName: name})
	return models.UserID(id)
}

func (e *testEnv) project(owner models.UserID, members ...models.UserID) *models.Project {
	e.t.Helper()
	p, err := e.projects.CreateProject(e.ctx, CreateProjectInput{Name: "Project", OwnerID: owner, Members: members})
	require.NoError(e.t, err)
	return p
}

func (e *testEnv) task(projectID string, creator models.UserID, status string, assignee models.UserID) *models.Task {
	e.t.Helper()
	task, err := e.tasks.CreateTask(e.ctx, CreateTaskInput{
		Title:      "Task " + status,
		ProjectID:  projectID,
		CreatedBy:  creator,
		Status:     status,
		AssignedTo: assignee,
	})
	require.NoError(e.t, err)
	return task
}

func (e *testEnv) drain() {
	e.t.Helper()
	require.NoError(e.t, e.worker.Drain(e.ctx))
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

func (e *testEnv) jobsOfKind(kind models.SyncJobKind) []models.SyncJob {
	var out []models.SyncJob
	for _, j := range e.ops.SyncJobs() {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}
