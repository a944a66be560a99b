package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestAnalyticsRepository connects to TASKFORGE_TEST_POSTGRES_DSN. Rows are
// keyed by fresh ids so tests do not interfere with each other.
func newTestAnalyticsRepository(t *testing.T) *AnalyticsRepository {
	t.Helper()
	dsn := os.Getenv("TASKFORGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TASKFORGE_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	repo := NewAnalyticsRepository(db)
	require.NoError(t, repo.Migrate())
	return repo
}

func TestAnalyticsRepository_ProjectAnalytics(t *testing.T) {
	repo := newTestAnalyticsRepository(t)
	ctx := context.Background()
	projectID := primitive.NewObjectID().Hex()
	owner := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	t.Cleanup(func() { _ = repo.DeleteProjectData(ctx, projectID) })

	missing, err := repo.GetProjectAnalytics(ctx, projectID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.InitProjectAnalytics(ctx,
		&models.ProjectAnalytics{ProjectID: projectID, TotalMembers: 1, LastUpdated: now},
		&models.ProjectMember{ProjectID: projectID, UserID: owner, Role: models.RoleOwner, JoinedAt: now}))
	// A replayed init keeps the existing snapshot.
	require.NoError(t, repo.InitProjectAnalytics(ctx,
		&models.ProjectAnalytics{ProjectID: projectID, TotalMembers: 9, LastUpdated: now},
		&models.ProjectMember{ProjectID: projectID, UserID: owner, Role: models.RoleOwner, JoinedAt: now}))

	got, err := repo.GetProjectAnalytics(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalMembers)

	require.NoError(t, repo.UpsertProjectAnalytics(ctx, &models.ProjectAnalytics{ProjectID: projectID, TotalTasks: 4, CompletedTasks: 1, CompletionRate: 25, TotalMembers: 1, LastUpdated: now}))
	got, err = repo.GetProjectAnalytics(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalTasks)
	assert.Equal(t, 25.0, got.CompletionRate)

	members, err := repo.ListProjectMembers(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, models.RoleOwner, members[0].Role)

	require.NoError(t, repo.DeleteProjectData(ctx, projectID))
	got, err = repo.GetProjectAnalytics(ctx, projectID)
	require.NoError(t, err)
	assert.Nil(t, got)
	members, err = repo.ListProjectMembers(ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestAnalyticsRepository_TaskMetrics(t *testing.T) {
	repo := newTestAnalyticsRepository(t)
	ctx := context.Background()
	projectID := primitive.NewObjectID().Hex()
	dev := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	t.Cleanup(func() { _ = repo.DeleteProjectData(ctx, projectID) })

	two := 2.0
	rows := []models.TaskMetrics{
		{TaskID: primitive.NewObjectID().Hex(), ProjectID: projectID, Status: models.StatusDone, Priority: "high", AssignedTo: dev, TimeSpent: 3, CompletionTime: &two, TaskCreatedAt: now, UpdatedAt: now},
		{TaskID: primitive.NewObjectID().Hex(), ProjectID: projectID, Status: models.StatusTodo, Priority: "low", AssignedTo: dev, TimeSpent: 1, TaskCreatedAt: now.Add(time.Minute), UpdatedAt: now},
		{TaskID: primitive.NewObjectID().Hex(), ProjectID: projectID, Status: models.StatusTodo, Priority: "low", TaskCreatedAt: now.Add(2 * time.Minute), UpdatedAt: now},
	}
	for i := range rows {
		require.NoError(t, repo.UpsertTaskMetrics(ctx, &rows[i]))
	}

	rows[2].Status = models.StatusInProgress
	rows[2].ID = 0
	require.NoError(t, repo.UpsertTaskMetrics(ctx, &rows[2]))

	list, err := repo.ListTaskMetrics(ctx, interfaces.MetricsQuery{ProjectID: projectID})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, rows[2].TaskID, list[0].TaskID)
	assert.Equal(t, models.StatusInProgress, list[0].Status)

	byStatus, err := repo.AggregateTaskMetrics(ctx, interfaces.MetricsQuery{ProjectID: projectID}, interfaces.GroupByStatus)
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, g := range byStatus {
		counts[g.Key] = g.Count
	}
	assert.Equal(t, map[string]int64{models.StatusDone: 1, models.StatusTodo: 1, models.StatusInProgress: 1}, counts)

	total, err := repo.AggregateTaskMetrics(ctx, interfaces.MetricsQuery{ProjectID: projectID, AssignedTo: dev}, interfaces.GroupNone)
	require.NoError(t, err)
	require.Len(t, total, 1)
	assert.Equal(t, int64(2), total[0].Count)
	assert.InDelta(t, 4.0, total[0].TotalTimeSpent, 1e-9)
	assert.InDelta(t, 2.0, total[0].AvgCompletionTime, 1e-9)

	require.NoError(t, repo.DeleteTaskMetrics(ctx, rows[0].TaskID))
	list, err = repo.ListTaskMetrics(ctx, interfaces.MetricsQuery{ProjectID: projectID})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAnalyticsRepository_UserStatsAndDirectory(t *testing.T) {
	repo := newTestAnalyticsRepository(t)
	ctx := context.Background()
	id := uuid.NewString()

	stats, err := repo.GetUserStats(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stats)

	require.NoError(t, repo.UpsertUserStats(ctx, &models.UserStats{UserID: id, TotalTasks: 3}))
	require.NoError(t, repo.UpsertUserStats(ctx, &models.UserStats{UserID: id, TotalTasks: 5}))
	stats, err = repo.GetUserStats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalTasks)

	_, err = repo.FindUser(ctx, models.UserID(id))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	users, err := repo.FindUsers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}
