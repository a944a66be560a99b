package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// AnalyticsService recomputes the derived rows from the operational store.
// Every method here is idempotent and safe to retry.
type AnalyticsService struct {
	ops          interfaces.OperationalStore
	analytics    interfaces.AnalyticsStore
	maxStaleness time.Duration
	now          func() time.Time
}

func NewAnalyticsService(ops interfaces.OperationalStore, analytics interfaces.AnalyticsStore, maxStaleness time.Duration) *AnalyticsService {
	return &AnalyticsService{
		ops:          ops,
		analytics:    analytics,
		maxStaleness: maxStaleness,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

// ComputeProjectAnalytics derives a snapshot from task digests. Overdue
// tasks have a past due date and a status other than done; pending tasks are
// neither done nor in progress.
func ComputeProjectAnalytics(projectID string, tasks []models.TaskDigest, members, comments int, now time.Time) models.ProjectAnalytics {
	a := models.ProjectAnalytics{
		ProjectID:     projectID,
		TotalTasks:    len(tasks),
		TotalMembers:  members,
		TotalComments: comments,
		LastUpdated:   now,
	}
	for _, t := range tasks {
		switch t.Status {
		case models.StatusDone:
			a.CompletedTasks++
		case models.StatusInProgress:
			a.InProgressTasks++
		default:
			a.PendingTasks++
		}
		if t.DueDate != nil && t.DueDate.Before(now) && t.Status != models.StatusDone {
			a.OverdueTasks++
		}
	}
	a.CompletionRate = percent(int64(a.CompletedTasks), int64(a.TotalTasks))
	return a
}

func (s *AnalyticsService) compute(ctx context.Context, projectID primitive.ObjectID) (*models.ProjectAnalytics, error) {
	var (
		digests  []models.TaskDigest
		comments int64
		project  *models.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		digests, err = s.ops.TaskDigests(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = s.ops.CountComments(gctx, interfaces.CommentFilter{ProjectID: &projectID})
		return err
	})
	g.Go(func() error {
		var err error
		project, err = s.ops.FindProject(gctx, projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeErr("recompute project analytics", "project", projectID.Hex(), err)
	}

	a := ComputeProjectAnalytics(projectID.Hex(), digests, len(project.Members), int(comments), s.now())
	return &a, nil
}

// UpdateProjectAnalytics recomputes a project's snapshot, stores it and
// refreshes the cached task counters on the project document.
func (s *AnalyticsService) UpdateProjectAnalytics(ctx context.Context, projectID primitive.ObjectID) (*models.ProjectAnalytics, error) {
	a, err := s.compute(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.analytics.UpsertProjectAnalytics(ctx, a); err != nil {
		return nil, &DatabaseError{Op: "upsert project analytics", Err: err}
	}
	if err := s.ops.SetProjectTaskStats(ctx, projectID, a.TotalTasks, a.CompletedTasks); err != nil {
		return nil, storeErr("update project stats", "project", projectID.Hex(), err)
	}
	return a, nil
}

// ProjectAnalytics serves the cached snapshot while it is fresh and
// recomputes it otherwise. A failing analytics store degrades to an
// unsaved recomputation.
func (s *AnalyticsService) ProjectAnalytics(ctx context.Context, projectID primitive.ObjectID) (*models.ProjectAnalytics, error) {
	cached, err := s.analytics.GetProjectAnalytics(ctx, projectID.Hex())
	if err != nil {
		logging.Logger.WithField("project_id", projectID.Hex()).
			Warnf("Event ID: ANALYTICS_READ_FAILED, Description: Falling back to recomputation: %v", err)
	} else if cached.Fresh(s.now(), s.maxStaleness) {
		return cached, nil
	}

	a, err := s.compute(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.analytics.UpsertProjectAnalytics(ctx, a); err != nil {
		logging.Logger.WithField("project_id", projectID.Hex()).
			Warnf("Event ID: ANALYTICS_WRITE_FAILED, Description: Serving unsaved snapshot: %v", err)
		return a, nil
	}
	if err := s.ops.SetProjectTaskStats(ctx, projectID, a.TotalTasks, a.CompletedTasks); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		logging.Logger.WithField("project_id", projectID.Hex()).
			Warnf("Event ID: PROJECT_STATS_WRITE_FAILED, Description: %v", err)
	}
	return a, nil
}

// RecomputeUserStats counts the user's tasks in the operational store and
// takes time figures from the metrics aggregate.
func (s *AnalyticsService) RecomputeUserStats(ctx context.Context, userID models.UserID) (*models.UserStats, error) {
	var (
		total, completed, inProgress, created int64
		totals                                []models.MetricsGroup
		latest                                []models.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, f interfaces.TaskFilter) func() error {
		return func() error {
			n, err := s.ops.CountTasks(gctx, f)
			*dst = n
			return err
		}
	}
	g.Go(count(&total, interfaces.TaskFilter{AssignedTo: userID}))
	g.Go(count(&completed, interfaces.TaskFilter{AssignedTo: userID, Status: models.StatusDone}))
	g.Go(count(&inProgress, interfaces.TaskFilter{AssignedTo: userID, Status: models.StatusInProgress}))
	g.Go(count(&created, interfaces.TaskFilter{CreatedBy: userID}))
	g.Go(func() error {
		var err error
		latest, err = s.ops.FindTasks(gctx, interfaces.TaskFilter{AssignedTo: userID},
			interfaces.Page{Limit: 1, SortBy: "updatedAt", SortDesc: true})
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = s.AggregateMetrics(gctx, interfaces.MetricsQuery{AssignedTo: string(userID)}, interfaces.GroupNone)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeErr("recompute user stats", "user", string(userID), err)
	}

	stats := &models.UserStats{
		UserID:            string(userID),
		TasksCreated:      int(created),
		TasksCompleted:    int(completed),
		TasksInProgress:   int(inProgress),
		TotalTasks:        int(total),
		ProductivityScore: percent(completed, total),
		UpdatedAt:         s.now(),
	}
	if len(totals) > 0 {
		stats.TotalTimeSpent = round2(totals[0].TotalTimeSpent)
		stats.AvgCompletionTime = round2(totals[0].AvgCompletionTime)
	}
	if len(latest) > 0 {
		t := latest[0].UpdatedAt
		stats.LastActivityAt = &t
	}
	if err := s.analytics.UpsertUserStats(ctx, stats); err != nil {
		return nil, &DatabaseError{Op: "upsert user stats", Err: err}
	}
	return stats, nil
}

// SyncTaskMetrics mirrors a task into its metrics row and removes the row
// when the task is gone.
func (s *AnalyticsService) SyncTaskMetrics(ctx context.Context, taskID primitive.ObjectID) error {
	task, err := s.ops.FindTask(ctx, taskID)
	if errors.Is(err, interfaces.ErrNotFound) {
		if err := s.analytics.DeleteTaskMetrics(ctx, taskID.Hex()); err != nil {
			return &DatabaseError{Op: "delete task metrics", Err: err}
		}
		return nil
	}
	if err != nil {
		return storeErr("find task", "task", taskID.Hex(), err)
	}
	m := models.NewTaskMetrics(task)
	if err := s.analytics.UpsertTaskMetrics(ctx, &m); err != nil {
		return &DatabaseError{Op: "upsert task metrics", Err: err}
	}
	return nil
}

// InitProjectAnalytics writes the zeroed snapshot and the owner row for a
// new project. A project deleted in the meantime is skipped.
func (s *AnalyticsService) InitProjectAnalytics(ctx context.Context, projectID primitive.ObjectID, owner models.UserID) error {
	project, err := s.ops.FindProject(ctx, projectID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("find project", "project", projectID.Hex(), err)
	}
	now := s.now()
	a := &models.ProjectAnalytics{
		ProjectID:    projectID.Hex(),
		TotalMembers: 1,
		LastUpdated:  now,
	}
	m := &models.ProjectMember{
		ProjectID: projectID.Hex(),
		UserID:    string(owner),
		Role:      models.RoleOwner,
		JoinedAt:  project.CreatedAt,
	}
	if err := s.analytics.InitProjectAnalytics(ctx, a, m); err != nil {
		return &DatabaseError{Op: "init project analytics", Err: err}
	}
	return nil
}

// SyncProjectMember makes the membership row match project.members.
func (s *AnalyticsService) SyncProjectMember(ctx context.Context, projectID primitive.ObjectID, userID models.UserID) error {
	project, err := s.ops.FindProject(ctx, projectID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return storeErr("find project", "project", projectID.Hex(), err)
	}
	if project == nil || !project.HasMember(userID) {
		if err := s.analytics.DeleteProjectMember(ctx, projectID.Hex(), string(userID)); err != nil {
			return &DatabaseError{Op: "delete project member", Err: err}
		}
		return nil
	}
	role := models.RoleMember
	if project.OwnerID == userID {
		role = models.RoleOwner
	}
	m := &models.ProjectMember{
		ProjectID: projectID.Hex(),
		UserID:    string(userID),
		Role:      role,
		JoinedAt:  s.now(),
	}
	if err := s.analytics.UpsertProjectMember(ctx, m); err != nil {
		return &DatabaseError{Op: "upsert project member", Err: err}
	}
	return nil
}

// AggregateMetrics is the one aggregation over task metrics. Task analytics,
// user stats and dashboards all go through it.
func (s *AnalyticsService) AggregateMetrics(ctx context.Context, q interfaces.MetricsQuery, by interfaces.MetricsGroupBy) ([]models.MetricsGroup, error) {
	groups, err := s.analytics.AggregateTaskMetrics(ctx, q, by)
	if err != nil {
		return nil, &DatabaseError{Op: "aggregate task metrics", Err: err}
	}
	for i := range groups {
		groups[i].TotalTimeSpent = round2(groups[i].TotalTimeSpent)
		groups[i].AvgTimeSpent = round2(groups[i].AvgTimeSpent)
		groups[i].AvgCompletionTime = round2(groups[i].AvgCompletionTime)
	}
	return groups, nil
}

func (s *AnalyticsService) ListMetrics(ctx context.Context, q interfaces.MetricsQuery) ([]models.TaskMetrics, error) {
	metrics, err := s.analytics.ListTaskMetrics(ctx, q)
	if err != nil {
		return nil, &DatabaseError{Op: "list task metrics", Err: err}
	}
	return metrics, nil
}

// UserStats returns the stored row, or nil when none exists yet.
func (s *AnalyticsService) UserStats(ctx context.Context, userID models.UserID) (*models.UserStats, error) {
	stats, err := s.analytics.GetUserStats(ctx, string(userID))
	if err != nil {
		return nil, &DatabaseError{Op: "get user stats", Err: err}
	}
	return stats, nil
}
