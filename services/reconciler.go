package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const reconcilePageSize = 100

type SweepReport struct {
	ProjectsChecked   int `json:"projectsChecked"`
	Drifted           int `json:"drifted"`
	MetricsRepaired   int `json:"metricsRepaired"`
	MetricsRemoved    int `json:"metricsRemoved"`
	MembersRepaired   int `json:"membersRepaired"`
	MembersRemoved    int `json:"membersRemoved"`
	UserStatsRepaired int `json:"userStatsRepaired"`
	OrphansRemoved    int `json:"orphansRemoved"`
}

// Reconciler walks the operational store and repairs analytics rows that
// drifted, covering jobs that died or rows written by hand.
type Reconciler struct {
	ops       interfaces.OperationalStore
	store     interfaces.AnalyticsStore
	analytics *AnalyticsService
	interval  time.Duration
	pageSize  int64
}

func NewReconciler(ops interfaces.OperationalStore, store interfaces.AnalyticsStore, analytics *AnalyticsService, interval time.Duration) *Reconciler {
	return &Reconciler{
		ops:       ops,
		store:     store,
		analytics: analytics,
		interval:  interval,
		pageSize:  reconcilePageSize,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logging.Logger.Errorf("Event ID: RECONCILE_FAILED, Description: %v", err)
				}
				continue
			}
			logging.Logger.WithFields(logrus.Fields{
				"projects": report.ProjectsChecked,
				"drifted":  report.Drifted,
				"repaired": report.MetricsRepaired,
				"removed":  report.MetricsRemoved,
				"members":  report.MembersRepaired + report.MembersRemoved,
				"users":    report.UserStatsRepaired,
				"orphans":  report.OrphansRemoved,
			}).Info("Event ID: RECONCILE_DONE, Description: Analytics sweep finished")
		}
	}
}

// Sweep checks every project once, then the stats of every user seen on
// those projects. It stops at the first store error.
func (r *Reconciler) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	users := map[models.UserID]struct{}{}
	after := primitive.NilObjectID
	for {
		ids, err := r.ops.ProjectIDs(ctx, after, r.pageSize)
		if err != nil {
			return report, &DatabaseError{Op: "list project ids", Err: err}
		}
		for _, id := range ids {
			if err := r.reconcileProject(ctx, id, users, &report); err != nil {
				return report, err
			}
			report.ProjectsChecked++
		}
		if int64(len(ids)) < r.pageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	if err := r.reconcileUsers(ctx, users, &report); err != nil {
		return report, err
	}
	if err := r.removeOrphans(ctx, &report); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Reconciler) reconcileProject(ctx context.Context, id primitive.ObjectID, users map[models.UserID]struct{}, report *SweepReport) error {
	cached, err := r.store.GetProjectAnalytics(ctx, id.Hex())
	if err != nil {
		return &DatabaseError{Op: "get project analytics", Err: err}
	}
	fresh, err := r.analytics.UpdateProjectAnalytics(ctx, id)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nil
	}
	if err != nil {
		return err
	}
	if countsDiffer(cached, fresh) {
		report.Drifted++
	}

	project, err := r.ops.FindProject(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("find project", "project", id.Hex(), err)
	}
	for _, m := range project.Members {
		users[m] = struct{}{}
	}
	if err := r.reconcileMembers(ctx, project, report); err != nil {
		return err
	}

	tasks, err := r.ops.FindTasks(ctx, interfaces.TaskFilter{ProjectID: &id}, interfaces.Page{})
	if err != nil {
		return storeErr("list project tasks", "project", id.Hex(), err)
	}
	for i := range tasks {
		users[tasks[i].CreatedBy] = struct{}{}
		if tasks[i].AssignedTo != "" {
			users[tasks[i].AssignedTo] = struct{}{}
		}
	}
	rows, err := r.store.ListTaskMetrics(ctx, interfaces.MetricsQuery{ProjectID: id.Hex()})
	if err != nil {
		return &DatabaseError{Op: "list task metrics", Err: err}
	}
	stored := make(map[string]models.TaskMetrics, len(rows))
	for _, m := range rows {
		stored[m.TaskID] = m
	}

	for i := range tasks {
		want := models.NewTaskMetrics(&tasks[i])
		have, ok := stored[want.TaskID]
		delete(stored, want.TaskID)
		if ok && !metricsDiffer(have, want) {
			continue
		}
		if err := r.store.UpsertTaskMetrics(ctx, &want); err != nil {
			return &DatabaseError{Op: "upsert task metrics", Err: err}
		}
		report.MetricsRepaired++
	}

	if len(stored) > 0 {
		extra := make([]string, 0, len(stored))
		for taskID := range stored {
			extra = append(extra, taskID)
		}
		if err := r.store.DeleteTaskMetrics(ctx, extra...); err != nil {
			return &DatabaseError{Op: "delete task metrics", Err: err}
		}
		report.MetricsRemoved += len(extra)
	}
	return nil
}

// reconcileMembers makes the membership rows match project.Members.
func (r *Reconciler) reconcileMembers(ctx context.Context, project *models.Project, report *SweepReport) error {
	pid := project.ID.Hex()
	rows, err := r.store.ListProjectMembers(ctx, pid)
	if err != nil {
		return &DatabaseError{Op: "list project members", Err: err}
	}
	stored := make(map[string]models.ProjectMember, len(rows))
	for _, m := range rows {
		stored[m.UserID] = m
	}

	now := r.analytics.now()
	for _, userID := range project.Members {
		role := models.RoleMember
		if userID == project.OwnerID {
			role = models.RoleOwner
		}
		have, ok := stored[string(userID)]
		delete(stored, string(userID))
		if ok && have.Role == role {
			continue
		}
		m := &models.ProjectMember{ProjectID: pid, UserID: string(userID), Role: role, JoinedAt: now}
		if err := r.store.UpsertProjectMember(ctx, m); err != nil {
			return &DatabaseError{Op: "upsert project member", Err: err}
		}
		report.MembersRepaired++
	}

	for userID := range stored {
		if err := r.store.DeleteProjectMember(ctx, pid, userID); err != nil {
			return &DatabaseError{Op: "delete project member", Err: err}
		}
		report.MembersRemoved++
	}
	return nil
}

// reconcileUsers recomputes the stats row of every user id collected during
// the project pass. Ids that are not user ids are skipped.
func (r *Reconciler) reconcileUsers(ctx context.Context, users map[models.UserID]struct{}, report *SweepReport) error {
	ids := make([]models.UserID, 0, len(users))
	for id := range users {
		if id.Validate() == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })

	for _, id := range ids {
		cached, err := r.store.GetUserStats(ctx, string(id))
		if err != nil {
			return &DatabaseError{Op: "get user stats", Err: err}
		}
		fresh, err := r.analytics.RecomputeUserStats(ctx, id)
		if err != nil {
			return err
		}
		if userStatsDiffer(cached, fresh) {
			report.UserStatsRepaired++
		}
	}
	return nil
}

// removeOrphans drops analytics rows of projects that no longer exist.
func (r *Reconciler) removeOrphans(ctx context.Context, report *SweepReport) error {
	ids, err := r.store.AnalyticsProjectIDs(ctx)
	if err != nil {
		return &DatabaseError{Op: "list analytics projects", Err: err}
	}
	for _, id := range ids {
		oid, err := models.ParseObjectID(id)
		if err == nil {
			_, err = r.ops.FindProject(ctx, oid)
			if err == nil {
				continue
			}
			if !errors.Is(err, interfaces.ErrNotFound) {
				return storeErr("find project", "project", id, err)
			}
		}
		if err := r.store.DeleteProjectData(ctx, id); err != nil {
			return &DatabaseError{Op: "delete project analytics", Err: err}
		}
		report.OrphansRemoved++
	}
	return nil
}

func countsDiffer(a, b *models.ProjectAnalytics) bool {
	if a == nil || b == nil {
		return a != b
	}
	return a.TotalTasks != b.TotalTasks ||
		a.CompletedTasks != b.CompletedTasks ||
		a.InProgressTasks != b.InProgressTasks ||
		a.PendingTasks != b.PendingTasks ||
		a.OverdueTasks != b.OverdueTasks ||
		a.TotalMembers != b.TotalMembers ||
		a.TotalComments != b.TotalComments
}

func userStatsDiffer(a, b *models.UserStats) bool {
	if a == nil || b == nil {
		return a != b
	}
	return a.TasksCreated != b.TasksCreated ||
		a.TasksCompleted != b.TasksCompleted ||
		a.TasksInProgress != b.TasksInProgress ||
		a.TotalTasks != b.TotalTasks ||
		a.TotalTimeSpent != b.TotalTimeSpent ||
		a.AvgCompletionTime != b.AvgCompletionTime ||
		timesDiffer(a.LastActivityAt, b.LastActivityAt)
}

func timesDiffer(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a != b
	}
	return !a.Equal(*b)
}

func metricsDiffer(have, want models.TaskMetrics) bool {
	return have.ProjectID != want.ProjectID ||
		have.Status != want.Status ||
		have.Priority != want.Priority ||
		have.AssignedTo != want.AssignedTo ||
		have.TimeSpent != want.TimeSpent ||
		timesDiffer(have.DueDate, want.DueDate) ||
		timesDiffer(have.CompletedAt, want.CompletedAt)
}
