package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const (
	maxProjectNameLength = 100
	dashboardTopTasks    = 20
	dashboardRecentTasks = 10
)

type ProjectService struct {
	ops       interfaces.OperationalStore
	store     interfaces.AnalyticsStore
	users     interfaces.UserDirectory
	analytics *AnalyticsService
	waker     Waker
	now       func() time.Time
}

func NewProjectService(ops interfaces.OperationalStore, store interfaces.AnalyticsStore, users interfaces.UserDirectory, analytics *AnalyticsService, waker Waker) *ProjectService {
	return &ProjectService{
		ops:       ops,
		store:     store,
		users:     users,
		analytics: analytics,
		waker:     waker,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CreateProjectInput struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Status      models.ProjectStatus    `json:"status"`
	OwnerID     models.UserID           `json:"ownerId"`
	Members     []models.UserID         `json:"members"`
	Settings    *models.ProjectSettings `json:"settings"`
	DueDate     *time.Time              `json:"dueDate"`
}

type ProjectOptions struct {
	IncludeUsers     bool
	IncludeAnalytics bool
}

// ProjectDetails is a project with optional user profiles and analytics.
type ProjectDetails struct {
	*models.Project
	Users     []models.User            `json:"users,omitempty"`
	Analytics *models.ProjectAnalytics `json:"analytics,omitempty"`
}

type ProjectQuery struct {
	Page      int64
	Limit     int64
	Status    models.ProjectStatus
	SortBy    string
	SortOrder string
}

type ProjectPage struct {
	Projects   []models.Project `json:"projects"`
	Total      int64            `json:"total"`
	Page       int64            `json:"page"`
	Limit      int64            `json:"limit"`
	TotalPages int64            `json:"totalPages"`
}

type DashboardSummary struct {
	TotalTasks        int64   `json:"totalTasks"`
	CompletedTasks    int64   `json:"completedTasks"`
	InProgressTasks   int64   `json:"inProgressTasks"`
	CompletionRate    float64 `json:"completionRate"`
	Productivity      float64 `json:"productivity"`
	AvgCompletionTime float64 `json:"avgCompletionTime"`
	TotalTimeSpent    float64 `json:"totalTimeSpent"`
	TeamSize          int     `json:"teamSize"`
}

type DashboardData struct {
	ProjectID      string                   `json:"projectId"`
	Analytics      *models.ProjectAnalytics `json:"analytics"`
	Summary        DashboardSummary         `json:"summary"`
	TasksByStatus  map[string]int64         `json:"tasksByStatus"`
	TopTasks       []models.TaskMetrics     `json:"topTasks"`
	RecentActivity []models.TaskMetrics     `json:"recentActivity"`
	Members        []models.ProjectMember   `json:"members"`
}

func (s *ProjectService) wake() {
	if s.waker != nil {
		s.waker.Notify()
	}
}

func validateProjectName(v *ValidationError, name string, required bool) {
	name = strings.TrimSpace(name)
	switch {
	case name == "" && required:
		v.Add("name", "is required")
	case len(name) > maxProjectNameLength:
		v.Add("name", fmt.Sprintf("must be at most %d characters", maxProjectNameLength))
	}
}

// CreateProject inserts the project with its owner among the members. The
// analytics snapshot and the owner row are written later by one job, in one
// analytics transaction.
func (s *ProjectService) CreateProject(ctx context.Context, in CreateProjectInput) (*models.Project, error) {
	v := &ValidationError{}
	validateProjectName(v, in.Name, true)
	validateUser(v, "ownerId", in.OwnerID, true)
	for i, m := range in.Members {
		validateUser(v, fmt.Sprintf("members[%d]", i), m, true)
	}
	if in.Status != "" && !in.Status.Valid() {
		v.Add("status", "must be one of active, completed, archived, on-hold")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.Project{
		ID:          primitive.NewObjectID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Status:      in.Status,
		OwnerID:     in.OwnerID,
		Members:     in.Members,
		Settings:    models.DefaultProjectSettings(),
		DueDate:     in.DueDate,
		CreatedAt:   now,
	}
	if in.Settings != nil {
		p.Settings = *in.Settings
	}
	p.Normalize(now)

	jobs := []models.SyncJob{models.InitProjectJob(p.Ref(), p.OwnerID, now)}
	for _, m := range p.Members {
		if m != p.OwnerID {
			jobs = append(jobs, models.ProjectMemberJob(p.Ref(), m, now))
		}
	}
	if len(p.Members) > 1 {
		jobs = append(jobs, models.ProjectAnalyticsJob(p.Ref(), now))
	}

	if err := s.ops.InsertProject(ctx, p, jobs...); err != nil {
		return nil, storeErr("insert project", "project", p.ID.Hex(), err)
	}
	logging.Logger.Infof("Event ID: PROJECT_CREATED, Description: Project %s created by %s", p.ID.Hex(), p.OwnerID)
	s.wake()
	return p, nil
}

func (s *ProjectService) GetProjectByID(ctx context.Context, id string, opts ProjectOptions) (*ProjectDetails, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	p, err := s.ops.FindProject(ctx, oid)
	if err != nil {
		return nil, storeErr("find project", "project", id, err)
	}

	out := &ProjectDetails{Project: p}
	g, gctx := errgroup.WithContext(ctx)
	if opts.IncludeUsers {
		g.Go(func() error {
			ids := append([]models.UserID{p.OwnerID}, p.Members...)
			users, err := s.users.FindUsers(gctx, ids)
			if err != nil {
				return &DatabaseError{Op: "find users", Err: err}
			}
			out.Users = users
			return nil
		})
	}
	if opts.IncludeAnalytics {
		g.Go(func() error {
			a, err := s.analytics.ProjectAnalytics(gctx, oid)
			if err != nil {
				return err
			}
			out.Analytics = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var projectSortKeys = map[string]bool{"name": true, "createdAt": true, "updatedAt": true, "dueDate": true}

func (s *ProjectService) GetUserProjects(ctx context.Context, userID models.UserID, q ProjectQuery) (*ProjectPage, error) {
	v := &ValidationError{}
	validateUser(v, "userId", userID, true)
	if q.Status != "" && !q.Status.Valid() {
		v.Add("status", "must be one of active, completed, archived, on-hold")
	}
	if q.SortBy != "" && !projectSortKeys[q.SortBy] {
		v.Add("sortBy", "must be one of name, createdAt, updatedAt, dueDate")
	}
	if q.SortOrder != "" && q.SortOrder != "asc" && q.SortOrder != "desc" {
		v.Add("sortOrder", "must be asc or desc")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	page, limit := pageBounds(q.Page, q.Limit)
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "updatedAt"
	}
	filter := interfaces.ProjectFilter{UserID: userID, Status: q.Status}
	p := interfaces.Page{Skip: (page - 1) * limit, Limit: limit, SortBy: sortBy, SortDesc: q.SortOrder != "asc"}

	out := &ProjectPage{Page: page, Limit: limit}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Total, err = s.ops.CountProjects(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		out.Projects, err = s.ops.FindProjects(gctx, filter, p)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeErr("list projects", "user", string(userID), err)
	}
	out.TotalPages = totalPages(out.Total, limit)
	return out, nil
}

func (s *ProjectService) UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) (*models.Project, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	v := &ValidationError{}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			v.Add("name", "must not be empty")
		}
		validateProjectName(v, *patch.Name, false)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		v.Add("status", "must be one of active, completed, archived, on-hold")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	p, err := s.ops.FindProject(ctx, oid)
	if err != nil {
		return nil, storeErr("find project", "project", id, err)
	}
	patch.Apply(p)
	now := s.now()
	p.Normalize(now)

	if err := s.ops.UpdateProject(ctx, p, models.ProjectAnalyticsJob(p.Ref(), now)); err != nil {
		return nil, storeErr("update project", "project", id, err)
	}
	s.wake()
	return p, nil
}

// DeleteProject removes the analytics rows in one transaction, then the
// tasks, comments and the project itself in parallel. Rows orphaned by a
// crash in between are removed by the reconciler.
func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	oid, err := parseID("id", id)
	if err != nil {
		return err
	}
	if _, err := s.ops.FindProject(ctx, oid); err != nil {
		return storeErr("find project", "project", id, err)
	}
	assigned, err := s.ops.FindTasks(ctx, interfaces.TaskFilter{ProjectID: &oid}, interfaces.Page{})
	if err != nil {
		return storeErr("list project tasks", "project", id, err)
	}

	if err := s.store.DeleteProjectData(ctx, id); err != nil {
		logging.Logger.WithField("project_id", id).
			Warnf("Event ID: ANALYTICS_DELETE_FAILED, Description: Analytics rows left for the reconciler: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.ops.DeleteTasksByProject(gctx, oid)
		return err
	})
	g.Go(func() error {
		_, err := s.ops.DeleteCommentsByProject(gctx, oid)
		return err
	})
	g.Go(func() error {
		return s.ops.DeleteProject(gctx, oid)
	})
	if err := g.Wait(); err != nil {
		return storeErr("delete project", "project", id, err)
	}

	now := s.now()
	seen := map[models.UserID]bool{}
	var jobs []models.SyncJob
	for _, t := range assigned {
		if t.AssignedTo != "" && !seen[t.AssignedTo] {
			seen[t.AssignedTo] = true
			jobs = append(jobs, models.UserStatsJob(t.AssignedTo, now))
		}
	}
	if len(jobs) > 0 {
		if err := s.ops.EnqueueSyncJobs(ctx, jobs...); err != nil {
			logging.Logger.WithField("project_id", id).
				Warnf("Event ID: SYNC_ENQUEUE_FAILED, Description: User stats refresh skipped: %v", err)
		}
		s.wake()
	}
	logging.Logger.Infof("Event ID: PROJECT_DELETED, Description: Project %s deleted with %d tasks", id, len(assigned))
	return nil
}

func (s *ProjectService) AddMemberToProject(ctx context.Context, projectID string, userID models.UserID) (*models.Project, error) {
	oid, err := parseID("projectId", projectID)
	if err != nil {
		return nil, err
	}
	if err := userID.Validate(); err != nil {
		return nil, invalid("userId", "must be a valid user id")
	}

	var project *models.Project
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		project, err = s.ops.FindProject(gctx, oid)
		return storeErr("find project", "project", projectID, err)
	})
	g.Go(func() error {
		_, err := s.users.FindUser(gctx, userID)
		return storeErr("find user", "user", string(userID), err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if project.HasMember(userID) {
		return project, nil
	}

	now := s.now()
	ref := models.OperationalRef(oid)
	p, err := s.ops.AddProjectMember(ctx, oid, userID,
		models.ProjectMemberJob(ref, userID, now),
		models.ProjectAnalyticsJob(ref, now),
		models.NotifyJob(userID, models.NotificationMemberAdded, fmt.Sprintf("You were added to project %q", project.Name), now),
	)
	if err != nil {
		return nil, storeErr("add project member", "project", projectID, err)
	}
	s.wake()
	return p, nil
}

func (s *ProjectService) RemoveMemberFromProject(ctx context.Context, projectID string, userID models.UserID) (*models.Project, error) {
	oid, err := parseID("projectId", projectID)
	if err != nil {
		return nil, err
	}
	if err := userID.Validate(); err != nil {
		return nil, invalid("userId", "must be a valid user id")
	}
	project, err := s.ops.FindProject(ctx, oid)
	if err != nil {
		return nil, storeErr("find project", "project", projectID, err)
	}
	if project.OwnerID == userID {
		return nil, invalid("userId", "the project owner cannot be removed")
	}
	if !project.HasMember(userID) {
		return nil, &NotFoundError{Resource: "project member", ID: string(userID)}
	}

	now := s.now()
	ref := models.OperationalRef(oid)
	p, err := s.ops.RemoveProjectMember(ctx, oid, userID,
		models.ProjectMemberJob(ref, userID, now),
		models.ProjectAnalyticsJob(ref, now),
	)
	if err != nil {
		return nil, storeErr("remove project member", "project", projectID, err)
	}
	s.wake()
	return p, nil
}

// UpdateProjectAnalytics recomputes a snapshot right away.
func (s *ProjectService) UpdateProjectAnalytics(ctx context.Context, projectID string) (*models.ProjectAnalytics, error) {
	oid, err := parseID("projectId", projectID)
	if err != nil {
		return nil, err
	}
	return s.analytics.UpdateProjectAnalytics(ctx, oid)
}

func (s *ProjectService) GetProjectAnalytics(ctx context.Context, projectID string) (*models.ProjectAnalytics, error) {
	oid, err := parseID("projectId", projectID)
	if err != nil {
		return nil, err
	}
	return s.analytics.ProjectAnalytics(ctx, oid)
}

// GetProjectDashboardData reads both stores in parallel and never writes.
func (s *ProjectService) GetProjectDashboardData(ctx context.Context, projectID string) (*DashboardData, error) {
	oid, err := parseID("projectId", projectID)
	if err != nil {
		return nil, err
	}

	var (
		project  *models.Project
		byStatus []models.MetricsGroup
	)
	out := &DashboardData{ProjectID: projectID, TasksByStatus: map[string]int64{}}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		project, err = s.ops.FindProject(gctx, oid)
		return storeErr("find project", "project", projectID, err)
	})
	g.Go(func() error {
		a, err := s.store.GetProjectAnalytics(gctx, projectID)
		if err != nil {
			return &DatabaseError{Op: "get project analytics", Err: err}
		}
		out.Analytics = a
		return nil
	})
	g.Go(func() error {
		var err error
		out.TopTasks, err = s.analytics.ListMetrics(gctx, interfaces.MetricsQuery{
			ProjectID: projectID, OrderBy: interfaces.OrderTimeSpentDesc, Limit: dashboardTopTasks,
		})
		return err
	})
	g.Go(func() error {
		var err error
		out.RecentActivity, err = s.analytics.ListMetrics(gctx, interfaces.MetricsQuery{
			ProjectID: projectID, OrderBy: interfaces.OrderUpdatedDesc, Limit: dashboardRecentTasks,
		})
		return err
	})
	g.Go(func() error {
		members, err := s.store.ListProjectMembers(gctx, projectID)
		if err != nil {
			return &DatabaseError{Op: "list project members", Err: err}
		}
		out.Members = members
		return nil
	})
	g.Go(func() error {
		var err error
		byStatus, err = s.analytics.AggregateMetrics(gctx, interfaces.MetricsQuery{ProjectID: projectID}, interfaces.GroupByStatus)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	teamSize := len(out.Members)
	if teamSize == 0 {
		teamSize = project.Stats.MemberCount
	}
	out.Summary = SummarizeDashboard(byStatus, teamSize)
	for _, grp := range byStatus {
		out.TasksByStatus[grp.Key] = grp.Count
	}
	return out, nil
}

// SummarizeDashboard folds per-status metric groups into the dashboard
// summary. Productivity is completed tasks per team member.
func SummarizeDashboard(byStatus []models.MetricsGroup, teamSize int) DashboardSummary {
	sum := DashboardSummary{TeamSize: teamSize}
	var completionWeighted float64
	for _, grp := range byStatus {
		sum.TotalTasks += grp.Count
		sum.TotalTimeSpent += grp.TotalTimeSpent
		switch grp.Key {
		case models.StatusDone:
			sum.CompletedTasks += grp.Count
			completionWeighted += grp.AvgCompletionTime * float64(grp.Count)
		case models.StatusInProgress:
			sum.InProgressTasks += grp.Count
		}
	}
	sum.CompletionRate = percent(sum.CompletedTasks, sum.TotalTasks)
	sum.TotalTimeSpent = round2(sum.TotalTimeSpent)
	if sum.CompletedTasks > 0 {
		sum.AvgCompletionTime = round2(completionWeighted / float64(sum.CompletedTasks))
	}
	if teamSize > 0 {
		sum.Productivity = round2(float64(sum.CompletedTasks) / float64(teamSize))
	}
	return sum
}
