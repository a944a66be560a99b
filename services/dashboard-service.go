package services

import (
	"context"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"golang.org/x/sync/errgroup"
)

const overviewRecentTasks = 10

// DashboardService composes project and task reads into single responses.
type DashboardService struct {
	projects *ProjectService
	tasks    *TaskService
	ops      interfaces.OperationalStore
}

func NewDashboardService(projects *ProjectService, tasks *TaskService, ops interfaces.OperationalStore) *DashboardService {
	return &DashboardService{projects: projects, tasks: tasks, ops: ops}
}

type ProjectOverview struct {
	Project       *ProjectDetails `json:"project"`
	Dashboard     *DashboardData  `json:"dashboard"`
	UserAnalytics *TaskAnalytics  `json:"userAnalytics"`
}

type UserOverview struct {
	Stats       *models.UserStats `json:"stats"`
	Projects    *ProjectPage      `json:"projects"`
	RecentTasks []models.Task     `json:"recentTasks"`
}

func (s *DashboardService) ProjectOverview(ctx context.Context, projectID string) (*ProjectOverview, error) {
	out := &ProjectOverview{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Project, err = s.projects.GetProjectByID(gctx, projectID, ProjectOptions{IncludeUsers: true})
		return err
	})
	g.Go(func() error {
		var err error
		out.Dashboard, err = s.projects.GetProjectDashboardData(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		out.UserAnalytics, err = s.tasks.GetTaskAnalytics(gctx, projectID, TaskAnalyticsQuery{GroupBy: interfaces.GroupByUser})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.Project.Analytics = out.Dashboard.Analytics
	return out, nil
}

func (s *DashboardService) UserOverview(ctx context.Context, userID models.UserID) (*UserOverview, error) {
	if err := userID.Validate(); err != nil {
		return nil, invalid("userId", "must be a valid user id")
	}
	out := &UserOverview{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Stats, err = s.tasks.GetUserTaskStats(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		out.Projects, err = s.projects.GetUserProjects(gctx, userID, ProjectQuery{Page: 1})
		return err
	})
	g.Go(func() error {
		tasks, err := s.ops.FindTasks(gctx, interfaces.TaskFilter{AssignedTo: userID},
			interfaces.Page{Limit: overviewRecentTasks, SortBy: "updatedAt", SortDesc: true})
		if err != nil {
			return storeErr("list recent tasks", "user", string(userID), err)
		}
		out.RecentTasks = tasks
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
