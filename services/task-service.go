package services

import (
	"context"
	"errors"
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
	maxTitleLength    = 200
	defaultPageLimit  = 10
	maxPageLimit      = 100
	maxBatchSize      = 100
	taskNotifyMessage = "You were assigned to task %q"
)

type TaskService struct {
	ops       interfaces.OperationalStore
	users     interfaces.UserDirectory
	analytics *AnalyticsService
	waker     Waker
	now       func() time.Time
}

func NewTaskService(ops interfaces.OperationalStore, users interfaces.UserDirectory, analytics *AnalyticsService, waker Waker) *TaskService {
	return &TaskService{
		ops:       ops,
		users:     users,
		analytics: analytics,
		waker:     waker,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CreateTaskInput struct {
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Status       string                 `json:"status"`
	Priority     models.Priority        `json:"priority"`
	ProjectID    string                 `json:"projectId"`
	AssignedTo   models.UserID          `json:"assignedTo"`
	CreatedBy    models.UserID          `json:"createdBy"`
	Tags         []string               `json:"tags"`
	Watchers     []models.UserID        `json:"watchers"`
	CustomFields map[string]interface{} `json:"customFields"`
	DueDate      *time.Time             `json:"dueDate"`
	ParentTaskID string                 `json:"parentTaskId"`
	Order        int                    `json:"order"`
	TimeSpent    float64                `json:"timeSpent"`
}

type TaskQuery struct {
	Status     string
	AssignedTo models.UserID
	SortBy     string
	SortOrder  string
	Page       int64
	Limit      int64
}

type TaskPage struct {
	Tasks      []models.Task `json:"tasks"`
	Total      int64         `json:"total"`
	Page       int64         `json:"page"`
	Limit      int64         `json:"limit"`
	TotalPages int64         `json:"totalPages"`
}

type TaskAnalyticsQuery struct {
	GroupBy  interfaces.MetricsGroupBy
	Status   string
	DateFrom *time.Time
	DateTo   *time.Time
}

// TaskAnalytics holds either grouped figures or raw metric rows.
type TaskAnalytics struct {
	ProjectID string                `json:"projectId"`
	GroupBy   string                `json:"groupBy,omitempty"`
	Groups    []models.MetricsGroup `json:"groups,omitempty"`
	Metrics   []models.TaskMetrics  `json:"metrics,omitempty"`
}

type TaskUpdate struct {
	ID    string           `json:"id"`
	Patch models.TaskPatch `json:"patch"`
}

// BatchUpdateResult lists the updated tasks and the ids that were not found.
type BatchUpdateResult struct {
	Tasks   []*models.Task `json:"tasks"`
	Missing []string       `json:"missing,omitempty"`
}

func (s *TaskService) wake() {
	if s.waker != nil {
		s.waker.Notify()
	}
}

func validateTaskInput(v *ValidationError, prefix string, in *CreateTaskInput) {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		v.Add(prefix+"title", "is required")
	case len(title) > maxTitleLength:
		v.Add(prefix+"title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
	if in.ProjectID == "" {
		v.Add(prefix+"projectId", "is required")
	} else if !primitive.IsValidObjectID(in.ProjectID) {
		v.Add(prefix+"projectId", "must be a valid id")
	}
	if in.Priority != "" && !in.Priority.Valid() {
		v.Add(prefix+"priority", "must be one of low, medium, high, urgent")
	}
	if in.ParentTaskID != "" && !primitive.IsValidObjectID(in.ParentTaskID) {
		v.Add(prefix+"parentTaskId", "must be a valid id")
	}
	if in.TimeSpent < 0 {
		v.Add(prefix+"timeSpent", "must not be negative")
	}
	validateUser(v, prefix+"createdBy", in.CreatedBy, true)
	validateUser(v, prefix+"assignedTo", in.AssignedTo, false)
	for i, w := range in.Watchers {
		validateUser(v, fmt.Sprintf("%swatchers[%d]", prefix, i), w, true)
	}
}

func validateTaskPatch(v *ValidationError, prefix string, p *models.TaskPatch) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			v.Add(prefix+"title", "must not be empty")
		} else if len(title) > maxTitleLength {
			v.Add(prefix+"title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
		}
	}
	if p.Status != nil && strings.TrimSpace(*p.Status) == "" {
		v.Add(prefix+"status", "must not be empty")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		v.Add(prefix+"priority", "must be one of low, medium, high, urgent")
	}
	if p.AssignedTo != nil {
		validateUser(v, prefix+"assignedTo", *p.AssignedTo, false)
	}
	if p.TimeSpent != nil && *p.TimeSpent < 0 {
		v.Add(prefix+"timeSpent", "must not be negative")
	}
}

func (s *TaskService) newTask(in *CreateTaskInput, now time.Time) *models.Task {
	t := &models.Task{
		ID:           primitive.NewObjectID(),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Status:       in.Status,
		Priority:     in.Priority,
		AssignedTo:   in.AssignedTo,
		CreatedBy:    in.CreatedBy,
		Tags:         in.Tags,
		Watchers:     in.Watchers,
		CustomFields: in.CustomFields,
		DueDate:      in.DueDate,
		Order:        in.Order,
		TimeSpent:    in.TimeSpent,
		CreatedAt:    now,
	}
	t.ProjectID, _ = primitive.ObjectIDFromHex(in.ProjectID)
	if in.ParentTaskID != "" {
		parent, _ := primitive.ObjectIDFromHex(in.ParentTaskID)
		t.ParentTaskID = &parent
	}
	t.Normalize(now)
	return t
}

// createJobs are the side effects of a new task: its metrics row, the
// project snapshot and, when assigned, the assignee's stats.
func createJobs(t *models.Task, now time.Time) []models.SyncJob {
	jobs := []models.SyncJob{
		models.TaskMetricsJob(t.Ref(), now),
		models.ProjectAnalyticsJob(t.ProjectRef(), now),
	}
	if t.AssignedTo != "" {
		jobs = append(jobs,
			models.UserStatsJob(t.AssignedTo, now),
			models.NotifyJob(t.AssignedTo, models.NotificationTaskAssigned, fmt.Sprintf(taskNotifyMessage, t.Title), now),
		)
	}
	return jobs
}

// updateJobs resyncs the metrics row always, and the project snapshot and
// the affected users' stats only when status, assignee or due date moved.
func updateJobs(before, after *models.Task, now time.Time) []models.SyncJob {
	jobs := []models.SyncJob{models.TaskMetricsJob(after.Ref(), now)}
	if !models.AnalyticsRelevantChange(before, after) {
		return jobs
	}
	jobs = append(jobs, models.ProjectAnalyticsJob(after.ProjectRef(), now))
	if after.AssignedTo != "" {
		jobs = append(jobs, models.UserStatsJob(after.AssignedTo, now))
	}
	if before.AssignedTo != after.AssignedTo {
		if before.AssignedTo != "" {
			jobs = append(jobs, models.UserStatsJob(before.AssignedTo, now))
		}
		if after.AssignedTo != "" {
			jobs = append(jobs, models.NotifyJob(after.AssignedTo, models.NotificationTaskAssigned, fmt.Sprintf(taskNotifyMessage, after.Title), now))
		}
	}
	return jobs
}

func jobsAt(now time.Time) interfaces.TaskJobs {
	return func(before, after *models.Task) []models.SyncJob {
		return updateJobs(before, after, now)
	}
}

func deleteJobs(t *models.Task, now time.Time) []models.SyncJob {
	jobs := []models.SyncJob{
		models.TaskMetricsJob(t.Ref(), now),
		models.ProjectAnalyticsJob(t.ProjectRef(), now),
	}
	if t.AssignedTo != "" {
		jobs = append(jobs, models.UserStatsJob(t.AssignedTo, now))
	}
	return jobs
}

func (s *TaskService) checkParent(ctx context.Context, t *models.Task) error {
	if t.ParentTaskID == nil {
		return nil
	}
	parent, err := s.ops.FindTask(ctx, *t.ParentTaskID)
	if err != nil {
		return storeErr("find parent task", "task", t.ParentTaskID.Hex(), err)
	}
	if parent.ProjectID != t.ProjectID {
		return invalid("parentTaskId", "must belong to the same project")
	}
	return nil
}

// CreateTask inserts a task together with its sync jobs. Analytics failures
// never reach the caller; they stay on the outbox and are retried.
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	v := &ValidationError{}
	validateTaskInput(v, "", &in)
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	task := s.newTask(&in, now)
	if _, err := s.ops.FindProject(ctx, task.ProjectID); err != nil {
		return nil, storeErr("find project", "project", in.ProjectID, err)
	}
	if err := s.checkParent(ctx, task); err != nil {
		return nil, err
	}

	if err := s.ops.InsertTask(ctx, task, createJobs(task, now)...); err != nil {
		return nil, storeErr("insert task", "task", task.ID.Hex(), err)
	}
	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Task %s created in project %s", task.ID.Hex(), in.ProjectID)
	s.wake()
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	task, err := s.ops.FindTask(ctx, oid)
	if err != nil {
		return nil, storeErr("find task", "task", id, err)
	}
	return task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	v := &ValidationError{}
	validateTaskPatch(v, "", &patch)
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	task, err := s.ops.PatchTask(ctx, oid, patch, now, jobsAt(now))
	if err != nil {
		return nil, storeErr("update task", "task", id, err)
	}
	s.wake()
	return task, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	oid, err := parseID("id", id)
	if err != nil {
		return err
	}
	task, err := s.ops.FindTask(ctx, oid)
	if err != nil {
		return storeErr("find task", "task", id, err)
	}
	if err := s.ops.DeleteTask(ctx, oid, deleteJobs(task, s.now())...); err != nil {
		return storeErr("delete task", "task", id, err)
	}
	logging.Logger.Infof("Event ID: TASK_DELETED, Description: Task %s deleted", id)
	s.wake()
	return nil
}

func pageBounds(page, limit int64) (int64, int64) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func totalPages(total, limit int64) int64 {
	return (total + limit - 1) / limit
}

func (s *TaskService) GetTasksByProject(ctx context.Context, projectID string, q TaskQuery) (*TaskPage, error) {
	oid, err := parseID("projectId", projectID)
	if err != nil {
		return nil, err
	}
	if q.AssignedTo != "" {
		if err := q.AssignedTo.Validate(); err != nil {
			return nil, invalid("assignedTo", "must be a valid user id")
		}
	}
	if _, err := s.ops.FindProject(ctx, oid); err != nil {
		return nil, storeErr("find project", "project", projectID, err)
	}

	page, limit := pageBounds(q.Page, q.Limit)
	filter := interfaces.TaskFilter{ProjectID: &oid, Status: q.Status, AssignedTo: q.AssignedTo}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "order"
	}
	p := interfaces.Page{Skip: (page - 1) * limit, Limit: limit, SortBy: sortBy, SortDesc: q.SortOrder == "desc"}

	out := &TaskPage{Page: page, Limit: limit}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Total, err = s.ops.CountTasks(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		out.Tasks, err = s.ops.FindTasks(gctx, filter, p)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeErr("list tasks", "project", projectID, err)
	}
	out.TotalPages = totalPages(out.Total, limit)
	return out, nil
}

// AssignTaskToUser checks the user in the directory, then updates the
// assignee like any other patch.
func (s *TaskService) AssignTaskToUser(ctx context.Context, taskID string, userID models.UserID) (*models.Task, error) {
	if err := userID.Validate(); err != nil {
		return nil, invalid("userId", "must be a valid user id")
	}
	if _, err := s.users.FindUser(ctx, userID); err != nil {
		return nil, storeErr("find user", "user", string(userID), err)
	}
	return s.UpdateTask(ctx, taskID, models.TaskPatch{AssignedTo: &userID})
}

func (s *TaskService) GetTaskAnalytics(ctx context.Context, projectID string, q TaskAnalyticsQuery) (*TaskAnalytics, error) {
	if _, err := parseID("projectId", projectID); err != nil {
		return nil, err
	}
	switch q.GroupBy {
	case interfaces.GroupNone, interfaces.GroupByStatus, interfaces.GroupByUser:
	default:
		return nil, invalid("groupBy", "must be status or user")
	}
	mq := interfaces.MetricsQuery{
		ProjectID: projectID,
		Status:    q.Status,
		DateFrom:  q.DateFrom,
		DateTo:    q.DateTo,
		OrderBy:   interfaces.OrderCreatedDesc,
	}

	out := &TaskAnalytics{ProjectID: projectID, GroupBy: string(q.GroupBy)}
	if q.GroupBy == interfaces.GroupNone {
		metrics, err := s.analytics.ListMetrics(ctx, mq)
		if err != nil {
			return nil, err
		}
		out.Metrics = metrics
		return out, nil
	}
	groups, err := s.analytics.AggregateMetrics(ctx, mq, q.GroupBy)
	if err != nil {
		return nil, err
	}
	out.Groups = groups
	return out, nil
}

// GetUserTaskStats returns zeroed stats for users that have none yet.
func (s *TaskService) GetUserTaskStats(ctx context.Context, userID models.UserID) (*models.UserStats, error) {
	if err := userID.Validate(); err != nil {
		return nil, invalid("userId", "must be a valid user id")
	}
	stats, err := s.analytics.UserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return &models.UserStats{UserID: string(userID)}, nil
	}
	return stats, nil
}

// UpdateUserStats recomputes a user's stats right away instead of waiting
// for the outbox.
func (s *TaskService) UpdateUserStats(ctx context.Context, userID models.UserID) (*models.UserStats, error) {
	if err := userID.Validate(); err != nil {
		return nil, invalid("userId", "must be a valid user id")
	}
	return s.analytics.RecomputeUserStats(ctx, userID)
}

// BatchCreateTasks inserts all tasks in one write. Every task gets its own
// sync jobs, so a failing sync for one task leaves the others alone.
func (s *TaskService) BatchCreateTasks(ctx context.Context, inputs []CreateTaskInput) ([]*models.Task, error) {
	if len(inputs) == 0 {
		return nil, invalid("tasks", "must not be empty")
	}
	if len(inputs) > maxBatchSize {
		return nil, invalid("tasks", fmt.Sprintf("must contain at most %d items", maxBatchSize))
	}
	v := &ValidationError{}
	for i := range inputs {
		validateTaskInput(v, fmt.Sprintf("tasks[%d].", i), &inputs[i])
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	tasks := make([]*models.Task, len(inputs))
	projects := map[primitive.ObjectID]struct{}{}
	var jobs []models.SyncJob
	for i := range inputs {
		tasks[i] = s.newTask(&inputs[i], now)
		projects[tasks[i].ProjectID] = struct{}{}
		jobs = append(jobs, createJobs(tasks[i], now)...)
	}

	g, gctx := errgroup.WithContext(ctx)
	for pid := range projects {
		pid := pid
		g.Go(func() error {
			if _, err := s.ops.FindProject(gctx, pid); err != nil {
				return storeErr("find project", "project", pid.Hex(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if err := s.checkParent(ctx, t); err != nil {
			return nil, err
		}
	}

	if err := s.ops.InsertTasks(ctx, tasks, jobs...); err != nil {
		return nil, storeErr("insert tasks", "task", "batch", err)
	}
	logging.Logger.Infof("Event ID: TASKS_BATCH_CREATED, Description: %d tasks created", len(tasks))
	s.wake()
	return tasks, nil
}

func (s *TaskService) BatchUpdateTasks(ctx context.Context, updates []TaskUpdate) (*BatchUpdateResult, error) {
	if len(updates) == 0 {
		return nil, invalid("updates", "must not be empty")
	}
	if len(updates) > maxBatchSize {
		return nil, invalid("updates", fmt.Sprintf("must contain at most %d items", maxBatchSize))
	}
	v := &ValidationError{}
	ids := make([]primitive.ObjectID, len(updates))
	for i := range updates {
		oid, err := primitive.ObjectIDFromHex(updates[i].ID)
		if err != nil {
			v.Add(fmt.Sprintf("updates[%d].id", i), "must be a valid id")
		}
		ids[i] = oid
		validateTaskPatch(v, fmt.Sprintf("updates[%d].", i), &updates[i].Patch)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	ops := make([]interfaces.TaskPatchOp, len(updates))
	for i := range updates {
		ops[i] = interfaces.TaskPatchOp{ID: ids[i], Patch: updates[i].Patch}
	}
	now := s.now()
	updated, missing, err := s.ops.PatchTasks(ctx, ops, now, jobsAt(now))
	if err != nil {
		return nil, storeErr("update tasks", "task", "batch", err)
	}
	result := &BatchUpdateResult{Tasks: updated, Missing: make([]string, len(missing))}
	for i, id := range missing {
		result.Missing[i] = id.Hex()
	}
	if result.Tasks == nil {
		result.Tasks = []*models.Task{}
	}
	if len(missing) > 0 {
		logging.Logger.Warnf("Event ID: TASKS_BATCH_UPDATE_MISSING, Description: %d of %d tasks not found", len(missing), len(updates))
	}
	s.wake()
	return result, nil
}

// BatchDeleteTasks deletes the listed tasks and reports how many existed.
func (s *TaskService) BatchDeleteTasks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, invalid("ids", "must not be empty")
	}
	if len(ids) > maxBatchSize {
		return 0, invalid("ids", fmt.Sprintf("must contain at most %d items", maxBatchSize))
	}
	v := &ValidationError{}
	oids := make([]primitive.ObjectID, len(ids))
	for i, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			v.Add(fmt.Sprintf("ids[%d]", i), "must be a valid id")
		}
		oids[i] = oid
	}
	if err := v.Err(); err != nil {
		return 0, err
	}

	found := make([]*models.Task, len(oids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range oids {
		i := i
		g.Go(func() error {
			t, err := s.ops.FindTask(gctx, oids[i])
			if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
				return storeErr("find task", "task", ids[i], err)
			}
			found[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	now := s.now()
	var jobs []models.SyncJob
	for _, t := range found {
		if t != nil {
			jobs = append(jobs, deleteJobs(t, now)...)
		}
	}
	n, err := s.ops.DeleteTasks(ctx, oids, jobs...)
	if err != nil {
		return 0, storeErr("delete tasks", "task", "batch", err)
	}
	s.wake()
	return n, nil
}
