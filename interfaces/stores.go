package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned by every store when the addressed row is missing.
var ErrNotFound = errors.New("not found")

type Page struct {
	Skip     int64
	Limit    int64
	SortBy   string
	SortDesc bool
}

type TaskFilter struct {
	ProjectID  *primitive.ObjectID
	AssignedTo models.UserID
	CreatedBy  models.UserID
	Status     string
}

// ProjectFilter matches projects owned by or shared with UserID.
type ProjectFilter struct {
	UserID models.UserID
	Status models.ProjectStatus
}

type CommentFilter struct {
	TaskID    *primitive.ObjectID
	ProjectID *primitive.ObjectID
}

// TaskJobs derives the outbox jobs of one task update.
type TaskJobs func(before, after *models.Task) []models.SyncJob

type TaskPatchOp struct {
	ID    primitive.ObjectID
	Patch models.TaskPatch
}

// Each write accepts the outbox jobs that must commit together with it.

type ProjectStore interface {
	InsertProject(ctx context.Context, p *models.Project, jobs ...models.SyncJob) error
	FindProject(ctx context.Context, id primitive.ObjectID) (*models.Project, error)
	FindProjects(ctx context.Context, f ProjectFilter, page Page) ([]models.Project, error)
	CountProjects(ctx context.Context, f ProjectFilter) (int64, error)
	// ProjectIDs pages through every project id in ascending order.
	ProjectIDs(ctx context.Context, after primitive.ObjectID, limit int64) ([]primitive.ObjectID, error)
	UpdateProject(ctx context.Context, p *models.Project, jobs ...models.SyncJob) error
	// AddProjectMember and RemoveProjectMember update members and
	// stats.memberCount in one atomic document update.
	AddProjectMember(ctx context.Context, id primitive.ObjectID, user models.UserID, jobs ...models.SyncJob) (*models.Project, error)
	RemoveProjectMember(ctx context.Context, id primitive.ObjectID, user models.UserID, jobs ...models.SyncJob) (*models.Project, error)
	SetProjectTaskStats(ctx context.Context, id primitive.ObjectID, taskCount, completed int) error
	DeleteProject(ctx context.Context, id primitive.ObjectID) error
}

type TaskStore interface {
	InsertTask(ctx context.Context, t *models.Task, jobs ...models.SyncJob) error
	InsertTasks(ctx context.Context, ts []*models.Task, jobs ...models.SyncJob) error
	FindTask(ctx context.Context, id primitive.ObjectID) (*models.Task, error)
	FindTasks(ctx context.Context, f TaskFilter, page Page) ([]models.Task, error)
	CountTasks(ctx context.Context, f TaskFilter) (int64, error)
	TaskDigests(ctx context.Context, projectID primitive.ObjectID) ([]models.TaskDigest, error)
	// PatchTask writes only the fields the patch sets, on top of whatever
	// the stored task holds at that moment. jobs sees the task before and
	// after the write and its result commits with it.
	PatchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch, now time.Time, jobs TaskJobs) (*models.Task, error)
	// PatchTasks applies each patch like PatchTask. Ids that do not exist
	// are returned in missing and do not stop the rest.
	PatchTasks(ctx context.Context, ops []TaskPatchOp, now time.Time, jobs TaskJobs) (updated []*models.Task, missing []primitive.ObjectID, err error)
	DeleteTask(ctx context.Context, id primitive.ObjectID, jobs ...models.SyncJob) error
	DeleteTasks(ctx context.Context, ids []primitive.ObjectID, jobs ...models.SyncJob) (int64, error)
	DeleteTasksByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error)
}

type CommentStore interface {
	InsertComment(ctx context.Context, c *models.Comment, jobs ...models.SyncJob) error
	FindComment(ctx context.Context, id primitive.ObjectID) (*models.Comment, error)
	FindComments(ctx context.Context, f CommentFilter, page Page) ([]models.Comment, error)
	CountComments(ctx context.Context, f CommentFilter) (int64, error)
	DeleteComment(ctx context.Context, id primitive.ObjectID, jobs ...models.SyncJob) error
	DeleteCommentsByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error)
}

type Outbox interface {
	EnqueueSyncJobs(ctx context.Context, jobs ...models.SyncJob) error
	// ClaimSyncJobs leases up to limit jobs that are due, including jobs
	// whose previous lease expired.
	ClaimSyncJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.SyncJob, error)
	CompleteSyncJob(ctx context.Context, id primitive.ObjectID, now time.Time) error
	FailSyncJob(ctx context.Context, id primitive.ObjectID, errMsg string, next time.Time, dead bool) error
	SyncJobStats(ctx context.Context) (models.OutboxStats, error)
}

// OperationalStore is the write-authoritative document store.
type OperationalStore interface {
	ProjectStore
	TaskStore
	CommentStore
	Outbox
}

type MetricsOrder string

const (
	OrderCreatedDesc   MetricsOrder = "created_desc"
	OrderTimeSpentDesc MetricsOrder = "time_spent_desc"
	OrderUpdatedDesc   MetricsOrder = "updated_desc"
)

type MetricsQuery struct {
	ProjectID  string
	AssignedTo string
	Status     string
	DateFrom   *time.Time
	DateTo     *time.Time
	OrderBy    MetricsOrder
	Limit      int
}

type MetricsGroupBy string

const (
	GroupNone     MetricsGroupBy = ""
	GroupByStatus MetricsGroupBy = "status"
	GroupByUser   MetricsGroupBy = "user"
)

// AnalyticsStore holds the derived rows. Getters return (nil, nil) for a
// missing row since every row can be recomputed.
type AnalyticsStore interface {
	// InitProjectAnalytics writes the snapshot and the owner row in one
	// transaction.
	InitProjectAnalytics(ctx context.Context, a *models.ProjectAnalytics, owner *models.ProjectMember) error
	UpsertProjectAnalytics(ctx context.Context, a *models.ProjectAnalytics) error
	GetProjectAnalytics(ctx context.Context, projectID string) (*models.ProjectAnalytics, error)
	AnalyticsProjectIDs(ctx context.Context) ([]string, error)

	UpsertTaskMetrics(ctx context.Context, m *models.TaskMetrics) error
	DeleteTaskMetrics(ctx context.Context, taskIDs ...string) error
	ListTaskMetrics(ctx context.Context, q MetricsQuery) ([]models.TaskMetrics, error)
	AggregateTaskMetrics(ctx context.Context, q MetricsQuery, by MetricsGroupBy) ([]models.MetricsGroup, error)

	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
	UpsertUserStats(ctx context.Context, s *models.UserStats) error

	UpsertProjectMember(ctx context.Context, m *models.ProjectMember) error
	DeleteProjectMember(ctx context.Context, projectID, userID string) error
	ListProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error)

	// DeleteProjectData removes the snapshot, metrics and membership rows of
	// a project in one transaction.
	DeleteProjectData(ctx context.Context, projectID string) error
}

type UserDirectory interface {
	FindUser(ctx context.Context, id models.UserID) (*models.User, error)
	FindUsers(ctx context.Context, ids []models.UserID) ([]models.User, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID models.UserID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID models.UserID, id string, createdAt time.Time) error
	DeleteNotification(ctx context.Context, userID models.UserID, id string, createdAt time.Time) error
}
