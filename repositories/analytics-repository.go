package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/config"
	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// OpenPostgres connects gorm to the analytics database and tunes the pool.
func OpenPostgres(cfg config.PostgresConfig) (*gorm.DB, error) {
	gormLogger := logger.New(logging.Logger, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Connected to Postgres at %s:%s/%s", cfg.Host, cfg.Port, cfg.DBName)
	return db, nil
}

// AnalyticsRepository is the relational analytics store and user directory.
type AnalyticsRepository struct {
	db *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) Migrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.ProjectAnalytics{},
		&models.TaskMetrics{},
		&models.UserStats{},
		&models.ProjectMember{},
	)
}

func (r *AnalyticsRepository) InitProjectAnalytics(ctx context.Context, a *models.ProjectAnalytics, owner *models.ProjectMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}},
			DoNothing: true,
		}).Create(a).Error; err != nil {
			return fmt.Errorf("creating project analytics: %w", err)
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).Create(owner).Error; err != nil {
			return fmt.Errorf("creating owner membership: %w", err)
		}
		return nil
	})
}

func (r *AnalyticsRepository) UpsertProjectAnalytics(ctx context.Context, a *models.ProjectAnalytics) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_tasks", "completed_tasks", "in_progress_tasks", "pending_tasks", "overdue_tasks",
			"total_members", "total_comments", "completion_rate", "last_updated",
		}),
	}).Create(a).Error
}

func (r *AnalyticsRepository) GetProjectAnalytics(ctx context.Context, projectID string) (*models.ProjectAnalytics, error) {
	var a models.ProjectAnalytics
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AnalyticsRepository) AnalyticsProjectIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.ProjectAnalytics{}).Order("project_id").Pluck("project_id", &ids).Error
	return ids, err
}

func (r *AnalyticsRepository) UpsertTaskMetrics(ctx context.Context, m *models.TaskMetrics) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"project_id", "status", "priority", "assigned_to", "created_by", "time_spent",
			"completion_time", "due_date", "completed_at", "task_created_at", "updated_at",
		}),
	}).Create(m).Error
}

func (r *AnalyticsRepository) DeleteTaskMetrics(ctx context.Context, taskIDs ...string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("task_id IN ?", taskIDs).Delete(&models.TaskMetrics{}).Error
}

func (r *AnalyticsRepository) metricsScope(ctx context.Context, q interfaces.MetricsQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&models.TaskMetrics{})
	if q.ProjectID != "" {
		tx = tx.Where("project_id = ?", q.ProjectID)
	}
	if q.AssignedTo != "" {
		tx = tx.Where("assigned_to = ?", q.AssignedTo)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.DateFrom != nil {
		tx = tx.Where("task_created_at >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		tx = tx.Where("task_created_at <= ?", *q.DateTo)
	}
	return tx
}

var metricsOrder = map[interfaces.MetricsOrder]string{
	interfaces.OrderCreatedDesc:   "task_created_at DESC",
	interfaces.OrderTimeSpentDesc: "time_spent DESC",
	interfaces.OrderUpdatedDesc:   "updated_at DESC",
}

func (r *AnalyticsRepository) ListTaskMetrics(ctx context.Context, q interfaces.MetricsQuery) ([]models.TaskMetrics, error) {
	order, ok := metricsOrder[q.OrderBy]
	if !ok {
		order = metricsOrder[interfaces.OrderCreatedDesc]
	}
	tx := r.metricsScope(ctx, q).Order(order).Order("task_id")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	metrics := []models.TaskMetrics{}
	if err := tx.Find(&metrics).Error; err != nil {
		return nil, err
	}
	return metrics, nil
}

const aggregateColumns = "COUNT(*) AS count, " +
	"COALESCE(SUM(time_spent), 0) AS total_time_spent, " +
	"COALESCE(AVG(time_spent), 0) AS avg_time_spent, " +
	"COALESCE(AVG(completion_time), 0) AS avg_completion_time"

// AggregateTaskMetrics is the single aggregation used by task analytics,
// user stats and dashboards.
func (r *AnalyticsRepository) AggregateTaskMetrics(ctx context.Context, q interfaces.MetricsQuery, by interfaces.MetricsGroupBy) ([]models.MetricsGroup, error) {
	tx := r.metricsScope(ctx, q)
	switch by {
	case interfaces.GroupByStatus:
		tx = tx.Select("status AS key, " + aggregateColumns).Group("status").Order("status")
	case interfaces.GroupByUser:
		tx = tx.Select("COALESCE(assigned_to, '') AS key, " + aggregateColumns).Group("assigned_to").Order("assigned_to")
	default:
		tx = tx.Select("'' AS key, " + aggregateColumns)
	}
	groups := []models.MetricsGroup{}
	if err := tx.Scan(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *AnalyticsRepository) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var s models.UserStats
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *AnalyticsRepository) UpsertUserStats(ctx context.Context, s *models.UserStats) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tasks_created", "tasks_completed", "tasks_in_progress", "total_tasks", "total_time_spent",
			"avg_completion_time", "productivity_score", "last_activity_at", "updated_at",
		}),
	}).Create(s).Error
}

func (r *AnalyticsRepository) UpsertProjectMember(ctx context.Context, m *models.ProjectMember) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(m).Error
}

func (r *AnalyticsRepository) DeleteProjectMember(ctx context.Context, projectID, userID string) error {
	return r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&models.ProjectMember{}).Error
}

func (r *AnalyticsRepository) ListProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	members := []models.ProjectMember{}
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("joined_at, user_id").Find(&members).Error
	return members, err
}

func (r *AnalyticsRepository) DeleteProjectData(ctx context.Context, projectID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", projectID).Delete(&models.ProjectAnalytics{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.TaskMetrics{}).Error; err != nil {
			return err
		}
		return tx.Where("project_id = ?", projectID).Delete(&models.ProjectMember{}).Error
	})
}

func (r *AnalyticsRepository) FindUser(ctx context.Context, id models.UserID) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("id = ?", string(id)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *AnalyticsRepository) FindUsers(ctx context.Context, ids []models.UserID) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	err := r.db.WithContext(ctx).
		Select("id", "username", "email", "full_name", "avatar", "role").
		Where("id IN ?", raw).Find(&users).Error
	return users, err
}

var (
	_ interfaces.AnalyticsStore = (*AnalyticsRepository)(nil)
	_ interfaces.UserDirectory  = (*AnalyticsRepository)(nil)
)
