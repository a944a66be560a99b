package models

import "time"

// ProjectAnalytics is the cached per-project snapshot kept in Postgres.
type ProjectAnalytics struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	ProjectID       string    `gorm:"size:24;not null;uniqueIndex" json:"projectId"`
	TotalTasks      int       `gorm:"not null;default:0" json:"totalTasks"`
	CompletedTasks  int       `gorm:"not null;default:0" json:"completedTasks"`
	InProgressTasks int       `gorm:"not null;default:0" json:"inProgressTasks"`
	PendingTasks    int       `gorm:"not null;default:0" json:"pendingTasks"`
	OverdueTasks    int       `gorm:"not null;default:0" json:"overdueTasks"`
	TotalMembers    int       `gorm:"not null;default:0" json:"totalMembers"`
	TotalComments   int       `gorm:"not null;default:0" json:"totalComments"`
	CompletionRate  float64   `gorm:"not null;default:0" json:"completionRate"`
	LastUpdated     time.Time `gorm:"not null" json:"lastUpdated"`
}

func (ProjectAnalytics) TableName() string {
	return "project_analytics"
}

// Fresh reports whether the snapshot is younger than maxAge.
func (a *ProjectAnalytics) Fresh(now time.Time, maxAge time.Duration) bool {
	return a != nil && now.Sub(a.LastUpdated) <= maxAge
}

// TaskMetrics mirrors one task. CompletionTime is in hours.
type TaskMetrics struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	TaskID         string     `gorm:"size:24;not null;uniqueIndex" json:"taskId"`
	ProjectID      string     `gorm:"size:24;not null;index" json:"projectId"`
	Status         string     `gorm:"not null;index" json:"status"`
	Priority       string     `gorm:"not null" json:"priority"`
	AssignedTo     string     `gorm:"index" json:"assignedTo,omitempty"`
	CreatedBy      string     `gorm:"index" json:"createdBy"`
	TimeSpent      float64    `gorm:"not null;default:0" json:"timeSpent"`
	CompletionTime *float64   `json:"completionTime"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	TaskCreatedAt  time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (TaskMetrics) TableName() string {
	return "task_metrics"
}

// NewTaskMetrics builds the metrics row for a task.
func NewTaskMetrics(t *Task) TaskMetrics {
	m := TaskMetrics{
		TaskID:        t.ID.Hex(),
		ProjectID:     t.ProjectID.Hex(),
		Status:        t.Status,
		Priority:      string(t.Priority),
		AssignedTo:    string(t.AssignedTo),
		CreatedBy:     string(t.CreatedBy),
		TimeSpent:     t.TimeSpent,
		DueDate:       t.DueDate,
		CompletedAt:   t.CompletedAt,
		TaskCreatedAt: t.CreatedAt,
	}
	if t.CompletedAt != nil {
		hours := t.CompletedAt.Sub(t.CreatedAt).Hours()
		m.CompletionTime = &hours
	}
	return m
}

type UserStats struct {
	UserID            string     `gorm:"primaryKey;size:36" json:"userId"`
	TasksCreated      int        `gorm:"not null;default:0" json:"tasksCreated"`
	TasksCompleted    int        `gorm:"not null;default:0" json:"tasksCompleted"`
	TasksInProgress   int        `gorm:"not null;default:0" json:"tasksInProgress"`
	TotalTasks        int        `gorm:"not null;default:0" json:"totalTasks"`
	TotalTimeSpent    float64    `gorm:"not null;default:0" json:"totalTimeSpent"`
	AvgCompletionTime float64    `gorm:"not null;default:0" json:"avgCompletionTime"`
	ProductivityScore float64    `gorm:"not null;default:0" json:"productivityScore"`
	LastActivityAt    *time.Time `json:"lastActivityAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (UserStats) TableName() string {
	return "user_stats"
}

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

type ProjectMember struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	ProjectID string     `gorm:"size:24;not null;uniqueIndex:idx_project_user" json:"projectId"`
	UserID    string     `gorm:"size:36;not null;uniqueIndex:idx_project_user;index" json:"userId"`
	Role      MemberRole `gorm:"size:16;not null" json:"role"`
	JoinedAt  time.Time  `gorm:"not null" json:"joinedAt"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}

// User is read-only profile data owned by the account service.
type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Username string `gorm:"uniqueIndex" json:"username"`
	Email    string `gorm:"uniqueIndex" json:"email"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `gorm:"size:16;default:user" json:"role"`
}

func (User) TableName() string {
	return "users"
}

// MetricsGroup is one bucket of an aggregate over task metrics. Key is the
// status or the user id, depending on the grouping.
type MetricsGroup struct {
	Key               string  `json:"key"`
	Count             int64   `json:"count"`
	TotalTimeSpent    float64 `json:"totalTimeSpent"`
	AvgTimeSpent      float64 `json:"avgTimeSpent"`
	AvgCompletionTime float64 `json:"avgCompletionTime"`
}
