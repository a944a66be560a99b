package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SyncJobKind string

const (
	// JobSyncTaskMetrics mirrors a task into its metrics row, or removes the
	// row when the task no longer exists.
	JobSyncTaskMetrics SyncJobKind = "sync_task_metrics"
	// JobRefreshProjectAnalytics recomputes a project's analytics snapshot.
	JobRefreshProjectAnalytics SyncJobKind = "refresh_project_analytics"
	JobRecomputeUserStats      SyncJobKind = "recompute_user_stats"
	// JobInitProjectAnalytics writes the zeroed snapshot and the owner
	// membership row together.
	JobInitProjectAnalytics SyncJobKind = "init_project_analytics"
	// JobSyncProjectMember upserts or deletes a membership row depending on
	// whether the user is still in project.members.
	JobSyncProjectMember SyncJobKind = "sync_project_member"
	JobNotifyUser        SyncJobKind = "notify_user"
)

type SyncJobStatus string

const (
	JobPending    SyncJobStatus = "pending"
	JobProcessing SyncJobStatus = "processing"
	JobDone       SyncJobStatus = "done"
	JobDead       SyncJobStatus = "dead"
)

// SyncJob is an outbox entry written in the same transaction as the
// operational change it describes. Jobs carry references only.
type SyncJob struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Kind             SyncJobKind        `json:"kind" bson:"kind"`
	TaskRef          Ref                `json:"taskRef,omitempty" bson:"taskRef,omitempty"`
	ProjectRef       Ref                `json:"projectRef,omitempty" bson:"projectRef,omitempty"`
	UserRef          Ref                `json:"userRef,omitempty" bson:"userRef,omitempty"`
	NotificationKind NotificationKind   `json:"notificationKind,omitempty" bson:"notificationKind,omitempty"`
	Message          string             `json:"message,omitempty" bson:"message,omitempty"`
	Status           SyncJobStatus      `json:"status" bson:"status"`
	Attempts         int                `json:"attempts" bson:"attempts"`
	LastError        string             `json:"lastError,omitempty" bson:"lastError,omitempty"`
	NextAttemptAt    time.Time          `json:"nextAttemptAt" bson:"nextAttemptAt"`
	LeaseUntil       *time.Time         `json:"leaseUntil,omitempty" bson:"leaseUntil,omitempty"`
	CreatedAt        time.Time          `json:"createdAt" bson:"createdAt"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

func newJob(kind SyncJobKind, now time.Time) SyncJob {
	return SyncJob{
		ID:            primitive.NewObjectID(),
		Kind:          kind,
		Status:        JobPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

func TaskMetricsJob(task Ref, now time.Time) SyncJob {
	j := newJob(JobSyncTaskMetrics, now)
	j.TaskRef = task
	return j
}

func ProjectAnalyticsJob(project Ref, now time.Time) SyncJob {
	j := newJob(JobRefreshProjectAnalytics, now)
	j.ProjectRef = project
	return j
}

func UserStatsJob(user UserID, now time.Time) SyncJob {
	j := newJob(JobRecomputeUserStats, now)
	j.UserRef = user.Ref()
	return j
}

func InitProjectJob(project Ref, owner UserID, now time.Time) SyncJob {
	j := newJob(JobInitProjectAnalytics, now)
	j.ProjectRef = project
	j.UserRef = owner.Ref()
	return j
}

func ProjectMemberJob(project Ref, user UserID, now time.Time) SyncJob {
	j := newJob(JobSyncProjectMember, now)
	j.ProjectRef = project
	j.UserRef = user.Ref()
	return j
}

func NotifyJob(user UserID, kind NotificationKind, message string, now time.Time) SyncJob {
	j := newJob(JobNotifyUser, now)
	j.UserRef = user.Ref()
	j.NotificationKind = kind
	j.Message = message
	return j
}

// OutboxStats counts jobs per status.
type OutboxStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Dead       int64 `json:"dead"`
}
