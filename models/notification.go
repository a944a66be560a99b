package models

import "time"

type NotificationKind string

const (
	NotificationTaskAssigned NotificationKind = "task_assigned"
	NotificationMemberAdded  NotificationKind = "member_added"
	NotificationGeneric      NotificationKind = "generic"
)

type Notification struct {
	ID        string           `cassandra:"id" json:"id"`
	UserID    UserID           `cassandra:"user_id" json:"userId"`
	Kind      NotificationKind `cassandra:"kind" json:"kind"`
	Message   string           `cassandra:"message" json:"message"`
	CreatedAt time.Time        `cassandra:"created_at" json:"createdAt"`
	IsRead    bool             `cassandra:"is_read" json:"isRead"`
}
