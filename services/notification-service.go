package services

import (
	"context"
	"strings"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"
)

const defaultNotificationLimit = 50

type NotificationService struct {
	repo interfaces.NotificationStore
	now  func() time.Time
}

func NewNotificationService(repo interfaces.NotificationStore) *NotificationService {
	return &NotificationService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Notify stores a notification for the user. Cassandra keeps timestamps at
// millisecond precision, so createdAt is truncated before it becomes part of
// the row key.
func (ns *NotificationService) Notify(ctx context.Context, userID models.UserID, kind models.NotificationKind, message string) (*models.Notification, error) {
	v := &ValidationError{}
	validateUser(v, "userId", userID, true)
	if strings.TrimSpace(message) == "" {
		v.Add("message", "is required")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = models.NotificationGeneric
	}
	n := &models.Notification{
		UserID:    userID,
		Kind:      kind,
		Message:   message,
		CreatedAt: ns.now().Truncate(time.Millisecond),
	}
	if err := ns.repo.CreateNotification(ctx, n); err != nil {
		return nil, &DatabaseError{Op: "create notification", Err: err}
	}
	return n, nil
}

func (ns *NotificationService) ListForUser(ctx context.Context, userID models.UserID, limit int) ([]models.Notification, error) {
	if err := userID.Validate(); err != nil {
		return nil, invalid("userId", "must be a valid user id")
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultNotificationLimit
	}
	list, err := ns.repo.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, &DatabaseError{Op: "list notifications", Err: err}
	}
	return list, nil
}

func (ns *NotificationService) MarkRead(ctx context.Context, userID models.UserID, id string, createdAt time.Time) error {
	if id == "" {
		return invalid("id", "is required")
	}
	return storeErr("mark notification read", "notification", id,
		ns.repo.MarkNotificationRead(ctx, userID, id, createdAt.UTC().Truncate(time.Millisecond)))
}

func (ns *NotificationService) Delete(ctx context.Context, userID models.UserID, id string, createdAt time.Time) error {
	if id == "" {
		return invalid("id", "is required")
	}
	return storeErr("delete notification", "notification", id,
		ns.repo.DeleteNotification(ctx, userID, id, createdAt.UTC().Truncate(time.Millisecond)))
}
