package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"github.com/google/uuid"
)

type Notifications struct {
	mu     sync.RWMutex
	byUser map[models.UserID][]models.Notification
}

func NewNotifications() *Notifications {
	return &Notifications{byUser: map[models.UserID][]models.Notification{}}
}

func (s *Notifications) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.byUser[n.UserID] = append(s.byUser[n.UserID], *n)
	return nil
}

func (s *Notifications) ListNotifications(ctx context.Context, userID models.UserID, limit int) ([]models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Notification{}, s.byUser[userID]...)
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Notifications) find(userID models.UserID, id string, createdAt time.Time) int {
	for i, n := range s.byUser[userID] {
		if n.ID == id && n.CreatedAt.Equal(createdAt) {
			return i
		}
	}
	return -1
}

func (s *Notifications) MarkNotificationRead(ctx context.Context, userID models.UserID, id string, createdAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(userID, id, createdAt)
	if i < 0 {
		return interfaces.ErrNotFound
	}
	s.byUser[userID][i].IsRead = true
	return nil
}

func (s *Notifications) DeleteNotification(ctx context.Context, userID models.UserID, id string, createdAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(userID, id, createdAt)
	if i < 0 {
		return interfaces.ErrNotFound
	}
	list := s.byUser[userID]
	s.byUser[userID] = append(list[:i:i], list[i+1:]...)
	return nil
}

var _ interfaces.NotificationStore = (*Notifications)(nil)
