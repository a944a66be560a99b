package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/config"
	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"github.com/gocql/gocql"
)

type NotificationRepo struct {
	session *gocql.Session
}

// NewNotificationRepo creates the keyspace if needed and connects to it.
func NewNotificationRepo(cfg config.CassandraConfig) (*NotificationRepo, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = "system"
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connecting to cassandra: %w", err)
	}

	err = session.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s
         WITH replication = {
             'class': 'SimpleStrategy',
             'replication_factor': 1
         }`, cfg.Keyspace)).Exec()
	session.Close()
	if err != nil {
		return nil, fmt.Errorf("creating keyspace %s: %w", cfg.Keyspace, err)
	}

	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.One
	session, err = cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connecting to keyspace %s: %w", cfg.Keyspace, err)
	}

	logging.Logger.Infof("Event ID: CASSANDRA_CONNECTED, Description: Connected to Cassandra keyspace %s", cfg.Keyspace)
	return &NotificationRepo{session: session}, nil
}

func (nr *NotificationRepo) CloseSession() {
	nr.session.Close()
	logging.Logger.Info("Event ID: CASSANDRA_CLOSED, Description: Cassandra session closed")
}

func (nr *NotificationRepo) CreateTable() error {
	err := nr.session.Query(
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID,
			user_id TEXT,
			kind TEXT,
			message TEXT,
			created_at TIMESTAMP,
			is_read BOOLEAN,
			PRIMARY KEY ((user_id), created_at, id)
		) WITH CLUSTERING ORDER BY (created_at DESC, id ASC)`).Exec()
	if err != nil {
		return fmt.Errorf("creating notifications table: %w", err)
	}
	return nil
}

func (nr *NotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = gocql.TimeUUID().String()
	}
	id, err := gocql.ParseUUID(n.ID)
	if err != nil {
		return fmt.Errorf("invalid notification id: %w", err)
	}
	return nr.session.Query(
		`INSERT INTO notifications (id, user_id, kind, message, created_at, is_read)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(n.UserID), string(n.Kind), n.Message, n.CreatedAt, n.IsRead,
	).WithContext(ctx).Exec()
}

func (nr *NotificationRepo) ListNotifications(ctx context.Context, userID models.UserID, limit int) ([]models.Notification, error) {
	iter := nr.session.Query(
		`SELECT id, user_id, kind, message, created_at, is_read
		 FROM notifications WHERE user_id = ? LIMIT ?`, string(userID), limit,
	).WithContext(ctx).Iter()

	notifications := []models.Notification{}
	var (
		id        gocql.UUID
		uid, kind string
		n         models.Notification
	)
	for iter.Scan(&id, &uid, &kind, &n.Message, &n.CreatedAt, &n.IsRead) {
		n.ID = id.String()
		n.UserID = models.UserID(uid)
		n.Kind = models.NotificationKind(kind)
		notifications = append(notifications, n)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return notifications, nil
}

func (nr *NotificationRepo) exists(ctx context.Context, userID models.UserID, id gocql.UUID, createdAt time.Time) error {
	var count int
	err := nr.session.Query(
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND created_at = ? AND id = ?`,
		string(userID), createdAt, id,
	).WithContext(ctx).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (nr *NotificationRepo) MarkNotificationRead(ctx context.Context, userID models.UserID, notificationID string, createdAt time.Time) error {
	id, err := gocql.ParseUUID(notificationID)
	if err != nil {
		return interfaces.ErrNotFound
	}
	if err := nr.exists(ctx, userID, id, createdAt); err != nil {
		return err
	}
	return nr.session.Query(
		`UPDATE notifications SET is_read = true WHERE user_id = ? AND created_at = ? AND id = ?`,
		string(userID), createdAt, id,
	).WithContext(ctx).Exec()
}

func (nr *NotificationRepo) DeleteNotification(ctx context.Context, userID models.UserID, notificationID string, createdAt time.Time) error {
	id, err := gocql.ParseUUID(notificationID)
	if err != nil {
		return interfaces.ErrNotFound
	}
	if err := nr.exists(ctx, userID, id, createdAt); err != nil {
		return err
	}
	return nr.session.Query(
		`DELETE FROM notifications WHERE user_id = ? AND created_at = ? AND id = ?`,
		string(userID), createdAt, id,
	).WithContext(ctx).Exec()
}

var _ interfaces.NotificationStore = (*NotificationRepo)(nil)
