package services

import (
	"context"
	"testing"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/models"
	"github.com/YadneshTeli/TaskForge-sub000/repositories/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService(t *testing.T) {
	ctx := context.Background()
	ns := NewNotificationService(memstore.NewNotifications())
	base := time.Date(2024, 3, 1, 9, 0, 0, 123456789, time.UTC)
	tick := 0
	ns.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	user := models.UserID("9a1f6a2e-0c1b-4b55-8d7e-3f2a1c9e8b70")

	first, err := ns.Notify(ctx, user, "", "hello")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationGeneric, first.Kind)
	assert.Equal(t, 123000000, first.CreatedAt.Nanosecond())
	assert.NotEmpty(t, first.ID)

	second, err := ns.Notify(ctx, user, models.NotificationTaskAssigned, "task")
	require.NoError(t, err)

	list, err := ns.ListForUser(ctx, user, 1000)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, ns.MarkRead(ctx, user, first.ID, first.CreatedAt))
	list, err = ns.ListForUser(ctx, user, 0)
	require.NoError(t, err)
	assert.True(t, list[1].IsRead)
	assert.False(t, list[0].IsRead)

	require.NoError(t, ns.Delete(ctx, user, second.ID, second.CreatedAt))
	err = ns.Delete(ctx, user, second.ID, second.CreatedAt)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	err = ns.MarkRead(ctx, user, first.ID, first.CreatedAt.Add(time.Hour))
	assert.ErrorAs(t, err, &nf)
}

func TestNotificationService_Validation(t *testing.T) {
	ctx := context.Background()
	ns := NewNotificationService(memstore.NewNotifications())

	_, err := ns.Notify(ctx, "", models.NotificationGeneric, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)

	_, err = ns.ListForUser(ctx, "nope", 10)
	assert.ErrorAs(t, err, &ve)

	err = ns.MarkRead(ctx, "9a1f6a2e-0c1b-4b55-8d7e-3f2a1c9e8b70", "", time.Now())
	assert.ErrorAs(t, err, &ve)
}
