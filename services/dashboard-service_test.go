package services

import (
	"testing"

	"github.com/YadneshTeli/TaskForge-sub000/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDashboardService_ProjectOverview(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	dev := e.user("dev")
	p := e.project(owner, dev)
	e.task(p.ID.Hex(), owner, models.StatusDone, dev)
	e.task(p.ID.Hex(), owner, models.StatusInProgress, dev)
	e.task(p.ID.Hex(), owner, models.StatusTodo, owner)
	e.drain()

	o, err := e.dashboard.ProjectOverview(e.ctx, p.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, p.ID, o.Project.ID)
	assert.Len(t, o.Project.Users, 2)
	assert.Same(t, o.Dashboard.Analytics, o.Project.Analytics)
	assert.Equal(t, int64(3), o.Dashboard.Summary.TotalTasks)
	assert.Equal(t, 2, o.Dashboard.Summary.TeamSize)

	counts := map[string]int64{}
	for _, g := range o.UserAnalytics.Groups {
		counts[g.Key] = g.Count
	}
	assert.Equal(t, map[string]int64{string(dev): 2, string(owner): 1}, counts)

	_, err = e.dashboard.ProjectOverview(e.ctx, primitive.NewObjectID().Hex())
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDashboardService_UserOverview(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user("owner")
	dev := e.user("dev")
	p := e.project(owner, dev)
	e.project(owner)
	for i := 0; i < 12; i++ {
		e.task(p.ID.Hex(), owner, models.StatusTodo, dev)
	}
	e.drain()

	o, err := e.dashboard.UserOverview(e.ctx, dev)
	require.NoError(t, err)
	assert.Equal(t, 12, o.Stats.TotalTasks)
	assert.Equal(t, int64(1), o.Projects.Total)
	assert.Len(t, o.RecentTasks, overviewRecentTasks)

	empty, err := e.dashboard.UserOverview(e.ctx, e.user("new"))
	require.NoError(t, err)
	assert.Zero(t, empty.Stats.TotalTasks)
	assert.Empty(t, empty.Projects.Projects)
	assert.Empty(t, empty.RecentTasks)

	_, err = e.dashboard.UserOverview(e.ctx, "x")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}
