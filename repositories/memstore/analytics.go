package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"
)

// Analytics is an in-memory interfaces.AnalyticsStore and UserDirectory.
type Analytics struct {
	mu       sync.RWMutex
	projects map[string]models.ProjectAnalytics
	metrics  map[string]models.TaskMetrics
	stats    map[string]models.UserStats
	members  map[[2]string]models.ProjectMember
	users    map[models.UserID]models.User
	failWith error
	calls    map[string]int
}

func NewAnalytics() *Analytics {
	return &Analytics{
		projects: map[string]models.ProjectAnalytics{},
		metrics:  map[string]models.TaskMetrics{},
		stats:    map[string]models.UserStats{},
		members:  map[[2]string]models.ProjectMember{},
		users:    map[models.UserID]models.User{},
		calls:    map[string]int{},
	}
}

// FailWith makes every later analytics call return err. Pass nil to
// recover. The user directory is not affected.
func (s *Analytics) FailWith(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

// Calls reports how many times the named method was invoked.
func (s *Analytics) Calls(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method]
}

// AddUser seeds the user directory.
func (s *Analytics) AddUser(u models.User) {
	s.mu.Lock()
	s.users[models.UserID(u.ID)] = u
	s.mu.Unlock()
}

func (s *Analytics) enter(ctx context.Context, method string) error {
	s.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failWith
}

func (s *Analytics) InitProjectAnalytics(ctx context.Context, a *models.ProjectAnalytics, owner *models.ProjectMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "InitProjectAnalytics"); err != nil {
		return err
	}
	s.projects[a.ProjectID] = *a
	s.members[[2]string{owner.ProjectID, owner.UserID}] = *owner
	return nil
}

func (s *Analytics) UpsertProjectAnalytics(ctx context.Context, a *models.ProjectAnalytics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "UpsertProjectAnalytics"); err != nil {
		return err
	}
	s.projects[a.ProjectID] = *a
	return nil
}

func (s *Analytics) GetProjectAnalytics(ctx context.Context, projectID string) (*models.ProjectAnalytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "GetProjectAnalytics"); err != nil {
		return nil, err
	}
	a, ok := s.projects[projectID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Analytics) AnalyticsProjectIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "AnalyticsProjectIDs"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Analytics) UpsertTaskMetrics(ctx context.Context, m *models.TaskMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "UpsertTaskMetrics"); err != nil {
		return err
	}
	row := *m
	row.UpdatedAt = time.Now().UTC()
	s.metrics[m.TaskID] = row
	return nil
}

func (s *Analytics) DeleteTaskMetrics(ctx context.Context, taskIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "DeleteTaskMetrics"); err != nil {
		return err
	}
	for _, id := range taskIDs {
		delete(s.metrics, id)
	}
	return nil
}

// TaskMetricsRow returns the stored metrics of a task.
func (s *Analytics) TaskMetricsRow(taskID string) (models.TaskMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[taskID]
	return m, ok
}

func matchMetrics(m *models.TaskMetrics, q interfaces.MetricsQuery) bool {
	if q.ProjectID != "" && m.ProjectID != q.ProjectID {
		return false
	}
	if q.AssignedTo != "" && m.AssignedTo != q.AssignedTo {
		return false
	}
	if q.Status != "" && m.Status != q.Status {
		return false
	}
	if q.DateFrom != nil && m.TaskCreatedAt.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && m.TaskCreatedAt.After(*q.DateTo) {
		return false
	}
	return true
}

func (s *Analytics) selectMetrics(q interfaces.MetricsQuery) []models.TaskMetrics {
	var out []models.TaskMetrics
	for _, m := range s.metrics {
		if matchMetrics(&m, q) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].TaskID < out[k].TaskID })
	sort.SliceStable(out, func(i, k int) bool {
		a, b := &out[i], &out[k]
		switch q.OrderBy {
		case interfaces.OrderTimeSpentDesc:
			return a.TimeSpent > b.TimeSpent
		case interfaces.OrderUpdatedDesc:
			return a.UpdatedAt.After(b.UpdatedAt)
		default:
			return a.TaskCreatedAt.After(b.TaskCreatedAt)
		}
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *Analytics) ListTaskMetrics(ctx context.Context, q interfaces.MetricsQuery) ([]models.TaskMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "ListTaskMetrics"); err != nil {
		return nil, err
	}
	return s.selectMetrics(q), nil
}

func (s *Analytics) AggregateTaskMetrics(ctx context.Context, q interfaces.MetricsQuery, by interfaces.MetricsGroupBy) ([]models.MetricsGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "AggregateTaskMetrics"); err != nil {
		return nil, err
	}
	q.Limit = 0
	rows := s.selectMetrics(q)

	type acc struct {
		count      int64
		timeSpent  float64
		completion float64
		completed  int64
	}
	groups := map[string]*acc{}
	var keys []string
	for _, m := range rows {
		var key string
		switch by {
		case interfaces.GroupByStatus:
			key = m.Status
		case interfaces.GroupByUser:
			key = m.AssignedTo
		}
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
			keys = append(keys, key)
		}
		g.count++
		g.timeSpent += m.TimeSpent
		if m.CompletionTime != nil {
			g.completion += *m.CompletionTime
			g.completed++
		}
	}
	if by == interfaces.GroupNone && len(keys) == 0 {
		return []models.MetricsGroup{{}}, nil
	}
	sort.Strings(keys)
	out := make([]models.MetricsGroup, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		mg := models.MetricsGroup{Key: k, Count: g.count, TotalTimeSpent: g.timeSpent}
		if g.count > 0 {
			mg.AvgTimeSpent = g.timeSpent / float64(g.count)
		}
		if g.completed > 0 {
			mg.AvgCompletionTime = g.completion / float64(g.completed)
		}
		out = append(out, mg)
	}
	return out, nil
}

func (s *Analytics) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "GetUserStats"); err != nil {
		return nil, err
	}
	st, ok := s.stats[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Analytics) UpsertUserStats(ctx context.Context, st *models.UserStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "UpsertUserStats"); err != nil {
		return err
	}
	s.stats[st.UserID] = *st
	return nil
}

func (s *Analytics) UpsertProjectMember(ctx context.Context, m *models.ProjectMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "UpsertProjectMember"); err != nil {
		return err
	}
	key := [2]string{m.ProjectID, m.UserID}
	if cur, ok := s.members[key]; ok {
		cur.Role = m.Role
		s.members[key] = cur
		return nil
	}
	s.members[key] = *m
	return nil
}

func (s *Analytics) DeleteProjectMember(ctx context.Context, projectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "DeleteProjectMember"); err != nil {
		return err
	}
	delete(s.members, [2]string{projectID, userID})
	return nil
}

func (s *Analytics) ListProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "ListProjectMembers"); err != nil {
		return nil, err
	}
	var out []models.ProjectMember
	for key, m := range s.members {
		if key[0] == projectID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].JoinedAt.Equal(out[k].JoinedAt) {
			return out[i].UserID < out[k].UserID
		}
		return out[i].JoinedAt.Before(out[k].JoinedAt)
	})
	return out, nil
}

func (s *Analytics) DeleteProjectData(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "DeleteProjectData"); err != nil {
		return err
	}
	delete(s.projects, projectID)
	for id, m := range s.metrics {
		if m.ProjectID == projectID {
			delete(s.metrics, id)
		}
	}
	for key := range s.members {
		if key[0] == projectID {
			delete(s.members, key)
		}
	}
	return nil
}

func (s *Analytics) FindUser(ctx context.Context, id models.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &u, nil
}

func (s *Analytics) FindUsers(ctx context.Context, ids []models.UserID) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []models.User{}
	seen := map[models.UserID]bool{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, u)
		}
	}
	return out, nil
}

var (
	_ interfaces.AnalyticsStore = (*Analytics)(nil)
	_ interfaces.UserDirectory  = (*Analytics)(nil)
)
