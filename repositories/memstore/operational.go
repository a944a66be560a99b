// Package memstore keeps every store in process memory. It backs the
// STORE_DRIVER=memory mode and the service tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Operational is an in-memory interfaces.OperationalStore. One mutex makes
// every write and its outbox jobs commit together.
type Operational struct {
	mu       sync.RWMutex
	projects map[primitive.ObjectID]models.Project
	tasks    map[primitive.ObjectID]models.Task
	comments map[primitive.ObjectID]models.Comment
	jobs     map[primitive.ObjectID]models.SyncJob
	failWith error
}

func NewOperational() *Operational {
	return &Operational{
		projects: map[primitive.ObjectID]models.Project{},
		tasks:    map[primitive.ObjectID]models.Task{},
		comments: map[primitive.ObjectID]models.Comment{},
		jobs:     map[primitive.ObjectID]models.SyncJob{},
	}
}

// FailWith makes every later call return err. Pass nil to recover.
func (s *Operational) FailWith(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

// SyncJobs returns a copy of every outbox entry, oldest first.
func (s *Operational) SyncJobs() []models.SyncJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SyncJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID.Hex() < out[k].ID.Hex() })
	return out
}

// ResetSyncJobs drops every outbox entry.
func (s *Operational) ResetSyncJobs() {
	s.mu.Lock()
	s.jobs = map[primitive.ObjectID]models.SyncJob{}
	s.mu.Unlock()
}

func (s *Operational) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failWith
}

func (s *Operational) putJobs(jobs []models.SyncJob) {
	for _, j := range jobs {
		if j.ID.IsZero() {
			j.ID = primitive.NewObjectID()
		}
		s.jobs[j.ID] = j
	}
}

func cloneProject(p models.Project) models.Project {
	p.Members = append([]models.UserID(nil), p.Members...)
	p.Attachments = append([]models.Attachment(nil), p.Attachments...)
	p.Settings.TaskStatuses = append([]string(nil), p.Settings.TaskStatuses...)
	p.Settings.Priorities = append([]string(nil), p.Settings.Priorities...)
	p.Settings.CustomFields = append([]models.CustomField(nil), p.Settings.CustomFields...)
	return p
}

func cloneTask(t models.Task) models.Task {
	t.Tags = append([]string(nil), t.Tags...)
	t.Watchers = append([]models.UserID(nil), t.Watchers...)
	t.Attachments = append([]models.Attachment(nil), t.Attachments...)
	t.InlineComments = append([]models.InlineComment(nil), t.InlineComments...)
	if t.CustomFields != nil {
		cf := make(map[string]interface{}, len(t.CustomFields))
		for k, v := range t.CustomFields {
			cf[k] = v
		}
		t.CustomFields = cf
	}
	return t
}

func paginate[T any](items []T, page interfaces.Page) []T {
	if page.Skip >= int64(len(items)) {
		return []T{}
	}
	items = items[page.Skip:]
	if page.Limit > 0 && page.Limit < int64(len(items)) {
		items = items[:page.Limit]
	}
	return items
}

func timeLess(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

// Projects

func (s *Operational) InsertProject(ctx context.Context, p *models.Project, jobs ...models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.projects[p.ID] = cloneProject(*p)
	s.putJobs(jobs)
	return nil
}

func (s *Operational) FindProject(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	p = cloneProject(p)
	return &p, nil
}

func matchProject(p *models.Project, f interfaces.ProjectFilter) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.UserID != "" && p.OwnerID != f.UserID && !p.HasMember(f.UserID) {
		return false
	}
	return true
}

func (s *Operational) FindProjects(ctx context.Context, f interfaces.ProjectFilter, page interfaces.Page) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []models.Project
	for _, p := range s.projects {
		if matchProject(&p, f) {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID.Hex() < out[k].ID.Hex() })
	sort.SliceStable(out, func(i, k int) bool {
		if page.SortDesc {
			return projectLess(&out[k], &out[i], page.SortBy)
		}
		return projectLess(&out[i], &out[k], page.SortBy)
	})
	return paginate(out, page), nil
}

func projectLess(a, b *models.Project, by string) bool {
	switch by {
	case "name":
		return a.Name < b.Name
	case "createdAt":
		return a.CreatedAt.Before(b.CreatedAt)
	case "dueDate":
		return timeLess(a.DueDate, b.DueDate)
	default:
		return a.UpdatedAt.Before(b.UpdatedAt)
	}
}

func (s *Operational) CountProjects(ctx context.Context, f interfaces.ProjectFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for _, p := range s.projects {
		if matchProject(&p, f) {
			n++
		}
	}
	return n, nil
}

func (s *Operational) ProjectIDs(ctx context.Context, after primitive.ObjectID, limit int64) ([]primitive.ObjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var ids []primitive.ObjectID
	for id := range s.projects {
		if strings.Compare(id.Hex(), after.Hex()) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i].Hex() < ids[k].Hex() })
	if limit > 0 && int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Operational) UpdateProject(ctx context.Context, p *models.Project, jobs ...models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	cur, ok := s.projects[p.ID]
	if !ok {
		return interfaces.ErrNotFound
	}
	// members and task stats are owned by their dedicated updates
	next := cloneProject(*p)
	next.Members = cur.Members
	next.Stats = cur.Stats
	next.OwnerID = cur.OwnerID
	next.CreatedAt = cur.CreatedAt
	s.projects[p.ID] = next
	s.putJobs(jobs)
	*p = cloneProject(next)
	return nil
}

func (s *Operational) AddProjectMember(ctx context.Context, id primitive.ObjectID, user models.UserID, jobs ...models.SyncJob) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	p = cloneProject(p)
	p.AddMember(user)
	p.UpdatedAt = time.Now().UTC()
	s.projects[id] = p
	s.putJobs(jobs)
	out := cloneProject(p)
	return &out, nil
}

func (s *Operational) RemoveProjectMember(ctx context.Context, id primitive.ObjectID, user models.UserID, jobs ...models.SyncJob) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	p = cloneProject(p)
	p.RemoveMember(user)
	p.UpdatedAt = time.Now().UTC()
	s.projects[id] = p
	s.putJobs(jobs)
	out := cloneProject(p)
	return &out, nil
}

func (s *Operational) SetProjectTaskStats(ctx context.Context, id primitive.ObjectID, taskCount, completed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	p, ok := s.projects[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	p.Stats.TaskCount = taskCount
	p.Stats.CompletedTasks = completed
	s.projects[id] = p
	return nil
}

func (s *Operational) DeleteProject(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.projects[id]; !ok {
		return interfaces.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

// Tasks

func (s *Operational) InsertTask(ctx context.Context, t *models.Task, jobs ...models.SyncJob) error {
	return s.InsertTasks(ctx, []*models.Task{t}, jobs...)
}

func (s *Operational) InsertTasks(ctx context.Context, ts []*models.Task, jobs ...models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, t := range ts {
		if t.ID.IsZero() {
			t.ID = primitive.NewObjectID()
		}
		if _, dup := s.tasks[t.ID]; dup {
			return errors.New("duplicate task id " + t.ID.Hex())
		}
	}
	for _, t := range ts {
		s.tasks[t.ID] = cloneTask(*t)
	}
	s.putJobs(jobs)
	return nil
}

func (s *Operational) FindTask(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	t = cloneTask(t)
	return &t, nil
}

func matchTask(t *models.Task, f interfaces.TaskFilter) bool {
	if f.ProjectID != nil && t.ProjectID != *f.ProjectID {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.CreatedBy != "" && t.CreatedBy != f.CreatedBy {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

func taskLess(a, b *models.Task, by string) bool {
	switch by {
	case "title":
		return a.Title < b.Title
	case "order":
		return a.Order < b.Order
	case "dueDate":
		return timeLess(a.DueDate, b.DueDate)
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt)
	case "priority":
		return a.Priority < b.Priority
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func (s *Operational) FindTasks(ctx context.Context, f interfaces.TaskFilter, page interfaces.Page) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []models.Task
	for _, t := range s.tasks {
		if matchTask(&t, f) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID.Hex() < out[k].ID.Hex() })
	sort.SliceStable(out, func(i, k int) bool {
		if page.SortDesc {
			return taskLess(&out[k], &out[i], page.SortBy)
		}
		return taskLess(&out[i], &out[k], page.SortBy)
	})
	return paginate(out, page), nil
}

func (s *Operational) CountTasks(ctx context.Context, f interfaces.TaskFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for _, t := range s.tasks {
		if matchTask(&t, f) {
			n++
		}
	}
	return n, nil
}

func (s *Operational) TaskDigests(ctx context.Context, projectID primitive.ObjectID) ([]models.TaskDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []models.TaskDigest
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, models.TaskDigest{Status: t.Status, DueDate: t.DueDate})
		}
	}
	return out, nil
}

func (s *Operational) PatchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch, now time.Time, jobs interfaces.TaskJobs) (*models.Task, error) {
	updated, missing, err := s.PatchTasks(ctx, []interfaces.TaskPatchOp{{ID: id, Patch: patch}}, now, jobs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, interfaces.ErrNotFound
	}
	return updated[0], nil
}

func (s *Operational) PatchTasks(ctx context.Context, ops []interfaces.TaskPatchOp, now time.Time, jobs interfaces.TaskJobs) ([]*models.Task, []primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, nil, err
	}
	var (
		updated []*models.Task
		missing []primitive.ObjectID
	)
	for _, op := range ops {
		cur, ok := s.tasks[op.ID]
		if !ok {
			missing = append(missing, op.ID)
			continue
		}
		before := cloneTask(cur)
		after := cloneTask(cur)
		op.Patch.Apply(&after)
		after.Normalize(now)
		s.tasks[op.ID] = cloneTask(after)
		s.putJobs(jobs(&before, &after))
		updated = append(updated, &after)
	}
	return updated, missing, nil
}

func (s *Operational) DeleteTask(ctx context.Context, id primitive.ObjectID, jobs ...models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.tasks[id]; !ok {
		return interfaces.ErrNotFound
	}
	delete(s.tasks, id)
	s.putJobs(jobs)
	return nil
}

func (s *Operational) DeleteTasks(ctx context.Context, ids []primitive.ObjectID, jobs ...models.SyncJob) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := s.tasks[id]; ok {
			delete(s.tasks, id)
			n++
		}
	}
	s.putJobs(jobs)
	return n, nil
}

func (s *Operational) DeleteTasksByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for id, t := range s.tasks {
		if t.ProjectID == projectID {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

// Comments

func (s *Operational) InsertComment(ctx context.Context, c *models.Comment, jobs ...models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	s.comments[c.ID] = *c
	s.putJobs(jobs)
	return nil
}

func (s *Operational) FindComment(ctx context.Context, id primitive.ObjectID) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	c, ok := s.comments[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &c, nil
}

func matchComment(c *models.Comment, f interfaces.CommentFilter) bool {
	if f.TaskID != nil && (c.TaskID == nil || *c.TaskID != *f.TaskID) {
		return false
	}
	if f.ProjectID != nil && c.ProjectID != *f.ProjectID {
		return false
	}
	return true
}

func (s *Operational) FindComments(ctx context.Context, f interfaces.CommentFilter, page interfaces.Page) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []models.Comment
	for _, c := range s.comments {
		if matchComment(&c, f) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID.Hex() > out[k].ID.Hex()
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return paginate(out, page), nil
}

func (s *Operational) CountComments(ctx context.Context, f interfaces.CommentFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for _, c := range s.comments {
		if matchComment(&c, f) {
			n++
		}
	}
	return n, nil
}

func (s *Operational) DeleteComment(ctx context.Context, id primitive.ObjectID, jobs ...models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.comments[id]; !ok {
		return interfaces.ErrNotFound
	}
	delete(s.comments, id)
	s.putJobs(jobs)
	return nil
}

func (s *Operational) DeleteCommentsByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for id, c := range s.comments {
		if c.ProjectID == projectID {
			delete(s.comments, id)
			n++
		}
	}
	return n, nil
}

// Outbox

func (s *Operational) EnqueueSyncJobs(ctx context.Context, jobs ...models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.putJobs(jobs)
	return nil
}

func (s *Operational) ClaimSyncJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var due []models.SyncJob
	for _, j := range s.jobs {
		pendingDue := j.Status == models.JobPending && !j.NextAttemptAt.After(now)
		leaseExpired := j.Status == models.JobProcessing && j.LeaseUntil != nil && j.LeaseUntil.Before(now)
		if pendingDue || leaseExpired {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if due[i].NextAttemptAt.Equal(due[k].NextAttemptAt) {
			return due[i].ID.Hex() < due[k].ID.Hex()
		}
		return due[i].NextAttemptAt.Before(due[k].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	until := now.Add(lease)
	for i := range due {
		due[i].Status = models.JobProcessing
		due[i].Attempts++
		due[i].LeaseUntil = &until
		s.jobs[due[i].ID] = due[i]
	}
	return due, nil
}

func (s *Operational) CompleteSyncJob(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	j, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	j.Status = models.JobDone
	j.CompletedAt = &now
	j.LeaseUntil = nil
	j.LastError = ""
	s.jobs[id] = j
	return nil
}

func (s *Operational) FailSyncJob(ctx context.Context, id primitive.ObjectID, errMsg string, next time.Time, dead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	j, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	j.LastError = errMsg
	j.LeaseUntil = nil
	j.NextAttemptAt = next
	j.Status = models.JobPending
	if dead {
		j.Status = models.JobDead
	}
	s.jobs[id] = j
	return nil
}

func (s *Operational) SyncJobStats(ctx context.Context) (models.OutboxStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.OutboxStats
	if err := s.check(ctx); err != nil {
		return st, err
	}
	for _, j := range s.jobs {
		switch j.Status {
		case models.JobPending:
			st.Pending++
		case models.JobProcessing:
			st.Processing++
		case models.JobDone:
			st.Done++
		case models.JobDead:
			st.Dead++
		}
	}
	return st, nil
}

var _ interfaces.OperationalStore = (*Operational)(nil)
