package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	projectsCollection = "projects"
	tasksCollection    = "tasks"
	commentsCollection = "comments"
	syncJobsCollection = "sync_jobs"
)

// MongoStore is the operational store. With transactions enabled every write
// and its outbox jobs commit in one multi-document transaction, which needs a
// replica set.
type MongoStore struct {
	client   *mongo.Client
	projects *mongo.Collection
	tasks    *mongo.Collection
	comments *mongo.Collection
	jobs     *mongo.Collection
	useTx    bool
}

func NewMongoStore(client *mongo.Client, dbName string, useTransactions bool) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:   client,
		projects: db.Collection(projectsCollection),
		tasks:    db.Collection(tasksCollection),
		comments: db.Collection(commentsCollection),
		jobs:     db.Collection(syncJobsCollection),
		useTx:    useTransactions,
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.projects: {
			{Keys: bson.D{{Key: "ownerId", Value: 1}}},
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		s.tasks: {
			{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "createdBy", Value: 1}}},
		},
		s.comments: {
			{Keys: bson.D{{Key: "taskId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		s.jobs: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextAttemptAt", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "leaseUntil", Value: 1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("creating indexes on %s: %w", coll.Name(), err)
		}
		logging.Logger.Infof("Event ID: DB_INDEXES_CREATED, Description: Indexes ensured on collection %s", coll.Name())
	}
	return nil
}

func (s *MongoStore) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.useTx {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) insertJobs(ctx context.Context, jobs []models.SyncJob) error {
	if len(jobs) == 0 {
		return nil
	}
	docs := make([]interface{}, len(jobs))
	for i := range jobs {
		if jobs[i].ID.IsZero() {
			jobs[i].ID = primitive.NewObjectID()
		}
		docs[i] = jobs[i]
	}
	if _, err := s.jobs.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("enqueueing sync jobs: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return interfaces.ErrNotFound
	}
	return err
}

func sortDir(desc bool) int {
	if desc {
		return -1
	}
	return 1
}

func findOptions(page interfaces.Page, allowed map[string]string, fallback string) *options.FindOptions {
	field, ok := allowed[page.SortBy]
	if !ok {
		field = fallback
	}
	dir := sortDir(page.SortDesc)
	opts := options.Find().SetSort(bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}})
	if page.Skip > 0 {
		opts.SetSkip(page.Skip)
	}
	if page.Limit > 0 {
		opts.SetLimit(page.Limit)
	}
	return opts
}

// Projects

var projectSortFields = map[string]string{
	"name":      "name",
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"dueDate":   "dueDate",
}

func projectFilter(f interfaces.ProjectFilter) bson.M {
	filter := bson.M{}
	if f.UserID != "" {
		filter["$or"] = bson.A{bson.M{"ownerId": f.UserID}, bson.M{"members": f.UserID}}
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return filter
}

func (s *MongoStore) InsertProject(ctx context.Context, p *models.Project, jobs ...models.SyncJob) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		if _, err := s.projects.InsertOne(ctx, p); err != nil {
			return fmt.Errorf("inserting project: %w", err)
		}
		return s.insertJobs(ctx, jobs)
	})
}

func (s *MongoStore) FindProject(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	var p models.Project
	if err := s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *MongoStore) FindProjects(ctx context.Context, f interfaces.ProjectFilter, page interfaces.Page) ([]models.Project, error) {
	cursor, err := s.projects.Find(ctx, projectFilter(f), findOptions(page, projectSortFields, "updatedAt"))
	if err != nil {
		return nil, fmt.Errorf("finding projects: %w", err)
	}
	projects := []models.Project{}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("decoding projects: %w", err)
	}
	return projects, nil
}

func (s *MongoStore) CountProjects(ctx context.Context, f interfaces.ProjectFilter) (int64, error) {
	return s.projects.CountDocuments(ctx, projectFilter(f))
}

func (s *MongoStore) ProjectIDs(ctx context.Context, after primitive.ObjectID, limit int64) ([]primitive.ObjectID, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1}).
		SetLimit(limit)
	cursor, err := s.projects.Find(ctx, bson.M{"_id": bson.M{"$gt": after}}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing project ids: %w", err)
	}
	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// UpdateProject writes the editable fields only. Members, owner and stats
// have their own atomic updates.
func (s *MongoStore) UpdateProject(ctx context.Context, p *models.Project, jobs ...models.SyncJob) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		update := bson.M{"$set": bson.M{
			"name":        p.Name,
			"description": p.Description,
			"status":      p.Status,
			"settings":    p.Settings,
			"dueDate":     p.DueDate,
			"attachments": p.Attachments,
			"archivedAt":  p.ArchivedAt,
			"updatedAt":   p.UpdatedAt,
		}}
		res, err := s.projects.UpdateOne(ctx, bson.M{"_id": p.ID}, update)
		if err != nil {
			return fmt.Errorf("updating project: %w", err)
		}
		if res.MatchedCount == 0 {
			return interfaces.ErrNotFound
		}
		return s.insertJobs(ctx, jobs)
	})
}

func membersOrEmpty() bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{"$members", bson.A{}}}}
}

func (s *MongoStore) updateMembers(ctx context.Context, id primitive.ObjectID, members bson.D, jobs []models.SyncJob) (*models.Project, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "members", Value: members},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "stats.memberCount", Value: bson.D{{Key: "$size", Value: "$members"}}},
		}}},
	}
	var out models.Project
	err := s.withTx(ctx, func(ctx context.Context) error {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		if err := s.projects.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&out); err != nil {
			return notFound(err)
		}
		return s.insertJobs(ctx, jobs)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) AddProjectMember(ctx context.Context, id primitive.ObjectID, user models.UserID, jobs ...models.SyncJob) (*models.Project, error) {
	members := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$in", Value: bson.A{user, membersOrEmpty()}}},
		membersOrEmpty(),
		bson.D{{Key: "$concatArrays", Value: bson.A{membersOrEmpty(), bson.A{user}}}},
	}}}
	return s.updateMembers(ctx, id, members, jobs)
}

func (s *MongoStore) RemoveProjectMember(ctx context.Context, id primitive.ObjectID, user models.UserID, jobs ...models.SyncJob) (*models.Project, error) {
	members := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: membersOrEmpty()},
		{Key: "as", Value: "m"},
		{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$m", user}}}},
	}}}
	return s.updateMembers(ctx, id, members, jobs)
}

func (s *MongoStore) SetProjectTaskStats(ctx context.Context, id primitive.ObjectID, taskCount, completed int) error {
	res, err := s.projects.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"stats.taskCount":      taskCount,
		"stats.completedTasks": completed,
	}})
	if err != nil {
		return fmt.Errorf("updating project stats: %w", err)
	}
	if res.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteProject(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.projects.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if res.DeletedCount == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// Tasks

var taskSortFields = map[string]string{
	"title":     "title",
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"dueDate":   "dueDate",
	"priority":  "priority",
	"order":     "order",
}

func taskFilter(f interfaces.TaskFilter) bson.M {
	filter := bson.M{}
	if f.ProjectID != nil {
		filter["projectId"] = *f.ProjectID
	}
	if f.AssignedTo != "" {
		filter["assignedTo"] = f.AssignedTo
	}
	if f.CreatedBy != "" {
		filter["createdBy"] = f.CreatedBy
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return filter
}

func (s *MongoStore) InsertTask(ctx context.Context, t *models.Task, jobs ...models.SyncJob) error {
	return s.InsertTasks(ctx, []*models.Task{t}, jobs...)
}

func (s *MongoStore) InsertTasks(ctx context.Context, ts []*models.Task, jobs ...models.SyncJob) error {
	docs := make([]interface{}, len(ts))
	for i, t := range ts {
		if t.ID.IsZero() {
			t.ID = primitive.NewObjectID()
		}
		docs[i] = t
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		if len(docs) > 0 {
			if _, err := s.tasks.InsertMany(ctx, docs); err != nil {
				return fmt.Errorf("inserting tasks: %w", err)
			}
		}
		return s.insertJobs(ctx, jobs)
	})
}

func (s *MongoStore) FindTask(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var t models.Task
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *MongoStore) FindTasks(ctx context.Context, f interfaces.TaskFilter, page interfaces.Page) ([]models.Task, error) {
	cursor, err := s.tasks.Find(ctx, taskFilter(f), findOptions(page, taskSortFields, "createdAt"))
	if err != nil {
		return nil, fmt.Errorf("finding tasks: %w", err)
	}
	tasks := []models.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decoding tasks: %w", err)
	}
	return tasks, nil
}

func (s *MongoStore) CountTasks(ctx context.Context, f interfaces.TaskFilter) (int64, error) {
	return s.tasks.CountDocuments(ctx, taskFilter(f))
}

func (s *MongoStore) TaskDigests(ctx context.Context, projectID primitive.ObjectID) ([]models.TaskDigest, error) {
	opts := options.Find().SetProjection(bson.M{"status": 1, "dueDate": 1})
	cursor, err := s.tasks.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("finding task digests: %w", err)
	}
	var digests []models.TaskDigest
	if err := cursor.All(ctx, &digests); err != nil {
		return nil, fmt.Errorf("decoding task digests: %w", err)
	}
	return digests, nil
}

func literal(v interface{}) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

// taskPatchPipeline sets only the fields the patch carries. completedAt is
// derived from the resulting status in a second stage.
func taskPatchPipeline(p models.TaskPatch, now time.Time) mongo.Pipeline {
	set := bson.D{}
	add := func(key string, v interface{}) {
		set = append(set, bson.E{Key: key, Value: v})
	}
	if p.Title != nil {
		add("title", literal(*p.Title))
	}
	if p.Description != nil {
		add("description", literal(*p.Description))
	}
	if p.Status != nil {
		add("status", literal(*p.Status))
	}
	if p.Priority != nil {
		add("priority", literal(*p.Priority))
	}
	if p.AssignedTo != nil {
		if *p.AssignedTo == "" {
			add("assignedTo", "$$REMOVE")
		} else {
			add("assignedTo", literal(*p.AssignedTo))
		}
	}
	if p.Tags != nil {
		add("tags", literal(p.Tags))
	}
	if p.Watchers != nil {
		add("watchers", literal(p.Watchers))
	}
	if p.CustomFields != nil {
		add("customFields", bson.D{{Key: "$mergeObjects", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$customFields", bson.D{}}}},
			literal(p.CustomFields),
		}}})
	}
	if p.InlineComments != nil {
		add("inlineComments", literal(p.InlineComments))
	}
	if p.ClearDueDate {
		add("dueDate", "$$REMOVE")
	} else if p.DueDate != nil {
		add("dueDate", *p.DueDate)
	}
	if p.Order != nil {
		add("order", *p.Order)
	}
	if p.TimeSpent != nil {
		add("timeSpent", *p.TimeSpent)
	}
	add("updatedAt", now)

	return mongo.Pipeline{
		{{Key: "$set", Value: set}},
		{{Key: "$set", Value: bson.D{
			{Key: "completedAt", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$status", models.StatusDone}}},
				bson.D{{Key: "$ifNull", Value: bson.A{"$completedAt", now}}},
				"$$REMOVE",
			}}}},
		}}},
	}
}

// patchTask updates one task in place and returns the versions on either
// side of the write. The after copy mirrors what the pipeline stored.
func (s *MongoStore) patchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch, now time.Time) (*models.Task, *models.Task, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var before models.Task
	if err := s.tasks.FindOneAndUpdate(ctx, bson.M{"_id": id}, taskPatchPipeline(patch, now), opts).Decode(&before); err != nil {
		return nil, nil, notFound(err)
	}
	after := before
	patch.Apply(&after)
	after.Normalize(now)
	return &before, &after, nil
}

func (s *MongoStore) PatchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch, now time.Time, jobs interfaces.TaskJobs) (*models.Task, error) {
	var out *models.Task
	err := s.withTx(ctx, func(ctx context.Context) error {
		before, after, err := s.patchTask(ctx, id, patch, now)
		if err != nil {
			return err
		}
		out = after
		return s.insertJobs(ctx, jobs(before, after))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) PatchTasks(ctx context.Context, ops []interfaces.TaskPatchOp, now time.Time, jobs interfaces.TaskJobs) ([]*models.Task, []primitive.ObjectID, error) {
	var (
		updated []*models.Task
		missing []primitive.ObjectID
	)
	err := s.withTx(ctx, func(ctx context.Context) error {
		updated, missing = nil, nil
		var pending []models.SyncJob
		for _, op := range ops {
			before, after, err := s.patchTask(ctx, op.ID, op.Patch, now)
			if errors.Is(err, interfaces.ErrNotFound) {
				missing = append(missing, op.ID)
				continue
			}
			if err != nil {
				return fmt.Errorf("patching task %s: %w", op.ID.Hex(), err)
			}
			updated = append(updated, after)
			pending = append(pending, jobs(before, after)...)
		}
		return s.insertJobs(ctx, pending)
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, missing, nil
}

func (s *MongoStore) DeleteTask(ctx context.Context, id primitive.ObjectID, jobs ...models.SyncJob) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("deleting task: %w", err)
		}
		if res.DeletedCount == 0 {
			return interfaces.ErrNotFound
		}
		return s.insertJobs(ctx, jobs)
	})
}

func (s *MongoStore) DeleteTasks(ctx context.Context, ids []primitive.ObjectID, jobs ...models.SyncJob) (int64, error) {
	var deleted int64
	err := s.withTx(ctx, func(ctx context.Context) error {
		res, err := s.tasks.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return fmt.Errorf("deleting tasks: %w", err)
		}
		deleted = res.DeletedCount
		return s.insertJobs(ctx, jobs)
	})
	return deleted, err
}

func (s *MongoStore) DeleteTasksByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	res, err := s.tasks.DeleteMany(ctx, bson.M{"projectId": projectID})
	if err != nil {
		return 0, fmt.Errorf("deleting project tasks: %w", err)
	}
	return res.DeletedCount, nil
}

// Comments

func commentFilter(f interfaces.CommentFilter) bson.M {
	filter := bson.M{}
	if f.TaskID != nil {
		filter["taskId"] = *f.TaskID
	}
	if f.ProjectID != nil {
		filter["projectId"] = *f.ProjectID
	}
	return filter
}

func (s *MongoStore) InsertComment(ctx context.Context, c *models.Comment, jobs ...models.SyncJob) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		if _, err := s.comments.InsertOne(ctx, c); err != nil {
			return fmt.Errorf("inserting comment: %w", err)
		}
		return s.insertJobs(ctx, jobs)
	})
}

func (s *MongoStore) FindComment(ctx context.Context, id primitive.ObjectID) (*models.Comment, error) {
	var c models.Comment
	if err := s.comments.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *MongoStore) FindComments(ctx context.Context, f interfaces.CommentFilter, page interfaces.Page) ([]models.Comment, error) {
	page.SortBy, page.SortDesc = "createdAt", true
	opts := findOptions(page, map[string]string{"createdAt": "createdAt"}, "createdAt")
	cursor, err := s.comments.Find(ctx, commentFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("finding comments: %w", err)
	}
	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("decoding comments: %w", err)
	}
	return comments, nil
}

func (s *MongoStore) CountComments(ctx context.Context, f interfaces.CommentFilter) (int64, error) {
	return s.comments.CountDocuments(ctx, commentFilter(f))
}

func (s *MongoStore) DeleteComment(ctx context.Context, id primitive.ObjectID, jobs ...models.SyncJob) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		res, err := s.comments.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("deleting comment: %w", err)
		}
		if res.DeletedCount == 0 {
			return interfaces.ErrNotFound
		}
		return s.insertJobs(ctx, jobs)
	})
}

func (s *MongoStore) DeleteCommentsByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	res, err := s.comments.DeleteMany(ctx, bson.M{"projectId": projectID})
	if err != nil {
		return 0, fmt.Errorf("deleting project comments: %w", err)
	}
	return res.DeletedCount, nil
}

// Outbox

func (s *MongoStore) EnqueueSyncJobs(ctx context.Context, jobs ...models.SyncJob) error {
	return s.insertJobs(ctx, jobs)
}

func (s *MongoStore) ClaimSyncJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.SyncJob, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"status": models.JobPending, "nextAttemptAt": bson.M{"$lte": now}},
		bson.M{"status": models.JobProcessing, "leaseUntil": bson.M{"$lt": now}},
	}}
	update := bson.M{
		"$set": bson.M{"status": models.JobProcessing, "leaseUntil": now.Add(lease)},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "nextAttemptAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	var claimed []models.SyncJob
	for len(claimed) < limit {
		var job models.SyncJob
		err := s.jobs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return claimed, fmt.Errorf("claiming sync job: %w", err)
		}
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (s *MongoStore) CompleteSyncJob(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	res, err := s.jobs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"status": models.JobDone, "completedAt": now},
		"$unset": bson.M{"leaseUntil": "", "lastError": ""},
	})
	if err != nil {
		return fmt.Errorf("completing sync job: %w", err)
	}
	if res.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *MongoStore) FailSyncJob(ctx context.Context, id primitive.ObjectID, errMsg string, next time.Time, dead bool) error {
	status := models.JobPending
	if dead {
		status = models.JobDead
	}
	res, err := s.jobs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"status": status, "lastError": errMsg, "nextAttemptAt": next},
		"$unset": bson.M{"leaseUntil": ""},
	})
	if err != nil {
		return fmt.Errorf("failing sync job: %w", err)
	}
	if res.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *MongoStore) SyncJobStats(ctx context.Context) (models.OutboxStats, error) {
	var stats models.OutboxStats
	cursor, err := s.jobs.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return stats, fmt.Errorf("aggregating sync jobs: %w", err)
	}
	var rows []struct {
		Status models.SyncJobStatus `bson:"_id"`
		Count  int64                `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return stats, err
	}
	for _, r := range rows {
		switch r.Status {
		case models.JobPending:
			stats.Pending = r.Count
		case models.JobProcessing:
			stats.Processing = r.Count
		case models.JobDone:
			stats.Done = r.Count
		case models.JobDead:
			stats.Dead = r.Count
		}
	}
	return stats, nil
}

var _ interfaces.OperationalStore = (*MongoStore)(nil)
