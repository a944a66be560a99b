package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const maxCommentLength = 5000

type CommentService struct {
	ops   interfaces.OperationalStore
	waker Waker
	now   func() time.Time
}

func NewCommentService(ops interfaces.OperationalStore, waker Waker) *CommentService {
	return &CommentService{
		ops:   ops,
		waker: waker,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateCommentInput targets a task, a project, or both. A comment on a task
// always belongs to the task's project.
type CreateCommentInput struct {
	Content   string        `json:"content"`
	AuthorID  models.UserID `json:"authorId"`
	TaskID    string        `json:"taskId"`
	ProjectID string        `json:"projectId"`
}

type CommentPage struct {
	Comments   []models.Comment `json:"comments"`
	Total      int64            `json:"total"`
	Page       int64            `json:"page"`
	Limit      int64            `json:"limit"`
	TotalPages int64            `json:"totalPages"`
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	v := &ValidationError{}
	content := strings.TrimSpace(in.Content)
	switch {
	case content == "":
		v.Add("content", "is required")
	case len(content) > maxCommentLength:
		v.Add("content", fmt.Sprintf("must be at most %d characters", maxCommentLength))
	}
	validateUser(v, "authorId", in.AuthorID, true)
	var taskID, projectID primitive.ObjectID
	if in.TaskID == "" && in.ProjectID == "" {
		v.Add("taskId", "taskId or projectId is required")
	}
	if in.TaskID != "" {
		if oid, err := models.ParseObjectID(in.TaskID); err != nil {
			v.Add("taskId", "must be a valid id")
		} else {
			taskID = oid
		}
	}
	if in.ProjectID != "" {
		if oid, err := models.ParseObjectID(in.ProjectID); err != nil {
			v.Add("projectId", "must be a valid id")
		} else {
			projectID = oid
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	c := &models.Comment{
		ID:        primitive.NewObjectID(),
		Content:   content,
		AuthorID:  in.AuthorID,
		ProjectID: projectID,
		CreatedAt: s.now(),
	}
	if !taskID.IsZero() {
		t, err := s.ops.FindTask(ctx, taskID)
		if err != nil {
			return nil, storeErr("find task", "task", in.TaskID, err)
		}
		if !projectID.IsZero() && t.ProjectID != projectID {
			return nil, invalid("taskId", "does not belong to the given project")
		}
		c.TaskID = &taskID
		c.ProjectID = t.ProjectID
	} else if _, err := s.ops.FindProject(ctx, projectID); err != nil {
		return nil, storeErr("find project", "project", in.ProjectID, err)
	}

	if err := s.ops.InsertComment(ctx, c, models.ProjectAnalyticsJob(models.OperationalRef(c.ProjectID), c.CreatedAt)); err != nil {
		return nil, storeErr("insert comment", "comment", c.ID.Hex(), err)
	}
	if s.waker != nil {
		s.waker.Notify()
	}
	return c, nil
}

// ListComments returns comments on a task or, without a task, on a whole
// project, newest first.
func (s *CommentService) ListComments(ctx context.Context, taskID, projectID string, page, limit int64) (*CommentPage, error) {
	var f interfaces.CommentFilter
	switch {
	case taskID != "":
		oid, err := parseID("taskId", taskID)
		if err != nil {
			return nil, err
		}
		f.TaskID = &oid
	case projectID != "":
		oid, err := parseID("projectId", projectID)
		if err != nil {
			return nil, err
		}
		f.ProjectID = &oid
	default:
		return nil, invalid("taskId", "taskId or projectId is required")
	}

	page, limit = pageBounds(page, limit)
	out := &CommentPage{Page: page, Limit: limit}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Total, err = s.ops.CountComments(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		out.Comments, err = s.ops.FindComments(gctx, f, interfaces.Page{
			Skip: (page - 1) * limit, Limit: limit, SortBy: "createdAt", SortDesc: true,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeErr("list comments", "comment", "", err)
	}
	out.TotalPages = totalPages(out.Total, limit)
	return out, nil
}

// DeleteComment is allowed to the comment's author and to admins.
func (s *CommentService) DeleteComment(ctx context.Context, actor Actor, id string) error {
	oid, err := parseID("id", id)
	if err != nil {
		return err
	}
	c, err := s.ops.FindComment(ctx, oid)
	if err != nil {
		return storeErr("find comment", "comment", id, err)
	}
	if c.AuthorID != actor.UserID && !actor.IsAdmin() {
		return &PermissionError{Action: "delete comment " + id}
	}
	if err := s.ops.DeleteComment(ctx, oid, models.ProjectAnalyticsJob(models.OperationalRef(c.ProjectID), s.now())); err != nil {
		return storeErr("delete comment", "comment", id, err)
	}
	if s.waker != nil {
		s.waker.Notify()
	}
	return nil
}
