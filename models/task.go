package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type InlineComment struct {
	AuthorID  UserID    `json:"authorId" bson:"authorId"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type Task struct {
	ID             primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	Title          string                 `json:"title" bson:"title"`
	Description    string                 `json:"description" bson:"description"`
	Status         string                 `json:"status" bson:"status"`
	Priority       Priority               `json:"priority" bson:"priority"`
	ProjectID      primitive.ObjectID     `json:"projectId" bson:"projectId"`
	AssignedTo     UserID                 `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
	CreatedBy      UserID                 `json:"createdBy" bson:"createdBy"`
	Tags           []string               `json:"tags" bson:"tags"`
	Watchers       []UserID               `json:"watchers" bson:"watchers"`
	Attachments    []Attachment           `json:"attachments" bson:"attachments"`
	CustomFields   map[string]interface{} `json:"customFields,omitempty" bson:"customFields,omitempty"`
	InlineComments []InlineComment        `json:"inlineComments" bson:"inlineComments"`
	DueDate        *time.Time             `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	CompletedAt    *time.Time             `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	ParentTaskID   *primitive.ObjectID    `json:"parentTaskId,omitempty" bson:"parentTaskId,omitempty"`
	Order          int                    `json:"order" bson:"order"`
	TimeSpent      float64                `json:"timeSpent" bson:"timeSpent"`
	CreatedAt      time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt" bson:"updatedAt"`
}

func (t *Task) Ref() Ref {
	return OperationalRef(t.ID)
}

func (t *Task) ProjectRef() Ref {
	return OperationalRef(t.ProjectID)
}

// Overdue reports whether the due date has passed on an unfinished task.
func (t *Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != StatusDone
}

// Normalize fills defaults and keeps completedAt in step with the status.
func (t *Task) Normalize(now time.Time) {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Watchers == nil {
		t.Watchers = []UserID{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
	if t.InlineComments == nil {
		t.InlineComments = []InlineComment{}
	}
	if t.Status == StatusDone {
		if t.CompletedAt == nil {
			c := now
			t.CompletedAt = &c
		}
	} else {
		t.CompletedAt = nil
	}
	t.UpdatedAt = now
}

// TaskPatch carries the mutable task fields. Nil fields are left as is; an
// empty AssignedTo unassigns the task.
type TaskPatch struct {
	Title          *string                `json:"title,omitempty"`
	Description    *string                `json:"description,omitempty"`
	Status         *string                `json:"status,omitempty"`
	Priority       *Priority              `json:"priority,omitempty"`
	AssignedTo     *UserID                `json:"assignedTo,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Watchers       []UserID               `json:"watchers,omitempty"`
	CustomFields   map[string]interface{} `json:"customFields,omitempty"`
	InlineComments []InlineComment        `json:"inlineComments,omitempty"`
	DueDate        *time.Time             `json:"dueDate,omitempty"`
	ClearDueDate   bool                   `json:"clearDueDate,omitempty"`
	Order          *int                   `json:"order,omitempty"`
	TimeSpent      *float64               `json:"timeSpent,omitempty"`
}

func (tp TaskPatch) Apply(t *Task) {
	if tp.Title != nil {
		t.Title = *tp.Title
	}
	if tp.Description != nil {
		t.Description = *tp.Description
	}
	if tp.Status != nil {
		t.Status = *tp.Status
	}
	if tp.Priority != nil {
		t.Priority = *tp.Priority
	}
	if tp.AssignedTo != nil {
		t.AssignedTo = *tp.AssignedTo
	}
	if tp.Tags != nil {
		t.Tags = tp.Tags
	}
	if tp.Watchers != nil {
		t.Watchers = tp.Watchers
	}
	if tp.CustomFields != nil {
		// copy first: t may share its map with another Task value
		merged := make(map[string]interface{}, len(t.CustomFields)+len(tp.CustomFields))
		for k, v := range t.CustomFields {
			merged[k] = v
		}
		for k, v := range tp.CustomFields {
			merged[k] = v
		}
		t.CustomFields = merged
	}
	if tp.InlineComments != nil {
		t.InlineComments = tp.InlineComments
	}
	if tp.ClearDueDate {
		t.DueDate = nil
	} else if tp.DueDate != nil {
		d := *tp.DueDate
		t.DueDate = &d
	}
	if tp.Order != nil {
		t.Order = *tp.Order
	}
	if tp.TimeSpent != nil {
		t.TimeSpent = *tp.TimeSpent
	}
}

// AnalyticsRelevantChange reports whether status, assignee or due date
// differ between two versions of a task.
func AnalyticsRelevantChange(before, after *Task) bool {
	if before.Status != after.Status || before.AssignedTo != after.AssignedTo {
		return true
	}
	switch {
	case before.DueDate == nil && after.DueDate == nil:
		return false
	case before.DueDate == nil || after.DueDate == nil:
		return true
	default:
		return !before.DueDate.Equal(*after.DueDate)
	}
}

// TaskDigest is the projection used by project analytics recomputation.
type TaskDigest struct {
	Status  string     `bson:"status"`
	DueDate *time.Time `bson:"dueDate,omitempty"`
}
