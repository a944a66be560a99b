package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTask_Normalize(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	task := &Task{}
	task.Normalize(now)
	assert.Equal(t, StatusTodo, task.Status)
	assert.Equal(t, PriorityMedium, task.Priority)
	assert.NotNil(t, task.Tags)
	assert.NotNil(t, task.Watchers)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, now, task.UpdatedAt)

	task.Status = StatusDone
	task.Normalize(now)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, now, *task.CompletedAt)

	// A later save keeps the first completion time.
	task.Normalize(now.Add(time.Hour))
	assert.Equal(t, now, *task.CompletedAt)

	task.Status = StatusInProgress
	task.Normalize(now)
	assert.Nil(t, task.CompletedAt)
}

func TestTask_Overdue(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&Task{Status: StatusTodo, DueDate: &past}).Overdue(now))
	assert.False(t, (&Task{Status: StatusDone, DueDate: &past}).Overdue(now))
	assert.False(t, (&Task{Status: StatusTodo, DueDate: &future}).Overdue(now))
	assert.False(t, (&Task{Status: StatusTodo}).Overdue(now))
}

func TestTaskPatch_Apply(t *testing.T) {
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{Title: "old", DueDate: &due, CustomFields: map[string]interface{}{"a": 1}}

	title := "new"
	unassigned := UserID("")
	TaskPatch{Title: &title, AssignedTo: &unassigned, CustomFields: map[string]interface{}{"b": 2}}.Apply(task)
	assert.Equal(t, "new", task.Title)
	assert.Empty(t, task.AssignedTo)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, task.CustomFields)
	assert.NotNil(t, task.DueDate)

	TaskPatch{ClearDueDate: true, DueDate: &due}.Apply(task)
	assert.Nil(t, task.DueDate)
}

func TestTaskPatch_Apply_LeavesCopiesAlone(t *testing.T) {
	before := Task{Title: "t", CustomFields: map[string]interface{}{"a": 1}}
	after := before

	TaskPatch{CustomFields: map[string]interface{}{"a": 2, "b": 3}}.Apply(&after)
	assert.Equal(t, map[string]interface{}{"a": 1}, before.CustomFields)
	assert.Equal(t, map[string]interface{}{"a": 2, "b": 3}, after.CustomFields)
}

func TestAnalyticsRelevantChange(t *testing.T) {
	d1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	base := Task{Title: "a", Status: StatusTodo, AssignedTo: "u1", DueDate: &d1}

	tests := []struct {
		name   string
		mutate func(*Task)
		want   bool
	}{
		{"title only", func(t *Task) { t.Title = "b" }, false},
		{"tags only", func(t *Task) { t.Tags = []string{"x"} }, false},
		{"status", func(t *Task) { t.Status = StatusDone }, true},
		{"assignee", func(t *Task) { t.AssignedTo = "u2" }, true},
		{"due date moved", func(t *Task) { t.DueDate = &d2 }, true},
		{"due date cleared", func(t *Task) { t.DueDate = nil }, true},
		{"same due date", func(t *Task) { d := d1; t.DueDate = &d }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after := base
			tt.mutate(&after)
			assert.Equal(t, tt.want, AnalyticsRelevantChange(&base, &after))
		})
	}
}

func TestNewTaskMetrics(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	completed := created.Add(90 * time.Minute)
	task := &Task{
		ID:          primitive.NewObjectID(),
		ProjectID:   primitive.NewObjectID(),
		Status:      StatusDone,
		Priority:    PriorityHigh,
		AssignedTo:  "u1",
		CreatedBy:   "u2",
		TimeSpent:   2.5,
		CreatedAt:   created,
		CompletedAt: &completed,
	}

	m := NewTaskMetrics(task)
	assert.Equal(t, task.ID.Hex(), m.TaskID)
	assert.Equal(t, task.ProjectID.Hex(), m.ProjectID)
	assert.Equal(t, "high", m.Priority)
	assert.Equal(t, "u1", m.AssignedTo)
	require.NotNil(t, m.CompletionTime)
	assert.InDelta(t, 1.5, *m.CompletionTime, 1e-9)

	task.CompletedAt = nil
	assert.Nil(t, NewTaskMetrics(task).CompletionTime)
}

func TestPriority_Valid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent} {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, Priority("critical").Valid())
	assert.False(t, Priority("").Valid())
}
