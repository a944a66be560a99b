package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
	ProjectOnHold    ProjectStatus = "on-hold"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectCompleted, ProjectArchived, ProjectOnHold:
		return true
	}
	return false
}

type NotificationSettings struct {
	Email        bool `json:"email" bson:"email"`
	Push         bool `json:"push" bson:"push"`
	TaskAssigned bool `json:"taskAssigned" bson:"taskAssigned"`
	DueSoon      bool `json:"dueSoon" bson:"dueSoon"`
}

type CustomField struct {
	Name    string   `json:"name" bson:"name"`
	Type    string   `json:"type" bson:"type"`
	Options []string `json:"options,omitempty" bson:"options,omitempty"`
}

type ProjectSettings struct {
	TaskStatuses  []string             `json:"taskStatuses" bson:"taskStatuses"`
	Priorities    []string             `json:"priorities" bson:"priorities"`
	CustomFields  []CustomField        `json:"customFields" bson:"customFields"`
	Timezone      string               `json:"timezone" bson:"timezone"`
	Notifications NotificationSettings `json:"notifications" bson:"notifications"`
}

// DefaultProjectSettings is applied to projects created without settings.
func DefaultProjectSettings() ProjectSettings {
	return ProjectSettings{
		TaskStatuses: []string{"todo", "in-progress", "review", "done"},
		Priorities:   []string{"low", "medium", "high", "urgent"},
		CustomFields: []CustomField{},
		Timezone:     "UTC",
		Notifications: NotificationSettings{
			Email:        true,
			Push:         true,
			TaskAssigned: true,
			DueSoon:      true,
		},
	}
}

type ProjectStats struct {
	TaskCount      int `json:"taskCount" bson:"taskCount"`
	CompletedTasks int `json:"completedTasks" bson:"completedTasks"`
	MemberCount    int `json:"memberCount" bson:"memberCount"`
}

type Attachment struct {
	Filename   string    `json:"filename" bson:"filename"`
	URL        string    `json:"url" bson:"url"`
	Size       int64     `json:"size" bson:"size"`
	MimeType   string    `json:"mimeType" bson:"mimeType"`
	UploadedBy UserID    `json:"uploadedBy" bson:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt" bson:"uploadedAt"`
}

type Project struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	Status      ProjectStatus      `json:"status" bson:"status"`
	OwnerID     UserID             `json:"ownerId" bson:"ownerId"`
	Members     []UserID           `json:"members" bson:"members"`
	Settings    ProjectSettings    `json:"settings" bson:"settings"`
	DueDate     *time.Time         `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Stats       ProjectStats       `json:"stats" bson:"stats"`
	Attachments []Attachment       `json:"attachments" bson:"attachments"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
	ArchivedAt  *time.Time         `json:"archivedAt,omitempty" bson:"archivedAt,omitempty"`
}

func (p *Project) Ref() Ref {
	return OperationalRef(p.ID)
}

func (p *Project) HasMember(userID UserID) bool {
	for _, m := range p.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (p *Project) AddMember(userID UserID) bool {
	if p.HasMember(userID) {
		return false
	}
	p.Members = append(p.Members, userID)
	p.Stats.MemberCount = len(p.Members)
	return true
}

func (p *Project) RemoveMember(userID UserID) bool {
	for i, m := range p.Members {
		if m == userID {
			p.Members = append(p.Members[:i:i], p.Members[i+1:]...)
			p.Stats.MemberCount = len(p.Members)
			return true
		}
	}
	return false
}

// Normalize deduplicates members, keeps the owner among them and refreshes
// the member count. Called before every save.
func (p *Project) Normalize(now time.Time) {
	seen := make(map[UserID]struct{}, len(p.Members)+1)
	members := make([]UserID, 0, len(p.Members)+1)
	if p.OwnerID != "" {
		seen[p.OwnerID] = struct{}{}
		members = append(members, p.OwnerID)
	}
	for _, m := range p.Members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		members = append(members, m)
	}
	p.Members = members
	p.Stats.MemberCount = len(members)

	if p.Status == "" {
		p.Status = ProjectActive
	}
	if p.Status == ProjectArchived {
		if p.ArchivedAt == nil {
			t := now
			p.ArchivedAt = &t
		}
	} else {
		p.ArchivedAt = nil
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	p.UpdatedAt = now
}

// ProjectPatch carries the mutable project fields. Nil fields are left as is.
type ProjectPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Status      *ProjectStatus   `json:"status,omitempty"`
	Settings    *ProjectSettings `json:"settings,omitempty"`
	DueDate     *time.Time       `json:"dueDate,omitempty"`
	Attachments []Attachment     `json:"attachments,omitempty"`
}

func (pp ProjectPatch) Apply(p *Project) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Status != nil {
		p.Status = *pp.Status
	}
	if pp.Settings != nil {
		p.Settings = *pp.Settings
	}
	if pp.DueDate != nil {
		d := *pp.DueDate
		p.DueDate = &d
	}
	if pp.Attachments != nil {
		p.Attachments = pp.Attachments
	}
}
