package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Comment struct {
	ID        primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Content   string              `json:"content" bson:"content"`
	AuthorID  UserID              `json:"authorId" bson:"authorId"`
	TaskID    *primitive.ObjectID `json:"taskId,omitempty" bson:"taskId,omitempty"`
	ProjectID primitive.ObjectID  `json:"projectId" bson:"projectId"`
	CreatedAt time.Time           `json:"createdAt" bson:"createdAt"`
}
