package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StoreKind names the storage engine that owns an identifier.
type StoreKind string

const (
	StoreOperational StoreKind = "operational"
	StoreAnalytics   StoreKind = "analytics"
)

var ErrInvalidRef = errors.New("invalid reference")

// Ref points at an entity owned by one of the two stores. Operational ids are
// Mongo ObjectIDs, analytics ids are UUIDs.
type Ref struct {
	Store StoreKind `json:"store" bson:"store"`
	ID    string    `json:"id" bson:"id"`
}

func OperationalRef(id primitive.ObjectID) Ref {
	return Ref{Store: StoreOperational, ID: id.Hex()}
}

func AnalyticsRef(id string) Ref {
	return Ref{Store: StoreAnalytics, ID: id}
}

// ParseRef parses the "store:id" form produced by Ref.String.
func ParseRef(s string) (Ref, error) {
	store, id, ok := strings.Cut(s, ":")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q has no store prefix", ErrInvalidRef, s)
	}
	ref := Ref{Store: StoreKind(store), ID: id}
	if err := ref.Validate(); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func (r Ref) IsZero() bool {
	return r.Store == "" && r.ID == ""
}

func (r Ref) Validate() error {
	switch r.Store {
	case StoreOperational:
		if !primitive.IsValidObjectID(r.ID) {
			return fmt.Errorf("%w: %q is not an operational id", ErrInvalidRef, r.ID)
		}
	case StoreAnalytics:
		if _, err := uuid.Parse(r.ID); err != nil {
			return fmt.Errorf("%w: %q is not an analytics id", ErrInvalidRef, r.ID)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidRef, r.Store)
	}
	return nil
}

// ObjectID returns the Mongo id of an operational reference.
func (r Ref) ObjectID() (primitive.ObjectID, error) {
	if r.Store != StoreOperational {
		return primitive.NilObjectID, fmt.Errorf("%w: %s is not an operational reference", ErrInvalidRef, r)
	}
	return primitive.ObjectIDFromHex(r.ID)
}

func (r Ref) String() string {
	return string(r.Store) + ":" + r.ID
}

// UserID identifies a user row in the analytics store.
type UserID string

func (u UserID) Validate() error {
	return u.Ref().Validate()
}

func (u UserID) Ref() Ref {
	return AnalyticsRef(string(u))
}

func (u UserID) String() string {
	return string(u)
}

// ParseObjectID validates a hex operational id and returns it.
func ParseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q is not an operational id", ErrInvalidRef, id)
	}
	return oid, nil
}
