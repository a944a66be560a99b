package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of an input.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns nil when no field was rejected.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

type NotFoundError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// DatabaseError hides store-specific failures from callers.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return "database operation failed: " + e.Op
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

type PermissionError struct {
	Action string `json:"action"`
}

func (e *PermissionError) Error() string {
	return "not allowed to " + e.Action
}

// storeErr maps a store error onto the service taxonomy.
func storeErr(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, interfaces.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	var ve *ValidationError
	var nf *NotFoundError
	var pe *PermissionError
	var de *DatabaseError
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &pe) || errors.As(err, &de) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}

func parseID(field, id string) (primitive.ObjectID, error) {
	oid, err := models.ParseObjectID(id)
	if err != nil {
		return oid, invalid(field, "must be a valid id")
	}
	return oid, nil
}

func validateUser(v *ValidationError, field string, id models.UserID, required bool) {
	if id == "" {
		if required {
			v.Add(field, "is required")
		}
		return
	}
	if err := id.Validate(); err != nil {
		v.Add(field, "must be a valid user id")
	}
}
