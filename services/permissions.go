package services

import (
	"context"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"
)

const RoleAdmin = "admin"

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID models.UserID
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type Access int

const (
	// AccessView allows reading a project and writing its tasks and comments.
	AccessView Access = iota
	// AccessManage allows updating or deleting the project and its members.
	AccessManage
)

type Authorizer struct {
	ops interfaces.OperationalStore
}

func NewAuthorizer(ops interfaces.OperationalStore) *Authorizer {
	return &Authorizer{ops: ops}
}

// CheckProject returns nil when the actor has the requested access to the
// project. Admins pass without a lookup.
func (az *Authorizer) CheckProject(ctx context.Context, actor Actor, projectID string, access Access) error {
	if actor.IsAdmin() {
		return nil
	}
	oid, err := parseID("projectId", projectID)
	if err != nil {
		return err
	}
	p, err := az.ops.FindProject(ctx, oid)
	if err != nil {
		return storeErr("find project", "project", projectID, err)
	}
	return checkProject(actor, p, access)
}

func checkProject(actor Actor, p *models.Project, access Access) error {
	if actor.IsAdmin() || p.OwnerID == actor.UserID {
		return nil
	}
	if access == AccessView && p.HasMember(actor.UserID) {
		return nil
	}
	if access == AccessManage {
		return &PermissionError{Action: "manage project " + p.ID.Hex()}
	}
	return &PermissionError{Action: "access project " + p.ID.Hex()}
}

// CheckTask resolves the task's project and checks view access on it.
func (az *Authorizer) CheckTask(ctx context.Context, actor Actor, taskID string) error {
	if actor.IsAdmin() {
		return nil
	}
	oid, err := parseID("id", taskID)
	if err != nil {
		return err
	}
	t, err := az.ops.FindTask(ctx, oid)
	if err != nil {
		return storeErr("find task", "task", taskID, err)
	}
	return az.CheckProject(ctx, actor, t.ProjectID.Hex(), AccessView)
}

// CheckSelf allows users to read their own records.
func CheckSelf(actor Actor, userID models.UserID) error {
	if actor.IsAdmin() || actor.UserID == userID {
		return nil
	}
	return &PermissionError{Action: "access records of user " + string(userID)}
}
