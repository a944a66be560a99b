package handlers

import (
	"net/http"

	"github.com/YadneshTeli/TaskForge-sub000/services"

	"github.com/gorilla/mux"
)

type CommentHandler struct {
	service *services.CommentService
	authz   *services.Authorizer
}

func NewCommentHandler(service *services.CommentService, authz *services.Authorizer) *CommentHandler {
	return &CommentHandler{service: service, authz: authz}
}

// checkTarget requires view access to the task's project, or to the project.
func (h *CommentHandler) checkTarget(w http.ResponseWriter, r *http.Request, a services.Actor, taskID, projectID string) bool {
	var err error
	switch {
	case taskID != "":
		err = h.authz.CheckTask(r.Context(), a, taskID)
	case projectID != "":
		err = h.authz.CheckProject(r.Context(), a, projectID, services.AccessView)
	}
	if err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in services.CreateCommentInput
	if !decode(w, r, &in) {
		return
	}
	in.AuthorID = a.UserID
	if !h.checkTarget(w, r, a, in.TaskID, in.ProjectID) {
		return
	}
	c, err := h.service.CreateComment(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	taskID, projectID := r.URL.Query().Get("taskId"), r.URL.Query().Get("projectId")
	if !h.checkTarget(w, r, a, taskID, projectID) {
		return
	}
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	result, err := h.service.ListComments(r.Context(), taskID, projectID, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteComment(r.Context(), a, mux.Vars(r)["commentId"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
