package handlers

import (
	"errors"
	"net/http"

	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/models"
	"github.com/YadneshTeli/TaskForge-sub000/services"

	"github.com/gorilla/mux"
)

type TaskHandler struct {
	service *services.TaskService
	authz   *services.Authorizer
}

func NewTaskHandler(service *services.TaskService, authz *services.Authorizer) *TaskHandler {
	return &TaskHandler{service: service, authz: authz}
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in services.CreateTaskInput
	if !decode(w, r, &in) {
		return
	}
	in.CreatedBy = creator(a, in.CreatedBy)
	if in.ProjectID != "" {
		if err := h.authz.CheckProject(r.Context(), a, in.ProjectID, services.AccessView); err != nil {
			writeError(w, r, err)
			return
		}
	}
	task, err := h.service.CreateTask(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskId"]
	if !h.allowed(w, r, id) {
		return
	}
	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskId"]
	if !h.allowed(w, r, id) {
		return
	}
	var patch models.TaskPatch
	if !decode(w, r, &patch) {
		return
	}
	task, err := h.service.UpdateTask(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskId"]
	if !h.allowed(w, r, id) {
		return
	}
	if err := h.service.DeleteTask(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) AssignTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskId"]
	if !h.allowed(w, r, id) {
		return
	}
	var req struct {
		UserID models.UserID `json:"userId"`
	}
	if !decode(w, r, &req) {
		return
	}
	task, err := h.service.AssignTaskToUser(r.Context(), id, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) GetTasksByProject(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	projectID := mux.Vars(r)["projectId"]
	if err := h.authz.CheckProject(r.Context(), a, projectID, services.AccessView); err != nil {
		writeError(w, r, err)
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
	q := r.URL.Query()
	result, err := h.service.GetTasksByProject(r.Context(), projectID, services.TaskQuery{
		Status:     q.Get("status"),
		AssignedTo: models.UserID(q.Get("assignedTo")),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TaskHandler) GetTaskAnalytics(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	projectID := mux.Vars(r)["projectId"]
	if err := h.authz.CheckProject(r.Context(), a, projectID, services.AccessView); err != nil {
		writeError(w, r, err)
		return
	}
	from, ok := queryTime(w, r, "dateFrom", false)
	if !ok {
		return
	}
	to, ok := queryTime(w, r, "dateTo", false)
	if !ok {
		return
	}
	result, err := h.service.GetTaskAnalytics(r.Context(), projectID, services.TaskAnalyticsQuery{
		GroupBy:  interfaces.MetricsGroupBy(r.URL.Query().Get("groupBy")),
		Status:   r.URL.Query().Get("status"),
		DateFrom: from,
		DateTo:   to,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TaskHandler) GetUserTaskStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.self(w, r)
	if !ok {
		return
	}
	stats, err := h.service.GetUserTaskStats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *TaskHandler) RefreshUserTaskStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.self(w, r)
	if !ok {
		return
	}
	stats, err := h.service.UpdateUserStats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *TaskHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Tasks []services.CreateTaskInput `json:"tasks"`
	}
	if !decode(w, r, &req) {
		return
	}
	checked := map[string]bool{}
	for i := range req.Tasks {
		in := &req.Tasks[i]
		in.CreatedBy = creator(a, in.CreatedBy)
		if in.ProjectID == "" || checked[in.ProjectID] {
			continue
		}
		if err := h.authz.CheckProject(r.Context(), a, in.ProjectID, services.AccessView); err != nil {
			writeError(w, r, err)
			return
		}
		checked[in.ProjectID] = true
	}
	tasks, err := h.service.BatchCreateTasks(r.Context(), req.Tasks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"tasks": tasks})
}

func (h *TaskHandler) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []services.TaskUpdate `json:"updates"`
	}
	if !decode(w, r, &req) {
		return
	}
	for _, u := range req.Updates {
		if !h.allowedOrGone(w, r, u.ID) {
			return
		}
	}
	result, err := h.service.BatchUpdateTasks(r.Context(), req.Updates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TaskHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	for _, id := range req.IDs {
		if !h.allowedOrGone(w, r, id) {
			return
		}
	}
	deleted, err := h.service.BatchDeleteTasks(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *TaskHandler) allowed(w http.ResponseWriter, r *http.Request, taskID string) bool {
	a, ok := actor(w, r)
	if !ok {
		return false
	}
	if err := h.authz.CheckTask(r.Context(), a, taskID); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// allowedOrGone is allowed for batch endpoints, where the service skips ids
// that no longer exist.
func (h *TaskHandler) allowedOrGone(w http.ResponseWriter, r *http.Request, taskID string) bool {
	a, ok := actor(w, r)
	if !ok {
		return false
	}
	err := h.authz.CheckTask(r.Context(), a, taskID)
	var nf *services.NotFoundError
	if err != nil && !(errors.As(err, &nf) && nf.Resource == "task") {
		writeError(w, r, err)
		return false
	}
	return true
}

// creator pins createdBy to the caller. Only admins may record another user.
func creator(a services.Actor, requested models.UserID) models.UserID {
	if requested != "" && a.IsAdmin() {
		return requested
	}
	return a.UserID
}

func (h *TaskHandler) self(w http.ResponseWriter, r *http.Request) (models.UserID, bool) {
	a, ok := actor(w, r)
	if !ok {
		return "", false
	}
	userID := models.UserID(mux.Vars(r)["userId"])
	if err := services.CheckSelf(a, userID); err != nil {
		writeError(w, r, err)
		return "", false
	}
	return userID, true
}
