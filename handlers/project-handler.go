package handlers

import (
	"net/http"

	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/models"
	"github.com/YadneshTeli/TaskForge-sub000/services"

	"github.com/gorilla/mux"
)

type ProjectHandler struct {
	service *services.ProjectService
	authz   *services.Authorizer
}

func NewProjectHandler(service *services.ProjectService, authz *services.Authorizer) *ProjectHandler {
	return &ProjectHandler{service: service, authz: authz}
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var in services.CreateProjectInput
	if !decode(w, r, &in) {
		return
	}
	if in.OwnerID == "" {
		in.OwnerID = a.UserID
	}
	if in.OwnerID != a.UserID && !a.IsAdmin() {
		writeError(w, r, &services.PermissionError{Action: "create a project for another user"})
		return
	}

	project, err := h.service.CreateProject(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["projectId"]
	if !h.allowed(w, r, id, services.AccessView) {
		return
	}
	details, err := h.service.GetProjectByID(r.Context(), id, services.ProjectOptions{
		IncludeUsers:     queryBool(r, "includeUsers"),
		IncludeAnalytics: queryBool(r, "includeAnalytics"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *ProjectHandler) GetUserProjects(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	userID := models.UserID(mux.Vars(r)["userId"])
	if err := services.CheckSelf(a, userID); err != nil {
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
	result, err := h.service.GetUserProjects(r.Context(), userID, services.ProjectQuery{
		Page:      page,
		Limit:     limit,
		Status:    models.ProjectStatus(q.Get("status")),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["projectId"]
	if !h.allowed(w, r, id, services.AccessManage) {
		return
	}
	var patch models.ProjectPatch
	if !decode(w, r, &patch) {
		return
	}
	project, err := h.service.UpdateProject(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["projectId"]
	if !h.allowed(w, r, id, services.AccessManage) {
		return
	}
	if err := h.service.DeleteProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["projectId"]
	if !h.allowed(w, r, id, services.AccessManage) {
		return
	}
	var req struct {
		UserID models.UserID `json:"userId"`
	}
	if !decode(w, r, &req) {
		return
	}
	project, err := h.service.AddMemberToProject(r.Context(), id, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.Logger.Infof("Event ID: PROJECT_MEMBER_ADDED, Description: User %s added to project %s", req.UserID, id)
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["projectId"]
	if !h.allowed(w, r, id, services.AccessManage) {
		return
	}
	project, err := h.service.RemoveMemberFromProject(r.Context(), id, models.UserID(vars["userId"]))
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.Logger.Infof("Event ID: PROJECT_MEMBER_REMOVED, Description: User %s removed from project %s", vars["userId"], id)
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["projectId"]
	if !h.allowed(w, r, id, services.AccessView) {
		return
	}
	a, err := h.service.GetProjectAnalytics(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *ProjectHandler) RefreshAnalytics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["projectId"]
	if !h.allowed(w, r, id, services.AccessManage) {
		return
	}
	a, err := h.service.UpdateProjectAnalytics(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *ProjectHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["projectId"]
	if !h.allowed(w, r, id, services.AccessView) {
		return
	}
	data, err := h.service.GetProjectDashboardData(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *ProjectHandler) allowed(w http.ResponseWriter, r *http.Request, projectID string, access services.Access) bool {
	a, ok := actor(w, r)
	if !ok {
		return false
	}
	if err := h.authz.CheckProject(r.Context(), a, projectID, access); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}
