package handlers

import (
	"net/http"

	"github.com/YadneshTeli/TaskForge-sub000/middleware"

	"github.com/gorilla/mux"
)

type Handlers struct {
	Projects      *ProjectHandler
	Tasks         *TaskHandler
	Comments      *CommentHandler
	Notifications *NotificationHandler
	Dashboard     *DashboardHandler
	Admin         *AdminHandler
}

// NewRouter registers every route under /api behind JWT authentication.
// /health is left open.
func NewRouter(h Handlers, jwtSecret []byte) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.JWTAuth(jwtSecret))

	api.HandleFunc("/projects", h.Projects.CreateProject).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectId}", h.Projects.GetProject).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}", h.Projects.UpdateProject).Methods(http.MethodPut)
	api.HandleFunc("/projects/{projectId}", h.Projects.DeleteProject).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{projectId}/members", h.Projects.AddMember).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectId}/members/{userId}", h.Projects.RemoveMember).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{projectId}/analytics", h.Projects.GetAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}/analytics/refresh", h.Projects.RefreshAnalytics).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectId}/dashboard", h.Projects.GetDashboard).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}/tasks", h.Tasks.GetTasksByProject).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}/task-analytics", h.Tasks.GetTaskAnalytics).Methods(http.MethodGet)

	api.HandleFunc("/tasks", h.Tasks.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/batch", h.Tasks.BatchCreate).Methods(http.MethodPost)
	api.HandleFunc("/tasks/batch", h.Tasks.BatchUpdate).Methods(http.MethodPut)
	api.HandleFunc("/tasks/batch", h.Tasks.BatchDelete).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{taskId}", h.Tasks.GetTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskId}", h.Tasks.UpdateTask).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{taskId}", h.Tasks.DeleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{taskId}/assign", h.Tasks.AssignTask).Methods(http.MethodPut)

	api.HandleFunc("/users/{userId}/projects", h.Projects.GetUserProjects).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/task-stats", h.Tasks.GetUserTaskStats).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/task-stats/refresh", h.Tasks.RefreshUserTaskStats).Methods(http.MethodPost)

	api.HandleFunc("/comments", h.Comments.CreateComment).Methods(http.MethodPost)
	api.HandleFunc("/comments", h.Comments.ListComments).Methods(http.MethodGet)
	api.HandleFunc("/comments/{commentId}", h.Comments.DeleteComment).Methods(http.MethodDelete)

	api.HandleFunc("/notifications", h.Notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationId}/read", h.Notifications.MarkRead).Methods(http.MethodPut)
	api.HandleFunc("/notifications/{notificationId}", h.Notifications.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard/projects/{projectId}", h.Dashboard.ProjectOverview).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/users/{userId}", h.Dashboard.UserOverview).Methods(http.MethodGet)

	api.HandleFunc("/admin/sync/stats", h.Admin.SyncStats).Methods(http.MethodGet)
	api.HandleFunc("/admin/reconcile", h.Admin.Reconcile).Methods(http.MethodPost)
	return r
}
