package handlers

import (
	"net/http"

	"github.com/YadneshTeli/TaskForge-sub000/models"
	"github.com/YadneshTeli/TaskForge-sub000/services"

	"github.com/gorilla/mux"
)

type DashboardHandler struct {
	service *services.DashboardService
	authz   *services.Authorizer
}

func NewDashboardHandler(service *services.DashboardService, authz *services.Authorizer) *DashboardHandler {
	return &DashboardHandler{service: service, authz: authz}
}

func (h *DashboardHandler) ProjectOverview(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["projectId"]
	if err := h.authz.CheckProject(r.Context(), a, id, services.AccessView); err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := h.service.ProjectOverview(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *DashboardHandler) UserOverview(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	userID := models.UserID(mux.Vars(r)["userId"])
	if err := services.CheckSelf(a, userID); err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := h.service.UserOverview(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// AdminHandler exposes outbox and reconciliation controls to admins.
type AdminHandler struct {
	worker     *services.SyncWorker
	reconciler *services.Reconciler
}

func NewAdminHandler(worker *services.SyncWorker, reconciler *services.Reconciler) *AdminHandler {
	return &AdminHandler{worker: worker, reconciler: reconciler}
}

func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	a, ok := actor(w, r)
	if !ok {
		return false
	}
	if !a.IsAdmin() {
		writeError(w, r, &services.PermissionError{Action: "use admin endpoints"})
		return false
	}
	return true
}

func (h *AdminHandler) SyncStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	stats, err := h.worker.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	report, err := h.reconciler.Sweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
