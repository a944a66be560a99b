package handlers

import (
	"net/http"

	"github.com/YadneshTeli/TaskForge-sub000/services"

	"github.com/gorilla/mux"
)

// NotificationHandler serves the caller's own notifications. Notifications
// are created by sync jobs, not over HTTP.
type NotificationHandler struct {
	service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	list, err := h.service.ListForUser(r.Context(), a.UserID, int(limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	createdAt, ok := queryTime(w, r, "createdAt", true)
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), a.UserID, mux.Vars(r)["notificationId"], *createdAt); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	createdAt, ok := queryTime(w, r, "createdAt", true)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), a.UserID, mux.Vars(r)["notificationId"], *createdAt); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
