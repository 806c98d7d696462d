package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.notificationService.List(r.Context(), principal(r), targetUser(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	writeSuccess(w, notifications)
}

func (h *Handler) UnreadNotifications(w http.ResponseWriter, r *http.Request) {
	count, err := h.notificationService.Unread(r.Context(), principal(r), targetUser(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, unreadResponse(r, count))
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationService.MarkRead(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.notificationService.MarkAllRead(r.Context(), principal(r), targetUser(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, map[string]int{"updated": updated})
}
