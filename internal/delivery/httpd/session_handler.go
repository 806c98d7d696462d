package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.Sessions(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, sessions)
}

func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")

	var req models.SessionRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	session, err := h.sessionService.Save(r.Context(), principal(r), slot, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, session)
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	resp, err := h.sessionService.Start(r.Context(), principal(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, resp)
}

func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.Stop(r.Context(), principal(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, session)
}

func (h *Handler) ClearNextSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.ClearNext(r.Context(), principal(r)); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
