package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service"
)

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.conversationService.ListConversations(r.Context(), principal(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []models.ConversationMeta{}
	}

	writeSuccess(w, conversations)
}

func (h *Handler) UnreadConversations(w http.ResponseWriter, r *http.Request) {
	count, err := h.conversationService.UnreadConversations(r.Context(), principal(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, unreadResponse(r, count))
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	conversation, err := h.conversationService.History(r.Context(), principal(r), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, conversation)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req models.SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	message, err := h.conversationService.Send(r.Context(), principal(r), userID, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccessStatus(w, http.StatusCreated, message)
}

func (h *Handler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	meta, err := h.conversationService.Open(r.Context(), principal(r), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, meta)
}

func (h *Handler) ConversationUnread(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	count, err := h.conversationService.Unread(r.Context(), principal(r), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, unreadResponse(r, count))
}

func unreadResponse(r *http.Request, count int) models.UnreadResponse {
	return models.UnreadResponse{
		Count: count,
		Badge: service.Badge(count, getBoolQueryParam(r, "collapsed")),
	}
}
