package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req models.AssignmentRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	assignment, err := h.assignmentService.Create(r.Context(), principal(r), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccessStatus(w, http.StatusCreated, assignment)
}

func (h *Handler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.AssignmentRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	assignment, err := h.assignmentService.Update(r.Context(), principal(r), id, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, assignment)
}

func (h *Handler) AchieveAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	assignment, err := h.assignmentService.Achieve(r.Context(), principal(r), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, assignment)
}

func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	assignment, err := h.assignmentService.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, assignment)
}

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assignmentService.ListManaged(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if assignments == nil {
		assignments = []models.Assignment{}
	}

	writeSuccess(w, assignments)
}

func (h *Handler) ListAchievedAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assignmentService.ListAchieved(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if assignments == nil {
		assignments = []models.Assignment{}
	}

	writeSuccess(w, assignments)
}

func (h *Handler) CompleteAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.assignmentService.MarkCompleted(r.Context(), principal(r), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, view)
}

func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	review, err := h.assignmentService.Review(r.Context(), principal(r), targetUser(r), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, review)
}

func (h *Handler) StudentAssignments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	assignments, err := h.assignmentService.StudentAssignments(r.Context(), principal(r), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, assignments)
}

func (h *Handler) StudentDashboard(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	dashboard, err := h.assignmentService.StudentDashboard(r.Context(), principal(r), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, dashboard)
}

func (h *Handler) LogActivity(w http.ResponseWriter, r *http.Request) {
	var req models.ActivityRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.assignmentService.LogActivity(r.Context(), principal(r), &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ScoreAssignment(w http.ResponseWriter, r *http.Request) {
	var req models.ScoreRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	score, err := h.assignmentService.Score(r.Context(), principal(r), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccessStatus(w, http.StatusCreated, score)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.assignmentService.DashboardStats(r.Context(), principal(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, stats)
}
