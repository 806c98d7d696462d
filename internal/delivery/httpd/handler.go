package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/repository"
	"github.com/RubachokBoss/learning-platform/internal/service"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
)

const maxUploadSize = 32 << 20

type Handler struct {
	records             repository.RecordRepository
	instanceToken       string
	conversationService service.ConversationService
	assignmentService   service.AssignmentService
	sessionService      service.SessionService
	contentService      service.ContentService
	notificationService service.NotificationService
	resolver            auth.PrincipalResolver
	live                http.Handler
	logger              zerolog.Logger
}

// NewHandler wires the REST surface. records may be nil when this instance has no primary store;
// its endpoints only admit callers presenting instanceToken. live serves the WebSocket endpoint and
// may be nil.
func NewHandler(
	records repository.RecordRepository,
	instanceToken string,
	conversationService service.ConversationService,
	assignmentService service.AssignmentService,
	sessionService service.SessionService,
	contentService service.ContentService,
	notificationService service.NotificationService,
	resolver auth.PrincipalResolver,
	live http.Handler,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		records:             records,
		instanceToken:       instanceToken,
		conversationService: conversationService,
		assignmentService:   assignmentService,
		sessionService:      sessionService,
		contentService:      contentService,
		notificationService: notificationService,
		resolver:            resolver,
		live:                live,
		logger:              logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/ready", h.ReadyCheck)

	router.Route("/api/v1", func(api chi.Router) {
		// Raw record endpoints serve other instances' secondary transport and carry no principal.
		if h.records != nil {
			api.Route("/records/{collection}", func(r chi.Router) {
				r.Use(auth.RequireInstanceToken(h.instanceToken, writeError))
				r.Get("/", h.ListRecords)
				r.Get("/{id}", h.GetRecord)
				r.Put("/{id}", h.PutRecord)
				r.Patch("/{id}", h.PatchRecord)
				r.Delete("/{id}", h.DeleteRecord)
			})
		}

		api.Group(func(protected chi.Router) {
			protected.Use(auth.Authenticate(h.resolver, writeError))
			adminOnly := auth.RequireAdmin(writeError)

			if h.live != nil {
				protected.Handle("/subscribe", h.live)
			}

			protected.Route("/conversations", func(r chi.Router) {
				r.With(adminOnly).Get("/", h.ListConversations)
				r.With(adminOnly).Get("/unread", h.UnreadConversations)
				r.Get("/{userID}", h.GetConversation)
				r.Post("/{userID}/messages", h.SendMessage)
				r.Post("/{userID}/open", h.OpenConversation)
				r.Get("/{userID}/unread", h.ConversationUnread)
			})

			protected.Route("/assignments", func(r chi.Router) {
				r.Get("/", h.ListAssignments)
				r.With(adminOnly).Get("/achieved", h.ListAchievedAssignments)
				r.With(adminOnly).Post("/", h.CreateAssignment)
				r.Get("/{id}", h.GetAssignment)
				r.With(adminOnly).Put("/{id}", h.UpdateAssignment)
				r.With(adminOnly).Post("/{id}/achieve", h.AchieveAssignment)
				r.Post("/{id}/complete", h.CompleteAssignment)
				r.Get("/{id}/review", h.GetReview)
			})

			protected.Get("/users/{userID}/assignments", h.StudentAssignments)
			protected.Get("/users/{userID}/dashboard", h.StudentDashboard)
			protected.Post("/activity", h.LogActivity)
			protected.With(adminOnly).Post("/scores", h.ScoreAssignment)
			protected.With(adminOnly).Get("/dashboard", h.Dashboard)

			protected.Route("/sessions", func(r chi.Router) {
				r.Get("/", h.GetSessions)
				r.With(adminOnly).Put("/{slot}", h.SaveSession)
				r.With(adminOnly).Post("/start", h.StartSession)
				r.With(adminOnly).Post("/stop", h.StopSession)
				r.With(adminOnly).Delete("/next", h.ClearNextSession)
			})

			protected.Route("/notes", func(r chi.Router) {
				r.Get("/", h.ListNotes)
				r.With(adminOnly).Post("/", h.CreateNote)
				r.With(adminOnly).Put("/{id}", h.UpdateNote)
				r.With(adminOnly).Delete("/{id}", h.DeleteNote)
			})

			protected.Route("/videos", func(r chi.Router) {
				r.Get("/", h.ListVideos)
				r.With(adminOnly).Post("/", h.CreateVideo)
				r.With(adminOnly).Put("/{id}", h.UpdateVideo)
				r.With(adminOnly).Delete("/{id}", h.DeleteVideo)
			})

			protected.Route("/certificates", func(r chi.Router) {
				r.Get("/", h.ListCertificates)
				r.With(adminOnly).Post("/", h.IssueCertificate)
				r.With(adminOnly).Delete("/{id}", h.DeleteCertificate)
			})

			protected.With(adminOnly).Post("/files", h.UploadFile)

			protected.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Get("/unread", h.UnreadNotifications)
				r.Post("/read-all", h.MarkAllNotificationsRead)
				r.Post("/{id}/read", h.MarkNotificationRead)
			})
		})
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "learning-platform",
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, response)
}

// ReadyCheck reports whether the primary store answers. The service keeps serving from the
// fallback tiers either way, so this is informational.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	primary := "up"
	if h.records == nil {
		primary = "not configured"
		status = "degraded"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.records.Ping(ctx); err != nil {
			primary = "down"
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"primary":   primary,
		"timestamp": time.Now().UTC(),
	})
}

func principal(r *http.Request) *auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

// targetUser is the user a request acts on: the user_id query parameter, or the caller.
func targetUser(r *http.Request) string {
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id
	}
	if p := principal(r); p != nil {
		return p.ID
	}
	return ""
}

func getBoolQueryParam(r *http.Request, key string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && value
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return models.NewValidationError("body", "invalid request body")
	}
	return nil
}

// handleError maps the error taxonomy onto status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   http.StatusText(http.StatusBadRequest),
			"message": ve.Message,
			"field":   ve.Field,
		})
	case errors.Is(err, models.ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrStoreUnavailable):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Store unavailable")
		writeError(w, http.StatusServiceUnavailable, "Storage is temporarily unavailable, please retry")
	case errors.Is(err, integration.ErrBlobStorageDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeSuccessStatus(w, http.StatusOK, data)
}

func writeSuccessStatus(w http.ResponseWriter, status int, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, status, response)
}
