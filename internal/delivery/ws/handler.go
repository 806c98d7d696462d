package ws

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/subscription"
)

// Subscriber is the part of the subscription manager a live connection uses.
type Subscriber interface {
	Subscribe(owner string, path models.Path, handler subscription.Handler) *subscription.Subscription
	CancelOwner(owner string)
}

// Handler upgrades authenticated requests to live view connections.
type Handler struct {
	subscriptions  Subscriber
	allowedOrigins []string
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
}

func NewHandler(subscriptions Subscriber, allowedOrigins []string, logger zerolog.Logger) *Handler {
	h := &Handler{
		subscriptions:  subscriptions,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", p.ID).Msg("WebSocket upgrade failed")
		return
	}

	c := newClient(conn, p, h.subscriptions, h.logger)
	c.run()
}

// checkOrigin accepts same-host requests, requests without an Origin header, and the configured origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// CanSubscribe decides which paths a principal may watch. Students see shared content and their own
// conversation and profile; everything else is admin-only.
func CanSubscribe(p *auth.Principal, path models.Path) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}

	switch path.Collection {
	case models.MessagesCollection(p.ID):
		return true
	case models.ConversationsCollection, models.UsersCollection:
		return path.ID == p.ID
	case models.AssignmentsCollection,
		models.NotesCollection,
		models.VideosCollection,
		models.SessionsCollection,
		models.BlogsCollection:
		return true
	}
	return false
}
