package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/config"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
	"github.com/RubachokBoss/learning-platform/internal/store"
)

// ConversationService keeps each support conversation's meta node consistent with its message list.
// The message append and the meta update are two separate writes; a failure between them leaves
// the unread flag understated until the next message.
type ConversationService interface {
	Send(ctx context.Context, p *auth.Principal, userID string, req *models.SendMessageRequest) (*models.Message, error)
	History(ctx context.Context, p *auth.Principal, userID string) (*models.Conversation, error)
	Open(ctx context.Context, p *auth.Principal, userID string) (*models.ConversationMeta, error)
	Unread(ctx context.Context, p *auth.Principal, userID string) (int, error)
	ListConversations(ctx context.Context, p *auth.Principal) ([]models.ConversationMeta, error)
	UnreadConversations(ctx context.Context, p *auth.Principal) (int, error)
}

type conversationService struct {
	store     store.Facade
	publisher integration.EventPublisher
	cfg       config.MessagingConfig
	logger    zerolog.Logger
}

func NewConversationService(facade store.Facade, publisher integration.EventPublisher, cfg config.MessagingConfig, logger zerolog.Logger) ConversationService {
	return &conversationService{
		store:     facade,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *conversationService) Send(ctx context.Context, p *auth.Principal, userID string, req *models.SendMessageRequest) (*models.Message, error) {
	if err := requireParticipant(p, userID); err != nil {
		return nil, err
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}

	collection := models.MessagesCollection(userID)
	id := req.ClientID
	if id != "" {
		existing, err := s.store.Read(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			var msg models.Message
			if err := existing.Decode(&msg); err != nil {
				return nil, err
			}
			return &msg, nil
		}
	} else {
		v7, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate message id: %w", err)
		}
		id = v7.String()
	}

	msg := &models.Message{
		ID:        id,
		Sender:    senderOf(p),
		Text:      req.Text,
		Timestamp: now(),
	}
	fields, err := models.EncodeFields(msg)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Write(ctx, collection, id, fields); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	s.markUnread(ctx, p, userID, msg)

	publishEvent(ctx, s.publisher, s.logger, p, &models.DomainEvent{
		Type:   models.EventMessageSent,
		UserID: userID,
		Text:   msg.Text,
	})
	if !p.IsAdmin() {
		recordActivity(ctx, s.store, s.logger, p.ID, models.ActivitySupportMessageSent, "Support Message", nil)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("message_id", id).
		Str("sender", msg.Sender).
		Msg("Message sent")

	return msg, nil
}

// markUnread is the second, best-effort write of a send.
func (s *conversationService) markUnread(ctx context.Context, p *auth.Principal, userID string, msg *models.Message) {
	update := models.Fields{
		"lastText":      msg.Text,
		"lastTimestamp": msg.Timestamp,
	}
	if p.IsAdmin() {
		update["unreadForUser"] = true
	} else {
		update["unreadForAdmin"] = true
		if p.Name != "" {
			update["name"] = p.Name
		}
	}

	if s.cfg.TrackUnreadCounts {
		meta, err := s.meta(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to read conversation meta, counter not incremented")
		}
		if meta == nil {
			meta = &models.ConversationMeta{}
		}
		if p.IsAdmin() {
			update["unreadCount"] = meta.UnreadCount + 1
		} else {
			update["adminUnreadCount"] = meta.AdminUnreadCount + 1
		}
	}

	if _, err := s.store.Merge(ctx, models.ConversationsCollection, userID, update); err != nil {
		s.logger.Warn().Err(err).
			Str("user_id", userID).
			Str("message_id", msg.ID).
			Msg("Message stored but conversation meta not updated")
	}
}

func (s *conversationService) History(ctx context.Context, p *auth.Principal, userID string) (*models.Conversation, error) {
	if err := requireParticipant(p, userID); err != nil {
		return nil, err
	}

	messages, err := s.messages(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	meta, err := s.meta(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Conversation meta unavailable")
	}

	return &models.Conversation{
		ParticipantID: userID,
		Messages:      messages,
		Meta:          meta,
	}, nil
}

func (s *conversationService) Open(ctx context.Context, p *auth.Principal, userID string) (*models.ConversationMeta, error) {
	if err := requireParticipant(p, userID); err != nil {
		return nil, err
	}

	seen := now()
	if err := s.store.SetLocalValue(ctx, lastSeenKey(p, userID), seen); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to store local last-seen timestamp")
	}

	update := models.Fields{}
	if p.IsAdmin() {
		update["unreadForAdmin"] = false
		update["adminUnreadCount"] = 0
		update["adminLastSeen"] = seen
	} else {
		update["unreadForUser"] = false
		update["unreadCount"] = 0
		update["lastSeen"] = seen
	}

	rec, err := s.store.Merge(ctx, models.ConversationsCollection, userID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to mark conversation read: %w", err)
	}

	var meta models.ConversationMeta
	if err := rec.Decode(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Unread reads the counter from the meta node. Without a meta node it counts the other party's
// messages newer than the locally stored last-seen time.
func (s *conversationService) Unread(ctx context.Context, p *auth.Principal, userID string) (int, error) {
	if err := requireParticipant(p, userID); err != nil {
		return 0, err
	}

	meta, err := s.meta(ctx, userID)
	if err == nil && meta != nil {
		return unreadFromMeta(meta, p.IsAdmin()), nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Conversation meta unavailable, counting locally")
	}

	lastSeen, _, lerr := s.store.LocalValue(ctx, lastSeenKey(p, userID))
	if lerr != nil {
		return 0, lerr
	}
	messages, merr := s.messages(ctx, userID, 0)
	if merr != nil {
		if err != nil {
			return 0, err
		}
		return 0, merr
	}
	return countUnread(messages, senderOf(p), lastSeen), nil
}

func (s *conversationService) ListConversations(ctx context.Context, p *auth.Principal) ([]models.ConversationMeta, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}

	records, err := s.store.Query(ctx, models.ConversationsCollection, models.Query{}.Order("lastTimestamp", true))
	if err != nil {
		return nil, err
	}

	metas := make([]models.ConversationMeta, 0, len(records))
	for _, rec := range records {
		var meta models.ConversationMeta
		if err := rec.Decode(&meta); err != nil {
			s.logger.Warn().Err(err).Str("user_id", rec.ID).Msg("Skipping malformed conversation meta")
			continue
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (s *conversationService) UnreadConversations(ctx context.Context, p *auth.Principal) (int, error) {
	metas, err := s.ListConversations(ctx, p)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range metas {
		if unreadFromMeta(&metas[i], true) > 0 {
			n++
		}
	}
	return n, nil
}

func (s *conversationService) meta(ctx context.Context, userID string) (*models.ConversationMeta, error) {
	rec, err := s.store.Read(ctx, models.ConversationsCollection, userID)
	if err != nil || rec == nil {
		return nil, err
	}
	var meta models.ConversationMeta
	if err := rec.Decode(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// messages returns the newest limit messages in chronological order; limit 0 returns all.
func (s *conversationService) messages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	q := models.Query{Limit: limit}.Order("timestamp", limit > 0)
	records, err := s.store.Query(ctx, models.MessagesCollection(userID), q)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(records))
	for _, rec := range records {
		var msg models.Message
		if err := rec.Decode(&msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	if limit > 0 {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

// Badge decides how a navigation entry shows count: a number when expanded, a dot when collapsed.
func Badge(count int, collapsed bool) models.Badge {
	return models.Badge{
		Visible: count > 0,
		Numeric: count > 0 && !collapsed,
		Count:   count,
	}
}

func unreadFromMeta(meta *models.ConversationMeta, forAdmin bool) int {
	count, flag := meta.UnreadCount, meta.UnreadForUser
	if forAdmin {
		count, flag = meta.AdminUnreadCount, meta.UnreadForAdmin
	}
	if count > 0 {
		return count
	}
	if flag {
		return 1
	}
	return 0
}

// countUnread counts messages not sent by self that are newer than lastSeen. An empty lastSeen
// counts every such message.
func countUnread(messages []models.Message, self, lastSeen string) int {
	var seen time.Time
	if lastSeen != "" {
		seen, _ = models.ParseTimestamp(lastSeen)
	}

	n := 0
	for _, msg := range messages {
		if msg.Sender == self {
			continue
		}
		ts, ok := models.ParseTimestamp(msg.Timestamp)
		if !ok || ts.After(seen) {
			n++
		}
	}
	return n
}

func senderOf(p *auth.Principal) string {
	if p.IsAdmin() {
		return models.SenderAdmin
	}
	return models.SenderStudent
}

func lastSeenKey(p *auth.Principal, userID string) string {
	if p.IsAdmin() {
		return "adminSupportLastSeen:" + userID
	}
	return "supportLastSeen:" + userID
}
