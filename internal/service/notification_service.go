package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/store"
)

type NotificationService interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	List(ctx context.Context, p *auth.Principal, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, p *auth.Principal, id string) error
	MarkAllRead(ctx context.Context, p *auth.Principal, userID string) (int, error)
	Unread(ctx context.Context, p *auth.Principal, userID string) (int, error)
}

type notificationService struct {
	store  store.Facade
	logger zerolog.Logger
}

func NewNotificationService(facade store.Facade, logger zerolog.Logger) NotificationService {
	return &notificationService{
		store:  facade,
		logger: logger,
	}
}

func (s *notificationService) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n.CreatedAt == "" {
		n.CreatedAt = now()
	}
	fields, err := models.EncodeFields(n)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Write(ctx, models.NotificationsCollection, n.ID, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	n.ID = rec.ID

	s.logger.Debug().
		Str("notification_id", n.ID).
		Str("user_id", n.UserID).
		Str("kind", n.Kind).
		Msg("Notification created")

	return n, nil
}

func (s *notificationService) List(ctx context.Context, p *auth.Principal, userID string) ([]models.Notification, error) {
	if err := requireParticipant(p, userID); err != nil {
		return nil, err
	}
	return s.query(ctx, models.Where("userId", userID).Order("createdAt", true))
}

func (s *notificationService) MarkRead(ctx context.Context, p *auth.Principal, id string) error {
	rec, err := s.store.Read(ctx, models.NotificationsCollection, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	if err := requireParticipant(p, rec.Text("userId")); err != nil {
		return err
	}
	if rec.Bool("read") {
		return nil
	}
	_, err = s.store.Merge(ctx, models.NotificationsCollection, id, models.Fields{"read": true})
	return err
}

// MarkAllRead returns how many notifications changed.
func (s *notificationService) MarkAllRead(ctx context.Context, p *auth.Principal, userID string) (int, error) {
	if err := requireParticipant(p, userID); err != nil {
		return 0, err
	}
	unread, err := s.query(ctx, models.Where("userId", userID).And("read", false))
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, n := range unread {
		if _, err := s.store.Merge(ctx, models.NotificationsCollection, n.ID, models.Fields{"read": true}); err != nil {
			return marked, fmt.Errorf("failed to mark notification %s read: %w", n.ID, err)
		}
		marked++
	}
	return marked, nil
}

func (s *notificationService) Unread(ctx context.Context, p *auth.Principal, userID string) (int, error) {
	if err := requireParticipant(p, userID); err != nil {
		return 0, err
	}
	unread, err := s.query(ctx, models.Where("userId", userID).And("read", false))
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

func (s *notificationService) query(ctx context.Context, q models.Query) ([]models.Notification, error) {
	records, err := s.store.Query(ctx, models.NotificationsCollection, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(records))
	for _, rec := range records {
		var n models.Notification
		if err := rec.Decode(&n); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}
