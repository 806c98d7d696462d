package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/metrics"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
	"github.com/RubachokBoss/learning-platform/internal/store"
)

// publishEvent never fails the calling operation; the record write has already happened.
func publishEvent(ctx context.Context, publisher integration.EventPublisher, logger zerolog.Logger, actor *auth.Principal, event *models.DomainEvent) {
	if publisher == nil {
		return
	}
	if actor != nil {
		event.ActorID = actor.ID
		event.ActorRole = actor.Role
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	if err := publisher.Publish(ctx, event); err != nil {
		metrics.DomainEvents.WithLabelValues(event.Type, "publish", "error").Inc()
		logger.Warn().Err(err).
			Str("type", event.Type).
			Str("user_id", event.UserID).
			Msg("Failed to publish domain event")
		return
	}
	metrics.DomainEvents.WithLabelValues(event.Type, "publish", "ok").Inc()
}

// recordActivity appends to a student's activity feed. Like publishEvent it never fails the caller.
func recordActivity(ctx context.Context, facade store.Facade, logger zerolog.Logger, userID, kind, title string, meta map[string]interface{}) {
	id, err := uuid.NewV7()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to generate activity id")
		return
	}
	activity := &models.Activity{
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Meta:      meta,
		Timestamp: now(),
	}
	fields, err := models.EncodeFields(activity)
	if err != nil {
		logger.Warn().Err(err).Str("type", kind).Msg("Failed to encode activity")
		return
	}
	if _, err := facade.Write(ctx, models.ActivityCollection, id.String(), fields); err != nil {
		logger.Warn().Err(err).
			Str("type", kind).
			Str("user_id", userID).
			Msg("Failed to record activity")
	}
}

func requireAdmin(p *auth.Principal) error {
	if p == nil || !p.IsAdmin() {
		return models.ErrForbidden
	}
	return nil
}

// requireParticipant allows admins and the student who owns userID.
func requireParticipant(p *auth.Principal, userID string) error {
	if p == nil {
		return models.ErrForbidden
	}
	if p.IsAdmin() || p.ID == userID {
		return nil
	}
	return models.ErrForbidden
}

func now() string {
	return models.FormatTimestamp(time.Now())
}
