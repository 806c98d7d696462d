package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/metrics"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service"
	"github.com/RubachokBoss/learning-platform/internal/store"
	"github.com/RubachokBoss/learning-platform/internal/worker/queue"
)

const (
	handleTimeout = 30 * time.Second
	previewLength = 140
)

// NotificationWorker turns domain events into per-user notifications. Events arrive from the broker
// queue or, without a broker, straight from HandleEvent.
type NotificationWorker interface {
	Start(ctx context.Context) error
	Stop() error
	HandleEvent(ctx context.Context, event *models.DomainEvent) error
	GetStats() WorkerStats
}

type WorkerStats struct {
	Processed   int `json:"processed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	QueueLength int `json:"queue_length"`
}

type notificationWorker struct {
	workerPool    *WorkerPool
	queueConsumer queue.RabbitMQConsumer
	notifications service.NotificationService
	store         store.Facade
	logger        zerolog.Logger
	stats         WorkerStats
	statsMutex    sync.RWMutex
	startTime     time.Time
}

// NewNotificationWorker accepts a nil consumer for brokerless deployments.
func NewNotificationWorker(
	workerPool *WorkerPool,
	queueConsumer queue.RabbitMQConsumer,
	notifications service.NotificationService,
	facade store.Facade,
	logger zerolog.Logger,
) NotificationWorker {
	return &notificationWorker{
		workerPool:    workerPool,
		queueConsumer: queueConsumer,
		notifications: notifications,
		store:         facade,
		logger:        logger,
		startTime:     time.Now(),
	}
}

func (w *notificationWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting notification worker...")

	if err := w.workerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	if w.queueConsumer == nil {
		w.logger.Info().Msg("No broker consumer, handling events in process")
		return nil
	}

	msgs, err := w.queueConsumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}
	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Notification worker started successfully")
	return nil
}

func (w *notificationWorker) Stop() error {
	w.logger.Info().Msg("Stopping notification worker...")

	if w.queueConsumer != nil {
		if err := w.queueConsumer.Close(); err != nil {
			w.logger.Error().Err(err).Msg("Failed to close queue consumer")
		}
	}
	if err := w.workerPool.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	stats := w.GetStats()
	w.logger.Info().
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Dur("uptime", time.Since(w.startTime)).
		Msg("Notification worker stopped")

	return nil
}

// HandleEvent queues an event for processing and returns without waiting for it.
func (w *notificationWorker) HandleEvent(ctx context.Context, event *models.DomainEvent) error {
	ev := *event
	return w.workerPool.Submit(ev.Type, func() {
		taskCtx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		if err := w.process(taskCtx, &ev); err != nil {
			w.logger.Error().Err(err).Str("type", ev.Type).Msg("Failed to process event")
		}
	})
}

func (w *notificationWorker) processMessages(ctx context.Context, msgs <-chan queue.RabbitMQMessage) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}

			err := w.workerPool.Submit(msg.RoutingKey, func() {
				w.processMessage(ctx, msg)
			})
			if err != nil {
				if nackErr := msg.Nack(false, true); nackErr != nil {
					w.logger.Error().Err(nackErr).Msg("Failed to nack message")
				}
			}
		}
	}
}

func (w *notificationWorker) processMessage(ctx context.Context, msg queue.RabbitMQMessage) {
	event, err := queue.DecodeEvent(msg)
	if err == nil {
		taskCtx, cancel := context.WithTimeout(ctx, handleTimeout)
		err = w.process(taskCtx, event)
		cancel()
	}

	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}

	w.logger.Error().Err(err).Str("routing_key", msg.RoutingKey).Msg("Failed to process message")
	// Malformed events are dropped; a redelivered message that fails again is dropped too.
	if errors.Is(err, queue.ErrMalformedEvent) || msg.Redelivered {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}
	if nackErr := msg.Nack(false, true); nackErr != nil {
		w.logger.Error().Err(nackErr).Msg("Failed to nack message")
	}
}

func (w *notificationWorker) process(ctx context.Context, event *models.DomainEvent) error {
	notes, err := w.notificationsFor(ctx, event)
	if err != nil {
		w.record(event.Type, "error")
		return err
	}
	if len(notes) == 0 {
		w.record(event.Type, "skipped")
		return nil
	}

	for i := range notes {
		if _, err := w.notifications.Create(ctx, &notes[i]); err != nil {
			w.record(event.Type, "error")
			return fmt.Errorf("failed to create notification for %s: %w", notes[i].UserID, err)
		}
	}

	w.logger.Debug().
		Str("type", event.Type).
		Int("notifications", len(notes)).
		Msg("Event handled")
	w.record(event.Type, "ok")
	return nil
}

// notificationsFor maps an event to the notifications it produces. Ids are derived from the event so
// a redelivered event rewrites the same documents.
func (w *notificationWorker) notificationsFor(ctx context.Context, event *models.DomainEvent) ([]models.Notification, error) {
	switch event.Type {
	case models.EventAssignmentScored:
		if event.UserID == "" {
			return nil, nil
		}
		body := event.Title
		if event.Text != "" && event.Text != "N/A" {
			body = fmt.Sprintf("%s: %s", event.Title, event.Text)
		}
		return []models.Notification{
			newNotification(event, event.UserID, models.KindReview, "Assignment reviewed", body),
		}, nil

	case models.EventMessageSent:
		// Only messages from an admin notify the student.
		if event.ActorRole != auth.RoleAdmin || event.UserID == "" {
			return nil, nil
		}
		return []models.Notification{
			newNotification(event, event.UserID, models.KindMessage, "New message", preview(event.Text)),
		}, nil

	case models.EventCertificateIssued:
		if event.UserID == "" {
			return nil, nil
		}
		return []models.Notification{
			newNotification(event, event.UserID, models.KindCertificate, "Certificate issued", "Your certificate is ready."),
		}, nil

	case models.EventSessionStarted:
		students, err := w.students(ctx)
		if err != nil {
			return nil, err
		}
		title := "Live session started"
		body := event.Title
		if event.URL != "" {
			body = fmt.Sprintf("%s %s", event.Title, event.URL)
		}
		out := make([]models.Notification, 0, len(students))
		for _, id := range students {
			out = append(out, newNotification(event, id, models.KindSession, title, body))
		}
		return out, nil
	}

	w.logger.Debug().Str("type", event.Type).Msg("Event type has no notifications")
	return nil, nil
}

func (w *notificationWorker) students(ctx context.Context) ([]string, error) {
	users, err := w.store.Query(ctx, models.UsersCollection, models.Query{})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.Text("role") != auth.RoleAdmin {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (w *notificationWorker) record(eventType, result string) {
	metrics.DomainEvents.WithLabelValues(eventType, "handle", result).Inc()

	w.statsMutex.Lock()
	defer w.statsMutex.Unlock()
	switch result {
	case "ok":
		w.stats.Processed++
	case "skipped":
		w.stats.Skipped++
	default:
		w.stats.Failed++
	}
}

func (w *notificationWorker) GetStats() WorkerStats {
	w.statsMutex.RLock()
	defer w.statsMutex.RUnlock()

	stats := w.stats
	stats.QueueLength = w.workerPool.GetQueueLength()
	return stats
}

func newNotification(event *models.DomainEvent, userID, kind, title, body string) models.Notification {
	key := event.Type + "|" + userID + "|" + event.AssignmentID + "|" + strconv.FormatInt(event.Timestamp, 10) + "|" + event.Text
	created := time.Now()
	if event.Timestamp > 0 {
		created = time.Unix(event.Timestamp, 0)
	}
	return models.Notification{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Kind:      kind,
		CreatedAt: models.FormatTimestamp(created),
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength-1]) + "…"
}
