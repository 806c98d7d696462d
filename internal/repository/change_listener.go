package repository

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

const listenerPingInterval = 90 * time.Second

// ChangeListener turns LISTEN/NOTIFY payloads of the records trigger into change events.
type ChangeListener struct {
	dsn          string
	channel      string
	minReconnect time.Duration
	maxReconnect time.Duration
	connected    atomic.Bool
	events       chan models.ChangeEvent
	logger       zerolog.Logger
}

func NewChangeListener(dsn, channel string, minReconnect, maxReconnect time.Duration, logger zerolog.Logger) *ChangeListener {
	return &ChangeListener{
		dsn:          dsn,
		channel:      channel,
		minReconnect: minReconnect,
		maxReconnect: maxReconnect,
		events:       make(chan models.ChangeEvent, 256),
		logger:       logger,
	}
}

func (l *ChangeListener) Changes() <-chan models.ChangeEvent {
	return l.events
}

// Available reports whether the push connection is currently established.
func (l *ChangeListener) Available() bool {
	return l.connected.Load()
}

// Run listens until ctx is cancelled. Reconnects are handled by pq.Listener; after each one a
// resync event is emitted because notifications sent while disconnected are lost.
func (l *ChangeListener) Run(ctx context.Context) error {
	defer close(l.events)

	listener := pq.NewListener(l.dsn, l.minReconnect, l.maxReconnect, l.onEvent)
	defer listener.Close()

	listenErr := make(chan error, 1)
	go func() {
		// Blocks until the first connection succeeds.
		listenErr <- listener.Listen(l.channel)
	}()

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-listenErr:
			if err != nil {
				l.logger.Error().Err(err).Str("channel", l.channel).Msg("Failed to listen for record changes")
				return err
			}
			l.logger.Info().Str("channel", l.channel).Msg("Listening for record changes")

		case n := <-listener.Notify:
			if n == nil {
				l.emit(ctx, models.ChangeEvent{Op: models.OpResync})
				continue
			}
			var event models.ChangeEvent
			if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
				l.logger.Warn().Err(err).Str("payload", n.Extra).Msg("Ignoring malformed change notification")
				continue
			}
			l.emit(ctx, event)

		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Debug().Err(err).Msg("Change listener ping failed")
				}
			}()
		}
	}
}

func (l *ChangeListener) emit(ctx context.Context, event models.ChangeEvent) {
	select {
	case l.events <- event:
	case <-ctx.Done():
	}
}

func (l *ChangeListener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		l.connected.Store(true)
		l.logger.Info().Msg("Change feed connected")
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		if l.connected.Swap(false) || ev == pq.ListenerEventDisconnected {
			l.logger.Warn().Err(err).Msg("Change feed disconnected")
		}
	}
}
