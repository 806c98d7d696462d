package subscription

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/RubachokBoss/learning-platform/internal/metrics"
	"github.com/RubachokBoss/learning-platform/internal/models"
)

// Subscription delivers events for one path, in feed order, on its own goroutine.
type Subscription struct {
	id      uint64
	owner   string
	path    models.Path
	handler Handler
	queue   chan models.ChangeEvent
	done    chan struct{}
	cancel  context.CancelFunc
	active  atomic.Bool
	once    sync.Once
	manager *Manager
}

func (s *Subscription) Path() models.Path {
	return s.path
}

func (s *Subscription) Owner() string {
	return s.owner
}

// Active is false for inert subscriptions and after Cancel.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Done is closed once the subscription stops delivering.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Cancel() {
	if !s.active.Load() {
		return
	}
	s.once.Do(func() {
		s.active.Store(false)
		s.cancel()
		s.manager.remove(s)
		metrics.ActiveSubscriptions.Dec()
	})
}

// enqueue never blocks the feed. A full queue already holds a pending re-read of the same
// path, so the event is dropped.
func (s *Subscription) enqueue(event models.ChangeEvent) {
	if !s.active.Load() {
		return
	}
	select {
	case s.queue <- event:
	default:
		metrics.SubscriptionEvents.WithLabelValues("dropped").Inc()
	}
}

func (s *Subscription) loop(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-s.queue:
			event := s.manager.resolve(ctx, s.path, change.Op)
			if ctx.Err() != nil {
				return
			}
			s.deliver(event)
		}
	}
}

func (s *Subscription) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.manager.logger.Error().
				Interface("panic", r).
				Str("path", s.path.String()).
				Msg("Subscription handler panicked")
		}
	}()

	s.handler(event)
	metrics.SubscriptionEvents.WithLabelValues("delivered").Inc()
}
