package subscription

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/metrics"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/store"
)

const readTimeout = 10 * time.Second

// Feed is the push channel of the primary store.
type Feed interface {
	Changes() <-chan models.ChangeEvent
	Available() bool
}

// Event carries the value at a subscribed path after a change. Record is set for document paths
// (nil once deleted), Records for collection paths.
type Event struct {
	Path    models.Path     `json:"path"`
	Op      models.ChangeOp `json:"op"`
	Record  *models.Record  `json:"record,omitempty"`
	Records []models.Record `json:"records,omitempty"`
	Err     error           `json:"-"`
}

type Handler func(Event)

type Manager struct {
	feed       Feed
	store      store.Facade
	bufferSize int
	logger     zerolog.Logger

	mu     sync.Mutex
	owners map[string]map[models.Path]*Subscription
	nextID atomic.Uint64
}

func NewManager(feed Feed, facade store.Facade, bufferSize int, logger zerolog.Logger) *Manager {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Manager{
		feed:       feed,
		store:      facade,
		bufferSize: bufferSize,
		logger:     logger,
		owners:     make(map[string]map[models.Path]*Subscription),
	}
}

// Run fans change events out to subscriptions until ctx ends or the feed closes.
func (m *Manager) Run(ctx context.Context) error {
	changes := m.feed.Changes()
	for {
		select {
		case <-ctx.Done():
			m.cancelAll()
			return nil
		case event, ok := <-changes:
			if !ok {
				m.logger.Warn().Msg("Change feed closed")
				m.cancelAll()
				return nil
			}
			m.dispatch(ctx, event)
		}
	}
}

// Subscribe watches path on behalf of owner. An existing subscription of the same owner on the same
// path is cancelled first. When the feed is down the returned subscription is inert.
func (m *Manager) Subscribe(owner string, path models.Path, handler Handler) *Subscription {
	sub := &Subscription{
		id:      m.nextID.Add(1),
		owner:   owner,
		path:    path,
		handler: handler,
		queue:   make(chan models.ChangeEvent, m.bufferSize),
		done:    make(chan struct{}),
		manager: m,
	}

	if !m.feed.Available() {
		m.logger.Warn().
			Str("owner", owner).
			Str("path", path.String()).
			Msg("Change feed unavailable, live updates disabled for subscription")
		close(sub.done)
		if prev := m.take(owner, path); prev != nil {
			prev.Cancel()
		}
		return sub
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub.cancel = cancel
	sub.active.Store(true)
	metrics.ActiveSubscriptions.Inc()
	sub.queue <- models.ChangeEvent{Collection: path.Collection, ID: path.ID, Op: models.OpSnapshot}

	m.mu.Lock()
	subs, ok := m.owners[owner]
	if !ok {
		subs = make(map[models.Path]*Subscription)
		m.owners[owner] = subs
	}
	prev := subs[path]
	subs[path] = sub
	m.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	go sub.loop(ctx)

	m.logger.Debug().Str("owner", owner).Str("path", path.String()).Msg("Subscription started")
	return sub
}

// CancelOwner tears down every subscription held by owner.
func (m *Manager) CancelOwner(owner string) {
	m.mu.Lock()
	subs := m.owners[owner]
	delete(m.owners, owner)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// Count returns the number of active subscriptions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, subs := range m.owners {
		n += len(subs)
	}
	return n
}

func (m *Manager) dispatch(ctx context.Context, event models.ChangeEvent) {
	if event.Op == models.OpDelete {
		if err := m.store.Evict(ctx, event.Collection, event.ID); err != nil {
			m.logger.Debug().Err(err).Str("collection", event.Collection).Str("id", event.ID).Msg("Failed to evict deleted record")
		}
	}

	m.mu.Lock()
	var targets []*Subscription
	for _, subs := range m.owners {
		for path, sub := range subs {
			if event.Op == models.OpResync || path.Matches(event.Collection, event.ID) {
				targets = append(targets, sub)
			}
		}
	}
	m.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(event)
	}
}

// take detaches the owner's subscription on path, if any.
func (m *Manager) take(owner string, path models.Path) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.owners[owner]
	prev := subs[path]
	if prev != nil {
		delete(subs, path)
		if len(subs) == 0 {
			delete(m.owners, owner)
		}
	}
	return prev
}

func (m *Manager) remove(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.owners[sub.owner]
	if subs[sub.path] == sub {
		delete(subs, sub.path)
		if len(subs) == 0 {
			delete(m.owners, sub.owner)
		}
	}
}

func (m *Manager) cancelAll() {
	m.mu.Lock()
	var all []*Subscription
	for _, subs := range m.owners {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range all {
		sub.Cancel()
	}
}

// resolve re-reads the subscribed value so handlers always see current state.
func (m *Manager) resolve(ctx context.Context, path models.Path, op models.ChangeOp) Event {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	event := Event{Path: path, Op: op}
	if path.IsDocument() {
		event.Record, event.Err = m.store.Read(ctx, path.Collection, path.ID)
		return event
	}

	q := models.Query{}
	if isMessages(path) {
		q = q.Order("timestamp", false)
	}
	event.Records, event.Err = m.store.Query(ctx, path.Collection, q)
	return event
}

func isMessages(path models.Path) bool {
	return strings.HasPrefix(path.Collection, models.ConversationsCollection+"/") &&
		strings.HasSuffix(path.Collection, "/messages")
}
