package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/config"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/repository"
	"github.com/RubachokBoss/learning-platform/internal/store"
)

var (
	admin   = &auth.Principal{ID: "admin-1", Role: auth.RoleAdmin, Name: "Ada"}
	student = &auth.Principal{ID: "stu-1", Role: auth.RoleStudent, Name: "Sam"}
	other   = &auth.Principal{ID: "stu-2", Role: auth.RoleStudent, Name: "Kim"}

	errDown = errors.New("connection refused")
)

// primaryStore is an in-memory primary tier that can be taken down.
type primaryStore struct {
	mu      sync.Mutex
	records map[string]models.Record
	down    bool
}

func newPrimaryStore() *primaryStore {
	return &primaryStore{records: make(map[string]models.Record)}
}

func (m *primaryStore) setDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func (m *primaryStore) key(collection, id string) string { return collection + "\x00" + id }

func (m *primaryStore) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	rec, ok := m.records[m.key(collection, id)]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (m *primaryStore) List(ctx context.Context, collection string, q models.Query) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	var all []models.Record
	for _, rec := range m.records {
		if rec.Collection == collection {
			all = append(all, *copyRecord(rec))
		}
	}
	return q.Apply(all), nil
}

func (m *primaryStore) Put(ctx context.Context, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	if existing, ok := m.records[m.key(rec.Collection, rec.ID)]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt == nil {
		rec.CreatedAt = rec.UpdatedAt
	}
	m.records[m.key(rec.Collection, rec.ID)] = *copyRecord(*rec)
	return nil
}

func (m *primaryStore) Patch(ctx context.Context, patch *models.Record) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	merged := copyRecord(*patch)
	if existing, ok := m.records[m.key(patch.Collection, patch.ID)]; ok {
		merged.CreatedAt = existing.CreatedAt
		merged.Fields = models.Fields{}
		for k, v := range existing.Fields {
			merged.Fields[k] = v
		}
		for k, v := range patch.Fields {
			merged.Fields[k] = v
		}
	} else {
		merged.CreatedAt = patch.UpdatedAt
	}
	m.records[m.key(patch.Collection, patch.ID)] = *copyRecord(*merged)
	return merged, nil
}

func (m *primaryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	delete(m.records, m.key(collection, id))
	return nil
}

func (m *primaryStore) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if rec.Collection == collection {
			n++
		}
	}
	return n
}

func copyRecord(rec models.Record) *models.Record {
	out := rec
	out.Fields = make(models.Fields, len(rec.Fields))
	for k, v := range rec.Fields {
		out.Fields[k] = v
	}
	return &out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event *models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	primary   *primaryStore
	facade    store.Facade
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.OpenBadger("", true)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	cache := repository.NewCacheRepository(db, zerolog.Nop())
	t.Cleanup(func() { _ = cache.Close() })

	primary := newPrimaryStore()
	return &testEnv{
		primary:   primary,
		facade:    store.NewFacade(primary, nil, cache, config.BreakerConfig{}, zerolog.Nop()),
		publisher: &recordingPublisher{},
	}
}

func floatPtr(v float64) *float64 { return &v }
