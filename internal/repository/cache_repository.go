package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

const sessionKeyPrefix = "session_"

// CacheRepository is the local tier: every collection is one JSON array under its own key,
// sessions are single objects under session_{id}.
type CacheRepository interface {
	RecordStore
	Reset(ctx context.Context, collection string) error
	Rebuild(ctx context.Context, collection string, records []models.Record) error
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	Close() error
}

type cacheRepository struct {
	db     *badger.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

func OpenBadger(dir string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return db, nil
}

func NewCacheRepository(db *badger.DB, logger zerolog.Logger) CacheRepository {
	return &cacheRepository{
		db:     db,
		logger: logger,
	}
}

// CollectionKey maps a collection to the key its snapshot lives under.
func CollectionKey(collection string) string {
	if collection == models.NotesCollection {
		return "courseNotes"
	}
	return collection
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (r *cacheRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	if collection == models.SessionsCollection {
		var rec *models.Record
		err := r.db.View(func(txn *badger.Txn) error {
			var err error
			rec, err = readSession(txn, id)
			return err
		})
		return rec, err
	}

	var records []models.Record
	if err := r.db.View(func(txn *badger.Txn) error {
		var err error
		records, err = readCollection(txn, collection)
		return err
	}); err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (r *cacheRepository) List(ctx context.Context, collection string, q models.Query) ([]models.Record, error) {
	var records []models.Record
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		if collection == models.SessionsCollection {
			records, err = readSessions(txn)
		} else {
			records, err = readCollection(txn, collection)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return q.Apply(records), nil
}

func (r *cacheRepository) Put(ctx context.Context, rec *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *rec
	stored.Fields = copyFields(rec.Fields)
	if stored.UpdatedAt == nil {
		now := time.Now().UTC()
		stored.UpdatedAt = &now
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if rec.Collection == models.SessionsCollection {
			if stored.CreatedAt == nil {
				if existing, err := readSession(txn, rec.ID); err != nil {
					return err
				} else if existing != nil {
					stored.CreatedAt = existing.CreatedAt
				}
			}
			if stored.CreatedAt == nil {
				stored.CreatedAt = stored.UpdatedAt
			}
			return writeJSON(txn, sessionKey(rec.ID), stored)
		}

		records, err := readCollection(txn, rec.Collection)
		if err != nil {
			return err
		}
		records, stored = upsert(records, stored)
		return writeJSON(txn, CollectionKey(rec.Collection), records)
	})
	if err != nil {
		return err
	}

	rec.CreatedAt, rec.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (r *cacheRepository) Patch(ctx context.Context, patch *models.Record) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var merged models.Record
	err := r.db.Update(func(txn *badger.Txn) error {
		if patch.Collection == models.SessionsCollection {
			existing, err := readSession(txn, patch.ID)
			if err != nil {
				return err
			}
			merged = mergeRecord(existing, patch)
			if merged.CreatedAt == nil {
				merged.CreatedAt = merged.UpdatedAt
			}
			return writeJSON(txn, sessionKey(patch.ID), merged)
		}

		records, err := readCollection(txn, patch.Collection)
		if err != nil {
			return err
		}
		var existing *models.Record
		for i := range records {
			if records[i].ID == patch.ID {
				existing = &records[i]
				break
			}
		}
		merged = mergeRecord(existing, patch)
		records, merged = upsert(records, merged)
		return writeJSON(txn, CollectionKey(patch.Collection), records)
	})
	if err != nil {
		return nil, err
	}

	return &merged, nil
}

func (r *cacheRepository) Delete(ctx context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.Update(func(txn *badger.Txn) error {
		if collection == models.SessionsCollection {
			return txn.Delete([]byte(sessionKey(id)))
		}

		records, err := readCollection(txn, collection)
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, rec := range records {
			if rec.ID != id {
				kept = append(kept, rec)
			}
		}
		return writeJSON(txn, CollectionKey(collection), kept)
	})
}

// Reset discards the snapshot of a collection.
func (r *cacheRepository) Reset(ctx context.Context, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.Update(func(txn *badger.Txn) error {
		if collection == models.SessionsCollection {
			return deletePrefix(txn, sessionKeyPrefix)
		}
		return txn.Delete([]byte(CollectionKey(collection)))
	})
}

// Rebuild replaces the snapshot of a collection with records fetched from a remote tier.
func (r *cacheRepository) Rebuild(ctx context.Context, collection string, records []models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.Update(func(txn *badger.Txn) error {
		if collection != models.SessionsCollection {
			if records == nil {
				records = []models.Record{}
			}
			return writeJSON(txn, CollectionKey(collection), records)
		}

		if err := deletePrefix(txn, sessionKeyPrefix); err != nil {
			return err
		}
		for _, rec := range records {
			if err := writeJSON(txn, sessionKey(rec.ID), rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *cacheRepository) GetValue(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		found = true
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	return value, found, err
}

func (r *cacheRepository) SetValue(ctx context.Context, key, value string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

func (r *cacheRepository) Close() error {
	return r.db.Close()
}

func readCollection(txn *badger.Txn, collection string) ([]models.Record, error) {
	var records []models.Record
	found, err := readJSON(txn, CollectionKey(collection), &records)
	if err != nil || !found {
		return nil, err
	}
	for i := range records {
		records[i].Collection = collection
	}
	return records, nil
}

func readSession(txn *badger.Txn, id string) (*models.Record, error) {
	var rec models.Record
	found, err := readJSON(txn, sessionKey(id), &rec)
	if err != nil || !found {
		return nil, err
	}
	rec.Collection = models.SessionsCollection
	rec.ID = id
	return &rec, nil
}

func readSessions(txn *badger.Txn) ([]models.Record, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(sessionKeyPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	records := make([]models.Record, 0, 2)
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var rec models.Record
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		rec.Collection = models.SessionsCollection
		rec.ID = strings.TrimPrefix(string(item.Key()), sessionKeyPrefix)
		records = append(records, rec)
	}
	return records, nil
}

func readJSON(txn *badger.Txn, key string, dst interface{}) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func writeJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func deletePrefix(txn *badger.Txn, prefix string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// upsert replaces or appends rec, keeping the stored createdAt when rec has none.
func upsert(records []models.Record, rec models.Record) ([]models.Record, models.Record) {
	for i := range records {
		if records[i].ID == rec.ID {
			if rec.CreatedAt == nil {
				rec.CreatedAt = records[i].CreatedAt
			}
			if rec.CreatedAt == nil {
				rec.CreatedAt = rec.UpdatedAt
			}
			records[i] = rec
			return records, rec
		}
	}
	if rec.CreatedAt == nil {
		rec.CreatedAt = rec.UpdatedAt
	}
	return append(records, rec), rec
}

func mergeRecord(existing, patch *models.Record) models.Record {
	merged := models.Record{
		ID:         patch.ID,
		Collection: patch.Collection,
		CreatedAt:  patch.CreatedAt,
		UpdatedAt:  patch.UpdatedAt,
		Fields:     models.Fields{},
	}
	if existing != nil {
		merged.Fields = copyFields(existing.Fields)
		if existing.CreatedAt != nil {
			merged.CreatedAt = existing.CreatedAt
		}
	}
	for k, v := range patch.Fields {
		merged.Fields[k] = v
	}
	if merged.UpdatedAt == nil {
		now := time.Now().UTC()
		merged.UpdatedAt = &now
	}
	return merged
}

func copyFields(f models.Fields) models.Fields {
	out := make(models.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
