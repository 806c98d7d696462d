package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/config"
	"github.com/RubachokBoss/learning-platform/internal/metrics"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/repository"
)

const (
	TierPrimary   = "primary"
	TierSecondary = "secondary"
	TierCache     = "cache"
)

var errNotConfigured = errors.New("tier not configured")

// Facade reads and writes records through the primary store, then the secondary transport, then the
// local cache. Tier failures are logged and absorbed; only a failure of all three is returned.
type Facade interface {
	Read(ctx context.Context, collection, id string) (*models.Record, error)
	Query(ctx context.Context, collection string, q models.Query) ([]models.Record, error)
	Write(ctx context.Context, collection, id string, fields models.Fields) (*models.Record, error)
	Merge(ctx context.Context, collection, id string, fields models.Fields) (*models.Record, error)
	Remove(ctx context.Context, collection, id string) error

	Rebuild(ctx context.Context, collection string) error
	Reset(ctx context.Context, collection string) error
	Evict(ctx context.Context, collection, id string) error
	LocalValue(ctx context.Context, key string) (string, bool, error)
	SetLocalValue(ctx context.Context, key, value string) error
}

type tier struct {
	name  string
	store repository.RecordStore
}

type facade struct {
	remote []tier
	cache  repository.CacheRepository
	logger zerolog.Logger
}

// NewFacade wires the tiers. primary and secondary may be nil, which counts as a failed tier.
func NewFacade(primary, secondary repository.RecordStore, cache repository.CacheRepository, breaker config.BreakerConfig, logger zerolog.Logger) Facade {
	return &facade{
		remote: []tier{
			{name: TierPrimary, store: withBreaker(TierPrimary, primary, breaker, logger)},
			{name: TierSecondary, store: withBreaker(TierSecondary, secondary, breaker, logger)},
		},
		cache:  cache,
		logger: logger,
	}
}

func (f *facade) Read(ctx context.Context, collection, id string) (*models.Record, error) {
	var errs []error

	for _, t := range f.remote {
		if t.store == nil {
			errs = append(errs, f.tierFailed(t.name, "read", collection, id, errNotConfigured))
			continue
		}
		rec, err := t.store.Get(ctx, collection, id)
		if err != nil {
			errs = append(errs, f.tierFailed(t.name, "read", collection, id, err))
			continue
		}
		if rec == nil {
			metrics.RecordTierOperation(t.name, "read", "miss")
			continue
		}
		metrics.RecordTierOperation(t.name, "read", "ok")
		f.mirror(ctx, rec)
		return rec, nil
	}

	rec, err := f.cache.Get(ctx, collection, id)
	if err != nil {
		errs = append(errs, f.tierFailed(TierCache, "read", collection, id, err))
		if len(errs) == len(f.remote)+1 {
			return nil, f.unavailable("read", errs)
		}
		return nil, nil
	}
	if rec == nil {
		metrics.RecordTierOperation(TierCache, "read", "miss")
		return nil, nil
	}
	metrics.RecordTierOperation(TierCache, "read", "ok")
	return rec, nil
}

func (f *facade) Query(ctx context.Context, collection string, q models.Query) ([]models.Record, error) {
	var (
		errs  []error
		empty []models.Record
	)

	for _, t := range f.remote {
		if t.store == nil {
			errs = append(errs, f.tierFailed(t.name, "query", collection, "", errNotConfigured))
			continue
		}
		records, err := t.store.List(ctx, collection, q)
		if err != nil {
			errs = append(errs, f.tierFailed(t.name, "query", collection, "", err))
			continue
		}
		if len(records) == 0 {
			metrics.RecordTierOperation(t.name, "query", "miss")
			empty = records
			continue
		}
		metrics.RecordTierOperation(t.name, "query", "ok")
		f.mirrorAll(ctx, collection, q, records)
		return records, nil
	}

	records, err := f.cache.List(ctx, collection, q)
	if err != nil {
		errs = append(errs, f.tierFailed(TierCache, "query", collection, "", err))
		if len(errs) == len(f.remote)+1 {
			return nil, f.unavailable("query", errs)
		}
		return []models.Record{}, nil
	}
	if len(records) == 0 {
		metrics.RecordTierOperation(TierCache, "query", "miss")
		if empty != nil {
			return empty, nil
		}
		return []models.Record{}, nil
	}
	metrics.RecordTierOperation(TierCache, "query", "ok")
	return records, nil
}

// Write replaces the fields of a record, creating it when absent. An empty id allocates one.
func (f *facade) Write(ctx context.Context, collection, id string, fields models.Fields) (*models.Record, error) {
	normalized, err := f.prepare(collection, fields, false)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := timestamp()
	rec := &models.Record{ID: id, Collection: collection, Fields: normalized, UpdatedAt: &now}

	var errs []error
	for _, t := range f.remote {
		if t.store == nil {
			errs = append(errs, f.tierFailed(t.name, "write", collection, id, errNotConfigured))
			continue
		}
		attempt := cloneRecord(rec)
		if err := t.store.Put(ctx, attempt); err != nil {
			errs = append(errs, f.tierFailed(t.name, "write", collection, id, err))
			continue
		}
		metrics.RecordTierOperation(t.name, "write", "ok")
		f.mirror(ctx, attempt)
		return attempt, nil
	}

	if err := f.cache.Put(ctx, rec); err != nil {
		errs = append(errs, f.tierFailed(TierCache, "write", collection, id, err))
		return nil, f.unavailable("write", errs)
	}
	metrics.RecordTierOperation(TierCache, "write", "ok")
	f.logger.Warn().Str("collection", collection).Str("id", id).Msg("Record written to local cache only")
	return rec, nil
}

// Merge upserts only the given fields, leaving the rest of the record untouched.
func (f *facade) Merge(ctx context.Context, collection, id string, fields models.Fields) (*models.Record, error) {
	if id == "" {
		return nil, models.NewValidationError("id", "is required for merge")
	}
	normalized, err := f.prepare(collection, fields, true)
	if err != nil {
		return nil, err
	}

	now := timestamp()
	patch := &models.Record{ID: id, Collection: collection, Fields: normalized, UpdatedAt: &now}

	var errs []error
	for _, t := range f.remote {
		if t.store == nil {
			errs = append(errs, f.tierFailed(t.name, "merge", collection, id, errNotConfigured))
			continue
		}
		merged, err := t.store.Patch(ctx, cloneRecord(patch))
		if err != nil {
			errs = append(errs, f.tierFailed(t.name, "merge", collection, id, err))
			continue
		}
		metrics.RecordTierOperation(t.name, "merge", "ok")
		f.mirror(ctx, merged)
		return merged, nil
	}

	merged, err := f.cache.Patch(ctx, patch)
	if err != nil {
		errs = append(errs, f.tierFailed(TierCache, "merge", collection, id, err))
		return nil, f.unavailable("merge", errs)
	}
	metrics.RecordTierOperation(TierCache, "merge", "ok")
	f.logger.Warn().Str("collection", collection).Str("id", id).Msg("Record merged into local cache only")
	return merged, nil
}

func (f *facade) Remove(ctx context.Context, collection, id string) error {
	var errs []error
	for _, t := range f.remote {
		if t.store == nil {
			errs = append(errs, f.tierFailed(t.name, "remove", collection, id, errNotConfigured))
			continue
		}
		if err := t.store.Delete(ctx, collection, id); err != nil {
			errs = append(errs, f.tierFailed(t.name, "remove", collection, id, err))
			continue
		}
		metrics.RecordTierOperation(t.name, "remove", "ok")
		if err := f.cache.Delete(ctx, collection, id); err != nil {
			f.logger.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("Failed to evict cached record")
		}
		return nil
	}

	if err := f.cache.Delete(ctx, collection, id); err != nil {
		errs = append(errs, f.tierFailed(TierCache, "remove", collection, id, err))
		return f.unavailable("remove", errs)
	}
	metrics.RecordTierOperation(TierCache, "remove", "ok")
	return nil
}

// Rebuild replaces the cached snapshot of a collection with the first remote tier's full listing.
func (f *facade) Rebuild(ctx context.Context, collection string) error {
	var errs []error
	for _, t := range f.remote {
		if t.store == nil {
			continue
		}
		records, err := t.store.List(ctx, collection, models.Query{})
		if err != nil {
			errs = append(errs, f.tierFailed(t.name, "rebuild", collection, "", err))
			continue
		}
		return f.cache.Rebuild(ctx, collection, records)
	}
	if len(errs) == 0 {
		errs = append(errs, errNotConfigured)
	}
	return f.unavailable("rebuild", errs)
}

func (f *facade) Reset(ctx context.Context, collection string) error {
	return f.cache.Reset(ctx, collection)
}

// Evict drops one cached record without touching the remote tiers.
func (f *facade) Evict(ctx context.Context, collection, id string) error {
	return f.cache.Delete(ctx, collection, id)
}

func (f *facade) LocalValue(ctx context.Context, key string) (string, bool, error) {
	return f.cache.GetValue(ctx, key)
}

func (f *facade) SetLocalValue(ctx context.Context, key, value string) error {
	return f.cache.SetValue(ctx, key, value)
}

func (f *facade) prepare(collection string, fields models.Fields, partial bool) (models.Fields, error) {
	if collection == "" {
		return nil, models.NewValidationError("collection", "is required")
	}
	normalized, err := models.NormalizeFields(fields)
	if err != nil {
		return nil, models.NewValidationError("fields", err.Error())
	}
	delete(normalized, "id")

	if partial {
		err = models.ValidatePartial(collection, normalized)
	} else {
		err = models.ValidateFields(collection, normalized)
	}
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

func (f *facade) mirror(ctx context.Context, rec *models.Record) {
	cached := cloneRecord(rec)
	if err := f.cache.Put(ctx, cached); err != nil {
		f.logger.Warn().Err(err).
			Str("collection", rec.Collection).
			Str("id", rec.ID).
			Msg("Failed to mirror record into local cache")
	}
}

func (f *facade) mirrorAll(ctx context.Context, collection string, q models.Query, records []models.Record) {
	if len(q.Filters) == 0 && q.Limit == 0 {
		if err := f.cache.Rebuild(ctx, collection, records); err != nil {
			f.logger.Warn().Err(err).Str("collection", collection).Msg("Failed to rebuild local cache")
		}
		return
	}
	for i := range records {
		f.mirror(ctx, &records[i])
	}
}

func (f *facade) tierFailed(tierName, op, collection, id string, err error) error {
	metrics.RecordTierOperation(tierName, op, "error")
	if !errors.Is(err, errNotConfigured) {
		f.logger.Warn().Err(err).
			Str("tier", tierName).
			Str("op", op).
			Str("collection", collection).
			Str("id", id).
			Msg("Store tier failed, falling back")
	}
	return &models.TransportError{Tier: tierName, Op: op, Err: err}
}

func (f *facade) unavailable(op string, errs []error) error {
	metrics.StoreUnavailable.WithLabelValues(op).Inc()
	f.logger.Error().Str("op", op).Err(errors.Join(errs...)).Msg("All store tiers failed")
	return models.StoreUnavailable(op, errs...)
}

func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func cloneRecord(rec *models.Record) *models.Record {
	out := *rec
	out.Fields = make(models.Fields, len(rec.Fields))
	for k, v := range rec.Fields {
		out.Fields[k] = v
	}
	return &out
}
