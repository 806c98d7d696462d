package store

import (
	"context"
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/config"
	"github.com/RubachokBoss/learning-platform/internal/metrics"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/repository"
)

// breakerTier short-circuits a remote tier after repeated failures so fallback does not wait on
// timeouts for every call.
type breakerTier struct {
	store repository.RecordStore
	cb    *gobreaker.CircuitBreaker[any]
}

func withBreaker(name string, store repository.RecordStore, cfg config.BreakerConfig, logger zerolog.Logger) repository.RecordStore {
	if store == nil || cfg.FailureThreshold == 0 {
		return store
	}

	metrics.BreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("tier", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Store tier breaker changed state")
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &breakerTier{store: store, cb: cb}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

func (b *breakerTier) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.store.Get(ctx, collection, id)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := res.(*models.Record)
	return rec, nil
}

func (b *breakerTier) List(ctx context.Context, collection string, q models.Query) ([]models.Record, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.store.List(ctx, collection, q)
	})
	if err != nil {
		return nil, err
	}
	records, _ := res.([]models.Record)
	return records, nil
}

func (b *breakerTier) Put(ctx context.Context, rec *models.Record) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.store.Put(ctx, rec)
	})
	return err
}

func (b *breakerTier) Patch(ctx context.Context, patch *models.Record) (*models.Record, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.store.Patch(ctx, patch)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := res.(*models.Record)
	return rec, nil
}

func (b *breakerTier) Delete(ctx context.Context, collection, id string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.store.Delete(ctx, collection, id)
	})
	return err
}
