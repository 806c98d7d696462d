package repository

import (
	"context"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

// RecordStore is one storage tier. Get returns (nil, nil) when the record does not exist.
// Put and Patch fill in the stored timestamps of the record they are given.
type RecordStore interface {
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	List(ctx context.Context, collection string, q models.Query) ([]models.Record, error)
	Put(ctx context.Context, rec *models.Record) error
	Patch(ctx context.Context, patch *models.Record) (*models.Record, error)
	Delete(ctx context.Context, collection, id string) error
}
