package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

type RecordRepository interface {
	RecordStore
	Ping(ctx context.Context) error
}

type recordRepository struct {
	*PostgresRepository
}

func NewRecordRepository(db *sql.DB, logger zerolog.Logger) RecordRepository {
	return &recordRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *recordRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	query := `
		SELECT id, fields, created_at, updated_at
		FROM records
		WHERE collection = $1 AND id = $2
	`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, collection, id), collection)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s/%s: %w", collection, id, err)
	}

	return rec, nil
}

func (r *recordRepository) List(ctx context.Context, collection string, q models.Query) ([]models.Record, error) {
	query, args, err := buildListQuery(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", collection, err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

func (r *recordRepository) Put(ctx context.Context, rec *models.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	query := `
		INSERT INTO records (collection, id, fields, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE
		SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`

	createdAt, updatedAt := recordTimes(rec)
	var storedCreated, storedUpdated time.Time
	err = r.db.QueryRowContext(ctx, query, rec.Collection, rec.ID, string(fields), createdAt, updatedAt).
		Scan(&storedCreated, &storedUpdated)
	if err != nil {
		return fmt.Errorf("failed to put record %s/%s: %w", rec.Collection, rec.ID, err)
	}

	storedCreated, storedUpdated = storedCreated.UTC(), storedUpdated.UTC()
	rec.CreatedAt, rec.UpdatedAt = &storedCreated, &storedUpdated
	return nil
}

func (r *recordRepository) Patch(ctx context.Context, patch *models.Record) (*models.Record, error) {
	fields, err := json.Marshal(patch.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	query := `
		INSERT INTO records (collection, id, fields, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE
		SET fields = records.fields || EXCLUDED.fields, updated_at = EXCLUDED.updated_at
		RETURNING id, fields, created_at, updated_at
	`

	createdAt, updatedAt := recordTimes(patch)
	rec, err := scanRecord(
		r.db.QueryRowContext(ctx, query, patch.Collection, patch.ID, string(fields), createdAt, updatedAt),
		patch.Collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to patch record %s/%s: %w", patch.Collection, patch.ID, err)
	}

	return rec, nil
}

func (r *recordRepository) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM records WHERE collection = $1 AND id = $2`

	if _, err := r.db.ExecContext(ctx, query, collection, id); err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", collection, id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner, collection string) (*models.Record, error) {
	var (
		rec       = &models.Record{Collection: collection}
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
	)

	if err := row.Scan(&rec.ID, &raw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}

	createdAt, updatedAt = createdAt.UTC(), updatedAt.UTC()
	rec.CreatedAt, rec.UpdatedAt = &createdAt, &updatedAt
	return rec, nil
}

func recordTimes(rec *models.Record) (time.Time, time.Time) {
	now := time.Now().UTC()
	createdAt, updatedAt := now, now
	if rec.CreatedAt != nil {
		createdAt = *rec.CreatedAt
	}
	if rec.UpdatedAt != nil {
		updatedAt = *rec.UpdatedAt
	}
	return createdAt, updatedAt
}

// buildListQuery turns a models.Query into SQL. Filters use jsonb containment so typed values match exactly.
func buildListQuery(collection string, q models.Query) (string, []interface{}, error) {
	var (
		sb   strings.Builder
		args = []interface{}{collection}
	)

	sb.WriteString("SELECT id, fields, created_at, updated_at FROM records WHERE collection = $1")

	if len(q.Filters) > 0 {
		doc, err := q.FilterDocument()
		if err != nil {
			return "", nil, fmt.Errorf("invalid filter: %w", err)
		}
		encoded, err := json.Marshal(doc)
		if err != nil {
			return "", nil, fmt.Errorf("invalid filter: %w", err)
		}
		args = append(args, string(encoded))
		fmt.Fprintf(&sb, " AND fields @> $%d::jsonb", len(args))
	}

	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	switch q.OrderBy {
	case "":
		sb.WriteString(" ORDER BY created_at ASC, id ASC")
	case "createdAt":
		fmt.Fprintf(&sb, " ORDER BY created_at %s, id %s", direction, direction)
	case "updatedAt":
		fmt.Fprintf(&sb, " ORDER BY updated_at %s, id %s", direction, direction)
	default:
		args = append(args, q.OrderBy)
		fmt.Fprintf(&sb, " ORDER BY fields -> $%d::text %s, created_at %s, id %s", len(args), direction, direction, direction)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args, nil
}
