package database

import (
	"database/sql"
	"fmt"

	"github.com/RubachokBoss/learning-platform/internal/config"
	_ "github.com/lib/pq"
)

// NewPostgres opens the primary store pool. It does not dial; callers ping with their own deadline.
func NewPostgres(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}
