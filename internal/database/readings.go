//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/readings.go -package=mocks . ReadingRepository

// Package database implements Postgres-backed storage of meter readings.
//
// The store is optional: the adapter works without it, but when enabled it
// keeps every hourly reading and lets the daily delta survive a restart.
//
// Example usage:
//
//	repo, err := NewPostgresRepo(ctx, "host=localhost port=5432 user=apavital dbname=apavital sslmode=disable")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
//	last, err := repo.LatestReading(ctx, "")
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/tejusbharadwaj/apavital/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS water_readings (
    serial   TEXT        NOT NULL,
    time     TIMESTAMPTZ NOT NULL,
    index_m3 DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (serial, time)
)`

// ErrNoReadings is returned by LatestReading when nothing has been stored.
var ErrNoReadings = errors.New("no readings stored")

// ReadingRepository defines the storage operations used by the recorder.
type ReadingRepository interface {
	// InsertReadings stores readings in one transaction, skipping ones that
	// already exist. It returns the number of rows actually inserted.
	InsertReadings(ctx context.Context, readings []models.Reading) (int, error)

	// LatestReading returns the most recent reading for serial, or for any
	// meter when serial is empty.
	LatestReading(ctx context.Context, serial string) (*models.Reading, error)

	// Close releases any resources held by the repository.
	Close() error
}

// PostgresRepo implements ReadingRepository using database/sql and lib/pq.
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo opens the connection, verifies it and creates the table
// when missing.
func NewPostgresRepo(ctx context.Context, connStr string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresRepo{db: db}, nil
}

func (s *PostgresRepo) InsertReadings(ctx context.Context, readings []models.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // rollback if not committed

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO water_readings (serial, time, index_m3)
        VALUES ($1, $2, $3)
        ON CONFLICT (serial, time) DO NOTHING
    `)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range readings {
		res, err := stmt.ExecContext(ctx, r.Serial, r.Time, r.Index)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reading: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func (s *PostgresRepo) LatestReading(ctx context.Context, serial string) (*models.Reading, error) {
	query := `SELECT serial, time, index_m3 FROM water_readings ORDER BY time DESC LIMIT 1`
	args := []any{}
	if serial != "" {
		query = `SELECT serial, time, index_m3 FROM water_readings WHERE serial = $1 ORDER BY time DESC LIMIT 1`
		args = append(args, serial)
	}

	var r models.Reading
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&r.Serial, &r.Time, &r.Index)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReadings
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Close releases all database resources.
func (s *PostgresRepo) Close() error {
	return s.db.Close()
}

// Compile-time interface implementation check
var _ ReadingRepository = (*PostgresRepo)(nil)
