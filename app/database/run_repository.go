package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ RunRepository = (*runRepository)(nil)

type runRepository struct {
	db *DB
}

// NewRunRepository creates a new scrape run repository
func NewRunRepository(db *DB) RunRepository {
	return &runRepository{db: db}
}

// CreateRun inserts an open run and returns its ID
func (r *runRepository) CreateRun(ctx context.Context, startedAt time.Time) (string, error) {
	id := uuid.NewString()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO scrape_runs (id, started_at) VALUES (?, ?)",
		id, formatTimestamp(startedAt))
	if err != nil {
		return "", fmt.Errorf("failed to create scrape run: %w", err)
	}

	return id, nil
}

// FinishRun finalizes an open run. A finished run is never rewritten.
func (r *runRepository) FinishRun(ctx context.Context, id string, summary RunSummary) error {
	errs := summary.Errors
	if errs == nil {
		errs = []RunError{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE scrape_runs
		SET completed_at = ?, offices_scraped = ?, golden_found = ?, future_found = ?, errors = ?
		WHERE id = ? AND completed_at IS NULL
	`, formatTimestamp(summary.CompletedAt), summary.OfficesScraped, summary.GoldenFound,
		summary.FutureFound, string(encoded), id)
	if err != nil {
		return fmt.Errorf("failed to finish scrape run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read finish result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("open scrape run %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetLatestRun returns the most recently started finished run, or nil
func (r *runRepository) GetLatestRun(ctx context.Context) (*Run, error) {
	var run Run
	var startedAt, errs string
	var completedAt sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, offices_scraped, golden_found, future_found, errors
		FROM scrape_runs
		WHERE completed_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&run.ID, &startedAt, &completedAt, &run.OfficesScraped, &run.GoldenFound, &run.FutureFound, &errs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest scrape run: %w", err)
	}

	if run.StartedAt, err = parseTimestamp(startedAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = parseNullTimestamp(completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode run errors: %w", err)
	}

	return &run, nil
}
