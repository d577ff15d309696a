package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/athenaq/athenaq/internal/history"
	"github.com/athenaq/athenaq/internal/migrations"
)

const DefaultRecentLimit = 20

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

// EnsureSchema applies any pending history migrations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := migrations.NewRunner().Up(ctx, s.db, 0); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, entry history.Entry) (history.Entry, error) {
	if strings.TrimSpace(entry.Query) == "" {
		return history.Entry{}, fmt.Errorf("history entry query is required")
	}
	if entry.State == "" {
		return history.Entry{}, fmt.Errorf("history entry state is required")
	}

	query := `
INSERT INTO query_history (run_id, execution_id, backend, database_name, query_text, state, state_reason, statement_type, output_location, cached, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING history_id, recorded_at`
	err := s.db.QueryRowContext(ctx, query,
		entry.RunID,
		entry.ExecutionID,
		entry.Backend,
		entry.Database,
		entry.Query,
		entry.State,
		entry.Reason,
		entry.StatementType,
		entry.OutputLocation,
		entry.Cached,
		entry.Duration.Milliseconds(),
	).Scan(&entry.ID, &entry.RecordedAt)
	if err != nil {
		return history.Entry{}, fmt.Errorf("record history entry: %w", err)
	}
	return entry, nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
SELECT history_id, run_id, execution_id, backend, database_name, query_text, state, state_reason, statement_type, output_location, cached, duration_ms, recorded_at
FROM query_history
ORDER BY recorded_at DESC, history_id DESC
LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]history.Entry, 0)
	for rows.Next() {
		var (
			entry      history.Entry
			durationMs int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.ExecutionID,
			&entry.Backend,
			&entry.Database,
			&entry.Query,
			&entry.State,
			&entry.Reason,
			&entry.StatementType,
			&entry.OutputLocation,
			&entry.Cached,
			&durationMs,
			&entry.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
