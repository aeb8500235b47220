package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/stacklift/stacklift/pkg/engine"
	"github.com/stacklift/stacklift/pkg/graph"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ engine.StateStore = (*SQLiteStore)(nil)

// SQLiteStore persists last-applied resource state and run history in a
// SQLite database. It implements engine.StateStore.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Connection-level setting
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded schema files.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// LoadState returns the last-applied state for every known resource.
func (s *SQLiteStore) LoadState(ctx context.Context) (engine.State, error) {
	query := `
		SELECT resource_id, provider_id, attributes, resolved, applied_at
		FROM resource_states
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource states: %w", err)
	}
	defer rows.Close()

	state := make(engine.State)
	for rows.Next() {
		var (
			resourceID    string
			providerID    string
			attrsJSON     string
			resolvedJSON  string
			appliedAtText string
		)
		if err := rows.Scan(&resourceID, &providerID, &attrsJSON, &resolvedJSON, &appliedAtText); err != nil {
			return nil, fmt.Errorf("failed to scan resource state: %w", err)
		}

		st := engine.AppliedState{ProviderID: providerID}
		if err := json.Unmarshal([]byte(attrsJSON), &st.Attributes); err != nil {
			return nil, fmt.Errorf("corrupt attributes for %s: %w", resourceID, err)
		}
		if err := json.Unmarshal([]byte(resolvedJSON), &st.Resolved); err != nil {
			return nil, fmt.Errorf("corrupt resolved attributes for %s: %w", resourceID, err)
		}
		if st.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAtText); err != nil {
			return nil, fmt.Errorf("corrupt applied_at for %s: %w", resourceID, err)
		}

		state[resourceID] = st
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resource states: %w", err)
	}

	return state, nil
}

// PutResourceState records the applied state of one resource.
func (s *SQLiteStore) PutResourceState(ctx context.Context, resourceID string, st engine.AppliedState) error {
	attrsJSON, err := json.Marshal(orEmpty(st.Attributes))
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	resolvedJSON, err := json.Marshal(orEmpty(st.Resolved))
	if err != nil {
		return fmt.Errorf("failed to encode resolved attributes: %w", err)
	}

	query := `
		INSERT INTO resource_states (resource_id, provider_id, attributes, resolved, applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET
			provider_id = excluded.provider_id,
			attributes = excluded.attributes,
			resolved = excluded.resolved,
			applied_at = excluded.applied_at
	`

	_, err = s.db.ExecContext(ctx, query,
		resourceID,
		st.ProviderID,
		string(attrsJSON),
		string(resolvedJSON),
		st.AppliedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert resource state: %w", err)
	}

	return nil
}

// DeleteResourceState removes the recorded state of one resource.
func (s *SQLiteStore) DeleteResourceState(ctx context.Context, resourceID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resource_states WHERE resource_id = ?`, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete resource state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resource state not found: %s", resourceID)
	}

	return nil
}

// CreateRun creates a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, environment, plan_id, status, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Environment,
		run.PlanID,
		run.Status,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		formatNullableTime(run.CompletedAt),
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun marks a run as completed or failed.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx, query, status, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// ListRuns lists runs ordered by start time, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, environment, plan_id, status, started_at, completed_at, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		var startedAt string
		var completedAt *string
		if err := rows.Scan(&run.ID, &run.Environment, &run.PlanID, &run.Status, &startedAt, &completedAt, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("corrupt started_at for run %s: %w", run.ID, err)
		}
		if completedAt != nil {
			t, err := time.Parse(time.RFC3339Nano, *completedAt)
			if err != nil {
				return nil, fmt.Errorf("corrupt completed_at for run %s: %w", run.ID, err)
			}
			run.CompletedAt = &t
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// AppendEvent appends a run event to the log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (run_id, resource_id, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.ResourceID,
		event.Level,
		event.Message,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// ListEventsByRun lists all events for a run in chronological order.
func (s *SQLiteStore) ListEventsByRun(ctx context.Context, runID string) ([]*Event, error) {
	query := `
		SELECT id, run_id, resource_id, level, message, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		var ts string
		if err := rows.Scan(&event.ID, &event.RunID, &event.ResourceID, &event.Level, &event.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if event.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("corrupt timestamp for event %d: %w", event.ID, err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func orEmpty(attrs graph.Attributes) graph.Attributes {
	if attrs == nil {
		return graph.Attributes{}
	}
	return attrs
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
