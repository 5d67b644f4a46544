package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sbomflow/internal/config"
)

// Store manages workflow state persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the workflow state database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "workflow.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// CreateSteps atomically inserts one PENDING row per node of the given step
// graph. Rows that already exist for the token are left untouched, making
// repeated calls for the same token a no-op.
func (s *Store) CreateSteps(ctx context.Context, token string, graph []Node) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token must not be empty")
	}
	if len(graph) == 0 {
		return errors.New("step graph must not be empty")
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin create steps tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, node := range graph {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO workflow_states (token, step, parent_step, status, updated_at)
                 VALUES (?, ?, ?, ?, ?)
                 ON CONFLICT (token, step) DO NOTHING`,
				token,
				node.Step,
				nullableString(string(node.Parent)),
				StatusPending,
				now,
			); err != nil {
				return fmt.Errorf("insert step %s: %w", node.Step, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit create steps: %w", err)
		}
		return nil
	})
}

// Get fetches a single workflow row. Returns nil when no row exists.
func (s *Store) Get(ctx context.Context, token string, step Step) (*State, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+stateColumns+` FROM workflow_states WHERE token = ? AND step = ?`,
		token, step,
	)
	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow state: %w", err)
	}
	return state, nil
}

// GetAll returns every workflow row recorded for a chain token.
func (s *Store) GetAll(ctx context.Context, token string) ([]*State, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+stateColumns+` FROM workflow_states WHERE token = ? ORDER BY id`,
		token,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflow states: %w", err)
	}
	defer rows.Close()

	var states []*State
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Prune removes every workflow row belonging to a chain token.
func (s *Store) Prune(ctx context.Context, token string) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM workflow_states WHERE token = ?`, token)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune chain: %w", err)
	}
	return affected, nil
}

const stateColumns = "id, token, step, parent_step, status, failure_reason, started_at, updated_at"

func scanState(scanner interface{ Scan(dest ...any) error }) (*State, error) {
	var (
		id            int64
		token         string
		stepStr       string
		parentStep    sql.NullString
		statusStr     string
		failureReason sql.NullString
		startedRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&token,
		&stepStr,
		&parentStep,
		&statusStr,
		&failureReason,
		&startedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	state := &State{
		ID:            id,
		Token:         token,
		Step:          Step(stepStr),
		ParentStep:    Step(parentStep.String),
		Status:        Status(statusStr),
		FailureReason: failureReason.String,
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			state.StartedAt = &started
		}
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		state.UpdatedAt = updated
	}
	return state, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
