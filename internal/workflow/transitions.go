package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTerminalState is returned when a transition targets a step that already
// reached a terminal status. Terminal states are sticky; callers are expected
// to treat this as a logged no-op, not a data corruption.
var ErrTerminalState = errors.New("workflow step already in terminal state")

// MarkStarted records the execution start time for a step if it has not
// started yet and returns the current row. Returns (nil, nil) when no row
// exists for the token, so callers tolerate requests issued without prior
// step creation.
func (s *Store) MarkStarted(ctx context.Context, token string, step Step) (*State, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(
			ctx,
			`UPDATE workflow_states
             SET started_at = COALESCE(started_at, ?), updated_at = ?
             WHERE token = ? AND step = ? AND status = ?`,
			now, now, token, step, StatusPending,
		)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("mark started: %w", err)
	}
	return s.Get(ctx, token, step)
}

// MarkCompleted transitions a pending step to COMPLETED.
func (s *Store) MarkCompleted(ctx context.Context, token string, step Step) error {
	return s.transition(ctx, token, step, StatusCompleted, "")
}

// MarkNotApplicable transitions a pending step directly to NOT_APPLICABLE,
// bypassing the started requirement. Used for structurally skippable steps.
func (s *Store) MarkNotApplicable(ctx context.Context, token string, step Step) error {
	return s.transition(ctx, token, step, StatusNotApplicable, "")
}

// MarkFailed transitions a pending step to FAILED with the given reason and,
// within the same transaction, cascades CANCELLED to every transitive
// descendant that is still pending. Cancelled descendants never get a
// started_at timestamp.
func (s *Store) MarkFailed(ctx context.Context, token string, step Step, reason string) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin mark failed tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := tx.ExecContext(
			ctx,
			`UPDATE workflow_states
             SET status = ?, failure_reason = ?, updated_at = ?
             WHERE token = ? AND step = ? AND status = ?`,
			StatusFailed, nullableString(reason), now, token, step, StatusPending,
		)
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return s.rejectStuckTransition(ctx, tx, token, step)
		}

		if err := cascadeCancel(ctx, tx, token, step, now); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit mark failed: %w", err)
		}
		return nil
	})
}

func (s *Store) transition(ctx context.Context, token string, step Step, to Status, reason string) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := tx.ExecContext(
			ctx,
			`UPDATE workflow_states
             SET status = ?, failure_reason = ?, updated_at = ?
             WHERE token = ? AND step = ? AND status = ?`,
			to, nullableString(reason), now, token, step, StatusPending,
		)
		if err != nil {
			return fmt.Errorf("transition to %s: %w", to, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return s.rejectStuckTransition(ctx, tx, token, step)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transition: %w", err)
		}
		return nil
	})
}

// rejectStuckTransition distinguishes a missing row (tolerated, nil) from a
// terminal row (ErrTerminalState). The status guard in the UPDATE has already
// serialized us against concurrent writers.
func (s *Store) rejectStuckTransition(ctx context.Context, tx *sql.Tx, token string, step Step) error {
	var status string
	err := tx.QueryRowContext(
		ctx,
		`SELECT status FROM workflow_states WHERE token = ? AND step = ?`,
		token, step,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect workflow state: %w", err)
	}
	return fmt.Errorf("%w: token %s step %s is %s", ErrTerminalState, token, step, status)
}

func cascadeCancel(ctx context.Context, tx *sql.Tx, token string, failed Step, now string) error {
	rows, err := tx.QueryContext(
		ctx,
		`SELECT step, parent_step, status FROM workflow_states WHERE token = ?`,
		token,
	)
	if err != nil {
		return fmt.Errorf("query chain for cascade: %w", err)
	}

	children := make(map[Step][]Step)
	pending := make(map[Step]bool)
	for rows.Next() {
		var stepStr, statusStr string
		var parent sql.NullString
		if err := rows.Scan(&stepStr, &parent, &statusStr); err != nil {
			rows.Close()
			return fmt.Errorf("scan chain row: %w", err)
		}
		if parent.Valid {
			children[Step(parent.String)] = append(children[Step(parent.String)], Step(stepStr))
		}
		pending[Step(stepStr)] = Status(statusStr) == StatusPending
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate chain rows: %w", err)
	}

	var cancel []Step
	queue := append([]Step(nil), children[failed]...)
	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]
		if pending[step] {
			cancel = append(cancel, step)
		}
		queue = append(queue, children[step]...)
	}

	for _, step := range cancel {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE workflow_states SET status = ?, updated_at = ?
             WHERE token = ? AND step = ? AND status = ?`,
			StatusCancelled, now, token, step, StatusPending,
		); err != nil {
			return fmt.Errorf("cancel step %s: %w", step, err)
		}
	}
	return nil
}
