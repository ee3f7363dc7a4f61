package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `run_id, dev_node, manufacturer, product, serial, state, auth_state,
    auth_attempts, scan_verdict, mount_point, shared, error_message,
    started_at, updated_at, finished_at`

// Begin records a new run. StartedAt defaults to now.
func (s *Store) Begin(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return errors.New("history: run id is required")
	}
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.UpdatedAt = now
	_, err := s.exec(ctx,
		`INSERT INTO device_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		run.ID, run.DevNode,
		optional(run.Manufacturer), optional(run.Product), optional(run.Serial),
		run.State, optional(run.AuthState), run.AuthAttempts,
		optional(run.ScanVerdict), optional(run.MountPoint), flag(run.Shared),
		optional(run.Error), encodeTime(run.StartedAt), encodeTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update writes the mutable fields of run.
func (s *Store) Update(ctx context.Context, run *Run) error {
	run.UpdatedAt = time.Now().UTC()
	var finished any
	if run.FinishedAt != nil {
		finished = encodeTime(*run.FinishedAt)
	}
	res, err := s.exec(ctx,
		`UPDATE device_runs SET state = ?, auth_state = ?, auth_attempts = ?, scan_verdict = ?,
             mount_point = ?, shared = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE run_id = ?`,
		run.State, optional(run.AuthState), run.AuthAttempts, optional(run.ScanVerdict),
		optional(run.MountPoint), flag(run.Shared), optional(run.Error),
		encodeTime(run.UpdatedAt), finished, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update run %s: not found", run.ID)
	}
	return nil
}

// Finish stamps the run as complete in the given state.
func (s *Store) Finish(ctx context.Context, run *Run, state string) error {
	now := time.Now().UTC()
	run.State = state
	run.FinishedAt = &now
	return s.Update(ctx, run)
}

// Get returns one run, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM device_runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// List returns the most recent runs first. A zero limit means no limit; an
// empty devNode matches all devices.
func (s *Store) List(ctx context.Context, limit int, devNode string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM device_runs`
	var args []any
	if devNode != "" {
		query += ` WHERE dev_node = ?`
		args = append(args, devNode)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkInterrupted closes runs a previous daemon left open.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := encodeTime(time.Now())
	res, err := s.exec(ctx,
		`UPDATE device_runs SET state = ?, updated_at = ?, finished_at = ? WHERE finished_at IS NULL`,
		StateInterrupted, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes finished runs that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM device_runs WHERE finished_at IS NOT NULL AND started_at < ?`,
		encodeTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run                                Run
		manufacturer, product, serial      sql.NullString
		authState, scanVerdict, mountPoint sql.NullString
		errMsg, finished                   sql.NullString
		started, updated                   string
		shared                             int
	)
	if err := scanner.Scan(
		&run.ID, &run.DevNode, &manufacturer, &product, &serial, &run.State, &authState,
		&run.AuthAttempts, &scanVerdict, &mountPoint, &shared, &errMsg,
		&started, &updated, &finished,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Manufacturer = manufacturer.String
	run.Product = product.String
	run.Serial = serial.String
	run.AuthState = authState.String
	run.ScanVerdict = scanVerdict.String
	run.MountPoint = mountPoint.String
	run.Shared = shared != 0
	run.Error = errMsg.String

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if finished.Valid {
		ts, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &ts
	}
	return &run, nil
}
