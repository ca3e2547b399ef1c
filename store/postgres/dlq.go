package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/dlq"
	"github.com/Pratikkale26/Flowrge/id"
)

// PushDLQ adds a failed delivery to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	var runID *string
	if !entry.RunID.IsNil() {
		v := entry.RunID.String()
		runID = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO flowrge_dlq (
			id, run_id, stage, payload, error, failed_at, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID.String(), runID, entry.Stage, entry.Payload, entry.Error,
		entry.FailedAt, entry.ReplayedAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: push dlq entry: %w", err)
	}
	return nil
}

// ListDLQ returns entries ordered by failure time, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `
		SELECT id, run_id, stage, payload, error, failed_at, replayed_at, created_at
		FROM flowrge_dlq
		ORDER BY failed_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: list dlq entries: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		entry, err := scanDLQEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("flowrge/postgres: scan dlq row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowrge/postgres: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	entry, err := scanDLQEntry(s.pool.QueryRow(ctx, `
		SELECT id, run_id, stage, payload, error, failed_at, replayed_at, created_at
		FROM flowrge_dlq
		WHERE id = $1`,
		entryID.String(),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, flowrge.ErrDLQNotFound
		}
		return nil, fmt.Errorf("flowrge/postgres: get dlq entry: %w", err)
	}
	return entry, nil
}

// ReplayDLQ marks an entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE flowrge_dlq SET replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: replay dlq entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return flowrge.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM flowrge_dlq WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("flowrge/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM flowrge_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("flowrge/postgres: count dlq: %w", err)
	}
	return count, nil
}

// scanDLQEntry scans a single dead letter row.
func scanDLQEntry(row pgx.Row) (*dlq.Entry, error) {
	var (
		entry    dlq.Entry
		idStr    string
		runIDStr *string
	)
	err := row.Scan(
		&idStr, &runIDStr, &entry.Stage, &entry.Payload, &entry.Error,
		&entry.FailedAt, &entry.ReplayedAt, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ID, err = id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse dlq id %q: %w", idStr, err)
	}
	if runIDStr != nil {
		entry.RunID, err = id.ParseRunID(*runIDStr)
		if err != nil {
			return nil, fmt.Errorf("flowrge/postgres: parse run id %q: %w", *runIDStr, err)
		}
	}
	return &entry, nil
}
