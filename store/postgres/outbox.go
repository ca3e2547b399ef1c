package postgres

import (
	"context"
	"fmt"

	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/outbox"
)

// outboxClaimLease is how long a claim stays exclusive before a crashed
// relay's records become claimable again.
const outboxClaimLease = "30 seconds"

// CreateOutbox persists a record.
func (s *Store) CreateOutbox(ctx context.Context, rec *outbox.Record) error {
	return s.createOutbox(ctx, s.pool, rec)
}

func (s *Store) createOutbox(ctx context.Context, q execer, rec *outbox.Record) error {
	_, err := q.Exec(ctx, `
		INSERT INTO flowrge_outbox (id, run_id, created_at)
		VALUES ($1, $2, $3)`,
		rec.ID.String(), rec.RunID.String(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: create outbox record: %w", err)
	}
	return nil
}

// ClaimOutbox atomically claims up to limit oldest unclaimed records.
// SKIP LOCKED keeps concurrent relays off each other's batches; the
// lease lets a crashed relay's claims expire.
func (s *Store) ClaimOutbox(ctx context.Context, limit int) ([]*outbox.Record, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE flowrge_outbox
			SET claimed_until = NOW() + $2::interval
			WHERE id IN (
				SELECT id FROM flowrge_outbox
				WHERE claimed_until IS NULL OR claimed_until < NOW()
				ORDER BY created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $1
			)
			RETURNING id, run_id, created_at
		)
		SELECT id, run_id, created_at FROM claimed ORDER BY created_at ASC`,
		limit, outboxClaimLease,
	)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: claim outbox: %w", err)
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		var (
			rec      outbox.Record
			idStr    string
			runIDStr string
		)
		if err := rows.Scan(&idStr, &runIDStr, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("flowrge/postgres: scan outbox row: %w", err)
		}
		rec.ID, err = id.ParseOutboxID(idStr)
		if err != nil {
			return nil, fmt.Errorf("flowrge/postgres: parse outbox id %q: %w", idStr, err)
		}
		rec.RunID, err = id.ParseRunID(runIDStr)
		if err != nil {
			return nil, fmt.Errorf("flowrge/postgres: parse run id %q: %w", runIDStr, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowrge/postgres: iterate outbox rows: %w", err)
	}
	return records, nil
}

// DeleteOutbox removes a record. Deleting an already deleted record is
// not an error: the relay may retry a delete after a partial failure.
func (s *Store) DeleteOutbox(ctx context.Context, recordID id.OutboxID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM flowrge_outbox WHERE id = $1`,
		recordID.String(),
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: delete outbox record: %w", err)
	}
	return nil
}

// CountOutbox returns the number of undeleted records.
func (s *Store) CountOutbox(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM flowrge_outbox`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("flowrge/postgres: count outbox: %w", err)
	}
	return count, nil
}
