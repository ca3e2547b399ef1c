package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/durable"
	"github.com/Pratikkale26/Flowrge/id"
)

// CreateTransaction persists a new pending transaction.
func (s *Store) CreateTransaction(ctx context.Context, tx *durable.Transaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO flowrge_transactions (
			id, workflow_id, flow_key, nonce_id, wire, state,
			signature, last_error, submitted_at, confirmed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.ID.String(), tx.WorkflowID.String(), tx.FlowKey, tx.NonceID.String(),
		tx.Wire, string(tx.State), tx.Signature, tx.LastError,
		tx.SubmittedAt, tx.ConfirmedAt, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: create transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, txID id.TxID) (*durable.Transaction, error) {
	tx, err := scanTransaction(s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, flow_key, nonce_id, wire, state,
		       signature, last_error, submitted_at, confirmed_at, created_at, updated_at
		FROM flowrge_transactions
		WHERE id = $1`,
		txID.String(),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, flowrge.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("flowrge/postgres: get transaction: %w", err)
	}
	return tx, nil
}

// ClaimOldestPending atomically flips the scope's oldest pending
// transaction to submitting and returns it. SKIP LOCKED makes a
// concurrent claim for the same scope find nothing, which is the dedupe
// guarantee concurrent submitters rely on.
func (s *Store) ClaimOldestPending(ctx context.Context, workflowID id.WorkflowID, flowKey string) (*durable.Transaction, error) {
	tx, err := scanTransaction(s.pool.QueryRow(ctx, `
		UPDATE flowrge_transactions
		SET state = 'submitting', submitted_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM flowrge_transactions
			WHERE workflow_id = $1 AND flow_key = $2 AND state = 'pending'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, workflow_id, flow_key, nonce_id, wire, state,
		          signature, last_error, submitted_at, confirmed_at, created_at, updated_at`,
		workflowID.String(), flowKey,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, flowrge.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("flowrge/postgres: claim pending transaction: %w", err)
	}
	return tx, nil
}

// MarkTransactionConfirmed flips a claimed transaction to confirmed and
// records its signature.
func (s *Store) MarkTransactionConfirmed(ctx context.Context, txID id.TxID, signature string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE flowrge_transactions
		SET state = 'confirmed', signature = $2, confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		txID.String(), signature,
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: confirm transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return flowrge.ErrTransactionNotFound
	}
	return nil
}

// MarkTransactionFailed flips a claimed transaction to failed and
// records the error.
func (s *Store) MarkTransactionFailed(ctx context.Context, txID id.TxID, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE flowrge_transactions
		SET state = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1`,
		txID.String(), lastError,
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: fail transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return flowrge.ErrTransactionNotFound
	}
	return nil
}

// ExpireStaleSubmitting fails submitting claims older than olderThan.
// Mirrors the outbox claim lease: a claim this old means its submitter
// died between claim and confirm, so the record would otherwise stay
// submitting forever and pin the backing nonce account.
func (s *Store) ExpireStaleSubmitting(ctx context.Context, olderThan time.Duration) (int, error) {
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	tag, err := s.pool.Exec(ctx, `
		UPDATE flowrge_transactions
		SET state = 'failed', last_error = $1, updated_at = NOW()
		WHERE state = 'submitting' AND submitted_at < NOW() - $2::interval`,
		durable.LostSubmitterError, interval,
	)
	if err != nil {
		return 0, fmt.Errorf("flowrge/postgres: expire stale submitting: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanTransaction scans a single durable transaction row.
func scanTransaction(row pgx.Row) (*durable.Transaction, error) {
	var (
		tx         durable.Transaction
		idStr      string
		wfIDStr    string
		nonceIDStr string
		stateStr   string
	)
	err := row.Scan(
		&idStr, &wfIDStr, &tx.FlowKey, &nonceIDStr, &tx.Wire, &stateStr,
		&tx.Signature, &tx.LastError, &tx.SubmittedAt, &tx.ConfirmedAt,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.State = durable.State(stateStr)

	tx.ID, err = id.ParseTxID(idStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse transaction id %q: %w", idStr, err)
	}
	tx.WorkflowID, err = id.ParseWorkflowID(wfIDStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse workflow id %q: %w", wfIDStr, err)
	}
	tx.NonceID, err = id.ParseNonceID(nonceIDStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse nonce id %q: %w", nonceIDStr, err)
	}
	return &tx, nil
}
