package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/nonce"
)

// CreateNonce persists a new account. The partial unique index on
// (workflow_id, flow_key) WHERE status = 'active' turns a concurrent
// double-create into a unique violation, which surfaces as
// flowrge.ErrNonceAlreadyActive.
func (s *Store) CreateNonce(ctx context.Context, n *nonce.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO flowrge_nonces (
			id, workflow_id, flow_key, public_key, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID.String(), n.WorkflowID.String(), n.FlowKey, n.PublicKey,
		string(n.Status), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return flowrge.ErrNonceAlreadyActive
		}
		return fmt.Errorf("flowrge/postgres: create nonce: %w", err)
	}
	return nil
}

// GetNonce retrieves an account by ID.
func (s *Store) GetNonce(ctx context.Context, nonceID id.NonceID) (*nonce.Account, error) {
	acct, err := scanNonce(s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, flow_key, public_key, status, created_at, updated_at
		FROM flowrge_nonces
		WHERE id = $1`,
		nonceID.String(),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, flowrge.ErrNonceNotFound
		}
		return nil, fmt.Errorf("flowrge/postgres: get nonce: %w", err)
	}
	return acct, nil
}

// GetActiveNonce returns the scope's active account.
func (s *Store) GetActiveNonce(ctx context.Context, workflowID id.WorkflowID, flowKey string) (*nonce.Account, error) {
	acct, err := scanNonce(s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, flow_key, public_key, status, created_at, updated_at
		FROM flowrge_nonces
		WHERE workflow_id = $1 AND flow_key = $2 AND status = 'active'`,
		workflowID.String(), flowKey,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, flowrge.ErrNonceNotFound
		}
		return nil, fmt.Errorf("flowrge/postgres: get active nonce: %w", err)
	}
	return acct, nil
}

// MarkNonceUsed flips an account from active to used.
func (s *Store) MarkNonceUsed(ctx context.Context, nonceID id.NonceID) error {
	return s.setNonceStatus(ctx, nonceID, nonce.StatusUsed)
}

// MarkNonceClosed flips an account to closed.
func (s *Store) MarkNonceClosed(ctx context.Context, nonceID id.NonceID) error {
	return s.setNonceStatus(ctx, nonceID, nonce.StatusClosed)
}

func (s *Store) setNonceStatus(ctx context.Context, nonceID id.NonceID, status nonce.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE flowrge_nonces SET status = $2, updated_at = NOW() WHERE id = $1`,
		nonceID.String(), string(status),
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: set nonce status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return flowrge.ErrNonceNotFound
	}
	return nil
}

// ListReclaimableNonces returns used accounts that no pending or
// submitting durable transaction references, oldest first.
func (s *Store) ListReclaimableNonces(ctx context.Context, limit int) ([]*nonce.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.id, n.workflow_id, n.flow_key, n.public_key, n.status, n.created_at, n.updated_at
		FROM flowrge_nonces n
		WHERE n.status = 'used'
		  AND NOT EXISTS (
			SELECT 1 FROM flowrge_transactions t
			WHERE t.nonce_id = n.id
			  AND t.state IN ('pending', 'submitting')
		  )
		ORDER BY n.created_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: list reclaimable nonces: %w", err)
	}
	defer rows.Close()

	var accounts []*nonce.Account
	for rows.Next() {
		acct, err := scanNonce(rows)
		if err != nil {
			return nil, fmt.Errorf("flowrge/postgres: scan nonce row: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowrge/postgres: iterate nonce rows: %w", err)
	}
	return accounts, nil
}

// scanNonce scans a single nonce account row.
func scanNonce(row pgx.Row) (*nonce.Account, error) {
	var (
		acct      nonce.Account
		idStr     string
		wfIDStr   string
		statusStr string
	)
	err := row.Scan(
		&idStr, &wfIDStr, &acct.FlowKey, &acct.PublicKey, &statusStr,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	acct.Status = nonce.Status(statusStr)

	acct.ID, err = id.ParseNonceID(idStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse nonce id %q: %w", idStr, err)
	}
	acct.WorkflowID, err = id.ParseWorkflowID(wfIDStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse workflow id %q: %w", wfIDStr, err)
	}
	return &acct, nil
}
