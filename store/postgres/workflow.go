package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/outbox"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// CreateWorkflow persists a workflow together with its actions in one
// transaction.
func (s *Store) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: begin create workflow: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO flowrge_workflows (id, name, owner_id, trigger_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		wf.ID.String(), wf.Name, wf.OwnerID, wf.TriggerType, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: create workflow: %w", err)
	}

	for _, act := range wf.Actions {
		_, err = tx.Exec(ctx, `
			INSERT INTO flowrge_actions (id, workflow_id, type, sort_order, metadata)
			VALUES ($1, $2, $3, $4, $5)`,
			act.ID.String(), wf.ID.String(), act.Type, act.SortOrder, act.Metadata,
		)
		if err != nil {
			return fmt.Errorf("flowrge/postgres: create action: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("flowrge/postgres: commit create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow with its actions sorted by ascending
// sort order.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	var (
		wf    workflow.Workflow
		idStr string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, owner_id, trigger_type, created_at, updated_at
		FROM flowrge_workflows
		WHERE id = $1`,
		workflowID.String(),
	).Scan(&idStr, &wf.Name, &wf.OwnerID, &wf.TriggerType, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, flowrge.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("flowrge/postgres: get workflow: %w", err)
	}
	wf.ID, err = id.ParseWorkflowID(idStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse workflow id %q: %w", idStr, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, type, sort_order, metadata
		FROM flowrge_actions
		WHERE workflow_id = $1
		ORDER BY sort_order ASC`,
		workflowID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: list actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			act      workflow.Action
			actIDStr string
		)
		if err := rows.Scan(&actIDStr, &act.Type, &act.SortOrder, &act.Metadata); err != nil {
			return nil, fmt.Errorf("flowrge/postgres: scan action row: %w", err)
		}
		act.ID, err = id.ParseActionID(actIDStr)
		if err != nil {
			return nil, fmt.Errorf("flowrge/postgres: parse action id %q: %w", actIDStr, err)
		}
		act.WorkflowID = wf.ID
		wf.Actions = append(wf.Actions, act)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowrge/postgres: iterate action rows: %w", err)
	}

	return &wf, nil
}

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	return s.createRun(ctx, s.pool, run)
}

func (s *Store) createRun(ctx context.Context, q execer, run *workflow.Run) error {
	_, err := q.Exec(ctx, `
		INSERT INTO flowrge_runs (
			id, workflow_id, payload, state, stage, error,
			started_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID.String(), run.WorkflowID.String(), run.Payload, string(run.State),
		run.Stage, run.Error, run.StartedAt, run.CompletedAt,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return flowrge.ErrRunAlreadyExists
		}
		return fmt.Errorf("flowrge/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, payload, state, stage, error,
		       started_at, completed_at, created_at, updated_at
		FROM flowrge_runs
		WHERE id = $1`,
		runID.String(),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, flowrge.ErrRunNotFound
		}
		return nil, fmt.Errorf("flowrge/postgres: get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE flowrge_runs SET
			state = $2, stage = $3, error = $4,
			started_at = $5, completed_at = $6, updated_at = NOW()
		WHERE id = $1`,
		run.ID.String(), string(run.State), run.Stage, run.Error,
		run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return flowrge.ErrRunNotFound
	}
	return nil
}

// ListRuns returns runs for a workflow, newest first.
func (s *Store) ListRuns(ctx context.Context, workflowID id.WorkflowID, opts workflow.ListOpts) ([]*workflow.Run, error) {
	query := `
		SELECT id, workflow_id, payload, state, stage, error,
		       started_at, completed_at, created_at, updated_at
		FROM flowrge_runs
		WHERE workflow_id = $1`
	args := []any{workflowID.String()}
	argIdx := 2

	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}
	query += " ORDER BY created_at DESC"
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
		return nil, fmt.Errorf("flowrge/postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("flowrge/postgres: scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowrge/postgres: iterate run rows: %w", err)
	}
	return runs, nil
}

// CreateRunWithOutbox persists a run and its trigger outbox record in a
// single transaction. This is the ingestion boundary: either both rows
// land or neither does.
func (s *Store) CreateRunWithOutbox(ctx context.Context, run *workflow.Run, rec *outbox.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("flowrge/postgres: begin ingestion: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.createRun(ctx, tx, run); err != nil {
		return err
	}
	if err := s.createOutbox(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("flowrge/postgres: commit ingestion: %w", err)
	}
	return nil
}

// scanRun scans a single run row.
func scanRun(row pgx.Row) (*workflow.Run, error) {
	var (
		run      workflow.Run
		idStr    string
		wfIDStr  string
		stateStr string
	)
	err := row.Scan(
		&idStr, &wfIDStr, &run.Payload, &stateStr, &run.Stage, &run.Error,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.State = workflow.RunState(stateStr)

	run.ID, err = id.ParseRunID(idStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse run id %q: %w", idStr, err)
	}
	run.WorkflowID, err = id.ParseWorkflowID(wfIDStr)
	if err != nil {
		return nil, fmt.Errorf("flowrge/postgres: parse workflow id %q: %w", wfIDStr, err)
	}
	return &run, nil
}
