// Package memory is a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/dlq"
	"github.com/Pratikkale26/Flowrge/durable"
	"github.com/Pratikkale26/Flowrge/handler"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/nonce"
	"github.com/Pratikkale26/Flowrge/outbox"
	"github.com/Pratikkale26/Flowrge/store"
	"github.com/Pratikkale26/Flowrge/workflow"
)

var _ store.Store = (*Store)(nil)

// claimLease is how long an outbox claim stays exclusive before a
// crashed relay's records become claimable again.
const claimLease = 30 * time.Second

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	workflows map[string]*workflow.Workflow
	runs      map[string]*workflow.Run
	records   map[string]*outbox.Record
	claims    map[string]time.Time
	nonces    map[string]*nonce.Account
	txs       map[string]*durable.Transaction
	dlqs      map[string]*dlq.Entry
	conns     map[string]*handler.Connection
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		workflows: make(map[string]*workflow.Workflow),
		runs:      make(map[string]*workflow.Run),
		records:   make(map[string]*outbox.Record),
		claims:    make(map[string]time.Time),
		nonces:    make(map[string]*nonce.Account),
		txs:       make(map[string]*durable.Transaction),
		dlqs:      make(map[string]*dlq.Entry),
		conns:     make(map[string]*handler.Connection),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow store
// ──────────────────────────────────────────────────

func (m *Store) CreateWorkflow(_ context.Context, wf *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID.String()] = copyWorkflow(wf)
	return nil
}

func (m *Store) GetWorkflow(_ context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[workflowID.String()]
	if !ok {
		return nil, flowrge.ErrWorkflowNotFound
	}
	out := copyWorkflow(wf)
	sort.Slice(out.Actions, func(i, j int) bool {
		return out.Actions[i].SortOrder < out.Actions[j].SortOrder
	})
	return out, nil
}

func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRunLocked(run)
}

func (m *Store) createRunLocked(run *workflow.Run) error {
	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return flowrge.ErrRunAlreadyExists
	}
	cp := *run
	m.runs[key] = &cp
	return nil
}

func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID.String()]
	if !ok {
		return nil, flowrge.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := run.ID.String()
	if _, ok := m.runs[key]; !ok {
		return flowrge.ErrRunNotFound
	}
	cp := *run
	m.runs[key] = &cp
	return nil
}

func (m *Store) ListRuns(_ context.Context, workflowID id.WorkflowID, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*workflow.Run
	for _, run := range m.runs {
		if run.WorkflowID != workflowID {
			continue
		}
		if opts.State != "" && run.State != opts.State {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Outbox store
// ──────────────────────────────────────────────────

func (m *Store) CreateOutbox(_ context.Context, rec *outbox.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID.String()] = &cp
	return nil
}

func (m *Store) ClaimOutbox(_ context.Context, limit int) ([]*outbox.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var claimable []*outbox.Record
	for key, rec := range m.records {
		if until, claimed := m.claims[key]; claimed && now.Before(until) {
			continue
		}
		claimable = append(claimable, rec)
	}
	sort.Slice(claimable, func(i, j int) bool {
		return claimable[i].CreatedAt.Before(claimable[j].CreatedAt)
	})
	if limit > 0 && len(claimable) > limit {
		claimable = claimable[:limit]
	}

	out := make([]*outbox.Record, len(claimable))
	for i, rec := range claimable {
		m.claims[rec.ID.String()] = now.Add(claimLease)
		cp := *rec
		out[i] = &cp
	}
	return out, nil
}

func (m *Store) DeleteOutbox(_ context.Context, recordID id.OutboxID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordID.String()
	delete(m.records, key)
	delete(m.claims, key)
	return nil
}

func (m *Store) CountOutbox(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// CreateRunWithOutbox writes the run and its outbox record under one
// lock, the memory equivalent of the ingestion transaction.
func (m *Store) CreateRunWithOutbox(_ context.Context, run *workflow.Run, rec *outbox.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createRunLocked(run); err != nil {
		return err
	}
	cp := *rec
	m.records[rec.ID.String()] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Nonce store
// ──────────────────────────────────────────────────

func (m *Store) CreateNonce(_ context.Context, n *nonce.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.nonces {
		if a.WorkflowID == n.WorkflowID && a.FlowKey == n.FlowKey && a.Status == nonce.StatusActive {
			return flowrge.ErrNonceAlreadyActive
		}
	}
	cp := *n
	m.nonces[n.ID.String()] = &cp
	return nil
}

func (m *Store) GetNonce(_ context.Context, nonceID id.NonceID) (*nonce.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.nonces[nonceID.String()]
	if !ok {
		return nil, flowrge.ErrNonceNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Store) GetActiveNonce(_ context.Context, workflowID id.WorkflowID, flowKey string) (*nonce.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.nonces {
		if a.WorkflowID == workflowID && a.FlowKey == flowKey && a.Status == nonce.StatusActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, flowrge.ErrNonceNotFound
}

func (m *Store) MarkNonceUsed(_ context.Context, nonceID id.NonceID) error {
	return m.setNonceStatus(nonceID, nonce.StatusUsed)
}

func (m *Store) MarkNonceClosed(_ context.Context, nonceID id.NonceID) error {
	return m.setNonceStatus(nonceID, nonce.StatusClosed)
}

func (m *Store) setNonceStatus(nonceID id.NonceID, status nonce.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.nonces[nonceID.String()]
	if !ok {
		return flowrge.ErrNonceNotFound
	}
	a.Status = status
	a.Touch()
	return nil
}

func (m *Store) ListReclaimableNonces(_ context.Context, limit int) ([]*nonce.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := make(map[string]bool)
	for _, tx := range m.txs {
		if tx.State == durable.StatePending || tx.State == durable.StateSubmitting {
			pending[tx.NonceID.String()] = true
		}
	}

	var out []*nonce.Account
	for _, a := range m.nonces {
		if a.Status != nonce.StatusUsed || pending[a.ID.String()] {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Durable transaction store
// ──────────────────────────────────────────────────

func (m *Store) CreateTransaction(_ context.Context, tx *durable.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.txs[tx.ID.String()] = &cp
	return nil
}

func (m *Store) GetTransaction(_ context.Context, txID id.TxID) (*durable.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[txID.String()]
	if !ok {
		return nil, flowrge.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *Store) ClaimOldestPending(_ context.Context, workflowID id.WorkflowID, flowKey string) (*durable.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *durable.Transaction
	for _, tx := range m.txs {
		if tx.WorkflowID != workflowID || tx.FlowKey != flowKey || tx.State != durable.StatePending {
			continue
		}
		if oldest == nil || tx.CreatedAt.Before(oldest.CreatedAt) {
			oldest = tx
		}
	}
	if oldest == nil {
		return nil, flowrge.ErrTransactionNotFound
	}

	oldest.State = durable.StateSubmitting
	now := time.Now().UTC()
	oldest.SubmittedAt = &now
	oldest.Touch()
	cp := *oldest
	return &cp, nil
}

func (m *Store) MarkTransactionConfirmed(_ context.Context, txID id.TxID, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txID.String()]
	if !ok {
		return flowrge.ErrTransactionNotFound
	}
	tx.State = durable.StateConfirmed
	tx.Signature = signature
	now := time.Now().UTC()
	tx.ConfirmedAt = &now
	tx.Touch()
	return nil
}

func (m *Store) MarkTransactionFailed(_ context.Context, txID id.TxID, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txID.String()]
	if !ok {
		return flowrge.ErrTransactionNotFound
	}
	tx.State = durable.StateFailed
	tx.LastError = lastError
	tx.Touch()
	return nil
}

func (m *Store) ExpireStaleSubmitting(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	expired := 0
	for _, tx := range m.txs {
		if tx.State != durable.StateSubmitting || tx.SubmittedAt == nil {
			continue
		}
		if tx.SubmittedAt.After(cutoff) {
			continue
		}
		tx.State = durable.StateFailed
		tx.LastError = durable.LostSubmitterError
		tx.Touch()
		expired++
	}
	return expired, nil
}

// ──────────────────────────────────────────────────
// DLQ store
// ──────────────────────────────────────────────────

func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FailedAt.After(out[j].FailedAt)
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}

func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, flowrge.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return flowrge.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			n++
		}
	}
	return n, nil
}

func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Token store
// ──────────────────────────────────────────────────

func (m *Store) GetConnection(_ context.Context, ownerID, provider string) (*handler.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[ownerID+"/"+provider]
	if !ok {
		return nil, flowrge.ErrConnectionNotFound
	}
	cp := *conn
	return &cp, nil
}

func (m *Store) SaveConnection(_ context.Context, conn *handler.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conn
	m.conns[conn.OwnerID+"/"+conn.Provider] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyWorkflow(wf *workflow.Workflow) *workflow.Workflow {
	cp := *wf
	cp.Actions = make([]workflow.Action, len(wf.Actions))
	copy(cp.Actions, wf.Actions)
	return &cp
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
