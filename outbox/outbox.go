// Package outbox implements the transactional-outbox relay.
//
// Trigger ingestion writes a run and an outbox Record in one database
// transaction. The Relay is the only component that deletes records: it
// claims a batch, publishes stage-0 messages, and deletes each record only
// after the broker acknowledged its message. A record that fails to publish
// stays for the next poll, giving at-least-once delivery.
package outbox

import (
	"context"
	"time"

	"github.com/Pratikkale26/Flowrge/id"
)

// Record is one outbox row pointing at a run awaiting publication.
// A run has at most one undeleted record at a time.
type Record struct {
	ID        id.OutboxID `json:"id"`
	RunID     id.RunID    `json:"run_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewRecord creates a record for the given run.
func NewRecord(runID id.RunID) *Record {
	return &Record{
		ID:        id.NewOutboxID(),
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}
}

// Store defines the persistence contract for outbox records.
type Store interface {
	// CreateOutbox persists a record. Ingestion calls this inside the same
	// transaction that creates the run; see the engine's CreateRun.
	CreateOutbox(ctx context.Context, rec *Record) error

	// ClaimOutbox claims up to limit oldest records for exclusive
	// publication by this caller and returns them oldest first. Claimed
	// records are invisible to concurrent claimers until released by
	// DeleteOutbox or the claim lease expires (backend-defined), so two
	// relay instances never double-publish.
	ClaimOutbox(ctx context.Context, limit int) ([]*Record, error)

	// DeleteOutbox removes a record after its message was acknowledged.
	DeleteOutbox(ctx context.Context, recordID id.OutboxID) error

	// CountOutbox returns the number of undeleted records.
	CountOutbox(ctx context.Context) (int64, error)
}
