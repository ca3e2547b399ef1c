// Package store defines the aggregate persistence interface. Each
// subsystem (workflow, outbox, nonce, durable, dlq, tokens) defines its
// own store interface; the composite Store composes them all. A single
// backend (Postgres or Memory) implements every subsystem, which is
// what lets cross-subsystem queries like "used nonce accounts with no
// pending transaction" and the run-plus-outbox ingestion write stay
// atomic.
package store

import (
	"context"

	"github.com/Pratikkale26/Flowrge/dlq"
	"github.com/Pratikkale26/Flowrge/durable"
	"github.com/Pratikkale26/Flowrge/handler"
	"github.com/Pratikkale26/Flowrge/nonce"
	"github.com/Pratikkale26/Flowrge/outbox"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// Store is the aggregate persistence interface.
type Store interface {
	workflow.Store
	outbox.Store
	nonce.Store
	durable.Store
	dlq.Store
	handler.TokenStore

	// CreateRunWithOutbox persists a run and its trigger outbox record
	// in one atomic write. This is the ingestion boundary: either both
	// exist afterwards or neither does.
	CreateRunWithOutbox(ctx context.Context, run *workflow.Run, rec *outbox.Record) error

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
