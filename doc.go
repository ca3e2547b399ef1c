// Package flowrge provides the execution pipeline behind the Flowrge
// automation platform: a transactional-outbox relay, a staged action
// executor, and a durable-nonce transaction orchestrator for Solana.
//
// A trigger firing is recorded as a workflow run together with an outbox
// record in one database transaction. The relay publishes the run onto a
// partitioned queue; the executor walks the workflow's ordered actions one
// stage message at a time, dispatching each action to its handler (email,
// social post, SOL transfer). The crypto handler submits a previously built
// and user-signed durable-nonce transaction, whose on-chain nonce account
// lifecycle is owned by the nonce manager.
//
// # Architecture
//
// Flowrge follows a composable store pattern: each subsystem (workflow,
// outbox, nonce, durable, dlq) defines its own store interface and a single
// backend implements all of them. Backends: Postgres and Memory.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package flowrge
