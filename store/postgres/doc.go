// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED outbox and submission claims, a partial unique
// index enforcing one active nonce per scope, embedded SQL migrations,
// and a transactional run-plus-outbox ingestion write.
package postgres
