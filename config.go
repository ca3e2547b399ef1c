package flowrge

import "time"

// Config holds tunables for the pipeline loops.
type Config struct {
	// RelayBatchSize is the maximum number of outbox records claimed per
	// relay poll.
	RelayBatchSize int

	// RelayIdleSleep is how long the relay sleeps when a poll finds no
	// outbox records.
	RelayIdleSleep time.Duration

	// Partitions is the number of queue partitions stage messages are
	// spread over. Messages for one run always land on the same partition.
	Partitions int

	// ConsumerBlock is how long a queue consumer blocks waiting for the
	// next stage message before re-polling.
	ConsumerBlock time.Duration

	// NonceReadAttempts is how many times the orchestrator reads a freshly
	// created nonce account before giving up on chain propagation.
	NonceReadAttempts int

	// NonceReadPause is the pause between nonce account reads.
	NonceReadPause time.Duration

	// ConfirmTimeout bounds how long a submitted transaction is awaited
	// before it is recorded as unconfirmed.
	ConfirmTimeout time.Duration

	// CleanupSchedule is the cron expression for the nonce sweeper.
	CleanupSchedule string

	// CleanupLimit is the maximum number of nonce accounts reclaimed per
	// sweep.
	CleanupLimit int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with the platform defaults.
func DefaultConfig() Config {
	return Config{
		RelayBatchSize:    10,
		RelayIdleSleep:    500 * time.Millisecond,
		Partitions:        8,
		ConsumerBlock:     2 * time.Second,
		NonceReadAttempts: 5,
		NonceReadPause:    200 * time.Millisecond,
		ConfirmTimeout:    60 * time.Second,
		CleanupSchedule:   "@every 60s",
		CleanupLimit:      5,
		ShutdownTimeout:   30 * time.Second,
	}
}
