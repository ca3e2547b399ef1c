package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Pratikkale26/Flowrge/queue"
)

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithBatchSize sets how many records one poll claims.
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) { r.batchSize = n }
}

// WithIdleSleep sets how long the relay sleeps when a poll finds nothing.
func WithIdleSleep(d time.Duration) RelayOption {
	return func(r *Relay) { r.idleSleep = d }
}

// Relay polls the outbox table and publishes one stage-0 message per
// record, keyed by run ID. It is the sole deleter of outbox records.
type Relay struct {
	store     Store
	publisher queue.Publisher
	logger    *slog.Logger

	batchSize int
	idleSleep time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRelay creates a relay over the given store and publisher.
func NewRelay(store Store, publisher queue.Publisher, logger *slog.Logger, opts ...RelayOption) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger,
		batchSize: 10,
		idleSleep: 500 * time.Millisecond,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the relay loop. It returns immediately.
func (r *Relay) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	r.logger.Info("outbox relay starting",
		slog.Int("batch_size", r.batchSize),
		slog.Duration("idle_sleep", r.idleSleep),
	)

	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop signals the loop to stop and waits for the in-flight poll to finish.
func (r *Relay) Stop(_ context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("outbox relay stopped")
	return nil
}

func (r *Relay) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		published, err := r.PollAndPublish(context.Background())
		if err != nil {
			r.logger.Error("outbox poll failed", slog.String("error", err.Error()))
			r.sleep()
			continue
		}
		if published == 0 {
			r.sleep()
		}
	}
}

// PollAndPublish claims one batch, publishes each record's stage-0 message,
// and deletes records whose publish was acknowledged. Returns how many
// records were published and deleted. Publish failures leave the remaining
// records untouched for the next poll.
func (r *Relay) PollAndPublish(ctx context.Context) (int, error) {
	records, err := r.store.ClaimOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	published := 0
	for _, rec := range records {
		msg := queue.StageMessage{RunID: rec.RunID, Stage: 0}
		if err := r.publisher.Publish(ctx, msg); err != nil {
			// Leave this record and the rest of the batch for the next
			// poll. Delete strictly follows the broker ack.
			r.logger.Error("stage publish failed, record retained",
				slog.String("run_id", rec.RunID.String()),
				slog.String("record_id", rec.ID.String()),
				slog.String("error", err.Error()),
			)
			return published, nil
		}

		if err := r.store.DeleteOutbox(ctx, rec.ID); err != nil {
			// The message is out but the record survived: the next poll
			// republishes and the executor sees a duplicate stage-0.
			// Acceptable under at-least-once; the run state machine
			// dedupes.
			r.logger.Warn("outbox delete failed after publish",
				slog.String("record_id", rec.ID.String()),
				slog.String("error", err.Error()),
			)
			return published, err
		}

		published++
		r.logger.Debug("run published",
			slog.String("run_id", rec.RunID.String()),
			slog.String("record_id", rec.ID.String()),
		)
	}

	return published, nil
}

func (r *Relay) sleep() {
	select {
	case <-r.stopCh:
	case <-time.After(r.idleSleep):
	}
}
