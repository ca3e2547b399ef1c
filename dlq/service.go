package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/queue"
)

// Service provides high-level dead letter operations over a Store.
type Service struct {
	store     Store
	publisher queue.Publisher
}

// NewService creates a dead letter service. The publisher is used for
// replays and may be nil if replay is not needed.
func NewService(store Store, publisher queue.Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Push records a decoded stage delivery that failed terminally.
func (s *Service) Push(ctx context.Context, msg queue.StageMessage, raw []byte, cause error) error {
	now := time.Now().UTC()
	return s.store.PushDLQ(ctx, &Entry{
		ID:        id.NewDLQID(),
		RunID:     msg.RunID,
		Stage:     msg.Stage,
		Payload:   raw,
		Error:     cause.Error(),
		FailedAt:  now,
		CreatedAt: now,
	})
}

// PushRaw records a delivery whose payload could not be decoded at all.
func (s *Service) PushRaw(ctx context.Context, raw []byte, cause error) error {
	now := time.Now().UTC()
	return s.store.PushDLQ(ctx, &Entry{
		ID:        id.NewDLQID(),
		Stage:     -1,
		Payload:   raw,
		Error:     cause.Error(),
		FailedAt:  now,
		CreatedAt: now,
	})
}

// Replay re-publishes a dead letter entry's stage message and marks the
// entry as replayed. Malformed entries cannot be replayed.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) error {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.RunID.IsNil() || entry.Stage < 0 {
		return fmt.Errorf("flowrge/dlq: entry %s is malformed and cannot be replayed", entryID)
	}
	if s.publisher == nil {
		return fmt.Errorf("flowrge/dlq: no publisher configured for replay")
	}
	if err := s.publisher.Publish(ctx, queue.StageMessage{RunID: entry.RunID, Stage: entry.Stage}); err != nil {
		return fmt.Errorf("flowrge/dlq: replay entry %s: %w", entryID, err)
	}
	return s.store.ReplayDLQ(ctx, entryID)
}

// DLQStore returns the underlying store for direct list, get, purge,
// and count access.
func (s *Service) DLQStore() Store {
	return s.store
}
