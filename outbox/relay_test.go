package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/outbox"
	"github.com/Pratikkale26/Flowrge/queue"
	memqueue "github.com/Pratikkale26/Flowrge/queue/memory"
	memstore "github.com/Pratikkale26/Flowrge/store/memory"
)

// failingPublisher fails the first n publishes, then delegates.
type failingPublisher struct {
	inner queue.Publisher
	fail  int
	calls int
}

func (p *failingPublisher) Publish(ctx context.Context, msg queue.StageMessage) error {
	p.calls++
	if p.calls <= p.fail {
		return errors.New("broker unavailable")
	}
	return p.inner.Publish(ctx, msg)
}

func drain(t *testing.T, q *memqueue.Queue, part int) []queue.StageMessage {
	t.Helper()
	c := q.Consumer(part)
	defer c.Close()

	var out []queue.StageMessage
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		d, err := c.Next(ctx)
		cancel()
		if err != nil {
			return out
		}
		out = append(out, d.Message)
		if err := d.Ack(context.Background()); err != nil {
			t.Fatalf("Ack: %v", err)
		}
	}
}

func TestPollPublishesStageZeroAndDeletes(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	q := memqueue.New(1)
	ctx := context.Background()

	runIDs := make(map[id.RunID]bool)
	for i := 0; i < 3; i++ {
		rec := outbox.NewRecord(id.NewRunID())
		runIDs[rec.RunID] = true
		if err := store.CreateOutbox(ctx, rec); err != nil {
			t.Fatalf("CreateOutbox: %v", err)
		}
	}

	relay := outbox.NewRelay(store, q, nil, outbox.WithBatchSize(10))
	published, err := relay.PollAndPublish(ctx)
	if err != nil {
		t.Fatalf("PollAndPublish: %v", err)
	}
	if published != 3 {
		t.Fatalf("published = %d, want 3", published)
	}

	if n, _ := store.CountOutbox(ctx); n != 0 {
		t.Fatalf("CountOutbox = %d, want 0 after publish", n)
	}
	msgs := drain(t, q, 0)
	if len(msgs) != 3 {
		t.Fatalf("broker messages = %d, want 3", len(msgs))
	}
	for _, msg := range msgs {
		if msg.Stage != 0 {
			t.Fatalf("published stage = %d, want 0", msg.Stage)
		}
		if !runIDs[msg.RunID] {
			t.Fatalf("published unknown run %s", msg.RunID)
		}
	}
}

func TestPublishFailureRetainsRecord(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	q := memqueue.New(1)
	ctx := context.Background()

	if err := store.CreateOutbox(ctx, outbox.NewRecord(id.NewRunID())); err != nil {
		t.Fatalf("CreateOutbox: %v", err)
	}

	pub := &failingPublisher{inner: q, fail: 1}
	relay := outbox.NewRelay(store, pub, nil)

	published, err := relay.PollAndPublish(ctx)
	if err != nil {
		t.Fatalf("PollAndPublish: %v", err)
	}
	if published != 0 {
		t.Fatalf("published = %d, want 0 on broker failure", published)
	}
	if n, _ := store.CountOutbox(ctx); n != 1 {
		t.Fatalf("CountOutbox = %d, want 1 (record must survive a failed publish)", n)
	}
	if msgs := drain(t, q, 0); len(msgs) != 0 {
		t.Fatalf("broker messages = %d, want 0", len(msgs))
	}
}

func TestEmptyPollPublishesNothing(t *testing.T) {
	t.Parallel()
	relay := outbox.NewRelay(memstore.New(), memqueue.New(1), nil)

	published, err := relay.PollAndPublish(context.Background())
	if err != nil {
		t.Fatalf("PollAndPublish: %v", err)
	}
	if published != 0 {
		t.Fatalf("published = %d, want 0", published)
	}
}

func TestStartStopDrainsBacklog(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	q := memqueue.New(1)
	ctx := context.Background()

	if err := store.CreateOutbox(ctx, outbox.NewRecord(id.NewRunID())); err != nil {
		t.Fatalf("CreateOutbox: %v", err)
	}

	relay := outbox.NewRelay(store, q, nil, outbox.WithIdleSleep(5*time.Millisecond))
	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Starting twice is a no-op.
	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start (second): %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if n, _ := store.CountOutbox(ctx); n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("relay did not drain the outbox before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := relay.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if msgs := drain(t, q, 0); len(msgs) != 1 {
		t.Fatalf("broker messages = %d, want 1", len(msgs))
	}
}
