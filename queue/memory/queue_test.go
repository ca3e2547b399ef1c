package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/queue"
	"github.com/Pratikkale26/Flowrge/queue/memory"
)

func TestPublishConsumeOrder(t *testing.T) {
	q := memory.New(1)
	runID := id.NewRunID()

	for stage := 0; stage < 3; stage++ {
		if err := q.Publish(context.Background(), queue.StageMessage{RunID: runID, Stage: stage}); err != nil {
			t.Fatalf("publish stage %d: %v", stage, err)
		}
	}

	c := q.Consumer(0)
	for want := 0; want < 3; want++ {
		d := next(t, c)
		if d.Message.Stage != want {
			t.Fatalf("expected stage %d, got %d", want, d.Message.Stage)
		}
		if err := d.Ack(context.Background()); err != nil {
			t.Fatalf("ack stage %d: %v", want, err)
		}
	}
}

func TestUnackedRedelivery(t *testing.T) {
	q := memory.New(1)
	runID := id.NewRunID()

	if err := q.Publish(context.Background(), queue.StageMessage{RunID: runID, Stage: 0}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Consume without acking, then consume again: same message.
	first := next(t, q.Consumer(0))
	second := next(t, q.Consumer(0))
	if first.Message != second.Message {
		t.Fatalf("expected redelivery of %+v, got %+v", first.Message, second.Message)
	}
}

func TestPartitionStability(t *testing.T) {
	runID := id.NewRunID()
	p := queue.Partition(runID, 8)
	for i := 0; i < 10; i++ {
		if got := queue.Partition(runID, 8); got != p {
			t.Fatalf("partition not stable: %d != %d", got, p)
		}
	}
	if p < 0 || p >= 8 {
		t.Fatalf("partition %d out of range", p)
	}
}

func TestSameRunSamePartition(t *testing.T) {
	q := memory.New(4)
	runID := id.NewRunID()

	for stage := 0; stage < 2; stage++ {
		if err := q.Publish(context.Background(), queue.StageMessage{RunID: runID, Stage: stage}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	part := queue.Partition(runID, 4)
	c := q.Consumer(part)
	for want := 0; want < 2; want++ {
		d := next(t, c)
		if d.Message.Stage != want {
			t.Fatalf("expected stage %d on partition %d, got %d", want, part, d.Message.Stage)
		}
		if err := d.Ack(context.Background()); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := queue.StageMessage{RunID: id.NewRunID(), Stage: 2}

	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := queue.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != msg {
		t.Fatalf("round-trip mismatch: %+v != %+v", decoded, msg)
	}

	if _, err := queue.Decode([]byte(`{"stage":1}`)); err == nil {
		t.Fatal("expected error for envelope without run id")
	}
}

func next(t *testing.T, c queue.Consumer) *queue.Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := c.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if d == nil {
		t.Fatal("expected a delivery")
	}
	return d
}
