package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/dlq"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/queue"
	queuememory "github.com/Pratikkale26/Flowrge/queue/memory"
)

type stubStore struct {
	entries map[id.DLQID]*dlq.Entry
}

func newStubStore() *stubStore {
	return &stubStore{entries: make(map[id.DLQID]*dlq.Entry)}
}

func (s *stubStore) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	s.entries[entry.ID] = entry
	return nil
}

func (s *stubStore) ListDLQ(_ context.Context, _ dlq.ListOpts) ([]*dlq.Entry, error) {
	out := make([]*dlq.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *stubStore) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	e, ok := s.entries[entryID]
	if !ok {
		return nil, flowrge.ErrDLQNotFound
	}
	return e, nil
}

func (s *stubStore) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	e, ok := s.entries[entryID]
	if !ok {
		return flowrge.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

func (s *stubStore) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for eid, e := range s.entries {
		if e.FailedAt.Before(before) {
			delete(s.entries, eid)
			n++
		}
	}
	return n, nil
}

func (s *stubStore) CountDLQ(_ context.Context) (int64, error) {
	return int64(len(s.entries)), nil
}

func TestPushRecordsDeliveryContext(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	svc := dlq.NewService(store, nil)

	runID := id.NewRunID()
	msg := queue.StageMessage{RunID: runID, Stage: 2}
	raw, _ := msg.Encode()

	if err := svc.Push(ctx, msg, raw, errors.New("handler exploded")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, _ := store.ListDLQ(ctx, dlq.ListOpts{})
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.RunID != runID || e.Stage != 2 {
		t.Fatalf("entry run/stage = %s/%d, want %s/2", e.RunID, e.Stage, runID)
	}
	if e.Error != "handler exploded" {
		t.Fatalf("entry error = %q", e.Error)
	}
}

func TestPushRawMarksStageUnknown(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	svc := dlq.NewService(store, nil)

	if err := svc.PushRaw(ctx, []byte("not json"), errors.New("decode failed")); err != nil {
		t.Fatalf("PushRaw: %v", err)
	}
	entries, _ := store.ListDLQ(ctx, dlq.ListOpts{})
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Stage != -1 {
		t.Fatalf("stage = %d, want -1", entries[0].Stage)
	}
	if !entries[0].RunID.IsNil() {
		t.Fatal("malformed entry should have no run id")
	}
}

func TestReplayRepublishesAndMarks(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	q := queuememory.New(4)
	svc := dlq.NewService(store, q)

	runID := id.NewRunID()
	msg := queue.StageMessage{RunID: runID, Stage: 1}
	raw, _ := msg.Encode()
	if err := svc.Push(ctx, msg, raw, errors.New("boom")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	entries, _ := store.ListDLQ(ctx, dlq.ListOpts{})
	entryID := entries[0].ID

	if err := svc.Replay(ctx, entryID); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	c := q.Consumer(queue.Partition(runID, 4))
	defer c.Close()
	d, err := c.Next(ctx)
	if err != nil || d == nil {
		t.Fatalf("Next: delivery=%v err=%v", d, err)
	}
	if d.Message.RunID != runID || d.Message.Stage != 1 {
		t.Fatalf("replayed message = %+v", d.Message)
	}

	e, _ := store.GetDLQ(ctx, entryID)
	if e.ReplayedAt == nil {
		t.Fatal("ReplayedAt not set after replay")
	}
}

func TestReplayRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	svc := dlq.NewService(store, queuememory.New(4))

	if err := svc.PushRaw(ctx, []byte("junk"), errors.New("bad")); err != nil {
		t.Fatalf("PushRaw: %v", err)
	}
	entries, _ := store.ListDLQ(ctx, dlq.ListOpts{})
	if err := svc.Replay(ctx, entries[0].ID); err == nil {
		t.Fatal("expected replay of malformed entry to fail")
	}
}
