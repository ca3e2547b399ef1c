// Package memory provides an in-process queue backend. Intended for unit
// testing and development. It preserves the partitioning and ack semantics
// of the Redis Streams backend: unacked deliveries are redelivered to the
// next consumer of the partition.
package memory

import (
	"context"
	"sync"

	"github.com/Pratikkale26/Flowrge/queue"
)

// Queue is an in-memory partitioned stage-message broker.
// Safe for concurrent use.
type Queue struct {
	mu         sync.Mutex
	partitions []*partition
}

type partition struct {
	mu      sync.Mutex
	pending []queue.StageMessage // delivered but not acked, in order, ahead of undelivered
	backlog []queue.StageMessage
	wake    chan struct{}
}

// New creates a memory queue with n partitions.
func New(n int) *Queue {
	if n < 1 {
		n = 1
	}
	parts := make([]*partition, n)
	for i := range parts {
		parts[i] = &partition{wake: make(chan struct{}, 1)}
	}
	return &Queue{partitions: parts}
}

// Partitions returns the partition count.
func (q *Queue) Partitions() int { return len(q.partitions) }

// Publish appends the message to its run's partition.
func (q *Queue) Publish(_ context.Context, msg queue.StageMessage) error {
	p := q.partitions[queue.Partition(msg.RunID, len(q.partitions))]

	p.mu.Lock()
	p.backlog = append(p.backlog, msg)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Consumer returns a consumer bound to the given partition.
func (q *Queue) Consumer(part int) queue.Consumer {
	return &consumer{q: q, part: part}
}

type consumer struct {
	q    *Queue
	part int
}

func (c *consumer) Partition() int { return c.part }

// Next returns the oldest unacked or undelivered message of the partition.
// A message stays at the head until acked, so redelivery preserves order.
func (c *consumer) Next(ctx context.Context) (*queue.Delivery, error) {
	p := c.q.partitions[c.part]

	for {
		p.mu.Lock()
		if len(p.pending) > 0 {
			msg := p.pending[0]
			p.mu.Unlock()
			return c.delivery(p, msg), nil
		}
		if len(p.backlog) > 0 {
			msg := p.backlog[0]
			p.backlog = p.backlog[1:]
			p.pending = append(p.pending, msg)
			p.mu.Unlock()
			return c.delivery(p, msg), nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.wake:
		}
	}
}

func (c *consumer) delivery(p *partition, msg queue.StageMessage) *queue.Delivery {
	return &queue.Delivery{
		Message: msg,
		Ack: func(_ context.Context) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i := range p.pending {
				if p.pending[i] == msg {
					p.pending = append(p.pending[:i], p.pending[i+1:]...)
					break
				}
			}
			return nil
		},
	}
}

func (c *consumer) Close() error { return nil }
