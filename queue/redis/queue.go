// Package redis implements the stage-message broker on Redis Streams.
//
// Each partition is one stream ("flowrge:stages:<n>") with a single
// consumer group. XREADGROUP with ">" delivers new messages; a consumer
// that restarts first drains its pending entries (delivered but unacked),
// which is what makes the executor's publish-then-ack discipline crash
// safe. Partition = hash(runID) % partitions, so one run's stages are
// totally ordered.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	q := redisq.New(client, 8)
//	c := q.Consumer(0)
package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Pratikkale26/Flowrge/queue"
)

const (
	streamPrefix = "flowrge:stages:"
	group        = "flowrge-executor"
	valueField   = "msg"
)

// Option configures the Queue.
type Option func(*Queue)

// WithBlock sets how long a consumer blocks per XREADGROUP call.
func WithBlock(d time.Duration) Option {
	return func(q *Queue) { q.block = d }
}

// WithConsumerName overrides the name this process's consumers register
// with on the stream groups. Defaults to the hostname, so two processes
// on different machines never shadow each other's pending entries.
func WithConsumerName(name string) Option {
	return func(q *Queue) { q.name = name }
}

// Queue is a Redis Streams implementation of the stage-message broker.
type Queue struct {
	client     goredis.Cmdable
	partitions int
	block      time.Duration
	name       string
}

var _ queue.Broker = (*Queue)(nil)

// New creates a Redis Streams queue spread over the given partition count.
// The caller owns the Redis client lifecycle.
func New(client goredis.Cmdable, partitions int, opts ...Option) *Queue {
	if partitions < 1 {
		partitions = 1
	}
	q := &Queue{
		client:     client,
		partitions: partitions,
		block:      2 * time.Second,
		name:       defaultConsumerName(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "flowrge"
	}
	return host
}

// Partitions returns the partition count.
func (q *Queue) Partitions() int { return q.partitions }

func streamKey(part int) string {
	return fmt.Sprintf("%s%d", streamPrefix, part)
}

// Publish appends the message to its run's partition stream. XADD returns
// only after Redis has appended the entry, which is the broker ack the
// relay and executor rely on.
func (q *Queue) Publish(ctx context.Context, msg queue.StageMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	part := queue.Partition(msg.RunID, q.partitions)
	err = q.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey(part),
		Values: map[string]any{valueField: data},
	}).Err()
	if err != nil {
		return fmt.Errorf("flowrge/redisq: publish to partition %d: %w", part, err)
	}
	return nil
}

// Consumer binds a consumer to one partition. The consumer registers as
// "<name>-<part>" and creates the stream's consumer group on first read.
func (q *Queue) Consumer(part int) queue.Consumer {
	return &consumer{
		q:          q,
		part:       part,
		name:       fmt.Sprintf("%s-%d", q.name, part),
		recovering: true,
	}
}

func isBusyGroup(err error) bool {
	return err != nil && goredis.HasErrorPrefix(err, "BUSYGROUP")
}

type consumer struct {
	q    *Queue
	part int
	name string
	// recovering drains this consumer's pending entries (id "0") before
	// switching to new deliveries (id ">").
	recovering bool
	// grouped is set once the stream's consumer group exists.
	grouped bool
}

func (c *consumer) Partition() int { return c.part }

// ensureGroup creates the stream and its consumer group on first use.
// MKSTREAM creates the stream if it does not exist yet; BUSYGROUP means
// another consumer already created the group.
func (c *consumer) ensureGroup(ctx context.Context) error {
	if c.grouped {
		return nil
	}
	err := c.q.client.XGroupCreateMkStream(ctx, streamKey(c.part), group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("flowrge/redisq: create group for partition %d: %w", c.part, err)
	}
	c.grouped = true
	return nil
}

// Next returns the next delivery for the partition, or nil after the block
// window elapses with no message.
func (c *consumer) Next(ctx context.Context) (*queue.Delivery, error) {
	if err := c.ensureGroup(ctx); err != nil {
		return nil, err
	}
	start := ">"
	block := c.q.block
	if c.recovering {
		start = "0"
		block = 0
	}

	streams, err := c.q.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: c.name,
		Streams:  []string{streamKey(c.part), start},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		if c.recovering {
			c.recovering = false
			return c.Next(ctx)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("flowrge/redisq: read partition %d: %w", c.part, err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		// An empty reply on id "0" means the pending list is drained.
		if c.recovering {
			c.recovering = false
			return c.Next(ctx)
		}
		return nil, nil
	}

	entry := streams[0].Messages[0]
	raw, ok := entry.Values[valueField].(string)
	if !ok {
		return nil, fmt.Errorf("flowrge/redisq: partition %d entry %s has no %q field", c.part, entry.ID, valueField)
	}

	entryID := entry.ID
	d := &queue.Delivery{
		Ack: func(ctx context.Context) error {
			if err := c.q.client.XAck(ctx, streamKey(c.part), group, entryID).Err(); err != nil {
				return fmt.Errorf("flowrge/redisq: ack %s on partition %d: %w", entryID, c.part, err)
			}
			return nil
		},
	}
	msg, err := queue.Decode([]byte(raw))
	if err != nil {
		// Hand the poison payload to the consumer for dead-lettering
		// rather than wedging the partition on it.
		d.Raw = []byte(raw)
		return d, nil
	}
	d.Message = msg
	return d, nil
}

func (c *consumer) Close() error { return nil }
