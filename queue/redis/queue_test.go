package redis_test

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/queue"
	redisq "github.com/Pratikkale26/Flowrge/queue/redis"
)

// unreachableClient returns a client whose commands fail immediately, so
// error paths are testable without a server.
func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
}

func TestQueueSatisfiesBroker(t *testing.T) {
	var b queue.Broker = redisq.New(unreachableClient(), 4)
	if c := b.Consumer(3); c.Partition() != 3 {
		t.Fatalf("partition = %d, want 3", c.Partition())
	}
}

func TestPartitionCountFloorsAtOne(t *testing.T) {
	q := redisq.New(unreachableClient(), 0)
	if got := q.Partitions(); got != 1 {
		t.Fatalf("partitions = %d, want 1", got)
	}
}

func TestPublishSurfacesClientError(t *testing.T) {
	q := redisq.New(unreachableClient(), 2)
	err := q.Publish(context.Background(), queue.StageMessage{RunID: id.NewRunID(), Stage: 0})
	if err == nil {
		t.Fatal("expected publish to fail without a server")
	}
}

func TestNextSurfacesGroupCreationError(t *testing.T) {
	q := redisq.New(unreachableClient(), 2, redisq.WithConsumerName("worker"))
	c := q.Consumer(0)
	if _, err := c.Next(context.Background()); err == nil {
		t.Fatal("expected group creation to fail without a server")
	}
}
