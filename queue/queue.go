// Package queue defines the stage-message envelope and the broker contract
// the relay publishes to and the executor consumes from.
//
// Ordering contract: all messages for one run must be consumed by a single
// logical consumer in publish order. Backends achieve this by deriving the
// partition from the run ID, so the same run always lands on the same
// partition. Backends: Redis Streams and Memory.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/Pratikkale26/Flowrge/id"
)

// StageMessage tells the executor which stage of which run to execute next.
// It is ephemeral: everything else is reconstructed from the run and its
// workflow at consume time.
type StageMessage struct {
	RunID id.RunID `json:"runId"`
	Stage int      `json:"stage"`
}

// Encode renders the message as its JSON wire form.
func (m StageMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("queue: encode stage message: %w", err)
	}
	return data, nil
}

// Decode parses the JSON wire form of a stage message.
func Decode(data []byte) (StageMessage, error) {
	var m StageMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return StageMessage{}, fmt.Errorf("queue: decode stage message: %w", err)
	}
	if m.RunID.IsNil() {
		return StageMessage{}, fmt.Errorf("queue: decode stage message: missing run id")
	}
	return m, nil
}

// Partition maps a run ID onto one of n partitions. Stable across
// processes so every publisher and consumer agrees.
func Partition(runID id.RunID, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(runID.String()))
	return int(h.Sum32() % uint32(n)) //nolint:gosec // partition count is small
}

// Publisher sends stage messages to the broker. Publish must not return
// until the broker has acknowledged the message: callers rely on
// publish-then-ack ordering for exactly-once stage advancement.
type Publisher interface {
	Publish(ctx context.Context, msg StageMessage) error
}

// Broker is a backend that can both publish and hand out per-partition
// consumers. The memory and Redis backends implement it.
type Broker interface {
	Publisher

	// Consumer returns a consumer bound to the given partition.
	Consumer(part int) Consumer
}

// Delivery is one consumed stage message plus its acknowledgement token.
// A payload that failed to decode arrives with a zero Message and Raw
// set, so the consumer can dead-letter it instead of wedging the
// partition.
type Delivery struct {
	Message StageMessage

	// Raw is the undecodable payload, set only when decoding failed.
	Raw []byte
	// Ack commits the consumer offset for this delivery. Calling Ack
	// before the next stage has been published forfeits the redelivery
	// guarantee, so the executor always publishes first.
	Ack func(ctx context.Context) error
}

// Consumer receives stage messages for a fixed partition. Next blocks until
// a message arrives, the block timeout elapses (nil delivery), or ctx is
// done. Unacked deliveries are redelivered after a restart.
type Consumer interface {
	// Partition returns the partition index this consumer owns.
	Partition() int

	// Next returns the next delivery, or nil if none arrived within the
	// backend's block window.
	Next(ctx context.Context) (*Delivery, error)

	// Close releases the consumer's broker resources.
	Close() error
}
