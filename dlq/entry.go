package dlq

import (
	"time"

	"github.com/Pratikkale26/Flowrge/id"
)

// Entry is a stage delivery that could not be executed and was moved
// aside for inspection or replay.
type Entry struct {
	ID id.DLQID `json:"id"`

	// RunID is the run the delivery belonged to. Nil for payloads too
	// malformed to decode.
	RunID id.RunID `json:"run_id,omitempty"`

	// Stage is the stage index the delivery carried, -1 when unknown.
	Stage int `json:"stage"`

	// Payload is the raw queue message as delivered.
	Payload []byte `json:"payload"`

	// Error is the final error message.
	Error string `json:"error"`

	FailedAt   time.Time  `json:"failed_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
