// Package action parses opaque action metadata into a closed set of typed
// payloads and defines the handler contract the executor dispatches to.
//
// Metadata is parsed at the boundary, the moment a stage message names an
// action, so unknown type tags and malformed payloads fail before any
// handler runs.
package action

import (
	"encoding/json"
	"fmt"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// Type tags for the supported actions. The tags match the platform's
// available-action catalog rows.
const (
	TypeEmail      = "email"
	TypeSol        = "sol"
	TypeSocialPost = "x-post"
)

// Payload is the closed union of parsed action payloads.
// Only types in this package implement it.
type Payload interface {
	payload()
}

// Email sends a plain-text email.
type Email struct {
	To      string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (*Email) payload() {}

// SolTransfer submits the workflow's pending durable SOL transfer.
type SolTransfer struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"amount"`
}

func (*SolTransfer) payload() {}

// SocialPost publishes a post to the owner's connected X account.
type SocialPost struct {
	Content   string `json:"content"`
	Connected bool   `json:"connected"`
}

func (*SocialPost) payload() {}

// Parse decodes an action's metadata into its typed payload by the action's
// type tag. Unknown tags and malformed metadata are fatal: the workflow
// references an action this pipeline cannot execute.
func Parse(a *workflow.Action) (Payload, error) {
	switch a.Type {
	case TypeEmail:
		var p Email
		if err := json.Unmarshal(a.Metadata, &p); err != nil {
			return nil, fmt.Errorf("action: parse email metadata for %s: %w", a.ID, err)
		}
		return &p, nil

	case TypeSol:
		var p SolTransfer
		if err := json.Unmarshal(a.Metadata, &p); err != nil {
			return nil, fmt.Errorf("action: parse sol metadata for %s: %w", a.ID, err)
		}
		return &p, nil

	case TypeSocialPost:
		var p SocialPost
		if err := json.Unmarshal(a.Metadata, &p); err != nil {
			return nil, fmt.Errorf("action: parse x-post metadata for %s: %w", a.ID, err)
		}
		return &p, nil

	default:
		return nil, fmt.Errorf("%w: %q", flowrge.ErrUnknownActionType, a.Type)
	}
}
