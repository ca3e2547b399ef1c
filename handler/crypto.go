package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Pratikkale26/Flowrge/action"
	"github.com/Pratikkale26/Flowrge/id"
)

// Submitter is the durable orchestrator surface the crypto handler
// needs. durable.Orchestrator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, runID id.RunID, workflowID id.WorkflowID, flowKey string) (bool, error)
}

// CryptoHandler executes transfer stages by submitting the scope's
// pre-signed durable transaction. It never builds or signs anything
// itself; a stage with nothing pending is a no-op, which makes
// redelivered messages idempotent.
type CryptoHandler struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewCryptoHandler creates the crypto transfer action handler.
func NewCryptoHandler(submitter Submitter, logger *slog.Logger) *CryptoHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CryptoHandler{submitter: submitter, logger: logger}
}

func (h *CryptoHandler) Type() string { return action.TypeSol }

func (h *CryptoHandler) Execute(ctx context.Context, inv *action.Invocation) error {
	if _, ok := inv.Payload.(*action.SolTransfer); !ok {
		return fmt.Errorf("flowrge/handler: crypto handler got %T payload", inv.Payload)
	}

	// The flow key scopes the pending transaction to this action.
	flowKey := inv.Action.ID.String()
	submitted, err := h.submitter.Submit(ctx, inv.Run.ID, inv.Workflow.ID, flowKey)
	if err != nil {
		return err
	}
	if !submitted {
		h.logger.Info("no pending transaction for transfer stage",
			slog.String("run_id", inv.Run.ID.String()),
			slog.String("flow_key", flowKey),
		)
	}
	return nil
}
