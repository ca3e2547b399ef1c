// Package notify emails workflow owners when a durable transfer fails.
// It hangs off the TransferFailed lifecycle hook, so a broadcast or
// confirmation failure produces a notification without the orchestrator
// knowing about email at all.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/Pratikkale26/Flowrge/ext"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// EmailLookup resolves a workflow owner ID to a notification address.
type EmailLookup func(ctx context.Context, ownerID string) (string, error)

// Option configures the notifier.
type Option func(*TransferFailureNotifier)

// WithLogger sets the notifier's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *TransferFailureNotifier) { n.logger = logger }
}

// TransferFailureNotifier is an extension that emails the workflow owner
// when a durable transfer fails terminally.
type TransferFailureNotifier struct {
	store  workflow.Store
	sender *resend.Client
	lookup EmailLookup
	from   string
	logger *slog.Logger
}

var _ ext.TransferFailed = (*TransferFailureNotifier)(nil)

// New creates the notifier. The lookup maps an owner ID to the address
// the failure email goes to.
func New(store workflow.Store, sender *resend.Client, lookup EmailLookup, from string, opts ...Option) *TransferFailureNotifier {
	n := &TransferFailureNotifier{
		store:  store,
		sender: sender,
		lookup: lookup,
		from:   from,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements ext.Extension.
func (n *TransferFailureNotifier) Name() string { return "transfer-failure-notifier" }

// OnTransferFailed emails the owner of the run's workflow.
func (n *TransferFailureNotifier) OnTransferFailed(ctx context.Context, runID id.RunID, txID id.TxID, cause error) error {
	run, err := n.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("flowrge/notify: load run: %w", err)
	}
	wf, err := n.store.GetWorkflow(ctx, run.WorkflowID)
	if err != nil {
		return fmt.Errorf("flowrge/notify: load workflow: %w", err)
	}
	to, err := n.lookup(ctx, wf.OwnerID)
	if err != nil {
		return fmt.Errorf("flowrge/notify: resolve owner %q: %w", wf.OwnerID, err)
	}

	subject := fmt.Sprintf("Flowrge: transfer failed in workflow %q", wf.Name)
	body := fmt.Sprintf(
		"A SOL transfer in your workflow %q could not be completed.\n\nRun: %s\nTransaction: %s\nReason: %s\n\nThe remaining steps of the run were not affected.",
		wf.Name, runID, txID, cause,
	)
	_, err = n.sender.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("flowrge/notify: send failure email: %w", err)
	}

	n.logger.Info("transfer failure notified",
		slog.String("run_id", runID.String()),
		slog.String("tx_id", txID.String()),
		slog.String("to", to),
	)
	return nil
}
