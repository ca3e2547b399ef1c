package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/action"
	"github.com/Pratikkale26/Flowrge/chain"
	"github.com/Pratikkale26/Flowrge/dlq"
	"github.com/Pratikkale26/Flowrge/durable"
	"github.com/Pratikkale26/Flowrge/executor"
	"github.com/Pratikkale26/Flowrge/ext"
	"github.com/Pratikkale26/Flowrge/id"
	mw "github.com/Pratikkale26/Flowrge/middleware"
	"github.com/Pratikkale26/Flowrge/nonce"
	"github.com/Pratikkale26/Flowrge/observability"
	"github.com/Pratikkale26/Flowrge/outbox"
	"github.com/Pratikkale26/Flowrge/queue"
	"github.com/Pratikkale26/Flowrge/store"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// Engine wires the store, broker, relay, executor, nonce sweeper, and
// durable transfer orchestrator into one lifecycle.
type Engine struct {
	cfg    flowrge.Config
	store  store.Store
	broker queue.Broker
	logger *slog.Logger

	registry   *action.Registry
	extensions *ext.Registry
	pendingExt []ext.Extension
	mws        []mw.Middleware

	haltPolicy    executor.HaltPolicy
	workflowRate  rate.Limit
	workflowBurst int

	feeAddress solana.PublicKey

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	relay        *outbox.Relay
	exec         *executor.Executor
	nonces       *nonce.Manager
	sweeper      *nonce.Sweeper
	orchestrator *durable.Orchestrator
	deadletter   *dlq.Service
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger, shared by every subsystem the
// engine constructs.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.pendingExt = append(e.pendingExt, x) }
}

// WithMiddleware appends middleware to the stage dispatch chain, after
// the default recover/tracing/metrics/logging stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithHaltPolicy overrides the executor's halt decision for terminal
// stage failures.
func WithHaltPolicy(p executor.HaltPolicy) Option {
	return func(e *Engine) { e.haltPolicy = p }
}

// WithWorkflowRateLimit throttles stage execution per workflow.
func WithWorkflowRateLimit(r rate.Limit, burst int) Option {
	return func(e *Engine) {
		e.workflowRate = r
		e.workflowBurst = burst
	}
}

// WithPlatformFeeAddress sets the address platform fees are paid to.
// The fee amount itself is passed per build.
func WithPlatformFeeAddress(address solana.PublicKey) Option {
	return func(e *Engine) { e.feeAddress = address }
}

// WithTracerProvider sets a custom OTel TracerProvider. If not set, the
// global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for both the
// metrics middleware and the observability extension. If not set, the
// global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an engine over the given store, broker, and chain client.
// The authority key owns every nonce account the pipeline creates and
// countersigns durable transactions.
func New(cfg flowrge.Config, st store.Store, broker queue.Broker, chainClient chain.Client, authority solana.PrivateKey, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, flowrge.ErrNoStore
	}

	e := &Engine{
		cfg:      cfg,
		store:    st,
		broker:   broker,
		logger:   slog.Default(),
		registry: action.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.extensions = ext.NewRegistry(e.logger)
	for _, x := range e.pendingExt {
		e.extensions.Register(x)
	}

	// Build tracing and metrics middleware (custom provider or global).
	meterName := "github.com/Pratikkale26/Flowrge"
	tracingMw := mw.Tracing()
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer(meterName))
	}
	metricsMw := mw.Metrics()
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter(meterName))
	}

	obsExt := observability.NewMetricsExtension()
	if e.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(
			e.meterProvider.Meter(meterName + "/observability"))
	}
	e.extensions.Register(obsExt)

	// Default stack: recover, tracing, metrics, logging, then user
	// middleware innermost.
	chainMws := append([]mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
	}, e.mws...)

	e.deadletter = dlq.NewService(st, broker)

	e.nonces = nonce.NewManager(st, chainClient, authority,
		nonce.WithConfirmTimeout(cfg.ConfirmTimeout),
		nonce.WithLogger(e.logger),
	)
	orchOpts := []durable.Option{
		durable.WithNonceReadRetry(cfg.NonceReadAttempts, cfg.NonceReadPause),
		durable.WithConfirmTimeout(cfg.ConfirmTimeout),
		durable.WithRegistry(e.extensions),
		durable.WithLogger(e.logger),
	}
	if !e.feeAddress.IsZero() {
		orchOpts = append(orchOpts, durable.WithPlatformFeeAddress(e.feeAddress))
	}
	e.orchestrator = durable.NewOrchestrator(st, e.nonces, chainClient, authority, orchOpts...)

	// Stale submit claims are expired on the sweep tick, ahead of the
	// nonce cleanup, so a nonce pinned by a dead submitter is reclaimed
	// in the same sweep.
	e.sweeper = nonce.NewSweeper(e.nonces, cfg.CleanupSchedule,
		nonce.WithSweepLimit(cfg.CleanupLimit),
		nonce.WithSweeperLogger(e.logger),
		nonce.WithSweepTask(func(ctx context.Context) error {
			_, err := e.orchestrator.ExpireStaleClaims(ctx)
			return err
		}),
	)

	execOpts := []executor.Option{
		executor.WithPartitions(cfg.Partitions),
		executor.WithMiddleware(mw.Chain(chainMws...)),
		executor.WithExtensions(e.extensions),
		executor.WithLogger(e.logger),
	}
	if e.haltPolicy != nil {
		execOpts = append(execOpts, executor.WithHaltPolicy(e.haltPolicy))
	}
	if e.workflowRate > 0 {
		execOpts = append(execOpts, executor.WithWorkflowRateLimit(e.workflowRate, e.workflowBurst))
	}
	e.exec = executor.New(st, broker, e.registry, e.deadletter, execOpts...)

	e.relay = outbox.NewRelay(st, broker, e.logger,
		outbox.WithBatchSize(cfg.RelayBatchSize),
		outbox.WithIdleSleep(cfg.RelayIdleSleep),
	)

	return e, nil
}

// RegisterHandler registers an action handler with the engine.
func (e *Engine) RegisterHandler(h action.Handler) {
	e.registry.Register(h)
}

// Registry returns the action handler registry.
func (e *Engine) Registry() *action.Registry { return e.registry }

// Extensions returns the lifecycle extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Orchestrator returns the durable transfer orchestrator, the submitter
// the crypto handler is built on.
func (e *Engine) Orchestrator() *durable.Orchestrator { return e.orchestrator }

// DeadLetters returns the dead letter service for inspection and replay.
func (e *Engine) DeadLetters() *dlq.Service { return e.deadletter }

// CreateWorkflow persists a workflow definition.
func (e *Engine) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	return e.store.CreateWorkflow(ctx, wf)
}

// CreateRun is the trigger ingestion boundary: it persists a pending run
// and its outbox record in one transaction. Publication to the broker is
// the relay's job, never the caller's.
func (e *Engine) CreateRun(ctx context.Context, workflowID id.WorkflowID, payload json.RawMessage) (*workflow.Run, error) {
	if _, err := e.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	run := workflow.NewRun(workflowID, payload)
	if err := e.store.CreateRunWithOutbox(ctx, run, outbox.NewRecord(run.ID)); err != nil {
		return nil, err
	}
	e.logger.Info("run ingested",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow_id", workflowID.String()),
	)
	return run, nil
}

// GetRun retrieves a run by ID.
func (e *Engine) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// BuildTransfer prepares a durable transaction for the scope; see
// durable.Orchestrator.Build.
func (e *Engine) BuildTransfer(ctx context.Context, workflowID id.WorkflowID, flowKey string, payer solana.PublicKey, transfers []chain.Transfer, feeLamports uint64) (*durable.PreparedTransaction, error) {
	return e.orchestrator.Build(ctx, workflowID, flowKey, payer, transfers, feeLamports)
}

// SaveTransfer persists a fully signed durable transaction; see
// durable.Orchestrator.Save.
func (e *Engine) SaveTransfer(ctx context.Context, workflowID id.WorkflowID, flowKey string, nonceID id.NonceID, signedWire []byte) (*durable.Transaction, error) {
	return e.orchestrator.Save(ctx, workflowID, flowKey, nonceID, signedWire)
}

// SubmitTransfer claims and broadcasts the scope's oldest pending
// transaction; see durable.Orchestrator.Submit.
func (e *Engine) SubmitTransfer(ctx context.Context, runID id.RunID, workflowID id.WorkflowID, flowKey string) (bool, error) {
	return e.orchestrator.Submit(ctx, runID, workflowID, flowKey)
}

// Start launches the executor partitions, the outbox relay, and the
// nonce sweeper. Consumers come up before the relay so published stage
// messages always have a reader.
func (e *Engine) Start(ctx context.Context) error {
	e.exec.Start(ctx)
	if err := e.relay.Start(ctx); err != nil {
		return fmt.Errorf("flowrge/engine: start relay: %w", err)
	}
	if err := e.sweeper.Start(); err != nil {
		return fmt.Errorf("flowrge/engine: start sweeper: %w", err)
	}
	e.logger.Info("engine started", slog.Int("partitions", e.cfg.Partitions))
	return nil
}

// Stop shuts the subsystems down, waiting up to the configured shutdown
// timeout, then notifies Shutdown extensions.
func (e *Engine) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.relay.Stop(gctx) })
	g.Go(func() error { e.exec.Stop(); return nil })
	g.Go(func() error { e.sweeper.Stop(); return nil })

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("flowrge/engine: shutdown timed out: %w", ctx.Err())
	}

	// Shutdown hooks still get a live context even when the engine's
	// own deadline already passed.
	e.extensions.EmitShutdown(context.WithoutCancel(ctx))
	e.logger.Info("engine stopped")
	return err
}
