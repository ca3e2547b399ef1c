// Package executor consumes stage messages and walks each run through
// its workflow's actions in order. Partitioning by run ID keeps a run's
// stages on one consumer; publishing the next stage before acking the
// current one keeps the walk alive across crashes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/action"
	"github.com/Pratikkale26/Flowrge/backoff"
	"github.com/Pratikkale26/Flowrge/dlq"
	"github.com/Pratikkale26/Flowrge/ext"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/middleware"
	"github.com/Pratikkale26/Flowrge/queue"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// HaltPolicy decides whether a terminal stage failure halts the run or
// lets later stages proceed.
type HaltPolicy func(run *workflow.Run, act *workflow.Action, err error) bool

// HaltOnAnyFailure halts the run on every terminal stage failure.
func HaltOnAnyFailure(*workflow.Run, *workflow.Action, error) bool { return true }

// ContinueOnTransferFailure halts on everything except transfer
// failures: a failed on-chain payment is recorded and notified, but the
// run's remaining stages still execute. This is the default policy.
func ContinueOnTransferFailure(_ *workflow.Run, act *workflow.Action, _ error) bool {
	return act == nil || act.Type != action.TypeSol
}

// Executor drives stage execution for a set of partitions.
type Executor struct {
	store      workflow.Store
	broker     queue.Broker
	registry   *action.Registry
	deadletter *dlq.Service
	exts       *ext.Registry
	logger     *slog.Logger

	partitions int
	halt       HaltPolicy
	mw         middleware.Middleware
	retryDelay backoff.Strategy

	// Per-workflow limiters built lazily from workflowRate.
	workflowRate  rate.Limit
	workflowBurst int
	limiterMu     sync.Mutex
	limiters      map[id.WorkflowID]*rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Executor.
type Option func(*Executor)

// WithPartitions sets how many partitions the executor consumes.
// Defaults to 8, matching the default broker layout.
func WithPartitions(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.partitions = n
		}
	}
}

// WithHaltPolicy overrides what happens after a terminal stage failure.
func WithHaltPolicy(p HaltPolicy) Option {
	return func(e *Executor) {
		if p != nil {
			e.halt = p
		}
	}
}

// WithMiddleware wraps every handler dispatch with the given chain.
func WithMiddleware(mw middleware.Middleware) Option {
	return func(e *Executor) { e.mw = mw }
}

// WithRetryDelay sets the pause before a retryable stage failure is
// released for redelivery. Defaults to a constant second.
func WithRetryDelay(s backoff.Strategy) Option {
	return func(e *Executor) {
		if s != nil {
			e.retryDelay = s
		}
	}
}

// WithWorkflowRateLimit throttles stage execution per workflow.
// Zero rate disables throttling.
func WithWorkflowRateLimit(r rate.Limit, burst int) Option {
	return func(e *Executor) {
		e.workflowRate = r
		e.workflowBurst = burst
	}
}

// WithExtensions sets the extension registry for lifecycle events.
func WithExtensions(exts *ext.Registry) Option {
	return func(e *Executor) { e.exts = exts }
}

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// New creates an executor. The dead letter service is required: it is
// where undecodable payloads and terminally failed stages go.
func New(store workflow.Store, broker queue.Broker, registry *action.Registry, deadletter *dlq.Service, opts ...Option) *Executor {
	e := &Executor{
		store:      store,
		broker:     broker,
		registry:   registry,
		deadletter: deadletter,
		logger:     slog.Default(),
		partitions: 8,
		halt:       ContinueOnTransferFailure,
		retryDelay: backoff.NewConstant(time.Second),
		limiters:   make(map[id.WorkflowID]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches one consumer goroutine per partition.
func (e *Executor) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	for part := 0; part < e.partitions; part++ {
		e.wg.Add(1)
		go func(part int) {
			defer e.wg.Done()
			e.consumePartition(ctx, part)
		}(part)
	}
	e.logger.Info("executor started", slog.Int("partitions", e.partitions))
}

// Stop cancels the consumers and waits for in-flight stages to finish.
func (e *Executor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("executor stopped")
}

func (e *Executor) consumePartition(ctx context.Context, part int) {
	c := e.broker.Consumer(part)
	defer c.Close()

	for {
		d, err := c.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("consume failed",
				slog.Int("partition", part),
				slog.String("error", err.Error()),
			)
			continue
		}
		if d == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		e.Process(ctx, d)
	}
}

// Process executes one delivery end to end. Exported so tests can drive
// the executor without the partition loop.
func (e *Executor) Process(ctx context.Context, d *queue.Delivery) {
	if d.Message.RunID.IsNil() {
		e.deadletterRaw(ctx, d, fmt.Errorf("undecodable stage payload"))
		return
	}

	run, err := e.store.GetRun(ctx, d.Message.RunID)
	if err != nil {
		if errors.Is(err, flowrge.ErrRunNotFound) {
			e.deadletterMessage(ctx, d, err)
			return
		}
		e.release(d, err) // transient store error: leave for redelivery
		return
	}

	// Run state machine dedupe: a terminal run ignores stray messages.
	// A message older than the run's current stage is a duplicate of
	// work that already advanced; publish-before-ack guarantees its
	// successor is already in the broker, so dropping it is safe. A
	// message AT the current stage re-executes: the crash may have hit
	// before the side effect, and delivery is at least once.
	if run.Terminal() {
		e.ack(ctx, d)
		return
	}
	if run.State == workflow.RunStateRunning && d.Message.Stage < run.Stage {
		e.ack(ctx, d)
		return
	}

	wf, err := e.store.GetWorkflow(ctx, run.WorkflowID)
	if err != nil {
		if errors.Is(err, flowrge.ErrWorkflowNotFound) {
			e.failRun(ctx, d, run, nil, err)
			return
		}
		e.release(d, err)
		return
	}

	if d.Message.Stage >= wf.Stages() {
		e.completeRun(ctx, d, run)
		return
	}

	act := wf.ActionAt(d.Message.Stage)
	if act == nil {
		e.failRun(ctx, d, run, nil, fmt.Errorf("%w: stage %d", flowrge.ErrActionNotFound, d.Message.Stage))
		return
	}

	payload, err := action.Parse(act)
	if err != nil {
		e.failRun(ctx, d, run, act, err)
		return
	}
	h, ok := e.registry.Get(act.Type)
	if !ok {
		e.failRun(ctx, d, run, act, fmt.Errorf("%w: %q", flowrge.ErrUnknownActionType, act.Type))
		return
	}

	if firstStage := run.State == workflow.RunStatePending; firstStage && e.exts != nil {
		e.exts.EmitRunStarted(ctx, run)
	}
	run.Advance(d.Message.Stage)
	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.release(d, err)
		return
	}

	if err := e.waitWorkflowLimit(ctx, run.WorkflowID); err != nil {
		e.release(d, err)
		return
	}

	inv := &action.Invocation{Run: run, Workflow: wf, Action: act, Payload: payload}
	if e.exts != nil {
		e.exts.EmitStageStarted(ctx, run, act)
	}
	started := time.Now()
	execErr := e.dispatch(ctx, inv, h)
	elapsed := time.Since(started)

	switch {
	case execErr == nil:
		if e.exts != nil {
			e.exts.EmitStageCompleted(ctx, run, act, elapsed)
		}
		e.advance(ctx, d, run, wf)

	case action.IsRetryable(execErr):
		e.logger.Warn("stage failed, will retry",
			slog.String("run_id", run.ID.String()),
			slog.Int("stage", d.Message.Stage),
			slog.String("error", execErr.Error()),
		)
		// No ack: the broker redelivers. The pause keeps a hot failure
		// from spinning the partition.
		e.sleep(ctx, e.retryDelay.Delay(1))

	default:
		if e.exts != nil {
			e.exts.EmitStageFailed(ctx, run, act, execErr)
		}
		if e.halt(run, act, execErr) {
			e.failRun(ctx, d, run, act, execErr)
			return
		}
		e.logger.Warn("stage failed, continuing per halt policy",
			slog.String("run_id", run.ID.String()),
			slog.Int("stage", d.Message.Stage),
			slog.String("action_type", act.Type),
			slog.String("error", execErr.Error()),
		)
		run.Error = execErr.Error()
		e.advance(ctx, d, run, wf)
	}
}

func (e *Executor) dispatch(ctx context.Context, inv *action.Invocation, h action.Handler) error {
	if e.mw == nil {
		return h.Execute(ctx, inv)
	}
	return e.mw(ctx, inv, func(ctx context.Context) error {
		return h.Execute(ctx, inv)
	})
}

// advance publishes the next stage (or finishes the run), then acks.
// Publish happens strictly before ack: a crash between the two causes a
// redelivery, never a lost stage.
func (e *Executor) advance(ctx context.Context, d *queue.Delivery, run *workflow.Run, wf *workflow.Workflow) {
	next := run.Stage + 1
	if next >= wf.Stages() {
		e.completeRun(ctx, d, run)
		return
	}
	if err := e.broker.Publish(ctx, queue.StageMessage{RunID: run.ID, Stage: next}); err != nil {
		e.release(d, err)
		return
	}
	e.ack(ctx, d)
}

func (e *Executor) completeRun(ctx context.Context, d *queue.Delivery, run *workflow.Run) {
	run.Succeed()
	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.release(d, err)
		return
	}
	e.logger.Info("run completed", slog.String("run_id", run.ID.String()))
	if e.exts != nil {
		var elapsed time.Duration
		if run.StartedAt != nil {
			elapsed = run.CompletedAt.Sub(*run.StartedAt)
		}
		e.exts.EmitRunCompleted(ctx, run, elapsed)
	}
	e.ack(ctx, d)
}

// failRun halts the run, records the failed delivery in the dead letter
// store, and acks so the partition moves on.
func (e *Executor) failRun(ctx context.Context, d *queue.Delivery, run *workflow.Run, act *workflow.Action, cause error) {
	run.Fail(d.Message.Stage, cause.Error())
	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.release(d, err)
		return
	}
	e.logger.Error("run failed",
		slog.String("run_id", run.ID.String()),
		slog.Int("stage", d.Message.Stage),
		slog.String("error", cause.Error()),
	)
	if e.exts != nil {
		e.exts.EmitRunFailed(ctx, run, cause)
	}
	e.deadletterMessage(ctx, d, cause)
}

func (e *Executor) deadletterMessage(ctx context.Context, d *queue.Delivery, cause error) {
	raw, _ := d.Message.Encode()
	if err := e.deadletter.Push(ctx, d.Message, raw, cause); err != nil {
		e.release(d, err)
		return
	}
	e.ack(ctx, d)
}

func (e *Executor) deadletterRaw(ctx context.Context, d *queue.Delivery, cause error) {
	if err := e.deadletter.PushRaw(ctx, d.Raw, cause); err != nil {
		e.release(d, err)
		return
	}
	e.ack(ctx, d)
}

func (e *Executor) ack(ctx context.Context, d *queue.Delivery) {
	if err := d.Ack(ctx); err != nil {
		e.logger.Warn("ack failed, delivery will repeat", slog.String("error", err.Error()))
	}
}

// release leaves the delivery unacked so the broker redelivers it.
func (e *Executor) release(d *queue.Delivery, cause error) {
	e.logger.Warn("stage deferred for redelivery",
		slog.String("run_id", d.Message.RunID.String()),
		slog.Int("stage", d.Message.Stage),
		slog.String("error", cause.Error()),
	)
}

func (e *Executor) waitWorkflowLimit(ctx context.Context, workflowID id.WorkflowID) error {
	if e.workflowRate <= 0 {
		return nil
	}
	e.limiterMu.Lock()
	limiter, ok := e.limiters[workflowID]
	if !ok {
		burst := e.workflowBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(e.workflowRate, burst)
		e.limiters[workflowID] = limiter
	}
	e.limiterMu.Unlock()
	return limiter.Wait(ctx)
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
