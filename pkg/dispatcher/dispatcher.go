// Package dispatcher is the engine's heartbeat. A single polling loop wakes
// on a fixed interval and drains everything that has come due: pending posts,
// eligible automation tasks, scheduled workflows and suspended runs. Each
// concern is isolated, so one failing post never blocks a due workflow.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beaconops/flock/pkg/events"
	"github.com/beaconops/flock/pkg/eventbus"
	"github.com/beaconops/flock/pkg/executor"
	"github.com/beaconops/flock/pkg/governor"
	"github.com/beaconops/flock/pkg/interpreter"
	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/runner"
	"github.com/beaconops/flock/pkg/tracer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrAlreadyStarted = errors.New("dispatcher already started")

// DefaultInterval is the polling cadence when nothing is configured.
const DefaultInterval = 30 * time.Second

type Dispatcher struct {
	store       persistence.Persistence
	executor    *executor.Executor
	runner      *runner.Runner
	interpreter *interpreter.Interpreter
	governor    *governor.Governor
	bus         eventbus.EventBus
	interval    time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer

	mu      sync.Mutex
	started bool
	done    chan struct{}

	// ticking guards against overlapping ticks: a slow tick makes the next
	// one a no-op instead of queueing behind it.
	ticking atomic.Bool

	now func() time.Time
}

func NewDispatcher(
	store persistence.Persistence,
	exec *executor.Executor,
	run *runner.Runner,
	interp *interpreter.Interpreter,
	gov *governor.Governor,
	bus eventbus.EventBus,
	interval time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Dispatcher{
		store:       store,
		executor:    exec,
		runner:      run,
		interpreter: interp,
		governor:    gov,
		bus:         bus,
		interval:    interval,
		logger:      logger.With("module", "dispatcher"),
		tracer:      otel.Tracer("flock/dispatcher"),
		now:         time.Now,
	}
}

// Start launches the polling loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrAlreadyStarted
	}

	d.started = true
	d.done = make(chan struct{})

	go d.loop(ctx, d.done)

	d.logger.Info("Dispatcher started", "interval", d.interval)

	return nil
}

// Stop halts the polling loop. In-flight work finishes its current tick.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return
	}

	close(d.done)
	d.started = false

	d.logger.Info("Dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Immediate first pass so a restart picks up overdue work without
	// waiting out a full interval.
	d.Tick(ctx)

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one dispatch pass. If the previous pass is still running the
// call returns immediately; due work is naturally retried next interval
// because eligibility is re-evaluated from the store every pass.
func (d *Dispatcher) Tick(ctx context.Context) {
	if !d.ticking.CompareAndSwap(false, true) {
		d.logger.Warn("Previous tick still running, skipping")

		return
	}
	defer d.ticking.Store(false)

	ctx, span := tracer.StartSpan(ctx, d.tracer, "dispatcher.tick")
	defer span.End()

	now := d.now()

	d.dispatchDuePosts(ctx, now)
	d.runner.RunDue(ctx)
	d.dispatchDueWorkflows(ctx, now)
	d.dispatchDueResumptions(ctx, now)
}

// dispatchDuePosts publishes every pending post whose time has come. The
// pending-to-processing claim is the idempotency gate: a post that lost the
// claim was already taken by another pass.
func (d *Dispatcher) dispatchDuePosts(ctx context.Context, now time.Time) {
	posts, err := d.store.ScheduledPosts().PendingDue(ctx, now)
	if err != nil {
		d.logger.Error("Failed to query due posts", "error", err)

		return
	}

	for _, post := range posts {
		claimed, err := d.store.ScheduledPosts().MarkProcessing(ctx, post.ID)
		if err != nil {
			d.logger.Error("Failed to claim post", "post_id", post.ID, "error", err)

			continue
		}

		if !claimed {
			continue
		}

		d.publishPost(ctx, post)
	}
}

// publishPost runs one claimed post through the executor under the account's
// lease and settles its terminal status.
func (d *Dispatcher) publishPost(ctx context.Context, post *models.ScheduledPost) {
	logger := d.logger.With("post_id", post.ID, "account_id", post.AccountID)

	ctx, span := tracer.StartSpan(ctx, d.tracer, "dispatcher.publish_post",
		attribute.String(tracer.PostIDKey, post.ID),
		attribute.String(tracer.AccountIDKey, post.AccountID),
	)
	defer span.End()

	lease, err := d.governor.TryAcquire(ctx, post.AccountID)
	if err != nil {
		if errors.Is(err, governor.ErrAccountBusy) {
			// Another action holds the account. Put the post back so the
			// next pass retries it.
			logger.Info("Account busy, post deferred")
			d.failBack(ctx, post)

			return
		}

		logger.Error("Failed to acquire lease", "error", err)
		d.settleFailed(ctx, post, err.Error())

		return
	}

	defer func() {
		if err := d.governor.Release(ctx, lease); err != nil {
			logger.Error("Failed to release lease", "error", err)
		}
	}()

	outcome := d.executor.Execute(ctx, executor.Request{
		AccountID: post.AccountID,
		Action:    models.ActionPost,
		Content:   post.Content,
		MediaIDs:  post.MediaIDs,
	})

	if outcome.Success {
		if err := d.store.ScheduledPosts().MarkCompleted(ctx, post.ID, d.now()); err != nil {
			logger.Error("Failed to mark post completed", "error", err)

			return
		}

		d.publish(ctx, post.AccountID, events.PostPublished{
			BaseEvent: events.NewBaseEvent(events.PostPublishedEvent),
			PostID:    post.ID,
			AccountID: post.AccountID,
		})

		logger.Info("Post published")

		return
	}

	if outcome.Err != nil {
		tracer.SetError(span, outcome.Err)
	}

	d.settleFailed(ctx, post, outcome.ErrorMessage())
}

func (d *Dispatcher) settleFailed(ctx context.Context, post *models.ScheduledPost, reason string) {
	if err := d.store.ScheduledPosts().MarkFailed(ctx, post.ID, d.now(), reason); err != nil {
		d.logger.Error("Failed to mark post failed", "post_id", post.ID, "error", err)

		return
	}

	d.publish(ctx, post.AccountID, events.PostFailed{
		BaseEvent: events.NewBaseEvent(events.PostFailedEvent),
		PostID:    post.ID,
		AccountID: post.AccountID,
		Error:     reason,
	})
}

// failBack returns a claimed post to pending so a later pass retries it.
func (d *Dispatcher) failBack(ctx context.Context, post *models.ScheduledPost) {
	post.Status = models.ScheduledPostStatusPending
	post.UpdatedAt = d.now()

	if err := d.store.ScheduledPosts().Save(ctx, post); err != nil {
		d.logger.Error("Failed to requeue post", "post_id", post.ID, "error", err)
	}
}

// dispatchDueWorkflows starts a run for each due scheduled workflow and
// rolls its NextRunAt forward so the same occurrence never fires twice.
func (d *Dispatcher) dispatchDueWorkflows(ctx context.Context, now time.Time) {
	workflows, err := d.store.Workflows().DueScheduled(ctx, now)
	if err != nil {
		d.logger.Error("Failed to query due workflows", "error", err)

		return
	}

	for _, workflow := range workflows {
		logger := d.logger.With("workflow_id", workflow.ID)

		// Advance the schedule before executing so a crash mid-run costs
		// one occurrence instead of replaying it.
		if err := workflow.UpdateNextRunAt(now); err != nil {
			logger.Error("Failed to advance workflow schedule", "error", err)

			continue
		}

		workflow.RecordRun(now)

		if err := d.store.Workflows().Save(ctx, workflow); err != nil {
			logger.Error("Failed to save workflow schedule", "error", err)

			continue
		}

		runCtx, span := tracer.StartSpan(ctx, d.tracer, "dispatcher.run_workflow",
			attribute.String(tracer.WorkflowIDKey, workflow.ID),
		)

		runID, err := d.interpreter.Execute(runCtx, workflow.ID)
		if err != nil {
			tracer.SetError(span, err)
			span.End()
			logger.Error("Failed to start workflow run", "error", err)

			continue
		}

		span.End()
		logger.Info("Scheduled workflow dispatched", "run_id", runID)
	}
}

// dispatchDueResumptions continues every suspended run whose delay elapsed.
// The continuation is deleted before resuming so an overlapping dispatcher
// cannot double-resume the run.
func (d *Dispatcher) dispatchDueResumptions(ctx context.Context, now time.Time) {
	resumptions, err := d.store.Resumptions().Due(ctx, now)
	if err != nil {
		d.logger.Error("Failed to query due resumptions", "error", err)

		return
	}

	for _, resumption := range resumptions {
		logger := d.logger.With(
			"workflow_id", resumption.WorkflowID,
			"run_id", resumption.RunID,
		)

		if err := d.store.Resumptions().Delete(ctx, resumption.ID); err != nil {
			logger.Error("Failed to claim resumption", "error", err)

			continue
		}

		if err := d.interpreter.Resume(ctx, resumption); err != nil {
			logger.Error("Failed to resume workflow run", "error", err)

			continue
		}

		logger.Info("Workflow run resumption dispatched")
	}
}

func (d *Dispatcher) publish(ctx context.Context, key string, event events.Event) {
	if d.bus == nil {
		return
	}

	if err := d.bus.Publish(ctx, key, event); err != nil {
		d.logger.Error("Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
