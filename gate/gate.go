// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package gate implements retry-priority message gating. While retry
// deliveries are pending, outbound normal-class messages are withheld
// and rescheduled until the backlog clears, so retries reach
// subscribers first.
//
// This is a priority gate, not a queue: deferred messages are
// re-evaluated independently, with no ordering guarantee among them,
// and normal traffic stays deferred for as long as retry traffic keeps
// arriving.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/absmach/fluxgate/archive"
	"github.com/absmach/fluxgate/broker"
	"github.com/absmach/fluxgate/config"
	"github.com/absmach/fluxgate/events"
	"github.com/absmach/fluxgate/ratelimit"
	"github.com/absmach/fluxgate/server/otel"
	"github.com/absmach/fluxgate/topics"
	"github.com/absmach/fluxgate/webhook"
)

// ErrStopped is returned by Start on a gate that has already been
// stopped. A gate runs one lifecycle; create a new one instead.
var ErrStopped = errors.New("gate already stopped")

var errNoPublisher = errors.New("no publisher configured")

const (
	stateNew int32 = iota
	stateStarted
	stateStopped
)

const archiveTimeout = 2 * time.Second

var _ broker.Hook = (*Gate)(nil)

// Gate observes a broker's inbound and outbound message flow and
// enforces retry priority. It is safe for concurrent use by any number
// of broker goroutines.
type Gate struct {
	cfg       config.GateConfig
	publisher broker.Publisher
	logger    *slog.Logger
	stats     *Stats
	webhooks  webhook.Notifier
	metrics   *otel.Metrics   // nil if metrics disabled
	tracer    trace.Tracer    // nil if tracing disabled
	archive   archive.Archive // nil if archiving disabled
	release   *ratelimit.ReleaseLimiter

	pending PendingCounter
	sched   *Scheduler
	state   atomic.Int32
}

// New creates a new gate instance.
// Parameters:
//   - publisher: Broker publish entry point used to release deferred messages
//   - logger: Logger instance (nil uses default)
//   - stats: Stats collector (nil creates new one)
//   - webhooks: Webhook notifier (nil if webhooks disabled)
//   - metrics: OTel metrics instance (nil if metrics disabled)
//   - tracer: OTel tracer (nil if tracing disabled)
func New(publisher broker.Publisher, logger *slog.Logger, stats *Stats, webhooks webhook.Notifier, metrics *otel.Metrics, tracer trace.Tracer, cfg config.GateConfig) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = NewStats()
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = config.Default().Gate.RequeueDelay
	}

	return &Gate{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		stats:     stats,
		webhooks:  webhooks,
		metrics:   metrics,
		tracer:    tracer,
		sched:     NewScheduler(),
	}
}

// SetArchive sets the archive for dropped messages. It should be
// configured before the gate starts; the caller owns the archive's
// lifecycle.
func (g *Gate) SetArchive(a archive.Archive) {
	g.archive = a
}

// SetReleaseLimiter sets the rate limiter applied to deferred message
// releases. It should be configured before the gate starts; the caller
// owns the limiter's lifecycle.
func (g *Gate) SetReleaseLimiter(rl *ratelimit.ReleaseLimiter) {
	g.release = rl
}

// Start makes the gate live. Before Start and after Stop both hooks
// are inert pass-throughs.
func (g *Gate) Start() error {
	if g.state.CompareAndSwap(stateNew, stateStarted) {
		g.logger.Info("gate started",
			slog.Duration("requeue_delay", g.cfg.RequeueDelay))
		return nil
	}
	if g.state.Load() == stateStopped {
		return ErrStopped
	}
	return nil
}

// Stop shuts the gate down: every outstanding redelivery timer is
// cancelled and the pending counter is reset. Deferred messages still
// queued are lost; if an archive is configured they are recorded there.
// Stop is idempotent and the gate cannot be restarted afterwards.
func (g *Gate) Stop() error {
	if !g.state.CompareAndSwap(stateStarted, stateStopped) {
		g.state.CompareAndSwap(stateNew, stateStopped)
		return nil
	}

	cancelled := g.sched.CancelAll()
	discarded := g.pending.Reset()

	g.stats.AddCancelledTasks(uint64(len(cancelled)))
	g.stats.AddDiscardedRetries(uint64(discarded))
	if g.metrics != nil {
		g.metrics.AddTasksOutstanding(-int64(len(cancelled)))
		g.metrics.AddRetryPending(-discarded)
	}

	for _, t := range cancelled {
		g.archiveTask(t, archive.ReasonShutdown, nil)
	}

	g.notify(events.GateStopped{
		CancelledTasks:   len(cancelled),
		DiscardedRetries: discarded,
	})
	g.logger.Info("gate stopped",
		slog.Int("cancelled_tasks", len(cancelled)),
		slog.Int64("discarded_retries", discarded))

	return nil
}

// Running reports whether the gate is started and not yet stopped.
func (g *Gate) Running() bool {
	return g.state.Load() == stateStarted
}

// OnInbound observes a message entering the broker. Retry-class
// messages raise the pending counter; the message itself is never
// delayed or rejected here.
func (g *Gate) OnInbound(msg *broker.Message) {
	if g.state.Load() != stateStarted {
		return
	}

	cls := topics.Classify(msg.Topic)
	if cls == topics.ClassRetry {
		pending := g.pending.Inc()
		g.stats.IncrementInboundRetry()
		if g.metrics != nil {
			g.metrics.RecordInbound(cls.String())
			g.metrics.AddRetryPending(1)
		}
		g.logOp("retry_accepted",
			slog.String("topic", msg.Topic),
			slog.Int64("pending", pending))
		g.notify(events.RetryAccepted{MessageTopic: msg.Topic, Pending: pending})
		return
	}

	g.stats.IncrementInboundNormal()
	if g.metrics != nil {
		g.metrics.RecordInbound(cls.String())
	}
}

// OnOutbound decides whether a message about to be delivered goes out
// now or is withheld. Retry-class messages always go out and lower the
// pending counter; normal-class messages go out unless retries are
// pending, in which case the delivery is suppressed via ctl and a copy
// is scheduled for re-evaluation.
func (g *Gate) OnOutbound(msg *broker.Message, ctl broker.DeliveryControl) broker.Decision {
	if g.state.Load() != stateStarted {
		return broker.Deliver
	}

	cls := topics.Classify(msg.Topic)
	if cls == topics.ClassRetry {
		g.observeRetryDelivery(msg)
		if g.metrics != nil {
			g.metrics.RecordOutbound(cls.String(), broker.Deliver.String())
		}
		return broker.Deliver
	}

	pending := g.pending.Load()
	if pending == 0 {
		if g.metrics != nil {
			g.metrics.RecordOutbound(cls.String(), broker.Deliver.String())
		}
		return broker.Deliver
	}

	id, ok := g.sched.Schedule(msg.Clone(), g.cfg.RequeueDelay, 1, time.Now(), g.taskFired)
	if !ok {
		// Shut down mid-call; deliver rather than lose the message.
		return broker.Deliver
	}
	ctl.Suppress()

	g.stats.IncrementDeferrals()
	if g.metrics != nil {
		g.metrics.RecordDeferral()
		g.metrics.AddTasksOutstanding(1)
		g.metrics.RecordOutbound(cls.String(), broker.Suppress.String())
	}
	g.logOp("delivery_deferred",
		slog.String("topic", msg.Topic),
		slog.Uint64("task_id", id),
		slog.Int64("pending", pending),
		slog.Duration("delay", g.cfg.RequeueDelay))
	g.notify(events.DeliveryDeferred{
		MessageTopic: msg.Topic,
		QoS:          msg.QoS,
		PayloadSize:  len(msg.Payload),
		TaskID:       id,
		Pending:      pending,
		DelayMS:      g.cfg.RequeueDelay.Milliseconds(),
	})

	return broker.Suppress
}

// observeRetryDelivery lowers the pending counter for a retry-class
// delivery. The counter clamps at zero; an underflow means outbound
// observations outran inbound ones and is surfaced rather than pushed
// into a negative count that would gate normal traffic forever.
func (g *Gate) observeRetryDelivery(msg *broker.Message) {
	pending, ok := g.pending.Dec()
	if !ok {
		g.stats.IncrementUnderflows()
		if g.metrics != nil {
			g.metrics.RecordUnderflow()
		}
		g.logger.Warn("pending counter underflow",
			slog.String("topic", msg.Topic))
		g.notify(events.CounterUnderflow{MessageTopic: msg.Topic})
		return
	}

	if g.metrics != nil {
		g.metrics.AddRetryPending(-1)
	}
	g.logOp("retry_delivered",
		slog.String("topic", msg.Topic),
		slog.Int64("pending", pending))
	g.notify(events.RetryDelivered{MessageTopic: msg.Topic, Pending: pending})
}

// taskFired runs on the timer goroutine when a deferred message comes
// due. The scheduler has already removed the task from its registry.
func (g *Gate) taskFired(t *Task) {
	if g.metrics != nil {
		g.metrics.AddTasksOutstanding(-1)
	}

	if g.state.Load() != stateStarted {
		g.drop(t, events.DropShutdown, nil)
		return
	}

	if g.pending.Load() > 0 {
		g.requeue(t, events.RequeueRetriesPending)
		return
	}

	if !g.release.Allow(t.Msg.Topic) {
		g.requeue(t, events.RequeueThrottled)
		return
	}

	g.releaseTask(t)
}

// requeue schedules the task again after the configured delay. The
// rescheduled task gets a fresh ID; only the attempt count and the
// first-deferred timestamp carry over.
func (g *Gate) requeue(t *Task, reason string) {
	id, ok := g.sched.Schedule(t.Msg, g.cfg.RequeueDelay, t.Attempt+1, t.FirstDeferred, g.taskFired)
	if !ok {
		g.drop(t, events.DropShutdown, nil)
		return
	}

	g.stats.IncrementRequeues()
	if g.metrics != nil {
		g.metrics.RecordRequeue(reason)
		g.metrics.AddTasksOutstanding(1)
	}
	g.logOp("delivery_requeued",
		slog.String("topic", t.Msg.Topic),
		slog.Uint64("task_id", id),
		slog.Int("attempt", t.Attempt+1),
		slog.String("reason", reason))
	g.notify(events.DeliveryRequeued{
		MessageTopic: t.Msg.Topic,
		TaskID:       id,
		Attempt:      t.Attempt + 1,
		Pending:      g.pending.Load(),
		Reason:       reason,
	})
}

// releaseTask republishes a deferred message into the broker.
func (g *Gate) releaseTask(t *Task) {
	var span trace.Span
	if g.tracer != nil {
		_, span = g.tracer.Start(context.Background(), "gate.release",
			trace.WithAttributes(
				attribute.String("topic", t.Msg.Topic),
				attribute.Int("attempt", t.Attempt),
			))
		defer span.End()
	}

	if g.publisher == nil {
		g.drop(t, events.DropRepublishFailed, errNoPublisher)
		return
	}
	if err := g.publisher.Publish(t.Msg); err != nil {
		if span != nil {
			span.RecordError(err)
		}
		g.drop(t, events.DropRepublishFailed, err)
		return
	}

	deferred := time.Since(t.FirstDeferred)
	g.stats.IncrementReleases()
	if g.metrics != nil {
		g.metrics.RecordRelease(float64(deferred.Milliseconds()))
	}
	g.logOp("delivery_released",
		slog.String("topic", t.Msg.Topic),
		slog.Uint64("task_id", t.ID),
		slog.Int("attempts", t.Attempt),
		slog.Duration("deferred", deferred))
	g.notify(events.DeliveryReleased{
		MessageTopic: t.Msg.Topic,
		TaskID:       t.ID,
		Attempts:     t.Attempt,
		DeferredMS:   deferred.Milliseconds(),
	})
}

// drop abandons a deferred message. The message is gone from the
// delivery path; the archive, if configured, keeps a copy for
// inspection or manual replay.
func (g *Gate) drop(t *Task, reason string, err error) {
	g.stats.IncrementDrops()
	if g.metrics != nil {
		g.metrics.RecordDrop(reason)
	}

	if err != nil {
		g.logError("message_dropped", err,
			slog.String("topic", t.Msg.Topic),
			slog.Uint64("task_id", t.ID),
			slog.String("reason", reason))
	} else {
		g.logger.Warn("message dropped",
			slog.String("topic", t.Msg.Topic),
			slog.Uint64("task_id", t.ID),
			slog.String("reason", reason))
	}

	ev := events.MessageDropped{
		MessageTopic: t.Msg.Topic,
		TaskID:       t.ID,
		Reason:       reason,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	g.notify(ev)

	g.archiveTask(t, reason, err)
}

// archiveTask records a lost message in the archive, best effort.
func (g *Gate) archiveTask(t *Task, reason string, err error) {
	if g.archive == nil {
		return
	}

	entry := archive.Entry{
		Topic:     t.Msg.Topic,
		Payload:   t.Msg.Payload,
		QoS:       t.Msg.QoS,
		Retain:    t.Msg.Retain,
		Reason:    reason,
		TaskID:    t.ID,
		Attempts:  t.Attempt,
		DroppedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if aerr := g.archive.Record(ctx, entry); aerr != nil {
		g.logError("archive_record_failed", aerr,
			slog.String("topic", t.Msg.Topic))
	}
}

func (g *Gate) notify(e events.Event) {
	if g.webhooks == nil {
		return
	}
	g.webhooks.Notify(context.Background(), e)
}

// Stats returns the gate statistics.
func (g *Gate) Stats() *Stats {
	return g.stats
}

// Pending returns the current retry backlog count.
func (g *Gate) Pending() int64 {
	return g.pending.Load()
}

// Outstanding returns the number of deferred messages waiting on
// timers.
func (g *Gate) Outstanding() int {
	return g.sched.Len()
}

// Tasks lists the deferred messages waiting on timers.
func (g *Gate) Tasks() []TaskInfo {
	return g.sched.Snapshot()
}

func (g *Gate) logOp(op string, attrs ...any) {
	g.logger.Debug(op, attrs...)
}

func (g *Gate) logError(op string, err error, attrs ...any) {
	if err != nil {
		allAttrs := append([]any{slog.String("error", err.Error())}, attrs...)
		g.logger.Error(op, allAttrs...)
	}
}
