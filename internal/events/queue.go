// Package events drains the persistent scheduled-event table. Events
// carry a deadline and survive restarts; the drain loop delivers each
// one to its handler at or after the deadline, then acknowledges it.
// Delivery is at-least-once: a crash between handling and
// acknowledgment redelivers on the next run, so handlers must be
// idempotent.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/store"
)

// Handler processes one due event. A returned error leaves the event
// pending and it is retried after the retry interval.
type Handler func(ctx context.Context, ev record.ScheduledEvent) error

// Queue schedules deferred side effects and runs the drain loop over
// them. All state lives in the store; Queue itself holds only the
// handler registry and the wakeup signal.
type Queue struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time

	// wake coalesces new-event notifications; buffer of 1 is enough
	// because the loop re-polls after every signal.
	wake chan struct{}

	retryInterval time.Duration
	maxIdle       time.Duration

	mu       sync.Mutex
	handlers map[record.EventType]Handler
}

// New creates a queue over the store and hooks its change
// notifications so Run wakes up when rows appear.
func New(st *store.Store, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	q := &Queue{
		store:         st,
		log:           log,
		now:           time.Now,
		wake:          make(chan struct{}, 1),
		retryInterval: 5 * time.Second,
		maxIdle:       time.Minute,
		handlers:      make(map[record.EventType]Handler),
	}
	st.SetChangeHook(q.Wake)
	return q
}

// SetNow overrides the clock, for tests.
func (q *Queue) SetNow(now func() time.Time) { q.now = now }

// SetRetryInterval overrides the delay after a handler failure.
func (q *Queue) SetRetryInterval(d time.Duration) { q.retryInterval = d }

// Handle registers the handler for an event type. Events of an
// unregistered type are dropped with a warning when they come due.
func (q *Queue) Handle(typ record.EventType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[typ] = h
}

func (q *Queue) handlerFor(typ record.EventType) (Handler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.handlers[typ]
	return h, ok
}

// Schedule persists an event for delivery at deadline.
func (q *Queue) Schedule(ctx context.Context, typ record.EventType, deadline time.Time, data string) (int64, error) {
	return q.store.InsertScheduledEvent(ctx, typ, deadline, data)
}

// PollDue returns the earliest due event of the given type without
// consuming it. The caller acknowledges with Ack once handled.
func (q *Queue) PollDue(ctx context.Context, typ record.EventType) (record.ScheduledEvent, bool, error) {
	return q.store.EarliestDueEvent(ctx, typ, q.now())
}

// Ack acknowledges a delivered event. Acking twice, or acking an id
// that was never scheduled, is a no-op.
func (q *Queue) Ack(ctx context.Context, id int64) error {
	return q.store.DeleteScheduledEvent(ctx, id)
}

// Wake nudges the drain loop. Safe from any goroutine; signals
// coalesce.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run drains due events until ctx is canceled. Single consumer: call
// from exactly one goroutine.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info("event queue draining")
	for {
		drained, err := q.DrainDue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Store errors are transient (locked db, disk); back off
			// and re-poll rather than killing the loop.
			q.log.Error("drain pass failed", zap.Error(err))
			drained = 0
		}
		if drained > 0 {
			continue
		}

		wait := q.maxIdle
		if next, ok, err := q.store.NextDeadline(ctx); err == nil && ok {
			if until := next.Sub(q.now()); until < wait {
				wait = until
			}
		}
		if wait < q.retryInterval {
			wait = q.retryInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			q.log.Info("event queue stopping")
			return ctx.Err()
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// DrainDue delivers every currently due event once and returns how
// many were acknowledged. A handler failure stops the pass so the
// failed event retries later instead of being skipped over.
func (q *Queue) DrainDue(ctx context.Context) (int, error) {
	drained := 0
	for {
		ev, ok, err := q.store.EarliestDueAny(ctx, q.now())
		if err != nil {
			return drained, err
		}
		if !ok {
			return drained, nil
		}

		h, ok := q.handlerFor(ev.Type)
		if !ok {
			q.log.Warn("dropping event with no handler",
				zap.Int64("id", ev.ID), zap.String("type", string(ev.Type)))
			if err := q.Ack(ctx, ev.ID); err != nil {
				return drained, err
			}
			continue
		}

		if err := h(ctx, ev); err != nil {
			q.log.Warn("event handler failed, will retry",
				zap.Int64("id", ev.ID), zap.String("type", string(ev.Type)), zap.Error(err))
			return drained, nil
		}
		if err := q.Ack(ctx, ev.ID); err != nil {
			return drained, err
		}
		q.log.Debug("event acknowledged",
			zap.Int64("id", ev.ID), zap.String("type", string(ev.Type)))
		drained++
	}
}
