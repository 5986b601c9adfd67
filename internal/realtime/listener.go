package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/formadex/crm-backend/internal/models"
)

// DefaultAwaitTimeout bounds how long a waiter holds its pending state
// before resolving to the synthetic timeout error.
const DefaultAwaitTimeout = 60 * time.Second

// TimeoutActionKind marks the synthetic outcome produced when no matching
// callback arrives in time.
const TimeoutActionKind = "timeout"

// OutcomeWaiter tracks one pending operation through the hub's outcome feed.
// It resolves exactly once, to the first terminal outcome matching its
// correlation identity or to a synthetic timeout, and cleans up its
// subscription on whichever path wins. Later matches are no-ops.
type OutcomeWaiter struct {
	hub     *Hub
	ref     models.CorrelationRef
	subID   uint64
	feed    <-chan ActionOutcome
	timeout time.Duration

	once    sync.Once
	done    chan struct{}
	outcome ActionOutcome
}

// NewWaiter subscribes to the hub and starts waiting for an outcome whose
// correlation identity equals ref. A non-positive timeout selects
// DefaultAwaitTimeout.
func NewWaiter(hub *Hub, ref models.CorrelationRef, timeout time.Duration) *OutcomeWaiter {
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	subID, feed := hub.SubscribeOutcomes()
	w := &OutcomeWaiter{
		hub:     hub,
		ref:     ref,
		subID:   subID,
		feed:    feed,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *OutcomeWaiter) run() {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case out, ok := <-w.feed:
			if !ok {
				// Hub shut down underneath us.
				w.resolve(ActionOutcome{Ref: w.ref, ActionKind: TimeoutActionKind,
					Status: OutcomeError, Error: "outcome stream closed"})
				return
			}
			if out.Status == OutcomePending {
				// Intermediate progress report, not a terminal state.
				continue
			}
			if out.Ref != w.ref {
				continue
			}
			w.resolve(out)
			return
		case <-timer.C:
			w.resolve(ActionOutcome{Ref: w.ref, ActionKind: TimeoutActionKind,
				Status: OutcomeError, Error: "timed out waiting for action outcome"})
			return
		}
	}
}

// resolve records the outcome and tears the subscription down, exactly once.
func (w *OutcomeWaiter) resolve(out ActionOutcome) {
	w.once.Do(func() {
		w.outcome = out
		w.hub.UnsubscribeOutcomes(w.subID)
		close(w.done)
	})
}

// Done is closed once the waiter has resolved.
func (w *OutcomeWaiter) Done() <-chan struct{} {
	return w.done
}

// Outcome blocks until the waiter has resolved, then returns the result.
func (w *OutcomeWaiter) Outcome() ActionOutcome {
	<-w.done
	return w.outcome
}

// Wait blocks until the waiter resolves or ctx is cancelled. On
// cancellation the waiter keeps running and still cleans itself up when its
// own timeout fires.
func (w *OutcomeWaiter) Wait(ctx context.Context) (ActionOutcome, error) {
	select {
	case <-w.done:
		return w.outcome, nil
	case <-ctx.Done():
		return ActionOutcome{}, ctx.Err()
	}
}
