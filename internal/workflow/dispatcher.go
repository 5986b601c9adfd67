package workflow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/jpillora/backoff"
)

// RetryPolicy bounds the dispatch retry loop. It is an explicit value so
// deployments can tune it without touching the loop.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: 15 * time.Second,
	}
}

// LockFinisher is the slice of the lock repository the dispatcher needs.
type LockFinisher interface {
	MarkDispatched(id string) error
	FinishByID(id string, status models.LockStatus, errMsg string) (bool, error)
}

// Journal records exhausted dispatches for operator review.
type Journal interface {
	Record(ctx context.Context, entry *models.JournalEntry) error
}

// Dispatcher hands action payloads to the workflow engine on background
// goroutines. Nothing here ever reports back to the request that triggered
// the action: acceptance was already answered, failures land on the lock row
// and in the error journal.
type Dispatcher struct {
	client  EngineClient
	locks   LockFinisher
	journal Journal
	policy  RetryPolicy
	wg      sync.WaitGroup
}

func NewDispatcher(client EngineClient, locks LockFinisher, journal Journal, policy RetryPolicy) *Dispatcher {
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy()
	}
	return &Dispatcher{client: client, locks: locks, journal: journal, policy: policy}
}

// DispatchAsync fires the dispatch on a background goroutine and returns
// immediately.
func (d *Dispatcher) DispatchAsync(lock *models.ActionLock, req *DispatchRequest) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.dispatch(lock, req)
	}()
}

// Wait blocks until all in-flight dispatches have finished. Used on
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(lock *models.ActionLock, req *DispatchRequest) {
	b := &backoff.Backoff{
		Min:    d.policy.BaseDelay,
		Max:    d.policy.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.policy.AttemptTimeout)
		err := d.client.Dispatch(ctx, req)
		cancel()

		if err == nil {
			// Accepted. The lock stays in progress until the engine's
			// completion callback resolves it.
			if err := d.locks.MarkDispatched(lock.ID); err != nil {
				log.Printf("dispatcher: lock %s accepted but not marked dispatched: %v", lock.ID, err)
			}
			return
		}

		lastErr = err
		log.Printf("dispatcher: attempt %d/%d for %s %s failed: %v",
			attempt, d.policy.MaxAttempts, lock.ActionKind, lock.SubjectID, err)
		if attempt < d.policy.MaxAttempts {
			time.Sleep(b.Duration())
		}
	}

	if _, err := d.locks.FinishByID(lock.ID, models.LockFailed, lastErr.Error()); err != nil {
		log.Printf("dispatcher: failed to fail lock %s: %v", lock.ID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entry := &models.JournalEntry{
		LockID:      lock.ID,
		SubjectType: lock.SubjectType,
		SubjectID:   lock.SubjectID,
		ActionKind:  lock.ActionKind,
		Attempts:    d.policy.MaxAttempts,
		Error:       lastErr.Error(),
		CreatedAt:   time.Now(),
	}
	if err := d.journal.Record(ctx, entry); err != nil {
		log.Printf("dispatcher: journal write failed for lock %s: %v", lock.ID, err)
	}
}
