// Package queue is the durable, priority-aware scheduler decoupling "decide
// what to send" from "when it actually runs". Two lanes: individual sends
// (high priority, retried with backoff) and bulk fan-outs (best effort).
// Scheduled step advances ride the individual lane at top priority.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"escalation-service/internal/logging"
	"escalation-service/internal/ops"
)

// HandlerFunc processes one claimed job. A returned error triggers
// retry/backoff until the job's attempt cap, then dead-lettering.
type HandlerFunc func(ctx context.Context, job *Job) error

// Options tunes worker counts and retry behavior.
type Options struct {
	IndividualWorkers int
	BulkWorkers       int
	PollInterval      time.Duration
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	IndividualRetries int
	BulkRetries       int
}

func (o *Options) fillDefaults() {
	if o.IndividualWorkers <= 0 {
		o.IndividualWorkers = 10
	}
	if o.BulkWorkers <= 0 {
		o.BulkWorkers = 2
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = time.Minute
	}
	if o.IndividualRetries <= 0 {
		o.IndividualRetries = 3
	}
	if o.BulkRetries <= 0 {
		o.BulkRetries = 1
	}
}

// Queue pulls jobs from the store with a worker pool per lane.
type Queue struct {
	store    Store
	logger   *logging.Logger
	notifier ops.Notifier
	opts     Options

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// New builds a Queue over the given store.
func New(store Store, logger *logging.Logger, notifier ops.Notifier, opts Options) *Queue {
	opts.fillDefaults()
	if notifier == nil {
		notifier = ops.Noop{}
	}
	return &Queue{
		store:    store,
		logger:   logger,
		notifier: notifier,
		opts:     opts,
		handlers: make(map[string]HandlerFunc),
		now:      time.Now,
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (q *Queue) Register(kind string, fn HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = fn
}

// Start launches the worker pools.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.opts.IndividualWorkers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, LaneIndividual, i)
	}
	for i := 0; i < q.opts.BulkWorkers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, LaneBulk, i)
	}
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// AddAlert enqueues one (contact, channel) send on the individual lane.
func (q *Queue) AddAlert(ctx context.Context, p SendPayload, severity int) (*Job, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:          uuid.New().String(),
		Lane:        LaneIndividual,
		Kind:        KindSend,
		Payload:     payload,
		Priority:    PriorityFor(severity, p.Channel),
		RunAt:       q.now().Add(DelayFor(severity)),
		MaxAttempts: q.opts.IndividualRetries,
		Status:      StatusPending,
		CreatedAt:   q.now(),
	}
	if err := q.store.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue send job: %w", err)
	}
	return job, nil
}

// AddBulkAlert enqueues a mass fan-out on the bulk lane. It expands into
// individual send jobs when a bulk worker consumes it.
func (q *Queue) AddBulkAlert(ctx context.Context, p BulkPayload) (*Job, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	// Channel tie-break does not apply to the envelope job.
	job := &Job{
		ID:          uuid.New().String(),
		Lane:        LaneBulk,
		Kind:        KindBulk,
		Payload:     payload,
		Priority:    PriorityFor(p.Severity, ""),
		RunAt:       q.now().Add(DelayFor(p.Severity)),
		MaxAttempts: q.opts.BulkRetries,
		Status:      StatusPending,
		CreatedAt:   q.now(),
	}
	if err := q.store.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue bulk job: %w", err)
	}
	return job, nil
}

// ScheduleAdvance enqueues a step-advance job to fire at runAt. The delay is
// durable: it lives in the store, so a restart does not lose the escalation.
func (q *Queue) ScheduleAdvance(ctx context.Context, alertID string, expectStep int, runAt time.Time) (*Job, error) {
	payload, err := json.Marshal(AdvancePayload{AlertID: alertID, ExpectStep: expectStep})
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:          uuid.New().String(),
		Lane:        LaneIndividual,
		Kind:        KindAdvance,
		Payload:     payload,
		Priority:    0, // advances outrank all sends
		RunAt:       runAt,
		MaxAttempts: q.opts.IndividualRetries,
		Status:      StatusPending,
		CreatedAt:   q.now(),
	}
	if err := q.store.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to schedule advance: %w", err)
	}
	return job, nil
}

// Stats reports per-lane job counts.
func (q *Queue) Stats(ctx context.Context) (map[Lane]LaneStats, error) {
	return q.store.Stats(ctx)
}

func (q *Queue) worker(ctx context.Context, lane Lane, id int) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Infof("Queue worker %s/%d stopped", lane, id)
			return
		case <-ticker.C:
			// Drain everything due before sleeping again.
			for {
				if ctx.Err() != nil {
					return
				}
				job, err := q.store.Claim(ctx, lane, q.now())
				if err != nil {
					q.logger.Errorf("Claim failed on lane %s: %v", lane, err)
					break
				}
				if job == nil {
					break
				}
				q.run(ctx, job)
			}
		}
	}
}

func (q *Queue) run(ctx context.Context, job *Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Kind]
	q.mu.RUnlock()
	if !ok {
		q.logger.Errorf("No handler for job kind %q, dead-lettering %s", job.Kind, job.ID)
		_ = q.store.MarkDead(ctx, job.ID, "no handler registered")
		q.notifier.DeadJob(ctx, job.ID, job.Kind, "no handler registered")
		return
	}

	err := handler(ctx, job)
	if err == nil {
		if mErr := q.store.MarkDone(ctx, job.ID); mErr != nil {
			q.logger.Errorf("MarkDone failed for job %s: %v", job.ID, mErr)
		}
		return
	}

	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		q.logger.Errorf("Job %s (%s) exhausted %d attempts: %v", job.ID, job.Kind, attempts, err)
		_ = q.store.MarkDead(ctx, job.ID, err.Error())
		q.notifier.DeadJob(ctx, job.ID, job.Kind, err.Error())
		return
	}

	delay := q.backoff(attempts)
	q.logger.Warnf("Job %s (%s) attempt %d/%d failed, retrying in %s: %v", job.ID, job.Kind, attempts, job.MaxAttempts, delay, err)
	if rErr := q.store.Reschedule(ctx, job.ID, q.now().Add(delay), attempts, err.Error()); rErr != nil {
		q.logger.Errorf("Reschedule failed for job %s: %v", job.ID, rErr)
	}
}

// backoff doubles the base delay per attempt up to the cap.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.opts.BackoffCap {
			return q.opts.BackoffCap
		}
	}
	if d > q.opts.BackoffCap {
		return q.opts.BackoffCap
	}
	return d
}

// ExpandBulk converts a bulk payload into individual send jobs, one per
// (contact, channel) pair. Used by the bulk-lane handler.
func (q *Queue) ExpandBulk(ctx context.Context, p BulkPayload) (int, error) {
	n := 0
	for _, contactID := range p.ContactIDs {
		for _, ch := range p.Channels {
			if !ch.Valid() {
				continue
			}
			_, err := q.AddAlert(ctx, SendPayload{
				AlertID:   p.AlertID,
				ContactID: contactID,
				Channel:   ch,
			}, p.Severity)
			if err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
