package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"escalation-service/internal/config"
)

// State represents circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// OpenError is returned when a call is rejected because the breaker is open.
// Callers distinguish it from ordinary delivery failures: it means the
// provider is down, back off.
type OpenError struct {
	Name        string
	NextAttempt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %s is open, next attempt at %s", e.Name, e.NextAttempt.Format(time.RFC3339))
}

// IsOpen reports whether err is a circuit-open rejection.
func IsOpen(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}

// Stats is the read-only view of one breaker.
type Stats struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	FailureRate float64   `json:"failure_rate"`
	NextAttempt time.Time `json:"next_attempt,omitempty"`
}

// Breaker guards one external dependency. Call outcomes are timestamped into
// a rolling window; when the windowed failure rate crosses the threshold over
// at least MinimumCalls calls, the breaker opens. After ResetTimeout the next
// call becomes a single half-open probe: success closes the breaker, failure
// re-opens it with a fresh timeout.
type Breaker struct {
	name     string
	settings config.BreakerSettings

	mu          sync.Mutex
	state       State
	successes   []time.Time
	failures    []time.Time
	nextAttempt time.Time

	now           func() time.Time
	onStateChange func(name string, from, to State)
}

// New creates a breaker with the given settings.
func New(name string, settings config.BreakerSettings, onStateChange func(name string, from, to State)) *Breaker {
	if settings.MinimumCalls <= 0 {
		settings.MinimumCalls = 5
	}
	if settings.MonitoringWindow <= 0 {
		settings.MonitoringWindow = 2 * time.Minute
	}
	if settings.ResetTimeout <= 0 {
		settings.ResetTimeout = 30 * time.Second
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 50
	}
	return &Breaker{
		name:          name,
		settings:      settings,
		state:         StateClosed,
		now:           time.Now,
		onStateChange: onStateChange,
	}
}

// Execute runs fn under the breaker. The breaker itself never retries; a
// rejection while open is the caller's cue to come back later.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	// Reject a dead context before allow(): the OPEN to HALF_OPEN transition
	// hands out the single probe slot, and a call that will never run fn must
	// not spend it.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Before(b.nextAttempt) {
			return &OpenError{Name: b.name, NextAttempt: b.nextAttempt}
		}
		// Reset timeout elapsed: this call is the probe.
		b.transition(StateHalfOpen)
		return nil
	case StateHalfOpen:
		// A probe is already in flight; reject until it resolves.
		return &OpenError{Name: b.name, NextAttempt: b.nextAttempt}
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.successes = append(b.successes, now)
	b.prune(now)

	if b.state == StateHalfOpen {
		b.successes = nil
		b.failures = nil
		b.transition(StateClosed)
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failures = append(b.failures, now)
	b.prune(now)

	switch b.state {
	case StateHalfOpen:
		b.nextAttempt = now.Add(b.settings.ResetTimeout)
		b.transition(StateOpen)
	case StateClosed:
		total := len(b.successes) + len(b.failures)
		if total < b.settings.MinimumCalls {
			return
		}
		rate := float64(len(b.failures)) / float64(total) * 100
		if rate >= b.settings.FailureThreshold {
			b.nextAttempt = now.Add(b.settings.ResetTimeout)
			b.transition(StateOpen)
		}
	}
}

// prune drops window entries older than the monitoring window.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.settings.MonitoringWindow)
	b.successes = pruneBefore(b.successes, cutoff)
	b.failures = pruneBefore(b.failures, cutoff)
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker's window counts.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(b.now())
	total := len(b.successes) + len(b.failures)
	rate := 0.0
	if total > 0 {
		rate = float64(len(b.failures)) / float64(total) * 100
	}
	s := Stats{
		Name:        b.name,
		State:       b.state.String(),
		Successes:   len(b.successes),
		Failures:    len(b.failures),
		FailureRate: rate,
	}
	if b.state == StateOpen {
		s.NextAttempt = b.nextAttempt
	}
	return s
}

// Reset forces the breaker closed and clears its window. Operator action.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = nil
	b.failures = nil
	b.transition(StateClosed)
}
