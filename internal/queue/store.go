package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LaneStats counts jobs per state for one lane.
type LaneStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Dead      int `json:"dead"`
}

// Store is the durable backing of the queue. The production implementation
// lives in internal/db (Postgres, SKIP LOCKED claims); MemoryStore below
// backs tests and single-process setups.
type Store interface {
	Enqueue(ctx context.Context, job *Job) error
	// Claim atomically takes the highest-priority due job in a lane, or
	// returns nil when none is due.
	Claim(ctx context.Context, lane Lane, now time.Time) (*Job, error)
	MarkDone(ctx context.Context, id string) error
	// Reschedule returns a failed job to pending with a new run time.
	Reschedule(ctx context.Context, id string, runAt time.Time, attempts int, lastError string) error
	MarkDead(ctx context.Context, id string, lastError string) error
	Stats(ctx context.Context) (map[Lane]LaneStats, error)
}

// MemoryStore keeps jobs in memory with the same claim semantics as the
// Postgres store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (m *MemoryStore) Enqueue(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) Claim(_ context.Context, lane Lane, now time.Time) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Job
	for _, j := range m.jobs {
		if j.Lane == lane && j.Status == StatusPending && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, k int) bool {
		if due[i].Priority != due[k].Priority {
			return due[i].Priority < due[k].Priority
		}
		return due[i].RunAt.Before(due[k].RunAt)
	})
	j := due[0]
	j.Status = StatusRunning
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) MarkDone(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Status = StatusDone
	}
	return nil
}

func (m *MemoryStore) Reschedule(_ context.Context, id string, runAt time.Time, attempts int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Status = StatusPending
		j.RunAt = runAt
		j.Attempts = attempts
		j.LastError = lastError
	}
	return nil
}

func (m *MemoryStore) MarkDead(_ context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Status = StatusDead
		j.LastError = lastError
	}
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (map[Lane]LaneStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[Lane]LaneStats{LaneIndividual: {}, LaneBulk: {}}
	for _, j := range m.jobs {
		s := out[j.Lane]
		switch j.Status {
		case StatusPending:
			s.Waiting++
		case StatusRunning:
			s.Active++
		case StatusDone:
			s.Completed++
		case StatusDead:
			s.Dead++
		}
		out[j.Lane] = s
	}
	return out, nil
}
