package queue

import (
	"context"
	"sync"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// MemoryQueue is an in-process queue for single-node deployments and tests.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []types.RetrainJob
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job types.RetrainJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// Jobs returns a copy of all enqueued jobs.
func (q *MemoryQueue) Jobs() []types.RetrainJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.RetrainJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Drain removes and returns all enqueued jobs.
func (q *MemoryQueue) Drain() []types.RetrainJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.jobs
	q.jobs = nil
	return out
}
