// Package queue dispatches retrain jobs to the external training
// collaborator. Driftlock only enqueues; it never runs training itself.
package queue

import (
	"context"
	"fmt"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// Queue is the retrain job dispatch interface.
type Queue interface {
	// Enqueue submits a retrain job for asynchronous execution.
	Enqueue(ctx context.Context, job types.RetrainJob) error
}

// New builds a Queue from config.
func New(cfg types.QueueConfig) (Queue, error) {
	switch cfg.Type {
	case types.QueueSQS:
		return NewSQSQueue(cfg.QueueURL)
	case types.QueueMemory, "":
		return NewMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}
