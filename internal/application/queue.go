package application

import (
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
)

// EvalQueue bounds the number of submissions undergoing alignment and scoring
// concurrently. Admission never blocks: when the queue is at capacity, Admit
// fails with ErrQueueFull and the caller retries later.
type EvalQueue struct {
	sem *semaphore.Weighted
}

// NewEvalQueue creates a queue with the given capacity
func NewEvalQueue(limit int) *EvalQueue {
	return &EvalQueue{sem: semaphore.NewWeighted(int64(limit))}
}

// Admit claims one evaluation slot. The returned slot must be released on
// every path, success or failure, once the evaluation it guards is resolved.
func (q *EvalQueue) Admit() (*Slot, error) {
	if !q.sem.TryAcquire(1) {
		return nil, domain.ErrQueueFull
	}
	return &Slot{sem: q.sem}, nil
}

// Slot is a capability token for one admitted evaluation. Releasing it more
// than once is safe; only the first release returns the slot.
type Slot struct {
	sem  *semaphore.Weighted
	once sync.Once
}

// Release returns the slot to the queue
func (s *Slot) Release() {
	s.once.Do(func() {
		s.sem.Release(1)
	})
}
