package pose

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/pkg/errors"
)

// Handle is the future of a dispatched evaluation task. It is closed once the task body has
// returned, successfully or not.
type Handle struct {
	done chan struct{}
	once sync.Once
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done returns a channel closed when the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task has finished.
func (h *Handle) Wait() {
	<-h.done
}

// IsDone reports whether the task has finished without blocking.
func (h *Handle) IsDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) finish() {
	h.once.Do(func() { close(h.done) })
}

// TaskRunner executes evaluation task bodies off the calling thread.
type TaskRunner interface {
	// Submit queues task for execution. It may block while the runner's queue is full.
	//
	// Parameters:
	//   - task: the task body
	//
	// Returns:
	//   - error: an error if the task could not be queued
	Submit(task func()) error
}

// poolRunner adapts a worker.DynamicWorkerPool to TaskRunner.
type poolRunner struct {
	pool   worker.DynamicWorkerPool
	nextID atomic.Int64
}

// NewPoolRunner wraps a started worker pool as a TaskRunner.
//
// Parameters:
//   - pool: the worker pool; the caller owns its lifecycle
//
// Returns:
//   - TaskRunner: a runner submitting to pool
func NewPoolRunner(pool worker.DynamicWorkerPool) TaskRunner {
	return &poolRunner{pool: pool}
}

func (r *poolRunner) Submit(task func()) error {
	if r.pool == nil {
		return errors.New("worker pool is nil")
	}
	id := int(r.nextID.Add(1))
	r.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			task()
			return nil, nil
		},
	})
	return nil
}

// InlineRunner runs tasks synchronously on the calling goroutine.
type InlineRunner struct{}

// Submit runs task immediately.
func (InlineRunner) Submit(task func()) error {
	task()
	return nil
}

// CompletionQueue marshals completion continuations onto the thread that owns pose state.
type CompletionQueue interface {
	// Post schedules fn on the owning thread. Posting never blocks; a dropped post is recovered
	// by the owner's next Tick or WaitForCompletion.
	//
	// Parameters:
	//   - fn: the continuation
	Post(fn func())
}

// MainThreadQueue is a bounded CompletionQueue drained explicitly by the owning thread.
type MainThreadQueue struct {
	ch      chan func()
	dropped atomic.Int64
}

// NewMainThreadQueue creates a queue holding up to size pending continuations.
func NewMainThreadQueue(size int) *MainThreadQueue {
	return &MainThreadQueue{ch: make(chan func(), max(size, 1))}
}

// Post schedules fn, dropping it if the queue is full.
func (q *MainThreadQueue) Post(fn func()) {
	select {
	case q.ch <- fn:
	default:
		q.dropped.Add(1)
	}
}

// Pump runs every queued continuation without blocking and returns how many ran.
// Must be called from the owning thread.
func (q *MainThreadQueue) Pump() int {
	n := 0
	for {
		select {
		case fn := <-q.ch:
			fn()
			n++
		default:
			return n
		}
	}
}

// Dropped returns how many posts were discarded because the queue was full.
func (q *MainThreadQueue) Dropped() int64 {
	return q.dropped.Load()
}
