package profile

import (
	"context"
	"sync"
)

// Task is one outbound sync request produced by an optimistic local write.
type Task struct {
	UserID string
	Type   SyncType
	Data   any
}

// Ticket tracks a submitted Task until it reaches its terminal Outcome.
type Ticket struct {
	Task   Task
	done   chan struct{}
	result Result
}

func newTicket(task Task) *Ticket {
	return &Ticket{Task: task, done: make(chan struct{})}
}

func (t *Ticket) finish(r Result) {
	t.result = r
	close(t.done)
}

// Done is closed once the task has a terminal outcome.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the task finishes and returns its result.
func (t *Ticket) Result() Result {
	<-t.done
	return t.result
}

// Wait is Result bounded by ctx.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Syncer is the part of Service the Dispatcher drives.
type Syncer interface {
	Sync(ctx context.Context, userID string, t SyncType, data any) Result
}

// Dispatcher runs sync tasks on a single worker goroutine, in submission
// order. Tasks run on a context detached from the submitter, so a caller
// going away never aborts a write.
type Dispatcher struct {
	syncer Syncer
	tasks  chan *Ticket

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts a Dispatcher with the given submit buffer.
func NewDispatcher(syncer Syncer, buffer int) *Dispatcher {
	if buffer < 0 {
		buffer = 0
	}
	d := &Dispatcher{
		syncer: syncer,
		tasks:  make(chan *Ticket, buffer),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	ctx := context.Background()
	for ticket := range d.tasks {
		ticket.finish(d.syncer.Sync(ctx, ticket.Task.UserID, ticket.Task.Type, ticket.Task.Data))
	}
}

// Submit enqueues a task. After Close the returned ticket is already
// finished with OutcomeFailed.
func (d *Dispatcher) Submit(task Task) *Ticket {
	ticket := newTicket(task)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		ticket.finish(Result{Outcome: OutcomeFailed, Err: ErrDispatcherClosed})
		return ticket
	}
	d.tasks <- ticket
	return ticket
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.wg.Wait()
}
