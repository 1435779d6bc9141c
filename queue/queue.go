package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the state of a task on a queue
type State uint8

const (
	// Unknown tasks were never pushed or have been forgotten
	Unknown State = iota
	// Pending tasks wait to be pulled
	Pending
	// Running tasks have been pulled by a worker
	Running
	// Done tasks were completed without error
	Done
	// Failed tasks were completed with an error
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Finished returns whether the state is Done or Failed
func (s State) Finished() bool { return s == Done || s == Failed }

// Outcome is what a queue knows about a pushed task. Message holds the
// error message of Failed tasks.
type Outcome struct {
	State   State
	Message string
}

/*
Queue keeps the tasks of a training run until workers pull them, and
their outcomes once workers complete them. Outcomes stay on the queue
until the submitter forgets them, results being kept elsewhere under
the task's ResultKey.

Pulled tasks are either completed or dropped, which makes them pending
again. All methods take a context.Context that implementations may use
for timeouts and cancellations.
*/
type Queue interface {
	// Push adds a pending task to the queue. Pushing a task ID the
	// queue already knows is an error.
	Push(context.Context, *Task) error
	// Pull returns a pending task, now running, along with a context
	// for running it and its cancel function. Without pending tasks
	// it returns 4 nil values.
	Pull(context.Context) (*Task, context.Context, context.CancelFunc, error)
	// Drop makes the running task with the given ID pending again.
	// It does nothing to tasks that are not running.
	Drop(context.Context, string) error
	// Complete finishes the running task with the given ID, as Failed
	// with the message of failure if it is not nil, or as Done
	// otherwise. It does nothing to tasks that are not running.
	Complete(ctx context.Context, id string, failure error) error
	// Outcome returns the state of the task with the given ID
	Outcome(context.Context, string) (Outcome, error)
	// Forget removes a finished task from the queue
	Forget(context.Context, string) error
	// Count returns the number of pending and running tasks
	Count(context.Context) (int, int, error)
	// Stop cancels the contexts of pulled tasks and frees the
	// resources of the queue
	Stop(context.Context) error
}

/*
Await polls the queue every poll interval until the task with the given
ID is finished, returning its outcome. It fails if the context is done
first or if the queue does not know the task.
*/
func Await(ctx context.Context, q Queue, id string, poll time.Duration) (Outcome, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		o, err := q.Outcome(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		switch {
		case o.State.Finished():
			return o, nil
		case o.State == Unknown:
			return o, fmt.Errorf("awaiting task %s: not on the queue", id)
		}
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

type memTask struct {
	task *Task
	Outcome
}

type memQueue struct {
	lock    sync.Mutex
	fifo    []string
	tasks   map[string]*memTask
	running int
	ctx     context.Context
	stop    context.CancelFunc
}

// New returns a queue backed only by the process memory
func New() Queue {
	ctx, stop := context.WithCancel(context.Background())
	return &memQueue{tasks: make(map[string]*memTask), ctx: ctx, stop: stop}
}

func (mq *memQueue) Push(ctx context.Context, t *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mq.lock.Lock()
	defer mq.lock.Unlock()
	if _, ok := mq.tasks[t.ID()]; ok {
		return fmt.Errorf("pushing task %s to queue: already pushed", t.ID())
	}
	mq.tasks[t.ID()] = &memTask{task: t, Outcome: Outcome{State: Pending}}
	mq.fifo = append(mq.fifo, t.ID())
	return nil
}

func (mq *memQueue) Pull(ctx context.Context) (*Task, context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	mq.lock.Lock()
	defer mq.lock.Unlock()
	for len(mq.fifo) > 0 {
		id := mq.fifo[0]
		mq.fifo[0] = ""
		mq.fifo = mq.fifo[1:]
		mt, ok := mq.tasks[id]
		if !ok || mt.State != Pending {
			continue
		}
		mt.State = Running
		mq.running++
		tctx, cancel := context.WithCancel(mq.ctx)
		return mt.task, tctx, cancel, nil
	}
	return nil, nil, nil, nil
}

func (mq *memQueue) Drop(ctx context.Context, id string) error {
	mq.lock.Lock()
	defer mq.lock.Unlock()
	if mt, ok := mq.tasks[id]; ok && mt.State == Running {
		mt.State = Pending
		mq.running--
		mq.fifo = append(mq.fifo, id)
	}
	return nil
}

func (mq *memQueue) Complete(ctx context.Context, id string, failure error) error {
	mq.lock.Lock()
	defer mq.lock.Unlock()
	mt, ok := mq.tasks[id]
	if !ok || mt.State != Running {
		return nil
	}
	mq.running--
	mt.Outcome = finished(failure)
	return nil
}

func (mq *memQueue) Outcome(ctx context.Context, id string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	mq.lock.Lock()
	defer mq.lock.Unlock()
	if mt, ok := mq.tasks[id]; ok {
		return mt.Outcome, nil
	}
	return Outcome{}, nil
}

func (mq *memQueue) Forget(ctx context.Context, id string) error {
	mq.lock.Lock()
	defer mq.lock.Unlock()
	mt, ok := mq.tasks[id]
	if !ok {
		return nil
	}
	if !mt.State.Finished() {
		return fmt.Errorf("forgetting task %s: still %v", id, mt.State)
	}
	delete(mq.tasks, id)
	return nil
}

func (mq *memQueue) Count(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	mq.lock.Lock()
	defer mq.lock.Unlock()
	var pending int
	for _, id := range mq.fifo {
		if mt, ok := mq.tasks[id]; ok && mt.State == Pending {
			pending++
		}
	}
	return pending, mq.running, nil
}

func (mq *memQueue) Stop(ctx context.Context) error {
	mq.stop()
	return nil
}

func (mq *memQueue) String() string {
	mq.lock.Lock()
	defer mq.lock.Unlock()
	return fmt.Sprintf("{Queue tasks: %d running: %d}", len(mq.tasks), mq.running)
}

// finished returns the outcome of a task completed with the given error
func finished(failure error) Outcome {
	if failure != nil {
		return Outcome{State: Failed, Message: failure.Error()}
	}
	return Outcome{State: Done}
}
