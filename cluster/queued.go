package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/logger"
	"github.com/pbanos/grove/queue"
	"go.uber.org/zap"
)

// TaskError is the error of a task that failed on a worker
type TaskError struct {
	TaskID  string
	Message string
}

func (te *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s", te.TaskID, te.Message)
}

/*
Queued is a Runtime that pushes tasks to a queue.Queue for workers to
run. Workers put the results of tasks on a blob store and complete
them on the queue, where the futures returned by Submit await them.
*/
type Queued struct {
	q      queue.Queue
	store  blob.Store
	nodes  int
	poll   time.Duration
	logger *zap.Logger
}

// NewQueued returns a Queued runtime pushing tasks to the given queue
// and checking it for their outcomes every poll interval. Results are
// read from the given store. nodes is the number of nodes expected to
// run workers.
func NewQueued(q queue.Queue, store blob.Store, nodes int, poll time.Duration, l *zap.Logger) *Queued {
	if nodes < 1 {
		nodes = 1
	}
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Queued{q: q, store: store, nodes: nodes, poll: poll, logger: logger.OrNop(l)}
}

// Nodes returns the number of nodes expected to run workers
func (qr *Queued) Nodes() int { return qr.nodes }

// ResultKey returns the blob key the result of the task with the
// given ID is put at
func ResultKey(taskID string) string {
	return fmt.Sprintf("task:%s:result", taskID)
}

// Submit pushes the task to the queue
func (qr *Queued) Submit(ctx context.Context, t Task) Future {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	qt := &queue.Task{
		TaskID:    t.ID,
		Handler:   t.Handler,
		Payload:   t.Payload,
		ResultKey: ResultKey(t.ID),
	}
	if err := qr.q.Push(ctx, qt); err != nil {
		f := newFuture()
		f.resolve(nil, fmt.Errorf("submitting task %s: %w", t.ID, err))
		return f
	}
	qr.logger.Debug("task pushed", zap.String("task", t.ID), zap.String("handler", t.Handler))
	return &queuedFuture{task: qt, runtime: qr}
}

// MapReduce pushes every task to the queue and folds their results
func (qr *Queued) MapReduce(ctx context.Context, tasks []Task, reduce ReduceFunc) ([]byte, error) {
	return mapReduce(ctx, qr, tasks, reduce)
}

type queuedFuture struct {
	task    *queue.Task
	runtime *Queued
	lock    sync.Mutex
	done    bool
	result  []byte
	err     error
}

/*
Wait awaits the outcome of the task on the queue. The result of a done
task is read from the store, after which both the result and the task
are removed, so later calls return the same values without reaching
the backends.
*/
func (qf *queuedFuture) Wait(ctx context.Context) ([]byte, error) {
	qf.lock.Lock()
	defer qf.lock.Unlock()
	if qf.done {
		return qf.result, qf.err
	}
	id := qf.task.ID()
	o, err := queue.Await(ctx, qf.runtime.q, id, qf.runtime.poll)
	if err != nil {
		return nil, fmt.Errorf("waiting for task %s: %w", id, err)
	}
	if o.State == queue.Failed {
		qf.err = &TaskError{TaskID: id, Message: o.Message}
	} else {
		qf.result, err = qf.runtime.store.Get(ctx, qf.task.ResultKey)
		if err != nil {
			return nil, fmt.Errorf("getting result of task %s: %w", id, err)
		}
		if err = qf.runtime.store.Delete(ctx, qf.task.ResultKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			qf.runtime.logger.Warn("deleting task result", zap.String("task", id), zap.Error(err))
		}
	}
	qf.done = true
	if err = qf.runtime.q.Forget(ctx, id); err != nil {
		qf.runtime.logger.Warn("forgetting task", zap.String("task", id), zap.Error(err))
	}
	return qf.result, qf.err
}
