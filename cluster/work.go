package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/logger"
	"github.com/pbanos/grove/metrics"
	"github.com/pbanos/grove/queue"
	"go.uber.org/zap"
)

const dropTimeout = 5 * time.Second

// Worker pulls tasks from a queue and runs them with its handlers,
// putting their results on a blob store
type Worker struct {
	Queue    queue.Queue
	Store    blob.Store
	Handlers Handlers
	// EmptyQueueSleep is the time to wait before pulling again
	// from a queue without pending tasks
	EmptyQueueSleep time.Duration
	// Persistent workers keep waiting for tasks when the
	// queue has no pending nor running tasks
	Persistent bool
	Logger     *zap.Logger
}

/*
Work takes a context and enters a loop in which the worker:
  - pulls a task from the queue,
  - runs the task's handler with the task's payload,
  - puts the handler's result on the store under the task's result key,
  - completes the task on the queue, with the handler's error if any

If at some point no task can be pulled from the queue and the sum of
tasks running and pending on the queue is 0, a worker that is not
persistent ends returning nil. Otherwise the worker will sleep for the
EmptyQueueSleep duration and then retry.

Failing tasks do not end the loop: their error is recorded on the
queue. Work will return a non-nil error if the given context times out
or is cancelled, if the store cannot take a result or if an operation
with the queue returns a non-nil error.
*/
func (w *Worker) Work(ctx context.Context) error {
	l := logger.OrNop(w.Logger)
	sleep := w.EmptyQueueSleep
	if sleep <= 0 {
		sleep = time.Second
	}
	for {
		task, tctx, tcf, err := w.Queue.Pull(ctx)
		if err != nil {
			return err
		}
		if task == nil {
			p, r, err := w.Queue.Count(ctx)
			if err != nil {
				return err
			}
			metrics.QueueDepth.WithLabelValues("pending").Set(float64(p))
			metrics.QueueDepth.WithLabelValues("running").Set(float64(r))
			if r+p == 0 && !w.Persistent {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
			continue
		}
		mctx, cancel := mergeCtxCancel(tctx, ctx)
		err = w.workTask(mctx, task, l)
		cancel()
		tcf()
		if err != nil {
			return err
		}
		err = ctx.Err()
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) workTask(ctx context.Context, task *queue.Task, l *zap.Logger) error {
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
		defer cancel()
		w.Queue.Drop(dctx, task.ID())
	}()
	l = l.With(zap.String("task", task.ID()), zap.String("handler", task.Handler))
	start := time.Now()
	var result []byte
	var err error
	if h, ok := w.Handlers[task.Handler]; ok {
		result, err = run(ctx, h, task.Payload)
	} else {
		err = fmt.Errorf("%w %q", ErrUnknownHandler, task.Handler)
	}
	if ctx.Err() != nil {
		// dropped back to the queue by the deferred call
		return ctx.Err()
	}
	metrics.TasksRun.WithLabelValues(task.Handler, metrics.Status(err)).Inc()
	if err != nil {
		l.Warn("task failed", zap.Error(err))
		return w.Queue.Complete(ctx, task.ID(), err)
	}
	if err = w.Store.Put(ctx, task.ResultKey, result); err != nil {
		return fmt.Errorf("putting result of task %s: %v", task.ID(), err)
	}
	l.Debug("task done", zap.Duration("took", time.Since(start)), zap.Int("bytes", len(result)))
	return w.Queue.Complete(ctx, task.ID(), nil)
}

func mergeCtxCancel(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	mctx, cancel := context.WithCancel(ctx1)
	go func() {
		select {
		case <-mctx.Done():
		case <-ctx2.Done():
			cancel()
		}
	}()
	return mctx, cancel
}
