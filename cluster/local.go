package cluster

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/pbanos/grove/logger"
	"github.com/pbanos/grove/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Local is a Runtime running tasks on goroutines of the current
// process, at most a given number of them at a time.
type Local struct {
	handlers Handlers
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

// NewLocal returns a Local runtime running at most the given number of
// tasks at a time with the given handlers. A number of workers below 1
// means one per CPU.
func NewLocal(workers int, handlers Handlers, l *zap.Logger) *Local {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Local{
		handlers: handlers,
		sem:      semaphore.NewWeighted(int64(workers)),
		logger:   logger.OrNop(l),
	}
}

// Nodes returns 1
func (l *Local) Nodes() int { return 1 }

// Submit runs the task on a goroutine as soon as a worker slot is
// available
func (l *Local) Submit(ctx context.Context, t Task) Future {
	f := newFuture()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	h, ok := l.handlers[t.Handler]
	if !ok {
		f.resolve(nil, fmt.Errorf("submitting task %s: %w %q", t.ID, ErrUnknownHandler, t.Handler))
		return f
	}
	go func() {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			f.resolve(nil, fmt.Errorf("scheduling task %s: %w", t.ID, err))
			return
		}
		defer l.sem.Release(1)
		result, err := run(ctx, h, t.Payload)
		metrics.TasksRun.WithLabelValues(t.Handler, metrics.Status(err)).Inc()
		if err != nil {
			l.logger.Debug("task failed", zap.String("task", t.ID), zap.String("handler", t.Handler), zap.Error(err))
		}
		f.resolve(result, err)
	}()
	return f
}

// MapReduce runs every task and folds their results
func (l *Local) MapReduce(ctx context.Context, tasks []Task, reduce ReduceFunc) ([]byte, error) {
	return mapReduce(ctx, l, tasks, reduce)
}
