/*
Package cluster provides the task runtime grove distributes its work
on. Work is expressed as tasks naming a handler and carrying an opaque
payload: a runtime submits them to be run locally or by workers on
other nodes and hands back futures for their results.
*/
package cluster

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrUnknownHandler is returned for tasks naming a handler that is not
// registered
var ErrUnknownHandler = errors.New("unknown task handler")

// Handler runs a task: it takes its payload and returns its result
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Handlers maps handler names to the handlers registered under them
type Handlers map[string]Handler

// Merge returns a new Handlers holding the handlers of hs and the
// given ones
func (hs Handlers) Merge(others ...Handlers) Handlers {
	result := make(Handlers, len(hs))
	for name, h := range hs {
		result[name] = h
	}
	for _, o := range others {
		for name, h := range o {
			result[name] = h
		}
	}
	return result
}

// Task is a unit of work to run on a runtime
type Task struct {
	// ID identifies the task. Runtimes assign one if empty.
	ID string
	// Handler is the name of the handler to run the task with
	Handler string
	// Payload is handed to the handler
	Payload []byte
}

// Future is the eventual result of a submitted task
type Future interface {
	// Wait blocks until the task has run or the context is done,
	// and returns the result of the task or its error.
	Wait(ctx context.Context) ([]byte, error)
}

/*
ReduceFunc folds the result of a task into an accumulated result and
returns the new accumulated result. It is called with a nil accumulated
result for the first task to finish. Results are folded in the order
tasks finish, so the function must be commutative and associative.
*/
type ReduceFunc func(acc, result []byte) ([]byte, error)

// Runtime is an interface for objects able to run tasks
type Runtime interface {
	// Nodes returns the number of nodes running tasks
	Nodes() int
	// Submit takes a task and schedules it to run, returning
	// a future for its result. Failing to schedule the task is
	// reported through the future.
	Submit(context.Context, Task) Future
	// MapReduce submits every given task and folds their results
	// with the given ReduceFunc. It returns the folded result, or
	// the first error returned by a task or the ReduceFunc.
	MapReduce(context.Context, []Task, ReduceFunc) ([]byte, error)
}

func mapReduce(ctx context.Context, rt Runtime, tasks []Task, reduce ReduceFunc) ([]byte, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make(chan []byte)
	for i, t := range tasks {
		f := rt.Submit(gctx, t)
		g.Go(func() error {
			r, err := f.Wait(gctx)
			if err != nil {
				return fmt.Errorf("mapping task %d: %w", i, err)
			}
			select {
			case results <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	var acc []byte
	var reduceErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if reduceErr != nil {
				continue
			}
			acc, reduceErr = reduce(acc, r)
		}
	}()
	err := g.Wait()
	close(results)
	<-done
	if err != nil {
		return nil, err
	}
	if reduceErr != nil {
		return nil, fmt.Errorf("reducing task results: %w", reduceErr)
	}
	return acc, nil
}

type future struct {
	done   chan struct{}
	result []byte
	err    error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(result []byte, err error) {
	f.result, f.err = result, err
	close(f.done)
}

func (f *future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.result, f.err
	}
}

// run calls the handler, turning a panic into an error so that a
// failing task does not take down the rest
func run(ctx context.Context, h Handler, payload []byte) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("task handler panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}
