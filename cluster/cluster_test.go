package cluster

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(n uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, n)
}

// testHandlers square a number, fail on 13 and panic on 666
func testHandlers() Handlers {
	return Handlers{
		"square": func(ctx context.Context, payload []byte) ([]byte, error) {
			n := binary.LittleEndian.Uint64(payload)
			switch n {
			case 13:
				return nil, errors.New("unlucky")
			case 666:
				panic("evil")
			}
			return u64(n * n), nil
		},
	}
}

func sum(acc, result []byte) ([]byte, error) {
	if acc == nil {
		return result, nil
	}
	return u64(binary.LittleEndian.Uint64(acc) + binary.LittleEndian.Uint64(result)), nil
}

func squares(ns ...uint64) []Task {
	tasks := make([]Task, len(ns))
	for i, n := range ns {
		tasks[i] = Task{Handler: "square", Payload: u64(n)}
	}
	return tasks
}

func TestLocalSubmit(t *testing.T) {
	ctx := context.Background()
	rt := NewLocal(2, testHandlers(), nil)
	assert.Equal(t, 1, rt.Nodes())

	r, err := rt.Submit(ctx, Task{Handler: "square", Payload: u64(7)}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(49), binary.LittleEndian.Uint64(r))

	_, err = rt.Submit(ctx, Task{Handler: "square", Payload: u64(13)}).Wait(ctx)
	assert.EqualError(t, err, "unlucky")

	_, err = rt.Submit(ctx, Task{Handler: "square", Payload: u64(666)}).Wait(ctx)
	assert.Error(t, err)

	_, err = rt.Submit(ctx, Task{Handler: "cube"}).Wait(ctx)
	assert.ErrorIs(t, err, ErrUnknownHandler)
}

func TestLocalLimitsConcurrency(t *testing.T) {
	ctx := context.Background()
	var running, peak int32
	rt := NewLocal(3, Handlers{"sleep": func(ctx context.Context, payload []byte) ([]byte, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}}, nil)
	var futures []Future
	for i := 0; i < 12; i++ {
		futures = append(futures, rt.Submit(ctx, Task{Handler: "sleep"}))
	}
	for _, f := range futures {
		_, err := f.Wait(ctx)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak, int32(3))
}

func TestLocalMapReduce(t *testing.T) {
	ctx := context.Background()
	rt := NewLocal(4, testHandlers(), nil)
	r, err := rt.MapReduce(ctx, squares(1, 2, 3, 4, 5), sum)
	require.NoError(t, err)
	assert.Equal(t, uint64(55), binary.LittleEndian.Uint64(r))

	_, err = rt.MapReduce(ctx, squares(1, 13, 3), sum)
	assert.Error(t, err)

	_, err = rt.MapReduce(ctx, squares(1, 2), func(acc, result []byte) ([]byte, error) {
		return nil, errors.New("no folding")
	})
	assert.Error(t, err)

	r, err = rt.MapReduce(ctx, nil, sum)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestQueuedRuntimeWithWorkers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	q := queue.New()
	store := blob.NewMemoryStore()
	rt := NewQueued(q, store, 2, 5*time.Millisecond, nil)
	assert.Equal(t, 2, rt.Nodes())

	futures := []Future{
		rt.Submit(ctx, Task{Handler: "square", Payload: u64(9)}),
		rt.Submit(ctx, Task{Handler: "square", Payload: u64(13)}),
		rt.Submit(ctx, Task{Handler: "cube", Payload: u64(2)}),
	}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := &Worker{Queue: q, Store: store, Handlers: testHandlers(), EmptyQueueSleep: time.Millisecond}
			assert.NoError(t, w.Work(ctx))
		}()
	}

	r, err := futures[0].Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(81), binary.LittleEndian.Uint64(r))
	// waiting again returns the same result
	r, err = futures[0].Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(81), binary.LittleEndian.Uint64(r))

	_, err = futures[1].Wait(ctx)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "unlucky", te.Message)

	_, err = futures[2].Wait(ctx)
	assert.ErrorAs(t, err, &te)
	wg.Wait()

	pending, running, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending+running)
	// waited tasks leave nothing behind
	for _, f := range futures {
		id := f.(*queuedFuture).task.ID()
		o, err := q.Outcome(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.Unknown, o.State)
		_, err = store.Get(ctx, ResultKey(id))
		assert.ErrorIs(t, err, blob.ErrNotFound)
	}
}

func TestQueuedFutureReadsOutcomeFromQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	q := queue.New()
	store := blob.NewMemoryStore()
	rt := NewQueued(q, store, 1, time.Millisecond, nil)
	failing := rt.Submit(ctx, Task{ID: "bad", Handler: "square"})
	ok := rt.Submit(ctx, Task{ID: "good", Handler: "square"})

	// a task stays unfinished until completed on the queue
	short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
	_, err := failing.Wait(short)
	stop()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	for i := 0; i < 2; i++ {
		pulled, _, tcf, err := q.Pull(ctx)
		require.NoError(t, err)
		tcf()
		if pulled.ID() == "bad" {
			require.NoError(t, q.Complete(ctx, "bad", errors.New("disk full")))
			continue
		}
		require.NoError(t, store.Put(ctx, pulled.ResultKey, u64(4)))
		require.NoError(t, q.Complete(ctx, "good", nil))
	}

	_, err = failing.Wait(ctx)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, &TaskError{TaskID: "bad", Message: "disk full"}, te)
	r, err := ok.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), binary.LittleEndian.Uint64(r))

	// submitting a task ID still on the queue fails
	require.NoError(t, q.Push(ctx, &queue.Task{TaskID: "again", Handler: "square"}))
	_, err = rt.Submit(ctx, Task{ID: "again", Handler: "square"}).Wait(ctx)
	assert.Error(t, err)
}

func TestQueuedMapReduce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	q := queue.New()
	store := blob.NewMemoryStore()
	rt := NewQueued(q, store, 1, 5*time.Millisecond, nil)
	w := &Worker{Queue: q, Store: store, Handlers: testHandlers(), EmptyQueueSleep: time.Millisecond, Persistent: true}
	wctx, stop := context.WithCancel(ctx)
	done := make(chan error)
	go func() { done <- w.Work(wctx) }()

	r, err := rt.MapReduce(ctx, squares(2, 3, 4), sum)
	require.NoError(t, err)
	assert.Equal(t, uint64(29), binary.LittleEndian.Uint64(r))
	stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestHandlersMerge(t *testing.T) {
	a := Handlers{"a": nil}
	b := Handlers{"b": nil}
	m := a.Merge(b)
	assert.Len(t, m, 2)
	assert.Len(t, a, 1)
}
