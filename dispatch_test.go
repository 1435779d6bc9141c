package grove

import (
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/cluster"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, rows [][]float64) (*Dispatcher, *cluster.Local) {
	t.Helper()
	store := blob.NewMemoryStore()
	require.NoError(t, dataset.PutStore(context.Background(), store, "ds", newStore(t, rows)))
	datasets := dataset.NewCache(store)
	rt := cluster.NewLocal(4, Handlers(datasets, 4, 64, nil), nil)
	return &Dispatcher{Store: store, Runtime: rt, Datasets: datasets}, rt
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t, randomRows(400, 11))
	p := DefaultParams()
	p.TreesPerNode = 6
	f, err := d.Dispatch(ctx, DispatchRequest{ForestKey: "f", DatasetKey: "ds", Params: p})
	require.NoError(t, err)
	assert.True(t, f.Done)
	assert.Equal(t, 6, f.Total)
	assert.Equal(t, 0, f.Failed)
	require.Len(t, f.TreeKeys, 6)
	assert.Equal(t, TreeKey("f", 0), f.TreeKeys[0])
	assert.Equal(t, 4, f.Params.ClassColumn)

	loaded, err := LoadForest(ctx, d.Store, "f")
	require.NoError(t, err)
	assert.Equal(t, f, loaded)
	assert.Equal(t, 6, loaded.FinalSize())

	trees, err := loaded.Trees(ctx, d.Store, 4)
	require.NoError(t, err)
	require.Len(t, trees, 4)
	for _, bits := range trees {
		assert.NoError(t, tree.Validate(bits))
	}
}

func TestDispatchIsDeterministic(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t, randomRows(400, 12))
	p := DefaultParams()
	p.TreesPerNode = 4
	a, err := d.Dispatch(ctx, DispatchRequest{DatasetKey: "ds", Params: p})
	require.NoError(t, err)
	b, err := d.Dispatch(ctx, DispatchRequest{DatasetKey: "ds", Params: p})
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, b.Key)
	atrees, err := a.Trees(ctx, d.Store, 0)
	require.NoError(t, err)
	btrees, err := b.Trees(ctx, d.Store, 0)
	require.NoError(t, err)
	assert.Equal(t, atrees, btrees)
}

func TestDispatchRejectsInvalidParams(t *testing.T) {
	d, _ := newDispatcher(t, randomRows(50, 1))
	p := DefaultParams()
	p.SampleFraction = 0
	f, err := d.Dispatch(context.Background(), DispatchRequest{ForestKey: "f", DatasetKey: "ds", Params: p})
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Nil(t, f)
	_, err = d.Store.Get(context.Background(), "f")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	_, err = d.Dispatch(context.Background(), DispatchRequest{DatasetKey: "nope", Params: DefaultParams()})
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

// failingRuntime fails the grow tasks of the given tree indexes
type failingRuntime struct {
	cluster.Runtime
	fail map[int]bool
}

type failedFuture struct{}

func (failedFuture) Wait(context.Context) ([]byte, error) { return nil, errors.New("node lost") }

func (fr *failingRuntime) Submit(ctx context.Context, t cluster.Task) cluster.Future {
	task := &growTask{}
	if err := json.Unmarshal(t.Payload, task); err == nil && fr.fail[task.Index] {
		return failedFuture{}
	}
	return fr.Runtime.Submit(ctx, t)
}

func TestDispatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	d, rt := newDispatcher(t, randomRows(300, 13))
	d.Runtime = &failingRuntime{Runtime: rt, fail: map[int]bool{1: true, 3: true}}
	p := DefaultParams()
	p.TreesPerNode = 5
	f, err := d.Dispatch(ctx, DispatchRequest{ForestKey: "f", DatasetKey: "ds", Params: p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tree 1")
	assert.Contains(t, err.Error(), "tree 3")
	require.NotNil(t, f)
	assert.Equal(t, 2, f.Failed)
	assert.Equal(t, []string{TreeKey("f", 0), TreeKey("f", 2), TreeKey("f", 4)}, f.TreeKeys)
	assert.Equal(t, 3, f.FinalSize())
}

// cancellingRuntime cancels the dispatch after a number of submissions
type cancellingRuntime struct {
	cluster.Runtime
	after     int
	submitted int
	cancel    context.CancelFunc
}

func (cr *cancellingRuntime) Submit(ctx context.Context, t cluster.Task) cluster.Future {
	f := cr.Runtime.Submit(ctx, t)
	cr.submitted++
	if cr.submitted == cr.after {
		cr.cancel()
	}
	return f
}

func TestDispatchKeepsSubmittedTreesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, rt := newDispatcher(t, randomRows(300, 14))
	d.Runtime = &cancellingRuntime{Runtime: rt, after: 4, cancel: cancel}
	p := DefaultParams()
	p.TreesPerNode = 6
	f, err := d.Dispatch(ctx, DispatchRequest{ForestKey: "f", DatasetKey: "ds", Params: p})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "tree 4: not submitted")
	assert.Contains(t, err.Error(), "tree 5: not submitted")
	assert.NotContains(t, err.Error(), "tree 0")
	require.NotNil(t, f)
	assert.True(t, f.Done)
	assert.Equal(t, 2, f.Failed)
	assert.Equal(t, []string{TreeKey("f", 0), TreeKey("f", 1), TreeKey("f", 2), TreeKey("f", 3)}, f.TreeKeys)
	assert.Equal(t, 4, f.FinalSize())

	loaded, err := LoadForest(context.Background(), d.Store, "f")
	require.NoError(t, err)
	assert.Equal(t, f, loaded)
	trees, err := loaded.Trees(context.Background(), d.Store, 0)
	require.NoError(t, err)
	for _, bits := range trees {
		assert.NoError(t, tree.Validate(bits))
	}
}
