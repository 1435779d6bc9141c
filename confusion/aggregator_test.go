package confusion

import (
	"context"
	"math/rand"
	"testing"

	"github.com/pbanos/grove"
	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/cluster"
	"github.com/pbanos/grove/column"
	"github.com/pbanos/grove/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store blob.Store
	rt    *cluster.Local
}

func newEnv(t *testing.T, datasets map[string][][]float64) *env {
	t.Helper()
	store := blob.NewMemoryStore()
	for key, rows := range datasets {
		require.NoError(t, dataset.PutStore(context.Background(), store, key, newStore(t, rows)))
	}
	cache := dataset.NewCache(store)
	handlers := grove.Handlers(cache, 2, 64, nil).Merge(Handlers(store, cache, nil))
	return &env{store: store, rt: cluster.NewLocal(4, handlers, nil)}
}

func newStore(t *testing.T, rows [][]float64) *column.Store {
	t.Helper()
	names := make([]string, len(rows[0]))
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	s, err := column.New(names, len(names)-1)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, s.AddRow(r))
	}
	require.NoError(t, s.Freeze(0))
	return s
}

func (e *env) grow(t *testing.T, key string, trees int) *grove.Forest {
	t.Helper()
	p := grove.DefaultParams()
	p.TreesPerNode = trees
	d := &grove.Dispatcher{Store: e.store, Runtime: e.rt}
	f, err := d.Dispatch(context.Background(), grove.DispatchRequest{ForestKey: key, DatasetKey: "ds", Params: p})
	require.NoError(t, err)
	return f
}

// twoClassRows returns rows with 2 features and a class in [0, 2)
// that mostly depends on the first feature
func twoClassRows(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		a, b := rng.Float64()*10, float64(rng.Intn(5))
		class := 0.0
		if a > 5 {
			class = 1
		}
		if rng.Intn(10) == 0 {
			class = 1 - class
		}
		rows[i] = []float64{a, b, class}
	}
	return rows
}

func TestTwentyRowsTenTrees(t *testing.T) {
	rows := make([][]float64, 20)
	for i := range rows {
		class := 0.0
		if i >= 10 {
			class = 1
		}
		rows[i] = []float64{float64(i), class}
	}
	e := newEnv(t, map[string][][]float64{"ds": rows})
	e.grow(t, "f", 10)
	r, err := Run(context.Background(), e.store, e.rt, Query{ForestKey: "f"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, r.TreesProcessed)
	assert.True(t, r.Final)
	assert.Equal(t, int64(0), r.Unresolved)
	assert.Equal(t, int64(20), r.Matrix[0][0]+r.Matrix[0][1]+r.Matrix[1][0]+r.Matrix[1][1])
}

func TestRefreshIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, map[string][][]float64{"ds": twoClassRows(150, 1)})
	e.grow(t, "f", 10)
	a := NewAggregator(e.store, e.rt, Query{ForestKey: "f"}, nil)
	first, err := a.Refresh(ctx)
	require.NoError(t, err)
	second, err := a.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	again, err := Run(ctx, e.store, e.rt, Query{ForestKey: "f"}, nil)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, int64(150), again.Matrix.Total())

	snapshot, err := e.store.Get(ctx, ResultKey("f", "ds"))
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot)
}

func TestRefreshIsIncremental(t *testing.T) {
	ctx := context.Background()
	rows := twoClassRows(120, 2)
	e := newEnv(t, map[string][][]float64{"ds": rows})
	f := e.grow(t, "f", 10)

	partial := *f
	partial.Key = "partial"
	partial.Done = false
	partial.TreeKeys = f.TreeKeys[:4]
	require.NoError(t, partial.Save(ctx, e.store))

	a := NewAggregator(e.store, e.rt, Query{ForestKey: "partial"}, nil)
	r, err := a.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, r.Final)
	assert.Equal(t, 4, r.TreesProcessed)
	assert.Equal(t, int64(len(rows)), r.Matrix.Total()+r.Unresolved)

	data, err := e.store.Get(ctx, VoteKey("partial", "ds", false, 0, len(rows)))
	require.NoError(t, err)
	vt, err := UnmarshalVoteTable(data)
	require.NoError(t, err)
	assert.Equal(t, 4, vt.Processed)
	assert.Equal(t, len(rows), vt.Rows())

	partial.TreeKeys = f.TreeKeys
	partial.Done = true
	require.NoError(t, partial.Save(ctx, e.store))
	r, err = a.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, r.Final)
	assert.Equal(t, 10, r.TreesProcessed)
	_, err = e.store.Get(ctx, VoteKey("partial", "ds", false, 0, len(rows)))
	assert.ErrorIs(t, err, blob.ErrNotFound)

	full, err := Run(ctx, e.store, e.rt, Query{ForestKey: "f"}, nil)
	require.NoError(t, err)
	assert.Equal(t, full.Matrix, r.Matrix)
	assert.Equal(t, full.Unresolved, r.Unresolved)
}

func TestRefreshDetectsVoteMismatch(t *testing.T) {
	ctx := context.Background()
	rows := twoClassRows(60, 3)
	e := newEnv(t, map[string][][]float64{"ds": rows})
	f := e.grow(t, "f", 6)
	f.Key = "partial"
	f.Done = false
	f.TreeKeys = f.TreeKeys[:4]
	require.NoError(t, f.Save(ctx, e.store))

	vt := NewVoteTable(len(rows), f.Classes)
	vt.Processed = 2
	data, err := vt.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, e.store.Put(ctx, VoteKey("partial", "ds", false, 0, len(rows)), data))

	_, err = Run(ctx, e.store, e.rt, Query{ForestKey: "partial"}, nil)
	assert.ErrorIs(t, err, ErrVoteMismatch)
}

func TestChunksDoNotChangeTheMatrix(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, map[string][][]float64{"ds": twoClassRows(100, 4)})
	e.grow(t, "f", 9)
	whole, err := Run(ctx, e.store, e.rt, Query{ForestKey: "f"}, nil)
	require.NoError(t, err)
	chunked, err := Run(ctx, e.store, e.rt, Query{ForestKey: "f", ChunkRows: 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, whole.Matrix, chunked.Matrix)
	assert.Equal(t, int64(0), chunked.Unresolved)
}

func TestMaxTrees(t *testing.T) {
	e := newEnv(t, map[string][][]float64{"ds": twoClassRows(80, 5)})
	e.grow(t, "f", 10)
	r, err := Run(context.Background(), e.store, e.rt, Query{ForestKey: "f", MaxTrees: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, r.TreesProcessed)
	assert.True(t, r.Final)
	assert.Equal(t, int64(0), r.Unresolved)
	assert.Equal(t, int64(80), r.Matrix.Total())
}

func TestOutOfBag(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, map[string][][]float64{
		"ds":    twoClassRows(200, 6),
		"other": twoClassRows(50, 7),
		"wide":  randomWideRows(30),
	})
	e.grow(t, "f", 10)
	r, err := Run(ctx, e.store, e.rt, Query{ForestKey: "f", OutOfBag: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200), r.Matrix.Total()+r.Unresolved)
	assert.Less(t, r.Matrix.ErrorRate(), 0.5)

	_, err = Run(ctx, e.store, e.rt, Query{ForestKey: "f", DatasetKey: "other", OutOfBag: true}, nil)
	assert.Error(t, err)

	r, err = Run(ctx, e.store, e.rt, Query{ForestKey: "f", DatasetKey: "other"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(50), r.Matrix.Total())

	_, err = Run(ctx, e.store, e.rt, Query{ForestKey: "f", DatasetKey: "wide"}, nil)
	assert.Error(t, err)
}

func randomWideRows(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{float64(i), float64(i % 3), float64(i % 5), float64(i % 2)}
	}
	return rows
}

func TestMissingForest(t *testing.T) {
	e := newEnv(t, map[string][][]float64{"ds": twoClassRows(10, 8)})
	_, err := Run(context.Background(), e.store, e.rt, Query{ForestKey: "nope"}, nil)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}
