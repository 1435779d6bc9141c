package grove

import (
	"context"
	"math/rand"
	"testing"

	"github.com/pbanos/grove/column"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/split"
	"github.com/pbanos/grove/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

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

// randomRows returns rows with 4 features and a class in [0, 3) that
// mostly depends on the first two features
func randomRows(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		a, b := rng.Float64()*10, float64(rng.Intn(20))
		c, d := rng.NormFloat64(), float64(rng.Intn(3))
		class := 0.0
		switch {
		case a > 6 && b > 8:
			class = 2
		case a > 3:
			class = 1
		}
		if rng.Intn(10) == 0 {
			class = float64(rng.Intn(3))
		}
		rows[i] = []float64{a, b, c, d, class}
	}
	return rows
}

func rootView(t *testing.T, s *column.Store) *dataset.View {
	t.Helper()
	v, err := dataset.NewRoot(s)
	require.NoError(t, err)
	return v
}

func TestSingleSplitSeparatesClasses(t *testing.T) {
	s := newStore(t, [][]float64{{1, 0}, {1, 0}, {2, 1}, {2, 1}})
	p := DefaultParams()
	require.NoError(t, p.Validate(s.Columns(), 2))
	g := NewGrower(p)
	rng := rand.New(rand.NewSource(1))
	st, err := split.New(s, p.SplitConfig(), rng)
	require.NoError(t, err)
	b := &builder{grower: g, pruning: g.Pruning, config: p.SplitConfig()}
	tr, err := b.build(rootView(t, s), split.RootBounds(s, p.SplitStrategy.Scale()), 0, rng, st, 0)
	require.NoError(t, err)

	assert.Equal(t, tree.NewSplit(split.Entropy, 0, 1.5, tree.NewLeaf(0), tree.NewLeaf(1)), tr)
	bits, err := tree.Encode(tr)
	require.NoError(t, err)
	for r := 0; r < s.Rows(); r++ {
		values := tree.ValueSlice{s.Value(0, r)}
		assert.Equal(t, s.Class(r), tree.Classify(bits, values))
		assert.Equal(t, s.Class(r), tr.Classify(values))
	}
}

func TestGrownTreesClassifyAlikeEncoded(t *testing.T) {
	s := newStore(t, randomRows(500, 3))
	root := rootView(t, s)
	for _, strategy := range []split.Strategy{split.Entropy, split.Gini} {
		p := DefaultParams()
		p.SplitStrategy = strategy
		require.NoError(t, p.Validate(s.Columns(), 3))
		g := NewGrower(p)
		for i := 0; i < 5; i++ {
			tr, err := g.Grow(context.Background(), root, TreeSeed(p.Seed, i))
			require.NoError(t, err)
			bits, err := tree.Encode(tr)
			require.NoError(t, err)
			assert.Equal(t, tr.SubsetID, tree.SubsetID(bits))
			for r := 0; r < root.Rows(); r++ {
				row := root.Row(r)
				assert.Equal(t, tr.Classify(row), tree.Classify(bits, row))
			}
			decoded, err := tree.Decode(bits)
			require.NoError(t, err)
			assert.Equal(t, tr, decoded)
		}
	}
}

func TestGrowIsDeterministic(t *testing.T) {
	s := newStore(t, randomRows(2000, 5))
	root := rootView(t, s)
	p := DefaultParams()
	require.NoError(t, p.Validate(s.Columns(), 3))

	sequential := NewGrower(p)
	sequential.ForkThreshold = 0
	forking := NewGrower(p)
	forking.ForkThreshold = 10
	forking.Forks = semaphore.NewWeighted(8)

	for i := 0; i < 3; i++ {
		seed := TreeSeed(p.Seed, i)
		a, err := sequential.Grow(context.Background(), root, seed)
		require.NoError(t, err)
		b, err := forking.Grow(context.Background(), root, seed)
		require.NoError(t, err)
		abits, err := tree.Encode(a)
		require.NoError(t, err)
		bbits, err := tree.Encode(b)
		require.NoError(t, err)
		assert.Equal(t, abits, bbits)
	}
}

func TestSubsetIDReplaysSample(t *testing.T) {
	s := newStore(t, randomRows(200, 8))
	root := rootView(t, s)
	p := DefaultParams()
	require.NoError(t, p.Validate(s.Columns(), 3))
	seed := TreeSeed(p.Seed, 0)
	tr, err := NewGrower(p).Grow(context.Background(), root, seed)
	require.NoError(t, err)

	sample, err := root.Sample(rand.New(rand.NewSource(seed)), p.SampleOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(tr.SubsetID), sample.Seed())
	replayed, err := root.SampleWithSeed(int64(tr.SubsetID), p.SampleOptions())
	require.NoError(t, err)
	for r := 0; r < s.Rows(); r++ {
		assert.Equal(t, sample.InBag(r), replayed.InBag(r))
	}
}

func TestMaxDepth(t *testing.T) {
	s := newStore(t, randomRows(300, 4))
	root := rootView(t, s)
	for depth := 0; depth < 4; depth++ {
		p := DefaultParams()
		p.MaxDepth = depth
		require.NoError(t, p.Validate(s.Columns(), 3))
		tr, err := NewGrower(p).Grow(context.Background(), root, 7)
		require.NoError(t, err)
		assert.LessOrEqual(t, tr.Depth(), depth)
	}
}

func TestMinFitnessPrunes(t *testing.T) {
	s := newStore(t, randomRows(300, 4))
	root := rootView(t, s)
	p := DefaultParams()
	require.NoError(t, p.Validate(s.Columns(), 3))
	full, err := NewGrower(p).Grow(context.Background(), root, 7)
	require.NoError(t, err)

	p.MinFitness = 1
	pruned, err := NewGrower(p).Grow(context.Background(), root, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned.Size())
	assert.Greater(t, full.Size(), 1)
}

func TestMinRowsPrunes(t *testing.T) {
	s := newStore(t, randomRows(300, 5))
	root := rootView(t, s)
	p := DefaultParams()
	p.MinRows = 20
	require.NoError(t, p.Validate(s.Columns(), 3))
	g := NewGrower(p)
	tr, err := g.Grow(context.Background(), root, 9)
	require.NoError(t, err)
	assert.Greater(t, tr.Size(), 1)

	sample, err := root.SampleWithSeed(int64(tr.SubsetID), p.SampleOptions())
	require.NoError(t, err)
	leaves := make(map[int]int)
	sample.Each(func(r dataset.Row) {
		leaves[leafOf(tr, r)]++
	})
	for leaf, rows := range leaves {
		assert.GreaterOrEqual(t, rows, p.MinRows, "leaf %d", leaf)
	}

	p.MinRows = -1
	assert.ErrorIs(t, p.Validate(s.Columns(), 3), ErrInvalidParams)
}

// leafOf returns the index of the node of the tree a row ends at
func leafOf(tr *tree.Tree, v tree.Values) int {
	i := 0
	for !tr.Nodes[i].Leaf {
		n := tr.Nodes[i]
		if float32(v.Value(n.Column)) > n.Threshold {
			i = n.Right
		} else {
			i = n.Left
		}
	}
	return i
}

func TestAnyPruner(t *testing.T) {
	yes := PrunerFunc(func(*dataset.View, *Partition) bool { return true })
	assert.True(t, AnyPruner(NoPruner(), yes).Prune(nil, nil))
	assert.False(t, AnyPruner(NoPruner(), NoPruner()).Prune(nil, nil))
	assert.False(t, AnyPruner().Prune(nil, nil))
}

func TestGrowHonorsCancelledContext(t *testing.T) {
	s := newStore(t, randomRows(50, 4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGrower(DefaultParams()).Grow(ctx, rootView(t, s), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTreeSeed(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		seed := TreeSeed(42, i)
		assert.False(t, seen[seed])
		seen[seed] = true
		assert.Equal(t, seed, TreeSeed(42, i))
	}
	assert.NotEqual(t, TreeSeed(1, 0), TreeSeed(2, 0))
}
