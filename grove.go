/*
Package grove grows random forests: ensembles of decision trees, each
grown on a bootstrap sample of the rows of a frozen column store,
splitting nodes on a random subset of the columns.

Growers build single trees, in parallel within a tree when nodes are
large enough. Dispatchers distribute the trees of a forest as tasks on
a cluster runtime and keep the list of trees built on a blob store.
*/
package grove

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/logger"
	"github.com/pbanos/grove/metrics"
	"github.com/pbanos/grove/split"
	"github.com/pbanos/grove/tree"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultForkThreshold is the number of rows a node needs for its
// subtrees to be grown concurrently, unless told otherwise
const DefaultForkThreshold = 4096

// Grower grows decision trees
type Grower struct {
	Params  Params
	Pruning *PruningStrategy
	// ForkThreshold is the number of rows a node needs for its
	// right subtree to be grown on another goroutine while its
	// left subtree is grown on the current one. A threshold below
	// 1 never forks.
	ForkThreshold int
	// Forks limits the number of subtrees growing on goroutines
	// of their own at a time
	Forks  *semaphore.Weighted
	Logger *zap.Logger
}

// NewGrower returns a Grower of trees with the given params, that
// forks subtrees with the default threshold on at most one goroutine
// per CPU.
func NewGrower(p Params) *Grower {
	return &Grower{
		Params:        p,
		Pruning:       NewPruningStrategy(p),
		ForkThreshold: DefaultForkThreshold,
		Forks:         semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
}

// TreeSeed derives the seed of the tree at the given index of a forest
// from the forest's seed
func TreeSeed(seed int64, index int) int64 {
	z := uint64(seed) + uint64(index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

/*
Grow takes a context, the root view of a frozen column store and a
seed, and grows a tree on a bootstrap sample of the view's rows. The
seed the sample is drawn with becomes the subset ID of the tree, so
that the sample can be drawn again to tell the rows the tree was not
grown on. Growing a tree with the same view, params and seed always
produces the same tree.

The context is only checked before starting: once started, a tree is
grown to completion.
*/
func (g *Grower) Grow(ctx context.Context, root *dataset.View, seed int64) (*tree.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	sample, err := root.Sample(rng, g.Params.SampleOptions())
	if err != nil {
		return nil, fmt.Errorf("growing tree: %w", err)
	}
	st, err := split.New(root.Store(), g.Params.SplitConfig(), rng)
	if err != nil {
		return nil, fmt.Errorf("growing tree: %w", err)
	}
	pruning := g.Pruning
	if pruning == nil {
		pruning = NewPruningStrategy(g.Params)
	}
	b := &builder{grower: g, pruning: pruning, config: g.Params.SplitConfig()}
	t, err := b.build(sample, split.RootBounds(root.Store(), g.Params.SplitStrategy.Scale()), 0, rng, st, 0)
	if err != nil {
		return nil, fmt.Errorf("growing tree: %w", err)
	}
	t.SubsetID = uint32(sample.Seed())
	logger.OrNop(g.Logger).Debug("tree grown",
		zap.Int64("seed", seed),
		zap.Int("rows", sample.Rows()),
		zap.Int("nodes", t.Size()),
		zap.Int("depth", t.Depth()),
	)
	return t, nil
}

type builder struct {
	grower  *Grower
	pruning *PruningStrategy
	config  split.Config
}

/*
build grows the subtree of the rows of the given view, whose columns
are within the given bounds, at the given depth. The statistic and the
view belong to the call. Nodes without rows become leaves predicting
the majority class of their parent, given as fallback.
*/
func (b *builder) build(v *dataset.View, bounds []split.Bound, depth int, rng *rand.Rand, st *split.Statistic, fallback int) (*tree.Tree, error) {
	if v.Rows() == 0 {
		return leaf(fallback), nil
	}
	st.Reseed(rng)
	st.Reset(bounds)
	st.AddView(v)
	s := st.Split()
	if s.IsLeaf() {
		return leaf(s.Class), nil
	}
	majority := st.Majority()
	if b.pruning.Leaf(depth) {
		return leaf(majority), nil
	}
	p := NewPartition(v, bounds, s, b.config.Strategy.Scale())
	if b.pruning.Prune(v, p) {
		return leaf(majority), nil
	}
	leftRng := rand.New(rand.NewSource(rng.Int63()))
	rightRng := rand.New(rand.NewSource(rng.Int63()))

	var left, right *tree.Tree
	var err error
	g := b.grower
	if g.ForkThreshold > 0 && v.Rows() >= g.ForkThreshold && g.Forks != nil && g.Forks.TryAcquire(1) {
		var eg errgroup.Group
		eg.Go(func() error {
			defer g.Forks.Release(1)
			rst, err := split.New(v.Store(), b.config, rightRng)
			if err != nil {
				return err
			}
			right, err = b.build(p.Right, p.RightBounds, depth+1, rightRng, rst, majority)
			return err
		})
		left, err = b.build(p.Left, p.LeftBounds, depth+1, leftRng, st, majority)
		if werr := eg.Wait(); err == nil {
			err = werr
		}
	} else {
		left, err = b.build(p.Left, p.LeftBounds, depth+1, leftRng, st, majority)
		if err == nil {
			right, err = b.build(p.Right, p.RightBounds, depth+1, rightRng, st, majority)
		}
	}
	if err != nil {
		return nil, err
	}
	metrics.NodesBuilt.WithLabelValues("split").Inc()
	return tree.NewSplit(b.config.Strategy, p.Column, p.Threshold, left, right), nil
}

func leaf(class int) *tree.Tree {
	metrics.NodesBuilt.WithLabelValues("leaf").Inc()
	return tree.NewLeaf(class)
}
