package grove

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/cluster"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/logger"
	"github.com/pbanos/grove/metrics"
	"github.com/pbanos/grove/tree"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// GrowHandler is the name the handler growing the trees of a
// forest is registered under
const GrowHandler = "grove.grow"

type growTask struct {
	DatasetKey string `json:"dataset"`
	Params     Params `json:"params"`
	Index      int    `json:"index"`
	Seed       int64  `json:"seed"`
}

/*
Handlers returns the cluster handlers to grow trees on a node. Trees
are grown on the datasets of the given cache, with their subtrees
forked on at most the given number of goroutines at a time when nodes
have at least forkThreshold rows. The handlers' results are the
encoded trees.
*/
func Handlers(datasets *dataset.Cache, forks, forkThreshold int, l *zap.Logger) cluster.Handlers {
	if forks < 1 {
		forks = 1
	}
	sem := semaphore.NewWeighted(int64(forks))
	l = logger.OrNop(l)
	return cluster.Handlers{
		GrowHandler: func(ctx context.Context, payload []byte) ([]byte, error) {
			task := &growTask{}
			if err := json.Unmarshal(payload, task); err != nil {
				return nil, fmt.Errorf("decoding grow task: %w", err)
			}
			s, err := datasets.Get(ctx, task.DatasetKey)
			if err != nil {
				return nil, err
			}
			root, err := dataset.NewRoot(s)
			if err != nil {
				return nil, err
			}
			g := &Grower{
				Params:        task.Params,
				Pruning:       NewPruningStrategy(task.Params),
				ForkThreshold: forkThreshold,
				Forks:         sem,
				Logger:        l.With(zap.Int("tree", task.Index)),
			}
			t, err := g.Grow(ctx, root, task.Seed)
			if err != nil {
				return nil, err
			}
			bits, err := tree.Encode(t)
			if err != nil {
				return nil, err
			}
			metrics.TreesBuilt.Inc()
			return bits, nil
		},
	}
}

// DispatchRequest describes a forest to dispatch
type DispatchRequest struct {
	// ForestKey is the key to keep the forest under. A random one is
	// generated if empty.
	ForestKey  string
	DatasetKey string
	Params     Params
}

// Dispatcher grows the trees of forests on a cluster runtime
type Dispatcher struct {
	Store    blob.Store
	Runtime  cluster.Runtime
	Datasets *dataset.Cache
	Logger   *zap.Logger
}

/*
Dispatch takes a context and a request and grows a forest with
TreesPerNode trees per node of the runtime on the requested dataset,
which must have been put on the store with dataset.PutStore.

The params are validated against the dataset before any tree is
submitted. Every tree is then submitted as a task to the runtime, and
trees are added to the forest, which is saved to the store after every
addition, in index order as their tasks complete. A failing tree does
not stop the others: Dispatch returns the forest of the trees that were
built along with an error combining the failures. Cancelling the
context stops the submission of further trees, which count as failed,
but trees already submitted are still grown and added to the forest.
*/
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*Forest, error) {
	l := logger.OrNop(d.Logger)
	datasets := d.Datasets
	if datasets == nil {
		datasets = dataset.NewCache(d.Store)
	}
	s, err := datasets.Get(ctx, req.DatasetKey)
	if err != nil {
		return nil, fmt.Errorf("dispatching forest: %w", err)
	}
	classes, err := s.Classes()
	if err != nil {
		return nil, fmt.Errorf("dispatching forest: %w", err)
	}
	params := req.Params
	if err := params.Validate(s.Columns(), classes); err != nil {
		return nil, err
	}
	key := req.ForestKey
	if key == "" {
		key = fmt.Sprintf("forest:%s", uuid.NewString())
	}
	f := &Forest{
		Key:        key,
		DatasetKey: req.DatasetKey,
		Params:     params,
		Classes:    classes,
		Total:      params.TreesPerNode * d.Runtime.Nodes(),
	}
	if err := f.Save(ctx, d.Store); err != nil {
		return nil, err
	}
	l = l.With(zap.String("forest", key))
	l.Info("dispatching forest", zap.Int("trees", f.Total), zap.String("dataset", req.DatasetKey))
	start := time.Now()

	// submitted trees outlive the cancellation of ctx
	keep := context.WithoutCancel(ctx)
	futures := make([]cluster.Future, 0, f.Total)
	for i := 0; i < f.Total; i++ {
		if ctx.Err() != nil {
			break
		}
		payload, err := json.Marshal(&growTask{
			DatasetKey: req.DatasetKey,
			Params:     params,
			Index:      i,
			Seed:       TreeSeed(params.Seed, i),
		})
		if err != nil {
			return nil, fmt.Errorf("dispatching forest: encoding grow task: %w", err)
		}
		futures = append(futures, d.Runtime.Submit(keep, cluster.Task{
			ID:      fmt.Sprintf("%s-%d", uuid.NewString(), i),
			Handler: GrowHandler,
			Payload: payload,
		}))
	}

	var errs error
	for i := 0; i < f.Total; i++ {
		var err error
		if i < len(futures) {
			err = d.addTree(keep, f, i, futures[i])
		} else {
			err = fmt.Errorf("not submitted: %w", ctx.Err())
		}
		if err != nil {
			f.Failed++
			metrics.TreeFailures.Inc()
			l.Warn("tree failed", zap.Int("tree", i), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("tree %d: %w", i, err))
		}
	}
	f.Done = true
	if err := f.Save(keep, d.Store); err != nil {
		errs = multierr.Append(errs, err)
	}
	l.Info("forest dispatched",
		zap.Int("trees", len(f.TreeKeys)),
		zap.Int("failed", f.Failed),
		zap.Duration("took", time.Since(start)),
	)
	return f, errs
}

func (d *Dispatcher) addTree(ctx context.Context, f *Forest, i int, future cluster.Future) error {
	bits, err := future.Wait(ctx)
	if err != nil {
		return err
	}
	if err := tree.Validate(bits); err != nil {
		return err
	}
	key := TreeKey(f.Key, i)
	if err := d.Store.Put(ctx, key, bits); err != nil {
		return err
	}
	f.TreeKeys = append(f.TreeKeys, key)
	if err := f.Save(ctx, d.Store); err != nil {
		f.TreeKeys = f.TreeKeys[:len(f.TreeKeys)-1]
		return err
	}
	return nil
}
