package confusion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pbanos/grove"
	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/cluster"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/logger"
	"github.com/pbanos/grove/metrics"
	"github.com/pbanos/grove/tree"
	"go.uber.org/zap"
)

const (
	// ChunkHandler is the name the handler voting on a chunk of rows
	// is registered under
	ChunkHandler = "confusion.chunk"
	// DefaultChunkRows is the number of rows of a chunk when a query
	// does not set one
	DefaultChunkRows = 4096
)

// Query describes a forest to score against a dataset
type Query struct {
	ForestKey string `json:"forest"`
	// DatasetKey is the key of the dataset to score the forest
	// against. The dataset the forest was grown on is used if empty.
	DatasetKey string `json:"dataset"`
	// MaxTrees limits the trees of the forest that vote on each row
	// when above 0
	MaxTrees int `json:"max_trees"`
	// OutOfBag makes trees abstain on the rows of their bootstrap
	// sample. It requires the dataset the forest was grown on.
	OutOfBag bool `json:"oob"`
	// Seed seeds the tie breaks between classes. The seed of the
	// forest is used if 0.
	Seed int64 `json:"seed"`
	// ChunkRows is the number of rows voted on by each task
	ChunkRows int `json:"chunk_rows"`
}

// Result is the outcome of a refresh
type Result struct {
	Matrix Matrix `json:"matrix"`
	// TreesProcessed is the number of trees that voted on every row
	TreesProcessed int `json:"trees"`
	// Unresolved counts the rows without a majority class: rows no
	// tree voted on and, until the forest is final, tied rows.
	Unresolved int64 `json:"unresolved"`
	// Final is set when every tree of the forest has voted
	Final bool `json:"final"`
}

// VoteKey returns the key of the vote table of the rows from from to
// to of the given dataset, scored against the given forest
func VoteKey(forestKey, datasetKey string, oob bool, from, to int) string {
	mode := "all"
	if oob {
		mode = "oob"
	}
	return fmt.Sprintf("%s:votes:%s:%s:%d-%d", forestKey, datasetKey, mode, from, to)
}

// ResultKey returns the key the last result of scoring the given
// forest against the given dataset is put under
func ResultKey(forestKey, datasetKey string) string {
	return fmt.Sprintf("%s:confusion:%s", forestKey, datasetKey)
}

type chunkTask struct {
	VoteKey    string                `json:"votes"`
	DatasetKey string                `json:"dataset"`
	Chunk      int                   `json:"chunk"`
	From       int                   `json:"from"`
	To         int                   `json:"to"`
	Trees      []string              `json:"trees"`
	Classes    int                   `json:"classes"`
	Final      bool                  `json:"final"`
	Seed       int64                 `json:"seed"`
	OutOfBag   bool                  `json:"oob"`
	Sample     dataset.SampleOptions `json:"sample"`
}

type chunkResult struct {
	Matrix     Matrix `json:"matrix"`
	Unresolved int64  `json:"unresolved"`
}

/*
Handlers returns the cluster handlers to vote on chunks of datasets on
a node. Vote tables, trees and the datasets of the given cache are read
from the given store, and vote tables are written back to it. The
handlers' results are the chunks' partial confusion matrices.
*/
func Handlers(store blob.Store, datasets *dataset.Cache, l *zap.Logger) cluster.Handlers {
	l = logger.OrNop(l)
	if datasets == nil {
		datasets = dataset.NewCache(store)
	}
	return cluster.Handlers{
		ChunkHandler: func(ctx context.Context, payload []byte) ([]byte, error) {
			task := &chunkTask{}
			if err := json.Unmarshal(payload, task); err != nil {
				return nil, fmt.Errorf("decoding chunk task: %w", err)
			}
			result, err := voteChunk(ctx, store, datasets, task, l)
			if err != nil {
				return nil, err
			}
			return json.Marshal(result)
		},
	}
}

func loadVoteTable(ctx context.Context, store blob.Store, task *chunkTask) (*VoteTable, error) {
	rows := task.To - task.From
	data, err := store.Get(ctx, task.VoteKey)
	if errors.Is(err, blob.ErrNotFound) {
		return NewVoteTable(rows, task.Classes), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading vote table %q: %w", task.VoteKey, err)
	}
	vt, err := UnmarshalVoteTable(data)
	if err != nil {
		return nil, fmt.Errorf("loading vote table %q: %w", task.VoteKey, err)
	}
	// tables of other shapes or of more trees than requested are
	// voted again from scratch
	if vt.Rows() != rows || vt.Classes() != task.Classes || vt.Processed > len(task.Trees) {
		return NewVoteTable(rows, task.Classes), nil
	}
	return vt, nil
}

func voteChunk(ctx context.Context, store blob.Store, datasets *dataset.Cache, task *chunkTask, l *zap.Logger) (*chunkResult, error) {
	s, err := datasets.Get(ctx, task.DatasetKey)
	if err != nil {
		return nil, err
	}
	root, err := dataset.NewRoot(s)
	if err != nil {
		return nil, err
	}
	chunk, err := root.Subset(task.From, task.To)
	if err != nil {
		return nil, fmt.Errorf("voting on chunk %d: %w", task.Chunk, err)
	}
	vt, err := loadVoteTable(ctx, store, task)
	if err != nil {
		return nil, err
	}
	if err := vt.Check(); err != nil {
		return nil, fmt.Errorf("voting on chunk %d: %w", task.Chunk, err)
	}
	for i := vt.Processed; i < len(task.Trees); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bits, err := store.Get(ctx, task.Trees[i])
		if err != nil {
			return nil, fmt.Errorf("voting on chunk %d: loading tree %d: %w", task.Chunk, i, err)
		}
		if err := tree.Validate(bits); err != nil {
			return nil, fmt.Errorf("voting on chunk %d: tree %d: %w", task.Chunk, i, err)
		}
		var sample *dataset.View
		if task.OutOfBag {
			sample, err = root.SampleWithSeed(int64(tree.SubsetID(bits)), task.Sample)
			if err != nil {
				return nil, fmt.Errorf("voting on chunk %d: replaying sample of tree %d: %w", task.Chunk, i, err)
			}
		}
		for r := 0; r < chunk.Rows(); r++ {
			row := chunk.Row(r)
			if sample != nil && sample.InBag(row.Index()) {
				vt.Abstain(r)
				continue
			}
			class := tree.Classify(bits, row)
			if class >= task.Classes {
				return nil, fmt.Errorf("voting on chunk %d: tree %d predicts class %d of %d", task.Chunk, i, class, task.Classes)
			}
			vt.Vote(r, class)
		}
		vt.Processed++
		metrics.TreesVoted.Inc()
	}
	if err := vt.Check(); err != nil {
		return nil, fmt.Errorf("voting on chunk %d: %w", task.Chunk, err)
	}
	result := &chunkResult{Matrix: NewMatrix(task.Classes)}
	rng := rand.New(rand.NewSource(grove.TreeSeed(task.Seed, task.Chunk)))
	for r := 0; r < chunk.Rows(); r++ {
		predicted, ok := majority(vt.Votes(r), task.Final, rng)
		if !ok {
			result.Unresolved++
			continue
		}
		result.Matrix[chunk.Row(r).Class()][predicted]++
	}
	if task.Final {
		err = store.Delete(ctx, task.VoteKey)
	} else {
		var data []byte
		data, err = vt.MarshalBinary()
		if err == nil {
			err = store.Put(ctx, task.VoteKey, data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("voting on chunk %d: storing vote table: %w", task.Chunk, err)
	}
	l.Debug("voted on chunk",
		zap.Int("chunk", task.Chunk),
		zap.Int("rows", chunk.Rows()),
		zap.Int("trees", vt.Processed),
		zap.Bool("final", task.Final),
	)
	return result, nil
}

// majority returns the class with the most votes. Ties are broken at
// random with rng when final is set and left unresolved otherwise.
func majority(votes []uint32, final bool, rng *rand.Rand) (int, bool) {
	best, ties := -1, 0
	var max uint32
	for c, n := range votes {
		switch {
		case n > max:
			best, ties, max = c, 1, n
		case n == max && n > 0:
			ties++
		}
	}
	if max == 0 {
		return 0, false
	}
	if ties == 1 {
		return best, true
	}
	if !final {
		return 0, false
	}
	pick := rng.Intn(ties)
	for c, n := range votes {
		if n != max {
			continue
		}
		if pick == 0 {
			return c, true
		}
		pick--
	}
	return best, true
}

func reduceChunks(acc, result []byte) ([]byte, error) {
	if acc == nil {
		return result, nil
	}
	a, r := &chunkResult{}, &chunkResult{}
	if err := json.Unmarshal(acc, a); err != nil {
		return nil, fmt.Errorf("decoding chunk result: %w", err)
	}
	if err := json.Unmarshal(result, r); err != nil {
		return nil, fmt.Errorf("decoding chunk result: %w", err)
	}
	if err := a.Matrix.Add(r.Matrix); err != nil {
		return nil, err
	}
	a.Unresolved += r.Unresolved
	return json.Marshal(a)
}

/*
Aggregator scores a forest against a dataset incrementally: every
refresh only has the trees added to the forest since the last one vote,
on vote tables kept on the store for every chunk of the dataset.
Refreshes are run as map-reduce tasks on a cluster runtime, whose
workers must have the handlers returned by Handlers registered.
*/
type Aggregator struct {
	Store    blob.Store
	Runtime  cluster.Runtime
	Datasets *dataset.Cache
	Query    Query
	Logger   *zap.Logger

	lock sync.Mutex
	last *Result
}

// NewAggregator returns an aggregator for the given query
func NewAggregator(store blob.Store, rt cluster.Runtime, q Query, l *zap.Logger) *Aggregator {
	return &Aggregator{Store: store, Runtime: rt, Datasets: dataset.NewCache(store), Query: q, Logger: l}
}

/*
Refresh takes a context and has the trees of the forest that have not
voted yet vote on every row of the dataset, returning the resulting
confusion matrix. Once the forest is final, that is once all its trees
were built or MaxTrees of them voted, ties are broken and the vote
tables are deleted. Refreshing with no new trees returns the last
result.
*/
func (a *Aggregator) Refresh(ctx context.Context) (*Result, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	start := time.Now()
	l := logger.OrNop(a.Logger)
	q := a.Query
	f, err := grove.LoadForest(ctx, a.Store, q.ForestKey)
	if err != nil {
		return nil, fmt.Errorf("refreshing confusion: %w", err)
	}
	upto, target := len(f.TreeKeys), f.FinalSize()
	if q.MaxTrees > 0 {
		if upto > q.MaxTrees {
			upto = q.MaxTrees
		}
		if target > q.MaxTrees {
			target = q.MaxTrees
		}
	}
	final := upto >= target
	if a.last != nil && a.last.TreesProcessed == upto && a.last.Final == final {
		return a.last, nil
	}
	datasetKey := q.DatasetKey
	if datasetKey == "" {
		datasetKey = f.DatasetKey
	}
	if q.OutOfBag && datasetKey != f.DatasetKey {
		return nil, fmt.Errorf("refreshing confusion: out of bag scoring on dataset %q of forest grown on %q", datasetKey, f.DatasetKey)
	}
	datasets := a.Datasets
	if datasets == nil {
		datasets = dataset.NewCache(a.Store)
	}
	s, err := datasets.Get(ctx, datasetKey)
	if err != nil {
		return nil, fmt.Errorf("refreshing confusion: %w", err)
	}
	trained, err := datasets.Get(ctx, f.DatasetKey)
	if err != nil {
		return nil, fmt.Errorf("refreshing confusion: %w", err)
	}
	if s.Columns() != trained.Columns() {
		return nil, fmt.Errorf("refreshing confusion: dataset %q has %d columns, forest was grown on %d", datasetKey, s.Columns(), trained.Columns())
	}
	classes, err := s.Classes()
	if err != nil {
		return nil, fmt.Errorf("refreshing confusion: %w", err)
	}
	if f.Classes > classes {
		classes = f.Classes
	}
	seed := q.Seed
	if seed == 0 {
		seed = f.Params.Seed
	}
	chunkRows := q.ChunkRows
	if chunkRows < 1 {
		chunkRows = DefaultChunkRows
	}
	var tasks []cluster.Task
	for from, chunk := 0, 0; from < s.Rows(); from, chunk = from+chunkRows, chunk+1 {
		to := from + chunkRows
		if to > s.Rows() {
			to = s.Rows()
		}
		payload, err := json.Marshal(&chunkTask{
			VoteKey:    VoteKey(f.Key, datasetKey, q.OutOfBag, from, to),
			DatasetKey: datasetKey,
			Chunk:      chunk,
			From:       from,
			To:         to,
			Trees:      f.TreeKeys[:upto],
			Classes:    classes,
			Final:      final,
			Seed:       seed,
			OutOfBag:   q.OutOfBag,
			Sample:     f.Params.SampleOptions(),
		})
		if err != nil {
			return nil, fmt.Errorf("refreshing confusion: %w", err)
		}
		tasks = append(tasks, cluster.Task{Handler: ChunkHandler, Payload: payload})
	}
	result := &Result{Matrix: NewMatrix(classes), TreesProcessed: upto, Final: final}
	reduced, err := a.Runtime.MapReduce(ctx, tasks, reduceChunks)
	if err != nil {
		return nil, fmt.Errorf("refreshing confusion: %w", err)
	}
	if reduced != nil {
		cr := &chunkResult{}
		if err := json.Unmarshal(reduced, cr); err != nil {
			return nil, fmt.Errorf("refreshing confusion: decoding result: %w", err)
		}
		result.Matrix, result.Unresolved = cr.Matrix, cr.Unresolved
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("refreshing confusion: %w", err)
	}
	if err := a.Store.Put(ctx, ResultKey(f.Key, datasetKey), data); err != nil {
		return nil, fmt.Errorf("refreshing confusion: storing result: %w", err)
	}
	metrics.ObserveSince(metrics.RefreshDuration, start)
	l.Info("refreshed confusion",
		zap.String("forest", f.Key),
		zap.String("dataset", datasetKey),
		zap.Int("trees", upto),
		zap.Int("chunks", len(tasks)),
		zap.Bool("final", final),
		zap.Float64("error", result.Matrix.ErrorRate()),
	)
	a.last = result
	return result, nil
}

// Run refreshes a new aggregator for the given query once and returns
// its result
func Run(ctx context.Context, store blob.Store, rt cluster.Runtime, q Query, l *zap.Logger) (*Result, error) {
	return NewAggregator(store, rt, q, l).Refresh(ctx)
}
