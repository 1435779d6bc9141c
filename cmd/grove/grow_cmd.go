package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pbanos/grove"
	"github.com/pbanos/grove/confusion"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/split"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type growCmdConfig struct {
	*rootCmdConfig
	inputConfig
	datasetKey string
	forestKey  string
	trees      int
	seed       int64
	strategy   string
	maxDepth   int
	minFitness float64
	minRows    int
	stratify   bool
	score      bool
}

func growCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &growCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "grow",
		Short: "Grow a forest from a set of data",
		Long:  `Grow a random forest from a set of data to predict its class feature, keeping the dataset and the trees on the blob store.`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				exit(1, err)
			}
			schema, features, err := config.schema()
			if err != nil {
				exit(2, err)
			}
			params, err := config.params(cmd)
			if err != nil {
				exit(3, err)
			}
			params.IgnoredColumns, err = schema.IgnoredColumns()
			if err != nil {
				exit(3, err)
			}
			ctx, cancel := config.Context()
			defer cancel()
			env, err := config.environment(ctx)
			if err != nil {
				exit(4, err)
			}
			defer env.Close(ctx)
			l := config.logger
			l.Info("loading dataset", zap.String("input", config.dataInput), zap.Int("features", len(features)-1), zap.String("class", schema.Class))
			s, err := config.load(ctx, features, params.BinLimit)
			if err != nil {
				exit(5, fmt.Errorf("loading dataset: %v", err))
			}
			if config.datasetKey == "" {
				config.datasetKey = fmt.Sprintf("dataset:%s", uuid.NewString())
			}
			if err := dataset.PutStore(ctx, env.store, config.datasetKey, s); err != nil {
				exit(6, err)
			}
			l.Info("dataset stored", zap.String("dataset", config.datasetKey), zap.Int("rows", s.Rows()))
			d := &grove.Dispatcher{Store: env.store, Runtime: env.runtime, Datasets: env.datasets, Logger: l}
			f, err := d.Dispatch(ctx, grove.DispatchRequest{ForestKey: config.forestKey, DatasetKey: config.datasetKey, Params: params})
			if f == nil {
				exit(7, fmt.Errorf("growing forest: %v", err))
			}
			if err != nil {
				l.Warn("some trees failed to grow", zap.Int("failed", f.Failed), zap.Error(err))
			}
			fmt.Printf("forest %s: %d trees grown on dataset %s\n", f.Key, len(f.TreeKeys), f.DatasetKey)
			if !config.score {
				return
			}
			r, err := confusion.Run(ctx, env.store, env.runtime, confusion.Query{ForestKey: f.Key, OutOfBag: true, ChunkRows: config.ChunkRows}, l)
			if err != nil {
				exit(8, fmt.Errorf("scoring forest: %v", err))
			}
			fmt.Printf("out of bag confusion matrix (%d rows without votes):\n", r.Unresolved)
			fmt.Print(r.Matrix.Format(schema.ClassFeature().AvailableValues()))
		},
	}
	config.addFlags(cmd, "grow the forest from")
	cmd.Flags().StringVarP(&(config.datasetKey), "dataset", "d", "", "key to store the dataset under (defaults to a random one)")
	cmd.Flags().StringVarP(&(config.forestKey), "forest", "f", "", "key to store the forest under (defaults to a random one)")
	cmd.Flags().IntVarP(&(config.trees), "trees", "n", 0, "trees to grow per node (overrides training.trees_per_node)")
	cmd.Flags().Int64Var(&(config.seed), "seed", 0, "seed of the forest (overrides training.seed)")
	cmd.Flags().StringVar(&(config.strategy), "strategy", "", "split strategy, entropy or gini (overrides training.split_strategy)")
	cmd.Flags().IntVar(&(config.maxDepth), "max-depth", 0, "maximum depth of the trees, -1 for unbounded (overrides training.max_depth)")
	cmd.Flags().Float64Var(&(config.minFitness), "min-fitness", 0, "prune splits whose fitness is not above this value (overrides training.min_fitness)")
	cmd.Flags().IntVar(&(config.minRows), "min-rows", 0, "prune splits leaving fewer rows than this on either side (overrides training.min_rows)")
	cmd.Flags().BoolVar(&(config.stratify), "stratify", false, "draw the bootstrap samples from every class separately (overrides training.stratify)")
	cmd.Flags().BoolVar(&(config.score), "score", false, "score the forest on its out of bag rows once grown")
	return cmd
}

// params returns the configured training parameters with the values
// of the flags that were set
func (gcc *growCmdConfig) params(cmd *cobra.Command) (grove.Params, error) {
	p, err := gcc.Training.Params()
	if err != nil {
		return p, err
	}
	flags := cmd.Flags()
	if flags.Changed("trees") {
		p.TreesPerNode = gcc.trees
	}
	if flags.Changed("seed") {
		p.Seed = gcc.seed
	}
	if flags.Changed("strategy") {
		p.SplitStrategy, err = split.ParseStrategy(gcc.strategy)
		if err != nil {
			return p, err
		}
	}
	if flags.Changed("max-depth") {
		p.MaxDepth = gcc.maxDepth
	}
	if flags.Changed("min-fitness") {
		p.MinFitness = gcc.minFitness
	}
	if flags.Changed("min-rows") {
		p.MinRows = gcc.minRows
	}
	if flags.Changed("stratify") {
		p.Stratify = gcc.stratify
	}
	return p, nil
}
