package main

import (
	"fmt"
	"time"

	"github.com/pbanos/grove/confusion"
	"github.com/pbanos/grove/feature/yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type scoreCmdConfig struct {
	*rootCmdConfig
	metadataInput string
	query         confusion.Query
	watch         time.Duration
}

func scoreCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &scoreCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a forest against a dataset",
		Long: `Compute the confusion matrix of a forest against a dataset on the blob store.
With --watch the matrix is refreshed as the forest grows, voting only with the new trees, until every tree of the forest has voted.`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				exit(1, err)
			}
			var classNames []string
			if config.metadataInput != "" {
				schema, err := yaml.ReadSchemaFromFile(config.metadataInput)
				if err != nil {
					exit(2, err)
				}
				if cf := schema.ClassFeature(); cf != nil {
					classNames = cf.AvailableValues()
				}
			}
			ctx, cancel := config.Context()
			defer cancel()
			env, err := config.environment(ctx)
			if err != nil {
				exit(3, err)
			}
			defer env.Close(ctx)
			if config.query.ChunkRows == 0 {
				config.query.ChunkRows = config.ChunkRows
			}
			a := confusion.NewAggregator(env.store, env.runtime, config.query, config.logger)
			a.Datasets = env.datasets
			for {
				r, err := a.Refresh(ctx)
				if err != nil {
					exit(4, err)
				}
				fmt.Printf("confusion matrix of %d trees (%d unresolved rows):\n", r.TreesProcessed, r.Unresolved)
				fmt.Print(r.Matrix.Format(classNames))
				if r.Final || config.watch <= 0 {
					return
				}
				config.logger.Debug("waiting for trees", zap.Duration("watch", config.watch))
				select {
				case <-ctx.Done():
					exit(5, ctx.Err())
				case <-time.After(config.watch):
				}
			}
		},
	}
	cmd.Flags().StringVarP(&(config.query.ForestKey), "forest", "f", "", "key of the forest to score (required)")
	cmd.Flags().StringVarP(&(config.query.DatasetKey), "dataset", "d", "", "key of the dataset to score the forest against (defaults to the one it was grown on)")
	cmd.Flags().IntVar(&(config.query.MaxTrees), "max-trees", 0, "score with at most this number of trees (defaults to 0: all of them)")
	cmd.Flags().BoolVar(&(config.query.OutOfBag), "oob", false, "have trees vote only on the rows they were not grown from")
	cmd.Flags().Int64Var(&(config.query.Seed), "seed", 0, "seed for breaking ties between classes (defaults to the seed of the forest)")
	cmd.Flags().IntVar(&(config.query.ChunkRows), "chunk-rows", 0, "rows voted on by each task (defaults to chunk_rows)")
	cmd.Flags().DurationVarP(&(config.watch), "watch", "w", 0, "refresh the matrix with this period until the forest is complete")
	cmd.Flags().StringVarP(&(config.metadataInput), "metadata", "m", "", "path to a YML file with the features of the dataset, to name classes")
	return cmd
}

func (scc *scoreCmdConfig) Validate() error {
	if scc.query.ForestKey == "" {
		return fmt.Errorf("required forest flag was not set")
	}
	return nil
}
