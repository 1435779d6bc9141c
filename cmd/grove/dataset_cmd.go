package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/dataset/mongodataset"
	"github.com/pbanos/grove/dataset/sqldataset"
	"github.com/pbanos/grove/dataset/sqldataset/pgadapter"
	"github.com/pbanos/grove/dataset/sqldataset/sqlite3adapter"
	"github.com/pbanos/grove/feature"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	mgo "gopkg.in/mgo.v2"
)

const datasetBatchRows = 100

type datasetCmdConfig struct {
	*rootCmdConfig
	inputConfig
	output     string
	datasetKey string
}

type rowWriter interface {
	Write(context.Context, [][]interface{}) (int, error)
}

func datasetCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &datasetCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Copy a set of data into a database or the blob store",
		Long: `Copy a set of data into a SQLite3 file, a PostgreSQL or a MongoDB database, and/or load it and put it on the blob store under a key.
Forests can then be grown on the dataset under the key with the --dataset flag of grow.`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				exit(1, err)
			}
			schema, features, err := config.schema()
			if err != nil {
				exit(2, err)
			}
			ctx, cancel := config.Context()
			defer cancel()
			l := config.logger
			if config.output != "" {
				n, err := config.copy(ctx, features)
				if err != nil {
					exit(3, err)
				}
				l.Info("rows copied", zap.String("output", config.output), zap.Int("rows", n))
			}
			if config.datasetKey == "" {
				return
			}
			env, err := config.environment(ctx)
			if err != nil {
				exit(4, err)
			}
			defer env.Close(ctx)
			params, err := config.Training.Params()
			if err != nil {
				exit(5, err)
			}
			s, err := config.load(ctx, features, params.BinLimit)
			if err != nil {
				exit(6, fmt.Errorf("loading dataset: %v", err))
			}
			if err := dataset.PutStore(ctx, env.store, config.datasetKey, s); err != nil {
				exit(7, err)
			}
			fmt.Printf("dataset %s: %d rows with %d features to predict %s\n", config.datasetKey, s.Rows(), s.Columns()-1, schema.Class)
		},
	}
	config.addFlags(cmd, "copy")
	cmd.Flags().StringVarP(&(config.output), "output", "o", "", "path to a SQLite3 (.db) file, or a PostgreSQL or MongoDB connection URL to copy the rows to")
	cmd.Flags().StringVarP(&(config.datasetKey), "dataset", "d", "", "key to put the loaded dataset under on the blob store")
	return cmd
}

func (dcc *datasetCmdConfig) Validate() error {
	if dcc.output == "" && dcc.datasetKey == "" {
		return fmt.Errorf("either the output or the dataset flag must be set")
	}
	return dcc.inputConfig.Validate()
}

// copy writes the rows read from the input to the output in batches
// and returns the number of rows written
func (dcc *datasetCmdConfig) copy(ctx context.Context, features []feature.Feature) (int, error) {
	w, closeOutput, err := dcc.writer(ctx, features)
	if err != nil {
		return 0, err
	}
	defer closeOutput()
	src, closeSrc, err := dcc.source(ctx, features)
	if err != nil {
		return 0, err
	}
	defer closeSrc()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rows, errs := src.Read(ctx)
	var written int
	batch := make([][]interface{}, 0, datasetBatchRows)
	flush := func() error {
		n, err := w.Write(ctx, batch)
		written += n
		batch = batch[:0]
		return err
	}
	for raw := range rows {
		if err != nil {
			continue
		}
		batch = append(batch, append([]interface{}{}, raw...))
		if len(batch) == datasetBatchRows {
			if err = flush(); err != nil {
				cancel()
			}
		}
	}
	if rerr := <-errs; rerr != nil && err == nil {
		err = fmt.Errorf("reading input: %v", rerr)
	}
	if err == nil && len(batch) > 0 {
		err = flush()
	}
	return written, err
}

func (dcc *datasetCmdConfig) writer(ctx context.Context, features []feature.Feature) (rowWriter, func() error, error) {
	var adapter sqldataset.Adapter
	var err error
	switch {
	case strings.HasPrefix(dcc.output, "postgresql://"), strings.HasPrefix(dcc.output, "postgres://"):
		adapter, err = pgadapter.New(dcc.output)
	case strings.HasSuffix(dcc.output, ".db"):
		adapter, err = sqlite3adapter.New(dcc.output, dcc.maxDBConns)
	case strings.HasPrefix(dcc.output, "mongodb://"):
		session, err := mgo.Dial(dcc.output)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to MongoDB: %v", err)
		}
		mds, err := mongodataset.Open(ctx, session, features)
		if err != nil {
			session.Close()
			return nil, nil, err
		}
		return mds, func() error { mds.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported output %q, expected a .db file or a PostgreSQL or MongoDB URL", dcc.output)
	}
	if err != nil {
		return nil, nil, err
	}
	ds, err := sqldataset.Open(ctx, adapter, features)
	if err != nil {
		adapter.Close()
		return nil, nil, err
	}
	return ds, ds.Close, nil
}
