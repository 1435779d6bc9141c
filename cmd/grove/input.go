package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbanos/grove/column"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/dataset/csv"
	"github.com/pbanos/grove/dataset/mongodataset"
	"github.com/pbanos/grove/dataset/sqldataset"
	"github.com/pbanos/grove/dataset/sqldataset/pgadapter"
	"github.com/pbanos/grove/dataset/sqldataset/sqlite3adapter"
	"github.com/pbanos/grove/feature"
	"github.com/pbanos/grove/feature/yaml"
	"github.com/spf13/cobra"
	mgo "gopkg.in/mgo.v2"
)

type inputConfig struct {
	dataInput     string
	metadataInput string
	maxDBConns    int
}

func (ic *inputConfig) addFlags(cmd *cobra.Command, verb string) {
	flags := cmd.Flags()
	flags.StringVarP(&(ic.dataInput), "input", "i", "", fmt.Sprintf("path to an input CSV (.csv) or SQLite3 (.db) file, or a PostgreSQL or MongoDB connection URL with data to %s (defaults to STDIN, interpreted as CSV)", verb))
	flags.StringVarP(&(ic.metadataInput), "metadata", "m", "", "path to a YML file with metadata describing the features available on the input and the class feature (required)")
	flags.IntVar(&(ic.maxDBConns), "max-db-conns", 0, "limit to DB connections opened at a time (defaults to 0: no limit)")
}

func (ic *inputConfig) Validate() error {
	if ic.metadataInput == "" {
		return fmt.Errorf("required metadata flag was not set")
	}
	return nil
}

// schema reads the metadata and returns it with its features in
// column order
func (ic *inputConfig) schema() (*feature.Schema, []feature.Feature, error) {
	schema, err := yaml.ReadSchemaFromFile(ic.metadataInput)
	if err != nil {
		return nil, nil, err
	}
	features, err := schema.Ordered()
	if err != nil {
		return nil, nil, err
	}
	return schema, features, nil
}

// source opens the input and returns it along with a function to
// close it
func (ic *inputConfig) source(ctx context.Context, features []feature.Feature) (dataset.Source, func() error, error) {
	switch {
	case strings.HasPrefix(ic.dataInput, "postgresql://"), strings.HasPrefix(ic.dataInput, "postgres://"):
		adapter, err := pgadapter.New(ic.dataInput)
		if err != nil {
			return nil, nil, err
		}
		return ic.sqlSource(ctx, adapter, features)
	case strings.HasSuffix(ic.dataInput, ".db"):
		adapter, err := sqlite3adapter.New(ic.dataInput, ic.maxDBConns)
		if err != nil {
			return nil, nil, err
		}
		return ic.sqlSource(ctx, adapter, features)
	case strings.HasPrefix(ic.dataInput, "mongodb://"):
		session, err := mgo.Dial(ic.dataInput)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to MongoDB: %v", err)
		}
		mds, err := mongodataset.Open(ctx, session, features)
		if err != nil {
			session.Close()
			return nil, nil, err
		}
		return mds, func() error { mds.Close(); return nil }, nil
	}
	return csv.OpenFile(ic.dataInput, features)
}

func (ic *inputConfig) sqlSource(ctx context.Context, adapter sqldataset.Adapter, features []feature.Feature) (dataset.Source, func() error, error) {
	ds, err := sqldataset.Open(ctx, adapter, features)
	if err != nil {
		adapter.Close()
		return nil, nil, err
	}
	return ds, ds.Close, nil
}

// load reads the input into a frozen column store with the given bin
// limit
func (ic *inputConfig) load(ctx context.Context, features []feature.Feature, binLimit int) (*column.Store, error) {
	src, closeSrc, err := ic.source(ctx, features)
	if err != nil {
		return nil, err
	}
	defer closeSrc()
	s, err := dataset.Load(ctx, src, features)
	if err != nil {
		return nil, err
	}
	if err := s.Freeze(binLimit); err != nil {
		return nil, err
	}
	return s, nil
}
