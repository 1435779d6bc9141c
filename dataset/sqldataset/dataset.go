/*
Package sqldataset provides a dataset.Source that keeps
rows on SQL databases.

The dataset uses 2 database tables:
  - One for storing discrete values
  - One for the rows

Rows are stored on the rows table, with
their discrete values as references to values in the
discrete value table.
*/
package sqldataset

import (
	"context"
	"fmt"

	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/feature"
)

// Dataset is a set of rows kept on a database through an Adapter
type Dataset struct {
	adapter  Adapter
	features []feature.Feature
	// column of each feature, and whether it is discrete
	columns  []string
	discrete []bool
	ids      map[string]int
	values   map[int]string
}

var _ dataset.Source = (*Dataset)(nil)

/*
Open takes a context, an adapter and the features of the rows, and
returns a Dataset working on the adapter's database. The tables are
created if they do not exist, and the available values of discrete
features are added to the discrete values table if missing.
*/
func Open(ctx context.Context, adapter Adapter, features []feature.Feature) (*Dataset, error) {
	ds := &Dataset{adapter: adapter, features: features}
	var discreteColumns, continuousColumns []string
	var missing []string
	seen := make(map[string]bool)
	for _, f := range features {
		c, err := adapter.ColumnName(f.Name())
		if err != nil {
			return nil, err
		}
		ds.columns = append(ds.columns, c)
		df, ok := f.(*feature.DiscreteFeature)
		ds.discrete = append(ds.discrete, ok)
		if !ok {
			continuousColumns = append(continuousColumns, c)
			continue
		}
		discreteColumns = append(discreteColumns, c)
		for _, v := range df.AvailableValues() {
			if !seen[v] {
				seen[v] = true
				missing = append(missing, v)
			}
		}
	}
	if err := adapter.CreateDiscreteValuesTable(ctx); err != nil {
		return nil, err
	}
	if err := adapter.CreateRowTable(ctx, discreteColumns, continuousColumns); err != nil {
		return nil, err
	}
	if err := ds.loadDiscreteValues(ctx); err != nil {
		return nil, err
	}
	var toAdd []string
	for _, v := range missing {
		if _, ok := ds.ids[v]; !ok {
			toAdd = append(toAdd, v)
		}
	}
	if len(toAdd) > 0 {
		if _, err := adapter.AddDiscreteValues(ctx, toAdd); err != nil {
			return nil, err
		}
		if err := ds.loadDiscreteValues(ctx); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (ds *Dataset) loadDiscreteValues(ctx context.Context) error {
	values, err := ds.adapter.ListDiscreteValues(ctx)
	if err != nil {
		return fmt.Errorf("listing discrete values: %v", err)
	}
	ds.values = values
	ds.ids = make(map[string]int, len(values))
	for id, v := range values {
		ds.ids[v] = id
	}
	return nil
}

// Write takes rows of raw values, one per feature of the dataset and
// in the same order, and inserts them. It returns the number of rows
// written.
func (ds *Dataset) Write(ctx context.Context, rows [][]interface{}) (int, error) {
	stored := make([][]interface{}, len(rows))
	for i, r := range rows {
		if len(r) != len(ds.features) {
			return 0, fmt.Errorf("writing row %d: expected %d values, got %d", i, len(ds.features), len(r))
		}
		values := make([]interface{}, len(r))
		for j, f := range ds.features {
			if r[j] == nil {
				continue
			}
			v, err := f.Encode(r[j])
			if err != nil {
				return 0, fmt.Errorf("writing row %d: %v", i, err)
			}
			if ds.discrete[j] {
				s := f.(*feature.DiscreteFeature).Decode(int(v))
				id, ok := ds.ids[s]
				if !ok {
					return 0, fmt.Errorf("writing row %d: discrete value %q is not stored", i, s)
				}
				values[j] = id
			} else {
				values[j] = v
			}
		}
		stored[i] = values
	}
	return ds.adapter.AddRows(ctx, stored, ds.columns)
}

/*
Read returns a channel with the rows of the dataset, with the values
of discrete features as the strings they were written as, and a
channel yielding the error that stopped reading if any.
*/
func (ds *Dataset) Read(ctx context.Context) (<-chan []interface{}, <-chan error) {
	rows := make(chan []interface{})
	errs := make(chan error, 1)
	var discreteColumns, continuousColumns []string
	var order []int
	for i, c := range ds.columns {
		if ds.discrete[i] {
			discreteColumns = append(discreteColumns, c)
		}
	}
	for i, c := range ds.columns {
		if !ds.discrete[i] {
			continuousColumns = append(continuousColumns, c)
		}
	}
	d, c := 0, len(discreteColumns)
	for i := range ds.columns {
		if ds.discrete[i] {
			order = append(order, d)
			d++
		} else {
			order = append(order, c)
			c++
		}
	}
	go func() {
		defer close(errs)
		defer close(rows)
		err := ds.adapter.IterateOnRows(ctx, discreteColumns, continuousColumns, func(_ int, values []interface{}) (bool, error) {
			row := make([]interface{}, len(ds.features))
			for i, j := range order {
				row[i] = values[j]
				if ds.discrete[i] && values[j] != nil {
					v, ok := ds.values[values[j].(int)]
					if !ok {
						return false, fmt.Errorf("unknown discrete value id %v", values[j])
					}
					row[i] = v
				}
			}
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case rows <- row:
				return true, nil
			}
		})
		if err != nil {
			errs <- err
		}
	}()
	return rows, errs
}

// Count returns the number of rows of the dataset
func (ds *Dataset) Count(ctx context.Context) (int, error) {
	return ds.adapter.CountRows(ctx)
}

// Close closes the adapter of the dataset
func (ds *Dataset) Close() error {
	return ds.adapter.Close()
}
