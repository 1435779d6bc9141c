package dataset

import (
	"context"
	"fmt"

	"github.com/pbanos/grove/column"
	"github.com/pbanos/grove/feature"
)

/*
Source is an interface for backends that rows of raw values can be
read from, like CSV files or databases. Read returns a channel of rows,
each with one raw value per feature the source was opened with and in
the same order, and a channel that yields at most one error before
being closed. Both channels are closed once reading is over.
*/
type Source interface {
	Read(context.Context) (<-chan []interface{}, <-chan error)
}

// Load takes a context, a source and the features it yields values
// for, with the class feature last, and returns an unfrozen column
// store with every row read from the source encoded by its features.
func Load(ctx context.Context, src Source, features []feature.Feature) (*column.Store, error) {
	s, err := column.New(feature.Names(features), len(features)-1)
	if err != nil {
		return nil, err
	}
	rows, errs := src.Read(ctx)
	values := make([]float64, len(features))
	line := 0
	for raw := range rows {
		line++
		if err != nil {
			continue
		}
		if len(raw) != len(features) {
			err = fmt.Errorf("loading row %d: expected %d values, got %d", line, len(features), len(raw))
			continue
		}
		for i, f := range features {
			values[i], err = f.Encode(raw[i])
			if err != nil {
				err = fmt.Errorf("loading row %d: %v", line, err)
				break
			}
		}
		if err == nil {
			err = s.AddRow(values)
		}
	}
	if rerr := <-errs; rerr != nil {
		return nil, fmt.Errorf("reading source: %v", rerr)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

type sliceSource [][]interface{}

// NewSliceSource returns a Source yielding the given rows
func NewSliceSource(rows [][]interface{}) Source {
	return sliceSource(rows)
}

func (ss sliceSource) Read(ctx context.Context) (<-chan []interface{}, <-chan error) {
	rows := make(chan []interface{})
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(rows)
		for _, r := range ss {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case rows <- r:
			}
		}
	}()
	return rows, errs
}
