/*
Package csv provides a dataset.Source reading rows from CSV
streams.
*/
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/feature"
)

// Undefined is the value CSV fields hold for undefined values
const Undefined = "?"

type source struct {
	r        io.Reader
	features []feature.Feature
}

/*
NewSource takes an io.Reader for a CSV stream and the features to read
and returns a dataset.Source yielding a row per CSV record with the
values of the features, in the given order.

The header or first record of the CSV content is expected to name the
columns of the records. Every feature must be one of them, columns
that are not features are skipped. Values are yielded as the strings
on the records, except for the Undefined string which is yielded as
nil.
*/
func NewSource(r io.Reader, features []feature.Feature) dataset.Source {
	return &source{r, features}
}

func (s *source) Read(ctx context.Context) (<-chan []interface{}, <-chan error) {
	rows := make(chan []interface{})
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(rows)
		if err := s.read(ctx, rows); err != nil {
			errs <- err
		}
	}()
	return rows, errs
}

func (s *source) read(ctx context.Context, rows chan<- []interface{}) error {
	r := csv.NewReader(s.r)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading header: %v", err)
	}
	fields, err := fieldsFor(header, s.features)
	if err != nil {
		return err
	}
	for l := 2; ; l++ {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading line %d: %v", l, err)
		}
		row := make([]interface{}, len(fields))
		for i, field := range fields {
			if v := record[field]; v != Undefined {
				row[i] = v
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rows <- row:
		}
	}
}

// fieldsFor returns the index on the header of every feature
func fieldsFor(header []string, features []feature.Feature) ([]int, error) {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		byName[name] = i
	}
	fields := make([]int, len(features))
	for i, f := range features {
		field, ok := byName[f.Name()]
		if !ok {
			return nil, fmt.Errorf("parsing header: feature %s has no column", f.Name())
		}
		fields[i] = field
	}
	return fields, nil
}

/*
OpenFile takes a filepath string and the features to read and returns
a dataset.Source reading the CSV file at the path, or STDIN if it is
empty, along with a function to close the file.
*/
func OpenFile(filepath string, features []feature.Feature) (dataset.Source, func() error, error) {
	if filepath == "" {
		return NewSource(os.Stdin, features), func() error { return nil }, nil
	}
	f, err := os.Open(filepath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening CSV file %s: %v", filepath, err)
	}
	return NewSource(f, features), f.Close, nil
}
