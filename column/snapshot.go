package column

import (
	"fmt"

	json "github.com/goccy/go-json"
)

type snapshot struct {
	Rows    int              `json:"rows"`
	Classes int              `json:"classes"`
	Columns []columnSnapshot `json:"columns"`
}

type columnSnapshot struct {
	Name      string    `json:"name"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Total     float64   `json:"total"`
	Precision int       `json:"precision"`
	Values    []float64 `json:"values"`
	Codes     []uint16  `json:"codes"`
	Bins      []Bin     `json:"bins"`
	Exact     []uint32  `json:"exact,omitempty"`
	Distinct  []float64 `json:"distinct,omitempty"`
}

// MarshalSnapshot encodes a frozen store so that it can be stored
// as a blob and loaded back with UnmarshalSnapshot.
func (s *Store) MarshalSnapshot() ([]byte, error) {
	if !s.frozen {
		return nil, fmt.Errorf("marshalling column store snapshot: %w", ErrNotFrozen)
	}
	snap := &snapshot{Rows: s.rows, Classes: s.classes, Columns: make([]columnSnapshot, len(s.columns))}
	for i, c := range s.columns {
		values := make([]float64, s.rows)
		for r := range values {
			values[r] = c.Value(r)
		}
		snap.Columns[i] = columnSnapshot{
			Name:      c.name,
			Min:       c.min,
			Max:       c.max,
			Total:     c.total,
			Precision: c.precision,
			Values:    values,
			Codes:     c.codes,
			Bins:      c.bins,
			Exact:     c.exact,
			Distinct:  c.distinct,
		}
	}
	return json.Marshal(snap)
}

// UnmarshalSnapshot decodes a frozen store from the output of
// MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*Store, error) {
	snap := &snapshot{}
	err := json.Unmarshal(data, snap)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling column store snapshot: %w", err)
	}
	names := make([]string, len(snap.Columns))
	for i, cs := range snap.Columns {
		names[i] = cs.Name
	}
	s, err := New(names, len(names)-1)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling column store snapshot: %w", err)
	}
	for i, cs := range snap.Columns {
		if len(cs.Values) != snap.Rows || len(cs.Codes) != snap.Rows {
			return nil, fmt.Errorf("unmarshalling column store snapshot: column %q has %d values and %d codes for %d rows", cs.Name, len(cs.Values), len(cs.Codes), snap.Rows)
		}
		if cs.Exact != nil && (len(cs.Exact) != snap.Rows || len(cs.Distinct) <= len(cs.Bins)) {
			return nil, fmt.Errorf("unmarshalling column store snapshot: column %q has %d exact codes over %d distinct values for %d rows and %d bins", cs.Name, len(cs.Exact), len(cs.Distinct), snap.Rows, len(cs.Bins))
		}
		c := s.columns[i]
		c.values = cs.Values
		c.count = snap.Rows
		c.min, c.max, c.total, c.precision = cs.Min, cs.Max, cs.Total, cs.Precision
		c.codes = cs.Codes
		c.bins = cs.Bins
		if cs.Exact != nil {
			c.exact, c.distinct = cs.Exact, cs.Distinct
		}
		c.represent()
		c.values = nil
		c.frozen = true
	}
	s.rows = snap.Rows
	s.classes = snap.Classes
	s.frozen = true
	return s, nil
}
