package feature

import "fmt"

/*
Schema holds the features in a dataset, the name of the class
feature among them and the names of the features that must not be
used to split nodes.
*/
type Schema struct {
	Features []Feature
	Class    string
	Ignored  []string
}

// Ordered returns the schema's features with the class feature
// moved to the last position, as column stores expect it, or an
// error if the class feature is not defined or is not discrete.
func (s *Schema) Ordered() ([]Feature, error) {
	ordered := make([]Feature, 0, len(s.Features))
	var class Feature
	for _, f := range s.Features {
		if f.Name() == s.Class {
			class = f
			continue
		}
		ordered = append(ordered, f)
	}
	if class == nil {
		return nil, fmt.Errorf("class feature '%s' is not defined", s.Class)
	}
	if _, ok := class.(*DiscreteFeature); !ok {
		return nil, fmt.Errorf("class feature '%s' must be discrete", s.Class)
	}
	return append(ordered, class), nil
}

// ClassFeature returns the class feature or nil if it is not defined
func (s *Schema) ClassFeature() *DiscreteFeature {
	for _, f := range s.Features {
		if f.Name() == s.Class {
			df, _ := f.(*DiscreteFeature)
			return df
		}
	}
	return nil
}

// IgnoredColumns returns the indexes, within the ordered features,
// of the ignored features.
func (s *Schema) IgnoredColumns() ([]int, error) {
	ordered, err := s.Ordered()
	if err != nil {
		return nil, err
	}
	var columns []int
	for _, name := range s.Ignored {
		found := false
		for i, f := range ordered {
			if f.Name() == name {
				columns = append(columns, i)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("ignored feature '%s' is not defined", name)
		}
	}
	return columns, nil
}

// Names returns the names of the given features
func Names(features []Feature) []string {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name()
	}
	return names
}
