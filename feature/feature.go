/*
Package feature describes the columns of the data a forest is grown
from: continuous (numeric) features, discrete (categorical) features
and which of them is the class to predict.
*/
package feature

import (
	"fmt"
	"strconv"
)

/*
Feature represents a property that can be observed and encoded as
a numeric column value.
*/
type Feature interface {
	Name() string
	// Encode takes a raw observed value and returns its numeric
	// representation on a column or an error if it is not a valid
	// value for the feature.
	Encode(interface{}) (float64, error)
}

/*
DiscreteFeature represents a property that can be observed and that can only
take a value among a finite set. Values are encoded as their index in that set.
*/
type DiscreteFeature struct {
	name            string
	availableValues []string
	codes           map[string]int
}

/*
ContinuousFeature represents a property that can be observed and that can take
a numeric value
*/
type ContinuousFeature struct {
	name string
}

/*
NewDiscreteFeature takes a name string and a slice of available value strings
and returns a discrete feature with the given names and available values.
*/
func NewDiscreteFeature(name string, availableValues []string) *DiscreteFeature {
	codes := make(map[string]int, len(availableValues))
	for i, v := range availableValues {
		codes[v] = i
	}
	return &DiscreteFeature{name, availableValues, codes}
}

/*
NewContinuousFeature takes a name string and returns a continuous feature with
the given name.
*/
func NewContinuousFeature(name string) *ContinuousFeature {
	return &ContinuousFeature{name}
}

// Name returns a string with the name of the feature
func (df *DiscreteFeature) Name() string {
	return df.name
}

/*
Encode receives a value and returns the index of the value among the
available values of the feature. Strings are looked up directly, other
values by their default formatting.
*/
func (df *DiscreteFeature) Encode(value interface{}) (float64, error) {
	var vs string
	switch v := value.(type) {
	case nil:
		return 0, fmt.Errorf("discrete feature %s got an undefined value", df.name)
	case string:
		vs = v
	case []byte:
		vs = string(v)
	default:
		vs = fmt.Sprintf("%v", v)
	}
	code, ok := df.codes[vs]
	if !ok {
		return 0, fmt.Errorf("discrete feature %s got unknown value %s", df.name, vs)
	}
	return float64(code), nil
}

// Decode returns the available value encoded as the given code.
func (df *DiscreteFeature) Decode(code int) string {
	if code < 0 || code >= len(df.availableValues) {
		return fmt.Sprintf("#%d", code)
	}
	return df.availableValues[code]
}

// AvailableValues returns a string slice with the values available for the feature
func (df *DiscreteFeature) AvailableValues() []string {
	return df.availableValues
}

// Name returns a string with the name of the feature
func (cf *ContinuousFeature) Name() string {
	return cf.name
}

/*
Encode receives a value and returns it as a float64. Numeric values
are converted and strings are parsed.
*/
func (cf *ContinuousFeature) Encode(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("continuous feature %s: converting %q to float64: %v", cf.name, v, err)
		}
		return f, nil
	case []byte:
		return cf.Encode(string(v))
	}
	return 0, fmt.Errorf("continuous feature %s expects a numeric value, got %T value", cf.name, value)
}
