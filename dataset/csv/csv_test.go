package csv

import (
	"context"
	"strings"
	"testing"

	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	features := []feature.Feature{
		feature.NewContinuousFeature("petal"),
		feature.NewDiscreteFeature("species", []string{"setosa", "virginica"}),
	}
	input := "id,species,petal\n1,setosa,1.5\n2,virginica,4.25\n3,setosa,1.25\n"
	s, err := dataset.Load(context.Background(), NewSource(strings.NewReader(input), features), features)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Rows())
	assert.Equal(t, 4.25, s.Value(0, 1))
	assert.Equal(t, 1.0, s.Value(1, 1))
}

func TestUndefinedValues(t *testing.T) {
	features := []feature.Feature{feature.NewContinuousFeature("a"), feature.NewContinuousFeature("b")}
	rows, errs := NewSource(strings.NewReader("a,b\n1,?\n"), features).Read(context.Background())
	var read [][]interface{}
	for r := range rows {
		read = append(read, r)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, [][]interface{}{{"1", nil}}, read)
}

func TestMissingColumn(t *testing.T) {
	features := []feature.Feature{feature.NewContinuousFeature("a"), feature.NewContinuousFeature("c")}
	_, err := dataset.Load(context.Background(), NewSource(strings.NewReader("a,b\n1,2\n"), features), features)
	assert.Error(t, err)
}

func TestInvalidValue(t *testing.T) {
	features := []feature.Feature{
		feature.NewContinuousFeature("a"),
		feature.NewDiscreteFeature("class", []string{"x", "y"}),
	}
	_, err := dataset.Load(context.Background(), NewSource(strings.NewReader("a,class\n1,z\n"), features), features)
	assert.Error(t, err)
}
