package yaml

import (
	"testing"

	"github.com/pbanos/grove/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const irisMetadata = `
features:
  species: [setosa, versicolor, virginica]
  sepal_length: continuous
  petal_length: continuous
  id: continuous
class: species
ignore: [id]
`

func TestReadSchema(t *testing.T) {
	schema, err := ReadSchema([]byte(irisMetadata))
	require.NoError(t, err)
	assert.Equal(t, []string{"species", "sepal_length", "petal_length", "id"}, feature.Names(schema.Features))

	ordered, err := schema.Ordered()
	require.NoError(t, err)
	assert.Equal(t, []string{"sepal_length", "petal_length", "id", "species"}, feature.Names(ordered))

	ignored, err := schema.IgnoredColumns()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ignored)

	class := schema.ClassFeature()
	require.NotNil(t, class)
	code, err := class.Encode("virginica")
	require.NoError(t, err)
	assert.Equal(t, 2.0, code)
	assert.Equal(t, "versicolor", class.Decode(1))
}

func TestReadSchemaErrors(t *testing.T) {
	_, err := ReadSchema([]byte("class: x"))
	assert.Error(t, err)

	_, err = ReadSchema([]byte("features:\n  x: categorical\n"))
	assert.Error(t, err)

	schema, err := ReadSchema([]byte("features:\n  x: continuous\n  y: continuous\nclass: y\n"))
	require.NoError(t, err)
	_, err = schema.Ordered()
	assert.Error(t, err)
}
