/*
Package yaml provides methods to parse feature.Schema specifications
also known as metadata, from YAML documents.
*/
package yaml

import (
	"fmt"
	"os"

	"github.com/pbanos/grove/feature"
	yaml "gopkg.in/yaml.v2"
)

/*
ReadSchema takes a slice of bytes with a feature specification in YML and
returns a schema parsed from it or an error.
The YML is expected to be an object containing a features property. The value for this
should be an object with a property for each feature with its name and either a
string value of 'continuous' for continuous features or a list of valid values
for discrete features. Features keep the order in which they are declared.
The object may also contain a class property with the name of the feature to
predict and an ignore property with a list of feature names not to split on.
*/
func ReadSchema(md []byte) (*feature.Schema, error) {
	metadata := struct {
		Features yaml.MapSlice
		Class    string
		Ignore   []string
	}{}
	err := yaml.Unmarshal(md, &metadata)
	if err != nil {
		return nil, fmt.Errorf("parsing yml features: %v", err)
	}
	if metadata.Features == nil {
		return nil, fmt.Errorf("metadata file has no feature information")
	}
	schema := &feature.Schema{Class: metadata.Class, Ignored: metadata.Ignore}
	for _, item := range metadata.Features {
		fn := fmt.Sprintf("%v", item.Key)
		switch values := item.Value.(type) {
		case string:
			if values != "continuous" {
				return nil, fmt.Errorf("invalid declaration %q for feature %s", values, fn)
			}
			schema.Features = append(schema.Features, feature.NewContinuousFeature(fn))
		case []interface{}:
			stringVs := []string{}
			for _, v := range values {
				stringVs = append(stringVs, fmt.Sprintf("%v", v))
			}
			schema.Features = append(schema.Features, feature.NewDiscreteFeature(fn, stringVs))
		default:
			return nil, fmt.Errorf("invalid feature declaration of type %T", item.Value)
		}
	}
	return schema, nil
}

/*
ReadSchemaFromFile takes a filepath string, reads its contents and uses
ReadSchema to parse it and return the parsed schema or an error.
If the file indicated by the filepath cannot be opened for reading an error
will be returned.
*/
func ReadSchemaFromFile(filepath string) (*feature.Schema, error) {
	md, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading features yml file %s: %v", filepath, err)
	}
	schema, err := ReadSchema(md)
	if err != nil {
		err = fmt.Errorf("parsing features yml file %s: %v", filepath, err)
	}
	return schema, err
}
