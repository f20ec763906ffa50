package main

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/eltrade/mnconfig/internal/registry"
)

var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// validateFile checks the JSON object in file against the registry schema
// of componentKey and returns the violations.
func validateFile(reg *registry.Registry, componentKey, file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", file)
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, errors.Wrapf(err, "error decoding %s", file)
	}
	if _, ok := value.(map[string]interface{}); !ok {
		return nil, errors.Errorf("%s: value must be a JSON object", file)
	}
	if !reg.Has(componentKey) {
		return nil, errors.Errorf("component %s is not in the registry", componentKey)
	}
	return reg.Validate(componentKey, value), nil
}
