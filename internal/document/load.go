package document

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML (or JSON) configuration file into a Document.
// Read and parse failures are *LoadError; guard failures are *LimitError.
func Load(path string, limits Limits) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return Parse(path, data, limits)
}

// Parse decodes data. JSON documents parse as YAML flow syntax.
func Parse(name string, data []byte, limits Limits) (*Document, error) {
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}

	switch root.(type) {
	case nil, map[string]any, map[any]any:
	default:
		return nil, &LoadError{Path: name, Err: errors.New("top-level value must be a mapping")}
	}

	return New(name, root, limits)
}
