package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/distguard/distguard/internal/document"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://distguard.schemas.local/rulepack.schema.json"

//go:embed schema/rulepack.schema.json
var rulePackSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// RulePackSchema returns the JSON schema every rule pack must satisfy.
func RulePackSchema() []byte {
	return rulePackSchema
}

func packSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader(rulePackSchema)); err != nil {
			schemaErr = fmt.Errorf("rule pack schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("rule pack schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// validateShape checks raw YAML against the rule pack schema. The YAML is
// taken through JSON first so the validator sees JSON types only.
func validateShape(name string, data []byte) error {
	schema, err := packSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return defErr(name, "", "invalid YAML: %v", err)
	}
	if raw == nil {
		return defErr(name, "", "empty rule pack")
	}

	js, err := json.Marshal(document.Canonical(raw))
	if err != nil {
		return defErr(name, "", "cannot convert to JSON: %v", err)
	}
	var doc any
	if err := json.Unmarshal(js, &doc); err != nil {
		return defErr(name, "", "cannot convert to JSON: %v", err)
	}

	if err := schema.Validate(doc); err != nil {
		return defErr(name, "", "schema validation failed: %v", err)
	}
	return nil
}
