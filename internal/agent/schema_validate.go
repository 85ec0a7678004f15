package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaChecker validates tool-call arguments against the schema each
// tool declares. Schemas compile once per tool name; a schema that fails
// to compile is remembered as unenforceable so a tool with a sloppy
// schema degrades to unvalidated rather than unusable.
type schemaChecker struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func newSchemaChecker() *schemaChecker {
	return &schemaChecker{compiled: map[string]*jsonschema.Schema{}}
}

// check validates input against tool's declared schema. It returns nil
// when the arguments conform or the schema cannot be enforced.
func (c *schemaChecker) check(tool Tool, input json.RawMessage) error {
	schema := c.schemaFor(tool)
	if schema == nil {
		return nil
	}

	var value any
	if len(input) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(input, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(value)
}

func (c *schemaChecker) schemaFor(tool Tool) *jsonschema.Schema {
	name := tool.Name()

	c.mu.Lock()
	defer c.mu.Unlock()
	if schema, seen := c.compiled[name]; seen {
		return schema
	}

	url := name + ".schema.json"
	compiler := jsonschema.NewCompiler()
	var schema *jsonschema.Schema
	if err := compiler.AddResource(url, bytes.NewReader(tool.Schema())); err == nil {
		schema, _ = compiler.Compile(url)
	}
	c.compiled[name] = schema
	return schema
}
