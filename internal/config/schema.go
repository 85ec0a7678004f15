package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache struct {
	once sync.Once
	data []byte
	err  error
}

// JSONSchema reflects the Config struct into a JSON Schema document,
// keyed by yaml tags so it matches what the loader accepts. The result
// is computed once.
func JSONSchema() ([]byte, error) {
	schemaCache.once.Do(func() {
		reflector := &jsonschema.Reflector{FieldNameTag: "yaml"}
		schemaCache.data, schemaCache.err = json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	})
	return schemaCache.data, schemaCache.err
}
