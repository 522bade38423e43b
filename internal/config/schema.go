package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// durationPattern matches the strings time.ParseDuration accepts.
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var durationType = reflect.TypeOf(time.Duration(0))

// JSONSchema returns the schema of the configuration file as editors see it:
// YAML key names, durations as strings such as "30s", and the $include
// directive LoadRaw understands. Unknown keys are rejected, as Load does.
var JSONSchema = sync.OnceValues(func() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:   "yaml",
		ExpandedStruct: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern, Examples: []any{"30s", "5m"}}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.Title = "opsassist configuration"
	schema.Properties.Set(IncludeKey, &jsonschema.Schema{
		Description: "files merged underneath this one, relative to it",
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	})
	return json.MarshalIndent(schema, "", "  ")
})
