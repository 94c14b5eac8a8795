package recipe

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the recipe file's JSON Schema as indented JSON,
// reflected from the Recipe type.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Recipe{})
	return json.MarshalIndent(schema, "", "  ")
}

// JSONSchema describes env as the mapping it is in YAML rather than
// the ordered slice it decodes into.
func (EnvVars) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Description:          "Environment variables exported before the serve command, in declaration order",
		AdditionalProperties: &jsonschema.Schema{Type: "string"},
	}
}
