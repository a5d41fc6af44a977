package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const partialSchemaURL = "feedwatch://endpoint-partial.json"

// partialSchema describes the fields an update may carry. Unknown fields are
// allowed and dropped later by decoding into endpoint.Config.
const partialSchema = `{
  "type": "object",
  "properties": {
    "apiEndpoint":  {"type": "string", "minLength": 1},
    "method":       {"type": "string", "pattern": "^(?i)(GET|POST|PUT|PATCH|DELETE)$"},
    "headers":      {"type": "object", "additionalProperties": {"type": "string"}},
    "query":        {"type": "object", "additionalProperties": {"type": "string"}},
    "body":         {"type": ["object", "null"]},
    "authType":     {"enum": ["", "none", "bearer", "basic"]},
    "authToken":    {"type": "string"},
    "authUsername": {"type": "string"},
    "authPassword": {"type": "string"},
    "itemsPath":     {"type": "string"},
    "idPath":        {"type": "string"},
    "timestampPath": {"type": "string"},
    "titlePath":     {"type": "string"},
    "detailsPath":   {"type": "string"},
    "enableSms":           {"type": "boolean"},
    "enableEmail":         {"type": "boolean"},
    "enableManualMute":    {"type": "boolean"},
    "enableRecoveryEmail": {"type": "boolean"},
    "phoneNumbers":   {"type": "array", "items": {"type": "string"}},
    "emailAddresses": {"type": "array", "items": {"type": "string"}},
    "checkInterval":  {"type": "integer", "exclusiveMinimum": 0}
  }
}`

func compilePartialSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(partialSchema))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(partialSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	sch, err := c.Compile(partialSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

func validatePartial(sch *jsonschema.Schema, partial map[string]any) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("%w: %v", endpoint.ErrInvalidConfig, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", endpoint.ErrInvalidConfig, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", endpoint.ErrInvalidConfig, err)
	}
	return nil
}
