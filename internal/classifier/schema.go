package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const verdictSchemaJSON = `{
  "type": "object",
  "required": ["is_signal", "confidence"],
  "properties": {
    "is_signal": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "symbol": {"type": "string"},
    "direction": {"type": "string", "enum": ["buy", "sell", "long", "short"]},
    "entry": {"type": ["number", "null"]},
    "stop": {"type": ["number", "null"]},
    "targets": {"type": "array", "items": {"type": "number"}},
    "rationale": {"type": "string"}
  }
}`

var verdictSchema = mustCompileSchema(verdictSchemaJSON)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("verdict.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("verdict.json")
}

// validateVerdictJSON checks the shape of the extracted model output before
// it is trusted. A signal verdict additionally requires symbol and
// direction.
func validateVerdictJSON(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("verdict is empty")
	}
	if !gjson.Valid(raw) {
		return fmt.Errorf("verdict is not valid json")
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return err
	}
	if err := verdictSchema.Validate(doc); err != nil {
		return fmt.Errorf("verdict schema: %w", err)
	}
	parsed := gjson.Parse(raw)
	if parsed.Get("is_signal").Bool() {
		if strings.TrimSpace(parsed.Get("symbol").String()) == "" {
			return fmt.Errorf("signal verdict missing symbol")
		}
		if strings.TrimSpace(parsed.Get("direction").String()) == "" {
			return fmt.Errorf("signal verdict missing direction")
		}
	}
	return nil
}
