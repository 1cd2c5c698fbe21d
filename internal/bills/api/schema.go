package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// billSchema is the shape a bill record must have before it is converted.
// Numeric fields are accepted as numbers or strings since the API sends both.
const billSchema = `{
  "type": "object",
  "required": ["account_id", "descricao", "data_vencimento"],
  "properties": {
    "account_id":      {"type": ["integer", "string"]},
    "descricao":       {"type": "string"},
    "tipo":            {"type": ["string", "null"]},
    "valor":           {"type": ["number", "string", "null"]},
    "data_vencimento": {"type": "string", "minLength": 10},
    "responsavel":     {"type": ["string", "null"]},
    "estado":          {"type": ["string", "null"]},
    "user_id":         {"type": ["integer", "string", "null"]},
    "campo_opcional":  {"type": ["integer", "string", "null"]}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("bill.json", strings.NewReader(billSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("bill.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// validateRecord checks one raw record against billSchema. On failure it
// returns the JSON pointer of the first offending field, if any.
func validateRecord(raw json.RawMessage) (field string, err error) {
	s, err := compiledSchema()
	if err != nil {
		return "", err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("unmarshal record: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return offendingField(err), err
	}
	return "", nil
}

func offendingField(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return ""
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := strings.TrimPrefix(ve.InstanceLocation, "/")
	if loc == "" {
		// missing required properties are reported on the object itself
		if i := strings.Index(ve.Message, "missing properties: "); i >= 0 {
			return strings.Trim(strings.SplitN(ve.Message[i+len("missing properties: "):], ",", 2)[0], "' ")
		}
	}
	return loc
}
