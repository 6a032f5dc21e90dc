package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/FocuswithJustin/psalter/core/errors"
)

const requestSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["psalm_number", "verses"],
  "properties": {
    "psalm_number": {"type": "integer", "minimum": 1, "maximum": 150},
    "verses": {
      "type": "array",
      "uniqueItems": true,
      "items": {"type": "integer", "minimum": 1}
    }
  }
}`

const resultSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "verified": {"type": "boolean"},
    "message": {"type": "string"},
    "verses": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["verse", "text"],
        "properties": {
          "verse": {"type": "integer", "minimum": 1},
          "text": {"type": "string"}
        }
      }
    }
  }
}`

var (
	requestSchema = mustSchema(requestSchemaJSON)
	resultSchema  = mustSchema(resultSchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("envelope: invalid built-in schema: %v", err))
	}
	return schema
}

// Validate checks a typed envelope against the contract by validating its
// JSON form, so the result is exactly what a client would receive.
func Validate(env *Envelope) error {
	if env == nil {
		return errors.NewContractViolation("", "envelope is nil")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return errors.NewContractViolation("", fmt.Sprintf("envelope does not encode: %v", err))
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.NewContractViolation("", fmt.Sprintf("envelope does not decode: %v", err))
	}
	return ValidatePayload(payload)
}

// ValidatePayload enforces the envelope contract on a decoded JSON object.
// Checks run in a fixed order and the first failure is returned as a
// *errors.ContractViolationError; nothing is corrected in place.
func ValidatePayload(payload map[string]any) error {
	if payload == nil {
		return errors.NewContractViolation("", "payload must be an object")
	}

	if intent, _ := payload["intent"].(string); intent != Intent {
		return errors.NewContractViolation("intent", fmt.Sprintf("must be %q", Intent))
	}

	rawStatus, ok := payload["status"].(string)
	status := Status(rawStatus)
	if !ok || !status.Valid() {
		return errors.NewContractViolation("status", fmt.Sprintf("unrecognized status %v", payload["status"]))
	}

	rawRequest, present := payload["request"]
	if !present {
		return errors.NewContractViolation("request", "missing")
	}
	request, ok := rawRequest.(map[string]any)
	if !ok {
		return errors.NewContractViolation("request", "must be an object")
	}
	if err := checkSchema("request", requestSchema, request); err != nil {
		return err
	}
	if verses, _ := request["verses"].([]any); len(verses) == 0 && status != StatusInvalidRequest {
		return errors.NewContractViolation("request.verses", "may only be empty for invalid_request")
	}

	rawResult, present := payload["result"]
	if !present || rawResult == nil {
		if status == StatusOK {
			return errors.NewContractViolation("result", "ok envelope must carry its verified verses")
		}
		return nil
	}
	result, ok := rawResult.(map[string]any)
	if !ok {
		return errors.NewContractViolation("result", "must be an object")
	}
	if err := checkSchema("result", resultSchema, result); err != nil {
		return err
	}

	if verified, ok := result["verified"].(bool); ok {
		if status == StatusOK && !verified {
			return errors.NewContractViolation("result.verified", "ok result must not be unverified")
		}
		if status != StatusOK && verified {
			return errors.NewContractViolation("result.verified", fmt.Sprintf("%s result must not be verified", status))
		}
	}

	if status == StatusOK {
		return checkSuccessShape(request, result)
	}
	return checkFailureShape(status, result)
}

// checkSuccessShape requires {verified: true, verses} with one entry per
// requested verse, in request order, and no message.
func checkSuccessShape(request, result map[string]any) error {
	if _, has := result["message"]; has {
		return errors.NewContractViolation("result.message", "ok result must not carry a message")
	}
	if verified, _ := result["verified"].(bool); !verified {
		return errors.NewContractViolation("result.verified", "ok result must be verified")
	}
	entries, has := result["verses"].([]any)
	if !has {
		return errors.NewContractViolation("result.verses", "ok result must list the requested verses")
	}
	requested, _ := request["verses"].([]any)
	if len(entries) != len(requested) {
		return errors.NewContractViolation("result.verses",
			fmt.Sprintf("has %d entries for %d requested verses", len(entries), len(requested)))
	}
	for i, raw := range entries {
		entry, _ := raw.(map[string]any)
		got, _ := number(entry["verse"])
		want, _ := number(requested[i])
		if got != want {
			return errors.NewContractViolation(fmt.Sprintf("result.verses.%d", i),
				fmt.Sprintf("verse %v does not match requested verse %v", entry["verse"], requested[i]))
		}
	}
	return nil
}

// checkFailureShape requires {message} without verse entries.
func checkFailureShape(status Status, result map[string]any) error {
	if _, has := result["verses"]; has {
		return errors.NewContractViolation("result.verses", fmt.Sprintf("%s result must not carry verses", status))
	}
	if message, _ := result["message"].(string); message == "" {
		return errors.NewContractViolation("result.message", fmt.Sprintf("%s result must explain itself", status))
	}
	return nil
}

func checkSchema(field string, schema *gojsonschema.Schema, value map[string]any) error {
	res, err := schema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return errors.NewContractViolation(field, fmt.Sprintf("cannot be validated: %v", err))
	}
	if res.Valid() {
		return nil
	}
	first := res.Errors()[0]
	path := field
	if f := first.Field(); f != "" && f != gojsonschema.STRING_CONTEXT_ROOT {
		path = field + "." + f
	}
	return errors.NewContractViolation(path, first.Description())
}

// number reads a JSON number decoded either by encoding/json or built in Go.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
