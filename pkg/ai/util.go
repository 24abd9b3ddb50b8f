package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

var codeFence = regexp.MustCompile("```(?:json|JSON)?[ \t]*\n?")

// StripCodeFences removes markdown code fences that models wrap around JSON.
func StripCodeFences(s string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(s, ""))
}

// GenerateSchema creates a JSON Schema from the given Go type for use with
// structured model output.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// UnmarshalFlexible unmarshals model output into out. It tries plain JSON
// first, then a double-encoded JSON string, and finally repairs malformed
// JSON before parsing.
//
// Example:
//
//	var doc MindMapDocument
//	UnmarshalFlexible(`{"nodes": []}`, &doc)         // standard JSON
//	UnmarshalFlexible(`"{\"nodes\": []}"`, &doc)     // double-encoded
//	UnmarshalFlexible(`{nodes: [],}`, &doc)          // malformed (repaired)
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	input = stripDuplicateLeadingBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, input)
	}

	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w (input: %s)", err, input)
	}
	return nil
}
