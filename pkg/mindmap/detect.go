package mindmap

import (
	"encoding/json"
)

// LooksLikeQuiz reports whether raw holds quiz content (a list whose first
// element has a question) stored under the mind map study type. Such content
// should be regenerated rather than rendered.
func LooksLikeQuiz(raw any) bool {
	var doc any
	switch v := raw.(type) {
	case nil:
		return false
	case []byte:
		if json.Unmarshal(v, &doc) != nil {
			return false
		}
	case json.RawMessage:
		if json.Unmarshal(v, &doc) != nil {
			return false
		}
	case string:
		if json.Unmarshal([]byte(v), &doc) != nil {
			return false
		}
	default:
		doc = v
	}
	if s, ok := doc.(string); ok {
		return LooksLikeQuiz(s)
	}

	list, ok := doc.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return false
	}
	_, ok = first["question"]
	return ok
}
