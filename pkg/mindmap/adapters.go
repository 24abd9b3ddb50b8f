package mindmap

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const (
	AdapterNodes     = "nodes"
	AdapterFlatTopic = "flat-topic"
	AdapterEmpty     = "empty"
)

// Adapter recognises one payload shape and converts it into a graph.
// Build may record renamed nodes on the report; dangling edges are dropped
// by the normalizer after Build returns.
type Adapter struct {
	Name   string
	Detect func(payload map[string]any) bool
	Build  func(payload map[string]any, report *NormalizeReport) (*Graph, error)
}

// DefaultAdapters returns the built-in adapters in priority order.
func DefaultAdapters() []Adapter {
	return []Adapter{
		{Name: AdapterNodes, Detect: hasNodeList, Build: buildNodeList},
		{Name: AdapterFlatTopic, Detect: hasTopic, Build: buildFlatTopic},
		{Name: AdapterEmpty, Detect: hasGraphKeys, Build: buildNodeList},
	}
}

var (
	labelKeys       = []string{"label", "content", "text", "name"}
	descriptionKeys = []string{"description", "details", "info"}
	edgeListKeys    = []string{"connections", "edges"}
	topicKeys       = []string{"topic", "mainConcept", "centralTopic"}
	subtopicKeys    = []string{"subtopics", "concepts", "branches"}
)

func hasNodeList(payload map[string]any) bool {
	nodes, ok := payload["nodes"].([]any)
	return ok && len(nodes) > 0
}

func hasTopic(payload map[string]any) bool {
	return firstText(payload, topicKeys...) != ""
}

func hasGraphKeys(payload map[string]any) bool {
	for _, k := range append([]string{"nodes"}, edgeListKeys...) {
		if _, ok := payload[k]; ok {
			return true
		}
	}
	return false
}

func buildNodeList(payload map[string]any, report *NormalizeReport) (*Graph, error) {
	rawNodes, err := listAt(payload, "nodes")
	if err != nil {
		return nil, err
	}
	var rawEdges []any
	for _, k := range edgeListKeys {
		if _, ok := payload[k]; !ok || payload[k] == nil {
			continue
		}
		if rawEdges, err = listAt(payload, k); err != nil {
			return nil, err
		}
		break
	}

	g := NewGraph()
	seen := make(map[string]bool, len(rawNodes))
	for i, item := range rawNodes {
		node, err := nodeFromPayload(i, item)
		if err != nil {
			return nil, err
		}
		if seen[node.ID] {
			original := node.ID
			node.ID = uniqueID(original, seen)
			report.rename(original, node.ID)
		}
		seen[node.ID] = true
		g.Nodes = append(g.Nodes, node)
	}

	edgeIDs := make(map[string]bool, len(rawEdges))
	for i, item := range rawEdges {
		m, ok := item.(map[string]any)
		if !ok {
			report.DroppedEdges = append(report.DroppedEdges, Edge{ID: "e" + strconv.Itoa(i), Direction: DirectionDown})
			continue
		}
		e := &Edge{
			ID:        scalarString(m["id"]),
			Source:    firstText(m, "source", "from"),
			Target:    firstText(m, "target", "to"),
			Direction: DirectionDown,
		}
		if e.ID == "" {
			e.ID = "e" + strconv.Itoa(i)
		}
		if edgeIDs[e.ID] {
			e.ID = uniqueID(e.ID, edgeIDs)
		}
		edgeIDs[e.ID] = true
		g.Edges = append(g.Edges, e)
	}

	return g, nil
}

func nodeFromPayload(i int, item any) (*Node, error) {
	fallbackID := strconv.Itoa(i + 1)
	fallbackLabel := fmt.Sprintf("Node %d", i+1)

	switch v := item.(type) {
	case map[string]any:
		n := &Node{
			ID:          scalarString(v["id"]),
			Label:       firstText(v, labelKeys...),
			Description: firstText(v, descriptionKeys...),
		}
		if n.ID == "" {
			n.ID = fallbackID
		}
		if n.Label == "" {
			n.Label = fallbackLabel
		}
		if t, ok := normalizeType(v["type"]); ok {
			n.Type = t
			n.explicitType = true
		}
		if level, ok := intValue(v["level"]); ok && level >= 0 {
			n.Level = level
			n.explicitLevel = true
		}
		if pos, ok := positionValue(v["position"]); ok {
			n.SetPosition(pos)
		}
		return n, nil
	case string, json.Number, float64, bool:
		label := scalarString(v)
		if label == "" {
			label = fallbackLabel
		}
		return &Node{ID: fallbackID, Label: label}, nil
	default:
		return nil, fmt.Errorf("node %d is %T, want object", i, item)
	}
}

func buildFlatTopic(payload map[string]any, _ *NormalizeReport) (*Graph, error) {
	g := NewGraph()
	g.Nodes = append(g.Nodes, &Node{
		ID:            "1",
		Label:         firstText(payload, topicKeys...),
		Type:          TypeMain,
		explicitType:  true,
		explicitLevel: true,
	})

	var subtopics []any
	for _, k := range subtopicKeys {
		if v, ok := payload[k]; ok && v != nil {
			list, err := listAt(payload, k)
			if err != nil {
				return nil, err
			}
			subtopics = list
			break
		}
	}

	for i, item := range subtopics {
		n := &Node{
			ID:            strconv.Itoa(i + 2),
			Type:          TypePrimary,
			Level:         1,
			explicitType:  true,
			explicitLevel: true,
		}
		switch v := item.(type) {
		case map[string]any:
			n.Label = firstText(v, "name", "label")
			n.Description = firstText(v, "description", "details")
		case nil:
			return nil, fmt.Errorf("subtopic %d is null", i)
		default:
			n.Label = scalarString(v)
		}
		if n.Label == "" {
			n.Label = fmt.Sprintf("Subtopic %d", i+1)
		}
		g.Nodes = append(g.Nodes, n)
		g.Edges = append(g.Edges, &Edge{
			ID:        edgeID("1", n.ID),
			Source:    "1",
			Target:    n.ID,
			Direction: DirectionDown,
		})
	}
	return g, nil
}

func listAt(payload map[string]any, key string) ([]any, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%q is %T, want list", key, v)
	}
	return list, nil
}

func uniqueID(base string, taken map[string]bool) string {
	for k := 2; ; k++ {
		candidate := base + "-" + strconv.Itoa(k)
		if !taken[candidate] {
			return candidate
		}
	}
}

// firstText returns the first key whose value renders to a non-empty string.
func firstText(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func floatValue(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func intValue(v any) (int, bool) {
	f, ok := floatValue(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func positionValue(v any) (Position, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Position{}, false
	}
	x, okX := floatValue(m["x"])
	y, okY := floatValue(m["y"])
	if !okX || !okY {
		return Position{}, false
	}
	return Position{X: x, Y: y}, true
}
