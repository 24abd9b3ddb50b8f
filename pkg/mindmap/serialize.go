package mindmap

import (
	"encoding/json"
)

type wireNode struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Type        NodeType  `json:"type,omitempty"`
	Level       *int      `json:"level,omitempty"`
	Position    *Position `json:"position,omitempty"`
}

type wireEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type wireGraph struct {
	Nodes       []wireNode `json:"nodes"`
	Connections []wireEdge `json:"connections"`
}

// MarshalJSON writes the {nodes, connections} shape that Normalize accepts,
// so a stored graph loads back with the same ids and edges.
func (g *Graph) MarshalJSON() ([]byte, error) {
	w := wireGraph{
		Nodes:       make([]wireNode, 0, len(g.Nodes)),
		Connections: make([]wireEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		wn := wireNode{
			ID:          n.ID,
			Label:       n.Label,
			Description: n.Description,
			Type:        n.Type,
		}
		if n.explicitLevel || n.Type != "" {
			level := n.Level
			wn.Level = &level
		}
		if n.positioned {
			pos := n.Position
			wn.Position = &pos
		}
		w.Nodes = append(w.Nodes, wn)
	}
	for _, e := range g.Edges {
		w.Connections = append(w.Connections, wireEdge{ID: e.ID, Source: e.Source, Target: e.Target})
	}
	return json.Marshal(w)
}

// UnmarshalJSON normalizes data into g. It never fails; unreadable data
// yields the fallback graph.
func (g *Graph) UnmarshalJSON(data []byte) error {
	*g = *Normalize(json.RawMessage(data))
	return nil
}
