// Package mindmap turns AI-generated mind map payloads into renderable,
// editable node/edge graphs.
//
// The package is split along the data flow: Normalize accepts any of the
// payload shapes the content generator is known to produce, Resolve infers the
// hierarchy (root, node types, levels), Layout assigns vertical-tree positions
// and the Editor mutates a live graph while keeping every edge endpoint valid.
//
// A Graph is owned by a single caller at a time; nothing in this package locks.
package mindmap

import (
	"errors"
	"fmt"
	"slices"
)

// NodeType classifies a node by its depth in the mind map.
type NodeType string

const (
	TypeMain      NodeType = "main"
	TypePrimary   NodeType = "primary"
	TypeSecondary NodeType = "secondary"
	TypeTertiary  NodeType = "tertiary"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case TypeMain, TypePrimary, TypeSecondary, TypeTertiary:
		return true
	}
	return false
}

// Direction is the visual direction of an edge. Mind maps only flow down.
type Direction string

const DirectionDown Direction = "down"

// Position is a 2D canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single concept in the mind map.
type Node struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Type        NodeType `json:"type,omitempty"`
	Level       int      `json:"level"`
	Position    Position `json:"position"`

	// explicitType and explicitLevel mark values that came from the payload
	// (or from an edit) and must not be overwritten by inference.
	explicitType  bool
	explicitLevel bool
	positioned    bool
}

// Positioned reports whether the node carries a computed or stored position.
func (n *Node) Positioned() bool {
	return n.positioned
}

// SetPosition stores p on the node and marks it positioned.
func (n *Node) SetPosition(p Position) {
	n.Position = p
	n.positioned = true
}

func (n *Node) clone() *Node {
	c := *n
	return &c
}

// Edge is a directed parent -> child connection.
type Edge struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Direction Direction `json:"direction"`
}

// Graph is an ordered node sequence plus a set of edges. Node order is the
// rendering order.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make([]*Node, 0),
		Edges: make([]*Edge, 0),
	}
}

// Node returns the node with the given id or nil.
func (g *Graph) Node(id string) *Node {
	if i := g.nodeIndex(id); i >= 0 {
		return g.Nodes[i]
	}
	return nil
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id string) bool {
	return g.nodeIndex(id) >= 0
}

func (g *Graph) nodeIndex(id string) int {
	return slices.IndexFunc(g.Nodes, func(n *Node) bool { return n.ID == id })
}

// HasEdgeID reports whether an edge with the given id exists.
func (g *Graph) HasEdgeID(id string) bool {
	return slices.ContainsFunc(g.Edges, func(e *Edge) bool { return e.ID == id })
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]*Node, len(g.Nodes)),
		Edges: make([]*Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.clone()
	}
	for i, e := range g.Edges {
		c := *e
		out.Edges[i] = &c
	}
	return out
}

// DanglingEdges returns the edges whose source or target does not exist.
func (g *Graph) DanglingEdges() []*Edge {
	ids := g.idSet()
	var out []*Edge
	for _, e := range g.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			out = append(out, e)
		}
	}
	return out
}

// ErrDanglingEdge marks an edge whose source or target does not exist.
var ErrDanglingEdge = errors.New("edge references missing node")

// Validate returns an error wrapping ErrDanglingEdge for every edge with a
// missing endpoint, or nil when the graph is well-formed.
func (g *Graph) Validate() error {
	var errs []error
	for _, e := range g.DanglingEdges() {
		errs = append(errs, fmt.Errorf("%w: %s (%s -> %s)", ErrDanglingEdge, e.ID, e.Source, e.Target))
	}
	return errors.Join(errs...)
}

func (g *Graph) idSet() map[string]bool {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	return ids
}

// AdjacencyIndex maps a node id to its ordered child ids. It is derived from
// the edges of one graph and must be rebuilt whenever those edges change.
type AdjacencyIndex struct {
	children map[string][]string
	parents  map[string][]string
	// order keeps parent ids in first-encountered edge order.
	order []string
}

// BuildAdjacency derives the child lists of g. Edges whose endpoints are
// missing from the node set are treated as no-ops.
func BuildAdjacency(g *Graph) AdjacencyIndex {
	ids := g.idSet()
	idx := AdjacencyIndex{
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
	for _, e := range g.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			continue
		}
		if _, ok := idx.children[e.Source]; !ok {
			idx.order = append(idx.order, e.Source)
		}
		idx.children[e.Source] = append(idx.children[e.Source], e.Target)
		idx.parents[e.Target] = append(idx.parents[e.Target], e.Source)
	}
	return idx
}

// Children returns the ordered child ids of id.
func (a AdjacencyIndex) Children(id string) []string {
	return a.children[id]
}

// Parents returns the ids of nodes with an edge into id.
func (a AdjacencyIndex) Parents(id string) []string {
	return a.parents[id]
}

// ParentIDs returns the ids of nodes with children, in first-encountered order.
func (a AdjacencyIndex) ParentIDs() []string {
	return slices.Clone(a.order)
}

// widestParent returns the parent with the most children; ties go to the
// parent seen first.
func (a AdjacencyIndex) widestParent() (string, bool) {
	best, most := "", 0
	for _, id := range a.order {
		if n := len(a.children[id]); n > most {
			best, most = id, n
		}
	}
	return best, most > 0
}

// Subtree returns id followed by every node reachable from it, in
// depth-first order. Each id appears once even when the edges form a cycle.
func Subtree(a AdjacencyIndex, id string) []string {
	ids, _ := walkSubtree(a, id, map[string]bool{})
	return ids
}

// walkSubtree visits id and its descendants. The seen set is threaded
// through explicitly and returned so termination only depends on the number
// of distinct ids.
func walkSubtree(a AdjacencyIndex, id string, seen map[string]bool) ([]string, map[string]bool) {
	if seen[id] {
		return nil, seen
	}
	seen[id] = true
	out := []string{id}
	for _, child := range a.children[id] {
		var sub []string
		sub, seen = walkSubtree(a, child, seen)
		out = append(out, sub...)
	}
	return out, seen
}
